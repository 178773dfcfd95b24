package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributesPreserveOrder(t *testing.T) {
	raw := `{"Size":"M","Color":"Blue","Fit":"Slim"}`

	var attrs Attributes
	require.NoError(t, json.Unmarshal([]byte(raw), &attrs))
	require.Len(t, attrs, 3)
	assert.Equal(t, AttributePair{Key: "Size", Value: "M"}, attrs[0])
	assert.Equal(t, AttributePair{Key: "Color", Value: "Blue"}, attrs[1])
	assert.Equal(t, AttributePair{Key: "Fit", Value: "Slim"}, attrs[2])

	out, err := json.Marshal(attrs)
	require.NoError(t, err)
	assert.Equal(t, raw, string(out))
}

func TestAttributesRejectNonStringValues(t *testing.T) {
	var attrs Attributes
	err := json.Unmarshal([]byte(`{"Size":42}`), &attrs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a string")

	err = json.Unmarshal([]byte(`["Size","M"]`), &attrs)
	require.Error(t, err)
}

func TestAttributesGet(t *testing.T) {
	attrs := Attributes{{Key: "Size", Value: "M"}}
	v, ok := attrs.Get("Size")
	assert.True(t, ok)
	assert.Equal(t, "M", v)
	_, ok = attrs.Get("Color")
	assert.False(t, ok)
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Basmati Rice":       "basmati-rice",
		"  Premium  Atta!! ": "premium-atta",
		"500g Pack (New)":    "500g-pack-new",
		"---":                "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), "input %q", in)
	}
}

func TestGenerateProductSKU(t *testing.T) {
	assert.Equal(t, "ROZ01", GenerateProductSKU(0))
	assert.Equal(t, "ROZ08", GenerateProductSKU(7))
	assert.Equal(t, "ROZ123", GenerateProductSKU(122))
}

func TestBuildVariantSKU(t *testing.T) {
	assert.Equal(t, "ROZ07-1KG", BuildVariantSKU("ROZ07", "1kg", 1))
	assert.Equal(t, "ROZ07-V03", BuildVariantSKU("ROZ07", "", 3))
}

func TestBuildVariantSlug(t *testing.T) {
	weight := "500g"
	slug := BuildVariantSlug("Basmati Rice", "Premium", Attributes{
		{Key: "Grade", Value: "A1"},
		{Key: "Origin", Value: ""},
	}, &weight)
	assert.Equal(t, "basmati-rice-premium-a1-500g", slug)

	slug = BuildVariantSlug("Basmati Rice", "", nil, nil)
	assert.Equal(t, "basmati-rice", slug)
}

func TestComputeMargin(t *testing.T) {
	v := ProductVariant{BasePrice: 80, SellingPrice: 100}
	v.ComputeMargin()
	assert.Equal(t, 20.0, v.Margin)
}

func TestActor(t *testing.T) {
	sys := ActorSystem()
	_, ok := sys.UserID()
	assert.False(t, ok)
	assert.Nil(t, sys.UserIDPtr())
	assert.Equal(t, "system", sys.String())

	u := ActorUser(42)
	id, ok := u.UserID()
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
	require.NotNil(t, u.UserIDPtr())
	assert.Equal(t, int64(42), *u.UserIDPtr())
}

func TestDeriveCustDiscount(t *testing.T) {
	inv := FacilityInventory{MRP: 120, SellingPrice: 100}
	inv.DeriveCustDiscount()
	require.NotNil(t, inv.CustDiscount)
	assert.Equal(t, 20.0, *inv.CustDiscount)

	set := 5.0
	inv2 := FacilityInventory{MRP: 120, SellingPrice: 100, CustDiscount: &set}
	inv2.DeriveCustDiscount()
	assert.Equal(t, 5.0, *inv2.CustDiscount)
}
