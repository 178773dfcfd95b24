package assembly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rozanalabs/catalog-service/internal/models"
)

func strptr(s string) *string { return &s }

func TestBuildPlanPairsPackWithSingle(t *testing.T) {
	link := strptr("rice-1kg")
	inputs := []VariantInput{
		{Link: link, Variant: models.ProductVariant{Name: "1kg"}},
		{Link: link, IsPack: true, PackQty: 6, Variant: models.ProductVariant{Name: "6x1kg"}},
	}

	plan, err := BuildPlan(inputs, nil)
	require.NoError(t, err)
	require.Len(t, plan.Singles, 1)
	require.Len(t, plan.Packs, 1)
	assert.Empty(t, plan.Warnings)

	pk := plan.Packs[0]
	assert.Equal(t, 0, pk.SingleIndex)
	assert.Equal(t, int64(0), pk.ExistingID)
	assert.True(t, pk.Input.Variant.IsPack)
	assert.Equal(t, 6, pk.Input.Variant.PackQty)
}

func TestBuildPlanForcesSingleShape(t *testing.T) {
	packID := int64(99)
	inputs := []VariantInput{
		{Variant: models.ProductVariant{Name: "1kg", IsPack: true, PackQty: 4, PackVariantID: &packID}},
	}

	plan, err := BuildPlan(inputs, nil)
	require.NoError(t, err)
	require.Len(t, plan.Singles, 1)

	s := plan.Singles[0].Variant
	assert.False(t, s.IsPack)
	assert.Equal(t, 1, s.PackQty)
	assert.Nil(t, s.PackVariantID)
}

func TestBuildPlanMultipleSinglesSameLink(t *testing.T) {
	link := strptr("dup")
	inputs := []VariantInput{
		{Link: link, Variant: models.ProductVariant{Name: "a"}},
		{Link: link, Variant: models.ProductVariant{Name: "b"}},
	}

	_, err := BuildPlan(inputs, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMultipleSingles)
}

func TestBuildPlanNilLinkSinglesDoNotCollide(t *testing.T) {
	inputs := []VariantInput{
		{Variant: models.ProductVariant{Name: "a"}},
		{Variant: models.ProductVariant{Name: "b"}},
	}

	plan, err := BuildPlan(inputs, nil)
	require.NoError(t, err)
	assert.Len(t, plan.Singles, 2)
}

func TestBuildPlanPackResolvesAgainstExisting(t *testing.T) {
	inputs := []VariantInput{
		{Link: strptr("stored"), IsPack: true, PackQty: 12, Variant: models.ProductVariant{Name: "12-pack"}},
	}

	plan, err := BuildPlan(inputs, map[string]int64{"stored": 7})
	require.NoError(t, err)
	require.Len(t, plan.Packs, 1)
	assert.Equal(t, -1, plan.Packs[0].SingleIndex)
	assert.Equal(t, int64(7), plan.Packs[0].ExistingID)
}

func TestBuildPlanUnresolvedPackBecomesWarning(t *testing.T) {
	inputs := []VariantInput{
		{Link: strptr("nowhere"), IsPack: true, PackQty: 3, Variant: models.ProductVariant{Name: "3-pack"}},
		{IsPack: true, PackQty: 2, Variant: models.ProductVariant{Name: "orphan"}},
	}

	plan, err := BuildPlan(inputs, nil)
	require.NoError(t, err)
	assert.Empty(t, plan.Packs)
	require.Len(t, plan.Warnings, 2)
	assert.Equal(t, "nowhere", plan.Warnings[0].Link)
	assert.Contains(t, plan.Warnings[0].Message, "3-pack")
	assert.Equal(t, "", plan.Warnings[1].Link)
}

func TestBuildPlanSeparatesUpdates(t *testing.T) {
	inputs := []VariantInput{
		{ID: 5, Variant: models.ProductVariant{ID: 5, Name: "existing"}},
		{Variant: models.ProductVariant{Name: "new"}},
	}

	plan, err := BuildPlan(inputs, nil)
	require.NoError(t, err)
	assert.Len(t, plan.Updates, 1)
	assert.Len(t, plan.Singles, 1)
}

func TestValidateCombo(t *testing.T) {
	flags := map[int64]bool{1: false, 2: false, 3: true, 10: false}

	items := func(ids ...int64) []ComboItemInput {
		out := make([]ComboItemInput, len(ids))
		for i, id := range ids {
			out[i] = ComboItemInput{VariantID: id, Quantity: 1}
		}
		return out
	}

	assert.NoError(t, ValidateCombo(10, items(1, 2), flags))

	assert.ErrorIs(t, ValidateCombo(10, items(1), flags), ErrTooFewItems)
	assert.ErrorIs(t, ValidateCombo(10, items(1, 1), flags), ErrDuplicateComponent)
	assert.ErrorIs(t, ValidateCombo(10, items(1, 10), flags), ErrSelfReference)
	assert.ErrorIs(t, ValidateCombo(10, items(1, 3), flags), ErrNestedCombo)

	bad := items(1, 2)
	bad[1].Quantity = 0
	assert.ErrorIs(t, ValidateCombo(10, bad, flags), ErrBadQuantity)
}
