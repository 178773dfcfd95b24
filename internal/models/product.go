package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// AttributePair is a single variant attribute, e.g. {"Size", "M"}.
type AttributePair struct {
	Key   string
	Value string
}

// Attributes is an ordered string->string map. Order matters because slug
// derivation walks attribute values in the order the client supplied them.
// Keys and values must both be JSON strings; anything else is rejected at
// decode time.
type Attributes []AttributePair

// Get returns the value for key and whether it was present.
func (a Attributes) Get(key string) (string, bool) {
	for _, p := range a {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// MarshalJSON renders the attributes as a JSON object in insertion order.
func (a Attributes) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving key order and enforcing
// string values.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*a = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("attributes must be a JSON object")
	}
	out := Attributes{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		valTok, err := dec.Token()
		if err != nil {
			return err
		}
		val, ok := valTok.(string)
		if !ok {
			return fmt.Errorf("attribute %q: value must be a string", key)
		}
		out = append(out, AttributePair{Key: key, Value: val})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*a = out
	return nil
}

// Value implements driver.Valuer for jsonb storage.
func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := a.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for jsonb retrieval.
func (a *Attributes) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*a = nil
		return nil
	case string:
		return a.UnmarshalJSON([]byte(v))
	case []byte:
		return a.UnmarshalJSON(v)
	default:
		return fmt.Errorf("cannot scan %T into Attributes", value)
	}
}

// Product represents a catalog product owning zero or more variants.
type Product struct {
	ID          int64            `json:"id" db:"id"`
	Name        string           `json:"name" db:"name"`
	SKU         string           `json:"sku" db:"sku"`
	Description *string          `json:"description,omitempty" db:"description"`
	Tags        []string         `json:"tags" db:"tags"`
	CategoryID  int64            `json:"category_id" db:"category_id"`
	BrandID     *int64           `json:"brand_id,omitempty" db:"brand_id"`
	IsPublished bool             `json:"is_published" db:"is_published"`
	IsActive    bool             `json:"is_active" db:"is_active"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
	Variants    []ProductVariant `json:"variants,omitempty"`
}

// ProductVariant is a sellable variation of a product. Packs reference the
// single-unit variant they bundle via PackVariantID; combos are flagged with
// IsCombo and described by a ComboProduct row.
type ProductVariant struct {
	ID        int64  `json:"id" db:"id"`
	ProductID int64  `json:"product_id" db:"product_id"`
	Name      string `json:"name" db:"name"`
	Slug      string `json:"slug" db:"slug"`
	SKU       string `json:"sku" db:"sku"`

	BasePrice    float64 `json:"base_price" db:"base_price"`
	MRP          float64 `json:"mrp" db:"mrp"`
	SellingPrice float64 `json:"selling_price" db:"selling_price"`
	Margin       float64 `json:"margin" db:"margin"`

	Tax  float64 `json:"tax" db:"tax"`
	CGST float64 `json:"cgst" db:"cgst"`
	SGST float64 `json:"sgst" db:"sgst"`
	IGST float64 `json:"igst" db:"igst"`
	Cess float64 `json:"cess" db:"cess"`

	Weight     *string    `json:"weight,omitempty" db:"weight"`
	Attributes Attributes `json:"attributes" db:"attributes"`

	IsPack        bool   `json:"is_pack" db:"is_pack"`
	PackQty       int    `json:"pack_qty" db:"pack_qty"`
	PackVariantID *int64 `json:"pack_variant_id,omitempty" db:"pack_variant_id"`
	IsCombo       bool   `json:"is_combo" db:"is_combo"`

	IsActive    bool `json:"is_active" db:"is_active"`
	IsPublished bool `json:"is_published" db:"is_published"`
	IsRejected  bool `json:"is_rejected" db:"is_rejected"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Populated on detail reads
	ProductName string `json:"product_name,omitempty" db:"-"`
}

// ComputeMargin recalculates the derived margin (selling - base).
func (v *ProductVariant) ComputeMargin() {
	v.Margin = v.SellingPrice - v.BasePrice
}

// Slugify lowercases s and collapses every non-alphanumeric run into a
// single hyphen.
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// GenerateProductSKU builds the auto-assigned product SKU from the last
// used product id, e.g. ROZ07 for the seventh product.
func GenerateProductSKU(lastID int64) string {
	return fmt.Sprintf("ROZ%02d", lastID+1)
}

// BuildVariantSKU derives a variant SKU from its product's SKU and the
// variant name, or a positional fallback when the name is empty.
func BuildVariantSKU(productSKU, variantName string, ordinal int) string {
	if variantName != "" {
		return productSKU + "-" + strings.ToUpper(Slugify(variantName))
	}
	return fmt.Sprintf("%s-V%02d", productSKU, ordinal)
}

// BuildVariantSlug derives the variant slug from the product name, variant
// name, attribute values (in order) and weight.
func BuildVariantSlug(productName, variantName string, attrs Attributes, weight *string) string {
	parts := []string{Slugify(productName)}
	if variantName != "" {
		parts = append(parts, Slugify(variantName))
	}
	for _, p := range attrs {
		if p.Value != "" {
			parts = append(parts, Slugify(p.Value))
		}
	}
	if weight != nil && *weight != "" {
		parts = append(parts, Slugify(*weight))
	}
	return strings.Join(parts, "-")
}

// Category is a product grouping used for scope filtering.
type Category struct {
	ID       int64  `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	IsActive bool   `json:"is_active" db:"is_active"`
}

// Brand is an optional product manufacturer/label.
type Brand struct {
	ID       int64  `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	IsActive bool   `json:"is_active" db:"is_active"`
}
