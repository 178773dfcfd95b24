package models

import "time"

// ComboProduct wraps the variant that represents a combo offering and owns
// the component items.
type ComboProduct struct {
	ID             int64     `json:"id" db:"id"`
	ComboVariantID int64     `json:"combo_variant_id" db:"combo_variant_id"`
	Name           string    `json:"name" db:"name"`
	Description    *string   `json:"description,omitempty" db:"description"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`

	Items []ComboProductItem `json:"items,omitempty"`
}

// ComboProductItem pairs a component variant with its quantity inside a
// combo. Unique on (combo_id, product_variant_id).
type ComboProductItem struct {
	ID               int64 `json:"id" db:"id"`
	ComboID          int64 `json:"combo_id" db:"combo_id"`
	ProductVariantID int64 `json:"product_variant_id" db:"product_variant_id"`
	Quantity         int   `json:"quantity" db:"quantity"`
	IsActive         bool  `json:"is_active" db:"is_active"`
}
