package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// FacilityType distinguishes retail stores from warehouses.
type FacilityType string

const (
	FacilityTypeStore     FacilityType = "store"
	FacilityTypeWarehouse FacilityType = "warehouse"
)

// Valid reports whether t is a known facility type.
func (t FacilityType) Valid() bool {
	return t == FacilityTypeStore || t == FacilityTypeWarehouse
}

// Value implements driver.Valuer.
func (t FacilityType) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid facility type %q", string(t))
	}
	return string(t), nil
}

// Facility is a physical store or warehouse location.
// Backed by table `facilities`.
type Facility struct {
	ID           int64        `json:"id" db:"id"`
	Name         string       `json:"name" db:"name"`
	FacilityType FacilityType `json:"facility_type" db:"facility_type"`
	Address      string       `json:"address" db:"address"`
	City         string       `json:"city" db:"city"`
	State        string       `json:"state" db:"state"`
	Country      string       `json:"country" db:"country"`
	Pincode      string       `json:"pincode" db:"pincode"`
	Email        *string      `json:"email,omitempty" db:"email"`
	PhoneNumber  *string      `json:"phone_number,omitempty" db:"phone_number"`
	IsActive     bool         `json:"is_active" db:"is_active"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`

	// Populated on detail reads
	ManagerIDs []int64 `json:"manager_ids,omitempty" db:"-"`
	ClusterIDs []int64 `json:"cluster_ids,omitempty" db:"-"`
}

// Cluster is a named group of facilities used as a pricing/targeting unit.
// Backed by table `clusters` and join table `cluster_facilities`.
type Cluster struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Region    *string   `json:"region,omitempty" db:"region"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	FacilityIDs []int64 `json:"facility_ids,omitempty" db:"-"`
}

// FacilityInventory is the per-(facility, variant) row holding stock and
// live pricing. Unique on (facility_id, product_variant_id); this is the
// row the pricing engine mutates.
type FacilityInventory struct {
	ID                  int64     `json:"id" db:"id"`
	FacilityID          int64     `json:"facility_id" db:"facility_id"`
	ProductVariantID    int64     `json:"product_variant_id" db:"product_variant_id"`
	Stock               int       `json:"stock" db:"stock"`
	BasePrice           float64   `json:"base_price" db:"base_price"`
	MRP                 float64   `json:"mrp" db:"mrp"`
	SellingPrice        float64   `json:"selling_price" db:"selling_price"`
	CustDiscount        *float64  `json:"cust_discount,omitempty" db:"cust_discount"`
	MaxPurchaseLimit    *int      `json:"max_purchase_limit,omitempty" db:"max_purchase_limit"`
	OutOfStockThreshold *int      `json:"outofstock_threshold,omitempty" db:"outofstock_threshold"`
	Status              *string   `json:"status,omitempty" db:"status"`
	IsActive            bool      `json:"is_active" db:"is_active"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// DeriveCustDiscount fills cust_discount as mrp - selling_price when the
// caller did not set it.
func (inv *FacilityInventory) DeriveCustDiscount() {
	if inv.CustDiscount == nil {
		d := inv.MRP - inv.SellingPrice
		inv.CustDiscount = &d
	}
}
