package models

import "time"

// ChangeType categorizes a price history entry. The set is closed; status
// and reporting endpoints key off these values.
type ChangeType string

const (
	ChangePercentageUpdate   ChangeType = "percentage_update"
	ChangeBulkClusterUpdate  ChangeType = "bulk_cluster_update"
	ChangeBulkFacilityUpdate ChangeType = "bulk_facility_update"
	ChangeOverridePrice      ChangeType = "override_price_update"
)

// PriceHistory is an append-only audit row recording a single price change
// on one (facility, variant) inventory row. Rows are never updated or
// deleted by the pricing flow. Product/variant/facility names and the
// variant SKU are snapshotted so the audit trail survives catalog deletes.
type PriceHistory struct {
	ID               int64      `json:"id" db:"id"`
	ProductID        int64      `json:"product_id" db:"product_id"`
	ProductVariantID int64      `json:"product_variant_id" db:"product_variant_id"`
	ClusterID        *int64     `json:"cluster_id,omitempty" db:"cluster_id"`
	FacilityID       int64      `json:"facility_id" db:"facility_id"`
	UserID           *int64     `json:"user_id,omitempty" db:"user_id"`

	ProductName  string `json:"product_name" db:"product_name"`
	VariantName  string `json:"variant_name" db:"variant_name"`
	VariantSKU   string `json:"variant_sku" db:"variant_sku"`
	FacilityName string `json:"facility_name" db:"facility_name"`

	OldPrice         float64    `json:"old_price" db:"old_price"`
	NewPrice         float64    `json:"new_price" db:"new_price"`
	OldCSP           float64    `json:"old_csp" db:"old_csp"`
	NewCSP           float64    `json:"new_csp" db:"new_csp"`
	PercentageChange float64    `json:"percentage_change" db:"percentage_change"`
	ChangeType       ChangeType `json:"change_type" db:"change_type"`
	ChangeReason     string     `json:"change_reason" db:"change_reason"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}

// PriceHistoryFilter narrows history listing queries. Zero values mean
// "no filter".
type PriceHistoryFilter struct {
	ProductID  int64
	ClusterID  int64
	FacilityID int64
	UserID     int64
	StartDate  *time.Time
	EndDate    *time.Time
}
