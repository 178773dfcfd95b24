package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rozanalabs/catalog-service/internal/models"
)

// Reason is a per-pair rejection cause. The set is closed: downstream
// reporting keys off exactly these values.
type Reason string

const (
	// ReasonNoInventoryRecord: no inventory row for this (facility, variant).
	ReasonNoInventoryRecord Reason = "no_inventory_record"
	// ReasonNoInventoryRecords: the variant has no inventory row in any
	// target facility; every pair for it is rejected up front.
	ReasonNoInventoryRecords Reason = "no_inventory_records"
	// ReasonNoValidPrice: neither the inventory selling price nor the
	// variant base price is positive.
	ReasonNoValidPrice Reason = "no_valid_price"
	// ReasonExceedsMRP: the computed price is above the variant's MRP.
	ReasonExceedsMRP Reason = "calculated_price_exceeds_mrp"
)

const (
	defaultBatchSize = 100
	sampleCap        = 100
)

// PriceUpdate stages one inventory selling-price write.
type PriceUpdate struct {
	InventoryID  int64
	SellingPrice float64
}

// EngineStore is the persistence surface the engine flushes batches
// through. *db.Database implements it.
type EngineStore interface {
	// InventoriesFor returns the active inventory rows for the cross
	// product of the given facilities and variants.
	InventoriesFor(ctx context.Context, facilityIDs, variantIDs []int64) ([]models.FacilityInventory, error)
	// UpdateSellingPrices applies staged selling-price writes in one bulk
	// statement.
	UpdateSellingPrices(ctx context.Context, updates []PriceUpdate) error
	// InsertPriceHistory bulk-inserts audit rows and returns their ids in
	// input order.
	InsertPriceHistory(ctx context.Context, rows []models.PriceHistory) ([]int64, error)
}

// ComputeNewPrice applies a percentage margin to a base price:
// base * (1 + margin/100), rounded to 2 decimal places. Decimal arithmetic
// keeps the MRP comparison exact for prices like 0.1 + 0.2.
func ComputeNewPrice(basePrice, margin float64) float64 {
	base := decimal.NewFromFloat(basePrice)
	factor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(margin).Div(decimal.NewFromInt(100)))
	return base.Mul(factor).Round(2).InexactFloat64()
}

// Decision is the outcome of evaluating one (facility, variant) pair.
type Decision struct {
	Accepted bool
	Reason   Reason
	// CurrentPrice is the price used for the validity gate: the inventory
	// selling price when positive, else the variant base price.
	CurrentPrice float64
	// OldPrice is the inventory selling price prior to the change.
	OldPrice float64
	// NewPrice is base_price * (1 + margin/100). Note the asymmetry: the
	// multiplier always applies to the variant base price, never to
	// CurrentPrice.
	NewPrice float64
}

// Decide evaluates a single pair. inv is nil when the facility has no
// inventory row for the variant.
func Decide(v *models.ProductVariant, inv *models.FacilityInventory, margin float64) Decision {
	if inv == nil {
		return Decision{Reason: ReasonNoInventoryRecord}
	}

	var current float64
	switch {
	case inv.SellingPrice > 0:
		current = inv.SellingPrice
	case v.BasePrice > 0:
		current = v.BasePrice
	default:
		return Decision{Reason: ReasonNoValidPrice}
	}

	newPrice := ComputeNewPrice(v.BasePrice, margin)
	if v.MRP > 0 && decimal.NewFromFloat(newPrice).GreaterThan(decimal.NewFromFloat(v.MRP)) {
		return Decision{
			Reason:       ReasonExceedsMRP,
			CurrentPrice: current,
			OldPrice:     inv.SellingPrice,
			NewPrice:     newPrice,
		}
	}

	return Decision{
		Accepted:     true,
		CurrentPrice: current,
		OldPrice:     inv.SellingPrice,
		NewPrice:     newPrice,
	}
}

// RunParams configures one engine run over a resolved scope.
type RunParams struct {
	Scope        *Scope
	Margin       float64
	Actor        models.Actor
	ClusterID    *int64
	ChangeType   models.ChangeType
	ChangeReason string
	SkipHistory  bool
}

// FacilityPrice reports one applied price change within a variant outcome.
type FacilityPrice struct {
	FacilityID      int64   `json:"facility_id"`
	FacilityName    string  `json:"facility_name"`
	OldSellingPrice float64 `json:"old_selling_price"`
	NewSellingPrice float64 `json:"new_selling_price"`
}

// VariantOutcome summarizes what happened to one variant across all
// facilities in scope.
type VariantOutcome struct {
	VariantID          int64           `json:"variant_id"`
	VariantName        string          `json:"variant_name"`
	SKU                string          `json:"sku"`
	ProductID          int64           `json:"product_id"`
	ProductName        string          `json:"product_name"`
	BasePrice          float64         `json:"base_price"`
	MRP                float64         `json:"mrp"`
	SellingPrices      []FacilityPrice `json:"selling_prices"`
	FacilitiesUpdated  int             `json:"facilities_updated"`
	FacilitiesRejected int             `json:"facilities_rejected"`
	Status             string          `json:"status"`
}

// Rejection records one refused pair together with the inputs that caused
// the refusal.
type Rejection struct {
	VariantID       int64   `json:"variant_id"`
	VariantName     string  `json:"variant_name"`
	SKU             string  `json:"sku"`
	ProductID       int64   `json:"product_id"`
	ProductName     string  `json:"product_name"`
	FacilityID      int64   `json:"facility_id"`
	FacilityName    string  `json:"facility_name"`
	BasePrice       float64 `json:"base_price"`
	SellingPrice    float64 `json:"selling_price"`
	MRP             float64 `json:"mrp"`
	CalculatedPrice float64 `json:"calculated_price"`
	Reason          Reason  `json:"reason"`
}

// Result is the full accounting of an engine run. Counts are exact; the
// Updated and Rejected slices are capped samples (first 100) for response
// payload size.
type Result struct {
	TotalFound      int
	TotalProcessed  int
	TotalUpdated    int
	TotalRejected   int
	Updated         []VariantOutcome
	Rejected        []Rejection
	HistoryIDs      []int64
	HistoryRecorded bool
}

// Engine applies a percentage margin across a resolved scope in fixed-size
// batches. It is not globally atomic: each batch commits independently, so
// a mid-run failure leaves earlier batches applied. Every pair in scope
// yields exactly one accepted or rejected outcome.
type Engine struct {
	store     EngineStore
	batchSize int
}

// NewEngine returns an engine flushing every batchSize variants. batchSize
// <= 0 selects the default of 100.
func NewEngine(store EngineStore, batchSize int) *Engine {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Engine{store: store, batchSize: batchSize}
}

type pairKey struct {
	facilityID int64
	variantID  int64
}

// Run executes the margin application over p.Scope.
func (e *Engine) Run(ctx context.Context, p RunParams) (*Result, error) {
	scope := p.Scope
	inventories, err := e.store.InventoriesFor(ctx, scope.FacilityIDs(), scope.VariantIDs())
	if err != nil {
		return nil, fmt.Errorf("loading inventories: %w", err)
	}

	lookup := make(map[pairKey]*models.FacilityInventory, len(inventories))
	withInventory := make(map[int64]bool)
	for i := range inventories {
		inv := &inventories[i]
		lookup[pairKey{inv.FacilityID, inv.ProductVariantID}] = inv
		withInventory[inv.ProductVariantID] = true
	}

	res := &Result{
		TotalFound:      len(scope.Variants),
		HistoryRecorded: !p.SkipHistory,
	}

	var staged []PriceUpdate
	var stagedHistory []models.PriceHistory

	flush := func() error {
		if len(staged) == 0 {
			return nil
		}
		if err := e.store.UpdateSellingPrices(ctx, staged); err != nil {
			return fmt.Errorf("updating inventories: %w", err)
		}
		if !p.SkipHistory && len(stagedHistory) > 0 {
			ids, err := e.store.InsertPriceHistory(ctx, stagedHistory)
			if err != nil {
				return fmt.Errorf("recording price history: %w", err)
			}
			res.HistoryIDs = append(res.HistoryIDs, ids...)
		}
		staged = staged[:0]
		stagedHistory = stagedHistory[:0]
		return nil
	}

	for i := range scope.Variants {
		v := &scope.Variants[i]

		if !withInventory[v.ID] {
			// Shortcut: no inventory row anywhere in scope rejects every
			// pair for the variant. One sample entry, full pair count.
			res.recordRejection(v, &scope.Facilities[0], Decision{Reason: ReasonNoInventoryRecords})
			res.TotalRejected += len(scope.Facilities)
			res.TotalProcessed++
		} else {
			updated, rejected := 0, 0
			var prices []FacilityPrice

			for j := range scope.Facilities {
				f := &scope.Facilities[j]
				inv := lookup[pairKey{f.ID, v.ID}]
				d := Decide(v, inv, p.Margin)
				if !d.Accepted {
					res.recordRejection(v, f, d)
					rejected++
					continue
				}

				staged = append(staged, PriceUpdate{InventoryID: inv.ID, SellingPrice: d.NewPrice})
				prices = append(prices, FacilityPrice{
					FacilityID:      f.ID,
					FacilityName:    f.Name,
					OldSellingPrice: d.OldPrice,
					NewSellingPrice: d.NewPrice,
				})
				if !p.SkipHistory {
					stagedHistory = append(stagedHistory, buildHistoryRow(v, f, p, d))
				}
				updated++
			}

			status := "rejected"
			if updated > 0 {
				status = "updated"
			}
			if len(res.Updated) < sampleCap {
				res.Updated = append(res.Updated, VariantOutcome{
					VariantID:          v.ID,
					VariantName:        v.Name,
					SKU:                v.SKU,
					ProductID:          v.ProductID,
					ProductName:        v.ProductName,
					BasePrice:          v.BasePrice,
					MRP:                v.MRP,
					SellingPrices:      prices,
					FacilitiesUpdated:  updated,
					FacilitiesRejected: rejected,
					Status:             status,
				})
			}
			res.TotalUpdated += updated
			res.TotalRejected += rejected
			res.TotalProcessed++
		}

		// Flush on variant batch boundaries so memory stays bounded on
		// type:"all" runs. Every variant index counts toward the boundary,
		// including ones handled by the shortcut above. Batch boundaries
		// never change per-pair outcomes.
		if (i+1)%e.batchSize == 0 {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}

	if err := flush(); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Result) recordRejection(v *models.ProductVariant, f *models.Facility, d Decision) {
	if len(r.Rejected) >= sampleCap {
		return
	}
	r.Rejected = append(r.Rejected, Rejection{
		VariantID:       v.ID,
		VariantName:     v.Name,
		SKU:             v.SKU,
		ProductID:       v.ProductID,
		ProductName:     v.ProductName,
		FacilityID:      f.ID,
		FacilityName:    f.Name,
		BasePrice:       v.BasePrice,
		SellingPrice:    d.OldPrice,
		MRP:             v.MRP,
		CalculatedPrice: d.NewPrice,
		Reason:          d.Reason,
	})
}

func buildHistoryRow(v *models.ProductVariant, f *models.Facility, p RunParams, d Decision) models.PriceHistory {
	oldPrice := d.OldPrice
	if oldPrice == 0 {
		oldPrice = d.CurrentPrice
	}
	return models.PriceHistory{
		ProductID:        v.ProductID,
		ProductVariantID: v.ID,
		ClusterID:        p.ClusterID,
		FacilityID:       f.ID,
		UserID:           p.Actor.UserIDPtr(),
		ProductName:      v.ProductName,
		VariantName:      v.Name,
		VariantSKU:       v.SKU,
		FacilityName:     f.Name,
		OldPrice:         oldPrice,
		NewPrice:         d.NewPrice,
		OldCSP:           oldPrice,
		NewCSP:           d.NewPrice,
		PercentageChange: p.Margin,
		ChangeType:       p.ChangeType,
		ChangeReason:     p.ChangeReason,
	}
}
