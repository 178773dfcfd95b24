package pricing

import (
	"context"
	"fmt"

	"github.com/rozanalabs/catalog-service/internal/models"
)

// ClusterStore extends the engine's persistence surface with lazy inventory
// creation, used by the cluster-scoped single-product update.
type ClusterStore interface {
	EngineStore
	// GetOrCreateInventory returns the active inventory row for the pair,
	// creating a zero-stock row seeded from the variant's prices when none
	// exists yet.
	GetOrCreateInventory(ctx context.Context, facilityID int64, v *models.ProductVariant) (*models.FacilityInventory, error)
}

// ClusterProductParams configures a single-product price update across one
// cluster's facilities.
type ClusterProductParams struct {
	Product    *models.Product
	Variants   []models.ProductVariant
	Cluster    *models.Cluster
	Facilities []models.Facility
	Margin     float64
	Actor      models.Actor
}

// ClusterPriceRecord is one applied before/after pair in a cluster update.
type ClusterPriceRecord struct {
	VariantID    int64   `json:"variant_id"`
	VariantName  string  `json:"variant_name"`
	FacilityID   int64   `json:"facility_id"`
	FacilityName string  `json:"facility_name"`
	OldPrice     float64 `json:"old_price"`
	NewPrice     float64 `json:"new_price"`
	OldCSP       float64 `json:"old_csp"`
	NewCSP       float64 `json:"new_csp"`
	HistoryID    int64   `json:"history_id"`
}

// ClusterProductResult accounts for a cluster-scoped product update.
type ClusterProductResult struct {
	Updated    []ClusterPriceRecord
	Rejected   []Rejection
	HistoryIDs []int64
}

// RunClusterProduct applies the per-pair pricing algorithm to one product's
// active variants across every facility of a cluster. Inventory rows are
// created lazily, so pairs are only rejected for missing prices or the MRP
// bound.
func RunClusterProduct(ctx context.Context, store ClusterStore, p ClusterProductParams) (*ClusterProductResult, error) {
	res := &ClusterProductResult{}

	var staged []PriceUpdate
	var stagedHistory []models.PriceHistory
	var pending []int // index into res.Updated awaiting a history id

	for i := range p.Variants {
		v := &p.Variants[i]
		for j := range p.Facilities {
			f := &p.Facilities[j]
			inv, err := store.GetOrCreateInventory(ctx, f.ID, v)
			if err != nil {
				return nil, fmt.Errorf("inventory for facility %d variant %d: %w", f.ID, v.ID, err)
			}

			d := Decide(v, inv, p.Margin)
			if !d.Accepted {
				res.Rejected = append(res.Rejected, Rejection{
					VariantID:       v.ID,
					VariantName:     v.Name,
					SKU:             v.SKU,
					ProductID:       v.ProductID,
					ProductName:     p.Product.Name,
					FacilityID:      f.ID,
					FacilityName:    f.Name,
					BasePrice:       v.BasePrice,
					SellingPrice:    d.OldPrice,
					MRP:             v.MRP,
					CalculatedPrice: d.NewPrice,
					Reason:          d.Reason,
				})
				continue
			}

			oldPrice := d.OldPrice
			if oldPrice == 0 {
				oldPrice = d.CurrentPrice
			}
			staged = append(staged, PriceUpdate{InventoryID: inv.ID, SellingPrice: d.NewPrice})
			clusterID := p.Cluster.ID
			stagedHistory = append(stagedHistory, models.PriceHistory{
				ProductID:        v.ProductID,
				ProductVariantID: v.ID,
				ClusterID:        &clusterID,
				FacilityID:       f.ID,
				UserID:           p.Actor.UserIDPtr(),
				ProductName:      p.Product.Name,
				VariantName:      v.Name,
				VariantSKU:       v.SKU,
				FacilityName:     f.Name,
				OldPrice:         oldPrice,
				NewPrice:         d.NewPrice,
				OldCSP:           oldPrice,
				NewCSP:           d.NewPrice,
				PercentageChange: p.Margin,
				ChangeType:       models.ChangePercentageUpdate,
				ChangeReason:     fmt.Sprintf("Price updated by %v%% for cluster %s", p.Margin, p.Cluster.Name),
			})
			pending = append(pending, len(res.Updated))
			res.Updated = append(res.Updated, ClusterPriceRecord{
				VariantID:    v.ID,
				VariantName:  v.Name,
				FacilityID:   f.ID,
				FacilityName: f.Name,
				OldPrice:     oldPrice,
				NewPrice:     d.NewPrice,
				OldCSP:       oldPrice,
				NewCSP:       d.NewPrice,
			})
		}
	}

	if len(staged) > 0 {
		if err := store.UpdateSellingPrices(ctx, staged); err != nil {
			return nil, fmt.Errorf("updating inventories: %w", err)
		}
		ids, err := store.InsertPriceHistory(ctx, stagedHistory)
		if err != nil {
			return nil, fmt.Errorf("recording price history: %w", err)
		}
		res.HistoryIDs = ids
		for k, idx := range pending {
			if k < len(ids) {
				res.Updated[idx].HistoryID = ids[k]
			}
		}
	}

	return res, nil
}
