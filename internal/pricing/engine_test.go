package pricing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rozanalabs/catalog-service/internal/models"
)

type fakeEngineStore struct {
	inventories  []models.FacilityInventory
	updateCalls  [][]PriceUpdate
	historyCalls [][]models.PriceHistory
	nextID       int64
}

func (f *fakeEngineStore) InventoriesFor(ctx context.Context, facilityIDs, variantIDs []int64) ([]models.FacilityInventory, error) {
	return f.inventories, nil
}

func (f *fakeEngineStore) UpdateSellingPrices(ctx context.Context, updates []PriceUpdate) error {
	cp := make([]PriceUpdate, len(updates))
	copy(cp, updates)
	f.updateCalls = append(f.updateCalls, cp)
	return nil
}

func (f *fakeEngineStore) InsertPriceHistory(ctx context.Context, rows []models.PriceHistory) ([]int64, error) {
	cp := make([]models.PriceHistory, len(rows))
	copy(cp, rows)
	f.historyCalls = append(f.historyCalls, cp)
	ids := make([]int64, len(rows))
	for i := range ids {
		f.nextID++
		ids[i] = f.nextID
	}
	return ids, nil
}

func TestComputeNewPrice(t *testing.T) {
	assert.Equal(t, 110.0, ComputeNewPrice(100, 10))
	assert.Equal(t, 95.0, ComputeNewPrice(100, -5))
	assert.Equal(t, 100.0, ComputeNewPrice(100, 0))
	// rounded to 2 decimals
	assert.Equal(t, 33.37, ComputeNewPrice(32.40, 3))
}

func TestDecideAppliesMarginToBasePrice(t *testing.T) {
	// The multiplier always applies to base_price, even when the live
	// selling price is higher.
	v := &models.ProductVariant{BasePrice: 100, MRP: 200}
	inv := &models.FacilityInventory{ID: 1, SellingPrice: 150}

	d := Decide(v, inv, 10)
	require.True(t, d.Accepted)
	assert.Equal(t, 110.0, d.NewPrice)
	assert.Equal(t, 150.0, d.OldPrice)
	assert.Equal(t, 150.0, d.CurrentPrice)
}

func TestDecideRejections(t *testing.T) {
	v := &models.ProductVariant{BasePrice: 100, MRP: 105}

	d := Decide(v, nil, 10)
	assert.False(t, d.Accepted)
	assert.Equal(t, ReasonNoInventoryRecord, d.Reason)

	d = Decide(&models.ProductVariant{}, &models.FacilityInventory{}, 10)
	assert.False(t, d.Accepted)
	assert.Equal(t, ReasonNoValidPrice, d.Reason)

	d = Decide(v, &models.FacilityInventory{SellingPrice: 100}, 10)
	assert.False(t, d.Accepted)
	assert.Equal(t, ReasonExceedsMRP, d.Reason)
	assert.Equal(t, 110.0, d.NewPrice)
}

func TestDecideZeroMRPDisablesGate(t *testing.T) {
	v := &models.ProductVariant{BasePrice: 100, MRP: 0}
	d := Decide(v, &models.FacilityInventory{SellingPrice: 100}, 500)
	assert.True(t, d.Accepted)
	assert.Equal(t, 600.0, d.NewPrice)
}

func TestDecideCurrentPriceFallsBackToBase(t *testing.T) {
	v := &models.ProductVariant{BasePrice: 80, MRP: 200}
	d := Decide(v, &models.FacilityInventory{SellingPrice: 0}, 10)
	require.True(t, d.Accepted)
	assert.Equal(t, 80.0, d.CurrentPrice)
	assert.Equal(t, 0.0, d.OldPrice)
}

func twoByTwoScope() *Scope {
	return &Scope{
		Facilities: []models.Facility{
			{ID: 1, Name: "Store A"},
			{ID: 2, Name: "Store B"},
		},
		Variants: []models.ProductVariant{
			{ID: 10, ProductID: 100, Name: "1kg", SKU: "ROZ01-1KG", BasePrice: 100, MRP: 200, ProductName: "Rice"},
			{ID: 11, ProductID: 100, Name: "5kg", SKU: "ROZ01-5KG", BasePrice: 450, MRP: 460, ProductName: "Rice"},
		},
	}
}

func TestRunAccountsForEveryPair(t *testing.T) {
	store := &fakeEngineStore{
		inventories: []models.FacilityInventory{
			{ID: 1, FacilityID: 1, ProductVariantID: 10, SellingPrice: 110},
			{ID: 2, FacilityID: 2, ProductVariantID: 10, SellingPrice: 115},
			{ID: 3, FacilityID: 1, ProductVariantID: 11, SellingPrice: 455},
			// variant 11 has no row at facility 2
		},
	}
	engine := NewEngine(store, 0)
	scope := twoByTwoScope()

	res, err := engine.Run(context.Background(), RunParams{
		Scope:        scope,
		Margin:       10,
		Actor:        models.ActorUser(7),
		ChangeType:   models.ChangeOverridePrice,
		ChangeReason: "test",
	})
	require.NoError(t, err)

	// variant 10 updates at both facilities; variant 11 exceeds MRP at
	// facility 1 (495 > 460) and has no inventory at facility 2.
	assert.Equal(t, 2, res.TotalFound)
	assert.Equal(t, 2, res.TotalProcessed)
	assert.Equal(t, 2, res.TotalUpdated)
	assert.Equal(t, 2, res.TotalRejected)
	assert.Equal(t, scope.PairCount(), res.TotalUpdated+res.TotalRejected)

	require.Len(t, res.Updated, 2)
	assert.Equal(t, "updated", res.Updated[0].Status)
	assert.Equal(t, "rejected", res.Updated[1].Status)

	require.Len(t, res.Rejected, 2)
	reasons := map[Reason]bool{}
	for _, r := range res.Rejected {
		reasons[r.Reason] = true
	}
	assert.True(t, reasons[ReasonExceedsMRP])
	assert.True(t, reasons[ReasonNoInventoryRecord])

	require.Len(t, store.updateCalls, 1)
	require.Len(t, store.updateCalls[0], 2)
	assert.Equal(t, 110.0, store.updateCalls[0][0].SellingPrice)

	require.Len(t, store.historyCalls, 1)
	require.Len(t, store.historyCalls[0], 2)
	h := store.historyCalls[0][0]
	assert.Equal(t, "Rice", h.ProductName)
	assert.Equal(t, "Store A", h.FacilityName)
	assert.Equal(t, 110.0, h.OldPrice)
	assert.Equal(t, 110.0, h.NewPrice)
	require.NotNil(t, h.UserID)
	assert.Equal(t, int64(7), *h.UserID)
	assert.True(t, res.HistoryRecorded)
	assert.Len(t, res.HistoryIDs, 2)
}

func TestRunVariantWithoutAnyInventory(t *testing.T) {
	store := &fakeEngineStore{
		inventories: []models.FacilityInventory{
			{ID: 1, FacilityID: 1, ProductVariantID: 10, SellingPrice: 110},
			{ID: 2, FacilityID: 2, ProductVariantID: 10, SellingPrice: 115},
		},
	}
	engine := NewEngine(store, 0)
	scope := twoByTwoScope()

	res, err := engine.Run(context.Background(), RunParams{Scope: scope, Margin: 10, Actor: models.ActorSystem()})
	require.NoError(t, err)

	// Variant 11's shortcut still charges one rejection per facility.
	assert.Equal(t, 2, res.TotalUpdated)
	assert.Equal(t, 2, res.TotalRejected)
	assert.Equal(t, scope.PairCount(), res.TotalUpdated+res.TotalRejected)

	var found bool
	for _, r := range res.Rejected {
		if r.Reason == ReasonNoInventoryRecords {
			found = true
			assert.Equal(t, int64(11), r.VariantID)
		}
	}
	assert.True(t, found)
}

func TestRunSkipHistory(t *testing.T) {
	store := &fakeEngineStore{
		inventories: []models.FacilityInventory{
			{ID: 1, FacilityID: 1, ProductVariantID: 10, SellingPrice: 110},
		},
	}
	engine := NewEngine(store, 0)
	scope := &Scope{
		Facilities: []models.Facility{{ID: 1, Name: "Store A"}},
		Variants:   []models.ProductVariant{{ID: 10, BasePrice: 100, MRP: 200}},
	}

	res, err := engine.Run(context.Background(), RunParams{Scope: scope, Margin: 5, SkipHistory: true})
	require.NoError(t, err)
	assert.False(t, res.HistoryRecorded)
	assert.Empty(t, res.HistoryIDs)
	assert.Empty(t, store.historyCalls)
	require.Len(t, store.updateCalls, 1)
}

func TestRunFlushesInBatches(t *testing.T) {
	var inventories []models.FacilityInventory
	var variants []models.ProductVariant
	for i := int64(1); i <= 5; i++ {
		variants = append(variants, models.ProductVariant{ID: i, BasePrice: 100, MRP: 200})
		inventories = append(inventories, models.FacilityInventory{ID: i, FacilityID: 1, ProductVariantID: i, SellingPrice: 100})
	}
	store := &fakeEngineStore{inventories: inventories}
	engine := NewEngine(store, 2)

	scope := &Scope{
		Facilities: []models.Facility{{ID: 1, Name: "Store A"}},
		Variants:   variants,
	}
	res, err := engine.Run(context.Background(), RunParams{Scope: scope, Margin: 10})
	require.NoError(t, err)

	assert.Equal(t, 5, res.TotalUpdated)
	// 2 + 2 + final flush of 1
	require.Len(t, store.updateCalls, 3)
	assert.Len(t, store.updateCalls[0], 2)
	assert.Len(t, store.updateCalls[2], 1)
	assert.Len(t, res.HistoryIDs, 5)
}

func TestRunFlushesWhenShortcutVariantLandsOnBoundary(t *testing.T) {
	// Variants 2 and 4 have no inventory anywhere, so they take the shortcut
	// path right on the batch boundaries. Staged updates must still flush
	// per batch instead of carrying over.
	store := &fakeEngineStore{
		inventories: []models.FacilityInventory{
			{ID: 1, FacilityID: 1, ProductVariantID: 1, SellingPrice: 100},
			{ID: 3, FacilityID: 1, ProductVariantID: 3, SellingPrice: 100},
		},
	}
	engine := NewEngine(store, 2)

	var variants []models.ProductVariant
	for i := int64(1); i <= 4; i++ {
		variants = append(variants, models.ProductVariant{ID: i, BasePrice: 100, MRP: 200})
	}
	scope := &Scope{
		Facilities: []models.Facility{{ID: 1, Name: "Store A"}},
		Variants:   variants,
	}

	res, err := engine.Run(context.Background(), RunParams{Scope: scope, Margin: 10})
	require.NoError(t, err)

	assert.Equal(t, 2, res.TotalUpdated)
	assert.Equal(t, 2, res.TotalRejected)
	assert.Equal(t, scope.PairCount(), res.TotalUpdated+res.TotalRejected)

	require.Len(t, store.updateCalls, 2)
	assert.Equal(t, []PriceUpdate{{InventoryID: 1, SellingPrice: 110}}, store.updateCalls[0])
	assert.Equal(t, []PriceUpdate{{InventoryID: 3, SellingPrice: 110}}, store.updateCalls[1])
}
