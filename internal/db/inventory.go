package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rozanalabs/catalog-service/internal/models"
	"github.com/rozanalabs/catalog-service/internal/pricing"
)

const inventoryColumns = `
	id, facility_id, product_variant_id, stock, base_price, mrp, selling_price,
	cust_discount, max_purchase_limit, outofstock_threshold, status, is_active,
	created_at, updated_at
`

func scanInventory(row pgx.Row) (*models.FacilityInventory, error) {
	var inv models.FacilityInventory
	err := row.Scan(
		&inv.ID, &inv.FacilityID, &inv.ProductVariantID, &inv.Stock,
		&inv.BasePrice, &inv.MRP, &inv.SellingPrice, &inv.CustDiscount,
		&inv.MaxPurchaseLimit, &inv.OutOfStockThreshold, &inv.Status,
		&inv.IsActive, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// InventoriesFor returns the active inventory rows for the cross product of
// the given facilities and variants.
func (db *Database) InventoriesFor(ctx context.Context, facilityIDs, variantIDs []int64) ([]models.FacilityInventory, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT `+inventoryColumns+`
        FROM facility_inventory
        WHERE facility_id = ANY($1) AND product_variant_id = ANY($2) AND is_active = true
        ORDER BY product_variant_id, facility_id
    `, facilityIDs, variantIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventories: %w", err)
	}
	defer rows.Close()

	var inventories []models.FacilityInventory
	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inventory: %w", err)
		}
		inventories = append(inventories, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inventories: %w", err)
	}
	return inventories, nil
}

// UpdateSellingPrices applies staged selling-price writes in one bulk
// statement. cust_discount is rederived from the row's MRP.
func (db *Database) UpdateSellingPrices(ctx context.Context, updates []pricing.PriceUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	ids := make([]int64, len(updates))
	prices := make([]float64, len(updates))
	for i, u := range updates {
		ids[i] = u.InventoryID
		prices[i] = u.SellingPrice
	}

	_, err := db.Pool.Exec(ctx, `
        UPDATE facility_inventory fi
        SET selling_price = u.selling_price,
            cust_discount = fi.mrp - u.selling_price,
            updated_at = CURRENT_TIMESTAMP
        FROM (
            SELECT unnest($1::bigint[]) AS id, unnest($2::numeric[]) AS selling_price
        ) u
        WHERE fi.id = u.id
    `, ids, prices)
	if err != nil {
		return fmt.Errorf("failed to update selling prices: %w", err)
	}
	return nil
}

// GetOrCreateInventory returns the active inventory row for the pair,
// creating a zero-stock row seeded from the variant's prices when none
// exists yet.
func (db *Database) GetOrCreateInventory(ctx context.Context, facilityID int64, v *models.ProductVariant) (*models.FacilityInventory, error) {
	inv, err := scanInventory(db.Pool.QueryRow(ctx, `
        SELECT `+inventoryColumns+`
        FROM facility_inventory
        WHERE facility_id = $1 AND product_variant_id = $2 AND is_active = true
    `, facilityID, v.ID))
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}

	seed := models.FacilityInventory{BasePrice: v.BasePrice, MRP: v.MRP, SellingPrice: v.SellingPrice}
	seed.DeriveCustDiscount()
	inv, err = scanInventory(db.Pool.QueryRow(ctx, `
        INSERT INTO facility_inventory
            (facility_id, product_variant_id, stock, base_price, mrp, selling_price, cust_discount, is_active)
        VALUES ($1, $2, 0, $3, $4, $5, $6, true)
        ON CONFLICT (facility_id, product_variant_id) DO UPDATE SET is_active = true
        RETURNING `+inventoryColumns+`
    `, facilityID, v.ID, seed.BasePrice, seed.MRP, seed.SellingPrice, seed.CustDiscount))
	if err != nil {
		return nil, fmt.Errorf("failed to create inventory: %w", err)
	}
	return inv, nil
}

// InventoriesForFacility lists a facility's active inventory rows.
func (db *Database) InventoriesForFacility(ctx context.Context, facilityID int64, limit, offset int) ([]models.FacilityInventory, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT `+inventoryColumns+`
        FROM facility_inventory
        WHERE facility_id = $1 AND is_active = true
        ORDER BY product_variant_id
        LIMIT $2 OFFSET $3
    `, facilityID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query facility inventories: %w", err)
	}
	defer rows.Close()

	var inventories []models.FacilityInventory
	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inventory: %w", err)
		}
		inventories = append(inventories, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating facility inventories: %w", err)
	}
	return inventories, nil
}
