package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rozanalabs/catalog-service/internal/models"
)

// CreateCombo inserts a combo and its items, and flags the combo's variant
// with is_combo. Validation happens before this is called.
func (db *Database) CreateCombo(ctx context.Context, combo *models.ComboProduct) (int64, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		"INSERT INTO combo_products (combo_variant_id, name, description, is_active) VALUES ($1, $2, $3, $4) RETURNING id",
		combo.ComboVariantID, combo.Name, combo.Description, combo.IsActive,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert combo: %w", err)
	}

	for _, item := range combo.Items {
		_, err = tx.Exec(ctx,
			"INSERT INTO combo_product_items (combo_id, product_variant_id, quantity, is_active) VALUES ($1, $2, $3, true)",
			id, item.ProductVariantID, item.Quantity)
		if err != nil {
			return 0, fmt.Errorf("failed to insert combo item: %w", err)
		}
	}

	result, err := tx.Exec(ctx,
		"UPDATE product_variants SET is_combo = true, updated_at = CURRENT_TIMESTAMP WHERE id = $1",
		combo.ComboVariantID)
	if err != nil {
		return 0, fmt.Errorf("failed to flag combo variant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return 0, fmt.Errorf("variant %d: %w", combo.ComboVariantID, ErrNotFound)
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

// GetCombo returns one combo with its active items.
func (db *Database) GetCombo(ctx context.Context, id int64) (*models.ComboProduct, error) {
	var c models.ComboProduct
	err := db.Pool.QueryRow(ctx, `
        SELECT id, combo_variant_id, name, description, is_active, created_at, updated_at
        FROM combo_products WHERE id = $1
    `, id).Scan(&c.ID, &c.ComboVariantID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("combo %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query combo: %w", err)
	}

	c.Items, err = db.comboItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCombos returns combos newest-first with their items.
func (db *Database) ListCombos(ctx context.Context, activeOnly bool, limit, offset int) ([]models.ComboProduct, error) {
	query := `
        SELECT id, combo_variant_id, name, description, is_active, created_at, updated_at
        FROM combo_products
    `
	if activeOnly {
		query += " WHERE is_active = true"
	}
	query += " ORDER BY id DESC LIMIT $1 OFFSET $2"

	rows, err := db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query combos: %w", err)
	}
	defer rows.Close()

	var combos []models.ComboProduct
	for rows.Next() {
		var c models.ComboProduct
		err := rows.Scan(&c.ID, &c.ComboVariantID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan combo: %w", err)
		}
		combos = append(combos, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating combos: %w", err)
	}

	for i := range combos {
		combos[i].Items, err = db.comboItems(ctx, combos[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return combos, nil
}

func (db *Database) comboItems(ctx context.Context, comboID int64) ([]models.ComboProductItem, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT id, combo_id, product_variant_id, quantity, is_active
        FROM combo_product_items
        WHERE combo_id = $1 AND is_active = true
        ORDER BY id
    `, comboID)
	if err != nil {
		return nil, fmt.Errorf("failed to query combo items: %w", err)
	}
	defer rows.Close()

	var items []models.ComboProductItem
	for rows.Next() {
		var item models.ComboProductItem
		err := rows.Scan(&item.ID, &item.ComboID, &item.ProductVariantID, &item.Quantity, &item.IsActive)
		if err != nil {
			return nil, fmt.Errorf("failed to scan combo item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeactivateCombo soft deletes a combo and clears its variant's is_combo
// flag.
func (db *Database) DeactivateCombo(ctx context.Context, id int64) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var variantID int64
	err = tx.QueryRow(ctx,
		"UPDATE combo_products SET is_active = false, updated_at = CURRENT_TIMESTAMP WHERE id = $1 AND is_active = true RETURNING combo_variant_id",
		id).Scan(&variantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("combo %d not found or already deleted: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete combo: %w", err)
	}

	_, err = tx.Exec(ctx,
		"UPDATE product_variants SET is_combo = false, updated_at = CURRENT_TIMESTAMP WHERE id = $1",
		variantID)
	if err != nil {
		return fmt.Errorf("failed to clear combo flag: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
