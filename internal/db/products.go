package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rozanalabs/catalog-service/internal/assembly"
	"github.com/rozanalabs/catalog-service/internal/models"
	"github.com/rozanalabs/catalog-service/internal/pricing"
)

const variantColumns = `
	id, product_id, name, slug, sku, base_price, mrp, selling_price, margin,
	tax, cgst, sgst, igst, cess, weight, attributes,
	is_pack, pack_qty, pack_variant_id, is_combo,
	is_active, is_published, is_rejected, created_at, updated_at
`

func scanVariant(row pgx.Row) (*models.ProductVariant, error) {
	var v models.ProductVariant
	err := row.Scan(
		&v.ID, &v.ProductID, &v.Name, &v.Slug, &v.SKU,
		&v.BasePrice, &v.MRP, &v.SellingPrice, &v.Margin,
		&v.Tax, &v.CGST, &v.SGST, &v.IGST, &v.Cess,
		&v.Weight, &v.Attributes,
		&v.IsPack, &v.PackQty, &v.PackVariantID, &v.IsCombo,
		&v.IsActive, &v.IsPublished, &v.IsRejected,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateProduct inserts a product and persists its variant plan in one
// transaction. An empty SKU is auto-assigned from the last product id.
// Inventory rows are seeded for every active facility so new variants are
// immediately priceable.
func (db *Database) CreateProduct(ctx context.Context, p *models.Product, plan *assembly.Plan) (int64, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if p.SKU == "" {
		var lastID int64
		if err := tx.QueryRow(ctx, "SELECT COALESCE(MAX(id), 0) FROM products").Scan(&lastID); err != nil {
			return 0, fmt.Errorf("failed to query last product id: %w", err)
		}
		p.SKU = models.GenerateProductSKU(lastID)
	}

	var productID int64
	query := `
        INSERT INTO products
            (name, sku, description, tags, category_id, brand_id, is_published, is_active)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `
	err = tx.QueryRow(ctx, query,
		p.Name, p.SKU, p.Description, p.Tags, p.CategoryID, p.BrandID,
		p.IsPublished, p.IsActive,
	).Scan(&productID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert product: %w", err)
	}
	p.ID = productID

	if _, err := persistPlan(ctx, tx, p, plan); err != nil {
		return 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return productID, nil
}

// UpdateProduct updates the product row, applies the variant plan, and
// deactivates variants absent from the payload.
func (db *Database) UpdateProduct(ctx context.Context, p *models.Product, plan *assembly.Plan) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        UPDATE products
        SET name = $2, sku = $3, description = $4, tags = $5, category_id = $6,
            brand_id = $7, is_published = $8, is_active = $9,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $1
    `
	result, err := tx.Exec(ctx, query,
		p.ID, p.Name, p.SKU, p.Description, p.Tags, p.CategoryID, p.BrandID,
		p.IsPublished, p.IsActive)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("product %d: %w", p.ID, ErrNotFound)
	}

	keepIDs, err := persistPlan(ctx, tx, p, plan)
	if err != nil {
		return err
	}

	// Variants omitted from the payload are deactivated, never hard-deleted:
	// inventory and history rows reference them.
	_, err = tx.Exec(ctx, `
        UPDATE product_variants
        SET is_active = false, updated_at = CURRENT_TIMESTAMP
        WHERE product_id = $1 AND NOT (id = ANY($2))
    `, p.ID, keepIDs)
	if err != nil {
		return fmt.Errorf("failed to deactivate removed variants: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// persistPlan applies an assembly plan inside a transaction: updates first,
// then new singles, then packs resolving against them. It returns every
// variant id touched or created.
func persistPlan(ctx context.Context, tx pgx.Tx, p *models.Product, plan *assembly.Plan) ([]int64, error) {
	keepIDs := make([]int64, 0, len(plan.Updates)+len(plan.Singles)+len(plan.Packs))

	for _, in := range plan.Updates {
		if err := updateVariant(ctx, tx, p, in); err != nil {
			return nil, err
		}
		keepIDs = append(keepIDs, in.ID)
	}

	singleIDs := make([]int64, len(plan.Singles))
	ordinal := len(plan.Updates)
	for i, in := range plan.Singles {
		ordinal++
		id, err := insertVariant(ctx, tx, p, in, ordinal, nil)
		if err != nil {
			return nil, err
		}
		singleIDs[i] = id
		keepIDs = append(keepIDs, id)
	}

	for _, pk := range plan.Packs {
		ordinal++
		baseID := pk.ExistingID
		if pk.SingleIndex >= 0 {
			baseID = singleIDs[pk.SingleIndex]
		}
		id, err := insertVariant(ctx, tx, p, pk.Input, ordinal, &baseID)
		if err != nil {
			return nil, err
		}
		keepIDs = append(keepIDs, id)
	}

	return keepIDs, nil
}

func insertVariant(ctx context.Context, tx pgx.Tx, p *models.Product, in assembly.VariantInput, ordinal int, packVariantID *int64) (int64, error) {
	v := in.Variant
	if v.SKU == "" {
		v.SKU = models.BuildVariantSKU(p.SKU, v.Name, ordinal)
	}
	if v.Slug == "" {
		v.Slug = models.BuildVariantSlug(p.Name, v.Name, v.Attributes, v.Weight)
	}
	v.ComputeMargin()
	v.PackVariantID = packVariantID

	var id int64
	query := `
        INSERT INTO product_variants
            (product_id, name, slug, sku, link, base_price, mrp, selling_price, margin,
             tax, cgst, sgst, igst, cess, weight, attributes,
             is_pack, pack_qty, pack_variant_id, is_combo,
             is_active, is_published, is_rejected)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
             $17, $18, $19, $20, $21, $22, $23)
        RETURNING id
    `
	err := tx.QueryRow(ctx, query,
		p.ID, v.Name, v.Slug, v.SKU, in.Link,
		v.BasePrice, v.MRP, v.SellingPrice, v.Margin,
		v.Tax, v.CGST, v.SGST, v.IGST, v.Cess,
		v.Weight, v.Attributes,
		v.IsPack, v.PackQty, v.PackVariantID, v.IsCombo,
		v.IsActive, v.IsPublished, v.IsRejected,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert variant %q: %w", v.Name, err)
	}

	if err := writeVariantExtras(ctx, tx, id, in); err != nil {
		return 0, err
	}
	if err := seedVariantInventories(ctx, tx, id, &v); err != nil {
		return 0, err
	}
	return id, nil
}

func updateVariant(ctx context.Context, tx pgx.Tx, p *models.Product, in assembly.VariantInput) error {
	v := in.Variant
	v.ComputeMargin()

	query := `
        UPDATE product_variants
        SET name = $2, base_price = $3, mrp = $4, selling_price = $5, margin = $6,
            tax = $7, cgst = $8, sgst = $9, igst = $10, cess = $11,
            weight = $12, attributes = $13, link = $14,
            is_active = $15, is_published = $16, is_rejected = $17,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $1 AND product_id = $18
    `
	result, err := tx.Exec(ctx, query,
		in.ID, v.Name, v.BasePrice, v.MRP, v.SellingPrice, v.Margin,
		v.Tax, v.CGST, v.SGST, v.IGST, v.Cess,
		v.Weight, v.Attributes, in.Link,
		v.IsActive, v.IsPublished, v.IsRejected,
		p.ID)
	if err != nil {
		return fmt.Errorf("failed to update variant %d: %w", in.ID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("variant %d does not belong to product %d: %w", in.ID, p.ID, ErrNotFound)
	}

	_, err = tx.Exec(ctx, "DELETE FROM variant_custom_fields WHERE variant_id = $1", in.ID)
	if err != nil {
		return fmt.Errorf("failed to delete variant custom fields: %w", err)
	}
	_, err = tx.Exec(ctx, "DELETE FROM variant_size_charts WHERE variant_id = $1", in.ID)
	if err != nil {
		return fmt.Errorf("failed to delete variant size charts: %w", err)
	}
	return writeVariantExtras(ctx, tx, in.ID, in)
}

func writeVariantExtras(ctx context.Context, tx pgx.Tx, variantID int64, in assembly.VariantInput) error {
	for _, cf := range in.CustomFields {
		_, err := tx.Exec(ctx,
			"INSERT INTO variant_custom_fields (variant_id, field_id, value) VALUES ($1, $2, $3)",
			variantID, cf.FieldID, cf.Value)
		if err != nil {
			return fmt.Errorf("failed to insert variant custom field: %w", err)
		}
	}
	for _, sc := range in.SizeChart {
		measurements, err := json.Marshal(sc.Measurements)
		if err != nil {
			return fmt.Errorf("failed to marshal size chart measurements: %w", err)
		}
		_, err = tx.Exec(ctx,
			"INSERT INTO variant_size_charts (variant_id, size, measurements) VALUES ($1, $2, $3)",
			variantID, sc.Size, string(measurements))
		if err != nil {
			return fmt.Errorf("failed to insert variant size chart: %w", err)
		}
	}
	return nil
}

// seedVariantInventories creates a zero-stock inventory row per active
// facility so the pricing engine finds the variant everywhere.
func seedVariantInventories(ctx context.Context, tx pgx.Tx, variantID int64, v *models.ProductVariant) error {
	seed := models.FacilityInventory{BasePrice: v.BasePrice, MRP: v.MRP, SellingPrice: v.SellingPrice}
	seed.DeriveCustDiscount()
	_, err := tx.Exec(ctx, `
        INSERT INTO facility_inventory
            (facility_id, product_variant_id, stock, base_price, mrp, selling_price, cust_discount, is_active)
        SELECT id, $1, 0, $2, $3, $4, $5, true
        FROM facilities
        WHERE is_active = true
        ON CONFLICT (facility_id, product_variant_id) DO NOTHING
    `, variantID, seed.BasePrice, seed.MRP, seed.SellingPrice, seed.CustDiscount)
	if err != nil {
		return fmt.Errorf("failed to seed inventories for variant %d: %w", variantID, err)
	}
	return nil
}

// GetProduct returns one product with its active variants.
func (db *Database) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var p models.Product
	query := `
        SELECT id, name, sku, description, tags, category_id, brand_id,
               is_published, is_active, created_at, updated_at
        FROM products WHERE id = $1
    `
	err := db.Pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.SKU, &p.Description, &p.Tags, &p.CategoryID,
		&p.BrandID, &p.IsPublished, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product: %w", err)
	}

	p.Variants, err = db.VariantsForProduct(ctx, id, true)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ProductListFilter narrows the product listing.
type ProductListFilter struct {
	ActiveOnly bool
	CategoryID int64
	BrandID    int64
	Name       string
	// Rejected limits the listing to products with at least one variant
	// flagged is_rejected.
	Rejected bool
}

// ListProducts returns products newest-first with their active variants,
// narrowed by the filter.
func (db *Database) ListProducts(ctx context.Context, f ProductListFilter, limit, offset int) ([]models.Product, error) {
	var conds []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.ActiveOnly {
		conds = append(conds, "is_active = true")
	}
	if f.CategoryID > 0 {
		conds = append(conds, "category_id = "+arg(f.CategoryID))
	}
	if f.BrandID > 0 {
		conds = append(conds, "brand_id = "+arg(f.BrandID))
	}
	if f.Name != "" {
		conds = append(conds, "name ILIKE "+arg("%"+f.Name+"%"))
	}
	if f.Rejected {
		conds = append(conds, `EXISTS (
            SELECT 1 FROM product_variants rv
            WHERE rv.product_id = products.id AND rv.is_rejected = true AND rv.is_active = true
        )`)
	}

	query := `
        SELECT id, name, sku, description, tags, category_id, brand_id,
               is_published, is_active, created_at, updated_at
        FROM products
    `
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id DESC LIMIT " + arg(limit) + " OFFSET " + arg(offset)

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	index := make(map[int64]int)
	var ids []int64
	for rows.Next() {
		var p models.Product
		err := rows.Scan(
			&p.ID, &p.Name, &p.SKU, &p.Description, &p.Tags, &p.CategoryID,
			&p.BrandID, &p.IsPublished, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		index[p.ID] = len(products)
		ids = append(ids, p.ID)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	if len(products) == 0 {
		return products, nil
	}

	vrows, err := db.Pool.Query(ctx,
		"SELECT "+variantColumns+" FROM product_variants WHERE product_id = ANY($1) AND is_active = true ORDER BY id",
		ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query product variants: %w", err)
	}
	defer vrows.Close()
	for vrows.Next() {
		v, err := scanVariant(vrows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		if i, ok := index[v.ProductID]; ok {
			products[i].Variants = append(products[i].Variants, *v)
		}
	}
	if err := vrows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating variants: %w", err)
	}
	return products, nil
}

// DeleteProduct soft deletes a product and its variants.
func (db *Database) DeleteProduct(ctx context.Context, id int64) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx,
		"UPDATE products SET is_active = false, updated_at = CURRENT_TIMESTAMP WHERE id = $1 AND is_active = true",
		id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("product %d not found or already deleted: %w", id, ErrNotFound)
	}

	_, err = tx.Exec(ctx,
		"UPDATE product_variants SET is_active = false, updated_at = CURRENT_TIMESTAMP WHERE product_id = $1",
		id)
	if err != nil {
		return fmt.Errorf("failed to deactivate product variants: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// VariantsForProduct returns a product's variants ordered by id.
func (db *Database) VariantsForProduct(ctx context.Context, productID int64, activeOnly bool) ([]models.ProductVariant, error) {
	query := "SELECT " + variantColumns + " FROM product_variants WHERE product_id = $1"
	if activeOnly {
		query += " AND is_active = true"
	}
	query += " ORDER BY id"

	rows, err := db.Pool.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query product variants: %w", err)
	}
	defer rows.Close()

	var variants []models.ProductVariant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		variants = append(variants, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating variants: %w", err)
	}
	return variants, nil
}

// ExistingVariantLinks maps the link tokens of a product's stored variants
// to their ids, for resolving packs added on update.
func (db *Database) ExistingVariantLinks(ctx context.Context, productID int64) (map[string]int64, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT link, id FROM product_variants
        WHERE product_id = $1 AND link IS NOT NULL AND is_pack = false AND is_active = true
    `, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query variant links: %w", err)
	}
	defer rows.Close()

	links := make(map[string]int64)
	for rows.Next() {
		var link string
		var id int64
		if err := rows.Scan(&link, &id); err != nil {
			return nil, fmt.Errorf("failed to scan variant link: %w", err)
		}
		links[link] = id
	}
	return links, rows.Err()
}

// ComboFlags reports the is_combo flag for each of the given variant ids.
// Missing ids are absent from the result.
func (db *Database) ComboFlags(ctx context.Context, ids []int64) (map[int64]bool, error) {
	if len(ids) == 0 {
		return map[int64]bool{}, nil
	}
	rows, err := db.Pool.Query(ctx,
		"SELECT id, is_combo FROM product_variants WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query combo flags: %w", err)
	}
	defer rows.Close()

	flags := make(map[int64]bool, len(ids))
	for rows.Next() {
		var id int64
		var isCombo bool
		if err := rows.Scan(&id, &isCombo); err != nil {
			return nil, fmt.Errorf("failed to scan combo flag: %w", err)
		}
		flags[id] = isCombo
	}
	return flags, rows.Err()
}

// EligibleVariants returns active, published variants with at least one
// active inventory row in the given facilities, narrowed by the filter.
func (db *Database) EligibleVariants(ctx context.Context, facilityIDs []int64, f pricing.VariantFilter) ([]models.ProductVariant, error) {
	var conds []string
	args := []interface{}{facilityIDs}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.VariantIDs) > 0 {
		conds = append(conds, "v.id = ANY("+arg(f.VariantIDs)+")")
	}
	if len(f.CategoryIDs) > 0 {
		conds = append(conds, "p.category_id = ANY("+arg(f.CategoryIDs)+")")
	}
	if len(f.BrandIDs) > 0 {
		conds = append(conds, "p.brand_id = ANY("+arg(f.BrandIDs)+")")
	}
	if f.ProductName != "" {
		conds = append(conds, "p.name ILIKE "+arg("%"+f.ProductName+"%"))
	}
	if f.VariantName != "" {
		conds = append(conds, "v.name ILIKE "+arg("%"+f.VariantName+"%"))
	}

	query := `
        SELECT v.id, v.product_id, v.name, v.slug, v.sku,
               v.base_price, v.mrp, v.selling_price, v.margin,
               v.tax, v.cgst, v.sgst, v.igst, v.cess, v.weight, v.attributes,
               v.is_pack, v.pack_qty, v.pack_variant_id, v.is_combo,
               v.is_active, v.is_published, v.is_rejected, v.created_at, v.updated_at,
               p.name AS product_name
        FROM product_variants v
        JOIN products p ON p.id = v.product_id
        WHERE v.is_active = true AND v.is_published = true
          AND p.is_active = true
          AND EXISTS (
              SELECT 1 FROM facility_inventory fi
              WHERE fi.product_variant_id = v.id
                AND fi.facility_id = ANY($1)
                AND fi.is_active = true
          )
    `
	if len(conds) > 0 {
		query += " AND " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY v.id"

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible variants: %w", err)
	}
	defer rows.Close()

	var variants []models.ProductVariant
	for rows.Next() {
		var v models.ProductVariant
		err := rows.Scan(
			&v.ID, &v.ProductID, &v.Name, &v.Slug, &v.SKU,
			&v.BasePrice, &v.MRP, &v.SellingPrice, &v.Margin,
			&v.Tax, &v.CGST, &v.SGST, &v.IGST, &v.Cess,
			&v.Weight, &v.Attributes,
			&v.IsPack, &v.PackQty, &v.PackVariantID, &v.IsCombo,
			&v.IsActive, &v.IsPublished, &v.IsRejected,
			&v.CreatedAt, &v.UpdatedAt,
			&v.ProductName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan eligible variant: %w", err)
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating eligible variants: %w", err)
	}
	return variants, nil
}

// ListCategories returns active categories ordered by name.
func (db *Database) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, name, is_active FROM categories WHERE is_active = true ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// ListBrands returns active brands ordered by name.
func (db *Database) ListBrands(ctx context.Context) ([]models.Brand, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, name, is_active FROM brands WHERE is_active = true ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query brands: %w", err)
	}
	defer rows.Close()

	var brands []models.Brand
	for rows.Next() {
		var b models.Brand
		if err := rows.Scan(&b.ID, &b.Name, &b.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan brand: %w", err)
		}
		brands = append(brands, b)
	}
	return brands, rows.Err()
}
