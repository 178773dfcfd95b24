package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rozanalabs/catalog-service/internal/models"
)

const historyColumns = `
	id, product_id, product_variant_id, cluster_id, facility_id, user_id,
	product_name, variant_name, variant_sku, facility_name,
	old_price, new_price, old_csp, new_csp, percentage_change,
	change_type, change_reason, created_at
`

func scanHistory(row pgx.Row) (*models.PriceHistory, error) {
	var h models.PriceHistory
	err := row.Scan(
		&h.ID, &h.ProductID, &h.ProductVariantID, &h.ClusterID, &h.FacilityID,
		&h.UserID, &h.ProductName, &h.VariantName, &h.VariantSKU,
		&h.FacilityName, &h.OldPrice, &h.NewPrice, &h.OldCSP, &h.NewCSP,
		&h.PercentageChange, &h.ChangeType, &h.ChangeReason, &h.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// InsertPriceHistory bulk-inserts audit rows and returns their ids in input
// order.
func (db *Database) InsertPriceHistory(ctx context.Context, rows []models.PriceHistory) ([]int64, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString(`
        INSERT INTO price_history
            (product_id, product_variant_id, cluster_id, facility_id, user_id,
             product_name, variant_name, variant_sku, facility_name,
             old_price, new_price, old_csp, new_csp, percentage_change,
             change_type, change_reason)
        VALUES `)

	args := make([]interface{}, 0, len(rows)*16)
	for i, h := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 16
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
			base+9, base+10, base+11, base+12, base+13, base+14, base+15, base+16))
		args = append(args,
			h.ProductID, h.ProductVariantID, h.ClusterID, h.FacilityID, h.UserID,
			h.ProductName, h.VariantName, h.VariantSKU, h.FacilityName,
			h.OldPrice, h.NewPrice, h.OldCSP, h.NewCSP, h.PercentageChange,
			h.ChangeType, h.ChangeReason,
		)
	}
	sb.WriteString(" RETURNING id")

	result, err := db.Pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert price history: %w", err)
	}
	defer result.Close()

	ids := make([]int64, 0, len(rows))
	for result.Next() {
		var id int64
		if err := result.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan price history id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price history ids: %w", err)
	}
	return ids, nil
}

// ListPriceHistory returns audit rows newest-first, narrowed by the filter,
// together with the total match count for pagination.
func (db *Database) ListPriceHistory(ctx context.Context, f models.PriceHistoryFilter, limit, offset int) ([]models.PriceHistory, int64, error) {
	var conds []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.ProductID > 0 {
		conds = append(conds, "product_id = "+arg(f.ProductID))
	}
	if f.ClusterID > 0 {
		conds = append(conds, "cluster_id = "+arg(f.ClusterID))
	}
	if f.FacilityID > 0 {
		conds = append(conds, "facility_id = "+arg(f.FacilityID))
	}
	if f.UserID > 0 {
		conds = append(conds, "user_id = "+arg(f.UserID))
	}
	if f.StartDate != nil {
		conds = append(conds, "created_at >= "+arg(*f.StartDate))
	}
	if f.EndDate != nil {
		conds = append(conds, "created_at <= "+arg(*f.EndDate))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	err := db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM price_history"+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count price history: %w", err)
	}

	query := "SELECT " + historyColumns + " FROM price_history" + where +
		" ORDER BY created_at DESC, id DESC LIMIT " + arg(limit) + " OFFSET " + arg(offset)

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var history []models.PriceHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan price history: %w", err)
		}
		history = append(history, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating price history: %w", err)
	}
	return history, total, nil
}

// LatestHistoryForVariants returns each variant's most recent audit row,
// used to annotate discovery responses.
func (db *Database) LatestHistoryForVariants(ctx context.Context, variantIDs []int64) (map[int64]models.PriceHistory, error) {
	latest := make(map[int64]models.PriceHistory, len(variantIDs))
	if len(variantIDs) == 0 {
		return latest, nil
	}

	rows, err := db.Pool.Query(ctx, `
        SELECT DISTINCT ON (product_variant_id) `+historyColumns+`
        FROM price_history
        WHERE product_variant_id = ANY($1)
        ORDER BY product_variant_id, created_at DESC, id DESC
    `, variantIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest price history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan latest price history: %w", err)
		}
		latest[h.ProductVariantID] = *h
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating latest price history: %w", err)
	}
	return latest, nil
}

// ClusterPriceStatus aggregates one cluster's price-update activity.
type ClusterPriceStatus struct {
	ClusterID       int64
	LastUpdate      *time.Time
	TotalUpdates    int64
	ProductsUpdated int64
	VariantsUpdated int64
	PercentagesUsed int64
	Recent          []models.PriceHistory
}

// ClusterPriceStatuses returns per-cluster update aggregates plus the last
// five history rows for each of the given clusters.
func (db *Database) ClusterPriceStatuses(ctx context.Context, clusterIDs []int64) (map[int64]*ClusterPriceStatus, error) {
	statuses := make(map[int64]*ClusterPriceStatus, len(clusterIDs))
	for _, id := range clusterIDs {
		statuses[id] = &ClusterPriceStatus{ClusterID: id}
	}
	if len(clusterIDs) == 0 {
		return statuses, nil
	}

	rows, err := db.Pool.Query(ctx, `
        SELECT cluster_id, MAX(created_at), COUNT(*),
               COUNT(DISTINCT product_id), COUNT(DISTINCT product_variant_id),
               COUNT(DISTINCT percentage_change)
        FROM price_history
        WHERE cluster_id = ANY($1)
        GROUP BY cluster_id
    `, clusterIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query cluster price stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var clusterID int64
		var last time.Time
		var total, products, variants, percentages int64
		if err := rows.Scan(&clusterID, &last, &total, &products, &variants, &percentages); err != nil {
			return nil, fmt.Errorf("failed to scan cluster price stats: %w", err)
		}
		if s, ok := statuses[clusterID]; ok {
			s.LastUpdate = &last
			s.TotalUpdates = total
			s.ProductsUpdated = products
			s.VariantsUpdated = variants
			s.PercentagesUsed = percentages
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cluster price stats: %w", err)
	}

	recent, err := db.Pool.Query(ctx, `
        SELECT `+historyColumns+` FROM (
            SELECT *, ROW_NUMBER() OVER (PARTITION BY cluster_id ORDER BY created_at DESC, id DESC) AS rn
            FROM price_history
            WHERE cluster_id = ANY($1)
        ) ranked
        WHERE rn <= 5
        ORDER BY cluster_id, created_at DESC
    `, clusterIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent cluster history: %w", err)
	}
	defer recent.Close()
	for recent.Next() {
		h, err := scanHistory(recent)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recent cluster history: %w", err)
		}
		if h.ClusterID != nil {
			if s, ok := statuses[*h.ClusterID]; ok {
				s.Recent = append(s.Recent, *h)
			}
		}
	}
	if err := recent.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recent cluster history: %w", err)
	}
	return statuses, nil
}
