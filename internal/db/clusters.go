package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rozanalabs/catalog-service/internal/models"
)

const clusterColumns = "id, name, region, is_active, created_at, updated_at"

func scanCluster(row pgx.Row) (*models.Cluster, error) {
	var c models.Cluster
	err := row.Scan(&c.ID, &c.Name, &c.Region, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCluster inserts a cluster and its facility memberships.
func (db *Database) CreateCluster(ctx context.Context, c *models.Cluster) (int64, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		"INSERT INTO clusters (name, region, is_active) VALUES ($1, $2, $3) RETURNING id",
		c.Name, c.Region, c.IsActive,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert cluster: %w", err)
	}

	for _, facilityID := range c.FacilityIDs {
		_, err = tx.Exec(ctx,
			"INSERT INTO cluster_facilities (cluster_id, facility_id) VALUES ($1, $2)",
			id, facilityID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert cluster facility: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

// GetCluster returns one cluster with its facility ids.
func (db *Database) GetCluster(ctx context.Context, id int64) (*models.Cluster, error) {
	c, err := scanCluster(db.Pool.QueryRow(ctx,
		"SELECT "+clusterColumns+" FROM clusters WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("cluster %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cluster: %w", err)
	}

	c.FacilityIDs, err = db.queryIDs(ctx,
		"SELECT facility_id FROM cluster_facilities WHERE cluster_id = $1 ORDER BY facility_id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query cluster facilities: %w", err)
	}
	return c, nil
}

// ListClusters returns clusters newest-first.
func (db *Database) ListClusters(ctx context.Context, activeOnly bool, limit, offset int) ([]models.Cluster, error) {
	query := "SELECT " + clusterColumns + " FROM clusters"
	if activeOnly {
		query += " WHERE is_active = true"
	}
	query += " ORDER BY id DESC LIMIT $1 OFFSET $2"

	rows, err := db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query clusters: %w", err)
	}
	defer rows.Close()

	var clusters []models.Cluster
	for rows.Next() {
		var c models.Cluster
		err := rows.Scan(&c.ID, &c.Name, &c.Region, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cluster: %w", err)
		}
		clusters = append(clusters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clusters: %w", err)
	}
	return clusters, nil
}

// UpdateCluster updates the cluster row and replaces its facility set.
func (db *Database) UpdateCluster(ctx context.Context, c *models.Cluster) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx,
		"UPDATE clusters SET name = $2, region = $3, is_active = $4, updated_at = CURRENT_TIMESTAMP WHERE id = $1",
		c.ID, c.Name, c.Region, c.IsActive)
	if err != nil {
		return fmt.Errorf("failed to update cluster: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("cluster %d: %w", c.ID, ErrNotFound)
	}

	_, err = tx.Exec(ctx, "DELETE FROM cluster_facilities WHERE cluster_id = $1", c.ID)
	if err != nil {
		return fmt.Errorf("failed to delete cluster facilities: %w", err)
	}
	for _, facilityID := range c.FacilityIDs {
		_, err = tx.Exec(ctx,
			"INSERT INTO cluster_facilities (cluster_id, facility_id) VALUES ($1, $2)",
			c.ID, facilityID)
		if err != nil {
			return fmt.Errorf("failed to insert cluster facility: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteCluster soft deletes a cluster by setting is_active to false.
func (db *Database) DeleteCluster(ctx context.Context, id int64) error {
	result, err := db.Pool.Exec(ctx,
		"UPDATE clusters SET is_active = false, updated_at = CURRENT_TIMESTAMP WHERE id = $1 AND is_active = true",
		id)
	if err != nil {
		return fmt.Errorf("failed to delete cluster: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("cluster %d not found or already deleted: %w", id, ErrNotFound)
	}
	return nil
}
