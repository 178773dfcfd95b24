package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rozanalabs/catalog-service/internal/models"
)

// ErrManagerAssigned is returned when a manager being attached to a facility
// already manages another one.
var ErrManagerAssigned = errors.New("manager is already assigned to a facility")

// ErrNotFound is the generic missing-row error for lookups by id.
var ErrNotFound = errors.New("not found")

const facilityColumns = `
	id, name, facility_type, address, city, state, country, pincode,
	email, phone_number, is_active, created_at, updated_at
`

func scanFacility(row pgx.Row) (*models.Facility, error) {
	var f models.Facility
	err := row.Scan(
		&f.ID, &f.Name, &f.FacilityType, &f.Address, &f.City, &f.State,
		&f.Country, &f.Pincode, &f.Email, &f.PhoneNumber, &f.IsActive,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// CreateFacility inserts a facility and attaches its managers. A manager who
// already manages another facility fails the whole insert.
func (db *Database) CreateFacility(ctx context.Context, f *models.Facility) (int64, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	query := `
        INSERT INTO facilities
            (name, facility_type, address, city, state, country, pincode, email, phone_number, is_active)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id
    `
	err = tx.QueryRow(ctx, query,
		f.Name, f.FacilityType, f.Address, f.City, f.State, f.Country,
		f.Pincode, f.Email, f.PhoneNumber, f.IsActive,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert facility: %w", err)
	}

	if err := attachManagers(ctx, tx, id, f.ManagerIDs); err != nil {
		return 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

func attachManagers(ctx context.Context, tx pgx.Tx, facilityID int64, managerIDs []int64) error {
	for _, managerID := range managerIDs {
		var existing int64
		err := tx.QueryRow(ctx,
			"SELECT facility_id FROM facility_managers WHERE user_id = $1 AND facility_id <> $2",
			managerID, facilityID,
		).Scan(&existing)
		if err == nil {
			return fmt.Errorf("user %d: %w", managerID, ErrManagerAssigned)
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to check manager assignment: %w", err)
		}

		_, err = tx.Exec(ctx,
			"INSERT INTO facility_managers (facility_id, user_id) VALUES ($1, $2)",
			facilityID, managerID)
		if err != nil {
			return fmt.Errorf("failed to insert facility manager: %w", err)
		}
	}
	return nil
}

// GetFacility returns one facility with its manager and cluster ids.
func (db *Database) GetFacility(ctx context.Context, id int64) (*models.Facility, error) {
	f, err := scanFacility(db.Pool.QueryRow(ctx,
		"SELECT "+facilityColumns+" FROM facilities WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("facility %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query facility: %w", err)
	}

	f.ManagerIDs, err = db.queryIDs(ctx,
		"SELECT user_id FROM facility_managers WHERE facility_id = $1 ORDER BY user_id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query facility managers: %w", err)
	}
	f.ClusterIDs, err = db.queryIDs(ctx,
		"SELECT cluster_id FROM cluster_facilities WHERE facility_id = $1 ORDER BY cluster_id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query facility clusters: %w", err)
	}
	return f, nil
}

// ListFacilities returns facilities newest-first. When activeOnly is set,
// inactive facilities are excluded.
func (db *Database) ListFacilities(ctx context.Context, activeOnly bool, limit, offset int) ([]models.Facility, error) {
	query := "SELECT " + facilityColumns + " FROM facilities"
	if activeOnly {
		query += " WHERE is_active = true"
	}
	query += " ORDER BY id DESC LIMIT $1 OFFSET $2"

	rows, err := db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query facilities: %w", err)
	}
	defer rows.Close()
	return collectFacilities(rows)
}

// UpdateFacility updates the facility row and replaces its manager set.
func (db *Database) UpdateFacility(ctx context.Context, f *models.Facility) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        UPDATE facilities
        SET name = $2, facility_type = $3, address = $4, city = $5, state = $6,
            country = $7, pincode = $8, email = $9, phone_number = $10,
            is_active = $11, updated_at = CURRENT_TIMESTAMP
        WHERE id = $1
    `
	result, err := tx.Exec(ctx, query,
		f.ID, f.Name, f.FacilityType, f.Address, f.City, f.State, f.Country,
		f.Pincode, f.Email, f.PhoneNumber, f.IsActive)
	if err != nil {
		return fmt.Errorf("failed to update facility: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("facility %d: %w", f.ID, ErrNotFound)
	}

	_, err = tx.Exec(ctx, "DELETE FROM facility_managers WHERE facility_id = $1", f.ID)
	if err != nil {
		return fmt.Errorf("failed to delete facility managers: %w", err)
	}
	if err := attachManagers(ctx, tx, f.ID, f.ManagerIDs); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteFacility soft deletes a facility by setting is_active to false.
func (db *Database) DeleteFacility(ctx context.Context, id int64) error {
	result, err := db.Pool.Exec(ctx,
		"UPDATE facilities SET is_active = false, updated_at = CURRENT_TIMESTAMP WHERE id = $1 AND is_active = true",
		id)
	if err != nil {
		return fmt.Errorf("failed to delete facility: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("facility %d not found or already deleted: %w", id, ErrNotFound)
	}
	return nil
}

// ActiveFacilitiesByIDs returns the active facilities among ids.
func (db *Database) ActiveFacilitiesByIDs(ctx context.Context, ids []int64) ([]models.Facility, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := db.Pool.Query(ctx,
		"SELECT "+facilityColumns+" FROM facilities WHERE id = ANY($1) AND is_active = true ORDER BY id",
		ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query facilities: %w", err)
	}
	defer rows.Close()
	return collectFacilities(rows)
}

// ActiveFacilitiesInClusters returns the deduplicated union of active
// facilities belonging to the given clusters.
func (db *Database) ActiveFacilitiesInClusters(ctx context.Context, clusterIDs []int64) ([]models.Facility, error) {
	if len(clusterIDs) == 0 {
		return nil, nil
	}
	query := `
        SELECT DISTINCT
            f.id, f.name, f.facility_type, f.address, f.city, f.state,
            f.country, f.pincode, f.email, f.phone_number, f.is_active,
            f.created_at, f.updated_at
        FROM facilities f
        JOIN cluster_facilities cf ON cf.facility_id = f.id
        WHERE cf.cluster_id = ANY($1) AND f.is_active = true
        ORDER BY f.id
    `
	rows, err := db.Pool.Query(ctx, query, clusterIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query cluster facilities: %w", err)
	}
	defer rows.Close()
	return collectFacilities(rows)
}

func collectFacilities(rows pgx.Rows) ([]models.Facility, error) {
	var facilities []models.Facility
	for rows.Next() {
		var f models.Facility
		err := rows.Scan(
			&f.ID, &f.Name, &f.FacilityType, &f.Address, &f.City, &f.State,
			&f.Country, &f.Pincode, &f.Email, &f.PhoneNumber, &f.IsActive,
			&f.CreatedAt, &f.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan facility: %w", err)
		}
		facilities = append(facilities, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating facilities: %w", err)
	}
	return facilities, nil
}

func (db *Database) queryIDs(ctx context.Context, query string, args ...interface{}) ([]int64, error) {
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
