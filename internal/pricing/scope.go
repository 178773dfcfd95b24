package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rozanalabs/catalog-service/internal/models"
)

// Scope resolution failures. Handlers map these to 400 responses; nothing
// is persisted when they occur.
var (
	ErrNoTarget     = errors.New("either cluster_ids or facility_ids is required")
	ErrNoFacilities = errors.New("no active facilities found in the specified scope")
	ErrNoVariants   = errors.New("no variants found matching the specified criteria")
)

// VariantFilter narrows the eligible variant set. Name filters are
// case-insensitive substring matches.
type VariantFilter struct {
	VariantIDs  []int64
	CategoryIDs []int64
	BrandIDs    []int64
	ProductName string
	VariantName string
}

// ScopeStore is the storage surface the resolver needs. *db.Database
// implements it.
type ScopeStore interface {
	// ActiveFacilitiesByIDs returns the active facilities among ids.
	ActiveFacilitiesByIDs(ctx context.Context, ids []int64) ([]models.Facility, error)
	// ActiveFacilitiesInClusters returns the deduplicated union of active
	// facilities belonging to the given clusters.
	ActiveFacilitiesInClusters(ctx context.Context, clusterIDs []int64) ([]models.Facility, error)
	// EligibleVariants returns active, published variants that have at
	// least one active inventory row in any of the given facilities,
	// narrowed by the filter. ProductName is populated on each row.
	EligibleVariants(ctx context.Context, facilityIDs []int64, f VariantFilter) ([]models.ProductVariant, error)
}

// ScopeRequest describes the targeting of a pricing operation.
type ScopeRequest struct {
	ClusterIDs  []int64
	FacilityIDs []int64
	Filter      VariantFilter
}

// Scope is the resolved set of facilities and variants a pricing operation
// acts on. The pair iteration order is deterministic: variants ascending by
// id on the outside, facilities ascending by id on the inside.
type Scope struct {
	Facilities []models.Facility
	Variants   []models.ProductVariant
}

// PairCount is the number of (facility, variant) pairs in scope.
func (s *Scope) PairCount() int {
	return len(s.Facilities) * len(s.Variants)
}

// FacilityIDs returns the ids of the facilities in scope, in order.
func (s *Scope) FacilityIDs() []int64 {
	ids := make([]int64, len(s.Facilities))
	for i, f := range s.Facilities {
		ids[i] = f.ID
	}
	return ids
}

// VariantIDs returns the ids of the variants in scope, in order.
func (s *Scope) VariantIDs() []int64 {
	ids := make([]int64, len(s.Variants))
	for i, v := range s.Variants {
		ids[i] = v.ID
	}
	return ids
}

// ResolveScope turns a targeting request into the exact (facility, variant)
// candidate set. Explicit facility_ids take precedence over cluster
// membership. Eligibility requires an inventory row somewhere in the target
// facilities, not mere catalog presence.
func ResolveScope(ctx context.Context, store ScopeStore, req ScopeRequest) (*Scope, error) {
	if len(req.ClusterIDs) == 0 && len(req.FacilityIDs) == 0 {
		return nil, ErrNoTarget
	}

	var facilities []models.Facility
	var err error
	if len(req.FacilityIDs) > 0 {
		facilities, err = store.ActiveFacilitiesByIDs(ctx, req.FacilityIDs)
	} else {
		facilities, err = store.ActiveFacilitiesInClusters(ctx, req.ClusterIDs)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving facilities: %w", err)
	}
	if len(facilities) == 0 {
		return nil, ErrNoFacilities
	}
	sort.Slice(facilities, func(i, j int) bool { return facilities[i].ID < facilities[j].ID })

	facilityIDs := make([]int64, len(facilities))
	for i, f := range facilities {
		facilityIDs[i] = f.ID
	}

	variants, err := store.EligibleVariants(ctx, facilityIDs, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("resolving variants: %w", err)
	}
	if len(variants) == 0 {
		return nil, ErrNoVariants
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i].ID < variants[j].ID })

	return &Scope{Facilities: facilities, Variants: variants}, nil
}
