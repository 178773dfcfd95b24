// Package assembly resolves pack and combo relationships for incoming
// variant payloads. Pack wiring is two-phase: single-unit variants are
// planned first, then packs resolve their base variant through the shared
// "link" grouping token.
package assembly

import (
	"errors"
	"fmt"

	"github.com/rozanalabs/catalog-service/internal/models"
)

var (
	// ErrMultipleSingles: a link group carries more than one single-unit
	// payload, so a pack's base variant would be ambiguous.
	ErrMultipleSingles = errors.New("multiple single-unit variants share the same link")

	// Combo validation failures.
	ErrTooFewItems        = errors.New("a combo must have at least 2 items")
	ErrDuplicateComponent = errors.New("a combo cannot contain the same variant twice")
	ErrSelfReference      = errors.New("a combo cannot include its own variant as an item")
	ErrNestedCombo        = errors.New("a combo item cannot itself be a combo variant")
	ErrBadQuantity        = errors.New("combo item quantity must be at least 1")
)

// CustomFieldValue attaches a catalog custom-field value to a variant.
type CustomFieldValue struct {
	FieldID int64  `json:"field_id"`
	Value   string `json:"value"`
}

// SizeChartValue carries one size's measurements for a variant.
type SizeChartValue struct {
	Size         string            `json:"size"`
	Measurements map[string]string `json:"measurements"`
}

// VariantInput is one flat variant payload from a product create/update
// request. ID zero means the variant is new.
type VariantInput struct {
	ID      int64
	Link    *string
	IsPack  bool
	PackQty int

	Variant      models.ProductVariant
	CustomFields []CustomFieldValue
	SizeChart    []SizeChartValue
}

// PlannedPack is a pack variant whose base reference has been resolved:
// either to a single planned in phase 1 (SingleIndex >= 0) or to a variant
// that already exists in storage (ExistingID > 0).
type PlannedPack struct {
	Input       VariantInput
	SingleIndex int
	ExistingID  int64
}

// Warning reports a pack payload that could not be wired. Packs with no
// resolvable base are skipped, not failed; callers surface the warnings in
// the response.
type Warning struct {
	Link    string `json:"link"`
	Message string `json:"message"`
}

// Plan is the ordered persistence plan for a batch of variant payloads:
// updates to existing variants, new singles, then new packs referencing
// them.
type Plan struct {
	Updates  []VariantInput
	Singles  []VariantInput
	Packs    []PlannedPack
	Warnings []Warning
}

type linkKey struct {
	valid bool
	val   string
}

func keyOf(link *string) linkKey {
	if link == nil {
		return linkKey{}
	}
	return linkKey{valid: true, val: *link}
}

func isSingle(in VariantInput) bool {
	return !in.IsPack || in.PackQty <= 1
}

// BuildPlan groups the new payloads by link and produces the two-phase
// plan. existingByLink maps links of variants already in storage (or
// updated in the same request) to their ids, letting packs added on update
// resolve against them. A link group with more than one new single is a
// hard validation error; a pack whose link resolves to nothing becomes a
// warning and is skipped.
func BuildPlan(inputs []VariantInput, existingByLink map[string]int64) (*Plan, error) {
	plan := &Plan{}

	singleIndexByLink := make(map[linkKey]int)
	for _, in := range inputs {
		if in.ID != 0 {
			plan.Updates = append(plan.Updates, in)
			continue
		}
		if !isSingle(in) {
			continue
		}

		k := keyOf(in.Link)
		if k.valid {
			if _, dup := singleIndexByLink[k]; dup {
				return nil, fmt.Errorf("link %q: %w", k.val, ErrMultipleSingles)
			}
			singleIndexByLink[k] = len(plan.Singles)
		}

		// Force single-unit shape regardless of what the payload carried.
		in.IsPack = false
		in.PackQty = 1
		in.Variant.IsPack = false
		in.Variant.PackQty = 1
		in.Variant.PackVariantID = nil
		plan.Singles = append(plan.Singles, in)
	}

	for _, in := range inputs {
		if in.ID != 0 || isSingle(in) {
			continue
		}

		in.Variant.IsPack = true
		in.Variant.PackQty = in.PackQty

		k := keyOf(in.Link)
		if k.valid {
			if idx, ok := singleIndexByLink[k]; ok {
				plan.Packs = append(plan.Packs, PlannedPack{Input: in, SingleIndex: idx, ExistingID: 0})
				continue
			}
			if id, ok := existingByLink[k.val]; ok {
				plan.Packs = append(plan.Packs, PlannedPack{Input: in, SingleIndex: -1, ExistingID: id})
				continue
			}
		}

		link := ""
		if k.valid {
			link = k.val
		}
		plan.Warnings = append(plan.Warnings, Warning{
			Link:    link,
			Message: fmt.Sprintf("no single-unit variant found for link %q; pack %q skipped", link, in.Variant.Name),
		})
	}

	return plan, nil
}

// ComboItemInput is one requested component of a combo.
type ComboItemInput struct {
	VariantID int64 `json:"product_variant_id"`
	Quantity  int   `json:"quantity"`
}

// ValidateCombo enforces the combo invariants before anything is
// persisted: at least two distinct components, no component equal to the
// combo's own variant, and no component that is itself a combo.
// isComboByID reports the is_combo flag for every referenced variant.
func ValidateCombo(comboVariantID int64, items []ComboItemInput, isComboByID map[int64]bool) error {
	if len(items) < 2 {
		return ErrTooFewItems
	}
	seen := make(map[int64]bool, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			return fmt.Errorf("variant %d: %w", it.VariantID, ErrBadQuantity)
		}
		if it.VariantID == comboVariantID {
			return ErrSelfReference
		}
		if seen[it.VariantID] {
			return fmt.Errorf("variant %d: %w", it.VariantID, ErrDuplicateComponent)
		}
		seen[it.VariantID] = true
		if isComboByID[it.VariantID] {
			return fmt.Errorf("variant %d: %w", it.VariantID, ErrNestedCombo)
		}
	}
	return nil
}
