/*
sync.go - Reconciling computed demand with persisted allocation rows

PURPOSE:
  Menus change constantly while an order is being prepared. Sync recomputes
  demand and folds it into the persisted rows:
    - new (function, material) keys become computed rows with a derived
      purchasable quantity,
    - manually edited rows get a fresh required quantity but keep the
      user's adjusted quantity, unit, and agency commitments,
    - untouched computed rows are overwritten in place,
    - keys that left the menu are deleted, unless agencies hold
      commitments, in which case the row is kept and flagged orphaned.

IDEMPOTENCY:
  Re-running sync against unchanged demand performs zero writes: row
  versions do not move, so a retry after a transient failure is always
  safe.

SEE ALSO:
  - ../demand/calculator.go: Produces the fresh requirements
  - ../measure/adjust.go: Derives purchasable quantities
*/
package allocation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/catering-engine/demand"
	"github.com/warp/catering-engine/measure"
)

// Synchronizer reconciles one order's demand with its allocation rows.
// Build one per call, over the same registry snapshot as the calculator.
type Synchronizer struct {
	store     Store
	materials demand.MaterialSource
	calc      *demand.Calculator
	policy    *measure.Policy
	conv      *measure.Converter
}

func NewSynchronizer(store Store, materials demand.MaterialSource, calc *demand.Calculator, reg measure.Registry) *Synchronizer {
	return &Synchronizer{
		store:     store,
		materials: materials,
		calc:      calc,
		policy:    measure.NewPolicy(reg),
		conv:      measure.NewConverter(reg),
	}
}

// SyncResult summarizes what one sync changed.
type SyncResult struct {
	Created   int
	Updated   int
	Deleted   int
	Orphaned  int
	Unchanged int
}

type rowKey struct {
	functionID    demand.FunctionID
	rawMaterialID demand.RawMaterialID
}

// Sync recomputes the order's demand and reconciles the persisted rows.
func (s *Synchronizer) Sync(ctx context.Context, orderID demand.OrderID) (SyncResult, error) {
	var res SyncResult

	reqs, err := s.calc.Compute(ctx, orderID)
	if err != nil {
		return res, err
	}

	existing, err := s.store.ListRows(ctx, orderID)
	if err != nil {
		return res, fmt.Errorf("load allocations for order %d: %w", orderID, err)
	}
	byKey := make(map[rowKey]Row, len(existing))
	for _, row := range existing {
		byKey[rowKey{row.FunctionID, row.RawMaterialID}] = row
	}

	seen := make(map[rowKey]bool, len(reqs))
	for _, req := range reqs {
		k := rowKey{req.FunctionID, req.RawMaterialID}
		seen[k] = true

		row, ok := byKey[k]
		if !ok {
			if err := s.create(ctx, orderID, req); err != nil {
				return res, err
			}
			res.Created++
			continue
		}

		changed, err := s.refresh(ctx, &row, req)
		if err != nil {
			return res, err
		}
		if changed {
			res.Updated++
		} else {
			res.Unchanged++
		}
	}

	// Keys that disappeared from demand.
	for _, row := range existing {
		if seen[rowKey{row.FunctionID, row.RawMaterialID}] {
			continue
		}
		agencies, err := s.store.Agencies(ctx, row.ID)
		if err != nil {
			return res, err
		}
		if len(agencies) == 0 {
			if err := s.store.DeleteRow(ctx, row.ID, row.Version); err != nil {
				return res, err
			}
			res.Deleted++
			continue
		}
		// Agency commitments exist: never silently discard them.
		if row.Orphaned {
			res.Unchanged++
			continue
		}
		row.Orphaned = true
		if err := s.store.UpdateRow(ctx, row); err != nil {
			return res, err
		}
		res.Orphaned++
	}

	return res, nil
}

// create inserts a computed row for a key seen for the first time.
func (s *Synchronizer) create(ctx context.Context, orderID demand.OrderID, req demand.Requirement) error {
	material, err := s.materials.RawMaterial(ctx, req.RawMaterialID)
	if err != nil {
		return fmt.Errorf("load raw material %d: %w", req.RawMaterialID, err)
	}
	adj, err := s.policy.Adjust(req.Required, req.MeasurementID, material.AdjustQuantity, material.SupplierRate)
	if err != nil {
		return err
	}
	return s.store.InsertRow(ctx, Row{
		ID:             RowID(uuid.NewString()),
		OrderID:        orderID,
		FunctionID:     req.FunctionID,
		RawMaterialID:  req.RawMaterialID,
		MeasurementID:  req.MeasurementID,
		Required:       req.Required,
		Adjusted:       adj.Adjusted,
		AdjustedUnitID: adj.AdjustedUnitID,
		Extra:          adj.Extra,
		ExtraUnitID:    adj.ExtraUnitID,
		Source:         SourceComputed,
		Version:        1,
	})
}

// refresh folds a fresh requirement into an existing row. Returns whether
// a write happened.
func (s *Synchronizer) refresh(ctx context.Context, row *Row, req demand.Requirement) (bool, error) {
	// The row's unit may have been pinned manually; express the fresh
	// demand in it. Different families surface as a data defect.
	required, err := s.conv.Convert(req.Required, req.MeasurementID, row.MeasurementID)
	if err != nil {
		return false, fmt.Errorf("raw material %d: %w", req.RawMaterialID, err)
	}

	if row.Source == SourceManual || row.Source == SourceMerged {
		// The user's adjusted quantity and unit are never re-derived. A
		// merged row whose required quantity did not move needs no write.
		if row.Source == SourceMerged && row.Required.Equal(required) && !row.Orphaned {
			return false, nil
		}
		return true, s.mergeManual(ctx, row, required)
	}

	material, err := s.materials.RawMaterial(ctx, req.RawMaterialID)
	if err != nil {
		return false, fmt.Errorf("load raw material %d: %w", req.RawMaterialID, err)
	}
	adj, err := s.policy.Adjust(required, row.MeasurementID, material.AdjustQuantity, material.SupplierRate)
	if err != nil {
		return false, err
	}

	unchanged := row.Required.Equal(required) &&
		row.Adjusted.Equal(adj.Adjusted) &&
		row.AdjustedUnitID == adj.AdjustedUnitID &&
		row.Extra.Equal(adj.Extra) &&
		row.ExtraUnitID == adj.ExtraUnitID &&
		!row.Orphaned
	if unchanged {
		return false, nil
	}

	row.Required = required
	row.Adjusted = adj.Adjusted
	row.AdjustedUnitID = adj.AdjustedUnitID
	row.Extra = adj.Extra
	row.ExtraUnitID = adj.ExtraUnitID
	row.Orphaned = false
	return true, s.store.UpdateRow(ctx, *row)
}

// mergeManual refreshes only the required quantity of a manually edited
// row. The user's adjusted quantity and unit stay; extra is recomputed
// against them so the surplus remains truthful.
func (s *Synchronizer) mergeManual(ctx context.Context, row *Row, required decimal.Decimal) error {
	adjustedInRowUnit, err := s.conv.Convert(row.Adjusted, row.AdjustedUnitID, row.MeasurementID)
	if err != nil {
		return err
	}
	smallest, err := s.conv.SmallestUnit(row.MeasurementID)
	if err != nil {
		return err
	}
	extra, err := s.conv.Convert(adjustedInRowUnit.Sub(required), row.MeasurementID, smallest.ID)
	if err != nil {
		return err
	}

	row.Required = required
	row.Extra = extra
	row.ExtraUnitID = smallest.ID
	row.Source = SourceMerged
	row.Orphaned = false
	return s.store.UpdateRow(ctx, *row)
}

// =============================================================================
// MANUAL QUANTITY EDITS
// =============================================================================

// QuantityEdit is a user override of one row's purchasable quantity.
// MeasurementID zero keeps the row's current unit. Version is the version
// the editing client read.
type QuantityEdit struct {
	AllocationID  RowID
	Adjusted      decimal.Decimal
	MeasurementID measure.ID
	Version       int64
}

// UpdateQuantities applies manual overrides. Each edited row is stamped
// SourceManual so later syncs preserve the override. Edits are applied
// one by one; the first failure aborts the remainder.
func (s *Synchronizer) UpdateQuantities(ctx context.Context, edits []QuantityEdit) error {
	for _, edit := range edits {
		row, err := s.store.GetRow(ctx, edit.AllocationID)
		if err != nil {
			return err
		}
		if row.Version != edit.Version {
			return &StaleAllocationError{AllocationID: row.ID, ReadVersion: edit.Version}
		}

		if edit.MeasurementID != 0 {
			// Re-express the computed demand in the pinned unit.
			required, err := s.conv.Convert(row.Required, row.MeasurementID, edit.MeasurementID)
			if err != nil {
				return err
			}
			row.Required = required
			row.MeasurementID = edit.MeasurementID
		}

		row.Adjusted = edit.Adjusted
		row.AdjustedUnitID = row.MeasurementID

		smallest, err := s.conv.SmallestUnit(row.MeasurementID)
		if err != nil {
			return err
		}
		extra, err := s.conv.Convert(row.Adjusted.Sub(row.Required), row.MeasurementID, smallest.ID)
		if err != nil {
			return err
		}
		row.Extra = extra
		row.ExtraUnitID = smallest.ID
		row.Source = SourceManual

		if err := s.store.UpdateRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
