/*
Package engine is the in-process facade over the measurement, demand, and
allocation packages.

PURPOSE:
  The surrounding application (controllers, schedulers, imports) talks to
  one type instead of wiring converters, calculators, and synchronizers
  itself. Each operation takes one immutable measurement-catalog snapshot
  at the top, so a computation never observes a half-edited catalog.

OPERATIONS:
  ComputeDemand / ComputeOrderDemand  Demand per function / per order
  SyncRawMaterial                     Reconcile demand with allocations
  SmallestMeasurementID / -Value      Finest sibling unit lookups
  AdjustedQuantity                    Packaging round-up for one quantity
  UpdateRawMaterialQuantity           Manual purchasable-quantity edits
  AgencyAllocation                    Distribute a row across agencies

TRANSACTIONS:
  Every operation is scoped to a single order and guarded by per-row
  optimistic versions; see allocation/store.go. There is no background
  work and no cross-order shared state beyond the read-mostly catalog
  cache.

SEE ALSO:
  - api/: The HTTP surface over this facade
*/
package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/catering-engine/allocation"
	"github.com/warp/catering-engine/demand"
	"github.com/warp/catering-engine/measure"
)

// Backend bundles every contract the engine consumes. The sqlite and
// memory stores both satisfy it.
type Backend interface {
	measure.Source
	demand.MenuSource
	demand.RecipeSource
	demand.MaterialSource
	allocation.Store
}

// Engine exposes the public operations of the allocation core.
type Engine struct {
	backend Backend
	catalog *measure.Cache
}

func New(backend Backend) *Engine {
	return &Engine{
		backend: backend,
		catalog: measure.NewCache(backend),
	}
}

// InvalidateMeasurements drops the catalog cache. The CRUD layer calls
// this after editing measurements or custom ranges.
func (e *Engine) InvalidateMeasurements() {
	e.catalog.Invalidate()
}

// =============================================================================
// DEMAND
// =============================================================================

// ComputeDemand returns the order's demand per (function, raw material).
func (e *Engine) ComputeDemand(ctx context.Context, orderID demand.OrderID) ([]demand.Requirement, error) {
	snap, err := e.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return demand.NewCalculator(e.backend, e.backend, snap).Compute(ctx, orderID)
}

// ComputeOrderDemand collapses demand across the order's functions.
func (e *Engine) ComputeOrderDemand(ctx context.Context, orderID demand.OrderID) ([]demand.Requirement, error) {
	snap, err := e.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return demand.NewCalculator(e.backend, e.backend, snap).ComputeOrderLevel(ctx, orderID)
}

// =============================================================================
// SYNC AND MANUAL EDITS
// =============================================================================

// SyncRawMaterial reconciles the order's allocation rows with fresh demand.
func (e *Engine) SyncRawMaterial(ctx context.Context, orderID demand.OrderID) (allocation.SyncResult, error) {
	sync, err := e.synchronizer(ctx)
	if err != nil {
		return allocation.SyncResult{}, err
	}
	return sync.Sync(ctx, orderID)
}

// UpdateRawMaterialQuantity applies manual purchasable-quantity overrides.
func (e *Engine) UpdateRawMaterialQuantity(ctx context.Context, edits []allocation.QuantityEdit) error {
	sync, err := e.synchronizer(ctx)
	if err != nil {
		return err
	}
	return sync.UpdateQuantities(ctx, edits)
}

func (e *Engine) synchronizer(ctx context.Context) (*allocation.Synchronizer, error) {
	snap, err := e.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	calc := demand.NewCalculator(e.backend, e.backend, snap)
	return allocation.NewSynchronizer(e.backend, e.backend, calc, snap), nil
}

// =============================================================================
// AGENCY ALLOCATION
// =============================================================================

// AgencyAllocation distributes allocation rows across agencies. See
// allocation.Manager for the batch semantics.
func (e *Engine) AgencyAllocation(ctx context.Context, orderID demand.OrderID, reqs []allocation.AgencyRequest) (allocation.AllocateResult, error) {
	return allocation.NewManager(e.backend).Allocate(ctx, orderID, reqs)
}

// Allocations lists the order's persisted allocation rows.
func (e *Engine) Allocations(ctx context.Context, orderID demand.OrderID) ([]allocation.Row, error) {
	return e.backend.ListRows(ctx, orderID)
}

// AgencyAllocations lists one row's agency commitments.
func (e *Engine) AgencyAllocations(ctx context.Context, id allocation.RowID) ([]allocation.AgencyAllocation, error) {
	if _, err := e.backend.GetRow(ctx, id); err != nil {
		return nil, err
	}
	return e.backend.Agencies(ctx, id)
}

// =============================================================================
// MEASUREMENT LOOKUPS
// =============================================================================

// SmallestMeasurementID returns the finest sibling unit of id.
func (e *Engine) SmallestMeasurementID(ctx context.Context, id measure.ID) (measure.ID, error) {
	snap, err := e.catalog.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	smallest, err := measure.NewConverter(snap).SmallestUnit(id)
	if err != nil {
		return 0, err
	}
	return smallest.ID, nil
}

// SmallestMeasurementValue expresses quantity in the finest sibling unit.
func (e *Engine) SmallestMeasurementValue(ctx context.Context, quantity decimal.Decimal, id measure.ID) (decimal.Decimal, error) {
	snap, err := e.catalog.Snapshot(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return measure.NewConverter(snap).SmallestValue(quantity, id)
}

// SmallestMeasurement expresses quantity in the finest sibling unit and
// returns the value together with that unit's id. Both come from one
// catalog snapshot, so a concurrent invalidation cannot pair a value
// with a unit from a different catalog view.
func (e *Engine) SmallestMeasurement(ctx context.Context, quantity decimal.Decimal, id measure.ID) (decimal.Decimal, measure.ID, error) {
	snap, err := e.catalog.Snapshot(ctx)
	if err != nil {
		return decimal.Zero, 0, err
	}
	conv := measure.NewConverter(snap)
	smallest, err := conv.SmallestUnit(id)
	if err != nil {
		return decimal.Zero, 0, err
	}
	value, err := conv.Convert(quantity, id, smallest.ID)
	if err != nil {
		return decimal.Zero, 0, err
	}
	return value, smallest.ID, nil
}

// AdjustedQuantity rounds quantity up to the packaging constraints of the
// measurement, returning the structured adjustment record.
func (e *Engine) AdjustedQuantity(ctx context.Context, quantity decimal.Decimal, id measure.ID, adjust, supplierRate bool) (measure.Adjustment, error) {
	snap, err := e.catalog.Snapshot(ctx)
	if err != nil {
		return measure.Adjustment{}, err
	}
	return measure.NewPolicy(snap).Adjust(quantity, id, adjust, supplierRate)
}
