/*
Package allocation reconciles computed raw-material demand with persisted
allocation rows and distributes purchasable quantities across supplying
agencies.

PURPOSE:
  Demand is recomputed every time the menu changes, but allocation rows are
  living records: users override purchasable quantities, pin units, and
  commit portions to external agencies. The synchronizer folds fresh demand
  into the persisted rows without destroying those edits; the agency
  manager splits a row's adjusted quantity across agencies without ever
  over-committing it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Row: One persisted raw-material allocation with optimistic version
  - Source: Who last shaped the row (computed, manual, merged)
  - AgencyAllocation: A portion of a row committed to one agency

ROW LIFECYCLE:
  created by first sync (computed) -> updated by later syncs (merged)
  -> deleted when demand disappears and no agency is committed
  -> orphaned (kept, flagged) when demand disappears but agencies hold
     commitments a user must review.

CONCURRENCY:
  Every write is an explicit compare-and-swap on the row version. A version
  mismatch surfaces StaleAllocationError; callers refetch and retry.

SEE ALSO:
  - sync.go: Demand reconciliation
  - agency.go: Agency distribution
  - store.go: Persistence contract
*/
package allocation

import (
	"github.com/shopspring/decimal"
	"github.com/warp/catering-engine/demand"
	"github.com/warp/catering-engine/measure"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// RowID identifies an allocation row. Generated as a UUID on insert.
type RowID string

// AgencyID identifies an external supplying agency.
type AgencyID int64

// =============================================================================
// SOURCE - Who last shaped the row
// =============================================================================

type Source string

const (
	// SourceComputed: created by sync, never touched by a user.
	SourceComputed Source = "computed"
	// SourceManual: a user overrode the adjusted quantity or unit.
	SourceManual Source = "manual"
	// SourceMerged: sync refreshed the required quantity of a row that has
	// (or had) manual edits; the user-set fields were preserved.
	SourceMerged Source = "merged"
)

// =============================================================================
// ROW - Persisted raw-material allocation
// =============================================================================

// Row is one persisted allocation. FunctionID zero means the row belongs
// to the order as a whole rather than a single function.
type Row struct {
	ID            RowID
	OrderID       demand.OrderID
	FunctionID    demand.FunctionID
	RawMaterialID demand.RawMaterialID
	MeasurementID measure.ID

	// Required is the computed demand, expressed in MeasurementID.
	Required decimal.Decimal
	// Adjusted is the purchasable quantity, expressed in AdjustedUnitID.
	Adjusted       decimal.Decimal
	AdjustedUnitID measure.ID
	// Extra is the surplus over Required, expressed in ExtraUnitID
	// (the family's smallest unit unless manually overridden).
	Extra       decimal.Decimal
	ExtraUnitID measure.ID

	Source   Source
	Orphaned bool

	// Version is the optimistic-lock counter. Incremented on every write.
	Version int64
}

// =============================================================================
// AGENCY ALLOCATION - Committed portion of a row
// =============================================================================

// AgencyAllocation commits Quantity (in the row's measurement) of one
// allocation row to one agency. Created and deleted solely through the
// Manager; the sum over a row never exceeds its adjusted quantity.
type AgencyAllocation struct {
	ID           string
	AllocationID RowID
	AgencyID     AgencyID
	Quantity     decimal.Decimal
}
