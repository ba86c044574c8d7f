/*
store.go - Persistence contract for allocation rows

PURPOSE:
  Defines the interface between the allocation logic and the database.
  Different implementations back it with SQLite or in-memory maps.

OPTIMISTIC LOCKING CONTRACT:
  Every mutating call names the version the caller read. Implementations
  write with an explicit compare-and-swap (WHERE id = ? AND version = ?);
  zero rows affected means another writer got there first and the call
  fails with StaleAllocationError. Successful writes increment the stored
  version by one. There is no blocking and no merge.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - store/memory: In-memory for testing/dev

SEE ALSO:
  - sync.go, agency.go: The only writers
*/
package allocation

import (
	"context"

	"github.com/warp/catering-engine/demand"
)

// Store persists allocation rows and their agency commitments.
type Store interface {
	// ListRows returns every allocation row of the order, ordered by
	// (function, raw material).
	ListRows(ctx context.Context, orderID demand.OrderID) ([]Row, error)

	// GetRow returns one row, or ErrAllocationNotFound.
	GetRow(ctx context.Context, id RowID) (Row, error)

	// InsertRow persists a new row. The row's Version must be 1.
	InsertRow(ctx context.Context, row Row) error

	// UpdateRow writes the row if the stored version still equals
	// row.Version, storing row with Version+1. Otherwise
	// StaleAllocationError.
	UpdateRow(ctx context.Context, row Row) error

	// DeleteRow removes the row if the stored version still equals version.
	DeleteRow(ctx context.Context, id RowID, version int64) error

	// Agencies returns the agency commitments of one row.
	Agencies(ctx context.Context, allocationID RowID) ([]AgencyAllocation, error)

	// ReplaceAgencies atomically swaps the full agency set of the row,
	// guarded by the row version (which it increments).
	ReplaceAgencies(ctx context.Context, allocationID RowID, version int64, entries []AgencyAllocation) error
}
