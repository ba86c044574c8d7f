/*
errors.go - Error types for allocation writes

PURPOSE:
  Two recoverable failures dominate this package: committing more to
  agencies than is purchasable, and losing an optimistic-lock race. Both
  carry enough context for the caller to correct and resubmit.
*/
package allocation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAllocationNotFound is returned when a row id does not exist.
	ErrAllocationNotFound = errors.New("allocation not found")

	// ErrOverAllocation is returned when agency commitments would exceed a
	// row's adjusted quantity. Recoverable: the error reports the remaining
	// allocatable amount.
	ErrOverAllocation = errors.New("agency allocation exceeds adjusted quantity")

	// ErrStaleAllocation is returned when a write lost an optimistic-lock
	// race. Recoverable: refetch and retry.
	ErrStaleAllocation = errors.New("allocation modified concurrently")

	// ErrNegativeQuantity is returned when an agency request carries a
	// negative quantity. Zero withdraws a commitment; negative amounts
	// would corrupt the committed sum.
	ErrNegativeQuantity = errors.New("agency allocation quantity must not be negative")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// OverAllocationError reports how much of the row is still allocatable so
// the caller can correct the request.
type OverAllocationError struct {
	AllocationID RowID
	Requested    decimal.Decimal
	Adjusted     decimal.Decimal
	Remaining    decimal.Decimal
}

func (e *OverAllocationError) Error() string {
	return fmt.Sprintf("allocation %s: requested %s exceeds adjusted %s (remaining %s)",
		e.AllocationID, e.Requested, e.Adjusted, e.Remaining)
}

func (e *OverAllocationError) Unwrap() error { return ErrOverAllocation }

// StaleAllocationError identifies the row whose version moved underneath
// the caller.
type StaleAllocationError struct {
	AllocationID RowID
	ReadVersion  int64
}

func (e *StaleAllocationError) Error() string {
	return fmt.Sprintf("allocation %s changed since version %d was read; refetch and retry",
		e.AllocationID, e.ReadVersion)
}

func (e *StaleAllocationError) Unwrap() error { return ErrStaleAllocation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the operation may succeed after a refetch.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStaleAllocation)
}
