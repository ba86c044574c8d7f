package allocation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/catering-engine/allocation"
	"github.com/warp/catering-engine/store/memory"
)

// syncedFixture seeds the standard order and runs one sync so allocation
// rows exist: flour adjusted to 13 kg, salt to 200 g.
func syncedFixture(t *testing.T) *memory.Store {
	t.Helper()
	st := newStore()
	_, err := newSynchronizer(t, st).Sync(context.Background(), orderID)
	require.NoError(t, err)
	return st
}

func committedSum(t *testing.T, st *memory.Store, id allocation.RowID) decimal.Decimal {
	t.Helper()
	agencies, err := st.Agencies(context.Background(), id)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, a := range agencies {
		sum = sum.Add(a.Quantity)
	}
	return sum
}

// =============================================================================
// ALLOCATION BOUND
// =============================================================================

func TestAllocate_FillsToAdjusted_ThenRejects(t *testing.T) {
	// GIVEN: Flour adjusted to 13 kg
	// WHEN: Agencies 1 and 2 take 6 and 7 kg, then agency 3 asks for 1 kg
	// THEN: The first two fill the row exactly; the third is rejected
	//       with 0 kg remaining

	ctx := context.Background()
	st := syncedFixture(t)
	mgr := allocation.NewManager(st)
	flourRow := findRow(t, st, flour)

	res, err := mgr.Allocate(ctx, orderID, []allocation.AgencyRequest{
		{AllocationID: flourRow.ID, AgencyID: 1, Quantity: dec("6")},
		{AllocationID: flourRow.ID, AgencyID: 2, Quantity: dec("7")},
	})
	require.NoError(t, err)
	assert.Equal(t, []allocation.RowID{flourRow.ID}, res.Applied)
	assert.True(t, committedSum(t, st, flourRow.ID).Equal(dec("13")))

	_, err = mgr.Allocate(ctx, orderID, []allocation.AgencyRequest{
		{AllocationID: flourRow.ID, AgencyID: 3, Quantity: dec("1")},
	})
	require.Error(t, err)

	var over *allocation.OverAllocationError
	require.True(t, errors.As(err, &over), "got %v", err)
	assert.Equal(t, flourRow.ID, over.AllocationID)
	assert.True(t, over.Remaining.IsZero(), "remaining %v", over.Remaining)

	// The bound holds after the rejected call.
	assert.True(t, committedSum(t, st, flourRow.ID).Equal(dec("13")))
}

func TestAllocate_BatchExceedingAdjusted_WholeGroupRejected(t *testing.T) {
	// A single batch summing past the adjusted quantity applies nothing
	// for that row, not a partial split.
	ctx := context.Background()
	st := syncedFixture(t)
	flourRow := findRow(t, st, flour)

	_, err := allocation.NewManager(st).Allocate(ctx, orderID, []allocation.AgencyRequest{
		{AllocationID: flourRow.ID, AgencyID: 1, Quantity: dec("10")},
		{AllocationID: flourRow.ID, AgencyID: 2, Quantity: dec("5")},
	})
	require.True(t, errors.Is(err, allocation.ErrOverAllocation), "got %v", err)
	assert.True(t, committedSum(t, st, flourRow.ID).IsZero())
}

func TestAllocate_NegativeQuantity_Rejected(t *testing.T) {
	// GIVEN: Flour already holding a 5 kg commitment for agency 1
	// WHEN: A batch asks agency 2 for -3 kg
	// THEN: The batch is rejected and the stored commitments are untouched

	ctx := context.Background()
	st := syncedFixture(t)
	mgr := allocation.NewManager(st)
	flourRow := findRow(t, st, flour)

	_, err := mgr.Allocate(ctx, orderID, []allocation.AgencyRequest{
		{AllocationID: flourRow.ID, AgencyID: 1, Quantity: dec("5")},
	})
	require.NoError(t, err)

	res, err := mgr.Allocate(ctx, orderID, []allocation.AgencyRequest{
		{AllocationID: flourRow.ID, AgencyID: 2, Quantity: dec("-3")},
	})
	require.True(t, errors.Is(err, allocation.ErrNegativeQuantity), "got %v", err)
	assert.Empty(t, res.Applied)
	assert.True(t, committedSum(t, st, flourRow.ID).Equal(dec("5")))
}

func TestAllocate_IndependentTargets_OneFailureDoesNotBlockOthers(t *testing.T) {
	// GIVEN: A batch touching flour (valid) and salt (over-allocated)
	// WHEN: Allocating
	// THEN: Flour applies, salt is rejected, the error names salt

	ctx := context.Background()
	st := syncedFixture(t)
	flourRow := findRow(t, st, flour)
	saltRow := findRow(t, st, salt)

	res, err := allocation.NewManager(st).Allocate(ctx, orderID, []allocation.AgencyRequest{
		{AllocationID: flourRow.ID, AgencyID: 1, Quantity: dec("13")},
		{AllocationID: saltRow.ID, AgencyID: 1, Quantity: dec("999")},
	})
	require.Error(t, err)
	assert.Equal(t, []allocation.RowID{flourRow.ID}, res.Applied)

	var over *allocation.OverAllocationError
	require.True(t, errors.As(err, &over))
	assert.Equal(t, saltRow.ID, over.AllocationID)

	assert.True(t, committedSum(t, st, flourRow.ID).Equal(dec("13")))
	assert.True(t, committedSum(t, st, saltRow.ID).IsZero())
}

// =============================================================================
// REPLACE SEMANTICS
// =============================================================================

func TestAllocate_ResubmittingAgency_ReplacesNotAccumulates(t *testing.T) {
	ctx := context.Background()
	st := syncedFixture(t)
	mgr := allocation.NewManager(st)
	flourRow := findRow(t, st, flour)

	_, err := mgr.Allocate(ctx, orderID, []allocation.AgencyRequest{
		{AllocationID: flourRow.ID, AgencyID: 1, Quantity: dec("8")},
	})
	require.NoError(t, err)

	// Agency 1 corrects its commitment down to 5 kg.
	_, err = mgr.Allocate(ctx, orderID, []allocation.AgencyRequest{
		{AllocationID: flourRow.ID, AgencyID: 1, Quantity: dec("5")},
	})
	require.NoError(t, err)
	assert.True(t, committedSum(t, st, flourRow.ID).Equal(dec("5")))
}

func TestAllocate_ZeroQuantity_WithdrawsCommitment(t *testing.T) {
	ctx := context.Background()
	st := syncedFixture(t)
	mgr := allocation.NewManager(st)
	flourRow := findRow(t, st, flour)

	_, err := mgr.Allocate(ctx, orderID, []allocation.AgencyRequest{
		{AllocationID: flourRow.ID, AgencyID: 1, Quantity: dec("8")},
		{AllocationID: flourRow.ID, AgencyID: 2, Quantity: dec("5")},
	})
	require.NoError(t, err)

	_, err = mgr.Allocate(ctx, orderID, []allocation.AgencyRequest{
		{AllocationID: flourRow.ID, AgencyID: 1, Quantity: decimal.Zero},
	})
	require.NoError(t, err)

	agencies, err := st.Agencies(ctx, flourRow.ID)
	require.NoError(t, err)
	require.Len(t, agencies, 1)
	assert.Equal(t, allocation.AgencyID(2), agencies[0].AgencyID)
}

// =============================================================================
// GUARDS
// =============================================================================

func TestAllocate_UnknownAllocation_NotFound(t *testing.T) {
	ctx := context.Background()
	st := syncedFixture(t)

	_, err := allocation.NewManager(st).Allocate(ctx, orderID, []allocation.AgencyRequest{
		{AllocationID: "no-such-row", AgencyID: 1, Quantity: dec("1")},
	})
	assert.True(t, errors.Is(err, allocation.ErrAllocationNotFound), "got %v", err)
}

func TestAllocate_WrongOrder_NotFound(t *testing.T) {
	// A row cannot be allocated through another order's call.
	ctx := context.Background()
	st := syncedFixture(t)
	flourRow := findRow(t, st, flour)

	_, err := allocation.NewManager(st).Allocate(ctx, 999, []allocation.AgencyRequest{
		{AllocationID: flourRow.ID, AgencyID: 1, Quantity: dec("1")},
	})
	assert.True(t, errors.Is(err, allocation.ErrAllocationNotFound), "got %v", err)
}
