package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/catering-engine/allocation"
	"github.com/warp/catering-engine/demand"
	"github.com/warp/catering-engine/measure"
	"github.com/warp/catering-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func seedCatalog(t *testing.T, st *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.SaveMeasurement(ctx, measure.Measurement{
		ID: 1, Name: "Kilogram", Symbol: "kg", IsBase: true, BaseUnitID: 1, ToBase: dec("1"),
	}))
	require.NoError(t, st.SaveMeasurement(ctx, measure.Measurement{
		ID: 2, Name: "Gram", Symbol: "g", BaseUnitID: 1, ToBase: dec("0.001"),
	}))
	require.NoError(t, st.SaveCustomRange(ctx, measure.CustomRange{
		MeasurementID: 1, Lower: dec("1"), PackSize: dec("1"), Rate: dec("45"),
	}))
}

func testRow(id string) allocation.Row {
	return allocation.Row{
		ID:             allocation.RowID(id),
		OrderID:        7,
		FunctionID:     1,
		RawMaterialID:  10,
		MeasurementID:  1,
		Required:       dec("12.3"),
		Adjusted:       dec("13"),
		AdjustedUnitID: 1,
		Extra:          dec("700"),
		ExtraUnitID:    2,
		Source:         allocation.SourceComputed,
		Version:        1,
	}
}

// =============================================================================
// CATALOG ROUND TRIPS
// =============================================================================

func TestCatalog_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedCatalog(t, st)

	ms, err := st.LoadMeasurements(ctx)
	require.NoError(t, err)
	require.Len(t, ms, 2)

	rs, err := st.LoadCustomRanges(ctx)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.True(t, rs[0].PackSize.Equal(dec("1")))

	// Upsert replaces, not duplicates.
	require.NoError(t, st.SaveMeasurement(ctx, measure.Measurement{
		ID: 2, Name: "Gram", Symbol: "gm", BaseUnitID: 1, ToBase: dec("0.001"),
	}))
	ms, err = st.LoadMeasurements(ctx)
	require.NoError(t, err)
	require.Len(t, ms, 2)
}

func TestMenuData_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedCatalog(t, st)

	require.NoError(t, st.SaveRawMaterial(ctx, demand.RawMaterial{
		ID: 10, Name: "Flour", DefaultMeasurementID: 1, AdjustQuantity: true,
	}))
	require.NoError(t, st.SaveFunction(ctx, 7, demand.EventFunction{ID: 1, Name: "Lunch", GuestCount: 100, Active: true}))
	require.NoError(t, st.SaveSelection(ctx, 7, 1, demand.MenuSelection{MenuItemID: 100, Active: true}))
	require.NoError(t, st.SaveRecipeLine(ctx, 100, demand.RecipeLine{
		RawMaterialID: 10, MeasurementID: 1, Quantity: dec("0.123"),
	}))

	fns, err := st.Functions(ctx, 7)
	require.NoError(t, err)
	require.Len(t, fns, 1)
	assert.Equal(t, int64(100), fns[0].GuestCount)

	sels, err := st.Selections(ctx, 7, 1)
	require.NoError(t, err)
	require.Len(t, sels, 1)

	lines, err := st.Recipe(ctx, 100)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.True(t, lines[0].Quantity.Equal(dec("0.123")))

	m, err := st.RawMaterial(ctx, 10)
	require.NoError(t, err)
	assert.True(t, m.AdjustQuantity)

	_, err = st.RawMaterial(ctx, 999)
	assert.Error(t, err)
}

// =============================================================================
// ALLOCATION ROWS AND COMPARE-AND-SWAP
// =============================================================================

func TestRows_InsertGetList(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.InsertRow(ctx, testRow("row-1")))

	got, err := st.GetRow(ctx, "row-1")
	require.NoError(t, err)
	assert.True(t, got.Required.Equal(dec("12.3")))
	assert.True(t, got.Extra.Equal(dec("700")))
	assert.Equal(t, int64(1), got.Version)

	rows, err := st.ListRows(ctx, 7)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	_, err = st.GetRow(ctx, "nope")
	assert.True(t, errors.Is(err, allocation.ErrAllocationNotFound))
}

func TestUpdateRow_CAS(t *testing.T) {
	// GIVEN: A row at version 1
	// WHEN: Writing with the read version, then again with the stale one
	// THEN: First write bumps to 2, second fails with StaleAllocationError

	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.InsertRow(ctx, testRow("row-1")))

	row, err := st.GetRow(ctx, "row-1")
	require.NoError(t, err)
	row.Required = dec("24.6")
	require.NoError(t, st.UpdateRow(ctx, row))

	updated, err := st.GetRow(ctx, "row-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.True(t, updated.Required.Equal(dec("24.6")))

	// The first caller's version is now stale.
	row.Required = dec("99")
	err = st.UpdateRow(ctx, row)
	require.Error(t, err)
	assert.True(t, errors.Is(err, allocation.ErrStaleAllocation), "got %v", err)

	var stale *allocation.StaleAllocationError
	require.True(t, errors.As(err, &stale))
	assert.Equal(t, allocation.RowID("row-1"), stale.AllocationID)
}

func TestDeleteRow_CAS(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.InsertRow(ctx, testRow("row-1")))

	err := st.DeleteRow(ctx, "row-1", 99)
	assert.True(t, errors.Is(err, allocation.ErrStaleAllocation), "got %v", err)

	require.NoError(t, st.DeleteRow(ctx, "row-1", 1))
	_, err = st.GetRow(ctx, "row-1")
	assert.True(t, errors.Is(err, allocation.ErrAllocationNotFound))
}

func TestReplaceAgencies_VersionGuardAndSwap(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.InsertRow(ctx, testRow("row-1")))

	entries := []allocation.AgencyAllocation{
		{ID: "a-1", AllocationID: "row-1", AgencyID: 1, Quantity: dec("6")},
		{ID: "a-2", AllocationID: "row-1", AgencyID: 2, Quantity: dec("7")},
	}
	require.NoError(t, st.ReplaceAgencies(ctx, "row-1", 1, entries))

	got, err := st.Agencies(ctx, "row-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// The guard version moved with the replace.
	err = st.ReplaceAgencies(ctx, "row-1", 1, nil)
	assert.True(t, errors.Is(err, allocation.ErrStaleAllocation), "got %v", err)

	require.NoError(t, st.ReplaceAgencies(ctx, "row-1", 2, nil))
	got, err = st.Agencies(ctx, "row-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeleteRow_CascadesAgencies(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.InsertRow(ctx, testRow("row-1")))
	require.NoError(t, st.ReplaceAgencies(ctx, "row-1", 1, []allocation.AgencyAllocation{
		{ID: "a-1", AllocationID: "row-1", AgencyID: 1, Quantity: dec("6")},
	}))

	require.NoError(t, st.DeleteRow(ctx, "row-1", 2))

	got, err := st.Agencies(ctx, "row-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}
