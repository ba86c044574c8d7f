package engine_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/catering-engine/allocation"
	"github.com/warp/catering-engine/demand"
	"github.com/warp/catering-engine/engine"
	"github.com/warp/catering-engine/measure"
	"github.com/warp/catering-engine/store/memory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// seed builds the standard wedding-order fixture: lunch for 100 guests,
// naan needing 0.123 kg flour per serving, flour sold in 1 kg bags.
func seed() *memory.Store {
	st := memory.New()
	st.SetMeasurements(
		measure.Measurement{ID: 1, Name: "Kilogram", Symbol: "kg", IsBase: true, BaseUnitID: 1, ToBase: dec("1")},
		measure.Measurement{ID: 2, Name: "Gram", Symbol: "g", BaseUnitID: 1, ToBase: dec("0.001")},
	)
	st.SetCustomRanges(measure.CustomRange{MeasurementID: 1, Lower: dec("1"), PackSize: dec("1")})
	st.SetRawMaterial(demand.RawMaterial{ID: 10, Name: "Flour", DefaultMeasurementID: 1, AdjustQuantity: true})
	st.SetFunctions(7, demand.EventFunction{ID: 1, GuestCount: 100, Active: true})
	st.SetSelections(7, 1, demand.MenuSelection{MenuItemID: 100, Active: true})
	st.SetRecipe(100, demand.RecipeLine{RawMaterialID: 10, MeasurementID: 1, Quantity: dec("0.123")})
	return st
}

func TestEngine_ComputeSyncAllocate_EndToEnd(t *testing.T) {
	// The whole pipeline: demand -> allocation rows -> agency split.
	ctx := context.Background()
	eng := engine.New(seed())

	reqs, err := eng.ComputeDemand(ctx, 7)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Required.Equal(dec("12.3")))

	res, err := eng.SyncRawMaterial(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	rows, err := eng.Allocations(ctx, 7)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Adjusted.Equal(dec("13")))
	assert.True(t, rows[0].Extra.Equal(dec("700")))

	_, err = eng.AgencyAllocation(ctx, 7, []allocation.AgencyRequest{
		{AllocationID: rows[0].ID, AgencyID: 1, Quantity: dec("6")},
		{AllocationID: rows[0].ID, AgencyID: 2, Quantity: dec("7")},
	})
	require.NoError(t, err)

	agencies, err := eng.AgencyAllocations(ctx, rows[0].ID)
	require.NoError(t, err)
	assert.Len(t, agencies, 2)
}

func TestEngine_MeasurementLookups(t *testing.T) {
	ctx := context.Background()
	eng := engine.New(seed())

	id, err := eng.SmallestMeasurementID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, measure.ID(2), id)

	v, err := eng.SmallestMeasurementValue(ctx, dec("12.3"), 1)
	require.NoError(t, err)
	assert.True(t, v.Equal(dec("12300")))

	v, unitID, err := eng.SmallestMeasurement(ctx, dec("12.3"), 1)
	require.NoError(t, err)
	assert.True(t, v.Equal(dec("12300")))
	assert.Equal(t, measure.ID(2), unitID)

	adj, err := eng.AdjustedQuantity(ctx, dec("12.3"), 1, true, false)
	require.NoError(t, err)
	assert.True(t, adj.Adjusted.Equal(dec("13")))
	assert.True(t, adj.Extra.Equal(dec("700")))
	assert.Equal(t, measure.ID(2), adj.ExtraUnitID)
}

func TestEngine_CatalogInvalidation(t *testing.T) {
	// Catalog edits become visible after InvalidateMeasurements.
	ctx := context.Background()
	st := seed()
	eng := engine.New(st)

	_, err := eng.SmallestMeasurementID(ctx, 1)
	require.NoError(t, err)

	// A milligram unit appears.
	st.SetMeasurements(
		measure.Measurement{ID: 1, Name: "Kilogram", Symbol: "kg", IsBase: true, BaseUnitID: 1, ToBase: dec("1")},
		measure.Measurement{ID: 2, Name: "Gram", Symbol: "g", BaseUnitID: 1, ToBase: dec("0.001")},
		measure.Measurement{ID: 3, Name: "Milligram", Symbol: "mg", BaseUnitID: 1, ToBase: dec("0.000001")},
	)

	id, err := eng.SmallestMeasurementID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, measure.ID(2), id, "stale snapshot until invalidated")

	// Value and unit come from the same view: both still speak grams.
	v, unitID, err := eng.SmallestMeasurement(ctx, dec("12.3"), 1)
	require.NoError(t, err)
	assert.True(t, v.Equal(dec("12300")))
	assert.Equal(t, measure.ID(2), unitID)

	eng.InvalidateMeasurements()
	id, err = eng.SmallestMeasurementID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, measure.ID(3), id)
}
