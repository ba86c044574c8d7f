/*
Package measure provides unit-of-measure definitions, conversion, and
packaging-based quantity adjustment for the catering engine.

PURPOSE:
  Every raw-material quantity in the system carries a measurement. This
  package owns the measurement model and the two computations built on it:
  converting a quantity between sibling units, and rounding a quantity up
  to a purchasable pack size.

KEY CONCEPTS IN THIS FILE (types.go):
  - Measurement: A unit of measure with a factor to its base unit
  - CustomRange: A packaging/pricing band for a measurement
  - Base unit: The canonical unit a family normalizes to (kg, L, pcs)
  - Smallest unit: The finest sibling unit, used to express remainders

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Flat families: Derived units reference their base directly (depth 1)
  3. Immutable snapshots: Callers compute against one registry view

USAGE:
  conv := measure.NewConverter(reg)
  ml, err := conv.Convert(decimal.NewFromInt(5), literID, milliliterID)

SEE ALSO:
  - registry.go: Registry interface, Snapshot, Cache
  - converter.go: Convert / SmallestUnit / SmallestValue
  - adjust.go: Packaging-band quantity adjustment
*/
package measure

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// ID identifies a measurement. IDs are assigned by the owning CRUD layer.
type ID int64

// =============================================================================
// MEASUREMENT - Unit of measure
// =============================================================================

// Measurement is a single unit of measure. A base unit has IsBase true,
// BaseUnitID equal to its own ID, and ToBase of exactly 1. A derived unit
// references its base directly; chained derivation is not permitted.
type Measurement struct {
	ID         ID
	Name       string
	Symbol     string
	IsBase     bool
	BaseUnitID ID
	// ToBase converts one of this unit into base units:
	// valueInBase = value * ToBase.
	ToBase decimal.Decimal
}

// Compatible reports whether two measurements share a base unit and can
// therefore be converted into each other.
func (m Measurement) Compatible(other Measurement) bool {
	return m.BaseUnitID == other.BaseUnitID
}

// =============================================================================
// CUSTOM RANGE - Packaging/pricing band
// =============================================================================

// CustomRange is a packaging band for a measurement: quantities falling in
// [Lower, Upper] are purchased in multiples of PackSize at Rate per pack.
// An Upper of zero means the band is open-ended. SupplierRate distinguishes
// the supplier's rate tiers from the default packaging bands; the two sets
// are selected independently and each set is non-overlapping.
type CustomRange struct {
	MeasurementID ID
	Lower         decimal.Decimal
	Upper         decimal.Decimal
	PackSize      decimal.Decimal
	Rate          decimal.Decimal
	SupplierRate  bool
}

// Contains reports whether qty falls inside the band.
func (r CustomRange) Contains(qty decimal.Decimal) bool {
	if qty.LessThan(r.Lower) {
		return false
	}
	return r.Upper.IsZero() || qty.LessThanOrEqual(r.Upper)
}

// =============================================================================
// ADJUSTMENT - Structured result of a packaging round-up
// =============================================================================

// Adjustment is the outcome of rounding a quantity to packaging constraints.
// Extra is the surplus between adjusted and requested quantity, expressed in
// the finest sibling unit so small remainders keep their precision.
type Adjustment struct {
	Adjusted       decimal.Decimal
	AdjustedUnitID ID
	Extra          decimal.Decimal
	ExtraUnitID    ID
}
