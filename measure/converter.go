/*
converter.go - Conversion between sibling units

PURPOSE:
  Converts quantities between units sharing a base, and finds the finest
  ("smallest") unit of a family. Conversion always normalizes through the
  base unit: value * from.ToBase / to.ToBase.

SEE ALSO:
  - registry.go: Registry the converter reads from
  - adjust.go: Uses SmallestUnit to express remainders
*/
package measure

import (
	"github.com/shopspring/decimal"
)

// Converter performs unit conversions against one Registry view.
type Converter struct {
	reg Registry
}

func NewConverter(reg Registry) *Converter {
	return &Converter{reg: reg}
}

// Convert expresses value (given in unit fromID) in unit toID.
// Fails with IncompatibleUnitError when the units do not share a base.
func (c *Converter) Convert(value decimal.Decimal, fromID, toID ID) (decimal.Decimal, error) {
	if fromID == toID {
		return value, nil
	}
	from, err := c.reg.Measurement(fromID)
	if err != nil {
		return decimal.Zero, err
	}
	to, err := c.reg.Measurement(toID)
	if err != nil {
		return decimal.Zero, err
	}
	if !from.Compatible(to) {
		return decimal.Zero, &IncompatibleUnitError{
			FromID:   fromID,
			ToID:     toID,
			FromBase: from.BaseUnitID,
			ToBase:   to.BaseUnitID,
		}
	}
	return value.Mul(from.ToBase).Div(to.ToBase), nil
}

// SmallestUnit returns the finest-granularity measurement in the family of
// id, i.e. the sibling with the minimal factor to base. A family always
// contains at least the base unit, so this cannot come back empty for a
// registered id.
func (c *Converter) SmallestUnit(id ID) (Measurement, error) {
	family, err := c.reg.Family(id)
	if err != nil {
		return Measurement{}, err
	}
	smallest := family[0]
	for _, m := range family[1:] {
		if m.ToBase.LessThan(smallest.ToBase) {
			smallest = m
		}
	}
	return smallest, nil
}

// SmallestValue expresses value (given in unit id) in the family's
// smallest unit.
func (c *Converter) SmallestValue(value decimal.Decimal, id ID) (decimal.Decimal, error) {
	smallest, err := c.SmallestUnit(id)
	if err != nil {
		return decimal.Zero, err
	}
	return c.Convert(value, id, smallest.ID)
}
