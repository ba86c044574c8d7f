/*
adjust.go - Packaging-band quantity adjustment

PURPOSE:
  Raw materials are purchased in packs (1 kg bags, 5 L cans, supplier rate
  tiers). Policy turns a required quantity into the purchasable "adjusted"
  quantity by rounding up to the applicable band's pack size, and reports
  the surplus ("extra") in the family's smallest unit so a 700 g remainder
  on a kg order is not flattened to 0.7-of-something coarse.

BAND SELECTION:
  A measurement carries two independent band sets: default packaging bands
  and supplier rate tiers (CustomRange.SupplierRate). The lookup picks the
  set by the supplierRate flag, then the band with the highest lower bound
  still containing the quantity. A quantity below every band is clamped up
  to the lowest band's lower bound. No covering band at all is a
  configuration defect (MissingConversionFactorError).

INVARIANTS:
  - adjusted >= quantity whenever adjustment is on (never under-supply)
  - extra == adjusted - quantity, expressed in the smallest sibling unit
  - quantity already on a pack boundary yields zero extra

SEE ALSO:
  - converter.go: SmallestUnit / SmallestValue
  - registry.go: CustomRanges ordering guarantee
*/
package measure

import (
	"github.com/shopspring/decimal"
)

// Policy derives purchasable quantities from required quantities.
type Policy struct {
	reg  Registry
	conv *Converter
}

func NewPolicy(reg Registry) *Policy {
	return &Policy{reg: reg, conv: NewConverter(reg)}
}

// Adjust rounds quantity up to the packaging constraints of measurement id.
//
// When adjust is false the quantity is purchasable as-is: it is returned
// unchanged with zero extra and no band lookup happens. When adjust is
// true, supplierRate selects between the supplier's rate tiers and the
// default packaging bands.
func (p *Policy) Adjust(quantity decimal.Decimal, id ID, adjust, supplierRate bool) (Adjustment, error) {
	if _, err := p.reg.Measurement(id); err != nil {
		return Adjustment{}, err
	}

	if !adjust {
		return Adjustment{
			Adjusted:       quantity,
			AdjustedUnitID: id,
			Extra:          decimal.Zero,
			ExtraUnitID:    id,
		}, nil
	}

	band, clamped, err := p.selectBand(quantity, id, supplierRate)
	if err != nil {
		return Adjustment{}, err
	}

	var adjusted decimal.Decimal
	if clamped {
		// Below every band: the smallest purchasable amount is the lowest
		// band's lower bound.
		adjusted = band.Lower
	} else {
		adjusted = roundUpToPack(quantity, band.PackSize)
	}

	extra := adjusted.Sub(quantity)
	smallest, err := p.conv.SmallestUnit(id)
	if err != nil {
		return Adjustment{}, err
	}
	extraSmall, err := p.conv.Convert(extra, id, smallest.ID)
	if err != nil {
		return Adjustment{}, err
	}

	return Adjustment{
		Adjusted:       adjusted,
		AdjustedUnitID: id,
		Extra:          extraSmall,
		ExtraUnitID:    smallest.ID,
	}, nil
}

// selectBand returns the applicable band for quantity. clamped is true when
// the quantity fell below every band and the caller must purchase the
// lowest band's minimum instead of rounding.
func (p *Policy) selectBand(quantity decimal.Decimal, id ID, supplierRate bool) (band CustomRange, clamped bool, err error) {
	all, err := p.reg.CustomRanges(id)
	if err != nil {
		return CustomRange{}, false, err
	}

	var set []CustomRange
	for _, r := range all {
		if r.SupplierRate == supplierRate {
			set = append(set, r)
		}
	}
	if len(set) == 0 {
		return CustomRange{}, false, missingRange(quantity, id, supplierRate)
	}

	// Ranges arrive ordered by lower bound; the last one containing the
	// quantity is the tightest tier.
	for i := len(set) - 1; i >= 0; i-- {
		if !set[i].Contains(quantity) {
			continue
		}
		if !set[i].PackSize.IsPositive() {
			return CustomRange{}, false, missingRange(quantity, id, supplierRate)
		}
		return set[i], false, nil
	}

	if quantity.LessThan(set[0].Lower) {
		return set[0], true, nil
	}
	return CustomRange{}, false, missingRange(quantity, id, supplierRate)
}

func roundUpToPack(quantity, pack decimal.Decimal) decimal.Decimal {
	packs := quantity.Div(pack).Ceil()
	return packs.Mul(pack)
}

func missingRange(quantity decimal.Decimal, id ID, supplierRate bool) error {
	return &MissingConversionFactorError{
		MeasurementID: id,
		Quantity:      quantity.String(),
		SupplierRate:  supplierRate,
	}
}
