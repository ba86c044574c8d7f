/*
calculator.go - Demand aggregation

PURPOSE:
  Folds an order's menu selections into per-(function, raw material)
  requirements. Contributions in different sibling units are converted into
  the unit of the first contribution before summing; contributions from
  different unit families for the same raw material are a data-entry defect
  upstream and fail with IncompatibleUnitError rather than being coerced.

SEE ALSO:
  - types.go: Collaborator interfaces and result shape
  - ../allocation/sync.go: Reconciles this output with persisted rows
*/
package demand

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/catering-engine/measure"
)

// Calculator aggregates demand against one registry snapshot.
type Calculator struct {
	menus   MenuSource
	recipes RecipeSource
	conv    *measure.Converter
}

// NewCalculator builds a calculator over the given collaborators. reg must
// be an immutable view (a snapshot) so a computation never observes a
// half-edited measurement catalog.
func NewCalculator(menus MenuSource, recipes RecipeSource, reg measure.Registry) *Calculator {
	return &Calculator{
		menus:   menus,
		recipes: recipes,
		conv:    measure.NewConverter(reg),
	}
}

type key struct {
	functionID    FunctionID
	rawMaterialID RawMaterialID
}

// Compute returns the per-function demand of the order, one Requirement
// per (function, raw material), ordered by function then material.
// Inactive functions and inactive selections contribute nothing.
func (c *Calculator) Compute(ctx context.Context, orderID OrderID) ([]Requirement, error) {
	functions, err := c.menus.Functions(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load functions for order %d: %w", orderID, err)
	}

	acc := make(map[key]*Requirement)
	for _, fn := range functions {
		if !fn.Active {
			continue
		}
		selections, err := c.menus.Selections(ctx, orderID, fn.ID)
		if err != nil {
			return nil, fmt.Errorf("load selections for function %d: %w", fn.ID, err)
		}
		guests := decimal.NewFromInt(fn.GuestCount)

		for _, sel := range selections {
			if !sel.Active {
				continue
			}
			lines, err := c.recipes.Recipe(ctx, sel.MenuItemID)
			if err != nil {
				return nil, fmt.Errorf("load recipe for menu item %d: %w", sel.MenuItemID, err)
			}
			for _, line := range lines {
				qty := line.Quantity
				if !line.Fixed {
					qty = qty.Mul(guests)
				}
				if err := c.accumulate(acc, fn.ID, line.RawMaterialID, line.MeasurementID, qty); err != nil {
					return nil, err
				}
			}
		}
	}

	return sorted(acc), nil
}

// ComputeOrderLevel collapses the per-function demand across functions.
// FunctionID is zero on every returned Requirement.
func (c *Calculator) ComputeOrderLevel(ctx context.Context, orderID OrderID) ([]Requirement, error) {
	perFunction, err := c.Compute(ctx, orderID)
	if err != nil {
		return nil, err
	}

	acc := make(map[key]*Requirement)
	for _, req := range perFunction {
		if err := c.accumulate(acc, 0, req.RawMaterialID, req.MeasurementID, req.Required); err != nil {
			return nil, err
		}
	}
	return sorted(acc), nil
}

// accumulate adds qty (in unit measurementID) to the running total for the
// key, converting into the unit of the first contribution.
func (c *Calculator) accumulate(acc map[key]*Requirement, fnID FunctionID, rmID RawMaterialID, measurementID measure.ID, qty decimal.Decimal) error {
	k := key{functionID: fnID, rawMaterialID: rmID}
	existing, ok := acc[k]
	if !ok {
		acc[k] = &Requirement{
			FunctionID:    fnID,
			RawMaterialID: rmID,
			MeasurementID: measurementID,
			Required:      qty,
		}
		return nil
	}

	converted, err := c.conv.Convert(qty, measurementID, existing.MeasurementID)
	if err != nil {
		return fmt.Errorf("raw material %d: %w", rmID, err)
	}
	existing.Required = existing.Required.Add(converted)
	return nil
}

func sorted(acc map[key]*Requirement) []Requirement {
	out := make([]Requirement, 0, len(acc))
	for _, req := range acc {
		out = append(out, *req)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FunctionID != out[j].FunctionID {
			return out[i].FunctionID < out[j].FunctionID
		}
		return out[i].RawMaterialID < out[j].RawMaterialID
	})
	return out
}
