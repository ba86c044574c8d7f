/*
Package demand computes raw-material demand for a booked order.

PURPOSE:
  A booked order consists of event functions (distinct service occasions,
  each with its own guest count) with selected menu items. Each menu item
  carries a recipe: per-serving raw-material quantities. This package folds
  selections x guest counts into the total quantity of each raw material a
  function needs, which the allocation package then reconciles against
  persisted purchase rows.

KEY CONCEPTS IN THIS FILE (types.go):
  - EventFunction: One service occasion with a guest count
  - MenuSelection: A selected menu item (custom packages arrive expanded)
  - RecipeLine: Per-serving quantity of one raw material
  - Requirement: Aggregated demand for one (function, raw material)

COLLABORATORS:
  Menu preparation, recipes, and raw-material metadata are owned by
  external services; this package consumes them through the MenuSource,
  RecipeSource, and MaterialSource interfaces.

SEE ALSO:
  - calculator.go: The aggregation itself
*/
package demand

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/catering-engine/measure"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OrderID int64
type FunctionID int64
type MenuItemID int64
type RawMaterialID int64

// =============================================================================
// DOMAIN TYPES
// =============================================================================

// RawMaterial carries the purchasing defaults the allocation layer needs.
type RawMaterial struct {
	ID                   RawMaterialID
	Name                 string
	CategoryID           int64
	DefaultMeasurementID measure.ID

	// AdjustQuantity turns packaging round-up on for this material.
	AdjustQuantity bool
	// SupplierRate selects the supplier's rate tiers over default packaging.
	SupplierRate bool
}

// EventFunction is one service occasion within an order.
type EventFunction struct {
	ID         FunctionID
	Name       string
	GuestCount int64
	Active     bool
}

// MenuSelection is one selected menu item within a function. Custom
// packages are expanded into their member items by the menu-preparation
// collaborator before they reach this package; FromPackage records the
// provenance.
type MenuSelection struct {
	MenuItemID  MenuItemID
	FromPackage bool
	Active      bool
}

// RecipeLine is one raw-material ingredient of a menu item. Quantity is
// per serving unless Fixed is set, in which case the line contributes
// Quantity once per function regardless of guest count (decoration,
// fuel, table stock).
type RecipeLine struct {
	RawMaterialID RawMaterialID
	MeasurementID measure.ID
	Quantity      decimal.Decimal
	Fixed         bool
}

// Requirement is the aggregated demand for one raw material. FunctionID
// is zero in order-level views, where demand is collapsed across functions.
type Requirement struct {
	FunctionID    FunctionID
	RawMaterialID RawMaterialID
	MeasurementID measure.ID
	Required      decimal.Decimal
}

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// MenuSource exposes the order's functions and their selections.
type MenuSource interface {
	Functions(ctx context.Context, orderID OrderID) ([]EventFunction, error)
	Selections(ctx context.Context, orderID OrderID, functionID FunctionID) ([]MenuSelection, error)
}

// RecipeSource exposes per-serving recipe lines for a menu item.
type RecipeSource interface {
	Recipe(ctx context.Context, menuItemID MenuItemID) ([]RecipeLine, error)
}

// MaterialSource exposes raw-material metadata.
type MaterialSource interface {
	RawMaterial(ctx context.Context, id RawMaterialID) (RawMaterial, error)
}
