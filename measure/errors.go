/*
errors.go - Error types for the measurement family

PURPOSE:
  Sentinel errors for errors.Is checks plus structured errors carrying
  enough context (ids, quantities) for the caller to report a correctable
  problem to the user.

ERROR CATEGORIES:
  1. Lookup errors   - unknown measurement id
  2. Conversion errors - units from different families
  3. Configuration errors - no packaging band covers a quantity

USAGE:
  if errors.Is(err, measure.ErrUnknownMeasurement) { ... }

  var incompat *measure.IncompatibleUnitError
  if errors.As(err, &incompat) {
      log.Printf("cannot convert %d -> %d", incompat.FromID, incompat.ToID)
  }
*/
package measure

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnknownMeasurement is returned when a measurement id is not registered.
	ErrUnknownMeasurement = errors.New("unknown measurement")

	// ErrIncompatibleUnits is returned when a conversion is attempted between
	// units that do not share a base unit.
	ErrIncompatibleUnits = errors.New("incompatible measurement units")

	// ErrMissingConversionFactor is returned when no custom range covers a
	// packaging/rate lookup. This is a configuration defect, not user input.
	ErrMissingConversionFactor = errors.New("no custom range matches quantity")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// UnknownMeasurementError identifies the missing measurement.
type UnknownMeasurementError struct {
	ID ID
}

func (e *UnknownMeasurementError) Error() string {
	return fmt.Sprintf("unknown measurement id %d", e.ID)
}

func (e *UnknownMeasurementError) Unwrap() error { return ErrUnknownMeasurement }

// IncompatibleUnitError identifies both sides of a cross-family conversion.
type IncompatibleUnitError struct {
	FromID   ID
	ToID     ID
	FromBase ID
	ToBase   ID
}

func (e *IncompatibleUnitError) Error() string {
	return fmt.Sprintf("cannot convert measurement %d (base %d) to %d (base %d)",
		e.FromID, e.FromBase, e.ToID, e.ToBase)
}

func (e *IncompatibleUnitError) Unwrap() error { return ErrIncompatibleUnits }

// MissingConversionFactorError identifies the failed band lookup.
type MissingConversionFactorError struct {
	MeasurementID ID
	Quantity      string // decimal rendered as string for the message
	SupplierRate  bool
}

func (e *MissingConversionFactorError) Error() string {
	kind := "packaging"
	if e.SupplierRate {
		kind = "supplier rate"
	}
	return fmt.Sprintf("no %s range for measurement %d covers quantity %s",
		kind, e.MeasurementID, e.Quantity)
}

func (e *MissingConversionFactorError) Unwrap() error { return ErrMissingConversionFactor }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is correctable by the caller's input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnknownMeasurement) ||
		errors.Is(err, ErrIncompatibleUnits)
}
