/*
errors.go - Centralized error types for the finance and rollover packages

PURPOSE:
  All error types in one place for consistency and discoverability.
  The rollover engine wraps these errors with fiscal-year context.

ERROR CATEGORIES:
  1. Input-sufficiency errors - fatal to one realization, never to a batch
  2. Parameter errors - malformed decision variables or rate bounds
  3. Store errors - result persistence failures

  Covenant violations and fund-floor failures are NOT errors. They are
  recorded in FinancialMetrics and the simulation continues.

USAGE:
  if errors.Is(err, finance.ErrInsufficientHistory) {
      // skip this realization, report which precondition failed
  }

SEE ALSO:
  - rollover/realization.go: Wraps these errors per realization
  - rollover/batch.go: Isolates errors per realization
*/
package finance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientHistory is returned when seed Actuals or Budgets are
	// missing for the years preceding the first simulated fiscal year.
	ErrInsufficientHistory = errors.New("insufficient historical years")

	// ErrEndBeforeStart is returned when the end fiscal year precedes the start.
	ErrEndBeforeStart = errors.New("end fiscal year before start fiscal year")

	// ErrFeedTooShort is returned when the delivery feed does not cover every
	// simulated fiscal year.
	ErrFeedTooShort = errors.New("delivery feed does not cover simulated fiscal years")

	// ErrInvalidRateBounds is returned when highBound < lowBound.
	ErrInvalidRateBounds = errors.New("invalid rate bounds: high bound below low bound")

	// ErrNonPositiveDemand is returned when a rate is requested for zero demand.
	ErrNonPositiveDemand = errors.New("demand estimate must be positive")

	// ErrInvalidParameter is returned when a scenario parameter is out of range.
	ErrInvalidParameter = errors.New("invalid scenario parameter")

	// ErrUnknownFund is returned when a fund name cannot be resolved.
	ErrUnknownFund = errors.New("unknown fund")

	// ErrUnknownProject is returned when a trigger references a project that
	// is not in the project catalog.
	ErrUnknownProject = errors.New("unknown infrastructure project")

	// ErrDuplicateRealization is returned when a realization result is saved
	// twice for the same run. Results are append-only.
	ErrDuplicateRealization = errors.New("realization already recorded")

	// ErrRunNotFound is returned when a referenced run doesn't exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrRealizationNotFound is returned when a run has no stored result for
	// the requested realization.
	ErrRealizationNotFound = errors.New("realization not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InputError names the fiscal year and input that failed a sufficiency check.
type InputError struct {
	FiscalYear FiscalYear
	Field      string
	Err        error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%v: %s for %s", e.Err, e.Field, e.FiscalYear)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// ParameterError names a scenario parameter that is out of range.
type ParameterError struct {
	Name  string
	Value string
	Rule  string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid scenario parameter %s=%s: %s", e.Name, e.Value, e.Rule)
}

func (e *ParameterError) Unwrap() error {
	return ErrInvalidParameter
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsInputError returns true if the error means a realization could not be
// computed from the inputs it was given.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInsufficientHistory) ||
		errors.Is(err, ErrEndBeforeStart) ||
		errors.Is(err, ErrFeedTooShort) ||
		errors.Is(err, ErrUnknownProject)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return IsInputError(err) ||
		errors.Is(err, ErrInvalidParameter) ||
		errors.Is(err, ErrInvalidRateBounds) ||
		errors.Is(err, ErrUnknownFund)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound) || errors.Is(err, ErrRealizationNotFound)
}
