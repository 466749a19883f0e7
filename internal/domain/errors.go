package domain

import "fmt"

// Error types for consistent error handling across the engine.

// ErrValidation indicates a validation error (bad input). Inputs are
// rejected before any table generation begins.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrUnknownLoanType indicates the selector received a loan-type tag with
// no registered strategy. The engine never silently defaults.
type ErrUnknownLoanType struct {
	Kind LoanKind
}

func (e *ErrUnknownLoanType) Error() string {
	return fmt.Sprintf("unknown loan type: %s", e.Kind)
}

// ErrNoConvergence indicates the CET solver exceeded its iteration cap.
// An unconverged estimate is never returned.
type ErrNoConvergence struct {
	Iterations int
	Residual   string
}

func (e *ErrNoConvergence) Error() string {
	return fmt.Sprintf("cet solver did not converge after %d iterations (residual %s)", e.Iterations, e.Residual)
}

// ErrIndexUnavailable indicates the rate-history provider has no rate for
// an index, even after falling back to earlier periods.
type ErrIndexUnavailable struct {
	Index string
	Month string
}

func (e *ErrIndexUnavailable) Error() string {
	return fmt.Sprintf("no rate available for index %s at %s", e.Index, e.Month)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}
