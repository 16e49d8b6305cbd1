package model

import "errors"

var (
	ErrProviderUnavailable   = errors.New("provider unavailable")
	ErrInsufficientHistory   = errors.New("insufficient history")
	ErrPersistenceFailure    = errors.New("persistence failure")
	ErrCancellationRequested = errors.New("cancellation requested")
)

// FailureReason classifies why a symbol produced no bars.
type FailureReason string

const (
	ReasonInsufficientHistory FailureReason = "InsufficientHistory"
	ReasonProviderError       FailureReason = "ProviderError"
	ReasonCancelled           FailureReason = "Cancelled"
)

// FailedSymbol records a symbol that was dropped from a fetch and why.
type FailedSymbol struct {
	Symbol Symbol
	Reason FailureReason
	Err    error
}

func (f FailedSymbol) Error() string {
	if f.Err == nil {
		return f.Symbol.FullCode() + ": " + string(f.Reason)
	}
	return f.Symbol.FullCode() + ": " + string(f.Reason) + ": " + f.Err.Error()
}

// Unwrap exposes the underlying cause.
func (f FailedSymbol) Unwrap() error { return f.Err }
