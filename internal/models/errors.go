package models

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why a ticker could not be resolved.
type ErrorKind string

const (
	// ErrorKindRateLimitExceeded - provider quota exhausted after retries
	ErrorKindRateLimitExceeded ErrorKind = "rate_limit_exceeded"
	// ErrorKindProviderData - malformed or unexpected provider payload
	ErrorKindProviderData ErrorKind = "provider_data_error"
	// ErrorKindNoDataForDate - nearest-date search exhausted the lookback window
	ErrorKindNoDataForDate ErrorKind = "no_data_for_date"
	// ErrorKindTransport - network level failure
	ErrorKindTransport ErrorKind = "transport_error"
	// ErrorKindInvalidTicker - no ticker candidate produced data
	ErrorKindInvalidTicker ErrorKind = "invalid_ticker"
)

// Retryable reports whether errors of this kind are retried with backoff.
func (k ErrorKind) Retryable() bool {
	return k == ErrorKindRateLimitExceeded || k == ErrorKindTransport
}

// Sentinels for errors.Is comparisons by kind.
var (
	ErrRateLimitExceeded = &PriceError{Kind: ErrorKindRateLimitExceeded}
	ErrProviderData      = &PriceError{Kind: ErrorKindProviderData}
	ErrNoDataForDate     = &PriceError{Kind: ErrorKindNoDataForDate}
	ErrTransport         = &PriceError{Kind: ErrorKindTransport}
	ErrInvalidTicker     = &PriceError{Kind: ErrorKindInvalidTicker}
)

// PriceError is a classified price resolution error.
type PriceError struct {
	Kind    ErrorKind
	Ticker  string
	Message string
	Err     error
}

// NewPriceError creates a classified error with a formatted message
func NewPriceError(kind ErrorKind, ticker string, format string, args ...interface{}) *PriceError {
	return &PriceError{
		Kind:    kind,
		Ticker:  ticker,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapPriceError classifies err. The message is taken from err.
func WrapPriceError(kind ErrorKind, ticker string, err error) *PriceError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &PriceError{
		Kind:    kind,
		Ticker:  ticker,
		Message: msg,
		Err:     err,
	}
}

func (e *PriceError) Error() string {
	switch {
	case e.Ticker != "" && e.Message != "":
		return fmt.Sprintf("%s: %s: %s", e.Ticker, e.Kind, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return string(e.Kind)
	}
}

func (e *PriceError) Unwrap() error {
	return e.Err
}

// Is matches any PriceError of the same kind, so errors.Is(err, ErrNoDataForDate) works.
func (e *PriceError) Is(target error) bool {
	t, ok := target.(*PriceError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Ticker == "" || t.Ticker == e.Ticker)
}

// KindOf returns the ErrorKind of err.
// Context cancellation and deadline errors classify as transport failures;
// anything unclassified is a provider data error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *PriceError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTransport
	}
	return ErrorKindProviderData
}
