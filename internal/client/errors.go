package client

import (
	"context"
	"errors"
	"fmt"

	"feedprobe/internal/protocol"
)

// Common client error types
var (
	ErrNetworkError      = fmt.Errorf("network error")
	ErrMalformedResponse = fmt.Errorf("malformed response")
	ErrAmbiguousResult   = fmt.Errorf("ambiguous result")
	ErrInvalidPackage    = fmt.Errorf("invalid package")
	ErrInvalidSource     = fmt.Errorf("invalid source")
	ErrInvalidOperation  = fmt.Errorf("invalid operation")
)

// FeedError classifies a client failure; Type is one of the Err* values
type FeedError struct {
	Type    error
	Message string
	Details map[string]interface{}
}

func (e *FeedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%v: %s", e.Type, e.Message)
	}
	return e.Type.Error()
}

func (e *FeedError) Unwrap() error {
	return e.Type
}

// NewFeedError creates a new feed error
func NewFeedError(errType error, message string) *FeedError {
	return &FeedError{
		Type:    errType,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// wrapProtocolError maps wire-level failures onto the client taxonomy.
// Context errors pass through so callers can still match them.
func wrapProtocolError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, protocol.ErrTransport):
		return NewFeedError(ErrNetworkError, fmt.Sprintf("%s: %v", op, err))
	case errors.Is(err, protocol.ErrDecode):
		return NewFeedError(ErrMalformedResponse, fmt.Sprintf("%s: %v", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isFatal reports errors that must stop polling instead of counting as
// "not visible yet"
func isFatal(err error) bool {
	return errors.Is(err, ErrAmbiguousResult) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
