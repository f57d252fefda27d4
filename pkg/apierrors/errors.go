// Package apierrors provides the engine's unified error taxonomy (§7): a
// fixed set of kinds, a stable string code per kind so UIs can localize, and
// an HTTP status for the reference transport (§6).
package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the error taxonomy entries enumerated in §7.
type Kind string

const (
	KindNotFound            Kind = "NOT_FOUND"
	KindInvalidTransition    Kind = "INVALID_TRANSITION"
	KindOutOfRange           Kind = "OUT_OF_RANGE"
	KindInsufficientBalance  Kind = "INSUFFICIENT_BALANCE"
	KindConstraintViolation  Kind = "CONSTRAINT_VIOLATION"
	KindIntegrityError       Kind = "INTEGRITY_ERROR"
	KindDeadlineExceeded     Kind = "DEADLINE_EXCEEDED"
	KindCancelled            Kind = "CANCELLED"
	KindPolicyRejected       Kind = "POLICY_REJECTED"
	KindFederationRejected   Kind = "FEDERATION_REJECTED"
)

// EngineError is a structured error carrying a taxonomy kind, a
// human-readable message, a stable code, an HTTP status for the reference
// transport, and an optional structured cause.
type EngineError struct {
	Kind       Kind                   `json:"kind"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a structured detail to the error and returns it.
func (e *EngineError) WithDetails(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new EngineError.
func New(kind Kind, message string, httpStatus int) *EngineError {
	return &EngineError{Kind: kind, Message: message, HTTPStatus: httpStatus}
}

// Wrap wraps an existing error with taxonomy information.
func Wrap(kind Kind, message string, httpStatus int, err error) *EngineError {
	return &EngineError{Kind: kind, Message: message, HTTPStatus: httpStatus, Err: err}
}

// NotFound reports an unknown id in any call (§4.x).
func NotFound(resource, id string) *EngineError {
	return New(KindNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

// InvalidTransition reports a state-machine transition that is not legal
// from the entity's current state (§4.x), e.g. casting a vote on a
// non-existent scenario or completing a task that is not in_progress.
func InvalidTransition(entity, from, to string) *EngineError {
	return New(KindInvalidTransition, "invalid state transition", http.StatusConflict).
		WithDetails("entity", entity).
		WithDetails("from", from).
		WithDetails("to", to)
}

// OutOfRange reports a numeric input outside policy bounds where the spec
// does not authorize silent clamping.
func OutOfRange(field string, min, max interface{}) *EngineError {
	return New(KindOutOfRange, "value out of range", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("min", min).
		WithDetails("max", max)
}

// InsufficientBalance reports a redemption whose cost exceeds the account
// balance (§4.D, §8 scenario 6).
func InsufficientBalance(required, available float64) *EngineError {
	return New(KindInsufficientBalance, "insufficient ITC balance", http.StatusPaymentRequired).
		WithDetails("required", required).
		WithDetails("available", available)
}

// ConstraintViolation reports a norm violation (e.g. a production
// constraint or ethics safeguard) that blocks the operation.
func ConstraintViolation(message string) *EngineError {
	return New(KindConstraintViolation, message, http.StatusUnprocessableEntity)
}

// IntegrityError reports ledger corruption. It is fatal at the subsystem
// level: callers MUST refuse further writes until the ledger is audited.
func IntegrityError(message string, err error) *EngineError {
	return Wrap(KindIntegrityError, message, http.StatusInternalServerError, err)
}

// DeadlineExceeded reports that a bounded computation (valuation,
// bottleneck detection, signal analysis) exceeded its deadline with no
// mutation performed.
func DeadlineExceeded(operation string) *EngineError {
	return New(KindDeadlineExceeded, "operation exceeded its deadline", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
}

// Cancelled reports that a cancellable computation returned early via its
// cancellation token with no partial ledger entry produced.
func Cancelled(operation string) *EngineError {
	return New(KindCancelled, "operation was cancelled", http.StatusRequestTimeout).
		WithDetails("operation", operation)
}

// PolicyRejected reports an operation rejected by policy, e.g. dispatch
// attempted without an approved decision.
func PolicyRejected(message string) *EngineError {
	return New(KindPolicyRejected, message, http.StatusForbidden)
}

// FederationRejected reports a federation envelope rejected for signature
// or format reasons.
func FederationRejected(message string) *EngineError {
	return New(KindFederationRejected, message, http.StatusBadRequest)
}

// Is reports whether err carries the given taxonomy kind.
func Is(err error, kind Kind) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind == kind
	}
	return false
}

// Get extracts an *EngineError from an error chain, if present.
func Get(err error) *EngineError {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee
	}
	return nil
}

// HTTPStatus returns the HTTP status code associated with err, defaulting
// to 500 for errors outside the taxonomy.
func HTTPStatus(err error) int {
	if ee := Get(err); ee != nil {
		return ee.HTTPStatus
	}
	return http.StatusInternalServerError
}
