package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrUpstreamParse - the requirement parser failed or returned an error payload (session left untouched)
	ErrUpstreamParse = errors.New("upstream parse failure")

	// ErrIllegalTransition - the dialog state machine rejected a state change
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrNoCurrentQuestion - an answer arrived while no required question is pending
	ErrNoCurrentQuestion = errors.New("no current question")

	// ErrApprovalBlocked - approval requested while required questions remain unanswered
	ErrApprovalBlocked = errors.New("approval blocked")

	// ErrUnknownQuestion - an answer referenced a stale or unknown question id
	ErrUnknownQuestion = errors.New("unknown question")

	// ErrInvalidInput - invalid input (show validation error to the caller)
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound - resource not found (unknown session)
	ErrNotFound = errors.New("not found")

	// ErrConflict - conflict (retry with backoff)
	ErrConflict = errors.New("conflict")

	// ErrTransient - transient error (retry with backoff)
	ErrTransient = errors.New("transient error")

	// ErrInvalidModelOutput - model returned malformed structured output
	ErrInvalidModelOutput = errors.New("invalid model output")

	// ErrInternal - internal error
	ErrInternal = errors.New("internal error")
)
