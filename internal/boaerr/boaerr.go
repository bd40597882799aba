// Package boaerr defines the closed error taxonomy every public BOA
// operation fails with, using a validation-aggregation pattern and the
// fmt.Errorf("verb noun: %w", err) wrapping idiom throughout.
package boaerr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is one of the closed set of error kinds from the error handling design.
type Kind string

const (
	KindNotFound               Kind = "NotFound"
	KindValidationError        Kind = "ValidationError"
	KindSpecLoadError          Kind = "SpecLoadError"
	KindSpecValidationError    Kind = "SpecValidationError"
	KindInvalidStateTransition Kind = "InvalidStateTransition"
	KindCampaignLocked         Kind = "CampaignLocked"
	KindDecisionAlreadyExists  Kind = "DecisionAlreadyExists"
	KindPluginNotFound         Kind = "PluginNotFound"
	KindExecutionError         Kind = "ExecutionError"
	KindJobNotFound            Kind = "JobNotFound"
	KindJobAlreadyRunning      Kind = "JobAlreadyRunning"
	KindRepositoryError        Kind = "RepositoryError"
)

// Error is the concrete error type returned by every public BOA operation.
// It carries a Kind (for errors.Is-style matching against the sentinels
// below), a human message, and optional structured context.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is makes errors.Is(err, KindNotFound-shaped sentinel) work by comparing Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func sentinel(k Kind) *Error { return &Error{Kind: k} }

// Sentinels for errors.Is comparison, e.g. errors.Is(err, boaerr.NotFound).
var (
	NotFound               = sentinel(KindNotFound)
	ValidationError        = sentinel(KindValidationError)
	SpecLoadError          = sentinel(KindSpecLoadError)
	SpecValidationError    = sentinel(KindSpecValidationError)
	InvalidStateTransition = sentinel(KindInvalidStateTransition)
	CampaignLocked         = sentinel(KindCampaignLocked)
	DecisionAlreadyExists  = sentinel(KindDecisionAlreadyExists)
	PluginNotFound         = sentinel(KindPluginNotFound)
	ExecutionError         = sentinel(KindExecutionError)
	JobNotFound            = sentinel(KindJobNotFound)
	JobAlreadyRunning      = sentinel(KindJobAlreadyRunning)
	RepositoryError        = sentinel(KindRepositoryError)
)

// New builds an Error of the given kind with a formatted message.
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind, wrapping an underlying cause.
func Wrap(k Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

// NotFoundf is a convenience constructor for the common NotFound case.
func NotFoundf(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// Locked reports the CampaignLocked error, carrying the current holder and
// its expiry so callers can re-drive the operation once it clears.
type Locked struct {
	CampaignID string
	Holder     string
	ExpiresAt  time.Time
}

func (l *Locked) Error() string {
	return fmt.Sprintf("CampaignLocked: campaign %s is held by %q until %s",
		l.CampaignID, l.Holder, l.ExpiresAt.Format(time.RFC3339))
}

func (l *Locked) Is(target error) bool {
	return errors.Is(target, CampaignLocked)
}

// ValidationIssues aggregates multiple validation messages into a single
// SpecValidationError: one error that renders every accumulated message,
// not just the first.
type ValidationIssues struct {
	Messages []string
}

func (v *ValidationIssues) add(format string, args ...any) {
	v.Messages = append(v.Messages, fmt.Sprintf(format, args...))
}

func (v *ValidationIssues) Error() string {
	if len(v.Messages) == 0 {
		return "SpecValidationError: specification validation failed"
	}
	return fmt.Sprintf("SpecValidationError: specification validation failed:\n  - %s",
		strings.Join(v.Messages, "\n  - "))
}

func (v *ValidationIssues) Is(target error) bool {
	return errors.Is(target, SpecValidationError)
}

// NewValidationIssues builds a ValidationIssues error from a list of messages.
// Returns nil if messages is empty, so callers can write
// `if err := boaerr.NewValidationIssues(msgs); err != nil { return err }`.
func NewValidationIssues(messages []string) error {
	if len(messages) == 0 {
		return nil
	}
	return &ValidationIssues{Messages: messages}
}
