package services

import (
	"errors"
	"fmt"
)

// Error kinds. Every business-rule failure returned by a service wraps exactly
// one of these, so callers can branch with errors.Is.
var (
	ErrNotFound           = errors.New("requested resource not found")
	ErrInvalidState       = errors.New("operation not allowed in the current tournament state")
	ErrInvalidTransition  = errors.New("invalid tournament status transition")
	ErrCapacityExceeded   = errors.New("tournament is full")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrConflict           = errors.New("conflicting concurrent modification")
	ErrForbiddenOperation = errors.New("operation not allowed for the current user")
	// ErrTeamNameConflict is its own kind, not an ErrConflict: a duplicate name
	// is a client error and retrying it never helps.
	ErrTeamNameConflict = errors.New("team name already exists in this tournament")

	// ErrNothingToReset is a soft outcome, never returned as an error by
	// ResetGroups; it names the outcome for logs and responses.
	ErrNothingToReset = errors.New("tournament has no groups to reset")
)

// RuleError carries the kind plus the offending field and limit so callers can
// render a specific message ("tournament is full (16 of 16 teams)").
type RuleError struct {
	Kind    error
	Field   string
	Limit   *int
	Message string
}

func (e *RuleError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *RuleError) Unwrap() error {
	return e.Kind
}

func ruleError(kind error, field string, format string, args ...interface{}) *RuleError {
	return &RuleError{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

func limitedRuleError(kind error, field string, limit int, format string, args ...interface{}) *RuleError {
	e := ruleError(kind, field, format, args...)
	e.Limit = &limit
	return e
}

// KindName is the stable wire name of err's kind, or "" for unclassified errors.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrInvalidState):
		return "InvalidState"
	case errors.Is(err, ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, ErrCapacityExceeded):
		return "CapacityExceeded"
	case errors.Is(err, ErrInvalidArgument):
		return "InvalidArgument"
	case errors.Is(err, ErrConflict):
		return "Conflict"
	case errors.Is(err, ErrForbiddenOperation):
		return "Forbidden"
	case errors.Is(err, ErrTeamNameConflict):
		return "TeamNameConflict"
	case errors.Is(err, ErrNothingToReset):
		return "NothingToReset"
	}
	return ""
}
