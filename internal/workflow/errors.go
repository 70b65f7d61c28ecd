package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when the referenced request code does not exist.
	ErrNotFound = errors.New("request not found")

	// ErrAlreadyTerminal is returned when a transition targets a declined or
	// completed request.
	ErrAlreadyTerminal = errors.New("request is in a terminal state")

	// ErrUnauthorized is returned when the acting role does not match the
	// role granted to the stage currently awaiting action.
	ErrUnauthorized = errors.New("role not authorized for current stage")

	// ErrIncompleteEvidence is returned when required evidence fields are
	// missing or empty.
	ErrIncompleteEvidence = errors.New("incomplete evidence")

	// ErrConflict is returned when a concurrent transition advanced the
	// request first; the caller should reload and reassess.
	ErrConflict = errors.New("concurrent transition conflict")

	// ErrConfiguration indicates an inconsistent workflow definition. It is
	// a deployment bug, not a user-correctable condition.
	ErrConfiguration = errors.New("workflow configuration error")
)

// EvidenceError names the evidence fields a transition was missing. It
// unwraps to ErrIncompleteEvidence.
type EvidenceError struct {
	Fields []string
}

func (e *EvidenceError) Error() string {
	return fmt.Sprintf("incomplete evidence: missing %s", strings.Join(e.Fields, ", "))
}

func (e *EvidenceError) Unwrap() error {
	return ErrIncompleteEvidence
}

// MissingFields extracts the missing field names from err when it carries an
// EvidenceError, for callers building structured responses.
func MissingFields(err error) []string {
	var ev *EvidenceError
	if errors.As(err, &ev) {
		return ev.Fields
	}
	return nil
}
