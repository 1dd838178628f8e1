package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyTerminal   = errors.New("already terminal")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrCredentialExpired = errors.New("credential expired")
	ErrNoRefreshToken    = errors.New("credential has no refresh token")

	ErrRejected    = errors.New("rejected by slack")
	ErrAuthExpired = errors.New("slack rejected the credential")
	ErrTransient   = errors.New("transient delivery failure")
)

// ValidationError reports malformed or incomplete caller input.
type ValidationError struct {
	Missing []string
	Reason  string
}

func (e *ValidationError) add(field string) {
	e.Missing = append(e.Missing, field)
}

func (e *ValidationError) orNil() *ValidationError {
	if len(e.Missing) == 0 && e.Reason == "" {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	return strings.Join(parts, "; ")
}

// Invalid builds a ValidationError from a free-form reason.
func Invalid(reason string) error {
	return &ValidationError{Reason: reason}
}

// TerminalError is returned when a transition is attempted on a message that
// already left the pending state. State says where it ended up.
type TerminalError struct {
	ID    int64
	State State
}

func (e *TerminalError) Error() string {
	switch e.State {
	case StateSent:
		return fmt.Sprintf("message %d has already been sent", e.ID)
	case StateCancelled:
		return fmt.Sprintf("message %d is already cancelled", e.ID)
	case StateFailed:
		return fmt.Sprintf("message %d has already failed", e.ID)
	}
	return fmt.Sprintf("message %d is in state %s", e.ID, e.State)
}

func (e *TerminalError) Is(target error) bool {
	return target == ErrAlreadyTerminal || target == ErrInvalidTransition
}

// DeliveryError carries a non-delivered classification back to a synchronous caller.
type DeliveryError struct {
	Outcome Outcome
	Reason  string
}

func (e *DeliveryError) Error() string {
	if e.Reason == "" {
		return e.Outcome.String()
	}
	return e.Outcome.String() + ": " + e.Reason
}

func (e *DeliveryError) Is(target error) bool {
	switch e.Outcome {
	case Rejected:
		return target == ErrRejected
	case AuthExpired:
		return target == ErrAuthExpired
	case Transient:
		return target == ErrTransient
	}
	return false
}

// Kind names the failure class of err for callers that render messages.
func Kind(err error) string {
	var v *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &v):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyTerminal):
		return "already_terminal"
	case errors.Is(err, ErrCredentialExpired):
		return "credential_expired"
	case errors.Is(err, ErrNoRefreshToken):
		return "no_refresh_token"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrAuthExpired):
		return "auth_expired"
	case errors.Is(err, ErrTransient):
		return "transient"
	}
	return "internal"
}
