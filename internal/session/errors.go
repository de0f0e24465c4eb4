package session

import (
	"errors"
	"fmt"
)

// Kind classifies session errors.
type Kind string

const (
	// KindInput covers wrong file types and invalid page ranges or answers.
	KindInput Kind = "input"
	// KindExtraction is a per-page failure. It is recovered locally.
	KindExtraction Kind = "extraction"
	// KindEmptyResult means no page yielded a question.
	KindEmptyResult Kind = "empty_result"
	// KindExport is a document generation failure.
	KindExport Kind = "export"
	// KindState is an operation attempted in the wrong state.
	KindState Kind = "state"
	// KindNotFound is an unknown session id.
	KindNotFound Kind = "not_found"
)

// Error is a user-facing session error. Message is shown to the user;
// Err carries the diagnostic detail and is only logged.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a session error, or "" for other errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func inputError(msg string, err error) *Error {
	return &Error{Kind: KindInput, Message: msg, Err: err}
}

func stateError(op string, state State) *Error {
	return &Error{
		Kind:    KindState,
		Message: fmt.Sprintf("Cannot %s right now.", op),
		Err:     fmt.Errorf("%s not allowed in state %s", op, state),
	}
}

func notFound(id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: "Session not found.",
		Err:     fmt.Errorf("session %q does not exist", id),
	}
}
