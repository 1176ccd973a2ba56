package model

import "errors"

var (
	// ErrModelUnavailable is the umbrella error for any model that cannot be used.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrModelNotFound means the model or its metadata file does not exist.
	ErrModelNotFound = &modelError{msg: "model not found"}

	// ErrModelFormat means the artifact exists but cannot be parsed or does not
	// match what the runtime expects.
	ErrModelFormat = &modelError{msg: "model format mismatch"}
)

type modelError struct {
	msg string
}

func (e *modelError) Error() string { return e.msg }

// Unwrap lets errors.Is match ErrModelUnavailable for both kinds.
func (e *modelError) Unwrap() error { return ErrModelUnavailable }
