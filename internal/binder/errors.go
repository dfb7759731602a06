package binder

import (
	"errors"
	"fmt"
)

// ArityError is returned when a template references more positional
// arguments than the invocation supplied.
type ArityError struct {
	Command string
	// Missing is the first index without a token.
	Missing int
	// Slot is the declared (or synthesized) name of the missing index.
	Slot string
	Have int
	Need int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("%s: missing argument %d (%s): got %d of %d", e.Command, e.Missing, e.Slot, e.Have, e.Need)
}

// IsArityError checks if an error is an argument arity error.
func IsArityError(err error) bool {
	var ae *ArityError
	return errors.As(err, &ae)
}

// TokenizeError is returned when free-text input cannot be split into
// positional tokens.
type TokenizeError struct {
	Input  string
	Reason string
}

func (e *TokenizeError) Error() string {
	return fmt.Sprintf("cannot split arguments %q: %s", e.Input, e.Reason)
}
