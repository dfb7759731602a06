package template

import (
	"errors"
	"fmt"
	"strings"
)

// ParseError reports a template file that could not be loaded: malformed
// front-matter, a bad placeholder, or a duplicate command name.
type ParseError struct {
	Path   string
	Line   int
	Reason string
	Err    error `json:"-"`
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("template %s:%d: %s", e.Path, e.Line, e.Reason)
	}
	return fmt.Sprintf("template %s: %s", e.Path, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsParseError checks if an error is a template parse error.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// LoadError collects the per-file errors of a registry load. Templates that
// parsed cleanly are still available in the returned registry.
type LoadError struct {
	Errors []*ParseError
}

func (e *LoadError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d template(s) failed to load: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes each ParseError to errors.As.
func (e *LoadError) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		out[i] = err
	}
	return out
}

// NotFoundError is returned by Lookup for an unknown command.
type NotFoundError struct {
	Name        string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) > 0 {
		return fmt.Sprintf("command not found: %s (did you mean %s?)", e.Name, strings.Join(e.Suggestions, ", "))
	}
	return fmt.Sprintf("command not found: %s", e.Name)
}

// IsNotFound checks if an error is a command lookup miss.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
