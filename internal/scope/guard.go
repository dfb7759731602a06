package scope

import (
	"errors"
	"fmt"
	"strings"
)

// Action is the outcome of an authorization check.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
)

// Decision is the result of Guard.Authorize.
type Decision struct {
	Action Action `json:"action"`
	// Path is the path as requested; Resolved is what was checked.
	Path     string `json:"path"`
	Resolved string `json:"resolved"`
	// Root is the matching scope root for allowed paths.
	Root   string `json:"root,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Allowed reports whether the decision permits the mutation.
func (d Decision) Allowed() bool { return d.Action == ActionAllow }

// Guard authorizes mutations against a Set. It holds no mutable state and
// is safe for concurrent use.
type Guard struct {
	set *Set
}

// NewGuard creates a guard for set.
func NewGuard(set *Set) *Guard {
	return &Guard{set: set}
}

// Set returns the scope the guard enforces.
func (g *Guard) Set() *Set { return g.set }

// Authorize decides whether path may be mutated.
func (g *Guard) Authorize(path string) Decision {
	d := Decision{Action: ActionDeny, Path: path}

	if strings.TrimSpace(path) == "" {
		d.Reason = "empty path"
		return d
	}
	if strings.ContainsRune(path, 0) {
		d.Reason = "path contains a NUL byte"
		return d
	}

	d.Resolved = g.set.Resolve(path)
	root, ok := g.set.rootOf(d.Resolved)
	if !ok {
		d.Reason = fmt.Sprintf("outside scope roots %v", g.set.roots)
		return d
	}
	if pattern, excluded := g.set.excluded(root, d.Resolved); excluded {
		d.Reason = fmt.Sprintf("excluded by pattern %q", pattern)
		return d
	}

	d.Action = ActionAllow
	d.Root = root
	return d
}

// Check authorizes path and returns a *ViolationError when it is denied.
func (g *Guard) Check(path string) error {
	d := g.Authorize(path)
	if d.Allowed() {
		return nil
	}
	return &ViolationError{Path: d.Path, Resolved: d.Resolved, Reason: d.Reason}
}

// ViolationError is returned when a mutation targets a path outside the
// active scope.
type ViolationError struct {
	Path     string
	Resolved string
	Reason   string
	// TaskID is set when the violation was found while applying a task.
	TaskID string
}

func (e *ViolationError) Error() string {
	var sb strings.Builder
	sb.WriteString("scope violation")
	if e.TaskID != "" {
		sb.WriteString(" in task ")
		sb.WriteString(e.TaskID)
	}
	fmt.Fprintf(&sb, ": %s", e.Path)
	if e.Resolved != "" && e.Resolved != e.Path {
		fmt.Fprintf(&sb, " (%s)", e.Resolved)
	}
	if e.Reason != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Reason)
	}
	return sb.String()
}

// IsViolation checks if an error is a scope violation.
func IsViolation(err error) bool {
	var ve *ViolationError
	return errors.As(err, &ve)
}

// AsViolation returns the violation in err's chain, if any.
func AsViolation(err error) (*ViolationError, bool) {
	var ve *ViolationError
	ok := errors.As(err, &ve)
	return ve, ok
}
