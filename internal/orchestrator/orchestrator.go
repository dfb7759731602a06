// Package orchestrator drives one invocation of a command template through
// drafting, approval and apply.
//
// A run moves through Drafting, AwaitingApproval and Applying to one of the
// terminal states Completed, Failed or Cancelled. Each run is driven on its
// caller's goroutine; the orchestrator never locks across runs. Callers
// that may apply overlapping scopes concurrently must serialize them.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/CR94168/learn-claude-code-cli/internal/binder"
	"github.com/CR94168/learn-claude-code-cli/internal/event"
	"github.com/CR94168/learn-claude-code-cli/internal/logging"
	"github.com/CR94168/learn-claude-code-cli/internal/plan"
	"github.com/CR94168/learn-claude-code-cli/internal/scope"
	"github.com/CR94168/learn-claude-code-cli/internal/template"
	"github.com/CR94168/learn-claude-code-cli/internal/workspace"
)

// State is the lifecycle state of a run.
type State string

const (
	StateDrafting         State = "drafting"
	StateAwaitingApproval State = "awaiting_approval"
	StateApplying         State = "applying"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
	StateCancelled        State = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Executor applies approved tasks. *workspace.Executor implements it.
type Executor interface {
	Apply(ctx context.Context, guard *scope.Guard, t plan.Task) (*workspace.Result, error)
	Preview(guard *scope.Guard, t plan.Task) (workspace.Diff, error)
}

// Store persists run snapshots. *storage.Storage implements it.
type Store interface {
	Put(ctx context.Context, path []string, v any) error
}

// Config is the static configuration of an orchestrator.
type Config struct {
	// Workspace is the directory relative scope entries resolve against.
	Workspace string
	// Exclude globs apply to every run on top of the template's.
	Exclude []string
}

// LockFunc takes the caller's exclusive hold on a scope before a run
// applies. The returned release is called when applying ends.
type LockFunc func(ctx context.Context, set *scope.Set) (release func(), err error)

// Deps are the collaborators of an orchestrator. Drafter and Executor are
// required.
type Deps struct {
	Drafter  plan.Drafter
	Executor Executor
	Store    Store
	Bus      *event.Bus
	Lock     LockFunc
	Clock    func() time.Time
}

// Orchestrator starts runs.
type Orchestrator struct {
	cfg  Config
	deps Deps
}

// New creates an orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Drafter == nil {
		return nil, errors.New("orchestrator: drafter is required")
	}
	if deps.Executor == nil {
		return nil, errors.New("orchestrator: executor is required")
	}
	if cfg.Workspace == "" {
		return nil, errors.New("orchestrator: workspace is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Orchestrator{cfg: cfg, deps: deps}, nil
}

// Drafter returns the drafter plans are produced with.
func (o *Orchestrator) Drafter() plan.Drafter { return o.deps.Drafter }

// ScopeFor returns the scope a bound instruction declares before any plan
// narrows it.
func (o *Orchestrator) ScopeFor(inst *binder.Instruction) (*scope.Set, error) {
	exclude := append(append([]string(nil), o.cfg.Exclude...), inst.Exclude...)
	return scope.NewSet(o.cfg.Workspace, inst.Scope, exclude)
}

// Start creates a run and drafts its first plan. On success the run waits
// for approval. When drafting fails the run is returned in state Failed
// together with the error.
func (o *Orchestrator) Start(ctx context.Context, tmpl *template.Template, inst *binder.Instruction) (*Run, error) {
	if tmpl == nil || inst == nil {
		return nil, errors.New("start: template and instruction are required")
	}

	set, err := o.ScopeFor(inst)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", inst.Command, err)
	}

	now := o.deps.Clock()
	r := &Run{
		o:         o,
		id:        ulid.Make().String(),
		tmpl:      tmpl,
		inst:      inst,
		state:     StateDrafting,
		base:      set,
		active:    set,
		createdAt: now,
		updatedAt: now,
		done:      make(chan struct{}),
	}
	r.log = logging.Component("orchestrator").With().Str("run", r.id).Str("command", inst.Command).Logger()

	o.publish(event.Event{
		Type: event.RunStarted,
		Data: event.RunStartedData{RunID: r.id, Command: inst.Command, Input: inst.Input},
	})
	r.log.Info().Str("scope", set.String()).Msg("run started")

	if err := r.draft(ctx); err != nil {
		return r, err
	}
	return r, nil
}

func (o *Orchestrator) publish(e event.Event) {
	if o.deps.Bus != nil {
		o.deps.Bus.PublishSync(e)
	}
}

// errorKind names the failure class of a terminal error for clients.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case scope.IsViolation(err):
		return "scope_violation"
	case workspace.IsTaskError(err):
		return "task_error"
	case plan.IsDraftError(err):
		return "draft_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}
