package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/CR94168/learn-claude-code-cli/internal/binder"
	"github.com/CR94168/learn-claude-code-cli/internal/event"
	"github.com/CR94168/learn-claude-code-cli/internal/plan"
	"github.com/CR94168/learn-claude-code-cli/internal/scope"
	"github.com/CR94168/learn-claude-code-cli/internal/template"
	"github.com/CR94168/learn-claude-code-cli/internal/workspace"
)

// Channel presents a drafted plan and collects one signal for it.
type Channel interface {
	Decide(ctx context.Context, snap Snapshot) (Signal, error)
}

// InvalidHandler is implemented by channels that want to hear why a signal
// was refused before they are asked again.
type InvalidHandler interface {
	Invalid(err *InvalidSignalError)
}

// Run is one invocation. All methods are safe for concurrent use; signals
// are processed one at a time.
type Run struct {
	o    *Orchestrator
	log  zerolog.Logger
	id   string
	tmpl *template.Template
	inst *binder.Instruction

	mu    sync.Mutex
	state State
	plan  *plan.Plan
	// history holds iterated plans, oldest first.
	history  []*plan.Plan
	feedback []string
	// base is the command scope; active is base narrowed by the plan.
	base      *scope.Set
	active    *scope.Set
	previews  map[string]string
	tasks     []TaskRecord
	completed []string
	aborted   []string
	err       error

	createdAt  time.Time
	updatedAt  time.Time
	finishedAt *time.Time
	done       chan struct{}
}

// ID returns the run ID.
func (r *Run) ID() string { return r.id }

// Template returns the template the run was started from.
func (r *Run) Template() *template.Template { return r.tmpl }

// State returns the current state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the error a Failed run ended with.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Scope returns the active scope: the command scope narrowed by the current
// plan's suggested roots.
func (r *Run) Scope() *scope.Set {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// FinishedAt returns when the run reached a terminal state.
func (r *Run) FinishedAt() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finishedAt == nil {
		return time.Time{}, false
	}
	return *r.finishedAt, true
}

// Done is closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Signal delivers an approval decision. Approve and ApproveSubset apply
// the plan before returning; Iterate drafts the next plan before returning.
// A malformed signal returns *InvalidSignalError and leaves the run waiting.
func (r *Run) Signal(ctx context.Context, sig Signal) error {
	r.mu.Lock()
	if r.state.Terminal() {
		r.mu.Unlock()
		if sig.Kind == SignalCancel {
			return nil
		}
		return ErrRunFinished
	}
	if r.state != StateAwaitingApproval {
		state := r.state
		r.mu.Unlock()
		return &InvalidSignalError{Signal: sig, Reason: fmt.Sprintf("run is %s", state)}
	}

	current := r.plan
	var tasks []plan.Task
	switch sig.Kind {
	case SignalApprove:
		tasks = append(tasks, current.Tasks...)
	case SignalApproveSubset:
		if len(sig.TaskIDs) == 0 {
			r.mu.Unlock()
			return &InvalidSignalError{Signal: sig, Reason: "no task IDs given"}
		}
		var unknown []string
		tasks, unknown = current.Select(sig.TaskIDs)
		if len(unknown) > 0 {
			r.mu.Unlock()
			return &InvalidSignalError{
				Signal: sig,
				Reason: fmt.Sprintf("unknown task IDs %s (plan has %s)", strings.Join(unknown, ","), strings.Join(current.TaskIDs(), ",")),
			}
		}
	case SignalIterate:
		if strings.TrimSpace(sig.Feedback) == "" {
			r.mu.Unlock()
			return &InvalidSignalError{Signal: sig, Reason: "feedback is empty"}
		}
	case SignalCancel:
	default:
		r.mu.Unlock()
		return &InvalidSignalError{Signal: sig, Reason: "unknown signal kind"}
	}

	var from, to State
	switch sig.Kind {
	case SignalApprove, SignalApproveSubset:
		current.State = plan.StateApproved
		to = StateApplying
	case SignalIterate:
		current.State = plan.StateIterated
		r.history = append(r.history, current)
		r.feedback = append(r.feedback, sig.Feedback)
		r.plan = nil
		r.previews = nil
		r.active = r.base
		to = StateDrafting
	case SignalCancel:
		current.State = plan.StateRejected
		to = StateCancelled
	}
	from = r.setState(to, nil)
	r.mu.Unlock()

	r.log.Info().Str("signal", sig.String()).Msg("signal accepted")
	r.announce(ctx, from, to, nil)

	switch to {
	case StateApplying:
		return r.apply(ctx, tasks)
	case StateDrafting:
		return r.draft(ctx)
	}
	return nil
}

// Await drives the run with ch until it leaves AwaitingApproval. Refused
// signals are reported to ch and asked again. When ctx ends while waiting
// the run is cancelled. The returned error is the terminal error of a
// Failed run or the error of ch.
func (r *Run) Await(ctx context.Context, ch Channel) error {
	for {
		snap := r.Snapshot()
		if snap.State != StateAwaitingApproval {
			return r.Err()
		}

		sig, err := ch.Decide(ctx, snap)
		if err != nil {
			if ctx.Err() != nil {
				r.log.Info().Err(ctx.Err()).Msg("approval wait ended")
				return r.Signal(context.WithoutCancel(ctx), Cancel())
			}
			return err
		}

		if err := r.Signal(ctx, sig); err != nil {
			var ie *InvalidSignalError
			if errors.As(err, &ie) {
				if h, ok := ch.(InvalidHandler); ok {
					h.Invalid(ie)
				}
				continue
			}
			return err
		}
	}
}

// Snapshot returns a copy of the run for inspection.
func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		ID:          r.id,
		Command:     r.inst.Command,
		Instruction: r.inst,
		State:       r.state,
		Feedback:    append([]string(nil), r.feedback...),
		Scope:       r.active.Roots(),
		Exclude:     r.active.Exclude(),
		Tasks:       append([]TaskRecord(nil), r.tasks...),
		Completed:   append([]string(nil), r.completed...),
		Aborted:     append([]string(nil), r.aborted...),
		ErrorKind:   errorKind(r.err),
		CreatedAt:   r.createdAt,
		UpdatedAt:   r.updatedAt,
	}
	if r.plan != nil {
		snap.Plan = r.plan.Clone()
	}
	for _, p := range r.history {
		snap.History = append(snap.History, p.Clone())
	}
	if len(r.previews) > 0 {
		snap.Previews = make(map[string]string, len(r.previews))
		for id, text := range r.previews {
			snap.Previews[id] = text
		}
	}
	if r.err != nil {
		snap.Error = r.err.Error()
	}
	if r.finishedAt != nil {
		t := *r.finishedAt
		snap.FinishedAt = &t
	}
	return snap
}

func (r *Run) draft(ctx context.Context) error {
	r.mu.Lock()
	req := plan.Request{
		RunID:       r.id,
		Template:    r.tmpl,
		Instruction: r.inst,
		Iteration:   len(r.history) + 1,
		Feedback:    append([]string(nil), r.feedback...),
	}
	if n := len(r.history); n > 0 {
		req.Previous = r.history[n-1].Clone()
	}
	r.mu.Unlock()

	p, err := plan.Draft(ctx, r.o.deps.Drafter, req)
	if err != nil {
		r.log.Error().Err(err).Msg("drafting failed")
		r.transition(ctx, StateFailed, err)
		return err
	}

	active, dropped := r.base.Narrow(p.Scope)
	if len(dropped) > 0 {
		r.log.Warn().Strs("dropped", dropped).Msg("plan suggested roots outside the command scope")
	}
	previews := r.preview(p, scope.NewGuard(active))

	r.mu.Lock()
	r.plan = p
	r.active = active
	r.previews = previews
	r.mu.Unlock()

	r.o.publish(event.Event{
		Type: event.PlanDrafted,
		Data: event.PlanDraftedData{
			RunID:     r.id,
			PlanID:    p.ID,
			Iteration: p.Iteration,
			Summary:   p.Summary,
			Tasks:     len(p.Tasks),
		},
	})
	r.log.Info().Str("plan", p.ID).Int("iteration", p.Iteration).Int("tasks", len(p.Tasks)).Msg("plan drafted")

	r.transition(ctx, StateAwaitingApproval, nil)
	return nil
}

// preview renders the diff of every task whose paths the guard allows.
func (r *Run) preview(p *plan.Plan, guard *scope.Guard) map[string]string {
	previews := make(map[string]string)
	for _, t := range p.Tasks {
		allowed := true
		for _, path := range workspace.Paths(t) {
			if !guard.Authorize(path).Allowed() {
				allowed = false
				break
			}
		}
		if !allowed {
			continue
		}
		d, err := r.o.deps.Executor.Preview(guard, t)
		if err != nil {
			r.log.Debug().Err(err).Str("task", t.ID).Msg("no preview")
			continue
		}
		if d.Text != "" {
			previews[t.ID] = d.Text
		}
	}
	return previews
}

func (r *Run) apply(ctx context.Context, tasks []plan.Task) error {
	set := r.Scope()
	if r.o.deps.Lock != nil {
		release, err := r.o.deps.Lock(ctx, set)
		if err != nil {
			r.mu.Lock()
			for _, t := range tasks {
				r.aborted = append(r.aborted, t.ID)
			}
			r.mu.Unlock()
			r.log.Error().Err(err).Str("scope", set.String()).Msg("scope lock not acquired")
			r.transition(context.WithoutCancel(ctx), StateFailed, err)
			return err
		}
		defer release()
	}
	guard := scope.NewGuard(set)

	// Nothing runs unless every path of every approved task is in scope.
	for i, t := range tasks {
		for _, path := range workspace.Paths(t) {
			d := guard.Authorize(path)
			if d.Allowed() {
				continue
			}
			verr := &scope.ViolationError{Path: path, Resolved: d.Resolved, Reason: d.Reason, TaskID: t.ID}
			r.abort(tasks, i, verr)
			return verr
		}
	}

	for i, t := range tasks {
		r.o.publish(event.Event{
			Type: event.TaskStarted,
			Data: event.TaskData{RunID: r.id, TaskID: t.ID, Kind: string(t.Kind), Path: t.Path},
		})

		res, err := r.o.deps.Executor.Apply(ctx, guard, t)
		if err != nil {
			r.abort(tasks, i, err)
			return err
		}

		rec := TaskRecord{TaskID: t.ID, Title: t.Title, Kind: t.Kind, Path: t.Path, Status: TaskCompleted, Output: res.Output, Diff: res.Diff}
		r.mu.Lock()
		r.tasks = append(r.tasks, rec)
		r.completed = append(r.completed, t.ID)
		r.updatedAt = r.o.deps.Clock()
		r.mu.Unlock()

		r.o.publish(event.Event{
			Type: event.TaskCompleted,
			Data: event.TaskData{RunID: r.id, TaskID: t.ID, Kind: string(t.Kind), Path: t.Path, Output: res.Output},
		})
	}

	r.transition(ctx, StateCompleted, nil)
	return nil
}

// abort records tasks[failed] as failed and every later task as aborted,
// then fails the run.
func (r *Run) abort(tasks []plan.Task, failed int, err error) {
	t := tasks[failed]
	if verr, ok := scope.AsViolation(err); ok {
		r.o.publish(event.Event{
			Type: event.ScopeDenied,
			Data: event.ScopeDeniedData{RunID: r.id, TaskID: verr.TaskID, Path: verr.Path, Reason: verr.Reason},
		})
	}
	r.o.publish(event.Event{
		Type: event.TaskFailed,
		Data: event.TaskData{RunID: r.id, TaskID: t.ID, Kind: string(t.Kind), Path: t.Path, Error: err.Error()},
	})

	r.mu.Lock()
	r.tasks = append(r.tasks, TaskRecord{TaskID: t.ID, Title: t.Title, Kind: t.Kind, Path: t.Path, Status: TaskFailed, Error: err.Error()})
	for _, rest := range tasks[failed+1:] {
		r.tasks = append(r.tasks, TaskRecord{TaskID: rest.ID, Title: rest.Title, Kind: rest.Kind, Path: rest.Path, Status: TaskAborted})
	}
	for _, rest := range tasks[failed:] {
		r.aborted = append(r.aborted, rest.ID)
	}
	r.mu.Unlock()

	r.log.Error().Err(err).Str("task", t.ID).Strs("completed", r.Snapshot().Completed).Msg("apply aborted")
	r.transition(context.Background(), StateFailed, err)
}

// setState must be called with r.mu held.
func (r *Run) setState(to State, err error) State {
	from := r.state
	now := r.o.deps.Clock()
	r.state = to
	r.updatedAt = now
	if to.Terminal() {
		r.err = err
		r.finishedAt = &now
		close(r.done)
	}
	return from
}

func (r *Run) transition(ctx context.Context, to State, err error) {
	r.mu.Lock()
	from := r.setState(to, err)
	r.mu.Unlock()
	r.announce(ctx, from, to, err)
}

func (r *Run) announce(ctx context.Context, from, to State, err error) {
	data := event.RunStateData{RunID: r.id, Command: r.inst.Command, From: string(from), To: string(to)}
	if err != nil {
		data.Error = err.Error()
	}
	r.o.publish(event.Event{Type: event.RunStateChanged, Data: data})
	r.log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("run state changed")
	r.persist(ctx)
}

func (r *Run) persist(ctx context.Context) {
	if r.o.deps.Store == nil {
		return
	}
	if err := r.o.deps.Store.Put(context.WithoutCancel(ctx), []string{"run", r.id}, r.Snapshot()); err != nil {
		r.log.Warn().Err(err).Msg("failed to persist run")
	}
}
