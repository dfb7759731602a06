package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/spf13/afero"

	"github.com/CR94168/learn-claude-code-cli/internal/binder"
	"github.com/CR94168/learn-claude-code-cli/internal/event"
	"github.com/CR94168/learn-claude-code-cli/internal/plan"
	"github.com/CR94168/learn-claude-code-cli/internal/template"
	"github.com/CR94168/learn-claude-code-cli/internal/workspace"
)

const testWorkspace = "/work"

// stubDrafter returns one scripted plan per iteration and records every
// request it saw.
type stubDrafter struct {
	mu    sync.Mutex
	plans []*plan.Plan
	err   error
	reqs  []plan.Request
}

func (d *stubDrafter) Name() string { return "stub" }

func (d *stubDrafter) Draft(ctx context.Context, req plan.Request) (*plan.Plan, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reqs = append(d.reqs, req)
	if d.err != nil {
		return nil, d.err
	}
	if len(d.plans) == 0 {
		return nil, errors.New("no plan scripted")
	}
	i := req.Iteration - 1
	if i >= len(d.plans) {
		i = len(d.plans) - 1
	}
	return d.plans[i].Clone(), nil
}

func (d *stubDrafter) requests() []plan.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]plan.Request(nil), d.reqs...)
}

// memStore keeps the last snapshot per key.
type memStore struct {
	mu   sync.Mutex
	puts map[string]any
}

func (s *memStore) Put(ctx context.Context, path []string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.puts == nil {
		s.puts = map[string]any{}
	}
	s.puts[path[len(path)-1]] = v
	return nil
}

func (s *memStore) get(id string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.puts[id].(Snapshot)
	return snap, ok
}

// recorder collects event types in publish order.
type recorder struct {
	mu    sync.Mutex
	types []event.EventType
}

func (r *recorder) handle(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, e.Type)
}

func (r *recorder) seen() []event.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.EventType(nil), r.types...)
}

// scripted is a Channel that replays signals and records refusals.
type scripted struct {
	signals []Signal
	invalid []*InvalidSignalError
	seen    []Snapshot
}

func (s *scripted) Decide(ctx context.Context, snap Snapshot) (Signal, error) {
	s.seen = append(s.seen, snap)
	if len(s.signals) == 0 {
		<-ctx.Done()
		return Signal{}, ctx.Err()
	}
	sig := s.signals[0]
	s.signals = s.signals[1:]
	return sig, nil
}

func (s *scripted) Invalid(err *InvalidSignalError) { s.invalid = append(s.invalid, err) }

type fixture struct {
	orch    *Orchestrator
	drafter *stubDrafter
	fs      afero.Fs
	store   *memStore
	events  *recorder
	bus     *event.Bus
}

// fataler is the part of testing.TB the fixture needs; GinkgoT satisfies it.
type fataler interface {
	Helper()
	Fatal(args ...any)
}

func newFixture(tb fataler, plans ...*plan.Plan) *fixture {
	tb.Helper()
	fsys := afero.NewMemMapFs()
	if err := fsys.MkdirAll(testWorkspace, 0755); err != nil {
		tb.Fatal(err)
	}
	f := &fixture{
		drafter: &stubDrafter{plans: plans},
		fs:      fsys,
		store:   &memStore{},
		events:  &recorder{},
		bus:     event.NewBus(),
	}
	f.bus.SubscribeAll(f.events.handle)
	orch, err := New(
		Config{Workspace: testWorkspace, Exclude: []string{"**/.git/**"}},
		Deps{Drafter: f.drafter, Executor: workspace.New(fsys, testWorkspace), Store: f.store, Bus: f.bus},
	)
	if err != nil {
		tb.Fatal(err)
	}
	f.orch = orch
	return f
}

func (f *fixture) exists(path string) bool {
	ok, _ := afero.Exists(f.fs, path)
	return ok
}

func (f *fixture) read(path string) string {
	data, _ := afero.ReadFile(f.fs, path)
	return string(data)
}

func addFeature() (*template.Template, *binder.Instruction) {
	tmpl := &template.Template{Name: "add-feature", ArgumentHint: "[feature-description]", Body: "Implement {{args}}"}
	inst := &binder.Instruction{Command: "add-feature", Text: "Implement add dark mode toggle", Input: "add dark mode toggle"}
	return tmpl, inst
}

func threeTaskPlan() *plan.Plan {
	return &plan.Plan{
		Summary: "Add a dark mode toggle",
		Tasks: []plan.Task{
			{Kind: plan.KindMkdir, Path: "src/theme"},
			{Kind: plan.KindCreate, Path: "src/theme/dark.ts", Content: "export const dark = true\n"},
			{Kind: plan.KindCreate, Path: "src/theme/toggle.ts", Content: "import { dark } from './dark'\n"},
		},
	}
}
