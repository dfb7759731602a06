// Package dispatch is the invocation service shared by the CLI, the HTTP
// API and the MCP server. It owns the template source, the run store and
// the scope locks, and calls the orchestrator for each invocation.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/CR94168/learn-claude-code-cli/internal/binder"
	"github.com/CR94168/learn-claude-code-cli/internal/config"
	"github.com/CR94168/learn-claude-code-cli/internal/event"
	"github.com/CR94168/learn-claude-code-cli/internal/logging"
	"github.com/CR94168/learn-claude-code-cli/internal/orchestrator"
	"github.com/CR94168/learn-claude-code-cli/internal/plan"
	"github.com/CR94168/learn-claude-code-cli/internal/provider"
	"github.com/CR94168/learn-claude-code-cli/internal/scope"
	"github.com/CR94168/learn-claude-code-cli/internal/storage"
	"github.com/CR94168/learn-claude-code-cli/internal/template"
	"github.com/CR94168/learn-claude-code-cli/internal/workspace"
	"github.com/CR94168/learn-claude-code-cli/pkg/types"
)

// DefaultReloadDebounce coalesces bursts of template file events.
const DefaultReloadDebounce = 200 * time.Millisecond

// DefaultRunRetention is how long finished runs are kept in memory.
const DefaultRunRetention = 10 * time.Minute

// ErrRunNotFound is returned for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Options configures a Service. Unset collaborators get their defaults.
type Options struct {
	WorkDir string
	Config  *types.Config

	Drafter  plan.Drafter
	Executor orchestrator.Executor
	Store    *storage.Storage
	Locker   *storage.ScopeLocker
	Bus      *event.Bus

	// Watch reloads templates when their files change.
	Watch bool

	// RunRetention is how long a finished run stays in memory before only
	// its persisted record is served. Zero means DefaultRunRetention.
	RunRetention time.Duration
}

// Service runs invocations for one workspace.
type Service struct {
	workDir string
	cfg     *types.Config
	source  *template.Source
	orch    *orchestrator.Orchestrator
	drafter plan.Drafter
	store   *storage.Storage
	locker  *storage.ScopeLocker
	bus     *event.Bus
	ownsBus bool

	retention time.Duration
	now       func() time.Time

	mu   sync.RWMutex
	runs map[string]*orchestrator.Run
}

// New creates a service. Templates that fail to parse are logged and left
// out; they do not prevent the service from starting.
func New(ctx context.Context, opts Options) (*Service, error) {
	workDir, err := filepath.Abs(opts.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	cfg := opts.Config
	if cfg == nil {
		if cfg, err = config.Load(workDir); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	s := &Service{
		workDir: workDir,
		cfg:     cfg,
		store:   opts.Store,
		locker:  opts.Locker,
		bus:     opts.Bus,
		drafter: opts.Drafter,
		runs:    make(map[string]*orchestrator.Run),

		retention: opts.RunRetention,
		now:       time.Now,
	}
	if s.retention <= 0 {
		s.retention = DefaultRunRetention
	}

	paths := config.GetPaths()
	if s.store == nil {
		s.store = storage.New(paths.StoragePath(workDir))
	}
	if s.locker == nil {
		s.locker = storage.NewScopeLocker(paths.LockPath())
	}
	if s.bus == nil {
		s.bus = event.NewBus()
		s.ownsBus = true
	}
	if s.drafter == nil {
		if s.drafter, err = NewDrafter(ctx, cfg); err != nil {
			return nil, err
		}
	}
	executor := opts.Executor
	if executor == nil {
		executor = workspace.NewOS(workDir, workspace.WithNestedPrograms(cfg.Run != nil && cfg.Run.AllowNested))
	}

	source, err := template.NewSource(config.CommandDirs(workDir, cfg)...)
	if err != nil {
		var le *template.LoadError
		if !errors.As(err, &le) {
			return nil, err
		}
		logging.Warn().Err(err).Msg("some templates failed to load")
	}
	source.OnReload(s.reloaded)
	s.source = source

	if opts.Watch && (cfg.Watcher == nil || !cfg.Watcher.Disabled) {
		if err := source.Watch(ctx, DefaultReloadDebounce); err != nil {
			logging.Warn().Err(err).Msg("template hot reload disabled")
		}
	}

	var exclude []string
	if cfg.Scope != nil {
		exclude = cfg.Scope.Exclude
	}
	s.orch, err = orchestrator.New(
		orchestrator.Config{Workspace: workDir, Exclude: exclude},
		orchestrator.Deps{
			Drafter:  s.drafter,
			Executor: executor,
			Store:    s.store,
			Bus:      s.bus,
			Lock:     s.lock,
		},
	)
	if err != nil {
		return nil, err
	}

	logging.Info().
		Str("workspace", workDir).
		Int("templates", source.Registry().Len()).
		Str("drafter", s.drafter.Name()).
		Msg("dispatch service ready")
	return s, nil
}

// NewDrafter builds the drafter the config selects.
func NewDrafter(ctx context.Context, cfg *types.Config) (plan.Drafter, error) {
	kind := "document"
	if cfg.Drafter != nil && cfg.Drafter.Type != "" {
		kind = cfg.Drafter.Type
	}

	switch kind {
	case "document":
		return plan.NewDocumentDrafter(), nil
	case "model":
		p, err := provider.FromConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("model drafter: %w", err)
		}
		maxTokens := 0
		if cfg.Drafter != nil {
			maxTokens = cfg.Drafter.MaxTokens
		}
		return plan.NewModelDrafter(p.ChatModel(), p.ID()+"/"+p.Model(), maxTokens), nil
	}
	return nil, fmt.Errorf("unknown drafter type %q", kind)
}

// WorkDir returns the workspace root.
func (s *Service) WorkDir() string { return s.workDir }

// Config returns the loaded configuration.
func (s *Service) Config() *types.Config { return s.cfg }

// Bus returns the event bus runs publish on.
func (s *Service) Bus() *event.Bus { return s.bus }

// Source returns the template source.
func (s *Service) Source() *template.Source { return s.source }

// Drafter returns the plan drafter.
func (s *Service) Drafter() plan.Drafter { return s.drafter }

// Commands lists the loaded templates by name.
func (s *Service) Commands() []*template.Template {
	return s.source.Registry().List()
}

// Command looks up one template.
func (s *Service) Command(name string) (*template.Template, error) {
	return s.source.Lookup(name)
}

// Bind resolves a command and binds the request to it.
func (s *Service) Bind(req binder.Request) (*template.Template, *binder.Instruction, error) {
	tmpl, err := s.source.Lookup(req.Command)
	if err != nil {
		return nil, nil, err
	}
	inst, err := binder.Bind(tmpl, req)
	if err != nil {
		return tmpl, nil, err
	}
	return tmpl, inst, nil
}

// Start binds the request and drafts the first plan. A run whose drafting
// failed is still registered and returned with the error.
func (s *Service) Start(ctx context.Context, req binder.Request) (*orchestrator.Run, error) {
	tmpl, inst, err := s.Bind(req)
	if err != nil {
		return nil, err
	}
	s.prune(ctx)
	run, err := s.orch.Start(ctx, tmpl, inst)
	if run != nil {
		s.mu.Lock()
		s.runs[run.ID()] = run
		s.mu.Unlock()
	}
	return run, err
}

// Run returns a live run of this process.
func (s *Service) Run(id string) (*orchestrator.Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok
}

// Signal delivers an approval signal to a live run. A finished run that
// was already evicted answers from its persisted record: Cancel is a no-op
// and anything else is orchestrator.ErrRunFinished.
func (s *Service) Signal(ctx context.Context, id string, sig orchestrator.Signal) error {
	if run, ok := s.Run(id); ok {
		return run.Signal(ctx, sig)
	}
	var snap orchestrator.Snapshot
	if err := s.store.Get(ctx, []string{"run", id}, &snap); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRunNotFound
		}
		return err
	}
	if !snap.State.Terminal() {
		// Left behind by a process that exited mid-run.
		return ErrRunNotFound
	}
	if sig.Kind == orchestrator.SignalCancel {
		return nil
	}
	return orchestrator.ErrRunFinished
}

// Snapshot returns a run of this process or, failing that, the persisted
// record of an earlier one.
func (s *Service) Snapshot(ctx context.Context, id string) (orchestrator.Snapshot, error) {
	if run, ok := s.Run(id); ok {
		return run.Snapshot(), nil
	}
	var snap orchestrator.Snapshot
	if err := s.store.Get(ctx, []string{"run", id}, &snap); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return snap, ErrRunNotFound
		}
		return snap, err
	}
	return snap, nil
}

// Runs lists live and persisted runs, newest first.
func (s *Service) Runs(ctx context.Context) ([]orchestrator.Snapshot, error) {
	s.prune(ctx)
	byID := make(map[string]orchestrator.Snapshot)
	err := s.store.Scan(ctx, []string{"run"}, func(key string, data json.RawMessage) error {
		var snap orchestrator.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			logging.Warn().Err(err).Str("run", key).Msg("skipping unreadable run record")
			return nil
		}
		byID[snap.ID] = snap
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	for id, run := range s.runs {
		byID[id] = run.Snapshot()
	}
	s.mu.RUnlock()

	out := make([]orchestrator.Snapshot, 0, len(byID))
	for _, snap := range byID {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Close cancels every run still waiting for approval and closes the bus
// when the service created it.
func (s *Service) Close() error {
	s.mu.RLock()
	runs := make([]*orchestrator.Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	s.mu.RUnlock()

	for _, run := range runs {
		if run.State() == orchestrator.StateAwaitingApproval {
			_ = run.Signal(context.Background(), orchestrator.Cancel())
		}
	}
	if s.ownsBus {
		return s.bus.Close()
	}
	return nil
}

// prune drops finished runs older than the retention window from memory.
// A run is only dropped once its final state is in the store.
func (s *Service) prune(ctx context.Context) {
	cutoff := s.now().Add(-s.retention)

	s.mu.RLock()
	var stale []string
	for id, run := range s.runs {
		if at, ok := run.FinishedAt(); ok && at.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range stale {
		var snap orchestrator.Snapshot
		if err := s.store.Get(ctx, []string{"run", id}, &snap); err != nil || !snap.State.Terminal() {
			continue
		}
		s.mu.Lock()
		delete(s.runs, id)
		s.mu.Unlock()
		logging.Debug().Str("run", id).Msg("evicted finished run")
	}
}

// lock holds a scope lease for the duration of an apply.
func (s *Service) lock(ctx context.Context, set *scope.Set) (func(), error) {
	lease, err := s.locker.Acquire(ctx, set)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := lease.Release(); err != nil {
			logging.Warn().Err(err).Str("scope", set.String()).Msg("failed to release scope lock")
		}
	}, nil
}

func (s *Service) reloaded(reg *template.Registry, err error) {
	data := event.RegistryReloadedData{Templates: reg.Len()}
	var le *template.LoadError
	if errors.As(err, &le) {
		for _, pe := range le.Errors {
			data.Errors = append(data.Errors, pe.Error())
		}
	} else if err != nil {
		data.Errors = []string{err.Error()}
	}
	s.bus.Publish(event.Event{Type: event.RegistryReloaded, Data: data})
	logging.Info().Int("templates", data.Templates).Int("errors", len(data.Errors)).Msg("templates reloaded")
}
