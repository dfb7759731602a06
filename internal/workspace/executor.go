// Package workspace applies plan tasks to the files of a workspace. Every
// mutation is authorized by a scope guard immediately before it happens.
package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/CR94168/learn-claude-code-cli/internal/logging"
	"github.com/CR94168/learn-claude-code-cli/internal/plan"
	"github.com/CR94168/learn-claude-code-cli/internal/scope"
)

// DefaultRunTimeout bounds a single run task.
const DefaultRunTimeout = 2 * time.Minute

// Result is what applying one task produced.
type Result struct {
	TaskID string `json:"taskID"`
	// Path is the resolved absolute path the task touched.
	Path   string `json:"path,omitempty"`
	Output string `json:"output,omitempty"`
	Diff   Diff   `json:"diff"`
}

// Executor applies tasks through an afero filesystem.
type Executor struct {
	fs         afero.Fs
	base       string
	runTimeout time.Duration
	env        []string
	// allowNested lets run tasks start shells, interpreters and other
	// programs that run commands of their own.
	allowNested bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithRunTimeout bounds each run task.
func WithRunTimeout(d time.Duration) Option {
	return func(e *Executor) { e.runTimeout = d }
}

// WithEnv sets the environment of run tasks. The default is the process
// environment.
func WithEnv(env []string) Option {
	return func(e *Executor) { e.env = env }
}

// WithNestedPrograms allows run tasks to start shells, interpreters and
// wrappers such as env or xargs. Their writes are not checked by the guard.
func WithNestedPrograms(allow bool) Option {
	return func(e *Executor) { e.allowNested = allow }
}

// New creates an executor for the workspace at base on fsys.
func New(fsys afero.Fs, base string, opts ...Option) *Executor {
	e := &Executor{
		fs:         fsys,
		base:       filepath.Clean(base),
		runTimeout: DefaultRunTimeout,
		env:        os.Environ(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewOS creates an executor on the OS filesystem.
func NewOS(base string, opts ...Option) *Executor {
	return New(afero.NewOsFs(), base, opts...)
}

// Base returns the workspace base directory.
func (e *Executor) Base() string { return e.base }

// Paths returns the workspace paths a task will mutate, as written in the
// task. Run tasks report none; their writes are checked while they run.
func Paths(t plan.Task) []string {
	if t.Kind == plan.KindRun || t.Path == "" {
		return nil
	}
	return []string{t.Path}
}

// Apply performs one task. A denied path is returned as a
// *scope.ViolationError; any other failure is a *TaskError.
func (e *Executor) Apply(ctx context.Context, guard *scope.Guard, t plan.Task) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TaskError{TaskID: t.ID, Kind: t.Kind, Path: t.Path, Err: err}
	}

	if t.Kind == plan.KindRun {
		return e.run(ctx, guard, t)
	}

	target, err := e.authorize(guard, t.ID, t.Path)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*Result, error) {
		return nil, &TaskError{TaskID: t.ID, Kind: t.Kind, Path: t.Path, Err: err}
	}

	res := &Result{TaskID: t.ID, Path: target}
	rel := e.rel(target)

	switch t.Kind {
	case plan.KindCreate:
		if _, err := e.fs.Stat(target); err == nil {
			return fail(fmt.Errorf("already exists"))
		}
		if err := e.writeFile(guard, t, target, t.Content); err != nil {
			return nil, err
		}
		res.Diff = buildDiff(rel, "", t.Content)

	case plan.KindModify:
		before, err := e.readFile(target)
		if err != nil {
			return fail(err)
		}
		if err := e.writeFile(guard, t, target, t.Content); err != nil {
			return nil, err
		}
		res.Diff = buildDiff(rel, before, t.Content)

	case plan.KindEdit:
		before, err := e.readFile(target)
		if err != nil {
			return fail(err)
		}
		after, err := replaceOnce(before, t.Old, t.New)
		if err != nil {
			return fail(err)
		}
		if err := e.writeFile(guard, t, target, after); err != nil {
			return nil, err
		}
		res.Diff = buildDiff(rel, before, after)

	case plan.KindDelete:
		info, err := e.fs.Stat(target)
		if err != nil {
			return fail(err)
		}
		var before string
		if !info.IsDir() {
			if before, err = e.readFile(target); err != nil {
				return fail(err)
			}
		}
		if err := e.fs.Remove(target); err != nil {
			return fail(err)
		}
		res.Diff = buildDiff(rel, before, "")

	case plan.KindMkdir:
		if err := e.fs.MkdirAll(target, 0755); err != nil {
			return fail(err)
		}

	default:
		return fail(fmt.Errorf("unknown task kind %q", t.Kind))
	}

	logging.Debug().
		Str("task", t.ID).
		Str("kind", string(t.Kind)).
		Str("path", target).
		Int("additions", res.Diff.Additions).
		Int("deletions", res.Diff.Deletions).
		Msg("task applied")
	return res, nil
}

// Preview returns the diff a task would produce without applying it.
func (e *Executor) Preview(guard *scope.Guard, t plan.Task) (Diff, error) {
	if t.Kind == plan.KindRun || t.Kind == plan.KindMkdir {
		return Diff{}, nil
	}
	target := filepath.Clean(t.Path)
	if guard != nil {
		target = guard.Set().Resolve(t.Path)
	} else if !filepath.IsAbs(target) {
		target = filepath.Join(e.base, target)
	}
	rel := e.rel(target)

	current, err := e.readFile(target)
	if err != nil && t.Kind != plan.KindCreate {
		return Diff{}, err
	}

	switch t.Kind {
	case plan.KindCreate:
		return buildDiff(rel, "", t.Content), nil
	case plan.KindModify:
		return buildDiff(rel, current, t.Content), nil
	case plan.KindEdit:
		after, err := replaceOnce(current, t.Old, t.New)
		if err != nil {
			return Diff{}, err
		}
		return buildDiff(rel, current, after), nil
	case plan.KindDelete:
		return buildDiff(rel, current, ""), nil
	}
	return Diff{}, nil
}

// authorize checks the guard and refuses to follow symlinks below the
// workspace base.
func (e *Executor) authorize(guard *scope.Guard, taskID, path string) (string, error) {
	d := guard.Authorize(path)
	if !d.Allowed() {
		return "", &scope.ViolationError{Path: path, Resolved: d.Resolved, Reason: d.Reason, TaskID: taskID}
	}
	if link, ok := e.symlinkOnPath(d.Resolved); ok {
		return "", &scope.ViolationError{
			Path:     path,
			Resolved: d.Resolved,
			Reason:   fmt.Sprintf("refusing to write through symlink %s", link),
			TaskID:   taskID,
		}
	}
	return d.Resolved, nil
}

// symlinkOnPath reports the first existing symlink between the base and
// target, target included.
func (e *Executor) symlinkOnPath(target string) (string, bool) {
	lstater, ok := e.fs.(afero.Lstater)
	if !ok {
		return "", false
	}
	rel, err := filepath.Rel(e.base, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}

	current := e.base
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, seg)
		info, _, err := lstater.LstatIfPossible(current)
		if err != nil {
			// Nothing exists below a missing component.
			return "", false
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return current, true
		}
	}
	return "", false
}

func (e *Executor) writeFile(guard *scope.Guard, t plan.Task, target, content string) error {
	// The guard is consulted again right before the write.
	if err := guard.Check(target); err != nil {
		if ve, ok := scope.AsViolation(err); ok {
			ve.TaskID = t.ID
		}
		return err
	}
	if err := e.fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return &TaskError{TaskID: t.ID, Kind: t.Kind, Path: t.Path, Err: fmt.Errorf("failed to create directory: %w", err)}
	}
	if err := afero.WriteFile(e.fs, target, []byte(content), 0644); err != nil {
		return &TaskError{TaskID: t.ID, Kind: t.Kind, Path: t.Path, Err: fmt.Errorf("failed to write file: %w", err)}
	}
	return nil
}

func (e *Executor) readFile(target string) (string, error) {
	data, err := afero.ReadFile(e.fs, target)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (e *Executor) rel(target string) string {
	if rel, err := filepath.Rel(e.base, target); err == nil {
		return filepath.ToSlash(rel)
	}
	return target
}

// replaceOnce replaces the single occurrence of old. When old does not
// occur verbatim, a match with normalized line endings is accepted.
func replaceOnce(text, old, new string) (string, error) {
	if old == new {
		return "", fmt.Errorf("old and new text are identical")
	}
	switch count := strings.Count(text, old); {
	case count == 1:
		return strings.Replace(text, old, new, 1), nil
	case count > 1:
		return "", fmt.Errorf("text to replace appears %d times; provide more context", count)
	}

	// Match ignoring line endings, then splice into the original text so the
	// rest of the file keeps its CRLF endings.
	normalizedText := normalizeLineEndings(text)
	normalizedOld := normalizeLineEndings(old)
	if strings.Count(normalizedText, normalizedOld) != 1 {
		return "", fmt.Errorf("text to replace not found")
	}
	idx := strings.Index(normalizedText, normalizedOld)
	start := originalOffset(text, idx)
	end := originalOffset(text, idx+len(normalizedOld))
	if strings.Contains(text, "\r\n") {
		new = strings.ReplaceAll(normalizeLineEndings(new), "\n", "\r\n")
	}
	return text[:start] + new + text[end:], nil
}

// originalOffset maps an offset in normalizeLineEndings(text) back to text.
func originalOffset(text string, n int) int {
	k := 0
	for i := 0; i < len(text); i++ {
		if k == n {
			return i
		}
		if text[i] == '\r' && i+1 < len(text) && text[i+1] == '\n' {
			i++
		}
		k++
	}
	return len(text)
}

func normalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
