package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/CR94168/learn-claude-code-cli/internal/logging"
	"github.com/CR94168/learn-claude-code-cli/internal/plan"
	"github.com/CR94168/learn-claude-code-cli/internal/scope"
)

// maxRunOutput caps the output kept in a task record.
const maxRunOutput = 64 * 1024

// mutatingCommands take file operands that they create, change or remove.
// Their non-flag arguments are authorized before the command executes.
var mutatingCommands = map[string]bool{
	"rm":       true,
	"rmdir":    true,
	"cp":       true,
	"mv":       true,
	"mkdir":    true,
	"touch":    true,
	"chmod":    true,
	"chown":    true,
	"ln":       true,
	"tee":      true,
	"truncate": true,
	"install":  true,
	"dd":       true,
}

// nestedPrograms run other programs or scripts of their own, so the files
// they write never pass through the interpreter. They are refused unless the
// executor was created WithNestedPrograms.
var nestedPrograms = map[string]bool{
	"sh": true, "bash": true, "dash": true, "zsh": true, "ksh": true,
	"fish": true, "csh": true, "tcsh": true, "busybox": true,
	"env": true, "xargs": true, "nohup": true, "timeout": true, "nice": true,
	"ionice": true, "stdbuf": true, "setsid": true, "sudo": true, "doas": true,
	"su": true, "chroot": true, "unshare": true, "flock": true, "parallel": true,
	"perl": true, "python": true, "python2": true, "python3": true,
	"ruby": true, "node": true, "nodejs": true, "php": true, "lua": true,
	"tclsh": true, "awk": true, "gawk": true, "mawk": true, "nawk": true,
	"sed": true,
}

// findActions are the find primaries that run programs or write files.
var findActions = map[string]bool{
	"-exec": true, "-execdir": true, "-ok": true, "-okdir": true,
	"-delete": true, "-fprint": true, "-fprint0": true, "-fprintf": true, "-fls": true,
}

// refused reports why a command line cannot be checked by the guard, or ""
// when it can.
func refused(name string, args []string) string {
	if nestedPrograms[name] {
		return fmt.Sprintf("%s runs commands the scope guard cannot check", name)
	}
	if name == "find" {
		for _, arg := range args {
			if findActions[arg] {
				return fmt.Sprintf("find %s runs commands the scope guard cannot check", arg)
			}
		}
	}
	return ""
}

// run executes a shell line with the in-process interpreter. Redirections
// that open files for writing and the operands of mutatingCommands are
// authorized by the guard. Programs that would run further commands or
// scripts are refused unless nested programs are allowed; what any other
// program does internally is not visible to the guard.
func (e *Executor) run(ctx context.Context, guard *scope.Guard, t plan.Task) (*Result, error) {
	fail := func(err error) (*Result, error) {
		return nil, &TaskError{TaskID: t.ID, Kind: t.Kind, Err: err}
	}

	if _, ok := e.fs.(*afero.OsFs); !ok {
		return fail(fmt.Errorf("run tasks need the OS filesystem"))
	}

	file, err := syntax.NewParser(syntax.Variant(syntax.LangBash)).Parse(strings.NewReader(t.Command), "")
	if err != nil {
		return fail(fmt.Errorf("failed to parse command: %w", err))
	}

	// Pipelines run handlers concurrently; the first violation wins.
	var (
		mu        sync.Mutex
		violation *scope.ViolationError
	)
	record := func(v *scope.ViolationError) error {
		mu.Lock()
		defer mu.Unlock()
		if violation == nil {
			violation = v
		}
		return v
	}
	deny := func(path string, d scope.Decision) error {
		return record(&scope.ViolationError{Path: path, Resolved: d.Resolved, Reason: d.Reason, TaskID: t.ID})
	}

	var out limitedBuffer
	runner, err := interp.New(
		interp.Dir(e.base),
		interp.Env(expand.ListEnviron(e.env...)),
		interp.StdIO(nil, &out, &out),
		interp.OpenHandler(func(ctx context.Context, path string, flag int, perm fs.FileMode) (io.ReadWriteCloser, error) {
			if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_APPEND|os.O_TRUNC) != 0 && path != os.DevNull {
				abs := absFrom(interp.HandlerCtx(ctx).Dir, path)
				if d := guard.Authorize(abs); !d.Allowed() {
					return nil, deny(path, d)
				}
			}
			return interp.DefaultOpenHandler()(ctx, path, flag, perm)
		}),
		interp.ExecHandlers(func(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
			return func(ctx context.Context, args []string) error {
				if len(args) == 0 {
					return next(ctx, args)
				}
				name := filepath.Base(args[0])
				if !e.allowNested {
					if reason := refused(name, args[1:]); reason != "" {
						return record(&scope.ViolationError{Path: args[0], Resolved: args[0], Reason: reason, TaskID: t.ID})
					}
				}
				if mutatingCommands[name] {
					dir := interp.HandlerCtx(ctx).Dir
					for _, operand := range operands(name, args[1:]) {
						if d := guard.Authorize(absFrom(dir, operand)); !d.Allowed() {
							return deny(operand, d)
						}
					}
				}
				return next(ctx, args)
			}
		}),
	)
	if err != nil {
		return fail(err)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.runTimeout)
	defer cancel()

	logging.Debug().Str("task", t.ID).Str("command", t.Command).Msg("running task command")
	err = runner.Run(runCtx, file)

	mu.Lock()
	denied := violation
	mu.Unlock()
	if denied != nil {
		return nil, denied
	}
	if err != nil {
		var status interp.ExitStatus
		if errors.As(err, &status) {
			err = fmt.Errorf("exit status %d: %s", status, strings.TrimSpace(out.String()))
		}
		return fail(err)
	}

	return &Result{TaskID: t.ID, Output: out.String()}, nil
}

// targetFlagCommands accept a target directory through -t.
var targetFlagCommands = map[string]bool{"cp": true, "mv": true, "ln": true, "install": true}

// operands returns the arguments of a mutating command that name files,
// including the values of --option=value and attached -tDIR arguments.
func operands(name string, args []string) []string {
	var paths []string
	skipFirst := name == "chmod" || name == "chown"
	flags := true
	for _, arg := range args {
		if flags && arg == "--" {
			flags = false
			continue
		}
		if flags && strings.HasPrefix(arg, "--") {
			if _, v, ok := strings.Cut(arg, "="); ok && v != "" {
				paths = append(paths, v)
			}
			continue
		}
		if flags && strings.HasPrefix(arg, "-") && arg != "-" {
			if targetFlagCommands[name] {
				if i := strings.IndexByte(arg, 't'); i > 0 && i < len(arg)-1 {
					paths = append(paths, arg[i+1:])
				}
			}
			continue
		}
		if skipFirst {
			// The mode or owner operand.
			skipFirst = false
			continue
		}
		if name == "dd" {
			if v, ok := strings.CutPrefix(arg, "of="); ok {
				paths = append(paths, v)
			}
			continue
		}
		paths = append(paths, arg)
	}
	return paths
}

func absFrom(dir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}

// limitedBuffer keeps the first maxRunOutput bytes written to it.
type limitedBuffer struct {
	buf       bytes.Buffer
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := maxRunOutput - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
			b.truncated = true
		} else {
			b.buf.Write(p)
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
