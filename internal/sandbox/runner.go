package sandbox

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// waitDelay bounds how long Wait keeps draining output pipes after the
// process has been killed.
const waitDelay = 2 * time.Second

// Runner executes source code through a named interpreter.
type Runner struct {
	policy       Policy
	interpreters map[string]Interpreter
	isolator     isolator
	logger       *zap.Logger
}

// NewRunner creates a Runner for the given policy and interpreter table.
// A missing isolation wrapper is not an error: the runner falls back to
// direct execution and logs a warning.
func NewRunner(policy Policy, interpreters map[string]Interpreter, logger *zap.Logger) (*Runner, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if len(interpreters) == 0 {
		interpreters = DefaultInterpreters()
	}
	logger = logger.With(zap.String("component", "sandbox"))

	return &Runner{
		policy:       policy,
		interpreters: interpreters,
		isolator:     newIsolator(policy, logger),
		logger:       logger,
	}, nil
}

// Mode returns the isolation mode actually in use, which may be ModeNone
// when the configured wrapper was unavailable.
func (r *Runner) Mode() Mode {
	return r.isolator.mode()
}

// Timeout returns the per-execution wall-clock budget.
func (r *Runner) Timeout() time.Duration {
	return r.policy.Timeout
}

// Interpreters returns the configured interpreter names, sorted.
func (r *Runner) Interpreters() []string {
	return slices.Sorted(maps.Keys(r.interpreters))
}

// Execute writes source to a fresh artifact and runs `interpreter <artifact>`.
//
// The artifact (and its execution directory, if any) is removed on every
// return path. A run that exceeds the timeout is killed and reported with a
// TimedOut status together with whatever output it produced. The returned
// error is non-nil only when the process could not be started (ErrSpawn),
// the artifact could not be prepared, or ctx itself was cancelled.
func (r *Runner) Execute(ctx context.Context, interpreter, source string) (Result, error) {
	interp, ok := r.interpreters[interpreter]
	if !ok {
		interp = Interpreter{Command: interpreter}
	}

	j, cleanup, err := r.prepare(interp, source)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	logger := r.logger.With(zap.String("exec_id", j.id), zap.String("interpreter", interp.Command))

	execCtx, cancel := context.WithTimeout(ctx, r.policy.Timeout)
	defer cancel()

	cmd := r.isolator.command(execCtx, j)
	cmd.WaitDelay = waitDelay

	stdout := &cappedBuffer{max: r.policy.MaxOutputBytes}
	stderr := &cappedBuffer{max: r.policy.MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger.Debug("starting payload", zap.String("artifact", j.artifact), zap.String("dir", j.dir),
		zap.Duration("timeout", r.policy.Timeout))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		logger.Error("payload process failed to start", zap.Error(err))
		return Result{}, fmt.Errorf("%w: %s: %w", ErrSpawn, interp.Command, err)
	}
	waitErr := cmd.Wait()

	result := Result{Duration: time.Since(start)}

	switch {
	case ctx.Err() != nil:
		return Result{}, ctx.Err()
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		logger.Warn("payload timed out and was killed", zap.Duration("timeout", r.policy.Timeout))
		result.Status = TimedOut(r.policy.Timeout)
	default:
		code, err := exitCode(cmd, waitErr)
		if err != nil {
			return Result{}, fmt.Errorf("waiting for %s: %w", interp.Command, err)
		}
		result.Status = Exited(code)
	}

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	logger.Info("payload finished", zap.Stringer("status", result.Status), zap.Duration("duration", result.Duration))
	return result, nil
}

// exitCode extracts the exit code from a finished command.
func exitCode(cmd *exec.Cmd, waitErr error) (int, error) {
	if waitErr == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return stateCode(exitErr.ProcessState), nil
	}
	// The process exited but a grandchild kept the output pipes open.
	if errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		return stateCode(cmd.ProcessState), nil
	}
	return -1, waitErr
}

// stateCode is the exit code of a finished process, or minus the signal
// number when a signal terminated it.
func stateCode(state *os.ProcessState) int {
	if sig, ok := termSignal(state); ok {
		return -sig
	}
	return state.ExitCode()
}

// prepare writes the artifact and builds the job. The returned cleanup
// removes everything prepare created.
func (r *Runner) prepare(interp Interpreter, source string) (job, func(), error) {
	id := uuid.NewString()
	name := "artoo-" + id + interp.Extension
	env := os.Environ()

	if !r.policy.isolated() {
		f, err := os.CreateTemp("", "artoo-*"+interp.Extension)
		if err != nil {
			return job{}, nil, fmt.Errorf("creating artifact: %w", err)
		}
		cleanup := func() { r.remove(f.Name(), os.Remove) }
		if _, err := f.WriteString(source); err != nil {
			f.Close()
			cleanup()
			return job{}, nil, fmt.Errorf("writing artifact: %w", err)
		}
		if err := f.Close(); err != nil {
			cleanup()
			return job{}, nil, fmt.Errorf("closing artifact: %w", err)
		}
		return job{
			id:          id,
			interpreter: interp.Command,
			artifact:    f.Name(),
			env:         prefixPath(env, r.policy.PathPrefix),
		}, cleanup, nil
	}

	root, err := r.policy.root()
	if err != nil {
		return job{}, nil, fmt.Errorf("resolving sandbox root: %w", err)
	}
	dir := filepath.Join(root, id)
	tmp := filepath.Join(dir, "tmp")
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return job{}, nil, fmt.Errorf("creating sandbox dir: %w", err)
	}
	cleanup := func() { r.remove(dir, os.RemoveAll) }

	if err := os.WriteFile(filepath.Join(dir, name), []byte(source), 0o600); err != nil {
		cleanup()
		return job{}, nil, fmt.Errorf("writing artifact: %w", err)
	}

	env = replaceEnv(env, "HOME", dir)
	env = replaceEnv(env, "TMPDIR", tmp)
	env = replaceEnv(env, "TMP", tmp)
	env = replaceEnv(env, "TEMP", tmp)
	env = prefixPath(env, r.policy.PathPrefix)

	return job{
		id:          id,
		interpreter: interp.Command,
		artifact:    "." + string(filepath.Separator) + name,
		dir:         dir,
		env:         env,
	}, cleanup, nil
}

func (r *Runner) remove(path string, rm func(string) error) {
	if err := rm(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Error("removing artifact", zap.String("path", path), zap.Error(err))
		return
	}
	r.logger.Debug("removed artifact", zap.String("path", path))
}

// replaceEnv replaces an existing environment variable or appends it.
func replaceEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, e := range env {
		if strings.HasPrefix(e, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

// prefixPath puts dir in front of PATH.
func prefixPath(env []string, dir string) []string {
	if dir == "" {
		return env
	}
	for _, e := range env {
		if rest, ok := strings.CutPrefix(e, "PATH="); ok {
			return replaceEnv(env, "PATH", dir+string(os.PathListSeparator)+rest)
		}
	}
	return replaceEnv(env, "PATH", dir)
}
