package sandbox

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// job is one prepared execution: the artifact is already on disk.
type job struct {
	id          string
	interpreter string   // executable to run
	artifact    string   // path argument, relative to dir when dir is set
	dir         string   // execution directory, empty for unisolated runs
	env         []string // full process environment
}

// isolator turns a job into a ready-to-start command.
type isolator interface {
	mode() Mode
	command(ctx context.Context, j job) *exec.Cmd
}

// directIsolator runs the interpreter on the host. With a sandbox directory
// the process still starts there with HOME and TMPDIR pointing inside it.
type directIsolator struct {
	pathPrefix string
}

func (directIsolator) mode() Mode { return ModeNone }

func (d directIsolator) command(ctx context.Context, j job) *exec.Cmd {
	cmd := exec.CommandContext(ctx, lookInPrefix(d.pathPrefix, j.interpreter), j.artifact)
	cmd.Dir = j.dir
	cmd.Env = j.env
	killProcessGroup(cmd)
	return cmd
}

// firejailIsolator wraps the interpreter in firejail with the execution
// directory as its private home.
type firejailIsolator struct {
	bin     string
	network bool
}

func (f firejailIsolator) mode() Mode { return ModeFirejail }

func (f firejailIsolator) command(ctx context.Context, j job) *exec.Cmd {
	args := []string{"--quiet", "--private=" + j.dir}
	if !f.network {
		args = append(args, "--net=none")
	}
	args = append(args, "--", j.interpreter, j.artifact)

	cmd := exec.CommandContext(ctx, f.bin, args...)
	cmd.Dir = j.dir
	cmd.Env = j.env
	killProcessGroup(cmd)
	return cmd
}

// newIsolator picks the isolator for policy, degrading to direct execution
// when the wrapper binary is not installed.
func newIsolator(policy Policy, logger *zap.Logger) isolator {
	var bin string
	switch policy.Mode {
	case ModeFirejail:
		bin = "firejail"
	case ModeDocker:
		bin = "docker"
	default:
		return directIsolator{pathPrefix: policy.PathPrefix}
	}

	path, err := exec.LookPath(bin)
	if err != nil {
		logger.Warn("isolation wrapper not found, running payloads without isolation",
			zap.String("mode", string(policy.Mode)), zap.Error(err))
		return directIsolator{pathPrefix: policy.PathPrefix}
	}

	if policy.Mode == ModeDocker {
		return dockerIsolator{bin: path, policy: policy}
	}
	return firejailIsolator{bin: path, network: policy.Network}
}

// lookInPrefix resolves a bare interpreter name against the sandbox-local
// path prefix. exec resolves names with the parent's PATH, so the prefix in
// the child environment alone would not find sandbox-local interpreters.
func lookInPrefix(prefix, name string) string {
	if prefix == "" || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	for _, dir := range filepath.SplitList(prefix) {
		candidate := filepath.Join(dir, name)
		fi, err := os.Stat(candidate)
		if err == nil && !fi.IsDir() && fi.Mode()&0o111 != 0 {
			return candidate
		}
	}
	return name
}
