package sandbox

import (
	"context"
	"os/exec"
	"time"
)

// dockerIsolator runs the interpreter in a throwaway container with the
// execution directory mounted as its working directory.
type dockerIsolator struct {
	bin    string
	policy Policy
}

func (d dockerIsolator) mode() Mode { return ModeDocker }

func (d dockerIsolator) command(ctx context.Context, j job) *exec.Cmd {
	name := "artoo-" + j.id

	args := []string{
		"run", "--rm",
		"--name", name,
		"-v", j.dir + ":/workspace",
		"-w", "/workspace",
		"-e", "HOME=/workspace",
		"-e", "TMPDIR=/workspace/tmp",
	}
	if d.policy.DockerMemory != "" {
		args = append(args, "--memory", d.policy.DockerMemory)
	}
	if !d.policy.Network {
		args = append(args, "--network=none")
	}
	args = append(args, d.policy.DockerImage, j.interpreter, j.artifact)

	cmd := exec.CommandContext(ctx, d.bin, args...)
	cmd.Dir = j.dir
	cmd.Env = j.env
	killProcessGroup(cmd)

	// Killing the docker client leaves the container running; remove it too.
	killClient := cmd.Cancel
	cmd.Cancel = func() error {
		killCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = exec.CommandContext(killCtx, d.bin, "kill", name).Run()
		return killClient()
	}
	return cmd
}
