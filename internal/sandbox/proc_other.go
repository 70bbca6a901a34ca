//go:build !unix

package sandbox

import (
	"os"
	"os/exec"
)

// killProcessGroup falls back to killing the direct child; process groups
// are a unix concept.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Kill()
	}
}

func termSignal(*os.ProcessState) (int, bool) { return 0, false }
