package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Policy defines the isolation and resource limits for every execution.
type Policy struct {
	Mode           Mode          `mapstructure:"mode"`
	Root           string        `mapstructure:"root"`             // sandbox root; each run gets its own subdirectory
	Timeout        time.Duration `mapstructure:"timeout"`          // wall-clock budget per run
	PathPrefix     string        `mapstructure:"path_prefix"`      // prepended to PATH, for sandbox-local interpreters
	DockerImage    string        `mapstructure:"docker_image"`     // image used in docker mode
	DockerMemory   string        `mapstructure:"docker_memory"`    // docker memory limit (e.g. "256m")
	Network        bool          `mapstructure:"network"`          // allow network access where the mode can restrict it
	MaxOutputBytes int           `mapstructure:"max_output_bytes"` // per stream
}

// DefaultTimeout is how long a payload may run before it is killed.
const DefaultTimeout = 300 * time.Second

// DefaultPolicy returns safe defaults for code execution.
func DefaultPolicy() Policy {
	return Policy{
		Mode:           ModeNone,
		Timeout:        DefaultTimeout,
		DockerImage:    "python:3.12-slim",
		DockerMemory:   "256m",
		MaxOutputBytes: 1 << 20,
	}
}

// DefaultInterpreters is the interpreter table used when none is configured.
func DefaultInterpreters() map[string]Interpreter {
	return map[string]Interpreter{
		"python": {Command: "python", Extension: ".py"},
		"bash":   {Command: "bash", Extension: ".sh"},
	}
}

// Validate checks the policy for values the runner cannot work with.
func (p Policy) Validate() error {
	switch p.Mode {
	case ModeNone, ModeFirejail, ModeDocker:
	case "":
		return fmt.Errorf("sandbox mode is required")
	default:
		return fmt.Errorf("unknown sandbox mode %q (want none, firejail or docker)", p.Mode)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("sandbox timeout must be positive, got %s", p.Timeout)
	}
	if p.Mode == ModeDocker && p.DockerImage == "" {
		return fmt.Errorf("docker mode requires an image")
	}
	return nil
}

// isolated reports whether executions get a dedicated sandbox directory.
func (p Policy) isolated() bool {
	return p.Mode != ModeNone || p.Root != ""
}

// root returns the absolute sandbox root, defaulting to a directory under
// the system temp dir.
func (p Policy) root() (string, error) {
	root := p.Root
	if root == "" {
		root = filepath.Join(os.TempDir(), "artoo-sandbox")
	}
	return filepath.Abs(root)
}
