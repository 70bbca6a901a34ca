// Package sandbox runs untrusted source code as an interpreter process inside
// an isolation boundary with a hard wall-clock timeout.
//
// The runner never inspects the code it runs. Safety comes from the isolation
// mode (firejail, docker, or a constrained working directory) and the timeout.
package sandbox

import (
	"errors"
	"strconv"
	"time"
)

// ErrSpawn is returned when the interpreter or isolation wrapper could not be
// started at all.
var ErrSpawn = errors.New("sandbox: process could not be started")

// Mode selects the isolation boundary around the interpreter process.
type Mode string

const (
	// ModeNone runs the interpreter directly on the host.
	ModeNone Mode = "none"
	// ModeFirejail wraps the interpreter in firejail with a private home.
	ModeFirejail Mode = "firejail"
	// ModeDocker runs the interpreter in a throwaway container.
	ModeDocker Mode = "docker"
)

// Interpreter describes how to invoke a named interpreter.
type Interpreter struct {
	Command   string `mapstructure:"command"`   // executable, e.g. "python3"
	Extension string `mapstructure:"extension"` // artifact suffix, e.g. ".py"
}

// Status is how an execution ended: either the process exited with a code,
// or it was killed after the timeout.
type Status struct {
	timedOut bool
	code     int
	timeout  time.Duration
}

// Exited is the status of a process that ran to completion.
func Exited(code int) Status { return Status{code: code} }

// TimedOut is the status of a process killed after running for d.
func TimedOut(d time.Duration) Status { return Status{timedOut: true, timeout: d} }

// TimedOut reports whether the process was killed by the timeout.
func (s Status) TimedOut() bool { return s.timedOut }

// ExitCode returns the process exit code. It is -1 for timed out runs.
func (s Status) ExitCode() int {
	if s.timedOut {
		return -1
	}
	return s.code
}

// Timeout returns the budget that was exceeded, zero unless TimedOut.
func (s Status) Timeout() time.Duration { return s.timeout }

// Seconds renders the exceeded timeout in seconds, e.g. "300" or "0.5".
func (s Status) Seconds() string {
	return strconv.FormatFloat(s.timeout.Seconds(), 'f', -1, 64)
}

func (s Status) String() string {
	if s.timedOut {
		return "timed out after " + s.Seconds() + "s"
	}
	return "exited " + strconv.Itoa(s.code)
}

// Result is the output of a sandboxed execution.
type Result struct {
	Stdout   string
	Stderr   string
	Status   Status
	Duration time.Duration
}
