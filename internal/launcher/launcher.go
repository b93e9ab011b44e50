// Package launcher runs a single argv as a child process, tee-ing its
// output to both the caller's terminal and per-task log files, per §4.3
// and §4.4. It is a tagged variant with two constructors — Pipe and PTY —
// sharing one Outcome type; Launch dispatches between them on
// Inputs.ForcePty rather than via any shared base type.
package launcher

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/SILO-GROUP/rex/internal/identity"
)

// Abnormal is the sentinel exit status returned when the child was
// terminated by signal rather than exiting normally (§4.3 step 6).
const Abnormal = -617

// Inputs bundles everything a launcher needs to start and supervise one
// child invocation. It carries no behavior; both Pipe and PTY consume it
// identically.
type Inputs struct {
	Argv []string

	StdoutLogPath string
	StderrLogPath string

	ForcePty bool

	SwitchIdentity bool
	UID, GID       int

	SupplyEnvironment bool
}

// Outcome is the result shared by both launcher variants.
type Outcome struct {
	ExitStatus int
}

// Launch dispatches to the Pipe or PTY launcher depending on
// Inputs.ForcePty.
func Launch(in Inputs) (Outcome, error) {
	if in.ForcePty {
		return PTY(in)
	}
	return Pipe(in)
}

// buildCmd constructs the *exec.Cmd for argv, routing through the identity
// reexec helper when a privilege switch is requested. The identity switch
// itself never runs in this (the parent) process — only in the
// re-executed child image, per §4.1.
func buildCmd(in Inputs) (*exec.Cmd, error) {
	if len(in.Argv) == 0 {
		return nil, fmt.Errorf("launcher: empty argv")
	}

	if in.SwitchIdentity {
		cmd, err := identity.Command(in.Argv, in.UID, in.GID, in.SupplyEnvironment)
		if err != nil {
			return nil, fmt.Errorf("launcher: %w", err)
		}
		return cmd, nil
	}

	cmd := exec.Command(in.Argv[0], in.Argv[1:]...)
	if in.SupplyEnvironment {
		cmd.Env = []string{}
	}
	return cmd, nil
}

// openLogs opens both per-invocation log files in append-create mode,
// owner-readable only, before the child is forked (§4.3 step 1).
func openLogs(stdoutPath, stderrPath string) (stdoutLog, stderrLog *os.File, err error) {
	stdoutLog, err = os.OpenFile(stdoutPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("launcher: opening %s: %w", stdoutPath, err)
	}
	stderrLog, err = os.OpenFile(stderrPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		stdoutLog.Close()
		return nil, nil, fmt.Errorf("launcher: opening %s: %w", stderrPath, err)
	}
	return stdoutLog, stderrLog, nil
}

// writeAll retries partial writes and EINTR until every byte of buf has
// been written to w, mirroring the write_all semantics §4.3 requires for
// both the log file and the terminal sink.
func writeAll(w *os.File, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}
