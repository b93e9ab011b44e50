package launcher

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Pipe runs in.Argv with stdout and stderr each routed through an
// anonymous pipe, poll-multiplexed in the parent and tee'd to the
// corresponding log file, per §4.3.
func Pipe(in Inputs) (Outcome, error) {
	stdoutLog, stderrLog, err := openLogs(in.StdoutLogPath, in.StderrLogPath)
	if err != nil {
		return Outcome{}, err
	}
	defer stdoutLog.Close()
	defer stderrLog.Close()

	cmd, err := buildCmd(in)
	if err != nil {
		return Outcome{}, err
	}

	outRead, outWrite, err := os.Pipe()
	if err != nil {
		return Outcome{}, fmt.Errorf("launcher: creating stdout pipe: %w", err)
	}
	errRead, errWrite, err := os.Pipe()
	if err != nil {
		outRead.Close()
		outWrite.Close()
		return Outcome{}, fmt.Errorf("launcher: creating stderr pipe: %w", err)
	}

	cmd.Stdin = os.Stdin
	cmd.Stdout = outWrite
	cmd.Stderr = errWrite

	if startErr := cmd.Start(); startErr != nil {
		outRead.Close()
		outWrite.Close()
		errRead.Close()
		errWrite.Close()
		return Outcome{}, fmt.Errorf("launcher: starting %v: %w", in.Argv, startErr)
	}

	// The parent never writes to these; close its copies so EOF on
	// outRead/errRead is observable once the child's copies close on exit.
	outWrite.Close()
	errWrite.Close()

	teeErr := pollTee(outRead, errRead, os.Stdout, os.Stderr, stdoutLog, stderrLog)

	waitErr := cmd.Wait()

	// pollTee only closes a read end on its own EOF/hangup branch; on any
	// other error path (poll failure, write_all failure) neither has been
	// closed yet. Close both unconditionally here — a redundant close on
	// an already-closed fd is harmless — so no pipe endpoint ever survives
	// this function's return.
	outRead.Close()
	errRead.Close()

	if teeErr != nil {
		return Outcome{}, teeErr
	}
	return Outcome{ExitStatus: exitStatusOf(waitErr)}, nil
}

// pollTee multiplexes outRead and errRead with poll, copying each ready
// endpoint's bytes to its terminal sink and log file until both report EOF
// or hangup, per §4.3 steps 5-6. Each stream is drained by its own bounded
// read/write-all loop so bytes are never interleaved mid-stream.
func pollTee(outRead, errRead, termOut, termErr, logOut, logErr *os.File) error {
	outDone, errDone := false, false
	buf := make([]byte, 16*1024)

	for !outDone || !errDone {
		fds := make([]unix.PollFd, 0, 2)
		if !outDone {
			fds = append(fds, unix.PollFd{Fd: int32(outRead.Fd()), Events: unix.POLLIN})
		}
		if !errDone {
			fds = append(fds, unix.PollFd{Fd: int32(errRead.Fd()), Events: unix.POLLIN})
		}

		if _, err := unix.Poll(fds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("launcher: poll: %w", err)
		}

		for _, pfd := range fds {
			ready := pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
			if !ready {
				continue
			}

			var src, term, log *os.File
			switch int(pfd.Fd) {
			case int(outRead.Fd()):
				src, term, log = outRead, termOut, logOut
			case int(errRead.Fd()):
				src, term, log = errRead, termErr, logErr
			default:
				continue
			}

			n, rerr := src.Read(buf)
			if n > 0 {
				if werr := writeAll(term, buf[:n]); werr != nil {
					return werr
				}
				if werr := writeAll(log, buf[:n]); werr != nil {
					return werr
				}
			}
			if n == 0 || rerr != nil {
				src.Close()
				if src == outRead {
					outDone = true
				} else {
					errDone = true
				}
			}
		}
	}
	return nil
}

// exitStatusOf interprets cmd.Wait's error into §4.5's normal-exit-code-or-
// Abnormal-sentinel contract.
func exitStatusOf(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if ws.Exited() {
				return ws.ExitStatus()
			}
			return Abnormal
		}
	}
	return Abnormal
}
