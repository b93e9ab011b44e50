package launcher

import (
	"fmt"
	"os"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// PTY runs in.Argv attached to an allocated pseudo-terminal, for programs
// that refuse to behave unless stdout is a tty (§4.4). stderr is kept on a
// separate pipe so it can be teed independently of the PTY stream.
func PTY(in Inputs) (Outcome, error) {
	stdoutLog, stderrLog, err := openLogs(in.StdoutLogPath, in.StderrLogPath)
	if err != nil {
		return Outcome{}, err
	}
	defer stdoutLog.Close()
	defer stderrLog.Close()

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return Outcome{}, fmt.Errorf("launcher: pty mode requires stdin to be a terminal")
	}

	// §4.4 step 1: capture the parent's termios before anything else
	// touches it, so it can both be applied to the slave (step 4) and
	// restored once the parent itself goes raw below — mirrors the
	// original's tcgetattr(STDIN_FILENO, &ttyOrig) ahead of the fork.
	origTermios, err := unix.IoctlGetTermios(int(os.Stdin.Fd()), unix.TCGETS)
	if err != nil {
		return Outcome{}, fmt.Errorf("launcher: capturing termios: %w", err)
	}

	cmd, err := buildCmd(in)
	if err != nil {
		return Outcome{}, err
	}

	errRead, errWrite, err := os.Pipe()
	if err != nil {
		return Outcome{}, fmt.Errorf("launcher: creating stderr pipe: %w", err)
	}

	// pty.Start would overwrite cmd.Stderr with the slave, same as every
	// other stream — undoing the stderr separation §4.4 step 4 requires.
	// Open the pty ourselves instead, so stdin/stdout go to the slave but
	// stderr keeps the dedicated pipe, then start the child directly.
	master, slave, err := pty.Open()
	if err != nil {
		errRead.Close()
		errWrite.Close()
		return Outcome{}, fmt.Errorf("launcher: allocating pty: %w", err)
	}

	if ws, wserr := pty.GetsizeFull(os.Stdin); wserr == nil {
		_ = pty.Setsize(master, ws)
	}

	// §4.4 step 4: apply the captured termios to the slave before the
	// child attaches, so it inherits the user's real terminal settings
	// (erase char, echo, flow control, ...) instead of the pty's kernel
	// defaults — matches pty_fork's tcsetattr(slaveFd, TCSANOW, ...).
	if err := unix.IoctlSetTermios(int(slave.Fd()), unix.TCSETS, origTermios); err != nil {
		master.Close()
		slave.Close()
		errRead.Close()
		errWrite.Close()
		return Outcome{}, fmt.Errorf("launcher: applying termios to pty slave: %w", err)
	}

	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = errWrite
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true
	cmd.SysProcAttr.Setctty = true

	startErr := cmd.Start()
	slave.Close()
	errWrite.Close()
	if startErr != nil {
		master.Close()
		errRead.Close()
		return Outcome{}, fmt.Errorf("launcher: starting %v: %w", in.Argv, startErr)
	}

	// Scoped termios restore: oldState is a guard whose restoration is
	// deferred, so every return path below — including the tee error path
	// and the final success path — restores the parent's terminal.
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		master.Close()
		errRead.Close()
		return Outcome{}, fmt.Errorf("launcher: entering raw mode: %w", err)
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	teeErr := ptyMultiplex(master, errRead, os.Stdin, os.Stdout, os.Stderr, stdoutLog, stderrLog)

	waitErr := cmd.Wait()
	master.Close()
	errRead.Close()

	if teeErr != nil {
		return Outcome{}, teeErr
	}
	return Outcome{ExitStatus: exitStatusOf(waitErr)}, nil
}

// ptyMultiplex implements §4.4 step 6: stdin -> master passthrough,
// master -> stdout+log tee, errPipe -> stderr+log tee. stdin forwarding
// runs on its own goroutine since it blocks on terminal input rather than
// participating in the poll set that governs loop exit.
func ptyMultiplex(master, errRead, stdin, stdout, stderr, logOut, logErr *os.File) error {
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := stdin.Read(buf)
			if n > 0 {
				if werr := writeAll(master, buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	masterDone, errDone := false, false
	buf := make([]byte, 16*1024)

	for !masterDone {
		fds := make([]unix.PollFd, 0, 2)
		fds = append(fds, unix.PollFd{Fd: int32(master.Fd()), Events: unix.POLLIN})
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
			hangup := pfd.Revents&(unix.POLLHUP|unix.POLLERR) != 0
			readable := pfd.Revents&unix.POLLIN != 0
			if !hangup && !readable {
				continue
			}

			switch int(pfd.Fd) {
			case int(master.Fd()):
				if readable {
					n, rerr := master.Read(buf)
					if n > 0 {
						if werr := writeAll(stdout, buf[:n]); werr != nil {
							return werr
						}
						if werr := writeAll(logOut, buf[:n]); werr != nil {
							return werr
						}
					}
					if n == 0 || rerr != nil {
						hangup = true
					}
				}
				if hangup {
					// Master hangup ends the session: the child has exited
					// or closed its end of the pty.
					masterDone = true
				}
			case int(errRead.Fd()):
				if readable {
					n, rerr := errRead.Read(buf)
					if n > 0 {
						if werr := writeAll(stderr, buf[:n]); werr != nil {
							return werr
						}
						if werr := writeAll(logErr, buf[:n]); werr != nil {
							return werr
						}
					}
					if n == 0 || rerr != nil {
						hangup = true
					}
				}
				if hangup {
					errDone = true
				}
			}
		}
	}
	return nil
}
