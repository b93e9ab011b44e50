package identity

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/docker/docker/pkg/reexec"
)

// reexecCommandName is the argv[0] docker/reexec dispatches on to land back
// inside this package as a brand new process image, still running under the
// caller's original identity. See faketree's enterPrivileges/
// initializePrivileges split for the pattern this mirrors: Go cannot fork()
// safely once a program has more than one OS thread, so dropping privileges
// between fork and exec is done instead by re-executing the binary itself
// with a reserved name, doing the privilege drop in that fresh process, and
// then exec()ing into the real target.
const reexecCommandName = "rex-identity-child"

const (
	envUID      = "REX_IDENTITY_UID"
	envGID      = "REX_IDENTITY_GID"
	envClearEnv = "REX_IDENTITY_CLEARENV"
)

func init() {
	reexec.Register(reexecCommandName, runIdentityChild)
}

// Init must be called once, early in main(), before any flag parsing or
// goroutines start. If the current process was invoked as the reexec child
// (i.e. this is the re-executed image), Init never returns: it performs the
// identity switch and execs the real target or exits with a diagnostic.
func Init() {
	if reexec.Init() {
		os.Exit(0) // unreachable: runIdentityChild always exits or execs.
	}
}

// Command returns an *exec.Cmd that, when started, re-executes this binary,
// switches to uid/gid inside that fresh process, and then execs argv. The
// caller wires Stdout/Stderr/Stdin and SysProcAttr exactly as it would for
// any other *exec.Cmd — the identity switch is transparent to it. When
// clearEnv is true, argv is exec'd with an empty environment in the child
// (§4.3 step 4: "If supplyEnvironment, fully clear the current environment
// first"), never in this, the parent, process.
func Command(argv []string, uid, gid int, clearEnv bool) (*exec.Cmd, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("identity: empty argv")
	}
	args := append([]string{reexecCommandName}, argv...)
	cmd := reexec.Command(args...)
	cmd.Env = append(os.Environ(),
		envUID+"="+strconv.Itoa(uid),
		envGID+"="+strconv.Itoa(gid),
	)
	if clearEnv {
		cmd.Env = append(cmd.Env, envClearEnv+"=1")
	}
	return cmd, nil
}

// runIdentityChild is invoked by docker/reexec when this binary is
// re-executed with argv[0] == reexecCommandName. It never returns: on
// success it replaces its own process image via syscall.Exec; on failure it
// prints a diagnostic naming the distinguished Result and exits nonzero.
func runIdentityChild() {
	uid, err := strconv.Atoi(os.Getenv(envUID))
	if err != nil {
		fmt.Fprintf(os.Stderr, "rex-identity-child: invalid uid: %v\n", err)
		os.Exit(1)
	}
	gid, err := strconv.Atoi(os.Getenv(envGID))
	if err != nil {
		fmt.Fprintf(os.Stderr, "rex-identity-child: invalid gid: %v\n", err)
		os.Exit(1)
	}

	if err := SwitchNumeric(uid, gid); err != nil {
		fmt.Fprintf(os.Stderr, "rex-identity-child: %v\n", err)
		os.Exit(1)
	}

	argv := os.Args[1:]
	if len(argv) == 0 {
		fmt.Fprintln(os.Stderr, "rex-identity-child: no target command supplied")
		os.Exit(1)
	}

	binary, err := exec.LookPath(argv[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "rex-identity-child: %v\n", err)
		os.Exit(1)
	}

	env := os.Environ()
	if os.Getenv(envClearEnv) != "" {
		env = nil
	}

	if err := syscall.Exec(binary, argv, env); err != nil {
		fmt.Fprintf(os.Stderr, "rex-identity-child: exec %s: %v\n", binary, err)
		os.Exit(1)
	}
}
