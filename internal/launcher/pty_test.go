package launcher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestPTYRequiresTerminal exercises the one branch of the PTY launcher that
// does not depend on having a real controlling terminal available: the
// upfront refusal (§4.4 step 1) when stdin is not a tty, which is always
// true under a test harness.
func TestPTYRequiresTerminal(t *testing.T) {
	_, err := PTY(Inputs{
		Argv:          []string{"/bin/true"},
		StdoutLogPath: t.TempDir() + "/stdout.log",
		StderrLogPath: t.TempDir() + "/stderr.log",
		ForcePty:      true,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "terminal")
}
