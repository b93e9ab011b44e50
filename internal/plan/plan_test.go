package plan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SILO-GROUP/rex/internal/config"
	"github.com/SILO-GROUP/rex/internal/suite"
)

func testLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	l, err := zap.NewDevelopment()
	require.NoError(t, err)
	return l.Sugar()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		ProjectRoot: root,
		LogsPath:    filepath.Join(root, "logs"),
		Shells:      suite.Catalogue{},
	}
}

func unitJSON(name, target string, rectify bool, rectifier string, required bool) string {
	rectifyStr := "false"
	if rectify {
		rectifyStr = "true"
	}
	requiredStr := "false"
	if required {
		requiredStr = "true"
	}
	return `{
		"name": "` + name + `",
		"target": "` + target + `",
		"is_shell_command": true,
		"shell_definition": "bash",
		"force_pty": false,
		"set_working_directory": false,
		"working_directory": "",
		"rectify": ` + rectifyStr + `,
		"rectifier": "` + rectifier + `",
		"active": true,
		"required": ` + requiredStr + `,
		"set_user_context": false,
		"user": "",
		"group": "",
		"supply_environment": false,
		"environment": ""
	}`
}

func loadUnits(t *testing.T, docs ...string) *suite.Suite {
	t.Helper()
	doc := `{"units": [` + strings.Join(docs, ",") + `]}`
	s, err := suite.Load(strings.NewReader(doc))
	require.NoError(t, err)
	return s
}

func withBashShell(cfg *config.Config) *config.Config {
	cfg.Shells = suite.Catalogue{
		"bash": {Name: "bash", Path: "/bin/bash", ExecutionArg: "-c", SourceSubcommand: "."},
	}
	return cfg
}

func TestPlanSuccess(t *testing.T) {
	s := loadUnits(t, unitJSON("a", "/bin/true", false, "", true))
	p, err := Load(strings.NewReader(`{"plan": [{"name": "a"}]}`), s)
	require.NoError(t, err)

	cfg := withBashShell(testConfig(t))
	require.NoError(t, cfg.EnsureLogsRoot())

	err = p.Execute(testLogger(t), cfg)
	require.NoError(t, err)

	task, ok := p.lookup("a")
	require.True(t, ok)
	require.True(t, task.Complete)
}

func TestPlanSoftFailure(t *testing.T) {
	s := loadUnits(t, unitJSON("b", "/bin/false", false, "", false))
	p, err := Load(strings.NewReader(`{"plan": [{"name": "b"}]}`), s)
	require.NoError(t, err)

	cfg := withBashShell(testConfig(t))
	require.NoError(t, cfg.EnsureLogsRoot())

	err = p.Execute(testLogger(t), cfg)
	require.NoError(t, err)

	task, ok := p.lookup("b")
	require.True(t, ok)
	require.False(t, task.Complete)
}

func TestPlanHardFailure(t *testing.T) {
	s := loadUnits(t, unitJSON("c", "/bin/false", false, "", true))
	p, err := Load(strings.NewReader(`{"plan": [{"name": "c"}]}`), s)
	require.NoError(t, err)

	cfg := withBashShell(testConfig(t))
	require.NoError(t, cfg.EnsureLogsRoot())

	err = p.Execute(testLogger(t), cfg)
	require.Error(t, err)

	var failed *PlanTaskFailed
	require.ErrorAs(t, err, &failed)
	require.Equal(t, "c", failed.Task)
}

func TestPlanRectifierHeals(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "rex-marker")

	s := loadUnits(t, unitJSON("d", "test -f "+marker, true, "touch "+marker, true))
	p, err := Load(strings.NewReader(`{"plan": [{"name": "d"}]}`), s)
	require.NoError(t, err)

	cfg := withBashShell(testConfig(t))
	require.NoError(t, cfg.EnsureLogsRoot())

	err = p.Execute(testLogger(t), cfg)
	require.NoError(t, err)

	task, ok := p.lookup("d")
	require.True(t, ok)
	require.True(t, task.Complete)

	_, serr := os.Stat(marker)
	require.NoError(t, serr)
}

func TestPlanRectifierDoesNotHeal(t *testing.T) {
	s := loadUnits(t, unitJSON("e", "/bin/false", true, "/bin/true", true))
	p, err := Load(strings.NewReader(`{"plan": [{"name": "e"}]}`), s)
	require.NoError(t, err)

	cfg := withBashShell(testConfig(t))
	require.NoError(t, cfg.EnsureLogsRoot())

	err = p.Execute(testLogger(t), cfg)
	require.Error(t, err)

	var failed *PlanTaskFailed
	require.ErrorAs(t, err, &failed)

	var lost *LostCause
	require.ErrorAs(t, err, &lost)
	require.Equal(t, "rectifier did not heal", lost.Reason)
}

func TestPlanDependencyGating(t *testing.T) {
	s := loadUnits(t,
		unitJSON("p", "/bin/false", false, "", false),
		unitJSON("q", "/bin/true", false, "", true),
	)
	p, err := Load(strings.NewReader(`{"plan": [{"name": "p"}, {"name": "q", "dependencies": ["p"]}]}`), s)
	require.NoError(t, err)

	cfg := withBashShell(testConfig(t))
	require.NoError(t, cfg.EnsureLogsRoot())

	err = p.Execute(testLogger(t), cfg)
	require.Error(t, err)

	var missing *MissingDependency
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "q", missing.Task)
}

func TestPlanUnknownUnitReference(t *testing.T) {
	s := loadUnits(t, unitJSON("a", "/bin/true", false, "", true))
	_, err := Load(strings.NewReader(`{"plan": [{"name": "does-not-exist"}]}`), s)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown unit")
}

func TestPlanUndefinedDependencyIsLoadError(t *testing.T) {
	s := loadUnits(t, unitJSON("a", "/bin/true", false, "", true))
	_, err := Load(strings.NewReader(`{"plan": [{"name": "a", "dependencies": ["nope"]}]}`), s)
	require.Error(t, err)
	require.Contains(t, err.Error(), "undefined task")
}
