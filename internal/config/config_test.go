package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "units"), 0o755))
	writeFile(t, filepath.Join(root, "units", "a.units"), `{"units": []}`)
	writeFile(t, filepath.Join(root, "shells.json"), `{"shells": [{"name": "bash", "path": "/bin/bash", "execution_arg": "-c", "source_cmd": "."}]}`)

	doc := `{"config": {
		"project_root": "` + root + `",
		"units_path": "units",
		"logs_path": "logs",
		"shells_path": "shells.json"
	}}`

	cfg, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "units"), cfg.UnitsPath)
	require.Equal(t, filepath.Join(root, "logs"), cfg.LogsPath)
	require.Equal(t, filepath.Join(root, "shells.json"), cfg.ShellDefinitionsPath)

	sh, err := cfg.Shells.Lookup("bash")
	require.NoError(t, err)
	require.Equal(t, "/bin/bash", sh.Path)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "units"), 0o755))
	writeFile(t, filepath.Join(root, "units", "a.units"), `{"units": []}`)
	writeFile(t, filepath.Join(root, "shells.json"), `{"shells": []}`)

	t.Setenv("REX_TEST_ROOT", root)
	doc := `{"config": {
		"project_root": "${REX_TEST_ROOT}",
		"units_path": "units",
		"logs_path": "logs",
		"shells_path": "shells.json"
	}}`

	cfg, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, root, cfg.ProjectRoot)
}

func TestLoadMissingUnitsPath(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "shells.json"), `{"shells": []}`)

	doc := `{"config": {
		"project_root": "` + root + `",
		"units_path": "nope",
		"logs_path": "logs",
		"shells_path": "shells.json"
	}}`

	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	require.Contains(t, err.Error(), "units_path")
}

func TestLoadMissingProjectRoot(t *testing.T) {
	doc := `{"config": {
		"project_root": "/no/such/dir/rex-test",
		"units_path": "units",
		"logs_path": "logs",
		"shells_path": "shells.json"
	}}`

	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	require.Contains(t, err.Error(), "project_root")
}

func TestEnsureLogsRootCreatesDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "units"), 0o755))
	writeFile(t, filepath.Join(root, "units", "a.units"), `{"units": []}`)
	writeFile(t, filepath.Join(root, "shells.json"), `{"shells": []}`)

	doc := `{"config": {
		"project_root": "` + root + `",
		"units_path": "units",
		"logs_path": "logs",
		"shells_path": "shells.json"
	}}`

	cfg, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	require.NoError(t, cfg.EnsureLogsRoot())
	info, err := os.Stat(cfg.LogsPath)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
