package suite

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func validUnitJSON(name string) string {
	return `{
		"name": "` + name + `",
		"target": "/bin/true",
		"is_shell_command": false,
		"shell_definition": "",
		"force_pty": false,
		"set_working_directory": false,
		"working_directory": "",
		"rectify": false,
		"rectifier": "",
		"active": true,
		"required": true,
		"set_user_context": false,
		"user": "",
		"group": "",
		"supply_environment": false,
		"environment": ""
	}`
}

func TestLoadSuite(t *testing.T) {
	doc := `{"units": [` + validUnitJSON("a") + `,` + validUnitJSON("b") + `]}`
	s, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())

	u, ok := s.Lookup("a")
	require.True(t, ok)
	require.Equal(t, "a", u.Name)

	_, ok = s.Lookup("missing")
	require.False(t, ok)
}

func TestLoadSuiteDropsInactive(t *testing.T) {
	inactive := strings.Replace(validUnitJSON("x"), `"active": true`, `"active": false`, 1)
	doc := `{"units": [` + inactive + `]}`
	s, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, 0, s.Len())
}

func TestLoadSuiteMissingRequiredKey(t *testing.T) {
	doc := `{"units": [{"name": "a", "target": "/bin/true"}]}`
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing required key")
}

func TestLoadSuiteInvariants(t *testing.T) {
	bad := strings.Replace(validUnitJSON("bad"), `"supply_environment": false`, `"supply_environment": true`, 1)
	doc := `{"units": [` + bad + `]}`
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	require.Contains(t, err.Error(), "supply_environment requires is_shell_command")
}

func TestLoadPathDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.units"), []byte(`{"units": [`+validUnitJSON("a")+`]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.units"), []byte(`{"units": [`+validUnitJSON("b")+`]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.json"), []byte(`not even valid json`), 0o644))

	s, err := LoadPath(dir)
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
}

func TestLoadCatalogue(t *testing.T) {
	doc := `{"shells": [{"name": "bash", "path": "/bin/bash", "execution_arg": "-c", "source_cmd": "."}]}`
	cat, err := LoadCatalogue(strings.NewReader(doc))
	require.NoError(t, err)

	sh, err := cat.Lookup("bash")
	require.NoError(t, err)
	require.Equal(t, "/bin/bash", sh.Path)

	_, err = cat.Lookup("zsh")
	require.Error(t, err)
}
