// Package config loads the project-wide configuration document: the
// project root and the paths to units, logs, and shell definitions. Path
// values are expanded for $VAR/${VAR} references against the process
// environment exactly once, at load time, using the same POSIX expansion
// rules as the command shaper (internal/shaper).
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"mvdan.cc/sh/v3/shell"

	"github.com/SILO-GROUP/rex/internal/suite"
)

// Config holds the resolved, absolute paths the rest of Rex operates
// against, plus the Shell catalogue loaded from shellDefinitionsPath.
type Config struct {
	ProjectRoot          string
	UnitsPath            string
	LogsPath             string
	ShellDefinitionsPath string
	Shells               suite.Catalogue
}

type document struct {
	Config struct {
		ProjectRoot string `json:"project_root"`
		UnitsPath   string `json:"units_path"`
		LogsPath    string `json:"logs_path"`
		ShellsPath  string `json:"shells_path"`
	} `json:"config"`
}

// Load reads the configuration document from r, expands $VAR/${VAR}
// references in its path fields, resolves relative paths against
// project_root, canonicalizes project_root, verifies project_root,
// units_path, and shells_path exist, and loads the shell catalogue from
// shells_path.
func Load(r io.Reader) (*Config, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("config: invalid JSON: %w", err)
	}

	root, err := expandAndAbs(doc.Config.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("config: project_root: %w", err)
	}
	if err := checkPathExists("project_root", root); err != nil {
		return nil, err
	}

	unitsPath, err := resolve(root, doc.Config.UnitsPath)
	if err != nil {
		return nil, fmt.Errorf("config: units_path: %w", err)
	}
	if err := checkPathExists("units_path", unitsPath); err != nil {
		return nil, err
	}

	shellsPath, err := resolve(root, doc.Config.ShellsPath)
	if err != nil {
		return nil, fmt.Errorf("config: shells_path: %w", err)
	}
	if err := checkPathExists("shells_path", shellsPath); err != nil {
		return nil, err
	}

	logsPath, err := resolve(root, doc.Config.LogsPath)
	if err != nil {
		return nil, fmt.Errorf("config: logs_path: %w", err)
	}

	f, err := os.Open(shellsPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	cat, err := suite.LoadCatalogue(f)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &Config{
		ProjectRoot:          root,
		UnitsPath:            unitsPath,
		LogsPath:             logsPath,
		ShellDefinitionsPath: shellsPath,
		Shells:               cat,
	}, nil
}

// LoadPath opens path and loads a Config from it.
func LoadPath(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// EnsureLogsRoot creates the logs root directory if it does not exist.
func (c *Config) EnsureLogsRoot() error {
	return os.MkdirAll(c.LogsPath, 0o755)
}

func expandAndAbs(path string) (string, error) {
	expanded, err := shell.Expand(path, os.Getenv)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func resolve(root, path string) (string, error) {
	expanded, err := shell.Expand(path, os.Getenv)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(expanded) {
		return expanded, nil
	}
	return filepath.Join(root, expanded), nil
}

func checkPathExists(keyName, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config: %s %q does not exist: %w", keyName, path, err)
	}
	return nil
}
