// Package suite loads the library of Unit definitions an operator's Plan
// draws from, either from a single units file or every "*.units" file in a
// directory, and exposes shell lookup for the command shaper.
package suite

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-multierror"
)

var requiredUnitKeys = []string{
	"name", "target", "is_shell_command", "shell_definition", "force_pty",
	"set_working_directory", "rectify", "rectifier", "active", "required",
	"set_user_context", "supply_environment", "environment",
}

type unitsDocument struct {
	Units []json.RawMessage `json:"units"`
}

// Suite is an ordered sequence of active Units. Lookup by name is linear and
// returns the first match, mirroring the original's list-backed behavior.
type Suite struct {
	units []Unit
}

// Lookup returns the first Unit in the Suite with the given name.
func (s *Suite) Lookup(name string) (Unit, bool) {
	for _, u := range s.units {
		if u.Name == name {
			return u, true
		}
	}
	return Unit{}, false
}

// Len reports how many active units the Suite holds.
func (s *Suite) Len() int { return len(s.units) }

// Load reads one units document from r.
func Load(r io.Reader) (*Suite, error) {
	var doc unitsDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("units: invalid JSON: %w", err)
	}
	return fromRaw(doc.Units)
}

// LoadPath loads the Suite from path, which is either a single units file or
// a directory containing one or more non-recursive "*.units" files.
func LoadPath(path string) (*Suite, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("units: %w", err)
	}

	if !info.IsDir() {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("units: %w", err)
		}
		defer f.Close()
		return Load(f)
	}

	matches, err := filepath.Glob(filepath.Join(path, "*.units"))
	if err != nil {
		return nil, fmt.Errorf("units: globbing %s: %w", path, err)
	}
	sort.Strings(matches)

	// Load errors are fatal regardless, but an operator fixing a directory
	// of units files benefits from seeing every malformed file at once
	// rather than one-at-a-time across repeated runs.
	var loadErrs *multierror.Error
	var all []json.RawMessage
	for _, m := range matches {
		f, err := os.Open(m)
		if err != nil {
			loadErrs = multierror.Append(loadErrs, fmt.Errorf("units: %w", err))
			continue
		}
		var doc unitsDocument
		dec := json.NewDecoder(f)
		derr := dec.Decode(&doc)
		f.Close()
		if derr != nil {
			loadErrs = multierror.Append(loadErrs, fmt.Errorf("units: %s: invalid JSON: %w", m, derr))
			continue
		}
		all = append(all, doc.Units...)
	}
	if loadErrs != nil {
		return nil, loadErrs
	}
	return fromRaw(all)
}

func fromRaw(raw []json.RawMessage) (*Suite, error) {
	s := &Suite{}
	for _, msg := range raw {
		u, err := decodeUnit(msg)
		if err != nil {
			return nil, err
		}
		if !u.Active {
			continue
		}
		if err := u.Validate(); err != nil {
			return nil, fmt.Errorf("units: %w", err)
		}
		s.units = append(s.units, u)
	}
	return s, nil
}

func decodeUnit(msg json.RawMessage) (Unit, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(msg, &fields); err != nil {
		return Unit{}, fmt.Errorf("units: invalid unit object: %w", err)
	}

	name := "?"
	if raw, ok := fields["name"]; ok {
		_ = json.Unmarshal(raw, &name)
	}

	for _, key := range requiredUnitKeys {
		if _, ok := fields[key]; !ok {
			return Unit{}, fmt.Errorf("units: unit %q missing required key %q", name, key)
		}
	}

	var u Unit
	if err := json.Unmarshal(msg, &u); err != nil {
		return Unit{}, fmt.Errorf("units: unit %q: %w", name, err)
	}
	return u, nil
}
