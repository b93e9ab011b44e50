package suite

import (
	"encoding/json"
	"fmt"
	"io"
)

// Shell is an immutable record describing an interpreter a Unit can be run
// through: the path to its binary, the flag used to run an inline command
// string, and the builtin used to source an environment file.
type Shell struct {
	Name             string `json:"name"`
	Path             string `json:"path"`
	ExecutionArg     string `json:"execution_arg"`
	SourceSubcommand string `json:"source_cmd"`
}

// Catalogue is a name -> Shell lookup populated once at Config load time and
// shared, read-only, for the lifetime of a Plan.
type Catalogue map[string]Shell

type shellsDocument struct {
	Shells []Shell `json:"shells"`
}

// LoadCatalogue parses the shells document (§6) from r into a Catalogue.
func LoadCatalogue(r io.Reader) (Catalogue, error) {
	var doc shellsDocument
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("shells: invalid JSON: %w", err)
	}

	cat := make(Catalogue, len(doc.Shells))
	for _, sh := range doc.Shells {
		if sh.Name == "" {
			return nil, fmt.Errorf("shells: entry missing required key %q", "name")
		}
		if sh.Path == "" {
			return nil, fmt.Errorf("shells: shell %q missing required key %q", sh.Name, "path")
		}
		cat[sh.Name] = sh
	}
	return cat, nil
}

// Lookup resolves a shell by name, returning an error that names the
// unresolved shell if it is not in the catalogue.
func (c Catalogue) Lookup(name string) (Shell, error) {
	sh, ok := c[name]
	if !ok {
		return Shell{}, fmt.Errorf("shells: unknown shell definition %q", name)
	}
	return sh, nil
}
