package plan

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/SILO-GROUP/rex/internal/config"
	"github.com/SILO-GROUP/rex/internal/suite"
)

// MissingDependency is raised when a Task's dependency list names a Task
// whose completion condition was not met before execution order reached
// it (§4.7 step 2).
type MissingDependency struct {
	Task string
}

func (e *MissingDependency) Error() string {
	return fmt.Sprintf("task %q: missing dependency", e.Task)
}

// PlanTaskFailed wraps any error a Task's execute raised with the Task's
// name, per §4.7 step 3.
type PlanTaskFailed struct {
	Task  string
	Cause error
}

func (e *PlanTaskFailed) Error() string {
	return fmt.Sprintf("task %q failed: %v", e.Task, e.Cause)
}

func (e *PlanTaskFailed) Unwrap() error { return e.Cause }

type planEntry struct {
	Name         string   `json:"name"`
	Dependencies []string `json:"dependencies"`
}

type planDocument struct {
	Plan []planEntry `json:"plan"`
}

// Plan is an ordered, declaration-order sequence of Tasks, each bound to a
// same-named Unit from a Suite.
type Plan struct {
	tasks []*Task
}

// Load reads a plan document from r and binds each entry to its
// same-named Unit in s. An entry naming a Unit absent from s is a
// load-time structural error (§4.7 step 1).
func Load(r io.Reader, s *suite.Suite) (*Plan, error) {
	var doc planDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("plan: invalid JSON: %w", err)
	}

	p := &Plan{}
	for _, entry := range doc.Plan {
		if entry.Name == "" {
			return nil, fmt.Errorf("plan: entry missing required key %q", "name")
		}

		u, ok := s.Lookup(entry.Name)
		if !ok {
			return nil, fmt.Errorf("plan: task %q references unknown unit %q", entry.Name, entry.Name)
		}

		var deps []string
		for _, d := range entry.Dependencies {
			if d != "" {
				deps = append(deps, d)
			}
		}

		p.tasks = append(p.tasks, &Task{
			Name:         entry.Name,
			Dependencies: deps,
			Unit:         u,
		})
	}

	// §3/§4.7 step 1: every dependency name must itself name a Task in
	// this Plan. An unresolved name is a load-time structural error, not
	// a runtime one, even though the driver also guards against it.
	for _, t := range p.tasks {
		for _, depName := range t.Dependencies {
			if _, ok := p.lookup(depName); !ok {
				return nil, fmt.Errorf("plan: task %q depends on undefined task %q", t.Name, depName)
			}
		}
	}

	return p, nil
}

// LoadPath opens path and loads a Plan bound against s.
func LoadPath(path string, s *suite.Suite) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	defer f.Close()
	return Load(f, s)
}

func (p *Plan) lookup(name string) (*Task, bool) {
	for _, t := range p.tasks {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Execute runs every Task in declaration order, gated by dependency
// completion (§4.7). It has no parallelism and no re-ordering.
func (p *Plan) Execute(log *zap.SugaredLogger, cfg *config.Config) error {
	for _, t := range p.tasks {
		for _, depName := range t.Dependencies {
			dep, ok := p.lookup(depName)
			if !ok || !dep.Complete {
				log.Errorw("task has unmet dependency, plan cannot proceed", "task", t.Name, "dependency", depName)
				return &MissingDependency{Task: t.Name}
			}
		}

		if err := t.execute(log, cfg); err != nil {
			return &PlanTaskFailed{Task: t.Name, Cause: err}
		}
	}
	return nil
}
