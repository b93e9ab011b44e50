package suite

import "fmt"

// Unit is an immutable record describing one way to run a command: its
// identity, shell, environment, rectify policy, required flag, and
// working-directory override. Units are looked up by name from a Suite and
// bound, by value, onto a plan.Task.
type Unit struct {
	Name                string `json:"name"`
	Target              string `json:"target"`
	IsShellCommand      bool   `json:"is_shell_command"`
	ShellDefinition     string `json:"shell_definition"`
	ForcePty            bool   `json:"force_pty"`
	SetWorkingDirectory bool   `json:"set_working_directory"`
	WorkingDirectory    string `json:"working_directory"`
	Rectify             bool   `json:"rectify"`
	Rectifier           string `json:"rectifier"`
	Active              bool   `json:"active"`
	Required            bool   `json:"required"`
	SetUserContext      bool   `json:"set_user_context"`
	User                string `json:"user"`
	Group               string `json:"group"`
	SupplyEnvironment   bool   `json:"supply_environment"`
	EnvironmentFile     string `json:"environment"`
}

// Validate checks the invariants documented in §3: supplyEnvironment implies
// isShellCommand, and rectify implies a non-empty rectifier. It does not
// check shellDefinition resolution, and neither does the Suite loader: the
// shell is looked up in the Catalogue only when a plan.Task builds its
// launch inputs, so an unknown shellDefinition is reported when that Task
// executes, not at load time.
func (u Unit) Validate() error {
	if u.SupplyEnvironment && !u.IsShellCommand {
		return fmt.Errorf("unit %q: supply_environment requires is_shell_command", u.Name)
	}
	if u.Rectify && u.Rectifier == "" {
		return fmt.Errorf("unit %q: rectify is true but rectifier is empty", u.Name)
	}
	return nil
}
