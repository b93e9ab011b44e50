// Package shaper builds the final argv for a Unit invocation. It never
// spawns anything; the launchers (internal/launcher) consume its output.
package shaper

import (
	"fmt"

	"mvdan.cc/sh/v3/shell"

	"github.com/SILO-GROUP/rex/internal/suite"
)

// Shape builds the argv for command per §4.2:
//
//   - !isShellCommand: tokenize command under POSIX word-expansion rules.
//   - isShellCommand && !supplyEnvironment: [shell.Path, shell.ExecutionArg, command].
//   - isShellCommand && supplyEnvironment: [shell.Path, shell.ExecutionArg,
//     "<shell.SourceSubcommand> <envFile> && <command>"], the third token a
//     single shell word.
func Shape(command string, isShellCommand bool, sh suite.Shell, supplyEnvironment bool, envFile string) ([]string, error) {
	if !isShellCommand {
		fields, err := shell.Fields(command, nil)
		if err != nil {
			return nil, fmt.Errorf("shaper: tokenizing %q: %w", command, err)
		}
		if len(fields) == 0 {
			return nil, fmt.Errorf("shaper: %q tokenizes to an empty argv", command)
		}
		return fields, nil
	}

	if !supplyEnvironment {
		return []string{sh.Path, sh.ExecutionArg, command}, nil
	}

	combined := fmt.Sprintf("%s %s && %s", sh.SourceSubcommand, envFile, command)
	return []string{sh.Path, sh.ExecutionArg, combined}, nil
}
