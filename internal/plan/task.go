// Package plan implements the Task lifecycle (the rectify/required
// decision tree, §4.6) and the Plan driver that sequences Tasks under
// dependency gating (§4.7).
package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/SILO-GROUP/rex/internal/config"
	"github.com/SILO-GROUP/rex/internal/identity"
	"github.com/SILO-GROUP/rex/internal/launcher"
	"github.com/SILO-GROUP/rex/internal/metrics"
	"github.com/SILO-GROUP/rex/internal/rexlog"
	"github.com/SILO-GROUP/rex/internal/shaper"
	"github.com/SILO-GROUP/rex/internal/suite"
)

// LostCause is raised when a required Task cannot be healed by its
// rectifier: either the rectifier itself failed (§4.6, leaf a1/required,
// Reason "rectifier failed") or it ran clean but the retried target still
// failed (leaf a2/required, Reason "rectifier did not heal").
type LostCause struct {
	Task   string
	Reason string
}

func (e *LostCause) Error() string {
	return fmt.Sprintf("task %q: lost cause: %s", e.Task, e.Reason)
}

// TaskFailed is raised when a required Task with rectify=false fails.
type TaskFailed struct {
	Task string
}

func (e *TaskFailed) Error() string {
	return fmt.Sprintf("task %q: required and failed", e.Task)
}

// Task is one Plan entry: a name, a dependency list, and a Unit bound by
// value (§9 design note: value-owned, not a Suite reference).
type Task struct {
	Name         string
	Dependencies []string

	Unit     suite.Unit
	Complete bool
}

// execute runs the decision tree described in §4.6 against t.Unit, using
// cfg for the shell catalogue and logs root.
func (t *Task) execute(log *zap.SugaredLogger, cfg *config.Config) error {
	start := time.Now()
	defer func() {
		metrics.TaskDuration.WithLabelValues(t.Name).Observe(time.Since(start).Seconds())
	}()

	logDir := filepath.Join(cfg.LogsPath, t.Name)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("task %q: creating log directory: %w", t.Name, err)
	}

	if t.Unit.SetWorkingDirectory {
		if err := os.Chdir(t.Unit.WorkingDirectory); err != nil {
			return fmt.Errorf("task %q: chdir %q: %w", t.Name, t.Unit.WorkingDirectory, err)
		}
	}

	timestamp := time.Now().Format("2006-01-02_15:04:05")
	stdoutLog := filepath.Join(logDir, timestamp+".stdout.log")
	stderrLog := filepath.Join(logDir, timestamp+".stderr.log")

	in, err := t.buildInputs(cfg, t.Unit.Target, stdoutLog, stderrLog)
	if err != nil {
		return fmt.Errorf("task %q: %w", t.Name, err)
	}

	out, err := launcher.Launch(in)
	if err != nil {
		return fmt.Errorf("task %q: launching target: %w", t.Name, err)
	}

	// a0
	if out.ExitStatus == 0 {
		t.Complete = true
		metrics.TasksTotal.WithLabelValues(metrics.OutcomeComplete).Inc()
		rexlog.Summary(true, t.Unit.Required, t.Name, "target succeeded")
		return nil
	}

	if !t.Unit.Rectify {
		if !t.Unit.Required {
			log.Warnw("task target failed, not required, continuing", "task", t.Name, "exit_status", out.ExitStatus)
			log.Infow("plan will continue", "task", t.Name)
			metrics.TasksTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
			rexlog.Summary(false, false, t.Name, "target failed, not required")
			return nil
		}
		log.Errorw("task is required and failed, rectification not enabled", "task", t.Name)
		metrics.TasksTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		rexlog.Summary(false, true, t.Name, "target failed, required")
		return &TaskFailed{Task: t.Name}
	}

	// a1: rectifier shares the target's log pair (§9 design note).
	rectIn, err := t.buildInputs(cfg, t.Unit.Rectifier, stdoutLog, stderrLog)
	if err != nil {
		return fmt.Errorf("task %q: rectifier: %w", t.Name, err)
	}
	rectOut, err := launcher.Launch(rectIn)
	if err != nil {
		return fmt.Errorf("task %q: launching rectifier: %w", t.Name, err)
	}

	if rectOut.ExitStatus != 0 {
		if !t.Unit.Required {
			log.Warnw("rectifier failed, task not required, continuing", "task", t.Name, "exit_status", rectOut.ExitStatus)
			log.Infow("plan will continue", "task", t.Name)
			metrics.TasksTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
			rexlog.Summary(false, false, t.Name, "rectifier failed, not required")
			return nil
		}
		log.Errorw("task is required, failed, and rectification failed", "task", t.Name)
		metrics.TasksTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		rexlog.Summary(false, true, t.Name, "rectifier failed")
		return &LostCause{Task: t.Name, Reason: "rectifier failed"}
	}

	// a2: retry the target exactly once.
	retryOut, err := launcher.Launch(in)
	if err != nil {
		return fmt.Errorf("task %q: re-launching target: %w", t.Name, err)
	}

	if retryOut.ExitStatus == 0 {
		t.Complete = true
		metrics.TasksTotal.WithLabelValues(metrics.OutcomeComplete).Inc()
		rexlog.Summary(true, t.Unit.Required, t.Name, "target healed after rectifier")
		return nil
	}

	if !t.Unit.Required {
		log.Warnw("rectified retry still failed, task not required, continuing", "task", t.Name, "exit_status", retryOut.ExitStatus)
		log.Infow("plan will continue", "task", t.Name)
		metrics.TasksTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
		rexlog.Summary(false, false, t.Name, "target did not heal, not required")
		return nil
	}
	log.Errorw("task is required, rectified, but target did not heal", "task", t.Name)
	metrics.TasksTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
	rexlog.Summary(false, true, t.Name, "target did not heal")
	return &LostCause{Task: t.Name, Reason: "rectifier did not heal"}
}

func (t *Task) buildInputs(cfg *config.Config, command, stdoutLog, stderrLog string) (launcher.Inputs, error) {
	var sh suite.Shell
	var err error
	if t.Unit.IsShellCommand {
		sh, err = cfg.Shells.Lookup(t.Unit.ShellDefinition)
		if err != nil {
			return launcher.Inputs{}, err
		}
	}

	argv, err := shaper.Shape(command, t.Unit.IsShellCommand, sh, t.Unit.SupplyEnvironment, t.Unit.EnvironmentFile)
	if err != nil {
		return launcher.Inputs{}, err
	}

	in := launcher.Inputs{
		Argv:              argv,
		StdoutLogPath:     stdoutLog,
		StderrLogPath:     stderrLog,
		ForcePty:          t.Unit.ForcePty,
		SupplyEnvironment: t.Unit.SupplyEnvironment,
	}

	if t.Unit.SetUserContext {
		uid, gid, err := identity.Lookup(t.Unit.User, t.Unit.Group)
		if err != nil {
			return launcher.Inputs{}, fmt.Errorf("resolving identity %s:%s: %w", t.Unit.User, t.Unit.Group, err)
		}
		in.SwitchIdentity = true
		in.UID, in.GID = uid, gid
	}

	return in, nil
}
