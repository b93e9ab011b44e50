// Package rexlog builds the structured logger Rex uses throughout a run:
// a zap core writing to the terminal, fanned out to the local syslog
// facility via zapext, every line tagged with a run-correlation UUID.
// Summary lines use fatih/color; everything else goes through zap's
// structured fields.
package rexlog

import (
	"fmt"
	"log/syslog"
	"os"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/tchap/zapext/zapsyslog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.SugaredLogger at the given verbosity, tagged with a
// fresh run-correlation UUID and mirrored to syslog under "rex" (§6:
// "Events mirrored to the local syslog facility under the program name").
func New(verbose bool) (*zap.SugaredLogger, error) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), level),
	}

	if writer, err := syslog.New(syslog.LOG_INFO, "rex"); err == nil {
		cores = append(cores, zapsyslog.NewCore(level, zapcore.NewJSONEncoder(encoderCfg), writer))
	}
	// A syslog daemon is not always present (containers, CI); its absence
	// degrades logging, not the run, so the error above is swallowed.

	base := zap.New(zapcore.NewTee(cores...))
	log := base.Sugar().With("run_id", uuid.NewString())
	return log, nil
}

// Summary prints an operator-facing one-line status in the teacher's
// color-coded style, distinct from the structured zap stream: green for
// success, red for failure, yellow for a non-fatal skip. It never touches
// the byte-exact output teed from a child process.
func Summary(ok bool, required bool, taskName string, detail string) {
	switch {
	case ok:
		color.New(color.FgGreen).Fprintf(os.Stdout, "[ok]   %s: %s\n", taskName, detail)
	case !required:
		color.New(color.FgYellow).Fprintf(os.Stdout, "[skip] %s: %s\n", taskName, detail)
	default:
		color.New(color.FgRed).Fprintf(os.Stdout, "[fail] %s: %s\n", taskName, detail)
	}
}

// Fatalf logs the message at error level (not zap's fatal level, so the
// process does not exit here) and returns an error carrying the same text,
// so callers can log and propagate in one call.
func Fatalf(log *zap.SugaredLogger, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	log.Error(msg)
	return fmt.Errorf("%s", msg)
}
