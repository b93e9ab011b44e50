// Command rex runs a declarative automation plan: an ordered list of
// named tasks, each bound to a reusable unit definition, executed
// sequentially under dependency gating.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/SILO-GROUP/rex/internal/config"
	"github.com/SILO-GROUP/rex/internal/identity"
	"github.com/SILO-GROUP/rex/internal/metrics"
	"github.com/SILO-GROUP/rex/internal/plan"
	"github.com/SILO-GROUP/rex/internal/rexlog"
	"github.com/SILO-GROUP/rex/internal/suite"
)

// cliFlags mirrors machinist.NewRootCommand's flag-bound config struct
// pattern: one struct, bound once to pflag, read by the command body.
type cliFlags struct {
	Verbose     bool
	VersionInfo bool
	ConfigPath  string
	PlanPath    string

	MetricsEnable bool
	MetricsPort   int
}

// version is overridden at link time via -ldflags, matching the
// teacher's convention for build-stamped version strings.
var version = "dev"

func main() {
	// Must run before flag parsing or any goroutine starts: if this
	// process is the reexec'd privilege-drop child, Init never returns.
	identity.Init()

	flags := &cliFlags{}
	root := newRootCommand(flags)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand(flags *cliFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rex",
		Short:         "Rex is a declarative automation runner.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags)
		},
	}

	pf := cmd.Flags()
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "raise log verbosity to debug")
	pf.BoolVarP(&flags.VersionInfo, "version_info", "i", false, "print version information and exit")
	pf.StringVarP(&flags.ConfigPath, "config", "c", "", "path to the configuration document")
	pf.StringVarP(&flags.PlanPath, "plan", "p", "", "path to the plan document")
	pf.BoolVar(&flags.MetricsEnable, "metrics-enable", false, "serve Prometheus metrics")
	pf.IntVar(&flags.MetricsPort, "metrics-port", 9090, "port to serve /metrics on")

	// §6: "-h ... prints usage to stderr." Cobra's own -h/--help handling
	// runs ahead of RunE and writes through these, so setting them here
	// (rather than only inside usage() below) covers both the no-flags
	// path and cobra's built-in help path.
	cmd.SetOut(os.Stderr)
	cmd.SetErr(os.Stderr)

	return cmd
}

func run(cmd *cobra.Command, flags *cliFlags) error {
	if flags.VersionInfo {
		fmt.Fprintf(os.Stdout, "rex %s\n", version)
		return nil
	}

	if flags.ConfigPath == "" && flags.PlanPath == "" {
		return usage(cmd)
	}
	if flags.ConfigPath == "" || flags.PlanPath == "" {
		return fmt.Errorf("both -c/--config and -p/--plan are required")
	}

	log, err := rexlog.New(flags.Verbose)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	metricsSrv, err := metrics.Start(flags.MetricsEnable, flags.MetricsPort)
	if err != nil {
		return fmt.Errorf("starting metrics server: %w", err)
	}
	defer metricsSrv.Shutdown(context.Background()) //nolint:errcheck

	cfg, err := config.LoadPath(flags.ConfigPath)
	if err != nil {
		return rexlog.Fatalf(log, "failed to load configuration: %v", err)
	}
	if err := cfg.EnsureLogsRoot(); err != nil {
		return rexlog.Fatalf(log, "failed to create logs root: %v", err)
	}

	s, err := suite.LoadPath(cfg.UnitsPath)
	if err != nil {
		return rexlog.Fatalf(log, "failed to load units: %v", err)
	}

	p, err := plan.LoadPath(flags.PlanPath, s)
	if err != nil {
		return rexlog.Fatalf(log, "failed to load plan: %v", err)
	}

	if err := p.Execute(log, cfg); err != nil {
		return rexlog.Fatalf(log, "plan execution failed: %v", err)
	}

	return nil
}

// usage prints CLI usage to stderr and exits 0, per §6: "Invocation with
// neither -c nor -p (or with -h) prints usage to stderr and exits 0." cmd's
// output streams are already pointed at stderr by newRootCommand.
func usage(cmd *cobra.Command) error {
	_ = cmd.Usage()
	os.Exit(0)
	return nil
}
