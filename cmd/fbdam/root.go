package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/foodbank-alloc/fbdam/internal/config"
	"github.com/foodbank-alloc/fbdam/internal/logging"
	"github.com/foodbank-alloc/fbdam/internal/metrics"
	"github.com/foodbank-alloc/fbdam/internal/optimizer"
	"github.com/foodbank-alloc/fbdam/internal/runstore"
)

// errUsage marks invalid command-line input.
var errUsage = errors.New("usage error")

// app holds the state shared by all subcommands for one invocation.
type app struct {
	out    io.Writer
	errOut io.Writer

	settings *config.Settings
	logger   logr.Logger
	zl       *zap.Logger
	registry *prometheus.Registry
	recorder *metrics.Recorder
	store    *runstore.Store
}

func newApp(out, errOut io.Writer) *app {
	return &app{out: out, errOut: errOut, logger: logr.Discard()}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "fbdam",
		Short: "Food bank allocation optimizer",
		Long: `fbdam compiles declarative food-allocation scenarios (stock, nutrient content,
household requirements, equity and adequacy dials, purchase budget) into a
mixed-integer linear program, solves it and reports allocation KPIs.

Settings come from defaults, an optional fbdam.yaml, FBDAM_* environment
variables and flags, in increasing order of precedence.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", errUsage, err)
	})
	config.AddFlags(root.PersistentFlags())

	root.AddCommand(
		a.runCommand(),
		a.batchCommand(),
		a.exportCommand(),
		a.catalogCommand(),
		a.historyCommand(),
		versionCommand(),
	)
	return root
}

// usageArgs marks positional argument errors as usage errors.
func usageArgs(v cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := v(cmd, args); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		return nil
	}
}

// setup loads settings and builds the logger and metrics registry.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[skipSetup] == "true" {
		return nil
	}
	s, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	a.settings = s

	logger, zl, err := logging.NewLogger(s.LoggingOptions())
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrSettings, err)
	}
	a.logger, a.zl = logger, zl
	logging.SetLogger(logger)
	cmd.SetContext(logging.IntoContext(cmd.Context(), logger))

	a.registry = prometheus.NewRegistry()
	if a.recorder, err = metrics.NewRecorder(a.registry); err != nil {
		return err
	}
	logger.V(logging.DEBUG).Info("Settings loaded",
		"solver", s.Solver.Name,
		"outputDir", s.OutputDir,
		"runStore", s.RunStore,
		"parallelism", s.Parallelism)
	return nil
}

// openStore opens the run history. required makes a missing run_store setting an error.
func (a *app) openStore(required bool) (*runstore.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	if a.settings.RunStore == "" {
		if required {
			return nil, fmt.Errorf("%w: run_store is not configured (set --run-store or FBDAM_RUN_STORE)", config.ErrSettings)
		}
		return nil, nil
	}
	s, err := runstore.Open(a.settings.RunStore)
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

func (a *app) pipeline() (*optimizer.Pipeline, error) {
	opts := []optimizer.Option{optimizer.WithRecorder(a.recorder)}
	store, err := a.openStore(false)
	if err != nil {
		return nil, err
	}
	if store != nil {
		opts = append(opts, optimizer.WithSink(store))
	}
	return optimizer.NewPipeline(a.settings, opts...), nil
}

// close writes the metrics textfile and releases resources.
func (a *app) close() error {
	var errs []error
	if a.settings != nil && a.settings.MetricsFile != "" && a.registry != nil {
		errs = append(errs, metrics.WriteTextfile(a.settings.MetricsFile, a.registry))
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.zl != nil {
		_ = a.zl.Sync()
	}
	return errors.Join(errs...)
}
