// Package config loads runtime settings for the fbdam command.
//
// Settings are resolved, lowest precedence first, from built-in defaults, an
// optional settings file, FBDAM_* environment variables and command-line
// flags. Nested keys map to environment variables by replacing dots with
// underscores: solver.time_limit is FBDAM_SOLVER_TIME_LIMIT.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/foodbank-alloc/fbdam/internal/logging"
	scenario "github.com/foodbank-alloc/fbdam/pkg/config"
	"github.com/foodbank-alloc/fbdam/pkg/solver"
)

const (
	// EnvPrefix prefixes every settings environment variable.
	EnvPrefix = "FBDAM"
	// DefaultSettingsName is searched for when no settings file is given.
	DefaultSettingsName = "fbdam"
)

// ErrSettings is returned for invalid runtime settings.
var ErrSettings = errors.New("invalid settings")

// Settings are the runtime knobs of the command. Scenario files carry
// everything that shapes the model itself.
type Settings struct {
	Solver SolverSettings `mapstructure:"solver"`

	// OutputDir receives run reports and MPS exports.
	OutputDir string `mapstructure:"output_dir"`

	// RunStore is the SQLite run history path. Empty disables history.
	RunStore string `mapstructure:"run_store"`

	// MetricsFile receives a Prometheus textfile after each command. Empty disables it.
	MetricsFile string `mapstructure:"metrics_file"`

	// Parallelism bounds concurrent scenario runs in a batch.
	Parallelism int `mapstructure:"parallelism"`

	Log LogSettings `mapstructure:"log"`

	// Profiles are named solver option sets selected by scenarios.
	Profiles map[string]SolverProfile `mapstructure:"solver_profiles"`
}

// SolverSettings are the solver defaults applied under every scenario.
type SolverSettings struct {
	Name      string  `mapstructure:"name"`
	TimeLimit float64 `mapstructure:"time_limit"`
	MIPRelGap float64 `mapstructure:"mip_rel_gap"`
	Threads   int     `mapstructure:"threads"`
	// HighsPath is the HiGHS executable; empty looks up "highs" in PATH.
	HighsPath string `mapstructure:"highs_path"`
}

type LogSettings struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// flagKeys maps command-line flags to settings keys.
var flagKeys = map[string]string{
	"solver":          "solver.name",
	"time-limit":      "solver.time_limit",
	"mip-rel-gap":     "solver.mip_rel_gap",
	"threads":         "solver.threads",
	"highs-path":      "solver.highs_path",
	"output-dir":      "output_dir",
	"run-store":       "run_store",
	"metrics-file":    "metrics_file",
	"parallelism":     "parallelism",
	"log-level":       "log.level",
	"log-development": "log.development",
}

// AddFlags registers the settings flags on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "settings file (default: ./fbdam.yaml or $HOME/.config/fbdam/fbdam.yaml when present)")
	fs.String("solver", "", "solver backend: "+strings.Join(solver.Backends(), ", "))
	fs.Float64("time-limit", 0, "solver time limit in seconds (0 = none)")
	fs.Float64("mip-rel-gap", 0, "relative MIP gap")
	fs.Int("threads", 0, "solver threads (0 = backend default)")
	fs.String("highs-path", "", "path to the highs executable")
	fs.String("output-dir", "", "directory for run reports and exports")
	fs.String("run-store", "", "SQLite run history file (empty disables history)")
	fs.String("metrics-file", "", "write Prometheus metrics to this textfile")
	fs.Int("parallelism", 0, "concurrent scenario runs in a batch")
	fs.String("log-level", "", "log level: info, debug, trace, warn, error")
	fs.Bool("log-development", false, "human-readable development logging")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("solver.name", solver.GonumName)
	v.SetDefault("solver.time_limit", 0.0)
	v.SetDefault("solver.mip_rel_gap", solver.DefaultRelGap)
	v.SetDefault("solver.threads", 0)
	v.SetDefault("solver.highs_path", "")
	v.SetDefault("output_dir", "runs")
	v.SetDefault("run_store", "")
	v.SetDefault("metrics_file", "")
	v.SetDefault("parallelism", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load resolves settings. fs may be nil.
func Load(fs *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for flag, key := range flagKeys {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %q: %w", flag, err)
				}
			}
		}
		if f := fs.Lookup("config"); f != nil {
			if err := v.BindPFlag("config", f); err != nil {
				return nil, fmt.Errorf("binding flag %q: %w", "config", err)
			}
		}
	}

	if err := readSettingsFile(v); err != nil {
		return nil, err
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSettings, err)
	}
	s.Profiles = ParseSolverProfiles(s.Profiles)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func readSettingsFile(v *viper.Viper) error {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: reading %s: %w", ErrSettings, path, err)
		}
		return nil
	}
	v.SetConfigName(DefaultSettingsName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "fbdam"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrSettings, err)
	}
	return nil
}

// Validate checks value ranges.
func (s *Settings) Validate() error {
	if _, err := solver.NewBackend(s.Solver.Name); err != nil {
		return fmt.Errorf("%w: solver.name: %w", ErrSettings, err)
	}
	if s.Solver.TimeLimit < 0 {
		return fmt.Errorf("%w: solver.time_limit must be >= 0, got %v", ErrSettings, s.Solver.TimeLimit)
	}
	if s.Solver.MIPRelGap < 0 {
		return fmt.Errorf("%w: solver.mip_rel_gap must be >= 0, got %v", ErrSettings, s.Solver.MIPRelGap)
	}
	if s.Solver.Threads < 0 {
		return fmt.Errorf("%w: solver.threads must be >= 0, got %d", ErrSettings, s.Solver.Threads)
	}
	if s.Parallelism < 1 {
		return fmt.Errorf("%w: parallelism must be >= 1, got %d", ErrSettings, s.Parallelism)
	}
	if _, err := logging.ParseLevel(s.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrSettings, err)
	}
	return nil
}

// SolverDefaults returns the solver options every scenario starts from.
func (s *Settings) SolverDefaults() scenario.SolverOptions {
	gap := s.Solver.MIPRelGap
	return scenario.SolverOptions{
		Name:      s.Solver.Name,
		TimeLimit: s.Solver.TimeLimit,
		MIPRelGap: &gap,
		Threads:   s.Solver.Threads,
	}
}

// EffectiveSolver layers settings defaults, the "default" profile, the named
// profile and finally the scenario's own solver options.
func (s *Settings) EffectiveSolver(profile string, own scenario.SolverOptions) (scenario.SolverOptions, error) {
	if profile != "" && profile != GlobalDefaultsKey {
		if _, ok := s.Profiles[profile]; !ok {
			return scenario.SolverOptions{}, fmt.Errorf("%w: unknown solver profile %q", scenario.ErrConfig, profile)
		}
	}
	out := s.SolverDefaults().Merge(GetSolverProfile(s.Profiles, profile).SolverOptions())
	return out.Merge(own), nil
}

// LoggingOptions returns the logger options.
func (s *Settings) LoggingOptions() logging.Options {
	return logging.Options{Level: s.Log.Level, Development: s.Log.Development}
}
