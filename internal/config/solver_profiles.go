package config

import (
	"fmt"
	"math"
	"sort"

	"github.com/foodbank-alloc/fbdam/internal/logging"
	scenario "github.com/foodbank-alloc/fbdam/pkg/config"
	"github.com/foodbank-alloc/fbdam/pkg/solver"
)

// GlobalDefaultsKey names the profile every other profile inherits from.
const GlobalDefaultsKey = "default"

// SolverProfile is a named set of solver options.
//
//	solver_profiles:
//	  default:
//	    time_limit: 60
//	  exact:
//	    mip_rel_gap: 0
//	    options:
//	      node_limit: "500000"
type SolverProfile struct {
	Solver string `mapstructure:"solver" yaml:"solver,omitempty" json:"solver,omitempty"`

	// TimeLimit is in seconds.
	TimeLimit float64 `mapstructure:"time_limit" yaml:"time_limit,omitempty" json:"time_limit,omitempty"`

	// MIPRelGap uses a pointer so that an explicit zero overrides the default.
	MIPRelGap *float64 `mapstructure:"mip_rel_gap" yaml:"mip_rel_gap,omitempty" json:"mip_rel_gap,omitempty"`

	Threads int `mapstructure:"threads" yaml:"threads,omitempty" json:"threads,omitempty"`

	Options map[string]string `mapstructure:"options" yaml:"options,omitempty" json:"options,omitempty"`
}

// Validate checks for invalid profile values.
func (p *SolverProfile) Validate() error {
	if p.Solver != "" {
		if _, err := solver.NewBackend(p.Solver); err != nil {
			return err
		}
	}
	if p.TimeLimit < 0 || math.IsNaN(p.TimeLimit) {
		return fmt.Errorf("time_limit must be >= 0, got %v", p.TimeLimit)
	}
	if p.MIPRelGap != nil && (*p.MIPRelGap < 0 || *p.MIPRelGap >= 1) {
		return fmt.Errorf("mip_rel_gap must be in [0, 1), got %v", *p.MIPRelGap)
	}
	if p.Threads < 0 {
		return fmt.Errorf("threads must be >= 0, got %d", p.Threads)
	}
	return nil
}

// SolverOptions converts the profile into scenario solver options.
func (p SolverProfile) SolverOptions() scenario.SolverOptions {
	return scenario.SolverOptions{
		Name:      p.Solver,
		TimeLimit: p.TimeLimit,
		MIPRelGap: p.MIPRelGap,
		Threads:   p.Threads,
		Options:   p.Options,
	}
}

// ParseSolverProfiles drops invalid profiles, logging each one, and returns
// the remaining profiles. Keys are visited in sorted order so logs are stable.
func ParseSolverProfiles(in map[string]SolverProfile) map[string]SolverProfile {
	out := make(map[string]SolverProfile, len(in))
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		profile := in[key]
		if err := profile.Validate(); err != nil {
			logging.Log().Info("Invalid solver profile, skipping",
				"profile", key,
				"error", err)
			continue
		}
		out[key] = profile
	}
	return out
}

// GetSolverProfile returns the profile for name merged over the global
// defaults. Zero fields in the named profile inherit from "default". An
// unknown name yields the defaults alone.
func GetSolverProfile(profiles map[string]SolverProfile, name string) SolverProfile {
	result := profiles[GlobalDefaultsKey]
	if name == "" || name == GlobalDefaultsKey {
		return result
	}
	override, ok := profiles[name]
	if !ok {
		return result
	}

	if override.Solver != "" {
		result.Solver = override.Solver
	}
	if override.TimeLimit != 0 {
		result.TimeLimit = override.TimeLimit
	}
	if override.MIPRelGap != nil {
		result.MIPRelGap = override.MIPRelGap
	}
	if override.Threads != 0 {
		result.Threads = override.Threads
	}
	if len(override.Options) > 0 {
		merged := make(map[string]string, len(result.Options)+len(override.Options))
		for k, v := range result.Options {
			merged[k] = v
		}
		for k, v := range override.Options {
			merged[k] = v
		}
		result.Options = merged
	}
	return result
}
