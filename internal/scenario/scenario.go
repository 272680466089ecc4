// Package scenario reads scenario YAML files and materializes them against
// the packaged catalogs into config.Scenario values.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/foodbank-alloc/fbdam/pkg/config"
	"github.com/foodbank-alloc/fbdam/pkg/dial"
)

// File is the on-disk scenario document.
//
//	name: baseline
//	dataset:
//	  path: ../data/toy
//	model:
//	  budget: 10
//	  lambda: 0.5
//	  dials:
//	    omega: {default: 0.8, h1: 0.9}
//	  constraints:
//	    - ref: nutrition_utility_mapping
//	    - ref: household_adequacy_floor
//	      override: {use_slack: true}
//	  objective:
//	    ref: sum_utility
//	solver:
//	  profile: exact
//	  time_limit: 30
type File struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description,omitempty"`
	Dataset     DatasetRef   `yaml:"dataset"`
	Model       ModelSection `yaml:"model"`
	Solver      SolverBlock  `yaml:"solver,omitempty"`
}

// DatasetRef points at a dataset directory. Relative paths are resolved
// against the directory of the scenario file.
type DatasetRef struct {
	Path string `yaml:"path"`
}

type ModelSection struct {
	Budget            *float64             `yaml:"budget,omitempty"`
	Lambda            *float64             `yaml:"lambda,omitempty"`
	AllowPurchases    *bool                `yaml:"allow_purchases,omitempty"`
	IntegerAllocation bool                 `yaml:"integer_allocation,omitempty"`
	Dials             map[string]dial.Spec `yaml:"dials,omitempty"`
	Constraints       []Ref                `yaml:"constraints"`
	Objective         Ref                  `yaml:"objective"`
}

// Ref names a catalog entry and optionally overrides its params.
type Ref struct {
	Ref      string        `yaml:"ref"`
	Override config.Params `yaml:"override,omitempty"`
}

// SolverBlock is the scenario's solver section. Profile selects a named
// solver profile from the runtime settings.
type SolverBlock struct {
	Profile              string `yaml:"profile,omitempty"`
	config.SolverOptions `yaml:",inline"`
}

// Loaded is a materialized scenario plus where it came from.
type Loaded struct {
	Scenario *config.Scenario
	// Path is the scenario file, empty when parsed from a reader.
	Path string
	// DatasetPath is the resolved dataset directory.
	DatasetPath string
	// Profile is the solver profile the scenario asked for.
	Profile string
}

// Load reads and materializes the scenario file at path.
func Load(path string) (*Loaded, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading scenario: %w", config.ErrConfig, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfig, err)
	}
	l, err := Parse(bytes.NewReader(raw), filepath.Dir(abs), defaultName(abs))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	l.Path = abs
	return l, nil
}

// Parse decodes a scenario document. baseDir anchors a relative dataset
// path; fallbackName names a scenario without a name field.
func Parse(r io.Reader, baseDir, fallbackName string) (*Loaded, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty scenario document", config.ErrConfig)
		}
		return nil, fmt.Errorf("%w: %w", config.ErrConfig, err)
	}
	if f.Name == "" {
		f.Name = fallbackName
	}

	cat, err := Catalog()
	if err != nil {
		return nil, err
	}
	s, err := Materialize(&f, cat)
	if err != nil {
		return nil, err
	}

	l := &Loaded{Scenario: s, Profile: f.Solver.Profile}
	if p := f.Dataset.Path; p != "" {
		if !filepath.IsAbs(p) && baseDir != "" {
			p = filepath.Join(baseDir, p)
		}
		l.DatasetPath = filepath.Clean(p)
	}
	return l, nil
}

// Materialize resolves every catalog reference in f and validates the result.
func Materialize(f *File, cat *config.Catalog) (*config.Scenario, error) {
	if len(f.Model.Constraints) == 0 {
		return nil, fmt.Errorf("%w: scenario %q: model.constraints is empty", config.ErrConfig, f.Name)
	}
	if f.Model.Objective.Ref == "" {
		return nil, fmt.Errorf("%w: scenario %q: model.objective.ref is required", config.ErrConfig, f.Name)
	}

	s := &config.Scenario{
		Name:              f.Name,
		Dials:             f.Model.Dials,
		Budget:            f.Model.Budget,
		Lambda:            f.Model.Lambda,
		AllowPurchases:    f.Model.AllowPurchases,
		IntegerAllocation: f.Model.IntegerAllocation,
		Solver:            f.Solver.SolverOptions,
	}
	for i, ref := range f.Model.Constraints {
		if ref.Ref == "" {
			return nil, fmt.Errorf("%w: scenario %q: model.constraints[%d]: missing ref", config.ErrConfig, f.Name, i)
		}
		c, err := cat.MaterializeConstraint(ref.Ref, ref.Override)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: model.constraints[%d]: %w", f.Name, i, err)
		}
		s.Constraints = append(s.Constraints, c)
	}
	obj, err := cat.MaterializeObjective(f.Model.Objective.Ref, f.Model.Objective.Override)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: model.objective: %w", f.Name, err)
	}
	s.Objective = obj

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func defaultName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
