/*
Copyright 2025 The FBDAM Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package solver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/foodbank-alloc/fbdam/pkg/config"
	"github.com/foodbank-alloc/fbdam/pkg/lp"
)

// DefaultRelGap is the relative MIP gap used when the scenario sets none.
const DefaultRelGap = 1e-4

// Backend is a MILP engine.
type Backend interface {
	Name() string
	// Solve returns the raw outcome of one solve. A non-nil error means the
	// backend could not produce any outcome at all.
	Solve(ctx context.Context, m *lp.Model, opts Options) (*Outcome, error)
}

// Options are the backend-facing solver options.
type Options struct {
	TimeLimit time.Duration
	RelGap    float64
	Threads   int
	Extra     map[string]string
}

// OptionsFrom converts scenario solver options.
func OptionsFrom(o config.SolverOptions) Options {
	out := Options{
		TimeLimit: time.Duration(o.TimeLimit * float64(time.Second)),
		RelGap:    DefaultRelGap,
		Threads:   o.Threads,
		Extra:     o.Options,
	}
	if o.MIPRelGap != nil {
		out.RelGap = *o.MIPRelGap
	}
	return out
}

// Outcome is what a backend reports before normalization.
type Outcome struct {
	Termination string
	Objective   *float64
	BestBound   *float64
	// Values holds one value per model variable, in model order. It is nil
	// when the backend has no primal solution.
	Values []float64
	Nodes  int
}

// NewBackend returns the backend registered under name.
func NewBackend(name string) (Backend, error) {
	switch strings.ToLower(name) {
	case "", GonumName:
		return NewGonumBackend(), nil
	case HighsName:
		return NewHighsBackend(""), nil
	default:
		return nil, fmt.Errorf("unsupported solver backend %q", name)
	}
}

// Backends lists the supported backend names.
func Backends() []string {
	return []string{GonumName, HighsName}
}
