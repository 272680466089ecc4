package config

import (
	"fmt"
	"sort"
)

// CatalogConstraint is a packaged constraint entry.
type CatalogConstraint struct {
	ID          string `yaml:"id" json:"id"`
	Family      string `yaml:"family,omitempty" json:"family,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Params      Params `yaml:"params,omitempty" json:"params,omitempty"`
	// DialDefaults are used for dials that neither the constraint params nor
	// the scenario dials set.
	DialDefaults Params `yaml:"dial_defaults,omitempty" json:"dial_defaults,omitempty"`
}

// CatalogObjective is a packaged objective entry.
type CatalogObjective struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Sense       string `yaml:"sense" json:"sense"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Params      Params `yaml:"params,omitempty" json:"params,omitempty"`
}

// Catalog indexes packaged constraint and objective defaults by id.
type Catalog struct {
	Constraints map[string]CatalogConstraint
	Objectives  map[string]CatalogObjective
}

// NewCatalog indexes entries by id. Duplicate or empty ids are errors.
func NewCatalog(constraints []CatalogConstraint, objectives []CatalogObjective) (*Catalog, error) {
	c := &Catalog{
		Constraints: make(map[string]CatalogConstraint, len(constraints)),
		Objectives:  make(map[string]CatalogObjective, len(objectives)),
	}
	for i, e := range constraints {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: constraint catalog[%d]: missing id", ErrConfig, i)
		}
		if _, dup := c.Constraints[e.ID]; dup {
			return nil, fmt.Errorf("%w: constraint catalog: duplicate id %q", ErrConfig, e.ID)
		}
		c.Constraints[e.ID] = e
	}
	for i, e := range objectives {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: objective catalog[%d]: missing id", ErrConfig, i)
		}
		if _, dup := c.Objectives[e.ID]; dup {
			return nil, fmt.Errorf("%w: objective catalog: duplicate id %q", ErrConfig, e.ID)
		}
		if e.Name == "" {
			return nil, fmt.Errorf("%w: objective catalog %q: missing name", ErrConfig, e.ID)
		}
		if _, err := ParseSense(e.Sense); err != nil {
			return nil, fmt.Errorf("objective catalog %q: %w", e.ID, err)
		}
		c.Objectives[e.ID] = e
	}
	return c, nil
}

// MaterializeConstraint resolves ref against the catalog and merges override into its params.
func (c *Catalog) MaterializeConstraint(ref string, override Params) (MaterializedConstraint, error) {
	e, ok := c.Constraints[ref]
	if !ok {
		return MaterializedConstraint{}, fmt.Errorf("%w: unknown constraint ref %q", ErrConfig, ref)
	}
	mc := MaterializedConstraint{ID: ref, Params: DeepMerge(e.Params, override)}
	if len(e.DialDefaults) > 0 {
		mc.DialDefaults = DeepMerge(e.DialDefaults, nil)
	}
	return mc, nil
}

// MaterializeObjective resolves ref against the catalog and merges override into its params.
func (c *Catalog) MaterializeObjective(ref string, override Params) (MaterializedObjective, error) {
	e, ok := c.Objectives[ref]
	if !ok {
		return MaterializedObjective{}, fmt.Errorf("%w: unknown objective ref %q", ErrConfig, ref)
	}
	sense, err := ParseSense(e.Sense)
	if err != nil {
		return MaterializedObjective{}, err
	}
	return MaterializedObjective{ID: ref, Name: e.Name, Sense: sense, Params: DeepMerge(e.Params, override)}, nil
}

// ConstraintIDs returns the catalog constraint ids, sorted.
func (c *Catalog) ConstraintIDs() []string {
	ids := make([]string, 0, len(c.Constraints))
	for id := range c.Constraints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ObjectiveIDs returns the catalog objective ids, sorted.
func (c *Catalog) ObjectiveIDs() []string {
	ids := make([]string, 0, len(c.Objectives))
	for id := range c.Objectives {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DeepMerge returns base overlaid with override. Mappings merge recursively;
// every other value in override replaces the base value. Neither input is modified.
func DeepMerge(base, override Params) Params {
	out := make(Params, len(base)+len(override))
	for k, v := range base {
		out[k] = cloneValue(v)
	}
	for k, v := range override {
		if bm, ok := asParams(out[k]); ok {
			if om, ok := asParams(v); ok {
				out[k] = map[string]any(DeepMerge(bm, om))
				continue
			}
		}
		out[k] = cloneValue(v)
	}
	return out
}

func asParams(v any) (Params, bool) {
	switch m := v.(type) {
	case map[string]any:
		return Params(m), true
	case Params:
		return m, true
	default:
		return nil, false
	}
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return map[string]any(DeepMerge(Params(x), nil))
	case Params:
		return map[string]any(DeepMerge(x, nil))
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
