// Package config defines the scenario an allocation model is compiled from.
//
// Configuration Types:
//
//   - Scenario: dials, budget, penalty, purchase policy, activated constraints,
//     objective and solver options
//   - MaterializedConstraint / MaterializedObjective: a registry identifier plus
//     fully merged parameters
//   - Catalog: the packaged constraint and objective defaults that scenario
//     entries reference by id and override
//
// Materialization deep-merges catalog params with scenario overrides: nested
// mappings merge key by key, scalars and lists are replaced.
//
// Example usage:
//
//	c, err := catalog.MaterializeConstraint("household_adequacy_floor",
//	    config.Params{"use_slack": true})
package config
