// Package model compiles a Domain and a Scenario into a mixed-integer linear program.
//
// The Builder runs a fixed pipeline:
//
//  1. Plan: resolve purchase policy, budget, equity activation and slack use
//  2. Variables: allocation, utility, purchase, activation, deviation and slack
//     columns with tight bounds
//  3. Expressions: shared aggregates (available supply, delivered nutrients,
//     mean utilities) defined once
//  4. Constraints: registry handlers applied in scenario order
//  5. Objective: the registry objective named by the scenario
//
// Constraint Families:
//
//   - core: utility mapping and supply balance
//   - purchase: budget, big-M activation and no-waste rows
//   - equity: L1 deviation from the fair share, capped per item, per household
//     and per pair
//   - adequacy: mean-utility floors relative to the global mean, optionally
//     softened by one shared slack
//
// Handlers live in an explicit Registry passed to the Builder; DefaultRegistry
// returns a fresh registry holding the built-in families.
package model
