// Package rules implements the condition/action rule engine that reacts
// to runtime events and memory state, per spec.md §4.5. It has no
// teacher counterpart (sqvect carries no rule engine) so it is built in
// the teacher's idiom from two of its pieces: the
// Route/RouteResult/threshold-matching shape of pkg/semantic-router's
// Router.Route for "evaluate, then dispatch to a handler", and the
// typed-hook-function + state-tracking style of
// pkg/hindsight/hooks.go for actions.
package rules

import "time"

// RuleState is a single rule's position in its disabled/enabled/executing
// state machine, per spec.md §4.5.
type RuleState string

const (
	StateDisabled  RuleState = "disabled"
	StateEnabled   RuleState = "enabled"
	StateExecuting RuleState = "executing"
)

// EngineState is the rule engine's own stopped/running state machine.
type EngineState string

const (
	EngineStopped EngineState = "stopped"
	EngineRunning EngineState = "running"
)

// Operator is a condition comparison operator, per spec.md §4.5.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpIn       Operator = "in"
	OpContains Operator = "contains"
	OpMatches  Operator = "matches"
)

// Condition tests a single dotted field path against Value using Operator.
// Field paths traverse into the merged event/context document, e.g.
// "event.payload.importance" or "context.userId".
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// Action is a typed action descriptor; Type selects the ActionHandler
// registered under that name, Params are passed through verbatim.
type Action struct {
	Type   string         `json:"type" yaml:"type"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Rule is a named, prioritized condition/action binding, per spec.md §3.
type Rule struct {
	ID         string      `json:"id" yaml:"id"`
	Name       string      `json:"name" yaml:"name"`
	Category   string      `json:"category,omitempty" yaml:"category,omitempty"`
	Priority   int         `json:"priority" yaml:"priority"`
	Enabled    bool        `json:"enabled" yaml:"enabled"`
	Conditions []Condition `json:"conditions" yaml:"conditions"`
	Actions    []Action    `json:"actions" yaml:"actions"`
	CreatedAt  time.Time   `json:"createdAt" yaml:"-"`
	UpdatedAt  time.Time   `json:"updatedAt" yaml:"-"`
}

// ActionResult reports the outcome of running a single action.
type ActionResult struct {
	Type          string        `json:"type"`
	ExecutionTime time.Duration `json:"executionTime"`
	Success       bool          `json:"success"`
	Error         string        `json:"error,omitempty"`
}

// RuleExecutionResult aggregates the outcome of evaluating one rule against
// one event, per spec.md §4.5.
type RuleExecutionResult struct {
	RuleID  string         `json:"ruleId"`
	Matched bool           `json:"matched"`
	Success bool           `json:"success"`
	Actions []ActionResult `json:"actions,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// RuleFile is the YAML shape loaded from rules.personalRulesPath /
// rules.projectRulesPath, per spec.md §6.
type RuleFile struct {
	Rules []*Rule `yaml:"rules"`
}
