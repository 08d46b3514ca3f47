package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/traelm/memengine/pkg/core"
	"github.com/traelm/memengine/pkg/events"
	"github.com/traelm/memengine/pkg/logging"
)

// ActionHandler executes a single rule action, grounded in the teacher's
// typed-hook-function idiom (pkg/hindsight/hooks.go's FactExtractorFn):
// callers register concrete behavior without the engine depending on any
// specific implementation.
type ActionHandler func(ctx context.Context, action Action, evt events.Event, ruleContext map[string]any) error

// Config configures an Engine.
type Config struct {
	Logger  logging.Logger
	Events  *events.Bus
	Clock   core.Clock
	Timeout time.Duration // bounds a single action's execution, per spec.md §4.7
}

// Engine evaluates enabled rules against incoming events in descending
// priority order, per spec.md §4.5.
type Engine struct {
	mu sync.RWMutex

	rules    map[string]*Rule
	states   map[string]RuleState
	handlers map[string]ActionHandler

	logger  logging.Logger
	events  *events.Bus
	clock   core.Clock
	timeout time.Duration

	state EngineState
}

// New creates a stopped Engine. Call Start before ProcessEvent will
// evaluate any rule.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Events == nil {
		cfg.Events = events.NewBus(nil)
	}
	if cfg.Clock == nil {
		cfg.Clock = core.RealClock()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Engine{
		rules:    make(map[string]*Rule),
		states:   make(map[string]RuleState),
		handlers: make(map[string]ActionHandler),
		logger:   cfg.Logger,
		events:   cfg.Events,
		clock:    cfg.Clock,
		timeout:  cfg.Timeout,
		state:    EngineStopped,
	}
}

// Start transitions the engine stopped -> running. Idempotent.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = EngineRunning
}

// Stop transitions the engine running -> stopped. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = EngineStopped
}

// State reports the engine's current stopped/running state.
func (e *Engine) State() EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// RegisterActionHandler binds an action type to the function that executes
// it. Re-registering a type replaces its handler.
func (e *Engine) RegisterActionHandler(actionType string, h ActionHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[actionType] = h
}

// AddRule registers a rule, starting in StateEnabled if r.Enabled, else
// StateDisabled. Returns core.ErrDuplicateID if the rule's ID is in use.
func (e *Engine) AddRule(r *Rule) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("rules: add rule: %w", core.ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.rules[r.ID]; exists {
		return fmt.Errorf("rules: add rule %s: %w", r.ID, core.ErrDuplicateID)
	}
	now := e.clock.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	e.rules[r.ID] = r
	if r.Enabled {
		e.states[r.ID] = StateEnabled
	} else {
		e.states[r.ID] = StateDisabled
	}
	return nil
}

// RemoveRule deletes a rule by ID. Returns core.ErrNotFound if absent.
func (e *Engine) RemoveRule(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[id]; !ok {
		return fmt.Errorf("rules: remove rule %s: %w", id, core.ErrNotFound)
	}
	delete(e.rules, id)
	delete(e.states, id)
	return nil
}

// EnableRule transitions a rule disabled -> enabled.
func (e *Engine) EnableRule(id string) error {
	return e.setEnabled(id, true)
}

// DisableRule transitions a rule enabled -> disabled. A rule mid-execution
// finishes its current action run before the transition takes effect on
// the next ProcessEvent call.
func (e *Engine) DisableRule(id string) error {
	return e.setEnabled(id, false)
}

func (e *Engine) setEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[id]
	if !ok {
		return fmt.Errorf("rules: rule %s: %w", id, core.ErrNotFound)
	}
	r.Enabled = enabled
	r.UpdatedAt = e.clock.Now()
	if enabled {
		e.states[id] = StateEnabled
	} else {
		e.states[id] = StateDisabled
	}
	return nil
}

// GetRule returns a rule by ID. Returns core.ErrNotFound if absent.
func (e *Engine) GetRule(id string) (*Rule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.rules[id]
	if !ok {
		return nil, fmt.Errorf("rules: get rule %s: %w", id, core.ErrNotFound)
	}
	return r, nil
}

// ListRules returns every registered rule, sorted by descending priority
// then ID.
func (e *Engine) ListRules() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Rule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r)
	}
	sortByPriority(out)
	return out
}

func sortByPriority(rules []*Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

// ProcessEvent evaluates every enabled rule against evt in descending
// priority order, per spec.md §4.5. A rule whose conditions all hold
// (AND) runs its actions sequentially; an engine-level error on one rule
// does not abort evaluation of the remaining rules. If the engine is not
// running, ProcessEvent is a no-op returning an empty result set.
func (e *Engine) ProcessEvent(ctx context.Context, evt events.Event, ruleContext map[string]any) []RuleExecutionResult {
	e.mu.RLock()
	if e.state != EngineRunning {
		e.mu.RUnlock()
		return nil
	}
	rules := make([]*Rule, 0, len(e.rules))
	for _, r := range e.rules {
		if e.states[r.ID] == StateEnabled {
			rules = append(rules, r)
		}
	}
	handlers := make(map[string]ActionHandler, len(e.handlers))
	for k, v := range e.handlers {
		handlers[k] = v
	}
	e.mu.RUnlock()

	sortByPriority(rules)

	doc, err := buildDocument(evt, ruleContext)
	if err != nil {
		e.logger.Error("rules: build document", "error", err)
		return nil
	}

	results := make([]RuleExecutionResult, 0, len(rules))
	for _, r := range rules {
		if !evaluateConditions(doc, r.Conditions) {
			continue
		}

		e.transition(r.ID, StateExecuting)
		result := e.runActions(ctx, r, evt, ruleContext, handlers)
		e.transition(r.ID, StateEnabled)

		results = append(results, result)

		if result.Success {
			e.events.Emit(events.RuleExecuted, result)
		} else {
			e.events.Emit(events.ExecutionError, result)
		}
	}
	return results
}

func (e *Engine) transition(ruleID string, s RuleState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.rules[ruleID]; ok {
		if s == StateEnabled && !r.Enabled {
			// DisableRule ran while the rule was executing.
			s = StateDisabled
		}
		e.states[ruleID] = s
	}
}

// runActions executes a matched rule's actions sequentially, timing each
// and bounding it by the engine's configured timeout, per spec.md §4.7.
// An action error (or timeout) marks that action as failed without
// aborting subsequent actions.
func (e *Engine) runActions(ctx context.Context, r *Rule, evt events.Event, ruleContext map[string]any, handlers map[string]ActionHandler) RuleExecutionResult {
	result := RuleExecutionResult{RuleID: r.ID, Matched: true, Success: true}

	for _, action := range r.Actions {
		handler, ok := handlers[action.Type]
		if !ok {
			result.Actions = append(result.Actions, ActionResult{
				Type:    action.Type,
				Success: false,
				Error:   fmt.Sprintf("no handler registered for action type %q", action.Type),
			})
			result.Success = false
			continue
		}

		actionCtx, cancel := context.WithTimeout(ctx, e.timeout)
		start := e.clock.Now()
		err := handler(actionCtx, action, evt, ruleContext)
		elapsed := e.clock.Now().Sub(start)
		cancel()

		ar := ActionResult{Type: action.Type, ExecutionTime: elapsed, Success: err == nil}
		if err != nil {
			ar.Error = err.Error()
			result.Success = false
		}
		result.Actions = append(result.Actions, ar)
	}

	return result
}
