package rules

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"

	"github.com/traelm/memengine/pkg/events"
)

// buildDocument merges an event and its runtime context into a single
// JSON document so Condition.Field can traverse dotted paths into either
// side uniformly (e.g. "event.payload.importance", "context.userId").
func buildDocument(evt events.Event, context map[string]any) ([]byte, error) {
	doc := map[string]any{
		"event": map[string]any{
			"name":    evt.Name,
			"payload": evt.Payload,
		},
		"context": context,
	}
	return json.Marshal(doc)
}

// evaluateCondition resolves c.Field against doc via gjson and applies
// c.Operator. Field paths absent from the document compare as a "does not
// match" rather than an error, per spec.md §4.5's AND-of-conditions model.
func evaluateCondition(doc []byte, c Condition) bool {
	result := gjson.GetBytes(doc, c.Field)
	if !result.Exists() {
		return false
	}

	switch c.Operator {
	case OpEq:
		return fmt.Sprint(result.Value()) == fmt.Sprint(c.Value)
	case OpNeq:
		return fmt.Sprint(result.Value()) != fmt.Sprint(c.Value)
	case OpGt, OpGte, OpLt, OpLte:
		return compareNumeric(result.Value(), c.Value, c.Operator)
	case OpIn:
		return valueIn(result.Value(), c.Value)
	case OpContains:
		return containsValue(result, c.Value)
	case OpMatches:
		pattern, ok := c.Value.(string)
		if !ok {
			return false
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(result.String())
	default:
		return false
	}
}

func compareNumeric(got, want any, op Operator) bool {
	a, err := cast.ToFloat64E(got)
	if err != nil {
		return false
	}
	b, err := cast.ToFloat64E(want)
	if err != nil {
		return false
	}
	switch op {
	case OpGt:
		return a > b
	case OpGte:
		return a >= b
	case OpLt:
		return a < b
	case OpLte:
		return a <= b
	default:
		return false
	}
}

// valueIn reports whether got equals one element of want, which must be a
// slice (YAML/JSON arrays decode as []any).
func valueIn(got, want any) bool {
	items, err := cast.ToSliceE(want)
	if err != nil {
		return false
	}
	gotStr := fmt.Sprint(got)
	for _, item := range items {
		if fmt.Sprint(item) == gotStr {
			return true
		}
	}
	return false
}

// containsValue supports both substring containment (field is a string)
// and membership (field is an array).
func containsValue(result gjson.Result, want any) bool {
	if result.IsArray() {
		wantStr := fmt.Sprint(want)
		for _, el := range result.Array() {
			if el.String() == wantStr {
				return true
			}
		}
		return false
	}
	wantStr, ok := want.(string)
	if !ok {
		wantStr = fmt.Sprint(want)
	}
	return regexp.MustCompile(regexp.QuoteMeta(wantStr)).MatchString(result.String())
}

// evaluateConditions ANDs every condition, per spec.md §4.5. A rule with
// no conditions always matches.
func evaluateConditions(doc []byte, conditions []Condition) bool {
	for _, c := range conditions {
		if !evaluateCondition(doc, c) {
			return false
		}
	}
	return true
}
