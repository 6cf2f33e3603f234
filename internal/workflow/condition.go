package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Op is a comparison operator in a transition condition.
type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
)

// Condition is a closed expression over the application data snapshot:
// either a single field comparison, or a conjunction/disjunction of
// sub-conditions. Exactly one of (Field), All, Any should be set.
type Condition struct {
	Field string `json:"field,omitempty"`
	Op    Op     `json:"op,omitempty"`
	Value any    `json:"value,omitempty"`

	All []Condition `json:"all,omitempty"`
	Any []Condition `json:"any,omitempty"`
}

// Rule maps a condition to the order of the next step. A nil condition
// always matches, which makes the rule a default.
type Rule struct {
	When          *Condition `json:"when,omitempty"`
	NextStepOrder int        `json:"next_step_order"`
}

// Validate rejects malformed conditions up front so templates fail at
// creation time, not mid-workflow.
func (c *Condition) Validate() error {
	set := 0
	if c.Field != "" {
		set++
	}
	if len(c.All) > 0 {
		set++
	}
	if len(c.Any) > 0 {
		set++
	}
	if set != 1 {
		return fmt.Errorf("%w: condition must set exactly one of field, all, any", ErrInvalidInput)
	}
	if c.Field != "" {
		switch c.Op {
		case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		default:
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidInput, c.Op)
		}
	}
	for i := range c.All {
		if err := c.All[i].Validate(); err != nil {
			return err
		}
	}
	for i := range c.Any {
		if err := c.Any[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Eval evaluates the condition against the data snapshot. Missing fields
// and type mismatches evaluate to false rather than erroring, so a stale
// rule can never block a workflow with a fault.
func (c *Condition) Eval(data map[string]any) bool {
	switch {
	case len(c.All) > 0:
		for i := range c.All {
			if !c.All[i].Eval(data) {
				return false
			}
		}
		return true
	case len(c.Any) > 0:
		for i := range c.Any {
			if c.Any[i].Eval(data) {
				return true
			}
		}
		return false
	default:
		return evalComparison(lookupField(data, c.Field), c.Op, c.Value)
	}
}

// lookupField resolves a dot path ("vehicle.mileage") in the snapshot.
func lookupField(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var current any = data
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

func evalComparison(got any, op Op, want any) bool {
	if gn, gok := toFloat(got); gok {
		wn, wok := toFloat(want)
		if !wok {
			return false
		}
		switch op {
		case OpEq:
			return gn == wn
		case OpNe:
			return gn != wn
		case OpGt:
			return gn > wn
		case OpGte:
			return gn >= wn
		case OpLt:
			return gn < wn
		case OpLte:
			return gn <= wn
		}
		return false
	}
	switch op {
	case OpEq:
		return scalarEqual(got, want)
	case OpNe:
		return !scalarEqual(got, want)
	default:
		// Ordering is defined for numbers only.
		return false
	}
}

func scalarEqual(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
