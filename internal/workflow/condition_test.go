package workflow

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestConditionComparisons(t *testing.T) {
	data := map[string]any{
		"mileage": float64(120000),
		"urgent":  true,
		"vehicle": map[string]any{"category": "truck"},
	}

	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"eq number", Condition{Field: "mileage", Op: OpEq, Value: 120000}, true},
		{"gt number", Condition{Field: "mileage", Op: OpGt, Value: 100000}, true},
		{"lte number false", Condition{Field: "mileage", Op: OpLte, Value: 100000}, false},
		{"eq bool", Condition{Field: "urgent", Op: OpEq, Value: true}, true},
		{"ne string nested", Condition{Field: "vehicle.category", Op: OpNe, Value: "car"}, true},
		{"eq string nested", Condition{Field: "vehicle.category", Op: OpEq, Value: "truck"}, true},
		{"missing field", Condition{Field: "nope", Op: OpEq, Value: 1}, false},
		{"ordering on string", Condition{Field: "vehicle.category", Op: OpGt, Value: "a"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cond.Eval(data); got != tc.want {
				t.Fatalf("Eval = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConditionAllAny(t *testing.T) {
	data := map[string]any{"mileage": float64(50000), "urgent": false}

	all := Condition{All: []Condition{
		{Field: "mileage", Op: OpLt, Value: 100000},
		{Field: "urgent", Op: OpEq, Value: false},
	}}
	if !all.Eval(data) {
		t.Fatal("all-conjunction should match")
	}

	anyCond := Condition{Any: []Condition{
		{Field: "mileage", Op: OpGt, Value: 100000},
		{Field: "urgent", Op: OpEq, Value: false},
	}}
	if !anyCond.Eval(data) {
		t.Fatal("any-disjunction should match")
	}

	neither := Condition{Any: []Condition{
		{Field: "mileage", Op: OpGt, Value: 100000},
		{Field: "urgent", Op: OpEq, Value: true},
	}}
	if neither.Eval(data) {
		t.Fatal("disjunction with no matching branch matched")
	}
}

func TestConditionEvalJSONNumbers(t *testing.T) {
	// Data decoded with UseNumber still compares correctly.
	raw := `{"mileage": 120000}`
	var data map[string]any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	cond := Condition{Field: "mileage", Op: OpGte, Value: 120000}
	if !cond.Eval(data) {
		t.Fatal("json.Number comparison failed")
	}
}

func TestConditionValidate(t *testing.T) {
	good := Condition{Field: "mileage", Op: OpGt, Value: 1}
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	badOp := Condition{Field: "mileage", Op: "contains", Value: 1}
	if err := badOp.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown op, got %v", err)
	}
	empty := Condition{}
	if err := empty.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty condition, got %v", err)
	}
	nested := Condition{All: []Condition{{Field: "x", Op: "nope"}}}
	if err := nested.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad nested op, got %v", err)
	}
}
