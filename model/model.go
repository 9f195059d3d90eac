// Package model holds the algebraic description of an optimization problem:
// the variable table, the ordered constraint sequence and the objective.
//
// A model is built incrementally through the builder API. Variable and
// constraint indices are assigned at build time and stay stable for the
// lifetime of the model; expressions reference variables by index only, so a
// model can be serialized or rewritten without invalidating them. At solve
// time the orchestrator freezes the model into an evaluator; afterwards only
// variable values change (solution write-back, warm starts).
package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/chaoshengdong/nlbridge/expr"
)

var (
	// ErrInvalidReference reports an expression referencing a variable
	// index outside the model's table.
	ErrInvalidReference = errors.New("invalid variable reference")
	// ErrNoObjective reports a model without an objective.
	ErrNoObjective = errors.New("model has no objective")
)

// Sense is the optimization direction of the objective.
type Sense uint8

const (
	Minimize Sense = iota
	Maximize
)

func (s Sense) String() string {
	if s == Maximize {
		return "maximize"
	}
	return "minimize"
}

// Variable is one entry of the model's variable table. Bounds may be
// infinite; Value doubles as the starting point of the next solve.
type Variable struct {
	Index        int
	Lower, Upper float64
	Value        float64
}

// Objective is the single objective of a model.
type Objective struct {
	Sense Sense
	Body  *expr.Expr
}

// Model owns the variable table, the ordered constraints and the objective.
type Model struct {
	vars        []Variable
	constraints []*Constraint
	objective   *Objective
}

// New returns an empty model.
func New() *Model {
	return &Model{}
}

// AddVariable appends a variable with the given bounds and returns its
// index. The starting value is clamped into the bounds, at zero when they
// allow it.
func (m *Model) AddVariable(lower, upper float64) int {
	v := Variable{Index: len(m.vars), Lower: lower, Upper: upper}
	v.Value = math.Min(math.Max(0, lower), upper)
	m.vars = append(m.vars, v)
	return v.Index
}

// AddVariables appends n variables sharing the same bounds and returns their
// indices.
func (m *Model) AddVariables(n int, lower, upper float64) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = m.AddVariable(lower, upper)
	}
	return out
}

// Var returns an expression referencing variable i.
func (m *Model) Var(i int) (*expr.Expr, error) {
	if i < 0 || i >= len(m.vars) {
		return nil, fmt.Errorf("variable %d of %d: %w", i, len(m.vars), ErrInvalidReference)
	}
	return expr.Var(i), nil
}

// NumVariables returns the size of the variable table.
func (m *Model) NumVariables() int { return len(m.vars) }

// NumConstraints returns the number of constraints.
func (m *Model) NumConstraints() int { return len(m.constraints) }

// Variable returns a copy of the variable table entry i.
func (m *Model) Variable(i int) (Variable, error) {
	if i < 0 || i >= len(m.vars) {
		return Variable{}, fmt.Errorf("variable %d of %d: %w", i, len(m.vars), ErrInvalidReference)
	}
	return m.vars[i], nil
}

// SetValue updates the current value of variable i. Values seed the next
// solve's warm start.
func (m *Model) SetValue(i int, v float64) error {
	if i < 0 || i >= len(m.vars) {
		return fmt.Errorf("variable %d of %d: %w", i, len(m.vars), ErrInvalidReference)
	}
	m.vars[i].Value = v
	return nil
}

// Value returns the current value of variable i, NaN when out of range.
func (m *Model) Value(i int) float64 {
	if i < 0 || i >= len(m.vars) {
		return math.NaN()
	}
	return m.vars[i].Value
}

// Values returns a copy of the current variable values, aligned to indices.
func (m *Model) Values() []float64 {
	out := make([]float64, len(m.vars))
	for i, v := range m.vars {
		out[i] = v.Value
	}
	return out
}

// SetValues writes the given vector into the variable table.
func (m *Model) SetValues(x []float64) error {
	if len(x) != len(m.vars) {
		return fmt.Errorf("got %d values for %d variables: %w", len(x), len(m.vars), ErrInvalidReference)
	}
	for i := range m.vars {
		m.vars[i].Value = x[i]
	}
	return nil
}

// VariableBounds returns copies of the lower and upper bound arrays, aligned
// to variable indices.
func (m *Model) VariableBounds() (lower, upper []float64) {
	lower = make([]float64, len(m.vars))
	upper = make([]float64, len(m.vars))
	for i, v := range m.vars {
		lower[i], upper[i] = v.Lower, v.Upper
	}
	return lower, upper
}

// SetObjective sets the single objective of the model, replacing any
// previous one.
func (m *Model) SetObjective(sense Sense, body *expr.Expr) error {
	if mv := body.MaxVar(); mv >= len(m.vars) {
		return fmt.Errorf("objective references variable %d of %d: %w", mv, len(m.vars), ErrInvalidReference)
	}
	m.objective = &Objective{Sense: sense, Body: body}
	return nil
}

// Objective returns the model objective, or ErrNoObjective when unset.
func (m *Model) Objective() (Objective, error) {
	if m.objective == nil {
		return Objective{}, ErrNoObjective
	}
	return *m.objective, nil
}

// Constraint returns the constraint with the given index.
func (m *Model) Constraint(i int) (*Constraint, error) {
	if i < 0 || i >= len(m.constraints) {
		return nil, fmt.Errorf("constraint %d of %d: %w", i, len(m.constraints), ErrInvalidReference)
	}
	return m.constraints[i], nil
}

// Clone returns a deep copy of the model's table and constraint sequence.
// Expression trees are immutable and shared.
func (m *Model) Clone() *Model {
	out := &Model{
		vars:        append([]Variable(nil), m.vars...),
		constraints: append([]*Constraint(nil), m.constraints...),
	}
	if m.objective != nil {
		obj := *m.objective
		out.objective = &obj
	}
	return out
}
