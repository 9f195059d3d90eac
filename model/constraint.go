package model

import (
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/chaoshengdong/nlbridge/expr"
)

// Relation is the relational kind of a constraint.
type Relation uint8

const (
	LessEqual    Relation = iota // body <= upper
	GreaterEqual                 // body >= lower
	Equal                        // body == lower == upper
	Range                        // lower <= body <= upper
)

func (r Relation) String() string {
	switch r {
	case LessEqual:
		return "<="
	case GreaterEqual:
		return ">="
	case Equal:
		return "=="
	default:
		return "in"
	}
}

// Constraint is an expression body related to one or two bounds. The
// linearity tag and, when linear, the compact linear form are computed once
// at construction and cached; the evaluator reports exactly this
// classification.
type Constraint struct {
	Index        int
	Body         *expr.Expr
	Rel          Relation
	Lower, Upper float64

	linear  bool
	form    expr.LinearForm
	support *bitset.BitSet
}

// Linear reports the cached linearity tag.
func (c *Constraint) Linear() bool { return c.linear }

// LinearForm returns the cached linear form; valid only when Linear is true.
func (c *Constraint) LinearForm() expr.LinearForm { return c.form }

// Support returns the set of variable indices the body references. The
// returned set must not be mutated.
func (c *Constraint) Support() *bitset.BitSet { return c.support }

func (c *Constraint) String() string {
	if c.Rel == Range {
		return fmt.Sprintf("%g <= %s <= %g", c.Lower, c.Body, c.Upper)
	}
	bound := c.Upper
	if c.Rel == GreaterEqual || c.Rel == Equal {
		bound = c.Lower
	}
	return fmt.Sprintf("%s %s %g", c.Body, c.Rel, bound)
}

// AddConstraint appends the constraint `body rel bound` and returns its
// index. The body may reference only variables already in the table.
func (m *Model) AddConstraint(body *expr.Expr, rel Relation, bound float64) (int, error) {
	lo, hi := math.Inf(-1), math.Inf(1)
	switch rel {
	case LessEqual:
		hi = bound
	case GreaterEqual:
		lo = bound
	case Equal:
		lo, hi = bound, bound
	default:
		return 0, fmt.Errorf("relation %s takes two bounds, use AddRangeConstraint", rel)
	}
	return m.addConstraint(body, rel, lo, hi)
}

// AddRangeConstraint appends the double-sided constraint
// `lower <= body <= upper` and returns its index.
func (m *Model) AddRangeConstraint(lower float64, body *expr.Expr, upper float64) (int, error) {
	return m.addConstraint(body, Range, lower, upper)
}

func (m *Model) addConstraint(body *expr.Expr, rel Relation, lo, hi float64) (int, error) {
	if mv := body.MaxVar(); mv >= len(m.vars) {
		return 0, fmt.Errorf("constraint references variable %d of %d: %w", mv, len(m.vars), ErrInvalidReference)
	}
	c := &Constraint{
		Index:   len(m.constraints),
		Body:    body,
		Rel:     rel,
		Lower:   lo,
		Upper:   hi,
		support: bitset.New(uint(len(m.vars))),
	}
	body.Support(c.support)
	c.form, c.linear = expr.Linearize(body)
	m.constraints = append(m.constraints, c)
	return c.Index, nil
}

// ConstraintBounds returns copies of the constraint lower and upper bound
// arrays, aligned to constraint indices. Single-sided constraints carry an
// infinite bound on the open side.
func (m *Model) ConstraintBounds() (lower, upper []float64) {
	lower = make([]float64, len(m.constraints))
	upper = make([]float64, len(m.constraints))
	for i, c := range m.constraints {
		lower[i], upper[i] = c.Lower, c.Upper
	}
	return lower, upper
}
