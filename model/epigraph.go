package model

import (
	"fmt"
	"math"

	"github.com/chaoshengdong/nlbridge/expr"
)

// NeedsEpigraph reports whether the model has a nonlinear objective, i.e.
// whether Epigraph would change it.
func NeedsEpigraph(m *Model) bool {
	if m.objective == nil {
		return false
	}
	_, linear := expr.Linearize(m.objective.Body)
	return !linear
}

// Epigraph returns an equivalent model with the objective moved into a
// constraint: a new free variable t, the objective replaced by optimizing t,
// and the constraint t >= f(x) under Minimize (t <= f(x) under Maximize).
// The optimal t of the new model equals the optimal objective of the
// original and the optimal values of the original variables are unchanged.
//
// The input model is not modified. Solvers and the evaluator see the result
// as an ordinary model.
func Epigraph(m *Model) (*Model, error) {
	if m.objective == nil {
		return nil, ErrNoObjective
	}

	out := m.Clone()
	f := m.objective.Body
	t := out.AddVariable(math.Inf(-1), math.Inf(1))

	// seed t from the objective at the current point so the warm start
	// remains feasible for the new constraint
	if v := f.Value(out.Values()); !math.IsNaN(v) && !math.IsInf(v, 0) {
		out.vars[t].Value = v
	}

	tv, err := out.Var(t)
	if err != nil {
		return nil, err
	}
	gap := expr.Sub(tv, f) // t - f(x)

	switch m.objective.Sense {
	case Minimize:
		_, err = out.AddConstraint(gap, GreaterEqual, 0)
	case Maximize:
		_, err = out.AddConstraint(gap, LessEqual, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("epigraph constraint: %w", err)
	}
	if err := out.SetObjective(m.objective.Sense, tv); err != nil {
		return nil, fmt.Errorf("epigraph objective: %w", err)
	}
	return out, nil
}
