package evaluator

import (
	"fmt"
	"sort"

	"github.com/chaoshengdong/nlbridge/expr"
	"github.com/curioloop/optimizer/numdiff"
)

// Nonzero is one structural entry of a sparse derivative matrix.
type Nonzero struct {
	Row, Col int
	Val      float64
}

// Objective evaluates the objective at x.
func (ev *Evaluator) Objective(x []float64) (float64, error) {
	if !ev.numeric {
		return 0, fmt.Errorf("objective value: %w", ErrModeNotInitialized)
	}
	ev.evalCount.Add(1)
	return ev.objective.Value(x), nil
}

// ConstraintValues evaluates every constraint body at x. The result is
// written into out when it has the right length, otherwise a fresh slice is
// returned.
func (ev *Evaluator) ConstraintValues(x []float64, out []float64) ([]float64, error) {
	if !ev.numeric {
		return nil, fmt.Errorf("constraint values: %w", ErrModeNotInitialized)
	}
	ev.evalCount.Add(1)
	if len(out) != ev.nbCons {
		out = make([]float64, ev.nbCons)
	}
	for i := range ev.constraints {
		out[i] = ev.constraints[i].body.Value(x)
	}
	return out, nil
}

// Gradient evaluates the dense objective gradient at x. Entries outside the
// objective's support are zero.
func (ev *Evaluator) Gradient(x []float64, out []float64) ([]float64, error) {
	if !ev.numeric {
		return nil, fmt.Errorf("gradient: %w", ErrModeNotInitialized)
	}
	ev.evalCount.Add(1)
	if len(out) != ev.nbVars {
		out = make([]float64, ev.nbVars)
	} else {
		for i := range out {
			out[i] = 0
		}
	}
	if ev.objFallback {
		if err := ev.finiteDiff(ev.objective, x, out); err != nil {
			return nil, fmt.Errorf("gradient fallback: %w", err)
		}
		return out, nil
	}
	for k, i := range ev.objSupport {
		out[i] = ev.objGrad[k].Value(x)
	}
	return out, nil
}

// Jacobian evaluates the constraint Jacobian at x as (constraint, variable,
// value) triples. Only structural nonzeros appear: one triple per variable in
// each constraint's support, ordered by constraint then variable index.
func (ev *Evaluator) Jacobian(x []float64) ([]Nonzero, error) {
	if !ev.numeric {
		return nil, fmt.Errorf("jacobian: %w", ErrModeNotInitialized)
	}
	ev.evalCount.Add(1)
	var out []Nonzero
	var dense []float64 // fallback scratch, per call
	for r := range ev.constraints {
		fc := &ev.constraints[r]
		if fc.fallback {
			if dense == nil {
				dense = make([]float64, ev.nbVars)
			}
			if err := ev.finiteDiff(fc.body, x, dense); err != nil {
				return nil, fmt.Errorf("jacobian fallback for constraint %d: %w", r, err)
			}
			for _, c := range fc.support {
				out = append(out, Nonzero{Row: r, Col: c, Val: dense[c]})
			}
			continue
		}
		for k, c := range fc.support {
			out = append(out, Nonzero{Row: r, Col: c, Val: fc.grad[k].Value(x)})
		}
	}
	return out, nil
}

// Hessian evaluates the lower triangle of the Lagrangian Hessian
// sigma*∇²f + Σ lambda[i]*∇²c_i at x. Requires WithHessian.
func (ev *Evaluator) Hessian(x []float64, sigma float64, lambda []float64) ([]Nonzero, error) {
	if !ev.hessian {
		return nil, fmt.Errorf("hessian: %w", ErrModeNotInitialized)
	}
	if len(lambda) != ev.nbCons {
		return nil, fmt.Errorf("hessian: got %d multipliers for %d constraints", len(lambda), ev.nbCons)
	}
	ev.evalCount.Add(1)

	type key struct{ row, col int }
	acc := make(map[key]float64)
	for _, t := range ev.objHess {
		acc[key{t.row, t.col}] += sigma * t.d2.Value(x)
	}
	for i, terms := range ev.consHess {
		if lambda[i] == 0 {
			continue
		}
		for _, t := range terms {
			acc[key{t.row, t.col}] += lambda[i] * t.d2.Value(x)
		}
	}

	out := make([]Nonzero, 0, len(acc))
	for k, v := range acc {
		out = append(out, Nonzero{Row: k.row, Col: k.col, Val: v})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Row != out[b].Row {
			return out[a].Row < out[b].Row
		}
		return out[a].Col < out[b].Col
	})
	return out, nil
}

// finiteDiff approximates the dense gradient of e at x by central
// differences. Used only when symbolic differentiation is unavailable.
func (ev *Evaluator) finiteDiff(e *expr.Expr, x []float64, out []float64) error {
	spec := numdiff.ApproxSpec{
		N:      ev.nbVars,
		M:      1,
		Method: numdiff.Central,
		Object: func(p, y []float64) { y[0] = e.Value(p) },
	}
	return spec.Diff(x, out)
}
