package slsqp

import (
	"math"
	"slices"

	"github.com/chaoshengdong/nlbridge/debug"
	"github.com/chaoshengdong/nlbridge/evaluator"
	opt "github.com/curioloop/optimizer/slsqp"
)

// memo caches constraint values and the dense Jacobian for the most recent
// evaluation point. SLSQP evaluates every constraint at the same point in
// sequence, so one evaluator call serves all rows. SLSQP drives its
// evaluations from a single goroutine; the memo relies on that.
type memo struct {
	ev   *evaluator.Evaluator
	n, m int

	point []float64
	vals  []float64
	jac   []float64 // dense m x n, row-major
	jacOK bool
}

func newMemo(ev *evaluator.Evaluator, n, m int) *memo {
	return &memo{ev: ev, n: n, m: m}
}

func (mm *memo) at(x []float64, needJac bool) bool {
	debug.Assert(len(x) == mm.n, "point dimension mismatch")
	if mm.point != nil && slices.Equal(mm.point, x) && (!needJac || mm.jacOK) {
		return true
	}
	vals, err := mm.ev.ConstraintValues(x, mm.vals)
	if err != nil {
		return false
	}
	mm.vals = vals
	mm.point = append(mm.point[:0], x...)
	mm.jacOK = false
	if needJac {
		triples, err := mm.ev.Jacobian(x)
		if err != nil {
			return false
		}
		if mm.jac == nil {
			mm.jac = make([]float64, mm.m*mm.n)
		} else {
			for i := range mm.jac {
				mm.jac[i] = 0
			}
		}
		for _, t := range triples {
			mm.jac[t.Row*mm.n+t.Col] = t.Val
		}
		mm.jacOK = true
	}
	return true
}

// evaluations converts bound rows into SLSQP evaluation closures over the
// shared memo.
func (mm *memo) evaluations(rows []row) []opt.Evaluation {
	out := make([]opt.Evaluation, len(rows))
	for k := range rows {
		r := rows[k]
		out[k] = func(x, g []float64) float64 {
			if !mm.at(x, g != nil) {
				if g != nil {
					for i := range g[:mm.n] {
						g[i] = math.NaN()
					}
				}
				return math.NaN()
			}
			sign := 1.0
			if r.negate {
				sign = -1
			}
			if g != nil {
				base := r.cons * mm.n
				for i := 0; i < mm.n; i++ {
					g[i] = sign * mm.jac[base+i]
				}
			}
			return sign * (mm.vals[r.cons] - r.shift)
		}
	}
	return out
}
