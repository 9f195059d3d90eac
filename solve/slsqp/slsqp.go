// Package slsqp bundles a solve.Solver adapter over the pure-Go SLSQP
// implementation of github.com/curioloop/optimizer.
//
// SLSQP handles nonlinear objectives with nonlinear equality and inequality
// constraints and variable bounds. The adapter converts the evaluator's
// bound-relation form into the solver's native c(x) = 0 / c(x) >= 0 rows and
// owns the mapping from SLSQP termination modes to normalized statuses.
package slsqp

import (
	"errors"
	"fmt"
	"math"

	"github.com/chaoshengdong/nlbridge/model"
	"github.com/chaoshengdong/nlbridge/solve"
	opt "github.com/curioloop/optimizer/slsqp"
)

// Option configures the adapter.
type Option func(*Solver)

// WithAccuracy sets the convergence accuracy passed to SLSQP.
func WithAccuracy(acc float64) Option {
	return func(s *Solver) { s.accuracy = acc }
}

// WithMaxIterations caps the number of SQP iterations.
func WithMaxIterations(n int) Option {
	return func(s *Solver) { s.maxIter = n }
}

// Solver is the SLSQP back-end factory.
type Solver struct {
	accuracy float64
	maxIter  int
}

// New returns an SLSQP solver adapter.
func New(opts ...Option) *Solver {
	s := &Solver{accuracy: 1e-8, maxIter: 200}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateModelInstance returns a fresh instance for one problem.
func (s *Solver) CreateModelInstance() (solve.Instance, error) {
	return &instance{accuracy: s.accuracy, maxIter: s.maxIter}, nil
}

// native status strings reported by NativeStatus
const (
	nativeOK           = "ok"
	nativeSubSolved    = "has solution"
	nativeBadArg       = "bad argument"
	nativeNNLSLimit    = "nnls iteration limit"
	nativeIncompatible = "inequality constraints incompatible"
	nativeRankDefect   = "rank-deficient equality constraints"
	nativeSingularLSI  = "singular matrix e in lsi"
	nativeSingularLSEI = "singular matrix c in lsei"
	nativeNotDescent   = "positive directional derivative"
	nativeIterLimit    = "iteration limit"
	nativeUnknown      = "unknown"
)

// StatusTable maps SLSQP termination modes to normalized statuses. SLSQP
// has no unbounded detection; divergence surfaces as an iteration limit.
func (s *Solver) StatusTable() map[string]solve.Status {
	return map[string]solve.Status{
		nativeOK:           solve.StatusOptimal,
		nativeIncompatible: solve.StatusInfeasible,
		nativeRankDefect:   solve.StatusInfeasible,
		nativeIterLimit:    solve.StatusIterationLimit,
		nativeNNLSLimit:    solve.StatusIterationLimit,
		nativeSubSolved:    solve.StatusError,
		nativeBadArg:       solve.StatusError,
		nativeSingularLSI:  solve.StatusError,
		nativeSingularLSEI: solve.StatusError,
		nativeNotDescent:   solve.StatusError,
	}
}

// row is one solver-native constraint c(x) = 0 or c(x) >= 0, derived from a
// bound on an evaluator constraint.
type row struct {
	cons   int     // evaluator constraint index
	shift  float64 // subtracted from the body value
	negate bool    // true for upper bounds: shift - body >= 0
}

type instance struct {
	accuracy float64
	maxIter  int

	prob     solve.Problem
	loaded   bool
	warm     []float64
	maximize bool
	eqRows   []row
	neqRows  []row

	status    string
	objective float64
	x         []float64
}

func (in *instance) LoadProblem(p solve.Problem) error {
	if p.Evaluator == nil {
		return errors.New("slsqp: problem carries no evaluator")
	}
	if p.NumVariables == 0 {
		return errors.New("slsqp: problem has no variables")
	}
	in.prob = p
	in.maximize = p.Sense == model.Maximize
	in.warm = make([]float64, p.NumVariables)

	for i := 0; i < p.NumConstraints; i++ {
		lo, hi := p.ConsLower[i], p.ConsUpper[i]
		switch {
		case lo == hi:
			in.eqRows = append(in.eqRows, row{cons: i, shift: lo})
		default:
			if !math.IsInf(lo, -1) {
				in.neqRows = append(in.neqRows, row{cons: i, shift: lo})
			}
			if !math.IsInf(hi, 1) {
				in.neqRows = append(in.neqRows, row{cons: i, shift: hi, negate: true})
			}
		}
	}
	in.loaded = true
	return nil
}

func (in *instance) SetWarmStart(x []float64) error {
	if !in.loaded {
		return errors.New("slsqp: warm start before problem load")
	}
	if len(x) != len(in.warm) {
		return fmt.Errorf("slsqp: warm start has %d values for %d variables", len(x), len(in.warm))
	}
	copy(in.warm, x)
	return nil
}

func (in *instance) Optimize() error {
	if !in.loaded {
		return errors.New("slsqp: optimize before problem load")
	}
	ev := in.prob.Evaluator
	n := in.prob.NumVariables
	mm := newMemo(ev, n, in.prob.NumConstraints)

	sign := 1.0
	if in.maximize {
		sign = -1
	}
	objective := func(x, g []float64) float64 {
		f, err := ev.Objective(x)
		if err != nil {
			f = math.NaN()
		}
		if g != nil {
			grad, err := ev.Gradient(x, nil)
			if err != nil {
				for i := range g[:n] {
					g[i] = math.NaN()
				}
			} else {
				for i, v := range grad {
					g[i] = sign * v
				}
			}
		}
		return sign * f
	}

	bounds := make([]opt.Bound, n)
	for i := range bounds {
		bounds[i] = opt.Bound{Lower: in.prob.VarLower[i], Upper: in.prob.VarUpper[i]}
	}

	problem := opt.Problem{
		N:       n,
		Stop:    opt.Termination{Accuracy: in.accuracy, MaxIterations: in.maxIter},
		Object:  objective,
		EqCons:  mm.evaluations(in.eqRows),
		NeqCons: mm.evaluations(in.neqRows),
		Bounds:  bounds,
	}

	solver, err := problem.New()
	if err != nil {
		return fmt.Errorf("slsqp: %w", err)
	}
	res := solver.Fit(append([]float64(nil), in.warm...), solver.Init())

	in.status = nativeName(res)
	in.x = res.X
	in.objective = sign * res.F
	return nil
}

func nativeName(res *opt.Result) string {
	switch res.Status {
	case opt.OK:
		return nativeOK
	case opt.HasSolution:
		return nativeSubSolved
	case opt.BadArgument:
		return nativeBadArg
	case opt.NNLSExceedMaxIter:
		return nativeNNLSLimit
	case opt.ConsIncompatible:
		return nativeIncompatible
	case opt.LSISingularE:
		return nativeSingularLSI
	case opt.LSEISingularC:
		return nativeSingularLSEI
	case opt.HFTIRankDefect:
		return nativeRankDefect
	case opt.SearchNotDescent:
		return nativeNotDescent
	case opt.SQPExceedMaxIter:
		return nativeIterLimit
	default:
		return nativeUnknown
	}
}

func (in *instance) NativeStatus() string { return in.status }

func (in *instance) ObjectiveValue() float64 { return in.objective }

func (in *instance) SolutionVector() []float64 { return in.x }
