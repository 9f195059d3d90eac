// Package evaluator freezes a model into the callback contract a solver
// consumes: problem dimensions, bound arrays, canonical expression trees and,
// when the numeric mode is requested, function values and derivatives at a
// point.
//
// All evaluation calls are pure functions of the input point; the only
// mutable state is a diagnostics counter. One evaluator may therefore serve
// concurrent solver callbacks.
package evaluator

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
	"github.com/chaoshengdong/nlbridge/expr"
	"github.com/chaoshengdong/nlbridge/logger"
	"github.com/chaoshengdong/nlbridge/model"
	"github.com/rs/zerolog"
)

var (
	// ErrModeNotInitialized reports a numeric evaluation request on an
	// evaluator created without WithNumeric (or WithHessian for Hessians).
	ErrModeNotInitialized = errors.New("evaluation mode not initialized")
	// ErrIndexOutOfRange reports a constraint query with an index outside
	// [0, NumConstraints).
	ErrIndexOutOfRange = errors.New("constraint index out of range")
)

// Option configures the evaluation modes of an evaluator.
type Option func(*config)

type config struct {
	numeric bool
	hessian bool
	log     zerolog.Logger
	logSet  bool
}

// WithNumeric declares that the solver will request function values and
// first derivatives.
func WithNumeric() Option {
	return func(c *config) { c.numeric = true }
}

// WithHessian declares that the solver will request the Hessian of the
// Lagrangian; implies WithNumeric.
func WithHessian() Option {
	return func(c *config) { c.numeric, c.hessian = true, true }
}

// WithLogger overrides the diagnostics logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.log, c.logSet = l, true }
}

type frozenConstraint struct {
	body     *expr.Expr // canonical body, used for rendering and evaluation
	rel      model.Relation
	lower    float64
	upper    float64
	linear   bool
	form     expr.LinearForm
	support  []int        // ascending variable indices
	grad     []*expr.Expr // per support entry; nil when falling back
	fallback bool
}

// hessTerm is one compiled second derivative, lower triangle (row >= col).
type hessTerm struct {
	row, col int
	d2       *expr.Expr
}

// Evaluator is a frozen snapshot of a model, exposing the solver-facing
// protocol. Constraint and variable indices are the model's; they never
// change for the lifetime of the evaluator.
type Evaluator struct {
	nbVars, nbCons       int
	varLower, varUpper   []float64
	consLower, consUpper []float64
	sense                model.Sense

	objective   *expr.Expr
	objSupport  []int
	objGrad     []*expr.Expr
	objFallback bool
	objHess     []hessTerm

	constraints []frozenConstraint
	consHess    [][]hessTerm

	numeric bool
	hessian bool
	log     zerolog.Logger

	evalCount atomic.Uint64
}

// New freezes the model into an evaluator. The model must carry an
// objective; constraint bodies are canonicalized (linear bodies re-rendered
// from their linear form, nonlinear bodies constant-folded, nonlinear
// equality right-hand sides folded into the body). With WithNumeric,
// derivatives are compiled up front; expressions without a closed-form
// derivative switch the affected gradient to a finite-difference fallback.
func New(m *model.Model, opts ...Option) (*Evaluator, error) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.logSet {
		cfg.log = logger.Logger().With().Str("component", "evaluator").Logger()
	}

	obj, err := m.Objective()
	if err != nil {
		return nil, fmt.Errorf("freeze model: %w", err)
	}

	ev := &Evaluator{
		nbVars:  m.NumVariables(),
		nbCons:  m.NumConstraints(),
		sense:   obj.Sense,
		numeric: cfg.numeric,
		hessian: cfg.hessian,
		log:     cfg.log,
	}
	ev.varLower, ev.varUpper = m.VariableBounds()

	// objective
	objSupport := bitset.New(uint(ev.nbVars))
	obj.Body.Support(objSupport)
	ev.objSupport = supportIndices(objSupport)
	if form, linear := expr.Linearize(obj.Body); linear {
		ev.objective = form.Expr()
	} else {
		ev.objective = obj.Body.Fold()
	}

	// constraints
	ev.consLower = make([]float64, ev.nbCons)
	ev.consUpper = make([]float64, ev.nbCons)
	ev.constraints = make([]frozenConstraint, ev.nbCons)
	for i := range ev.constraints {
		c, err := m.Constraint(i)
		if err != nil {
			return nil, err
		}
		fc := frozenConstraint{
			rel:     c.Rel,
			lower:   c.Lower,
			upper:   c.Upper,
			linear:  c.Linear(),
			form:    c.LinearForm(),
			support: supportIndices(c.Support()),
		}
		switch {
		case fc.linear:
			fc.body = fc.form.Expr()
		case c.Rel == model.Equal:
			// move the right-hand side into the body: body - rhs == 0
			fc.body = expr.Sub(c.Body, expr.Const(c.Lower)).Fold()
			fc.lower, fc.upper = 0, 0
		default:
			fc.body = c.Body.Fold()
		}
		ev.consLower[i], ev.consUpper[i] = fc.lower, fc.upper
		ev.constraints[i] = fc
	}

	if cfg.numeric {
		if err := ev.compileDerivatives(); err != nil {
			return nil, err
		}
	}
	return ev, nil
}

func (ev *Evaluator) compileDerivatives() error {
	var err error
	ev.objGrad, ev.objFallback = compileGradient(ev.objective, ev.objSupport)
	if ev.objFallback {
		ev.log.Warn().Msg("objective has no closed-form gradient, falling back to numeric differentiation")
	}
	for i := range ev.constraints {
		fc := &ev.constraints[i]
		fc.grad, fc.fallback = compileGradient(fc.body, fc.support)
		if fc.fallback {
			ev.log.Warn().Int("constraint", i).Msg("constraint has no closed-form gradient, falling back to numeric differentiation")
		}
	}
	if !ev.hessian {
		return nil
	}
	if ev.objHess, err = compileHessian(ev.objective, ev.objSupport); err != nil {
		return fmt.Errorf("objective hessian: %w", err)
	}
	ev.consHess = make([][]hessTerm, ev.nbCons)
	for i := range ev.constraints {
		fc := &ev.constraints[i]
		if ev.consHess[i], err = compileHessian(fc.body, fc.support); err != nil {
			return fmt.Errorf("constraint %d hessian: %w", i, err)
		}
	}
	return nil
}

func compileGradient(e *expr.Expr, support []int) (grad []*expr.Expr, fallback bool) {
	grad = make([]*expr.Expr, len(support))
	for k, i := range support {
		d, err := e.Derivative(i)
		if err != nil {
			return nil, true
		}
		grad[k] = d
	}
	return grad, false
}

func compileHessian(e *expr.Expr, support []int) ([]hessTerm, error) {
	var out []hessTerm
	for a, i := range support {
		di, err := e.Derivative(i)
		if err != nil {
			return nil, err
		}
		for _, j := range support[:a+1] {
			d2, err := di.Derivative(j)
			if err != nil {
				return nil, err
			}
			if d2.IsConst() && d2.Float() == 0 {
				continue
			}
			out = append(out, hessTerm{row: i, col: j, d2: d2})
		}
	}
	return out, nil
}

func supportIndices(b *bitset.BitSet) []int {
	out := make([]int, 0, b.Count())
	for i, ok := b.NextSet(0); ok; i, ok = b.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

// NumVariables returns the variable count of the frozen model.
func (ev *Evaluator) NumVariables() int { return ev.nbVars }

// NumConstraints returns the constraint count of the frozen model.
func (ev *Evaluator) NumConstraints() int { return ev.nbCons }

// Sense returns the objective sense.
func (ev *Evaluator) Sense() model.Sense { return ev.sense }

// VariableLower returns a copy of the variable lower bound array.
func (ev *Evaluator) VariableLower() []float64 { return append([]float64(nil), ev.varLower...) }

// VariableUpper returns a copy of the variable upper bound array.
func (ev *Evaluator) VariableUpper() []float64 { return append([]float64(nil), ev.varUpper...) }

// ConstraintLower returns a copy of the constraint lower bound array,
// reflecting canonicalization (shifted to zero for nonlinear equalities).
func (ev *Evaluator) ConstraintLower() []float64 { return append([]float64(nil), ev.consLower...) }

// ConstraintUpper returns a copy of the constraint upper bound array.
func (ev *Evaluator) ConstraintUpper() []float64 { return append([]float64(nil), ev.consUpper...) }

// ObjectiveExpr returns the canonical objective expression.
func (ev *Evaluator) ObjectiveExpr() *expr.Expr { return ev.objective }

// ConstraintExpr returns the canonical body of constraint i. The rendering
// is deterministic: calling it twice on the same evaluator returns the same
// tree.
func (ev *Evaluator) ConstraintExpr(i int) (*expr.Expr, error) {
	if i < 0 || i >= ev.nbCons {
		return nil, fmt.Errorf("constraint %d of %d: %w", i, ev.nbCons, ErrIndexOutOfRange)
	}
	return ev.constraints[i].body, nil
}

// ConstraintRelation returns the relational kind of constraint i.
func (ev *Evaluator) ConstraintRelation(i int) (model.Relation, error) {
	if i < 0 || i >= ev.nbCons {
		return 0, fmt.Errorf("constraint %d of %d: %w", i, ev.nbCons, ErrIndexOutOfRange)
	}
	return ev.constraints[i].rel, nil
}

// IsConstraintLinear reports the cached linearity classification of
// constraint i, as computed by the model at construction.
func (ev *Evaluator) IsConstraintLinear(i int) (bool, error) {
	if i < 0 || i >= ev.nbCons {
		return false, fmt.Errorf("constraint %d of %d: %w", i, ev.nbCons, ErrIndexOutOfRange)
	}
	return ev.constraints[i].linear, nil
}

// EvalCount returns the number of numeric evaluation calls served so far.
func (ev *Evaluator) EvalCount() uint64 { return ev.evalCount.Load() }
