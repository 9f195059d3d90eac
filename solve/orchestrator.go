package solve

import (
	"fmt"
	"math"

	"github.com/chaoshengdong/nlbridge/evaluator"
	"github.com/chaoshengdong/nlbridge/logger"
	"github.com/chaoshengdong/nlbridge/model"
	"github.com/rs/zerolog"
)

// solveState tracks the state machine of one solve call:
// built -> initialized -> optimizing -> solved | failed.
type solveState uint8

const (
	stateBuilt solveState = iota
	stateInitialized
	stateOptimizing
	stateSolved
	stateFailed
)

func (s solveState) String() string {
	switch s {
	case stateBuilt:
		return "built"
	case stateInitialized:
		return "initialized"
	case stateOptimizing:
		return "optimizing"
	case stateSolved:
		return "solved"
	default:
		return "failed"
	}
}

// Option configures an orchestrator.
type Option func(*Orchestrator)

// WithSuppressWarnings silences diagnostic warnings. Returned statuses and
// values are unaffected.
func WithSuppressWarnings() Option {
	return func(o *Orchestrator) { o.suppress = true }
}

// WithLogger overrides the orchestrator logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log, o.logSet = l, true }
}

// WithEvaluatorOptions appends options used when freezing the model into an
// evaluator (e.g. evaluator.WithHessian for solvers that request one).
func WithEvaluatorOptions(opts ...evaluator.Option) Option {
	return func(o *Orchestrator) { o.evalOpts = append(o.evalOpts, opts...) }
}

// Orchestrator runs solve calls against one solver back-end. Distinct
// orchestrators share no state and may run concurrently on distinct models.
type Orchestrator struct {
	solver   Solver
	suppress bool
	log      zerolog.Logger
	logSet   bool
	evalOpts []evaluator.Option
}

// New returns an orchestrator bound to the given solver adapter.
func New(s Solver, opts ...Option) *Orchestrator {
	o := &Orchestrator{solver: s}
	for _, opt := range opts {
		opt(o)
	}
	if !o.logSet {
		o.log = logger.Logger().With().Str("component", "orchestrator").Logger()
	}
	if o.suppress {
		o.log = o.log.Level(zerolog.ErrorLevel)
	}
	return o
}

// Solve freezes the model, binds it to the solver with the current variable
// values as warm start, invokes the solver and normalizes the outcome.
//
// On StatusOptimal the solution is written back into the model's variable
// table, so a subsequent solve warm-starts from it. On any other status the
// model is left untouched and the result carries NaN objective and solution
// values where the solver provides none. A non-nil error is returned only
// for contract violations (no objective, adapter failures), never for
// non-Optimal solver outcomes.
func (o *Orchestrator) Solve(m *model.Model) (*Result, error) {
	state := stateBuilt
	transition := func(next solveState) {
		o.log.Debug().Stringer("from", state).Stringer("to", next).Msg("solve state")
		state = next
	}

	evOpts := append([]evaluator.Option{evaluator.WithNumeric(), evaluator.WithLogger(o.log)}, o.evalOpts...)
	ev, err := evaluator.New(m, evOpts...)
	if err != nil {
		transition(stateFailed)
		return nil, fmt.Errorf("freeze model: %w", err)
	}

	inst, err := o.solver.CreateModelInstance()
	if err != nil {
		transition(stateFailed)
		return nil, fmt.Errorf("create model instance: %w", err)
	}
	if err := inst.LoadProblem(Problem{
		NumVariables:   ev.NumVariables(),
		NumConstraints: ev.NumConstraints(),
		VarLower:       ev.VariableLower(),
		VarUpper:       ev.VariableUpper(),
		ConsLower:      ev.ConstraintLower(),
		ConsUpper:      ev.ConstraintUpper(),
		Sense:          ev.Sense(),
		Evaluator:      ev,
	}); err != nil {
		transition(stateFailed)
		return nil, fmt.Errorf("load problem: %w", err)
	}
	if err := inst.SetWarmStart(m.Values()); err != nil {
		transition(stateFailed)
		return nil, fmt.Errorf("set warm start: %w", err)
	}
	transition(stateInitialized)

	transition(stateOptimizing)
	if err := inst.Optimize(); err != nil {
		transition(stateFailed)
		return nil, fmt.Errorf("optimize: %w", err)
	}

	native := inst.NativeStatus()
	status, known := o.solver.StatusTable()[native]
	if !known {
		status = StatusError
		o.log.Warn().Str("native", native).Msg("unrecognized native solver status, reporting error")
	}
	transition(stateSolved)
	o.log.Info().Str("native", native).Stringer("status", status).Uint64("evals", ev.EvalCount()).Msg("solve finished")

	if status != StatusOptimal {
		x := make([]float64, ev.NumVariables())
		for i := range x {
			x[i] = math.NaN()
		}
		return &Result{Status: status, Objective: math.NaN(), X: x}, nil
	}

	x := append([]float64(nil), inst.SolutionVector()...)
	res := &Result{Status: StatusOptimal, Objective: inst.ObjectiveValue(), X: x}
	if err := m.SetValues(x); err != nil {
		return nil, fmt.Errorf("write back solution: %w", err)
	}
	return res, nil
}
