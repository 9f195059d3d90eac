// Package solve drives the solve lifecycle of a model against a pluggable
// solver back-end: evaluator binding, warm-start injection, solver
// invocation, status normalization and solution extraction.
//
// Solver adapters are injected explicitly; there is no process-wide solver
// registry.
package solve

import (
	"github.com/chaoshengdong/nlbridge/evaluator"
	"github.com/chaoshengdong/nlbridge/model"
)

// Status is a normalized terminal solve status. Non-Optimal statuses are
// reportable outcomes, not orchestrator errors.
type Status uint8

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusUnbounded
	StatusIterationLimit
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusIterationLimit:
		return "iteration limit"
	default:
		return "error"
	}
}

// Problem is the frozen problem description handed to a solver instance.
type Problem struct {
	NumVariables   int
	NumConstraints int
	VarLower       []float64
	VarUpper       []float64
	ConsLower      []float64
	ConsUpper      []float64
	Sense          model.Sense
	Evaluator      *evaluator.Evaluator
}

// Solver is a solver back-end. Implementations own the mapping from their
// native terminal statuses to normalized ones; the orchestrator never
// hardcodes it.
type Solver interface {
	// CreateModelInstance returns a fresh instance holding solver-side
	// state for one problem.
	CreateModelInstance() (Instance, error)
	// StatusTable maps native status strings to normalized statuses.
	// Native statuses absent from the table normalize to StatusError.
	StatusTable() map[string]Status
}

// Instance is one loaded problem inside a solver back-end.
type Instance interface {
	LoadProblem(p Problem) error
	SetWarmStart(x []float64) error
	// Optimize runs the solver to a terminal state. It may block for an
	// arbitrary, solver-dependent time; the orchestrator imposes no
	// timeout of its own.
	Optimize() error
	NativeStatus() string
	ObjectiveValue() float64
	SolutionVector() []float64
}
