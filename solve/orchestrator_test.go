package solve

import (
	"errors"
	"math"
	"testing"

	"github.com/chaoshengdong/nlbridge/expr"
	"github.com/chaoshengdong/nlbridge/model"
	"github.com/stretchr/testify/require"
)

// fakeSolver scripts the solver side of a solve: it records what the
// orchestrator hands it and reports a fixed native status and solution.
type fakeSolver struct {
	status   string
	solution []float64
	obj      float64

	createErr   error
	loadErr     error
	warmErr     error
	optimizeErr error

	lastInstance *fakeInstance
}

func (f *fakeSolver) CreateModelInstance() (Instance, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.lastInstance = &fakeInstance{solver: f}
	return f.lastInstance, nil
}

func (f *fakeSolver) StatusTable() map[string]Status {
	return map[string]Status{
		"converged":         StatusOptimal,
		"proven infeasible": StatusInfeasible,
		"diverging":         StatusUnbounded,
		"max iter":          StatusIterationLimit,
		"numerical trouble": StatusError,
	}
}

type fakeInstance struct {
	solver    *fakeSolver
	problem   Problem
	warm      []float64
	optimized bool
}

func (in *fakeInstance) LoadProblem(p Problem) error {
	if in.solver.loadErr != nil {
		return in.solver.loadErr
	}
	in.problem = p
	return nil
}

func (in *fakeInstance) SetWarmStart(x []float64) error {
	if in.solver.warmErr != nil {
		return in.solver.warmErr
	}
	in.warm = append([]float64(nil), x...)
	return nil
}

func (in *fakeInstance) Optimize() error {
	if in.solver.optimizeErr != nil {
		return in.solver.optimizeErr
	}
	in.optimized = true
	return nil
}

func (in *fakeInstance) NativeStatus() string      { return in.solver.status }
func (in *fakeInstance) ObjectiveValue() float64   { return in.solver.obj }
func (in *fakeInstance) SolutionVector() []float64 { return in.solver.solution }

func twoVarModel(t *testing.T) *model.Model {
	t.Helper()
	assert := require.New(t)

	m := model.New()
	ids := m.AddVariables(2, 0, 10)
	x, _ := m.Var(ids[0])
	y, _ := m.Var(ids[1])
	assert.NoError(m.SetObjective(model.Minimize, expr.Add(expr.PowInt(x, 2), y)))
	_, err := m.AddConstraint(expr.Add(x, y), model.GreaterEqual, 1)
	assert.NoError(err)
	assert.NoError(m.SetValues([]float64{3, 4}))
	return m
}

func TestSolveOptimalWritesBack(t *testing.T) {
	assert := require.New(t)

	m := twoVarModel(t)
	fs := &fakeSolver{status: "converged", solution: []float64{0.25, 0.75}, obj: 0.8125}
	res, err := New(fs, WithSuppressWarnings()).Solve(m)
	assert.NoError(err)
	assert.Equal(StatusOptimal, res.Status)
	assert.Equal(0.8125, res.Objective)
	assert.Equal([]float64{0.25, 0.75}, res.X)

	// the solution becomes the next warm start
	assert.Equal([]float64{0.25, 0.75}, m.Values())

	// the adapter saw the frozen problem and the pre-solve point
	in := fs.lastInstance
	assert.True(in.optimized)
	assert.Equal(2, in.problem.NumVariables)
	assert.Equal(1, in.problem.NumConstraints)
	assert.Equal([]float64{0, 0}, in.problem.VarLower)
	assert.Equal(model.Minimize, in.problem.Sense)
	assert.NotNil(in.problem.Evaluator)
	assert.Equal([]float64{3, 4}, in.warm)
	assert.Equal("status=optimal objective=0.8125", res.String())
}

func TestSolveNonOptimalLeavesModel(t *testing.T) {
	cases := []struct {
		native string
		want   Status
	}{
		{"proven infeasible", StatusInfeasible},
		{"diverging", StatusUnbounded},
		{"max iter", StatusIterationLimit},
		{"numerical trouble", StatusError},
	}
	for _, c := range cases {
		t.Run(c.native, func(t *testing.T) {
			assert := require.New(t)

			m := twoVarModel(t)
			fs := &fakeSolver{status: c.native, solution: []float64{9, 9}}
			res, err := New(fs, WithSuppressWarnings()).Solve(m)
			assert.NoError(err)
			assert.Equal(c.want, res.Status)
			assert.True(math.IsNaN(res.Objective))
			assert.Len(res.X, 2)
			assert.True(math.IsNaN(res.X[0]))
			assert.True(math.IsNaN(res.X[1]))

			// no write-back on non-optimal outcomes
			assert.Equal([]float64{3, 4}, m.Values())
			assert.Equal("status="+c.want.String(), res.String())
		})
	}
}

// An equality chain x[i+1] - x[i] == 0.15 over ten unit-box variables forces
// the last one out of its bounds; the back-end reports infeasibility and the
// orchestrator passes it through as an outcome, not an error.
func TestSolveInfeasibleChain(t *testing.T) {
	assert := require.New(t)

	m := model.New()
	ids := m.AddVariables(10, 0, 1)
	for i := 0; i+1 < len(ids); i++ {
		xi, _ := m.Var(ids[i])
		xn, _ := m.Var(ids[i+1])
		_, err := m.AddConstraint(expr.Sub(xn, xi), model.Equal, 0.15)
		assert.NoError(err)
	}
	last, _ := m.Var(ids[9])
	assert.NoError(m.SetObjective(model.Maximize, last))

	fs := &fakeSolver{status: "proven infeasible"}
	res, err := New(fs, WithSuppressWarnings()).Solve(m)
	assert.NoError(err)
	assert.Equal(StatusInfeasible, res.Status)
	assert.True(math.IsNaN(res.Objective))
	assert.Equal(9, fs.lastInstance.problem.NumConstraints)
}

// Maximizing x over x >= 5 with no upper bound diverges; the normalized
// status distinguishes it from infeasibility.
func TestSolveUnbounded(t *testing.T) {
	assert := require.New(t)

	m := model.New()
	id := m.AddVariable(0, math.Inf(1))
	x, _ := m.Var(id)
	assert.NoError(m.SetObjective(model.Maximize, x))
	_, err := m.AddConstraint(x, model.GreaterEqual, 5)
	assert.NoError(err)

	fs := &fakeSolver{status: "diverging"}
	res, err := New(fs, WithSuppressWarnings()).Solve(m)
	assert.NoError(err)
	assert.Equal(StatusUnbounded, res.Status)
	assert.Equal([]float64{0}, m.Values())
}

func TestSolveUnknownNativeStatus(t *testing.T) {
	assert := require.New(t)

	m := twoVarModel(t)
	fs := &fakeSolver{status: "mystery mode 42"}
	res, err := New(fs, WithSuppressWarnings()).Solve(m)
	assert.NoError(err)
	assert.Equal(StatusError, res.Status)
	assert.Equal([]float64{3, 4}, m.Values())
}

func TestSolveAdapterErrors(t *testing.T) {
	assert := require.New(t)

	boom := errors.New("boom")
	for _, fs := range []*fakeSolver{
		{createErr: boom},
		{loadErr: boom},
		{warmErr: boom},
		{optimizeErr: boom},
	} {
		res, err := New(fs, WithSuppressWarnings()).Solve(twoVarModel(t))
		assert.ErrorIs(err, boom)
		assert.Nil(res)
	}
}

func TestSolveRequiresObjective(t *testing.T) {
	assert := require.New(t)

	m := model.New()
	m.AddVariable(0, 1)
	_, err := New(&fakeSolver{}, WithSuppressWarnings()).Solve(m)
	assert.ErrorIs(err, model.ErrNoObjective)
}

func TestStatusStrings(t *testing.T) {
	assert := require.New(t)

	assert.Equal("optimal", StatusOptimal.String())
	assert.Equal("infeasible", StatusInfeasible.String())
	assert.Equal("unbounded", StatusUnbounded.String())
	assert.Equal("iteration limit", StatusIterationLimit.String())
	assert.Equal("error", StatusError.String())
}
