package slsqp

import (
	"math"
	"testing"

	"github.com/chaoshengdong/nlbridge/expr"
	"github.com/chaoshengdong/nlbridge/model"
	"github.com/chaoshengdong/nlbridge/solve"
	"github.com/stretchr/testify/require"
)

// hs071 is the classic four-variable benchmark:
//
//	min  x0*x3*(x0+x1+x2) + x2
//	s.t. x0*x1*x2*x3 >= 25
//	     x0^2 + x1^2 + x2^2 + x3^2 == 40
//	     1 <= xi <= 5
func hs071(t *testing.T) *model.Model {
	t.Helper()
	assert := require.New(t)

	m := model.New()
	ids := m.AddVariables(4, 1, 5)
	x := make([]*expr.Expr, 4)
	for i, id := range ids {
		x[i], _ = m.Var(id)
	}

	assert.NoError(m.SetObjective(model.Minimize,
		expr.Add(expr.Mul(x[0], x[3], expr.Add(x[0], x[1], x[2])), x[2])))
	_, err := m.AddConstraint(expr.Mul(x[0], x[1], x[2], x[3]), model.GreaterEqual, 25)
	assert.NoError(err)
	sq := func(e *expr.Expr) *expr.Expr { return expr.PowInt(e, 2) }
	_, err = m.AddConstraint(expr.Add(sq(x[0]), sq(x[1]), sq(x[2]), sq(x[3])), model.Equal, 40)
	assert.NoError(err)
	assert.NoError(m.SetValues([]float64{1, 5, 5, 1}))
	return m
}

func TestHS071(t *testing.T) {
	assert := require.New(t)

	m := hs071(t)
	orch := solve.New(New(), solve.WithSuppressWarnings())
	res, err := orch.Solve(m)
	assert.NoError(err)
	assert.Equal(solve.StatusOptimal, res.Status)

	want := []float64{1.0, 4.74299963, 3.82114998, 1.37940829}
	for i, w := range want {
		assert.InDelta(w, res.X[i], 1e-4, "x[%d]", i)
	}
	assert.InDelta(17.0140173, res.Objective, 1e-5)

	// the solution was written back as the next warm start
	assert.Equal(res.X, m.Values())

	// re-solving from the optimum stays there
	res2, err := orch.Solve(m)
	assert.NoError(err)
	assert.Equal(solve.StatusOptimal, res2.Status)
	assert.InDelta(res.Objective, res2.Objective, 1e-6)
}

func TestLinearProblem(t *testing.T) {
	assert := require.New(t)

	// min 2x + y, x + y >= 1, box [0,1]^2: optimum (0, 1)
	m := model.New()
	ids := m.AddVariables(2, 0, 1)
	x, _ := m.Var(ids[0])
	y, _ := m.Var(ids[1])
	assert.NoError(m.SetObjective(model.Minimize, expr.Add(expr.Mul(expr.Const(2), x), y)))
	_, err := m.AddConstraint(expr.Add(x, y), model.GreaterEqual, 1)
	assert.NoError(err)
	assert.NoError(m.SetValues([]float64{0.5, 0.5}))

	res, err := solve.New(New(), solve.WithSuppressWarnings()).Solve(m)
	assert.NoError(err)
	assert.Equal(solve.StatusOptimal, res.Status)
	assert.InDelta(0, res.X[0], 1e-6)
	assert.InDelta(1, res.X[1], 1e-6)
	assert.InDelta(1, res.Objective, 1e-6)
}

func TestMaximize(t *testing.T) {
	assert := require.New(t)

	// max log(x) with x <= 3: optimum x = 3, objective log 3
	m := model.New()
	id := m.AddVariable(0.1, 10)
	x, _ := m.Var(id)
	assert.NoError(m.SetObjective(model.Maximize, expr.Log(x)))
	_, err := m.AddConstraint(x, model.LessEqual, 3)
	assert.NoError(err)
	assert.NoError(m.SetValue(id, 1))

	res, err := solve.New(New(), solve.WithSuppressWarnings()).Solve(m)
	assert.NoError(err)
	assert.Equal(solve.StatusOptimal, res.Status)
	assert.InDelta(3, res.X[0], 1e-6)
	assert.InDelta(math.Log(3), res.Objective, 1e-6)
}

func TestRangeConstraint(t *testing.T) {
	assert := require.New(t)

	// min (x-5)^2 with 1 <= x^2 <= 4 pins x to the nearer range edge 2
	m := model.New()
	id := m.AddVariable(0, 10)
	x, _ := m.Var(id)
	assert.NoError(m.SetObjective(model.Minimize, expr.PowInt(expr.Sub(x, expr.Const(5)), 2)))
	_, err := m.AddRangeConstraint(1, expr.PowInt(x, 2), 4)
	assert.NoError(err)
	assert.NoError(m.SetValue(id, 1.5))

	res, err := solve.New(New(), solve.WithSuppressWarnings()).Solve(m)
	assert.NoError(err)
	assert.Equal(solve.StatusOptimal, res.Status)
	assert.InDelta(2, res.X[0], 1e-5)
	assert.InDelta(9, res.Objective, 1e-5)
}

// Solving through the epigraph reformulation reaches the same optimum as
// solving the nonlinear objective directly.
func TestEpigraphEquivalence(t *testing.T) {
	assert := require.New(t)

	build := func() *model.Model {
		m := model.New()
		ids := m.AddVariables(2, -5, 5)
		x, _ := m.Var(ids[0])
		y, _ := m.Var(ids[1])
		// min (x-2)^2 + (y-1)^2 over x + y <= 2: projection of (2,1)
		// onto the halfplane, (1.5, 0.5)
		obj := expr.Add(
			expr.PowInt(expr.Sub(x, expr.Const(2)), 2),
			expr.PowInt(expr.Sub(y, expr.Const(1)), 2),
		)
		require.NoError(t, m.SetObjective(model.Minimize, obj))
		_, err := m.AddConstraint(expr.Add(x, y), model.LessEqual, 2)
		require.NoError(t, err)
		return m
	}

	orch := solve.New(New(), solve.WithSuppressWarnings())

	direct, err := orch.Solve(build())
	assert.NoError(err)
	assert.Equal(solve.StatusOptimal, direct.Status)

	src := build()
	assert.True(model.NeedsEpigraph(src))
	epi, err := model.Epigraph(src)
	assert.NoError(err)
	lifted, err := orch.Solve(epi)
	assert.NoError(err)
	assert.Equal(solve.StatusOptimal, lifted.Status)

	assert.InDelta(0.5, direct.Objective, 1e-5)
	assert.InDelta(direct.Objective, lifted.Objective, 1e-4)
	assert.InDelta(direct.X[0], lifted.X[0], 1e-3)
	assert.InDelta(direct.X[1], lifted.X[1], 1e-3)
	// the epigraph variable settles at the optimal objective
	assert.InDelta(direct.Objective, lifted.X[2], 1e-4)
}

func TestIterationLimit(t *testing.T) {
	assert := require.New(t)

	m := hs071(t)
	res, err := solve.New(New(WithMaxIterations(1)), solve.WithSuppressWarnings()).Solve(m)
	assert.NoError(err)
	assert.Equal(solve.StatusIterationLimit, res.Status)
	assert.True(math.IsNaN(res.Objective))
	// the model keeps its starting point
	assert.Equal([]float64{1, 5, 5, 1}, m.Values())
}

func TestStatusTableCoversNativeStatuses(t *testing.T) {
	assert := require.New(t)

	table := New().StatusTable()
	for _, native := range []string{
		nativeOK, nativeSubSolved, nativeBadArg, nativeNNLSLimit,
		nativeIncompatible, nativeRankDefect, nativeSingularLSI,
		nativeSingularLSEI, nativeNotDescent, nativeIterLimit,
	} {
		_, ok := table[native]
		assert.True(ok, "native status %q unmapped", native)
	}
	assert.Equal(solve.StatusOptimal, table[nativeOK])
	assert.Equal(solve.StatusInfeasible, table[nativeIncompatible])
	assert.Equal(solve.StatusIterationLimit, table[nativeIterLimit])
}

func TestAdapterGuards(t *testing.T) {
	assert := require.New(t)

	inst, err := New().CreateModelInstance()
	assert.NoError(err)

	assert.Error(inst.SetWarmStart([]float64{1}))
	assert.Error(inst.Optimize())
	assert.Error(inst.LoadProblem(solve.Problem{}))
}
