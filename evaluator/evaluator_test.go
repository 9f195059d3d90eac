package evaluator

import (
	"math"
	"testing"

	"github.com/chaoshengdong/nlbridge/expr"
	"github.com/chaoshengdong/nlbridge/model"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func buildModel(t *testing.T) *model.Model {
	t.Helper()
	assert := require.New(t)

	m := model.New()
	ids := m.AddVariables(3, 0, 5)
	x, _ := m.Var(ids[0])
	y, _ := m.Var(ids[1])
	z, _ := m.Var(ids[2])

	assert.NoError(m.SetObjective(model.Minimize,
		expr.Add(expr.Mul(x, y), expr.PowInt(z, 2))))

	// 0: linear, written in scrambled, unfolded order
	_, err := m.AddConstraint(expr.Add(y, expr.Mul(expr.Const(2), x), expr.Const(0)), model.LessEqual, 1)
	assert.NoError(err)
	// 1: nonlinear equality, rhs folds into the body
	_, err = m.AddConstraint(expr.Mul(x, y, z), model.Equal, 25)
	assert.NoError(err)
	// 2: nonlinear range
	_, err = m.AddRangeConstraint(-1, expr.Sin(z), 1)
	assert.NoError(err)
	return m
}

func TestDimensionsAndBounds(t *testing.T) {
	assert := require.New(t)

	ev, err := New(buildModel(t))
	assert.NoError(err)

	assert.Equal(3, ev.NumVariables())
	assert.Equal(3, ev.NumConstraints())
	assert.Equal(model.Minimize, ev.Sense())
	assert.Equal([]float64{0, 0, 0}, ev.VariableLower())
	assert.Equal([]float64{5, 5, 5}, ev.VariableUpper())

	lo, hi := ev.ConstraintLower(), ev.ConstraintUpper()
	assert.True(math.IsInf(lo[0], -1))
	assert.Equal(1.0, hi[0])
	// nonlinear equalities are shifted to body - rhs == 0
	assert.Equal(0.0, lo[1])
	assert.Equal(0.0, hi[1])
	assert.Equal([]float64{-1.0, 1.0}, []float64{lo[2], hi[2]})
}

func TestCanonicalTrees(t *testing.T) {
	assert := require.New(t)

	ev, err := New(buildModel(t))
	assert.NoError(err)

	c0, err := ev.ConstraintExpr(0)
	assert.NoError(err)
	assert.Equal("2*x[0] + x[1]", c0.String())

	c1, err := ev.ConstraintExpr(1)
	assert.NoError(err)
	assert.Equal("x[0]*x[1]*x[2] - 25", c1.String())

	rel, err := ev.ConstraintRelation(1)
	assert.NoError(err)
	assert.Equal(model.Equal, rel)

	_, err = ev.ConstraintExpr(3)
	assert.ErrorIs(err, ErrIndexOutOfRange)
	_, err = ev.ConstraintRelation(-1)
	assert.ErrorIs(err, ErrIndexOutOfRange)
}

// Two evaluators frozen from the same model render identical trees.
func TestCanonicalRenderingDeterministic(t *testing.T) {
	assert := require.New(t)

	m := buildModel(t)
	a, err := New(m)
	assert.NoError(err)
	b, err := New(m)
	assert.NoError(err)

	assert.Empty(cmp.Diff(a.ObjectiveExpr().String(), b.ObjectiveExpr().String()))
	for i := 0; i < a.NumConstraints(); i++ {
		ca, _ := a.ConstraintExpr(i)
		cb, _ := b.ConstraintExpr(i)
		assert.Empty(cmp.Diff(ca.String(), cb.String()), "constraint %d", i)
	}
}

func TestLinearObjectiveCanonicalized(t *testing.T) {
	assert := require.New(t)

	m := model.New()
	ids := m.AddVariables(2, 0, 1)
	x, _ := m.Var(ids[0])
	y, _ := m.Var(ids[1])
	// y + 3x + x collapses to the canonical ascending-index rendering
	assert.NoError(m.SetObjective(model.Maximize, expr.Add(y, expr.Mul(expr.Const(3), x), x)))

	ev, err := New(m)
	assert.NoError(err)
	assert.Equal("4*x[0] + x[1]", ev.ObjectiveExpr().String())
	assert.Equal(model.Maximize, ev.Sense())
}

func TestIsConstraintLinear(t *testing.T) {
	assert := require.New(t)

	ev, err := New(buildModel(t))
	assert.NoError(err)

	for i, want := range []bool{true, false, false} {
		got, err := ev.IsConstraintLinear(i)
		assert.NoError(err)
		assert.Equal(want, got, "constraint %d", i)
	}
	_, err = ev.IsConstraintLinear(3)
	assert.ErrorIs(err, ErrIndexOutOfRange)
}

func TestModeGating(t *testing.T) {
	assert := require.New(t)

	ev, err := New(buildModel(t))
	assert.NoError(err)
	x := []float64{1, 2, 3}

	_, err = ev.Objective(x)
	assert.ErrorIs(err, ErrModeNotInitialized)
	_, err = ev.ConstraintValues(x, nil)
	assert.ErrorIs(err, ErrModeNotInitialized)
	_, err = ev.Gradient(x, nil)
	assert.ErrorIs(err, ErrModeNotInitialized)
	_, err = ev.Jacobian(x)
	assert.ErrorIs(err, ErrModeNotInitialized)
	_, err = ev.Hessian(x, 1, []float64{0, 0, 0})
	assert.ErrorIs(err, ErrModeNotInitialized)

	// structural queries stay available without any mode
	assert.Equal(3, ev.NumVariables())
	_, err = ev.ConstraintExpr(0)
	assert.NoError(err)

	// numeric mode still withholds Hessians
	ev, err = New(buildModel(t), WithNumeric())
	assert.NoError(err)
	_, err = ev.Objective(x)
	assert.NoError(err)
	_, err = ev.Hessian(x, 1, []float64{0, 0, 0})
	assert.ErrorIs(err, ErrModeNotInitialized)
}

func TestRequiresObjective(t *testing.T) {
	assert := require.New(t)

	m := model.New()
	m.AddVariable(0, 1)
	_, err := New(m)
	assert.ErrorIs(err, model.ErrNoObjective)
}
