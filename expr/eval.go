package expr

import "math"

// Value evaluates the expression at the given point. The point must cover
// every variable index referenced by the expression.
func (e *Expr) Value(x []float64) float64 {
	switch e.op {
	case OpConst:
		return e.val
	case OpVar:
		return x[e.idx]
	case OpNeg:
		return -e.args[0].Value(x)
	case OpSin:
		return math.Sin(e.args[0].Value(x))
	case OpCos:
		return math.Cos(e.args[0].Value(x))
	case OpTan:
		return math.Tan(e.args[0].Value(x))
	case OpExp:
		return math.Exp(e.args[0].Value(x))
	case OpLog:
		return math.Log(e.args[0].Value(x))
	case OpSqrt:
		return math.Sqrt(e.args[0].Value(x))
	case OpAbs:
		return math.Abs(e.args[0].Value(x))
	case OpSub:
		return e.args[0].Value(x) - e.args[1].Value(x)
	case OpDiv:
		return e.args[0].Value(x) / e.args[1].Value(x)
	case OpPow:
		return math.Pow(e.args[0].Value(x), e.args[1].Value(x))
	case OpPowInt:
		return powInt(e.args[0].Value(x), int(e.val))
	case OpSum:
		s := 0.0
		for _, a := range e.args {
			s += a.Value(x)
		}
		return s
	case OpProd:
		p := 1.0
		for _, a := range e.args {
			p *= a.Value(x)
		}
		return p
	default:
		panic("expr: unknown operator " + e.op.String())
	}
}

// powInt computes b^k by repeated squaring; negative exponents invert.
func powInt(b float64, k int) float64 {
	if k < 0 {
		return 1 / powInt(b, -k)
	}
	r := 1.0
	for k > 0 {
		if k&1 == 1 {
			r *= b
		}
		b *= b
		k >>= 1
	}
	return r
}
