package expr

import "math"

// Fold returns the expression with constants folded where algebraically
// free: all-constant subtrees collapse to literals, literal terms of a sum
// merge into one trailing constant, literal factors of a product merge into
// one leading coefficient, and identity elements drop. The rewrite is
// deterministic and preserves the relative order of non-constant operands.
func (e *Expr) Fold() *Expr {
	switch e.op {
	case OpConst, OpVar:
		return e

	case OpNeg:
		a := e.args[0].Fold()
		switch {
		case a.op == OpConst:
			return Const(-a.val)
		case a.op == OpNeg:
			return a.args[0]
		}
		return Neg(a)

	case OpSin, OpCos, OpTan, OpExp, OpLog, OpSqrt, OpAbs:
		a := e.args[0].Fold()
		n := &Expr{op: e.op, args: []*Expr{a}}
		if a.op == OpConst {
			return Const(n.Value(nil))
		}
		return n

	case OpSub:
		a, b := e.args[0].Fold(), e.args[1].Fold()
		switch {
		case a.op == OpConst && b.op == OpConst:
			return Const(a.val - b.val)
		case b.op == OpConst && b.val == 0:
			return a
		case a.op == OpConst && a.val == 0:
			return Neg(b).Fold()
		}
		return Sub(a, b)

	case OpDiv:
		a, b := e.args[0].Fold(), e.args[1].Fold()
		switch {
		case a.op == OpConst && b.op == OpConst:
			return Const(a.val / b.val)
		case b.op == OpConst && b.val == 1:
			return a
		}
		return Div(a, b)

	case OpPow:
		a, b := e.args[0].Fold(), e.args[1].Fold()
		if a.op == OpConst && b.op == OpConst {
			return Const(math.Pow(a.val, b.val))
		}
		return Pow(a, b)

	case OpPowInt:
		a, k := e.args[0].Fold(), int(e.val)
		switch {
		case a.op == OpConst:
			return Const(powInt(a.val, k))
		case k == 0:
			return Const(1)
		case k == 1:
			return a
		}
		return PowInt(a, k)

	case OpSum:
		terms := make([]*Expr, 0, len(e.args))
		c := 0.0
		for _, a := range e.args {
			f := a.Fold()
			switch f.op {
			case OpConst:
				c += f.val
			case OpSum:
				for _, t := range f.args {
					if t.op == OpConst {
						c += t.val
					} else {
						terms = append(terms, t)
					}
				}
			default:
				terms = append(terms, f)
			}
		}
		if c != 0 || len(terms) == 0 {
			terms = append(terms, Const(c))
		}
		return Add(terms...)

	case OpProd:
		factors := make([]*Expr, 0, len(e.args))
		c := 1.0
		for _, a := range e.args {
			f := a.Fold()
			switch f.op {
			case OpConst:
				c *= f.val
			case OpProd:
				for _, t := range f.args {
					if t.op == OpConst {
						c *= t.val
					} else {
						factors = append(factors, t)
					}
				}
			default:
				factors = append(factors, f)
			}
		}
		switch {
		case c == 0:
			return Const(0)
		case len(factors) == 0:
			return Const(c)
		case c != 1:
			factors = append([]*Expr{Const(c)}, factors...)
		}
		return Mul(factors...)

	default:
		panic("expr: unknown operator " + e.op.String())
	}
}
