package expr

import "fmt"

// Derivative returns the partial derivative of the expression with respect
// to the variable idx, as a new constant-folded expression.
//
// OpPow with a non-constant exponent u^v differentiates through the identity
// u^v = exp(v*log(u)), which requires u > 0 at every evaluation point; models
// using variable exponents must bound the base away from zero. Abs has no
// closed-form rule and yields ErrNonDifferentiable.
func (e *Expr) Derivative(idx int) (*Expr, error) {
	d, err := e.derivative(idx)
	if err != nil {
		return nil, err
	}
	return d.Fold(), nil
}

func (e *Expr) derivative(idx int) (*Expr, error) {
	switch e.op {
	case OpConst:
		return Const(0), nil
	case OpVar:
		if e.idx == idx {
			return Const(1), nil
		}
		return Const(0), nil

	case OpNeg:
		da, err := e.args[0].derivative(idx)
		if err != nil {
			return nil, err
		}
		return Neg(da), nil

	case OpSin:
		return chain(e.args[0], idx, Cos(e.args[0]))
	case OpCos:
		return chain(e.args[0], idx, Neg(Sin(e.args[0])))
	case OpTan:
		// 1/cos^2(u)
		return chain(e.args[0], idx, Div(Const(1), PowInt(Cos(e.args[0]), 2)))
	case OpExp:
		return chain(e.args[0], idx, e)
	case OpLog:
		return chain(e.args[0], idx, Div(Const(1), e.args[0]))
	case OpSqrt:
		return chain(e.args[0], idx, Div(Const(1), Mul(Const(2), e)))
	case OpAbs:
		return nil, fmt.Errorf("abs(%s): %w", e.args[0], ErrNonDifferentiable)

	case OpSub:
		da, err := e.args[0].derivative(idx)
		if err != nil {
			return nil, err
		}
		db, err := e.args[1].derivative(idx)
		if err != nil {
			return nil, err
		}
		return Sub(da, db), nil

	case OpDiv:
		a, b := e.args[0], e.args[1]
		da, err := a.derivative(idx)
		if err != nil {
			return nil, err
		}
		db, err := b.derivative(idx)
		if err != nil {
			return nil, err
		}
		return Div(Sub(Mul(da, b), Mul(a, db)), PowInt(b, 2)), nil

	case OpPow:
		u, v := e.args[0], e.args[1]
		du, err := u.derivative(idx)
		if err != nil {
			return nil, err
		}
		dv, err := v.derivative(idx)
		if err != nil {
			return nil, err
		}
		// d(u^v) = u^v * (dv*log(u) + v*du/u)
		return Mul(e, Add(Mul(dv, Log(u)), Div(Mul(v, du), u))), nil

	case OpPowInt:
		u, k := e.args[0], int(e.val)
		if k == 0 {
			return Const(0), nil
		}
		du, err := u.derivative(idx)
		if err != nil {
			return nil, err
		}
		return Mul(Const(float64(k)), PowInt(u, k-1), du), nil

	case OpSum:
		terms := make([]*Expr, len(e.args))
		for i, a := range e.args {
			da, err := a.derivative(idx)
			if err != nil {
				return nil, err
			}
			terms[i] = da
		}
		return Add(terms...), nil

	case OpProd:
		// product rule: sum over j of du_j * prod_{k != j} u_k
		terms := make([]*Expr, 0, len(e.args))
		for j, a := range e.args {
			da, err := a.derivative(idx)
			if err != nil {
				return nil, err
			}
			factors := make([]*Expr, 0, len(e.args))
			factors = append(factors, da)
			for k, b := range e.args {
				if k != j {
					factors = append(factors, b)
				}
			}
			terms = append(terms, Mul(factors...))
		}
		return Add(terms...), nil

	default:
		panic("expr: unknown operator " + e.op.String())
	}
}

// chain applies the chain rule outer' * du for a unary operator.
func chain(u *Expr, idx int, outer *Expr) (*Expr, error) {
	du, err := u.derivative(idx)
	if err != nil {
		return nil, err
	}
	return Mul(outer, du), nil
}
