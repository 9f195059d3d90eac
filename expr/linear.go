package expr

import "sort"

// LinearForm is the compact representation of an affine expression: a
// coefficient per referenced variable index plus a constant offset.
// Variables that do not appear carry no entry, not even a zero one.
type LinearForm struct {
	Coeffs map[int]float64
	Offset float64
}

// Vars returns the variable indices of the form in ascending order.
func (lf LinearForm) Vars() []int {
	vars := make([]int, 0, len(lf.Coeffs))
	for i := range lf.Coeffs {
		vars = append(vars, i)
	}
	sort.Ints(vars)
	return vars
}

// Expr rebuilds the canonical expression of the form: terms in ascending
// variable index, unit coefficients elided, offset trailing when non-zero.
func (lf LinearForm) Expr() *Expr {
	terms := make([]*Expr, 0, len(lf.Coeffs)+1)
	for _, i := range lf.Vars() {
		if c := lf.Coeffs[i]; c == 1 {
			terms = append(terms, Var(i))
		} else {
			terms = append(terms, Mul(Const(c), Var(i)))
		}
	}
	if lf.Offset != 0 || len(terms) == 0 {
		terms = append(terms, Const(lf.Offset))
	}
	return Add(terms...)
}

// Linearize classifies the expression. It returns its linear form and true
// when the expression is affine in the model variables, and a zero form and
// false otherwise.
//
// Classification is structural and bottom-up: constants and variable
// references are linear, sums and differences of linear operands are linear
// with coefficients added, a product is linear only when at most one operand
// is non-constant, a quotient only when the divisor is a non-zero constant,
// a power only for exponent exactly 1, and an elementary function only when
// its operand folds to a constant. Coefficients that cancel to zero are
// dropped from the form.
func Linearize(e *Expr) (LinearForm, bool) {
	lf, ok := linearize(e)
	if !ok {
		return LinearForm{}, false
	}
	for i, c := range lf.Coeffs {
		if c == 0 {
			delete(lf.Coeffs, i)
		}
	}
	return lf, true
}

func linearize(e *Expr) (LinearForm, bool) {
	switch e.op {
	case OpConst:
		return LinearForm{Coeffs: map[int]float64{}, Offset: e.val}, true
	case OpVar:
		return LinearForm{Coeffs: map[int]float64{e.idx: 1}}, true

	case OpNeg:
		a, ok := linearize(e.args[0])
		if !ok {
			return LinearForm{}, false
		}
		return a.scale(-1), true

	case OpSin, OpCos, OpTan, OpExp, OpLog, OpSqrt, OpAbs:
		if f := e.Fold(); f.op == OpConst {
			return LinearForm{Coeffs: map[int]float64{}, Offset: f.val}, true
		}
		return LinearForm{}, false

	case OpSub:
		a, ok := linearize(e.args[0])
		if !ok {
			return LinearForm{}, false
		}
		b, ok := linearize(e.args[1])
		if !ok {
			return LinearForm{}, false
		}
		return a.add(b.scale(-1)), true

	case OpDiv:
		d := e.args[1].Fold()
		if d.op != OpConst || d.val == 0 {
			return LinearForm{}, false
		}
		a, ok := linearize(e.args[0])
		if !ok {
			return LinearForm{}, false
		}
		return a.scale(1 / d.val), true

	case OpPow:
		if x := e.args[1].Fold(); x.op != OpConst || x.val != 1 {
			return LinearForm{}, false
		}
		return linearize(e.args[0])

	case OpPowInt:
		if int(e.val) != 1 {
			return LinearForm{}, false
		}
		return linearize(e.args[0])

	case OpSum:
		acc := LinearForm{Coeffs: map[int]float64{}}
		for _, a := range e.args {
			t, ok := linearize(a)
			if !ok {
				return LinearForm{}, false
			}
			acc = acc.add(t)
		}
		return acc, true

	case OpProd:
		scale := 1.0
		var body *LinearForm
		for _, a := range e.args {
			t, ok := linearize(a)
			if !ok {
				return LinearForm{}, false
			}
			if len(t.Coeffs) == 0 {
				scale *= t.Offset
				continue
			}
			if body != nil {
				// two non-constant factors
				return LinearForm{}, false
			}
			body = &t
		}
		if body == nil {
			return LinearForm{Coeffs: map[int]float64{}, Offset: scale}, true
		}
		return body.scale(scale), true

	default:
		panic("expr: unknown operator " + e.op.String())
	}
}

func (lf LinearForm) scale(s float64) LinearForm {
	out := LinearForm{Coeffs: make(map[int]float64, len(lf.Coeffs)), Offset: lf.Offset * s}
	for i, c := range lf.Coeffs {
		out.Coeffs[i] = c * s
	}
	return out
}

func (lf LinearForm) add(o LinearForm) LinearForm {
	out := LinearForm{Coeffs: make(map[int]float64, len(lf.Coeffs)+len(o.Coeffs)), Offset: lf.Offset + o.Offset}
	for i, c := range lf.Coeffs {
		out.Coeffs[i] = c
	}
	for i, c := range o.Coeffs {
		out.Coeffs[i] += c
	}
	return out
}
