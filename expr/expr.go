// Package expr implements the immutable scalar expression graph shared by
// the modeling layer and the solver-facing evaluator.
//
// An Expr is a closed tagged variant: every operator is a member of the Op
// enum and every traversal is an exhaustive switch over it. Adding an
// elementary function means adding an Op value and extending each switch;
// there is no dynamic operator lookup.
//
// Nodes are immutable once constructed. Rewrites (substitution, folding,
// differentiation) return new trees and may share untouched subtrees; a node
// never references an ancestor, so every traversal terminates.
package expr

import (
	"errors"
	"math"
)

// ErrNonDifferentiable is returned by Derivative for operators with no
// closed-form derivative rule (Abs). Callers are expected to fall back to
// numeric differentiation.
var ErrNonDifferentiable = errors.New("expression has no closed-form derivative")

// Op tags the operator of an expression node.
type Op uint8

const (
	OpConst Op = iota // numeric literal
	OpVar             // variable reference by index

	// unary
	OpNeg
	OpSin
	OpCos
	OpTan
	OpExp
	OpLog
	OpSqrt
	OpAbs

	// binary
	OpSub
	OpDiv
	OpPow    // real or symbolic exponent
	OpPowInt // integer exponent, special-cased by some solvers

	// n-ary
	OpSum
	OpProd
)

func (op Op) String() string {
	switch op {
	case OpConst:
		return "const"
	case OpVar:
		return "var"
	case OpNeg:
		return "neg"
	case OpSin:
		return "sin"
	case OpCos:
		return "cos"
	case OpTan:
		return "tan"
	case OpExp:
		return "exp"
	case OpLog:
		return "log"
	case OpSqrt:
		return "sqrt"
	case OpAbs:
		return "abs"
	case OpSub:
		return "sub"
	case OpDiv:
		return "div"
	case OpPow:
		return "pow"
	case OpPowInt:
		return "powint"
	case OpSum:
		return "sum"
	case OpProd:
		return "prod"
	default:
		return "unknown"
	}
}

// Expr is one immutable node of an expression graph.
type Expr struct {
	op   Op
	val  float64 // OpConst literal; OpPowInt exponent
	idx  int     // OpVar index
	args []*Expr
}

// Op returns the operator tag.
func (e *Expr) Op() Op { return e.op }

// Float returns the literal value of an OpConst node.
func (e *Expr) Float() float64 { return e.val }

// VarIndex returns the variable index of an OpVar node.
func (e *Expr) VarIndex() int { return e.idx }

// Exponent returns the integer exponent of an OpPowInt node.
func (e *Expr) Exponent() int { return int(e.val) }

// Args returns the children of the node. The returned slice must not be
// mutated.
func (e *Expr) Args() []*Expr { return e.args }

// IsConst reports whether the node is a numeric literal.
func (e *Expr) IsConst() bool { return e.op == OpConst }

// Const returns a literal node.
func Const(v float64) *Expr { return &Expr{op: OpConst, val: v} }

// Var returns a reference to the variable with the given index. Range
// validation against a variable table is the model layer's job; a negative
// index is a programming error.
func Var(i int) *Expr {
	if i < 0 {
		panic("expr: negative variable index")
	}
	return &Expr{op: OpVar, idx: i}
}

// Add returns the sum of the given terms. Nested sums are flattened; the
// term order is preserved.
func Add(terms ...*Expr) *Expr {
	flat := make([]*Expr, 0, len(terms))
	for _, t := range terms {
		if t.op == OpSum {
			flat = append(flat, t.args...)
		} else {
			flat = append(flat, t)
		}
	}
	switch len(flat) {
	case 0:
		return Const(0)
	case 1:
		return flat[0]
	}
	return &Expr{op: OpSum, args: flat}
}

// Mul returns the product of the given factors. Nested products are
// flattened; the factor order is preserved.
func Mul(factors ...*Expr) *Expr {
	flat := make([]*Expr, 0, len(factors))
	for _, f := range factors {
		if f.op == OpProd {
			flat = append(flat, f.args...)
		} else {
			flat = append(flat, f)
		}
	}
	switch len(flat) {
	case 0:
		return Const(1)
	case 1:
		return flat[0]
	}
	return &Expr{op: OpProd, args: flat}
}

// Sub returns a - b.
func Sub(a, b *Expr) *Expr { return &Expr{op: OpSub, args: []*Expr{a, b}} }

// Div returns a / b.
func Div(a, b *Expr) *Expr { return &Expr{op: OpDiv, args: []*Expr{a, b}} }

// Neg returns -a.
func Neg(a *Expr) *Expr { return &Expr{op: OpNeg, args: []*Expr{a}} }

// Pow returns base raised to the given exponent expression. A constant
// exponent with an integral value yields an OpPowInt node so that solvers
// which special-case integer powers can recognize it.
func Pow(base, exponent *Expr) *Expr {
	if exponent.op == OpConst {
		if k := exponent.val; k == math.Trunc(k) && !math.IsInf(k, 0) {
			return PowInt(base, int(k))
		}
	}
	return &Expr{op: OpPow, args: []*Expr{base, exponent}}
}

// PowInt returns base raised to the integer exponent k.
func PowInt(base *Expr, k int) *Expr {
	return &Expr{op: OpPowInt, val: float64(k), args: []*Expr{base}}
}

// Sin returns sin(a).
func Sin(a *Expr) *Expr { return &Expr{op: OpSin, args: []*Expr{a}} }

// Cos returns cos(a).
func Cos(a *Expr) *Expr { return &Expr{op: OpCos, args: []*Expr{a}} }

// Tan returns tan(a).
func Tan(a *Expr) *Expr { return &Expr{op: OpTan, args: []*Expr{a}} }

// Exp returns e raised to a.
func Exp(a *Expr) *Expr { return &Expr{op: OpExp, args: []*Expr{a}} }

// Log returns the natural logarithm of a.
func Log(a *Expr) *Expr { return &Expr{op: OpLog, args: []*Expr{a}} }

// Sqrt returns the square root of a.
func Sqrt(a *Expr) *Expr { return &Expr{op: OpSqrt, args: []*Expr{a}} }

// Abs returns the absolute value of a.
func Abs(a *Expr) *Expr { return &Expr{op: OpAbs, args: []*Expr{a}} }
