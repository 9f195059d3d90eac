package expr

import (
	"strconv"
	"strings"
)

// String renders the expression deterministically: children print in stored
// order, floats use the shortest exact decimal form, and parentheses follow
// operator precedence. Two structurally equal expressions always render to
// the same string.
func (e *Expr) String() string {
	var sb strings.Builder
	e.write(&sb, 0)
	return sb.String()
}

// precedence groups, loosest binding first
const (
	precAdd = iota + 1
	precMul
	precNeg
	precPow
	precAtom
)

func (e *Expr) precedence() int {
	switch e.op {
	case OpSum, OpSub:
		return precAdd
	case OpProd, OpDiv:
		return precMul
	case OpNeg:
		return precNeg
	case OpConst:
		if e.val < 0 {
			return precNeg
		}
		return precAtom
	case OpPow, OpPowInt:
		return precPow
	default:
		// variable references and function calls are self-delimiting
		return precAtom
	}
}

func (e *Expr) write(sb *strings.Builder, parent int) {
	if e.precedence() < parent {
		sb.WriteByte('(')
		e.write(sb, 0)
		sb.WriteByte(')')
		return
	}
	switch e.op {
	case OpConst:
		sb.WriteString(strconv.FormatFloat(e.val, 'g', -1, 64))
	case OpVar:
		sb.WriteString("x[")
		sb.WriteString(strconv.Itoa(e.idx))
		sb.WriteByte(']')
	case OpNeg:
		sb.WriteByte('-')
		e.args[0].write(sb, precPow)
	case OpSin, OpCos, OpTan, OpExp, OpLog, OpSqrt, OpAbs:
		sb.WriteString(e.op.String())
		sb.WriteByte('(')
		e.args[0].write(sb, 0)
		sb.WriteByte(')')
	case OpSub:
		e.args[0].write(sb, precAdd)
		sb.WriteString(" - ")
		e.args[1].write(sb, precAdd+1)
	case OpDiv:
		e.args[0].write(sb, precMul)
		sb.WriteString(" / ")
		e.args[1].write(sb, precMul+1)
	case OpPow:
		e.args[0].write(sb, precPow+1)
		sb.WriteByte('^')
		e.args[1].write(sb, precPow+1)
	case OpPowInt:
		e.args[0].write(sb, precPow+1)
		sb.WriteByte('^')
		sb.WriteString(strconv.Itoa(int(e.val)))
	case OpSum:
		for i, a := range e.args {
			if i > 0 {
				sb.WriteString(" + ")
			}
			a.write(sb, precAdd)
		}
	case OpProd:
		for i, a := range e.args {
			if i > 0 {
				sb.WriteByte('*')
			}
			a.write(sb, precMul)
		}
	default:
		panic("expr: unknown operator " + e.op.String())
	}
}
