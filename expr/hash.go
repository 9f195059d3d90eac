package expr

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/bits-and-blooms/bitset"
)

// Equal reports structural equality: same operator at every node, same
// literals, same variable indices, children compared in order.
func (e *Expr) Equal(o *Expr) bool {
	if e == o {
		return true
	}
	if e == nil || o == nil || e.op != o.op || len(e.args) != len(o.args) {
		return false
	}
	switch e.op {
	case OpConst, OpPowInt:
		// compare bit patterns so that -0 != 0 does not flip equality checks
		if math.Float64bits(e.val) != math.Float64bits(o.val) {
			return false
		}
	case OpVar:
		if e.idx != o.idx {
			return false
		}
	}
	for i, a := range e.args {
		if !a.Equal(o.args[i]) {
			return false
		}
	}
	return true
}

// Hash returns a structural FNV-1a hash, consistent with Equal.
func (e *Expr) Hash() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	var walk func(n *Expr)
	walk = func(n *Expr) {
		buf[0] = byte(n.op)
		h.Write(buf[:1])
		switch n.op {
		case OpConst, OpPowInt:
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(n.val))
			h.Write(buf[:])
		case OpVar:
			binary.LittleEndian.PutUint64(buf[:], uint64(n.idx))
			h.Write(buf[:])
		}
		binary.LittleEndian.PutUint64(buf[:], uint64(len(n.args)))
		h.Write(buf[:])
		for _, a := range n.args {
			walk(a)
		}
	}
	walk(e)
	return h.Sum64()
}

// Support sets the bit of every variable index referenced by the expression.
func (e *Expr) Support(b *bitset.BitSet) {
	if e.op == OpVar {
		b.Set(uint(e.idx))
		return
	}
	for _, a := range e.args {
		a.Support(b)
	}
}

// MaxVar returns the largest variable index referenced, or -1 when the
// expression is constant.
func (e *Expr) MaxVar() int {
	if e.op == OpVar {
		return e.idx
	}
	m := -1
	for _, a := range e.args {
		if v := a.MaxVar(); v > m {
			m = v
		}
	}
	return m
}

// Substitute returns the expression with every reference to variable idx
// replaced by repl. Untouched subtrees are shared with the receiver.
func (e *Expr) Substitute(idx int, repl *Expr) *Expr {
	if e.op == OpVar {
		if e.idx == idx {
			return repl
		}
		return e
	}
	var out []*Expr
	for i, a := range e.args {
		s := a.Substitute(idx, repl)
		if s != a && out == nil {
			out = make([]*Expr, len(e.args))
			copy(out, e.args[:i])
		}
		if out != nil {
			out[i] = s
		}
	}
	if out == nil {
		return e
	}
	return &Expr{op: e.op, val: e.val, idx: e.idx, args: out}
}
