package model

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/chaoshengdong/nlbridge/expr"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/errgroup"
)

const serMagic = uint32(0x6e6c6231) // "nlb1"

// instr is one step of the postfix expression encoding: children precede
// their parent, N is the child count. A flat stream sidesteps decoder
// recursion limits on deep trees.
type instr struct {
	Op  uint8   `cbor:"o"`
	Val float64 `cbor:"v,omitempty"`
	Idx int32   `cbor:"i,omitempty"`
	N   int32   `cbor:"n,omitempty"`
}

type serVariable struct {
	Lower float64 `cbor:"l"`
	Upper float64 `cbor:"u"`
	Value float64 `cbor:"x"`
}

type serConstraint struct {
	Body  []instr `cbor:"b"`
	Rel   uint8   `cbor:"r"`
	Lower float64 `cbor:"l"`
	Upper float64 `cbor:"u"`
}

type serObjective struct {
	Present bool    `cbor:"p"`
	Sense   uint8   `cbor:"s"`
	Body    []instr `cbor:"b"`
}

func encodeExpr(e *expr.Expr) []instr {
	var out []instr
	var walk func(n *expr.Expr)
	walk = func(n *expr.Expr) {
		for _, a := range n.Args() {
			walk(a)
		}
		in := instr{Op: uint8(n.Op()), N: int32(len(n.Args()))}
		switch n.Op() {
		case expr.OpConst:
			in.Val = n.Float()
		case expr.OpPowInt:
			in.Val = float64(n.Exponent())
		case expr.OpVar:
			in.Idx = int32(n.VarIndex())
		}
		out = append(out, in)
	}
	walk(e)
	return out
}

func decodeExpr(ins []instr) (*expr.Expr, error) {
	var stack []*expr.Expr
	pop := func(n int) ([]*expr.Expr, error) {
		if len(stack) < n {
			return nil, errors.New("truncated expression stream")
		}
		args := stack[len(stack)-n:]
		stack = stack[:len(stack)-n]
		return args, nil
	}
	for _, in := range ins {
		args, err := pop(int(in.N))
		if err != nil {
			return nil, err
		}
		var e *expr.Expr
		switch op := expr.Op(in.Op); op {
		case expr.OpConst:
			e = expr.Const(in.Val)
		case expr.OpVar:
			if in.Idx < 0 {
				return nil, fmt.Errorf("decode variable: %w", ErrInvalidReference)
			}
			e = expr.Var(int(in.Idx))
		case expr.OpNeg:
			e = expr.Neg(args[0])
		case expr.OpSin:
			e = expr.Sin(args[0])
		case expr.OpCos:
			e = expr.Cos(args[0])
		case expr.OpTan:
			e = expr.Tan(args[0])
		case expr.OpExp:
			e = expr.Exp(args[0])
		case expr.OpLog:
			e = expr.Log(args[0])
		case expr.OpSqrt:
			e = expr.Sqrt(args[0])
		case expr.OpAbs:
			e = expr.Abs(args[0])
		case expr.OpSub:
			e = expr.Sub(args[0], args[1])
		case expr.OpDiv:
			e = expr.Div(args[0], args[1])
		case expr.OpPow:
			e = expr.Pow(args[0], args[1])
		case expr.OpPowInt:
			e = expr.PowInt(args[0], int(in.Val))
		case expr.OpSum:
			e = expr.Add(args...)
		case expr.OpProd:
			e = expr.Mul(args...)
		default:
			return nil, fmt.Errorf("decode: unknown operator tag %d", in.Op)
		}
		if int(in.N) > len(e.Args()) && in.N > 1 {
			// n-ary constructors absorb nested children but never drop them
			return nil, errors.New("decode: inconsistent arity")
		}
		stack = append(stack, e)
	}
	if len(stack) != 1 {
		return nil, errors.New("expression stream does not reduce to one tree")
	}
	return stack[0], nil
}

// WriteTo serializes the model: a short header followed by three
// independently CBOR-encoded blocks (variables, constraints, objective),
// encoded in parallel.
func (m *Model) WriteTo(w io.Writer) (int64, error) {
	var varBlock, consBlock, objBlock []byte
	var g errgroup.Group
	g.Go(func() error {
		vars := make([]serVariable, len(m.vars))
		for i, v := range m.vars {
			vars[i] = serVariable{Lower: v.Lower, Upper: v.Upper, Value: v.Value}
		}
		var err error
		varBlock, err = cbor.Marshal(vars)
		return err
	})
	g.Go(func() error {
		cons := make([]serConstraint, len(m.constraints))
		for i, c := range m.constraints {
			cons[i] = serConstraint{Body: encodeExpr(c.Body), Rel: uint8(c.Rel), Lower: c.Lower, Upper: c.Upper}
		}
		var err error
		consBlock, err = cbor.Marshal(cons)
		return err
	})
	g.Go(func() error {
		var obj serObjective
		if m.objective != nil {
			obj = serObjective{Present: true, Sense: uint8(m.objective.Sense), Body: encodeExpr(m.objective.Body)}
		}
		var err error
		objBlock, err = cbor.Marshal(obj)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("encode model: %w", err)
	}

	var buf bytes.Buffer
	for _, v := range []uint32{serMagic, uint32(len(varBlock)), uint32(len(consBlock)), uint32(len(objBlock))} {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return 0, err
		}
	}
	buf.Write(varBlock)
	buf.Write(consBlock)
	buf.Write(objBlock)
	return buf.WriteTo(w)
}

// ReadFrom deserializes a model written by WriteTo, replacing the receiver's
// content. Constraints are revalidated and reclassified on decode; indices
// are identical to the serialized ones.
func (m *Model) ReadFrom(r io.Reader) (int64, error) {
	var header [4]uint32
	if err := binary.Read(r, binary.LittleEndian, header[:]); err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	if header[0] != serMagic {
		return 0, errors.New("not a serialized model")
	}
	n := int64(16)
	blocks := make([][]byte, 3)
	for i, size := range header[1:] {
		blocks[i] = make([]byte, size)
		read, err := io.ReadFull(r, blocks[i])
		n += int64(read)
		if err != nil {
			return n, fmt.Errorf("read block %d: %w", i, err)
		}
	}

	var vars []serVariable
	var cons []serConstraint
	var obj serObjective
	var g errgroup.Group
	g.Go(func() error { return cbor.Unmarshal(blocks[0], &vars) })
	g.Go(func() error { return cbor.Unmarshal(blocks[1], &cons) })
	g.Go(func() error { return cbor.Unmarshal(blocks[2], &obj) })
	if err := g.Wait(); err != nil {
		return n, fmt.Errorf("decode model: %w", err)
	}

	out := New()
	for _, v := range vars {
		i := out.AddVariable(v.Lower, v.Upper)
		out.vars[i].Value = v.Value
	}
	for i, c := range cons {
		body, err := decodeExpr(c.Body)
		if err != nil {
			return n, fmt.Errorf("decode constraint %d: %w", i, err)
		}
		if _, err := out.addConstraint(body, Relation(c.Rel), c.Lower, c.Upper); err != nil {
			return n, fmt.Errorf("decode constraint %d: %w", i, err)
		}
	}
	if obj.Present {
		body, err := decodeExpr(obj.Body)
		if err != nil {
			return n, fmt.Errorf("decode objective: %w", err)
		}
		if err := out.SetObjective(Sense(obj.Sense), body); err != nil {
			return n, fmt.Errorf("decode objective: %w", err)
		}
	}
	*m = *out
	return n, nil
}
