package vm

import (
	"math"

	"github.com/Antony1060/ESL/internal/object"
	"github.com/Antony1060/ESL/internal/value"
)

// binaryOp pops b then a (a was pushed first) and pushes the result of
// applying op, per the arithmetic/comparison rules: int+int that
// overflows 32 bits promotes to double, ADD on two strings concatenates,
// every other numeric op requires both operands be numbers, and equality
// compares string objects by content.
func (vm *VM) binaryOp(t *Thread, op binOp) error {
	b := t.pop()
	a := t.pop()

	switch op {
	case opEqual:
		return t.push(value.EncodeBool(value.Equals(a, b, vm.objEquals)))
	case opNotEqual:
		return t.push(value.EncodeBool(!value.Equals(a, b, vm.objEquals)))
	}

	if op == opAdd {
		if sa, ok := vm.stringOf(a); ok {
			if sb, ok := vm.stringOf(b); ok {
				h := t.Alloc(object.NewString(sa + sb))
				return t.push(value.EncodeObj(h))
			}
		}
	}

	switch op {
	case opLess, opLessEqual, opGreater, opGreaterEqual:
		if !value.IsNumber(a) || !value.IsNumber(b) {
			return newError(ErrTypeError, "cannot compare %s and %s", value.GetKind(a), value.GetKind(b))
		}
		fa, fb := value.AsFloat(a), value.AsFloat(b)
		var result bool
		switch op {
		case opLess:
			result = fa < fb
		case opLessEqual:
			result = value.ApproxLessEqual(fa, fb)
		case opGreater:
			result = fa > fb
		case opGreaterEqual:
			result = value.ApproxGreaterEqual(fa, fb)
		}
		return t.push(value.EncodeBool(result))
	}

	switch op {
	case opBitshiftLeft, opBitshiftRight, opBitwiseAnd, opBitwiseOr, opBitwiseXor, opMod:
		if !value.IsInt(a) || !value.IsInt(b) {
			return newError(ErrTypeError, "this operator requires int operands, got %s and %s", value.GetKind(a), value.GetKind(b))
		}
		ia, ib := value.AsInt(a), value.AsInt(b)
		switch op {
		case opBitshiftLeft:
			return t.push(value.EncodeInt(ia << uint32(ib&31)))
		case opBitshiftRight:
			return t.push(value.EncodeInt(ia >> uint32(ib&31)))
		case opBitwiseAnd:
			return t.push(value.EncodeInt(ia & ib))
		case opBitwiseOr:
			return t.push(value.EncodeInt(ia | ib))
		case opBitwiseXor:
			return t.push(value.EncodeInt(ia ^ ib))
		case opMod:
			if ib == 0 {
				// Go panics on integer mod by zero where the original's
				// undefined-behavior division didn't; fall back to the
				// double result instead of crashing the thread.
				return t.push(value.EncodeDouble(math.Mod(float64(ia), float64(ib))))
			}
			return t.push(value.EncodeInt(ia % ib))
		}
	}

	if !value.IsNumber(a) || !value.IsNumber(b) {
		return newError(ErrTypeError, "cannot apply this operator to %s and %s", value.GetKind(a), value.GetKind(b))
	}

	if value.IsInt(a) && value.IsInt(b) {
		ia, ib := value.AsInt(a), value.AsInt(b)
		switch op {
		case opAdd:
			r, overflow := value.AddOverflows(ia, ib)
			if overflow {
				return t.push(value.EncodeDouble(float64(ia) + float64(ib)))
			}
			return t.push(value.EncodeInt(r))
		case opSubtract:
			r, overflow := value.SubOverflows(ia, ib)
			if overflow {
				return t.push(value.EncodeDouble(float64(ia) - float64(ib)))
			}
			return t.push(value.EncodeInt(r))
		case opMultiply:
			r, overflow := value.MulOverflows(ia, ib)
			if overflow {
				return t.push(value.EncodeDouble(float64(ia) * float64(ib)))
			}
			return t.push(value.EncodeInt(r))
		case opDivide:
			if ib == 0 {
				return t.push(value.EncodeDouble(float64(ia) / float64(ib)))
			}
			r, overflow := value.DivOverflows(ia, ib)
			if overflow {
				return t.push(value.EncodeDouble(float64(ia) / float64(ib)))
			}
			return t.push(value.EncodeInt(r))
		}
	}

	fa, fb := value.AsFloat(a), value.AsFloat(b)
	switch op {
	case opAdd:
		return t.push(value.EncodeDouble(fa + fb))
	case opSubtract:
		return t.push(value.EncodeDouble(fa - fb))
	case opMultiply:
		return t.push(value.EncodeDouble(fa * fb))
	case opDivide:
		return t.push(value.EncodeDouble(fa / fb))
	}
	return newError(ErrTypeError, "unsupported operator")
}

// binOp names the arithmetic/comparison family binaryOp handles, decoded
// once from the opcode by the dispatch loop.
type binOp uint8

const (
	opAdd binOp = iota
	opSubtract
	opMultiply
	opDivide
	opMod
	opBitshiftLeft
	opBitshiftRight
	opBitwiseAnd
	opBitwiseOr
	opBitwiseXor
	opEqual
	opNotEqual
	opLess
	opLessEqual
	opGreater
	opGreaterEqual
)

// applyIncrement computes cur+delta for INCREMENT, promoting an
// overflowing int add to double exactly like binaryOp's ADD does.
func applyIncrement(cur value.Value, delta int32) (newVal value.Value, err error) {
	switch {
	case value.IsInt(cur):
		r, overflow := value.AddOverflows(value.AsInt(cur), delta)
		if overflow {
			return value.EncodeDouble(value.AsFloat(cur) + float64(delta)), nil
		}
		return value.EncodeInt(r), nil
	case value.IsDouble(cur):
		return value.EncodeDouble(value.AsDouble(cur) + float64(delta)), nil
	default:
		return value.Nil, newError(ErrTypeError, "cannot increment a value of kind %s", value.GetKind(cur))
	}
}
