package vm

import (
	"fmt"
	"time"

	"github.com/Antony1060/ESL/internal/bytecode"
	"github.com/Antony1060/ESL/internal/object"
	"github.com/Antony1060/ESL/internal/value"
)

func (vm *VM) readByte(t *Thread) byte {
	f := t.frame()
	b := vm.Code.Code[f.IP]
	f.IP++
	return b
}

func (vm *VM) readU16(t *Thread) uint16 {
	f := t.frame()
	v := vm.Code.ReadU16(f.IP)
	f.IP += 2
	return v
}

// indexed reads either a u8 or u16 operand depending on which opcode form
// was dispatched, matching emitIndexed's short-vs-_LONG choice.
func (vm *VM) indexed(t *Thread, long bool) int {
	if long {
		return int(vm.readU16(t))
	}
	return int(vm.readByte(t))
}

// dispatch runs the instruction loop and, on a runtime error, attaches a
// trace of the frames active at the point the error was raised before
// returning it. Frames are never popped on an error path, so t.frames
// still holds the full call chain at this point.
func (vm *VM) dispatch(t *Thread) (value.Value, error) {
	result, err := vm.runLoop(t)
	if vmErr, ok := err.(*VMError); ok && vmErr.Trace == nil {
		vmErr.Trace = vm.buildTrace(t)
	}
	return result, err
}

// buildTrace walks a thread's active frames innermost-first, resolving
// each one's current instruction back to a source line via the shared
// code block's line table.
func (vm *VM) buildTrace(t *Thread) []TraceEntry {
	trace := make([]TraceEntry, 0, t.frameTop)
	for i := t.frameTop - 1; i >= 0; i-- {
		fr := t.frames[i]
		fn := vm.functionOf(fr.Closure)
		entry := TraceEntry{FunctionName: fn.Name}
		if span, ok := vm.Code.SpanForIP(fr.IP); ok {
			entry.Line = span.Line
			if vm.Files != nil {
				entry.File = vm.Files.Path(span.File)
			}
		}
		trace = append(trace, entry)
	}
	return trace
}

// runLoop is the interpreter's instruction loop: read one opcode, advance
// past it and its operands, act on it, repeat. It returns when the
// thread's outermost frame (frame 0) runs RETURN, or when a runtime
// error or cancellation unwinds it first.
func (vm *VM) runLoop(t *Thread) (value.Value, error) {
	for {
		if cancelled := vm.pollSafepoint(t); cancelled {
			return value.Nil, nil
		}

		f := t.frame()
		op := bytecode.Op(vm.Code.Code[f.IP])
		f.IP++

		switch op {
		case bytecode.OpPop:
			t.pop()
		case bytecode.OpPopN:
			n := int(vm.readByte(t))
			t.popN(n)

		case bytecode.OpLoadInt:
			if err := t.push(value.EncodeInt(int32(vm.readByte(t)))); err != nil {
				return value.Nil, err
			}
		case bytecode.OpConstant, bytecode.OpConstantLong:
			idx := vm.indexed(t, op == bytecode.OpConstantLong)
			if err := t.push(vm.Code.Constants[idx]); err != nil {
				return value.Nil, err
			}
		case bytecode.OpNil:
			if err := t.push(value.Nil); err != nil {
				return value.Nil, err
			}
		case bytecode.OpTrue:
			if err := t.push(value.True); err != nil {
				return value.Nil, err
			}
		case bytecode.OpFalse:
			if err := t.push(value.False); err != nil {
				return value.Nil, err
			}

		case bytecode.OpNegate:
			v := t.pop()
			switch {
			case value.IsInt(v):
				if err := t.push(value.EncodeInt(-value.AsInt(v))); err != nil {
					return value.Nil, err
				}
			case value.IsDouble(v):
				if err := t.push(value.EncodeDouble(-value.AsDouble(v))); err != nil {
					return value.Nil, err
				}
			default:
				return value.Nil, newError(ErrTypeError, "cannot negate a value of kind %s", value.GetKind(v))
			}
		case bytecode.OpNot:
			v := t.pop()
			if err := t.push(value.EncodeBool(value.IsFalsey(v))); err != nil {
				return value.Nil, err
			}
		case bytecode.OpBinNot:
			v := t.pop()
			if !value.IsInt(v) {
				return value.Nil, newError(ErrTypeError, "cannot bitwise-negate a value of kind %s", value.GetKind(v))
			}
			if err := t.push(value.EncodeInt(^value.AsInt(v))); err != nil {
				return value.Nil, err
			}
		case bytecode.OpIncrement:
			if err := vm.execIncrement(t, f); err != nil {
				return value.Nil, err
			}

		case bytecode.OpAdd:
			if err := vm.binaryOp(t, opAdd); err != nil {
				return value.Nil, err
			}
		case bytecode.OpSubtract:
			if err := vm.binaryOp(t, opSubtract); err != nil {
				return value.Nil, err
			}
		case bytecode.OpMultiply:
			if err := vm.binaryOp(t, opMultiply); err != nil {
				return value.Nil, err
			}
		case bytecode.OpDivide:
			if err := vm.binaryOp(t, opDivide); err != nil {
				return value.Nil, err
			}
		case bytecode.OpMod:
			if err := vm.binaryOp(t, opMod); err != nil {
				return value.Nil, err
			}
		case bytecode.OpBitshiftLeft:
			if err := vm.binaryOp(t, opBitshiftLeft); err != nil {
				return value.Nil, err
			}
		case bytecode.OpBitshiftRight:
			if err := vm.binaryOp(t, opBitshiftRight); err != nil {
				return value.Nil, err
			}
		case bytecode.OpBitwiseAnd:
			if err := vm.binaryOp(t, opBitwiseAnd); err != nil {
				return value.Nil, err
			}
		case bytecode.OpBitwiseOr:
			if err := vm.binaryOp(t, opBitwiseOr); err != nil {
				return value.Nil, err
			}
		case bytecode.OpBitwiseXor:
			if err := vm.binaryOp(t, opBitwiseXor); err != nil {
				return value.Nil, err
			}
		case bytecode.OpEqual:
			if err := vm.binaryOp(t, opEqual); err != nil {
				return value.Nil, err
			}
		case bytecode.OpNotEqual:
			if err := vm.binaryOp(t, opNotEqual); err != nil {
				return value.Nil, err
			}
		case bytecode.OpLess:
			if err := vm.binaryOp(t, opLess); err != nil {
				return value.Nil, err
			}
		case bytecode.OpLessEqual:
			if err := vm.binaryOp(t, opLessEqual); err != nil {
				return value.Nil, err
			}
		case bytecode.OpGreater:
			if err := vm.binaryOp(t, opGreater); err != nil {
				return value.Nil, err
			}
		case bytecode.OpGreaterEqual:
			if err := vm.binaryOp(t, opGreaterEqual); err != nil {
				return value.Nil, err
			}

		case bytecode.OpGetLocal:
			idx := int(vm.readByte(t))
			if err := t.push(vm.readLocal(t, f.Base+idx)); err != nil {
				return value.Nil, err
			}
		case bytecode.OpSetLocal:
			idx := int(vm.readByte(t))
			vm.writeLocal(t, f.Base+idx, t.peek(0))
		case bytecode.OpGetUpvalue:
			idx := int(vm.readByte(t))
			cell := vm.upvalueCell(f, idx)
			if err := t.push(cell.Value); err != nil {
				return value.Nil, err
			}
		case bytecode.OpSetUpvalue:
			idx := int(vm.readByte(t))
			cell := vm.upvalueCell(f, idx)
			cell.Value = t.peek(0)
		case bytecode.OpGetGlobal, bytecode.OpGetGlobalLong:
			idx := vm.indexed(t, op == bytecode.OpGetGlobalLong)
			if err := t.push(vm.Globals[idx]); err != nil {
				return value.Nil, err
			}
		case bytecode.OpSetGlobal, bytecode.OpSetGlobalLong:
			idx := vm.indexed(t, op == bytecode.OpSetGlobalLong)
			vm.Globals[idx] = t.peek(0)
		case bytecode.OpDefineGlobal, bytecode.OpDefineGlobalLong:
			idx := vm.indexed(t, op == bytecode.OpDefineGlobalLong)
			vm.Globals[idx] = t.pop()
		case bytecode.OpGetNative:
			idx := int(vm.readU16(t))
			if err := t.push(value.EncodeObj(vm.nativeFlat[idx])); err != nil {
				return value.Nil, err
			}

		case bytecode.OpJump:
			dist := int(vm.readU16(t))
			f.IP += dist
		case bytecode.OpJumpIfFalse:
			dist := int(vm.readU16(t))
			if value.IsFalsey(t.peek(0)) {
				f.IP += dist
			}
		case bytecode.OpJumpIfTrue:
			dist := int(vm.readU16(t))
			if !value.IsFalsey(t.peek(0)) {
				f.IP += dist
			}
		case bytecode.OpJumpIfFalsePop:
			dist := int(vm.readU16(t))
			if value.IsFalsey(t.pop()) {
				f.IP += dist
			}
		case bytecode.OpLoop:
			dist := int(vm.readU16(t))
			f.IP -= dist
		case bytecode.OpLoopIfTrue:
			dist := int(vm.readU16(t))
			if !value.IsFalsey(t.pop()) {
				f.IP -= dist
			}
		case bytecode.OpJumpPopN:
			n := int(vm.readByte(t))
			dist := int(vm.readU16(t))
			t.popN(n)
			f.IP += dist
		case bytecode.OpSwitch, bytecode.OpSwitchLong:
			vm.execSwitch(t, f, op == bytecode.OpSwitchLong)

		case bytecode.OpCall:
			argc := int(vm.readByte(t))
			if err := vm.call(t, argc); err != nil {
				return value.Nil, err
			}
		case bytecode.OpReturn:
			result := t.pop()
			base := f.Base
			vm.closeUpvaluesFrom(t, base)
			t.frameTop--
			if t.frameTop == 0 {
				return result, nil
			}
			t.top = base
			if err := t.push(result); err != nil {
				return value.Nil, err
			}
		case bytecode.OpClosure, bytecode.OpClosureLong:
			if err := vm.execClosure(t, f, op == bytecode.OpClosureLong); err != nil {
				return value.Nil, err
			}
		case bytecode.OpInvoke, bytecode.OpInvokeLong:
			idx := vm.indexed(t, op == bytecode.OpInvokeLong)
			name := vm.constString(idx)
			argc := int(vm.readByte(t))
			base := t.top - argc - 1
			if err := vm.invokeMethod(t, t.stack[base], name, argc, base); err != nil {
				return value.Nil, err
			}
		case bytecode.OpSuperInvoke, bytecode.OpSuperInvokeLong:
			idx := vm.indexed(t, op == bytecode.OpSuperInvokeLong)
			name := vm.constString(idx)
			argc := int(vm.readByte(t))
			base := t.top - argc - 1
			if err := vm.execSuperInvoke(t, f, name, argc, base); err != nil {
				return value.Nil, err
			}

		case bytecode.OpLaunchAsync:
			argc := int(vm.readByte(t))
			if err := vm.launchAsync(t, argc); err != nil {
				return value.Nil, err
			}
		case bytecode.OpAwait:
			fv := t.pop()
			result, cancelled, err := vm.await(t, fv)
			if err != nil {
				return value.Nil, err
			}
			if cancelled {
				return value.Nil, nil
			}
			if err := t.push(result); err != nil {
				return value.Nil, err
			}

		case bytecode.OpCreateArray:
			n := int(vm.readByte(t))
			elems := make([]value.Value, n)
			copy(elems, t.stack[t.top-n:t.top])
			t.popN(n)
			h := t.Alloc(object.NewArray(elems))
			if err := t.push(value.EncodeObj(h)); err != nil {
				return value.Nil, err
			}
		case bytecode.OpGet:
			idx := t.pop()
			recv := t.pop()
			v, err := vm.indexGet(recv, idx)
			if err != nil {
				return value.Nil, err
			}
			if err := t.push(v); err != nil {
				return value.Nil, err
			}
		case bytecode.OpSet:
			val := t.pop()
			idx := t.pop()
			recv := t.pop()
			if err := vm.indexSet(recv, idx, val); err != nil {
				return value.Nil, err
			}
			if err := t.push(val); err != nil {
				return value.Nil, err
			}
		case bytecode.OpCreateStruct, bytecode.OpCreateStructLong:
			if err := vm.execCreateStruct(t, op == bytecode.OpCreateStructLong); err != nil {
				return value.Nil, err
			}

		case bytecode.OpGetProperty, bytecode.OpGetPropertyLong:
			idx := vm.indexed(t, op == bytecode.OpGetPropertyLong)
			name := vm.constString(idx)
			recv := t.pop()
			v, err := vm.getProperty(t, recv, name)
			if err != nil {
				return value.Nil, err
			}
			if err := t.push(v); err != nil {
				return value.Nil, err
			}
		case bytecode.OpSetProperty, bytecode.OpSetPropertyLong:
			idx := vm.indexed(t, op == bytecode.OpSetPropertyLong)
			name := vm.constString(idx)
			val := t.pop()
			recv := t.pop()
			if err := vm.setProperty(recv, name, val); err != nil {
				return value.Nil, err
			}
			if err := t.push(val); err != nil {
				return value.Nil, err
			}
		case bytecode.OpGetSuper, bytecode.OpGetSuperLong:
			idx := vm.indexed(t, op == bytecode.OpGetSuperLong)
			name := vm.constString(idx)
			thisVal := t.pop()
			fn := vm.functionOf(f.Closure)
			if fn.Super == 0 {
				return value.Nil, newError(ErrMissingMember, "no superclass method %q", name)
			}
			superClass, _ := vm.Heap.Get(fn.Super).(*object.Class)
			if superClass == nil {
				return value.Nil, newError(ErrMissingMember, "no superclass method %q", name)
			}
			m, ok := superClass.Methods[name]
			if !ok {
				return value.Nil, newError(ErrMissingMember, "superclass has no method %q", name)
			}
			bm := &object.BoundMethod{Receiver: thisVal, Closure: value.AsObj(m)}
			if err := t.push(value.EncodeObj(t.Alloc(bm))); err != nil {
				return value.Nil, err
			}

		case bytecode.OpClass, bytecode.OpMethod, bytecode.OpInherit:
			// Not emitted by this compiler: class declarations are fully
			// resolved and assembled at compile time (see
			// Compiler.compileClassDecl), so these runtime-construction
			// opcodes never reach the dispatch loop in practice.
			return value.Nil, newError(ErrMalformedOperand, "opcode %d is never emitted", byte(op))

		default:
			return value.Nil, newError(ErrMalformedOperand, "unknown opcode %d", byte(op))
		}
	}
}

func (vm *VM) upvalueCell(f *Frame, idx int) *object.Upvalue {
	cl, _ := vm.Heap.Get(f.Closure).(*object.Closure)
	cell, _ := vm.Heap.Get(cl.Upvalues[idx]).(*object.Upvalue)
	return cell
}

// readLocal and writeLocal are the only way GET_LOCAL/SET_LOCAL/INCREMENT
// touch a local: if the slot has been promoted to a shared cell by
// captureLocal, they go through the cell so every closure capturing it
// (and the declaring function itself) see the same value.
func (vm *VM) readLocal(t *Thread, slot int) value.Value {
	if h, ok := t.openUpvalues[slot]; ok {
		cell, _ := vm.Heap.Get(h).(*object.Upvalue)
		return cell.Value
	}
	return t.stack[slot]
}

func (vm *VM) writeLocal(t *Thread, slot int, v value.Value) {
	if h, ok := t.openUpvalues[slot]; ok {
		cell, _ := vm.Heap.Get(h).(*object.Upvalue)
		cell.Value = v
		return
	}
	t.stack[slot] = v
}

// captureLocal returns the shared Upvalue cell handle for the given
// absolute stack slot, creating it from the slot's current value the
// first time the slot is captured. A second closure capturing the same
// still-open local reuses the same handle instead of snapshotting a
// fresh copy, which is what makes sibling closures observe each other's
// mutations.
func (vm *VM) captureLocal(t *Thread, slot int) value.Handle {
	if h, ok := t.openUpvalues[slot]; ok {
		return h
	}
	h := t.Alloc(&object.Upvalue{Value: t.stack[slot]})
	if t.openUpvalues == nil {
		t.openUpvalues = make(map[int]value.Handle)
	}
	t.openUpvalues[slot] = h
	return h
}

// closeUpvaluesFrom drops every open-upvalue entry at or above base when
// the frame owning those slots returns. The cell itself lives on as long
// as some closure's Upvalues slice still references its handle; this only
// stops a later, unrelated call that happens to reuse the same absolute
// slot index from silently inheriting the old cell.
func (vm *VM) closeUpvaluesFrom(t *Thread, base int) {
	for slot := range t.openUpvalues {
		if slot >= base {
			delete(t.openUpvalues, slot)
		}
	}
}

// execIncrement implements the INCREMENT opcode: decode the packed
// operand byte, read whatever extra operand bytes its IncrementKind
// needs, load the current value, apply the signed unit delta, store it
// back, and push either the pre- or post-update value depending on
// prefix/postfix.
func (vm *VM) execIncrement(t *Thread, f *Frame) error {
	packed := vm.readByte(t)
	negative, prefix, kind := bytecode.UnpackIncrement(packed)
	var delta int32 = 1
	if negative {
		delta = -1
	}

	push := func(oldVal, newVal value.Value) error {
		if prefix {
			return t.push(newVal)
		}
		return t.push(oldVal)
	}

	switch kind {
	case bytecode.IncLocal:
		idx := int(vm.readByte(t))
		slot := f.Base + idx
		old := vm.readLocal(t, slot)
		newVal, err := applyIncrement(old, delta)
		if err != nil {
			return err
		}
		vm.writeLocal(t, slot, newVal)
		return push(old, newVal)
	case bytecode.IncUpvalue:
		idx := int(vm.readByte(t))
		cell := vm.upvalueCell(f, idx)
		newVal, err := applyIncrement(cell.Value, delta)
		if err != nil {
			return err
		}
		old := cell.Value
		cell.Value = newVal
		return push(old, newVal)
	case bytecode.IncGlobalShort, bytecode.IncGlobalLong:
		var idx int
		if kind == bytecode.IncGlobalLong {
			idx = int(vm.readU16(t))
		} else {
			idx = int(vm.readByte(t))
		}
		newVal, err := applyIncrement(vm.Globals[idx], delta)
		if err != nil {
			return err
		}
		old := vm.Globals[idx]
		vm.Globals[idx] = newVal
		return push(old, newVal)
	case bytecode.IncDotShort, bytecode.IncDotLong:
		var constIdx int
		if kind == bytecode.IncDotLong {
			constIdx = int(vm.readU16(t))
		} else {
			constIdx = int(vm.readByte(t))
		}
		name := vm.constString(constIdx)
		recv := t.pop()
		cur, err := vm.getProperty(t, recv, name)
		if err != nil {
			return err
		}
		newVal, err := applyIncrement(cur, delta)
		if err != nil {
			return err
		}
		if err := vm.setProperty(recv, name, newVal); err != nil {
			return err
		}
		return push(cur, newVal)
	case bytecode.IncBracket:
		idxVal := t.pop()
		recv := t.pop()
		cur, err := vm.indexGet(recv, idxVal)
		if err != nil {
			return err
		}
		newVal, err := applyIncrement(cur, delta)
		if err != nil {
			return err
		}
		if err := vm.indexSet(recv, idxVal, newVal); err != nil {
			return err
		}
		return push(cur, newVal)
	default:
		return newError(ErrMalformedOperand, "unknown increment kind %d", kind)
	}
}

// execSwitch reads SWITCH's case-count-prefixed slot table, matching the
// subject against each case's constant in order and landing at the first
// match's jump target, falling back to the default slot (if any) or
// falling through to whatever follows the table otherwise.
func (vm *VM) execSwitch(t *Thread, f *Frame, long bool) {
	subject := t.pop()
	count := int(vm.readByte(t))

	matched := -1
	defaultTarget := -1
	for i := 0; i < count; i++ {
		isDefault := vm.readByte(t) != 0
		var constIdx int
		if !isDefault {
			constIdx = vm.indexed(t, long)
		}
		dist := int(vm.readU16(t))
		landing := f.IP + dist
		if isDefault {
			defaultTarget = landing
			continue
		}
		if matched == -1 && value.Equals(subject, vm.Code.Constants[constIdx], vm.objEquals) {
			matched = landing
		}
	}

	if matched != -1 {
		f.IP = matched
	} else if defaultTarget != -1 {
		f.IP = defaultTarget
	}
}

// execClosure builds a Closure for the Function constant named by this
// instruction's operand. A local capture promotes the captured stack slot
// to a shared cell via captureLocal (reused, not copied, if the slot is
// already open); a capture of an enclosing upvalue reuses that upvalue's
// existing handle directly, so a chain of nested closures all share the
// one originating cell.
func (vm *VM) execClosure(t *Thread, f *Frame, long bool) error {
	idx := vm.indexed(t, long)
	fnHandle := value.AsObj(vm.Code.Constants[idx])
	fn, _ := vm.Heap.Get(fnHandle).(*object.Function)
	if fn == nil {
		return newError(ErrMalformedOperand, "CLOSURE constant is not a function")
	}

	upvals := make([]value.Handle, fn.UpvalueCount)
	for i := 0; i < fn.UpvalueCount; i++ {
		isLocal := vm.readByte(t) != 0
		srcIdx := int(vm.readByte(t))
		if isLocal {
			upvals[i] = vm.captureLocal(t, f.Base+srcIdx)
		} else {
			enclosing, _ := vm.Heap.Get(f.Closure).(*object.Closure)
			upvals[i] = enclosing.Upvalues[srcIdx]
		}
	}

	closureHandle := t.Alloc(&object.Closure{Function: fnHandle, Upvalues: upvals})
	return t.push(value.EncodeObj(closureHandle))
}

// execCreateStruct reads the first field-name constant index (plus the
// field count) and pairs the len(Fields) contiguous name constants
// starting there with the values already on the stack, in order.
func (vm *VM) execCreateStruct(t *Thread, long bool) error {
	firstIdx := vm.indexed(t, long)
	count := int(vm.readByte(t))

	fields := make(map[string]value.Value, count)
	base := t.top - count
	for i := 0; i < count; i++ {
		name := vm.constString(firstIdx + i)
		fields[name] = t.stack[base+i]
	}
	t.popN(count)

	inst := object.NewInstance(0)
	inst.Fields = fields
	h := t.Alloc(inst)
	return t.push(value.EncodeObj(h))
}

// execSuperInvoke calls name resolved against the defining class's own
// superclass (carried on the executing Function, not the receiver's
// runtime class), with the receiver and argc arguments already in place.
func (vm *VM) execSuperInvoke(t *Thread, f *Frame, name string, argc, base int) error {
	fn := vm.functionOf(f.Closure)
	if fn.Super == 0 {
		return newError(ErrMissingMember, "no superclass method %q", name)
	}
	superClass, _ := vm.Heap.Get(fn.Super).(*object.Class)
	if superClass == nil {
		return newError(ErrMissingMember, "no superclass method %q", name)
	}
	m, ok := superClass.Methods[name]
	if !ok {
		return newError(ErrMissingMember, "superclass has no method %q", name)
	}
	return vm.invokeClosure(t, value.AsObj(m), argc, base)
}

// launchAsync spawns a new child Thread that runs closure (or a bound
// method's underlying closure, with its receiver planted as "this") with
// the argc arguments already on the stack, and collapses the callee slot
// to the Future the child will settle.
func (vm *VM) launchAsync(t *Thread, argc int) error {
	base := t.top - argc - 1
	calleeVal := t.stack[base]
	if !value.IsObj(calleeVal) {
		return newError(ErrTypeError, "only functions and methods may be launched asynchronously")
	}
	var closureHandle value.Handle
	obj := vm.Heap.Get(value.AsObj(calleeVal))
	switch o := obj.(type) {
	case *object.Closure:
		closureHandle = value.AsObj(calleeVal)
	case *object.BoundMethod:
		closureHandle = o.Closure
		t.stack[base] = o.Receiver
	default:
		return newError(ErrTypeError, "only functions and methods may be launched asynchronously")
	}

	fn := vm.functionOf(closureHandle)
	if fn.Arity != argc {
		return newError(ErrArityMismatch, "%s expects %d arguments, got %d", fn.Name, fn.Arity, argc)
	}

	future := object.NewFuture(0)
	futureHandle := t.Alloc(future)

	child := newThread(vm, false)
	child.Future = futureHandle
	copy(child.stack[:argc+1], t.stack[base:base+argc+1])
	child.top = argc + 1
	if err := child.pushFrame(closureHandle, 0); err != nil {
		return err
	}
	vm.registerChild(child)
	go vm.runChild(child, future)

	t.popN(argc + 1)
	return t.push(value.EncodeObj(futureHandle))
}

// runChild drives a spawned thread to completion, settling its future
// with the result (or nil, after reporting the error, if it raised one)
// and removing it from the VM's thread pool.
func (vm *VM) runChild(t *Thread, future *object.Future) {
	result, err := vm.dispatch(t)
	if err != nil {
		fmt.Println("async thread error:", err)
		result = value.Nil
	}
	future.Settle(result)
	vm.reapChild(t)
}

// await polls future's result without blocking the OS thread on a
// condition variable, so this thread keeps answering GC safepoints
// (and, for the main thread, keeps performing the collection itself)
// while the child runs. Returns cancelled=true if the thread was asked
// to stop while still waiting.
func (vm *VM) await(t *Thread, fv value.Value) (value.Value, bool, error) {
	if !value.IsObj(fv) {
		return value.Nil, false, newError(ErrTypeError, "cannot await a value of kind %s", value.GetKind(fv))
	}
	future, ok := vm.Heap.Get(value.AsObj(fv)).(*object.Future)
	if !ok {
		return value.Nil, false, newError(ErrTypeError, "value is not a future")
	}
	for {
		if v, done := future.TryResult(); done {
			return v, false, nil
		}
		if cancelled := vm.pollSafepoint(t); cancelled {
			return value.Nil, true, nil
		}
		time.Sleep(vm.awaitPoll)
	}
}
