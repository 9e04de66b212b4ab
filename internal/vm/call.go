package vm

import (
	"github.com/Antony1060/ESL/internal/natives"
	"github.com/Antony1060/ESL/internal/object"
	"github.com/Antony1060/ESL/internal/value"
)

// call dispatches CALL: the stack holds the callee at calleeSlot followed
// by argc arguments. Closures and bound methods push a new frame; classes
// construct an instance and either run its constructor or, with none and
// argc == 0, just collapse to the fresh instance; natives run to
// completion inline and collapse their own result.
func (vm *VM) call(t *Thread, argc int) error {
	calleeSlot := t.top - argc - 1
	calleeVal := t.stack[calleeSlot]
	if !value.IsObj(calleeVal) {
		return newError(ErrTypeError, "value of kind %s is not callable", value.GetKind(calleeVal))
	}
	handle := value.AsObj(calleeVal)
	obj := vm.Heap.Get(handle)
	switch o := obj.(type) {
	case *object.Closure:
		return vm.invokeClosure(t, handle, argc, calleeSlot)
	case *object.BoundMethod:
		t.stack[calleeSlot] = o.Receiver
		return vm.invokeClosure(t, o.Closure, argc, calleeSlot)
	case *object.Class:
		return vm.construct(t, handle, o, argc, calleeSlot)
	case *object.NativeFunction:
		return vm.invokeNativeEntry(t, natives.Entry{Name: o.Name, Arity: o.Arity, Stub: o.Stub}, argc, calleeSlot)
	case *object.BoundNativeFunction:
		nf, ok := vm.Heap.Get(o.Native).(*object.NativeFunction)
		if !ok {
			return newError(ErrTypeError, "malformed bound native function")
		}
		t.stack[calleeSlot] = o.Receiver
		return vm.invokeNativeEntry(t, natives.Entry{Name: nf.Name, Arity: nf.Arity, Stub: nf.Stub}, argc, calleeSlot)
	default:
		kind := "value"
		if obj != nil {
			kind = obj.Kind().String()
		}
		return newError(ErrTypeError, "a %s is not callable", kind)
	}
}

// invokeClosure pushes a new frame for closureHandle with its receiver at
// base, after checking arity matches argc exactly (user functions are
// never variadic).
func (vm *VM) invokeClosure(t *Thread, closureHandle value.Handle, argc, base int) error {
	fn := vm.functionOf(closureHandle)
	if fn.Arity != argc {
		return newError(ErrArityMismatch, "%s expects %d arguments, got %d", fn.Name, fn.Arity, argc)
	}
	return t.pushFrame(closureHandle, base)
}

// construct allocates a fresh instance of class, overwrites the callee
// slot with it (so the rest of the call protocol sees a receiver there
// the same way a bound method does), and runs the constructor if one is
// declared.
func (vm *VM) construct(t *Thread, classHandle value.Handle, class *object.Class, argc, base int) error {
	instHandle := t.Alloc(object.NewInstance(classHandle))
	t.stack[base] = value.EncodeObj(instHandle)

	ctor, ok := class.Methods[class.Name]
	if !ok {
		if argc != 0 {
			return newError(ErrArityMismatch, "%s has no constructor, expects 0 arguments, got %d", class.Name, argc)
		}
		t.top = base + 1
		return nil
	}
	return vm.invokeClosure(t, value.AsObj(ctor), argc, base)
}

// invokeNativeEntry runs a native stub to completion and, when it asks to
// collapse, replaces the callee slot and every argument with its single
// pushed result.
func (vm *VM) invokeNativeEntry(t *Thread, e natives.Entry, argc, base int) error {
	if e.Arity >= 0 && e.Arity != argc {
		return newError(ErrArityMismatch, "%s expects %d arguments, got %d", e.Name, e.Arity, argc)
	}
	// The stub runs in its own frame based at the callee slot, so Arg(-1)
	// is the receiver and Arg(i) the i-th argument.
	if err := t.pushFrame(t.frame().Closure, base); err != nil {
		return err
	}
	collapse, err := e.Stub(t, argc)
	t.frameTop--
	if err != nil {
		return newError(ErrTypeError, "%s", err.Error())
	}
	if !collapse {
		return nil
	}
	result := t.pop()
	t.top = base
	return t.push(result)
}

// invokeMethod resolves name against recv (an instance field, a class
// method, or a primitive's method table) and calls it with argc arguments
// already sitting above base, fusing the property lookup into the call
// the way INVOKE/SUPER_INVOKE's bytecode was built to avoid allocating an
// intermediate BoundMethod/BoundNativeFunction for the common case.
func (vm *VM) invokeMethod(t *Thread, recv value.Value, name string, argc, base int) error {
	if !value.IsObj(recv) {
		return newError(ErrMissingMember, "%s has no member %q", value.GetKind(recv), name)
	}
	obj := vm.Heap.Get(value.AsObj(recv))
	switch o := obj.(type) {
	case *object.Instance:
		if fv, ok := o.Fields[name]; ok {
			t.stack[base] = fv
			return vm.call(t, argc)
		}
		if o.Class != 0 {
			if class, ok := vm.Heap.Get(o.Class).(*object.Class); ok {
				if m, ok := class.Methods[name]; ok {
					return vm.invokeClosure(t, value.AsObj(m), argc, base)
				}
			}
		}
		return newError(ErrMissingMember, "instance has no member %q", name)
	default:
		if obj == nil {
			return newError(ErrMissingMember, "value has no member %q", name)
		}
		kind := builtinKindOf(obj.Kind())
		e, ok := vm.Natives.Method(kind, name)
		if !ok {
			return newError(ErrMissingMember, "%s has no member %q", obj.Kind(), name)
		}
		return vm.invokeNativeEntry(t, e, argc, base)
	}
}

func builtinKindOf(k object.Kind) natives.BuiltinKind {
	switch k {
	case object.KindString:
		return natives.BuiltinString
	case object.KindArray:
		return natives.BuiltinArray
	case object.KindFile:
		return natives.BuiltinFile
	case object.KindMutex:
		return natives.BuiltinMutex
	case object.KindFuture:
		return natives.BuiltinFuture
	default:
		return natives.BuiltinCommon
	}
}
