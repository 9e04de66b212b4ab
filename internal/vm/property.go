package vm

import (
	"github.com/Antony1060/ESL/internal/object"
	"github.com/Antony1060/ESL/internal/value"
)

// getProperty resolves GET_PROPERTY: an instance's own field wins over a
// class method (which binds into a fresh BoundMethod); a primitive's
// receiver binds against the pre-allocated NativeFunction for its method
// table entry.
func (vm *VM) getProperty(t *Thread, recv value.Value, name string) (value.Value, error) {
	if !value.IsObj(recv) {
		return value.Nil, newError(ErrMissingMember, "%s has no member %q", value.GetKind(recv), name)
	}
	obj := vm.Heap.Get(value.AsObj(recv))
	switch o := obj.(type) {
	case *object.Instance:
		if v, ok := o.Fields[name]; ok {
			return v, nil
		}
		if o.Class != 0 {
			if class, ok := vm.Heap.Get(o.Class).(*object.Class); ok {
				if m, ok := class.Methods[name]; ok {
					bm := &object.BoundMethod{Receiver: recv, Closure: value.AsObj(m)}
					return value.EncodeObj(t.Alloc(bm)), nil
				}
			}
		}
		return value.Nil, newError(ErrMissingMember, "instance has no member %q", name)
	default:
		if obj == nil {
			return value.Nil, newError(ErrMissingMember, "value has no member %q", name)
		}
		kind := builtinKindOf(obj.Kind())
		if _, ok := vm.Natives.Method(kind, name); !ok {
			return value.Nil, newError(ErrMissingMember, "%s has no member %q", obj.Kind(), name)
		}
		nfHandle := vm.nativeMethods[methodKey{kind, name}]
		bnf := &object.BoundNativeFunction{Receiver: recv, Native: nfHandle}
		return value.EncodeObj(t.Alloc(bnf)), nil
	}
}

// setProperty resolves SET_PROPERTY: only an Instance (class-backed or
// struct literal) has settable fields.
func (vm *VM) setProperty(recv value.Value, name string, val value.Value) error {
	if !value.IsObj(recv) {
		return newError(ErrMissingMember, "cannot set %q on a %s", name, value.GetKind(recv))
	}
	inst, ok := vm.Heap.Get(value.AsObj(recv)).(*object.Instance)
	if !ok {
		return newError(ErrMissingMember, "cannot set field %q on a non-instance value", name)
	}
	inst.Fields[name] = val
	return nil
}

// indexGet resolves GET (bracket indexing): an int index against an
// array, or a string-keyed index against an instance's field map.
func (vm *VM) indexGet(recv, idx value.Value) (value.Value, error) {
	if !value.IsObj(recv) {
		return value.Nil, newError(ErrTypeError, "value of kind %s is not indexable", value.GetKind(recv))
	}
	obj := vm.Heap.Get(value.AsObj(recv))
	switch o := obj.(type) {
	case *object.Array:
		if !value.IsInt(idx) {
			return value.Nil, newError(ErrTypeError, "array index must be an int")
		}
		i := int(value.AsInt(idx))
		if i < 0 || i >= len(o.Elements) {
			return value.Nil, newError(ErrIndexOutOfBounds, "array index %d out of bounds for length %d", i, len(o.Elements))
		}
		return o.Elements[i], nil
	case *object.Instance:
		name, ok := vm.stringOf(idx)
		if !ok {
			return value.Nil, newError(ErrTypeError, "struct index must be a string")
		}
		v, ok := o.Fields[name]
		if !ok {
			return value.Nil, newError(ErrMissingMember, "instance has no field %q", name)
		}
		return v, nil
	default:
		return value.Nil, newError(ErrTypeError, "value of kind %s is not indexable", obj.Kind())
	}
}

// indexSet resolves SET (bracket index assignment).
func (vm *VM) indexSet(recv, idx, val value.Value) error {
	if !value.IsObj(recv) {
		return newError(ErrTypeError, "value of kind %s is not indexable", value.GetKind(recv))
	}
	obj := vm.Heap.Get(value.AsObj(recv))
	switch o := obj.(type) {
	case *object.Array:
		if !value.IsInt(idx) {
			return newError(ErrTypeError, "array index must be an int")
		}
		i := int(value.AsInt(idx))
		if i < 0 || i >= len(o.Elements) {
			return newError(ErrIndexOutOfBounds, "array index %d out of bounds for length %d", i, len(o.Elements))
		}
		o.Set(i, val)
		return nil
	case *object.Instance:
		name, ok := vm.stringOf(idx)
		if !ok {
			return newError(ErrTypeError, "struct index must be a string")
		}
		o.Fields[name] = val
		return nil
	default:
		return newError(ErrTypeError, "value of kind %s is not indexable", obj.Kind())
	}
}

func (vm *VM) stringOf(v value.Value) (string, bool) {
	if !value.IsObj(v) {
		return "", false
	}
	s, ok := vm.Heap.Get(value.AsObj(v)).(*object.String)
	if !ok {
		return "", false
	}
	return s.Content, true
}

func (vm *VM) constString(idx int) string {
	v := vm.Code.Constants[idx]
	s, _ := vm.Heap.Get(value.AsObj(v)).(*object.String)
	if s == nil {
		return ""
	}
	return s.Content
}

// objEquals backs value.Equals for the KindObj case: two distinct string
// objects compare equal by content, everything else by handle identity.
func (vm *VM) objEquals(ha, hb value.Handle) bool {
	if ha == hb {
		return true
	}
	sa, ok1 := vm.Heap.Get(ha).(*object.String)
	sb, ok2 := vm.Heap.Get(hb).(*object.String)
	return ok1 && ok2 && sa.Content == sb.Content
}
