package bytecode

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Antony1060/ESL/internal/gc"
	"github.com/Antony1060/ESL/internal/object"
	"github.com/Antony1060/ESL/internal/value"
)

// constKind tags a serialized constant's payload, since the NaN-boxed bit
// pattern a Value carries in memory is not a portable wire format (an obj
// constant's low 48 bits are a process-local heap handle).
type constKind uint8

const (
	constNil constKind = iota
	constBool
	constInt
	constDouble
	constString
	constFunction
)

type constRecord struct {
	Kind constKind `msgpack:"k"`

	Bool   bool    `msgpack:"b,omitempty"`
	Int    int32   `msgpack:"i,omitempty"`
	Double float64 `msgpack:"d,omitempty"`
	Str    string  `msgpack:"s,omitempty"`

	// Function fields, populated only when Kind == constFunction.
	FnName            string `msgpack:"fn,omitempty"`
	FnArity           int    `msgpack:"fa,omitempty"`
	FnUpvalueCount    int    `msgpack:"fu,omitempty"`
	FnBytecodeOffset  int    `msgpack:"fb,omitempty"`
	FnConstantsOffset int    `msgpack:"fc,omitempty"`
}

// snapshot is CodeBlock's portable wire format: raw code bytes, the line
// table, and a constant pool reduced to constRecord so it survives a
// process boundary. Classes, closures, and any other constant referencing
// live heap state outside of plain strings and function metadata cannot
// round-trip through a snapshot — see Marshal's doc comment.
type snapshot struct {
	Code      []byte        `msgpack:"code"`
	Lines     []LineRange   `msgpack:"lines"`
	Constants []constRecord `msgpack:"constants"`
}

// Marshal serializes cb into a portable blob using heap to resolve each
// obj constant's backing object. Only String and Function constants are
// supported — a Class, Closure, Array, or any other heap kind appearing
// in the constant pool (which the compiler never actually puts there;
// classes and closures live in the globals array or are constructed at
// runtime) makes Marshal fail rather than silently drop data.
func (cb *CodeBlock) Marshal(heap *gc.Heap) ([]byte, error) {
	snap := snapshot{Code: cb.Code, Lines: cb.Lines, Constants: make([]constRecord, len(cb.Constants))}
	for i, v := range cb.Constants {
		rec, err := encodeConstant(v, heap)
		if err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		snap.Constants[i] = rec
	}
	return msgpack.Marshal(&snap)
}

func encodeConstant(v value.Value, heap *gc.Heap) (constRecord, error) {
	switch {
	case value.IsNil(v):
		return constRecord{Kind: constNil}, nil
	case value.IsBool(v):
		return constRecord{Kind: constBool, Bool: value.AsBool(v)}, nil
	case value.IsInt(v):
		return constRecord{Kind: constInt, Int: value.AsInt(v)}, nil
	case value.IsDouble(v):
		return constRecord{Kind: constDouble, Double: value.AsDouble(v)}, nil
	case value.IsObj(v):
		obj := heap.Get(value.AsObj(v))
		switch o := obj.(type) {
		case *object.String:
			return constRecord{Kind: constString, Str: o.Content}, nil
		case *object.Function:
			return constRecord{
				Kind:              constFunction,
				FnName:            o.Name,
				FnArity:           o.Arity,
				FnUpvalueCount:    o.UpvalueCount,
				FnBytecodeOffset:  o.BytecodeOffset,
				FnConstantsOffset: o.ConstantsOffset,
			}, nil
		default:
			return constRecord{}, fmt.Errorf("constant of kind %v cannot be serialized", obj.Kind())
		}
	default:
		return constRecord{}, fmt.Errorf("unrecognized value kind")
	}
}

// UnmarshalCodeBlock decodes a blob written by Marshal, re-allocating each
// String/Function constant onto heap so the returned CodeBlock's Constants
// indices line up exactly with the ones the compiler produced.
func UnmarshalCodeBlock(data []byte, heap *gc.Heap) (*CodeBlock, error) {
	var snap snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	cb := &CodeBlock{Code: snap.Code, Lines: snap.Lines, Constants: make([]value.Value, len(snap.Constants))}
	for i, rec := range snap.Constants {
		v, err := decodeConstant(rec, heap)
		if err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		cb.Constants[i] = v
	}
	return cb, nil
}

// Program is the full unit `esl build` writes and `esl exec` reads: a
// CodeBlock plus the module-runner's entry point and the initial globals
// array a compiler.Result produces. The entry closure is assumed to
// capture no upvalues, matching how the compiler builds the module-runner
// function (see compiler.Compile).
type Program struct {
	Code       *CodeBlock
	MainOffset int
	Globals    []value.Value
}

type programSnapshot struct {
	Snapshot   snapshot      `msgpack:"code"`
	MainOffset int           `msgpack:"main_offset"`
	Globals    []constRecord `msgpack:"globals"`
}

// MarshalProgram serializes a full program (code block, entry point, and
// initial globals) to a portable blob.
func MarshalProgram(p Program, heap *gc.Heap) ([]byte, error) {
	snap := snapshot{Code: p.Code.Code, Lines: p.Code.Lines, Constants: make([]constRecord, len(p.Code.Constants))}
	for i, v := range p.Code.Constants {
		rec, err := encodeConstant(v, heap)
		if err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		snap.Constants[i] = rec
	}

	globals := make([]constRecord, len(p.Globals))
	for i, v := range p.Globals {
		rec, err := encodeConstant(v, heap)
		if err != nil {
			return nil, fmt.Errorf("global %d: %w", i, err)
		}
		globals[i] = rec
	}

	return msgpack.Marshal(&programSnapshot{Snapshot: snap, MainOffset: p.MainOffset, Globals: globals})
}

// UnmarshalProgram decodes a blob written by MarshalProgram, re-allocating
// every constant and global onto heap and wrapping the entry point's
// bytecode offset in a fresh zero-upvalue Function/Closure pair the
// caller can hand to vm.New via compiler.Result.
func UnmarshalProgram(data []byte, heap *gc.Heap) (Program, value.Handle, error) {
	var snap programSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return Program{}, 0, fmt.Errorf("decode program: %w", err)
	}

	cb := &CodeBlock{Code: snap.Snapshot.Code, Lines: snap.Snapshot.Lines, Constants: make([]value.Value, len(snap.Snapshot.Constants))}
	for i, rec := range snap.Snapshot.Constants {
		v, err := decodeConstant(rec, heap)
		if err != nil {
			return Program{}, 0, fmt.Errorf("constant %d: %w", i, err)
		}
		cb.Constants[i] = v
	}

	globals := make([]value.Value, len(snap.Globals))
	for i, rec := range snap.Globals {
		v, err := decodeConstant(rec, heap)
		if err != nil {
			return Program{}, 0, fmt.Errorf("global %d: %w", i, err)
		}
		globals[i] = v
	}

	mainFn := heap.Alloc(&object.Function{Name: "<module>", BytecodeOffset: snap.MainOffset})
	mainClosure := heap.Alloc(&object.Closure{Function: mainFn})

	return Program{Code: cb, MainOffset: snap.MainOffset, Globals: globals}, mainClosure, nil
}

func decodeConstant(rec constRecord, heap *gc.Heap) (value.Value, error) {
	switch rec.Kind {
	case constNil:
		return value.EncodeNil(), nil
	case constBool:
		return value.EncodeBool(rec.Bool), nil
	case constInt:
		return value.EncodeInt(rec.Int), nil
	case constDouble:
		return value.EncodeDouble(rec.Double), nil
	case constString:
		return value.EncodeObj(heap.InternString(rec.Str)), nil
	case constFunction:
		fn := &object.Function{
			Name:            rec.FnName,
			Arity:           rec.FnArity,
			UpvalueCount:    rec.FnUpvalueCount,
			BytecodeOffset:  rec.FnBytecodeOffset,
			ConstantsOffset: rec.FnConstantsOffset,
		}
		return value.EncodeObj(heap.Alloc(fn)), nil
	default:
		return value.Nil, fmt.Errorf("unknown constant kind %d", rec.Kind)
	}
}
