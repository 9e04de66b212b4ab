package natives

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Antony1060/ESL/internal/object"
	"github.com/Antony1060/ESL/internal/value"
)

// Output is where the "print" native writes. It defaults to stdout; a
// caller driving the VM under the interactive viewer (internal/replui)
// swaps it for a pipe so program output can be laid into a scrollable
// viewport instead of going straight to the terminal.
var Output io.Writer = os.Stdout

// DefaultTable builds the small table exercised by the end-to-end test
// programs: clock/print as flat natives, plus len/push/pop on arrays and
// len on strings as primitive methods. A full standard library is an
// external collaborator; this is enough surface to drive GET_NATIVE and
// primitive GET_PROPERTY dispatch end to end.
func DefaultTable() *Table {
	t := NewTable()

	t.Register(Entry{Name: "clock", Arity: 0, Stub: nativeClock})
	t.Register(Entry{Name: "print", Arity: -1, Stub: nativePrint})

	t.RegisterMethod(BuiltinString, Entry{Name: "len", Arity: 0, Stub: stringLen})
	t.RegisterMethod(BuiltinArray, Entry{Name: "len", Arity: 0, Stub: arrayLen})
	t.RegisterMethod(BuiltinArray, Entry{Name: "push", Arity: 1, Stub: arrayPush})
	t.RegisterMethod(BuiltinArray, Entry{Name: "pop", Arity: 0, Stub: arrayPop})

	return t
}

func nativeClock(rt object.NativeRuntime, argc int) (bool, error) {
	rt.Push(value.EncodeDouble(float64(time.Now().UnixNano()) / 1e9))
	return true, nil
}

func nativePrint(rt object.NativeRuntime, argc int) (bool, error) {
	for i := 0; i < argc; i++ {
		arg := rt.Arg(i)
		if value.IsObj(arg) {
			if s, ok := rt.Resolve(value.AsObj(arg)).(*object.String); ok {
				fmt.Fprintln(Output, s.Content)
				continue
			}
		}
		fmt.Fprintln(Output, arg.String())
	}
	rt.Push(value.EncodeNil())
	return true, nil
}

func stringLen(rt object.NativeRuntime, argc int) (bool, error) {
	recv := rt.Arg(-1)
	s, ok := rt.Resolve(value.AsObj(recv)).(*object.String)
	if !ok {
		return false, fmt.Errorf("len: receiver is not a string")
	}
	rt.Push(value.EncodeInt(int32(len(s.Content))))
	return true, nil
}

func arrayLen(rt object.NativeRuntime, argc int) (bool, error) {
	recv := rt.Arg(-1)
	a, ok := rt.Resolve(value.AsObj(recv)).(*object.Array)
	if !ok {
		return false, fmt.Errorf("len: receiver is not an array")
	}
	rt.Push(value.EncodeInt(int32(len(a.Elements))))
	return true, nil
}

func arrayPush(rt object.NativeRuntime, argc int) (bool, error) {
	recv := rt.Arg(-1)
	a, ok := rt.Resolve(value.AsObj(recv)).(*object.Array)
	if !ok {
		return false, fmt.Errorf("push: receiver is not an array")
	}
	a.Append(rt.Arg(0))
	rt.Push(value.EncodeNil())
	return true, nil
}

func arrayPop(rt object.NativeRuntime, argc int) (bool, error) {
	recv := rt.Arg(-1)
	a, ok := rt.Resolve(value.AsObj(recv)).(*object.Array)
	if !ok || len(a.Elements) == 0 {
		return false, fmt.Errorf("pop: receiver is not a non-empty array")
	}
	rt.Push(a.PopBack())
	return true, nil
}
