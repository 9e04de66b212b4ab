package vm

import "github.com/Antony1060/ESL/internal/value"

// Run installs the main closure as frame 0 of the main thread and enters
// the dispatch loop, per the compiler-to-VM handoff: slot 0 holds nil
// (the main thread has no real receiver), and execution proceeds until
// the implicit RETURN at the end of the module-runner function unwinds
// frame 0.
func (vm *VM) Run() (value.Value, error) {
	t := newThread(vm, true)
	t.stack[0] = value.EncodeNil()
	t.top = 1
	if err := t.pushFrame(vm.main, 0); err != nil {
		return value.EncodeNil(), err
	}
	return vm.dispatch(t)
}
