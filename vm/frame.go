package vm

// Frame is one activation record. Locals of the frame are addressed relative
// to Base; nothing below Base may be popped while the frame is active.
type Frame struct {
	PC      int
	Base    int
	Chunk   *Chunk   // code and constants the frame executes
	Closure *Closure // nil for the top-level script
}

func (vm *VM) frame() (*Frame, error) {
	if len(vm.frames) == 0 {
		return nil, ErrEmptyFrame
	}
	return &vm.frames[len(vm.frames)-1], nil
}

func (vm *VM) pc() int {
	if len(vm.frames) == 0 {
		return -1
	}
	return vm.frames[len(vm.frames)-1].PC
}

// ---------------------------------------------------------------------------
// Operand stack
// ---------------------------------------------------------------------------

func (vm *VM) push(v Value) {
	vm.stack = append(vm.stack, v)
}

// pop removes the top of stack, closing any upvalue still pointing at it.
func (vm *VM) pop() (Value, error) {
	n := len(vm.stack)
	if n == 0 {
		return Nil, ErrEmptyStack
	}
	v := vm.stack[n-1]
	vm.closeUpvalues(n - 1)
	vm.stack[n-1] = Nil
	vm.stack = vm.stack[:n-1]
	return v, nil
}

// truncate drops every slot at or above base.
func (vm *VM) truncate(base int) {
	if base >= len(vm.stack) {
		return
	}
	vm.closeUpvalues(base)
	clear(vm.stack[base:])
	vm.stack = vm.stack[:base]
}

// ---------------------------------------------------------------------------
// Upvalues
// ---------------------------------------------------------------------------

// captureUpvalue returns the open upvalue for an absolute stack slot, creating
// it if no closure has captured that slot yet. vm.open stays sorted by slot.
func (vm *VM) captureUpvalue(slot int) *Upvalue {
	i := len(vm.open)
	for i > 0 && vm.open[i-1].slot > slot {
		i--
	}
	if i > 0 && vm.open[i-1].slot == slot {
		return vm.open[i-1]
	}
	uv := &Upvalue{stack: &vm.stack, slot: slot, open: true}
	vm.open = append(vm.open, nil)
	copy(vm.open[i+1:], vm.open[i:])
	vm.open[i] = uv
	return uv
}

// closeUpvalues closes every open upvalue at or above slot.
func (vm *VM) closeUpvalues(slot int) {
	i := len(vm.open)
	for i > 0 && vm.open[i-1].slot >= slot {
		vm.open[i-1].close()
		vm.open[i-1] = nil
		i--
	}
	vm.open = vm.open[:i]
}
