package vm

import (
	"fmt"

	"vela/internal/bytecode"
)

// DefaultStackLimit caps each frame's operand stack. Value is 32 bytes, so
// the default keeps one stack at a megabyte.
const DefaultStackLimit = 32768

// maxCallDepth bounds the frame stack. Exceeding it is reported as a stack
// overflow, same as blowing the operand limit.
const maxCallDepth = 4096

// Options configures a VM. The zero value picks the defaults.
type Options struct {
	// GCThreshold is the suspect-buffer size that triggers a collection
	// pass. 0 means DefaultGCThreshold.
	GCThreshold int
	// StackLimit caps each frame's operand stack. 0 means
	// DefaultStackLimit.
	StackLimit int
	// Hosts is the host function registry addressed by host_call.
	Hosts []HostFunc
	// Tracer receives the instruction and heap trace. Nil disables.
	Tracer *Tracer
	// Observer receives advisory run events. Nil disables.
	Observer RunObserver
}

type globalSlot struct {
	val Value
	set bool
}

// VM is a single-threaded bytecode interpreter bound to one Heap. A VM runs
// one module at a time; globals persist across Execute calls until Close.
type VM struct {
	heap       *Heap
	mod        *bytecode.Module
	layout     *bytecode.Layout
	globals    []globalSlot
	frames     []frame
	hosts      []HostFunc
	stackLimit int
	tracer     *Tracer
	observer   RunObserver
	instrCount uint64
	eb         errorBuilder
}

// New returns a VM with default options.
func New() *VM { return NewWithOptions(Options{}) }

// NewWithOptions returns a configured VM with a fresh heap.
func NewWithOptions(opts Options) *VM {
	threshold := opts.GCThreshold
	if threshold == 0 {
		threshold = DefaultGCThreshold
	}
	limit := opts.StackLimit
	if limit == 0 {
		limit = DefaultStackLimit
	}
	vm := &VM{
		heap:       NewHeapWithThreshold(threshold),
		hosts:      opts.Hosts,
		stackLimit: limit,
		tracer:     opts.Tracer,
		observer:   opts.Observer,
	}
	vm.heap.SetTracer(opts.Tracer)
	if opts.Observer != nil {
		vm.heap.onCollect = func(freed int) {
			vm.emit(RunEvent{Kind: RunCollected, Freed: freed})
		}
	}
	vm.eb = errorBuilder{vm: vm}
	return vm
}

// Heap exposes the VM's heap for host functions and inspection.
func (vm *VM) Heap() *Heap { return vm.heap }

// InstructionCount returns the number of instructions retired so far.
func (vm *VM) InstructionCount() uint64 { return vm.instrCount }

// Execute runs the module starting at code object 0 and returns its result.
// The caller owns the returned value and releases it with ReleaseValue. On
// error every frame is unwound with refcounts preserved and the returned
// value is Unit. Globals survive for the next Execute.
func (vm *VM) Execute(mod *bytecode.Module) (Value, *VMError) {
	lay, err := mod.Validate()
	if err != nil {
		return Value{}, vm.eb.malformed("%v", err)
	}
	vm.mod = mod
	vm.layout = lay

	root := mod.CodeObjects[0]
	if root.Params != 0 {
		return Value{}, vm.eb.make(PanicTypeMismatch, "entry code object expects %d arguments", root.Params)
	}
	vm.frames = append(vm.frames[:0], newFrame(0, root.Entry, root.Locals, nil))
	vm.emit(RunEvent{Kind: RunStarted})

	result, verr := vm.run()
	if verr != nil {
		vm.unwind()
		vm.emit(RunEvent{Kind: RunFailed, Err: verr.Error()})
		return Value{}, verr
	}
	vm.frames = vm.frames[:0]
	vm.emit(RunEvent{Kind: RunFinished})
	return result, nil
}

// ReleaseValue drops the caller's reference on a value returned by Execute
// or produced by an accessor that retains.
func (vm *VM) ReleaseValue(v Value) { vm.heap.Release(v) }

// unwind releases every live frame, innermost first.
func (vm *VM) unwind() {
	for i := len(vm.frames) - 1; i >= 0; i-- {
		vm.releaseFrame(&vm.frames[i])
	}
	vm.frames = vm.frames[:0]
}

// Globals returns a borrowed snapshot of the global vector. Unset slots read
// as Unit.
func (vm *VM) Globals() []Value {
	out := make([]Value, len(vm.globals))
	for i, g := range vm.globals {
		if g.set {
			out[i] = g.val
		}
	}
	return out
}

// Close releases the globals and drops any leftover frames. The VM must not
// be used afterwards; the heap stays readable for a final Stats call.
func (vm *VM) Close() {
	vm.unwind()
	for i := len(vm.globals) - 1; i >= 0; i-- {
		if vm.globals[i].set {
			vm.heap.Release(vm.globals[i].val)
			vm.globals[i] = globalSlot{}
		}
	}
	vm.globals = vm.globals[:0]
}

// CheckLeaks reports an error when live objects remain after Close. Intended
// for tests: a non-empty heap at that point means a refcount was lost.
func (vm *VM) CheckLeaks() *VMError {
	if n := vm.heap.ObjectCount(); n != 0 {
		return &VMError{
			Code:       PanicHeapCorruption,
			Message:    leakSummary(vm.heap, n),
			CodeObject: -1,
		}
	}
	return nil
}

func leakSummary(hp *Heap, n int) string {
	msg := fmt.Sprintf("%d leaked objects:", n)
	shown := 0
	for h, obj := range hp.objs {
		if shown == 8 {
			msg += " ..."
			break
		}
		msg += " " + objectSummary(h, obj)
		shown++
	}
	return msg
}
