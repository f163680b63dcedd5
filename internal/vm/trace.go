package vm

import (
	"fmt"
	"io"
	"strings"

	"vela/internal/bytecode"
)

// Tracer writes a line-oriented execution trace. A nil *Tracer is valid and
// silent, so call sites never need a guard.
type Tracer struct {
	w io.Writer
}

// NewTracer returns a tracer writing to w.
func NewTracer(w io.Writer) *Tracer { return &Tracer{w: w} }

func (t *Tracer) enabled() bool { return t != nil && t.w != nil }

func (t *Tracer) instr(depth, codeIx, pc int, op bytecode.Opcode) {
	if !t.enabled() {
		return
	}
	fmt.Fprintf(t.w, "[trace] %sco=%d 0x%04x %s\n", strings.Repeat("  ", depth), codeIx, pc, op)
}

func (t *Tracer) alloc(kind ObjectKind, h Handle) {
	if !t.enabled() {
		return
	}
	fmt.Fprintf(t.w, "[heap] alloc %s handle=%d\n", kind, h)
}

func (t *Tracer) free(kind ObjectKind, h Handle) {
	if !t.enabled() {
		return
	}
	fmt.Fprintf(t.w, "[heap] free %s handle=%d\n", kind, h)
}

func (t *Tracer) collect(freed int) {
	if !t.enabled() {
		return
	}
	fmt.Fprintf(t.w, "[heap] collect freed=%d\n", freed)
}

// RunEventKind labels an entry of the advisory run-event stream.
type RunEventKind uint8

const (
	RunStarted RunEventKind = iota
	RunProgress
	RunCollected
	RunFinished
	RunFailed
)

// RunEvent is an advisory progress notification emitted on the execution
// goroutine. Observers must not block for long: the VM waits on delivery.
// Events carry counters only and never affect execution semantics.
type RunEvent struct {
	Kind         RunEventKind
	Instructions uint64
	Freed        int
	Stats        Stats
	Err          string
}

// RunObserver receives run events. A nil observer disables the stream.
type RunObserver func(RunEvent)

// progressInterval is how many instructions pass between RunProgress events.
const progressInterval = 4096

func (vm *VM) emit(ev RunEvent) {
	if vm.observer == nil {
		return
	}
	ev.Instructions = vm.instrCount
	ev.Stats = vm.heap.Stats()
	vm.observer(ev)
}
