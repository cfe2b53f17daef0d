package vm

import (
	"fmt"
	"strings"

	"github.com/slowlang/slow/compiler/ir"
)

type (
	TrapKind int8

	// Trap is a runtime fault aborting a run.
	Trap struct {
		Kind TrapKind

		Func  string
		Block string
		Index int
		Loc   ir.Pos

		Msg string

		// Stack lists active calls, innermost first.
		Stack []string

		Err error
	}
)

const (
	DivideByZero TrapKind = iota
	Bounds
	NullPointer
	InvalidPointer
	StackOverflow
	StepLimit
	Interrupted
	Explicit
	Malformed
	OutOfMemory
	RuntimeFault
)

var trapNames = []string{
	DivideByZero:   "divide by zero",
	Bounds:         "out of bounds",
	NullPointer:    "null pointer",
	InvalidPointer: "invalid pointer",
	StackOverflow:  "stack overflow",
	StepLimit:      "step limit",
	Interrupted:    "interrupted",
	Explicit:       "explicit trap",
	Malformed:      "malformed program",
	OutOfMemory:    "out of memory",
	RuntimeFault:   "runtime fault",
}

// TrapKindOf maps the kind operand of the trap instruction.
func TrapKindOf(s string) TrapKind {
	switch s {
	case "divzero":
		return DivideByZero
	case "bounds":
		return Bounds
	case "null":
		return NullPointer
	}

	return Explicit
}

func (k TrapKind) String() string {
	if k < 0 || int(k) >= len(trapNames) {
		return fmt.Sprintf("trap(%d)", int(k))
	}

	return trapNames[k]
}

func (x *exec) trap(in *inst, k TrapKind, format string, args ...any) *Trap {
	t := &Trap{
		Kind:  k,
		Index: -1,
		Msg:   fmt.Sprintf(format, args...),
	}

	if in != nil {
		t.Func = in.blk.fn.name
		t.Block = in.blk.label
		t.Index = in.idx
		t.Loc = in.pos
	}

	for i := len(x.stack) - 1; i >= 0; i-- {
		fr := x.stack[i]
		t.Stack = append(t.Stack, fmt.Sprintf("@%s %s[%d]", fr.fn.name, fr.blk.label, fr.pc-1))
	}

	return t
}

func (t *Trap) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "trap: %v", t.Kind)

	if t.Func != "" {
		fmt.Fprintf(&b, ": @%s %s[%d]", t.Func, t.Block, t.Index)
	}

	if !t.Loc.IsZero() {
		fmt.Fprintf(&b, " at %d:%d", t.Loc.Line, t.Loc.Col)
	}

	if t.Msg != "" {
		b.WriteString(": ")
		b.WriteString(t.Msg)
	}

	return b.String()
}

func (t *Trap) Unwrap() error { return t.Err }
