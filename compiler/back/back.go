// Package back compiles verified modules to native code.
//
// arm64 targets produce GNU assembler text. x86_64 and llvm targets
// produce LLVM IR text.
//
// Native strings are pointers to an 8 byte length followed by the bytes.
// Traps become BRK instructions or llvm.trap calls.
package back

import (
	"context"
	"fmt"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/slow/compiler/asm"
	"github.com/slowlang/slow/compiler/ir"
	"github.com/slowlang/slow/compiler/verify"
)

type (
	Target struct {
		Triple string
		Arch   string
		OS     string
	}

	Kind string

	Artifact struct {
		Target Target
		Kind   Kind
		Text   []byte
	}

	// UnsupportedError reports an IL construct the target can't compile.
	UnsupportedError struct {
		Target    string
		Construct string

		Func  string
		Block string
		Index int
		Loc   ir.Pos
	}
)

const (
	ArchArm64 = "arm64"
	ArchX8664 = "x86_64"
	ArchLLVM  = "llvm"

	Assembly Kind = "asm"
	LLVMIR   Kind = "llvm"
)

// ParseTarget parses triples like aarch64-unknown-linux-gnu, arm64-apple-darwin,
// x86_64-pc-linux-gnu or just llvm.
func ParseTarget(triple string) (t Target, err error) {
	t.Triple = triple

	if triple == ArchLLVM {
		t.Arch = ArchLLVM
		return t, nil
	}

	parts := strings.Split(triple, "-")

	switch parts[0] {
	case "aarch64", "arm64":
		t.Arch = ArchArm64
	case "x86_64", "amd64":
		t.Arch = ArchX8664
	default:
		return t, &UnsupportedError{Target: triple, Construct: "architecture " + parts[0], Index: -1}
	}

	for _, p := range parts[1:] {
		switch {
		case strings.HasPrefix(p, "linux"):
			t.OS = asm.Linux
		case strings.HasPrefix(p, "darwin"), strings.HasPrefix(p, "macos"):
			t.OS = asm.Darwin
		}
	}

	if t.Arch == ArchArm64 && t.OS == "" {
		return t, &UnsupportedError{Target: triple, Construct: "operating system", Index: -1}
	}

	return t, nil
}

// Compile translates prog for the target triple.
func Compile(ctx context.Context, prog *verify.Verified, triple string) (a *Artifact, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "back: compile", "triple", triple)
	defer tr.Finish("err", &err)

	if err = prog.Check(); err != nil {
		return nil, err
	}

	t, err := ParseTarget(triple)
	if err != nil {
		return nil, err
	}

	a = &Artifact{Target: t}

	switch t.Arch {
	case ArchArm64:
		a.Kind = Assembly
		a.Text, err = compileArm64(ctx, prog, t)
	default:
		a.Kind = LLVMIR
		a.Text, err = compileLLVM(ctx, prog, t)
	}

	if err != nil {
		return nil, err
	}

	if tr.If("dump_native") {
		tr.Printw("artifact", "kind", a.Kind, "text", a.Text)
	}

	return a, nil
}

func (e *UnsupportedError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "target %s: unsupported %s", e.Target, e.Construct)

	if e.Func != "" {
		fmt.Fprintf(&b, " in @%s", e.Func)
	}

	if e.Block != "" {
		b.WriteString(" " + e.Block)

		if e.Index >= 0 {
			fmt.Fprintf(&b, "[%d]", e.Index)
		}
	}

	if !e.Loc.IsZero() {
		fmt.Fprintf(&b, " at %d:%d", e.Loc.Line, e.Loc.Col)
	}

	return b.String()
}

func unsupported(t Target, f *ir.Func, b *ir.Block, idx int, in *ir.Instr, format string, args ...any) *UnsupportedError {
	e := &UnsupportedError{
		Target:    t.Triple,
		Construct: fmt.Sprintf(format, args...),
		Index:     idx,
	}

	if f != nil {
		e.Func = f.Name
	}

	if b != nil {
		e.Block = b.Label
	}

	if in != nil {
		e.Loc = in.Loc
	}

	return e
}

// check returns ctx error between functions.
func check(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "back")
	default:
		return nil
	}
}
