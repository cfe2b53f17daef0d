package verify

import (
	"fmt"

	"github.com/slowlang/slow/compiler/ir"
)

type typer struct {
	*checker

	f    *ir.Func
	b    *ir.Block
	i    int
	regs map[ir.ValueID]ir.Type
}

func (c *checker) types() {
	for _, f := range c.m.Funcs {
		t := &typer{checker: c, f: f, regs: c.regs[f.Name]}

		for _, b := range f.Blocks {
			t.b = b

			for i, in := range b.Code {
				t.i = i
				t.instr(in)
			}
		}
	}
}

func (t *typer) errorf(format string, args ...any) {
	t.report(t.f, t.b, t.i, format, args...)
}

func (t *typer) instr(in *ir.Instr) {
	switch c := in.Op.Class(); c {
	case ir.ClassIntArith:
		ok := in.Type.IsInt()

		switch in.Op {
		case ir.And, ir.Or, ir.Xor:
			ok = ok || in.Type == ir.I1
		}

		if !ok {
			t.errorf("%v needs an integer type, got %v", in.Op, in.Type)
			return
		}

		t.operands(in, in.Type, in.Type)
	case ir.ClassFloatArith, ir.ClassFloatCmp:
		if in.Type != ir.F64 {
			t.errorf("%v needs f64, got %v", in.Op, in.Type)
			return
		}

		t.operands(in, ir.F64, ir.F64)
	case ir.ClassIntCmp:
		ok := in.Type.IsInt()

		if in.Op == ir.ICmpEq || in.Op == ir.ICmpNe {
			ok = ok || in.Type == ir.I1 || in.Type == ir.Ptr
		}

		if !ok {
			t.errorf("%v can't compare %v", in.Op, in.Type)
			return
		}

		t.operands(in, in.Type, in.Type)
	case ir.ClassConv:
		t.conv(in)
	case ir.ClassMemory:
		t.memory(in)
	case ir.ClassCall:
		t.call(in)
	case ir.ClassTerm:
		t.term(in)
	}
}

func (t *typer) conv(in *ir.Instr) {
	x := in.Args[0]

	switch in.Op {
	case ir.SIToFP:
		if in.Type != ir.F64 {
			t.errorf("sitofp produces f64, got %v", in.Type)
			return
		}

		t.intOperand(0, x)
	case ir.FPToSI:
		if !in.Type.IsInt() {
			t.errorf("fptosi produces an integer, got %v", in.Type)
			return
		}

		t.operand(0, x, ir.F64)
	case ir.SExt, ir.ZExt:
		if !in.Type.IsInt() {
			t.errorf("%v produces an integer, got %v", in.Op, in.Type)
			return
		}

		from, ok := t.valueType(x)
		if !ok {
			return
		}

		if !(from.IsInt() || in.Op == ir.ZExt && from == ir.I1) || from.Bits() > in.Type.Bits() {
			t.errorf("can't %v %v to %v", in.Op, from, in.Type)
		}
	case ir.Trunc:
		if !in.Type.IsInt() && in.Type != ir.I1 {
			t.errorf("trunc produces an integer, got %v", in.Type)
			return
		}

		from, ok := t.valueType(x)
		if !ok {
			return
		}

		if !from.IsInt() || from.Bits() < in.Type.Bits() {
			t.errorf("can't trunc %v to %v", from, in.Type)
		}
	}
}

func (t *typer) memory(in *ir.Instr) {
	switch in.Op {
	case ir.Alloca:
		t.operand(0, in.Args[0], ir.I64)
	case ir.Load:
		if in.Type == ir.Void {
			t.errorf("load of void")
			return
		}

		t.operand(0, in.Args[0], ir.Ptr)
	case ir.Store:
		if in.Type == ir.Void {
			t.errorf("store of void")
			return
		}

		t.operands(in, ir.Ptr, in.Type)
	case ir.GEP:
		t.operands(in, ir.Ptr, ir.I64)
	case ir.IdxChk:
		t.operands(in, ir.I64, ir.I64)
	}
}

func (t *typer) call(in *ir.Instr) {
	params, ret, _ := t.m.Signature(in.Callee)

	if len(in.Args) != len(params) {
		t.errorf("call @%s: want %d arguments, got %d", in.Callee, len(params), len(in.Args))
		return
	}

	if in.Type != ret {
		t.errorf("call @%s: declared result %v, callee returns %v", in.Callee, in.Type, ret)
	}

	for j, a := range in.Args {
		t.operand(j, a, params[j])
	}
}

func (t *typer) term(in *ir.Instr) {
	switch in.Op {
	case ir.CBr:
		t.operand(0, in.Args[0], ir.I1)
	case ir.Ret:
		switch {
		case t.f.Ret == ir.Void && len(in.Args) != 0:
			t.errorf("void function returns a value")
		case t.f.Ret != ir.Void && len(in.Args) == 0:
			t.errorf("missing %v return value", t.f.Ret)
		case t.f.Ret != ir.Void:
			t.operand(0, in.Args[0], t.f.Ret)
		}
	}
}

func (t *typer) operands(in *ir.Instr, types ...ir.Type) {
	for j, want := range types {
		t.operand(j, in.Args[j], want)
	}
}

func (t *typer) operand(j int, v ir.Value, want ir.Type) {
	if err := t.check(v, want); err != "" {
		t.errorf("operand %d: %s", j, err)
	}
}

func (t *typer) intOperand(j int, v ir.Value) {
	got, ok := t.valueType(v)
	if ok && !got.IsInt() {
		t.errorf("operand %d: want an integer, got %v", j, got)
	}
}

// valueType is the type of a register or the natural type of a constant.
func (t *typer) valueType(v ir.Value) (ir.Type, bool) {
	switch v.Kind {
	case ir.KindTemp:
		return t.regs[v.ID], true
	case ir.KindInt:
		return ir.I64, true
	case ir.KindFloat:
		return ir.F64, true
	case ir.KindBool:
		return ir.I1, true
	case ir.KindNull:
		return ir.Ptr, true
	}

	t.errorf("missing operand")

	return ir.Void, false
}

func (t *typer) check(v ir.Value, want ir.Type) string {
	switch v.Kind {
	case ir.KindTemp:
		if got := t.regs[v.ID]; got != want {
			return fmt.Sprintf("%v has type %v, want %v", v, got, want)
		}
	case ir.KindInt:
		if !want.IsInt() {
			return fmt.Sprintf("integer constant %v used as %v", v, want)
		}

		if !want.Fits(v.Int) {
			return fmt.Sprintf("constant %v overflows %v", v, want)
		}
	case ir.KindFloat:
		if want != ir.F64 {
			return fmt.Sprintf("float constant %v used as %v", v, want)
		}
	case ir.KindBool:
		if want != ir.I1 {
			return fmt.Sprintf("boolean constant %v used as %v", v, want)
		}
	case ir.KindNull:
		if want != ir.Ptr {
			return fmt.Sprintf("null used as %v", want)
		}
	default:
		return "missing operand"
	}

	return ""
}

func (c *checker) branches() {
	for _, f := range c.m.Funcs {
		idx := f.BlockIndex()
		regs := c.regs[f.Name]
		t := &typer{checker: c, f: f, regs: regs}

		for _, b := range f.Blocks {
			i := len(b.Code) - 1
			term := b.Code[i]

			t.b, t.i = b, i

			for _, tg := range term.Targets {
				bi, ok := idx[tg.Label]
				if !ok {
					c.report(f, b, i, "branch to unknown block %q", tg.Label)
					continue
				}

				dst := f.Blocks[bi]

				if len(tg.Args) != len(dst.Params) {
					c.report(f, b, i, "branch to %v passes %d arguments, block takes %d", dst.Label, len(tg.Args), len(dst.Params))
					continue
				}

				for j, a := range tg.Args {
					if err := t.check(a, dst.Params[j].Type); err != "" {
						c.report(f, b, i, "branch to %v: argument %d: %s", dst.Label, j, err)
					}
				}
			}
		}
	}
}
