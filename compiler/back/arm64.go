package back

import (
	"context"
	"sort"
	"strconv"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/slow/compiler/asm"
	"github.com/slowlang/slow/compiler/asm/arm64"
	"github.com/slowlang/slow/compiler/df"
	"github.com/slowlang/slow/compiler/ir"
	"github.com/slowlang/slow/compiler/verify"
)

type (
	arm64Module struct {
		t    Target
		syn  asm.Syntax
		prog *verify.Verified
		m    *ir.Module

		b    []byte
		strs []string
	}

	emitter struct {
		*arm64Module

		f *ir.Func
		g *df.Graph
		a *allocation

		types  map[ir.ValueID]ir.Type
		alloca map[ir.ValueID]int

		frame int
		saved int // offset of saved registers

		traps map[string]bool
		edges int
	}
)

var arithNames = map[ir.Op]string{
	ir.Add:  "ADD",
	ir.Sub:  "SUB",
	ir.Mul:  "MUL",
	ir.SDiv: "SDIV",
	ir.And:  "AND",
	ir.Or:   "ORR",
	ir.Xor:  "EOR",
	ir.Shl:  "LSL",
	ir.AShr: "ASR",
}

var condNames = map[ir.Op]arm64.Cond{
	ir.ICmpEq: arm64.EQ,
	ir.ICmpNe: arm64.NE,
	ir.SCmpLt: arm64.LT,
	ir.SCmpLe: arm64.LE,
	ir.SCmpGt: arm64.GT,
	ir.SCmpGe: arm64.GE,
}

var trapCodes = map[string]int64{
	"divzero": 1,
	"bounds":  2,
	"null":    3,
}

// maxFrame keeps SUB SP within a 12 bit immediate.
const maxFrame = 4095

func compileArm64(ctx context.Context, prog *verify.Verified, t Target) (_ []byte, err error) {
	c := &arm64Module{
		t:    t,
		syn:  asm.Syntax{OS: t.OS},
		prog: prog,
		m:    prog.Module(),
	}

	c.b = hfmt.Appendf(c.b, "// module %s\n", c.m.Name)
	c.b = c.syn.Text(c.b)

	for _, f := range c.m.Funcs {
		if err = check(ctx); err != nil {
			return nil, err
		}

		err = c.compileFunc(ctx, f)
		if err != nil {
			var u *UnsupportedError
			if errors.As(err, &u) {
				return nil, err
			}

			return nil, errors.Wrap(err, "func %v", f.Name)
		}
	}

	if len(c.strs) != 0 {
		c.b = append(c.b, '\n')
		c.b = c.syn.Data(c.b)
	}

	for i, s := range c.strs {
		c.b = append(c.b, "\t.p2align\t3\n"...)
		c.b = asm.Label(c.b, c.strLabel(i))
		c.b = hfmt.Appendf(c.b, "\t.quad\t%d\n", len(s))

		if s != "" {
			c.b = asm.Ascii(c.b, s)
		}
	}

	return c.b, nil
}

func (c *arm64Module) compileFunc(ctx context.Context, f *ir.Func) (err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "back: arm64 func", "name", f.Name)
	defer tr.Finish("err", &err)

	e := &emitter{
		arm64Module: c,
		f:           f,
		g:           c.prog.Graph(f),
		types:       make(map[ir.ValueID]ir.Type),
		alloca:      make(map[ir.ValueID]int),
		traps:       make(map[string]bool),
	}

	if e.g == nil {
		e.g = df.Build(f)
	}

	if err = e.check(); err != nil {
		return err
	}

	e.a = allocate(f, e.g, arm64.CalleeSaved)

	if err = e.layout(); err != nil {
		return err
	}

	e.prologue()

	for _, bi := range e.g.RPO {
		e.block(f.Blocks[bi])
	}

	e.epilogue()

	return nil
}

// check rejects constructs the arm64 emitter doesn't handle.
func (e *emitter) check() error {
	f := e.f

	if len(f.Params) > len(arm64.Args) {
		return unsupported(e.t, f, nil, -1, nil, "function with more than %d parameters", len(arm64.Args))
	}

	float := f.Ret == ir.F64

	for _, p := range f.Params {
		float = float || p.Type == ir.F64
	}

	if float {
		return unsupported(e.t, f, nil, -1, nil, "f64 values")
	}

	for _, b := range f.Blocks {
		for _, p := range b.Params {
			if p.Type == ir.F64 {
				return unsupported(e.t, f, b, -1, nil, "f64 values")
			}
		}

		for i, in := range b.Code {
			switch in.Op.Class() {
			case ir.ClassFloatArith, ir.ClassFloatCmp:
				return unsupported(e.t, f, b, i, in, "f64 operation %v", in.Op)
			}

			if in.Op == ir.SIToFP || in.Op == ir.FPToSI || in.Type == ir.F64 {
				return unsupported(e.t, f, b, i, in, "f64 values")
			}

			for _, v := range in.Uses() {
				if v.Kind == ir.KindFloat {
					return unsupported(e.t, f, b, i, in, "f64 constant")
				}
			}

			switch in.Op {
			case ir.Alloca:
				if in.Args[0].Kind != ir.KindInt {
					return unsupported(e.t, f, b, i, in, "dynamic-size alloca")
				}
			case ir.Call:
				if len(in.Args) > len(arm64.Args) {
					return unsupported(e.t, f, b, i, in, "call with more than %d arguments", len(arm64.Args))
				}

				params, _, _ := e.m.Signature(in.Callee)

				for _, p := range params {
					if p == ir.F64 {
						return unsupported(e.t, f, b, i, in, "f64 values")
					}
				}
			}
		}
	}

	return nil
}

// layout places spill slots, allocas and saved registers above SP.
func (e *emitter) layout() error {
	for _, p := range e.f.Params {
		e.types[p.ID] = p.Type
	}

	off := 8 * e.a.slots

	for _, b := range e.f.Blocks {
		for _, p := range b.Params {
			e.types[p.ID] = p.Type
		}

		for _, in := range b.Code {
			if in.Defines() {
				e.types[in.Result] = in.ResultType()
			}

			if in.Op == ir.Alloca {
				e.alloca[in.Result] = off
				off += int(in.Args[0].Int+7) &^ 7
			}
		}
	}

	e.saved = off
	off += 8 * len(e.a.used)

	e.frame = (off + 15) &^ 15

	if e.frame > maxFrame {
		return unsupported(e.t, e.f, nil, -1, nil, "frame beyond immediate-offset range (%d bytes)", e.frame)
	}

	return nil
}

func (e *emitter) prologue() {
	e.b = append(e.b, '\n')
	e.b = e.syn.Global(e.b, e.f.Name)

	e.ins("STP", arm64.FP, arm64.LR, arm64.Raw("[SP, #-16]!"))
	e.ins("MOV", arm64.FP, arm64.SP)

	if e.frame != 0 {
		e.ins("SUB", arm64.SP, arm64.SP, arm64.Imm(e.frame))
	}

	for i, r := range e.a.used {
		e.ins("STR", r, arm64.Mem{Base: arm64.SP, Off: e.saved + 8*i})
	}

	var moves []move

	for i, p := range e.f.Params {
		moves = append(moves, move{dst: e.a.loc(p.ID), src: source{loc: loc{Reg: arm64.Args[i], Slot: -1}}})
	}

	e.permutate(moves)
}

func (e *emitter) epilogue() {
	e.b = asm.Label(e.b, e.local("ret"))

	for i, r := range e.a.used {
		e.ins("LDR", r, arm64.Mem{Base: arm64.SP, Off: e.saved + 8*i})
	}

	e.ins("MOV", arm64.SP, arm64.FP)
	e.ins("LDP", arm64.FP, arm64.LR, arm64.Raw("[SP], #16"))
	e.ins("RET")

	kinds := make([]string, 0, len(e.traps))
	for k := range e.traps {
		kinds = append(kinds, k)
	}

	sort.Strings(kinds)

	for _, k := range kinds {
		e.b = asm.Label(e.b, e.local("trap."+k))
		e.trap(k)
	}
}

func (e *emitter) block(b *ir.Block) {
	e.b = asm.Label(e.b, e.local(b.Label))

	for _, in := range b.Code {
		e.instr(in)
	}
}

func (e *emitter) instr(in *ir.Instr) {
	const (
		s0, s1, s2 = arm64.X9, arm64.X10, arm64.X11
	)

	switch in.Op.Class() {
	case ir.ClassIntArith:
		x := e.use(in.Args[0], s0)
		y := e.use(in.Args[1], s1)
		d := e.def(in.Result)

		switch in.Op {
		case ir.SDiv, ir.SRem:
			e.ins("CBZ", y, arm64.Raw(e.trapLabel("divzero")))
		}

		if in.Op == ir.SRem {
			e.ins("SDIV", s2, x, y)
			e.ins("MSUB", d, s2, y, x)
		} else {
			e.ins(arithNames[in.Op], d, x, y)
		}

		e.narrow(d, in.Type)
		e.store(in.Result, d)
	case ir.ClassIntCmp:
		x := e.use(in.Args[0], s0)
		y := e.use(in.Args[1], s1)
		d := e.def(in.Result)

		e.ins("CMP", x, y)
		e.ins("CSET", d, condNames[in.Op])
		e.store(in.Result, d)
	case ir.ClassConv:
		e.conv(in)
	case ir.ClassMemory:
		e.memory(in)
	case ir.ClassCall:
		e.call(in)
	case ir.ClassTerm:
		e.term(in)
	}
}

func (e *emitter) conv(in *ir.Instr) {
	x := e.use(in.Args[0], arm64.X9)
	d := e.def(in.Result)
	from := e.typeOf(in.Args[0])

	switch {
	case in.Op == ir.ZExt && from == ir.I16:
		e.ins("UXTH", arm64.W(d), arm64.W(x))
	case in.Op == ir.ZExt && from == ir.I32:
		e.ins("MOV", arm64.W(d), arm64.W(x))
	case in.Op == ir.Trunc && in.Type == ir.I1:
		e.ins("AND", d, x, arm64.Imm(1))
	case in.Op == ir.Trunc && in.Type != ir.I64:
		if x != d {
			e.ins("MOV", d, x)
		}

		e.narrow(d, in.Type)
	default: // sext and zext of i1 keep canonical bits
		if x != d {
			e.ins("MOV", d, x)
		}
	}

	e.store(in.Result, d)
}

func (e *emitter) memory(in *ir.Instr) {
	switch in.Op {
	case ir.Alloca:
		d := e.def(in.Result)
		e.ins("ADD", d, arm64.SP, arm64.Imm(e.alloca[in.Result]))
		e.store(in.Result, d)
	case ir.Load:
		p := e.use(in.Args[0], arm64.X9)
		d := e.def(in.Result)
		m := arm64.Mem{Base: p}

		switch in.Type {
		case ir.I1:
			e.ins("LDRB", arm64.W(d), m)
		case ir.I16:
			e.ins("LDRSH", d, m)
		case ir.I32:
			e.ins("LDRSW", d, m)
		default:
			e.ins("LDR", d, m)
		}

		e.store(in.Result, d)
	case ir.Store:
		p := e.use(in.Args[0], arm64.X9)
		v := e.use(in.Args[1], arm64.X10)
		m := arm64.Mem{Base: p}

		switch in.Type {
		case ir.I1:
			e.ins("STRB", arm64.W(v), m)
		case ir.I16:
			e.ins("STRH", arm64.W(v), m)
		case ir.I32:
			e.ins("STR", arm64.W(v), m)
		default:
			e.ins("STR", v, m)
		}
	case ir.GEP:
		p := e.use(in.Args[0], arm64.X9)
		d := e.def(in.Result)

		if off := in.Args[1]; off.Kind == ir.KindInt && off.Int >= 0 && off.Int <= maxFrame {
			e.ins("ADD", d, p, arm64.Imm(off.Int))
		} else {
			e.ins("ADD", d, p, e.use(off, arm64.X10))
		}

		e.store(in.Result, d)
	case ir.IdxChk:
		i := e.use(in.Args[0], arm64.X9)
		n := e.use(in.Args[1], arm64.X10)

		e.ins("CMP", i, n)
		e.ins("B.HS", arm64.Raw(e.trapLabel("bounds")))
	case ir.ConstStr:
		d := e.def(in.Result)
		sym := e.strLabel(len(e.strs))

		e.strs = append(e.strs, in.Str)

		if e.syn.OS == asm.Darwin {
			e.ins("ADRP", d, arm64.Raw(sym+"@PAGE"))
			e.ins("ADD", d, d, arm64.Raw(sym+"@PAGEOFF"))
		} else {
			e.ins("ADRP", d, arm64.Raw(sym))
			e.ins("ADD", d, d, arm64.Raw(":lo12:"+sym))
		}

		e.store(in.Result, d)
	case ir.ConstNull:
		d := e.def(in.Result)
		e.ins("MOV", d, arm64.XZR)
		e.store(in.Result, d)
	}
}

func (e *emitter) call(in *ir.Instr) {
	moves := make([]move, len(in.Args))

	for i, a := range in.Args {
		moves[i] = move{dst: loc{Reg: arm64.Args[i], Slot: -1}, src: e.source(a)}
	}

	e.permutate(moves)

	e.ins("BL", arm64.Raw(e.syn.Sym(in.Callee)))

	if !in.Defines() {
		return
	}

	d := e.def(in.Result)

	switch in.Type {
	case ir.I1:
		e.ins("AND", d, arm64.X0, arm64.Imm(1))
	default:
		e.ins("MOV", d, arm64.X0)
		e.narrow(d, in.Type)
	}

	e.store(in.Result, d)
}

func (e *emitter) term(in *ir.Instr) {
	switch in.Op {
	case ir.Ret:
		if len(in.Args) != 0 {
			e.move(loc{Reg: arm64.X0, Slot: -1}, e.source(in.Args[0]))
		}

		e.ins("B", arm64.Raw(e.local("ret")))
	case ir.Br:
		e.jump(in.Targets[0])
	case ir.CBr:
		c := in.Args[0]

		if !c.IsTemp() {
			t := in.Targets[1]
			if c.Int != 0 {
				t = in.Targets[0]
			}

			e.jump(t)

			return
		}

		r := e.use(c, arm64.X9)
		then, els := in.Targets[0], in.Targets[1]
		elseMoves := e.edgeMoves(els)

		if len(elseMoves) == 0 {
			e.ins("CBZ", r, arm64.Raw(e.local(els.Label)))
			e.jump(then)

			return
		}

		stub := e.local("edge." + strconv.Itoa(e.edges))
		e.edges++

		e.ins("CBZ", r, arm64.Raw(stub))
		e.jump(then)

		e.b = asm.Label(e.b, stub)
		e.permutate(elseMoves)
		e.ins("B", arm64.Raw(e.local(els.Label)))
	case ir.Trap:
		e.trap(in.Str)
	}
}

func (e *emitter) jump(t ir.Target) {
	e.permutate(e.edgeMoves(t))
	e.ins("B", arm64.Raw(e.local(t.Label)))
}

func (e *emitter) edgeMoves(t ir.Target) []move {
	b := e.f.Blocks[e.g.Index[t.Label]]

	moves := make([]move, len(t.Args))

	for i, a := range t.Args {
		moves[i] = move{dst: e.a.loc(b.Params[i].ID), src: e.source(a)}
	}

	return moves
}

func (e *emitter) trap(kind string) {
	code, ok := trapCodes[kind]
	if !ok {
		code = 0x10
	}

	e.comment("trap %s", kind)
	e.ins("BRK", arm64.Imm(code))
}

func (e *emitter) trapLabel(kind string) string {
	e.traps[kind] = true

	return e.local("trap." + kind)
}

// use returns a register holding v, loading it into scratch if needed.
func (e *emitter) use(v ir.Value, scratch arm64.Reg) arm64.Reg {
	if !v.IsTemp() {
		e.b = arm64.MovImm(e.b, scratch, constBits(v))
		return scratch
	}

	l := e.a.loc(v.ID)
	if !l.spilled() {
		return l.Reg
	}

	e.ins("LDR", scratch, e.slot(l.Slot))

	return scratch
}

// def returns the register to compute id into. Spilled values go through X12.
func (e *emitter) def(id ir.ValueID) arm64.Reg {
	l := e.a.loc(id)
	if l.spilled() {
		return arm64.X12
	}

	return l.Reg
}

func (e *emitter) store(id ir.ValueID, r arm64.Reg) {
	if l := e.a.loc(id); l.spilled() {
		e.ins("STR", r, e.slot(l.Slot))
	}
}

func (e *emitter) source(v ir.Value) source {
	if !v.IsTemp() {
		return source{val: v, konst: true}
	}

	return source{loc: e.a.loc(v.ID)}
}

// narrow sign extends sub-word results to keep registers canonical.
func (e *emitter) narrow(r arm64.Reg, t ir.Type) {
	switch t {
	case ir.I16:
		e.ins("SXTH", r, arm64.W(r))
	case ir.I32:
		e.ins("SXTW", r, arm64.W(r))
	}
}

func (e *emitter) typeOf(v ir.Value) ir.Type {
	if v.IsTemp() {
		return e.types[v.ID]
	}

	return ir.I64
}

func (e *emitter) slot(s int) arm64.Mem {
	return arm64.Mem{Base: arm64.SP, Off: 8 * s}
}

func (e *emitter) local(label string) string {
	return e.syn.Local(e.f.Name, label)
}

func (e *emitter) ins(op string, args ...arm64.Operand) {
	e.b = arm64.Ins(e.b, op, args...)
}

func (e *emitter) comment(format string, args ...any) {
	e.b = asm.Comment(e.b, format, args...)
}

func (c *arm64Module) strLabel(i int) string {
	return c.syn.Local("", "str."+strconv.Itoa(i))
}
