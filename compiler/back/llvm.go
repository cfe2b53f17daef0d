package back

import (
	"context"
	"encoding/binary"
	"strconv"

	ll "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/slow/compiler/df"
	"github.com/slowlang/slow/compiler/ir"
	"github.com/slowlang/slow/compiler/verify"
)

type (
	llvmModule struct {
		t    Target
		prog *verify.Verified
		m    *ir.Module

		out   *ll.Module
		funcs map[string]*ll.Func
		strs  map[string]*ll.Global

		trap, fptosi *ll.Func
	}

	llvmFunc struct {
		*llvmModule

		f  *ir.Func
		g  *df.Graph
		fn *ll.Func

		vals   map[ir.ValueID]value.Value
		types  map[ir.ValueID]ir.Type
		blocks map[string]*ll.Block
		phis   map[string][]*ll.InstPhi
		traps  map[string]*ll.Block

		cur   *ll.Block
		label string
		conts int

		edges []llvmEdge
	}

	llvmEdge struct {
		from *ll.Block
		to   ir.Target
	}
)

var i8p = types.NewPointer(types.I8)

var icmpPreds = map[ir.Op]enum.IPred{
	ir.ICmpEq: enum.IPredEQ,
	ir.ICmpNe: enum.IPredNE,
	ir.SCmpLt: enum.IPredSLT,
	ir.SCmpLe: enum.IPredSLE,
	ir.SCmpGt: enum.IPredSGT,
	ir.SCmpGe: enum.IPredSGE,
}

var fcmpPreds = map[ir.Op]enum.FPred{
	ir.FCmpEq: enum.FPredOEQ,
	ir.FCmpNe: enum.FPredUNE,
	ir.FCmpLt: enum.FPredOLT,
	ir.FCmpLe: enum.FPredOLE,
	ir.FCmpGt: enum.FPredOGT,
	ir.FCmpGe: enum.FPredOGE,
}

func compileLLVM(ctx context.Context, prog *verify.Verified, t Target) (_ []byte, err error) {
	c := &llvmModule{
		t:     t,
		prog:  prog,
		m:     prog.Module(),
		out:   ll.NewModule(),
		funcs: make(map[string]*ll.Func),
		strs:  make(map[string]*ll.Global),
	}

	if t.Arch != ArchLLVM {
		c.out.TargetTriple = t.Triple
	}

	c.out.SourceFilename = c.m.Name

	for _, e := range c.m.Externs {
		c.declare(e.Name, e.Ret, e.Params)
	}

	for _, f := range c.m.Funcs {
		c.declare(f.Name, f.Ret, f.ParamTypes())
	}

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

	return []byte(c.out.String()), nil
}

func (c *llvmModule) declare(name string, ret ir.Type, params []ir.Type) {
	ps := make([]*ll.Param, len(params))

	for i, p := range params {
		ps[i] = ll.NewParam("", llType(p))
	}

	c.funcs[name] = c.out.NewFunc(name, llType(ret), ps...)
}

func (c *llvmModule) compileFunc(ctx context.Context, f *ir.Func) (err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "back: llvm func", "name", f.Name)
	defer tr.Finish("err", &err)

	e := &llvmFunc{
		llvmModule: c,
		f:          f,
		g:          c.prog.Graph(f),
		fn:         c.funcs[f.Name],
		vals:       make(map[ir.ValueID]value.Value),
		types:      make(map[ir.ValueID]ir.Type),
		blocks:     make(map[string]*ll.Block),
		phis:       make(map[string][]*ll.InstPhi),
		traps:      make(map[string]*ll.Block),
	}

	if e.g == nil {
		e.g = df.Build(f)
	}

	for i, p := range f.Params {
		e.vals[p.ID] = e.fn.Params[i]
		e.types[p.ID] = p.Type
	}

	// the llvm entry block can't be a branch target
	if len(e.g.Preds[0]) != 0 {
		pre := e.fn.NewBlock("entry$")
		defer func() {
			pre.NewBr(e.blocks[f.Blocks[0].Label])
		}()
	}

	for _, bi := range e.g.RPO {
		b := f.Blocks[bi]
		blk := e.fn.NewBlock(b.Label)

		e.blocks[b.Label] = blk

		for _, p := range b.Params {
			phi := &ll.InstPhi{Typ: llType(p.Type)}
			blk.Insts = append(blk.Insts, phi)

			e.phis[b.Label] = append(e.phis[b.Label], phi)
			e.vals[p.ID] = phi
			e.types[p.ID] = p.Type
		}
	}

	for _, bi := range e.g.RPO {
		b := f.Blocks[bi]

		e.cur = e.blocks[b.Label]
		e.label = b.Label
		e.conts = 0

		for i, in := range b.Code {
			if err = e.instr(b, i, in); err != nil {
				return err
			}

			if in.Defines() {
				e.types[in.Result] = in.ResultType()
			}
		}
	}

	for _, ed := range e.edges {
		b := e.f.Blocks[e.g.Index[ed.to.Label]]
		phis := e.phis[ed.to.Label]

		for i, a := range ed.to.Args {
			phis[i].Incs = append(phis[i].Incs, ll.NewIncoming(e.val(a, b.Params[i].Type), ed.from))
		}
	}

	return nil
}

func (e *llvmFunc) instr(b *ir.Block, idx int, in *ir.Instr) error {
	blk := e.cur

	switch in.Op.Class() {
	case ir.ClassIntArith:
		x := e.val(in.Args[0], in.Type)
		y := e.val(in.Args[1], in.Type)

		switch in.Op {
		case ir.SDiv, ir.SRem:
			e.guard(blk.NewICmp(enum.IPredEQ, y, constant.NewInt(llInt(in.Type), 0)), "divzero")
			blk = e.cur
		}

		e.def(in, e.arith(blk, in.Op, in.Type, x, y))
	case ir.ClassFloatArith:
		x := e.val(in.Args[0], ir.F64)
		y := e.val(in.Args[1], ir.F64)

		var r value.Value

		switch in.Op {
		case ir.FAdd:
			r = blk.NewFAdd(x, y)
		case ir.FSub:
			r = blk.NewFSub(x, y)
		case ir.FMul:
			r = blk.NewFMul(x, y)
		case ir.FDiv:
			r = blk.NewFDiv(x, y)
		}

		e.def(in, r)
	case ir.ClassIntCmp:
		e.def(in, blk.NewICmp(icmpPreds[in.Op], e.val(in.Args[0], in.Type), e.val(in.Args[1], in.Type)))
	case ir.ClassFloatCmp:
		e.def(in, blk.NewFCmp(fcmpPreds[in.Op], e.val(in.Args[0], ir.F64), e.val(in.Args[1], ir.F64)))
	case ir.ClassConv:
		e.conv(blk, in)
	case ir.ClassMemory:
		e.memory(blk, in)
	case ir.ClassCall:
		params, _, _ := e.m.Signature(in.Callee)

		args := make([]value.Value, len(in.Args))
		for i, a := range in.Args {
			args[i] = e.val(a, params[i])
		}

		call := blk.NewCall(e.funcs[in.Callee], args...)

		if in.Defines() {
			e.def(in, call)
		}
	case ir.ClassTerm:
		return e.term(b, idx, in)
	}

	return nil
}

func (e *llvmFunc) arith(blk *ll.Block, op ir.Op, t ir.Type, x, y value.Value) value.Value {
	switch op {
	case ir.Add:
		return blk.NewAdd(x, y)
	case ir.Sub:
		return blk.NewSub(x, y)
	case ir.Mul:
		return blk.NewMul(x, y)
	case ir.SDiv:
		return blk.NewSDiv(x, y)
	case ir.SRem:
		return blk.NewSRem(x, y)
	case ir.And:
		return blk.NewAnd(x, y)
	case ir.Or:
		return blk.NewOr(x, y)
	case ir.Xor:
		return blk.NewXor(x, y)
	}

	// shifts are done in 64 bits with the amount masked to 63
	if t != ir.I64 {
		x = blk.NewSExt(x, types.I64)
		y = blk.NewSExt(y, types.I64)
	}

	y = blk.NewAnd(y, constant.NewInt(types.I64, 63))

	var r value.Value

	if op == ir.Shl {
		r = blk.NewShl(x, y)
	} else {
		r = blk.NewAShr(x, y)
	}

	if t != ir.I64 {
		r = blk.NewTrunc(r, llInt(t))
	}

	return r
}

func (e *llvmFunc) conv(blk *ll.Block, in *ir.Instr) {
	a := in.Args[0]
	from := e.typeOf(a)
	x := e.val(a, from)

	switch {
	case in.Op == ir.SIToFP:
		e.def(in, blk.NewSIToFP(x, types.Double))
	case in.Op == ir.FPToSI:
		var r value.Value = blk.NewCall(e.fptosiSat(), x)

		if in.Type != ir.I64 {
			r = blk.NewTrunc(r, llInt(in.Type))
		}

		e.def(in, r)
	case from == in.Type:
		e.vals[in.Result] = x
	case in.Op == ir.SExt:
		e.def(in, blk.NewSExt(x, llType(in.Type)))
	case in.Op == ir.ZExt:
		e.def(in, blk.NewZExt(x, llType(in.Type)))
	case in.Op == ir.Trunc:
		e.def(in, blk.NewTrunc(x, llType(in.Type)))
	}
}

func (e *llvmFunc) memory(blk *ll.Block, in *ir.Instr) {
	switch in.Op {
	case ir.Alloca:
		a := blk.NewAlloca(types.I8)
		a.NElems = e.val(in.Args[0], ir.I64)

		e.def(in, a)
	case ir.Load:
		p := blk.NewBitCast(e.val(in.Args[0], ir.Ptr), types.NewPointer(llType(in.Type)))

		e.def(in, blk.NewLoad(llType(in.Type), p))
	case ir.Store:
		p := blk.NewBitCast(e.val(in.Args[0], ir.Ptr), types.NewPointer(llType(in.Type)))

		blk.NewStore(e.val(in.Args[1], in.Type), p)
	case ir.GEP:
		e.def(in, blk.NewGetElementPtr(types.I8, e.val(in.Args[0], ir.Ptr), e.val(in.Args[1], ir.I64)))
	case ir.IdxChk:
		i := e.val(in.Args[0], ir.I64)
		n := e.val(in.Args[1], ir.I64)

		e.guard(blk.NewICmp(enum.IPredUGE, i, n), "bounds")
	case ir.ConstStr:
		g := e.str(in.Str)
		zero := constant.NewInt(types.I64, 0)

		e.def(in, blk.NewGetElementPtr(g.ContentType, g, zero, zero))
	case ir.ConstNull:
		e.vals[in.Result] = constant.NewNull(i8p)
	}
}

func (e *llvmFunc) term(b *ir.Block, idx int, in *ir.Instr) error {
	blk := e.cur

	switch in.Op {
	case ir.Ret:
		if len(in.Args) == 0 {
			blk.NewRet(nil)
			break
		}

		blk.NewRet(e.val(in.Args[0], e.f.Ret))
	case ir.Br:
		blk.NewBr(e.blocks[in.Targets[0].Label])
		e.edges = append(e.edges, llvmEdge{from: blk, to: in.Targets[0]})
	case ir.CBr:
		then, els := in.Targets[0], in.Targets[1]

		if then.Label == els.Label && len(e.phis[then.Label]) != 0 {
			return unsupported(e.t, e.f, b, idx, in, "conditional branch with both edges to one parameterised block")
		}

		blk.NewCondBr(e.val(in.Args[0], ir.I1), e.blocks[then.Label], e.blocks[els.Label])

		e.edges = append(e.edges, llvmEdge{from: blk, to: then})

		if then.Label != els.Label {
			e.edges = append(e.edges, llvmEdge{from: blk, to: els})
		}
	case ir.Trap:
		blk.NewCall(e.trapFunc())
		blk.NewUnreachable()
	}

	return nil
}

// guard branches to a trap block if cond holds and continues in a new block.
func (e *llvmFunc) guard(cond value.Value, kind string) {
	tb, ok := e.traps[kind]
	if !ok {
		tb = e.fn.NewBlock("trap$" + kind)
		tb.NewCall(e.trapFunc())
		tb.NewUnreachable()

		e.traps[kind] = tb
	}

	e.conts++
	cont := e.fn.NewBlock(e.label + "$" + strconv.Itoa(e.conts))

	e.cur.NewCondBr(cond, tb, cont)
	e.cur = cont
}

func (e *llvmFunc) def(in *ir.Instr, v value.Value) {
	e.vals[in.Result] = v
}

func (e *llvmFunc) val(v ir.Value, t ir.Type) value.Value {
	switch v.Kind {
	case ir.KindTemp:
		return e.vals[v.ID]
	case ir.KindFloat:
		return constant.NewFloat(types.Double, v.Float)
	case ir.KindNull:
		return constant.NewNull(i8p)
	case ir.KindBool:
		return constant.NewInt(types.I1, v.Int)
	}

	if t == ir.F64 {
		return constant.NewFloat(types.Double, float64(v.Int))
	}

	return constant.NewInt(llInt(t), v.Int)
}

func (e *llvmFunc) typeOf(v ir.Value) ir.Type {
	switch v.Kind {
	case ir.KindTemp:
		return e.types[v.ID]
	case ir.KindFloat:
		return ir.F64
	case ir.KindBool:
		return ir.I1
	case ir.KindNull:
		return ir.Ptr
	}

	return ir.I64
}

func (c *llvmModule) trapFunc() *ll.Func {
	if c.trap == nil {
		c.trap = c.out.NewFunc("llvm.trap", types.Void)
	}

	return c.trap
}

func (c *llvmModule) fptosiSat() *ll.Func {
	if c.fptosi == nil {
		c.fptosi = c.out.NewFunc("llvm.fptosi.sat.i64.f64", types.I64, ll.NewParam("", types.Double))
	}

	return c.fptosi
}

// str defines a string literal: 8 byte little endian length followed by the bytes.
func (c *llvmModule) str(s string) *ll.Global {
	if g, ok := c.strs[s]; ok {
		return g
	}

	b := make([]byte, 8, 8+len(s))
	binary.LittleEndian.PutUint64(b, uint64(len(s)))
	b = append(b, s...)

	g := c.out.NewGlobalDef("str."+strconv.Itoa(len(c.strs)), constant.NewCharArray(b))
	g.Immutable = true
	g.Linkage = enum.LinkagePrivate

	c.strs[s] = g

	return g
}

func llType(t ir.Type) types.Type {
	switch t {
	case ir.Void:
		return types.Void
	case ir.F64:
		return types.Double
	case ir.Ptr, ir.Str:
		return i8p
	}

	return llInt(t)
}

func llInt(t ir.Type) *types.IntType {
	switch t {
	case ir.I1:
		return types.I1
	case ir.I16:
		return types.I16
	case ir.I32:
		return types.I32
	}

	return types.I64
}
