package vm

import (
	"math"

	"tlog.app/go/errors"

	"github.com/slowlang/slow/compiler/ir"
	"github.com/slowlang/slow/compiler/rt"
	"github.com/slowlang/slow/compiler/verify"
)

type (
	// program is a module decoded for execution. It's immutable and shared by runs.
	program struct {
		funcs  []*function
		byName map[string]*function

		// strs are const_str literals, interned per run.
		strs []string
	}

	function struct {
		name   string
		f      *ir.Func
		nregs  int
		params []int32
		blocks []*block
	}

	block struct {
		fn     *function
		label  string
		params []int32

		code   []inst
		thunks []handler
	}

	// operand is a register index or, with reg < 0, constant bits.
	operand struct {
		reg int32
		k   uint64
	}

	edge struct {
		to   *block
		args []operand
	}

	inst struct {
		op   ir.Op
		typ  ir.Type
		from ir.Type // source type of conversions
		dst  int32

		a, b operand
		args []operand
		narg int

		fn  *function
		ext rt.Func

		t, f *edge

		lit  int
		kind TrapKind
		msg  string

		blk *block
		idx int
		pos ir.Pos
	}
)

func load(v *verify.Verified) (p *program, err error) {
	m := v.Module()

	p = &program{
		byName: make(map[string]*function, len(m.Funcs)),
	}

	for _, f := range m.Funcs {
		fn := &function{
			name:  f.Name,
			f:     f,
			nregs: int(f.NextID),
		}

		for _, prm := range f.Params {
			fn.params = append(fn.params, int32(prm.ID))
		}

		p.funcs = append(p.funcs, fn)
		p.byName[f.Name] = fn
	}

	exts := map[string]rt.Func{}

	for _, e := range m.Externs {
		impl, ok := rt.Resolve(e.Name)
		if !ok {
			return nil, errors.New("unresolved extern @%s", e.Name)
		}

		sig, _ := rt.Lookup(e.Name)
		if !sameSig(sig, e) {
			return nil, errors.New("extern @%s does not match the runtime signature", e.Name)
		}

		exts[e.Name] = impl
	}

	for _, fn := range p.funcs {
		err = p.decodeFunc(fn, exts)
		if err != nil {
			return nil, errors.Wrap(err, "func @%s", fn.name)
		}
	}

	return p, nil
}

func (p *program) decodeFunc(fn *function, exts map[string]rt.Func) error {
	f := fn.f
	idx := f.BlockIndex()
	regs := regTypes(f)

	for _, b := range f.Blocks {
		blk := &block{fn: fn, label: b.Label}

		for _, prm := range b.Params {
			blk.params = append(blk.params, int32(prm.ID))
		}

		fn.blocks = append(fn.blocks, blk)
	}

	edgeTo := func(t ir.Target) *edge {
		e := &edge{to: fn.blocks[idx[t.Label]]}

		for _, a := range t.Args {
			e.args = append(e.args, operandOf(a))
		}

		return e
	}

	for bi, b := range f.Blocks {
		blk := fn.blocks[bi]
		blk.code = make([]inst, len(b.Code))
		blk.thunks = make([]handler, len(b.Code))

		for i, src := range b.Code {
			in := &blk.code[i]

			*in = inst{
				op:   src.Op,
				typ:  src.Type,
				dst:  -1,
				a:    operand{reg: -1},
				b:    operand{reg: -1},
				narg: len(src.Args),
				blk:  blk,
				idx:  i,
				pos:  src.Loc,
			}

			if src.Defines() {
				in.dst = int32(src.Result)
			}

			if len(src.Args) > 0 {
				in.a = operandOf(src.Args[0])
				in.from = ir.I64

				if src.Args[0].IsTemp() {
					in.from = regs[src.Args[0].ID]
				}
			}

			if len(src.Args) > 1 {
				in.b = operandOf(src.Args[1])
			}

			switch src.Op {
			case ir.Call:
				for _, a := range src.Args {
					in.args = append(in.args, operandOf(a))
				}

				if callee, ok := p.byName[src.Callee]; ok {
					in.fn = callee
				} else if impl, ok := exts[src.Callee]; ok {
					in.ext = impl
				} else {
					return errors.New("%v[%d]: unresolved callee @%s", b.Label, i, src.Callee)
				}
			case ir.Br:
				in.t = edgeTo(src.Targets[0])
			case ir.CBr:
				in.t = edgeTo(src.Targets[0])
				in.f = edgeTo(src.Targets[1])
			case ir.ConstStr:
				in.lit = len(p.strs)
				p.strs = append(p.strs, src.Str)
			case ir.Trap:
				in.kind = TrapKindOf(src.Str)
				in.msg = src.Str
			}

			blk.thunks[i] = compileThunk(in)
		}
	}

	return nil
}

func regTypes(f *ir.Func) map[ir.ValueID]ir.Type {
	m := map[ir.ValueID]ir.Type{}

	for _, p := range f.Params {
		m[p.ID] = p.Type
	}

	for _, b := range f.Blocks {
		for _, p := range b.Params {
			m[p.ID] = p.Type
		}

		for _, in := range b.Code {
			if in.Defines() {
				m[in.Result] = in.ResultType()
			}
		}
	}

	return m
}

func operandOf(v ir.Value) operand {
	switch v.Kind {
	case ir.KindTemp:
		return operand{reg: int32(v.ID)}
	case ir.KindFloat:
		return operand{reg: -1, k: math.Float64bits(v.Float)}
	default: // int, bool, null
		return operand{reg: -1, k: uint64(v.Int)}
	}
}

func sameSig(s rt.Sig, e *ir.Extern) bool {
	if s.Ret != e.Ret || len(s.Params) != len(e.Params) {
		return false
	}

	for i := range s.Params {
		if s.Params[i] != e.Params[i] {
			return false
		}
	}

	return true
}
