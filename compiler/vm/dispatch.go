package vm

import "github.com/slowlang/slow/compiler/ir"

type handler func(x *exec, in *inst) error

// opTable is indexed by opcode.
var opTable [ir.NumOps]handler

func init() {
	for op := ir.Op(0); op < ir.NumOps; op++ {
		opTable[op] = (*exec).malformed
	}

	for _, op := range []ir.Op{ir.Add, ir.Sub, ir.Mul, ir.SDiv, ir.SRem, ir.And, ir.Or, ir.Xor, ir.Shl, ir.AShr} {
		opTable[op] = (*exec).intArith
	}

	for _, op := range []ir.Op{ir.FAdd, ir.FSub, ir.FMul, ir.FDiv} {
		opTable[op] = (*exec).floatArith
	}

	for _, op := range []ir.Op{ir.ICmpEq, ir.ICmpNe, ir.SCmpLt, ir.SCmpLe, ir.SCmpGt, ir.SCmpGe} {
		opTable[op] = (*exec).intCmp
	}

	for _, op := range []ir.Op{ir.FCmpEq, ir.FCmpNe, ir.FCmpLt, ir.FCmpLe, ir.FCmpGt, ir.FCmpGe} {
		opTable[op] = (*exec).floatCmp
	}

	for _, op := range []ir.Op{ir.SIToFP, ir.FPToSI, ir.SExt, ir.ZExt, ir.Trunc} {
		opTable[op] = (*exec).conv
	}

	opTable[ir.Alloca] = (*exec).alloca
	opTable[ir.Load] = (*exec).load
	opTable[ir.Store] = (*exec).store
	opTable[ir.GEP] = (*exec).gep
	opTable[ir.ConstStr] = (*exec).constStr
	opTable[ir.ConstNull] = (*exec).constNull
	opTable[ir.IdxChk] = (*exec).idxchk
	opTable[ir.Call] = (*exec).call
	opTable[ir.Br] = (*exec).br
	opTable[ir.CBr] = (*exec).cbr
	opTable[ir.Ret] = (*exec).ret
	opTable[ir.Trap] = (*exec).trapInstr
}

func (x *exec) runTable() error {
	for !x.done {
		fr := x.fr
		in := &fr.blk.code[fr.pc]
		fr.pc++

		if err := x.tick(in); err != nil {
			return err
		}

		if err := opTable[in.op](x, in); err != nil {
			return err
		}
	}

	return nil
}

func (x *exec) runSwitch() error {
	for !x.done {
		fr := x.fr
		in := &fr.blk.code[fr.pc]
		fr.pc++

		if err := x.tick(in); err != nil {
			return err
		}

		var err error

		switch in.op {
		case ir.Add:
			fr.regs[in.dst] = norm(in.typ, x.val(in.a)+x.val(in.b))
		case ir.Sub:
			fr.regs[in.dst] = norm(in.typ, x.val(in.a)-x.val(in.b))
		case ir.Mul, ir.SDiv, ir.SRem, ir.And, ir.Or, ir.Xor, ir.Shl, ir.AShr:
			err = x.intArith(in)
		case ir.FAdd, ir.FSub, ir.FMul, ir.FDiv:
			err = x.floatArith(in)
		case ir.ICmpEq, ir.ICmpNe, ir.SCmpLt, ir.SCmpLe, ir.SCmpGt, ir.SCmpGe:
			err = x.intCmp(in)
		case ir.FCmpEq, ir.FCmpNe, ir.FCmpLt, ir.FCmpLe, ir.FCmpGt, ir.FCmpGe:
			err = x.floatCmp(in)
		case ir.SIToFP, ir.FPToSI, ir.SExt, ir.ZExt, ir.Trunc:
			err = x.conv(in)
		case ir.Alloca:
			err = x.alloca(in)
		case ir.Load:
			err = x.load(in)
		case ir.Store:
			err = x.store(in)
		case ir.GEP:
			err = x.gep(in)
		case ir.ConstStr:
			err = x.constStr(in)
		case ir.ConstNull:
			fr.regs[in.dst] = 0
		case ir.IdxChk:
			err = x.idxchk(in)
		case ir.Call:
			err = x.call(in)
		case ir.Br:
			x.jump(in.t)
		case ir.CBr:
			err = x.cbr(in)
		case ir.Ret:
			err = x.ret(in)
		case ir.Trap:
			err = x.trapInstr(in)
		default:
			err = x.malformed(in)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// runThreaded executes instructions pre-decoded into closures.
func (x *exec) runThreaded() error {
	for !x.done {
		fr := x.fr
		blk := fr.blk
		pc := fr.pc
		in := &blk.code[pc]
		fr.pc++

		if err := x.tick(in); err != nil {
			return err
		}

		if err := blk.thunks[pc](x, in); err != nil {
			return err
		}
	}

	return nil
}

// compileThunk specializes the common register forms.
func compileThunk(in *inst) handler {
	rr := in.a.reg >= 0 && in.b.reg >= 0
	rk := in.a.reg >= 0 && in.b.reg < 0
	a, b, dst, t := in.a.reg, in.b.reg, in.dst, in.typ
	k := in.b.k

	switch {
	case in.op == ir.Add && rr:
		return func(x *exec, _ *inst) error {
			r := x.fr.regs
			r[dst] = norm(t, r[a]+r[b])
			return nil
		}
	case in.op == ir.Add && rk:
		return func(x *exec, _ *inst) error {
			r := x.fr.regs
			r[dst] = norm(t, r[a]+k)
			return nil
		}
	case in.op == ir.Sub && rr:
		return func(x *exec, _ *inst) error {
			r := x.fr.regs
			r[dst] = norm(t, r[a]-r[b])
			return nil
		}
	case in.op == ir.Sub && rk:
		return func(x *exec, _ *inst) error {
			r := x.fr.regs
			r[dst] = norm(t, r[a]-k)
			return nil
		}
	case in.op == ir.Mul && rr:
		return func(x *exec, _ *inst) error {
			r := x.fr.regs
			r[dst] = norm(t, r[a]*r[b])
			return nil
		}
	case in.op == ir.SCmpLt && rr:
		return func(x *exec, _ *inst) error {
			r := x.fr.regs
			r[dst] = b2u(int64(r[a]) < int64(r[b]))
			return nil
		}
	case in.op == ir.SCmpLe && rk:
		return func(x *exec, _ *inst) error {
			r := x.fr.regs
			r[dst] = b2u(int64(r[a]) <= int64(k))
			return nil
		}
	case in.op == ir.Br && len(in.t.args) == 0:
		to := in.t.to

		return func(x *exec, _ *inst) error {
			x.fr.blk, x.fr.pc = to, 0
			return nil
		}
	}

	return opTable[in.op]
}
