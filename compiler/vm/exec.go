package vm

import (
	"context"
	"math"
	"time"

	"tlog.app/go/errors"

	"github.com/slowlang/slow/compiler/ir"
	"github.com/slowlang/slow/compiler/rt"
)

type (
	exec struct {
		ctx  context.Context
		cfg  *Config
		prog *program

		rt *rt.Runtime

		stack []*frame
		fr    *frame

		strs []uint64

		steps int64
		poll  int

		prof *Profile

		result uint64
		done   bool

		buf []uint64
	}

	frame struct {
		fn   *function
		regs []uint64

		blk *block
		pc  int

		// ret is the caller register receiving the result.
		ret int32

		allocas []uint64

		start time.Time
	}
)

func newExec(ctx context.Context, m *Machine, p *program) *exec {
	x := &exec{
		ctx:  ctx,
		cfg:  &m.cfg,
		prog: p,
		rt:   rt.New(m.cfg.Out),
		poll: m.cfg.PollEvery,
	}

	x.rt.Heap.Limit = m.cfg.HeapLimit

	if m.cfg.Profile {
		x.prof = newProfile()
	}

	x.strs = make([]uint64, len(p.strs))

	for i, s := range p.strs {
		x.strs[i] = x.rt.Strings.Static(s)
	}

	return x
}

func (x *exec) run(fn *function, args []uint64) (uint64, error) {
	fr := x.push(fn, -1)

	for i, r := range fn.params {
		fr.regs[r] = args[i]
	}

	var err error

	switch x.cfg.Dispatch {
	case DispatchTable:
		err = x.runTable()
	case DispatchThreaded:
		err = x.runThreaded()
	default:
		err = x.runSwitch()
	}

	if err != nil {
		for len(x.stack) != 0 {
			x.pop()
		}

		return 0, err
	}

	return x.result, nil
}

// tick accounts one instruction and polls for cancellation.
func (x *exec) tick(in *inst) error {
	x.steps++

	if x.cfg.MaxSteps > 0 && x.steps > x.cfg.MaxSteps {
		return x.trap(in, StepLimit, "step limit %d exceeded", x.cfg.MaxSteps)
	}

	x.poll--

	if x.poll <= 0 {
		x.poll = x.cfg.PollEvery

		if err := x.ctx.Err(); err != nil {
			t := x.trap(in, Interrupted, "%v", err)
			t.Err = err

			return t
		}

		if x.cfg.Stop != nil && x.cfg.Stop() {
			return x.trap(in, Interrupted, "stopped by host")
		}
	}

	if x.prof != nil {
		x.prof.Ops[in.op]++
	}

	return nil
}

func (x *exec) push(fn *function, ret int32) *frame {
	fr := &frame{
		fn:   fn,
		regs: make([]uint64, fn.nregs),
		blk:  fn.blocks[0],
		ret:  ret,
	}

	if x.prof != nil {
		x.prof.fn(fn.name).Calls++
		fr.start = time.Now()
	}

	x.stack = append(x.stack, fr)
	x.fr = fr

	return fr
}

func (x *exec) pop() *frame {
	fr := x.fr

	for _, p := range fr.allocas {
		_ = x.rt.Heap.Free(p)
	}

	if x.prof != nil {
		x.prof.fn(fr.fn.name).Time += time.Since(fr.start)
	}

	x.stack = x.stack[:len(x.stack)-1]
	x.fr = nil

	if len(x.stack) != 0 {
		x.fr = x.stack[len(x.stack)-1]
	}

	return fr
}

func (x *exec) val(o operand) uint64 {
	if o.reg >= 0 {
		return x.fr.regs[o.reg]
	}

	return o.k
}

func (x *exec) set(r int32, v uint64) {
	x.fr.regs[r] = v
}

// norm brings raw bits to the canonical form of t.
func norm(t ir.Type, v uint64) uint64 {
	switch t {
	case ir.I1:
		return v & 1
	case ir.I16:
		return uint64(int64(int16(v)))
	case ir.I32:
		return uint64(int64(int32(v)))
	}

	return v
}

func (x *exec) intArith(in *inst) error {
	a, b := int64(x.val(in.a)), int64(x.val(in.b))

	var r int64

	switch in.op {
	case ir.Add:
		r = a + b
	case ir.Sub:
		r = a - b
	case ir.Mul:
		r = a * b
	case ir.SDiv, ir.SRem:
		if b == 0 {
			return x.trap(in, DivideByZero, "integer division by zero")
		}

		if in.op == ir.SDiv {
			r = a / b
		} else {
			r = a % b
		}
	case ir.And:
		r = a & b
	case ir.Or:
		r = a | b
	case ir.Xor:
		r = a ^ b
	case ir.Shl:
		r = a << (uint64(b) & 63)
	case ir.AShr:
		r = a >> (uint64(b) & 63)
	default:
		return x.malformed(in)
	}

	x.set(in.dst, norm(in.typ, uint64(r)))

	return nil
}

func (x *exec) floatArith(in *inst) error {
	a, b := math.Float64frombits(x.val(in.a)), math.Float64frombits(x.val(in.b))

	var r float64

	switch in.op {
	case ir.FAdd:
		r = a + b
	case ir.FSub:
		r = a - b
	case ir.FMul:
		r = a * b
	case ir.FDiv:
		r = a / b
	default:
		return x.malformed(in)
	}

	x.set(in.dst, math.Float64bits(r))

	return nil
}

func (x *exec) intCmp(in *inst) error {
	a, b := x.val(in.a), x.val(in.b)

	var r bool

	switch in.op {
	case ir.ICmpEq:
		r = a == b
	case ir.ICmpNe:
		r = a != b
	case ir.SCmpLt:
		r = int64(a) < int64(b)
	case ir.SCmpLe:
		r = int64(a) <= int64(b)
	case ir.SCmpGt:
		r = int64(a) > int64(b)
	case ir.SCmpGe:
		r = int64(a) >= int64(b)
	default:
		return x.malformed(in)
	}

	x.set(in.dst, b2u(r))

	return nil
}

func (x *exec) floatCmp(in *inst) error {
	a, b := math.Float64frombits(x.val(in.a)), math.Float64frombits(x.val(in.b))

	var r bool

	switch in.op {
	case ir.FCmpEq:
		r = a == b
	case ir.FCmpNe:
		r = a != b
	case ir.FCmpLt:
		r = a < b
	case ir.FCmpLe:
		r = a <= b
	case ir.FCmpGt:
		r = a > b
	case ir.FCmpGe:
		r = a >= b
	default:
		return x.malformed(in)
	}

	x.set(in.dst, b2u(r))

	return nil
}

func (x *exec) conv(in *inst) error {
	v := x.val(in.a)

	switch in.op {
	case ir.SIToFP:
		v = math.Float64bits(float64(int64(v)))
	case ir.FPToSI:
		v = uint64(saturate(in.typ, math.Float64frombits(v)))
	case ir.SExt:
	case ir.ZExt:
		switch in.from {
		case ir.I1:
			v &= 1
		case ir.I16:
			v &= math.MaxUint16
		case ir.I32:
			v &= math.MaxUint32
		}
	case ir.Trunc:
		v = norm(in.typ, v)
	default:
		return x.malformed(in)
	}

	x.set(in.dst, v)

	return nil
}

// saturate converts like fcvtzs does: NaN is 0, out of range values clamp.
func saturate(t ir.Type, f float64) int64 {
	lo, hi := int64(math.MinInt64), int64(math.MaxInt64)

	switch t {
	case ir.I16:
		lo, hi = math.MinInt16, math.MaxInt16
	case ir.I32:
		lo, hi = math.MinInt32, math.MaxInt32
	}

	switch {
	case math.IsNaN(f):
		return 0
	case f <= float64(lo):
		return lo
	case f >= float64(hi):
		return hi
	}

	return int64(f)
}

func (x *exec) alloca(in *inst) error {
	p, err := x.rt.Heap.Alloc(int64(x.val(in.a)))
	if err != nil {
		return x.fault(in, err)
	}

	x.fr.allocas = append(x.fr.allocas, p)
	x.set(in.dst, p)

	return nil
}

func (x *exec) load(in *inst) error {
	v, err := x.rt.Heap.Load(x.val(in.a), in.typ.Size())
	if err != nil {
		return x.fault(in, err)
	}

	x.set(in.dst, norm(in.typ, v))

	return nil
}

func (x *exec) store(in *inst) error {
	err := x.rt.Heap.Store(x.val(in.a), in.typ.Size(), x.val(in.b))
	if err != nil {
		return x.fault(in, err)
	}

	return nil
}

func (x *exec) gep(in *inst) error {
	x.set(in.dst, rt.Offset(x.val(in.a), int64(x.val(in.b))))

	return nil
}

func (x *exec) idxchk(in *inst) error {
	i, n := int64(x.val(in.a)), int64(x.val(in.b))

	if i < 0 || i >= n {
		return x.trap(in, Bounds, "index %d out of range [0:%d]", i, n)
	}

	return nil
}

func (x *exec) constStr(in *inst) error {
	x.set(in.dst, x.strs[in.lit])
	return nil
}

func (x *exec) constNull(in *inst) error {
	x.set(in.dst, 0)
	return nil
}

func (x *exec) call(in *inst) error {
	if in.ext != nil {
		args := x.buf[:0]

		for _, o := range in.args {
			args = append(args, x.val(o))
		}

		x.buf = args

		r, err := in.ext(x.rt, args)
		if err != nil {
			return x.fault(in, err)
		}

		if in.dst >= 0 {
			x.set(in.dst, norm(in.typ, r))
		}

		return nil
	}

	if len(x.stack) >= x.cfg.MaxDepth {
		return x.trap(in, StackOverflow, "call depth %d exceeded", x.cfg.MaxDepth)
	}

	caller := x.fr
	fr := x.push(in.fn, in.dst)

	for i, o := range in.args {
		var v uint64

		if o.reg >= 0 {
			v = caller.regs[o.reg]
		} else {
			v = o.k
		}

		fr.regs[in.fn.params[i]] = v
	}

	return nil
}

func (x *exec) ret(in *inst) error {
	var v uint64
	if in.narg != 0 {
		v = x.val(in.a)
	}

	fr := x.pop()

	if x.fr == nil {
		x.result = v
		x.done = true

		return nil
	}

	if fr.ret >= 0 {
		x.set(fr.ret, v)
	}

	return nil
}

func (x *exec) br(in *inst) error {
	x.jump(in.t)
	return nil
}

func (x *exec) cbr(in *inst) error {
	if x.val(in.a) != 0 {
		x.jump(in.t)
	} else {
		x.jump(in.f)
	}

	return nil
}

// jump evaluates all branch arguments before assigning block parameters.
func (x *exec) jump(e *edge) {
	fr := x.fr

	if len(e.args) != 0 {
		vals := x.buf[:0]

		for _, o := range e.args {
			vals = append(vals, x.val(o))
		}

		for i, r := range e.to.params {
			fr.regs[r] = vals[i]
		}

		x.buf = vals
	}

	fr.blk = e.to
	fr.pc = 0
}

func (x *exec) trapInstr(in *inst) error {
	return x.trap(in, in.kind, "trap %s", in.msg)
}

func (x *exec) malformed(in *inst) error {
	return x.trap(in, Malformed, "unexpected %v", in.op)
}

// fault converts a runtime library error into a trap.
func (x *exec) fault(in *inst, err error) error {
	kind := RuntimeFault

	switch {
	case errors.Is(err, rt.ErrNullPointer):
		kind = NullPointer
	case errors.Is(err, rt.ErrInvalidPointer), errors.Is(err, rt.ErrInvalidString):
		kind = InvalidPointer
	case errors.Is(err, rt.ErrBounds):
		kind = Bounds
	case errors.Is(err, rt.ErrOutOfMemory):
		kind = OutOfMemory
	}

	t := x.trap(in, kind, "%v", err)
	t.Err = err

	return t
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}

	return 0
}
