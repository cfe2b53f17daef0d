package lower

import (
	"github.com/slowlang/slow/compiler/ast"
	"github.com/slowlang/slow/compiler/ir"
	"github.com/slowlang/slow/compiler/tp"
)

// expr lowers x and returns its value. Operands are evaluated left to right.
func (c *Context) expr(x ast.Expr) ir.Value {
	fn := c.fn

	switch x := x.(type) {
	case *ast.IntLit:
		return ir.Int(x.Value)
	case *ast.FloatLit:
		return ir.Float(x.Value)
	case *ast.BoolLit:
		return ir.Bool(x.Value)
	case *ast.StrLit:
		c.at(x.Pos)
		return fn.b.ConstStr(x.Value)
	case *ast.NilLit:
		return ir.Null()
	case *ast.VarRef:
		return c.readVar(x.Pos, x.Var)
	case *ast.Unary:
		return c.unary(x)
	case *ast.Binary:
		if x.Op.IsLogic() {
			return c.logic(x)
		}

		return c.binary(x)
	case *ast.Call:
		cl := c.resolve(x.Pos, x.Func)
		args := c.args(x.Args)

		return c.call(x.Pos, cl, args)
	case *ast.MethodCall:
		cl := c.resolve(x.Pos, x.Method)
		recv := c.expr(x.Recv)
		args := append([]ir.Value{recv}, c.args(x.Args)...)

		return c.call(x.Pos, cl, args)
	case *ast.Index:
		m := c.meta(x.X)
		if !m.Array {
			c.fail(x.Pos, "index of %v", m.Type)
		}

		p := c.elemAddr(x, m)

		c.at(x.Pos)

		return fn.b.Load(m.ElemIR, p)
	case *ast.FieldRef:
		base := c.expr(x.X)
		sl := c.slot(x)

		c.at(x.Pos)
		p := fn.b.GEP(base, ir.Int(int64(sl.Offset)))

		return fn.b.Load(sl.Meta.IR, p)
	case *ast.AddrOf:
		s := c.lookup(x.Var)
		if s.Class == ast.Register {
			c.fail(x.Pos, "address of register variable %v", x.Var.Name)
		}

		return s.Addr
	case *ast.Deref:
		m := c.meta(x.X)
		if m.Elem == nil {
			c.fail(x.Pos, "dereference of %v", m.Type)
		}

		p := c.expr(x.X)

		c.at(x.Pos)

		return fn.b.Load(m.ElemIR, p)
	case *ast.Convert:
		return c.convert(x)
	case *ast.Len:
		v := c.expr(x.X)

		c.at(x.Pos)

		switch t := x.X.Type().(type) {
		case tp.String:
			sig := c.runtime(x.Pos, "rt_str_len")
			return fn.b.Call(sig.Ret, sig.Name, v)
		case tp.Array:
			return fn.b.Load(ir.I64, v)
		default:
			c.fail(x.Pos, "len of %v", t)
		}
	case *ast.MakeArray:
		n := c.expr(x.Len)
		n = c.widen(x.Len.Type(), n)
		m := describe(x.T)

		c.at(x.Pos)
		sig := c.runtime(x.Pos, "rt_array_new")

		return fn.b.Call(sig.Ret, sig.Name, n, ir.Int(int64(m.ElemSize)))
	case *ast.New:
		c.layout(x.Class)

		c.at(x.Pos)
		sig := c.runtime(x.Pos, "rt_alloc")

		return fn.b.Call(sig.Ret, sig.Name, ir.Int(int64(x.Class.Size())))
	}

	c.fail(x.Position(), "unsupported expression %T", x)

	return ir.Value{}
}

func (c *Context) args(l []ast.Expr) []ir.Value {
	r := make([]ir.Value, len(l))

	for i, a := range l {
		r[i] = c.expr(a)
	}

	return r
}

func (c *Context) call(pos ast.Pos, cl *callee, args []ir.Value) ir.Value {
	if len(args) != len(cl.params) {
		c.fail(pos, "call of %v with %d arguments, want %d", cl.name, len(args), len(cl.params))
	}

	c.at(pos)
	v := c.fn.b.Call(cl.ret, cl.name, args...)

	c.release()

	return v
}

// meta returns the storage metadata of the location x denotes.
// Variables and fields come from their table entry, anything else from its type.
func (c *Context) meta(x ast.Expr) Meta {
	switch x := x.(type) {
	case *ast.VarRef:
		return c.lookup(x.Var).Meta
	case *ast.FieldRef:
		return c.slot(x).Meta
	}

	return describe(x.Type())
}

func (c *Context) slot(x *ast.FieldRef) Slot {
	m := c.meta(x.X)
	if m.Class == nil {
		c.fail(x.Pos, "field %v of %v", x.Name, m.Type)
	}

	return c.field(x.Pos, m.Class, x.Name)
}

// elemAddr computes the bounds checked address of an array element.
//
//	n = load i64 base
//	idxchk i, n
//	p = gep base, 8 + i*size
func (c *Context) elemAddr(x *ast.Index, m Meta) ir.Value {
	fn := c.fn

	key, cached := c.fetchKey(x)
	if cached {
		if p, ok := fn.fetch[key]; ok {
			return p
		}
	}

	base := c.expr(x.X)
	i := c.expr(x.Index)
	i = c.widen(x.Index.Type(), i)

	c.at(x.Pos)

	n := fn.b.Load(ir.I64, base)
	fn.b.IdxChk(i, n)

	var off ir.Value

	if i.IsConst() {
		off = ir.Int(8 + i.Int*int64(m.ElemSize))
	} else {
		off = fn.b.Binary(ir.Mul, ir.I64, i, ir.Int(int64(m.ElemSize)))
		off = fn.b.Binary(ir.Add, ir.I64, off, ir.Int(8))
	}

	p := fn.b.GEP(base, off)

	if cached {
		fn.fetch[key] = p
	}

	return p
}

func (c *Context) fetchKey(x *ast.Index) (fetchKey, bool) {
	a, ok := x.X.(*ast.VarRef)
	if !ok || c.lookup(a.Var).Class != ast.Register {
		return fetchKey{}, false
	}

	i, ok := x.Index.(*ast.VarRef)
	if !ok || c.lookup(i.Var).Class != ast.Register {
		return fetchKey{}, false
	}

	return fetchKey{arr: a.Var, idx: i.Var}, true
}

func (c *Context) unary(x *ast.Unary) ir.Value {
	fn := c.fn
	v := c.expr(x.X)
	t := x.X.Type()

	c.at(x.Pos)

	switch {
	case x.Op == ast.Neg && tp.IsInt(t):
		return fn.b.Binary(ir.Sub, t.IR(), ir.Int(0), v)
	case x.Op == ast.Neg && tp.IsFloat(t):
		return fn.b.Binary(ir.FMul, ir.F64, v, ir.Float(-1))
	case x.Op == ast.Not && t.IR() == ir.I1:
		return fn.b.Binary(ir.Xor, ir.I1, v, ir.Bool(true))
	case x.Op == ast.BitNot && tp.IsInt(t):
		return fn.b.Binary(ir.Xor, t.IR(), v, ir.Int(-1))
	}

	c.fail(x.Pos, "operator %v on %v", x.Op, t)

	return ir.Value{}
}

var (
	intOps = map[ast.BinOp]ir.Op{
		ast.Add: ir.Add, ast.Sub: ir.Sub, ast.Mul: ir.Mul, ast.Div: ir.SDiv, ast.Rem: ir.SRem,
		ast.And: ir.And, ast.Or: ir.Or, ast.Xor: ir.Xor, ast.Shl: ir.Shl, ast.Shr: ir.AShr,

		ast.Eq: ir.ICmpEq, ast.Ne: ir.ICmpNe,
		ast.Lt: ir.SCmpLt, ast.Le: ir.SCmpLe, ast.Gt: ir.SCmpGt, ast.Ge: ir.SCmpGe,
	}

	floatOps = map[ast.BinOp]ir.Op{
		ast.Add: ir.FAdd, ast.Sub: ir.FSub, ast.Mul: ir.FMul, ast.Div: ir.FDiv,

		ast.Eq: ir.FCmpEq, ast.Ne: ir.FCmpNe,
		ast.Lt: ir.FCmpLt, ast.Le: ir.FCmpLe, ast.Gt: ir.FCmpGt, ast.Ge: ir.FCmpGe,
	}
)

func (c *Context) binary(x *ast.Binary) ir.Value {
	fn := c.fn
	t := x.X.Type()

	l := c.expr(x.X)
	r := c.expr(x.Y)

	c.at(x.Pos)

	switch t := t.(type) {
	case tp.Int:
		op, ok := intOps[x.Op]
		if !ok {
			break
		}

		if x.Op == ast.Shl || x.Op == ast.Shr {
			if yt, ok := x.Y.Type().(tp.Int); ok {
				r = c.resize(yt, t, r)
			}
		}

		return fn.b.Binary(op, t.IR(), l, r)
	case tp.Float:
		op, ok := floatOps[x.Op]
		if !ok {
			break
		}

		return fn.b.Binary(op, ir.F64, l, r)
	case tp.String:
		return c.strOp(x, l, r)
	}

	if x.Op != ast.Eq && x.Op != ast.Ne {
		c.fail(x.Pos, "operator %v on %v", x.Op, t)
	}

	if it := t.IR(); it == ir.I1 || it == ir.Ptr {
		return fn.b.Cmp(intOps[x.Op], it, l, r)
	}

	c.fail(x.Pos, "comparison of %v", t)

	return ir.Value{}
}

func (c *Context) strOp(x *ast.Binary, l, r ir.Value) ir.Value {
	fn := c.fn

	switch x.Op {
	case ast.Add:
		sig := c.runtime(x.Pos, "rt_str_concat")
		return fn.b.Call(sig.Ret, sig.Name, l, r)
	case ast.Eq, ast.Ne:
		sig := c.runtime(x.Pos, "rt_str_eq")
		eq := fn.b.Call(sig.Ret, sig.Name, l, r)

		if x.Op == ast.Ne {
			return fn.b.Binary(ir.Xor, ir.I1, eq, ir.Bool(true))
		}

		return eq
	}

	c.fail(x.Pos, "operator %v on strings", x.Op)

	return ir.Value{}
}

// logic lowers && and || with short circuit evaluation.
//
//	cbr l, rhs, end(false)     ; &&
//	rhs: r = ...; br end(r)
//	end(%v: i1):
func (c *Context) logic(x *ast.Binary) ir.Value {
	fn := c.fn

	l := c.expr(x.X)

	rhs := c.newBlock("logic.rhs")
	end := c.newBlock("logic.end")
	v := fn.f.AddParam(end, ir.I1)

	c.at(x.Pos)

	if x.Op == ast.LAnd {
		c.cbr(l, rhs, nil, end, []ir.Value{ir.Bool(false)})
	} else {
		c.cbr(l, end, []ir.Value{ir.Bool(true)}, rhs, nil)
	}

	c.seal(rhs)
	c.enter(rhs)

	r := c.expr(x.Y)

	c.at(x.Pos)
	c.br(end, r)

	c.seal(end)
	c.enter(end)

	return v
}

func (c *Context) convert(x *ast.Convert) ir.Value {
	fn := c.fn
	from, to := x.X.Type(), x.T

	v := c.expr(x.X)

	c.at(x.Pos)

	switch f := from.(type) {
	case tp.Int:
		switch t := to.(type) {
		case tp.Int:
			return c.resize(f, t, v)
		case tp.Float:
			return fn.b.Conv(ir.SIToFP, ir.F64, v)
		case tp.String:
			sig := c.runtime(x.Pos, "rt_str_from_i64")
			return fn.b.Call(sig.Ret, sig.Name, c.widen(f, v))
		}
	case tp.Float:
		switch t := to.(type) {
		case tp.Int:
			return fn.b.Conv(ir.FPToSI, t.IR(), v)
		case tp.Float:
			return v
		case tp.String:
			sig := c.runtime(x.Pos, "rt_str_from_f64")
			return fn.b.Call(sig.Ret, sig.Name, v)
		}
	case tp.Bool:
		if t, ok := to.(tp.Int); ok {
			if v.IsConst() {
				return ir.Int(v.Int)
			}

			return fn.b.Conv(ir.ZExt, t.IR(), v)
		}
	}

	if tp.Identical(from, to) {
		return v
	}

	c.fail(x.Pos, "conversion from %v to %v", from, to)

	return ir.Value{}
}

// widen sign extends an integer to i64.
func (c *Context) widen(t tp.Type, v ir.Value) ir.Value {
	it, ok := t.(tp.Int)
	if !ok {
		c.fail(ast.Pos{}, "widen of %v", t)
	}

	return c.resize(it, tp.Int64, v)
}

func (c *Context) resize(from, to tp.Int, v ir.Value) ir.Value {
	if v.IsConst() {
		return ir.Int(truncate(v.Int, to.Bits))
	}

	switch {
	case from.Bits < to.Bits:
		return c.fn.b.Conv(ir.SExt, to.IR(), v)
	case from.Bits > to.Bits:
		return c.fn.b.Conv(ir.Trunc, to.IR(), v)
	}

	return v
}

func truncate(x int64, bits int16) int64 {
	switch bits {
	case 16:
		return int64(int16(x))
	case 32:
		return int64(int32(x))
	}

	return x
}
