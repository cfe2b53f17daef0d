package lower

import (
	"github.com/slowlang/slow/compiler/ast"
	"github.com/slowlang/slow/compiler/ir"
	"github.com/slowlang/slow/compiler/tp"
)

// block lowers statements until the current block is terminated.
// Statements after a return, break or continue are dead and skipped.
func (c *Context) block(b *ast.Block) {
	if b == nil {
		return
	}

	for _, s := range b.Stmts {
		if c.terminated() {
			return
		}

		c.stmt(s)
	}
}

func (c *Context) stmt(s ast.Stmt) {
	fn := c.fn

	switch s := s.(type) {
	case *ast.Block:
		c.block(s)
	case *ast.VarDecl:
		var x ir.Value

		if s.Init != nil {
			x = c.expr(s.Init)
		} else {
			x = c.zero(s.Pos, s.Var.Type)
		}

		c.at(s.Pos)
		c.bind(s.Var, x)
	case *ast.Assign:
		c.assign(s)
	case *ast.ExprStmt:
		c.expr(s.X)
	case *ast.Print:
		c.print(s)
	case *ast.If:
		c.ifStmt(s)
	case *ast.While:
		c.loop(s.Pos, nil, s.Cond, nil, s.Body)
	case *ast.For:
		c.loop(s.Pos, s.Init, s.Cond, s.Post, s.Body)
	case *ast.Break:
		if len(fn.loops) == 0 {
			c.fail(s.Pos, "break outside loop")
		}

		c.at(s.Pos)
		c.br(fn.loops[len(fn.loops)-1].brk)
	case *ast.Continue:
		if len(fn.loops) == 0 {
			c.fail(s.Pos, "continue outside loop")
		}

		c.at(s.Pos)
		c.br(c.get(fn.loops[len(fn.loops)-1].cont))
	case *ast.Return:
		c.ret(s)
	default:
		c.fail(s.Position(), "unsupported statement %T", s)
	}
}

func (c *Context) ret(s *ast.Return) {
	fn := c.fn
	want := c.funcs[fn.src].ret

	if s.X == nil {
		if want != ir.Void {
			c.fail(s.Pos, "return without value from %v function", want)
		}

		c.at(s.Pos)
		fn.b.RetVoid()

		return
	}

	x := c.expr(s.X)

	c.at(s.Pos)
	fn.b.Ret(x)
}

func (c *Context) assign(s *ast.Assign) {
	fn := c.fn

	switch t := s.Target.(type) {
	case *ast.VarRef:
		x := c.expr(s.Value)
		st := c.lookup(t.Var)

		c.at(s.Pos)

		if st.Class == ast.Register {
			c.writeVar(t.Var, x)
			return
		}

		fn.b.Store(st.Meta.IR, st.Addr, x)

		c.release()
	case *ast.Index:
		m := c.meta(t.X)
		if !m.Array {
			c.fail(t.Pos, "index assignment to %v", m.Type)
		}

		p := c.elemAddr(t, m)
		x := c.expr(s.Value)

		c.at(s.Pos)
		fn.b.Store(m.ElemIR, p, x)

		c.release()
	case *ast.FieldRef:
		base := c.expr(t.X)
		sl := c.slot(t)
		x := c.expr(s.Value)

		c.at(s.Pos)
		p := fn.b.GEP(base, ir.Int(int64(sl.Offset)))
		fn.b.Store(sl.Meta.IR, p, x)

		c.release()
	case *ast.Deref:
		m := c.meta(t.X)
		if m.Elem == nil {
			c.fail(t.Pos, "store through %v", m.Type)
		}

		p := c.expr(t.X)
		x := c.expr(s.Value)

		c.at(s.Pos)
		fn.b.Store(m.ElemIR, p, x)

		c.release()
	default:
		c.fail(s.Pos, "assignment to %T", s.Target)
	}
}

func (c *Context) print(s *ast.Print) {
	fn := c.fn

	for i, a := range s.Args {
		x := c.expr(a)

		c.at(s.Pos)

		if i != 0 {
			sp := c.runtime(s.Pos, "rt_print_space")
			fn.b.Call(sp.Ret, sp.Name)
		}

		var name string

		switch t := a.Type().(type) {
		case tp.Int:
			name = "rt_print_i64"
			x = c.widen(t, x)
		case tp.Float:
			name = "rt_print_f64"
		case tp.Bool:
			name = "rt_print_bool"
		case tp.String:
			name = "rt_print_str"
		default:
			c.fail(a.Position(), "print of %v", a.Type())
		}

		sig := c.runtime(s.Pos, name)
		fn.b.Call(sig.Ret, sig.Name, x)
	}

	if s.Newline {
		c.at(s.Pos)

		nl := c.runtime(s.Pos, "rt_print_nl")
		fn.b.Call(nl.Ret, nl.Name)
	}
}

func (c *Context) ifStmt(s *ast.If) {
	cond := c.expr(s.Cond)

	then := c.newBlock("if.then")

	var els *ir.Block
	join := c.lazy("if.end")

	if s.Else != nil {
		els = c.newBlock("if.else")
	} else {
		els = c.get(join)
	}

	c.at(s.Pos)
	c.cbr(cond, then, nil, els, nil)
	c.seal(then)

	c.enter(then)
	c.block(s.Then)

	if !c.terminated() {
		c.br(c.get(join))
	}

	if s.Else != nil {
		c.seal(els)
		c.enter(els)
		c.stmt(s.Else)

		if !c.terminated() {
			c.br(c.get(join))
		}
	}

	if join.blk == nil {
		return
	}

	c.seal(join.blk)
	c.enter(join.blk)
}

// loop lowers while and for loops. The condition is evaluated in the
// header block, the back edge targets the header.
//
//	init; br head
//	head: cbr cond, body, exit
//	body: ...; br post
//	post: post stmt; br head
//	exit:
func (c *Context) loop(pos ast.Pos, init ast.Stmt, cond ast.Expr, post ast.Stmt, body *ast.Block) {
	fn := c.fn

	if init != nil {
		c.stmt(init)
	}

	head := c.newBlock("loop.head")

	c.at(pos)
	c.br(head)
	c.enter(head)

	var x ir.Value = ir.Bool(true)
	if cond != nil {
		x = c.expr(cond)
	}

	bodyBlk := c.newBlock("loop.body")
	exit := c.newBlock("loop.exit")

	c.at(pos)
	c.cbr(x, bodyBlk, nil, exit, nil)
	c.seal(bodyBlk)

	l := loop{brk: exit, cont: c.lazy("loop.post")}
	if post == nil {
		l.cont.blk = head
	}

	fn.loops = append(fn.loops, l)

	c.enter(bodyBlk)
	c.block(body)

	fn.loops = fn.loops[:len(fn.loops)-1]

	c.release()

	if !c.terminated() {
		c.at(pos)
		c.br(c.get(l.cont))
	}

	if post != nil && l.cont.blk != nil {
		c.seal(l.cont.blk)
		c.enter(l.cont.blk)
		c.stmt(post)

		c.at(pos)
		c.br(head)
	}

	c.seal(head)
	c.seal(exit)
	c.enter(exit)
}

// zero is the zero value of t.
func (c *Context) zero(pos ast.Pos, t tp.Type) ir.Value {
	switch t.(type) {
	case tp.Bool:
		return ir.Bool(false)
	case tp.Int:
		return ir.Int(0)
	case tp.Float:
		return ir.Float(0)
	case tp.String:
		c.at(pos)
		return c.fn.b.ConstStr("")
	}

	if tp.IsRef(t) {
		return ir.Null()
	}

	c.fail(pos, "no zero value of %v", t)

	return ir.Value{}
}
