package front

import (
	goast "go/ast"
	"go/token"

	"github.com/slowlang/slow/compiler/ast"
	"github.com/slowlang/slow/compiler/tp"
)

var assignOps = map[token.Token]ast.BinOp{
	token.ADD_ASSIGN: ast.Add,
	token.SUB_ASSIGN: ast.Sub,
	token.MUL_ASSIGN: ast.Mul,
	token.QUO_ASSIGN: ast.Div,
	token.REM_ASSIGN: ast.Rem,
	token.AND_ASSIGN: ast.And,
	token.OR_ASSIGN:  ast.Or,
	token.XOR_ASSIGN: ast.Xor,
	token.SHL_ASSIGN: ast.Shl,
	token.SHR_ASSIGN: ast.Shr,
}

func (c *checker) block(b *goast.BlockStmt) *ast.Block {
	c.push()
	defer c.pop()

	return c.stmts(b.Lbrace, b.List)
}

func (c *checker) stmts(p token.Pos, l []goast.Stmt) *ast.Block {
	r := &ast.Block{Pos: c.pos(p)}

	for _, s := range l {
		r.Stmts = append(r.Stmts, c.stmt(s)...)
	}

	return r
}

// stmt checks s. Declarations of several variables expand to several statements.
func (c *checker) stmt(s goast.Stmt) []ast.Stmt {
	switch s := s.(type) {
	case *goast.BlockStmt:
		return one(c.block(s))
	case *goast.DeclStmt:
		return c.declStmt(s)
	case *goast.AssignStmt:
		return c.assignStmt(s)
	case *goast.IncDecStmt:
		op := ast.Add
		if s.Tok == token.DEC {
			op = ast.Sub
		}

		return c.opAssign(s.Pos(), s.X, op, &goast.BasicLit{ValuePos: s.TokPos, Kind: token.INT, Value: "1"})
	case *goast.ExprStmt:
		return c.exprStmt(s)
	case *goast.IfStmt:
		return one(c.ifStmt(s))
	case *goast.ForStmt:
		return one(c.forStmt(s))
	case *goast.BranchStmt:
		if s.Label != nil {
			c.errorf(s.Pos(), "labels are not supported")
			return nil
		}

		if c.loops == 0 {
			c.errorf(s.Pos(), "%v is not in a loop", s.Tok)
			return nil
		}

		switch s.Tok {
		case token.BREAK:
			return one(&ast.Break{Pos: c.pos(s.Pos())})
		case token.CONTINUE:
			return one(&ast.Continue{Pos: c.pos(s.Pos())})
		}
	case *goast.ReturnStmt:
		return c.returnStmt(s)
	case *goast.EmptyStmt:
		return nil
	}

	c.errorf(s.Pos(), "unsupported statement %T", s)

	return nil
}

func one(s ast.Stmt) []ast.Stmt {
	if s == nil {
		return nil
	}

	return []ast.Stmt{s}
}

func (c *checker) declStmt(s *goast.DeclStmt) (r []ast.Stmt) {
	g, ok := s.Decl.(*goast.GenDecl)
	if !ok || g.Tok != token.VAR {
		c.errorf(s.Pos(), "only var declarations are supported in functions")
		return nil
	}

	for _, sp := range g.Specs {
		vs := sp.(*goast.ValueSpec)

		var t tp.Type

		if vs.Type != nil {
			t = c.typ(vs.Type)
			if t == nil {
				continue
			}
		}

		if len(vs.Values) != 0 && len(vs.Values) != len(vs.Names) {
			c.errorf(vs.Pos(), "%d variables but %d values", len(vs.Names), len(vs.Values))
			continue
		}

		for i, n := range vs.Names {
			var init ast.Expr

			if len(vs.Values) != 0 {
				init = c.expr(vs.Values[i], t)
				if init == nil {
					continue
				}

				if t != nil && !c.assignable(vs.Values[i].Pos(), init, t) {
					continue
				}
			}

			vt := t
			if vt == nil {
				vt = c.defaultType(vs.Values[i].Pos(), init)
				if vt == nil {
					continue
				}
			}

			v := &ast.Var{Pos: c.pos(n.Pos()), Name: n.Name, Type: vt}

			r = append(r, &ast.VarDecl{Pos: v.Pos, Var: v, Init: init})

			c.define(v)
		}
	}

	return r
}

// defaultType is the type of a variable declared without one.
func (c *checker) defaultType(p token.Pos, x ast.Expr) tp.Type {
	t := x.Type()

	switch {
	case tp.IsVoid(t):
		c.errorf(p, "value of type void used as a value")
		return nil
	case t == nil:
		c.errorf(p, "use of untyped nil")
		return nil
	}

	return t
}

func (c *checker) assignStmt(s *goast.AssignStmt) []ast.Stmt {
	if op, ok := assignOps[s.Tok]; ok {
		if len(s.Lhs) != 1 || len(s.Rhs) != 1 {
			c.errorf(s.Pos(), "%v with several operands", s.Tok)
			return nil
		}

		return c.opAssign(s.Pos(), s.Lhs[0], op, s.Rhs[0])
	}

	if len(s.Lhs) != len(s.Rhs) {
		c.errorf(s.Pos(), "assignment mismatch: %d variables but %d values", len(s.Lhs), len(s.Rhs))
		return nil
	}

	if s.Tok == token.DEFINE {
		return c.define2(s)
	}

	if len(s.Lhs) != 1 {
		c.errorf(s.Pos(), "parallel assignment is not supported")
		return nil
	}

	return c.assign(s.Pos(), s.Lhs[0], s.Rhs[0])
}

func (c *checker) define2(s *goast.AssignStmt) (r []ast.Stmt) {
	fresh := false

	for i, l := range s.Lhs {
		id, ok := l.(*goast.Ident)
		if !ok {
			c.errorf(l.Pos(), "non-name %v on left side of :=", exprString(l))
			continue
		}

		if id.Name != "_" && c.scope.vars[id.Name] != nil {
			r = append(r, c.assign(s.Pos(), l, s.Rhs[i])...)
			continue
		}

		fresh = true

		x := c.expr(s.Rhs[i], nil)
		if x == nil {
			continue
		}

		t := c.defaultType(s.Rhs[i].Pos(), x)
		if t == nil {
			continue
		}

		v := &ast.Var{Pos: c.pos(id.Pos()), Name: id.Name, Type: t}

		r = append(r, &ast.VarDecl{Pos: v.Pos, Var: v, Init: x})

		c.define(v)
	}

	if !fresh {
		c.errorf(s.Pos(), "no new variables on left side of :=")
	}

	return r
}

func (c *checker) assign(p token.Pos, lhs, rhs goast.Expr) []ast.Stmt {
	if id, ok := lhs.(*goast.Ident); ok && id.Name == "_" {
		x := c.expr(rhs, nil)
		if x == nil {
			return nil
		}

		return one(&ast.ExprStmt{Pos: c.pos(p), X: x})
	}

	target := c.target(lhs)
	if target == nil {
		return nil
	}

	x := c.expr(rhs, target.Type())
	if x == nil || !c.assignable(rhs.Pos(), x, target.Type()) {
		return nil
	}

	return one(&ast.Assign{Pos: c.pos(p), Target: target, Value: x})
}

// opAssign desugars x op= y into x = x op y.
func (c *checker) opAssign(p token.Pos, lhs goast.Expr, op ast.BinOp, rhs goast.Expr) []ast.Stmt {
	target := c.target(lhs)
	if target == nil {
		return nil
	}

	cur := c.expr(lhs, nil)
	if cur == nil {
		return nil
	}

	x := c.binaryOp(p, op, cur, rhs)
	if x == nil {
		return nil
	}

	return one(&ast.Assign{Pos: c.pos(p), Target: target, Value: x})
}

// target checks an assignable expression.
func (c *checker) target(e goast.Expr) ast.Expr {
	x := c.expr(e, nil)
	if x == nil {
		return nil
	}

	switch x.(type) {
	case *ast.VarRef, *ast.Index, *ast.FieldRef, *ast.Deref:
		return x
	}

	c.errorf(e.Pos(), "cannot assign to %v", exprString(e))

	return nil
}

func (c *checker) exprStmt(s *goast.ExprStmt) []ast.Stmt {
	call, ok := s.X.(*goast.CallExpr)
	if !ok {
		c.errorf(s.Pos(), "%v is not used", exprString(s.X))
		return nil
	}

	if id, ok := call.Fun.(*goast.Ident); ok && (id.Name == "print" || id.Name == "println") && c.lookup(id.Name) == nil {
		return one(c.print(call, id.Name == "println"))
	}

	x := c.expr(call, nil)
	if x == nil {
		return nil
	}

	switch x.(type) {
	case *ast.Call, *ast.MethodCall:
	default:
		c.errorf(s.Pos(), "%v is not used", exprString(s.X))
		return nil
	}

	return one(&ast.ExprStmt{Pos: c.pos(s.Pos()), X: x})
}

func (c *checker) print(call *goast.CallExpr, nl bool) ast.Stmt {
	p := &ast.Print{Pos: c.pos(call.Pos()), Newline: nl}

	for _, a := range call.Args {
		x := c.expr(a, nil)
		if x == nil {
			return nil
		}

		switch x.Type().(type) {
		case tp.Int, tp.Float, tp.Bool, tp.String:
		default:
			c.errorf(a.Pos(), "can't print %v", x.Type())
			return nil
		}

		p.Args = append(p.Args, x)
	}

	return p
}

func (c *checker) ifStmt(s *goast.IfStmt) ast.Stmt {
	c.push()
	defer c.pop()

	var init []ast.Stmt

	if s.Init != nil {
		init = c.stmt(s.Init)
	}

	r := &ast.If{Pos: c.pos(s.Pos())}

	r.Cond = c.cond(s.Cond)
	r.Then = c.block(s.Body)

	switch e := s.Else.(type) {
	case nil:
	case *goast.BlockStmt:
		r.Else = c.block(e)
	case *goast.IfStmt:
		if x := c.ifStmt(e); x != nil {
			r.Else = x
		}
	}

	if r.Cond == nil {
		return nil
	}

	if s.Init == nil {
		return r
	}

	return &ast.Block{Pos: r.Pos, Stmts: append(init, r)}
}

func (c *checker) forStmt(s *goast.ForStmt) ast.Stmt {
	c.push()
	defer c.pop()

	var init, post ast.Stmt

	if s.Init != nil {
		l := c.stmt(s.Init)
		if len(l) > 1 {
			c.errorf(s.Init.Pos(), "for init declares several variables")
		}

		if len(l) != 0 {
			init = l[0]
		}
	}

	var cond ast.Expr

	if s.Cond != nil {
		cond = c.cond(s.Cond)
	}

	c.loops++

	if s.Post != nil {
		if l := c.stmt(s.Post); len(l) != 0 {
			post = l[0]
		}
	}

	body := c.block(s.Body)

	c.loops--

	if s.Init == nil && s.Post == nil {
		return &ast.While{Pos: c.pos(s.Pos()), Cond: cond, Body: body}
	}

	return &ast.For{Pos: c.pos(s.Pos()), Init: init, Cond: cond, Post: post, Body: body}
}

func (c *checker) cond(e goast.Expr) ast.Expr {
	x := c.expr(e, tp.Bool{})
	if x == nil {
		return nil
	}

	if _, ok := x.Type().(tp.Bool); !ok {
		c.errorf(e.Pos(), "non-boolean condition: %v", x.Type())
		return nil
	}

	return x
}

func (c *checker) returnStmt(s *goast.ReturnStmt) []ast.Stmt {
	want := c.fn.Result
	r := &ast.Return{Pos: c.pos(s.Pos())}

	switch {
	case len(s.Results) > 1:
		c.errorf(s.Pos(), "too many return values")
		return nil
	case len(s.Results) == 0 && !tp.IsVoid(want):
		c.errorf(s.Pos(), "not enough return values: want %v", want)
		return nil
	case len(s.Results) == 1 && tp.IsVoid(want):
		c.errorf(s.Pos(), "too many return values")
		return nil
	case len(s.Results) == 1:
		x := c.expr(s.Results[0], want)
		if x == nil || !c.assignable(s.Results[0].Pos(), x, want) {
			return nil
		}

		r.X = x
	}

	return one(r)
}
