package front

import (
	goast "go/ast"
	"go/token"
	"go/types"
	"strconv"

	"github.com/slowlang/slow/compiler/ast"
	"github.com/slowlang/slow/compiler/tp"
)

var binOps = map[token.Token]ast.BinOp{
	token.ADD: ast.Add,
	token.SUB: ast.Sub,
	token.MUL: ast.Mul,
	token.QUO: ast.Div,
	token.REM: ast.Rem,
	token.AND: ast.And,
	token.OR:  ast.Or,
	token.XOR: ast.Xor,
	token.SHL: ast.Shl,
	token.SHR: ast.Shr,

	token.EQL: ast.Eq,
	token.NEQ: ast.Ne,
	token.LSS: ast.Lt,
	token.LEQ: ast.Le,
	token.GTR: ast.Gt,
	token.GEQ: ast.Ge,

	token.LAND: ast.LAnd,
	token.LOR:  ast.LOr,
}

// expr checks e. Untyped constants take the hint type when it fits.
// It returns nil after reporting an error.
func (c *checker) expr(e goast.Expr, hint tp.Type) ast.Expr {
	p := c.pos(e.Pos())

	switch e := e.(type) {
	case *goast.BasicLit:
		return c.literal(e, hint, false)
	case *goast.Ident:
		return c.ident(e, hint)
	case *goast.ParenExpr:
		return c.expr(e.X, hint)
	case *goast.UnaryExpr:
		return c.unary(e, hint)
	case *goast.BinaryExpr:
		return c.binary(e, hint)
	case *goast.CallExpr:
		return c.call(e, hint)
	case *goast.IndexExpr:
		x := c.expr(e.X, nil)
		if x == nil {
			return nil
		}

		if _, ok := x.Type().(tp.Array); !ok {
			c.errorf(e.Pos(), "cannot index %v", x.Type())
			return nil
		}

		i := c.index(e.Index)
		if i == nil {
			return nil
		}

		return &ast.Index{Pos: c.pos(e.Lbrack), X: x, Index: i}
	case *goast.SelectorExpr:
		x := c.expr(e.X, nil)
		if x == nil {
			return nil
		}

		cl, ok := x.Type().(*tp.Class)
		if !ok {
			c.errorf(e.Pos(), "%v has no field %v", x.Type(), e.Sel.Name)
			return nil
		}

		if _, ok := cl.Field(e.Sel.Name); !ok {
			if c.methods[cl][e.Sel.Name] != nil {
				c.errorf(e.Sel.Pos(), "method values are not supported")
			} else {
				c.errorf(e.Sel.Pos(), "%v has no field %v", cl.Name, e.Sel.Name)
			}

			return nil
		}

		return &ast.FieldRef{Pos: c.pos(e.Sel.Pos()), X: x, Name: e.Sel.Name}
	case *goast.StarExpr:
		x := c.expr(e.X, nil)
		if x == nil {
			return nil
		}

		if _, ok := x.Type().(tp.Pointer); !ok {
			c.errorf(e.Pos(), "invalid indirect of %v", x.Type())
			return nil
		}

		return &ast.Deref{Pos: p, X: x}
	}

	c.errorf(e.Pos(), "unsupported expression %v", exprString(e))

	return nil
}

func (c *checker) literal(e *goast.BasicLit, hint tp.Type, neg bool) ast.Expr {
	p := c.pos(e.Pos())

	switch e.Kind {
	case token.INT, token.CHAR:
		var x int64

		if e.Kind == token.CHAR {
			r, _, _, err := strconv.UnquoteChar(e.Value[1:len(e.Value)-1], '\'')
			if err != nil {
				c.errorf(e.Pos(), "bad character literal %v", e.Value)
				return nil
			}

			x = int64(r)
		} else {
			u, err := strconv.ParseUint(e.Value, 0, 64)
			if err != nil || u > 1<<63 || u == 1<<63 && !neg {
				c.errorf(e.Pos(), "integer constant %v overflows", e.Value)
				return nil
			}

			x = int64(u)
		}

		if neg {
			x = -x
		}

		switch h := hint.(type) {
		case tp.Float:
			return &ast.FloatLit{Pos: p, Value: float64(x)}
		case tp.Int:
			if !h.IR().Fits(x) {
				c.errorf(e.Pos(), "constant %d overflows %v", x, h)
				return nil
			}

			return &ast.IntLit{Pos: p, Value: x, T: h}
		}

		return &ast.IntLit{Pos: p, Value: x, T: tp.Int64}
	case token.FLOAT:
		f, err := strconv.ParseFloat(e.Value, 64)
		if err != nil {
			c.errorf(e.Pos(), "bad float literal %v", e.Value)
			return nil
		}

		if neg {
			f = -f
		}

		return &ast.FloatLit{Pos: p, Value: f}
	case token.STRING:
		s, err := strconv.Unquote(e.Value)
		if err != nil {
			c.errorf(e.Pos(), "bad string literal")
			return nil
		}

		if neg {
			c.errorf(e.Pos(), "invalid operation: -%v", e.Value)
			return nil
		}

		return &ast.StrLit{Pos: p, Value: s}
	}

	c.errorf(e.Pos(), "unsupported literal %v", e.Value)

	return nil
}

func (c *checker) ident(e *goast.Ident, hint tp.Type) ast.Expr {
	p := c.pos(e.Pos())

	if v := c.lookup(e.Name); v != nil {
		if v.Type == nil {
			return nil
		}

		return &ast.VarRef{Pos: p, Var: v}
	}

	switch e.Name {
	case "true", "false":
		return &ast.BoolLit{Pos: p, Value: e.Name == "true"}
	case "nil":
		if !tp.IsRef(hint) {
			c.errorf(e.Pos(), "use of untyped nil")
			return nil
		}

		return &ast.NilLit{Pos: p, T: hint}
	case "_":
		c.errorf(e.Pos(), "cannot use _ as value")
		return nil
	}

	if c.funcs[e.Name] != nil {
		c.errorf(e.Pos(), "function values are not supported")
		return nil
	}

	c.errorf(e.Pos(), "undefined: %v", e.Name)

	return nil
}

func (c *checker) unary(e *goast.UnaryExpr, hint tp.Type) ast.Expr {
	p := c.pos(e.Pos())

	switch e.Op {
	case token.SUB:
		if lit, ok := e.X.(*goast.BasicLit); ok {
			return c.literal(lit, hint, true)
		}
	case token.ADD:
		return c.expr(e.X, hint)
	case token.AND:
		return c.addrOf(e)
	}

	x := c.expr(e.X, hint)
	if x == nil {
		return nil
	}

	t := x.Type()

	switch {
	case e.Op == token.SUB && tp.IsNumeric(t):
		return &ast.Unary{Pos: p, Op: ast.Neg, X: x}
	case e.Op == token.NOT && isBool(t):
		return &ast.Unary{Pos: p, Op: ast.Not, X: x}
	case e.Op == token.XOR && tp.IsInt(t):
		return &ast.Unary{Pos: p, Op: ast.BitNot, X: x}
	}

	c.errorf(e.Pos(), "invalid operation: %v%v", e.Op, t)

	return nil
}

func (c *checker) addrOf(e *goast.UnaryExpr) ast.Expr {
	p := c.pos(e.Pos())

	switch x := e.X.(type) {
	case *goast.CompositeLit:
		cl := c.recvClass(x.Type)
		if cl == nil {
			c.errorf(x.Pos(), "composite literal of %v is not supported", exprString(x.Type))
			return nil
		}

		if len(x.Elts) != 0 {
			c.errorf(x.Pos(), "composite literal fields are not supported, assign them after new")
			return nil
		}

		return &ast.New{Pos: p, Class: cl}
	case *goast.Ident:
		v := c.lookup(x.Name)
		if v == nil {
			c.errorf(x.Pos(), "undefined: %v", x.Name)
			return nil
		}

		if v.Type == nil {
			return nil
		}

		if tp.IsRef(v.Type) {
			c.errorf(x.Pos(), "pointer to %v is not supported", v.Type)
			return nil
		}

		c.addressTaken(v)

		return &ast.AddrOf{Pos: p, Var: v}
	}

	c.errorf(e.Pos(), "cannot take address of %v", exprString(e.X))

	return nil
}

func (c *checker) binary(e *goast.BinaryExpr, hint tp.Type) ast.Expr {
	op, ok := binOps[e.Op]
	if !ok {
		c.errorf(e.OpPos, "unsupported operator %v", e.Op)
		return nil
	}

	if op.IsLogic() {
		x := c.cond(e.X)
		y := c.cond(e.Y)

		if x == nil || y == nil {
			return nil
		}

		return &ast.Binary{Pos: c.pos(e.OpPos), Op: op, X: x, Y: y}
	}

	if op.IsCompare() {
		hint = nil
	}

	var x, y ast.Expr

	if untyped(e.X) && !untyped(e.Y) && op != ast.Shl && op != ast.Shr {
		y = c.expr(e.Y, hint)
		if y == nil {
			return nil
		}

		x = c.expr(e.X, y.Type())
	} else {
		x = c.expr(e.X, hint)
		if x == nil {
			return nil
		}

		y = c.operand(op, x, e.Y)
	}

	return c.combine(e.OpPos, op, x, y)
}

// binaryOp checks x op rhs for an already checked x.
func (c *checker) binaryOp(p token.Pos, op ast.BinOp, x ast.Expr, rhs goast.Expr) ast.Expr {
	return c.combine(p, op, x, c.operand(op, x, rhs))
}

func (c *checker) operand(op ast.BinOp, x ast.Expr, e goast.Expr) ast.Expr {
	if op == ast.Shl || op == ast.Shr {
		return c.expr(e, nil)
	}

	return c.expr(e, x.Type())
}

func (c *checker) combine(pos token.Pos, op ast.BinOp, x, y ast.Expr) ast.Expr {
	if x == nil || y == nil {
		return nil
	}

	p := c.pos(pos)
	xt, yt := x.Type(), y.Type()

	if op == ast.Shl || op == ast.Shr {
		if !tp.IsInt(xt) || !tp.IsInt(yt) {
			c.errorf(pos, "invalid shift of %v by %v", xt, yt)
			return nil
		}

		return &ast.Binary{Pos: p, Op: op, X: x, Y: y}
	}

	if !tp.Identical(xt, yt) {
		c.errorf(pos, "mismatched types %v and %v", xt, yt)
		return nil
	}

	var ok bool

	switch op {
	case ast.Eq, ast.Ne:
		ok = !tp.IsVoid(xt)
	case ast.Lt, ast.Le, ast.Gt, ast.Ge, ast.Sub, ast.Mul, ast.Div:
		ok = tp.IsNumeric(xt)
	case ast.Add:
		_, str := xt.(tp.String)
		ok = tp.IsNumeric(xt) || str
	case ast.Rem, ast.And, ast.Or, ast.Xor:
		ok = tp.IsInt(xt)
	}

	if !ok {
		c.errorf(pos, "operator %v not defined on %v", op, xt)
		return nil
	}

	return &ast.Binary{Pos: p, Op: op, X: x, Y: y}
}

func (c *checker) call(e *goast.CallExpr, hint tp.Type) ast.Expr {
	p := c.pos(e.Pos())

	if e.Ellipsis.IsValid() {
		c.errorf(e.Ellipsis, "variadic calls are not supported")
		return nil
	}

	switch f := e.Fun.(type) {
	case *goast.Ident:
		if c.lookup(f.Name) != nil {
			c.errorf(f.Pos(), "cannot call non-function %v", f.Name)
			return nil
		}

		if fn := c.funcs[f.Name]; fn != nil {
			args, ok := c.args(e, fn)
			if !ok {
				return nil
			}

			return &ast.Call{Pos: p, Func: fn, Args: args}
		}

		if t, ok := basic[f.Name]; ok {
			return c.conversion(e, t)
		}

		return c.builtin(e, f.Name)
	case *goast.SelectorExpr:
		recv := c.expr(f.X, nil)
		if recv == nil {
			return nil
		}

		cl, ok := recv.Type().(*tp.Class)
		if !ok {
			c.errorf(f.Pos(), "%v has no method %v", recv.Type(), f.Sel.Name)
			return nil
		}

		m := c.methods[cl][f.Sel.Name]
		if m == nil {
			c.errorf(f.Sel.Pos(), "%v has no method %v", cl.Name, f.Sel.Name)
			return nil
		}

		args, ok := c.args(e, m)
		if !ok {
			return nil
		}

		return &ast.MethodCall{Pos: c.pos(f.Sel.Pos()), Recv: recv, Method: m, Args: args}
	}

	c.errorf(e.Pos(), "unsupported call of %v", exprString(e.Fun))

	return nil
}

func (c *checker) args(e *goast.CallExpr, fn *ast.Func) (r []ast.Expr, ok bool) {
	if len(e.Args) != len(fn.Params) {
		c.errorf(e.Rparen, "%v takes %d arguments, got %d", fn.Name, len(fn.Params), len(e.Args))
		return nil, false
	}

	for i, a := range e.Args {
		t := fn.Params[i].Type
		if t == nil {
			return nil, false
		}

		x := c.expr(a, t)
		if x == nil || !c.assignable(a.Pos(), x, t) {
			return nil, false
		}

		r = append(r, x)
	}

	return r, true
}

func (c *checker) conversion(e *goast.CallExpr, t tp.Type) ast.Expr {
	if len(e.Args) != 1 {
		c.errorf(e.Pos(), "conversion to %v takes one argument", t)
		return nil
	}

	x := c.expr(e.Args[0], t)
	if x == nil {
		return nil
	}

	from := x.Type()

	if tp.Identical(from, t) {
		return x
	}

	ok := false

	switch t.(type) {
	case tp.Int, tp.Float:
		ok = tp.IsNumeric(from)
	case tp.String:
		ok = tp.IsNumeric(from)
	}

	if !ok {
		c.errorf(e.Pos(), "cannot convert %v to %v", from, t)
		return nil
	}

	return &ast.Convert{Pos: c.pos(e.Pos()), X: x, T: t}
}

func (c *checker) builtin(e *goast.CallExpr, name string) ast.Expr {
	p := c.pos(e.Pos())

	switch name {
	case "len":
		if len(e.Args) != 1 {
			c.errorf(e.Pos(), "len takes one argument")
			return nil
		}

		x := c.expr(e.Args[0], nil)
		if x == nil {
			return nil
		}

		switch x.Type().(type) {
		case tp.Array, tp.String:
			return &ast.Len{Pos: p, X: x}
		}

		c.errorf(e.Pos(), "invalid argument for len: %v", x.Type())

		return nil
	case "make":
		if len(e.Args) != 2 {
			c.errorf(e.Pos(), "make takes a slice type and a length")
			return nil
		}

		t, ok := c.typ(e.Args[0]).(tp.Array)
		if !ok {
			c.errorf(e.Args[0].Pos(), "can only make slices")
			return nil
		}

		n := c.index(e.Args[1])
		if n == nil {
			return nil
		}

		return &ast.MakeArray{Pos: p, T: t, Len: n}
	case "new":
		if len(e.Args) != 1 {
			c.errorf(e.Pos(), "new takes one argument")
			return nil
		}

		cl := c.recvClass(e.Args[0])
		if cl == nil {
			c.errorf(e.Args[0].Pos(), "new is only supported for struct types")
			return nil
		}

		return &ast.New{Pos: p, Class: cl}
	case "print", "println":
		c.errorf(e.Pos(), "%v used as value", name)
		return nil
	}

	c.errorf(e.Pos(), "undefined: %v", name)

	return nil
}

// index checks an integer index or length.
func (c *checker) index(e goast.Expr) ast.Expr {
	x := c.expr(e, tp.Int64)
	if x == nil {
		return nil
	}

	if !tp.IsInt(x.Type()) {
		c.errorf(e.Pos(), "index must be an integer, got %v", x.Type())
		return nil
	}

	return x
}

func (c *checker) assignable(p token.Pos, x ast.Expr, t tp.Type) bool {
	if tp.Identical(x.Type(), t) {
		return true
	}

	c.errorf(p, "cannot use value of type %v as %v", x.Type(), t)

	return false
}

// untyped reports constant expressions whose type comes from context.
func untyped(e goast.Expr) bool {
	switch e := e.(type) {
	case *goast.BasicLit:
		return e.Kind != token.STRING
	case *goast.ParenExpr:
		return untyped(e.X)
	case *goast.UnaryExpr:
		return (e.Op == token.SUB || e.Op == token.ADD) && untyped(e.X)
	case *goast.BinaryExpr:
		return untyped(e.X) && untyped(e.Y)
	case *goast.Ident:
		return e.Name == "nil"
	}

	return false
}

func isBool(t tp.Type) bool {
	_, ok := t.(tp.Bool)
	return ok
}

func exprString(e goast.Expr) string {
	return types.ExprString(e)
}
