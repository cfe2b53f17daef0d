package front

import (
	"fmt"
	goast "go/ast"
	"go/token"

	"github.com/slowlang/slow/compiler/ast"
	"github.com/slowlang/slow/compiler/tp"
)

type (
	checker struct {
		fset *token.FileSet
		name string

		errs ErrorList

		classes map[string]*tp.Class
		funcs   map[string]*ast.Func
		methods map[*tp.Class]map[string]*ast.Func

		// function state
		fn     *ast.Func
		scope  *scope
		loops  int
		inLoop map[*ast.Var]bool
	}

	scope struct {
		up   *scope
		vars map[string]*ast.Var
	}
)

var basic = map[string]tp.Type{
	"int":     tp.Int64,
	"int64":   tp.Int64,
	"int32":   tp.Int32,
	"int16":   tp.Int16,
	"float64": tp.Float{},
	"bool":    tp.Bool{},
	"string":  tp.String{},
}

func newChecker(fset *token.FileSet, name string) *checker {
	return &checker{
		fset:    fset,
		name:    name,
		classes: make(map[string]*tp.Class),
		funcs:   make(map[string]*ast.Func),
		methods: make(map[*tp.Class]map[string]*ast.Func),
	}
}

func (c *checker) file(name string, f *goast.File) *ast.Unit {
	u := &ast.Unit{Name: name}

	var types []*goast.TypeSpec

	for _, d := range f.Decls {
		g, ok := d.(*goast.GenDecl)
		if !ok {
			continue
		}

		switch g.Tok {
		case token.TYPE:
			for _, s := range g.Specs {
				ts := s.(*goast.TypeSpec)

				if _, ok := ts.Type.(*goast.StructType); !ok {
					c.errorf(ts.Pos(), "type %v: only struct types are supported", ts.Name.Name)
					continue
				}

				if c.classes[ts.Name.Name] != nil || basic[ts.Name.Name] != nil {
					c.errorf(ts.Pos(), "type %v redeclared", ts.Name.Name)
					continue
				}

				cl := tp.NewClass(ts.Name.Name)

				c.classes[cl.Name] = cl
				u.Classes = append(u.Classes, cl)
				types = append(types, ts)
			}
		case token.IMPORT:
			c.errorf(g.Pos(), "imports are not supported")
		default:
			c.errorf(g.Pos(), "package level %v declarations are not supported", g.Tok)
		}
	}

	for _, ts := range types {
		c.fields(c.classes[ts.Name.Name], ts.Type.(*goast.StructType))
	}

	var bodies []*goast.FuncDecl

	for _, d := range f.Decls {
		fd, ok := d.(*goast.FuncDecl)
		if !ok {
			continue
		}

		fn := c.declareFunc(fd)
		if fn == nil {
			continue
		}

		u.Funcs = append(u.Funcs, fn)
		bodies = append(bodies, fd)
	}

	for i, fd := range bodies {
		if fd.Body == nil {
			continue
		}

		c.body(u.Funcs[i], fd)
	}

	return u
}

func (c *checker) fields(cl *tp.Class, st *goast.StructType) {
	seen := map[string]bool{}

	for _, f := range st.Fields.List {
		t := c.typ(f.Type)

		if len(f.Names) == 0 {
			c.errorf(f.Pos(), "embedded fields are not supported")
			continue
		}

		for _, n := range f.Names {
			if seen[n.Name] {
				c.errorf(n.Pos(), "duplicate field %v", n.Name)
				continue
			}

			seen[n.Name] = true

			if t != nil {
				cl.AddField(n.Name, t)
			}
		}
	}
}

func (c *checker) declareFunc(fd *goast.FuncDecl) *ast.Func {
	fn := &ast.Func{
		Pos:    c.pos(fd.Name.Pos()),
		Name:   fd.Name.Name,
		Result: tp.Void{},
	}

	if fd.Type.TypeParams != nil {
		c.errorf(fd.Pos(), "generic functions are not supported")
		return nil
	}

	if fd.Recv != nil {
		if len(fd.Recv.List) != 1 {
			c.errorf(fd.Pos(), "method %v: one receiver expected", fn.Name)
			return nil
		}

		r := fd.Recv.List[0]

		cl := c.recvClass(r.Type)
		if cl == nil {
			c.errorf(r.Pos(), "method %v: receiver must be a struct type", fn.Name)
			return nil
		}

		fn.Class = cl
		fn.Recv = &ast.Var{Pos: c.pos(r.Pos()), Name: "_", Type: cl}

		if len(r.Names) != 0 {
			fn.Recv.Name = r.Names[0].Name
		}

		if fd.Body == nil {
			c.errorf(fd.Pos(), "method %v.%v has no body", cl.Name, fn.Name)
			return nil
		}
	}

	for _, f := range fd.Type.Params.List {
		t := c.typ(f.Type)

		names := f.Names
		if len(names) == 0 {
			names = []*goast.Ident{{NamePos: f.Pos(), Name: "_"}}
		}

		for _, n := range names {
			fn.Params = append(fn.Params, &ast.Var{Pos: c.pos(n.Pos()), Name: n.Name, Type: t})
		}
	}

	if res := fd.Type.Results; res != nil {
		if len(res.List) != 1 || len(res.List[0].Names) > 1 {
			c.errorf(res.Pos(), "func %v: at most one result is supported", fn.Name)
		} else if t := c.typ(res.List[0].Type); t != nil {
			fn.Result = t
		}
	}

	if fd.Body == nil {
		fn.Extern = fn.Name
	}

	switch {
	case fn.Class != nil:
		ms := c.methods[fn.Class]
		if ms == nil {
			ms = make(map[string]*ast.Func)
			c.methods[fn.Class] = ms
		}

		if ms[fn.Name] != nil || hasField(fn.Class, fn.Name) {
			c.errorf(fd.Name.Pos(), "%v.%v redeclared", fn.Class.Name, fn.Name)
			return nil
		}

		ms[fn.Name] = fn
	case c.funcs[fn.Name] != nil:
		c.errorf(fd.Name.Pos(), "func %v redeclared", fn.Name)
		return nil
	default:
		c.funcs[fn.Name] = fn
	}

	return fn
}

func (c *checker) recvClass(e goast.Expr) *tp.Class {
	if s, ok := e.(*goast.StarExpr); ok {
		e = s.X
	}

	id, ok := e.(*goast.Ident)
	if !ok {
		return nil
	}

	return c.classes[id.Name]
}

// typ resolves a type expression. Classes are used through pointers.
func (c *checker) typ(e goast.Expr) tp.Type {
	switch e := e.(type) {
	case *goast.Ident:
		if t, ok := basic[e.Name]; ok {
			return t
		}

		if _, ok := c.classes[e.Name]; ok {
			c.errorf(e.Pos(), "struct %v must be used as *%[1]v", e.Name)
			return nil
		}
	case *goast.StarExpr:
		if id, ok := e.X.(*goast.Ident); ok {
			if cl, ok := c.classes[id.Name]; ok {
				return cl
			}
		}

		el := c.typ(e.X)
		if el == nil {
			return nil
		}

		if tp.IsRef(el) {
			c.errorf(e.Pos(), "pointer to %v is not supported", el)
			return nil
		}

		return tp.Pointer{Elem: el}
	case *goast.ArrayType:
		if e.Len != nil {
			c.errorf(e.Pos(), "fixed size arrays are not supported")
			return nil
		}

		el := c.typ(e.Elt)
		if el == nil {
			return nil
		}

		return tp.Array{Elem: el}
	case *goast.ParenExpr:
		return c.typ(e.X)
	}

	c.errorf(e.Pos(), "unknown type %v", exprString(e))

	return nil
}

func (c *checker) body(fn *ast.Func, fd *goast.FuncDecl) {
	c.fn = fn
	c.scope = &scope{}
	c.loops = 0
	c.inLoop = make(map[*ast.Var]bool)

	defer func() { c.fn, c.scope = nil, nil }()

	if fn.Recv != nil {
		c.define(fn.Recv)
	}

	for _, p := range fn.Params {
		c.define(p)
	}

	fn.Body = c.block(fd.Body)

	if !tp.IsVoid(fn.Result) && !terminates(fn.Body) {
		c.errorf(fd.Body.Rbrace, "missing return")
	}
}

func (c *checker) push() { c.scope = &scope{up: c.scope} }
func (c *checker) pop()  { c.scope = c.scope.up }

func (c *checker) define(v *ast.Var) {
	if v.Name == "_" {
		return
	}

	if c.scope.vars == nil {
		c.scope.vars = make(map[string]*ast.Var)
	}

	if _, ok := c.scope.vars[v.Name]; ok {
		c.errorAt(v.Pos, "%v redeclared in this block", v.Name)
		return
	}

	c.scope.vars[v.Name] = v
	c.inLoop[v] = c.loops != 0
}

func (c *checker) lookup(name string) *ast.Var {
	for s := c.scope; s != nil; s = s.up {
		if v, ok := s.vars[name]; ok {
			return v
		}
	}

	return nil
}

// addressTaken moves v out of registers.
// Variables declared inside a loop get a fresh heap cell per iteration.
func (c *checker) addressTaken(v *ast.Var) {
	if v.Storage != ast.Register {
		return
	}

	if c.inLoop[v] {
		v.Storage = ast.Heap
	} else {
		v.Storage = ast.Stack
	}
}

func (c *checker) pos(p token.Pos) ast.Pos {
	x := c.fset.Position(p)

	return ast.Pos{Line: x.Line, Col: x.Column}
}

func (c *checker) errorf(p token.Pos, format string, args ...any) {
	c.errorAt(c.pos(p), format, args...)
}

func (c *checker) errorAt(p ast.Pos, format string, args ...any) {
	c.errs = append(c.errs, &Error{File: c.name, Pos: p, Msg: fmt.Sprintf(format, args...)})
}

func hasField(cl *tp.Class, name string) bool {
	_, ok := cl.Field(name)
	return ok
}

// terminates is a simplified terminating statement check.
func terminates(s ast.Stmt) bool {
	switch s := s.(type) {
	case *ast.Return:
		return true
	case *ast.Block:
		return s != nil && len(s.Stmts) != 0 && terminates(s.Stmts[len(s.Stmts)-1])
	case *ast.If:
		return s.Else != nil && terminates(s.Then) && terminates(s.Else)
	case *ast.While:
		return s.Cond == nil && !breaks(s.Body)
	case *ast.For:
		return s.Cond == nil && !breaks(s.Body)
	}

	return false
}

// breaks reports a break that exits the enclosing loop.
func breaks(b *ast.Block) bool {
	for _, s := range b.Stmts {
		switch s := s.(type) {
		case *ast.Break:
			return true
		case *ast.Block:
			if breaks(s) {
				return true
			}
		case *ast.If:
			if breaks(s.Then) {
				return true
			}

			if e, ok := s.Else.(*ast.Block); ok && breaks(e) {
				return true
			}

			if e, ok := s.Else.(*ast.If); ok && breaks(&ast.Block{Stmts: []ast.Stmt{e}}) {
				return true
			}
		}
	}

	return false
}
