package lower

import (
	"context"
	"fmt"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/slowlang/slow/compiler/ast"
	"github.com/slowlang/slow/compiler/ir"
	"github.com/slowlang/slow/compiler/rt"
	"github.com/slowlang/slow/compiler/tp"
)

type (
	// Context lowers one compilation unit into one module.
	// It holds all lowering state; nothing is shared between contexts.
	Context struct {
		unit *ast.Unit
		mod  *ir.Module

		funcs   map[*ast.Func]*callee
		layouts map[*tp.Class]map[string]Slot

		fn *function
	}

	callee struct {
		name   string
		params []ir.Type
		ret    ir.Type
	}

	// Meta is the complete description of a storage location.
	// Type and array-ness are always recorded together.
	Meta struct {
		Type tp.Type
		IR   ir.Type

		Array    bool
		Elem     tp.Type
		ElemIR   ir.Type
		ElemSize int

		Class *tp.Class
	}

	// Slot is an object field.
	Slot struct {
		Offset int
		Meta   Meta
	}

	// InternalError is an AST contract violation found during lowering.
	InternalError struct {
		Msg  string
		Func string
		Pos  ast.Pos
		PC   loc.PC
	}
)

// Module lowers a checked unit.
func Module(ctx context.Context, u *ast.Unit) (*ir.Module, error) {
	return New(u).Lower(ctx)
}

func New(u *ast.Unit) *Context {
	return &Context{
		unit:    u,
		funcs:   make(map[*ast.Func]*callee),
		layouts: make(map[*tp.Class]map[string]Slot),
	}
}

func (c *Context) Lower(ctx context.Context) (m *ir.Module, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "lower", "unit", c.unit.Name)
	defer tr.Finish("err", &err)

	defer func() {
		p := recover()
		if p == nil {
			return
		}

		ie, ok := p.(*InternalError)
		if !ok {
			panic(p)
		}

		m, err = nil, ie
	}()

	if c.mod != nil {
		return nil, errors.New("unit %v already lowered", c.unit.Name)
	}

	c.mod = ir.NewModule(c.unit.Name)

	for _, cl := range c.unit.Classes {
		c.layout(cl)
	}

	for _, f := range c.unit.Funcs {
		c.register(f)
	}

	for _, f := range c.unit.Funcs {
		if f.Body == nil {
			continue
		}

		c.lowerFunc(f)
	}

	if tr.If("dump_il") {
		tr.Printw("lowered module", "il", c.mod.String())
	}

	return c.mod, nil
}

// register resolves the IL symbol and signature of a function.
func (c *Context) register(f *ast.Func) {
	s := f.Signature()

	cl := &callee{
		name: f.Symbol(),
		ret:  irType(s.Result),
	}

	for _, p := range s.Params {
		cl.params = append(cl.params, p.IR())
	}

	c.funcs[f] = cl

	if f.Body != nil {
		return
	}

	if sig, ok := rt.Lookup(cl.name); ok {
		if !sameSig(sig, cl) {
			c.fail(f.Pos, "runtime function %v declared as %v", cl.name, s)
		}

		_, err := rt.Declare(c.mod, cl.name)
		if err != nil {
			c.fail(f.Pos, "%v", err)
		}

		return
	}

	if c.mod.Extern(cl.name) == nil {
		c.mod.AddExtern(cl.name, cl.ret, cl.params...)
	}
}

// resolve returns the concrete callee of a call. Every function is registered
// before any body is lowered.
func (c *Context) resolve(pos ast.Pos, f *ast.Func) *callee {
	if f == nil {
		c.fail(pos, "call of nil function")
	}

	cl, ok := c.funcs[f]
	if !ok {
		c.fail(pos, "call of unregistered function %v", f.Symbol())
	}

	return cl
}

// runtime declares a runtime function on first use.
func (c *Context) runtime(pos ast.Pos, name string) rt.Sig {
	s, ok := rt.Lookup(name)
	if !ok {
		c.fail(pos, "unknown runtime function %v", name)
	}

	if _, err := rt.Declare(c.mod, name); err != nil {
		c.fail(pos, "%v", err)
	}

	return s
}

// layout computes the field table of a class once.
func (c *Context) layout(cl *tp.Class) map[string]Slot {
	if l, ok := c.layouts[cl]; ok {
		return l
	}

	l := make(map[string]Slot, len(cl.Fields))

	for _, f := range cl.Fields {
		l[f.Name] = Slot{Offset: f.Offset, Meta: describe(f.Type)}
	}

	c.layouts[cl] = l

	return l
}

func (c *Context) field(pos ast.Pos, cl *tp.Class, name string) Slot {
	s, ok := c.layout(cl)[name]
	if !ok {
		c.fail(pos, "class %v has no field %v", cl.Name, name)
	}

	return s
}

// describe builds the metadata of a location holding a t.
func describe(t tp.Type) Meta {
	m := Meta{Type: t, IR: irType(t)}

	switch t := t.(type) {
	case tp.Array:
		m.Array = true
		m.Elem = t.Elem
		m.ElemIR = irType(t.Elem)
		m.ElemSize = m.ElemIR.Size()
	case tp.Pointer:
		m.Elem = t.Elem
		m.ElemIR = irType(t.Elem)
		m.ElemSize = m.ElemIR.Size()
	case *tp.Class:
		m.Class = t
	}

	return m
}

func irType(t tp.Type) ir.Type {
	if tp.IsVoid(t) {
		return ir.Void
	}

	return t.IR()
}

func sameSig(s rt.Sig, cl *callee) bool {
	if s.Ret != cl.ret || len(s.Params) != len(cl.params) {
		return false
	}

	for i, p := range s.Params {
		if p != cl.params[i] {
			return false
		}
	}

	return true
}

func (c *Context) fail(pos ast.Pos, format string, args ...any) {
	e := &InternalError{
		Msg: fmt.Sprintf(format, args...),
		Pos: pos,
		PC:  loc.Caller(1),
	}

	if c.fn != nil {
		e.Func = c.fn.src.Symbol()
	}

	panic(e)
}

func (e *InternalError) Error() string {
	s := "lower: internal error"

	if e.Func != "" {
		s += ": " + e.Func
	}

	if e.Pos.Line != 0 {
		s += fmt.Sprintf(": %d:%d", e.Pos.Line, e.Pos.Col)
	}

	return fmt.Sprintf("%s: %s (from %v)", s, e.Msg, e.PC)
}
