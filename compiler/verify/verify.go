package verify

import (
	"context"
	"fmt"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/slow/compiler/df"
	"github.com/slowlang/slow/compiler/ir"
)

type (
	Class int8

	Options struct {
		// AllErrors collects every violation of the first failing class
		// instead of stopping at the first one.
		AllErrors bool
	}

	// Error is a located rule violation.
	// Block is empty for function and module level errors, Index is -1 for block level ones.
	Error struct {
		Class Class

		Func  string
		Block string
		Index int
		Loc   ir.Pos

		Msg string
	}

	Errors []*Error

	// Verified is a module that passed verification.
	// It's the only form of a module the VM and code generators accept.
	Verified struct {
		m *ir.Module

		graphs map[string]*df.Graph
	}

	checker struct {
		m    *ir.Module
		opts Options

		class Class
		errs  Errors

		graphs map[string]*df.Graph
		regs   map[string]map[ir.ValueID]ir.Type
	}

	// stop aborts a class on its first violation in first-error mode.
	stop struct{}
)

const (
	Structural Class = iota
	SSA
	Types
	Branch
)

var ErrUnverified = errors.New("module is not verified")

// Module checks m class by class: Structural, SSA, Types, Branch.
// A class runs only if all previous ones passed.
func Module(ctx context.Context, m *ir.Module, opts Options) (v *Verified, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "verify", "module", m.Name, "all_errors", opts.AllErrors)
	defer tr.Finish("err", &err)

	c := &checker{
		m:      m,
		opts:   opts,
		graphs: make(map[string]*df.Graph, len(m.Funcs)),
		regs:   make(map[string]map[ir.ValueID]ir.Type, len(m.Funcs)),
	}

	for _, f := range m.Funcs {
		if _, ok := c.graphs[f.Name]; !ok {
			c.graphs[f.Name] = df.Build(f)
		}
	}

	passes := []struct {
		class Class
		run   func()
	}{
		{Structural, c.structure},
		{SSA, c.ssa},
		{Types, c.types},
		{Branch, c.branches},
	}

	for _, p := range passes {
		c.class = p.class
		c.runPass(p.run)

		if len(c.errs) != 0 {
			if tr.If("verify_errors") {
				for _, e := range c.errs {
					tr.Printw("violation", "class", e.Class, "func", e.Func, "block", e.Block, "index", e.Index, "msg", e.Msg)
				}
			}

			return nil, c.errs
		}
	}

	return &Verified{m: m, graphs: c.graphs}, nil
}

func (c *checker) runPass(run func()) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}

		if _, ok := p.(stop); !ok {
			panic(p)
		}
	}()

	run()
}

func (c *checker) report(f *ir.Func, b *ir.Block, idx int, format string, args ...any) {
	e := &Error{
		Class: c.class,
		Index: -1,
		Msg:   fmt.Sprintf(format, args...),
	}

	if f != nil {
		e.Func = f.Name
	}

	if b != nil {
		e.Block = b.Label
		e.Index = idx

		if idx >= 0 && idx < len(b.Code) {
			e.Loc = b.Code[idx].Loc
		}
	}

	c.errs = append(c.errs, e)

	if !c.opts.AllErrors {
		panic(stop{})
	}
}

func (v *Verified) Module() *ir.Module {
	if v == nil {
		return nil
	}

	return v.m
}

// Graph returns the control flow graph computed during verification.
func (v *Verified) Graph(f *ir.Func) *df.Graph {
	return v.graphs[f.Name]
}

// Check returns ErrUnverified for a nil or zero token.
func (v *Verified) Check() error {
	if v == nil || v.m == nil {
		return ErrUnverified
	}

	return nil
}

func (c Class) String() string {
	switch c {
	case Structural:
		return "structural"
	case SSA:
		return "ssa"
	case Types:
		return "type"
	case Branch:
		return "branch"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

func (e *Error) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%v: ", e.Class)

	if e.Func != "" {
		fmt.Fprintf(&b, "@%s: ", e.Func)
	}

	if e.Block != "" {
		b.WriteString(e.Block)

		if e.Index >= 0 {
			fmt.Fprintf(&b, "[%d]", e.Index)
		}

		b.WriteString(": ")
	}

	if !e.Loc.IsZero() {
		fmt.Fprintf(&b, "%d:%d: ", e.Loc.Line, e.Loc.Col)
	}

	b.WriteString(e.Msg)

	return b.String()
}

func (l Errors) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}

	var b strings.Builder

	fmt.Fprintf(&b, "%d verification errors:", len(l))

	for _, e := range l {
		b.WriteString("\n\t")
		b.WriteString(e.Error())
	}

	return b.String()
}

// Class of the first violation.
func (l Errors) Class() Class {
	if len(l) == 0 {
		return -1
	}

	return l[0].Class
}
