package vm

import (
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/slowlang/slow/compiler/ir"
)

type (
	// Profile counts executed instructions by opcode and calls by function.
	// Function time is inclusive of callees.
	Profile struct {
		Ops   [ir.NumOps]int64
		Funcs map[string]*FuncProfile
	}

	FuncProfile struct {
		Calls int64
		Time  time.Duration
	}
)

func newProfile() *Profile {
	return &Profile{Funcs: map[string]*FuncProfile{}}
}

func (p *Profile) fn(name string) *FuncProfile {
	f := p.Funcs[name]
	if f == nil {
		f = &FuncProfile{}
		p.Funcs[name] = f
	}

	return f
}

func (p *Profile) merge(x *Profile) {
	for op, n := range x.Ops {
		p.Ops[op] += n
	}

	for name, f := range x.Funcs {
		d := p.fn(name)
		d.Calls += f.Calls
		d.Time += f.Time
	}
}

func (p *Profile) clone() *Profile {
	c := newProfile()
	c.merge(p)

	return c
}

// Steps is the total number of executed instructions.
func (p *Profile) Steps() (n int64) {
	for _, c := range p.Ops {
		n += c
	}

	return n
}

// WriteTables renders opcode and function tables.
func (p *Profile) WriteTables(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Opcode", "Count"})

	for op, n := range p.Ops {
		if n == 0 {
			continue
		}

		t.AppendRow(table.Row{ir.Op(op).String(), n})
	}

	t.AppendFooter(table.Row{"total", p.Steps()})
	t.Render()

	names := make([]string, 0, len(p.Funcs))
	for name := range p.Funcs {
		names = append(names, name)
	}

	sort.Strings(names)

	t = table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Function", "Calls", "Time"})

	for _, name := range names {
		f := p.Funcs[name]
		t.AppendRow(table.Row{name, f.Calls, f.Time})
	}

	t.Render()
}
