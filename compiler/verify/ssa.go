package verify

import "github.com/slowlang/slow/compiler/ir"

type site struct {
	block int
	index int // -1 for parameters
}

func (c *checker) ssa() {
	for _, f := range c.m.Funcs {
		c.ssaFunc(f)
	}
}

func (c *checker) ssaFunc(f *ir.Func) {
	defs := map[ir.ValueID]site{}
	regs := map[ir.ValueID]ir.Type{}

	def := func(b *ir.Block, bi, idx int, id ir.ValueID, t ir.Type) {
		switch {
		case id < 0:
			c.report(f, b, idx, "negative register id %d", id)
			return
		case id >= f.NextID:
			c.report(f, b, idx, "register %v is beyond the function register count %d", ir.Temp(id), f.NextID)
		}

		if _, ok := defs[id]; ok {
			c.report(f, b, idx, "register %v is defined more than once", ir.Temp(id))
			return
		}

		defs[id] = site{block: bi, index: idx}
		regs[id] = t
	}

	for _, p := range f.Params {
		def(f.Blocks[0], 0, -1, p.ID, p.Type)
	}

	for bi, b := range f.Blocks {
		for _, p := range b.Params {
			def(b, bi, -1, p.ID, p.Type)
		}

		for i, in := range b.Code {
			if in.Defines() {
				def(b, bi, i, in.Result, in.ResultType())
			}
		}
	}

	c.regs[f.Name] = regs

	g := c.graphs[f.Name]

	for bi, b := range f.Blocks {
		for i, in := range b.Code {
			for _, a := range in.Uses() {
				if !a.IsTemp() {
					continue
				}

				d, ok := defs[a.ID]

				switch {
				case !ok:
					c.report(f, b, i, "use of undefined register %v", a)
				case d.block == bi && d.index >= i:
					c.report(f, b, i, "use of %v before its definition", a)
				case d.block != bi && !g.Dominates(d.block, bi):
					c.report(f, b, i, "definition of %v in %v does not dominate its use", a, f.Blocks[d.block].Label)
				}
			}
		}
	}
}
