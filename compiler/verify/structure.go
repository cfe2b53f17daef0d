package verify

import "github.com/slowlang/slow/compiler/ir"

func (c *checker) structure() {
	funcs := map[string]bool{}

	for _, f := range c.m.Funcs {
		if funcs[f.Name] {
			c.report(f, nil, -1, "duplicate function @%s", f.Name)
		}

		funcs[f.Name] = true
	}

	externs := map[string]bool{}

	for _, e := range c.m.Externs {
		if externs[e.Name] {
			c.report(nil, nil, -1, "duplicate extern @%s", e.Name)
		}

		if funcs[e.Name] {
			c.report(nil, nil, -1, "extern @%s collides with a defined function", e.Name)
		}

		externs[e.Name] = true

		for i, t := range e.Params {
			if t == ir.Void {
				c.report(nil, nil, -1, "extern @%s: void parameter %d", e.Name, i)
			}
		}
	}

	for _, f := range c.m.Funcs {
		c.structFunc(f)
	}
}

func (c *checker) structFunc(f *ir.Func) {
	if len(f.Blocks) == 0 {
		c.report(f, nil, -1, "function has no blocks")
		return
	}

	for _, p := range f.Params {
		if p.Type == ir.Void {
			c.report(f, nil, -1, "void parameter %v", ir.Temp(p.ID))
		}
	}

	if len(f.Blocks[0].Params) != 0 {
		c.report(f, f.Blocks[0], -1, "entry block must not declare parameters")
	}

	labels := map[string]bool{}

	for _, b := range f.Blocks {
		if b.Label == "" {
			c.report(f, b, -1, "empty block label")
		}

		if labels[b.Label] {
			c.report(f, b, -1, "duplicate block label %q", b.Label)
		}

		labels[b.Label] = true

		for _, p := range b.Params {
			if p.Type == ir.Void {
				c.report(f, b, -1, "void block parameter %v", ir.Temp(p.ID))
			}
		}

		if len(b.Code) == 0 {
			c.report(f, b, -1, "empty block")
			continue
		}

		for i, in := range b.Code {
			last := i == len(b.Code)-1

			switch {
			case in.Op.IsTerminator() && !last:
				c.report(f, b, i, "terminator %v in the middle of the block", in.Op)
			case !in.Op.IsTerminator() && last:
				c.report(f, b, i, "block does not end with a terminator")
			}

			c.structInstr(f, b, i, in)
		}
	}

	g := c.graphs[f.Name]

	for i, b := range f.Blocks {
		if !g.Reachable(i) {
			c.report(f, b, -1, "unreachable block")
		}
	}
}

func (c *checker) structInstr(f *ir.Func, b *ir.Block, i int, in *ir.Instr) {
	if in.Op <= ir.OpInvalid || in.Op >= ir.NumOps {
		c.report(f, b, i, "invalid opcode %d", int(in.Op))
		return
	}

	switch {
	case in.Op == ir.Call:
		if in.Type == ir.Void && in.Defines() {
			c.report(f, b, i, "void call defines %v", ir.Temp(in.Result))
		}
	case in.Op.HasResult() && !in.Defines():
		c.report(f, b, i, "%v must define a register", in.Op)
	case !in.Op.HasResult() && in.Defines():
		c.report(f, b, i, "%v must not define a register", in.Op)
	}

	args, targets := arity(in.Op)

	if in.Op == ir.Call {
		args = len(in.Args)
	}

	if in.Op == ir.Ret && len(in.Args) <= 1 {
		args = len(in.Args)
	}

	if len(in.Args) != args {
		c.report(f, b, i, "%v takes %d operands, got %d", in.Op, args, len(in.Args))
	}

	if len(in.Targets) != targets {
		c.report(f, b, i, "%v takes %d targets, got %d", in.Op, targets, len(in.Targets))
	}

	switch in.Op {
	case ir.Call:
		if _, _, ok := c.m.Signature(in.Callee); !ok {
			c.report(f, b, i, "call to unknown function @%s", in.Callee)
		}
	case ir.Trap:
		if in.Str == "" {
			c.report(f, b, i, "trap without a kind")
		}
	case ir.Alloca:
		if len(in.Args) == 1 && in.Args[0].Kind == ir.KindInt && in.Args[0].Int < 0 {
			c.report(f, b, i, "negative alloca size %d", in.Args[0].Int)
		}
	}
}

// arity is the expected number of operands and branch targets.
func arity(op ir.Op) (args, targets int) {
	switch c := op.Class(); {
	case c == ir.ClassIntArith, c == ir.ClassFloatArith, c == ir.ClassIntCmp, c == ir.ClassFloatCmp:
		return 2, 0
	case c == ir.ClassConv:
		return 1, 0
	}

	switch op {
	case ir.Alloca, ir.Load:
		return 1, 0
	case ir.Store, ir.GEP, ir.IdxChk:
		return 2, 0
	case ir.Br:
		return 0, 1
	case ir.CBr:
		return 1, 2
	case ir.Ret:
		return 1, 0
	}

	return 0, 0
}
