package df

import (
	"github.com/slowlang/slow/compiler/ir"
	"github.com/slowlang/slow/compiler/set"
)

type (
	// Graph is the control flow graph of a function.
	// Blocks are referred to by their index in Func.Blocks.
	Graph struct {
		Func *ir.Func

		Index map[string]int

		Succs [][]int
		Preds [][]int

		// RPO lists reachable blocks in reverse post-order from the entry.
		RPO []int

		// Order is the RPO position of a block or -1 if it's unreachable.
		Order []int

		// IDom is the immediate dominator. The entry and unreachable blocks have -1.
		IDom []int
	}

	Liveness struct {
		In  []set.Bits[ir.ValueID]
		Out []set.Bits[ir.ValueID]
	}
)

// Build computes edges, ordering and dominators.
// Branches to unknown labels are ignored.
func Build(f *ir.Func) *Graph {
	n := len(f.Blocks)

	g := &Graph{
		Func:  f,
		Index: f.BlockIndex(),
		Succs: make([][]int, n),
		Preds: make([][]int, n),
		Order: make([]int, n),
		IDom:  make([]int, n),
	}

	for i, b := range f.Blocks {
		for _, l := range b.Successors() {
			j, ok := g.Index[l]
			if !ok {
				continue
			}

			g.Succs[i] = append(g.Succs[i], j)
			g.Preds[j] = append(g.Preds[j], i)
		}
	}

	g.order()
	g.dominators()

	return g
}

func (g *Graph) Reachable(b int) bool { return g.Order[b] >= 0 }

// Dominates reports whether every path from the entry to b goes through a.
func (g *Graph) Dominates(a, b int) bool {
	if !g.Reachable(a) || !g.Reachable(b) {
		return false
	}

	for b != -1 {
		if a == b {
			return true
		}

		b = g.IDom[b]
	}

	return false
}

func (g *Graph) order() {
	n := len(g.Succs)

	for i := range g.Order {
		g.Order[i] = -1
	}

	if n == 0 {
		return
	}

	visited := set.Make[int](n)
	post := make([]int, 0, n)

	type frame struct{ b, next int }

	stack := []frame{{b: 0}}
	visited.Set(0)

	for len(stack) != 0 {
		top := &stack[len(stack)-1]

		if top.next < len(g.Succs[top.b]) {
			s := g.Succs[top.b][top.next]
			top.next++

			if !visited.IsSet(s) {
				visited.Set(s)
				stack = append(stack, frame{b: s})
			}

			continue
		}

		post = append(post, top.b)
		stack = stack[:len(stack)-1]
	}

	g.RPO = make([]int, len(post))

	for i, b := range post {
		p := len(post) - 1 - i
		g.RPO[p] = b
		g.Order[b] = p
	}
}

// dominators is Cooper, Harvey and Kennedy "A Simple, Fast Dominance Algorithm".
func (g *Graph) dominators() {
	for i := range g.IDom {
		g.IDom[i] = -1
	}

	if len(g.RPO) == 0 {
		return
	}

	entry := g.RPO[0]
	g.IDom[entry] = entry

	for changed := true; changed; {
		changed = false

		for _, b := range g.RPO[1:] {
			nd := -1

			for _, p := range g.Preds[b] {
				if g.IDom[p] == -1 {
					continue
				}

				if nd == -1 {
					nd = p
					continue
				}

				nd = g.intersect(p, nd)
			}

			if g.IDom[b] != nd {
				g.IDom[b] = nd
				changed = true
			}
		}
	}

	g.IDom[entry] = -1
}

func (g *Graph) intersect(a, b int) int {
	for a != b {
		for g.Order[a] > g.Order[b] {
			a = g.idom(a)
		}

		for g.Order[b] > g.Order[a] {
			b = g.idom(b)
		}
	}

	return a
}

func (g *Graph) idom(b int) int {
	if b == g.RPO[0] {
		return b
	}

	return g.IDom[b]
}

// Live computes registers live at block entry and exit.
// Block parameters are defined at the block start, branch arguments are
// used by the predecessor's terminator.
func Live(g *Graph) *Liveness {
	n := len(g.Func.Blocks)

	l := &Liveness{
		In:  make([]set.Bits[ir.ValueID], n),
		Out: make([]set.Bits[ir.ValueID], n),
	}

	use := make([]set.Bits[ir.ValueID], n)
	def := make([]set.Bits[ir.ValueID], n)

	for i, b := range g.Func.Blocks {
		for _, p := range b.Params {
			def[i].Set(p.ID)
		}

		for _, in := range b.Code {
			for _, a := range in.Uses() {
				if a.IsTemp() && !def[i].IsSet(a.ID) {
					use[i].Set(a.ID)
				}
			}

			if in.Defines() {
				def[i].Set(in.Result)
			}
		}
	}

	for changed := true; changed; {
		changed = false

		for k := len(g.RPO) - 1; k >= 0; k-- {
			b := g.RPO[k]

			for _, s := range g.Succs[b] {
				if l.Out[b].Merge(l.In[s]) {
					changed = true
				}
			}

			in := l.Out[b].Copy()
			in.Subtract(def[b])
			in.Merge(use[b])

			if !in.Equal(l.In[b]) {
				l.In[b] = in
				changed = true
			}
		}
	}

	return l
}
