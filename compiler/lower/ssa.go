package lower

import (
	"github.com/slowlang/slow/compiler/ast"
	"github.com/slowlang/slow/compiler/ir"
)

// Register variables are kept in SSA form while lowering,
// after Braun et al., "Simple and Efficient Construction of SSA Form".
// Phis are block parameters; their arguments are appended to the
// predecessors' branch targets.

type (
	ssa struct {
		f *ir.Func

		defs   map[*ir.Block]map[*ast.Var]ir.Value
		preds  map[*ir.Block][]*ir.Block
		sealed map[*ir.Block]bool

		incomplete map[*ir.Block][]pending
	}

	pending struct {
		v *ast.Var
		p ir.Value
	}
)

func newSSA(f *ir.Func) *ssa {
	return &ssa{
		f:          f,
		defs:       make(map[*ir.Block]map[*ast.Var]ir.Value),
		preds:      make(map[*ir.Block][]*ir.Block),
		sealed:     make(map[*ir.Block]bool),
		incomplete: make(map[*ir.Block][]pending),
	}
}

func (s *ssa) write(b *ir.Block, v *ast.Var, x ir.Value) {
	m := s.defs[b]
	if m == nil {
		m = make(map[*ast.Var]ir.Value)
		s.defs[b] = m
	}

	m[v] = x
}

// read returns the value of v at the end of b, or false if v is not defined
// on some path to b.
func (s *ssa) read(b *ir.Block, v *ast.Var) (ir.Value, bool) {
	if x, ok := s.defs[b][v]; ok {
		return x, true
	}

	if !s.sealed[b] {
		p := s.f.AddParam(b, irType(v.Type))
		s.incomplete[b] = append(s.incomplete[b], pending{v: v, p: p})
		s.write(b, v, p)

		return p, true
	}

	preds := s.preds[b]

	switch len(preds) {
	case 0:
		return ir.Value{}, false
	case 1:
		x, ok := s.read(preds[0], v)
		if ok {
			s.write(b, v, x)
		}

		return x, ok
	}

	p := s.f.AddParam(b, irType(v.Type))
	s.write(b, v, p)

	if !s.addArgs(b, v) {
		return ir.Value{}, false
	}

	return p, true
}

// addArgs passes the value of v from every predecessor to the newest parameter of b.
func (s *ssa) addArgs(b *ir.Block, v *ast.Var) bool {
	for _, pred := range s.preds[b] {
		x, ok := s.read(pred, v)
		if !ok {
			return false
		}

		t := pred.Terminator()

		for i := range t.Targets {
			if t.Targets[i].Label == b.Label {
				t.Targets[i].Args = append(t.Targets[i].Args, x)
			}
		}
	}

	return true
}

// seal marks b as having all its predecessors known.
func (s *ssa) seal(b *ir.Block) bool {
	if s.sealed[b] {
		return true
	}

	s.sealed[b] = true

	for _, p := range s.incomplete[b] {
		if !s.addArgs(b, p.v) {
			return false
		}
	}

	delete(s.incomplete, b)

	return true
}

// edge records a branch from b to each of targets.
func (s *ssa) edge(from *ir.Block, targets ...*ir.Block) {
	for i, to := range targets {
		dup := false

		for _, t := range targets[:i] {
			dup = dup || t == to
		}

		if !dup {
			s.preds[to] = append(s.preds[to], from)
		}
	}
}
