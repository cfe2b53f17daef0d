package back

import (
	"github.com/slowlang/slow/compiler/asm/arm64"
	"github.com/slowlang/slow/compiler/ir"
)

type (
	// move copies src to dst. Constant sources have konst set.
	move struct {
		dst loc
		src source
	}

	source struct {
		loc   loc
		val   ir.Value
		konst bool
	}
)

const (
	cycleScratch = arm64.X16
	moveScratch  = arm64.X17
)

// permutate emits a parallel copy. Moves whose destination is still read by
// another pending move wait, cycles are broken through a scratch register.
func (e *emitter) permutate(l []move) {
	pending := l[:0:0]

	for _, m := range l {
		if !m.src.konst && m.src.loc == m.dst {
			continue
		}

		pending = append(pending, m)
	}

	if len(pending) > 1 {
		e.comment("permutate %d", len(pending))
	}

	for len(pending) != 0 {
		progress := false

		for i := 0; i < len(pending); i++ {
			if readBy(pending, i) {
				continue
			}

			e.move(pending[i].dst, pending[i].src)

			pending = append(pending[:i], pending[i+1:]...)
			i--

			progress = true
		}

		if progress {
			continue
		}

		// every destination is read by another move: a cycle
		d := pending[0].dst
		tmp := loc{Reg: cycleScratch, Slot: -1}

		e.move(tmp, source{loc: d})

		for j := range pending {
			if !pending[j].src.konst && pending[j].src.loc == d {
				pending[j].src.loc = tmp
			}
		}
	}
}

func readBy(l []move, i int) bool {
	for j, m := range l {
		if j != i && !m.src.konst && m.src.loc == l[i].dst {
			return true
		}
	}

	return false
}

func (e *emitter) move(dst loc, src source) {
	switch {
	case src.konst:
		r := dst.Reg
		if dst.spilled() {
			r = moveScratch
		}

		e.b = arm64.MovImm(e.b, r, constBits(src.val))

		if dst.spilled() {
			e.ins("STR", r, e.slot(dst.Slot))
		}
	case !dst.spilled() && !src.loc.spilled():
		e.ins("MOV", dst.Reg, src.loc.Reg)
	case !dst.spilled():
		e.ins("LDR", dst.Reg, e.slot(src.loc.Slot))
	case !src.loc.spilled():
		e.ins("STR", src.loc.Reg, e.slot(dst.Slot))
	default:
		e.ins("LDR", moveScratch, e.slot(src.loc.Slot))
		e.ins("STR", moveScratch, e.slot(dst.Slot))
	}
}

func constBits(v ir.Value) int64 {
	switch v.Kind {
	case ir.KindInt, ir.KindBool:
		return v.Int
	}

	return 0
}
