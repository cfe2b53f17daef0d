package back

import (
	"sort"

	"nikand.dev/go/heap"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/tlwire"

	"github.com/slowlang/slow/compiler/asm/arm64"
	"github.com/slowlang/slow/compiler/df"
	"github.com/slowlang/slow/compiler/ir"
)

type (
	// loc is where a virtual register lives: a physical register or a spill slot.
	loc struct {
		Reg  arm64.Reg
		Slot int // -1 if in a register
	}

	interval struct {
		id         ir.ValueID
		start, end int

		loc
	}

	active struct {
		heap.Heap[*interval]
	}

	allocation struct {
		locs  map[ir.ValueID]loc
		used  []arm64.Reg
		slots int

		// block start and end positions in the linear order
		bstart, bend []int
	}
)

// allocate assigns registers with linear scan over single live intervals.
// Blocks are numbered in reverse post-order, an interval spans from the first
// definition or live-in block start to the last use or live-out block end.
func allocate(f *ir.Func, g *df.Graph, pool []arm64.Reg) *allocation {
	a := &allocation{
		locs:   make(map[ir.ValueID]loc),
		bstart: make([]int, len(f.Blocks)),
		bend:   make([]int, len(f.Blocks)),
	}

	ivs := map[ir.ValueID]*interval{}

	touch := func(id ir.ValueID, p int) {
		it := ivs[id]
		if it == nil {
			ivs[id] = &interval{id: id, start: p, end: p, loc: loc{Slot: -1}}
			return
		}

		if p < it.start {
			it.start = p
		}

		if p > it.end {
			it.end = p
		}
	}

	pos := 0

	for _, p := range f.Params {
		touch(p.ID, pos)
	}

	for _, bi := range g.RPO {
		b := f.Blocks[bi]

		a.bstart[bi] = pos

		for _, p := range b.Params {
			touch(p.ID, pos)
		}

		pos++

		for _, in := range b.Code {
			for _, v := range in.Uses() {
				if v.IsTemp() {
					touch(v.ID, pos)
				}
			}

			if in.Defines() {
				touch(in.Result, pos)
			}

			pos++
		}

		a.bend[bi] = pos
		pos++
	}

	live := df.Live(g)

	for _, bi := range g.RPO {
		live.In[bi].Range(func(id ir.ValueID) bool {
			touch(id, a.bstart[bi])
			return true
		})

		live.Out[bi].Range(func(id ir.ValueID) bool {
			touch(id, a.bend[bi])
			return true
		})
	}

	list := make([]*interval, 0, len(ivs))

	for _, it := range ivs {
		list = append(list, it)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].start != list[j].start {
			return list[i].start < list[j].start
		}

		return list[i].id < list[j].id
	})

	act := active{Heap: heap.Heap[*interval]{Less: endsFirst}}

	free := make([]arm64.Reg, 0, len(pool))
	for i := len(pool) - 1; i >= 0; i-- {
		free = append(free, pool[i])
	}

	used := map[arm64.Reg]bool{}

	for _, it := range list {
		for act.Len() != 0 && act.Data[0].end < it.start {
			x := act.Pop()
			free = append(free, x.Reg)
		}

		if len(free) != 0 {
			it.Reg = free[len(free)-1]
			free = free[:len(free)-1]

			used[it.Reg] = true
			act.Push(it)

			continue
		}

		far := 0

		for i, x := range act.Data {
			if x.end > act.Data[far].end {
				far = i
			}
		}

		if x := act.Data[far]; x.end > it.end {
			it.Reg = x.Reg
			x.Reg, x.Slot = 0, a.slot()

			act.Data[far] = it
			act.Fix(far)

			tlog.V("regalloc").Printw("spill", "v", x.id, "for", it.id, "slot", x.Slot)

			continue
		}

		it.Slot = a.slot()

		tlog.V("regalloc").Printw("spill", "v", it.id, "slot", it.Slot)
	}

	for _, it := range list {
		a.locs[it.id] = it.loc
	}

	for _, r := range pool {
		if used[r] {
			a.used = append(a.used, r)
		}
	}

	if tlog.If("dump_regalloc") {
		for _, it := range list {
			tlog.Printw("interval", "func", f.Name, "v", it.id, "start", it.start, "end", it.end, "loc", it.loc)
		}
	}

	return a
}

func (a *allocation) slot() int {
	s := a.slots
	a.slots++

	return s
}

func (a *allocation) loc(id ir.ValueID) loc {
	l, ok := a.locs[id]
	if !ok {
		panic(id)
	}

	return l
}

func endsFirst(d []*interval, i, j int) bool {
	if d[i].end != d[j].end {
		return d[i].end < d[j].end
	}

	return d[i].id < d[j].id
}

func (l loc) spilled() bool { return l.Slot >= 0 }

func (l loc) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	if l.spilled() {
		return e.AppendFormat(b, "slot%d", l.Slot)
	}

	return e.AppendString(b, l.Reg.String())
}
