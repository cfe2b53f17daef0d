package vm

import (
	"context"
	"io"
	"math"
	"strconv"
	"sync"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/slow/compiler/ir"
	"github.com/slowlang/slow/compiler/rt"
	"github.com/slowlang/slow/compiler/verify"
)

type (
	// Dispatch selects the instruction dispatch loop.
	// All strategies are observably equivalent.
	Dispatch int8

	Config struct {
		Dispatch Dispatch

		// MaxSteps limits executed instructions per run. 0 is unlimited.
		MaxSteps int64

		// MaxDepth limits the call stack depth.
		MaxDepth int

		// PollEvery is how many instructions run between cancellation checks.
		PollEvery int

		// HeapLimit bounds live heap bytes per run. 0 is rt.DefaultLimit.
		HeapLimit int64

		// Stop is polled together with the context.
		Stop func() bool

		Out io.Writer

		Profile bool
	}

	Machine struct {
		cfg Config

		mu    sync.Mutex
		progs map[*verify.Verified]*program
		prof  *Profile
	}

	// Value is a typed register value crossing the VM boundary.
	// Integers are kept sign extended. Str holds the text of str values.
	Value struct {
		Type ir.Type
		Bits uint64
		Str  string
	}
)

const (
	DispatchSwitch Dispatch = iota
	DispatchTable
	DispatchThreaded
)

const (
	DefaultMaxDepth  = 4096
	DefaultPollEvery = 1024
)

var dispatchNames = []string{
	DispatchSwitch:   "switch",
	DispatchTable:    "table",
	DispatchThreaded: "threaded",
}

func New(cfg Config) *Machine {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}

	if cfg.PollEvery <= 0 {
		cfg.PollEvery = DefaultPollEvery
	}

	m := &Machine{
		cfg:   cfg,
		progs: map[*verify.Verified]*program{},
	}

	if cfg.Profile {
		m.prof = newProfile()
	}

	return m
}

// Run executes entry of a verified module.
// Runtime faults are returned as *Trap.
func (m *Machine) Run(ctx context.Context, prog *verify.Verified, entry string, args ...Value) (res Value, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "vm: run", "entry", entry, "dispatch", m.cfg.Dispatch)
	defer tr.Finish("err", &err)

	if err = prog.Check(); err != nil {
		return Value{}, err
	}

	p, err := m.program(prog)
	if err != nil {
		return Value{}, errors.Wrap(err, "load")
	}

	fn, ok := p.byName[entry]
	if !ok {
		return Value{}, errors.New("no entry function @%s", entry)
	}

	if len(args) != len(fn.params) {
		return Value{}, errors.New("entry @%s takes %d arguments, got %d", entry, len(fn.params), len(args))
	}

	x := newExec(ctx, m, p)

	bits := make([]uint64, len(args))

	for i, a := range args {
		want := fn.f.Params[i].Type
		if a.Type != want {
			return Value{}, errors.New("entry @%s argument %d: want %v, got %v", entry, i, want, a.Type)
		}

		bits[i] = a.Bits

		if a.Type == ir.Str {
			bits[i] = x.rt.Strings.Static(a.Str)
		}
	}

	r, err := x.run(fn, bits)

	if x.prof != nil {
		m.mu.Lock()
		m.prof.merge(x.prof)
		m.mu.Unlock()
	}

	if tr.If("vm_stats") {
		tr.Printw("run stats", "steps", x.steps, "live_blocks", x.rt.Heap.Live(), "live_strings", x.rt.Strings.Live())
	}

	if err != nil {
		return Value{}, err
	}

	res = Value{Type: fn.f.Ret, Bits: r}

	if res.Type == ir.Str {
		res.Str, err = x.rt.Strings.Get(r)
		if err != nil {
			return Value{}, errors.Wrap(err, "result")
		}
	}

	return res, nil
}

// Profile returns a snapshot of the accumulated profile or nil if profiling is off.
func (m *Machine) Profile() *Profile {
	if m.prof == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.prof.clone()
}

func (m *Machine) program(v *verify.Verified) (*program, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.progs[v]; ok {
		return p, nil
	}

	p, err := load(v)
	if err != nil {
		return nil, err
	}

	m.progs[v] = p

	return p, nil
}

func ParseDispatch(s string) (Dispatch, error) {
	for d, n := range dispatchNames {
		if n == s {
			return Dispatch(d), nil
		}
	}

	return 0, errors.New("unknown dispatch: %q", s)
}

func (d Dispatch) String() string {
	if d < 0 || int(d) >= len(dispatchNames) {
		return "dispatch(" + strconv.Itoa(int(d)) + ")"
	}

	return dispatchNames[d]
}

func Int(x int64) Value     { return Value{Type: ir.I64, Bits: uint64(x)} }
func Float(x float64) Value { return Value{Type: ir.F64, Bits: math.Float64bits(x)} }
func Str(s string) Value    { return Value{Type: ir.Str, Str: s} }

func Bool(x bool) Value {
	v := Value{Type: ir.I1}
	if x {
		v.Bits = 1
	}

	return v
}

// TypedInt makes an integer value of the given width.
func TypedInt(t ir.Type, x int64) Value {
	return Value{Type: t, Bits: norm(t, uint64(x))}
}

func (v Value) Int() int64     { return int64(v.Bits) }
func (v Value) Float() float64 { return math.Float64frombits(v.Bits) }
func (v Value) Bool() bool     { return v.Bits != 0 }

func (v Value) String() string {
	switch v.Type {
	case ir.Void:
		return "void"
	case ir.I1:
		return strconv.FormatBool(v.Bool())
	case ir.F64:
		return rt.FormatFloat(v.Float())
	case ir.Str:
		return v.Str
	case ir.Ptr:
		if v.Bits == 0 {
			return "null"
		}

		return "ptr(0x" + strconv.FormatUint(v.Bits, 16) + ")"
	default:
		return strconv.FormatInt(v.Int(), 10)
	}
}
