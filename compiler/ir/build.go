package ir

import "fmt"

// Construction is cheap and unchecked: ordering and typing invariants are the
// caller's precondition and are enforced later by the verifier.

type (
	Builder struct {
		Func  *Func
		Block *Block

		Loc Pos
	}
)

func NewModule(name string) *Module {
	return &Module{Name: name}
}

func (m *Module) AddExtern(name string, ret Type, params ...Type) *Extern {
	e := &Extern{
		Name:   name,
		Params: params,
		Ret:    ret,
	}

	m.Externs = append(m.Externs, e)

	return e
}

// NewFunc appends a function with fresh parameter registers %0..%n-1.
func (m *Module) NewFunc(name string, ret Type, params ...Type) *Func {
	f := &Func{
		Name: name,
		Ret:  ret,
	}

	for _, t := range params {
		f.Params = append(f.Params, Param{ID: f.NewID(), Type: t})
	}

	m.Funcs = append(m.Funcs, f)

	return f
}

func (f *Func) NewID() ValueID {
	id := f.NextID
	f.NextID++

	return id
}

func (f *Func) NewBlock(label string) *Block {
	b := &Block{Label: label}
	f.Blocks = append(f.Blocks, b)

	return b
}

// AddParam appends a block parameter with a fresh register.
func (f *Func) AddParam(b *Block, t Type) Value {
	p := Param{ID: f.NewID(), Type: t}
	b.Params = append(b.Params, p)

	return p.Value()
}

// Append adds in to the block. Appending past a terminator is a logic error.
func (b *Block) Append(in *Instr) {
	if b.Terminated() {
		panic(fmt.Sprintf("ir: append %v after terminator in block %v", in.Op, b.Label))
	}

	b.Code = append(b.Code, in)
}

func NewBuilder(f *Func) *Builder {
	return &Builder{Func: f}
}

func (b *Builder) SetBlock(blk *Block) { b.Block = blk }

func (b *Builder) emit(in *Instr) *Instr {
	in.Loc = b.Loc
	b.Block.Append(in)

	return in
}

func (b *Builder) def(op Op, t Type, args ...Value) Value {
	in := &Instr{Op: op, Type: t, Args: args, Result: b.Func.NewID()}
	b.emit(in)

	return Temp(in.Result)
}

func (b *Builder) Binary(op Op, t Type, x, y Value) Value { return b.def(op, t, x, y) }

// Cmp compares two operands of type t producing an i1.
func (b *Builder) Cmp(op Op, t Type, x, y Value) Value { return b.def(op, t, x, y) }

func (b *Builder) Conv(op Op, to Type, x Value) Value { return b.def(op, to, x) }

func (b *Builder) Alloca(size Value) Value { return b.def(Alloca, Ptr, size) }

func (b *Builder) Load(t Type, ptr Value) Value { return b.def(Load, t, ptr) }

func (b *Builder) GEP(ptr, off Value) Value { return b.def(GEP, Ptr, ptr, off) }

func (b *Builder) ConstNull() Value { return b.def(ConstNull, Ptr) }

func (b *Builder) ConstStr(s string) Value {
	in := &Instr{Op: ConstStr, Type: Str, Str: s, Result: b.Func.NewID()}
	b.emit(in)

	return Temp(in.Result)
}

func (b *Builder) Store(t Type, ptr, v Value) {
	b.emit(&Instr{Op: Store, Type: t, Args: []Value{ptr, v}, Result: NoValue})
}

func (b *Builder) IdxChk(idx, n Value) {
	b.emit(&Instr{Op: IdxChk, Type: I64, Args: []Value{idx, n}, Result: NoValue})
}

// Call emits a call. The returned value is meaningless when ret is Void.
func (b *Builder) Call(ret Type, callee string, args ...Value) Value {
	in := &Instr{Op: Call, Type: ret, Callee: callee, Args: args, Result: NoValue}
	if ret != Void {
		in.Result = b.Func.NewID()
	}

	b.emit(in)

	if ret == Void {
		return Value{}
	}

	return Temp(in.Result)
}

func (b *Builder) Br(to *Block, args ...Value) {
	b.emit(&Instr{Op: Br, Result: NoValue, Targets: []Target{{Label: to.Label, Args: args}}})
}

func (b *Builder) CBr(cond Value, then *Block, targs []Value, els *Block, eargs []Value) {
	b.emit(&Instr{
		Op:     CBr,
		Result: NoValue,
		Args:   []Value{cond},
		Targets: []Target{
			{Label: then.Label, Args: targs},
			{Label: els.Label, Args: eargs},
		},
	})
}

func (b *Builder) Ret(v Value) {
	in := &Instr{Op: Ret, Result: NoValue}
	if v.Kind != KindNone {
		in.Args = []Value{v}
	}

	b.emit(in)
}

func (b *Builder) RetVoid() { b.Ret(Value{}) }

func (b *Builder) Trap(kind string) {
	b.emit(&Instr{Op: Trap, Result: NoValue, Str: kind})
}
