package ir

import (
	"strconv"

	"tlog.app/go/tlog/tlwire"
)

type (
	// ValueID names a virtual register, unique within its function.
	ValueID int

	Kind int8

	// Value is an instruction operand: a virtual register or an untyped constant.
	// Constants take their type from the position they are used in.
	Value struct {
		Kind  Kind
		ID    ValueID
		Int   int64
		Float float64
	}

	Module struct {
		Name string

		Externs []*Extern
		Funcs   []*Func
	}

	// Extern declares a runtime-library or cross-module function.
	Extern struct {
		Name   string
		Params []Type
		Ret    Type
	}

	Func struct {
		Name   string
		Params []Param
		Ret    Type

		// Blocks[0] is the entry block.
		Blocks []*Block

		// NextID is the next free virtual register id.
		NextID ValueID
	}

	Param struct {
		ID   ValueID
		Type Type
	}

	Block struct {
		Label  string
		Params []Param
		Code   []*Instr
	}

	// Instr is a tagged variant over the opcode set.
	//
	// Type is the operation type: the result type for arithmetic, conversions,
	// loads and calls; the operand type for comparisons and stores.
	Instr struct {
		Op     Op
		Result ValueID
		Type   Type

		Args    []Value
		Callee  string
		Targets []Target

		// Str is the literal of const_str and the kind of trap.
		Str string

		Loc Pos
	}

	Target struct {
		Label string
		Args  []Value
	}

	Pos struct {
		Line int
		Col  int
	}
)

const (
	KindNone Kind = iota
	KindTemp
	KindInt
	KindFloat
	KindBool
	KindNull
)

const NoValue ValueID = -1

func Temp(id ValueID) Value     { return Value{Kind: KindTemp, ID: id} }
func Int(x int64) Value         { return Value{Kind: KindInt, Int: x} }
func Float(x float64) Value     { return Value{Kind: KindFloat, Float: x} }
func Null() Value               { return Value{Kind: KindNull} }
func (p Param) Value() Value    { return Temp(p.ID) }
func (v Value) IsTemp() bool    { return v.Kind == KindTemp }
func (v Value) IsConst() bool   { return v.Kind > KindTemp }
func (p Pos) IsZero() bool      { return p.Line == 0 && p.Col == 0 }
func (in *Instr) Defines() bool { return in.Result != NoValue }

func Bool(x bool) Value {
	v := Value{Kind: KindBool}
	if x {
		v.Int = 1
	}

	return v
}

// ResultType is the type of the register the instruction defines.
func (in *Instr) ResultType() Type {
	switch {
	case !in.Defines():
		return Void
	case in.Op.IsCompare():
		return I1
	case in.Op == Alloca, in.Op == GEP, in.Op == ConstNull:
		return Ptr
	case in.Op == ConstStr:
		return Str
	}

	return in.Type
}

// Uses lists all operands read by the instruction, branch arguments included.
func (in *Instr) Uses() []Value {
	if len(in.Targets) == 0 {
		return in.Args
	}

	l := append([]Value{}, in.Args...)

	for _, t := range in.Targets {
		l = append(l, t.Args...)
	}

	return l
}

// Terminator returns the last instruction if it is a terminator.
func (b *Block) Terminator() *Instr {
	if len(b.Code) == 0 {
		return nil
	}

	in := b.Code[len(b.Code)-1]
	if !in.Op.IsTerminator() {
		return nil
	}

	return in
}

func (b *Block) Terminated() bool { return b.Terminator() != nil }

// Successors lists branch target labels in terminator order.
func (b *Block) Successors() []string {
	t := b.Terminator()
	if t == nil {
		return nil
	}

	l := make([]string, len(t.Targets))
	for i, x := range t.Targets {
		l[i] = x.Label
	}

	return l
}

func (f *Func) Block(label string) *Block {
	for _, b := range f.Blocks {
		if b.Label == label {
			return b
		}
	}

	return nil
}

// BlockIndex maps labels to positions in f.Blocks.
func (f *Func) BlockIndex() map[string]int {
	m := make(map[string]int, len(f.Blocks))

	for i, b := range f.Blocks {
		if _, ok := m[b.Label]; !ok {
			m[b.Label] = i
		}
	}

	return m
}

func (f *Func) ParamTypes() []Type {
	l := make([]Type, len(f.Params))
	for i, p := range f.Params {
		l[i] = p.Type
	}

	return l
}

func (m *Module) Func(name string) *Func {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}

	return nil
}

func (m *Module) Extern(name string) *Extern {
	for _, e := range m.Externs {
		if e.Name == name {
			return e
		}
	}

	return nil
}

// Signature resolves a callee name to a defined function or an extern.
func (m *Module) Signature(name string) (params []Type, ret Type, ok bool) {
	if f := m.Func(name); f != nil {
		return f.ParamTypes(), f.Ret, true
	}

	if e := m.Extern(name); e != nil {
		return e.Params, e.Ret, true
	}

	return nil, Void, false
}

func (v Value) String() string {
	return string(v.Append(nil))
}

func (v Value) Append(b []byte) []byte {
	switch v.Kind {
	case KindTemp:
		b = append(b, '%')
		return strconv.AppendInt(b, int64(v.ID), 10)
	case KindInt:
		return strconv.AppendInt(b, v.Int, 10)
	case KindFloat:
		return appendFloat(b, v.Float)
	case KindBool:
		return strconv.AppendBool(b, v.Int != 0)
	case KindNull:
		return append(b, "null"...)
	default:
		return append(b, "<none>"...)
	}
}

func (v Value) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	return e.AppendFormat(b, "%s", v.String())
}

func appendFloat(b []byte, f float64) []byte {
	st := len(b)
	b = strconv.AppendFloat(b, f, 'g', -1, 64)

	for _, c := range b[st:] {
		switch c {
		case '.', 'e', 'I', 'N':
			return b
		}
	}

	return append(b, ".0"...)
}
