package tp

import (
	"fmt"
	"strings"

	"github.com/slowlang/slow/compiler/ir"
)

type (
	// Type is a checked source-level type.
	Type interface {
		// IR is the type of a register or memory slot holding the value.
		IR() ir.Type
		String() string
	}

	Void struct{}

	Bool struct{}

	Int struct {
		Bits int16
	}

	Float struct{}

	String struct{}

	// Pointer is the address of a single scalar, produced by taking the address of a variable.
	Pointer struct {
		Elem Type
	}

	// Array is a heap array with a run time length.
	Array struct {
		Elem Type
	}

	// Class values are pointers to a heap object with a fixed field layout.
	Class struct {
		Name   string
		Fields []Field

		size int
	}

	Field struct {
		Name   string
		Type   Type
		Offset int
	}

	Func struct {
		Params []Type
		Result Type
	}
)

// SlotSize is the size of an object field slot.
const SlotSize = 8

var (
	Int16 = Int{Bits: 16}
	Int32 = Int{Bits: 32}
	Int64 = Int{Bits: 64}
)

// NewClass lays out fields in declaration order, one slot each.
func NewClass(name string, fields ...Field) *Class {
	c := &Class{Name: name}

	for _, f := range fields {
		c.AddField(f.Name, f.Type)
	}

	return c
}

func (c *Class) AddField(name string, t Type) Field {
	f := Field{Name: name, Type: t, Offset: c.size}
	c.Fields = append(c.Fields, f)
	c.size += SlotSize

	return f
}

func (c *Class) Field(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}

	return Field{}, false
}

// Size is the object size in bytes.
func (c *Class) Size() int { return c.size }

func (Void) IR() ir.Type    { return ir.Void }
func (Bool) IR() ir.Type    { return ir.I1 }
func (Float) IR() ir.Type   { return ir.F64 }
func (String) IR() ir.Type  { return ir.Str }
func (Pointer) IR() ir.Type { return ir.Ptr }
func (Array) IR() ir.Type   { return ir.Ptr }
func (*Class) IR() ir.Type  { return ir.Ptr }
func (Func) IR() ir.Type    { return ir.Ptr }

func (x Int) IR() ir.Type {
	switch x.Bits {
	case 16:
		return ir.I16
	case 32:
		return ir.I32
	default:
		return ir.I64
	}
}

func (Void) String() string      { return "void" }
func (Bool) String() string      { return "bool" }
func (Float) String() string     { return "float64" }
func (String) String() string    { return "string" }
func (x Int) String() string     { return fmt.Sprintf("int%d", x.Bits) }
func (x Pointer) String() string { return "*" + x.Elem.String() }
func (x Array) String() string   { return "[]" + x.Elem.String() }
func (x *Class) String() string  { return x.Name }

func (x Func) String() string {
	var b strings.Builder

	b.WriteString("func(")

	for i, p := range x.Params {
		if i != 0 {
			b.WriteString(", ")
		}

		b.WriteString(p.String())
	}

	b.WriteString(")")

	if x.Result != nil && !IsVoid(x.Result) {
		b.WriteString(" " + x.Result.String())
	}

	return b.String()
}

// Identical reports type identity. Classes are identical only to themselves.
func Identical(a, b Type) bool {
	switch a := a.(type) {
	case Pointer:
		b, ok := b.(Pointer)
		return ok && Identical(a.Elem, b.Elem)
	case Array:
		b, ok := b.(Array)
		return ok && Identical(a.Elem, b.Elem)
	case Func:
		b, ok := b.(Func)
		if !ok || len(a.Params) != len(b.Params) || !Identical(a.Result, b.Result) {
			return false
		}

		for i := range a.Params {
			if !Identical(a.Params[i], b.Params[i]) {
				return false
			}
		}

		return true
	case nil:
		return b == nil
	}

	return a == b
}

func IsVoid(t Type) bool {
	_, ok := t.(Void)
	return ok || t == nil
}

func IsInt(t Type) bool {
	_, ok := t.(Int)
	return ok
}

func IsFloat(t Type) bool {
	_, ok := t.(Float)
	return ok
}

func IsNumeric(t Type) bool { return IsInt(t) || IsFloat(t) }

// IsRef reports types whose zero value is a null pointer.
func IsRef(t Type) bool {
	switch t.(type) {
	case Pointer, Array, *Class:
		return true
	}

	return false
}
