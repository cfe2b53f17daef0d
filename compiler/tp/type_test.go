package tp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slowlang/slow/compiler/ir"
)

func TestClassLayout(t *testing.T) {
	c := NewClass("Point", Field{Name: "x", Type: Int64}, Field{Name: "ok", Type: Bool{}})
	c.AddField("next", Pointer{Elem: Int32})

	f, ok := c.Field("ok")
	assert.True(t, ok)
	assert.Equal(t, 8, f.Offset)
	assert.Equal(t, ir.I1, f.Type.IR())
	assert.Equal(t, 24, c.Size())

	_, ok = c.Field("y")
	assert.False(t, ok)
}

func TestIdentical(t *testing.T) {
	a := NewClass("A")
	b := NewClass("A")

	assert.True(t, Identical(Array{Elem: a}, Array{Elem: a}))
	assert.False(t, Identical(Array{Elem: a}, Array{Elem: b}))
	assert.True(t, Identical(Int32, Int{Bits: 32}))
	assert.False(t, Identical(Int32, Int64))
	assert.True(t, Identical(Func{Params: []Type{Int64}, Result: Void{}}, Func{Params: []Type{Int64}, Result: Void{}}))
	assert.Equal(t, "func(int64, []A) bool", Func{Params: []Type{Int64, Array{Elem: a}}, Result: Bool{}}.String())
	assert.Equal(t, ir.I16, Int16.IR())
}
