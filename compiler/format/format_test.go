package format

import (
	"context"
	"testing"

	"github.com/m1gwings/treedrawer/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/slow/compiler/ast"
	"github.com/slowlang/slow/compiler/front"
	"github.com/slowlang/slow/compiler/tp"
)

const src = `package main

type P struct {
	x    int
	next *P
}

func (p *P) Sum(k int) int {
	s := 0
	for i := 0; i < k; i++ {
		if i%2 == 0 {
			continue
		} else if i > 5 {
			break
		}
		s += i * (p.x + 1)
	}
	return s
}

func main() {
	var n int32 = -3
	q := &n
	*q = 7
	println("n", n, len("ab"), float64(n)/2.5)
}
`

const formatted = `type P struct {
	x int64
	next *P
}

func (p *P) Sum(k int64) int64 {
	var s int64 = 0
	for i := 0; i < k; i = i + 1 {
		if (i % 2) == 0 {
			continue
		} else if i > 5 {
			break
		}
		s = s + (i * (p.x + 1))
	}
	return s
}

func main() {
	var n int32 = -3 // stack
	var q *int32 = &n
	*q = 7
	println("n", n, len("ab"), float64(n) / 2.5)
}
`

func parse(t *testing.T) *ast.Unit {
	t.Helper()

	u, err := front.Parse(context.Background(), "prog.go", []byte(src))
	require.NoError(t, err)

	return u
}

func TestFormat(t *testing.T) {
	u := parse(t)

	b, err := Format(context.Background(), nil, u)
	require.NoError(t, err)

	assert.Equal(t, formatted, string(b))
}

func TestFormatExpr(t *testing.T) {
	x := &ast.Unary{Op: ast.Neg, X: &ast.Binary{
		Op: ast.Shl,
		X:  &ast.IntLit{Value: 1, T: tp.Int64},
		Y:  &ast.Convert{X: &ast.FloatLit{Value: 2.5}, T: tp.Int32},
	}}

	b, err := Format(context.Background(), []byte("x: "), x)
	require.NoError(t, err)
	assert.Equal(t, "x: -(1 << int32(2.5))", string(b))

	_, err = Format(context.Background(), nil, 5)
	assert.Error(t, err)
}

func TestTree(t *testing.T) {
	u := parse(t)

	tr, err := Tree(u)
	require.NoError(t, err)

	assert.Equal(t, tree.NodeString("unit prog"), tr.Val())

	for i, name := range []string{"type P", "func P.Sum", "func main"} {
		c, err := tr.Child(i)
		require.NoError(t, err)

		assert.Equal(t, tree.NodeString(name), c.Val())
	}

	_, err = tr.Child(3)
	assert.Error(t, err)

	assert.NotEmpty(t, tr.String())
}
