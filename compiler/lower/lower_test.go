package lower

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/slowlang/slow/compiler/ast"
	"github.com/slowlang/slow/compiler/ir"
	"github.com/slowlang/slow/compiler/tp"
	"github.com/slowlang/slow/compiler/verify"
	"github.com/slowlang/slow/compiler/vm"
)

func v64(name string) *ast.Var { return &ast.Var{Name: name, Type: tp.Int64} }

func ref(v *ast.Var) *ast.VarRef { return &ast.VarRef{Var: v} }

func lit(x int64) *ast.IntLit { return &ast.IntLit{Value: x, T: tp.Int64} }

func bin(op ast.BinOp, x, y ast.Expr) *ast.Binary { return &ast.Binary{Op: op, X: x, Y: y} }

func set(v *ast.Var, x ast.Expr) *ast.Assign { return &ast.Assign{Target: ref(v), Value: x} }

func body(l ...ast.Stmt) *ast.Block { return &ast.Block{Stmts: l} }

func ret(x ast.Expr) *ast.Return { return &ast.Return{X: x} }

func addFunc() *ast.Func {
	a, b := v64("a"), v64("b")

	return &ast.Func{
		Name:   "add",
		Params: []*ast.Var{a, b},
		Result: tp.Int64,
		Body:   body(ret(bin(ast.Add, ref(a), ref(b)))),
	}
}

func factFunc() *ast.Func {
	a := v64("a")

	f := &ast.Func{
		Name:   "factorial",
		Params: []*ast.Var{a},
		Result: tp.Int64,
	}

	f.Body = body(
		&ast.If{
			Cond: bin(ast.Le, ref(a), lit(1)),
			Then: body(ret(lit(1))),
		},
		ret(bin(ast.Mul, ref(a), &ast.Call{Func: f, Args: []ast.Expr{bin(ast.Sub, ref(a), lit(1))}})),
	)

	return f
}

func lowerRun(t *testing.T, u *ast.Unit, entry string, args ...vm.Value) (vm.Value, string) {
	t.Helper()

	m, err := Module(context.Background(), u)
	require.NoError(t, err)

	prog, err := verify.Module(context.Background(), m, verify.Options{AllErrors: true})
	require.NoError(t, err, "il:\n%s", m)

	var out bytes.Buffer

	res, err := vm.New(vm.Config{Out: &out}).Run(context.Background(), prog, entry, args...)
	require.NoError(t, err, "il:\n%s", m)

	return res, out.String()
}

func TestAdd(t *testing.T) {
	u := &ast.Unit{Name: "a", Funcs: []*ast.Func{addFunc()}}

	m, err := Module(context.Background(), u)
	require.NoError(t, err)

	assert.Equal(t, `module "a"

func @add(%0: i64, %1: i64) -> i64 {
entry:
  %2 = add i64 %0, %1
  ret %2
}
`, m.String())

	res, _ := lowerRun(t, u, "add", vm.Int(3), vm.Int(4))
	assert.Equal(t, vm.Int(7), res)
}

func TestFactorial(t *testing.T) {
	u := &ast.Unit{Name: "fact", Funcs: []*ast.Func{factFunc()}}

	res, _ := lowerRun(t, u, "factorial", vm.Int(5))
	assert.Equal(t, vm.Int(120), res)
}

func TestDeterminism(t *testing.T) {
	items := itemsUnit()

	u := &ast.Unit{
		Name:    "d",
		Classes: items.Classes,
		Funcs:   append([]*ast.Func{addFunc(), factFunc(), loopFunc()}, items.Funcs...),
	}

	first, err := Module(context.Background(), u)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		again, err := Module(context.Background(), u)
		require.NoError(t, err)

		assert.Equal(t, first.String(), again.String())
	}

	back, err := ir.Parse("d.il", []byte(first.String()))
	require.NoError(t, err)
	assert.NoError(t, ir.Compare(first, back))
}

func loopFunc() *ast.Func {
	n, s, i := v64("n"), v64("s"), v64("i")

	// for i := 0; i < n; i++ { if i%2 == 0 { continue }; if i > 7 { break }; s += i }
	return &ast.Func{
		Name:   "odds",
		Params: []*ast.Var{n},
		Result: tp.Int64,
		Body: body(
			&ast.VarDecl{Var: s},
			&ast.For{
				Init: &ast.VarDecl{Var: i, Init: lit(0)},
				Cond: bin(ast.Lt, ref(i), ref(n)),
				Post: set(i, bin(ast.Add, ref(i), lit(1))),
				Body: body(
					&ast.If{
						Cond: bin(ast.Eq, bin(ast.Rem, ref(i), lit(2)), lit(0)),
						Then: body(&ast.Continue{}),
					},
					&ast.If{
						Cond: bin(ast.Gt, ref(i), lit(7)),
						Then: body(&ast.Break{}),
					},
					set(s, bin(ast.Add, ref(s), ref(i))),
				),
			},
			ret(ref(s)),
		),
	}
}

func TestLoops(t *testing.T) {
	u := &ast.Unit{Name: "l", Funcs: []*ast.Func{loopFunc()}}

	for _, tc := range []struct{ n, exp int64 }{{0, 0}, {4, 4}, {20, 16}} {
		res, _ := lowerRun(t, u, "odds", vm.Int(tc.n))
		assert.Equal(t, vm.Int(tc.exp), res, "n = %d", tc.n)
	}
}

func TestWhileHeaderCondition(t *testing.T) {
	n, s := v64("n"), v64("s")

	u := &ast.Unit{Name: "w", Funcs: []*ast.Func{{
		Name:   "tri",
		Params: []*ast.Var{n},
		Result: tp.Int64,
		Body: body(
			&ast.VarDecl{Var: s, Init: lit(0)},
			&ast.While{
				Cond: bin(ast.Gt, ref(n), lit(0)),
				Body: body(
					set(s, bin(ast.Add, ref(s), ref(n))),
					set(n, bin(ast.Sub, ref(n), lit(1))),
				),
			},
			ret(ref(s)),
		),
	}}}

	m, err := Module(context.Background(), u)
	require.NoError(t, err)

	f := m.Funcs[0]
	cmps := 0

	for _, b := range f.Blocks {
		for _, in := range b.Code {
			if in.Op == ir.SCmpGt {
				cmps++
				assert.True(t, strings.HasPrefix(b.Label, "loop.head"), "compare in %v", b.Label)
			}
		}
	}

	assert.Equal(t, 1, cmps)

	res, _ := lowerRun(t, u, "tri", vm.Int(4))
	assert.Equal(t, vm.Int(10), res)
}

func TestShortCircuit(t *testing.T) {
	x := v64("x")

	// x != 0 && 10/x > 2
	u := &ast.Unit{Name: "sc", Funcs: []*ast.Func{{
		Name:   "f",
		Params: []*ast.Var{x},
		Result: tp.Bool{},
		Body: body(ret(bin(ast.LAnd,
			bin(ast.Ne, ref(x), lit(0)),
			bin(ast.Gt, bin(ast.Div, lit(10), ref(x)), lit(2)),
		))),
	}}}

	for _, tc := range []struct {
		x   int64
		exp bool
	}{{0, false}, {3, true}, {5, false}} {
		res, _ := lowerRun(t, u, "f", vm.Int(tc.x))
		assert.Equal(t, vm.Bool(tc.exp), res, "x = %d", tc.x)
	}
}

func counterUnit() *ast.Unit {
	counter := tp.NewClass("Counter", tp.Field{Name: "n", Type: tp.Int64})

	recv := &ast.Var{Name: "c", Type: counter}
	by := v64("by")

	// func (c *Counter) Inc(by int) int { c.n = c.n + by; return c.n }
	inc := &ast.Func{
		Name:   "Inc",
		Class:  counter,
		Recv:   recv,
		Params: []*ast.Var{by},
		Result: tp.Int64,
		Body: body(
			&ast.Assign{
				Target: &ast.FieldRef{X: ref(recv), Name: "n"},
				Value:  bin(ast.Add, &ast.FieldRef{X: ref(recv), Name: "n"}, ref(by)),
			},
			ret(&ast.FieldRef{X: ref(recv), Name: "n"}),
		),
	}

	c, k := &ast.Var{Name: "c", Type: counter}, v64("k")

	// func bump(c *Counter, k int) int { return c.Inc(k) }
	bump := &ast.Func{
		Name:   "bump",
		Params: []*ast.Var{c, k},
		Result: tp.Int64,
		Body:   body(ret(&ast.MethodCall{Recv: ref(c), Method: inc, Args: []ast.Expr{ref(k)}})),
	}

	obj := &ast.Var{Name: "obj", Type: counter}

	main := &ast.Func{
		Name:   "main",
		Result: tp.Int64,
		Body: body(
			&ast.VarDecl{Var: obj, Init: &ast.New{Class: counter}},
			&ast.ExprStmt{X: &ast.Call{Func: bump, Args: []ast.Expr{ref(obj), lit(2)}}},
			ret(&ast.Call{Func: bump, Args: []ast.Expr{ref(obj), lit(3)}}),
		),
	}

	return &ast.Unit{Name: "counter", Classes: []*tp.Class{counter}, Funcs: []*ast.Func{main, bump, inc}}
}

func TestCrossScopeMethodCall(t *testing.T) {
	u := counterUnit()

	m, err := Module(context.Background(), u)
	require.NoError(t, err)

	calls := 0

	for _, f := range m.Funcs {
		for _, b := range f.Blocks {
			for _, in := range b.Code {
				if in.Op != ir.Call {
					continue
				}

				calls++

				_, _, ok := m.Signature(in.Callee)
				assert.True(t, ok, "unresolved callee @%s in @%s", in.Callee, f.Name)
			}
		}
	}

	assert.Equal(t, 4, calls) // rt_alloc, bump, bump, Counter.Inc
	assert.Contains(t, m.Func("bump").String(), "call i64 @Counter.Inc(%0, %1)")

	res, _ := lowerRun(t, u, "main")
	assert.Equal(t, vm.Int(5), res)
}

func itemsUnit() *ast.Unit {
	item := tp.NewClass("Item", tp.Field{Name: "v", Type: tp.Int64})
	items := tp.Array{Elem: item}

	recv := &ast.Var{Name: "it", Type: item}

	get := &ast.Func{
		Name:   "Get",
		Class:  item,
		Recv:   recv,
		Result: tp.Int64,
		Body:   body(ret(&ast.FieldRef{X: ref(recv), Name: "v"})),
	}

	n, arr, i, j, s := v64("n"), &ast.Var{Name: "items", Type: items}, v64("i"), v64("j"), v64("s")

	at := func(idx *ast.Var) *ast.Index { return &ast.Index{X: ref(arr), Index: ref(idx)} }

	sum := &ast.Func{
		Name:   "sum",
		Params: []*ast.Var{n},
		Result: tp.Int64,
		Body: body(
			&ast.VarDecl{Var: arr, Init: &ast.MakeArray{T: items, Len: ref(n)}},
			&ast.For{
				Init: &ast.VarDecl{Var: i, Init: lit(0)},
				Cond: bin(ast.Lt, ref(i), ref(n)),
				Post: set(i, bin(ast.Add, ref(i), lit(1))),
				Body: body(
					&ast.Assign{Target: at(i), Value: &ast.New{Class: item}},
					&ast.Assign{
						Target: &ast.FieldRef{X: at(i), Name: "v"},
						Value:  bin(ast.Mul, ref(i), lit(10)),
					},
				),
			},
			&ast.VarDecl{Var: s, Init: lit(0)},
			&ast.For{
				Init: &ast.VarDecl{Var: j, Init: lit(0)},
				Cond: bin(ast.Lt, ref(j), &ast.Len{X: ref(arr)}),
				Post: set(j, bin(ast.Add, ref(j), lit(1))),
				Body: body(
					set(s, bin(ast.Add, ref(s), &ast.MethodCall{Recv: at(j), Method: get})),
					set(s, bin(ast.Add, ref(s), &ast.MethodCall{Recv: at(j), Method: get})),
				),
			},
			ret(ref(s)),
		),
	}

	return &ast.Unit{Name: "items", Classes: []*tp.Class{item}, Funcs: []*ast.Func{sum, get}}
}

func TestLoopScopedFetch(t *testing.T) {
	u := itemsUnit()

	for _, n := range []int64{1, 3, 5} {
		res, _ := lowerRun(t, u, "sum", vm.Int(n))
		assert.Equal(t, vm.Int(n*(n-1)*10), res, "n = %d", n)
	}
}

func TestElementStore(t *testing.T) {
	arr := &ast.Var{Name: "a", Type: tp.Array{Elem: tp.Int32}}

	u := &ast.Unit{Name: "st", Funcs: []*ast.Func{{
		Name:   "f",
		Result: tp.Int32,
		Body: body(
			&ast.VarDecl{Var: arr, Init: &ast.MakeArray{T: tp.Array{Elem: tp.Int32}, Len: lit(3)}},
			&ast.Assign{Target: &ast.Index{X: ref(arr), Index: lit(2)}, Value: &ast.IntLit{Value: -5, T: tp.Int32}},
			ret(&ast.Index{X: ref(arr), Index: lit(2)}),
		),
	}}}

	m, err := Module(context.Background(), u)
	require.NoError(t, err)

	stores := 0

	for _, in := range m.Funcs[0].Blocks[0].Code {
		if in.Op == ir.Store {
			stores++
			assert.Equal(t, ir.I32, in.Type)
		}
	}

	assert.Equal(t, 1, stores)

	res, _ := lowerRun(t, u, "f")
	assert.Equal(t, vm.TypedInt(ir.I32, -5), res)
}

func TestStorageClasses(t *testing.T) {
	x := &ast.Var{Name: "x", Type: tp.Int64, Storage: ast.Stack}
	h := &ast.Var{Name: "h", Type: tp.Int64, Storage: ast.Heap}
	p := &ast.Var{Name: "p", Type: tp.Pointer{Elem: tp.Int64}}
	i := v64("i")

	// x := 1; h := 2; p := &x; for i := 0; i < 3; i++ { *p = *p + h }; p = &h; *p = 10; return x + h
	u := &ast.Unit{Name: "mem", Funcs: []*ast.Func{{
		Name:   "f",
		Result: tp.Int64,
		Body: body(
			&ast.VarDecl{Var: x, Init: lit(1)},
			&ast.VarDecl{Var: h, Init: lit(2)},
			&ast.VarDecl{Var: p, Init: &ast.AddrOf{Var: x}},
			&ast.For{
				Init: &ast.VarDecl{Var: i, Init: lit(0)},
				Cond: bin(ast.Lt, ref(i), lit(3)),
				Post: set(i, bin(ast.Add, ref(i), lit(1))),
				Body: body(&ast.Assign{
					Target: &ast.Deref{X: ref(p)},
					Value:  bin(ast.Add, &ast.Deref{X: ref(p)}, ref(h)),
				}),
			},
			set(p, &ast.AddrOf{Var: h}),
			&ast.Assign{Target: &ast.Deref{X: ref(p)}, Value: lit(10)},
			ret(bin(ast.Add, ref(x), ref(h))),
		),
	}}}

	res, _ := lowerRun(t, u, "f")
	assert.Equal(t, vm.Int(17), res)
}

func TestPrintAndStrings(t *testing.T) {
	s := &ast.Var{Name: "s", Type: tp.String{}}

	u := &ast.Unit{Name: "p", Funcs: []*ast.Func{{
		Name:   "main",
		Result: tp.Void{},
		Body: body(
			&ast.VarDecl{Var: s, Init: bin(ast.Add, &ast.StrLit{Value: "n"}, &ast.StrLit{Value: " ="})},
			&ast.Print{
				Args: []ast.Expr{
					ref(s),
					&ast.IntLit{Value: 5, T: tp.Int16},
					&ast.BoolLit{Value: true},
					&ast.FloatLit{Value: 1.5},
					&ast.Convert{X: lit(42), T: tp.String{}},
					&ast.Len{X: ref(s)},
				},
				Newline: true,
			},
			&ast.Print{
				Args:    []ast.Expr{bin(ast.Ne, ref(s), &ast.StrLit{Value: "n ="})},
				Newline: true,
			},
		),
	}}}

	_, out := lowerRun(t, u, "main")
	assert.Equal(t, "n = 5 true 1.5 42 3\nfalse\n", out)
}

func TestZeroValues(t *testing.T) {
	i := &ast.Var{Name: "i", Type: tp.Int32}
	b := &ast.Var{Name: "b", Type: tp.Bool{}}
	f := &ast.Var{Name: "f", Type: tp.Float{}}
	s := &ast.Var{Name: "s", Type: tp.String{}}

	u := &ast.Unit{Name: "z", Funcs: []*ast.Func{{
		Name:   "main",
		Result: tp.Void{},
		Body: body(
			&ast.VarDecl{Var: i},
			&ast.VarDecl{Var: b},
			&ast.VarDecl{Var: f},
			&ast.VarDecl{Var: s},
			&ast.Print{
				Args:    []ast.Expr{ref(i), ref(b), ref(f), &ast.Len{X: ref(s)}},
				Newline: true,
			},
		),
	}}}

	_, out := lowerRun(t, u, "main")
	assert.Equal(t, "0 false 0 0\n", out)
}

func TestConversions(t *testing.T) {
	x := &ast.Var{Name: "x", Type: tp.Float{}}

	// int16(int64(x) * 1000) with wrap around
	u := &ast.Unit{Name: "c", Funcs: []*ast.Func{{
		Name:   "f",
		Params: []*ast.Var{x},
		Result: tp.Int16,
		Body: body(ret(&ast.Convert{
			T: tp.Int16,
			X: bin(ast.Mul, &ast.Convert{X: ref(x), T: tp.Int64}, lit(1000)),
		})),
	}}}

	res, _ := lowerRun(t, u, "f", vm.Float(40.9))
	assert.Equal(t, vm.TypedInt(ir.I16, -25536), res)
}

func TestInternalError(t *testing.T) {
	stray := &ast.Func{Name: "stray", Result: tp.Int64, Body: body(ret(lit(1)))}

	u := &ast.Unit{Name: "bad", Funcs: []*ast.Func{{
		Name:   "main",
		Result: tp.Int64,
		Body:   body(ret(&ast.Call{Func: stray})),
	}}}

	_, err := Module(context.Background(), u)

	var ie *InternalError
	require.True(t, errors.As(err, &ie), "%v", err)

	assert.Equal(t, "main", ie.Func)
	assert.Contains(t, ie.Error(), "unregistered function stray")
}

func TestMissingReturnTraps(t *testing.T) {
	u := &ast.Unit{Name: "mr", Funcs: []*ast.Func{{
		Name:   "f",
		Result: tp.Int64,
		Body:   body(),
	}}}

	m, err := Module(context.Background(), u)
	require.NoError(t, err)

	prog, err := verify.Module(context.Background(), m, verify.Options{})
	require.NoError(t, err)

	_, err = vm.New(vm.Config{}).Run(context.Background(), prog, "f")

	var trap *vm.Trap
	require.True(t, errors.As(err, &trap))
	assert.Equal(t, vm.Explicit, trap.Kind)
}
