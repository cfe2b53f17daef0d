package front

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/slowlang/slow/compiler/lower"
	"github.com/slowlang/slow/compiler/verify"
	"github.com/slowlang/slow/compiler/vm"
)

const progSrc = `package main

type Counter struct {
	n int
}

func (c *Counter) Inc(d int) int {
	c.n += d
	return c.n
}

func fact(n int) int {
	if n <= 1 {
		return 1
	}

	return n * fact(n-1)
}

func count(k int) int {
	c := new(Counter)

	for i := 0; i < k; i++ {
		c.Inc(i)
	}

	return c.n
}

func bump(p *int) {
	*p = *p + 1
}

func addr() int {
	x := 41
	bump(&x)

	return x
}

func half(n int) float64 {
	return float64(n) / 2
}

func narrow(x int) int16 {
	return int16(x) << 1
}

func greet(name string) string {
	return "hi " + name
}

func oob(i int) int {
	a := make([]int, 3)
	return a[i]
}

func main() {
	a := make([]int32, 4)

	for i := 0; i < len(a); i++ {
		a[i] = int32(i * 3)
	}

	var s int32

	i := 0
	for i < len(a) {
		s += a[i]
		i++
	}

	println("sum", s, len("abc"), 1.5, s > 10)
	print(greet("bob"), -7)
	println()
}
`

func run(t *testing.T, src, entry string, args ...vm.Value) (vm.Value, string, error) {
	t.Helper()

	ctx := context.Background()

	u, err := Parse(ctx, "prog.go", []byte(src))
	require.NoError(t, err)

	m, err := lower.Module(ctx, u)
	require.NoError(t, err)

	prog, err := verify.Module(ctx, m, verify.Options{AllErrors: true})
	require.NoError(t, err, "il:\n%s", m)

	var out bytes.Buffer

	res, err := vm.New(vm.Config{Out: &out}).Run(ctx, prog, entry, args...)

	return res, out.String(), err
}

func TestTokens(t *testing.T) {
	l, err := Tokens("a.go", []byte("x := 1 + y"))
	require.NoError(t, err)
	require.True(t, len(l) >= 5)

	assert.Equal(t, "1:1\tIDENT\t\"x\"", l[0].String())
	assert.Equal(t, "1:3\t:=", l[1].String())
	assert.Equal(t, Token{Pos: l[2].Pos, Tok: "INT", Lit: "1"}, l[2])
	assert.Equal(t, 8, l[3].Pos.Col)

	_, err = Tokens("a.go", []byte("x := \"unterminated"))
	assert.Error(t, err)
}

func TestParseUnit(t *testing.T) {
	u, err := Parse(context.Background(), "dir/prog.go", []byte(progSrc))
	require.NoError(t, err)

	assert.Equal(t, "prog", u.Name)
	require.Len(t, u.Classes, 1)
	assert.Equal(t, "Counter", u.Classes[0].Name)

	var names []string
	for _, f := range u.Funcs {
		names = append(names, f.Symbol())
	}

	assert.Equal(t, []string{"Counter.Inc", "fact", "count", "bump", "addr", "half", "narrow", "greet", "oob", "main"}, names)
}

func TestRunProgram(t *testing.T) {
	for _, tc := range []struct {
		entry string
		args  []vm.Value
		res   vm.Value
	}{
		{entry: "fact", args: []vm.Value{vm.Int(5)}, res: vm.Int(120)},
		{entry: "count", args: []vm.Value{vm.Int(5)}, res: vm.Int(10)},
		{entry: "addr", res: vm.Int(42)},
		{entry: "half", args: []vm.Value{vm.Int(5)}, res: vm.Float(2.5)},
	} {
		res, _, err := run(t, progSrc, tc.entry, tc.args...)
		if assert.NoError(t, err, tc.entry) {
			assert.Equal(t, tc.res, res, tc.entry)
		}
	}
}

func TestStringResult(t *testing.T) {
	res, _, err := run(t, progSrc, "greet", vm.Str("you"))
	require.NoError(t, err)

	assert.Equal(t, "hi you", res.Str)
}

func TestPrint(t *testing.T) {
	_, out, err := run(t, progSrc, "main")
	require.NoError(t, err)

	assert.Equal(t, "sum 18 3 1.5 true\nhi bob -7\n", out)
}

func TestBoundsTrap(t *testing.T) {
	_, _, err := run(t, progSrc, "oob", vm.Int(3))

	var trap *vm.Trap
	require.True(t, errors.As(err, &trap), "err: %v", err)

	assert.Equal(t, vm.Bounds, trap.Kind)
	assert.Equal(t, 55, trap.Loc.Line)

	res, _, err := run(t, progSrc, "oob", vm.Int(2))
	require.NoError(t, err)
	assert.Equal(t, vm.Int(0), res)
}

func TestSyntaxError(t *testing.T) {
	_, err := Parse(context.Background(), "bad.go", []byte("package main\n\nfunc f( {\n"))

	var l ErrorList
	require.True(t, errors.As(err, &l), "err: %v", err)
	require.NotEmpty(t, l)

	assert.Equal(t, "bad.go", l[0].File)
	assert.Equal(t, 3, l[0].Pos.Line)
}

func TestCheckErrors(t *testing.T) {
	for _, tc := range []struct {
		src string
		msg string
	}{
		{src: "func f() int { return y }", msg: "undefined: y"},
		{src: "func f(a int, b float64) float64 { return a + b }", msg: "mismatched types int64 and float64"},
		{src: "func f(a int) int { if a > 0 { return 1 } }", msg: "missing return"},
		{src: "func f() { x := nil; _ = x }", msg: "use of untyped nil"},
		{src: "func f() { break }", msg: "break is not in a loop"},
		{src: "type T struct{}\nfunc f(t T) {}", msg: "struct T must be used as *T"},
		{src: "func f() int16 { return 40000 }", msg: "constant 40000 overflows int16"},
		{src: "func f() { g(1) }\nfunc g() {}", msg: "g takes 0 arguments, got 1"},
		{src: "func f(s string) bool { return s < \"a\" }", msg: "operator < not defined on string"},
		{src: "import \"fmt\"", msg: "imports are not supported"},
	} {
		_, err := Parse(context.Background(), "c.go", []byte("package main\n"+tc.src+"\n"))

		var l ErrorList
		if assert.True(t, errors.As(err, &l), "%q: %v", tc.src, err) {
			assert.Contains(t, l.Error(), tc.msg, tc.src)
		}
	}
}

func TestErrorList(t *testing.T) {
	_, err := Parse(context.Background(), "c.go", []byte("package main\nfunc f() { a := b; c := d }\n"))
	require.Error(t, err)

	assert.Equal(t, "2 errors:\n\tc.go:2:17: undefined: b\n\tc.go:2:25: undefined: d", err.Error())
}
