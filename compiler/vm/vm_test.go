package vm

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/slowlang/slow/compiler/ir"
	"github.com/slowlang/slow/compiler/verify"
)

var dispatches = []Dispatch{DispatchSwitch, DispatchTable, DispatchThreaded}

const progIL = `module "prog"

extern @rt_print_i64(i64) -> void
extern @rt_print_str(str) -> void
extern @rt_print_nl() -> void
extern @rt_str_concat(str, str) -> str

func @add(%0: i64, %1: i64) -> i64 {
entry:
  %2 = add i64 %0, %1
  ret %2
}

func @fact(%0: i64) -> i64 {
entry:
  %1 = scmp_le i64 %0, 1
  cbr %1, base, rec
base:
  ret 1
rec:
  %2 = sub i64 %0, 1
  %3 = call i64 @fact(%2)
  %4 = mul i64 %0, %3
  ret %4
}

func @fib(%0: i64) -> i64 {
entry:
  br loop(0, 1, 0)
loop(%1: i64, %2: i64, %3: i64):
  %4 = scmp_lt i64 %3, %0
  cbr %4, body, done
body:
  %5 = add i64 %1, %2
  %6 = add i64 %3, 1
  br loop(%2, %5, %6)
done:
  ret %1
}

func @wrap16(%0: i16) -> i16 {
entry:
  %1 = add i16 %0, 1
  ret %1
}

func @div(%0: i64, %1: i64) -> i64 {
entry:
  .loc 7 3
  %2 = sdiv i64 %0, %1
  ret %2
}

func @index(%0: i64) -> i64 {
entry:
  %1 = alloca 24
  store i64 %1, 2
  idxchk %0, 2
  %2 = mul i64 %0, 8
  %3 = add i64 %2, 8
  %4 = gep %1, %3
  store i64 %4, 42
  %5 = load i64 %4
  ret %5
}

func @nullload() -> i64 {
entry:
  %0 = const_null
  %1 = gep %0, 8
  %2 = load i64 %1
  ret %2
}

func @dangling() -> ptr {
entry:
  %0 = alloca 8
  ret %0
}

func @usedangling() -> i64 {
entry:
  %0 = call ptr @dangling()
  %1 = load i64 %0
  ret %1
}

func @forever(%0: i64) -> i64 {
entry:
  %1 = call i64 @forever(%0)
  ret %1
}

func @spin() -> void {
entry:
  br loop
loop:
  br loop
}

func @boom() -> void {
entry:
  trap user
}

func @greet(%0: str) -> str {
entry:
  %1 = const_str "hello, "
  %2 = call str @rt_str_concat(%1, %0)
  call void @rt_print_str(%2)
  call void @rt_print_nl()
  ret %2
}

func @conv(%0: f64) -> i32 {
entry:
  %1 = fmul f64 %0, 2.0
  %2 = fptosi i32 %1
  ret %2
}

func @cmpf(%0: f64) -> i1 {
entry:
  %1 = sitofp f64 3
  %2 = fcmp_gt f64 %0, %1
  ret %2
}
`

func loadProg(t testing.TB) *verify.Verified {
	t.Helper()

	m, err := ir.Parse("prog.il", []byte(progIL))
	require.NoError(t, err)

	v, err := verify.Module(context.Background(), m, verify.Options{AllErrors: true})
	require.NoError(t, err)

	return v
}

func TestRun(t *testing.T) {
	prog := loadProg(t)

	for _, tc := range []struct {
		entry string
		args  []Value
		exp   Value
	}{
		{"add", []Value{Int(3), Int(4)}, Int(7)},
		{"fact", []Value{Int(5)}, Int(120)},
		{"fact", []Value{Int(20)}, Int(2432902008176640000)},
		{"fib", []Value{Int(10)}, Int(55)},
		{"wrap16", []Value{TypedInt(ir.I16, 32767)}, TypedInt(ir.I16, -32768)},
		{"div", []Value{Int(-7), Int(2)}, Int(-3)},
		{"index", []Value{Int(1)}, Int(42)},
		{"conv", []Value{Float(1e10)}, TypedInt(ir.I32, 2147483647)},
		{"conv", []Value{Float(-1.75)}, TypedInt(ir.I32, -3)},
		{"cmpf", []Value{Float(3.5)}, Bool(true)},
	} {
		for _, d := range dispatches {
			m := New(Config{Dispatch: d})

			res, err := m.Run(context.Background(), prog, tc.entry, tc.args...)
			require.NoError(t, err, "%v %v", d, tc.entry)
			assert.Equal(t, tc.exp, res, "%v %v%v", d, tc.entry, tc.args)
		}
	}
}

func TestTraps(t *testing.T) {
	prog := loadProg(t)

	for _, tc := range []struct {
		entry string
		args  []Value
		kind  TrapKind
		cfg   Config
	}{
		{entry: "div", args: []Value{Int(1), Int(0)}, kind: DivideByZero},
		{entry: "index", args: []Value{Int(2)}, kind: Bounds},
		{entry: "index", args: []Value{Int(-1)}, kind: Bounds},
		{entry: "nullload", kind: NullPointer},
		{entry: "usedangling", kind: InvalidPointer},
		{entry: "index", args: []Value{Int(0)}, kind: OutOfMemory, cfg: Config{HeapLimit: 16}},
		{entry: "forever", args: []Value{Int(1)}, kind: StackOverflow, cfg: Config{MaxDepth: 100}},
		{entry: "spin", kind: StepLimit, cfg: Config{MaxSteps: 1000}},
		{entry: "spin", kind: Interrupted, cfg: Config{PollEvery: 10, Stop: func() bool { return true }}},
		{entry: "boom", kind: Explicit},
	} {
		for _, d := range dispatches {
			tc.cfg.Dispatch = d
			m := New(tc.cfg)

			_, err := m.Run(context.Background(), prog, tc.entry, tc.args...)

			var trap *Trap
			require.True(t, errors.As(err, &trap), "%v %v: %v", d, tc.entry, err)
			assert.Equal(t, tc.kind, trap.Kind, "%v %v: %v", d, tc.entry, trap)
			assert.Equal(t, tc.entry, trap.Func)
		}
	}
}

func TestTrapContext(t *testing.T) {
	prog := loadProg(t)

	_, err := New(Config{}).Run(context.Background(), prog, "div", Int(1), Int(0))

	var trap *Trap
	require.True(t, errors.As(err, &trap))

	assert.Equal(t, "entry", trap.Block)
	assert.Equal(t, 0, trap.Index)
	assert.Equal(t, ir.Pos{Line: 7, Col: 3}, trap.Loc)
	assert.Equal(t, []string{"@div entry[0]"}, trap.Stack)
	assert.Contains(t, trap.Error(), "at 7:3")
}

func TestCancel(t *testing.T) {
	prog := loadProg(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Config{PollEvery: 1}).Run(ctx, prog, "spin")

	var trap *Trap
	require.True(t, errors.As(err, &trap))
	assert.Equal(t, Interrupted, trap.Kind)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStrings(t *testing.T) {
	prog := loadProg(t)

	for _, d := range dispatches {
		var out bytes.Buffer

		m := New(Config{Dispatch: d, Out: &out})

		res, err := m.Run(context.Background(), prog, "greet", Str("world"))
		require.NoError(t, err)

		assert.Equal(t, "hello, world", res.Str)
		assert.Equal(t, "hello, world\n", out.String())
	}
}

func TestEntryErrors(t *testing.T) {
	prog := loadProg(t)
	m := New(Config{})

	_, err := m.Run(context.Background(), prog, "nope")
	assert.Error(t, err)

	_, err = m.Run(context.Background(), prog, "add", Int(1))
	assert.Error(t, err)

	_, err = m.Run(context.Background(), prog, "add", Int(1), Float(2))
	assert.Error(t, err)

	_, err = m.Run(context.Background(), nil, "add")
	assert.ErrorIs(t, err, verify.ErrUnverified)

	_, err = m.Run(context.Background(), &verify.Verified{}, "add")
	assert.ErrorIs(t, err, verify.ErrUnverified)
}

func TestUnresolvedExtern(t *testing.T) {
	m, err := ir.Parse("x.il", []byte(`module "x"

extern @no_such_function() -> void

func @main() -> void {
entry:
  call void @no_such_function()
  ret
}
`))
	require.NoError(t, err)

	v, err := verify.Module(context.Background(), m, verify.Options{})
	require.NoError(t, err)

	_, err = New(Config{}).Run(context.Background(), v, "main")
	assert.ErrorContains(t, err, "unresolved extern @no_such_function")
}

func TestProfile(t *testing.T) {
	prog := loadProg(t)
	m := New(Config{Profile: true})

	_, err := m.Run(context.Background(), prog, "fact", Int(5))
	require.NoError(t, err)

	p := m.Profile()
	require.NotNil(t, p)

	assert.Equal(t, int64(5), p.Funcs["fact"].Calls)
	assert.Equal(t, int64(4), p.Ops[ir.Mul])
	assert.Equal(t, int64(5), p.Ops[ir.Ret])

	var buf bytes.Buffer
	p.WriteTables(&buf)

	assert.Contains(t, buf.String(), "scmp_le")
	assert.Contains(t, buf.String(), "fact")
}

func TestParseDispatch(t *testing.T) {
	for _, d := range dispatches {
		p, err := ParseDispatch(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, p)
	}

	_, err := ParseDispatch("goto")
	assert.Error(t, err)
}

func BenchmarkFib(b *testing.B) {
	prog := loadProg(b)

	for _, d := range dispatches {
		b.Run(d.String(), func(b *testing.B) {
			m := New(Config{Dispatch: d})

			for i := 0; i < b.N; i++ {
				_, _ = m.Run(context.Background(), prog, "fib", Int(50))
			}
		})
	}
}
