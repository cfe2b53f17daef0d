package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSum() *Module {
	m := NewModule("sum")
	m.AddExtern("rt_print_i64", Void, I64)

	f := m.NewFunc("sum", I64, I64)
	entry := f.NewBlock("entry")
	loop := f.NewBlock("loop")
	body := f.NewBlock("body")
	exit := f.NewBlock("exit")

	i := f.AddParam(loop, I64)
	acc := f.AddParam(loop, I64)

	b := NewBuilder(f)
	b.SetBlock(entry)
	b.Loc = Pos{Line: 1, Col: 1}
	b.Br(loop, Int(0), Int(0))

	b.SetBlock(loop)
	b.Loc = Pos{Line: 2, Col: 5}
	c := b.Cmp(SCmpLt, I64, i, f.Params[0].Value())
	b.CBr(c, body, nil, exit, nil)

	b.SetBlock(body)
	acc2 := b.Binary(Add, I64, acc, i)
	i2 := b.Binary(Add, I64, i, Int(1))
	b.Loc = Pos{Line: 3, Col: 2}
	b.Br(loop, i2, acc2)

	b.SetBlock(exit)
	b.Call(Void, "rt_print_i64", acc)
	b.Ret(acc)

	return m
}

func TestPrintParseRoundTrip(t *testing.T) {
	m := buildSum()

	text := m.String()

	back, err := Parse("sum.il", []byte(text))
	require.NoError(t, err, "text:\n%s", text)

	assert.NoError(t, Compare(m, back))
	assert.Equal(t, text, back.String())
	assert.Equal(t, m.Funcs[0].NextID, back.Funcs[0].NextID)
}

func TestPrintFormat(t *testing.T) {
	m := buildSum()

	exp := `module "sum"

extern @rt_print_i64(i64) -> void

func @sum(%0: i64) -> i64 {
entry:
  .loc 1 1
  br loop(0, 0)
loop(%1: i64, %2: i64):
  .loc 2 5
  %3 = scmp_lt i64 %1, %0
  cbr %3, body, exit
body:
  .loc 2 5
  %4 = add i64 %2, %1
  %5 = add i64 %1, 1
  .loc 3 2
  br loop(%5, %4)
exit:
  .loc 3 2
  call void @rt_print_i64(%2)
  ret %2
}
`

	assert.Equal(t, exp, m.String())
}

func TestParseAllForms(t *testing.T) {
	text := `module "forms" ; comment

func @f(%0: ptr, %1: f64) -> void {
entry:
  %2 = alloca 16
  %3 = gep %2, 8
  store i64 %3, -7
  %4 = load i64 %3
  idxchk %4, 2
  %5 = const_str "a \"b\"\n"
  %6 = const_null
  %7 = fadd f64 %1, 1.5e+10
  %8 = fcmp_lt f64 %7, -Inf
  %9 = sitofp f64 %4
  %10 = call i64 @g(%4, true, null)
  trap user
}

func @g(%0: i64, %1: i1, %2: ptr) -> i64 {
entry:
  ret %0
}
`

	m, err := Parse("forms.il", []byte(text))
	require.NoError(t, err)

	f := m.Func("f")
	require.NotNil(t, f)

	code := f.Blocks[0].Code
	require.Len(t, code, 12)

	assert.Equal(t, Int(-7), code[2].Args[1])
	assert.Equal(t, "a \"b\"\n", code[5].Str)
	assert.Equal(t, ConstNull, code[6].Op)
	assert.Equal(t, 1.5e10, code[7].Args[1].Float)
	assert.True(t, math.IsInf(code[8].Args[1].Float, -1))
	assert.Equal(t, I1, code[8].ResultType())
	assert.Equal(t, []Value{Temp(4), Bool(true), Null()}, code[10].Args)
	assert.Equal(t, "user", code[11].Str)
	assert.Equal(t, ValueID(11), f.NextID)

	again, err := Parse("forms2.il", []byte(m.String()))
	require.NoError(t, err)
	assert.True(t, Equal(m, again))
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		name, text, msg string
	}{
		{"header", "func @f() -> void {\n}\n", "forms.il:1: expected module header"},
		{"opcode", "module \"m\"\nfunc @f() -> void {\nentry:\n  %0 = frob i64 1, 2\n}\n", "forms.il:4: unknown opcode"},
		{"type", "module \"m\"\nfunc @f() -> i7 {\n}\n", "forms.il:2"},
		{"outside", "module \"m\"\nfunc @f() -> void {\n  ret\n}\n", "forms.il:3: instruction outside block"},
		{"unterminated", "module \"m\"\nfunc @f() -> void {\nentry:\n  ret\n", "unterminated function @f"},
		{"string", "module \"m\n", "forms.il:1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse("forms.il", []byte(tc.text))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestAppendAfterTerminatorPanics(t *testing.T) {
	m := NewModule("m")
	f := m.NewFunc("f", Void)
	b := NewBuilder(f)
	b.SetBlock(f.NewBlock("entry"))
	b.RetVoid()

	assert.Panics(t, func() { b.RetVoid() })
}

func TestTypes(t *testing.T) {
	for _, tp := range []Type{Void, I1, I16, I32, I64, F64, Ptr, Str} {
		p, err := ParseType(tp.String())
		require.NoError(t, err)
		assert.Equal(t, tp, p)
	}

	assert.True(t, I16.Fits(32767))
	assert.False(t, I16.Fits(32768))
	assert.True(t, I32.Fits(-1<<31))
	assert.Equal(t, 4, I32.Size())

	_, err := ParseType("i7")
	assert.Error(t, err)
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "%3", Temp(3).String())
	assert.Equal(t, "2.0", Float(2).String())
	assert.Equal(t, "0.5", Float(0.5).String())
	assert.Equal(t, "+Inf", Float(math.Inf(1)).String())
	assert.Equal(t, "false", Bool(false).String())
	assert.Equal(t, "null", Null().String())
}
