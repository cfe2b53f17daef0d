package back

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/slowlang/slow/compiler/asm/arm64"
	"github.com/slowlang/slow/compiler/df"
	"github.com/slowlang/slow/compiler/ir"
	"github.com/slowlang/slow/compiler/verify"
)

const addIL = `module "m"

func @add(%0: i64, %1: i64) -> i64 {
entry:
  %2 = add i64 %0, %1
  ret %2
}
`

const strIL = `module "m"

extern @rt_print_str(str) -> void

func @main() -> void {
entry:
  %0 = const_str "hi"
  call void @rt_print_str(%0)
  ret
}
`

const divIL = `module "m"

func @div(%0: i64, %1: i64) -> i64 {
entry:
  %2 = sdiv i64 %0, %1
  ret %2
}
`

const loopIL = `module "m"

func @f(%0: i64) -> i64 {
entry:
  br head(0)
head(%1: i64):
  %2 = scmp_lt i64 %1, %0
  cbr %2, body, exit
body:
  %3 = add i64 %1, 1
  br head(%3)
exit:
  ret %1
}
`

const floatIL = `module "m"

func @f(%0: f64) -> f64 {
entry:
  ret %0
}
`

func verified(t *testing.T, text string) *verify.Verified {
	t.Helper()

	m, err := ir.Parse("test.il", []byte(text))
	require.NoError(t, err)

	v, err := verify.Module(context.Background(), m, verify.Options{})
	require.NoError(t, err)

	return v
}

func compile(t *testing.T, text, triple string) string {
	t.Helper()

	a, err := Compile(context.Background(), verified(t, text), triple)
	require.NoError(t, err)

	return string(a.Text)
}

func TestParseTarget(t *testing.T) {
	for _, tc := range []struct {
		triple   string
		arch, os string
	}{
		{"aarch64-unknown-linux-gnu", ArchArm64, "linux"},
		{"arm64-apple-darwin", ArchArm64, "darwin"},
		{"x86_64-pc-linux-gnu", ArchX8664, "linux"},
		{"llvm", ArchLLVM, ""},
	} {
		tg, err := ParseTarget(tc.triple)
		if assert.NoError(t, err, tc.triple) {
			assert.Equal(t, tc.arch, tg.Arch, tc.triple)
			assert.Equal(t, tc.os, tg.OS, tc.triple)
		}
	}

	for _, triple := range []string{"riscv64-unknown-linux-gnu", "aarch64-none-elf"} {
		_, err := ParseTarget(triple)

		var u *UnsupportedError
		assert.True(t, errors.As(err, &u), triple)
	}
}

func TestArm64Add(t *testing.T) {
	text := compile(t, addIL, "aarch64-unknown-linux-gnu")

	for _, s := range []string{
		"\t.globl\tadd\n",
		"add:\n\tSTP\tX29, X30, [SP, #-16]!\n\tMOV\tX29, SP\n\tSUB\tSP, SP, #32\n",
		"\tSTR\tX19, [SP]\n\tSTR\tX20, [SP, #8]\n",
		"\tMOV\tX19, X0\n\tMOV\tX20, X1\n",
		"\tADD\tX21, X19, X20\n",
		"\tMOV\tX0, X21\n\tB\t.Ladd.ret\n",
		".Ladd.ret:\n",
		"\tMOV\tSP, X29\n\tLDP\tX29, X30, [SP], #16\n\tRET\n",
	} {
		assert.Contains(t, text, s)
	}

	text = compile(t, addIL, "arm64-apple-darwin")

	assert.Contains(t, text, "\t.globl\t_add\n")
	assert.Contains(t, text, "Ladd.ret:\n")
}

func TestArm64Strings(t *testing.T) {
	text := compile(t, strIL, "aarch64-unknown-linux-gnu")

	assert.Contains(t, text, "\tADRP\tX19, .L.str.0\n\tADD\tX19, X19, :lo12:.L.str.0\n")
	assert.Contains(t, text, "\tBL\trt_print_str\n")
	assert.Contains(t, text, "\t.data\n")
	assert.Contains(t, text, ".L.str.0:\n\t.quad\t2\n\t.ascii\t\"hi\"\n")

	text = compile(t, strIL, "arm64-apple-darwin")

	assert.Contains(t, text, "\tADRP\tX19, L.str.0@PAGE\n")
	assert.Contains(t, text, "\tBL\t_rt_print_str\n")
}

func TestArm64Traps(t *testing.T) {
	text := compile(t, divIL, "aarch64-unknown-linux-gnu")

	assert.Contains(t, text, "\tCBZ\tX20, .Ldiv.trap.divzero\n")
	assert.Contains(t, text, "\tSDIV\tX21, X19, X20\n")
	assert.Contains(t, text, ".Ldiv.trap.divzero:\n\t// trap divzero\n\tBRK\t#1\n")
}

func TestArm64Loop(t *testing.T) {
	text := compile(t, loopIL, "aarch64-unknown-linux-gnu")

	assert.Contains(t, text, ".Lf.head:\n")
	assert.Contains(t, text, "\tCSET\t")
	assert.Contains(t, text, "\tCBZ\t")
	assert.Contains(t, text, "\tB\t.Lf.head\n")
}

func TestArm64Unsupported(t *testing.T) {
	_, err := Compile(context.Background(), verified(t, floatIL), "aarch64-unknown-linux-gnu")

	var u *UnsupportedError
	require.True(t, errors.As(err, &u), "%v", err)

	assert.Equal(t, "f", u.Func)
	assert.Equal(t, "f64 values", u.Construct)
	assert.Equal(t, "target aarch64-unknown-linux-gnu: unsupported f64 values in @f", u.Error())
}

func TestLLVM(t *testing.T) {
	text := compile(t, loopIL, "x86_64-pc-linux-gnu")

	assert.Contains(t, text, `target triple = "x86_64-pc-linux-gnu"`)
	assert.Contains(t, text, "define i64 @f(i64 ")
	assert.Contains(t, text, "phi i64 [ 0, %entry ], [ %")
	assert.Contains(t, text, ", %body ]")
	assert.Contains(t, text, "icmp slt i64")

	text = compile(t, floatIL, "llvm")

	assert.NotContains(t, text, "target triple")
	assert.Contains(t, text, "define double @f(double ")

	text = compile(t, divIL, "llvm")

	assert.Contains(t, text, "call void @llvm.trap()")
	assert.Contains(t, text, "unreachable")
	assert.Contains(t, text, "sdiv i64")

	text = compile(t, strIL, "llvm")

	assert.Contains(t, text, "declare void @rt_print_str(i8*")
	assert.Contains(t, text, "[10 x i8]")
}

func TestUnverified(t *testing.T) {
	_, err := Compile(context.Background(), nil, "llvm")
	assert.ErrorIs(t, err, verify.ErrUnverified)
}

func TestPermutateCycle(t *testing.T) {
	e := &emitter{arm64Module: &arm64Module{}}

	r := func(x arm64.Reg) loc { return loc{Reg: x, Slot: -1} }

	e.permutate([]move{
		{dst: r(arm64.X19), src: source{loc: r(arm64.X20)}},
		{dst: r(arm64.X20), src: source{loc: r(arm64.X19)}},
		{dst: r(arm64.X21), src: source{loc: r(arm64.X21)}},
	})

	assert.Equal(t, "\t// permutate 2\n\tMOV\tX16, X19\n\tMOV\tX19, X20\n\tMOV\tX20, X16\n", string(e.b))
}

func TestAllocateSpill(t *testing.T) {
	m, err := ir.Parse("add.il", []byte(addIL))
	require.NoError(t, err)

	f := m.Funcs[0]
	a := allocate(f, df.Build(f), []arm64.Reg{arm64.X19})

	assert.Equal(t, loc{Reg: arm64.X19, Slot: -1}, a.loc(0))
	assert.True(t, a.loc(1).spilled())
	assert.True(t, a.loc(2).spilled())
	assert.Equal(t, 2, a.slots)
	assert.Equal(t, []arm64.Reg{arm64.X19}, a.used)
}
