package compiler

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/slowlang/slow/compiler/back"
	"github.com/slowlang/slow/compiler/verify"
	"github.com/slowlang/slow/compiler/vm"
)

const factSrc = `package main

func fact(n int) int {
	if n <= 1 {
		return 1
	}

	return n * fact(n-1)
}

func main() {
	println(fact(5))
}
`

const addIL = `module "add"

func @add(%0: i64, %1: i64) -> i64 {
entry:
  %2 = add i64 %0, %1
  ret %2
}
`

func write(t *testing.T, dir, name, text string) string {
	t.Helper()

	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(text), 0o600))

	return p
}

func TestCompileSource(t *testing.T) {
	ctx := context.Background()
	name := write(t, t.TempDir(), "fact.go", factSrc)

	u, err := CompileFile(ctx, name, verify.Options{})
	require.NoError(t, err)

	assert.NotNil(t, u.AST)
	assert.Equal(t, "fact", u.IL.Name)

	var out bytes.Buffer

	m := vm.New(vm.Config{Out: &out})

	res, err := Run(ctx, m, u, "fact", vm.Int(6))
	require.NoError(t, err)
	assert.Equal(t, int64(720), res.Int())

	_, err = Run(ctx, m, u, "main")
	require.NoError(t, err)
	assert.Equal(t, "120\n", out.String())

	a, err := Native(ctx, u, "llvm")
	require.NoError(t, err)
	assert.Equal(t, back.LLVMIR, a.Kind)
	assert.Contains(t, string(a.Text), "define i64 @fact(")
}

func TestCompileIL(t *testing.T) {
	ctx := context.Background()

	u, err := Compile(ctx, "add.il", []byte(addIL), verify.Options{})
	require.NoError(t, err)
	assert.Nil(t, u.AST)

	res, err := Run(ctx, vm.New(vm.Config{}), u, "add", vm.Int(2), vm.Int(40))
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.Int())

	a, err := Native(ctx, u, "aarch64-unknown-linux-gnu")
	require.NoError(t, err)
	assert.Equal(t, back.Assembly, a.Kind)
	assert.Contains(t, string(a.Text), "\tADD\tX21, X19, X20\n")
}

func TestVerifyFailure(t *testing.T) {
	ctx := context.Background()

	u, err := Compile(ctx, "bad.il", []byte(`module "bad"

func @f() -> i64 {
entry:
  ret %5
}
`), verify.Options{})

	var errs verify.Errors
	require.True(t, errors.As(err, &errs), "%v", err)
	require.NotNil(t, u)
	assert.NotNil(t, u.IL)
	assert.Nil(t, u.Prog)

	_, err = Native(ctx, u, "llvm")
	assert.ErrorIs(t, err, verify.ErrUnverified)

	_, err = Run(ctx, vm.New(vm.Config{}), u, "f")
	assert.ErrorIs(t, err, verify.ErrUnverified)
}

func TestCompileFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	names := []string{
		write(t, dir, "fact.go", factSrc),
		write(t, dir, "add.il", addIL),
	}

	units, err := CompileFiles(ctx, names, 2, verify.Options{})
	require.NoError(t, err)
	require.Len(t, units, 2)

	assert.Equal(t, "fact", units[0].IL.Name)
	assert.Equal(t, "add", units[1].IL.Name)

	_, err = CompileFiles(ctx, append(names, filepath.Join(dir, "missing.go")), 0, verify.Options{})
	assert.ErrorContains(t, err, "missing.go")
}
