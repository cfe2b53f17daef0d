package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nikand.dev/go/cli"
)

const calcIL = `module "calc"

func @div(%0: i64, %1: i64) -> i64 {
entry:
  %2 = sdiv i64 %0, %1
  ret %2
}

func @main() -> i64 {
entry:
  %0 = call i64 @div(84, 2)
  ret %0
}

func @boom() -> i64 {
entry:
  %0 = call i64 @div(1, 0)
  ret %0
}
`

const badIL = `module "bad"

func @main() -> i64 {
entry:
  ret %5
}
`

func writeFile(t *testing.T, dir, name, text string) string {
	t.Helper()

	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(text), 0o600))

	return p
}

func runApp(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	var out, errw bytes.Buffer

	app := newApp()
	app.Stdout = &out
	app.Stderr = &errw

	err = cli.Run(app, append([]string{"slow"}, args...), nil)

	return out.String(), errw.String(), err
}

func TestModes(t *testing.T) {
	dir := t.TempDir()
	calc := writeFile(t, dir, "calc.il", calcIL)

	out, _, err := runApp(t, "--mode=emit-il", calc)
	require.NoError(t, err)
	assert.Contains(t, out, `module "calc"`)
	assert.Contains(t, out, "%2 = sdiv i64 %0, %1")

	_, errs, err := runApp(t, "--mode=run-vm", calc)
	require.NoError(t, err)
	assert.Contains(t, errs, "42")

	_, errs, err = runApp(t, "--mode=run-vm", "--dispatch=threaded", "--profile", calc)
	require.NoError(t, err)
	assert.Contains(t, errs, "sdiv")

	out, _, err = runApp(t, "--mode=compile-native", "--target=aarch64-unknown-linux-gnu", calc)
	require.NoError(t, err)
	assert.Contains(t, out, "\tSDIV\t")

	outdir := t.TempDir()

	_, _, err = runApp(t, "--mode=compile-native", "--target=llvm", "-o", outdir, calc)
	require.NoError(t, err)

	ll, err := os.ReadFile(filepath.Join(outdir, "calc.ll"))
	require.NoError(t, err)
	assert.Contains(t, string(ll), "define i64 @div(")

	_, _, err = runApp(t, "--mode=emit-bytes", calc)
	assert.ErrorContains(t, err, "unknown mode")

	_, _, err = runApp(t, "--mode=emit-il")
	assert.ErrorContains(t, err, "no input files")
}

func TestFailureStatus(t *testing.T) {
	dir := t.TempDir()
	calc := writeFile(t, dir, "calc.il", calcIL)
	bad := writeFile(t, dir, "bad.il", badIL)

	_, errs, err := runApp(t, "--mode=run-vm", bad)
	assert.ErrorIs(t, err, errFailed)
	assert.Contains(t, errs, "undefined register %5")

	_, errs, err = runApp(t, "--mode=run-vm", "--entry=boom", calc)
	assert.ErrorIs(t, err, errFailed)
	assert.Contains(t, errs, "divide by zero")
	assert.Contains(t, errs, "@div entry[0]")

	_, errs, err = runApp(t, "--mode=compile-native", "--target=riscv64-unknown-linux-gnu", calc)
	assert.ErrorIs(t, err, errFailed)
	assert.Contains(t, errs, "riscv64")
}

func TestConfigFlags(t *testing.T) {
	dir := t.TempDir()
	calc := writeFile(t, dir, "calc.il", calcIL)
	conf := writeFile(t, dir, "slow.yaml", "vm:\n  max_steps: 1\n")

	_, errs, err := runApp(t, "--mode=run-vm", "--config", conf, calc)
	assert.ErrorIs(t, err, errFailed)
	assert.Contains(t, errs, "step limit")

	_, errs, err = runApp(t, "--mode=run-vm", "--config", conf, "--max-steps=100", calc)
	require.NoError(t, err)
	assert.Contains(t, errs, "42")

	_, _, err = runApp(t, "--mode=run-vm", "--dispatch=jit", calc)
	assert.ErrorContains(t, err, "unknown dispatch")

	_, _, err = runApp(t, "--mode=run-vm", "--config", filepath.Join(dir, "missing.yaml"), calc)
	assert.ErrorContains(t, err, "config")
}
