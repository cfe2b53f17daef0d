package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/slow/compiler/rt"
	"github.com/slowlang/slow/compiler/vm"
)

func TestDefault(t *testing.T) {
	c := Default()

	assert.Equal(t, "switch", c.VM.Dispatch)
	assert.Equal(t, vm.DefaultMaxDepth, c.VM.MaxDepth)
	assert.Equal(t, vm.DefaultPollEvery, c.VM.PollEvery)
	assert.Equal(t, int64(rt.DefaultLimit), c.VM.HeapLimit)
	assert.Equal(t, DefaultTarget, c.Codegen.Target)
	assert.False(t, c.VerifyOptions().AllErrors)
	assert.Equal(t, vm.DispatchSwitch, c.VMConfig().Dispatch)
}

func TestLoadFileAndEnv(t *testing.T) {
	name := filepath.Join(t.TempDir(), "conf.yaml")

	err := os.WriteFile(name, []byte(`
verify:
  all_errors: true
vm:
  dispatch: threaded
  max_steps: 1000
codegen:
  target: x86_64-pc-linux-gnu
`), 0o600)
	require.NoError(t, err)

	t.Setenv("SLOW_VM__MAX_STEPS", "50")
	t.Setenv("SLOW_BATCH__JOBS", "3")
	t.Setenv("SLOW_VM__HEAP_LIMIT", "4096")

	c, err := Load(name)
	require.NoError(t, err)

	assert.Equal(t, name, c.File)
	assert.True(t, c.Verify.AllErrors)
	assert.Equal(t, "threaded", c.VM.Dispatch)
	assert.Equal(t, int64(50), c.VM.MaxSteps)
	assert.Equal(t, 3, c.Batch.Jobs)
	assert.Equal(t, "x86_64-pc-linux-gnu", c.Codegen.Target)
	assert.Equal(t, vm.DefaultMaxDepth, c.VM.MaxDepth)

	vc := c.VMConfig()
	assert.Equal(t, vm.DispatchThreaded, vc.Dispatch)
	assert.Equal(t, int64(50), vc.MaxSteps)
	assert.Equal(t, int64(4096), vc.HeapLimit)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("SLOW_VM__DISPATCH", "jit")

	_, err = Load("")
	assert.ErrorContains(t, err, "unknown dispatch")
}
