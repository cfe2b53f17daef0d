package df

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/slow/compiler/ir"
)

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
dead:
  ret 0
}
`

func TestGraph(t *testing.T) {
	m, err := ir.Parse("loop.il", []byte(loopIL))
	require.NoError(t, err)

	g := Build(m.Funcs[0])

	assert.Equal(t, []int{1}, g.Succs[0])
	assert.Equal(t, []int{0, 2}, g.Preds[1])
	assert.Equal(t, 0, g.RPO[0])
	assert.Len(t, g.RPO, 4)

	assert.False(t, g.Reachable(4))
	assert.Equal(t, []int{-1, 0, 1, 1, -1}, g.IDom)

	assert.True(t, g.Dominates(1, 2))
	assert.True(t, g.Dominates(0, 3))
	assert.False(t, g.Dominates(2, 3))
	assert.False(t, g.Dominates(0, 4))
}

func TestLive(t *testing.T) {
	m, err := ir.Parse("loop.il", []byte(loopIL))
	require.NoError(t, err)

	g := Build(m.Funcs[0])
	l := Live(g)

	assert.Equal(t, []ir.ValueID{0}, l.In[0].Slice())
	assert.Equal(t, []ir.ValueID{0}, l.In[1].Slice())
	assert.Equal(t, []ir.ValueID{0, 1}, l.Out[1].Slice())
	assert.Equal(t, []ir.ValueID{0, 1}, l.In[2].Slice())
	assert.Equal(t, []ir.ValueID{0}, l.Out[2].Slice())
	assert.Equal(t, []ir.ValueID{1}, l.In[3].Slice())
}
