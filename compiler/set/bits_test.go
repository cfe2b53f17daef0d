package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBits(t *testing.T) {
	var s Bits[int]

	s.Set(1)
	s.Set(70)
	s.Set(130)

	assert.True(t, s.IsSet(70))
	assert.False(t, s.IsSet(2))
	assert.False(t, s.IsSet(1000))
	assert.Equal(t, 3, s.Size())
	assert.Equal(t, []int{1, 70, 130}, s.Slice())

	c := s.Copy()
	c.Clear(70)

	assert.True(t, s.IsSet(70), "copy must not alias")
	assert.False(t, c.IsSet(70))

	assert.False(t, s.Merge(c))
	assert.True(t, c.Merge(Of(5)))
	assert.True(t, c.IsSet(5))

	x := Of(1, 5, 300)
	assert.True(t, x.Intersect(c))
	assert.Equal(t, []int{1, 5}, x.Slice())

	x.Subtract(Of(1))
	assert.Equal(t, []int{5}, x.Slice())

	assert.True(t, Of(3).Equal(Make[int](512).Copy().orSet(3)))
	assert.False(t, x.Empty())

	x.Reset()
	assert.True(t, x.Empty())
}

func (s Bits[K]) orSet(k K) Bits[K] {
	s.Set(k)
	return s
}
