package set

import (
	"math/bits"

	"tlog.app/go/tlog/tlwire"
)

type (
	Key interface {
		~int | ~int32 | ~int64
	}

	// Bits is a dense set of small non-negative keys.
	// The zero value is an empty set ready to use.
	Bits[K Key] struct {
		b []uint64
	}
)

func Make[K Key](n int) Bits[K] {
	var s Bits[K]

	if n > 0 {
		s.grow((n - 1) / 64)
	}

	return s
}

func Of[K Key](keys ...K) Bits[K] {
	var s Bits[K]

	for _, k := range keys {
		s.Set(k)
	}

	return s
}

func (s Bits[K]) Copy() Bits[K] {
	var c Bits[K]

	if len(s.b) != 0 {
		c.grow(len(s.b) - 1)
		copy(c.b, s.b)
	}

	return c
}

func (s *Bits[K]) Set(k K) {
	i, j := ij(k)

	s.grow(i)

	s.b[i] |= 1 << j
}

func (s *Bits[K]) Clear(k K) {
	i, j := ij(k)

	if i >= len(s.b) {
		return
	}

	s.b[i] &^= 1 << j
}

func (s Bits[K]) IsSet(k K) bool {
	i, j := ij(k)

	if k < 0 || i >= len(s.b) {
		return false
	}

	return s.b[i]&(1<<j) != 0
}

// Merge adds all of x to s and reports whether s changed.
func (s *Bits[K]) Merge(x Bits[K]) (changed bool) {
	if len(x.b) != 0 {
		s.grow(len(x.b) - 1)
	}

	for i, w := range x.b {
		n := s.b[i] | w
		changed = changed || n != s.b[i]
		s.b[i] = n
	}

	return changed
}

// Intersect keeps only keys also present in x and reports whether s changed.
func (s *Bits[K]) Intersect(x Bits[K]) (changed bool) {
	for i := range s.b {
		var w uint64
		if i < len(x.b) {
			w = x.b[i]
		}

		n := s.b[i] & w
		changed = changed || n != s.b[i]
		s.b[i] = n
	}

	return changed
}

func (s *Bits[K]) Subtract(x Bits[K]) {
	n := min(len(s.b), len(x.b))

	for i, w := range x.b[:n] {
		s.b[i] &^= w
	}
}

func (s Bits[K]) Equal(x Bits[K]) bool {
	n := max(len(s.b), len(x.b))

	for i := 0; i < n; i++ {
		if s.word(i) != x.word(i) {
			return false
		}
	}

	return true
}

func (s Bits[K]) Size() (r int) {
	for _, w := range s.b {
		r += bits.OnesCount64(w)
	}

	return r
}

func (s Bits[K]) Empty() bool {
	for _, w := range s.b {
		if w != 0 {
			return false
		}
	}

	return true
}

func (s Bits[K]) Range(f func(k K) bool) {
	for i, w := range s.b {
		for w != 0 {
			j := bits.TrailingZeros64(w)
			w &^= 1 << j

			if !f(K(i*64 + j)) {
				return
			}
		}
	}
}

// Slice returns keys in ascending order.
func (s Bits[K]) Slice() []K {
	l := make([]K, 0, s.Size())

	s.Range(func(k K) bool {
		l = append(l, k)
		return true
	})

	return l
}

func (s *Bits[K]) Reset() {
	clear(s.b)
}

func (s Bits[K]) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	if s.b == nil {
		return e.AppendNil(b)
	}

	b = e.AppendTag(b, tlwire.Array, -1)

	s.Range(func(k K) bool {
		b = e.AppendInt(b, int(k))
		return true
	})

	return e.AppendBreak(b)
}

func (s Bits[K]) word(i int) uint64 {
	if i < len(s.b) {
		return s.b[i]
	}

	return 0
}

func (s *Bits[K]) grow(i int) {
	for i >= len(s.b) {
		s.b = append(s.b, 0)
	}
}

func ij[K Key](k K) (i, j int) {
	p := int(k)

	return p / 64, p % 64
}
