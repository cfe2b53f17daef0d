package rt

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/slowlang/slow/compiler/ir"
)

func call(t *testing.T, r *Runtime, name string, args ...uint64) (uint64, error) {
	t.Helper()

	f, ok := Resolve(name)
	require.True(t, ok, name)

	return f(r, args)
}

func TestRegistry(t *testing.T) {
	for _, s := range Sigs() {
		_, ok := Resolve(s.Name)
		assert.True(t, ok, s.Name)
	}

	s, ok := Lookup("rt_str_concat")
	require.True(t, ok)
	assert.Equal(t, []ir.Type{ir.Str, ir.Str}, s.Params)
	assert.Equal(t, ir.Str, s.Ret)

	m := ir.NewModule("m")

	e1, err := Declare(m, "rt_print_i64")
	require.NoError(t, err)

	e2, err := Declare(m, "rt_print_i64")
	require.NoError(t, err)

	assert.Same(t, e1, e2)
	assert.Len(t, m.Externs, 1)

	_, err = Declare(m, "rt_nope")
	assert.Error(t, err)
}

func TestPrint(t *testing.T) {
	var out bytes.Buffer

	r := New(&out)
	h := r.Strings.Static("hi")

	_, err := call(t, r, "rt_print_i64", uint64(math.MaxUint64)) // -1
	require.NoError(t, err)
	_, _ = call(t, r, "rt_print_space")
	_, _ = call(t, r, "rt_print_f64", math.Float64bits(2.5))
	_, _ = call(t, r, "rt_print_space")
	_, _ = call(t, r, "rt_print_bool", 1)
	_, _ = call(t, r, "rt_print_space")
	_, _ = call(t, r, "rt_print_str", h)
	_, _ = call(t, r, "rt_print_nl")

	assert.Equal(t, "-1 2.5 true hi\n", out.String())
}

func TestStrings(t *testing.T) {
	r := New(nil)

	a := r.Strings.Static("foo")
	b := r.Strings.New("bar")

	c, err := call(t, r, "rt_str_concat", a, b)
	require.NoError(t, err)

	s, err := r.Strings.Get(c)
	require.NoError(t, err)
	assert.Equal(t, "foobar", s)

	n, err := call(t, r, "rt_str_len", c)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), n)

	eq, _ := call(t, r, "rt_str_eq", c, r.Strings.New("foobar"))
	assert.Equal(t, uint64(1), eq)

	sub, err := call(t, r, "rt_str_substr", c, 2, 100)
	require.NoError(t, err)
	s, _ = r.Strings.Get(sub)
	assert.Equal(t, "obar", s)

	empty, err := r.Strings.Get(0)
	assert.NoError(t, err)
	assert.Equal(t, "", empty)

	_, err = call(t, r, "rt_str_retain", b)
	require.NoError(t, err)
	_, _ = call(t, r, "rt_str_release", b)
	_, _ = call(t, r, "rt_str_release", b)

	_, err = r.Strings.Get(b)
	assert.True(t, errors.Is(err, ErrInvalidString))

	_, err = call(t, r, "rt_str_release", a)
	assert.NoError(t, err, "static strings ignore release")
}

func TestHeap(t *testing.T) {
	r := New(nil)

	p, err := call(t, r, "rt_array_new", 3, 4)
	require.NoError(t, err)

	n, err := r.Heap.Load(p, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	e := Offset(p, 8+2*4)
	require.NoError(t, r.Heap.Store(e, 4, uint64(math.MaxUint64))) // -1 as i32

	v, err := r.Heap.Load(e, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), int64(v))

	_, err = r.Heap.Load(Offset(p, 8+3*4), 4)
	assert.True(t, errors.Is(err, ErrBounds))

	_, err = r.Heap.Load(Offset(p, -1), 1)
	assert.True(t, errors.Is(err, ErrBounds))

	_, err = r.Heap.Load(Offset(0, 16), 8)
	assert.True(t, errors.Is(err, ErrNullPointer))

	assert.Equal(t, 1, r.Heap.Live())

	_, err = call(t, r, "rt_release", e)
	assert.True(t, errors.Is(err, ErrInvalidPointer), "interior pointer")

	_, err = call(t, r, "rt_release", p)
	require.NoError(t, err)

	_, err = r.Heap.Load(p, 8)
	assert.True(t, errors.Is(err, ErrInvalidPointer), "use after free")
	assert.Equal(t, 0, r.Heap.Live())

	_, err = call(t, r, "rt_array_new", uint64(math.MaxUint64), 8)
	assert.True(t, errors.Is(err, ErrBounds))

	_, err = call(t, r, "rt_release", 0)
	assert.NoError(t, err)
}

func TestHeapLimit(t *testing.T) {
	small := New(nil)
	small.Heap.Limit = 32

	p, err := small.Heap.Alloc(24)
	require.NoError(t, err)

	_, err = small.Heap.Alloc(16)
	assert.True(t, errors.Is(err, ErrOutOfMemory))

	big := New(nil)

	_, err = big.Heap.Alloc(1 << 20)
	assert.NoError(t, err, "limits are per heap")

	require.NoError(t, small.Heap.Free(p))

	_, err = small.Heap.Alloc(32)
	assert.NoError(t, err, "freed bytes are returned")
}
