package rt

import (
	"io"
	"math"
	"strconv"

	"tlog.app/go/errors"

	"github.com/slowlang/slow/compiler/ir"
)

type (
	// Sig is the calling convention signature of a runtime function.
	Sig struct {
		Name   string
		Params []ir.Type
		Ret    ir.Type
	}

	// Func implements a runtime function over raw register bits.
	// Integers are sign extended to 64 bits, floats are IEEE bits,
	// i1 is 0 or 1, str is a string handle and ptr is a heap pointer.
	Func func(r *Runtime, args []uint64) (uint64, error)

	// Runtime is the state of one execution. It's not safe for concurrent use.
	Runtime struct {
		Out io.Writer

		Heap    Heap
		Strings Strings
	}

	entry struct {
		Sig
		impl Func
	}
)

var (
	ErrNullPointer    = errors.New("null pointer dereference")
	ErrInvalidPointer = errors.New("invalid pointer")
	ErrBounds         = errors.New("out of bounds")
	ErrOutOfMemory    = errors.New("out of memory")
)

var table = []entry{
	{Sig{"rt_print_i64", []ir.Type{ir.I64}, ir.Void}, printI64},
	{Sig{"rt_print_f64", []ir.Type{ir.F64}, ir.Void}, printF64},
	{Sig{"rt_print_str", []ir.Type{ir.Str}, ir.Void}, printStr},
	{Sig{"rt_print_bool", []ir.Type{ir.I1}, ir.Void}, printBool},
	{Sig{"rt_print_space", nil, ir.Void}, printRaw(" ")},
	{Sig{"rt_print_nl", nil, ir.Void}, printRaw("\n")},

	{Sig{"rt_str_concat", []ir.Type{ir.Str, ir.Str}, ir.Str}, strConcat},
	{Sig{"rt_str_len", []ir.Type{ir.Str}, ir.I64}, strLen},
	{Sig{"rt_str_eq", []ir.Type{ir.Str, ir.Str}, ir.I1}, strEq},
	{Sig{"rt_str_substr", []ir.Type{ir.Str, ir.I64, ir.I64}, ir.Str}, strSubstr},
	{Sig{"rt_str_from_i64", []ir.Type{ir.I64}, ir.Str}, strFromI64},
	{Sig{"rt_str_from_f64", []ir.Type{ir.F64}, ir.Str}, strFromF64},
	{Sig{"rt_str_retain", []ir.Type{ir.Str}, ir.Void}, strRetain},
	{Sig{"rt_str_release", []ir.Type{ir.Str}, ir.Void}, strRelease},

	{Sig{"rt_alloc", []ir.Type{ir.I64}, ir.Ptr}, alloc},
	{Sig{"rt_array_new", []ir.Type{ir.I64, ir.I64}, ir.Ptr}, arrayNew},
	{Sig{"rt_release", []ir.Type{ir.Ptr}, ir.Void}, release},
}

var byName = func() map[string]int {
	m := make(map[string]int, len(table))

	for i, e := range table {
		m[e.Name] = i
	}

	return m
}()

func New(out io.Writer) *Runtime {
	return &Runtime{Out: out}
}

// Lookup finds a runtime function signature.
func Lookup(name string) (Sig, bool) {
	i, ok := byName[name]
	if !ok {
		return Sig{}, false
	}

	return table[i].Sig, true
}

// Sigs lists all runtime functions in a stable order.
func Sigs() []Sig {
	l := make([]Sig, len(table))

	for i, e := range table {
		l[i] = e.Sig
	}

	return l
}

// Resolve returns the implementation of a runtime function.
func Resolve(name string) (Func, bool) {
	i, ok := byName[name]
	if !ok {
		return nil, false
	}

	return table[i].impl, true
}

// Declare adds the extern declaration for a runtime function to m once.
func Declare(m *ir.Module, name string) (*ir.Extern, error) {
	if e := m.Extern(name); e != nil {
		return e, nil
	}

	s, ok := Lookup(name)
	if !ok {
		return nil, errors.New("unknown runtime function: %v", name)
	}

	return m.AddExtern(s.Name, s.Ret, s.Params...), nil
}

func (r *Runtime) write(s string) error {
	if r.Out == nil {
		return nil
	}

	_, err := io.WriteString(r.Out, s)

	return err
}

func printI64(r *Runtime, a []uint64) (uint64, error) {
	return 0, r.write(strconv.FormatInt(int64(a[0]), 10))
}

func printF64(r *Runtime, a []uint64) (uint64, error) {
	return 0, r.write(FormatFloat(math.Float64frombits(a[0])))
}

func printBool(r *Runtime, a []uint64) (uint64, error) {
	return 0, r.write(strconv.FormatBool(a[0] != 0))
}

func printStr(r *Runtime, a []uint64) (uint64, error) {
	s, err := r.Strings.Get(a[0])
	if err != nil {
		return 0, err
	}

	return 0, r.write(s)
}

func printRaw(s string) Func {
	return func(r *Runtime, a []uint64) (uint64, error) {
		return 0, r.write(s)
	}
}

func strConcat(r *Runtime, a []uint64) (uint64, error) {
	x, err := r.Strings.Get(a[0])
	if err != nil {
		return 0, err
	}

	y, err := r.Strings.Get(a[1])
	if err != nil {
		return 0, err
	}

	return r.Strings.New(x + y), nil
}

func strLen(r *Runtime, a []uint64) (uint64, error) {
	s, err := r.Strings.Get(a[0])

	return uint64(len(s)), err
}

func strEq(r *Runtime, a []uint64) (uint64, error) {
	x, err := r.Strings.Get(a[0])
	if err != nil {
		return 0, err
	}

	y, err := r.Strings.Get(a[1])
	if err != nil {
		return 0, err
	}

	if x == y {
		return 1, nil
	}

	return 0, nil
}

// strSubstr clamps the range to the string like the BASIC MID$ does.
func strSubstr(r *Runtime, a []uint64) (uint64, error) {
	s, err := r.Strings.Get(a[0])
	if err != nil {
		return 0, err
	}

	st, n := int64(a[1]), int64(a[2])
	st = max(0, min(st, int64(len(s))))
	end := max(st, min(st+max(n, 0), int64(len(s))))

	return r.Strings.New(s[st:end]), nil
}

func strFromI64(r *Runtime, a []uint64) (uint64, error) {
	return r.Strings.New(strconv.FormatInt(int64(a[0]), 10)), nil
}

func strFromF64(r *Runtime, a []uint64) (uint64, error) {
	return r.Strings.New(FormatFloat(math.Float64frombits(a[0]))), nil
}

func strRetain(r *Runtime, a []uint64) (uint64, error) {
	return 0, r.Strings.Retain(a[0])
}

func strRelease(r *Runtime, a []uint64) (uint64, error) {
	return 0, r.Strings.Release(a[0])
}

func alloc(r *Runtime, a []uint64) (uint64, error) {
	return r.Heap.Alloc(int64(a[0]))
}

// arrayNew allocates [len:i64][len*size bytes] and stores the length.
func arrayNew(r *Runtime, a []uint64) (uint64, error) {
	n, size := int64(a[0]), int64(a[1])

	if n < 0 || size <= 0 || n > (MaxBlock-8)/size {
		return 0, errors.Wrap(ErrBounds, "array of %d elements of %d bytes", n, size)
	}

	p, err := r.Heap.Alloc(8 + n*size)
	if err != nil {
		return 0, err
	}

	return p, r.Heap.Store(p, 8, uint64(n))
}

func release(r *Runtime, a []uint64) (uint64, error) {
	if a[0] == 0 {
		return 0, nil
	}

	return 0, r.Heap.Free(a[0])
}

// FormatFloat is the text form of floats used by print and string conversion.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
