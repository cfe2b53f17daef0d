package ir

import "tlog.app/go/errors"

type (
	// Type is a closed set of primitive kinds.
	// Aggregates are expressed by pointer arithmetic over fixed byte offsets.
	Type int8
)

const (
	Void Type = iota
	I1
	I16
	I32
	I64
	F64
	Ptr
	Str

	numTypes
)

var typeNames = [numTypes]string{
	Void: "void",
	I1:   "i1",
	I16:  "i16",
	I32:  "i32",
	I64:  "i64",
	F64:  "f64",
	Ptr:  "ptr",
	Str:  "str",
}

func ParseType(s string) (Type, error) {
	for t, n := range typeNames {
		if n == s {
			return Type(t), nil
		}
	}

	return Void, errors.New("unknown type: %q", s)
}

func (t Type) String() string {
	if t < 0 || t >= numTypes {
		return "type?"
	}

	return typeNames[t]
}

// IsInt reports signed integer kinds. I1 is a boolean, not an integer.
func (t Type) IsInt() bool {
	return t == I16 || t == I32 || t == I64
}

// Size is the in-memory size in bytes. Handles and pointers take 8 bytes.
func (t Type) Size() int {
	switch t {
	case I1:
		return 1
	case I16:
		return 2
	case I32:
		return 4
	case I64, F64, Ptr, Str:
		return 8
	default:
		return 0
	}
}

// Bits is the integer width. Zero for non-integer kinds.
func (t Type) Bits() int {
	switch t {
	case I1:
		return 1
	case I16:
		return 16
	case I32:
		return 32
	case I64:
		return 64
	default:
		return 0
	}
}

// Fits reports whether integer constant x is representable in t.
func (t Type) Fits(x int64) bool {
	switch t {
	case I16:
		return x >= -1<<15 && x < 1<<15
	case I32:
		return x >= -1<<31 && x < 1<<31
	case I64:
		return true
	default:
		return false
	}
}
