// Package arm64 formats AArch64 instructions in GNU assembler syntax.
package arm64

import (
	"strconv"

	"github.com/nikandfor/hacked/hfmt"
)

type (
	// Reg is a 64-bit general purpose register.
	Reg int8

	// W is the 32-bit view of a register.
	W Reg

	Imm int64

	// Mem is a base plus unsigned offset address.
	Mem struct {
		Base Reg
		Off  int
	}

	Cond string

	// Raw is an operand passed through as is: labels and relocations.
	Raw string

	Operand interface {
		Append(b []byte) []byte
	}
)

const (
	X0 Reg = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16
	X17
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	FP // X29
	LR // X30
	SP
	XZR
)

const (
	EQ Cond = "EQ"
	NE Cond = "NE"
	LT Cond = "LT"
	LE Cond = "LE"
	GT Cond = "GT"
	GE Cond = "GE"
	HS Cond = "HS"
)

// Args are the argument and result registers of the standard calling convention.
var Args = []Reg{X0, X1, X2, X3, X4, X5, X6, X7}

// CalleeSaved registers survive calls.
var CalleeSaved = []Reg{X19, X20, X21, X22, X23, X24, X25, X26, X27, X28}

// Ins appends one instruction line.
func Ins(b []byte, op string, args ...Operand) []byte {
	b = append(b, '\t')
	b = append(b, op...)

	for i, a := range args {
		if i == 0 {
			b = append(b, '\t')
		} else {
			b = append(b, ", "...)
		}

		b = a.Append(b)
	}

	return append(b, '\n')
}

// MovImm loads a 64-bit constant into r.
func MovImm(b []byte, r Reg, x int64) []byte {
	if x >= -1<<16 && x < 1<<16 {
		return Ins(b, "MOV", r, Imm(x))
	}

	u := uint64(x)
	first := true

	for sh := 0; sh < 64; sh += 16 {
		part := (u >> sh) & 0xffff
		if part == 0 {
			continue
		}

		op := "MOVK"
		if first {
			op = "MOVZ"
			first = false
		}

		b = hfmt.Appendf(b, "\t%s\t%s, #%d, LSL #%d\n", op, r.String(), part, sh)
	}

	return b
}

func (r Reg) Append(b []byte) []byte { return append(b, r.String()...) }

func (r Reg) String() string {
	switch r {
	case FP:
		return "X29"
	case LR:
		return "X30"
	case SP:
		return "SP"
	case XZR:
		return "XZR"
	}

	return "X" + strconv.Itoa(int(r))
}

func (r W) Append(b []byte) []byte {
	switch Reg(r) {
	case XZR:
		return append(b, "WZR"...)
	case SP:
		return append(b, "WSP"...)
	}

	b = append(b, 'W')
	return strconv.AppendInt(b, int64(r), 10)
}

func (x Imm) Append(b []byte) []byte {
	b = append(b, '#')
	return strconv.AppendInt(b, int64(x), 10)
}

func (m Mem) Append(b []byte) []byte {
	b = append(b, '[')
	b = m.Base.Append(b)

	if m.Off != 0 {
		b = append(b, ", #"...)
		b = strconv.AppendInt(b, int64(m.Off), 10)
	}

	return append(b, ']')
}

func (c Cond) Append(b []byte) []byte { return append(b, c...) }
func (r Raw) Append(b []byte) []byte  { return append(b, r...) }
