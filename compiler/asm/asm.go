// Package asm has assembler syntax details shared by the native emitters.
package asm

import (
	"strconv"

	"github.com/nikandfor/hacked/hfmt"
)

type (
	// Syntax is the object format dialect of a target OS.
	Syntax struct {
		OS string
	}
)

const (
	Linux  = "linux"
	Darwin = "darwin"
)

// Sym is the assembler name of a global symbol.
func (s Syntax) Sym(name string) string {
	if s.OS == Darwin {
		return "_" + name
	}

	return name
}

// Local is an assembler-local label inside function fn.
func (s Syntax) Local(fn, label string) string {
	if s.OS == Darwin {
		return "L" + fn + "." + label
	}

	return ".L" + fn + "." + label
}

func (s Syntax) Text(b []byte) []byte {
	return append(b, "\t.text\n"...)
}

func (s Syntax) Data(b []byte) []byte {
	return append(b, "\t.data\n"...)
}

// Global starts a global function symbol aligned to 4 bytes.
func (s Syntax) Global(b []byte, name string) []byte {
	sym := s.Sym(name)

	b = hfmt.Appendf(b, "\t.globl\t%s\n", sym)
	b = append(b, "\t.p2align\t2\n"...)
	b = hfmt.Appendf(b, "%s:\n", sym)

	return b
}

func Label(b []byte, l string) []byte {
	b = append(b, l...)
	return append(b, ":\n"...)
}

func Comment(b []byte, format string, args ...any) []byte {
	b = append(b, "\t// "...)
	b = hfmt.Appendf(b, format, args...)
	return append(b, '\n')
}

// Ascii appends an .ascii directive. Non printable bytes are octal escaped.
func Ascii(b []byte, s string) []byte {
	b = append(b, "\t.ascii\t\""...)

	for i := 0; i < len(s); i++ {
		c := s[i]

		switch {
		case c == '"' || c == '\\':
			b = append(b, '\\', c)
		case c >= 0x20 && c < 0x7f:
			b = append(b, c)
		default:
			b = append(b, '\\')

			if c < 0100 {
				b = append(b, '0')
			}

			if c < 010 {
				b = append(b, '0')
			}

			b = strconv.AppendUint(b, uint64(c), 8)
		}
	}

	return append(b, "\"\n"...)
}
