package ir

import (
	"fmt"
	"strconv"
)

// Textual form, one instruction per line:
//
//	module "main"
//
//	extern @rt_print_i64(i64) -> void
//
//	func @add(%0: i64, %1: i64) -> i64 {
//	entry:
//	  %2 = add i64 %0, %1
//	  ret %2
//	}

func (m *Module) String() string {
	return string(m.AppendText(nil))
}

func (m *Module) AppendText(b []byte) []byte {
	b = fmt.Appendf(b, "module %s\n", strconv.Quote(m.Name))

	if len(m.Externs) != 0 {
		b = append(b, '\n')
	}

	for _, e := range m.Externs {
		b = fmt.Appendf(b, "extern @%s(", e.Name)

		for i, t := range e.Params {
			if i != 0 {
				b = append(b, ", "...)
			}

			b = append(b, t.String()...)
		}

		b = fmt.Appendf(b, ") -> %v\n", e.Ret)
	}

	for _, f := range m.Funcs {
		b = append(b, '\n')
		b = f.AppendText(b)
	}

	return b
}

func (f *Func) String() string {
	return string(f.AppendText(nil))
}

func (f *Func) AppendText(b []byte) []byte {
	b = fmt.Appendf(b, "func @%s(", f.Name)
	b = appendParams(b, f.Params)
	b = fmt.Appendf(b, ") -> %v {\n", f.Ret)

	for _, blk := range f.Blocks {
		b = blk.AppendText(b)
	}

	return append(b, "}\n"...)
}

func (blk *Block) AppendText(b []byte) []byte {
	b = append(b, blk.Label...)

	if len(blk.Params) != 0 {
		b = append(b, '(')
		b = appendParams(b, blk.Params)
		b = append(b, ')')
	}

	b = append(b, ":\n"...)

	var loc Pos

	for _, in := range blk.Code {
		if in.Loc != loc {
			loc = in.Loc
			b = fmt.Appendf(b, "  .loc %d %d\n", loc.Line, loc.Col)
		}

		b = append(b, "  "...)
		b = in.Append(b)
		b = append(b, '\n')
	}

	return b
}

func (in *Instr) String() string {
	return string(in.Append(nil))
}

func (in *Instr) Append(b []byte) []byte {
	if in.Defines() {
		b = Temp(in.Result).Append(b)
		b = append(b, " = "...)
	}

	b = append(b, in.Op.String()...)

	switch c := in.Op.Class(); {
	case c == ClassIntArith, c == ClassFloatArith, c == ClassIntCmp, c == ClassFloatCmp, c == ClassConv:
		b = append(b, ' ')
		b = append(b, in.Type.String()...)
		b = appendArgs(b, ' ', in.Args)
	case in.Op == Load, in.Op == Store:
		b = append(b, ' ')
		b = append(b, in.Type.String()...)
		b = appendArgs(b, ' ', in.Args)
	case in.Op == ConstStr:
		b = append(b, ' ')
		b = strconv.AppendQuote(b, in.Str)
	case in.Op == Call:
		b = fmt.Appendf(b, " %v @%s(", in.Type, in.Callee)
		b = appendArgs(b, 0, in.Args)
		b = append(b, ')')
	case in.Op == Br:
		b = append(b, ' ')
		b = appendTarget(b, in.Targets[0])
	case in.Op == CBr:
		b = appendArgs(b, ' ', in.Args)

		for _, t := range in.Targets {
			b = append(b, ", "...)
			b = appendTarget(b, t)
		}
	case in.Op == Trap:
		b = append(b, ' ')
		b = append(b, in.Str...)
	default: // alloca, gep, idxchk, ret, const_null
		b = appendArgs(b, ' ', in.Args)
	}

	return b
}

func appendParams(b []byte, ps []Param) []byte {
	for i, p := range ps {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = Temp(p.ID).Append(b)
		b = append(b, ": "...)
		b = append(b, p.Type.String()...)
	}

	return b
}

func appendArgs(b []byte, lead byte, args []Value) []byte {
	if len(args) != 0 && lead != 0 {
		b = append(b, lead)
	}

	for i, a := range args {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = a.Append(b)
	}

	return b
}

func appendTarget(b []byte, t Target) []byte {
	b = append(b, t.Label...)

	if len(t.Args) == 0 {
		return b
	}

	b = append(b, '(')
	b = appendArgs(b, 0, t.Args)

	return append(b, ')')
}
