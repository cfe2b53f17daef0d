package ir

type (
	Op int8

	// Class groups opcodes sharing operand rules.
	Class int8

	opInfo struct {
		name  string
		class Class
	}
)

const (
	OpInvalid Op = iota

	Add
	Sub
	Mul
	SDiv
	SRem
	And
	Or
	Xor
	Shl
	AShr

	FAdd
	FSub
	FMul
	FDiv

	ICmpEq
	ICmpNe
	SCmpLt
	SCmpLe
	SCmpGt
	SCmpGe

	FCmpEq
	FCmpNe
	FCmpLt
	FCmpLe
	FCmpGt
	FCmpGe

	SIToFP
	FPToSI
	SExt
	Trunc
	ZExt

	Alloca
	Load
	Store
	GEP
	ConstStr
	ConstNull
	IdxChk

	Call

	Br
	CBr
	Ret
	Trap

	NumOps
)

const (
	ClassNone Class = iota
	ClassIntArith
	ClassFloatArith
	ClassIntCmp
	ClassFloatCmp
	ClassConv
	ClassMemory
	ClassCall
	ClassTerm
)

var ops = [NumOps]opInfo{
	OpInvalid: {"invalid", ClassNone},

	Add:  {"add", ClassIntArith},
	Sub:  {"sub", ClassIntArith},
	Mul:  {"mul", ClassIntArith},
	SDiv: {"sdiv", ClassIntArith},
	SRem: {"srem", ClassIntArith},
	And:  {"and", ClassIntArith},
	Or:   {"or", ClassIntArith},
	Xor:  {"xor", ClassIntArith},
	Shl:  {"shl", ClassIntArith},
	AShr: {"ashr", ClassIntArith},

	FAdd: {"fadd", ClassFloatArith},
	FSub: {"fsub", ClassFloatArith},
	FMul: {"fmul", ClassFloatArith},
	FDiv: {"fdiv", ClassFloatArith},

	ICmpEq: {"icmp_eq", ClassIntCmp},
	ICmpNe: {"icmp_ne", ClassIntCmp},
	SCmpLt: {"scmp_lt", ClassIntCmp},
	SCmpLe: {"scmp_le", ClassIntCmp},
	SCmpGt: {"scmp_gt", ClassIntCmp},
	SCmpGe: {"scmp_ge", ClassIntCmp},

	FCmpEq: {"fcmp_eq", ClassFloatCmp},
	FCmpNe: {"fcmp_ne", ClassFloatCmp},
	FCmpLt: {"fcmp_lt", ClassFloatCmp},
	FCmpLe: {"fcmp_le", ClassFloatCmp},
	FCmpGt: {"fcmp_gt", ClassFloatCmp},
	FCmpGe: {"fcmp_ge", ClassFloatCmp},

	SIToFP: {"sitofp", ClassConv},
	FPToSI: {"fptosi", ClassConv},
	SExt:   {"sext", ClassConv},
	Trunc:  {"trunc", ClassConv},
	ZExt:   {"zext", ClassConv},

	Alloca:    {"alloca", ClassMemory},
	Load:      {"load", ClassMemory},
	Store:     {"store", ClassMemory},
	GEP:       {"gep", ClassMemory},
	ConstStr:  {"const_str", ClassMemory},
	ConstNull: {"const_null", ClassMemory},
	IdxChk:    {"idxchk", ClassMemory},

	Call: {"call", ClassCall},

	Br:   {"br", ClassTerm},
	CBr:  {"cbr", ClassTerm},
	Ret:  {"ret", ClassTerm},
	Trap: {"trap", ClassTerm},
}

var opByName = func() map[string]Op {
	m := make(map[string]Op, NumOps)

	for op := Op(1); op < NumOps; op++ {
		m[ops[op].name] = op
	}

	return m
}()

func LookupOp(name string) (Op, bool) {
	op, ok := opByName[name]
	return op, ok
}

func (op Op) String() string {
	if op < 0 || op >= NumOps {
		return "op?"
	}

	return ops[op].name
}

func (op Op) Class() Class {
	if op < 0 || op >= NumOps {
		return ClassNone
	}

	return ops[op].class
}

func (op Op) IsTerminator() bool { return op.Class() == ClassTerm }

func (op Op) IsCompare() bool {
	c := op.Class()
	return c == ClassIntCmp || c == ClassFloatCmp
}

// HasResult reports whether the opcode defines a virtual register.
// Calls define one unless their type is Void.
func (op Op) HasResult() bool {
	switch op {
	case Store, IdxChk, OpInvalid:
		return false
	}

	return !op.IsTerminator()
}
