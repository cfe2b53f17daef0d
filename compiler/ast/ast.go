package ast

import "github.com/slowlang/slow/compiler/tp"

type (
	// Pos is a 1-based source position.
	Pos struct {
		Line int
		Col  int
	}

	// StorageClass says where a variable lives.
	StorageClass int8

	Node interface {
		Position() Pos
	}

	Expr interface {
		Node
		Type() tp.Type
	}

	Stmt interface {
		Node
		stmt()
	}

	// Unit is a checked compilation unit. All names are resolved.
	Unit struct {
		Name    string
		Classes []*tp.Class
		Funcs   []*Func
	}

	Func struct {
		Pos `tlog:",embed"`

		Name string

		// Class is set for methods, Recv is the receiver variable.
		Class *tp.Class
		Recv  *Var

		Params []*Var
		Result tp.Type

		// Body is nil for functions implemented by the runtime library.
		Body *Block

		// Extern is the runtime symbol of a bodiless function.
		Extern string
	}

	Var struct {
		Pos `tlog:",embed"`

		Name    string
		Type    tp.Type
		Storage StorageClass
	}

	// Expressions.

	IntLit struct {
		Pos   `tlog:",embed"`
		Value int64
		T     tp.Int
	}

	FloatLit struct {
		Pos   `tlog:",embed"`
		Value float64
	}

	BoolLit struct {
		Pos   `tlog:",embed"`
		Value bool
	}

	StrLit struct {
		Pos   `tlog:",embed"`
		Value string
	}

	NilLit struct {
		Pos `tlog:",embed"`
		T   tp.Type
	}

	VarRef struct {
		Pos `tlog:",embed"`
		Var *Var
	}

	Unary struct {
		Pos `tlog:",embed"`
		Op  UnOp
		X   Expr
	}

	Binary struct {
		Pos `tlog:",embed"`
		Op  BinOp
		X   Expr
		Y   Expr
	}

	Call struct {
		Pos  `tlog:",embed"`
		Func *Func
		Args []Expr
	}

	// MethodCall calls a statically resolved method on a class value.
	MethodCall struct {
		Pos    `tlog:",embed"`
		Recv   Expr
		Method *Func
		Args   []Expr
	}

	// Index is an array element.
	Index struct {
		Pos   `tlog:",embed"`
		X     Expr
		Index Expr
	}

	// FieldRef is an object field.
	FieldRef struct {
		Pos  `tlog:",embed"`
		X    Expr
		Name string
	}

	AddrOf struct {
		Pos `tlog:",embed"`
		Var *Var
	}

	Deref struct {
		Pos `tlog:",embed"`
		X   Expr
	}

	Convert struct {
		Pos `tlog:",embed"`
		X   Expr
		T   tp.Type
	}

	// Len of an array or a string.
	Len struct {
		Pos `tlog:",embed"`
		X   Expr
	}

	MakeArray struct {
		Pos `tlog:",embed"`
		T   tp.Array
		Len Expr
	}

	New struct {
		Pos   `tlog:",embed"`
		Class *tp.Class
	}

	// Statements.

	Block struct {
		Pos   `tlog:",embed"`
		Stmts []Stmt
	}

	// VarDecl declares Var. Nil Init means the zero value.
	VarDecl struct {
		Pos  `tlog:",embed"`
		Var  *Var
		Init Expr
	}

	// Assign stores Value to a VarRef, Index, FieldRef or Deref target.
	Assign struct {
		Pos    `tlog:",embed"`
		Target Expr
		Value  Expr
	}

	ExprStmt struct {
		Pos `tlog:",embed"`
		X   Expr
	}

	// Print writes space separated values, then a newline if Newline.
	Print struct {
		Pos     `tlog:",embed"`
		Args    []Expr
		Newline bool
	}

	If struct {
		Pos  `tlog:",embed"`
		Cond Expr
		Then *Block
		Else Stmt // nil, *Block or *If
	}

	While struct {
		Pos  `tlog:",embed"`
		Cond Expr
		Body *Block
	}

	For struct {
		Pos  `tlog:",embed"`
		Init Stmt
		Cond Expr // nil is true
		Post Stmt
		Body *Block
	}

	Break struct {
		Pos `tlog:",embed"`
	}

	Continue struct {
		Pos `tlog:",embed"`
	}

	Return struct {
		Pos `tlog:",embed"`
		X   Expr
	}

	UnOp  int8
	BinOp int8
)

const (
	Register StorageClass = iota
	Stack
	Heap
)

const (
	Neg UnOp = iota
	Not
	BitNot
)

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Rem
	And
	Or
	Xor
	Shl
	Shr

	Eq
	Ne
	Lt
	Le
	Gt
	Ge

	LAnd
	LOr
)

var binNames = []string{
	Add: "+", Sub: "-", Mul: "*", Div: "/", Rem: "%",
	And: "&", Or: "|", Xor: "^", Shl: "<<", Shr: ">>",
	Eq: "==", Ne: "!=", Lt: "<", Le: "<=", Gt: ">", Ge: ">=",
	LAnd: "&&", LOr: "||",
}

func (p Pos) Position() Pos { return p }

func (op BinOp) String() string { return binNames[op] }

// IsCompare reports operators producing a bool from two operands of one type.
func (op BinOp) IsCompare() bool { return op >= Eq && op <= Ge }

func (op BinOp) IsLogic() bool { return op == LAnd || op == LOr }

func (op UnOp) String() string {
	switch op {
	case Neg:
		return "-"
	case Not:
		return "!"
	default:
		return "^"
	}
}

func (s StorageClass) String() string {
	switch s {
	case Register:
		return "register"
	case Stack:
		return "stack"
	default:
		return "heap"
	}
}

// Symbol is the IL name of a function. Methods are qualified by their class.
func (f *Func) Symbol() string {
	if f.Extern != "" {
		return f.Extern
	}

	if f.Class != nil {
		return f.Class.Name + "." + f.Name
	}

	return f.Name
}

func (f *Func) Signature() tp.Func {
	s := tp.Func{Result: f.Result}

	if f.Recv != nil {
		s.Params = append(s.Params, f.Recv.Type)
	}

	for _, p := range f.Params {
		s.Params = append(s.Params, p.Type)
	}

	return s
}

func (x *IntLit) Type() tp.Type     { return x.T }
func (x *FloatLit) Type() tp.Type   { return tp.Float{} }
func (x *BoolLit) Type() tp.Type    { return tp.Bool{} }
func (x *StrLit) Type() tp.Type     { return tp.String{} }
func (x *NilLit) Type() tp.Type     { return x.T }
func (x *VarRef) Type() tp.Type     { return x.Var.Type }
func (x *Unary) Type() tp.Type      { return x.X.Type() }
func (x *Call) Type() tp.Type       { return x.Func.Result }
func (x *MethodCall) Type() tp.Type { return x.Method.Result }
func (x *AddrOf) Type() tp.Type     { return tp.Pointer{Elem: x.Var.Type} }
func (x *Convert) Type() tp.Type    { return x.T }
func (x *Len) Type() tp.Type        { return tp.Int64 }
func (x *MakeArray) Type() tp.Type  { return x.T }
func (x *New) Type() tp.Type        { return x.Class }

func (x *Binary) Type() tp.Type {
	if x.Op.IsCompare() || x.Op.IsLogic() {
		return tp.Bool{}
	}

	return x.X.Type()
}

func (x *Index) Type() tp.Type {
	if a, ok := x.X.Type().(tp.Array); ok {
		return a.Elem
	}

	return tp.Void{}
}

func (x *FieldRef) Type() tp.Type {
	if c, ok := x.X.Type().(*tp.Class); ok {
		if f, ok := c.Field(x.Name); ok {
			return f.Type
		}
	}

	return tp.Void{}
}

func (x *Deref) Type() tp.Type {
	if p, ok := x.X.Type().(tp.Pointer); ok {
		return p.Elem
	}

	return tp.Void{}
}

func (*Block) stmt()    {}
func (*VarDecl) stmt()  {}
func (*Assign) stmt()   {}
func (*ExprStmt) stmt() {}
func (*Print) stmt()    {}
func (*If) stmt()       {}
func (*While) stmt()    {}
func (*For) stmt()      {}
func (*Break) stmt()    {}
func (*Continue) stmt() {}
func (*Return) stmt()   {}
