// Package format prints checked units back as Go-like source.
package format

import (
	"context"
	"strconv"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/slowlang/slow/compiler/ast"
	"github.com/slowlang/slow/compiler/tp"
)

// Format appends x to b. x is *ast.Unit, *ast.Func, ast.Stmt or ast.Expr.
func Format(ctx context.Context, b []byte, x any) ([]byte, error) {
	return format(ctx, b, x, 0)
}

func format(ctx context.Context, b []byte, x any, d int) ([]byte, error) {
	switch x := x.(type) {
	case *ast.Unit:
		return formatUnit(ctx, b, x, d)
	case *ast.Func:
		return formatFunc(ctx, b, x, d)
	case ast.Stmt:
		return formatStmt(ctx, b, x, d)
	case ast.Expr:
		return formatExpr(ctx, b, x)
	default:
		return nil, errors.New("unsupported type: %T", x)
	}
}

func formatUnit(ctx context.Context, b []byte, x *ast.Unit, d int) (_ []byte, err error) {
	for i, c := range x.Classes {
		if i != 0 {
			b = append(b, '\n')
		}

		b = formatClass(b, c, d)
	}

	for i, f := range x.Funcs {
		if i != 0 || len(x.Classes) != 0 {
			b = append(b, '\n')
		}

		b, err = formatFunc(ctx, b, f, d)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Symbol())
		}
	}

	return b, nil
}

func formatClass(b []byte, c *tp.Class, d int) []byte {
	b = app(b, d, "type %v struct {\n", c.Name)

	for _, f := range c.Fields {
		b = app(b, d+1, "%v %v\n", f.Name, typeString(f.Type))
	}

	return app(b, d, "}\n")
}

func formatFunc(ctx context.Context, b []byte, x *ast.Func, d int) (_ []byte, err error) {
	b = app(b, d, "func ")

	if x.Recv != nil {
		b = hfmt.Appendf(b, "(%v %v) ", x.Recv.Name, typeString(x.Recv.Type))
	}

	b = append(b, x.Name...)
	b = append(b, '(')

	for i, p := range x.Params {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = hfmt.Appendf(b, "%v %v", p.Name, typeString(p.Type))
	}

	b = append(b, ')')

	if !tp.IsVoid(x.Result) {
		b = append(b, ' ')
		b = append(b, typeString(x.Result)...)
	}

	if x.Body == nil {
		return append(b, '\n'), nil
	}

	b = append(b, " {\n"...)

	b, err = formatStmts(ctx, b, x.Body, d+1)
	if err != nil {
		return nil, errors.Wrap(err, "body")
	}

	b = app(b, d, "}\n")

	return b, nil
}

func formatStmts(ctx context.Context, b []byte, x *ast.Block, d int) (_ []byte, err error) {
	for _, s := range x.Stmts {
		b, err = formatStmt(ctx, b, s, d)
		if err != nil {
			return nil, err
		}
	}

	return b, nil
}

func formatStmt(ctx context.Context, b []byte, s ast.Stmt, d int) (_ []byte, err error) {
	switch s := s.(type) {
	case *ast.Block:
		b = app(b, d, "{\n")

		b, err = formatStmts(ctx, b, s, d+1)
		if err != nil {
			return nil, err
		}

		b = app(b, d, "}\n")
	case *ast.VarDecl:
		b = app(b, d, "var %v %v", s.Var.Name, typeString(s.Var.Type))

		if s.Init != nil {
			b = append(b, " = "...)

			b, err = formatExpr(ctx, b, s.Init)
			if err != nil {
				return nil, errors.Wrap(err, "var %v", s.Var.Name)
			}
		}

		if s.Var.Storage != ast.Register {
			b = hfmt.Appendf(b, " // %s", s.Var.Storage.String())
		}

		b = append(b, '\n')
	case *ast.Assign, *ast.ExprStmt:
		b = app(b, d, "")

		b, err = formatSimple(ctx, b, s)
		if err != nil {
			return nil, err
		}

		b = append(b, '\n')
	case *ast.Print:
		name := "print"
		if s.Newline {
			name = "println"
		}

		b = app(b, d, "%v(", name)

		b, err = formatList(ctx, b, s.Args)
		if err != nil {
			return nil, errors.Wrap(err, "print")
		}

		b = append(b, ")\n"...)
	case *ast.If:
		b = app(b, d, "")

		b, err = formatIf(ctx, b, s, d)
		if err != nil {
			return nil, err
		}
	case *ast.While:
		b = app(b, d, "for ")

		if s.Cond != nil {
			b, err = formatExpr(ctx, b, s.Cond)
			if err != nil {
				return nil, errors.Wrap(err, "cond")
			}

			b = append(b, ' ')
		}

		b, err = formatBody(ctx, b, s.Body, d)
		if err != nil {
			return nil, err
		}

		b = append(b, '\n')
	case *ast.For:
		b = app(b, d, "for ")

		if s.Init != nil {
			b, err = formatSimple(ctx, b, s.Init)
			if err != nil {
				return nil, errors.Wrap(err, "init")
			}
		}

		b = append(b, "; "...)

		if s.Cond != nil {
			b, err = formatExpr(ctx, b, s.Cond)
			if err != nil {
				return nil, errors.Wrap(err, "cond")
			}
		}

		b = append(b, "; "...)

		if s.Post != nil {
			b, err = formatSimple(ctx, b, s.Post)
			if err != nil {
				return nil, errors.Wrap(err, "post")
			}
		}

		b = append(b, ' ')

		b, err = formatBody(ctx, b, s.Body, d)
		if err != nil {
			return nil, err
		}

		b = append(b, '\n')
	case *ast.Break:
		b = app(b, d, "break\n")
	case *ast.Continue:
		b = app(b, d, "continue\n")
	case *ast.Return:
		b = app(b, d, "return")

		if s.X != nil {
			b = append(b, ' ')

			b, err = formatExpr(ctx, b, s.X)
			if err != nil {
				return nil, errors.Wrap(err, "return")
			}
		}

		b = append(b, '\n')
	default:
		return nil, errors.New("unsupported stmt: %T", s)
	}

	return b, nil
}

// formatSimple prints a statement allowed in a for header.
func formatSimple(ctx context.Context, b []byte, s ast.Stmt) (_ []byte, err error) {
	switch s := s.(type) {
	case *ast.VarDecl:
		b = hfmt.Appendf(b, "%v := ", s.Var.Name)

		if s.Init == nil {
			return nil, errors.New("var %v: no initializer", s.Var.Name)
		}

		return formatExpr(ctx, b, s.Init)
	case *ast.Assign:
		b, err = formatExpr(ctx, b, s.Target)
		if err != nil {
			return nil, errors.Wrap(err, "lhs")
		}

		b = append(b, " = "...)

		b, err = formatExpr(ctx, b, s.Value)
		if err != nil {
			return nil, errors.Wrap(err, "rhs")
		}

		return b, nil
	case *ast.ExprStmt:
		return formatExpr(ctx, b, s.X)
	default:
		return nil, errors.New("unsupported simple stmt: %T", s)
	}
}

func formatIf(ctx context.Context, b []byte, s *ast.If, d int) (_ []byte, err error) {
	b = append(b, "if "...)

	b, err = formatExpr(ctx, b, s.Cond)
	if err != nil {
		return nil, errors.Wrap(err, "cond")
	}

	b = append(b, ' ')

	b, err = formatBody(ctx, b, s.Then, d)
	if err != nil {
		return nil, err
	}

	switch e := s.Else.(type) {
	case nil:
	case *ast.If:
		b = append(b, " else "...)

		return formatIf(ctx, b, e, d)
	case *ast.Block:
		b = append(b, " else "...)

		b, err = formatBody(ctx, b, e, d)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported else: %T", e)
	}

	return append(b, '\n'), nil
}

// formatBody prints a braced block without the trailing newline.
func formatBody(ctx context.Context, b []byte, x *ast.Block, d int) (_ []byte, err error) {
	b = append(b, "{\n"...)

	b, err = formatStmts(ctx, b, x, d+1)
	if err != nil {
		return nil, err
	}

	return app(b, d, "}"), nil
}

func formatExpr(ctx context.Context, b []byte, x ast.Expr) (_ []byte, err error) {
	switch x := x.(type) {
	case *ast.IntLit:
		b = strconv.AppendInt(b, x.Value, 10)
	case *ast.FloatLit:
		b = strconv.AppendFloat(b, x.Value, 'g', -1, 64)
	case *ast.BoolLit:
		b = strconv.AppendBool(b, x.Value)
	case *ast.StrLit:
		b = strconv.AppendQuote(b, x.Value)
	case *ast.NilLit:
		b = append(b, "nil"...)
	case *ast.VarRef:
		b = append(b, x.Var.Name...)
	case *ast.Unary:
		b = append(b, unaryNames[x.Op]...)

		return operand(ctx, b, x.X)
	case *ast.Binary:
		b, err = operand(ctx, b, x.X)
		if err != nil {
			return nil, errors.Wrap(err, "left")
		}

		b = hfmt.Appendf(b, " %s ", x.Op.String())

		b, err = operand(ctx, b, x.Y)
		if err != nil {
			return nil, errors.Wrap(err, "right")
		}
	case *ast.Call:
		b = append(b, x.Func.Name...)

		return call(ctx, b, x.Args)
	case *ast.MethodCall:
		b, err = operand(ctx, b, x.Recv)
		if err != nil {
			return nil, errors.Wrap(err, "recv")
		}

		b = append(b, '.')
		b = append(b, x.Method.Name...)

		return call(ctx, b, x.Args)
	case *ast.Index:
		b, err = operand(ctx, b, x.X)
		if err != nil {
			return nil, err
		}

		b = append(b, '[')

		b, err = formatExpr(ctx, b, x.Index)
		if err != nil {
			return nil, errors.Wrap(err, "index")
		}

		b = append(b, ']')
	case *ast.FieldRef:
		b, err = operand(ctx, b, x.X)
		if err != nil {
			return nil, err
		}

		b = append(b, '.')
		b = append(b, x.Name...)
	case *ast.AddrOf:
		b = append(b, '&')
		b = append(b, x.Var.Name...)
	case *ast.Deref:
		b = append(b, '*')

		return operand(ctx, b, x.X)
	case *ast.Convert:
		b = append(b, typeString(x.T)...)

		return call(ctx, b, []ast.Expr{x.X})
	case *ast.Len:
		b = append(b, "len"...)

		return call(ctx, b, []ast.Expr{x.X})
	case *ast.MakeArray:
		b = hfmt.Appendf(b, "make(%v, ", typeString(x.T))

		b, err = formatExpr(ctx, b, x.Len)
		if err != nil {
			return nil, errors.Wrap(err, "len")
		}

		b = append(b, ')')
	case *ast.New:
		b = hfmt.Appendf(b, "new(%v)", x.Class.Name)
	default:
		return nil, errors.New("unsupported expr: %T", x)
	}

	return b, nil
}

// operand parenthesizes compound operands.
func operand(ctx context.Context, b []byte, x ast.Expr) (_ []byte, err error) {
	switch x.(type) {
	case *ast.Binary, *ast.Unary, *ast.Deref:
	default:
		return formatExpr(ctx, b, x)
	}

	b = append(b, '(')

	b, err = formatExpr(ctx, b, x)
	if err != nil {
		return nil, err
	}

	return append(b, ')'), nil
}

func call(ctx context.Context, b []byte, args []ast.Expr) (_ []byte, err error) {
	b = append(b, '(')

	b, err = formatList(ctx, b, args)
	if err != nil {
		return nil, err
	}

	return append(b, ')'), nil
}

func formatList(ctx context.Context, b []byte, l []ast.Expr) (_ []byte, err error) {
	for i, a := range l {
		if i != 0 {
			b = append(b, ", "...)
		}

		b, err = formatExpr(ctx, b, a)
		if err != nil {
			return nil, errors.Wrap(err, "arg %d", i)
		}
	}

	return b, nil
}

var unaryNames = []string{
	ast.Neg:    "-",
	ast.Not:    "!",
	ast.BitNot: "^",
}

// typeString spells t the way it is written in source.
func typeString(t tp.Type) string {
	switch t := t.(type) {
	case *tp.Class:
		return "*" + t.Name
	case tp.Array:
		return "[]" + typeString(t.Elem)
	case tp.Pointer:
		return "*" + typeString(t.Elem)
	case nil:
		return "?"
	}

	return t.String()
}

func app(b []byte, d int, f string, args ...any) []byte {
	const tabs = "\t\t\t\t\t\t\t\t\t\t\t\t\t\t\t"
	b = append(b, tabs[:d]...)
	b = hfmt.Appendf(b, f, args...)
	return b
}
