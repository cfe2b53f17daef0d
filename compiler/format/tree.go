package format

import (
	"strconv"

	"github.com/m1gwings/treedrawer/tree"
	"tlog.app/go/errors"

	"github.com/slowlang/slow/compiler/ast"
)

// Tree builds a drawable tree of the unit.
// fmt.Print(t) renders it.
func Tree(u *ast.Unit) (*tree.Tree, error) {
	t := tree.NewTree(tree.NodeString("unit " + u.Name))

	for _, c := range u.Classes {
		n := t.AddChild(tree.NodeString("type " + c.Name))

		for _, f := range c.Fields {
			n.AddChild(tree.NodeString(f.Name + " " + typeString(f.Type)))
		}
	}

	for _, f := range u.Funcs {
		n := t.AddChild(tree.NodeString("func " + f.Symbol()))

		for _, p := range f.Params {
			n.AddChild(tree.NodeString("param " + p.Name + " " + typeString(p.Type)))
		}

		if f.Body == nil {
			n.AddChild(tree.NodeString("extern"))
			continue
		}

		err := stmtTree(n, f.Body)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Symbol())
		}
	}

	return t, nil
}

func stmtTree(t *tree.Tree, s ast.Stmt) (err error) {
	switch s := s.(type) {
	case *ast.Block:
		n := t.AddChild(tree.NodeString("block"))

		for _, s := range s.Stmts {
			if err = stmtTree(n, s); err != nil {
				return err
			}
		}

		return nil
	case *ast.VarDecl:
		n := t.AddChild(tree.NodeString("var " + s.Var.Name + " " + typeString(s.Var.Type)))

		if s.Init != nil {
			return exprTree(n, s.Init)
		}

		return nil
	case *ast.Assign:
		n := t.AddChild(tree.NodeString("="))

		return exprs(n, s.Target, s.Value)
	case *ast.ExprStmt:
		return exprTree(t, s.X)
	case *ast.Print:
		name := "print"
		if s.Newline {
			name = "println"
		}

		return exprs(t.AddChild(tree.NodeString(name)), s.Args...)
	case *ast.If:
		n := t.AddChild(tree.NodeString("if"))

		if err = exprTree(n, s.Cond); err != nil {
			return err
		}

		if err = stmtTree(n, s.Then); err != nil {
			return err
		}

		if s.Else != nil {
			return stmtTree(n.AddChild(tree.NodeString("else")), s.Else)
		}

		return nil
	case *ast.While:
		n := t.AddChild(tree.NodeString("while"))

		if s.Cond != nil {
			if err = exprTree(n, s.Cond); err != nil {
				return err
			}
		}

		return stmtTree(n, s.Body)
	case *ast.For:
		n := t.AddChild(tree.NodeString("for"))

		for _, x := range []ast.Stmt{s.Init, s.Post} {
			if x == nil {
				continue
			}

			if err = stmtTree(n, x); err != nil {
				return err
			}
		}

		if s.Cond != nil {
			if err = exprTree(n, s.Cond); err != nil {
				return err
			}
		}

		return stmtTree(n, s.Body)
	case *ast.Break:
		t.AddChild(tree.NodeString("break"))
		return nil
	case *ast.Continue:
		t.AddChild(tree.NodeString("continue"))
		return nil
	case *ast.Return:
		n := t.AddChild(tree.NodeString("return"))

		if s.X != nil {
			return exprTree(n, s.X)
		}

		return nil
	}

	return errors.New("unsupported stmt: %T", s)
}

func exprTree(t *tree.Tree, x ast.Expr) error {
	switch x := x.(type) {
	case *ast.IntLit:
		t.AddChild(tree.NodeString(strconv.FormatInt(x.Value, 10)))
	case *ast.FloatLit:
		t.AddChild(tree.NodeString(strconv.FormatFloat(x.Value, 'g', -1, 64)))
	case *ast.BoolLit:
		t.AddChild(tree.NodeString(strconv.FormatBool(x.Value)))
	case *ast.StrLit:
		t.AddChild(tree.NodeString(strconv.Quote(x.Value)))
	case *ast.NilLit:
		t.AddChild(tree.NodeString("nil"))
	case *ast.VarRef:
		t.AddChild(tree.NodeString(x.Var.Name))
	case *ast.AddrOf:
		t.AddChild(tree.NodeString("&" + x.Var.Name))
	case *ast.New:
		t.AddChild(tree.NodeString("new " + x.Class.Name))
	case *ast.Unary:
		return exprTree(t.AddChild(tree.NodeString(unaryNames[x.Op])), x.X)
	case *ast.Binary:
		return exprs(t.AddChild(tree.NodeString(x.Op.String())), x.X, x.Y)
	case *ast.Call:
		return exprs(t.AddChild(tree.NodeString("call "+x.Func.Symbol())), x.Args...)
	case *ast.MethodCall:
		n := t.AddChild(tree.NodeString("call ." + x.Method.Name))

		return exprs(n, append([]ast.Expr{x.Recv}, x.Args...)...)
	case *ast.Index:
		return exprs(t.AddChild(tree.NodeString("[]")), x.X, x.Index)
	case *ast.FieldRef:
		return exprTree(t.AddChild(tree.NodeString("."+x.Name)), x.X)
	case *ast.Deref:
		return exprTree(t.AddChild(tree.NodeString("*")), x.X)
	case *ast.Convert:
		return exprTree(t.AddChild(tree.NodeString(typeString(x.T))), x.X)
	case *ast.Len:
		return exprTree(t.AddChild(tree.NodeString("len")), x.X)
	case *ast.MakeArray:
		return exprTree(t.AddChild(tree.NodeString("make "+typeString(x.T))), x.Len)
	default:
		return errors.New("unsupported expr: %T", x)
	}

	return nil
}

func exprs(t *tree.Tree, l ...ast.Expr) error {
	for _, x := range l {
		if err := exprTree(t, x); err != nil {
			return err
		}
	}

	return nil
}
