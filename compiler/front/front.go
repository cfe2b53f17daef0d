// Package front is the reference frontend: a Go-syntax language
// checked into the typed AST consumed by lowering.
//
// Supported: struct classes used through pointers, methods with pointer receivers,
// int16/int32/int64/int, float64, bool, string, slices made with make,
// scalar pointers, if/for/break/continue/return and the print/println,
// len, make and new builtins. Function declarations without a body
// are runtime or cross-module externs.
package front

import (
	"context"
	"fmt"
	"go/parser"
	"go/scanner"
	"go/token"
	"path/filepath"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/slow/compiler/ast"
)

type (
	// Token is a lexical token.
	Token struct {
		Pos ast.Pos
		Tok string
		Lit string
	}

	// Error is a syntax or semantic error.
	Error struct {
		File string
		Pos  ast.Pos
		Msg  string
	}

	ErrorList []*Error
)

// Tokens scans src.
func Tokens(name string, src []byte) ([]Token, error) {
	fset := token.NewFileSet()
	file := fset.AddFile(name, -1, len(src))

	var errs ErrorList

	var s scanner.Scanner
	s.Init(file, src, func(p token.Position, msg string) {
		errs = append(errs, &Error{File: p.Filename, Pos: ast.Pos{Line: p.Line, Col: p.Column}, Msg: msg})
	}, 0)

	var l []Token

	for {
		pos, tok, lit := s.Scan()
		if tok == token.EOF {
			break
		}

		p := fset.Position(pos)

		l = append(l, Token{Pos: ast.Pos{Line: p.Line, Col: p.Column}, Tok: tok.String(), Lit: lit})
	}

	if len(errs) != 0 {
		return l, errs
	}

	return l, nil
}

// Parse parses and checks one source file.
func Parse(ctx context.Context, name string, src []byte) (u *ast.Unit, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "front: parse", "file", name, "size", len(src))
	defer tr.Finish("err", &err)

	fset := token.NewFileSet()

	f, err := parser.ParseFile(fset, name, src, parser.SkipObjectResolution)
	if err != nil {
		var el scanner.ErrorList
		if errors.As(err, &el) {
			return nil, fromScanner(el)
		}

		return nil, errors.Wrap(err, "parse")
	}

	c := newChecker(fset, name)

	u = c.file(unitName(name), f)

	if len(c.errs) != 0 {
		if tr.If("front_errors") {
			for _, e := range c.errs {
				tr.Printw("error", "pos", e.Pos, "msg", e.Msg)
			}
		}

		return nil, c.errs
	}

	return u, nil
}

func unitName(file string) string {
	base := filepath.Base(file)

	return strings.TrimSuffix(base, filepath.Ext(base))
}

func fromScanner(l scanner.ErrorList) ErrorList {
	r := make(ErrorList, len(l))

	for i, e := range l {
		r[i] = &Error{
			File: e.Pos.Filename,
			Pos:  ast.Pos{Line: e.Pos.Line, Col: e.Pos.Column},
			Msg:  e.Msg,
		}
	}

	return r
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Pos.Line, e.Pos.Col, e.Msg)
}

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}

	var b strings.Builder

	fmt.Fprintf(&b, "%d errors:", len(l))

	for _, e := range l {
		b.WriteString("\n\t")
		b.WriteString(e.Error())
	}

	return b.String()
}

func (t Token) String() string {
	if t.Lit == "" || t.Lit == t.Tok {
		return fmt.Sprintf("%d:%d\t%s", t.Pos.Line, t.Pos.Col, t.Tok)
	}

	return fmt.Sprintf("%d:%d\t%s\t%q", t.Pos.Line, t.Pos.Col, t.Tok, t.Lit)
}
