package compiler

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/slow/compiler/ast"
	"github.com/slowlang/slow/compiler/back"
	"github.com/slowlang/slow/compiler/front"
	"github.com/slowlang/slow/compiler/ir"
	"github.com/slowlang/slow/compiler/lower"
	"github.com/slowlang/slow/compiler/verify"
	"github.com/slowlang/slow/compiler/vm"
)

type (
	// Unit is one compiled input file.
	Unit struct {
		Name string

		AST  *ast.Unit // nil for textual IL inputs
		IL   *ir.Module
		Prog *verify.Verified
	}
)

// ILExt marks textual IL inputs. Everything else goes through the frontend.
const ILExt = ".il"

func CompileFile(ctx context.Context, name string, opts verify.Options) (u *Unit, err error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return Compile(ctx, name, text, opts)
}

// Compile parses, lowers and verifies one file.
// On verification failure the returned unit still carries the IL.
func Compile(ctx context.Context, name string, text []byte, opts verify.Options) (u *Unit, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile", "name", name)
	defer tr.Finish("err", &err)

	u = &Unit{Name: name}

	if filepath.Ext(name) == ILExt {
		u.IL, err = ir.Parse(name, text)
		if err != nil {
			return nil, errors.Wrap(err, "parse il")
		}
	} else {
		u.AST, err = front.Parse(ctx, name, text)
		if err != nil {
			return nil, err
		}

		u.IL, err = lower.Module(ctx, u.AST)
		if err != nil {
			return nil, errors.Wrap(err, "lower")
		}
	}

	if tr.If("dump_il") {
		tr.Printw("il", "module", u.IL.Name, "text", u.IL.String())
	}

	u.Prog, err = verify.Module(ctx, u.IL, opts)
	if err != nil {
		return u, err
	}

	return u, nil
}

// CompileFiles compiles independent files in parallel.
// jobs <= 0 means no limit beyond GOMAXPROCS.
func CompileFiles(ctx context.Context, names []string, jobs int, opts verify.Options) (_ []*Unit, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile files", "files", len(names), "jobs", jobs)
	defer tr.Finish("err", &err)

	units := make([]*Unit, len(names))

	g, ctx := errgroup.WithContext(ctx)

	if jobs > 0 {
		g.SetLimit(jobs)
	}

	for i, name := range names {
		i, name := i, name

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			u, err := CompileFile(ctx, name, opts)
			if err != nil {
				return errors.Wrap(err, "%v", name)
			}

			units[i] = u

			return nil
		})
	}

	if err = g.Wait(); err != nil {
		return nil, err
	}

	return units, nil
}

// Run executes entry on the machine.
func Run(ctx context.Context, m *vm.Machine, u *Unit, entry string, args ...vm.Value) (vm.Value, error) {
	if u.Prog == nil {
		return vm.Value{}, errors.Wrap(verify.ErrUnverified, "%v", u.Name)
	}

	return m.Run(ctx, u.Prog, entry, args...)
}

// Native compiles the unit for the target triple.
func Native(ctx context.Context, u *Unit, triple string) (*back.Artifact, error) {
	if u.Prog == nil {
		return nil, errors.Wrap(verify.ErrUnverified, "%v", u.Name)
	}

	return back.Compile(ctx, u.Prog, triple)
}
