package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/slow/compiler"
	"github.com/slowlang/slow/compiler/back"
	"github.com/slowlang/slow/compiler/config"
	"github.com/slowlang/slow/compiler/format"
	"github.com/slowlang/slow/compiler/front"
	"github.com/slowlang/slow/compiler/ir"
	"github.com/slowlang/slow/compiler/verify"
	"github.com/slowlang/slow/compiler/vm"
)

const (
	ModeTokens = "emit-tokens"
	ModeAST    = "emit-ast"
	ModeIL     = "emit-il"
	ModeRun    = "run-vm"
	ModeNative = "compile-native"
)

var (
	errorLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	trapLabel  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	noteLabel  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var errFailed = errors.New("failed")

func main() {
	cli.RunAndExit(newApp(), os.Args, os.Environ())
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:        "slow",
		Description: "slow compiles and runs slow source code and textual IL",
		Before:      before,
		Action:      run,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("mode,m", ModeIL, "emit-tokens|emit-ast|emit-il|run-vm|compile-native"),
			cli.NewFlag("entry", "main", "function run-vm starts from"),
			cli.NewFlag("target", "", "target triple for compile-native (default from config)"),
			cli.NewFlag("output,o", "", "directory for compile-native artifacts (default stdout)"),
			cli.NewFlag("config", "", "config file (default slow.yaml if present)"),
			cli.NewFlag("dispatch", "", "vm dispatch: switch|table|threaded"),
			cli.NewFlag("max-steps", 0, "vm instruction limit"),
			cli.NewFlag("jobs,j", 0, "files compiled in parallel"),
			cli.NewFlag("all-errors", false, "report all verification errors of a class"),
			cli.NewFlag("profile", false, "print vm profile tables"),
			cli.NewFlag("tree", false, "draw emit-ast output as a tree"),
			cli.NewFlag("verbosity,v", "", "logger verbosity topics"),
			cli.HelpFlag,
		},
	}
}

func before(c *cli.Command) error {
	tlog.SetVerbosity(c.String("verbosity"))

	return nil
}

func run(c *cli.Command) (err error) {
	if len(c.Args) == 0 {
		return errors.New("no input files")
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return errors.Wrap(err, "config")
	}

	err = override(c, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	switch mode := c.String("mode"); mode {
	case ModeTokens:
		err = emitTokens(c.Stdout, c.Args)
	case ModeAST:
		err = emitAST(ctx, c.Stdout, c.Args, c.Bool("tree"))
	case ModeIL:
		err = emitIL(ctx, c.Stdout, cfg, c.Args)
	case ModeRun:
		err = runVM(ctx, c.Stdout, c.Stderr, cfg, c.Args, c.String("entry"))
	case ModeNative:
		err = compileNative(ctx, c.Stdout, cfg, c.Args, c.String("output"))
	default:
		return errors.New("unknown mode: %q", mode)
	}

	if err == nil {
		return nil
	}

	diagnose(c.Stderr, err)

	return errFailed
}

// override applies command line flags on top of the loaded config.
func override(c *cli.Command, cfg *config.Config) error {
	if d := c.String("dispatch"); d != "" {
		cfg.VM.Dispatch = d
	}

	if n := c.Int("max-steps"); n != 0 {
		cfg.VM.MaxSteps = int64(n)
	}

	if n := c.Int("jobs"); n != 0 {
		cfg.Batch.Jobs = n
	}

	if t := c.String("target"); t != "" {
		cfg.Codegen.Target = t
	}

	cfg.Verify.AllErrors = cfg.Verify.AllErrors || c.Bool("all-errors")
	cfg.VM.Profile = cfg.VM.Profile || c.Bool("profile")

	return cfg.Validate()
}

func emitTokens(w io.Writer, files []string) error {
	for _, name := range files {
		src, err := os.ReadFile(name)
		if err != nil {
			return errors.Wrap(err, "read file")
		}

		l, err := front.Tokens(name, src)

		for _, t := range l {
			fmt.Fprintln(w, t)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

func emitAST(ctx context.Context, w io.Writer, files []string, asTree bool) error {
	for _, name := range files {
		src, err := os.ReadFile(name)
		if err != nil {
			return errors.Wrap(err, "read file")
		}

		u, err := front.Parse(ctx, name, src)
		if err != nil {
			return err
		}

		if asTree {
			tr, err := format.Tree(u)
			if err != nil {
				return errors.Wrap(err, "draw tree")
			}

			fmt.Fprintln(w, tr)

			continue
		}

		b, err := format.Format(ctx, nil, u)
		if err != nil {
			return errors.Wrap(err, "format")
		}

		_, err = w.Write(b)
		if err != nil {
			return errors.Wrap(err, "write")
		}
	}

	return nil
}

func emitIL(ctx context.Context, w io.Writer, cfg *config.Config, files []string) error {
	units, err := compiler.CompileFiles(ctx, files, cfg.Batch.Jobs, cfg.VerifyOptions())
	if err != nil {
		return err
	}

	for i, u := range units {
		if i != 0 {
			fmt.Fprintln(w)
		}

		fmt.Fprint(w, u.IL.String())
	}

	return nil
}

func runVM(ctx context.Context, stdout, stderr io.Writer, cfg *config.Config, files []string, entry string) error {
	if len(files) != 1 {
		return errors.New("run-vm takes one file, got %d", len(files))
	}

	u, err := compiler.CompileFile(ctx, files[0], cfg.VerifyOptions())
	if err != nil {
		return err
	}

	vc := cfg.VMConfig()
	vc.Out = stdout

	m := vm.New(vc)

	res, err := compiler.Run(ctx, m, u, entry)

	if p := m.Profile(); p != nil {
		p.WriteTables(stderr)
	}

	if err != nil {
		return err
	}

	if res.Type != ir.Void {
		fmt.Fprintf(stderr, "%s %v\n", noteLabel.Render("result:"), res)
	}

	return nil
}

func compileNative(ctx context.Context, w io.Writer, cfg *config.Config, files []string, outdir string) error {
	units, err := compiler.CompileFiles(ctx, files, cfg.Batch.Jobs, cfg.VerifyOptions())
	if err != nil {
		return err
	}

	for _, u := range units {
		a, err := compiler.Native(ctx, u, cfg.Codegen.Target)
		if err != nil {
			return err
		}

		if outdir == "" {
			_, err = w.Write(a.Text)
			if err != nil {
				return errors.Wrap(err, "write")
			}

			continue
		}

		ext := ".s"
		if a.Kind == back.LLVMIR {
			ext = ".ll"
		}

		base := strings.TrimSuffix(filepath.Base(u.Name), filepath.Ext(u.Name))
		name := filepath.Join(outdir, base+ext)

		err = os.WriteFile(name, a.Text, 0o644)
		if err != nil {
			return errors.Wrap(err, "write artifact")
		}

		tlog.Printw("artifact written", "name", name, "kind", a.Kind, "size", len(a.Text))
	}

	return nil
}

func diagnose(w io.Writer, err error) {
	var (
		verrs verify.Errors
		ferrs front.ErrorList
		trap  *vm.Trap
		unsup *back.UnsupportedError
	)

	switch {
	case errors.As(err, &verrs):
		for _, e := range verrs {
			fmt.Fprintf(w, "%s %v\n", errorLabel.Render("verify:"), e)
		}
	case errors.As(err, &ferrs):
		for _, e := range ferrs {
			fmt.Fprintf(w, "%s %v\n", errorLabel.Render("error:"), e)
		}
	case errors.As(err, &trap):
		fmt.Fprintf(w, "%s %v\n", trapLabel.Render("trap:"), trap)

		for _, f := range trap.Stack {
			fmt.Fprintf(w, "\t%s %s\n", noteLabel.Render("at"), f)
		}
	case errors.As(err, &unsup):
		fmt.Fprintf(w, "%s %v\n", errorLabel.Render("unsupported:"), unsup)
	default:
		fmt.Fprintf(w, "%s %v\n", errorLabel.Render("error:"), err)
	}
}
