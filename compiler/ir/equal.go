package ir

import (
	"math"

	"tlog.app/go/errors"
)

// Equal reports whether two modules are structurally identical.
func Equal(a, b *Module) bool {
	return Compare(a, b) == nil
}

// Compare returns an error describing the first structural difference.
func Compare(a, b *Module) error {
	if a.Name != b.Name {
		return errors.New("module name: %q vs %q", a.Name, b.Name)
	}

	if len(a.Externs) != len(b.Externs) {
		return errors.New("externs: %d vs %d", len(a.Externs), len(b.Externs))
	}

	for i, x := range a.Externs {
		y := b.Externs[i]

		if x.Name != y.Name || x.Ret != y.Ret || !typesEqual(x.Params, y.Params) {
			return errors.New("extern %d: @%s vs @%s", i, x.Name, y.Name)
		}
	}

	if len(a.Funcs) != len(b.Funcs) {
		return errors.New("funcs: %d vs %d", len(a.Funcs), len(b.Funcs))
	}

	for i, f := range a.Funcs {
		if err := compareFunc(f, b.Funcs[i]); err != nil {
			return errors.Wrap(err, "func @%s", f.Name)
		}
	}

	return nil
}

func compareFunc(a, b *Func) error {
	if a.Name != b.Name || a.Ret != b.Ret {
		return errors.New("header: @%s -> %v vs @%s -> %v", a.Name, a.Ret, b.Name, b.Ret)
	}

	if !paramsEqual(a.Params, b.Params) {
		return errors.New("params differ")
	}

	if len(a.Blocks) != len(b.Blocks) {
		return errors.New("blocks: %d vs %d", len(a.Blocks), len(b.Blocks))
	}

	for i, x := range a.Blocks {
		y := b.Blocks[i]

		if x.Label != y.Label || !paramsEqual(x.Params, y.Params) {
			return errors.New("block %d header: %v vs %v", i, x.Label, y.Label)
		}

		if len(x.Code) != len(y.Code) {
			return errors.New("block %v: %d vs %d instructions", x.Label, len(x.Code), len(y.Code))
		}

		for j, in := range x.Code {
			if !instrEqual(in, y.Code[j]) {
				return errors.New("block %v: instr %d: %v vs %v", x.Label, j, in, y.Code[j])
			}
		}
	}

	return nil
}

func instrEqual(a, b *Instr) bool {
	if a.Op != b.Op || a.Result != b.Result || a.Type != b.Type ||
		a.Callee != b.Callee || a.Str != b.Str || a.Loc != b.Loc {
		return false
	}

	if !valuesEqual(a.Args, b.Args) || len(a.Targets) != len(b.Targets) {
		return false
	}

	for i, t := range a.Targets {
		if t.Label != b.Targets[i].Label || !valuesEqual(t.Args, b.Targets[i].Args) {
			return false
		}
	}

	return true
}

func valuesEqual(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}

	for i, x := range a {
		if !x.Same(b[i]) {
			return false
		}
	}

	return true
}

// Same compares values bitwise so NaN constants match themselves.
func (v Value) Same(w Value) bool {
	return v.Kind == w.Kind && v.ID == w.ID && v.Int == w.Int &&
		math.Float64bits(v.Float) == math.Float64bits(w.Float)
}

func typesEqual(a, b []Type) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

func paramsEqual(a, b []Param) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
