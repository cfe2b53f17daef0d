package asm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyntax(t *testing.T) {
	l := Syntax{OS: Linux}
	d := Syntax{OS: Darwin}

	assert.Equal(t, "main", l.Sym("main"))
	assert.Equal(t, "_main", d.Sym("main"))
	assert.Equal(t, ".Lf.loop.head", l.Local("f", "loop.head"))
	assert.Equal(t, "Lf.entry", d.Local("f", "entry"))

	assert.Equal(t, "\t.globl\t_add\n\t.p2align\t2\n_add:\n", string(d.Global(nil, "add")))
	assert.Equal(t, "\t// frame 16\n", string(Comment(nil, "frame %d", 16)))
}

func TestAscii(t *testing.T) {
	assert.Equal(t, "\t.ascii\t\"a\\\"b\\\\\\012\\303\"\n", string(Ascii(nil, "a\"b\\\n\xc3")))
}
