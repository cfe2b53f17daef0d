package arm64

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIns(t *testing.T) {
	var b []byte

	b = Ins(b, "ADD", X19, X9, Imm(16))
	b = Ins(b, "LDRSW", X12, Mem{Base: SP, Off: 24})
	b = Ins(b, "STRB", W(X10), Mem{Base: X9})
	b = Ins(b, "CSET", X0, LT)
	b = Ins(b, "RET")

	assert.Equal(t, "\tADD\tX19, X9, #16\n\tLDRSW\tX12, [SP, #24]\n\tSTRB\tW10, [X9]\n\tCSET\tX0, LT\n\tRET\n", string(b))
	assert.Equal(t, "X29", FP.String())
}

func TestMovImm(t *testing.T) {
	assert.Equal(t, "\tMOV\tX9, #-5\n", string(MovImm(nil, X9, -5)))
	assert.Equal(t, "\tMOVZ\tX9, #1, LSL #16\n", string(MovImm(nil, X9, 1<<16)))
	assert.Equal(t, "\tMOVZ\tX9, #4660, LSL #0\n\tMOVK\tX9, #1, LSL #32\n", string(MovImm(nil, X9, 1<<32|0x1234)))
}
