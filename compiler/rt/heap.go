package rt

import (
	"encoding/binary"

	"tlog.app/go/errors"
)

type (
	// Heap is a set of byte blocks addressed by pointers of form id<<32 | offset.
	// Block 0 is never allocated so the zero pointer is null.
	// Freed ids are not reused, so stale pointers are detected.
	Heap struct {
		// Limit is the total size of live blocks. 0 means DefaultLimit.
		Limit int64

		blocks [][]byte
		freed  []bool

		used int64
	}
)

// MaxBlock is the largest block size.
const MaxBlock = 1 << 31

const DefaultLimit = 1 << 32

const badOffset = 0xffff_ffff

func (h *Heap) Alloc(size int64) (uint64, error) {
	if size < 0 || size > MaxBlock {
		return 0, errors.Wrap(ErrBounds, "allocation of %d bytes", size)
	}

	limit := h.Limit
	if limit == 0 {
		limit = DefaultLimit
	}

	if h.used+size > limit {
		return 0, ErrOutOfMemory
	}

	if len(h.blocks) == 0 {
		h.blocks = append(h.blocks, nil)
		h.freed = append(h.freed, true)
	}

	if uint64(len(h.blocks)) >= 1<<32 {
		return 0, ErrOutOfMemory
	}

	id := uint64(len(h.blocks))

	h.blocks = append(h.blocks, make([]byte, size))
	h.freed = append(h.freed, false)
	h.used += size

	return id << 32, nil
}

// Free releases the block p points to the start of.
func (h *Heap) Free(p uint64) error {
	id, off := Split(p)

	if err := h.check(id); err != nil {
		return err
	}

	if off != 0 {
		return errors.Wrap(ErrInvalidPointer, "free of interior pointer")
	}

	h.used -= int64(len(h.blocks[id]))
	h.blocks[id] = nil
	h.freed[id] = true

	return nil
}

// Load reads a size byte value. 2 and 4 byte values are sign extended.
func (h *Heap) Load(p uint64, size int) (uint64, error) {
	b, err := h.slice(p, size)
	if err != nil {
		return 0, err
	}

	switch size {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(int64(int16(binary.LittleEndian.Uint16(b)))), nil
	case 4:
		return uint64(int64(int32(binary.LittleEndian.Uint32(b)))), nil
	default:
		return binary.LittleEndian.Uint64(b), nil
	}
}

func (h *Heap) Store(p uint64, size int, v uint64) error {
	b, err := h.slice(p, size)
	if err != nil {
		return err
	}

	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}

	return nil
}

// Live is the number of allocated blocks.
func (h *Heap) Live() (n int) {
	for id := 1; id < len(h.freed); id++ {
		if !h.freed[id] {
			n++
		}
	}

	return n
}

func (h *Heap) slice(p uint64, size int) ([]byte, error) {
	id, off := Split(p)

	if err := h.check(id); err != nil {
		return nil, err
	}

	blk := h.blocks[id]

	if off == badOffset || uint64(off)+uint64(size) > uint64(len(blk)) {
		return nil, errors.Wrap(ErrBounds, "access of %d bytes at offset %d of %d byte block", size, off, len(blk))
	}

	return blk[off : int(off)+size], nil
}

func (h *Heap) check(id uint32) error {
	switch {
	case id == 0:
		return ErrNullPointer
	case int(id) >= len(h.blocks), h.freed[id]:
		return ErrInvalidPointer
	}

	return nil
}

// Offset moves p by d bytes. Pointers moved out of the block range
// are kept invalid and trap on access.
func Offset(p uint64, d int64) uint64 {
	id, off := Split(p)

	if off == badOffset {
		return p
	}

	n := int64(off) + d

	if n < 0 || n >= badOffset {
		n = badOffset
	}

	return uint64(id)<<32 | uint64(n)
}

func Split(p uint64) (id, off uint32) {
	return uint32(p >> 32), uint32(p)
}
