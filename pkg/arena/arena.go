// Package arena implements the block allocators backing the tree: a plain
// bump arena, an addressable arena that can be persisted and restored, and a
// recycling region allocator for short-lived scratch buffers.
package arena

import (
	"fmt"

	"go-arenakv/pkg/customerrors"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// Token identifies one allocation. Only the token of the most recent
// allocation can be handed back to Return.
type Token struct {
	block  int
	offset int
	size   int
	seq    uint64
}

// Size returns the number of bytes reserved by the allocation.
func (t Token) Size() int { return t.size }

type block struct {
	buf       []byte
	used      int
	base      int64 // sum of capacities of all preceding blocks
	dedicated bool  // holds a single request larger than the block capacity
}

func (b *block) free() int { return len(b.buf) - b.used }

// Arena hands out memory from a growing list of fixed-capacity blocks.
// Blocks never move or shrink, so memory stays valid for the lifetime of
// the arena. Positions (block base + offset) form a linear address space
// that is stable across persistence.
type Arena struct {
	blockCapacity int
	blocks        []*block
	cur           int
	seq           uint64
	last          Token
}

// New creates an empty arena. Blocks are created lazily.
func New(blockCapacity int) (*Arena, error) {
	if blockCapacity <= 0 {
		return nil, errors.Wrapf(customerrors.ErrInvalidCapacity, "block capacity %d", blockCapacity)
	}
	return &Arena{blockCapacity: blockCapacity}, nil
}

// Allocate reserves size bytes. Requests larger than the block capacity get
// a dedicated block of exactly that size.
func (a *Arena) Allocate(size int) ([]byte, Token, error) {
	tok, err := a.allocate(size)
	if err != nil {
		return nil, Token{}, err
	}
	return a.bytes(tok), tok, nil
}

func (a *Arena) allocate(size int) (Token, error) {
	if size <= 0 {
		return Token{}, errors.Wrapf(customerrors.ErrInvalidSize, "%d", size)
	}

	var idx int
	if size > a.blockCapacity {
		idx = a.appendBlock(size, true)
	} else {
		idx = a.reserve(size)
	}

	b := a.blocks[idx]
	offset := b.used
	b.used += size

	a.seq++
	a.last = Token{block: idx, offset: offset, size: size, seq: a.seq}
	return a.last, nil
}

// reserve returns the index of the first regular block, starting at the
// current one, with at least size free bytes.
func (a *Arena) reserve(size int) int {
	for i := a.cur; i < len(a.blocks); i++ {
		if b := a.blocks[i]; !b.dedicated && b.free() >= size {
			a.cur = i
			return i
		}
	}
	a.cur = a.appendBlock(a.blockCapacity, false)
	return a.cur
}

func (a *Arena) appendBlock(capacity int, dedicated bool) int {
	var base int64
	if n := len(a.blocks); n > 0 {
		last := a.blocks[n-1]
		base = last.base + int64(len(last.buf))
	}
	a.blocks = append(a.blocks, &block{
		buf:       make([]byte, capacity),
		base:      base,
		dedicated: dedicated,
	})
	return len(a.blocks) - 1
}

func (a *Arena) bytes(tok Token) []byte {
	end := tok.offset + tok.size
	return a.blocks[tok.block].buf[tok.offset:end:end]
}

// Return gives back the most recent allocation. Any other token, a token
// already returned, or a dedicated-block allocation yields ErrInvalidReturn.
func (a *Arena) Return(tok Token) error {
	if tok.seq == 0 || tok != a.last {
		return errors.Wrap(customerrors.ErrInvalidReturn, "token is not the latest allocation")
	}

	b := a.blocks[tok.block]
	if b.dedicated {
		return errors.Wrap(customerrors.ErrInvalidReturn, "dedicated blocks cannot be rewound")
	}

	zero(a.bytes(tok))
	b.used -= tok.size
	a.last = Token{}
	return nil
}

// Free is a no-op; memory is released only by Reset or with the arena.
func (a *Arena) Free([]byte) {}

// Reset rewinds every block. Blocks are retained and reused; all previously
// returned memory and tokens become invalid.
func (a *Arena) Reset() {
	for _, b := range a.blocks {
		zero(b.buf[:b.used])
		b.used = 0
	}
	a.cur = 0
	a.last = Token{}
}

func (a *Arena) position(tok Token) int64 {
	return a.blocks[tok.block].base + int64(tok.offset)
}

// BlockCapacity returns the configured capacity of regular blocks.
func (a *Arena) BlockCapacity() int { return a.blockCapacity }

// Blocks returns the number of blocks, dedicated ones included.
func (a *Arena) Blocks() int { return len(a.blocks) }

// Allocated returns the total capacity of all blocks in bytes. It is also
// the extent of the linear position space.
func (a *Arena) Allocated() int64 {
	if n := len(a.blocks); n > 0 {
		last := a.blocks[n-1]
		return last.base + int64(len(last.buf))
	}
	return 0
}

// Used returns the number of bytes handed out and not returned.
func (a *Arena) Used() int64 {
	var used int64
	for _, b := range a.blocks {
		used += int64(b.used)
	}
	return used
}

func (a *Arena) String() string {
	return fmt.Sprintf(
		"Arena{blocks=%d, used=%s, allocated=%s}",
		a.Blocks(), humanize.IBytes(uint64(a.Used())), humanize.IBytes(uint64(a.Allocated())),
	)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
