package arena

import (
	"fmt"

	"go-arenakv/pkg/customerrors"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// MinRegionCapacity is the smallest region a RecycleRegion accepts.
const MinRegionCapacity = 1024

const (
	headerSize = 1

	headerInUse    = byte(1)
	headerReturned = byte(2)
)

// Buffer is a scratch allocation handed out by RecycleRegion.
type Buffer struct {
	region int
	offset int
	gen    uint64
	Data   []byte
}

type region struct {
	buf    []byte
	offset int
	live   int
	gen    uint64
}

// RecycleRegion bump-allocates short-lived buffers from fixed regions and
// rewinds a region once every buffer taken from it has been freed.
// Each allocation carries a one byte header marking it in use or returned,
// so freeing twice is harmless.
type RecycleRegion struct {
	capacity int
	regions  []*region
}

func NewRecycleRegion(capacity int) (*RecycleRegion, error) {
	if capacity < MinRegionCapacity {
		return nil, errors.Wrapf(
			customerrors.ErrInvalidCapacity,
			"region capacity %d is below %d", capacity, MinRegionCapacity,
		)
	}
	return &RecycleRegion{capacity: capacity}, nil
}

// Allocate returns a zeroed buffer of size bytes from the first region with
// enough room, opening a new region when none has.
func (rr *RecycleRegion) Allocate(size int) (Buffer, error) {
	if size <= 0 || size+headerSize > rr.capacity {
		return Buffer{}, errors.Wrapf(customerrors.ErrInvalidSize, "%d", size)
	}

	idx := -1
	for i, r := range rr.regions {
		if len(r.buf)-r.offset >= size+headerSize {
			idx = i
			break
		}
	}
	if idx < 0 {
		rr.regions = append(rr.regions, &region{buf: make([]byte, rr.capacity)})
		idx = len(rr.regions) - 1
	}

	r := rr.regions[idx]
	r.buf[r.offset] = headerInUse
	start := r.offset + headerSize
	end := start + size
	r.offset = end
	r.live++

	data := r.buf[start:end:end]
	zero(data)
	return Buffer{region: idx, offset: start, gen: r.gen, Data: data}, nil
}

// Free marks b as returned. Buffers not allocated by rr, already freed, or
// from a region that has since been rewound are ignored.
func (rr *RecycleRegion) Free(b Buffer) {
	if b.region < 0 || b.region >= len(rr.regions) || len(b.Data) == 0 {
		return
	}
	r := rr.regions[b.region]
	if r.gen != b.gen || b.offset < headerSize || b.offset+len(b.Data) > r.offset {
		return
	}
	if &r.buf[b.offset] != &b.Data[0] {
		return
	}

	if r.buf[b.offset-headerSize] != headerInUse {
		return
	}
	r.buf[b.offset-headerSize] = headerReturned
	r.live--
	if r.live == 0 {
		r.offset = 0
		r.gen++
	}
}

// Capacity returns the size of each region. An allocation needs one more
// byte than it returns.
func (rr *RecycleRegion) Capacity() int { return rr.capacity }

// Regions returns the number of regions created so far.
func (rr *RecycleRegion) Regions() int { return len(rr.regions) }

// Used returns the bytes currently reserved across regions, headers included.
func (rr *RecycleRegion) Used() int {
	used := 0
	for _, r := range rr.regions {
		used += r.offset
	}
	return used
}

func (rr *RecycleRegion) String() string {
	return fmt.Sprintf(
		"RecycleRegion{regions=%d, used=%s}",
		rr.Regions(), humanize.IBytes(uint64(rr.Used())),
	)
}
