package arena

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"go-arenakv/pkg/customerrors"
	"go-arenakv/pkg/storage"
	"go-arenakv/util/helpers"
	"go-arenakv/util/logger"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// bin is the byte order used for all persisted arena data.
var bin = binary.LittleEndian

const (
	metaResource = "meta"
	blockPrefix  = "block_"
	blockSuffix  = ".bin"

	// maximum number of blocks written or read concurrently
	ioParallelism = 4
)

var log = logger.Component("arena")

// Address packs a block index and an offset inside the block:
// (blockIndex << 32) | (offset & 0x7FFFFFFF).
type Address int64

func makeAddress(block, offset int) Address {
	return Address(int64(block)<<32 | int64(offset)&0x7FFFFFFF)
}

func (a Address) Block() int  { return int(int64(a) >> 32) }
func (a Address) Offset() int { return int(int64(a) & 0x7FFFFFFF) }

func (a Address) String() string {
	return fmt.Sprintf("%d:%d", a.Block(), a.Offset())
}

// Memory is a view of one allocation in an Addressable arena.
type Memory struct {
	Address Address
	Pos     int64 // linear position
	Data    []byte
}

// Addressable is an Arena whose allocations are identified by Address and
// whose blocks can be saved to and loaded from a storage.Directory.
type Addressable struct {
	Arena
}

// NewAddressable creates an empty addressable arena.
func NewAddressable(blockCapacity int) (*Addressable, error) {
	if blockCapacity > math.MaxInt32 {
		return nil, errors.Wrapf(customerrors.ErrInvalidCapacity, "block capacity %d", blockCapacity)
	}
	a, err := New(blockCapacity)
	if err != nil {
		return nil, err
	}
	return &Addressable{Arena: *a}, nil
}

// Allocate reserves size bytes and returns their view along with the token
// needed to Return them.
func (a *Addressable) Allocate(size int) (Memory, Token, error) {
	if size > math.MaxInt32 {
		return Memory{}, Token{}, errors.Wrapf(customerrors.ErrInvalidSize, "%d", size)
	}
	tok, err := a.allocate(size)
	if err != nil {
		return Memory{}, Token{}, err
	}
	return Memory{
		Address: makeAddress(tok.block, tok.offset),
		Pos:     a.position(tok),
		Data:    a.bytes(tok),
	}, tok, nil
}

// TryGet resolves an address to the memory from its offset up to the end of
// the used part of its block. It reports false for addresses that do not
// point into used memory.
func (a *Addressable) TryGet(addr Address) (Memory, bool) {
	if addr < 0 {
		return Memory{}, false
	}
	idx, offset := addr.Block(), addr.Offset()
	if idx >= len(a.blocks) {
		return Memory{}, false
	}
	b := a.blocks[idx]
	if offset >= b.used {
		return Memory{}, false
	}
	return Memory{
		Address: addr,
		Pos:     b.base + int64(offset),
		Data:    b.buf[offset:b.used:b.used],
	}, true
}

func (a *Addressable) find(pos int64) int {
	return sort.Search(len(a.blocks), func(i int) bool {
		return a.blocks[i].base > pos
	}) - 1
}

// Slice returns n bytes at linear position pos. It reports false when the
// range is not inside the used part of a single block.
func (a *Addressable) Slice(pos int64, n int) ([]byte, bool) {
	idx := a.find(pos)
	if idx < 0 || n < 0 {
		return nil, false
	}
	b := a.blocks[idx]
	offset := int(pos - b.base)
	if offset+n > b.used {
		return nil, false
	}
	return b.buf[offset : offset+n : offset+n], true
}

// AddressOf converts a linear position to an address.
func (a *Addressable) AddressOf(pos int64) (Address, bool) {
	idx := a.find(pos)
	if idx < 0 {
		return 0, false
	}
	b := a.blocks[idx]
	offset := int(pos - b.base)
	if offset >= b.used {
		return 0, false
	}
	return makeAddress(idx, offset), true
}

// Position converts an address to a linear position.
func (a *Addressable) Position(addr Address) (int64, bool) {
	m, ok := a.TryGet(addr)
	return m.Pos, ok
}

func blockName(i int) string {
	return fmt.Sprintf("%s%d%s", blockPrefix, i, blockSuffix)
}

// Save writes the meta resource and one resource per block into dir.
// Block resources of a previous save are removed first.
//
// meta:        [blockCapacity:i32][crc32:u32]
// block_<i>:   [used:i32][raw:used][crc32(raw):u32]
func (a *Addressable) Save(dir storage.Directory) error {
	files, err := dir.Files()
	if err != nil {
		return errors.Wrap(err, "failed to list arena directory")
	}
	for _, f := range files {
		if strings.HasPrefix(f.Name(), blockPrefix) {
			if err := f.Delete(); err != nil {
				return errors.Wrapf(err, "failed to delete stale block '%s'", f.Name())
			}
		}
	}

	meta := make([]byte, 8)
	bin.PutUint32(meta[0:4], uint32(a.blockCapacity))
	bin.PutUint32(meta[4:8], crc32.ChecksumIEEE(meta[0:4]))
	if err := writeResource(dir, metaResource, meta); err != nil {
		return errors.Wrap(err, "failed to write arena meta")
	}

	g := errgroup.Group{}
	g.SetLimit(ioParallelism)
	for i := range a.blocks {
		i, b := i, a.blocks[i]
		g.Go(func() error {
			raw := b.buf[:b.used]
			header := make([]byte, 4)
			bin.PutUint32(header, uint32(b.used))
			trailer := make([]byte, 4)
			bin.PutUint32(trailer, crc32.ChecksumIEEE(raw))

			log.Debugf("saving block %d (%d bytes used)", i, b.used)
			return errors.Wrapf(
				writeResource(dir, blockName(i), header, raw, trailer),
				"failed to write block %d", i,
			)
		})
	}
	return g.Wait()
}

func writeResource(dir storage.Directory, name string, parts ...[]byte) error {
	f, err := dir.CreateFile(name)
	if err != nil {
		return err
	}
	w, err := f.OpenWrite()
	if err != nil {
		return err
	}
	for _, p := range parts {
		if _, err := w.Write(p); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

func readResource(f storage.File) ([]byte, error) {
	r, err := f.OpenRead()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// LoadAddressable restores an arena written by Save. It fails without a
// partial result on a missing meta resource, a checksum mismatch, a
// malformed block or a gap in the block indices.
func LoadAddressable(dir storage.Directory) (*Addressable, error) {
	metaFile, err := dir.File(metaResource)
	if errors.Is(err, customerrors.ErrNotFound) {
		return nil, errors.Wrap(customerrors.ErrCorrupted, "arena meta is missing")
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to open arena meta")
	}
	meta, err := readResource(metaFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read arena meta")
	}
	if len(meta) != 8 || crc32.ChecksumIEEE(meta[0:4]) != bin.Uint32(meta[4:8]) {
		return nil, errors.Wrap(customerrors.ErrCorrupted, "arena meta checksum mismatch")
	}
	blockCapacity := int(int32(bin.Uint32(meta[0:4])))

	a, err := NewAddressable(blockCapacity)
	if err != nil {
		return nil, errors.Wrap(customerrors.ErrCorrupted, err.Error())
	}

	files, err := dir.Files()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list arena directory")
	}

	byIndex := map[int]storage.File{}
	for _, f := range files {
		name := f.Name()
		if !strings.HasPrefix(name, blockPrefix) {
			continue
		}
		idx, err := strconv.Atoi(helpers.TrimSuffix(strings.TrimPrefix(name, blockPrefix), blockSuffix))
		if err != nil || idx < 0 {
			return nil, errors.Wrapf(customerrors.ErrCorrupted, "bad block resource name '%s'", name)
		}
		byIndex[idx] = f
	}
	for i := 0; i < len(byIndex); i++ {
		if _, ok := byIndex[i]; !ok {
			return nil, errors.Wrapf(customerrors.ErrCorrupted, "block %d is missing", i)
		}
	}

	blocks := make([]*block, len(byIndex))
	g := errgroup.Group{}
	g.SetLimit(ioParallelism)
	for i := range blocks {
		i := i
		g.Go(func() error {
			data, err := readResource(byIndex[i])
			if err != nil {
				return errors.Wrapf(err, "failed to read block %d", i)
			}
			b, err := decodeBlock(data, blockCapacity)
			if err != nil {
				return errors.Wrapf(err, "block %d", i)
			}
			log.Debugf("loaded block %d (%d bytes used)", i, b.used)
			blocks[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var base int64
	for i, b := range blocks {
		b.base = base
		base += int64(len(b.buf))
		if !b.dedicated {
			a.cur = i
		}
	}
	a.blocks = blocks
	return a, nil
}

func decodeBlock(data []byte, blockCapacity int) (*block, error) {
	if len(data) < 8 {
		return nil, errors.Wrap(customerrors.ErrCorrupted, "truncated block")
	}
	used := int(int32(bin.Uint32(data[0:4])))
	if used < 0 || len(data) != 8+used {
		return nil, errors.Wrap(customerrors.ErrCorrupted, "block size mismatch")
	}
	raw := data[4 : 4+used]
	if crc32.ChecksumIEEE(raw) != bin.Uint32(data[4+used:]) {
		return nil, errors.Wrap(customerrors.ErrCorrupted, "block checksum mismatch")
	}

	// a block holding more than the regular capacity was a dedicated one;
	// keeping its size keeps every later block's base stable
	b := &block{
		buf:       make([]byte, helpers.Max(blockCapacity, used)),
		used:      used,
		dedicated: used > blockCapacity,
	}
	copy(b.buf, raw)
	return b, nil
}
