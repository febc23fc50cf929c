package bptree

import (
	"hash/crc32"
	"io"

	"go-arenakv/pkg/arena"
	"go-arenakv/pkg/customerrors"

	"github.com/pkg/errors"
)

const (
	magic   = uint8(250)
	version = uint8(0x1)

	streamHeaderSize   = 8
	snapshotHeaderSize = 24
)

// widthMarker is stored in the fourth header byte. 32-bit trees keep it 0 so
// their streams keep the plain reserved byte of the 32-bit format.
func widthMarker(width int) uint8 {
	if width == 4 {
		return 0
	}
	return uint8(width)
}

// streamHeader opens every serialized tree:
// [magic:u8][version:u8][nodeCapacity:u8][width:u8][count:u32]
type streamHeader struct {
	capacity uint8
	width    uint8
	count    uint32
}

func (h streamHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, streamHeaderSize)
	buf[0] = magic
	buf[1] = version
	buf[2] = h.capacity
	buf[3] = h.width
	bin.PutUint32(buf[4:8], h.count)
	return buf, nil
}

func (h *streamHeader) UnmarshalBinary(d []byte) error {
	if len(d) < streamHeaderSize {
		return errors.Wrap(customerrors.ErrCorrupted, "in-sufficient data for header")
	}
	if d[0] != magic {
		return errors.Wrapf(customerrors.ErrBadMagic, "got %d", d[0])
	}
	if d[1] != version {
		return errors.Wrapf(customerrors.ErrBadVersion, "got %d", d[1])
	}
	h.capacity = d[2]
	h.width = d[3]
	h.count = bin.Uint32(d[4:8])
	return nil
}

func readStreamHeader(r io.Reader) (streamHeader, error) {
	h := streamHeader{}
	buf := make([]byte, streamHeaderSize)

	// magic and version are checked before anything else is read
	if _, err := io.ReadFull(r, buf[:2]); err != nil {
		return h, errors.Wrap(customerrors.ErrCorrupted, "truncated header")
	}
	if buf[0] != magic {
		return h, errors.Wrapf(customerrors.ErrBadMagic, "got %d", buf[0])
	}
	if buf[1] != version {
		return h, errors.Wrapf(customerrors.ErrBadVersion, "got %d", buf[1])
	}
	if _, err := io.ReadFull(r, buf[2:]); err != nil {
		return h, errors.Wrap(customerrors.ErrCorrupted, "truncated header")
	}
	return h, h.UnmarshalBinary(buf)
}

// snapshotHeader is the "tree" resource written next to a saved arena:
// [magic:u8][version:u8][capacity:u8][width:u8][size:u32][height:u32]
// [root:i64][crc32:u32]
type snapshotHeader struct {
	capacity uint8
	width    uint8
	size     uint32
	height   uint32
	root     arena.Address
}

func (m snapshotHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, snapshotHeaderSize)
	buf[0] = magic
	buf[1] = version
	buf[2] = m.capacity
	buf[3] = m.width
	bin.PutUint32(buf[4:8], m.size)
	bin.PutUint32(buf[8:12], m.height)
	bin.PutUint64(buf[12:20], uint64(m.root))
	bin.PutUint32(buf[20:24], crc32.ChecksumIEEE(buf[:20]))
	return buf, nil
}

func (m *snapshotHeader) UnmarshalBinary(d []byte) error {
	if len(d) != snapshotHeaderSize {
		return errors.Wrap(customerrors.ErrCorrupted, "bad tree header size")
	} else if m == nil {
		return errors.New("cannot unmarshal into nil")
	}
	if crc32.ChecksumIEEE(d[:20]) != bin.Uint32(d[20:24]) {
		return errors.Wrap(customerrors.ErrCorrupted, "tree header checksum mismatch")
	}
	if d[0] != magic {
		return errors.Wrapf(customerrors.ErrBadMagic, "got %d", d[0])
	}
	if d[1] != version {
		return errors.Wrapf(customerrors.ErrBadVersion, "got %d", d[1])
	}

	m.capacity = d[2]
	m.width = d[3]
	m.size = bin.Uint32(d[4:8])
	m.height = bin.Uint32(d[8:12])
	m.root = arena.Address(bin.Uint64(d[12:20]))
	return nil
}
