// Package compress wraps the stream codecs used to store arena blocks and
// serialized trees.
package compress

import (
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// Kind identifies a stream codec. The numeric value is persisted as the
// first byte of every compressed resource.
type Kind uint8

const (
	None Kind = iota
	Snappy
	LZ4
	Zstd
)

var names = map[Kind]string{
	None:   "none",
	Snappy: "snappy",
	LZ4:    "lz4",
	Zstd:   "zstd",
}

var ErrUnknownKind = errors.New("unknown compression kind")

func (k Kind) String() string {
	if n, ok := names[k]; ok {
		return n
	}
	return "unknown"
}

func (k Kind) valid() bool {
	_, ok := names[k]
	return ok
}

// Parse maps a codec name to its Kind. Empty string means None.
func Parse(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return None, nil
	}
	for k, n := range names {
		if n == name {
			return k, nil
		}
	}
	return None, errors.Wrapf(ErrUnknownKind, "%q", name)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps w with the encoder for kind. Closing the returned writer
// flushes the encoder but does not close w.
func NewWriter(w io.Writer, kind Kind) (io.WriteCloser, error) {
	switch kind {
	case None:
		return nopWriteCloser{w}, nil
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case LZ4:
		return lz4.NewWriter(w), nil
	case Zstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, errors.Wrap(err, "failed to create zstd encoder")
		}
		return enc, nil
	}
	return nil, errors.Wrapf(ErrUnknownKind, "%d", kind)
}

// NewReader wraps r with the decoder for kind.
func NewReader(r io.Reader, kind Kind) (io.ReadCloser, error) {
	switch kind {
	case None:
		return io.NopCloser(r), nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create zstd decoder")
		}
		return dec.IOReadCloser(), nil
	}
	return nil, errors.Wrapf(ErrUnknownKind, "%d", kind)
}

// NewFramedWriter writes a one byte kind marker and returns the encoder for
// the rest of the stream.
func NewFramedWriter(w io.Writer, kind Kind) (io.WriteCloser, error) {
	if !kind.valid() {
		return nil, errors.Wrapf(ErrUnknownKind, "%d", kind)
	}
	if _, err := w.Write([]byte{byte(kind)}); err != nil {
		return nil, errors.Wrap(err, "failed to write compression marker")
	}
	return NewWriter(w, kind)
}

// NewFramedReader reads the marker written by NewFramedWriter and returns
// the matching decoder.
func NewFramedReader(r io.Reader) (io.ReadCloser, Kind, error) {
	var marker [1]byte
	if _, err := io.ReadFull(r, marker[:]); err != nil {
		return nil, None, errors.Wrap(err, "failed to read compression marker")
	}
	kind := Kind(marker[0])
	rc, err := NewReader(r, kind)
	return rc, kind, err
}
