package cmd

import (
	"bufio"
	"io"
	"os"

	"go-arenakv/config"
	"go-arenakv/pkg/arena"
	"go-arenakv/pkg/bptree"
	"go-arenakv/pkg/compress"
	"go-arenakv/pkg/customerrors"
	"go-arenakv/pkg/storage"
	"go-arenakv/util/helpers"

	"github.com/pkg/errors"
)

// index hides the key width of a tree from the commands. Keys and values
// cross it as uint64 and are range checked for 32-bit trees.
type index interface {
	Size() uint32
	Height() int
	Check() error
	Stats() bptree.Stats
	Serialize(w io.Writer) error
	Save(dir storage.Directory) error
	WriteDot(w io.Writer) error
	Print(w io.Writer) error
	String() string

	insert(key, value uint64) (bool, error)
	search(key uint64) (uint64, bool)
	scan(from uint64, fn func(key, value uint64) bool)
}

type tree[K bptree.Key] struct {
	*bptree.BPlusTree[K]
}

func narrow[K bptree.Key](v uint64) (K, error) {
	k := K(v)
	if uint64(k) != v {
		return 0, errors.Errorf("%d does not fit in %d-bit keys", v, 8*helpers.Sizeof(k))
	}
	return k, nil
}

func (t tree[K]) insert(key, value uint64) (bool, error) {
	k, err := narrow[K](key)
	if err != nil {
		return false, err
	}
	v, err := narrow[K](value)
	if err != nil {
		return false, err
	}
	return t.Insert(k, v)
}

func (t tree[K]) search(key uint64) (uint64, bool) {
	k, err := narrow[K](key)
	if err != nil {
		return 0, false
	}
	v, ok := t.Search(k)
	return uint64(v), ok
}

func (t tree[K]) scan(from uint64, fn func(key, value uint64) bool) {
	k, err := narrow[K](from)
	if err != nil {
		return
	}
	t.Scan(k, func(key, value K) bool {
		return fn(uint64(key), uint64(value))
	})
}

func wrap[K bptree.Key](t *bptree.BPlusTree[K], err error) (index, error) {
	if err != nil {
		return nil, err
	}
	return tree[K]{t}, nil
}

// newIndex creates an empty tree with a scratch region sized for its nodes.
func newIndex(cfg *config.TreeConfig) (index, error) {
	width := 4
	if cfg.Wide {
		width = 8
	}
	scratch, err := arena.NewRecycleRegion(bptree.ScratchCapacity(cfg.NodeCapacity, width))
	if err != nil {
		return nil, err
	}

	opts := cfg.Options()
	opts.Scratch = scratch
	if cfg.Wide {
		return wrap[uint64](bptree.New[uint64](opts))
	}
	return wrap[uint32](bptree.New[uint32](opts))
}

// writeTree serializes t into path behind a compression marker.
func writeTree(path string, t index, kind compress.Kind) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create tree file")
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	w, err := compress.NewFramedWriter(bw, kind)
	if err != nil {
		return err
	}
	if err := t.Serialize(w); err != nil {
		return errors.Wrap(err, "failed to serialize tree")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "failed to flush encoder")
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "failed to write tree file")
	}
	return f.Sync()
}

// readTree loads a file written by writeTree. The key width is taken from
// the stream header.
func readTree(path string) (index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open tree file")
	}
	defer f.Close()

	dec, _, err := compress.NewFramedReader(bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	br := bufio.NewReader(dec)
	header, err := br.Peek(4)
	if err != nil {
		return nil, errors.Wrap(customerrors.ErrCorrupted, "truncated tree header")
	}
	if header[3] == 8 {
		return wrap[uint64](bptree.Deserialize[uint64](br, nil))
	}
	return wrap[uint32](bptree.Deserialize[uint32](br, nil))
}

// loadSnapshot restores a tree saved with Save, trying 32-bit keys first.
func loadSnapshot(dir storage.Directory) (index, error) {
	t, err := wrap[uint32](bptree.Load[uint32](dir, nil))
	if err == nil {
		return t, nil
	}
	if wide, werr := wrap[uint64](bptree.Load[uint64](dir, nil)); werr == nil {
		return wide, nil
	}
	return nil, err
}
