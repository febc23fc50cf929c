package bptree

import (
	"io"

	"go-arenakv/pkg/arena"
	"go-arenakv/pkg/customerrors"
	"go-arenakv/pkg/storage"
	"go-arenakv/util/logger"

	"github.com/pkg/errors"
)

const (
	arenaDir     = "arena"
	treeResource = "tree"
)

var log = logger.Component("bptree")

// Save persists the tree into dir: its arena goes to the "arena"
// sub-directory and the root, size and settings to the "tree" resource.
// Nodes are stored as they are in memory; Load makes them usable again
// without any rewriting.
func (tree *BPlusTree[K]) Save(dir storage.Directory) error {
	sub, err := dir.CreateDirectory(arenaDir)
	if err != nil {
		return errors.Wrap(err, "failed to create arena directory")
	}
	if err := tree.arena.Save(sub); err != nil {
		return errors.Wrap(err, "failed to save arena")
	}

	root, ok := tree.arena.AddressOf(tree.root)
	if !ok {
		panic(errors.Wrapf(customerrors.ErrCorrupted, "root position %d has no address", tree.root))
	}
	header, _ := snapshotHeader{
		capacity: uint8(tree.capacity),
		width:    uint8(tree.width),
		size:     tree.size,
		height:   uint32(tree.height),
		root:     root,
	}.MarshalBinary()

	f, err := dir.CreateFile(treeResource)
	if err != nil {
		return errors.Wrap(err, "failed to create tree resource")
	}
	w, err := f.OpenWrite()
	if err != nil {
		return errors.Wrap(err, "failed to open tree resource")
	}
	if _, err := w.Write(header); err != nil {
		w.Close()
		return errors.Wrap(err, "failed to write tree resource")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "failed to write tree resource")
	}

	log.Debugf("saved %s (root %s)", tree, root)
	return nil
}

// Load restores a tree written by Save and verifies its structure. opts may
// supply Scratch; node capacity and arena layout come from the snapshot.
func Load[K Key](dir storage.Directory, opts *Options) (*BPlusTree[K], error) {
	f, err := dir.File(treeResource)
	if errors.Is(err, customerrors.ErrNotFound) {
		return nil, errors.Wrap(customerrors.ErrCorrupted, "tree resource is missing")
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to open tree resource")
	}
	r, err := f.OpenRead()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open tree resource")
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read tree resource")
	}

	h := snapshotHeader{}
	if err := h.UnmarshalBinary(data); err != nil {
		return nil, err
	}

	o := defaultOptions
	if opts != nil {
		o = *opts
	}
	o.NodeCapacity = int(h.capacity)
	if o.NodeCapacity < MinNodeCapacity {
		return nil, errors.Wrapf(customerrors.ErrCorrupted, "node capacity %d", h.capacity)
	}
	o.BlockCapacity = 1

	tree, err := newTree[K](&o)
	if err != nil {
		return nil, err
	}
	if int(h.width) != tree.width {
		return nil, errors.Wrapf(
			customerrors.ErrCorrupted,
			"snapshot holds %d-byte keys, not %d", h.width, tree.width,
		)
	}

	sub, err := dir.Directory(arenaDir)
	if errors.Is(err, customerrors.ErrNotFound) {
		return nil, errors.Wrap(customerrors.ErrCorrupted, "arena directory is missing")
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to open arena directory")
	}
	a, err := arena.LoadAddressable(sub)
	if err != nil {
		return nil, err
	}
	if a.BlockCapacity() < tree.nodeSize {
		return nil, errors.Wrapf(customerrors.ErrCorrupted, "arena blocks smaller than a node")
	}
	tree.arena = a

	mem, ok := a.TryGet(h.root)
	if !ok || len(mem.Data) < tree.nodeSize {
		return nil, errors.Wrapf(customerrors.ErrCorrupted, "root address %s is not a node", h.root)
	}
	tree.root = mem.Pos
	tree.height = int(h.height)
	tree.size = h.size

	if err := tree.Check(); err != nil {
		return nil, err
	}

	log.Debugf("loaded %s", tree)
	return tree, nil
}
