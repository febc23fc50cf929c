package bptree

import (
	"bufio"
	"io"

	"go-arenakv/pkg/customerrors"

	"github.com/pkg/errors"
)

// maxDepth bounds the nesting accepted by Deserialize.
const maxDepth = 64

// Serialize writes the tree to w:
//
//	[magic:u8][version:u8][nodeCapacity:u8][width:u8][count:u32]
//
// followed by the nodes in pre-order, each as [flag:u8][size:u8] and then
// size [key][value] pairs for a leaf, or the leftmost child followed by
// size ([key], right child) groups for a container. Keys and values are
// little-endian and as wide as K.
func (tree *BPlusTree[K]) Serialize(w io.Writer) error {
	bw := bufio.NewWriter(w)

	header, _ := streamHeader{
		capacity: uint8(tree.capacity),
		width:    widthMarker(tree.width),
		count:    tree.size,
	}.MarshalBinary()
	if _, err := bw.Write(header); err != nil {
		return errors.Wrap(err, "failed to write header")
	}

	if err := tree.serializeNode(bw, tree.rootNode()); err != nil {
		return err
	}
	return errors.Wrap(bw.Flush(), "failed to flush tree stream")
}

func (tree *BPlusTree[K]) serializeNode(w io.Writer, n node[K]) error {
	size := n.size()

	if n.isLeaf() {
		// leaf entries are stored exactly as they are streamed
		b, err := tree.scratch.Allocate(scratchSize(size, tree.width))
		if err != nil {
			return errors.Wrap(err, "failed to allocate scratch buffer")
		}
		defer tree.scratch.Free(b)

		b.Data[0] = flagLeaf
		b.Data[1] = uint8(size)
		copy(b.Data[2:], n.entries(0, size))
		_, err = w.Write(b.Data)
		return errors.Wrap(err, "failed to write leaf")
	}

	b, err := tree.scratch.Allocate(2 + size*tree.width)
	if err != nil {
		return errors.Wrap(err, "failed to allocate scratch buffer")
	}
	defer tree.scratch.Free(b)

	b.Data[0] = flagContainer
	b.Data[1] = uint8(size)
	keys := b.Data[2:]
	for i := 0; i < size; i++ {
		putKey(keys[i*tree.width:], n.key(i), tree.width)
	}

	if _, err := w.Write(b.Data[:2]); err != nil {
		return errors.Wrap(err, "failed to write container")
	}
	if err := tree.serializeNode(w, tree.node(n.leftChild())); err != nil {
		return err
	}
	for i := 0; i < size; i++ {
		if _, err := w.Write(keys[i*tree.width : (i+1)*tree.width]); err != nil {
			return errors.Wrap(err, "failed to write separator")
		}
		if err := tree.serializeNode(w, tree.node(n.child(i))); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize reads a tree written by Serialize. Magic and version are
// checked before any node data is read. Any malformed, truncated or
// out-of-order input discards the partially built tree. Node capacity comes
// from the stream; opts only supplies the remaining settings and may be nil.
func Deserialize[K Key](r io.Reader, opts *Options) (*BPlusTree[K], error) {
	br := bufio.NewReader(r)

	h, err := readStreamHeader(br)
	if err != nil {
		return nil, err
	}

	o := defaultOptions
	if opts != nil {
		o = *opts
	}
	o.NodeCapacity = int(h.capacity)
	o.EstimatedCount = int(h.count)
	if o.NodeCapacity < MinNodeCapacity {
		return nil, errors.Wrapf(customerrors.ErrCorrupted, "node capacity %d", h.capacity)
	}

	tree, err := newTree[K](&o)
	if err != nil {
		return nil, err
	}
	if h.width != widthMarker(tree.width) {
		return nil, errors.Wrapf(
			customerrors.ErrCorrupted,
			"stream width marker %d does not match %d-byte keys", h.width, tree.width,
		)
	}

	d := &decoder[K]{tree: tree, r: br, leafDepth: -1}
	root, err := d.readNode(1, true, bound[K]{})
	if err != nil {
		return nil, err
	}
	if d.count != uint64(h.count) {
		return nil, errors.Wrapf(
			customerrors.ErrCorrupted,
			"header count %d does not match %d leaf entries", h.count, d.count,
		)
	}

	tree.root = root
	tree.height = d.leafDepth
	tree.size = h.count
	return tree, nil
}

// bound is an optional inclusive lower key limit.
type bound[K Key] struct {
	key K
	set bool
}

type decoder[K Key] struct {
	tree *BPlusTree[K]
	r    io.Reader

	count     uint64
	leafDepth int

	prevLeaf node[K]
	hasPrev  bool
	lastKey  K
}

func (d *decoder[K]) read(buf []byte) error {
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return errors.Wrap(customerrors.ErrCorrupted, "truncated stream")
	}
	return nil
}

// after reports whether key is strictly greater than every leaf key read so far.
func (d *decoder[K]) after(key K) bool {
	return !d.hasPrev || key > d.lastKey
}

func (d *decoder[K]) readNode(depth int, isRoot bool, lo bound[K]) (int64, error) {
	if depth > maxDepth {
		return 0, errors.Wrapf(customerrors.ErrCorrupted, "tree deeper than %d", maxDepth)
	}

	var hdr [2]byte
	if err := d.read(hdr[:]); err != nil {
		return 0, err
	}
	flag, size := hdr[0], int(hdr[1])
	if flag != flagLeaf && flag != flagContainer {
		return 0, errors.Wrapf(customerrors.ErrCorrupted, "bad node flag %d", flag)
	}
	if size > d.tree.capacity {
		return 0, errors.Wrapf(customerrors.ErrCorrupted, "node size %d exceeds capacity", size)
	}
	if size == 0 && (!isRoot || flag == flagContainer) {
		return 0, errors.Wrap(customerrors.ErrCorrupted, "empty node")
	}

	n, _, err := d.tree.newNode(flag == flagLeaf)
	if err != nil {
		return 0, err
	}

	if flag == flagLeaf {
		return n.pos, d.readLeaf(n, size, depth, lo)
	}

	child, err := d.readNode(depth+1, false, lo)
	if err != nil {
		return 0, err
	}
	n.setLeftChild(child)

	key := make([]byte, d.tree.width)
	for i := 0; i < size; i++ {
		if err := d.read(key); err != nil {
			return 0, err
		}
		k := getKey[K](key, d.tree.width)
		if !d.after(k) {
			return 0, errors.Wrapf(customerrors.ErrCorrupted, "separator %v out of order", k)
		}

		child, err := d.readNode(depth+1, false, bound[K]{key: k, set: true})
		if err != nil {
			return 0, err
		}
		n.putRef(i, k, child)
		n.setSize(i + 1)
	}
	return n.pos, nil
}

func (d *decoder[K]) readLeaf(n node[K], size, depth int, lo bound[K]) error {
	if d.leafDepth < 0 {
		d.leafDepth = depth
	} else if d.leafDepth != depth {
		return errors.Wrap(customerrors.ErrCorrupted, "leaves at different depths")
	}

	if err := d.read(n.entries(0, size)); err != nil {
		return err
	}
	n.setSize(size)

	for i := 0; i < size; i++ {
		k := n.key(i)
		if lo.set && k < lo.key {
			return errors.Wrapf(customerrors.ErrCorrupted, "key %v below separator %v", k, lo.key)
		}
		if !d.after(k) {
			return errors.Wrapf(customerrors.ErrCorrupted, "key %v out of order", k)
		}
		d.lastKey, d.hasPrev = k, true
	}

	if d.prevLeaf.buf != nil {
		d.prevLeaf.setSibling(n.pos)
	}
	d.prevLeaf = n
	d.count += uint64(size)
	return nil
}
