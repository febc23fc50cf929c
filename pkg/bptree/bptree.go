// Package bptree implements an in-memory B+ tree over fixed-width unsigned
// integer keys and values. Nodes live in an addressable arena and refer to
// each other by relative offsets, so the whole tree can be persisted and
// restored without rewriting a single node.
package bptree

import (
	"encoding/binary"
	"fmt"
	"math"

	"go-arenakv/pkg/arena"
	"go-arenakv/pkg/customerrors"
	"go-arenakv/util/helpers"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// bin is the byte order used for all marshals/unmarshals.
var bin = binary.LittleEndian

// Key is the set of key types. Values have the same type as keys.
type Key interface {
	~uint32 | ~uint64
}

func getKey[K Key](b []byte, width int) K {
	if width == 4 {
		return K(bin.Uint32(b))
	}
	return K(bin.Uint64(b))
}

func putKey[K Key](b []byte, k K, width int) {
	if width == 4 {
		bin.PutUint32(b, uint32(k))
	} else {
		bin.PutUint64(b, uint64(k))
	}
}

// BPlusTree is an ordered map from K to K. Keys are unique; inserting an
// existing key is rejected and leaves the tree untouched. There is no
// deletion. A tree is not safe for concurrent use.
type BPlusTree[K Key] struct {
	arena   *arena.Addressable
	scratch *arena.RecycleRegion

	capacity int
	width    int
	nodeSize int

	// tree state
	root   int64
	height int
	size   uint32
}

// New creates an empty tree whose root is an empty leaf. If nil options are
// provided, defaultOptions will be used.
func New[K Key](opts *Options) (*BPlusTree[K], error) {
	tree, err := newTree[K](opts)
	if err != nil {
		return nil, err
	}

	root, _, err := tree.newNode(true)
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate root")
	}
	tree.root = root.pos
	tree.height = 1
	return tree, nil
}

// newTree sets up the arena and scratch space without creating a root.
func newTree[K Key](opts *Options) (*BPlusTree[K], error) {
	if opts == nil {
		o := defaultOptions
		opts = &o
	}
	if opts.NodeCapacity < MinNodeCapacity || opts.NodeCapacity > MaxNodeCapacity {
		return nil, errors.Wrapf(
			customerrors.ErrInvalidCapacity,
			"node capacity %d is outside [%d, %d]", opts.NodeCapacity, MinNodeCapacity, MaxNodeCapacity,
		)
	}

	var zero K
	width := helpers.Sizeof(zero)
	size := nodeSize(opts.NodeCapacity, width)

	blockCap := opts.BlockCapacity
	if blockCap <= 0 {
		blockCap = blockCapacity(opts.NodeCapacity, size, helpers.Max(opts.EstimatedCount, 0))
	}
	blockCap = helpers.Max(blockCap, size)

	a, err := arena.NewAddressable(blockCap)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create arena")
	}

	scratch := opts.Scratch
	if scratch == nil {
		scratch, err = arena.NewRecycleRegion(ScratchCapacity(opts.NodeCapacity, width))
		if err != nil {
			return nil, errors.Wrap(err, "failed to create scratch space")
		}
	} else if need := scratchSize(opts.NodeCapacity, width) + 1; scratch.Capacity() < need {
		return nil, errors.Wrapf(
			customerrors.ErrInvalidCapacity,
			"scratch regions of %d bytes cannot hold a %d byte node buffer", scratch.Capacity(), need,
		)
	}

	return &BPlusTree[K]{
		arena:    a,
		scratch:  scratch,
		capacity: opts.NodeCapacity,
		width:    width,
		nodeSize: size,
	}, nil
}

// tryNode returns the node view at pos, or false if pos does not address a
// whole node.
func (tree *BPlusTree[K]) tryNode(pos int64) (node[K], bool) {
	buf, ok := tree.arena.Slice(pos, tree.nodeSize)
	if !ok {
		return node[K]{}, false
	}
	return node[K]{pos: pos, buf: buf, width: tree.width}, true
}

func (tree *BPlusTree[K]) node(pos int64) node[K] {
	n, ok := tree.tryNode(pos)
	if !ok {
		panic(errors.Wrapf(customerrors.ErrCorrupted, "no node at position %d", pos))
	}
	return n
}

func (tree *BPlusTree[K]) rootNode() node[K] { return tree.node(tree.root) }

// newNode allocates a zeroed node. The token allows handing the node back
// while it is still the latest allocation.
func (tree *BPlusTree[K]) newNode(leaf bool) (node[K], arena.Token, error) {
	if err := tree.ensureSpan(1); err != nil {
		return node[K]{}, arena.Token{}, err
	}
	mem, tok, err := tree.arena.Allocate(tree.nodeSize)
	if err != nil {
		return node[K]{}, arena.Token{}, errors.Wrap(err, "failed to allocate node")
	}
	n := node[K]{pos: mem.Pos, buf: mem.Data, width: tree.width}
	n.setLeaf(leaf)
	return n, tok, nil
}

// ensureSpan fails when allocating that many more nodes could push a node
// position past the reach of a 32-bit relative offset.
func (tree *BPlusTree[K]) ensureSpan(nodes int) error {
	grow := int64(nodes) * int64(helpers.Max(tree.arena.BlockCapacity(), tree.nodeSize))
	if tree.arena.Allocated()+grow > math.MaxInt32 {
		return errors.Wrapf(
			customerrors.ErrArenaExhausted,
			"%s allocated", humanize.IBytes(uint64(tree.arena.Allocated())),
		)
	}
	return nil
}

// leftLeaf descends along leftmost children to the first leaf.
func (tree *BPlusTree[K]) leftLeaf() node[K] {
	n := tree.rootNode()
	for !n.isLeaf() {
		n = tree.node(n.leftChild())
	}
	return n
}

// findLeaf descends to the leaf whose range covers key.
func (tree *BPlusTree[K]) findLeaf(key K) node[K] {
	n := tree.rootNode()
	for !n.isLeaf() {
		n = tree.node(n.seek(key))
	}
	return n
}

// Search returns the value stored under key.
func (tree *BPlusTree[K]) Search(key K) (K, bool) {
	leaf := tree.findLeaf(key)
	idx, found := leaf.search(key)
	if !found {
		var zero K
		return zero, false
	}
	return leaf.value(idx), true
}

// Iterate visits every entry in ascending key order.
func (tree *BPlusTree[K]) Iterate(visit func(key, value K)) {
	tree.scan(tree.leftLeaf(), 0, func(k, v K) bool {
		visit(k, v)
		return true
	})
}

// Scan visits entries in ascending order starting at the first key not less
// than from. Scan stops when scanFn returns false.
func (tree *BPlusTree[K]) Scan(from K, scanFn func(key, value K) bool) {
	leaf := tree.findLeaf(from)
	idx, _ := leaf.search(from)
	tree.scan(leaf, idx, scanFn)
}

// scan follows the sibling chain starting at entry idx of leaf.
func (tree *BPlusTree[K]) scan(leaf node[K], idx int, scanFn func(key, value K) bool) {
	for {
		for i := idx; i < leaf.size(); i++ {
			if !scanFn(leaf.key(i), leaf.value(i)) {
				return
			}
		}

		next, ok := leaf.sibling()
		if !ok {
			return
		}
		leaf = tree.node(next)
		idx = 0
	}
}

// Size returns the number of entries in the entire tree.
func (tree *BPlusTree[K]) Size() uint32 { return tree.size }

// Height returns the number of levels; a lone root leaf has height 1.
func (tree *BPlusTree[K]) Height() int { return tree.height }

// NodeCapacity returns the maximum number of entries per node.
func (tree *BPlusTree[K]) NodeCapacity() int { return tree.capacity }

// KeyWidth returns the size of keys and values in bytes.
func (tree *BPlusTree[K]) KeyWidth() int { return tree.width }

func (tree *BPlusTree[K]) String() string {
	return fmt.Sprintf(
		"BPlusTree{size=%d, capacity=%d, height=%d, arena=%s}",
		tree.size, tree.capacity, tree.height, humanize.IBytes(uint64(tree.arena.Used())),
	)
}
