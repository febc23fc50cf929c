package bptree

import (
	"go-arenakv/pkg/customerrors"
	"go-arenakv/util/stl"

	"github.com/pkg/errors"
)

// keyRange limits the keys of a subtree to [lo, hi).
type keyRange[K Key] struct {
	lo, hi bound[K]
}

func (r keyRange[K]) contains(k K) bool {
	return (!r.lo.set || k >= r.lo.key) && (!r.hi.set || k < r.hi.key)
}

type checkFrame[K Key] struct {
	pos   int64
	depth int
	keys  keyRange[K]
}

func corrupted(format string, args ...interface{}) error {
	return errors.Wrapf(customerrors.ErrCorrupted, format, args...)
}

// Check verifies the structural invariants of the tree: node flags and
// sizes, key order inside nodes, separator ranges, uniform leaf depth, and
// a sibling chain that visits every key exactly once in ascending order.
func (tree *BPlusTree[K]) Check() error {
	maxNodes := tree.arena.Used()/int64(tree.nodeSize) + 1

	var (
		leaves  int64
		entries uint64
		visited int64
	)

	s := stl.NewStack[checkFrame[K]]()
	s.Push(checkFrame[K]{pos: tree.root, depth: 1})
	for s.Len() > 0 {
		f, _ := s.Pop()

		visited++
		if visited > maxNodes {
			return corrupted("more nodes reachable than allocated")
		}
		if f.depth > tree.height {
			return corrupted("node at %d is deeper than height %d", f.pos, tree.height)
		}

		n, ok := tree.tryNode(f.pos)
		if !ok {
			return corrupted("no node at position %d", f.pos)
		}
		if flag := n.buf[0]; flag != flagLeaf && flag != flagContainer {
			return corrupted("node at %d has flag %d", f.pos, flag)
		}
		size := n.size()
		if size > tree.capacity {
			return corrupted("node at %d has size %d", f.pos, size)
		}
		if size == 0 && !(f.pos == tree.root && n.isLeaf()) {
			return corrupted("node at %d is empty", f.pos)
		}

		for i := 0; i < size; i++ {
			k := n.key(i)
			if !f.keys.contains(k) {
				return corrupted("key %v of node at %d is out of range", k, f.pos)
			}
			if i > 0 && n.key(i-1) >= k {
				return corrupted("keys of node at %d are not ascending", f.pos)
			}
		}

		if n.isLeaf() {
			if f.depth != tree.height {
				return corrupted("leaf at %d has depth %d, height is %d", f.pos, f.depth, tree.height)
			}
			leaves++
			entries += uint64(size)
			continue
		}

		// pushed right to left so subtrees are visited in key order
		for i := size - 1; i >= 0; i-- {
			r := keyRange[K]{lo: bound[K]{key: n.key(i), set: true}, hi: f.keys.hi}
			if i+1 < size {
				r.hi = bound[K]{key: n.key(i + 1), set: true}
			}
			s.Push(checkFrame[K]{pos: n.child(i), depth: f.depth + 1, keys: r})
		}
		s.Push(checkFrame[K]{
			pos:   n.leftChild(),
			depth: f.depth + 1,
			keys:  keyRange[K]{lo: f.keys.lo, hi: bound[K]{key: n.key(0), set: true}},
		})
	}

	if entries != uint64(tree.size) {
		return corrupted("leaves hold %d entries, size is %d", entries, tree.size)
	}
	return tree.checkChain(leaves)
}

// checkChain walks the sibling chain from the leftmost leaf.
func (tree *BPlusTree[K]) checkChain(leaves int64) error {
	var (
		chained int64
		count   uint64
		last    K
	)

	pos, ok := tree.leftLeaf().pos, true
	for ok {
		chained++
		if chained > leaves {
			return corrupted("sibling chain is longer than %d leaves", leaves)
		}

		n, found := tree.tryNode(pos)
		if !found || !n.isLeaf() {
			return corrupted("sibling chain reaches a non-leaf at %d", pos)
		}
		for i := 0; i < n.size(); i++ {
			k := n.key(i)
			if count > 0 && k <= last {
				return corrupted("sibling chain is not ascending at key %v", k)
			}
			last = k
			count++
		}
		pos, ok = n.sibling()
	}

	if chained != leaves || count != uint64(tree.size) {
		return corrupted("sibling chain covers %d leaves and %d keys", chained, count)
	}
	return nil
}
