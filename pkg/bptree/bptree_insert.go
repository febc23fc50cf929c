package bptree

import (
	"github.com/pkg/errors"
)

// promotion is the separator a split hands to the parent: key is the first
// key of the new right node at pos.
type promotion[K Key] struct {
	key K
	pos int64
}

// Insert adds the key-value pair. It returns false if the key already
// exists, in which case neither the tree nor its arena change.
func (tree *BPlusTree[K]) Insert(key, value K) (bool, error) {
	// a split may allocate one node per level plus a new root
	if err := tree.ensureSpan(tree.height + 1); err != nil {
		return false, err
	}

	promo, split, inserted, err := tree.insert(tree.rootNode(), key, value)
	if err != nil || !inserted {
		return false, err
	}

	if split {
		if err := tree.splitRoot(promo); err != nil {
			return false, err
		}
	}

	tree.size++
	return true, nil
}

func (tree *BPlusTree[K]) insert(n node[K], key, value K) (promo promotion[K], split, inserted bool, err error) {
	if n.isLeaf() {
		return tree.insertLeaf(n, key, value)
	}

	promo, split, inserted, err = tree.insert(tree.node(n.seek(key)), key, value)
	if err != nil || !split {
		return
	}

	idx, _ := n.search(promo.key)
	if !n.isFull() {
		n.shift(idx, n.size())
		n.putRef(idx, promo.key, promo.pos)
		n.setSize(n.size() + 1)
		return promotion[K]{}, false, true, nil
	}

	promo, err = tree.splitContainer(n, idx, promo)
	return promo, err == nil, err == nil, err
}

func (tree *BPlusTree[K]) insertLeaf(n node[K], key, value K) (promo promotion[K], split, inserted bool, err error) {
	if !n.isFull() {
		idx, found := n.search(key)
		if found {
			return promo, false, false, nil
		}
		n.shift(idx, n.size())
		n.putLeaf(idx, key, value)
		n.setSize(n.size() + 1)
		return promo, false, true, nil
	}

	right, tok, err := tree.newNode(true)
	if err != nil {
		return promo, false, false, err
	}

	idx, found := n.search(key)
	if found {
		if err := tree.arena.Return(tok); err != nil {
			panic(errors.Wrap(err, "failed to return unused leaf"))
		}
		return promo, false, false, nil
	}

	s := n.size()
	middle := (s + 2) / 2
	if idx < middle {
		right.moveEntries(0, n, middle-1, s)
		n.shift(idx, middle-1)
		n.putLeaf(idx, key, value)
	} else {
		right.moveEntries(0, n, middle, idx)
		right.putLeaf(idx-middle, key, value)
		right.moveEntries(idx-middle+1, n, idx, s)
	}
	n.clear(middle, s)
	n.setSize(middle)
	right.setSize(s + 1 - middle)

	if next, ok := n.sibling(); ok {
		right.setSibling(next)
	}
	n.setSibling(right.pos)

	return promotion[K]{key: right.key(0), pos: right.pos}, true, true, nil
}

// splitContainer inserts the child promotion at idx into the full container
// n by splitting it. Of the merged entries, the one at (size+1)/2 moves up:
// its child becomes the leftmost child of the new right node.
func (tree *BPlusTree[K]) splitContainer(n node[K], idx int, in promotion[K]) (promotion[K], error) {
	right, _, err := tree.newNode(false)
	if err != nil {
		return promotion[K]{}, err
	}

	s := n.size()
	p := (s + 1) / 2

	var up promotion[K]
	switch {
	case idx == p:
		up = in
		right.setLeftChild(in.pos)
		right.moveEntries(0, n, p, s)
	case idx < p:
		up = promotion[K]{key: n.key(p - 1), pos: n.child(p - 1)}
		right.setLeftChild(up.pos)
		right.moveEntries(0, n, p, s)
		n.shift(idx, p-1)
		n.putRef(idx, in.key, in.pos)
	default:
		up = promotion[K]{key: n.key(p), pos: n.child(p)}
		right.setLeftChild(up.pos)
		right.moveEntries(0, n, p+1, idx)
		right.putRef(idx-p-1, in.key, in.pos)
		right.moveEntries(idx-p, n, idx, s)
	}
	n.clear(p, s)
	n.setSize(p)
	right.setSize(s - p)

	return promotion[K]{key: up.key, pos: right.pos}, nil
}

func (tree *BPlusTree[K]) splitRoot(promo promotion[K]) error {
	root, _, err := tree.newNode(false)
	if err != nil {
		return err
	}
	root.setLeftChild(tree.root)
	root.putRef(0, promo.key, promo.pos)
	root.setSize(1)

	tree.root = root.pos
	tree.height++
	return nil
}
