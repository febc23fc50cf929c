package bptree

import (
	"go-arenakv/util/stl"
)

// Stats describes the shape of a tree and the memory behind it.
type Stats struct {
	Size         uint32
	Height       int
	NodeCapacity int
	KeyWidth     int
	NodeSize     int

	Leaves     int
	Containers int

	ArenaBlocks    int
	ArenaAllocated int64
	ArenaUsed      int64
}

// Stats counts nodes by walking the tree.
func (tree *BPlusTree[K]) Stats() Stats {
	st := Stats{
		Size:           tree.size,
		Height:         tree.height,
		NodeCapacity:   tree.capacity,
		KeyWidth:       tree.width,
		NodeSize:       tree.nodeSize,
		ArenaBlocks:    tree.arena.Blocks(),
		ArenaAllocated: tree.arena.Allocated(),
		ArenaUsed:      tree.arena.Used(),
	}

	tree.walk(func(n node[K], _ int) {
		if n.isLeaf() {
			st.Leaves++
		} else {
			st.Containers++
		}
	})
	return st
}

type walkFrame struct {
	pos   int64
	depth int
}

// walk visits every node in pre-order along with its depth (root is 1).
func (tree *BPlusTree[K]) walk(visit func(n node[K], depth int)) {
	s := stl.NewStack[walkFrame]()
	s.Push(walkFrame{tree.root, 1})
	for s.Len() > 0 {
		f, _ := s.Pop()
		n := tree.node(f.pos)
		visit(n, f.depth)
		if n.isLeaf() {
			continue
		}
		for i := n.size() - 1; i >= 0; i-- {
			s.Push(walkFrame{n.child(i), f.depth + 1})
		}
		s.Push(walkFrame{n.leftChild(), f.depth + 1})
	}
}
