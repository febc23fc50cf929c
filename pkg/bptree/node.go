package bptree

import (
	"fmt"
	"strings"

	"go-arenakv/util/helpers"
)

// node layout inside its arena allocation:
//
//	[0]     flag (bit 0 set for leaves)
//	[1]     size
//	[2:4]   reserved
//	[4:8]   link: leftmost child (container) or next leaf (leaf), relative
//	[8:]    entries: leaf [key][value], container [key][right:i32 relative]
//
// Relative offsets are target.pos - node.pos; a leaf link of 0 ends the chain.
const (
	nodeHeaderSz = 8
	refSz        = 4

	flagContainer = uint8(0b00000000)
	flagLeaf      = uint8(0b00000001)
	leafBit       = 0
)

// node is a view over one node's bytes in the arena. It never allocates.
type node[K Key] struct {
	pos   int64
	buf   []byte
	width int
}

func (n node[K]) isLeaf() bool { return helpers.GetBit(n.buf[0], leafBit) }

func (n node[K]) setLeaf(v bool) { helpers.SetBit(&n.buf[0], leafBit, v) }

func (n node[K]) size() int { return int(n.buf[1]) }

func (n node[K]) setSize(sz int) { n.buf[1] = uint8(sz) }

func (n node[K]) capacity() int {
	return (len(n.buf) - nodeHeaderSz) / (2 * n.width)
}

func (n node[K]) isFull() bool { return n.size() >= n.capacity() }

func (n node[K]) link() int32 { return int32(bin.Uint32(n.buf[4:8])) }

func (n node[K]) setLink(rel int32) { bin.PutUint32(n.buf[4:8], uint32(rel)) }

// relTo returns the offset from n to the node at pos.
func (n node[K]) relTo(pos int64) int32 { return int32(pos - n.pos) }

// sibling returns the position of the next leaf.
func (n node[K]) sibling() (int64, bool) {
	rel := n.link()
	return n.pos + int64(rel), rel != 0
}

func (n node[K]) setSibling(pos int64) { n.setLink(n.relTo(pos)) }

// leftChild returns the position of the leftmost child of a container.
func (n node[K]) leftChild() int64 { return n.pos + int64(n.link()) }

func (n node[K]) setLeftChild(pos int64) { n.setLink(n.relTo(pos)) }

func (n node[K]) stride() int {
	if n.isLeaf() {
		return 2 * n.width
	}
	return n.width + refSz
}

func (n node[K]) entry(i int) []byte {
	st := n.stride()
	off := nodeHeaderSz + i*st
	return n.buf[off : off+st]
}

// entries returns the raw bytes of entries [from, to).
func (n node[K]) entries(from, to int) []byte {
	st := n.stride()
	return n.buf[nodeHeaderSz+from*st : nodeHeaderSz+to*st]
}

func (n node[K]) key(i int) K { return getKey[K](n.entry(i), n.width) }

func (n node[K]) value(i int) K { return getKey[K](n.entry(i)[n.width:], n.width) }

func (n node[K]) ref(i int) int32 { return int32(bin.Uint32(n.entry(i)[n.width:])) }

// child returns the position of the right child of container entry i.
func (n node[K]) child(i int) int64 { return n.pos + int64(n.ref(i)) }

func (n node[K]) putLeaf(i int, k, v K) {
	e := n.entry(i)
	putKey(e, k, n.width)
	putKey(e[n.width:], v, n.width)
}

func (n node[K]) putRef(i int, k K, child int64) {
	e := n.entry(i)
	putKey(e, k, n.width)
	bin.PutUint32(e[n.width:], uint32(n.relTo(child)))
}

// search performs a binary search for key and returns the index of the first
// entry not less than key and whether that entry equals key.
func (n node[K]) search(key K) (idx int, found bool) {
	left, right := 0, n.size()-1

	for left <= right {
		idx = (right + left) / 2

		k := n.key(idx)
		if k == key {
			return idx, true
		} else if k < key {
			left = idx + 1
		} else {
			right = idx - 1
		}
	}

	return left, false
}

// seek returns the child of a container whose range covers key: the
// leftmost child when key is below every separator, otherwise the right
// child of the last separator not greater than key.
func (n node[K]) seek(key K) int64 {
	idx, found := n.search(key)
	if found {
		idx++
	}
	if idx == 0 {
		return n.leftChild()
	}
	return n.child(idx - 1)
}

// shift moves entries [from, to) one slot to the right. Relative child
// offsets stay valid since the node does not move.
func (n node[K]) shift(from, to int) {
	copy(n.entries(from+1, to+1), n.entries(from, to))
}

// clear zeroes entries [from, to).
func (n node[K]) clear(from, to int) {
	b := n.entries(from, to)
	for i := range b {
		b[i] = 0
	}
}

// moveEntries copies src entries [from, to) into n starting at slot at.
// Container child offsets are re-based from src to n.
func (n node[K]) moveEntries(at int, src node[K], from, to int) {
	copy(n.entries(at, at+to-from), src.entries(from, to))
	if n.isLeaf() {
		return
	}
	for i := from; i < to; i++ {
		e := n.entry(at + i - from)
		bin.PutUint32(e[n.width:], uint32(n.relTo(src.child(i))))
	}
}

func (n node[K]) keys() []K {
	keys := make([]K, n.size())
	for i := range keys {
		keys[i] = n.key(i)
	}
	return keys
}

func (n node[K]) String() string {
	kind := "container"
	if n.isLeaf() {
		kind = "leaf"
	}
	s := make([]string, 0, n.size())
	for _, k := range n.keys() {
		s = append(s, fmt.Sprint(k))
	}
	return fmt.Sprintf("%s [%s]", kind, strings.Join(s, " "))
}
