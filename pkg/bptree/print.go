package bptree

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Print writes one line per node, indented by depth, in pre-order:
//
//	container [3]
//	  leaf [1 2]
//	  leaf [3 4]
func (tree *BPlusTree[K]) Print(w io.Writer) error {
	bw := bufio.NewWriter(w)
	tree.walk(func(n node[K], depth int) {
		fmt.Fprintf(bw, "%s%s\n", strings.Repeat("  ", depth-1), n)
	})
	return errors.Wrap(bw.Flush(), "failed to print tree")
}

// WriteDot writes the tree as a Graphviz digraph. Container edges are
// labelled with the key range of the child; leaves point at their keys.
func (tree *BPlusTree[K]) WriteDot(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph bptree {")
	fmt.Fprintln(bw, "rankdir=LR")

	counter := 0
	tree.writeDot(bw, "root", tree.rootNode(), &counter)

	fmt.Fprintln(bw, "}")
	return errors.Wrap(bw.Flush(), "failed to write dot")
}

func (tree *BPlusTree[K]) writeDot(w io.Writer, name string, n node[K], counter *int) {
	if n.isLeaf() {
		for i := 0; i < n.size(); i++ {
			fmt.Fprintf(w, "%s -> %v\n", name, n.key(i))
		}
		return
	}

	left := fmt.Sprintf("NODE_%d", *counter)
	*counter++
	fmt.Fprintf(w, "%s -> %s [ label = \"<%v\" ];\n", name, left, n.key(0))
	tree.writeDot(w, left, tree.node(n.leftChild()), counter)

	for i := 0; i < n.size(); i++ {
		right := fmt.Sprintf("NODE_%d", *counter)
		*counter++
		fmt.Fprintf(w, "%s -> %s [ label = \">=%v\" ];\n", name, right, n.key(i))
		tree.writeDot(w, right, tree.node(n.child(i)), counter)
	}
}
