package bptree

import (
	"math/rand"
	"sort"
	"strings"
	"testing"

	"go-arenakv/pkg/customerrors"

	"github.com/stretchr/testify/require"
)

func newTestTree(t *testing.T, capacity int) *BPlusTree[uint32] {
	t.Helper()
	tree, err := New[uint32](&Options{NodeCapacity: capacity, EstimatedCount: 1000})
	require.NoError(t, err)
	return tree
}

func insertAll(t *testing.T, tree *BPlusTree[uint32], keys ...uint32) {
	t.Helper()
	for _, k := range keys {
		ok, err := tree.Insert(k, k*2+1)
		require.NoError(t, err)
		require.True(t, ok, "key %d", k)
	}
}

func collect(tree *BPlusTree[uint32]) (keys, values []uint32) {
	tree.Iterate(func(k, v uint32) {
		keys = append(keys, k)
		values = append(values, v)
	})
	return keys, values
}

func TestNewOptions(t *testing.T) {
	tree, err := New[uint32](nil)
	require.NoError(t, err)
	require.Equal(t, 16, tree.NodeCapacity())
	require.Equal(t, 4, tree.KeyWidth())
	require.Equal(t, 1, tree.Height())
	require.Zero(t, tree.Size())
	require.NoError(t, tree.Check())

	for _, c := range []int{0, 2, 256} {
		_, err := New[uint32](&Options{NodeCapacity: c})
		require.ErrorIs(t, err, customerrors.ErrInvalidCapacity)
	}

	wide, err := New[uint64](&Options{NodeCapacity: MaxNodeCapacity})
	require.NoError(t, err)
	require.Equal(t, 8, wide.KeyWidth())
	require.Equal(t, 8+255*16, wide.Stats().NodeSize)
}

func TestEmptyTree(t *testing.T) {
	tree := newTestTree(t, 3)
	_, ok := tree.Search(0)
	require.False(t, ok)

	keys, _ := collect(tree)
	require.Empty(t, keys)

	tree.Scan(0, func(k, v uint32) bool {
		t.Fatal("unexpected entry")
		return false
	})
}

func TestInsertSearchIterate(t *testing.T) {
	const n = 5000

	for _, capacity := range []int{3, 4, 5, 16, 255} {
		tree := newTestTree(t, capacity)
		for _, k := range rand.New(rand.NewSource(int64(capacity))).Perm(n) {
			insertAll(t, tree, uint32(k))
		}

		require.Equal(t, uint32(n), tree.Size())
		require.NoError(t, tree.Check())

		for k := uint32(0); k < n; k++ {
			v, ok := tree.Search(k)
			require.True(t, ok, "key %d", k)
			require.Equal(t, k*2+1, v)
		}
		_, ok := tree.Search(n)
		require.False(t, ok)

		keys, values := collect(tree)
		require.Len(t, keys, n)
		for i := range keys {
			require.Equal(t, uint32(i), keys[i])
			require.Equal(t, uint32(i)*2+1, values[i])
		}
	}
}

func TestInsertScenario(t *testing.T) {
	input := []uint32{5, 1, 200, 3, 77, 2, 150, 4, 6, 99, 1000, 8, 7, 1 << 31, 0}

	for _, capacity := range []int{3, 4} {
		tree := newTestTree(t, capacity)
		insertAll(t, tree, input...)
		require.NoError(t, tree.Check())

		want := append([]uint32(nil), input...)
		sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
		keys, _ := collect(tree)
		require.Equal(t, want, keys)
	}
}

func TestDuplicates(t *testing.T) {
	tree := newTestTree(t, 3)
	insertAll(t, tree, 1, 2)

	// leaf with room
	ok, err := tree.Insert(2, 100)
	require.NoError(t, err)
	require.False(t, ok)

	insertAll(t, tree, 3)
	used, blocks := tree.arena.Used(), tree.arena.Blocks()

	// full leaf: the node allocated for the split is handed back
	ok, err = tree.Insert(3, 100)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, used, tree.arena.Used())
	require.LessOrEqual(t, tree.arena.Blocks(), blocks+1)

	v, found := tree.Search(3)
	require.True(t, found)
	require.Equal(t, uint32(7), v)
	require.Equal(t, uint32(3), tree.Size())
	require.NoError(t, tree.Check())

	// the returned space is reused by the next split
	insertAll(t, tree, 4)
	require.Equal(t, used+int64(2*tree.nodeSize), tree.arena.Used())
}

func TestLeafSplitPositions(t *testing.T) {
	for capacity := MinNodeCapacity; capacity <= 8; capacity++ {
		for pos := 0; pos <= capacity; pos++ {
			tree := newTestTree(t, capacity)
			all := []uint32{uint32(pos*10 + 5)}
			for i := 1; i <= capacity; i++ {
				insertAll(t, tree, uint32(i*10))
				all = append(all, uint32(i*10))
			}
			require.Equal(t, 1, tree.Height())

			insertAll(t, tree, uint32(pos*10+5))
			sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

			middle := (capacity + 2) / 2
			root := tree.rootNode()
			require.Equal(t, 2, tree.Height())
			require.Equal(t, []uint32{all[middle]}, root.keys())

			left := tree.node(root.leftChild())
			right := tree.node(root.child(0))
			require.Equal(t, all[:middle], left.keys(), "capacity %d pos %d", capacity, pos)
			require.Equal(t, all[middle:], right.keys(), "capacity %d pos %d", capacity, pos)

			next, ok := left.sibling()
			require.True(t, ok)
			require.Equal(t, right.pos, next)
			_, ok = right.sibling()
			require.False(t, ok)

			require.NoError(t, tree.Check())
		}
	}
}

// fullRoot builds a height 2 tree whose root container is full, by inserting
// ascending multiples of 100.
func fullRoot(t *testing.T, capacity int) *BPlusTree[uint32] {
	tree := newTestTree(t, capacity)
	middle := (capacity + 2) / 2
	for i := 1; i <= middle*capacity+capacity; i++ {
		insertAll(t, tree, uint32(i*100))
	}
	require.Equal(t, 2, tree.Height())
	require.Equal(t, capacity, tree.rootNode().size())
	return tree
}

func TestContainerSplitPositions(t *testing.T) {
	for capacity := MinNodeCapacity; capacity <= 8; capacity++ {
		middle := (capacity + 2) / 2
		p := (capacity + 1) / 2

		for j := 0; j <= capacity; j++ {
			tree := fullRoot(t, capacity)
			root := tree.rootNode()
			separators := root.keys()

			leafPos := root.leftChild()
			if j > 0 {
				leafPos = root.child(j - 1)
			}
			leaf := tree.node(leafPos)
			keys := leaf.keys()
			last := keys[len(keys)-1]

			// fill the leaf and overflow it by one
			for x := 1; len(keys) <= capacity; x++ {
				k := last + uint32(x)
				insertAll(t, tree, k)
				keys = append(keys, k)
			}
			promoted := keys[middle]

			merged := append([]uint32{}, separators[:j]...)
			merged = append(merged, promoted)
			merged = append(merged, separators[j:]...)

			require.Equal(t, 3, tree.Height(), "capacity %d position %d", capacity, j)
			newRoot := tree.rootNode()
			require.Equal(t, []uint32{merged[p]}, newRoot.keys())

			left := tree.node(newRoot.leftChild())
			right := tree.node(newRoot.child(0))
			require.Equal(t, merged[:p], left.keys(), "capacity %d position %d", capacity, j)
			require.Equal(t, merged[p+1:], right.keys(), "capacity %d position %d", capacity, j)
			require.Equal(t, merged[p], tree.node(right.leftChild()).key(0))

			require.NoError(t, tree.Check())
		}
	}
}

func TestRandomOrderInvariants(t *testing.T) {
	for capacity := MinNodeCapacity; capacity <= 8; capacity++ {
		tree := newTestTree(t, capacity)
		rnd := rand.New(rand.NewSource(int64(capacity) * 7))
		seen := map[uint32]bool{}

		for i := 0; i < 600; i++ {
			k := uint32(rnd.Intn(1000))
			ok, err := tree.Insert(k, k)
			require.NoError(t, err)
			require.Equal(t, !seen[k], ok)
			seen[k] = true
			require.NoError(t, tree.Check(), "capacity %d after %d inserts", capacity, i)
		}
		require.Equal(t, uint32(len(seen)), tree.Size())
	}
}

func TestHeight(t *testing.T) {
	tree := newTestTree(t, 3)
	heights := []int{}
	for i := uint32(1); i <= 10; i++ {
		insertAll(t, tree, i)
		heights = append(heights, tree.Height())
	}
	require.Equal(t, []int{1, 1, 1, 2, 2, 2, 2, 2, 2, 3}, heights)
}

func TestScan(t *testing.T) {
	tree := newTestTree(t, 4)
	for i := uint32(0); i < 100; i++ {
		insertAll(t, tree, i*2)
	}

	var got []uint32
	tree.Scan(51, func(k, v uint32) bool {
		got = append(got, k)
		return len(got) < 5
	})
	require.Equal(t, []uint32{52, 54, 56, 58, 60}, got)

	got = got[:0]
	tree.Scan(198, func(k, v uint32) bool {
		got = append(got, k)
		return true
	})
	require.Equal(t, []uint32{198}, got)

	tree.Scan(199, func(k, v uint32) bool {
		t.Fatalf("unexpected key %d", k)
		return true
	})
}

func TestWideKeys(t *testing.T) {
	tree, err := New[uint64](&Options{NodeCapacity: 5})
	require.NoError(t, err)

	rnd := rand.New(rand.NewSource(1))
	want := map[uint64]uint64{}
	for len(want) < 3000 {
		k := rnd.Uint64()
		ok, err := tree.Insert(k, ^k)
		require.NoError(t, err)
		require.True(t, ok)
		want[k] = ^k
	}
	require.NoError(t, tree.Check())

	for k, v := range want {
		got, ok := tree.Search(k)
		require.True(t, ok)
		require.Equal(t, v, got)
	}

	var prev uint64
	n := 0
	tree.Iterate(func(k, v uint64) {
		if n > 0 {
			require.Greater(t, k, prev)
		}
		prev = k
		n++
	})
	require.Equal(t, len(want), n)
}

func TestArenaExhausted(t *testing.T) {
	if testing.Short() {
		t.Skip("reserves a 1GiB arena block")
	}

	tree, err := New[uint32](&Options{NodeCapacity: 3, BlockCapacity: 1 << 30})
	require.NoError(t, err)
	used := tree.arena.Used()

	_, err = tree.Insert(1, 1)
	require.ErrorIs(t, err, customerrors.ErrArenaExhausted)
	require.Zero(t, tree.Size())
	require.Equal(t, used, tree.arena.Used())
}

func TestCheckDetectsCorruption(t *testing.T) {
	tree := newTestTree(t, 3)
	insertAll(t, tree, 1, 2, 3, 4, 5, 6, 7)
	require.NoError(t, tree.Check())

	leaf := tree.leftLeaf()
	k0, v0 := leaf.key(0), leaf.value(0)
	leaf.putLeaf(0, leaf.key(1), 0)
	require.ErrorIs(t, tree.Check(), customerrors.ErrCorrupted)
	leaf.putLeaf(0, k0, v0)
	require.NoError(t, tree.Check())

	tree.size++
	require.ErrorIs(t, tree.Check(), customerrors.ErrCorrupted)
	tree.size--

	link := leaf.link()
	leaf.setLink(0)
	require.ErrorIs(t, tree.Check(), customerrors.ErrCorrupted)
	leaf.setLink(link)

	tree.height++
	require.ErrorIs(t, tree.Check(), customerrors.ErrCorrupted)
	tree.height--
	require.NoError(t, tree.Check())
}

func TestStats(t *testing.T) {
	tree := newTestTree(t, 3)
	insertAll(t, tree, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	st := tree.Stats()
	require.Equal(t, uint32(10), st.Size)
	require.Equal(t, 3, st.Height)
	require.Equal(t, 5, st.Leaves)
	require.Equal(t, 3, st.Containers)
	require.Equal(t, 8+3*8, st.NodeSize)
	require.Equal(t, int64(8*st.NodeSize), st.ArenaUsed)
	require.GreaterOrEqual(t, st.ArenaAllocated, st.ArenaUsed)
	require.True(t, strings.HasPrefix(tree.String(), "BPlusTree{size=10, capacity=3, height=3"))
}

func TestWriteDot(t *testing.T) {
	tree := newTestTree(t, 3)
	insertAll(t, tree, 1, 2, 3, 4)

	var b strings.Builder
	require.NoError(t, tree.WriteDot(&b))
	require.Equal(t, `digraph bptree {
rankdir=LR
root -> NODE_0 [ label = "<3" ];
NODE_0 -> 1
NODE_0 -> 2
root -> NODE_1 [ label = ">=3" ];
NODE_1 -> 3
NODE_1 -> 4
}
`, b.String())
}

func TestBlockCapacity(t *testing.T) {
	size := nodeSize(16, 4)
	require.Equal(t, size, blockCapacity(16, size, 0))
	require.Greater(t, blockCapacity(16, size, 1_000_000), blockCapacity(16, size, 1000))
	require.Equal(t, maxBlockCapacity, blockCapacity(3, nodeSize(3, 8), 1<<40))
}

func TestKnownSequences(t *testing.T) {
	type insert struct {
		key, value uint32
		inserted   bool
	}

	cases := []struct {
		name    string
		inserts []insert
		size    uint32
		want    map[uint32]uint32
		missing []uint32
	}{
		{
			name: "splits at capacity 3",
			inserts: func() []insert {
				var ins []insert
				for _, k := range []uint32{
					1, 3, 5, 7, 9, 2, 4, 6, 8, 10, 13, 18, 11, 12, 19, 15, 16, 17, 14, 20,
					25, 30, 42, 41, 21, 23, 24, 27, 33, 66,
				} {
					ins = append(ins, insert{k, k, true})
				}
				return ins
			}(),
			size: 30,
			want: map[uint32]uint32{
				1: 1, 2: 2, 10: 10, 14: 14, 20: 20, 21: 21, 33: 33, 41: 41, 42: 42, 66: 66,
			},
			missing: []uint32{0, 22, 26, 67},
		},
		{
			name:    "same key twice",
			inserts: []insert{{1, 100, true}, {1, 200, false}},
			size:    1,
			want:    map[uint32]uint32{1: 100},
			missing: []uint32{0, 2},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tree := newTestTree(t, 3)
			for _, in := range c.inserts {
				ok, err := tree.Insert(in.key, in.value)
				require.NoError(t, err)
				require.Equal(t, in.inserted, ok, "key %d", in.key)
			}
			require.Equal(t, c.size, tree.Size())
			require.NoError(t, tree.Check())

			for _, in := range c.inserts {
				if in.inserted {
					v, ok := tree.Search(in.key)
					require.True(t, ok, "key %d", in.key)
					require.Equal(t, in.value, v)
				}
			}
			for k, v := range c.want {
				got, ok := tree.Search(k)
				require.True(t, ok, "key %d", k)
				require.Equal(t, v, got)
			}
			for _, k := range c.missing {
				_, ok := tree.Search(k)
				require.False(t, ok, "key %d", k)
			}
		})
	}
}
