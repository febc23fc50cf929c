package bptree

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"go-arenakv/pkg/arena"
	"go-arenakv/pkg/customerrors"
	"go-arenakv/pkg/storage"

	"github.com/stretchr/testify/require"
)

func u32(vals ...uint32) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}

func stream(capacity, width byte, count uint32, body ...[]byte) []byte {
	out := []byte{magic, version, capacity, width}
	out = append(out, u32(count)...)
	for _, b := range body {
		out = append(out, b...)
	}
	return out
}

func TestSerializeFormat(t *testing.T) {
	tree := newTestTree(t, 3)
	for k := uint32(1); k <= 4; k++ {
		_, err := tree.Insert(k, k*10)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, tree.Serialize(&buf))

	want := stream(3, 0, 4,
		[]byte{flagContainer, 1},
		[]byte{flagLeaf, 2}, u32(1, 10, 2, 20),
		u32(3),
		[]byte{flagLeaf, 2}, u32(3, 30, 4, 40),
	)
	require.Equal(t, want, buf.Bytes())
}

func TestSerializeEmpty(t *testing.T) {
	tree := newTestTree(t, 5)
	var buf bytes.Buffer
	require.NoError(t, tree.Serialize(&buf))
	require.Equal(t, stream(5, 0, 0, []byte{flagLeaf, 0}), buf.Bytes())

	got, err := Deserialize[uint32](&buf, nil)
	require.NoError(t, err)
	require.Zero(t, got.Size())
	require.Equal(t, 1, got.Height())
	require.NoError(t, got.Check())
}

func TestSerializeRoundTrip(t *testing.T) {
	for _, capacity := range []int{3, 4, 7, 64} {
		tree := newTestTree(t, capacity)
		for _, k := range rand.New(rand.NewSource(9)).Perm(5000) {
			insertAll(t, tree, uint32(k)*3)
		}

		var buf bytes.Buffer
		require.NoError(t, tree.Serialize(&buf))
		data := append([]byte(nil), buf.Bytes()...)

		got, err := Deserialize[uint32](&buf, nil)
		require.NoError(t, err)
		require.NoError(t, got.Check())
		require.Equal(t, tree.Size(), got.Size())
		require.Equal(t, tree.Height(), got.Height())
		require.Equal(t, capacity, got.NodeCapacity())

		wantKeys, wantValues := collect(tree)
		gotKeys, gotValues := collect(got)
		require.Equal(t, wantKeys, gotKeys)
		require.Equal(t, wantValues, gotValues)

		var again bytes.Buffer
		require.NoError(t, got.Serialize(&again))
		require.Equal(t, data, again.Bytes())

		// the restored tree keeps accepting inserts
		insertAll(t, got, 1, 2, 4)
		require.NoError(t, got.Check())
	}
}

func TestSerializeWide(t *testing.T) {
	tree, err := New[uint64](&Options{NodeCapacity: 4})
	require.NoError(t, err)
	for i := uint64(0); i < 500; i++ {
		_, err := tree.Insert(i<<33|i, i)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, tree.Serialize(&buf))
	require.Equal(t, byte(8), buf.Bytes()[3])
	data := buf.Bytes()

	got, err := Deserialize[uint64](bytes.NewReader(data), nil)
	require.NoError(t, err)
	require.NoError(t, got.Check())
	v, ok := got.Search(7<<33 | 7)
	require.True(t, ok)
	require.Equal(t, uint64(7), v)

	_, err = Deserialize[uint32](bytes.NewReader(data), nil)
	require.ErrorIs(t, err, customerrors.ErrCorrupted)

	narrow := newTestTree(t, 4)
	insertAll(t, narrow, 1, 2, 3)
	var nb bytes.Buffer
	require.NoError(t, narrow.Serialize(&nb))
	_, err = Deserialize[uint64](&nb, nil)
	require.ErrorIs(t, err, customerrors.ErrCorrupted)
}

func TestSerializeSharedScratch(t *testing.T) {
	scratch, err := arena.NewRecycleRegion(arena.MinRegionCapacity)
	require.NoError(t, err)

	tree, err := New[uint32](&Options{NodeCapacity: 8, Scratch: scratch})
	require.NoError(t, err)
	insertAll(t, tree, 5, 3, 9, 1, 7, 2, 8, 6, 4, 10, 11, 12)

	var buf bytes.Buffer
	require.NoError(t, tree.Serialize(&buf))
	require.Zero(t, scratch.Used())
	require.Equal(t, 1, scratch.Regions())
}

func TestDeserializeErrors(t *testing.T) {
	leaf := func(kv ...uint32) []byte {
		return append([]byte{flagLeaf, byte(len(kv) / 2)}, u32(kv...)...)
	}
	container := func(size byte) []byte { return []byte{flagContainer, size} }

	deep := stream(3, 0, 0)
	for i := 0; i <= maxDepth; i++ {
		deep = append(deep, container(1)...)
	}

	valid := stream(3, 0, 3, container(1), leaf(1, 1, 2, 2), u32(5), leaf(5, 5))

	cases := []struct {
		name string
		data []byte
		err  error
	}{
		{"empty", nil, customerrors.ErrCorrupted},
		{"bad magic", append([]byte{7}, valid[1:]...), customerrors.ErrBadMagic},
		{"bad version", []byte{magic, 2}, customerrors.ErrBadVersion},
		{"small capacity", stream(2, 0, 1, leaf(1, 1)), customerrors.ErrCorrupted},
		{"truncated header", valid[:5], customerrors.ErrCorrupted},
		{"truncated body", valid[:len(valid)-1], customerrors.ErrCorrupted},
		{"count mismatch", stream(3, 0, 4, container(1), leaf(1, 1, 2, 2), u32(5), leaf(5, 5)), customerrors.ErrCorrupted},
		{"bad flag", stream(3, 0, 1, []byte{7, 1}, u32(1, 1)), customerrors.ErrCorrupted},
		{"oversized node", stream(3, 0, 4, leaf(1, 1, 2, 2, 3, 3, 4, 4)), customerrors.ErrCorrupted},
		{"unsorted leaf", stream(3, 0, 2, leaf(2, 2, 1, 1)), customerrors.ErrCorrupted},
		{"duplicate keys", stream(3, 0, 2, leaf(2, 2, 2, 2)), customerrors.ErrCorrupted},
		{"separator below left keys", stream(3, 0, 2, container(1), leaf(5, 5), u32(3), leaf(6, 6)), customerrors.ErrCorrupted},
		{"key below separator", stream(3, 0, 2, container(1), leaf(1, 1), u32(5), leaf(4, 4)), customerrors.ErrCorrupted},
		{"empty child", stream(3, 0, 1, container(1), leaf(), u32(5), leaf(6, 6)), customerrors.ErrCorrupted},
		{"empty root container", stream(3, 0, 0, container(0)), customerrors.ErrCorrupted},
		{"uneven leaves", stream(3, 0, 3, container(1), container(1), leaf(1, 1), u32(2), leaf(2, 2), u32(5), leaf(5, 5)), customerrors.ErrCorrupted},
		{"too deep", deep, customerrors.ErrCorrupted},
		{"wrong width", stream(3, 8, 1, leaf(1, 1)), customerrors.ErrCorrupted},
	}

	got, err := Deserialize[uint32](bytes.NewReader(valid), nil)
	require.NoError(t, err)
	require.Equal(t, uint32(3), got.Size())

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tree, err := Deserialize[uint32](bytes.NewReader(c.data), nil)
			require.ErrorIs(t, err, c.err)
			require.Nil(t, tree)
		})
	}
}

func TestSerializeScratchCapacity(t *testing.T) {
	small, err := arena.NewRecycleRegion(arena.MinRegionCapacity)
	require.NoError(t, err)

	// a full leaf of 200 narrow entries needs 1202 bytes plus a header byte
	_, err = New[uint32](&Options{NodeCapacity: 200, Scratch: small})
	require.ErrorIs(t, err, customerrors.ErrInvalidCapacity)
	_, err = New[uint64](&Options{NodeCapacity: 100, Scratch: small})
	require.ErrorIs(t, err, customerrors.ErrInvalidCapacity)

	// 127 narrow entries still fit into the smallest region
	_, err = New[uint32](&Options{NodeCapacity: 127, Scratch: small})
	require.NoError(t, err)

	for _, capacity := range []int{200, MaxNodeCapacity} {
		scratch, err := arena.NewRecycleRegion(ScratchCapacity(capacity, 4))
		require.NoError(t, err)

		tree, err := New[uint32](&Options{NodeCapacity: capacity, Scratch: scratch})
		require.NoError(t, err)
		keys := make([]uint32, 150)
		for i := range keys {
			keys[i] = uint32(i)
		}
		insertAll(t, tree, keys...)
		require.Equal(t, 1, tree.Height())

		var buf bytes.Buffer
		require.NoError(t, tree.Serialize(&buf))
		require.Zero(t, scratch.Used())

		got, err := Deserialize[uint32](&buf, &Options{Scratch: scratch})
		require.NoError(t, err)
		require.Equal(t, uint32(150), got.Size())
		v, ok := got.Search(149)
		require.True(t, ok)
		require.Equal(t, uint32(149*2+1), v)
	}

	// Load validates injected scratch space the same way
	dir := storage.NewRAMDirectory("root")
	tree, err := New[uint32](&Options{NodeCapacity: 200})
	require.NoError(t, err)
	insertAll(t, tree, 1, 2, 3)
	require.NoError(t, tree.Save(dir))
	_, err = Load[uint32](dir, &Options{Scratch: small})
	require.ErrorIs(t, err, customerrors.ErrInvalidCapacity)
}
