package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/record"
	"github.com/zjuerme/MiniSQL/storage/buffer"
	"github.com/zjuerme/MiniSQL/storage/disk"
	"github.com/zjuerme/MiniSQL/storage/page"
)

func newTestPool(t *testing.T) (*buffer.BufferPoolManager, *disk.DiskManager) {
	t.Helper()
	dm, err := disk.NewDiskManager(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })

	bpm := buffer.NewBufferPoolManager(64, 2, dm)
	// Reserve the index-roots and catalog pages the way the engine does.
	for _, want := range []common.PageID{common.IndexRootsPageID, common.CatalogMetaPageID} {
		p, err := bpm.NewPage()
		require.NoError(t, err)
		require.Equal(t, want, p.GetPageID())
		bpm.UnpinPage(p.GetPageID(), true)
	}
	return bpm, dm
}

func intKeyManager() record.KeyManager {
	schema := record.NewSchema([]*record.Column{record.NewColumn("k", record.TypeInt, 0, false)})
	return record.NewKeyManager(schema)
}

func newTestTree(t *testing.T, leafMax, internalMax int) (*BPlusTree, *buffer.BufferPoolManager, *disk.DiskManager) {
	t.Helper()
	bpm, dm := newTestPool(t)
	tree, err := NewBPlusTree(0, bpm, intKeyManager(), leafMax, internalMax)
	require.NoError(t, err)
	return tree, bpm, dm
}

func intKey(km record.KeyManager, v int32) []byte {
	return km.EncodeKey(record.NewRow([]*record.Field{record.NewIntField(v)}))
}

func ridFor(v int32) record.RowId {
	return record.RowId{PageID: 1, SlotNum: uint32(v)}
}

func decodeInt(km record.KeyManager, key []byte) int32 {
	return km.DecodeKey(key).GetField(0).Int
}

func TestBPlusTreeLeafSplit(t *testing.T) {
	tree, bpm, _ := newTestTree(t, 4, 4)
	km := tree.GetKeyManager()

	for _, v := range []int32{10, 20, 30, 40, 50} {
		require.NoError(t, tree.Insert(intKey(km, v), ridFor(v), nil))
	}

	// The fifth insert splits after the third entry: the root becomes an
	// internal node over [10,20,30] and [40,50] with separator 40.
	rootPage, err := bpm.FetchPage(tree.GetRootPageId())
	require.NoError(t, err)
	root := page.AsInternalPage(rootPage)
	require.False(t, root.IsLeafPage())
	require.Equal(t, 2, root.GetSize())
	assert.Equal(t, int32(40), decodeInt(km, root.KeyAt(1)))

	leftPage, err := bpm.FetchPage(root.ValueAt(0))
	require.NoError(t, err)
	left := page.AsLeafPage(leftPage)
	require.Equal(t, 3, left.GetSize())
	for i, want := range []int32{10, 20, 30} {
		assert.Equal(t, want, decodeInt(km, left.KeyAt(i)))
	}
	assert.Equal(t, root.ValueAt(1), left.GetNextPageId())

	rightPage, err := bpm.FetchPage(root.ValueAt(1))
	require.NoError(t, err)
	right := page.AsLeafPage(rightPage)
	require.Equal(t, 2, right.GetSize())
	assert.Equal(t, int32(40), decodeInt(km, right.KeyAt(0)))
	assert.Equal(t, int32(50), decodeInt(km, right.KeyAt(1)))
	assert.Equal(t, common.InvalidPageID, right.GetNextPageId())

	bpm.UnpinPage(leftPage.GetPageID(), false)
	bpm.UnpinPage(rightPage.GetPageID(), false)
	bpm.UnpinPage(rootPage.GetPageID(), false)

	rids, err := tree.GetValue(intKey(km, 30), nil)
	require.NoError(t, err)
	require.Len(t, rids, 1)
	assert.Equal(t, ridFor(30), rids[0])

	// Duplicate insert fails without modification.
	err = tree.Insert(intKey(km, 30), ridFor(99), nil)
	assert.ErrorIs(t, err, common.ErrDuplicateKey)
	rids, _ = tree.GetValue(intKey(km, 30), nil)
	assert.Equal(t, ridFor(30), rids[0])

	assert.True(t, tree.Check())
}

func TestBPlusTreeIterator(t *testing.T) {
	tree, _, _ := newTestTree(t, 4, 4)
	km := tree.GetKeyManager()

	for _, v := range []int32{10, 20, 30, 40, 50} {
		require.NoError(t, tree.Insert(intKey(km, v), ridFor(v), nil))
	}

	t.Run("full scan in key order", func(t *testing.T) {
		it, err := tree.Begin()
		require.NoError(t, err)
		var got []int32
		for it.Valid() {
			got = append(got, decodeInt(km, it.Key()))
			require.NoError(t, it.Next())
		}
		it.Close()
		assert.Equal(t, []int32{10, 20, 30, 40, 50}, got)
	})

	t.Run("seek to present key", func(t *testing.T) {
		it, err := tree.BeginAt(intKey(km, 30))
		require.NoError(t, err)
		require.True(t, it.Valid())
		assert.Equal(t, int32(30), decodeInt(km, it.Key()))
		it.Close()
	})

	t.Run("seek to missing key lands on next greater", func(t *testing.T) {
		it, err := tree.BeginAt(intKey(km, 25))
		require.NoError(t, err)
		require.True(t, it.Valid())
		assert.Equal(t, int32(30), decodeInt(km, it.Key()))
		it.Close()
	})

	t.Run("seek past the end", func(t *testing.T) {
		it, err := tree.BeginAt(intKey(km, 60))
		require.NoError(t, err)
		assert.False(t, it.Valid())
		it.Close()
	})

	assert.True(t, tree.Check())
}

func TestBPlusTreeCoalesceShrinksToLeafRoot(t *testing.T) {
	tree, bpm, _ := newTestTree(t, 4, 4)
	km := tree.GetKeyManager()

	for _, v := range []int32{10, 20, 30, 40, 50} {
		require.NoError(t, tree.Insert(intKey(km, v), ridFor(v), nil))
	}

	// Removing 10 underflows the left leaf; 2+2 entries fit one page, so the
	// leaves coalesce and the root collapses back to a single leaf.
	require.NoError(t, tree.Remove(intKey(km, 10), nil))

	rootPage, err := bpm.FetchPage(tree.GetRootPageId())
	require.NoError(t, err)
	root := page.AsLeafPage(rootPage)
	require.True(t, root.IsLeafPage())
	require.Equal(t, 4, root.GetSize())
	for i, want := range []int32{20, 30, 40, 50} {
		assert.Equal(t, want, decodeInt(km, root.KeyAt(i)))
	}
	assert.Equal(t, common.InvalidPageID, root.GetNextPageId())
	bpm.UnpinPage(rootPage.GetPageID(), false)

	assert.True(t, tree.Check())
}

// validateTree walks every node checking key order, size bounds, and parent
// pointers, then the leaf chain ordering.
func validateTree(t *testing.T, tree *BPlusTree, bpm *buffer.BufferPoolManager) {
	t.Helper()
	if tree.IsEmpty() {
		return
	}
	km := tree.GetKeyManager()

	var walk func(pid, parent common.PageID)
	walk = func(pid, parent common.PageID) {
		nodePage, err := bpm.FetchPage(pid)
		require.NoError(t, err)
		node := page.AsBPlusTreePage(nodePage)

		assert.Equal(t, parent, node.GetParentPageId(), "parent pointer of page %d", pid)
		if parent != common.InvalidPageID {
			assert.GreaterOrEqual(t, node.GetSize(), node.GetMinSize(), "underfull page %d", pid)
		}
		assert.LessOrEqual(t, node.GetSize(), node.GetMaxSize(), "overfull page %d", pid)

		if node.IsLeafPage() {
			leaf := page.AsLeafPage(nodePage)
			for i := 1; i < leaf.GetSize(); i++ {
				assert.Negative(t, km.CompareKeys(leaf.KeyAt(i-1), leaf.KeyAt(i)), "leaf %d key order", pid)
			}
			bpm.UnpinPage(pid, false)
			return
		}

		internal := page.AsInternalPage(nodePage)
		for i := 2; i < internal.GetSize(); i++ {
			assert.Negative(t, km.CompareKeys(internal.KeyAt(i-1), internal.KeyAt(i)), "internal %d key order", pid)
		}
		children := make([]common.PageID, 0, internal.GetSize())
		for i := 0; i < internal.GetSize(); i++ {
			children = append(children, internal.ValueAt(i))
		}
		bpm.UnpinPage(pid, false)
		for _, child := range children {
			walk(child, pid)
		}
	}
	walk(tree.GetRootPageId(), common.InvalidPageID)

	// Leaf chain: strictly ascending across links.
	it, err := tree.Begin()
	require.NoError(t, err)
	var prev []byte
	for it.Valid() {
		key := it.Key()
		if prev != nil {
			assert.Negative(t, km.CompareKeys(prev, key), "leaf chain order")
		}
		prev = key
		require.NoError(t, it.Next())
	}
	it.Close()
}

func treeDepth(t *testing.T, tree *BPlusTree, bpm *buffer.BufferPoolManager) int {
	t.Helper()
	depth := 0
	pid := tree.GetRootPageId()
	for {
		nodePage, err := bpm.FetchPage(pid)
		require.NoError(t, err)
		node := page.AsBPlusTreePage(nodePage)
		if node.IsLeafPage() {
			bpm.UnpinPage(pid, false)
			return depth
		}
		next := page.AsInternalPage(nodePage).ValueAt(0)
		bpm.UnpinPage(pid, false)
		pid = next
		depth++
	}
}

func TestBPlusTreeInternalSplitCascade(t *testing.T) {
	tree, bpm, dm := newTestTree(t, 3, 3)
	km := tree.GetKeyManager()

	for v := int32(1); v <= 15; v++ {
		require.NoError(t, tree.Insert(intKey(km, v), ridFor(v), nil))
	}
	rootBefore := tree.GetRootPageId()

	// Key 16 cascades a split all the way to the root.
	require.NoError(t, tree.Insert(intKey(km, 16), ridFor(16), nil))
	assert.NotEqual(t, rootBefore, tree.GetRootPageId())
	assert.Equal(t, 3, treeDepth(t, tree, bpm))

	for v := int32(1); v <= 16; v++ {
		rids, err := tree.GetValue(intKey(km, v), nil)
		require.NoError(t, err)
		require.Len(t, rids, 1, "key %d", v)
		assert.Equal(t, ridFor(v), rids[0])
	}
	validateTree(t, tree, bpm)
	assert.True(t, tree.Check())

	require.NoError(t, tree.Destroy())
	assert.True(t, tree.IsEmpty())
	// Only the two reserved pages stay allocated.
	assert.Equal(t, 2, dm.AllocatedPages())
	assert.True(t, tree.Check())
}

func TestBPlusTreeRemoveEverything(t *testing.T) {
	tree, bpm, dm := newTestTree(t, 3, 3)
	km := tree.GetKeyManager()

	// A fixed permutation exercises splits and merges at every level.
	const n = 40
	for i := 0; i < n; i++ {
		v := int32((i*17)%n + 1)
		require.NoError(t, tree.Insert(intKey(km, v), ridFor(v), nil))
	}
	validateTree(t, tree, bpm)
	assert.True(t, tree.Check())

	// Removing an absent key is a no-op.
	require.NoError(t, tree.Remove(intKey(km, 999), nil))

	for i := 0; i < n; i++ {
		v := int32((i*23)%n + 1)
		require.NoError(t, tree.Remove(intKey(km, v), nil))
		rids, err := tree.GetValue(intKey(km, v), nil)
		require.NoError(t, err)
		assert.Empty(t, rids, "key %d should be gone", v)
	}

	assert.True(t, tree.IsEmpty())
	assert.Equal(t, 2, dm.AllocatedPages())
	assert.True(t, tree.Check())
}

func TestBPlusTreeKeyOrderInvariant(t *testing.T) {
	tree, bpm, _ := newTestTree(t, 3, 3)
	km := tree.GetKeyManager()

	const n = 60
	for i := 0; i < n; i++ {
		v := int32((i*13)%n + 1)
		require.NoError(t, tree.Insert(intKey(km, v), ridFor(v), nil))
	}
	for i := 0; i < n; i += 3 {
		require.NoError(t, tree.Remove(intKey(km, int32(i+1)), nil))
	}
	validateTree(t, tree, bpm)

	it, err := tree.Begin()
	require.NoError(t, err)
	prev := int32(-1 << 30)
	count := 0
	for it.Valid() {
		v := decodeInt(km, it.Key())
		assert.Greater(t, v, prev, "keys must be strictly ascending")
		prev = v
		count++
		require.NoError(t, it.Next())
	}
	it.Close()
	assert.Equal(t, n-n/3, count)
	assert.True(t, tree.Check())
}

func TestBPlusTreeRootPersistsInDirectory(t *testing.T) {
	tree, bpm, _ := newTestTree(t, 4, 4)
	km := tree.GetKeyManager()

	for _, v := range []int32{1, 2, 3} {
		require.NoError(t, tree.Insert(intKey(km, v), ridFor(v), nil))
	}

	// A second handle over the same pool resolves the root through the
	// index-roots directory.
	reopened, err := NewBPlusTree(0, bpm, km, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, tree.GetRootPageId(), reopened.GetRootPageId())

	rids, err := reopened.GetValue(intKey(km, 2), nil)
	require.NoError(t, err)
	require.Len(t, rids, 1)
	assert.Equal(t, ridFor(2), rids[0])
}
