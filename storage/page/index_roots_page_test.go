package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjuerme/MiniSQL/common"
)

func TestIndexRootsPage(t *testing.T) {
	ir := AsIndexRootsPage(NewPage())

	_, ok := ir.GetRootId(1)
	assert.False(t, ok)

	require.True(t, ir.Insert(1, 10))
	require.True(t, ir.Insert(2, 20))
	assert.False(t, ir.Insert(1, 30), "duplicate index id")

	root, ok := ir.GetRootId(1)
	require.True(t, ok)
	assert.Equal(t, common.PageID(10), root)

	require.True(t, ir.Update(1, 42))
	root, _ = ir.GetRootId(1)
	assert.Equal(t, common.PageID(42), root)
	assert.False(t, ir.Update(9, 1), "unknown index id")

	require.True(t, ir.Delete(1))
	_, ok = ir.GetRootId(1)
	assert.False(t, ok)
	assert.Equal(t, 1, ir.GetCount())
	assert.False(t, ir.Delete(1))

	// Invalid root ids round-trip, marking empty trees.
	require.True(t, ir.Insert(3, common.InvalidPageID))
	root, ok = ir.GetRootId(3)
	require.True(t, ok)
	assert.Equal(t, common.InvalidPageID, root)
}

func TestIndexRootsPageCapacity(t *testing.T) {
	ir := AsIndexRootsPage(NewPage())
	for i := 0; i < MaxIndexRoots; i++ {
		require.True(t, ir.Insert(common.IndexID(i), common.PageID(i)))
	}
	assert.False(t, ir.Insert(common.IndexID(MaxIndexRoots), 1))
}
