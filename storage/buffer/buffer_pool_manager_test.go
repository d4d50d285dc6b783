package buffer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/storage/disk"
)

func newTestPool(t *testing.T, poolSize, k int) (*BufferPoolManager, *disk.DiskManager) {
	t.Helper()
	dm, err := disk.NewDiskManager(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })
	return NewBufferPoolManager(poolSize, k, dm), dm
}

func TestBufferPoolBasicOperations(t *testing.T) {
	bpm, _ := newTestPool(t, 10, 2)

	p, err := bpm.NewPage()
	require.NoError(t, err)
	pid := p.GetPageID()
	copy(p.GetData(), []byte("hello minisql"))
	assert.True(t, bpm.UnpinPage(pid, true))

	// A second fetch hits the resident frame.
	p2, err := bpm.FetchPage(pid)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello minisql"), p2.GetData()[:13])
	assert.True(t, bpm.UnpinPage(pid, false))

	// Double unpin reports failure.
	assert.False(t, bpm.UnpinPage(pid, false))
	assert.True(t, bpm.CheckAllUnpinned())
}

func TestBufferPoolEvictionWritesBack(t *testing.T) {
	bpm, _ := newTestPool(t, 2, 2)

	a, err := bpm.NewPage()
	require.NoError(t, err)
	aID := a.GetPageID()
	copy(a.GetData(), []byte("dirty page"))

	b, err := bpm.NewPage()
	require.NoError(t, err)
	bpm.UnpinPage(b.GetPageID(), false)

	// Unpinned last, a sits at the front of the history list and is the
	// next victim; its dirty image must be written back first.
	bpm.UnpinPage(aID, true)

	c, err := bpm.NewPage()
	require.NoError(t, err)
	bpm.UnpinPage(c.GetPageID(), false)

	_, aResident := bpm.pageTable[aID]
	require.False(t, aResident, "a should have been evicted")

	p, err := bpm.FetchPage(aID)
	require.NoError(t, err)
	assert.Equal(t, []byte("dirty page"), p.GetData()[:10])
	bpm.UnpinPage(aID, false)
}

func TestBufferPoolAllPinnedFails(t *testing.T) {
	bpm, _ := newTestPool(t, 2, 2)

	a, err := bpm.NewPage()
	require.NoError(t, err)
	b, err := bpm.NewPage()
	require.NoError(t, err)

	_, err = bpm.NewPage()
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNoFreeFrames)

	bpm.UnpinPage(a.GetPageID(), false)
	bpm.UnpinPage(b.GetPageID(), false)

	_, err = bpm.NewPage()
	assert.NoError(t, err)
}

func TestBufferPoolLRUKVictimChoice(t *testing.T) {
	// Pool of three frames with k=2: fetch A, B, C, A, B, D. When D arrives,
	// A and B have been promoted into the cache list and C is the remaining
	// history entry, so C's frame is reclaimed.
	bpm, _ := newTestPool(t, 3, 2)

	var pids []common.PageID
	for i := 0; i < 3; i++ {
		p, err := bpm.NewPage()
		require.NoError(t, err)
		pids = append(pids, p.GetPageID())
		bpm.UnpinPage(p.GetPageID(), false)
	}
	a, b, c := pids[0], pids[1], pids[2]

	for _, pid := range []common.PageID{a, b} {
		_, err := bpm.FetchPage(pid)
		require.NoError(t, err)
		bpm.UnpinPage(pid, false)
	}

	d, err := bpm.NewPage()
	require.NoError(t, err)
	bpm.UnpinPage(d.GetPageID(), false)

	// A and B are still resident; C had to give up its frame.
	_, aResident := bpm.pageTable[a]
	_, bResident := bpm.pageTable[b]
	_, cResident := bpm.pageTable[c]
	assert.True(t, aResident)
	assert.True(t, bResident)
	assert.False(t, cResident)
	assert.True(t, bpm.CheckAllUnpinned())
}

func TestBufferPoolDeletePage(t *testing.T) {
	bpm, dm := newTestPool(t, 4, 2)

	p, err := bpm.NewPage()
	require.NoError(t, err)
	pid := p.GetPageID()

	// Pinned pages cannot be deleted.
	err = bpm.DeletePage(pid)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPagePinned)

	bpm.UnpinPage(pid, false)
	require.NoError(t, bpm.DeletePage(pid))
	assert.True(t, dm.IsPageFree(pid))
}

func TestBufferPoolFlushPage(t *testing.T) {
	bpm, dm := newTestPool(t, 4, 2)

	p, err := bpm.NewPage()
	require.NoError(t, err)
	pid := p.GetPageID()
	copy(p.GetData(), []byte("flushed"))
	bpm.UnpinPage(pid, true)
	require.NoError(t, bpm.FlushPage(pid))

	buf := make([]byte, common.PageSize)
	require.NoError(t, dm.ReadPage(pid, buf))
	assert.Equal(t, []byte("flushed"), buf[:7])
}
