package index

import (
	"github.com/juju/errors"
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/record"
	"github.com/zjuerme/MiniSQL/storage/buffer"
	"github.com/zjuerme/MiniSQL/storage/page"
)

// IndexIterator walks leaf pairs in key order, following the forward leaf
// links. The current leaf stays pinned between calls; Close releases it.
// Iterators are only valid between tree mutations.
type IndexIterator struct {
	bpm         *buffer.BufferPoolManager
	currentPage *page.Page
	leaf        *page.BPlusTreeLeafPage
	itemIndex   int
}

func newIndexIterator(bpm *buffer.BufferPoolManager, leafPage *page.Page, itemIndex int) *IndexIterator {
	it := &IndexIterator{bpm: bpm}
	if leafPage != nil {
		it.currentPage = leafPage
		it.leaf = page.AsLeafPage(leafPage)
		it.itemIndex = itemIndex
	}
	return it
}

// Valid reports whether the iterator is positioned on a pair.
func (it *IndexIterator) Valid() bool {
	return it.currentPage != nil
}

// Key copies the current key bytes.
func (it *IndexIterator) Key() []byte {
	return cloneKey(it.leaf.KeyAt(it.itemIndex))
}

// RowId returns the current rid.
func (it *IndexIterator) RowId() record.RowId {
	return it.leaf.RidAt(it.itemIndex)
}

// Next advances one pair, crossing into the next leaf when the current one
// is exhausted.
func (it *IndexIterator) Next() error {
	if !it.Valid() {
		return nil
	}
	it.itemIndex++
	if it.itemIndex < it.leaf.GetSize() {
		return nil
	}

	nextID := it.leaf.GetNextPageId()
	it.bpm.UnpinPage(it.currentPage.GetPageID(), false)
	it.currentPage = nil
	it.leaf = nil
	it.itemIndex = 0
	if nextID == common.InvalidPageID {
		return nil
	}

	nextPage, err := it.bpm.FetchPage(nextID)
	if err != nil {
		return errors.Trace(err)
	}
	it.currentPage = nextPage
	it.leaf = page.AsLeafPage(nextPage)
	return nil
}

// Close releases the pinned leaf; safe to call on an exhausted iterator.
func (it *IndexIterator) Close() {
	if it.currentPage != nil {
		it.bpm.UnpinPage(it.currentPage.GetPageID(), false)
		it.currentPage = nil
		it.leaf = nil
	}
}

// Begin positions at the first pair of the leftmost leaf.
func (t *BPlusTree) Begin() (*IndexIterator, error) {
	if t.IsEmpty() {
		return newIndexIterator(t.bpm, nil, 0), nil
	}
	leafPage, err := t.findLeafPage(nil, true)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if page.AsLeafPage(leafPage).GetSize() == 0 {
		t.bpm.UnpinPage(leafPage.GetPageID(), false)
		return newIndexIterator(t.bpm, nil, 0), nil
	}
	return newIndexIterator(t.bpm, leafPage, 0), nil
}

// BeginAt positions at the first stored key >= key, so range scans work
// whether or not key itself is present.
func (t *BPlusTree) BeginAt(key []byte) (*IndexIterator, error) {
	if t.IsEmpty() {
		return newIndexIterator(t.bpm, nil, 0), nil
	}
	leafPage, err := t.findLeafPage(key, false)
	if err != nil {
		return nil, errors.Trace(err)
	}
	leaf := page.AsLeafPage(leafPage)
	index := leaf.KeyIndex(key, t.km)
	if index < leaf.GetSize() {
		return newIndexIterator(t.bpm, leafPage, index), nil
	}

	// Every key in this leaf is smaller; resume at the next leaf.
	nextID := leaf.GetNextPageId()
	t.bpm.UnpinPage(leafPage.GetPageID(), false)
	if nextID == common.InvalidPageID {
		return newIndexIterator(t.bpm, nil, 0), nil
	}
	nextPage, err := t.bpm.FetchPage(nextID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return newIndexIterator(t.bpm, nextPage, 0), nil
}
