package page

import (
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/util"
)

// IndexRootsPage is the reserved page 0: a directory of
// (index_id, root_page_id) records consulted when a tree handle is opened
// and rewritten on every root change. Records are found by linear search.
type IndexRootsPage struct {
	data []byte
}

const (
	rootsCountOffset  = 0
	rootsRecordOffset = 4
	rootsRecordSize   = 8

	// MaxIndexRoots bounds the directory by the page size.
	MaxIndexRoots = (common.PageSize - rootsRecordOffset) / rootsRecordSize
)

func AsIndexRootsPage(p *Page) *IndexRootsPage {
	return &IndexRootsPage{data: p.GetData()}
}

func (ir *IndexRootsPage) GetCount() int {
	return int(util.GetUB4(ir.data, rootsCountOffset))
}

func (ir *IndexRootsPage) setCount(count int) {
	util.PutUB4(ir.data, rootsCountOffset, uint32(count))
}

func (ir *IndexRootsPage) indexIDAt(i int) common.IndexID {
	return common.IndexID(util.GetUB4(ir.data, rootsRecordOffset+i*rootsRecordSize))
}

func (ir *IndexRootsPage) rootIDAt(i int) common.PageID {
	return common.PageID(util.GetUB4(ir.data, rootsRecordOffset+i*rootsRecordSize+4))
}

func (ir *IndexRootsPage) find(indexID common.IndexID) int {
	for i := 0; i < ir.GetCount(); i++ {
		if ir.indexIDAt(i) == indexID {
			return i
		}
	}
	return -1
}

// GetRootId looks up the recorded root for indexID.
func (ir *IndexRootsPage) GetRootId(indexID common.IndexID) (common.PageID, bool) {
	i := ir.find(indexID)
	if i < 0 {
		return common.InvalidPageID, false
	}
	return ir.rootIDAt(i), true
}

// Insert records a new index; fails when present or the page is full.
func (ir *IndexRootsPage) Insert(indexID common.IndexID, rootID common.PageID) bool {
	if ir.find(indexID) >= 0 {
		return false
	}
	count := ir.GetCount()
	if count >= MaxIndexRoots {
		return false
	}
	off := rootsRecordOffset + count*rootsRecordSize
	util.PutUB4(ir.data, off, uint32(indexID))
	util.PutUB4(ir.data, off+4, uint32(rootID))
	ir.setCount(count + 1)
	return true
}

// Update rewrites the root for an existing record.
func (ir *IndexRootsPage) Update(indexID common.IndexID, rootID common.PageID) bool {
	i := ir.find(indexID)
	if i < 0 {
		return false
	}
	util.PutUB4(ir.data, rootsRecordOffset+i*rootsRecordSize+4, uint32(rootID))
	return true
}

// Delete drops the record, compacting the tail.
func (ir *IndexRootsPage) Delete(indexID common.IndexID) bool {
	i := ir.find(indexID)
	if i < 0 {
		return false
	}
	count := ir.GetCount()
	start := rootsRecordOffset + i*rootsRecordSize
	end := rootsRecordOffset + count*rootsRecordSize
	copy(ir.data[start:], ir.data[start+rootsRecordSize:end])
	ir.setCount(count - 1)
	return true
}
