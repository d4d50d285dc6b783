package page

import (
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/util"
)

// TablePage is a slotted heap page: a slot directory grows down from the
// header while tuple bytes grow up from the end of the page.
//
//	next_page_id(4) | tuple_count(4) | free_space_ptr(4) | slots...
type TablePage struct {
	data []byte
}

const (
	tableNextPageOffset  = 0
	tableCountOffset     = 4
	tableFreePtrOffset   = 8
	tableSlotsOffset     = 12
	tableSlotSize        = 8
	tableSlotOffOffset   = 0
	tableSlotSizeOffset  = 4
	tableTupleCountLimit = (common.PageSize - tableSlotsOffset) / tableSlotSize
)

func AsTablePage(p *Page) *TablePage {
	return &TablePage{data: p.GetData()}
}

func (t *TablePage) Init() {
	t.SetNextPageId(common.InvalidPageID)
	t.setTupleCount(0)
	t.setFreeSpacePtr(common.PageSize)
}

func (t *TablePage) GetNextPageId() common.PageID {
	return common.PageID(util.GetUB4(t.data, tableNextPageOffset))
}

func (t *TablePage) SetNextPageId(pid common.PageID) {
	util.PutUB4(t.data, tableNextPageOffset, uint32(pid))
}

func (t *TablePage) GetTupleCount() int {
	return int(util.GetUB4(t.data, tableCountOffset))
}

func (t *TablePage) setTupleCount(count int) {
	util.PutUB4(t.data, tableCountOffset, uint32(count))
}

func (t *TablePage) freeSpacePtr() int {
	return int(util.GetUB4(t.data, tableFreePtrOffset))
}

func (t *TablePage) setFreeSpacePtr(off int) {
	util.PutUB4(t.data, tableFreePtrOffset, uint32(off))
}

func (t *TablePage) slotOffset(slot int) int {
	return tableSlotsOffset + slot*tableSlotSize
}

// FreeSpace is the gap between the slot directory and the tuple region,
// accounting for the directory entry a new tuple needs.
func (t *TablePage) FreeSpace() int {
	return t.freeSpacePtr() - t.slotOffset(t.GetTupleCount()) - tableSlotSize
}

// InsertTuple appends the serialized tuple, returning its slot.
func (t *TablePage) InsertTuple(tuple []byte) (uint32, bool) {
	if len(tuple) > t.FreeSpace() || t.GetTupleCount() >= tableTupleCountLimit {
		return 0, false
	}
	slot := t.GetTupleCount()
	newFreePtr := t.freeSpacePtr() - len(tuple)
	copy(t.data[newFreePtr:], tuple)
	util.PutUB4(t.data, t.slotOffset(slot)+tableSlotOffOffset, uint32(newFreePtr))
	util.PutUB4(t.data, t.slotOffset(slot)+tableSlotSizeOffset, uint32(len(tuple)))
	t.setFreeSpacePtr(newFreePtr)
	t.setTupleCount(slot + 1)
	return uint32(slot), true
}

// GetTuple returns a view of the tuple bytes at slot.
func (t *TablePage) GetTuple(slot uint32) ([]byte, bool) {
	if int(slot) >= t.GetTupleCount() {
		return nil, false
	}
	off := int(util.GetUB4(t.data, t.slotOffset(int(slot))+tableSlotOffOffset))
	size := int(util.GetUB4(t.data, t.slotOffset(int(slot))+tableSlotSizeOffset))
	if size == 0 {
		return nil, false
	}
	return t.data[off : off+size], true
}
