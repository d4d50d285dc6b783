package record

import "github.com/zjuerme/MiniSQL/common"

// RowId addresses a tuple in the table heap: the page holding it and the
// slot inside that page. The packed 64-bit form orders rids for sorted
// intersection in the executor.
type RowId struct {
	PageID  common.PageID
	SlotNum uint32
}

var InvalidRowId = RowId{PageID: common.InvalidPageID, SlotNum: 0}

// Get returns the packed form: page id in the high 32 bits, slot in the low.
func (r RowId) Get() uint64 {
	return uint64(uint32(r.PageID))<<32 | uint64(r.SlotNum)
}

func NewRowIdFromInt64(packed uint64) RowId {
	return RowId{
		PageID:  common.PageID(int32(packed >> 32)),
		SlotNum: uint32(packed & 0xFFFFFFFF),
	}
}

// RowIdSize is the serialized width of a RowId.
const RowIdSize = 8
