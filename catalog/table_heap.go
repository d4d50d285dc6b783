package catalog

import (
	"github.com/juju/errors"
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/record"
	"github.com/zjuerme/MiniSQL/storage/buffer"
	"github.com/zjuerme/MiniSQL/storage/page"
)

// TableHeap stores a table's rows in a forward-linked chain of slotted
// pages. Insertion walks the chain first-fit, extending it at the tail.
type TableHeap struct {
	bpm         *buffer.BufferPoolManager
	schema      *record.Schema
	firstPageID common.PageID
}

// NewTableHeap creates an empty heap with one allocated page.
func NewTableHeap(bpm *buffer.BufferPoolManager, schema *record.Schema) (*TableHeap, error) {
	firstPage, err := bpm.NewPage()
	if err != nil {
		return nil, errors.Trace(err)
	}
	page.AsTablePage(firstPage).Init()
	bpm.UnpinPage(firstPage.GetPageID(), true)
	return &TableHeap{bpm: bpm, schema: schema, firstPageID: firstPage.GetPageID()}, nil
}

// OpenTableHeap reopens an existing heap at its recorded first page.
func OpenTableHeap(bpm *buffer.BufferPoolManager, firstPageID common.PageID, schema *record.Schema) *TableHeap {
	return &TableHeap{bpm: bpm, schema: schema, firstPageID: firstPageID}
}

func (h *TableHeap) FirstPageId() common.PageID {
	return h.firstPageID
}

func (h *TableHeap) GetSchema() *record.Schema {
	return h.schema
}

// InsertTuple appends the row and stamps its rid. txn is threaded for the
// layers above and unused here.
func (h *TableHeap) InsertTuple(row *record.Row, txn *common.Transaction) (record.RowId, error) {
	pid := h.firstPageID
	for {
		heapPage, err := h.bpm.FetchPage(pid)
		if err != nil {
			return record.InvalidRowId, errors.Trace(err)
		}
		tp := page.AsTablePage(heapPage)

		rid := record.RowId{PageID: pid, SlotNum: uint32(tp.GetTupleCount())}
		row.Rid = rid
		tuple, err := row.SerializeTo(nil, h.schema)
		if err != nil {
			h.bpm.UnpinPage(pid, false)
			return record.InvalidRowId, errors.Trace(err)
		}
		if len(tuple) > common.PageSize/2 {
			h.bpm.UnpinPage(pid, false)
			return record.InvalidRowId, errors.Trace(common.ErrTupleTooLarge)
		}

		if slot, ok := tp.InsertTuple(tuple); ok {
			rid.SlotNum = slot
			row.Rid = rid
			h.bpm.UnpinPage(pid, true)
			return rid, nil
		}

		next := tp.GetNextPageId()
		if next != common.InvalidPageID {
			h.bpm.UnpinPage(pid, false)
			pid = next
			continue
		}

		// Tail reached: extend the chain.
		newPage, err := h.bpm.NewPage()
		if err != nil {
			h.bpm.UnpinPage(pid, false)
			return record.InvalidRowId, errors.Trace(err)
		}
		page.AsTablePage(newPage).Init()
		tp.SetNextPageId(newPage.GetPageID())
		h.bpm.UnpinPage(pid, true)
		h.bpm.UnpinPage(newPage.GetPageID(), true)
		pid = newPage.GetPageID()
	}
}

// GetTuple reads the row at rid.
func (h *TableHeap) GetTuple(rid record.RowId, txn *common.Transaction) (*record.Row, error) {
	heapPage, err := h.bpm.FetchPage(rid.PageID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	tp := page.AsTablePage(heapPage)
	tuple, ok := tp.GetTuple(rid.SlotNum)
	if !ok {
		h.bpm.UnpinPage(rid.PageID, false)
		return nil, errors.Annotatef(common.ErrPageNotFound, "tuple %d:%d", rid.PageID, rid.SlotNum)
	}
	row := record.NewRowWithRid(rid)
	if _, err := row.DeserializeFrom(tuple, 0, h.schema); err != nil {
		h.bpm.UnpinPage(rid.PageID, false)
		return nil, errors.Trace(err)
	}
	row.Rid = rid
	h.bpm.UnpinPage(rid.PageID, false)
	return row, nil
}

// FreeHeap deletes every page in the chain.
func (h *TableHeap) FreeHeap() error {
	pid := h.firstPageID
	for pid != common.InvalidPageID {
		heapPage, err := h.bpm.FetchPage(pid)
		if err != nil {
			return errors.Trace(err)
		}
		next := page.AsTablePage(heapPage).GetNextPageId()
		h.bpm.UnpinPage(pid, false)
		if err := h.bpm.DeletePage(pid); err != nil {
			return errors.Trace(err)
		}
		pid = next
	}
	h.firstPageID = common.InvalidPageID
	return nil
}
