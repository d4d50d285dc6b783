package page

import (
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/record"
	"github.com/zjuerme/MiniSQL/util"
)

// KeyComparator orders two packed keys.
type KeyComparator interface {
	CompareKeys(a, b []byte) int
}

// BPlusTreeLeafPage lays out sorted (key, rid) pairs after the leaf header.
// Keys are unique and strictly ascending; leaves link forward through
// next_page_id.
type BPlusTreeLeafPage struct {
	BPlusTreePage
}

func AsLeafPage(p *Page) *BPlusTreeLeafPage {
	return &BPlusTreeLeafPage{BPlusTreePage{data: p.GetData()}}
}

func (l *BPlusTreeLeafPage) Init(pageID, parentID common.PageID, keySize, maxSize int) {
	l.SetPageType(LeafPageType)
	l.SetPageId(pageID)
	l.SetParentPageId(parentID)
	l.SetSize(0)
	l.SetMaxSize(maxSize)
	l.SetKeySize(keySize)
	l.SetNextPageId(common.InvalidPageID)
}

func (l *BPlusTreeLeafPage) GetNextPageId() common.PageID {
	return common.PageID(util.GetUB4(l.data, offNextPageID))
}

func (l *BPlusTreeLeafPage) SetNextPageId(pid common.PageID) {
	util.PutUB4(l.data, offNextPageID, uint32(pid))
}

func (l *BPlusTreeLeafPage) pairSize() int {
	return l.GetKeySize() + record.RowIdSize
}

func (l *BPlusTreeLeafPage) pairOffset(index int) int {
	return LeafPageHeaderSize + index*l.pairSize()
}

// KeyAt returns a view of the key bytes at index.
func (l *BPlusTreeLeafPage) KeyAt(index int) []byte {
	off := l.pairOffset(index)
	return l.data[off : off+l.GetKeySize()]
}

func (l *BPlusTreeLeafPage) SetKeyAt(index int, key []byte) {
	copy(l.KeyAt(index), key)
}

func (l *BPlusTreeLeafPage) RidAt(index int) record.RowId {
	off := l.pairOffset(index) + l.GetKeySize()
	return record.NewRowIdFromInt64(util.GetUB8(l.data, off))
}

func (l *BPlusTreeLeafPage) SetRidAt(index int, rid record.RowId) {
	off := l.pairOffset(index) + l.GetKeySize()
	util.PutUB8(l.data, off, rid.Get())
}

// KeyIndex returns the position of the first stored key >= key.
func (l *BPlusTreeLeafPage) KeyIndex(key []byte, cmp KeyComparator) int {
	lo, hi := 0, l.GetSize()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp.CompareKeys(l.KeyAt(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Lookup finds the rid stored under key.
func (l *BPlusTreeLeafPage) Lookup(key []byte, cmp KeyComparator) (record.RowId, bool) {
	idx := l.KeyIndex(key, cmp)
	if idx < l.GetSize() && cmp.CompareKeys(l.KeyAt(idx), key) == 0 {
		return l.RidAt(idx), true
	}
	return record.InvalidRowId, false
}

// Insert places the pair in key order and returns the new size. The caller
// checks for duplicates beforehand.
func (l *BPlusTreeLeafPage) Insert(key []byte, rid record.RowId, cmp KeyComparator) int {
	idx := l.KeyIndex(key, cmp)
	l.shiftRight(idx)
	l.SetKeyAt(idx, key)
	l.SetRidAt(idx, rid)
	l.IncreaseSize(1)
	return l.GetSize()
}

// RemoveAndDeleteRecord removes key if present, returning the size after and
// whether anything was removed.
func (l *BPlusTreeLeafPage) RemoveAndDeleteRecord(key []byte, cmp KeyComparator) (int, bool) {
	idx := l.KeyIndex(key, cmp)
	if idx >= l.GetSize() || cmp.CompareKeys(l.KeyAt(idx), key) != 0 {
		return l.GetSize(), false
	}
	l.shiftLeft(idx)
	l.IncreaseSize(-1)
	return l.GetSize(), true
}

// MoveHalfTo transfers the upper half to an empty new sibling; the donor
// keeps the ceiling half so a five-entry overflow splits three/two.
func (l *BPlusTreeLeafPage) MoveHalfTo(recipient *BPlusTreeLeafPage) {
	size := l.GetSize()
	start := size - size/2
	l.copyRangeTo(recipient, start, size, recipient.GetSize())
	recipient.IncreaseSize(size - start)
	l.SetSize(start)
}

// MoveAllTo appends every pair to recipient and hands over the forward link.
func (l *BPlusTreeLeafPage) MoveAllTo(recipient *BPlusTreeLeafPage) {
	size := l.GetSize()
	l.copyRangeTo(recipient, 0, size, recipient.GetSize())
	recipient.IncreaseSize(size)
	recipient.SetNextPageId(l.GetNextPageId())
	l.SetSize(0)
}

// MoveFirstToEndOf shifts this page's first pair onto the tail of recipient.
func (l *BPlusTreeLeafPage) MoveFirstToEndOf(recipient *BPlusTreeLeafPage) {
	l.copyRangeTo(recipient, 0, 1, recipient.GetSize())
	recipient.IncreaseSize(1)
	l.shiftLeft(0)
	l.IncreaseSize(-1)
}

// MoveLastToFrontOf shifts this page's last pair onto the head of recipient.
func (l *BPlusTreeLeafPage) MoveLastToFrontOf(recipient *BPlusTreeLeafPage) {
	recipient.shiftRight(0)
	recipient.SetKeyAt(0, l.KeyAt(l.GetSize()-1))
	recipient.SetRidAt(0, l.RidAt(l.GetSize()-1))
	recipient.IncreaseSize(1)
	l.IncreaseSize(-1)
}

func (l *BPlusTreeLeafPage) copyRangeTo(recipient *BPlusTreeLeafPage, from, to, destIndex int) {
	src := l.data[l.pairOffset(from):l.pairOffset(to)]
	dst := recipient.data[recipient.pairOffset(destIndex):]
	copy(dst, src)
}

// shiftRight opens a hole at index.
func (l *BPlusTreeLeafPage) shiftRight(index int) {
	start := l.pairOffset(index)
	end := l.pairOffset(l.GetSize())
	copy(l.data[start+l.pairSize():end+l.pairSize()], l.data[start:end])
}

// shiftLeft closes the hole at index.
func (l *BPlusTreeLeafPage) shiftLeft(index int) {
	start := l.pairOffset(index)
	end := l.pairOffset(l.GetSize())
	copy(l.data[start:], l.data[start+l.pairSize():end])
}
