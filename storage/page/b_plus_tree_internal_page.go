package page

import (
	"github.com/juju/errors"
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/util"
)

// BPlusTreeInternalPage lays out (key, child_page_id) pairs after the common
// header. key[0] is a dummy never consulted by comparisons: child[i] holds
// keys in [key[i], key[i+1]) with key[0] = -inf and key[size] = +inf.
type BPlusTreeInternalPage struct {
	BPlusTreePage
}

func AsInternalPage(p *Page) *BPlusTreeInternalPage {
	return &BPlusTreeInternalPage{BPlusTreePage{data: p.GetData()}}
}

func (n *BPlusTreeInternalPage) Init(pageID, parentID common.PageID, keySize, maxSize int) {
	n.SetPageType(InternalPageType)
	n.SetPageId(pageID)
	n.SetParentPageId(parentID)
	n.SetSize(0)
	n.SetMaxSize(maxSize)
	n.SetKeySize(keySize)
}

func (n *BPlusTreeInternalPage) pairSize() int {
	return n.GetKeySize() + 4
}

func (n *BPlusTreeInternalPage) pairOffset(index int) int {
	return BPlusTreePageHeaderSize + index*n.pairSize()
}

func (n *BPlusTreeInternalPage) KeyAt(index int) []byte {
	off := n.pairOffset(index)
	return n.data[off : off+n.GetKeySize()]
}

func (n *BPlusTreeInternalPage) SetKeyAt(index int, key []byte) {
	copy(n.KeyAt(index), key)
}

func (n *BPlusTreeInternalPage) ValueAt(index int) common.PageID {
	off := n.pairOffset(index) + n.GetKeySize()
	return common.PageID(util.GetUB4(n.data, off))
}

func (n *BPlusTreeInternalPage) SetValueAt(index int, pid common.PageID) {
	off := n.pairOffset(index) + n.GetKeySize()
	util.PutUB4(n.data, off, uint32(pid))
}

// ValueIndex locates the position of a child page id, -1 when absent.
func (n *BPlusTreeInternalPage) ValueIndex(pid common.PageID) int {
	for i := 0; i < n.GetSize(); i++ {
		if n.ValueAt(i) == pid {
			return i
		}
	}
	return -1
}

// Lookup returns the child to descend into for key: the child at the largest
// i with key[i] <= key, treating key[0] as minus infinity.
func (n *BPlusTreeInternalPage) Lookup(key []byte, cmp KeyComparator) common.PageID {
	lo, hi := 1, n.GetSize()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp.CompareKeys(n.KeyAt(mid), key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return n.ValueAt(lo - 1)
}

// PopulateNewRoot seeds a fresh root after the old root split.
func (n *BPlusTreeInternalPage) PopulateNewRoot(oldChild common.PageID, key []byte, newChild common.PageID) {
	n.SetValueAt(0, oldChild)
	n.SetKeyAt(1, key)
	n.SetValueAt(1, newChild)
	n.SetSize(2)
}

// InsertNodeAfter places (key, newChild) right after the pair holding
// oldChild and returns the new size.
func (n *BPlusTreeInternalPage) InsertNodeAfter(oldChild common.PageID, key []byte, newChild common.PageID) int {
	oldLocation := n.ValueIndex(oldChild)
	n.shiftRight(oldLocation + 1)
	n.SetKeyAt(oldLocation+1, key)
	n.SetValueAt(oldLocation+1, newChild)
	n.IncreaseSize(1)
	return n.GetSize()
}

// Remove closes the hole at index, keeping pairs contiguous.
func (n *BPlusTreeInternalPage) Remove(index int) {
	if index < 0 || index >= n.GetSize() {
		return
	}
	n.shiftLeft(index)
	n.IncreaseSize(-1)
}

// RemoveAndReturnOnlyChild collapses a size-one root.
func (n *BPlusTreeInternalPage) RemoveAndReturnOnlyChild() common.PageID {
	child := n.ValueAt(0)
	n.SetSize(0)
	return child
}

// MoveHalfTo transfers the upper pairs to an empty new sibling, keeping
// min_size here. The first moved key lands in the recipient's dummy slot;
// the caller promotes it to the parent. Moved children are re-parented
// through the buffer pool.
func (n *BPlusTreeInternalPage) MoveHalfTo(recipient *BPlusTreeInternalPage, bpm PageFetcher) error {
	size := n.GetSize()
	start := n.GetMinSize()
	if err := n.copyRangeTo(recipient, start, size, bpm); err != nil {
		return errors.Trace(err)
	}
	n.SetSize(start)
	return nil
}

// MoveAllTo merges every pair into recipient. The parent's separator comes
// down as the dummy slot of the moved run.
func (n *BPlusTreeInternalPage) MoveAllTo(recipient *BPlusTreeInternalPage, middleKey []byte, bpm PageFetcher) error {
	n.SetKeyAt(0, middleKey)
	if err := n.copyRangeTo(recipient, 0, n.GetSize(), bpm); err != nil {
		return errors.Trace(err)
	}
	n.SetSize(0)
	return nil
}

// MoveFirstToEndOf transfers exactly one pair: the parent's middle key comes
// down as the separator before this page's first child, appended to
// recipient. This page's next key becomes its new dummy.
func (n *BPlusTreeInternalPage) MoveFirstToEndOf(recipient *BPlusTreeInternalPage, middleKey []byte, bpm PageFetcher) error {
	if err := recipient.CopyLastFrom(middleKey, n.ValueAt(0), bpm); err != nil {
		return errors.Trace(err)
	}
	n.shiftLeft(0)
	n.IncreaseSize(-1)
	return nil
}

// CopyLastFrom appends one pair and adopts its child.
func (n *BPlusTreeInternalPage) CopyLastFrom(key []byte, child common.PageID, bpm PageFetcher) error {
	size := n.GetSize()
	n.SetKeyAt(size, key)
	n.SetValueAt(size, child)
	n.IncreaseSize(1)
	return n.adoptChild(child, bpm)
}

// MoveLastToFrontOf transfers exactly one pair: this page's last child is
// prepended to recipient, with the parent's middle key pulled down into
// recipient's old dummy slot.
func (n *BPlusTreeInternalPage) MoveLastToFrontOf(recipient *BPlusTreeInternalPage, middleKey []byte, bpm PageFetcher) error {
	last := n.GetSize() - 1
	if err := recipient.CopyFirstFrom(n.ValueAt(last), middleKey, bpm); err != nil {
		return errors.Trace(err)
	}
	n.IncreaseSize(-1)
	return nil
}

// CopyFirstFrom prepends a child, placing middleKey as the separator between
// it and the former first child.
func (n *BPlusTreeInternalPage) CopyFirstFrom(child common.PageID, middleKey []byte, bpm PageFetcher) error {
	n.shiftRight(0)
	n.SetValueAt(0, child)
	n.SetKeyAt(1, middleKey)
	n.IncreaseSize(1)
	return n.adoptChild(child, bpm)
}

func (n *BPlusTreeInternalPage) copyRangeTo(recipient *BPlusTreeInternalPage, from, to int, bpm PageFetcher) error {
	destIndex := recipient.GetSize()
	src := n.data[n.pairOffset(from):n.pairOffset(to)]
	copy(recipient.data[recipient.pairOffset(destIndex):], src)
	recipient.IncreaseSize(to - from)
	for i := destIndex; i < destIndex+(to-from); i++ {
		if err := recipient.adoptChild(recipient.ValueAt(i), bpm); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// adoptChild rewrites the child's parent pointer through the buffer pool.
func (n *BPlusTreeInternalPage) adoptChild(child common.PageID, bpm PageFetcher) error {
	childPage, err := bpm.FetchPage(child)
	if err != nil {
		return errors.Trace(err)
	}
	AsBPlusTreePage(childPage).SetParentPageId(n.GetPageId())
	bpm.UnpinPage(child, true)
	return nil
}

func (n *BPlusTreeInternalPage) shiftRight(index int) {
	start := n.pairOffset(index)
	end := n.pairOffset(n.GetSize())
	copy(n.data[start+n.pairSize():end+n.pairSize()], n.data[start:end])
}

func (n *BPlusTreeInternalPage) shiftLeft(index int) {
	start := n.pairOffset(index)
	end := n.pairOffset(n.GetSize())
	copy(n.data[start:], n.data[start+n.pairSize():end])
}
