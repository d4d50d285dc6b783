package page

import (
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/util"
)

// IndexPageType tags the byte-level layout of a B+ tree node.
type IndexPageType uint32

const (
	InvalidIndexPage IndexPageType = iota
	LeafPageType
	InternalPageType
)

// Common node header layout:
//
//	page_type(4) | key_size(4) | size(4) | max_size(4) | parent_page_id(4) | page_id(4)
//
// Leaf nodes append next_page_id(4).
const (
	offPageType = 0
	offKeySize  = 4
	offSize     = 8
	offMaxSize  = 12
	offParentID = 16
	offPageID   = 20

	// BPlusTreePageHeaderSize is the internal-node header size.
	BPlusTreePageHeaderSize = 24

	offNextPageID = 24

	// LeafPageHeaderSize adds the forward link.
	LeafPageHeaderSize = 28
)

// BPlusTreePage gives typed access to the shared node header. Leaf and
// internal layouts embed it.
type BPlusTreePage struct {
	data []byte
}

// AsBPlusTreePage interprets a frame as a tree node of unknown variant.
func AsBPlusTreePage(p *Page) *BPlusTreePage {
	return &BPlusTreePage{data: p.GetData()}
}

func (n *BPlusTreePage) GetPageType() IndexPageType {
	return IndexPageType(util.GetUB4(n.data, offPageType))
}

func (n *BPlusTreePage) SetPageType(t IndexPageType) {
	util.PutUB4(n.data, offPageType, uint32(t))
}

func (n *BPlusTreePage) IsLeafPage() bool {
	return n.GetPageType() == LeafPageType
}

func (n *BPlusTreePage) GetKeySize() int {
	return int(util.GetUB4(n.data, offKeySize))
}

func (n *BPlusTreePage) SetKeySize(size int) {
	util.PutUB4(n.data, offKeySize, uint32(size))
}

func (n *BPlusTreePage) GetSize() int {
	return int(util.GetUB4(n.data, offSize))
}

func (n *BPlusTreePage) SetSize(size int) {
	util.PutUB4(n.data, offSize, uint32(size))
}

func (n *BPlusTreePage) IncreaseSize(delta int) {
	n.SetSize(n.GetSize() + delta)
}

func (n *BPlusTreePage) GetMaxSize() int {
	return int(util.GetUB4(n.data, offMaxSize))
}

func (n *BPlusTreePage) SetMaxSize(size int) {
	util.PutUB4(n.data, offMaxSize, uint32(size))
}

// GetMinSize is the underflow bound; the root is exempt.
func (n *BPlusTreePage) GetMinSize() int {
	return (n.GetMaxSize() + 1) / 2
}

func (n *BPlusTreePage) GetParentPageId() common.PageID {
	return common.PageID(util.GetUB4(n.data, offParentID))
}

func (n *BPlusTreePage) SetParentPageId(pid common.PageID) {
	util.PutUB4(n.data, offParentID, uint32(pid))
}

func (n *BPlusTreePage) GetPageId() common.PageID {
	return common.PageID(util.GetUB4(n.data, offPageID))
}

func (n *BPlusTreePage) SetPageId(pid common.PageID) {
	util.PutUB4(n.data, offPageID, uint32(pid))
}

func (n *BPlusTreePage) IsRootPage() bool {
	return n.GetParentPageId() == common.InvalidPageID
}

// PageFetcher is the slice of the buffer pool the internal-page layout needs
// to re-parent moved children.
type PageFetcher interface {
	FetchPage(pid common.PageID) (*Page, error)
	UnpinPage(pid common.PageID, dirty bool) bool
}
