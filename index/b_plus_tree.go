package index

import (
	"github.com/juju/errors"
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/logger"
	"github.com/zjuerme/MiniSQL/record"
	"github.com/zjuerme/MiniSQL/storage/buffer"
	"github.com/zjuerme/MiniSQL/storage/page"
)

// UndefinedSize asks the constructor to derive node capacities from the page
// size and key width.
const UndefinedSize = -1

// BPlusTree is an on-disk B+ tree whose nodes are buffer-pool pages. Every
// structural mutation is a sequence of pin/modify/unpin steps; after any
// top-level operation returns, all fetched pages have been unpinned.
type BPlusTree struct {
	indexID         common.IndexID
	bpm             *buffer.BufferPoolManager
	km              record.KeyManager
	leafMaxSize     int
	internalMaxSize int
	rootPageID      common.PageID
}

// NewBPlusTree opens the tree handle for indexID, reading the current root
// from the index-roots directory. Pass UndefinedSize to derive node
// capacities.
func NewBPlusTree(indexID common.IndexID, bpm *buffer.BufferPoolManager, km record.KeyManager,
	leafMaxSize, internalMaxSize int) (*BPlusTree, error) {
	t := &BPlusTree{
		indexID:         indexID,
		bpm:             bpm,
		km:              km,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		rootPageID:      common.InvalidPageID,
	}
	if t.leafMaxSize == UndefinedSize {
		t.leafMaxSize = (common.PageSize-page.LeafPageHeaderSize)/(km.GetKeySize()+record.RowIdSize) - 1
	}
	if t.internalMaxSize == UndefinedSize {
		t.internalMaxSize = (common.PageSize-page.BPlusTreePageHeaderSize)/(km.GetKeySize()+4) - 1
	}

	rootsPage, err := bpm.FetchPage(common.IndexRootsPageID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if root, ok := page.AsIndexRootsPage(rootsPage).GetRootId(indexID); ok {
		t.rootPageID = root
	}
	bpm.UnpinPage(common.IndexRootsPageID, false)
	return t, nil
}

func (t *BPlusTree) IsEmpty() bool {
	return t.rootPageID == common.InvalidPageID
}

// GetRootPageId exposes the live root for diagnostics and tests.
func (t *BPlusTree) GetRootPageId() common.PageID {
	return t.rootPageID
}

// GetKeyManager returns the key codec the tree compares with.
func (t *BPlusTree) GetKeyManager() record.KeyManager {
	return t.km
}

/*****************************************************************************
 * SEARCH
 *****************************************************************************/

// GetValue returns the rids stored under key: at most one, keys being
// unique. txn is threaded for collaborators above this layer and unused.
func (t *BPlusTree) GetValue(key []byte, txn *common.Transaction) ([]record.RowId, error) {
	if t.IsEmpty() {
		return nil, nil
	}
	leafPage, err := t.findLeafPage(key, false)
	if err != nil {
		return nil, errors.Trace(err)
	}
	leaf := page.AsLeafPage(leafPage)
	rid, found := leaf.Lookup(key, t.km)
	t.bpm.UnpinPage(leafPage.GetPageID(), false)
	if !found {
		return nil, nil
	}
	return []record.RowId{rid}, nil
}

/*****************************************************************************
 * INSERTION
 *****************************************************************************/

// Insert adds a unique key. Inserting a present key fails with
// ErrDuplicateKey and leaves the tree unchanged.
func (t *BPlusTree) Insert(key []byte, rid record.RowId, txn *common.Transaction) error {
	if t.IsEmpty() {
		return errors.Trace(t.startNewTree(key, rid))
	}
	return errors.Trace(t.insertIntoLeaf(key, rid))
}

func (t *BPlusTree) startNewTree(key []byte, rid record.RowId) error {
	newPage, err := t.bpm.NewPage()
	if err != nil {
		return errors.Trace(err)
	}
	leaf := page.AsLeafPage(newPage)
	leaf.Init(newPage.GetPageID(), common.InvalidPageID, t.km.GetKeySize(), t.leafMaxSize)
	leaf.Insert(key, rid, t.km)
	t.bpm.UnpinPage(newPage.GetPageID(), true)

	t.rootPageID = newPage.GetPageID()
	return errors.Trace(t.updateRootPageId(true))
}

func (t *BPlusTree) insertIntoLeaf(key []byte, rid record.RowId) error {
	leafPage, err := t.findLeafPage(key, false)
	if err != nil {
		return errors.Trace(err)
	}
	leaf := page.AsLeafPage(leafPage)

	if _, found := leaf.Lookup(key, t.km); found {
		t.bpm.UnpinPage(leafPage.GetPageID(), false)
		return errors.Trace(common.ErrDuplicateKey)
	}

	if leaf.Insert(key, rid, t.km) <= leaf.GetMaxSize() {
		t.bpm.UnpinPage(leafPage.GetPageID(), true)
		return nil
	}

	// Overflow: split and push the new sibling's first key to the parent.
	newLeafPage, err := t.splitLeaf(leafPage)
	if err != nil {
		t.bpm.UnpinPage(leafPage.GetPageID(), true)
		return errors.Trace(err)
	}
	sepKey := cloneKey(page.AsLeafPage(newLeafPage).KeyAt(0))
	err = t.insertIntoParent(leafPage, sepKey, newLeafPage)
	t.bpm.UnpinPage(leafPage.GetPageID(), true)
	t.bpm.UnpinPage(newLeafPage.GetPageID(), true)
	return errors.Trace(err)
}

// splitLeaf moves the upper half of the overflowing leaf into a fresh pinned
// sibling and links it into the leaf chain.
func (t *BPlusTree) splitLeaf(leafPage *page.Page) (*page.Page, error) {
	newPage, err := t.bpm.NewPage()
	if err != nil {
		return nil, errors.Trace(err)
	}
	leaf := page.AsLeafPage(leafPage)
	newLeaf := page.AsLeafPage(newPage)
	newLeaf.Init(newPage.GetPageID(), leaf.GetParentPageId(), t.km.GetKeySize(), t.leafMaxSize)
	newLeaf.SetNextPageId(leaf.GetNextPageId())
	leaf.SetNextPageId(newPage.GetPageID())
	leaf.MoveHalfTo(newLeaf)
	return newPage, nil
}

// splitInternal moves the upper half of an overflowing internal node into a
// fresh pinned sibling. The promoted separator ends up in the sibling's
// dummy key slot.
func (t *BPlusTree) splitInternal(nodePage *page.Page) (*page.Page, error) {
	newPage, err := t.bpm.NewPage()
	if err != nil {
		return nil, errors.Trace(err)
	}
	node := page.AsInternalPage(nodePage)
	newNode := page.AsInternalPage(newPage)
	newNode.Init(newPage.GetPageID(), node.GetParentPageId(), t.km.GetKeySize(), t.internalMaxSize)
	if err := node.MoveHalfTo(newNode, t.bpm); err != nil {
		t.bpm.UnpinPage(newPage.GetPageID(), true)
		return nil, errors.Trace(err)
	}
	return newPage, nil
}

// insertIntoParent records the split of oldPage into (oldPage, newPage)
// separated by sepKey. Ownership of oldPage and newPage pins stays with the
// caller; pages fetched or created here are unpinned here.
func (t *BPlusTree) insertIntoParent(oldPage *page.Page, sepKey []byte, newPage *page.Page) error {
	oldNode := page.AsBPlusTreePage(oldPage)
	newNode := page.AsBPlusTreePage(newPage)

	if oldNode.IsRootPage() {
		rootPage, err := t.bpm.NewPage()
		if err != nil {
			return errors.Trace(err)
		}
		newRoot := page.AsInternalPage(rootPage)
		newRoot.Init(rootPage.GetPageID(), common.InvalidPageID, t.km.GetKeySize(), t.internalMaxSize)
		newRoot.PopulateNewRoot(oldNode.GetPageId(), sepKey, newNode.GetPageId())
		oldNode.SetParentPageId(rootPage.GetPageID())
		newNode.SetParentPageId(rootPage.GetPageID())
		t.rootPageID = rootPage.GetPageID()
		err = t.updateRootPageId(false)
		t.bpm.UnpinPage(rootPage.GetPageID(), true)
		return errors.Trace(err)
	}

	parentPage, err := t.bpm.FetchPage(oldNode.GetParentPageId())
	if err != nil {
		return errors.Trace(err)
	}
	parent := page.AsInternalPage(parentPage)
	newNode.SetParentPageId(parent.GetPageId())
	if parent.InsertNodeAfter(oldNode.GetPageId(), sepKey, newNode.GetPageId()) <= parent.GetMaxSize() {
		t.bpm.UnpinPage(parentPage.GetPageID(), true)
		return nil
	}

	// Parent overflow cascades upward.
	newSiblingPage, err := t.splitInternal(parentPage)
	if err != nil {
		t.bpm.UnpinPage(parentPage.GetPageID(), true)
		return errors.Trace(err)
	}
	promoted := cloneKey(page.AsInternalPage(newSiblingPage).KeyAt(0))
	err = t.insertIntoParent(parentPage, promoted, newSiblingPage)
	t.bpm.UnpinPage(newSiblingPage.GetPageID(), true)
	t.bpm.UnpinPage(parentPage.GetPageID(), true)
	return errors.Trace(err)
}

/*****************************************************************************
 * REMOVE
 *****************************************************************************/

// Remove deletes key if present. Removing an absent key is a no-op.
func (t *BPlusTree) Remove(key []byte, txn *common.Transaction) error {
	if t.IsEmpty() {
		return nil
	}
	leafPage, err := t.findLeafPage(key, false)
	if err != nil {
		return errors.Trace(err)
	}
	leaf := page.AsLeafPage(leafPage)
	index := leaf.KeyIndex(key, t.km)
	sizeAfter, removed := leaf.RemoveAndDeleteRecord(key, t.km)
	if !removed {
		t.bpm.UnpinPage(leafPage.GetPageID(), false)
		return nil
	}

	// Removing slot 0 invalidates the separator some ancestor carries for
	// this leaf; rewrite it before rebalancing.
	if index == 0 && !leaf.IsRootPage() && sizeAfter > 0 {
		if err := t.updateAncestorSeparator(leaf); err != nil {
			t.bpm.UnpinPage(leafPage.GetPageID(), true)
			return errors.Trace(err)
		}
	}

	if underflows(&leaf.BPlusTreePage) {
		return errors.Trace(t.coalesceOrRedistribute(leafPage))
	}
	t.bpm.UnpinPage(leafPage.GetPageID(), true)
	return nil
}

// underflows is the rebalance trigger after a deletion: size <= max_size/2.
// For an even max_size that is min_size itself, one entry before the
// structural minimum is crossed; for an odd max_size it is min_size-1, the
// first size below it.
func underflows(n *page.BPlusTreePage) bool {
	return n.GetSize() <= n.GetMaxSize()/2
}

// updateAncestorSeparator walks the parent chain until it finds the ancestor
// where this subtree is not the leftmost child, and rewrites that separator
// with the leaf's new first key.
func (t *BPlusTree) updateAncestorSeparator(leaf *page.BPlusTreeLeafPage) error {
	childID := leaf.GetPageId()
	parentID := leaf.GetParentPageId()
	for parentID != common.InvalidPageID {
		parentPage, err := t.bpm.FetchPage(parentID)
		if err != nil {
			return errors.Trace(err)
		}
		parent := page.AsInternalPage(parentPage)
		index := parent.ValueIndex(childID)
		if index > 0 {
			parent.SetKeyAt(index, leaf.KeyAt(0))
			t.bpm.UnpinPage(parentID, true)
			return nil
		}
		childID = parentID
		parentID = parent.GetParentPageId()
		t.bpm.UnpinPage(parent.GetPageId(), false)
	}
	return nil
}

// coalesceOrRedistribute restores the size bound on an underflowing node.
// Takes ownership of the nodePage pin.
func (t *BPlusTree) coalesceOrRedistribute(nodePage *page.Page) error {
	node := page.AsBPlusTreePage(nodePage)
	if node.IsRootPage() {
		return errors.Trace(t.adjustRoot(nodePage))
	}

	parentPage, err := t.bpm.FetchPage(node.GetParentPageId())
	if err != nil {
		t.bpm.UnpinPage(nodePage.GetPageID(), true)
		return errors.Trace(err)
	}
	parent := page.AsInternalPage(parentPage)
	nodeIndex := parent.ValueIndex(node.GetPageId())

	// Left sibling by default; right sibling only for the leftmost child.
	siblingIndex := nodeIndex - 1
	if nodeIndex == 0 {
		siblingIndex = 1
	}
	siblingPage, err := t.bpm.FetchPage(parent.ValueAt(siblingIndex))
	if err != nil {
		t.bpm.UnpinPage(parentPage.GetPageID(), true)
		t.bpm.UnpinPage(nodePage.GetPageID(), true)
		return errors.Trace(err)
	}
	sibling := page.AsBPlusTreePage(siblingPage)

	if node.GetSize()+sibling.GetSize() > node.GetMaxSize() {
		err = t.redistribute(siblingPage, nodePage, parent, nodeIndex)
		t.bpm.UnpinPage(siblingPage.GetPageID(), true)
		t.bpm.UnpinPage(nodePage.GetPageID(), true)
		t.bpm.UnpinPage(parentPage.GetPageID(), true)
		return errors.Trace(err)
	}
	return errors.Trace(t.coalesce(siblingPage, nodePage, parentPage, nodeIndex))
}

// coalesce merges right into left and removes the separator from the
// parent, then rebalances the parent if it underflowed. Owns all three
// pins.
func (t *BPlusTree) coalesce(siblingPage, nodePage, parentPage *page.Page, nodeIndex int) error {
	parent := page.AsInternalPage(parentPage)

	srcPage, dstPage := nodePage, siblingPage
	removeIndex := nodeIndex
	if nodeIndex == 0 {
		// Sibling is to the right: it merges into the node instead.
		srcPage, dstPage = siblingPage, nodePage
		removeIndex = 1
	}

	if page.AsBPlusTreePage(srcPage).IsLeafPage() {
		page.AsLeafPage(srcPage).MoveAllTo(page.AsLeafPage(dstPage))
	} else {
		middleKey := cloneKey(parent.KeyAt(removeIndex))
		if err := page.AsInternalPage(srcPage).MoveAllTo(page.AsInternalPage(dstPage), middleKey, t.bpm); err != nil {
			t.bpm.UnpinPage(srcPage.GetPageID(), true)
			t.bpm.UnpinPage(dstPage.GetPageID(), true)
			t.bpm.UnpinPage(parentPage.GetPageID(), true)
			return errors.Trace(err)
		}
	}
	parent.Remove(removeIndex)

	srcID := srcPage.GetPageID()
	t.bpm.UnpinPage(srcID, true)
	t.bpm.UnpinPage(dstPage.GetPageID(), true)
	if err := t.bpm.DeletePage(srcID); err != nil {
		t.bpm.UnpinPage(parentPage.GetPageID(), true)
		return errors.Trace(err)
	}

	if underflows(&parent.BPlusTreePage) {
		return errors.Trace(t.coalesceOrRedistribute(parentPage))
	}
	t.bpm.UnpinPage(parentPage.GetPageID(), true)
	return nil
}

// redistribute steals one pair from the sibling. Pins stay with the caller.
func (t *BPlusTree) redistribute(siblingPage, nodePage *page.Page, parent *page.BPlusTreeInternalPage, nodeIndex int) error {
	if page.AsBPlusTreePage(nodePage).IsLeafPage() {
		sibling := page.AsLeafPage(siblingPage)
		node := page.AsLeafPage(nodePage)
		if nodeIndex == 0 {
			// Right sibling: its first pair moves to our tail.
			sibling.MoveFirstToEndOf(node)
			parent.SetKeyAt(parent.ValueIndex(sibling.GetPageId()), sibling.KeyAt(0))
		} else {
			// Left sibling: its last pair moves to our head.
			sibling.MoveLastToFrontOf(node)
			parent.SetKeyAt(nodeIndex, node.KeyAt(0))
		}
		return nil
	}

	sibling := page.AsInternalPage(siblingPage)
	node := page.AsInternalPage(nodePage)
	if nodeIndex == 0 {
		siblingIndex := parent.ValueIndex(sibling.GetPageId())
		middleKey := cloneKey(parent.KeyAt(siblingIndex))
		if err := sibling.MoveFirstToEndOf(node, middleKey, t.bpm); err != nil {
			return errors.Trace(err)
		}
		parent.SetKeyAt(siblingIndex, sibling.KeyAt(0))
		return nil
	}
	middleKey := cloneKey(parent.KeyAt(nodeIndex))
	promoted := cloneKey(sibling.KeyAt(sibling.GetSize() - 1))
	if err := sibling.MoveLastToFrontOf(node, middleKey, t.bpm); err != nil {
		return errors.Trace(err)
	}
	parent.SetKeyAt(nodeIndex, promoted)
	return nil
}

// adjustRoot handles underflow at the root: an empty leaf root empties the
// tree; a single-child internal root promotes its child. Owns the root pin.
func (t *BPlusTree) adjustRoot(rootPage *page.Page) error {
	root := page.AsBPlusTreePage(rootPage)

	if root.IsLeafPage() && root.GetSize() == 0 {
		oldID := rootPage.GetPageID()
		t.rootPageID = common.InvalidPageID
		if err := t.updateRootPageId(false); err != nil {
			t.bpm.UnpinPage(oldID, true)
			return errors.Trace(err)
		}
		t.bpm.UnpinPage(oldID, true)
		return errors.Trace(t.bpm.DeletePage(oldID))
	}

	if !root.IsLeafPage() && root.GetSize() == 1 {
		oldID := rootPage.GetPageID()
		t.rootPageID = page.AsInternalPage(rootPage).RemoveAndReturnOnlyChild()
		if err := t.updateRootPageId(false); err != nil {
			t.bpm.UnpinPage(oldID, true)
			return errors.Trace(err)
		}
		newRootPage, err := t.bpm.FetchPage(t.rootPageID)
		if err != nil {
			t.bpm.UnpinPage(oldID, true)
			return errors.Trace(err)
		}
		page.AsBPlusTreePage(newRootPage).SetParentPageId(common.InvalidPageID)
		t.bpm.UnpinPage(t.rootPageID, true)
		t.bpm.UnpinPage(oldID, true)
		return errors.Trace(t.bpm.DeletePage(oldID))
	}

	t.bpm.UnpinPage(rootPage.GetPageID(), true)
	return nil
}

/*****************************************************************************
 * DESTROY
 *****************************************************************************/

// Destroy frees every page of the tree and drops its entry from the
// index-roots directory. A worklist bounds the traversal instead of
// recursion.
func (t *BPlusTree) Destroy() error {
	worklist := make([]common.PageID, 0, 8)
	if !t.IsEmpty() {
		worklist = append(worklist, t.rootPageID)
	}
	for len(worklist) > 0 {
		pid := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		nodePage, err := t.bpm.FetchPage(pid)
		if err != nil {
			return errors.Trace(err)
		}
		node := page.AsBPlusTreePage(nodePage)
		if !node.IsLeafPage() {
			internal := page.AsInternalPage(nodePage)
			for i := 0; i < internal.GetSize(); i++ {
				worklist = append(worklist, internal.ValueAt(i))
			}
		}
		t.bpm.UnpinPage(pid, false)
		if err := t.bpm.DeletePage(pid); err != nil {
			return errors.Trace(err)
		}
	}

	t.rootPageID = common.InvalidPageID
	rootsPage, err := t.bpm.FetchPage(common.IndexRootsPageID)
	if err != nil {
		return errors.Trace(err)
	}
	page.AsIndexRootsPage(rootsPage).Delete(t.indexID)
	t.bpm.UnpinPage(common.IndexRootsPageID, true)
	logger.Debugf("destroyed b+ tree of index %d", t.indexID)
	return nil
}

/*****************************************************************************
 * UTILITIES
 *****************************************************************************/

// findLeafPage descends to the leaf for key (or the leftmost leaf),
// unpinning every internal node passed. The returned leaf is pinned.
func (t *BPlusTree) findLeafPage(key []byte, leftMost bool) (*page.Page, error) {
	currentPage, err := t.bpm.FetchPage(t.rootPageID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	node := page.AsBPlusTreePage(currentPage)
	for !node.IsLeafPage() {
		internal := page.AsInternalPage(currentPage)
		var nextID common.PageID
		if leftMost {
			nextID = internal.ValueAt(0)
		} else {
			nextID = internal.Lookup(key, t.km)
		}
		nextPage, err := t.bpm.FetchPage(nextID)
		if err != nil {
			t.bpm.UnpinPage(currentPage.GetPageID(), false)
			return nil, errors.Trace(err)
		}
		t.bpm.UnpinPage(currentPage.GetPageID(), false)
		currentPage = nextPage
		node = page.AsBPlusTreePage(currentPage)
	}
	return currentPage, nil
}

// updateRootPageId mirrors the live root into the index-roots directory.
// insertRecord distinguishes the first registration from later updates.
func (t *BPlusTree) updateRootPageId(insertRecord bool) error {
	rootsPage, err := t.bpm.FetchPage(common.IndexRootsPageID)
	if err != nil {
		return errors.Trace(err)
	}
	roots := page.AsIndexRootsPage(rootsPage)
	if insertRecord {
		if !roots.Insert(t.indexID, t.rootPageID) {
			roots.Update(t.indexID, t.rootPageID)
		}
	} else {
		if !roots.Update(t.indexID, t.rootPageID) {
			roots.Insert(t.indexID, t.rootPageID)
		}
	}
	t.bpm.UnpinPage(common.IndexRootsPageID, true)
	return nil
}

// Check verifies the pin discipline after a top-level operation.
func (t *BPlusTree) Check() bool {
	allUnpinned := t.bpm.CheckAllUnpinned()
	if !allUnpinned {
		logger.Errorf("problem in page unpin")
	}
	return allUnpinned
}

func cloneKey(key []byte) []byte {
	out := make([]byte, len(key))
	copy(out, key)
	return out
}
