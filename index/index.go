package index

import (
	"github.com/juju/errors"
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/record"
	"github.com/zjuerme/MiniSQL/storage/buffer"
)

// Index is the surface the catalog and executor drive. Rows passed to
// InsertEntry/RemoveEntry are full table rows; ScanKey takes a key row
// shaped like the index's key schema.
type Index interface {
	InsertEntry(row *record.Row, rid record.RowId, txn *common.Transaction) error
	RemoveEntry(row *record.Row, txn *common.Transaction) error
	ScanKey(key *record.Row, op common.CompareOp, txn *common.Transaction) ([]record.RowId, error)
	Destroy() error
}

// BPlusTreeIndex adapts the B+ tree to the Index surface, projecting table
// rows onto the key columns. Stored keys carry the owning rid as a suffix,
// so rows repeating the indexed values coexist while tree keys stay unique.
type BPlusTreeIndex struct {
	indexID          common.IndexID
	keyColumnIndices []uint32
	km               record.KeyManager
	tree             *BPlusTree
}

// NewBPlusTreeIndex opens the index over tableSchema's columns at
// keyColumnIndices.
func NewBPlusTreeIndex(indexID common.IndexID, tableSchema *record.Schema, keyColumnIndices []uint32,
	bpm *buffer.BufferPoolManager) (*BPlusTreeIndex, error) {
	km := record.NewIndexKeyManager(tableSchema.KeySchema(keyColumnIndices))
	tree, err := NewBPlusTree(indexID, bpm, km, UndefinedSize, UndefinedSize)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &BPlusTreeIndex{
		indexID:          indexID,
		keyColumnIndices: keyColumnIndices,
		km:               km,
		tree:             tree,
	}, nil
}

func (idx *BPlusTreeIndex) GetTree() *BPlusTree {
	return idx.tree
}

func (idx *BPlusTreeIndex) GetKeySchema() *record.Schema {
	return idx.km.GetKeySchema()
}

func (idx *BPlusTreeIndex) InsertEntry(row *record.Row, rid record.RowId, txn *common.Transaction) error {
	key := idx.km.EncodeIndexKey(row.GetKeyFromRow(idx.keyColumnIndices), rid)
	return errors.Trace(idx.tree.Insert(key, rid, txn))
}

// RemoveEntry drops the entry for this exact row; the row's rid pins down
// which of several equal-valued entries goes.
func (idx *BPlusTreeIndex) RemoveEntry(row *record.Row, txn *common.Transaction) error {
	key := idx.km.EncodeIndexKey(row.GetKeyFromRow(idx.keyColumnIndices), row.Rid)
	return errors.Trace(idx.tree.Remove(key, txn))
}

func (idx *BPlusTreeIndex) Destroy() error {
	return errors.Trace(idx.tree.Destroy())
}

// ScanKey returns every rid whose indexed values satisfy stored OP probe.
// Comparisons ignore the rid suffix, so equal-valued entries group together.
// The result follows key order; the executor sorts by rid before
// intersecting.
func (idx *BPlusTreeIndex) ScanKey(keyRow *record.Row, op common.CompareOp, txn *common.Transaction) ([]record.RowId, error) {
	// The probe's zero rid suffix sorts before every stored entry sharing
	// the same column values.
	probe := idx.km.EncodeKey(keyRow)
	switch op {
	case common.CmpEqual:
		return idx.scanFrom(probe, func(cmp int) bool { return cmp == 0 }, true)
	case common.CmpGreaterEqual:
		return idx.scanFrom(probe, func(cmp int) bool { return cmp >= 0 }, false)
	case common.CmpGreater:
		return idx.scanFrom(probe, func(cmp int) bool { return cmp > 0 }, false)
	case common.CmpLess:
		return idx.scanLeading(probe, func(cmp int) bool { return cmp < 0 }, true)
	case common.CmpLessEqual:
		return idx.scanLeading(probe, func(cmp int) bool { return cmp <= 0 }, true)
	case common.CmpNotEqual:
		return idx.scanLeading(probe, func(cmp int) bool { return cmp != 0 }, false)
	}
	return nil, errors.Trace(common.ErrInvalidPredicate)
}

// scanFrom seeks to the probe and walks forward, keeping entries whose
// prefix comparison against the probe passes keep. With stopOnFail the walk
// ends at the first failing entry, which is right for contiguous matches.
func (idx *BPlusTreeIndex) scanFrom(probe []byte, keep func(int) bool, stopOnFail bool) ([]record.RowId, error) {
	it, err := idx.tree.BeginAt(probe)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer it.Close()

	var rids []record.RowId
	for it.Valid() {
		cmp := idx.km.ComparePrefixKeys(it.Key(), probe)
		if keep(cmp) {
			rids = append(rids, it.RowId())
		} else if stopOnFail {
			break
		}
		if err := it.Next(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return rids, nil
}

// scanLeading walks from the smallest key, keeping entries that pass keep.
// With stopOnFail the walk ends once an entry fails, which suits the <, <=
// range shapes; the not-equal shape scans the whole tree.
func (idx *BPlusTreeIndex) scanLeading(probe []byte, keep func(int) bool, stopOnFail bool) ([]record.RowId, error) {
	it, err := idx.tree.Begin()
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer it.Close()

	var rids []record.RowId
	for it.Valid() {
		cmp := idx.km.ComparePrefixKeys(it.Key(), probe)
		if keep(cmp) {
			rids = append(rids, it.RowId())
		} else if stopOnFail {
			break
		}
		if err := it.Next(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return rids, nil
}
