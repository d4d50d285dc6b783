package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/record"
	"github.com/zjuerme/MiniSQL/storage/buffer"
	"github.com/zjuerme/MiniSQL/storage/disk"
)

func testSchema() *record.Schema {
	return record.NewSchema([]*record.Column{
		record.NewColumn("id", record.TypeInt, 0, false),
		record.NewCharColumn("name", 12, 1, true),
	})
}

func openCatalog(t *testing.T, path string, init bool) (*CatalogManager, *buffer.BufferPoolManager, *disk.DiskManager) {
	t.Helper()
	dm, err := disk.NewDiskManager(path)
	require.NoError(t, err)
	bpm := buffer.NewBufferPoolManager(64, 2, dm)
	if init {
		for _, want := range []common.PageID{common.IndexRootsPageID, common.CatalogMetaPageID} {
			p, err := bpm.NewPage()
			require.NoError(t, err)
			require.Equal(t, want, p.GetPageID())
			bpm.UnpinPage(p.GetPageID(), true)
		}
	}
	cm, err := NewCatalogManager(bpm, nil, init)
	require.NoError(t, err)
	return cm, bpm, dm
}

func TestCatalogCreateAndGetTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	cm, bpm, dm := openCatalog(t, path, true)
	defer dm.Close()

	info, err := cm.CreateTable("t1", testSchema(), nil)
	require.NoError(t, err)
	assert.Equal(t, "t1", info.GetTableName())
	assert.Equal(t, 2, info.GetSchema().GetColumnCount())

	_, err = cm.CreateTable("t1", testSchema(), nil)
	assert.ErrorIs(t, err, common.ErrTableAlreadyExist)

	got, err := cm.GetTable("t1")
	require.NoError(t, err)
	assert.Same(t, info, got)

	_, err = cm.GetTable("missing")
	assert.ErrorIs(t, err, common.ErrTableNotExist)

	assert.Len(t, cm.GetTables(), 1)
	assert.True(t, bpm.CheckAllUnpinned())
}

func TestCatalogIndexLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	cm, bpm, dm := openCatalog(t, path, true)
	defer dm.Close()

	_, err := cm.CreateTable("t1", testSchema(), nil)
	require.NoError(t, err)

	_, err = cm.CreateIndex("missing", "idx", []string{"id"}, nil)
	assert.ErrorIs(t, err, common.ErrTableNotExist)
	_, err = cm.CreateIndex("t1", "idx", []string{"nope"}, nil)
	assert.ErrorIs(t, err, common.ErrColumnNameNotExist)

	idx, err := cm.CreateIndex("t1", "idx", []string{"id"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "idx", idx.GetIndexName())
	assert.Equal(t, 1, idx.GetKeySchema().GetColumnCount())

	_, err = cm.CreateIndex("t1", "idx", []string{"id"}, nil)
	assert.ErrorIs(t, err, common.ErrIndexAlreadyExist)

	got, err := cm.GetIndex("t1", "idx")
	require.NoError(t, err)
	assert.Same(t, idx, got)

	indexes, err := cm.GetTableIndexes("t1")
	require.NoError(t, err)
	assert.Len(t, indexes, 1)

	require.NoError(t, cm.DropIndex("t1", "idx"))
	_, err = cm.GetIndex("t1", "idx")
	assert.ErrorIs(t, err, common.ErrIndexNotFound)
	err = cm.DropIndex("t1", "idx")
	assert.ErrorIs(t, err, common.ErrIndexNotFound)

	assert.True(t, bpm.CheckAllUnpinned())
}

func TestCatalogDropTableDropsIndexes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	cm, _, dm := openCatalog(t, path, true)
	defer dm.Close()

	_, err := cm.CreateTable("t1", testSchema(), nil)
	require.NoError(t, err)
	_, err = cm.CreateIndex("t1", "idx_id", []string{"id"}, nil)
	require.NoError(t, err)
	_, err = cm.CreateIndex("t1", "idx_name", []string{"name"}, nil)
	require.NoError(t, err)

	require.NoError(t, cm.DropTable("t1"))
	_, err = cm.GetTable("t1")
	assert.ErrorIs(t, err, common.ErrTableNotExist)

	// Heap, table meta, and both index meta pages are all returned; only
	// the two reserved pages stay allocated.
	assert.Equal(t, 2, dm.AllocatedPages())

	err = cm.DropTable("t1")
	assert.ErrorIs(t, err, common.ErrTableNotExist)
}

func TestCatalogDurability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	cm, bpm, dm := openCatalog(t, path, true)
	info, err := cm.CreateTable("t1", testSchema(), nil)
	require.NoError(t, err)
	firstHeapPage := info.Heap.FirstPageId()

	row := record.NewRow([]*record.Field{
		record.NewIntField(7),
		record.NewCharField("alice"),
	})
	rid, err := info.Heap.InsertTuple(row, nil)
	require.NoError(t, err)

	_, err = cm.CreateIndex("t1", "idx_id", []string{"id"}, nil)
	require.NoError(t, err)

	require.NoError(t, bpm.FlushAllPages())
	require.NoError(t, dm.Close())

	// Reopen: names, schema, heap location, and index all come back from
	// the catalog pages.
	cm2, bpm2, dm2 := openCatalog(t, path, false)
	defer dm2.Close()

	info2, err := cm2.GetTable("t1")
	require.NoError(t, err)
	assert.Equal(t, firstHeapPage, info2.Heap.FirstPageId())
	require.Equal(t, 2, info2.GetSchema().GetColumnCount())
	for i := 0; i < 2; i++ {
		assert.Equal(t, *info.GetSchema().GetColumn(i), *info2.GetSchema().GetColumn(i))
	}

	got, err := info2.Heap.GetTuple(rid, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(7), got.GetField(0).Int)
	assert.Equal(t, "alice", got.GetField(1).Chars)

	idx, err := cm2.GetIndex("t1", "idx_id")
	require.NoError(t, err)
	assert.Equal(t, []uint32{0}, idx.Meta.KeyColumnIndices)
	assert.True(t, bpm2.CheckAllUnpinned())
}

func TestCatalogMetaSerializationIsDeterministic(t *testing.T) {
	meta := NewCatalogMeta()
	meta.TableMetaPages[3] = 9
	meta.TableMetaPages[1] = 7
	meta.IndexMetaPages[5] = 11
	meta.IndexMetaPages[2] = 13

	first := meta.SerializeTo(nil)
	second := meta.SerializeTo(nil)
	assert.Equal(t, first, second)
	assert.Equal(t, meta.GetSerializedSize(), len(first))

	decoded, err := DeserializeCatalogMetaFrom(first)
	require.NoError(t, err)
	assert.Equal(t, meta.TableMetaPages, decoded.TableMetaPages)
	assert.Equal(t, meta.IndexMetaPages, decoded.IndexMetaPages)

	_, err = DeserializeCatalogMetaFrom(make([]byte, 64))
	assert.ErrorIs(t, err, common.ErrPageCorrupted)
}

func TestMetadataChecksums(t *testing.T) {
	tableMeta := NewTableMetadata(1, "t1", 5, testSchema())
	buf := tableMeta.SerializeTo(nil)
	decoded, err := DeserializeTableMetadataFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, tableMeta.TableID, decoded.TableID)
	assert.Equal(t, tableMeta.Name, decoded.Name)
	assert.Equal(t, tableMeta.FirstHeapPage, decoded.FirstHeapPage)

	// A flipped byte in the name length is caught as corruption: the record
	// then reads as truncated.
	buf[4] ^= 0xFF
	_, err = DeserializeTableMetadataFrom(buf)
	assert.ErrorIs(t, err, common.ErrPageCorrupted)

	indexMeta := NewIndexMetadata(2, "idx", 1, []uint32{0, 1})
	ibuf := indexMeta.SerializeTo(nil)
	idecoded, err := DeserializeIndexMetadataFrom(ibuf)
	require.NoError(t, err)
	assert.Equal(t, indexMeta.KeyColumnIndices, idecoded.KeyColumnIndices)

	ibuf[len(ibuf)-1] ^= 0x01
	_, err = DeserializeIndexMetadataFrom(ibuf)
	assert.ErrorIs(t, err, common.ErrPageCorrupted)
}

func TestTableHeapSpansPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	cm, bpm, dm := openCatalog(t, path, true)
	defer dm.Close()

	info, err := cm.CreateTable("big", testSchema(), nil)
	require.NoError(t, err)

	// Enough rows to spill past the first heap page.
	var rids []record.RowId
	for i := int32(0); i < 400; i++ {
		row := record.NewRow([]*record.Field{
			record.NewIntField(i),
			record.NewCharField("row"),
		})
		rid, err := info.Heap.InsertTuple(row, nil)
		require.NoError(t, err)
		rids = append(rids, rid)
	}

	pages := map[common.PageID]bool{}
	for i, rid := range rids {
		row, err := info.Heap.GetTuple(rid, nil)
		require.NoError(t, err)
		assert.Equal(t, int32(i), row.GetField(0).Int)
		assert.Equal(t, rid, row.Rid)
		pages[rid.PageID] = true
	}
	assert.Greater(t, len(pages), 1, "rows should span multiple heap pages")
	assert.True(t, bpm.CheckAllUnpinned())
}
