package catalog

import (
	"github.com/juju/errors"
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/index"
	"github.com/zjuerme/MiniSQL/logger"
	"github.com/zjuerme/MiniSQL/record"
	"github.com/zjuerme/MiniSQL/storage/buffer"
)

// TableInfo bundles a table's metadata with its open heap.
type TableInfo struct {
	Meta *TableMetadata
	Heap *TableHeap
}

func (t *TableInfo) GetTableName() string {
	return t.Meta.Name
}

func (t *TableInfo) GetSchema() *record.Schema {
	return t.Meta.Schema
}

// IndexInfo bundles an index's metadata with its open B+ tree.
type IndexInfo struct {
	Meta  *IndexMetadata
	Index *index.BPlusTreeIndex
	Table *TableInfo
}

func (i *IndexInfo) GetIndexName() string {
	return i.Meta.Name
}

// GetKeySchema is the projected schema the index keys on.
func (i *IndexInfo) GetKeySchema() *record.Schema {
	return i.Index.GetKeySchema()
}

// CatalogManager resolves names to ids to metadata pages. Every mutation is
// mirrored to the reserved catalog page and flushed before it returns.
type CatalogManager struct {
	bpm         *buffer.BufferPoolManager
	lockMgr     common.LockManager
	meta        *CatalogMeta
	nextTableID common.TableID
	nextIndexID common.IndexID

	tableNames map[string]common.TableID
	tables     map[common.TableID]*TableInfo
	indexNames map[string]map[string]common.IndexID
	indexes    map[common.IndexID]*IndexInfo
}

// NewCatalogManager builds the catalog over the buffer pool. With init the
// catalog starts empty; otherwise it is loaded from the catalog page and
// every table and index is reopened.
func NewCatalogManager(bpm *buffer.BufferPoolManager, lockMgr common.LockManager, init bool) (*CatalogManager, error) {
	cm := &CatalogManager{
		bpm:        bpm,
		lockMgr:    lockMgr,
		tableNames: make(map[string]common.TableID),
		tables:     make(map[common.TableID]*TableInfo),
		indexNames: make(map[string]map[string]common.IndexID),
		indexes:    make(map[common.IndexID]*IndexInfo),
	}

	if init {
		cm.meta = NewCatalogMeta()
	} else {
		metaPage, err := bpm.FetchPage(common.CatalogMetaPageID)
		if err != nil {
			return nil, errors.Trace(err)
		}
		cm.meta, err = DeserializeCatalogMetaFrom(metaPage.GetData())
		if err != nil {
			bpm.UnpinPage(common.CatalogMetaPageID, false)
			return nil, errors.Trace(err)
		}
		bpm.UnpinPage(common.CatalogMetaPageID, false)

		for tableID, pageID := range cm.meta.TableMetaPages {
			if err := cm.loadTable(tableID, pageID); err != nil {
				return nil, errors.Annotatef(err, "load table %d", tableID)
			}
		}
		for indexID, pageID := range cm.meta.IndexMetaPages {
			if err := cm.loadIndex(indexID, pageID); err != nil {
				return nil, errors.Annotatef(err, "load index %d", indexID)
			}
		}
	}

	cm.nextTableID = cm.meta.GetNextTableId()
	cm.nextIndexID = cm.meta.GetNextIndexId()
	if err := cm.FlushCatalogMetaPage(); err != nil {
		return nil, errors.Trace(err)
	}
	return cm, nil
}

// CreateTable registers a table under name with a deep copy of schema and an
// empty heap.
func (cm *CatalogManager) CreateTable(name string, schema *record.Schema, txn *common.Transaction) (*TableInfo, error) {
	if _, ok := cm.tableNames[name]; ok {
		return nil, errors.Trace(common.ErrTableAlreadyExist)
	}

	tableID := cm.nextTableID
	cm.nextTableID++
	deepCopy := record.DeepCopySchema(schema)
	heap, err := NewTableHeap(cm.bpm, deepCopy)
	if err != nil {
		return nil, errors.Trace(err)
	}
	meta := NewTableMetadata(tableID, name, heap.FirstPageId(), deepCopy)
	info := &TableInfo{Meta: meta, Heap: heap}

	metaPage, err := cm.bpm.NewPage()
	if err != nil {
		return nil, errors.Trace(err)
	}
	writeMetaRecord(metaPage.GetData(), meta.SerializeTo(nil))
	cm.bpm.UnpinPage(metaPage.GetPageID(), true)

	cm.tableNames[name] = tableID
	cm.tables[tableID] = info
	cm.meta.TableMetaPages[tableID] = metaPage.GetPageID()
	if err := cm.FlushCatalogMetaPage(); err != nil {
		return nil, errors.Trace(err)
	}
	logger.Debugf("created table %s (id %d)", name, tableID)
	return info, nil
}

// DropTable removes the table, its heap pages, its meta page, and every
// index built over it.
func (cm *CatalogManager) DropTable(name string) error {
	tableID, ok := cm.tableNames[name]
	if !ok {
		return errors.Trace(common.ErrTableNotExist)
	}
	info := cm.tables[tableID]

	if indexMap, ok := cm.indexNames[name]; ok {
		indexNames := make([]string, 0, len(indexMap))
		for indexName := range indexMap {
			indexNames = append(indexNames, indexName)
		}
		for _, indexName := range indexNames {
			if err := cm.DropIndex(name, indexName); err != nil {
				return errors.Trace(err)
			}
		}
	}

	if err := info.Heap.FreeHeap(); err != nil {
		return errors.Trace(err)
	}
	if err := cm.bpm.DeletePage(cm.meta.TableMetaPages[tableID]); err != nil {
		return errors.Trace(err)
	}

	delete(cm.tables, tableID)
	delete(cm.tableNames, name)
	delete(cm.meta.TableMetaPages, tableID)
	logger.Debugf("dropped table %s (id %d)", name, tableID)
	return errors.Trace(cm.FlushCatalogMetaPage())
}

// CreateIndex builds an empty B+ tree index over the named key columns.
func (cm *CatalogManager) CreateIndex(tableName, indexName string, keyColumns []string, txn *common.Transaction) (*IndexInfo, error) {
	tableID, ok := cm.tableNames[tableName]
	if !ok {
		return nil, errors.Trace(common.ErrTableNotExist)
	}
	if _, ok := cm.indexNames[tableName][indexName]; ok {
		return nil, errors.Trace(common.ErrIndexAlreadyExist)
	}
	tableInfo := cm.tables[tableID]

	keyIndices := make([]uint32, 0, len(keyColumns))
	for _, columnName := range keyColumns {
		idx, err := tableInfo.GetSchema().GetColumnIndex(columnName)
		if err != nil {
			return nil, errors.Trace(err)
		}
		keyIndices = append(keyIndices, idx)
	}

	indexID := cm.nextIndexID
	cm.nextIndexID++
	btreeIndex, err := index.NewBPlusTreeIndex(indexID, tableInfo.GetSchema(), keyIndices, cm.bpm)
	if err != nil {
		return nil, errors.Trace(err)
	}
	meta := NewIndexMetadata(indexID, indexName, tableID, keyIndices)
	info := &IndexInfo{Meta: meta, Index: btreeIndex, Table: tableInfo}

	metaPage, err := cm.bpm.NewPage()
	if err != nil {
		return nil, errors.Trace(err)
	}
	writeMetaRecord(metaPage.GetData(), meta.SerializeTo(nil))
	cm.bpm.UnpinPage(metaPage.GetPageID(), true)

	if _, ok := cm.indexNames[tableName]; !ok {
		cm.indexNames[tableName] = make(map[string]common.IndexID)
	}
	cm.indexNames[tableName][indexName] = indexID
	cm.indexes[indexID] = info
	cm.meta.IndexMetaPages[indexID] = metaPage.GetPageID()
	if err := cm.FlushCatalogMetaPage(); err != nil {
		return nil, errors.Trace(err)
	}
	logger.Debugf("created index %s on %s (id %d)", indexName, tableName, indexID)
	return info, nil
}

// DropIndex destroys the tree, frees its pages and meta page, and unregisters
// the index.
func (cm *CatalogManager) DropIndex(tableName, indexName string) error {
	if _, ok := cm.tableNames[tableName]; !ok {
		return errors.Trace(common.ErrTableNotExist)
	}
	indexMap, ok := cm.indexNames[tableName]
	if !ok {
		return errors.Trace(common.ErrIndexNotFound)
	}
	indexID, ok := indexMap[indexName]
	if !ok {
		return errors.Trace(common.ErrIndexNotFound)
	}

	if err := cm.indexes[indexID].Index.Destroy(); err != nil {
		return errors.Trace(err)
	}
	if err := cm.bpm.DeletePage(cm.meta.IndexMetaPages[indexID]); err != nil {
		return errors.Trace(err)
	}

	if len(indexMap) == 1 {
		delete(cm.indexNames, tableName)
	} else {
		delete(indexMap, indexName)
	}
	delete(cm.indexes, indexID)
	delete(cm.meta.IndexMetaPages, indexID)
	logger.Debugf("dropped index %s on %s (id %d)", indexName, tableName, indexID)
	return errors.Trace(cm.FlushCatalogMetaPage())
}

func (cm *CatalogManager) GetTable(name string) (*TableInfo, error) {
	tableID, ok := cm.tableNames[name]
	if !ok {
		return nil, errors.Trace(common.ErrTableNotExist)
	}
	return cm.tables[tableID], nil
}

func (cm *CatalogManager) GetTableById(tableID common.TableID) (*TableInfo, error) {
	info, ok := cm.tables[tableID]
	if !ok {
		return nil, errors.Trace(common.ErrTableNotExist)
	}
	return info, nil
}

func (cm *CatalogManager) GetTables() []*TableInfo {
	tables := make([]*TableInfo, 0, len(cm.tables))
	for _, info := range cm.tables {
		tables = append(tables, info)
	}
	return tables
}

func (cm *CatalogManager) GetIndex(tableName, indexName string) (*IndexInfo, error) {
	if _, ok := cm.tableNames[tableName]; !ok {
		return nil, errors.Trace(common.ErrTableNotExist)
	}
	indexMap, ok := cm.indexNames[tableName]
	if !ok {
		return nil, errors.Trace(common.ErrIndexNotFound)
	}
	indexID, ok := indexMap[indexName]
	if !ok {
		return nil, errors.Trace(common.ErrIndexNotFound)
	}
	info, ok := cm.indexes[indexID]
	if !ok {
		return nil, errors.Trace(common.ErrFailed)
	}
	return info, nil
}

func (cm *CatalogManager) GetTableIndexes(tableName string) ([]*IndexInfo, error) {
	if _, ok := cm.tableNames[tableName]; !ok {
		return nil, errors.Trace(common.ErrTableNotExist)
	}
	var indexes []*IndexInfo
	for _, indexID := range cm.indexNames[tableName] {
		info, ok := cm.indexes[indexID]
		if !ok {
			return nil, errors.Trace(common.ErrFailed)
		}
		indexes = append(indexes, info)
	}
	return indexes, nil
}

// FlushCatalogMetaPage rewrites the reserved catalog page and forces it to
// disk, so catalog state survives anything after the mutation returns.
func (cm *CatalogManager) FlushCatalogMetaPage() error {
	metaPage, err := cm.bpm.FetchPage(common.CatalogMetaPageID)
	if err != nil {
		return errors.Trace(err)
	}
	writeMetaRecord(metaPage.GetData(), cm.meta.SerializeTo(nil))
	cm.bpm.UnpinPage(common.CatalogMetaPageID, true)
	return errors.Trace(cm.bpm.FlushPage(common.CatalogMetaPageID))
}

func (cm *CatalogManager) loadTable(tableID common.TableID, pageID common.PageID) error {
	metaPage, err := cm.bpm.FetchPage(pageID)
	if err != nil {
		return errors.Trace(err)
	}
	meta, err := DeserializeTableMetadataFrom(metaPage.GetData())
	cm.bpm.UnpinPage(pageID, false)
	if err != nil {
		return errors.Trace(err)
	}
	if meta.TableID != tableID {
		return errors.Annotatef(common.ErrPageCorrupted, "table id mismatch on page %d", pageID)
	}

	heap := OpenTableHeap(cm.bpm, meta.FirstHeapPage, meta.Schema)
	cm.tableNames[meta.Name] = tableID
	cm.tables[tableID] = &TableInfo{Meta: meta, Heap: heap}
	return nil
}

func (cm *CatalogManager) loadIndex(indexID common.IndexID, pageID common.PageID) error {
	metaPage, err := cm.bpm.FetchPage(pageID)
	if err != nil {
		return errors.Trace(err)
	}
	meta, err := DeserializeIndexMetadataFrom(metaPage.GetData())
	cm.bpm.UnpinPage(pageID, false)
	if err != nil {
		return errors.Trace(err)
	}
	if meta.IndexID != indexID {
		return errors.Annotatef(common.ErrPageCorrupted, "index id mismatch on page %d", pageID)
	}

	tableInfo, ok := cm.tables[meta.TableID]
	if !ok {
		return errors.Trace(common.ErrTableNotExist)
	}
	btreeIndex, err := index.NewBPlusTreeIndex(indexID, tableInfo.GetSchema(), meta.KeyColumnIndices, cm.bpm)
	if err != nil {
		return errors.Trace(err)
	}

	tableName := tableInfo.GetTableName()
	if _, ok := cm.indexNames[tableName]; !ok {
		cm.indexNames[tableName] = make(map[string]common.IndexID)
	}
	cm.indexNames[tableName][meta.Name] = indexID
	cm.indexes[indexID] = &IndexInfo{Meta: meta, Index: btreeIndex, Table: tableInfo}
	return nil
}

// writeMetaRecord places a serialized record at the start of a page image,
// zeroing the remainder.
func writeMetaRecord(pageData, rec []byte) {
	copy(pageData, rec)
	for i := len(rec); i < len(pageData); i++ {
		pageData[i] = 0
	}
}
