package engine

import (
	"github.com/juju/errors"
	"github.com/zjuerme/MiniSQL/catalog"
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/conf"
	"github.com/zjuerme/MiniSQL/logger"
	"github.com/zjuerme/MiniSQL/storage/buffer"
	"github.com/zjuerme/MiniSQL/storage/disk"
)

// DBStorageEngine wires the storage stack: disk manager, buffer pool, and
// catalog. Opening a fresh file reserves the index-roots and catalog pages;
// reopening validates and reloads them.
type DBStorageEngine struct {
	DiskManager *disk.DiskManager
	BufferPool  *buffer.BufferPoolManager
	Catalog     *catalog.CatalogManager
}

// Open builds the engine over the configured database file.
func Open(cfg *conf.Cfg) (*DBStorageEngine, error) {
	dm, err := disk.NewDiskManager(cfg.DataFile)
	if err != nil {
		return nil, errors.Trace(err)
	}
	bpm := buffer.NewBufferPoolManager(cfg.BufferPoolPages, cfg.ReplacerK, dm)

	init := dm.IsCreated()
	if init {
		if err := reserveSystemPages(bpm); err != nil {
			dm.Close()
			return nil, errors.Trace(err)
		}
	}

	cm, err := catalog.NewCatalogManager(bpm, nil, init)
	if err != nil {
		dm.Close()
		return nil, errors.Trace(err)
	}

	logger.Infof("storage engine ready on %s (%d tables)", cfg.DataFile, len(cm.GetTables()))
	return &DBStorageEngine{DiskManager: dm, BufferPool: bpm, Catalog: cm}, nil
}

// reserveSystemPages pins down page 0 (index roots) and page 1 (catalog
// meta) on a fresh database file.
func reserveSystemPages(bpm *buffer.BufferPoolManager) error {
	rootsPage, err := bpm.NewPage()
	if err != nil {
		return errors.Trace(err)
	}
	if rootsPage.GetPageID() != common.IndexRootsPageID {
		return errors.Errorf("expected index roots page id %d, got %d",
			common.IndexRootsPageID, rootsPage.GetPageID())
	}
	bpm.UnpinPage(rootsPage.GetPageID(), true)

	metaPage, err := bpm.NewPage()
	if err != nil {
		return errors.Trace(err)
	}
	if metaPage.GetPageID() != common.CatalogMetaPageID {
		return errors.Errorf("expected catalog meta page id %d, got %d",
			common.CatalogMetaPageID, metaPage.GetPageID())
	}
	bpm.UnpinPage(metaPage.GetPageID(), true)
	return nil
}

// Close flushes every resident page and releases the file.
func (e *DBStorageEngine) Close() error {
	if err := e.Catalog.FlushCatalogMetaPage(); err != nil {
		e.DiskManager.Close()
		return errors.Trace(err)
	}
	if err := e.BufferPool.FlushAllPages(); err != nil {
		e.DiskManager.Close()
		return errors.Trace(err)
	}
	return errors.Trace(e.DiskManager.Close())
}
