package disk

import (
	"io"
	"os"
	"sync"

	"github.com/juju/errors"
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/logger"
	"github.com/zjuerme/MiniSQL/util"
)

const (
	diskFileMagic uint32 = 0x4D696E44 // "MinD"

	// The meta block occupies the first PageSize bytes of the file:
	// magic(4) | next_page_id(4) | allocation bitmap. Page i lives at file
	// offset (i+1)*PageSize.
	metaMagicOffset  = 0
	metaNextIDOffset = 4
	metaBitmapOffset = 8

	// MaxPages is bounded by the bitmap that fits in the meta block.
	MaxPages = (common.PageSize - metaBitmapOffset) * 8
)

// DiskManager owns the database file. It hands out page ids from a bitmap
// free list and reads/writes PageSize blocks by id. Bookkeeping is written
// through on every allocate/deallocate.
type DiskManager struct {
	mu       sync.Mutex
	file     *os.File
	filePath string
	nextPage common.PageID
	bitmap   []byte
	created  bool
}

// NewDiskManager opens or creates the database file at path.
func NewDiskManager(path string) (*DiskManager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Annotatef(err, "open database file %s", path)
	}

	dm := &DiskManager{
		file:     file,
		filePath: path,
		bitmap:   make([]byte, common.PageSize-metaBitmapOffset),
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Trace(err)
	}

	if info.Size() == 0 {
		dm.created = true
		if err := dm.writeMeta(); err != nil {
			file.Close()
			return nil, errors.Trace(err)
		}
		logger.Debugf("created database file %s", path)
		return dm, nil
	}

	if err := dm.readMeta(); err != nil {
		file.Close()
		return nil, errors.Trace(err)
	}
	logger.Debugf("opened database file %s, %d pages allocated", path, dm.nextPage)
	return dm, nil
}

// IsCreated reports whether the file was freshly created by this open.
func (dm *DiskManager) IsCreated() bool {
	return dm.created
}

func (dm *DiskManager) writeMeta() error {
	buf := make([]byte, common.PageSize)
	util.PutUB4(buf, metaMagicOffset, diskFileMagic)
	util.PutUB4(buf, metaNextIDOffset, uint32(dm.nextPage))
	copy(buf[metaBitmapOffset:], dm.bitmap)
	if _, err := dm.file.WriteAt(buf, 0); err != nil {
		return errors.Annotate(err, "write disk meta block")
	}
	return nil
}

func (dm *DiskManager) readMeta() error {
	buf := make([]byte, common.PageSize)
	if _, err := dm.file.ReadAt(buf, 0); err != nil {
		return errors.Annotate(err, "read disk meta block")
	}
	if util.GetUB4(buf, metaMagicOffset) != diskFileMagic {
		return errors.Annotatef(common.ErrPageCorrupted, "bad magic in %s", dm.filePath)
	}
	dm.nextPage = common.PageID(util.GetUB4(buf, metaNextIDOffset))
	copy(dm.bitmap, buf[metaBitmapOffset:])
	return nil
}

// AllocatePage returns a fresh page id. Freed ids are reused before the file
// is extended.
func (dm *DiskManager) AllocatePage() (common.PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	for pid := common.PageID(0); pid < dm.nextPage; pid++ {
		if !dm.bitSet(pid) {
			dm.setBit(pid, true)
			if err := dm.writeMeta(); err != nil {
				return common.InvalidPageID, errors.Trace(err)
			}
			return pid, nil
		}
	}

	if int(dm.nextPage) >= MaxPages {
		return common.InvalidPageID, errors.New("database file is full")
	}

	pid := dm.nextPage
	dm.nextPage++
	dm.setBit(pid, true)
	if err := dm.writeMeta(); err != nil {
		return common.InvalidPageID, errors.Trace(err)
	}
	return pid, nil
}

// DeAllocatePage returns a page id to the free list.
func (dm *DiskManager) DeAllocatePage(pid common.PageID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if pid < 0 || pid >= dm.nextPage {
		return errors.Annotatef(common.ErrPageNotFound, "deallocate page %d", pid)
	}
	dm.setBit(pid, false)
	return errors.Trace(dm.writeMeta())
}

// IsPageFree reports whether pid is unallocated.
func (dm *DiskManager) IsPageFree(pid common.PageID) bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if pid < 0 || pid >= dm.nextPage {
		return true
	}
	return !dm.bitSet(pid)
}

// AllocatedPages counts the pages currently marked in use.
func (dm *DiskManager) AllocatedPages() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	n := 0
	for pid := common.PageID(0); pid < dm.nextPage; pid++ {
		if dm.bitSet(pid) {
			n++
		}
	}
	return n
}

// ReadPage fills buf with the page content. A page past the current end of
// file reads as zeroes, matching a freshly allocated page.
func (dm *DiskManager) ReadPage(pid common.PageID, buf []byte) error {
	if len(buf) != common.PageSize {
		return errors.Errorf("read buffer size %d != page size", len(buf))
	}
	n, err := dm.file.ReadAt(buf, dm.pageOffset(pid))
	if err == io.EOF {
		for i := n; i < common.PageSize; i++ {
			buf[i] = 0
		}
		return nil
	}
	return errors.Annotatef(err, "read page %d", pid)
}

// WritePage writes the page content to disk.
func (dm *DiskManager) WritePage(pid common.PageID, buf []byte) error {
	if len(buf) != common.PageSize {
		return errors.Errorf("write buffer size %d != page size", len(buf))
	}
	_, err := dm.file.WriteAt(buf, dm.pageOffset(pid))
	return errors.Annotatef(err, "write page %d", pid)
}

// Sync forces file contents to stable storage.
func (dm *DiskManager) Sync() error {
	return errors.Trace(dm.file.Sync())
}

func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := dm.writeMeta(); err != nil {
		dm.file.Close()
		return errors.Trace(err)
	}
	if err := dm.file.Sync(); err != nil {
		dm.file.Close()
		return errors.Trace(err)
	}
	return errors.Trace(dm.file.Close())
}

func (dm *DiskManager) pageOffset(pid common.PageID) int64 {
	return int64(pid+1) * common.PageSize
}

func (dm *DiskManager) bitSet(pid common.PageID) bool {
	return dm.bitmap[pid/8]&(1<<uint(pid%8)) != 0
}

func (dm *DiskManager) setBit(pid common.PageID, used bool) {
	if used {
		dm.bitmap[pid/8] |= 1 << uint(pid%8)
	} else {
		dm.bitmap[pid/8] &^= 1 << uint(pid%8)
	}
}
