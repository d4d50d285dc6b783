package buffer

import (
	"container/list"
	"sync"

	"github.com/juju/errors"
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/logger"
	"github.com/zjuerme/MiniSQL/storage/disk"
	"github.com/zjuerme/MiniSQL/storage/page"
)

// BufferPoolManager keeps a fixed pool of frames over the disk manager.
// Every FetchPage/NewPage pins the returned frame; callers must pair each
// with exactly one UnpinPage on every return path.
type BufferPoolManager struct {
	mu sync.Mutex

	poolSize    int
	frames      []*page.Page
	pageTable   map[common.PageID]common.FrameID
	freeList    *list.List
	replacer    *LRUKReplacer
	diskManager *disk.DiskManager
}

func NewBufferPoolManager(poolSize int, replacerK int, dm *disk.DiskManager) *BufferPoolManager {
	bpm := &BufferPoolManager{
		poolSize:    poolSize,
		frames:      make([]*page.Page, poolSize),
		pageTable:   make(map[common.PageID]common.FrameID),
		freeList:    list.New(),
		replacer:    NewLRUKReplacer(replacerK),
		diskManager: dm,
	}
	for i := 0; i < poolSize; i++ {
		bpm.frames[i] = page.NewPage()
		bpm.freeList.PushBack(common.FrameID(i))
	}
	return bpm
}

// FetchPage pins and returns the frame holding pid, reading it from disk on
// a miss. Fails only when every frame is pinned.
func (bpm *BufferPoolManager) FetchPage(pid common.PageID) (*page.Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if frameID, ok := bpm.pageTable[pid]; ok {
		frame := bpm.frames[frameID]
		frame.IncPinCount()
		bpm.replacer.Pin(frameID)
		return frame, nil
	}

	frameID, err := bpm.takeFrame()
	if err != nil {
		return nil, errors.Trace(err)
	}

	frame := bpm.frames[frameID]
	if err := bpm.diskManager.ReadPage(pid, frame.GetData()); err != nil {
		bpm.freeList.PushBack(frameID)
		return nil, errors.Trace(err)
	}
	frame.SetPageID(pid)
	frame.IncPinCount()
	bpm.pageTable[pid] = frameID
	bpm.replacer.Pin(frameID)
	return frame, nil
}

// NewPage allocates a fresh page id on disk and returns its pinned, zeroed
// frame.
func (bpm *BufferPoolManager) NewPage() (*page.Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, err := bpm.takeFrame()
	if err != nil {
		return nil, errors.Trace(err)
	}

	pid, err := bpm.diskManager.AllocatePage()
	if err != nil {
		bpm.freeList.PushBack(frameID)
		return nil, errors.Trace(err)
	}

	frame := bpm.frames[frameID]
	frame.ZeroData()
	frame.SetPageID(pid)
	frame.IncPinCount()
	bpm.pageTable[pid] = frameID
	bpm.replacer.Pin(frameID)
	return frame, nil
}

// UnpinPage drops one pin and ORs dirty into the frame's dirty flag.
// Returns false when the page is not resident or already unpinned.
func (bpm *BufferPoolManager) UnpinPage(pid common.PageID, dirty bool) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable[pid]
	if !ok {
		return false
	}
	frame := bpm.frames[frameID]
	if dirty {
		frame.SetDirty(true)
	}
	if frame.GetPinCount() <= 0 {
		return false
	}
	frame.DecPinCount()
	if frame.GetPinCount() == 0 {
		bpm.replacer.Unpin(frameID)
	}
	return true
}

// FlushPage writes the resident frame to disk and clears its dirty flag.
func (bpm *BufferPoolManager) FlushPage(pid common.PageID) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable[pid]
	if !ok {
		return errors.Annotatef(common.ErrPageNotFound, "flush page %d", pid)
	}
	frame := bpm.frames[frameID]
	if err := bpm.diskManager.WritePage(pid, frame.GetData()); err != nil {
		return errors.Trace(err)
	}
	frame.SetDirty(false)
	return nil
}

// FlushAllPages writes every resident frame back to disk.
func (bpm *BufferPoolManager) FlushAllPages() error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	for pid, frameID := range bpm.pageTable {
		frame := bpm.frames[frameID]
		if err := bpm.diskManager.WritePage(pid, frame.GetData()); err != nil {
			return errors.Trace(err)
		}
		frame.SetDirty(false)
	}
	return nil
}

// DeletePage evicts the page from the pool and frees its id on disk. Fails
// when the page is still pinned.
func (bpm *BufferPoolManager) DeletePage(pid common.PageID) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable[pid]
	if ok {
		frame := bpm.frames[frameID]
		if frame.GetPinCount() > 0 {
			return errors.Annotatef(common.ErrPagePinned, "delete page %d", pid)
		}
		delete(bpm.pageTable, pid)
		frame.Reset()
		bpm.freeList.PushBack(frameID)
	}
	return errors.Trace(bpm.diskManager.DeAllocatePage(pid))
}

// CheckAllUnpinned is a diagnostic: true iff no resident frame holds a pin.
func (bpm *BufferPoolManager) CheckAllUnpinned() bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	ok := true
	for pid, frameID := range bpm.pageTable {
		if pin := bpm.frames[frameID].GetPinCount(); pin > 0 {
			logger.Debugf("page %d still pinned, pin count %d", pid, pin)
			ok = false
		}
	}
	return ok
}

// takeFrame returns a frame to load a page into, evicting if needed.
// Caller holds the latch.
func (bpm *BufferPoolManager) takeFrame() (common.FrameID, error) {
	if e := bpm.freeList.Front(); e != nil {
		bpm.freeList.Remove(e)
		return e.Value.(common.FrameID), nil
	}

	frameID, ok := bpm.replacer.Victim()
	if !ok {
		return -1, errors.Trace(common.ErrNoFreeFrames)
	}
	frame := bpm.frames[frameID]
	if frame.IsDirty() {
		if err := bpm.diskManager.WritePage(frame.GetPageID(), frame.GetData()); err != nil {
			return -1, errors.Trace(err)
		}
		logger.Debugf("evicted dirty page %d", frame.GetPageID())
	}
	delete(bpm.pageTable, frame.GetPageID())
	frame.Reset()
	return frameID, nil
}
