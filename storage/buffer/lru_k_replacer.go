package buffer

import (
	"container/list"
	"sync"

	"github.com/zjuerme/MiniSQL/common"
)

// LRUKReplacer picks victim frames for the buffer pool. Frames with fewer
// than k returns sit in a history list, newest first return at the front,
// and are evicted first, scanning from the front; frames that reach k
// returns live in an MRU-front cache list.
type LRUKReplacer struct {
	mu sync.Mutex

	k          int
	accessTime map[common.FrameID]int
	evictable  map[common.FrameID]bool

	historyList *list.List
	historyMap  map[common.FrameID]*list.Element
	cacheList   *list.List
	cacheMap    map[common.FrameID]*list.Element
}

func NewLRUKReplacer(k int) *LRUKReplacer {
	return &LRUKReplacer{
		k:           k,
		accessTime:  make(map[common.FrameID]int),
		evictable:   make(map[common.FrameID]bool),
		historyList: list.New(),
		historyMap:  make(map[common.FrameID]*list.Element),
		cacheList:   list.New(),
		cacheMap:    make(map[common.FrameID]*list.Element),
	}
}

// Victim selects the frame to evict. History entries are scanned
// front-to-back first, then the cache list.
func (r *LRUKReplacer) Victim() (common.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for e := r.historyList.Front(); e != nil; e = e.Next() {
		frame := e.Value.(common.FrameID)
		if r.evictable[frame] {
			r.accessTime[frame] = 0
			r.historyList.Remove(e)
			delete(r.historyMap, frame)
			r.evictable[frame] = false
			return frame, true
		}
	}
	for e := r.cacheList.Front(); e != nil; e = e.Next() {
		frame := e.Value.(common.FrameID)
		if r.evictable[frame] {
			r.accessTime[frame] = 0
			r.cacheList.Remove(e)
			delete(r.cacheMap, frame)
			r.evictable[frame] = false
			return frame, true
		}
	}
	return -1, false
}

// Pin marks a frame as in use: it must not be chosen as a victim.
func (r *LRUKReplacer) Pin(frame common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.accessTime[frame] == 0 {
		return
	}
	r.evictable[frame] = false
}

// Unpin records that the frame's reference count reached zero. The access
// counter advances here, which is what promotes a frame from the history
// list into the cache list at the k-th return.
func (r *LRUKReplacer) Unpin(frame common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.accessTime[frame]++
	r.evictable[frame] = true

	switch {
	case r.accessTime[frame] == r.k:
		if e, ok := r.historyMap[frame]; ok {
			r.historyList.Remove(e)
			delete(r.historyMap, frame)
		}
		r.cacheMap[frame] = r.cacheList.PushFront(frame)
	case r.accessTime[frame] > r.k:
		if e, ok := r.cacheMap[frame]; ok {
			r.cacheList.Remove(e)
		}
		r.cacheMap[frame] = r.cacheList.PushFront(frame)
	default:
		if _, ok := r.historyMap[frame]; !ok {
			r.historyMap[frame] = r.historyList.PushFront(frame)
		}
	}
}

// Size reports how many frames the replacer is tracking.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.historyList.Len() + r.cacheList.Len()
}
