package page

import (
	"sync/atomic"

	"github.com/zjuerme/MiniSQL/common"
)

// Page is the in-memory image of one disk block while it is resident in a
// buffer pool frame. The buffer pool owns the pin count and dirty flag; page
// layouts interpret the Data bytes.
type Page struct {
	id       common.PageID
	data     [common.PageSize]byte
	pinCount int32
	dirty    bool
}

func NewPage() *Page {
	return &Page{id: common.InvalidPageID}
}

func (p *Page) GetPageID() common.PageID {
	return p.id
}

func (p *Page) SetPageID(id common.PageID) {
	p.id = id
}

func (p *Page) GetData() []byte {
	return p.data[:]
}

func (p *Page) GetPinCount() int32 {
	return atomic.LoadInt32(&p.pinCount)
}

func (p *Page) IncPinCount() {
	atomic.AddInt32(&p.pinCount, 1)
}

func (p *Page) DecPinCount() {
	atomic.AddInt32(&p.pinCount, -1)
}

func (p *Page) IsDirty() bool {
	return p.dirty
}

func (p *Page) SetDirty(dirty bool) {
	p.dirty = dirty
}

// Reset clears the frame for reuse by a different page.
func (p *Page) Reset() {
	p.id = common.InvalidPageID
	p.pinCount = 0
	p.dirty = false
	for i := range p.data {
		p.data[i] = 0
	}
}

// ZeroData clears only the content bytes.
func (p *Page) ZeroData() {
	for i := range p.data {
		p.data[i] = 0
	}
}
