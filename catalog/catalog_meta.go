package catalog

import (
	"sort"

	"github.com/juju/errors"
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/util"
)

// CatalogMetaMagic asserts that page 1 really holds catalog metadata.
const CatalogMetaMagic uint32 = 89849541

// CatalogMeta is the durable image of the catalog: for each table and index
// id, the page holding that object's own metadata. It always fits in the
// reserved catalog page.
type CatalogMeta struct {
	TableMetaPages map[common.TableID]common.PageID
	IndexMetaPages map[common.IndexID]common.PageID
}

func NewCatalogMeta() *CatalogMeta {
	return &CatalogMeta{
		TableMetaPages: make(map[common.TableID]common.PageID),
		IndexMetaPages: make(map[common.IndexID]common.PageID),
	}
}

// SerializeTo renders the meta deterministically: entries ordered by id, so
// serializing an unchanged catalog twice produces identical bytes.
func (m *CatalogMeta) SerializeTo(buf []byte) []byte {
	buf = util.WriteUB4(buf, CatalogMetaMagic)
	buf = util.WriteUB4(buf, uint32(len(m.TableMetaPages)))
	buf = util.WriteUB4(buf, uint32(len(m.IndexMetaPages)))

	tableIDs := make([]common.TableID, 0, len(m.TableMetaPages))
	for id := range m.TableMetaPages {
		tableIDs = append(tableIDs, id)
	}
	sort.Slice(tableIDs, func(i, j int) bool { return tableIDs[i] < tableIDs[j] })
	for _, id := range tableIDs {
		buf = util.WriteUB4(buf, uint32(id))
		buf = util.WriteUB4(buf, uint32(m.TableMetaPages[id]))
	}

	indexIDs := make([]common.IndexID, 0, len(m.IndexMetaPages))
	for id := range m.IndexMetaPages {
		indexIDs = append(indexIDs, id)
	}
	sort.Slice(indexIDs, func(i, j int) bool { return indexIDs[i] < indexIDs[j] })
	for _, id := range indexIDs {
		buf = util.WriteUB4(buf, uint32(id))
		buf = util.WriteUB4(buf, uint32(m.IndexMetaPages[id]))
	}
	return buf
}

// GetSerializedSize is the byte width SerializeTo produces.
func (m *CatalogMeta) GetSerializedSize() int {
	return 12 + 8*(len(m.TableMetaPages)+len(m.IndexMetaPages))
}

// DeserializeCatalogMetaFrom decodes page 1, asserting the magic.
func DeserializeCatalogMetaFrom(buf []byte) (*CatalogMeta, error) {
	cursor, magic := util.ReadUB4(buf, 0)
	if magic != CatalogMetaMagic {
		return nil, errors.Annotate(common.ErrPageCorrupted, "catalog meta magic mismatch")
	}
	var tableCount, indexCount uint32
	cursor, tableCount = util.ReadUB4(buf, cursor)
	cursor, indexCount = util.ReadUB4(buf, cursor)

	meta := NewCatalogMeta()
	for i := uint32(0); i < tableCount; i++ {
		var id, pid uint32
		cursor, id = util.ReadUB4(buf, cursor)
		cursor, pid = util.ReadUB4(buf, cursor)
		meta.TableMetaPages[common.TableID(id)] = common.PageID(pid)
	}
	for i := uint32(0); i < indexCount; i++ {
		var id, pid uint32
		cursor, id = util.ReadUB4(buf, cursor)
		cursor, pid = util.ReadUB4(buf, cursor)
		meta.IndexMetaPages[common.IndexID(id)] = common.PageID(pid)
	}
	return meta, nil
}

// GetNextTableId derives the id counter from the persisted entries.
func (m *CatalogMeta) GetNextTableId() common.TableID {
	next := common.TableID(0)
	for id := range m.TableMetaPages {
		if id >= next {
			next = id + 1
		}
	}
	return next
}

// GetNextIndexId derives the index id counter likewise.
func (m *CatalogMeta) GetNextIndexId() common.IndexID {
	next := common.IndexID(0)
	for id := range m.IndexMetaPages {
		if id >= next {
			next = id + 1
		}
	}
	return next
}
