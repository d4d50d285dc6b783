package catalog

import (
	"github.com/OneOfOne/xxhash"
	"github.com/juju/errors"
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/record"
	"github.com/zjuerme/MiniSQL/util"
)

// TableMetadata is persisted on the table's dedicated meta page.
type TableMetadata struct {
	TableID       common.TableID
	Name          string
	FirstHeapPage common.PageID
	Schema        *record.Schema
}

func NewTableMetadata(tableID common.TableID, name string, firstHeapPage common.PageID, schema *record.Schema) *TableMetadata {
	return &TableMetadata{TableID: tableID, Name: name, FirstHeapPage: firstHeapPage, Schema: schema}
}

// SerializeTo appends the record followed by a checksum over its payload.
func (m *TableMetadata) SerializeTo(buf []byte) []byte {
	start := len(buf)
	buf = util.WriteUB4(buf, uint32(m.TableID))
	buf = util.WriteUB4(buf, uint32(len(m.Name)))
	buf = util.WriteBytes(buf, []byte(m.Name))
	buf = util.WriteUB4(buf, uint32(m.FirstHeapPage))
	buf = m.Schema.SerializeTo(buf)
	return util.WriteUB4(buf, xxhash.Checksum32(buf[start:]))
}

// DeserializeTableMetadataFrom decodes and verifies a table meta record.
func DeserializeTableMetadataFrom(buf []byte) (*TableMetadata, error) {
	m := &TableMetadata{}
	cursor, id := util.ReadUB4(buf, 0)
	m.TableID = common.TableID(id)
	cursor, nameLen := util.ReadUB4(buf, cursor)
	if cursor+int(nameLen) > len(buf) {
		return nil, errors.Annotate(common.ErrPageCorrupted, "table metadata truncated")
	}
	var nameBytes []byte
	cursor, nameBytes = util.ReadBytes(buf, cursor, int(nameLen))
	m.Name = string(nameBytes)
	var firstPage uint32
	cursor, firstPage = util.ReadUB4(buf, cursor)
	m.FirstHeapPage = common.PageID(firstPage)
	var (
		schema *record.Schema
		err    error
	)
	cursor, schema, err = record.DeserializeSchemaFrom(buf, cursor)
	if err != nil {
		return nil, errors.Trace(err)
	}
	m.Schema = schema

	if util.GetUB4(buf, cursor) != xxhash.Checksum32(buf[:cursor]) {
		return nil, errors.Annotate(common.ErrPageCorrupted, "table metadata checksum mismatch")
	}
	return m, nil
}

// IndexMetadata is persisted on the index's dedicated meta page.
type IndexMetadata struct {
	IndexID          common.IndexID
	Name             string
	TableID          common.TableID
	KeyColumnIndices []uint32
}

func NewIndexMetadata(indexID common.IndexID, name string, tableID common.TableID, keyColumnIndices []uint32) *IndexMetadata {
	return &IndexMetadata{IndexID: indexID, Name: name, TableID: tableID, KeyColumnIndices: keyColumnIndices}
}

func (m *IndexMetadata) SerializeTo(buf []byte) []byte {
	start := len(buf)
	buf = util.WriteUB4(buf, uint32(m.IndexID))
	buf = util.WriteUB4(buf, uint32(len(m.Name)))
	buf = util.WriteBytes(buf, []byte(m.Name))
	buf = util.WriteUB4(buf, uint32(m.TableID))
	buf = util.WriteUB4(buf, uint32(len(m.KeyColumnIndices)))
	for _, idx := range m.KeyColumnIndices {
		buf = util.WriteUB4(buf, idx)
	}
	return util.WriteUB4(buf, xxhash.Checksum32(buf[start:]))
}

// DeserializeIndexMetadataFrom decodes and verifies an index meta record.
func DeserializeIndexMetadataFrom(buf []byte) (*IndexMetadata, error) {
	m := &IndexMetadata{}
	cursor, id := util.ReadUB4(buf, 0)
	m.IndexID = common.IndexID(id)
	cursor, nameLen := util.ReadUB4(buf, cursor)
	if cursor+int(nameLen) > len(buf) {
		return nil, errors.Annotate(common.ErrPageCorrupted, "index metadata truncated")
	}
	var nameBytes []byte
	cursor, nameBytes = util.ReadBytes(buf, cursor, int(nameLen))
	m.Name = string(nameBytes)
	var tableID uint32
	cursor, tableID = util.ReadUB4(buf, cursor)
	m.TableID = common.TableID(tableID)
	var colCount uint32
	cursor, colCount = util.ReadUB4(buf, cursor)
	m.KeyColumnIndices = make([]uint32, 0, colCount)
	for i := uint32(0); i < colCount; i++ {
		var idx uint32
		cursor, idx = util.ReadUB4(buf, cursor)
		m.KeyColumnIndices = append(m.KeyColumnIndices, idx)
	}

	if util.GetUB4(buf, cursor) != xxhash.Checksum32(buf[:cursor]) {
		return nil, errors.Annotate(common.ErrPageCorrupted, "index metadata checksum mismatch")
	}
	return m, nil
}
