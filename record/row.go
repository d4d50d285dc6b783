package record

import (
	"github.com/juju/errors"
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/util"
)

// Row is an ordered list of fields plus the rid locating it in the heap.
// Serialized form: rid || (is_null byte, value bytes) per column.
type Row struct {
	Rid    RowId
	Fields []*Field
}

func NewRow(fields []*Field) *Row {
	return &Row{Rid: InvalidRowId, Fields: fields}
}

func NewRowWithRid(rid RowId) *Row {
	return &Row{Rid: rid}
}

func (r *Row) GetField(i int) *Field {
	return r.Fields[i]
}

// SerializeTo appends the row to buf according to schema.
func (r *Row) SerializeTo(buf []byte, schema *Schema) ([]byte, error) {
	if len(r.Fields) != schema.GetColumnCount() {
		return buf, errors.Errorf("row has %d fields, schema has %d columns", len(r.Fields), schema.GetColumnCount())
	}
	buf = util.WriteUB8(buf, r.Rid.Get())
	for i, f := range r.Fields {
		buf = util.WriteByte(buf, util.ConvertBool2Byte(f.IsNull))
		buf = f.SerializeTo(buf, schema.GetColumn(i))
	}
	return buf, nil
}

// DeserializeFrom decodes a row at cursor, returning the advanced cursor.
func (r *Row) DeserializeFrom(buf []byte, cursor int, schema *Schema) (int, error) {
	if cursor+RowIdSize > len(buf) {
		return cursor, errors.Trace(common.ErrPageCorrupted)
	}
	var packed uint64
	cursor, packed = util.ReadUB8(buf, cursor)
	r.Rid = NewRowIdFromInt64(packed)
	r.Fields = make([]*Field, 0, schema.GetColumnCount())
	for i := 0; i < schema.GetColumnCount(); i++ {
		col := schema.GetColumn(i)
		var b byte
		cursor, b = util.ReadByte(buf, cursor)
		var f *Field
		cursor, f = DeserializeFieldFrom(buf, cursor, col, b != 0)
		r.Fields = append(r.Fields, f)
	}
	return cursor, nil
}

// GetSerializedSize is the byte width SerializeTo produces.
func (r *Row) GetSerializedSize(schema *Schema) int {
	size := RowIdSize
	for i, f := range r.Fields {
		size += 1 + f.SerializedSize(schema.GetColumn(i))
	}
	return size
}

// GetKeyFromRow projects the key columns of this row into a key row.
func (r *Row) GetKeyFromRow(columnIndices []uint32) *Row {
	fields := make([]*Field, 0, len(columnIndices))
	for _, idx := range columnIndices {
		fields = append(fields, r.Fields[idx])
	}
	return NewRow(fields)
}
