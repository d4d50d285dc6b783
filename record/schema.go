package record

import (
	"github.com/juju/errors"
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/util"
)

// Schema is an ordered list of columns.
type Schema struct {
	Columns []*Column
}

func NewSchema(columns []*Column) *Schema {
	return &Schema{Columns: columns}
}

// DeepCopySchema clones the schema so catalog-owned schemas cannot alias
// caller memory.
func DeepCopySchema(s *Schema) *Schema {
	columns := make([]*Column, 0, len(s.Columns))
	for _, c := range s.Columns {
		cc := *c
		columns = append(columns, &cc)
	}
	return &Schema{Columns: columns}
}

func (s *Schema) GetColumnCount() int {
	return len(s.Columns)
}

func (s *Schema) GetColumn(i int) *Column {
	return s.Columns[i]
}

// GetColumnIndex resolves a column name to its position.
func (s *Schema) GetColumnIndex(name string) (uint32, error) {
	for i, c := range s.Columns {
		if c.Name == name {
			return uint32(i), nil
		}
	}
	return 0, errors.Trace(common.ErrColumnNameNotExist)
}

// KeySchema projects the columns at the given positions, preserving order.
func (s *Schema) KeySchema(columnIndices []uint32) *Schema {
	columns := make([]*Column, 0, len(columnIndices))
	for _, idx := range columnIndices {
		cc := *s.Columns[idx]
		columns = append(columns, &cc)
	}
	return &Schema{Columns: columns}
}

func (s *Schema) SerializeTo(buf []byte) []byte {
	buf = util.WriteUB4(buf, uint32(len(s.Columns)))
	for _, c := range s.Columns {
		buf = c.SerializeTo(buf)
	}
	return buf
}

func DeserializeSchemaFrom(buf []byte, cursor int) (int, *Schema, error) {
	cursor, count := util.ReadUB4(buf, cursor)
	columns := make([]*Column, 0, count)
	for i := uint32(0); i < count; i++ {
		var (
			col *Column
			err error
		)
		cursor, col, err = DeserializeColumnFrom(buf, cursor)
		if err != nil {
			return cursor, nil, errors.Trace(err)
		}
		columns = append(columns, col)
	}
	return cursor, &Schema{Columns: columns}, nil
}
