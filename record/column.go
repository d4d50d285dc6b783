package record

import (
	"github.com/juju/errors"
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/util"
)

// TypeID enumerates the storable field types.
type TypeID uint8

const (
	TypeInvalid TypeID = iota
	TypeInt
	TypeFloat
	TypeChar
)

// Column describes one attribute of a schema. Length is the declared width
// for char columns; ints and floats are fixed four bytes.
type Column struct {
	Name     string
	Type     TypeID
	Length   uint32
	Index    uint32
	Nullable bool
}

func NewColumn(name string, typ TypeID, index uint32, nullable bool) *Column {
	length := uint32(4)
	if typ == TypeChar {
		length = 0
	}
	return &Column{Name: name, Type: typ, Length: length, Index: index, Nullable: nullable}
}

func NewCharColumn(name string, length uint32, index uint32, nullable bool) *Column {
	return &Column{Name: name, Type: TypeChar, Length: length, Index: index, Nullable: nullable}
}

// FixedWidth returns the key-encoding width of the column.
func (c *Column) FixedWidth() uint32 {
	if c.Type == TypeChar {
		return c.Length
	}
	return 4
}

// SerializeTo appends the column description to buf.
func (c *Column) SerializeTo(buf []byte) []byte {
	buf = util.WriteUB4(buf, uint32(len(c.Name)))
	buf = util.WriteBytes(buf, []byte(c.Name))
	buf = util.WriteByte(buf, byte(c.Type))
	buf = util.WriteUB4(buf, c.Length)
	buf = util.WriteUB4(buf, c.Index)
	buf = util.WriteByte(buf, util.ConvertBool2Byte(c.Nullable))
	return buf
}

// DeserializeColumnFrom decodes a column at cursor, returning the advanced
// cursor.
func DeserializeColumnFrom(buf []byte, cursor int) (int, *Column, error) {
	if cursor+4 > len(buf) {
		return cursor, nil, errors.Trace(common.ErrPageCorrupted)
	}
	cursor, nameLen := util.ReadUB4(buf, cursor)
	if cursor+int(nameLen)+10 > len(buf) {
		return cursor, nil, errors.Trace(common.ErrPageCorrupted)
	}
	cursor, nameBytes := util.ReadBytes(buf, cursor, int(nameLen))
	col := &Column{Name: string(nameBytes)}
	var b byte
	cursor, b = util.ReadByte(buf, cursor)
	col.Type = TypeID(b)
	cursor, col.Length = util.ReadUB4(buf, cursor)
	cursor, col.Index = util.ReadUB4(buf, cursor)
	cursor, b = util.ReadByte(buf, cursor)
	col.Nullable = b != 0
	return cursor, col, nil
}
