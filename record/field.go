package record

import (
	"math"
	"strings"

	"github.com/zjuerme/MiniSQL/util"
)

// Field holds one typed value of a row. Char values are compared and stored
// at their column's declared width, zero padded.
type Field struct {
	Type   TypeID
	Int    int32
	Float  float32
	Chars  string
	IsNull bool
}

func NewIntField(v int32) *Field {
	return &Field{Type: TypeInt, Int: v}
}

func NewFloatField(v float32) *Field {
	return &Field{Type: TypeFloat, Float: v}
}

func NewCharField(v string) *Field {
	return &Field{Type: TypeChar, Chars: v}
}

func NewNullField(typ TypeID) *Field {
	return &Field{Type: typ, IsNull: true}
}

// CompareTo orders two fields of the same type. Null compares less than any
// value and equal to null.
func (f *Field) CompareTo(other *Field) int {
	if f.IsNull || other.IsNull {
		switch {
		case f.IsNull && other.IsNull:
			return 0
		case f.IsNull:
			return -1
		default:
			return 1
		}
	}
	switch f.Type {
	case TypeInt:
		switch {
		case f.Int < other.Int:
			return -1
		case f.Int > other.Int:
			return 1
		}
		return 0
	case TypeFloat:
		switch {
		case f.Float < other.Float:
			return -1
		case f.Float > other.Float:
			return 1
		}
		return 0
	default:
		return strings.Compare(f.Chars, other.Chars)
	}
}

// SerializeTo appends the value bytes at the column's fixed width.
func (f *Field) SerializeTo(buf []byte, col *Column) []byte {
	switch f.Type {
	case TypeInt:
		return util.WriteUB4(buf, uint32(f.Int))
	case TypeFloat:
		return util.WriteUB4(buf, math.Float32bits(f.Float))
	default:
		width := int(col.Length)
		raw := make([]byte, width)
		copy(raw, f.Chars)
		return util.WriteBytes(buf, raw)
	}
}

// DeserializeFieldFrom decodes a value of col's type at cursor.
func DeserializeFieldFrom(buf []byte, cursor int, col *Column, isNull bool) (int, *Field) {
	f := &Field{Type: col.Type, IsNull: isNull}
	switch col.Type {
	case TypeInt:
		var v uint32
		cursor, v = util.ReadUB4(buf, cursor)
		f.Int = int32(v)
	case TypeFloat:
		var v uint32
		cursor, v = util.ReadUB4(buf, cursor)
		f.Float = math.Float32frombits(v)
	default:
		var raw []byte
		cursor, raw = util.ReadBytes(buf, cursor, int(col.Length))
		f.Chars = strings.TrimRight(string(raw), "\x00")
	}
	return cursor, f
}

// SerializedSize is the fixed width the field occupies, excluding the null
// marker byte.
func (f *Field) SerializedSize(col *Column) int {
	if col.Type == TypeChar {
		return int(col.Length)
	}
	return 4
}
