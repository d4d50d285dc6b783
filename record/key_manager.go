package record

import (
	"math"

	"github.com/zjuerme/MiniSQL/util"
)

// KeyManager packs composite keys at a fixed byte width and supplies the
// total order the B+ tree compares with. Each key column occupies its fixed
// width: four bytes for int/float, the declared length for char.
//
// With a rid suffix the packed key carries the owning row's rid after the
// column bytes, big-endian so a bytewise compare matches numeric order.
// That keeps tree keys unique while the indexed columns repeat across rows.
type KeyManager struct {
	keySchema *Schema
	keySize   int
	ridSuffix bool
}

func NewKeyManager(keySchema *Schema) KeyManager {
	size := 0
	for _, c := range keySchema.Columns {
		size += int(c.FixedWidth())
	}
	return KeyManager{keySchema: keySchema, keySize: size}
}

// NewIndexKeyManager builds the rid-suffixed variant secondary indexes use.
func NewIndexKeyManager(keySchema *Schema) KeyManager {
	km := NewKeyManager(keySchema)
	km.ridSuffix = true
	km.keySize += RowIdSize
	return km
}

func (km KeyManager) GetKeySize() int {
	return km.keySize
}

func (km KeyManager) GetKeySchema() *Schema {
	return km.keySchema
}

// EncodeKey packs the fields of a key row into the fixed-width form. Null
// fields encode as zeroes; index keys are expected non-null. For a
// rid-suffixed manager the suffix is left at its minimum, which is what
// range probes want.
func (km KeyManager) EncodeKey(keyRow *Row) []byte {
	buf := make([]byte, 0, km.keySize)
	for i, c := range km.keySchema.Columns {
		f := keyRow.Fields[i]
		if f.IsNull {
			buf = append(buf, make([]byte, c.FixedWidth())...)
			continue
		}
		buf = f.SerializeTo(buf, c)
	}
	if km.ridSuffix {
		buf = append(buf, make([]byte, RowIdSize)...)
	}
	return buf
}

// EncodeIndexKey packs the key columns followed by the owning rid.
func (km KeyManager) EncodeIndexKey(keyRow *Row, rid RowId) []byte {
	key := km.EncodeKey(keyRow)
	if km.ridSuffix {
		packed := rid.Get()
		for i := 0; i < RowIdSize; i++ {
			key[len(key)-RowIdSize+i] = byte(packed >> uint(56-8*i))
		}
	}
	return key
}

// DecodeKey unpacks a stored key into its fields.
func (km KeyManager) DecodeKey(key []byte) *Row {
	fields := make([]*Field, 0, len(km.keySchema.Columns))
	cursor := 0
	for _, c := range km.keySchema.Columns {
		var f *Field
		cursor, f = DeserializeFieldFrom(key, cursor, c, false)
		fields = append(fields, f)
	}
	return NewRow(fields)
}

// CompareKeys orders two packed keys column by column, breaking ties on the
// rid suffix when present.
func (km KeyManager) CompareKeys(a, b []byte) int {
	if cmp := km.ComparePrefixKeys(a, b); cmp != 0 {
		return cmp
	}
	if km.ridSuffix {
		suffix := km.keySize - RowIdSize
		for i := suffix; i < km.keySize; i++ {
			if a[i] != b[i] {
				if a[i] < b[i] {
					return -1
				}
				return 1
			}
		}
	}
	return 0
}

// ComparePrefixKeys orders only the column bytes, ignoring any rid suffix.
// Index scans use this to group entries that share the indexed values.
func (km KeyManager) ComparePrefixKeys(a, b []byte) int {
	cursor := 0
	for _, c := range km.keySchema.Columns {
		width := int(c.FixedWidth())
		av, bv := a[cursor:cursor+width], b[cursor:cursor+width]
		if cmp := compareColumn(c, av, bv); cmp != 0 {
			return cmp
		}
		cursor += width
	}
	return 0
}

func compareColumn(c *Column, a, b []byte) int {
	switch c.Type {
	case TypeInt:
		av, bv := int32(util.GetUB4(a, 0)), int32(util.GetUB4(b, 0))
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case TypeFloat:
		av := math.Float32frombits(util.GetUB4(a, 0))
		bv := math.Float32frombits(util.GetUB4(b, 0))
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	default:
		for i := range a {
			if a[i] != b[i] {
				if a[i] < b[i] {
					return -1
				}
				return 1
			}
		}
		return 0
	}
}
