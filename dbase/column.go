package dbase

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Column is a decoded field descriptor.
// https://docs.microsoft.com/en-us/previous-versions/visualstudio/foxpro/st4a0s68(v=vs.80)#field-subrecords-structure
type Column struct {
	FieldName [11]byte // Column name, null padded
	Code      byte     // On-disk type code
	Address   uint32   // Displacement of the field in the record (Visual FoxPro, dBase II)
	RawLength uint8    // Length byte as stored
	Decimals  uint8    // Number of decimal places
	Flags     byte     // Visual FoxPro field flags

	name      string
	fieldType FieldType
	length    int
	offset    int
	position  int
	nullBit   int
	varBit    int
	fallback  bool
}

// Name returns the column name, lowercased if configured.
func (c *Column) Name() string {
	return c.name
}

// Type returns the resolved field type. Unknown codes resolve to Character.
func (c *Column) Type() FieldType {
	return c.fieldType
}

// Length is the actual length of the field within the record.
func (c *Column) Length() int {
	return c.length
}

// Offset is the position of the field within the record, the deletion flag being byte 0.
func (c *Column) Offset() int {
	return c.offset
}

// Position is the index of the column in the table.
func (c *Column) Position() int {
	return c.position
}

// Fallback reports whether the column was synthesized from an unknown type code.
func (c *Column) Fallback() bool {
	return c.fallback
}

// Nullable reports whether the column may hold nil through the null flags.
func (c *Column) Nullable() bool {
	return c.nullBit >= 0
}

// Binary reports whether a memo or character column holds binary data (Visual FoxPro NOCPTRANS).
func (c *Column) Binary() bool {
	return BinaryFlag.Defined(c.Flags)
}

// Reflect returns the Go type of non-null values of the column.
func (c *Column) Reflect() (reflect.Type, error) {
	switch {
	case c.fieldType == Numeric && c.Decimals > 0:
		return floatType, nil
	case c.fieldType == Memo && c.Binary():
		return bytesType, nil
	}
	return c.fieldType.Reflect()
}

func (c *Column) String() string {
	return fmt.Sprintf("%s %s(%d,%d)", c.name, c.fieldType, c.length, c.Decimals)
}

// columnRule decides whether a raw descriptor is a real field or where the field table ends.
type columnRule int

const (
	strictRule columnRule = iota
	permissiveRule
)

func columnName(raw []byte) string {
	if i := bytes.IndexByte(raw, 0x00); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(string(raw))
}

func printable(name string) bool {
	for i := 0; i < len(name); i++ {
		if name[i] < 0x20 || name[i] > 0x7E {
			return false
		}
	}
	return true
}

// newColumn validates a descriptor and derives the actual length. ok is false
// when the descriptor marks the end of the field table.
func newColumn(c *Column, dialect Dialect, rule columnRule, legacy bool) bool {
	name := columnName(c.FieldName[:])
	if name == "" {
		return false
	}
	if legacy && rule == strictRule && !printable(name) {
		return false
	}
	fieldType, known := resolveFieldType(c.Code, dialect)
	if !known && legacy && rule == strictRule {
		return false
	}
	c.name = name
	c.fieldType = fieldType
	c.length = int(c.RawLength)
	c.nullBit, c.varBit = -1, -1
	switch {
	case !known:
		c.fallback = true
		if c.length == 0 {
			c.length = defaultFallbackLength
		}
		debugf("Unknown type code 0x%02X for column %s, reading it as character(%d)", c.Code, name, c.length)
	case fieldType == Character && rule == strictRule && !legacy:
		c.length |= int(c.Decimals) << 8
	}
	return c.length > 0
}

func decodeColumn(b []byte, dialect Dialect, rule columnRule) (*Column, bool) {
	c := &Column{
		Code:      b[11],
		Address:   binary.LittleEndian.Uint32(b[12:16]),
		RawLength: b[16],
		Decimals:  b[17],
		Flags:     b[18],
	}
	copy(c.FieldName[:], b[:11])
	if !newColumn(c, dialect, rule, false) {
		return nil, false
	}
	return c, true
}

// dBase II: name[11], type, length, address (u16), decimals.
func decodeLegacyColumn(b []byte, rule columnRule) (*Column, bool) {
	c := &Column{
		Code:      b[11],
		RawLength: b[12],
		Address:   uint32(binary.LittleEndian.Uint16(b[13:15])),
		Decimals:  b[15],
	}
	copy(c.FieldName[:], b[:11])
	if !newColumn(c, DialectDBaseII, rule, true) {
		return nil, false
	}
	return c, true
}

// readColumns reads descriptors until a terminator, an invalid descriptor or the
// column cap. The cursor is left behind the last valid descriptor.
func readColumns(c *cursor, h *Header, rule columnRule) []*Column {
	dialect := h.Version.Dialect()
	size, start := columnSize, int64(headerSize)
	if h.legacy {
		size, start = legacyColumnSize, legacyHeaderSize
	}
	c.reset(start)
	columns := make([]*Column, 0)
	for len(columns) < maxColumns {
		b, err := c.peek()
		if err != nil {
			break
		}
		if Marker(b) == ColumnEnd {
			break
		}
		if rule == strictRule && !h.legacy && (Marker(b) == Null || Marker(b) == EOFMarker) {
			break
		}
		// The permissive pass must not run into the records.
		if rule == permissiveRule && !h.legacy && !h.degenerate && c.mark()+int64(size) > int64(h.HeaderLength) {
			break
		}
		mark := c.mark()
		raw, err := c.read(size)
		if err != nil {
			c.reset(mark)
			break
		}
		var column *Column
		var ok bool
		if h.legacy {
			column, ok = decodeLegacyColumn(raw, rule)
		} else {
			column, ok = decodeColumn(raw, dialect, rule)
		}
		if !ok {
			debugf("Invalid column descriptor at offset %d, end of field table", mark)
			c.reset(mark)
			break
		}
		column.position = len(columns)
		debugf("Found column %v at offset %d", column, mark)
		columns = append(columns, column)
	}
	return columns
}

// decodeColumns runs the strict pass and, if it finds nothing while the header
// promises a field table, a permissive recovery pass.
func decodeColumns(c *cursor, h *Header) ([]*Column, error) {
	debugf("Reading columns...")
	columns := readColumns(c, h, strictRule)
	if len(columns) == 0 && h.promisesColumns(c.src.Size()) {
		debugf("No columns found, retrying with permissive descriptor validation")
		columns = readColumns(c, h, permissiveRule)
	}
	if len(columns) == 0 {
		return nil, newError("dbase-column-decode-1", ErrMalformed)
	}
	end := c.mark()
	if b, err := c.peek(); err == nil && Marker(b) == ColumnEnd {
		end++
	}
	if err := h.layout(columns, end, c); err != nil {
		return nil, newError("dbase-column-decode-2", err)
	}
	return columns, nil
}

func (h *Header) promisesColumns(size int64) bool {
	if h.legacy {
		return size >= legacyHeaderSize+legacyColumnSize
	}
	if h.degenerate {
		return size >= headerSize+columnSize
	}
	return int(h.HeaderLength) >= headerSize+columnSize
}

// layout assigns record offsets and null flag bits and recomputes the header
// lengths where they can not be trusted.
func (h *Header) layout(columns []*Column, end int64, c *cursor) error {
	total := 1
	for _, column := range columns {
		total += column.length
	}
	if (h.legacy || h.degenerate) && total > math.MaxUint16 {
		return newErrorf("dbase-column-layout-1", "%w: record length %d exceeds %d", ErrMalformed, total, math.MaxUint16)
	}
	if h.legacy {
		h.RecordLength = uint16(total)
		h.HeaderLength = uint16(legacyHeaderSize + len(columns)*legacyColumnSize)
		// A terminator may sit between field table and data.
		c.reset(int64(h.HeaderLength))
		if b, err := c.peek(); err == nil && Marker(b) == ColumnEnd {
			h.HeaderLength++
		}
		debugf("Legacy layout: header length %d - record length %d", h.HeaderLength, h.RecordLength)
	} else if h.degenerate {
		h.RecordLength = uint16(total)
		if h.HeaderLength < uint16(end) {
			h.HeaderLength = uint16(end)
		}
		debugf("Recomputed layout: header length %d - record length %d", h.HeaderLength, h.RecordLength)
	} else if int(h.RecordLength) != total {
		debugf("Declared record length %d differs from column total %d", h.RecordLength, total)
	}

	addressed := h.Version.Dialect() == DialectVisualFoxPro
	offset := 1
	bit := 0
	for _, column := range columns {
		column.offset = offset
		// Addresses are one based within the data behind the deletion flag.
		if addressed && column.Address > 0 && int(column.Address)+column.length <= int(h.RecordLength) {
			column.offset = int(column.Address)
		}
		offset += column.length
		if h.Version.Dialect() != DialectVisualFoxPro || strings.EqualFold(column.name, nullFlagsColumn) {
			continue
		}
		if column.fieldType == Varchar || column.fieldType == Varbinary {
			column.varBit = bit
			bit++
		}
		if NullableFlag.Defined(column.Flags) {
			column.nullBit = bit
			bit++
		}
	}
	return nil
}
