package dbase

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// RecordView borrows the raw bytes of the current record. Getters decode
// single fields on demand without building a Row. A view and every byte
// slice it returns are only valid inside the Scan callback that received it.
type RecordView struct {
	table     *Table
	index     uint32
	raw       []byte
	nullFlags []byte
}

// Scan calls fn for every record Next would return, starting at the first
// record. Returning a non-nil error from fn stops the scan and is returned.
// Scan is not available in loaded mode since rows are already decoded.
func (t *Table) Scan(fn func(view *RecordView) error) error {
	if t.closed {
		return newError("dbase-view-scan-1", ErrClosed)
	}
	if t.loaded {
		return newErrorf("dbase-view-scan-2", "scan requires streaming mode, call Unload first")
	}
	t.Rewind()
	defer t.Rewind()
	view := &RecordView{table: t}
	for {
		index, raw, err := t.advance(t.visible)
		if errors.Is(err, ErrEOF) {
			return nil
		}
		if err != nil {
			return newError("dbase-view-scan-3", err)
		}
		view.index = index
		view.raw = raw
		view.nullFlags = nil
		if t.nullFlags != nil {
			view.nullFlags = fieldBytes(raw, t.nullFlags)
		}
		if err := fn(view); err != nil {
			return err
		}
	}
}

// Position returns the physical record index.
func (v *RecordView) Position() int {
	return int(v.index)
}

func (v *RecordView) Deleted() bool {
	return Marker(v.raw[0]) == Deleted
}

// Raw returns the complete record including the deletion flag.
func (v *RecordView) Raw() []byte {
	return v.raw
}

func (v *RecordView) column(pos int) (*Column, error) {
	column := v.table.Column(pos)
	if column == nil {
		return nil, newErrorf("dbase-view-column-1", "%w: column %d", ErrInvalidPosition, pos)
	}
	return column, nil
}

// data returns the field bytes after null and var-length handling.
func (v *RecordView) data(pos int) (*Column, []byte, bool, error) {
	column, err := v.column(pos)
	if err != nil {
		return nil, nil, false, err
	}
	data, null, err := v.table.fieldData(column, v.raw, v.nullFlags)
	if err != nil {
		return nil, nil, false, newError("dbase-view-data-1", err)
	}
	return column, data, null, nil
}

// Bytes returns the raw field bytes, nil if the field is null.
func (v *RecordView) Bytes(pos int) ([]byte, error) {
	_, data, _, err := v.data(pos)
	return data, err
}

// Null reports whether the field is null by its null flag or blank content of a nullable type.
func (v *RecordView) Null(pos int) (bool, error) {
	column, data, null, err := v.data(pos)
	if err != nil || null {
		return null, err
	}
	return column.fieldType.Nullable() && blank(data), nil
}

// Value decodes the field like Row values are decoded.
func (v *RecordView) Value(pos int) (interface{}, error) {
	column, err := v.column(pos)
	if err != nil {
		return nil, err
	}
	value, err := v.table.decodeField(column, v.raw, v.nullFlags)
	if err != nil {
		return nil, newError("dbase-view-value-1", err)
	}
	return value, nil
}

// String decodes character, varchar and memo fields to UTF-8. Other types
// return their trimmed text.
func (v *RecordView) String(pos int) (string, error) {
	column, data, null, err := v.data(pos)
	if err != nil || null {
		return "", err
	}
	switch column.fieldType {
	case Character, Varchar, Memo:
		value, err := v.table.parser.Parse(column, data, &v.table.parse)
		if err != nil {
			return "", newError("dbase-view-string-1", err)
		}
		return ToString(value), nil
	}
	return string(trimLeft(trimRight(data))), nil
}

// Int decodes integer, autoincrement and numeric fields. ok is false for null values.
func (v *RecordView) Int(pos int) (int64, bool, error) {
	column, data, null, err := v.data(pos)
	if err != nil || null {
		return 0, false, err
	}
	switch column.fieldType {
	case Integer, Autoincrement:
		if len(data) != 4 {
			return 0, false, newErrorf("dbase-view-int-1", "invalid integer length %d", len(data))
		}
		return int64(int32(binary.LittleEndian.Uint32(data))), true, nil
	case Numeric, Float:
		d, ok, err := v.decimal(column, data)
		if err != nil || !ok {
			return 0, ok, err
		}
		return d.IntPart(), true, nil
	case Currency:
		if len(data) != 8 {
			return 0, false, newErrorf("dbase-view-int-2", "invalid currency length %d", len(data))
		}
		return int64(binary.LittleEndian.Uint64(data)) / 10000, true, nil
	}
	return 0, false, newErrorf("dbase-view-int-3", "column %s of type %v is not numeric", column.Name(), column.fieldType)
}

// Float decodes any numeric field to float64. ok is false for null values.
func (v *RecordView) Float(pos int) (float64, bool, error) {
	column, data, null, err := v.data(pos)
	if err != nil || null {
		return 0, false, err
	}
	switch column.fieldType {
	case Numeric, Float, Currency, Integer, Autoincrement:
		d, ok, err := v.decimal(column, data)
		if err != nil || !ok {
			return 0, ok, err
		}
		f, _ := d.Float64()
		return f, true, nil
	case Double:
		value, err := v.table.parser.Parse(column, data, &v.table.parse)
		if err != nil {
			return 0, false, newError("dbase-view-float-1", err)
		}
		return ToFloat64(value), true, nil
	}
	return 0, false, newErrorf("dbase-view-float-2", "column %s of type %v is not numeric", column.Name(), column.fieldType)
}

// Decimal decodes numeric, float, integer and currency fields exactly.
// ok is false for null values.
func (v *RecordView) Decimal(pos int) (decimal.Decimal, bool, error) {
	column, data, null, err := v.data(pos)
	if err != nil || null {
		return decimal.Zero, false, err
	}
	return v.decimal(column, data)
}

func (v *RecordView) decimal(column *Column, data []byte) (decimal.Decimal, bool, error) {
	switch column.fieldType {
	case Numeric, Float:
		text, ok := numericText(data)
		if !ok {
			return decimal.Zero, false, nil
		}
		d, err := decimal.NewFromString(text)
		if err != nil {
			return decimal.Zero, false, newError("dbase-view-decimal-1", &FieldError{Field: column.Name(), Type: column.fieldType, Raw: append([]byte(nil), data...), Err: err})
		}
		return d, true, nil
	case Currency:
		if len(data) != 8 {
			return decimal.Zero, false, newErrorf("dbase-view-decimal-2", "invalid currency length %d", len(data))
		}
		return decimal.New(int64(binary.LittleEndian.Uint64(data)), -4), true, nil
	case Integer, Autoincrement:
		if len(data) != 4 {
			return decimal.Zero, false, newErrorf("dbase-view-decimal-3", "invalid integer length %d", len(data))
		}
		return decimal.NewFromInt32(int32(binary.LittleEndian.Uint32(data))), true, nil
	}
	return decimal.Zero, false, newErrorf("dbase-view-decimal-4", "column %s of type %v has no decimal representation", column.Name(), column.fieldType)
}

// Date decodes date and timestamp fields. ok is false for null values.
func (v *RecordView) Date(pos int) (time.Time, bool, error) {
	column, data, null, err := v.data(pos)
	if err != nil || null {
		return time.Time{}, false, err
	}
	var value interface{}
	switch column.fieldType {
	case Date:
		value, err = parseDate(data)
	case Timestamp:
		value, err = parseDateTime(data)
	case AltTimestamp:
		value, err = parseAltDateTime(data)
	default:
		return time.Time{}, false, newErrorf("dbase-view-date-1", "column %s of type %v is not a date", column.Name(), column.fieldType)
	}
	if err != nil {
		return time.Time{}, false, newError("dbase-view-date-2", &FieldError{Field: column.Name(), Type: column.fieldType, Raw: append([]byte(nil), data...), Err: err})
	}
	if value == nil {
		return time.Time{}, false, nil
	}
	return value.(time.Time), true, nil
}

// Bool decodes logical fields. ok is false for null values.
func (v *RecordView) Bool(pos int) (bool, bool, error) {
	column, data, null, err := v.data(pos)
	if err != nil || null {
		return false, false, err
	}
	if column.fieldType != Logical {
		return false, false, newErrorf("dbase-view-bool-1", "column %s of type %v is not logical", column.Name(), column.fieldType)
	}
	value, err := parseLogical(data)
	if err != nil {
		return false, false, newError("dbase-view-bool-2", &FieldError{Field: column.Name(), Type: column.fieldType, Raw: append([]byte(nil), data...), Err: err})
	}
	if value == nil {
		return false, false, nil
	}
	return value.(bool), true, nil
}
