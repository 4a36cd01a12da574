package dbase

import (
	"fmt"
	"reflect"
	"time"
)

// FieldType is the decoded type of a column. The set is closed: every on-disk
// type code resolves to exactly one FieldType, unknown codes to Character.
type FieldType uint8

const (
	Character FieldType = iota
	Date
	Float
	Integer
	Logical
	Memo
	Numeric
	Double
	Picture
	Timestamp
	Currency
	Binary
	Varchar
	Autoincrement
	AltTimestamp
	Flags
	General
	Blob
	Varbinary
)

type fieldTraits struct {
	name     string
	code     byte
	kind     reflect.Type
	nullable bool
	memo     bool
}

var (
	stringType = reflect.TypeOf("")
	timeType   = reflect.TypeOf(time.Time{})
	floatType  = reflect.TypeOf(float64(0))
	int32Type  = reflect.TypeOf(int32(0))
	int64Type  = reflect.TypeOf(int64(0))
	boolType   = reflect.TypeOf(false)
	bytesType  = reflect.TypeOf([]byte{})
)

var fieldTypes = [...]fieldTraits{
	Character:     {"Character", 'C', stringType, false, false},
	Date:          {"Date", 'D', timeType, true, false},
	Float:         {"Float", 'F', floatType, true, false},
	Integer:       {"Integer", 'I', int32Type, false, false},
	Logical:       {"Logical", 'L', boolType, true, false},
	Memo:          {"Memo", 'M', stringType, true, true},
	Numeric:       {"Numeric", 'N', int64Type, true, false},
	Double:        {"Double", 'B', floatType, false, false},
	Picture:       {"Picture", 'P', bytesType, true, true},
	Timestamp:     {"Timestamp", 'T', timeType, true, false},
	Currency:      {"Currency", 'Y', floatType, false, false},
	Binary:        {"Binary", 'B', bytesType, true, true},
	Varchar:       {"Varchar", 'V', stringType, false, false},
	Autoincrement: {"Autoincrement", '+', int32Type, false, false},
	AltTimestamp:  {"AltTimestamp", '@', timeType, true, false},
	Flags:         {"Flags", '0', bytesType, false, false},
	General:       {"General", 'G', bytesType, true, true},
	Blob:          {"Blob", 'W', bytesType, true, true},
	Varbinary:     {"Varbinary", 'Q', bytesType, false, false},
}

func (t FieldType) valid() bool {
	return int(t) < len(fieldTypes)
}

func (t FieldType) String() string {
	if !t.valid() {
		return fmt.Sprintf("FieldType(%d)", uint8(t))
	}
	return fieldTypes[t].name
}

// Code returns the canonical on-disk type code.
func (t FieldType) Code() byte {
	if !t.valid() {
		return 0
	}
	return fieldTypes[t].code
}

// Reflect returns the Go type a non-null value of this type decodes to.
// Numeric columns with decimals decode to float64 instead of int64.
func (t FieldType) Reflect() (reflect.Type, error) {
	if !t.valid() {
		return nil, newErrorf("dbase-types-reflect-1", "invalid field type %d", uint8(t))
	}
	return fieldTypes[t].kind, nil
}

// Nullable reports whether blank on-disk content decodes to nil.
func (t FieldType) Nullable() bool {
	return t.valid() && fieldTypes[t].nullable
}

// MemoBacked reports whether the raw bytes are a block reference into the memo file.
func (t FieldType) MemoBacked() bool {
	return t.valid() && fieldTypes[t].memo
}

// resolveFieldType maps an on-disk type code to a FieldType. The 'B' code is a
// binary memo in dBase IV and a double everywhere else.
func resolveFieldType(code byte, dialect Dialect) (FieldType, bool) {
	switch code {
	case 'C', 'c':
		return Character, true
	case 'D', 'd':
		return Date, true
	case 'F', 'f':
		return Float, true
	case 'I', 'i':
		return Integer, true
	case 'L', 'l':
		return Logical, true
	case 'M', 'm':
		return Memo, true
	case 'N', 'n':
		return Numeric, true
	case 'B', 'b':
		if dialect == DialectDBaseIV || dialect == DialectDBaseIII {
			return Binary, true
		}
		return Double, true
	case 'O':
		return Double, true
	case 'P':
		return Picture, true
	case 'T':
		return Timestamp, true
	case 'Y':
		return Currency, true
	case 'V':
		return Varchar, true
	case '+':
		return Autoincrement, true
	case '@':
		return AltTimestamp, true
	case '0':
		return Flags, true
	case 'G':
		return General, true
	case 'W':
		return Blob, true
	case 'Q':
		return Varbinary, true
	}
	return Character, false
}
