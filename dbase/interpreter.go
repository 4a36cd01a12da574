package dbase

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ParseContext carries what a field parser needs besides the raw bytes.
type ParseContext struct {
	Memo              MemoFile          // Bound memo file, nil if none is open
	Converter         EncodingConverter // Table encoding
	TrimSpaces        bool              // Trim leading padding of character fields
	IgnoreMissingMemo bool              // Memo-backed fields without memo file are nil
}

// FieldParser converts the raw bytes of one field into a Go value.
// Set Config.Parser to replace the default decoding, e.g. to handle a
// producer specific type code.
type FieldParser interface {
	Parse(column *Column, raw []byte, ctx *ParseContext) (interface{}, error)
}

// FieldParserFunc adapts a function to the FieldParser interface.
type FieldParserFunc func(column *Column, raw []byte, ctx *ParseContext) (interface{}, error)

func (f FieldParserFunc) Parse(column *Column, raw []byte, ctx *ParseContext) (interface{}, error) {
	return f(column, raw, ctx)
}

// DefaultParser decodes every FieldType. The returned Go types are:
//
// | Column Type | Column Type Name | Golang type |
// | ----------- | ---------------- | ----------- |
// | B | Double (Visual FoxPro) | float64 |
// | B | Binary memo (dBase IV) | []byte |
// | C | Character | string |
// | D | Date | time.Time |
// | F | Float | float64 |
// | G | General | []byte |
// | I | Integer | int32 |
// | L | Logical | bool |
// | M | Memo | string |
// | M | Memo (Binary) | []byte |
// | N | Numeric (0 decimals) | int64 |
// | N | Numeric (with decimals) | float64 |
// | O | Double (dBase 7) | float64 |
// | P | Picture | []byte |
// | Q | Varbinary | []byte |
// | T | DateTime | time.Time |
// | V | Varchar | string |
// | W | Blob | []byte |
// | Y | Currency | float64 |
// | + | Autoincrement | int32 |
// | @ | Timestamp | time.Time |
// | 0 | Flags | []byte |
//
// Nullable types decode blank content to nil.
type DefaultParser struct{}

func (DefaultParser) Parse(column *Column, raw []byte, ctx *ParseContext) (interface{}, error) {
	switch column.fieldType {
	case Character, Varchar:
		return parseCharacter(raw, ctx)
	case Numeric:
		return parseNumeric(raw, column.Decimals)
	case Float:
		// Any non-zero decimal count forces float64.
		return parseNumeric(raw, 1)
	case Integer, Autoincrement:
		if len(raw) != 4 {
			return nil, fmt.Errorf("invalid integer length %d", len(raw))
		}
		return int32(binary.LittleEndian.Uint32(raw)), nil
	case Logical:
		return parseLogical(raw)
	case Date:
		return parseDate(raw)
	case Timestamp:
		return parseDateTime(raw)
	case AltTimestamp:
		return parseAltDateTime(raw)
	case Currency:
		if len(raw) != 8 {
			return nil, fmt.Errorf("invalid currency length %d", len(raw))
		}
		return float64(int64(binary.LittleEndian.Uint64(raw))) / 10000, nil
	case Double:
		if len(raw) != 8 {
			return nil, fmt.Errorf("invalid double length %d", len(raw))
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(raw)), nil
	case Flags, Varbinary:
		return append([]byte(nil), raw...), nil
	case Memo, General, Picture, Binary, Blob:
		return parseMemo(column, raw, ctx)
	}
	return nil, fmt.Errorf("unsupported field type %v", column.fieldType)
}

// parseCharacter always trims trailing padding, leading padding only if requested.
// An all padding field is an empty string.
func parseCharacter(raw []byte, ctx *ParseContext) (interface{}, error) {
	raw = trimRight(raw)
	if ctx.TrimSpaces {
		raw = trimLeft(raw)
	}
	if len(raw) == 0 {
		return "", nil
	}
	if ctx.Converter == nil {
		return string(raw), nil
	}
	utf8, err := ctx.Converter.Decode(raw)
	if err != nil {
		return nil, err
	}
	return string(utf8), nil
}

func parseMemo(column *Column, raw []byte, ctx *ParseContext) (interface{}, error) {
	block, ok, err := memoReference(raw)
	if err != nil || !ok {
		return nil, err
	}
	if ctx.Memo == nil {
		if ctx.IgnoreMissingMemo {
			return nil, nil
		}
		return nil, ErrMissingMemo
	}
	payload, err := ctx.Memo.Read(block)
	if err != nil {
		return nil, err
	}
	if column.fieldType != Memo || column.Binary() || payload.Kind != MemoText {
		return payload.Data, nil
	}
	if ctx.Converter == nil {
		return string(payload.Data), nil
	}
	text, err := ctx.Converter.Decode(payload.Data)
	if err != nil {
		return nil, err
	}
	return string(text), nil
}
