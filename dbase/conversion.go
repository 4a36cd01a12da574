package dbase

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// YMD2JD converts year, month and day to a julian day number
// (days since 01-01-4712 BC).
func YMD2JD(y, m, d int) int {
	return d - 32075 +
		1461*(y+4800+(m-14)/12)/4 +
		367*(m-2-(m-14)/12*12)/12 -
		3*((y+4900+(m-14)/12)/100)/4
}

// JD2YMD converts a julian day number to year, month and day.
func JD2YMD(date int) (int, int, int) {
	l := date + 68569
	n := 4 * l / 146097
	l = l - (146097*n+3)/4
	y := 4000 * (l + 1) / 1461001
	l = l - 1461*y/4 + 31
	m := 80 * l / 2447
	d := l - 2447*m/80
	l = m / 11
	m = m + 2 - 12*l
	y = 100*(n-49) + y + l
	return y, m, d
}

// JDToDate converts a julian day number to a UTC date.
func JDToDate(number int) (time.Time, error) {
	y, m, d := JD2YMD(number)
	if y < 1 || y > 9999 {
		return time.Time{}, newErrorf("dbase-conversion-jdtodate-1", "julian day %d out of range", number)
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC), nil
}

// julianDateTime combines a julian day with milliseconds since midnight.
// A zero day means the field was never set.
func julianDateTime(day, msec int) (time.Time, bool, error) {
	if day == 0 && msec == 0 {
		return time.Time{}, false, nil
	}
	date, err := JDToDate(day)
	if err != nil {
		return time.Time{}, false, err
	}
	return date.Add(time.Duration(msec) * time.Millisecond), true, nil
}

// ToString always returns a string
func ToString(in interface{}) string {
	if str, ok := in.(string); ok {
		return str
	}
	return ""
}

// ToTrimmedString always returns a string with spaces trimmed
func ToTrimmedString(in interface{}) string {
	if str, ok := in.(string); ok {
		return strings.TrimSpace(str)
	}
	return ""
}

// ToInt64 returns integer values of any width as int64, 0 otherwise.
func ToInt64(in interface{}) int64 {
	switch v := in.(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	}
	return 0
}

// ToFloat64 returns numeric values as float64, 0 otherwise.
func ToFloat64(in interface{}) float64 {
	switch v := in.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	}
	return 0.0
}

// ToTime always returns a time.Time
func ToTime(in interface{}) time.Time {
	if t, ok := in.(time.Time); ok {
		return t
	}
	return time.Time{}
}

// ToBool always returns a boolean
func ToBool(in interface{}) bool {
	if b, ok := in.(bool); ok {
		return b
	}
	return false
}

/**
 *	################################################################
 *	#				Raw field helpers
 *	################################################################
 */

// isPadding reports whether the byte is field padding (space or null).
func isPadding(b byte) bool {
	return b == byte(Blank) || b == byte(Null)
}

func trimRight(raw []byte) []byte {
	end := len(raw)
	for end > 0 && isPadding(raw[end-1]) {
		end--
	}
	return raw[:end]
}

func trimLeft(raw []byte) []byte {
	start := 0
	for start < len(raw) && isPadding(raw[start]) {
		start++
	}
	return raw[start:]
}

func blank(raw []byte) bool {
	return len(trimRight(raw)) == 0
}

// numericText returns the trimmed ASCII text of a numeric field with ',' read as
// the decimal separator. ok is false when the field holds no number (blank or a lone '-').
func numericText(raw []byte) (string, bool) {
	text := string(trimLeft(trimRight(raw)))
	if text == "" || text == "-" {
		return "", false
	}
	if strings.IndexByte(text, ',') >= 0 {
		text = strings.ReplaceAll(text, ",", ".")
	}
	return text, true
}

// parseNumeric decodes N/F text. Columns without decimals yield int64 when the
// text is integral, everything else float64.
func parseNumeric(raw []byte, decimals uint8) (interface{}, error) {
	text, ok := numericText(raw)
	if !ok {
		return nil, nil
	}
	if decimals == 0 {
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return i, nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// parseLogical decodes a logical field by its first byte.
func parseLogical(raw []byte) (interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	switch raw[0] {
	case 'T', 't', 'Y', 'y':
		return true, nil
	case 'F', 'f', 'N', 'n':
		return false, nil
	case '?', ' ', '0', 0x00:
		return nil, nil
	}
	return nil, fmt.Errorf("invalid logical value %q", raw[0])
}

// parseDate decodes an 8 byte YYYYMMDD date. Blank and all-zero dates are null.
func parseDate(raw []byte) (interface{}, error) {
	trimmed := trimLeft(trimRight(raw))
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("00000000")) {
		return nil, nil
	}
	if len(trimmed) != 8 {
		return nil, fmt.Errorf("invalid date length %d", len(trimmed))
	}
	t, err := time.Parse("20060102", string(trimmed))
	if err != nil {
		return nil, err
	}
	return t, nil
}

// parseDateTime decodes the Visual FoxPro 'T' layout: LE julian day + LE milliseconds.
func parseDateTime(raw []byte) (interface{}, error) {
	if len(raw) != 8 {
		return nil, fmt.Errorf("invalid datetime length %d", len(raw))
	}
	t, ok, err := julianDateTime(int(binary.LittleEndian.Uint32(raw[:4])), int(binary.LittleEndian.Uint32(raw[4:])))
	if err != nil || !ok {
		return nil, err
	}
	return t, nil
}

// parseAltDateTime decodes the dBase 7 '@' layout: BE julian day + BE milliseconds.
func parseAltDateTime(raw []byte) (interface{}, error) {
	if len(raw) != 8 {
		return nil, fmt.Errorf("invalid timestamp length %d", len(raw))
	}
	t, ok, err := julianDateTime(int(binary.BigEndian.Uint32(raw[:4])), int(binary.BigEndian.Uint32(raw[4:])))
	if err != nil || !ok {
		return nil, err
	}
	return t, nil
}
