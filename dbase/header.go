package dbase

import (
	"encoding/binary"
	"time"
)

// Header contains the table header information like version, last change and record count.
// https://docs.microsoft.com/en-us/previous-versions/visualstudio/foxpro/st4a0s68(v=vs.80)#table-header-record-structure
type Header struct {
	Version      FileVersion // File type flag
	Year         uint8       // Last update year (0-99)
	Month        uint8       // Last update month
	Day          uint8       // Last update day
	RecordsCount uint32      // Declared number of records
	HeaderLength uint16      // Position of the first record
	RecordLength uint16      // Length of one record, including the deletion flag
	Encrypted    byte        // Encryption flag (offset 15)
	TableFlags   byte        // Table flags, MDX presence in the first bit (offset 28)
	CodePage     byte        // Language driver id (offset 29)

	legacy      bool
	degenerate  bool
	countBytes  [2]byte
	countSource string
}

// decodeHeader reads the header at the start of the source. A version byte
// without a known dialect is the only fatal condition.
func decodeHeader(c *cursor) (*Header, error) {
	debugf("Reading header...")
	first, err := c.peek()
	if err != nil {
		return nil, newError("dbase-header-decode-1", ErrIncomplete)
	}
	version := FileVersion(first)
	if !version.Known() {
		return nil, newError("dbase-header-decode-2", &VersionError{Version: first})
	}
	if version.Dialect() == DialectDBaseII {
		return decodeLegacyHeader(c)
	}
	b, err := c.read(headerSize)
	if err != nil {
		return nil, newError("dbase-header-decode-3", err)
	}
	h := &Header{
		Version:      version,
		Year:         b[1],
		Month:        b[2],
		Day:          b[3],
		RecordsCount: binary.LittleEndian.Uint32(b[4:8]),
		HeaderLength: binary.LittleEndian.Uint16(b[8:10]),
		RecordLength: binary.LittleEndian.Uint16(b[10:12]),
		Encrypted:    b[15],
		TableFlags:   b[28],
		CodePage:     b[29],
	}
	// Keep going with minimal lengths, the field table decides later.
	if h.HeaderLength < headerSize+1 {
		debugf("Degenerate header length %d, using minimum", h.HeaderLength)
		h.HeaderLength = headerSize + 1
		h.degenerate = true
	}
	if h.RecordLength == 0 {
		debugf("Degenerate record length, using minimum")
		h.RecordLength = 1
		h.degenerate = true
	}
	debugf("Header: version %v - records %d - header length %d - record length %d - code page 0x%02X", h.Version, h.RecordsCount, h.HeaderLength, h.RecordLength, h.CodePage)
	return h, nil
}

// dBase II: version, record count, last update (M D Y), record length.
func decodeLegacyHeader(c *cursor) (*Header, error) {
	b, err := c.read(legacyHeaderSize)
	if err != nil {
		return nil, newError("dbase-header-decodelegacy-1", err)
	}
	h := &Header{
		Version:      FileVersion(b[0]),
		Month:        b[3],
		Day:          b[4],
		Year:         b[5],
		RecordLength: binary.LittleEndian.Uint16(b[6:8]),
		legacy:       true,
		countBytes:   [2]byte{b[1], b[2]},
	}
	h.RecordsCount = uint32(b[1])
	debugf("Legacy header: raw count bytes % X - record length %d", b[1:3], h.RecordLength)
	return h, nil
}

// resolveLegacyCount picks the first record count interpretation that fits into
// the source: the single byte, then the 16 bit value in both byte orders.
func (h *Header) resolveLegacyCount(size int64) {
	candidates := []struct {
		name  string
		count uint32
	}{
		{"u8", uint32(h.countBytes[0])},
		{"u16le", uint32(binary.LittleEndian.Uint16(h.countBytes[:]))},
		{"u16be", uint32(binary.BigEndian.Uint16(h.countBytes[:]))},
	}
	fallback := -1
	for i, candidate := range candidates {
		if candidate.count == 0 {
			continue
		}
		if fallback < 0 {
			fallback = i
		}
		if int64(h.HeaderLength)+int64(candidate.count)*int64(h.RecordLength) <= size {
			h.RecordsCount = candidate.count
			h.countSource = candidate.name
			debugf("Legacy record count %d (%s)", h.RecordsCount, candidate.name)
			return
		}
	}
	if fallback >= 0 {
		h.RecordsCount = candidates[fallback].count
		h.countSource = candidates[fallback].name
	} else {
		h.RecordsCount = 0
	}
	debugf("Legacy record count %d not verifiable against file size %d", h.RecordsCount, size)
}

// Legacy reports whether the header uses the dBase II layout.
func (h *Header) Legacy() bool {
	return h.legacy
}

// Modified returns the date of the last update. Years below 80 are in the
// 2000s, others in the 1900s. ok is false if the stored date is invalid.
func (h *Header) Modified() (time.Time, bool) {
	if h.Month < 1 || h.Month > 12 || h.Day < 1 || h.Day > 31 {
		return time.Time{}, false
	}
	year := 1900 + int(h.Year)
	if h.Year < 80 {
		year = 2000 + int(h.Year)
	}
	t := time.Date(year, time.Month(h.Month), int(h.Day), 0, 0, 0, 0, time.UTC)
	// time.Date normalizes dates like 31.02.
	if t.Day() != int(h.Day) {
		return time.Time{}, false
	}
	return t, true
}

// MDX reports whether the structural index flag is set.
func (h *Header) MDX() bool {
	return !h.legacy && StructuralFlag.Defined(h.TableFlags)
}

// ColumnsCount returns the number of columns derived from the header length alone.
// Visual FoxPro headers carry a 263 byte backlink after the terminator.
func (h *Header) ColumnsCount() uint16 {
	if h.legacy {
		if h.HeaderLength < legacyHeaderSize {
			return 0
		}
		return (h.HeaderLength - legacyHeaderSize) / legacyColumnSize
	}
	reserved := uint16(headerSize + 1)
	if h.Version.Dialect() == DialectVisualFoxPro {
		reserved += 263
	}
	if h.HeaderLength < reserved {
		return 0
	}
	return (h.HeaderLength - reserved) / columnSize
}

// FileSize returns the table size implied by the header, without the trailing EOF marker.
func (h *Header) FileSize() int64 {
	return int64(h.HeaderLength) + int64(h.RecordsCount)*int64(h.RecordLength)
}
