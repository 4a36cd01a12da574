package dbase

import (
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// EncodingConverter translates between the table code page and UTF-8.
type EncodingConverter interface {
	Decode(in []byte) ([]byte, error)
	Encode(in []byte) ([]byte, error)
	CodePage() byte
	Name() string
}

type DefaultConverter struct {
	encoding encoding.Encoding
	codePage byte
	name     string
}

type languageDriver struct {
	encoding encoding.Encoding
	name     string
}

// Language driver ids as written by dBase, FoxPro and Visual FoxPro.
// Code pages x/text has no table for are mapped to their closest relative.
var languageDrivers = map[byte]languageDriver{
	0x01: {charmap.CodePage437, "cp437"},
	0x02: {charmap.CodePage850, "cp850"},
	0x03: {charmap.Windows1252, "windows-1252"},
	0x04: {charmap.Macintosh, "macintosh"},
	0x08: {charmap.CodePage865, "cp865"},
	0x09: {charmap.CodePage437, "cp437"},
	0x0A: {charmap.CodePage850, "cp850"},
	0x0B: {charmap.CodePage437, "cp437"},
	0x0D: {charmap.CodePage437, "cp437"},
	0x0E: {charmap.CodePage850, "cp850"},
	0x0F: {charmap.CodePage437, "cp437"},
	0x10: {charmap.CodePage850, "cp850"},
	0x11: {charmap.CodePage437, "cp437"},
	0x12: {charmap.CodePage850, "cp850"},
	0x13: {japanese.ShiftJIS, "shift_jis"},
	0x14: {charmap.CodePage850, "cp850"},
	0x15: {charmap.CodePage437, "cp437"},
	0x16: {charmap.CodePage850, "cp850"},
	0x17: {charmap.CodePage865, "cp865"},
	0x18: {charmap.CodePage437, "cp437"},
	0x19: {charmap.CodePage437, "cp437"},
	0x1A: {charmap.CodePage850, "cp850"},
	0x1B: {charmap.CodePage437, "cp437"},
	0x1C: {charmap.CodePage863, "cp863"},
	0x1D: {charmap.CodePage850, "cp850"},
	0x1F: {charmap.CodePage852, "cp852"},
	0x22: {charmap.CodePage852, "cp852"},
	0x23: {charmap.CodePage852, "cp852"},
	0x24: {charmap.CodePage860, "cp860"},
	0x25: {charmap.CodePage850, "cp850"},
	0x26: {charmap.CodePage866, "cp866"},
	0x37: {charmap.CodePage850, "cp850"},
	0x40: {charmap.CodePage852, "cp852"},
	0x4D: {simplifiedchinese.GBK, "gbk"},
	0x4E: {korean.EUCKR, "euc-kr"},
	0x4F: {traditionalchinese.Big5, "big5"},
	0x50: {charmap.Windows874, "windows-874"},
	0x57: {charmap.Windows1252, "windows-1252"},
	0x58: {charmap.Windows1252, "windows-1252"},
	0x59: {charmap.Windows1252, "windows-1252"},
	0x64: {charmap.CodePage852, "cp852"},
	0x65: {charmap.CodePage866, "cp866"},
	0x66: {charmap.CodePage865, "cp865"},
	0x67: {charmap.CodePage850, "cp850"},
	0x68: {charmap.CodePage852, "cp852"},
	0x69: {charmap.CodePage852, "cp852"},
	0x6A: {charmap.Windows1253, "windows-1253"},
	0x6B: {charmap.Windows1254, "windows-1254"},
	0x6C: {charmap.CodePage863, "cp863"},
	0x78: {traditionalchinese.Big5, "big5"},
	0x79: {korean.EUCKR, "euc-kr"},
	0x7A: {simplifiedchinese.GBK, "gbk"},
	0x7B: {japanese.ShiftJIS, "shift_jis"},
	0x7C: {charmap.Windows874, "windows-874"},
	0x7D: {charmap.Windows1255, "windows-1255"},
	0x7E: {charmap.Windows1256, "windows-1256"},
	0x96: {charmap.MacintoshCyrillic, "x-mac-cyrillic"},
	0xC8: {charmap.Windows1250, "windows-1250"},
	0xC9: {charmap.Windows1251, "windows-1251"},
	0xCA: {charmap.Windows1254, "windows-1254"},
	0xCB: {charmap.Windows1253, "windows-1253"},
	0xCC: {charmap.Windows1257, "windows-1257"},
}

// Decode converts bytes in the table encoding to UTF-8.
func (c DefaultConverter) Decode(in []byte) ([]byte, error) {
	out, _, err := transform.Bytes(c.encoding.NewDecoder(), in)
	if err != nil {
		return nil, newError("dbase-encoding-decode-1", err)
	}
	return out, nil
}

// Encode converts UTF-8 bytes to the table encoding.
func (c DefaultConverter) Encode(in []byte) ([]byte, error) {
	out, _, err := transform.Bytes(c.encoding.NewEncoder(), in)
	if err != nil {
		return nil, newError("dbase-encoding-encode-1", err)
	}
	return out, nil
}

// CodePage returns the language driver id the converter was resolved from, 0 if it was set by name.
func (c DefaultConverter) CodePage() byte {
	return c.codePage
}

func (c DefaultConverter) Name() string {
	return c.name
}

func NewDefaultConverter(enc encoding.Encoding, name string) DefaultConverter {
	return DefaultConverter{encoding: enc, name: name}
}

// ConverterFromCodePage resolves the language driver byte of the header.
// Unknown and zero marks fall back to Windows ANSI (1252).
func ConverterFromCodePage(codePageMark byte) DefaultConverter {
	driver, ok := languageDrivers[codePageMark]
	if !ok {
		if codePageMark != 0 {
			debugf("Unknown language driver 0x%02X, falling back to windows-1252", codePageMark)
		}
		return DefaultConverter{encoding: charmap.Windows1252, name: "windows-1252"}
	}
	return DefaultConverter{encoding: driver.encoding, codePage: codePageMark, name: driver.name}
}

// ConverterFromName resolves an encoding by its WHATWG/IANA label, e.g. "cp866" or "utf-8".
func ConverterFromName(name string) (DefaultConverter, error) {
	label := strings.ToLower(strings.TrimSpace(name))
	if label == "utf-8" || label == "utf8" {
		return DefaultConverter{encoding: unicode.UTF8, name: "utf-8"}, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		for _, driver := range languageDrivers {
			if driver.name == label {
				return DefaultConverter{encoding: driver.encoding, name: driver.name}, nil
			}
		}
		return DefaultConverter{}, newErrorf("dbase-encoding-fromname-1", "%w: %v", ErrInvalidEncoding, name)
	}
	canonical, err := htmlindex.Name(enc)
	if err != nil {
		canonical = label
	}
	return DefaultConverter{encoding: enc, name: canonical}, nil
}
