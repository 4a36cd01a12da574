package dbase

import "fmt"

// Marker is a single byte with a structural meaning inside a table file.
type Marker byte

const (
	Null      Marker = 0x00
	Blank     Marker = 0x20
	ColumnEnd Marker = 0x0D
	Active           = Blank
	Deleted   Marker = 0x2A
	EOFMarker Marker = 0x1A
)

// FileVersion is the version byte at offset 0 of a table file.
// https://docs.microsoft.com/en-us/previous-versions/visualstudio/foxpro/st4a0s68(v=vs.80)
type FileVersion byte

const (
	DBaseII               FileVersion = 0x02
	FoxBasePlus           FileVersion = 0x03
	DBaseIV               FileVersion = 0x04
	DBaseV                FileVersion = 0x05
	VisualObjects         FileVersion = 0x07
	FoxPro                FileVersion = 0x30
	FoxProAutoincrement   FileVersion = 0x31
	FoxProVar             FileVersion = 0x32
	DBaseSQLTable         FileVersion = 0x43
	DBaseSQLSystem        FileVersion = 0x63
	DBaseIVMemoAlt        FileVersion = 0x7B
	FoxBasePlusMemo       FileVersion = 0x83
	VisualObjectsMemo     FileVersion = 0x87
	DBaseMemo             FileVersion = 0x8B
	DBaseSQLTableMemoAlt  FileVersion = 0x8E
	DBaseSQLMemo          FileVersion = 0xCB
	ClipperSixMemo        FileVersion = 0xE5
	FoxPro2Memo           FileVersion = 0xF5
	FoxBase               FileVersion = 0xFB
)

// Dialect groups file versions that share the same on-disk layout rules.
type Dialect uint8

const (
	DialectUnknown Dialect = iota
	// DialectDBaseII uses the 8 byte mini header and 16 byte field descriptors.
	DialectDBaseII
	DialectDBaseIII
	DialectDBaseIV
	DialectFoxPro
	// DialectVisualFoxPro stores the field displacement inside each descriptor.
	DialectVisualFoxPro
)

// MemoFormat names the layout of the memo side file.
type MemoFormat uint8

const (
	MemoNone MemoFormat = iota
	MemoDBaseIII
	MemoDBaseIV
	MemoFPT
)

type dialectInfo struct {
	name    string
	dialect Dialect
	memo    MemoFormat
}

var versions = map[FileVersion]dialectInfo{
	DBaseII:              {"dBase II", DialectDBaseII, MemoNone},
	FoxBasePlus:          {"FoxBASE+/dBase III plus, no memo", DialectDBaseIII, MemoDBaseIII},
	DBaseIV:              {"dBase IV, no memo", DialectDBaseIV, MemoDBaseIV},
	DBaseV:               {"dBase V, no memo", DialectDBaseIV, MemoDBaseIV},
	VisualObjects:        {"Visual Objects, no memo", DialectDBaseIII, MemoDBaseIII},
	FoxPro:               {"Visual FoxPro", DialectVisualFoxPro, MemoFPT},
	FoxProAutoincrement:  {"Visual FoxPro, autoincrement enabled", DialectVisualFoxPro, MemoFPT},
	FoxProVar:            {"Visual FoxPro, varchar/varbinary", DialectVisualFoxPro, MemoFPT},
	DBaseSQLTable:        {"dBase IV SQL table, no memo", DialectDBaseIV, MemoDBaseIV},
	DBaseSQLSystem:       {"dBase IV SQL system, no memo", DialectDBaseIV, MemoDBaseIV},
	DBaseIVMemoAlt:       {"dBase IV with memo", DialectDBaseIV, MemoDBaseIV},
	FoxBasePlusMemo:      {"FoxBASE+/dBase III plus, with memo", DialectDBaseIII, MemoDBaseIII},
	VisualObjectsMemo:    {"Visual Objects, with memo", DialectDBaseIII, MemoDBaseIII},
	DBaseMemo:            {"dBase IV with memo", DialectDBaseIV, MemoDBaseIV},
	DBaseSQLTableMemoAlt: {"dBase IV SQL table, with memo", DialectDBaseIV, MemoDBaseIV},
	DBaseSQLMemo:         {"dBase IV SQL table, with memo", DialectDBaseIV, MemoDBaseIV},
	ClipperSixMemo:       {"Clipper SIX, with memo", DialectDBaseIII, MemoDBaseIII},
	FoxPro2Memo:          {"FoxPro 2.x, with memo", DialectFoxPro, MemoFPT},
	FoxBase:              {"FoxBASE", DialectDBaseIII, MemoDBaseIII},
}

// Known reports whether the version byte maps to a supported dialect.
func (v FileVersion) Known() bool {
	_, ok := versions[v]
	return ok
}

// Dialect returns the layout family of the version or DialectUnknown.
func (v FileVersion) Dialect() Dialect {
	return versions[v].dialect
}

// MemoFormat returns the memo file layout used by tables of this version.
func (v FileVersion) MemoFormat() MemoFormat {
	return versions[v].memo
}

func (v FileVersion) String() string {
	if info, ok := versions[v]; ok {
		return info.name
	}
	return fmt.Sprintf("unknown (0x%02X)", byte(v))
}

func (d Dialect) String() string {
	switch d {
	case DialectDBaseII:
		return "dBase II"
	case DialectDBaseIII:
		return "dBase III"
	case DialectDBaseIV:
		return "dBase IV"
	case DialectFoxPro:
		return "FoxPro"
	case DialectVisualFoxPro:
		return "Visual FoxPro"
	default:
		return "unknown"
	}
}

func (m MemoFormat) String() string {
	switch m {
	case MemoDBaseIII:
		return "dBase III DBT"
	case MemoDBaseIV:
		return "dBase IV DBT"
	case MemoFPT:
		return "FoxPro FPT"
	default:
		return "none"
	}
}

// Extension returns the memo file extension for the format.
func (m MemoFormat) Extension() FileExtension {
	if m == MemoFPT {
		return FPT
	}
	return DBT
}

// TableFlag is a bit in the table flags byte (offset 28).
type TableFlag byte

const (
	StructuralFlag TableFlag = 0x01
	MemoFlag       TableFlag = 0x02
	DatabaseFlag   TableFlag = 0x04
)

func (t TableFlag) Defined(flag byte) bool {
	return t&TableFlag(flag) == t
}

// ColumnFlag is a bit in the Visual FoxPro field flags byte.
type ColumnFlag byte

const (
	HiddenFlag        ColumnFlag = 0x01
	NullableFlag      ColumnFlag = 0x02
	BinaryFlag        ColumnFlag = 0x04
	AutoincrementFlag ColumnFlag = 0x0C
)

func (c ColumnFlag) Defined(flag byte) bool {
	return c&ColumnFlag(flag) == c
}

type FileExtension string

const (
	DBF FileExtension = ".DBF"
	DBT FileExtension = ".DBT"
	FPT FileExtension = ".FPT"
	DBC FileExtension = ".DBC"
	DCT FileExtension = ".DCT"
)

const (
	headerSize            = 32
	legacyHeaderSize      = 8
	columnSize            = 32
	legacyColumnSize      = 16
	maxColumns            = 255
	nullFlagsColumn       = "_NullFlags"
	defaultFallbackLength = 10
	defaultBufferSize     = 64 * 1024
)
