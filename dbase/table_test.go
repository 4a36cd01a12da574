package dbase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCountAndDeletedCount(t *testing.T) {
	table := openBytes(t, exampleTable(), nil, &Config{})

	count, err := table.Count()
	require.NoError(t, err)
	require.Equal(t, 2, count)

	deleted, err := table.DeletedCount()
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	rows := make([]*Row, 0)
	for row, err := range table.Records() {
		require.NoError(t, err)
		rows = append(rows, row)
	}
	require.Len(t, rows, 2)
	name, err := rows[0].ValueByName("NAME")
	require.NoError(t, err)
	require.Equal(t, "Alice", ToTrimmedString(name))
	require.Equal(t, time.Date(1990, 1, 15, 0, 0, 0, 0, time.UTC), rows[0].Value(1))

	for row, err := range table.DeletedRecords() {
		require.NoError(t, err)
		require.True(t, row.Deleted)
		require.Equal(t, 2, row.Position)
		require.Equal(t, "Carol", row.Value(0))
	}
}

func TestNextYieldsDeletedRecords(t *testing.T) {
	table := openBytes(t, exampleTable(), nil, &Config{})

	flags := make([]bool, 0)
	for {
		row, err := table.Next()
		if errors.Is(err, ErrEOF) {
			break
		}
		require.NoError(t, err)
		flags = append(flags, row.Deleted)
	}
	require.Equal(t, []bool{false, false, true}, flags)

	_, err := table.Next()
	require.ErrorIs(t, err, ErrEOF)
}

func TestSkipDeletedAndMaxRecords(t *testing.T) {
	tests := []struct {
		description string
		config      *Config
		expected    []string
	}{
		{"Everything", &Config{}, []string{"Alice", "Bob", "Carol"}},
		{"Skip deleted", &Config{SkipDeleted: true}, []string{"Alice", "Bob"}},
		{"Max records", &Config{MaxRecords: 1}, []string{"Alice"}},
		{"Max records counts yielded records", &Config{MaxRecords: 5, SkipDeleted: true}, []string{"Alice", "Bob"}},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			table := openBytes(t, exampleTable(), nil, tt.config)
			names := make([]string, 0)
			for {
				row, err := table.Next()
				if errors.Is(err, ErrEOF) {
					break
				}
				require.NoError(t, err)
				names = append(names, ToString(row.Value(0)))
			}
			require.Equal(t, tt.expected, names)

			// Counting ignores the enumeration options.
			count, err := table.Count()
			require.NoError(t, err)
			require.Equal(t, 2, count)
		})
	}
}

func TestStreamAndLoadAgree(t *testing.T) {
	table := openBytes(t, exampleTable(), nil, &Config{BufferSize: 30})

	streamed := make([][]interface{}, 0)
	for {
		row, err := table.Next()
		if errors.Is(err, ErrEOF) {
			break
		}
		require.NoError(t, err)
		streamed = append(streamed, row.Values())
	}

	require.NoError(t, table.Load())
	require.True(t, table.Loaded())
	rows, err := table.Rows()
	require.NoError(t, err)
	require.Len(t, rows, len(streamed))
	for i, row := range rows {
		require.Equal(t, streamed[i], row.Values())
	}

	// Next serves the materialized rows.
	row, err := table.Next()
	require.NoError(t, err)
	require.Same(t, rows[0], row)

	last, err := table.Row(2)
	require.NoError(t, err)
	require.True(t, last.Deleted)

	_, err = table.Row(3)
	require.ErrorIs(t, err, ErrInvalidPosition)

	table.Unload()
	require.False(t, table.Loaded())
	count := 0
	for _, err := range table.Records() {
		require.NoError(t, err)
		count++
	}
	require.Equal(t, 2, count)
}

func TestRandomAccessRequiresLoad(t *testing.T) {
	table := openBytes(t, exampleTable(), nil, &Config{})

	_, err := table.Row(0)
	require.ErrorIs(t, err, ErrNotLoaded)
	_, err = table.Rows()
	require.ErrorIs(t, err, ErrNotLoaded)
}

func TestLoadContextCancelled(t *testing.T) {
	table := openBytes(t, exampleTable(), nil, &Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := table.LoadContext(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, table.Loaded())

	// The table is still streaming from the start.
	row, err := table.Next()
	require.NoError(t, err)
	require.Equal(t, "Alice", row.Value(0))
}

func TestUnsupportedVersion(t *testing.T) {
	data := exampleTable()
	data[0] = 0xFF

	_, err := OpenSource(NewBytesSource(data), nil, &Config{})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUnsupportedVersion)

	var versionErr *VersionError
	require.True(t, errors.As(err, &versionErr))
	require.Equal(t, byte(0xFF), versionErr.Version)
}

func TestEmptySource(t *testing.T) {
	_, err := OpenSource(NewBytesSource(nil), nil, &Config{})
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestMissingMemo(t *testing.T) {
	ref := memoRef(1, 10)
	data := buildTable(FoxBasePlusMemo, 0x03, []testColumn{
		{name: "NAME", code: 'C', length: 8},
		{name: "NOTES", code: 'M', length: 10},
	}, []testRecord{
		record(false, "Alice", ref),
		record(false, "Bob", ""),
	})

	t.Run("Ignored", func(t *testing.T) {
		table := openBytes(t, data, nil, &Config{IgnoreMissingMemoFile: true})
		require.Nil(t, table.Memo())
		count := 0
		for row, err := range table.Records() {
			require.NoError(t, err)
			require.Nil(t, row.Value(1))
			count++
		}
		require.Equal(t, 2, count)
	})

	t.Run("Required", func(t *testing.T) {
		_, err := OpenSource(NewBytesSource(data), nil, &Config{})
		require.ErrorIs(t, err, ErrMissingMemo)
	})
}

func TestDBaseIIIMemoTable(t *testing.T) {
	memo, blocks := buildDBT3("first note", "second note")
	data := buildTable(FoxBasePlusMemo, 0x03, []testColumn{
		{name: "NOTES", code: 'M', length: 10},
	}, []testRecord{
		record(false, memoRef(blocks[0], 10)),
		record(false, memoRef(blocks[1], 10)),
		record(false, ""),
	})

	table := openBytes(t, data, memo, &Config{})
	require.Equal(t, MemoDBaseIII, table.Memo().Format())
	require.NoError(t, table.Load())
	rows, err := table.Rows()
	require.NoError(t, err)
	require.Equal(t, "first note", rows[0].Value(0))
	require.Equal(t, "second note", rows[1].Value(0))
	require.Nil(t, rows[2].Value(0))
}

func TestDBaseIVMemoTable(t *testing.T) {
	memo, blocks := buildDBT4(64, "a dBase IV memo that is longer than a single block of sixty four bytes")
	data := buildTable(DBaseMemo, 0x03, []testColumn{
		{name: "NOTES", code: 'M', length: 10},
		{name: "BLOB", code: 'B', length: 10},
	}, []testRecord{
		record(false, memoRef(blocks[0], 10), memoRef(blocks[0], 10)),
	})

	table := openBytes(t, data, memo, &Config{})
	require.Equal(t, Binary, table.Column(1).Type())
	row, err := table.Next()
	require.NoError(t, err)
	require.Equal(t, "a dBase IV memo that is longer than a single block of sixty four bytes", row.Value(0))
	require.Equal(t, []byte("a dBase IV memo that is longer than a single block of sixty four bytes"), row.Value(1))
}

func TestLegacyRecordCount(t *testing.T) {
	columns := []testColumn{{name: "CODE", code: 'C', length: 4}}
	records := make([]testRecord, 14)
	for i := range records {
		records[i] = record(false, padLeft(string(rune('A'+i)), 4))
	}
	data := buildLegacyTable([2]byte{0x00, 0x0E}, columns, records)

	table := openBytes(t, data, nil, &Config{TrimSpaces: true})
	require.True(t, table.Header().Legacy())
	require.Equal(t, uint32(14), table.Header().RecordsCount)
	require.Equal(t, uint16(legacyHeaderSize+legacyColumnSize+1), table.Header().HeaderLength)
	require.Equal(t, uint16(5), table.Header().RecordLength)

	count, err := table.Count()
	require.NoError(t, err)
	require.Equal(t, 14, count)

	row, err := table.Next()
	require.NoError(t, err)
	require.Equal(t, "A", row.Value(0))
}

func TestLegacySingleByteCount(t *testing.T) {
	columns := []testColumn{
		{name: "CODE", code: 'C', length: 3},
		{name: "QTY", code: 'N', length: 3},
	}
	data := buildLegacyTable([2]byte{0x02, 0x00}, columns, []testRecord{
		record(false, "ABC", "  1"),
		record(false, "DEF", " 22"),
	})

	table := openBytes(t, data, nil, &Config{})
	require.Equal(t, uint32(2), table.Header().RecordsCount)
	require.Equal(t, DialectDBaseII, table.Dialect())

	modified, ok := table.Header().Modified()
	require.True(t, ok)
	require.Equal(t, time.Date(1984, 5, 17, 0, 0, 0, 0, time.UTC), modified)

	require.NoError(t, table.Load())
	rows, err := table.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(22), rows[1].Value(1))
}

func TestVisualFoxProNullAndVarchar(t *testing.T) {
	memo, blocks := buildFPT(64,
		MemoPayload{Kind: MemoText, Data: []byte("hello memo")},
		MemoPayload{Kind: MemoPicture, Data: []byte{0x89, 'P', 'N', 'G'}},
	)
	columns := []testColumn{
		{name: "ID", code: 'I', length: 4},
		{name: "NAME", code: 'V', length: 10, flags: byte(NullableFlag)},
		{name: "NOTES", code: 'M', length: 4},
		{name: "IMAGE", code: 'G', length: 4},
		{name: "_NullFlags", code: '0', length: 1, flags: byte(HiddenFlag) | byte(BinaryFlag)},
	}
	data := buildTable(FoxProVar, 0x03, columns, []testRecord{
		record(false, le32(1), "Bob\x00\x00\x00\x00\x00\x00\x03", le32(blocks[0]), le32(blocks[1]), "\x01"),
		record(false, le32(2), "", le32(0), le32(0), "\x02"),
		record(false, le32(3), "ABCDEFGHIJ", le32(0), le32(0), "\x00"),
	})

	table := openBytes(t, data, memo, &Config{})
	require.Equal(t, DialectVisualFoxPro, table.Dialect())
	require.Equal(t, uint16(5), table.Header().ColumnsCount())
	require.True(t, table.Column(1).Nullable())
	require.False(t, table.Column(0).Nullable())

	require.NoError(t, table.Load())
	rows, err := table.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.Equal(t, int32(1), rows[0].Value(0))
	require.Equal(t, "Bob", rows[0].Value(1))
	require.Equal(t, "hello memo", rows[0].Value(2))
	require.Equal(t, []byte{0x89, 'P', 'N', 'G'}, rows[0].Value(3))

	require.Nil(t, rows[1].Value(1))
	require.Nil(t, rows[1].Value(2))

	require.Equal(t, "ABCDEFGHIJ", rows[2].Value(1))
}

func TestVisualFoxProAddresses(t *testing.T) {
	data := buildTable(FoxPro, 0x03, []testColumn{
		{name: "A", code: 'C', length: 3},
		{name: "B", code: 'C', length: 2},
	}, []testRecord{record(false, "abc", "de")})

	table := openBytes(t, data, nil, &Config{})
	require.Equal(t, 1, table.Column(0).Offset())
	require.Equal(t, 4, table.Column(1).Offset())
	require.Equal(t, uint32(4), table.Column(1).Address)
}

func TestValidateFields(t *testing.T) {
	data := buildTable(FoxBasePlus, 0x03, []testColumn{
		{name: "NAME", code: 'C', length: 5},
		{name: "QTY", code: 'N', length: 5},
	}, []testRecord{
		record(false, "ok", "   12"),
		record(false, "bad", "  abc"),
	})

	t.Run("Placeholder", func(t *testing.T) {
		table := openBytes(t, data, nil, &Config{})
		require.NoError(t, table.Load())
		rows, err := table.Rows()
		require.NoError(t, err)
		require.False(t, rows[0].Invalid())
		require.True(t, rows[1].Invalid())
		invalid, ok := rows[1].Value(1).(InvalidValue)
		require.True(t, ok)
		require.Equal(t, []byte("  abc"), invalid.Raw)
		require.Error(t, invalid.Err)
		require.Equal(t, "bad", rows[1].Value(0))
	})

	t.Run("Error", func(t *testing.T) {
		table := openBytes(t, data, nil, &Config{ValidateFields: true})
		_, err := table.Next()
		require.NoError(t, err)
		_, err = table.Next()
		require.ErrorIs(t, err, ErrFieldParse)
		var fieldErr *FieldError
		require.True(t, errors.As(err, &fieldErr))
		require.Equal(t, "QTY", fieldErr.Field)
		require.Equal(t, Numeric, fieldErr.Type)

		require.Error(t, table.Load())
		require.False(t, table.Loaded())
	})
}

func TestCharacterRoundTrip(t *testing.T) {
	converter := ConverterFromCodePage(0xC9)
	name, err := converter.Encode([]byte("Привет мир"))
	require.NoError(t, err)

	data := buildTable(FoxBasePlus, 0xC9, []testColumn{
		{name: "NAME", code: 'C', length: 20},
	}, []testRecord{record(false, "  "+string(name))})

	tests := []struct {
		description string
		config      *Config
		expected    string
	}{
		{"Trailing padding only", &Config{}, "  Привет мир"},
		{"Trim spaces", &Config{TrimSpaces: true}, "Привет мир"},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			table := openBytes(t, data, nil, tt.config)
			require.Equal(t, "windows-1251", table.Converter().Name())
			row, err := table.Next()
			require.NoError(t, err)
			require.Equal(t, tt.expected, row.Value(0))
		})
	}

	// Re-encoding the untrimmed value reproduces the stored field.
	table := openBytes(t, data, nil, &Config{})
	row, err := table.Next()
	require.NoError(t, err)
	encoded, err := table.Converter().Encode([]byte(ToString(row.Value(0))))
	require.NoError(t, err)
	column := table.Column(0)
	stored := data[int(table.Header().HeaderLength)+column.Offset():][:column.Length()]
	require.Equal(t, stored, pad(string(encoded), column.Length()))
}

func TestRecordLengthMatchesColumns(t *testing.T) {
	for _, data := range [][]byte{exampleTable(), numbersTable()} {
		table := openBytes(t, data, nil, &Config{})
		total := 1
		for _, column := range table.Columns() {
			total += column.Length()
		}
		require.Equal(t, int(table.Header().RecordLength), total)
	}
}

func TestEncodingOverride(t *testing.T) {
	encoded, err := ConverterFromCodePage(0x26).Encode([]byte("Ж"))
	require.NoError(t, err)
	data := buildTable(FoxBasePlus, 0x03, []testColumn{
		{name: "NAME", code: 'C', length: 4},
	}, []testRecord{record(false, string(encoded))})

	table := openBytes(t, data, nil, &Config{Encoding: "cp866"})
	row, err := table.Next()
	require.NoError(t, err)
	require.Equal(t, "Ж", row.Value(0))

	_, err = OpenSource(NewBytesSource(data), nil, &Config{Encoding: "no-such-encoding"})
	require.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestCustomParser(t *testing.T) {
	parser := FieldParserFunc(func(column *Column, raw []byte, ctx *ParseContext) (interface{}, error) {
		if column.Fallback() {
			return "custom:" + string(trimRight(raw)), nil
		}
		return DefaultParser{}.Parse(column, raw, ctx)
	})
	data := buildTable(FoxBasePlus, 0x03, []testColumn{
		{name: "NAME", code: 'C', length: 4},
		{name: "ODD", code: 'X', length: 3},
	}, []testRecord{record(false, "abc", "xyz")})

	table := openBytes(t, data, nil, &Config{Parser: parser})
	row, err := table.Next()
	require.NoError(t, err)
	require.Equal(t, "abc", row.Value(0))
	require.Equal(t, "custom:xyz", row.Value(1))
}

func TestColumnLookup(t *testing.T) {
	tests := []struct {
		description string
		config      *Config
		lookup      string
		expected    int
	}{
		{"Exact", &Config{}, "BIRTHDATE", 1},
		{"Case sensitive miss", &Config{}, "birthdate", -1},
		{"Ignore case", &Config{IgnoreCase: true}, "birthDate", 1},
		{"Lowercase names", &Config{LowercaseFieldNames: true}, "name", 0},
		{"Unknown", &Config{IgnoreCase: true}, "AGE", -1},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			table := openBytes(t, exampleTable(), nil, tt.config)
			require.Equal(t, tt.expected, table.ColumnPosByName(tt.lookup))
			if tt.expected >= 0 {
				require.Equal(t, table.Column(tt.expected), table.ColumnByName(tt.lookup))
			} else {
				require.Nil(t, table.ColumnByName(tt.lookup))
			}
		})
	}

	table := openBytes(t, exampleTable(), nil, &Config{})
	require.Equal(t, []string{"NAME", "BIRTHDATE"}, table.ColumnNames())
	require.Equal(t, uint16(2), table.ColumnsCount())
	require.Nil(t, table.Column(2))
}

func TestDegenerateHeader(t *testing.T) {
	data := exampleTable()
	// Header and record length both zero.
	copy(data[8:12], []byte{0, 0, 0, 0})

	table := openBytes(t, data, nil, &Config{})
	require.Equal(t, uint16(headerSize+2*columnSize+1), table.Header().HeaderLength)
	require.Equal(t, uint16(25), table.Header().RecordLength)
	row, err := table.Next()
	require.NoError(t, err)
	require.Equal(t, "Alice", row.Value(0))
}

func TestTruncatedTable(t *testing.T) {
	data := exampleTable()
	// Cut the deleted record in half and drop the EOF marker.
	data = data[:len(data)-14]

	table := openBytes(t, data, nil, &Config{})
	count := 0
	for {
		_, err := table.Next()
		if errors.Is(err, ErrEOF) {
			break
		}
		require.NoError(t, err)
		count++
	}
	require.Equal(t, 2, count)
}

func TestClose(t *testing.T) {
	table, err := OpenSource(NewBytesSource(exampleTable()), nil, &Config{})
	require.NoError(t, err)

	require.NoError(t, table.Close())
	require.NoError(t, table.Close())

	_, err = table.Next()
	require.ErrorIs(t, err, ErrClosed)
	_, err = table.Count()
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, table.Load(), ErrClosed)
}

func TestOpenFile(t *testing.T) {
	memo, blocks := buildFPT(64, MemoPayload{Kind: MemoText, Data: []byte("stored on disk")})
	data := buildTable(FoxPro, 0x03, []testColumn{
		{name: "NAME", code: 'C', length: 8},
		{name: "NOTES", code: 'M', length: 4},
	}, []testRecord{record(false, "disk", le32(blocks[0]))})

	dir := t.TempDir()
	writeFile(t, dir, "people.dbf", data)
	writeFile(t, dir, "PEOPLE.fpt", memo)

	for _, mapped := range []bool{false, true} {
		t.Run(map[bool]string{false: "Read", true: "Memory map"}[mapped], func(t *testing.T) {
			table, err := Open(&Config{Filename: dir + "/PEOPLE.DBF", MemoryMap: mapped})
			require.NoError(t, err)
			defer table.Close()

			require.NotNil(t, table.Memo())
			require.Equal(t, 64, table.Memo().BlockSize())
			row, err := table.Next()
			require.NoError(t, err)
			require.Equal(t, "disk", row.Value(0))
			require.Equal(t, "stored on disk", row.Value(1))
		})
	}
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(nil)
	require.Error(t, err)

	_, err = Open(&Config{})
	require.Error(t, err)

	_, err = Open(&Config{Filename: t.TempDir() + "/MISSING.DBF"})
	require.ErrorIs(t, err, ErrNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	path := writeFile(t, t.TempDir(), "TABLE.DBF", exampleTable())
	_, err = OpenContext(ctx, &Config{Filename: path})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFileStreaming(t *testing.T) {
	all := []string{"Alice", "Bob", "Carol", "Dave", "Eve"}
	tests := []struct {
		description string
		bufferSize  int
	}{
		{"Smaller than a record", 10},
		{"Single record", 25},
		{"Between two records", 30},
		{"Two records", 50},
		{"Whole file", 0},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			table := openFile(t, peopleTable(), &Config{BufferSize: tt.bufferSize})
			require.Equal(t, all, streamNames(t, table))

			table.Rewind()
			streamed := make([][]interface{}, 0)
			for {
				row, err := table.Next()
				if errors.Is(err, ErrEOF) {
					break
				}
				require.NoError(t, err)
				streamed = append(streamed, row.Values())
			}

			require.NoError(t, table.Load())
			rows, err := table.Rows()
			require.NoError(t, err)
			require.Len(t, rows, len(streamed))
			for i, row := range rows {
				require.Equal(t, streamed[i], row.Values())
			}
		})
	}
}

func TestFileStreamingTruncatedTail(t *testing.T) {
	data := peopleTable()
	// Drop the EOF marker and half of the last record.
	data = data[:len(data)-1-12]

	for _, bufferSize := range []int{25, 30, 0} {
		table := openFile(t, data, &Config{BufferSize: bufferSize})
		require.Equal(t, []string{"Alice", "Bob", "Carol", "Dave"}, streamNames(t, table))

		count, err := table.Count()
		require.NoError(t, err)
		require.Equal(t, 3, count)

		require.NoError(t, table.Load())
		rows, err := table.Rows()
		require.NoError(t, err)
		require.Len(t, rows, 4)
	}
}

func TestMaxRecordsAfterDeletedFilter(t *testing.T) {
	table := openBytes(t, peopleTable(), nil, &Config{MaxRecords: 2})

	names := make([]string, 0)
	for row, err := range table.Records() {
		require.NoError(t, err)
		names = append(names, ToString(row.Value(0)))
	}
	require.Equal(t, []string{"Alice", "Carol"}, names)

	names = names[:0]
	for row, err := range table.DeletedRecords() {
		require.NoError(t, err)
		names = append(names, ToString(row.Value(0)))
	}
	require.Equal(t, []string{"Bob"}, names)

	// Next returns deleted records and counts them.
	table.Rewind()
	require.Equal(t, []string{"Alice", "Bob"}, streamNames(t, table))
}

func TestMemoColumnWithoutMemoFormat(t *testing.T) {
	data := buildLegacyTable([2]byte{1, 0}, []testColumn{
		{name: "NAME", code: 'C', length: 4},
		{name: "NOTES", code: 'M', length: 10},
	}, []testRecord{record(false, "Anna", memoRef(1, 10))})

	t.Run("Required", func(t *testing.T) {
		_, err := OpenSource(NewBytesSource(data), nil, &Config{})
		require.ErrorIs(t, err, ErrMissingMemo)
	})

	t.Run("Ignored", func(t *testing.T) {
		table := openBytes(t, data, nil, &Config{IgnoreMissingMemoFile: true})
		require.Nil(t, table.Memo())
		row, err := table.Next()
		require.NoError(t, err)
		require.Equal(t, "Anna", row.Value(0))
		require.Nil(t, row.Value(1))
	})
}
