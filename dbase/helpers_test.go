package dbase

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testColumn struct {
	name     string
	code     byte
	length   uint8
	decimals uint8
	flags    byte
}

type testRecord struct {
	deleted bool
	fields  []string
}

func record(deleted bool, fields ...string) testRecord {
	return testRecord{deleted: deleted, fields: fields}
}

// size returns the number of bytes the column occupies within a record.
func (c testColumn) size() int {
	if c.code == 'C' {
		return int(c.length) | int(c.decimals)<<8
	}
	return int(c.length)
}

// buildTable writes a table with a standard 32 byte header. Visual FoxPro
// versions get field addresses and the 263 byte backlink.
func buildTable(version FileVersion, codePage byte, columns []testColumn, records []testRecord) []byte {
	vfp := version.Dialect() == DialectVisualFoxPro
	headerLength := headerSize + len(columns)*columnSize + 1
	if vfp {
		headerLength += 263
	}
	recordLength := 1
	for _, column := range columns {
		recordLength += column.size()
	}

	out := make([]byte, headerSize, headerLength+len(records)*recordLength+1)
	out[0] = byte(version)
	out[1], out[2], out[3] = 24, 5, 17
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(records)))
	binary.LittleEndian.PutUint16(out[8:10], uint16(headerLength))
	binary.LittleEndian.PutUint16(out[10:12], uint16(recordLength))
	out[29] = codePage

	address := 1
	for _, column := range columns {
		d := make([]byte, columnSize)
		copy(d[:11], column.name)
		d[11] = column.code
		if vfp {
			binary.LittleEndian.PutUint32(d[12:16], uint32(address))
		}
		d[16] = column.length
		d[17] = column.decimals
		d[18] = column.flags
		out = append(out, d...)
		address += column.size()
	}
	out = append(out, byte(ColumnEnd))
	if vfp {
		out = append(out, make([]byte, 263)...)
	}

	for _, r := range records {
		out = append(out, recordBytes(r, columns)...)
	}
	return append(out, byte(EOFMarker))
}

// buildLegacyTable writes a dBase II table with the raw record count bytes.
func buildLegacyTable(countBytes [2]byte, columns []testColumn, records []testRecord) []byte {
	recordLength := 1
	for _, column := range columns {
		recordLength += int(column.length)
	}
	out := make([]byte, legacyHeaderSize)
	out[0] = byte(DBaseII)
	out[1], out[2] = countBytes[0], countBytes[1]
	out[3], out[4], out[5] = 5, 17, 84
	binary.LittleEndian.PutUint16(out[6:8], uint16(recordLength))

	address := 1
	for _, column := range columns {
		d := make([]byte, legacyColumnSize)
		copy(d[:11], column.name)
		d[11] = column.code
		d[12] = column.length
		binary.LittleEndian.PutUint16(d[13:15], uint16(address))
		d[15] = column.decimals
		out = append(out, d...)
		address += int(column.length)
	}
	out = append(out, byte(ColumnEnd))
	for _, r := range records {
		out = append(out, recordBytes(r, columns)...)
	}
	return append(out, byte(EOFMarker))
}

func recordBytes(r testRecord, columns []testColumn) []byte {
	out := []byte{byte(Active)}
	if r.deleted {
		out[0] = byte(Deleted)
	}
	for i, column := range columns {
		value := ""
		if i < len(r.fields) {
			value = r.fields[i]
		}
		out = append(out, pad(value, column.size())...)
	}
	return out
}

// pad left aligns s in a field of n bytes filled with spaces.
func pad(s string, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = ' '
	}
	copy(out, s)
	return out
}

// padLeft right aligns s like numeric fields are stored.
func padLeft(s string, n int) string {
	return fmt.Sprintf("%*s", n, s)
}

func le32(v uint32) string {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return string(b)
}

func le64(v uint64) string {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return string(b)
}

// buildFPT writes a FoxPro memo file. The header takes 512 bytes, payloads
// follow in consecutive blocks. It returns the block index of each payload.
func buildFPT(blockSize int, payloads ...MemoPayload) ([]byte, []uint32) {
	out := make([]byte, 512)
	binary.BigEndian.PutUint16(out[6:8], uint16(blockSize))
	blocks := make([]uint32, 0, len(payloads))
	for _, payload := range payloads {
		blocks = append(blocks, uint32(len(out)/blockSize))
		head := make([]byte, 8)
		binary.BigEndian.PutUint32(head[:4], uint32(payload.Kind))
		binary.BigEndian.PutUint32(head[4:], uint32(len(payload.Data)))
		out = append(out, head...)
		out = append(out, payload.Data...)
		out = alignBlock(out, blockSize)
	}
	binary.BigEndian.PutUint32(out[:4], uint32(len(out)/blockSize))
	return out, blocks
}

// buildDBT3 writes a dBase III memo file with 512 byte blocks.
func buildDBT3(texts ...string) ([]byte, []uint32) {
	out := make([]byte, dbtBlockSize)
	blocks := make([]uint32, 0, len(texts))
	for _, text := range texts {
		blocks = append(blocks, uint32(len(out)/dbtBlockSize))
		out = append(out, text...)
		out = append(out, byte(EOFMarker), byte(EOFMarker))
		out = alignBlock(out, dbtBlockSize)
	}
	binary.LittleEndian.PutUint32(out[:4], uint32(len(out)/dbtBlockSize))
	return out, blocks
}

// buildDBT4 writes a dBase IV memo file whose blocks carry the length header.
func buildDBT4(blockSize int, texts ...string) ([]byte, []uint32) {
	out := alignBlock(make([]byte, 512), blockSize)
	binary.LittleEndian.PutUint16(out[20:22], uint16(blockSize))
	blocks := make([]uint32, 0, len(texts))
	for _, text := range texts {
		blocks = append(blocks, uint32(len(out)/blockSize))
		head := append([]byte(nil), dbaseIVSignature...)
		head = binary.LittleEndian.AppendUint32(head, uint32(len(text)+8))
		out = append(out, head...)
		out = append(out, text...)
		out = alignBlock(out, blockSize)
	}
	binary.LittleEndian.PutUint32(out[:4], uint32(len(out)/blockSize))
	return out, blocks
}

func alignBlock(b []byte, blockSize int) []byte {
	if rest := len(b) % blockSize; rest != 0 {
		b = append(b, make([]byte, blockSize-rest)...)
	}
	return b
}

// memoRef is the ASCII block reference of dBase III and IV memo fields.
func memoRef(block uint32, length int) string {
	return padLeft(fmt.Sprint(block), length)
}

func openBytes(t *testing.T, data []byte, memo []byte, config *Config) *Table {
	t.Helper()
	var memoSrc Source
	if memo != nil {
		memoSrc = NewBytesSource(memo)
	}
	table, err := OpenSource(NewBytesSource(data), memoSrc, config)
	require.NoError(t, err)
	t.Cleanup(func() { table.Close() })
	return table
}

func writeFile(t *testing.T, dir string, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// exampleTable has two active records and a deleted third one.
func exampleTable() []byte {
	return buildTable(FoxBasePlus, 0x03, []testColumn{
		{name: "NAME", code: 'C', length: 16},
		{name: "BIRTHDATE", code: 'D', length: 8},
	}, []testRecord{
		record(false, "Alice", "19900115"),
		record(false, "Bob", "19851224"),
		record(true, "Carol", "20000101"),
	})
}

// peopleTable has five records of 25 bytes, the second one deleted.
func peopleTable() []byte {
	return buildTable(FoxBasePlus, 0x03, []testColumn{
		{name: "NAME", code: 'C', length: 16},
		{name: "BIRTHDATE", code: 'D', length: 8},
	}, []testRecord{
		record(false, "Alice", "19900115"),
		record(true, "Bob", "19851224"),
		record(false, "Carol", "20000101"),
		record(false, "Dave", "19770704"),
		record(false, "Eve", "19991231"),
	})
}

func openFile(t *testing.T, data []byte, config *Config) *Table {
	t.Helper()
	config.Filename = writeFile(t, t.TempDir(), "people.dbf", data)
	table, err := Open(config)
	require.NoError(t, err)
	t.Cleanup(func() { table.Close() })
	return table
}

func streamNames(t *testing.T, table *Table) []string {
	t.Helper()
	names := make([]string, 0)
	for {
		row, err := table.Next()
		if errors.Is(err, ErrEOF) {
			return names
		}
		require.NoError(t, err)
		names = append(names, ToString(row.Value(0)))
	}
}
