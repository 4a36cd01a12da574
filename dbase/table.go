package dbase

import (
	"context"
	"errors"
	"io"
	"iter"
	"path/filepath"
	"strings"
)

// Table is an open dBase table. It is not safe for concurrent use; open one
// Table per goroutine to read the same file in parallel.
type Table struct {
	config    *Config
	filename  string
	header    *Header
	columns   []*Column
	nullFlags *Column
	names     map[string]int
	mods      []*Modification
	source    Source
	mapped    []byte
	memo      MemoFile
	converter EncodingConverter
	parser    FieldParser
	parse     ParseContext

	next     uint32
	produced int
	done     bool
	window   []byte
	windowAt int64
	windowN  int

	rows   []*Row
	pos    int
	loaded bool
	closed bool
}

// Open opens the table file named in the config and its memo file if needed.
func Open(config *Config) (*Table, error) {
	return OpenContext(context.Background(), config)
}

// OpenContext is Open with cancellation checked between the open phases.
func OpenContext(ctx context.Context, config *Config) (*Table, error) {
	if config == nil {
		return nil, newErrorf("dbase-table-open-1", "missing configuration")
	}
	debugf("Opening table: %s - Trim spaces: %v - Validate fields: %v - Skip deleted: %v - Memory map: %v", config.Filename, config.TrimSpaces, config.ValidateFields, config.SkipDeleted, config.MemoryMap)
	if len(strings.TrimSpace(config.Filename)) == 0 {
		return nil, newErrorf("dbase-table-open-2", "missing filename")
	}
	name, err := findFile(filepath.Clean(config.Filename))
	if err != nil {
		return nil, newError("dbase-table-open-3", err)
	}
	src, err := openSource(name, config.MemoryMap)
	if err != nil {
		return nil, newError("dbase-table-open-4", err)
	}
	t, err := newTable(ctx, config, name, src, nil)
	if err != nil {
		src.Close()
		return nil, newError("dbase-table-open-5", err)
	}
	return t, nil
}

// OpenSource reads a table from arbitrary sources. memo may be nil for tables
// without memo-backed columns or when IgnoreMissingMemoFile is set.
func OpenSource(table Source, memo Source, config *Config) (*Table, error) {
	if table == nil {
		return nil, newErrorf("dbase-table-opensource-1", "missing table source")
	}
	if config == nil {
		config = &Config{}
	}
	debugf("Opening table from custom source (%d bytes)", table.Size())
	t, err := newTable(context.Background(), config, config.Filename, table, memo)
	if err != nil {
		return nil, newError("dbase-table-opensource-2", err)
	}
	return t, nil
}

func newTable(ctx context.Context, config *Config, name string, src Source, memoSrc Source) (*Table, error) {
	c := newCursor(src)
	header, err := decodeHeader(c)
	if err != nil {
		return nil, newError("dbase-table-new-1", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, newError("dbase-table-new-2", err)
	}
	columns, err := decodeColumns(c, header)
	if err != nil {
		return nil, newError("dbase-table-new-3", err)
	}
	if header.legacy {
		header.resolveLegacyCount(src.Size())
	}
	if err := ctx.Err(); err != nil {
		return nil, newError("dbase-table-new-4", err)
	}
	converter, err := config.converter(header.CodePage)
	if err != nil {
		return nil, newError("dbase-table-new-5", err)
	}
	debugf("Dialect: %v - encoding: %s", header.Version.Dialect(), converter.Name())
	t := &Table{
		config:    config,
		filename:  name,
		header:    header,
		columns:   columns,
		names:     make(map[string]int, len(columns)),
		mods:      make([]*Modification, len(columns)),
		source:    src,
		converter: converter,
		parser:    config.parser(),
	}
	if m, ok := src.(mappedSource); ok {
		t.mapped = m.Bytes()
	}
	for i, column := range columns {
		if config.LowercaseFieldNames {
			column.name = strings.ToLower(column.name)
		}
		if strings.EqualFold(column.name, nullFlagsColumn) && column.fieldType == Flags {
			t.nullFlags = column
		}
		if _, exists := t.names[t.nameKey(column.name)]; !exists {
			t.names[t.nameKey(column.name)] = i
		}
	}
	for key, mod := range config.Modifications {
		if pos := t.ColumnPosByName(key); pos >= 0 {
			t.mods[pos] = mod
		}
	}
	if err := t.bindMemo(memoSrc); err != nil {
		return nil, newError("dbase-table-new-6", err)
	}
	t.parse = ParseContext{
		Memo:              t.memo,
		Converter:         converter,
		TrimSpaces:        config.TrimSpaces,
		IgnoreMissingMemo: config.IgnoreMissingMemoFile,
	}
	return t, nil
}

// bindMemo opens the memo file if any column resolves through it.
func (t *Table) bindMemo(memoSrc Source) error {
	needed := false
	for _, column := range t.columns {
		if column.fieldType.MemoBacked() {
			needed = true
			break
		}
	}
	if !needed {
		return nil
	}
	format := t.header.Version.MemoFormat()
	if format == MemoNone {
		if t.config.IgnoreMissingMemoFile {
			debugf("No memo format for %v, memo fields decode to nil", t.header.Version)
			return nil
		}
		return newErrorf("dbase-table-bindmemo-1", "%w: %v has no memo file format", ErrMissingMemo, t.header.Version)
	}
	if memoSrc == nil && t.filename != "" {
		path, err := memoPath(t.filename, format)
		if err == nil {
			debugf("Opening related file: %s", path)
			memoSrc, err = openSource(path, t.config.MemoryMap)
		}
		if err != nil && !errors.Is(err, ErrMissingMemo) {
			return newError("dbase-table-bindmemo-2", err)
		}
	}
	if memoSrc == nil {
		if t.config.IgnoreMissingMemoFile {
			debugf("No memo file found, memo fields decode to nil")
			return nil
		}
		return newError("dbase-table-bindmemo-3", ErrMissingMemo)
	}
	memo, err := openMemo(format, memoSrc)
	if err != nil {
		memoSrc.Close()
		return newError("dbase-table-bindmemo-4", err)
	}
	t.memo = memo
	return nil
}

// Close releases the table and memo file. Further calls are no-ops.
func (t *Table) Close() error {
	if t == nil || t.closed {
		return nil
	}
	t.closed = true
	t.rows = nil
	t.loaded = false
	debugf("Closing table: %s", t.filename)
	var first error
	if t.memo != nil {
		if err := t.memo.Close(); err != nil {
			errorf("Closing memo file failed: %v", err)
			first = newError("dbase-table-close-1", err)
		}
	}
	if err := t.source.Close(); err != nil {
		errorf("Closing table file failed: %v", err)
		if first == nil {
			first = newError("dbase-table-close-2", err)
		}
	}
	return first
}

/**
 *	################################################################
 *	#						Table information
 *	################################################################
 */

func (t *Table) Header() *Header {
	return t.header
}

func (t *Table) Filename() string {
	return t.filename
}

func (t *Table) Dialect() Dialect {
	return t.header.Version.Dialect()
}

func (t *Table) Converter() EncodingConverter {
	return t.converter
}

// Memo returns the bound memo file or nil.
func (t *Table) Memo() MemoFile {
	return t.memo
}

func (t *Table) Columns() []*Column {
	return t.columns
}

// Column returns the column at the position or nil.
func (t *Table) Column(pos int) *Column {
	if pos < 0 || pos >= len(t.columns) {
		return nil
	}
	return t.columns[pos]
}

// ColumnsCount returns the number of decoded columns.
func (t *Table) ColumnsCount() uint16 {
	return uint16(len(t.columns))
}

func (t *Table) ColumnNames() []string {
	names := make([]string, 0, len(t.columns))
	for _, column := range t.columns {
		names = append(names, column.Name())
	}
	return names
}

// ColumnPosByName returns the position of the named column or -1.
// The lookup is case-insensitive if IgnoreCase is set.
func (t *Table) ColumnPosByName(name string) int {
	if pos, ok := t.names[t.nameKey(name)]; ok {
		return pos
	}
	return -1
}

// ColumnByName returns the named column or nil.
func (t *Table) ColumnByName(name string) *Column {
	return t.Column(t.ColumnPosByName(name))
}

func (t *Table) nameKey(name string) string {
	if t.config.IgnoreCase {
		return strings.ToUpper(name)
	}
	return name
}

func (t *Table) modification(column *Column) *Modification {
	return t.mods[column.position]
}

/**
 *	################################################################
 *	#						Record access
 *	################################################################
 */

// recordOffset locates the record at the physical index. ok is false at the
// declared count or when the record does not fit the file.
func (t *Table) recordOffset(index uint32) (int64, bool) {
	if index >= t.header.RecordsCount {
		return 0, false
	}
	length := int64(t.header.RecordLength)
	offset := int64(t.header.HeaderLength) + int64(index)*length
	size := t.source.Size()
	if offset >= size {
		return 0, false
	}
	if offset+length > size {
		if b, err := t.byteAt(offset); err == nil && Marker(b) != EOFMarker {
			debugf("Record %d truncated at end of file", index)
		}
		return 0, false
	}
	return offset, true
}

// recordAt returns the raw record at the physical index including the deletion
// flag. ok is false at the declared count, an EOF marker or a truncated record.
// The slice is only valid until the next call.
func (t *Table) recordAt(index uint32) ([]byte, bool, error) {
	offset, ok := t.recordOffset(index)
	if !ok {
		return nil, false, nil
	}
	length := int64(t.header.RecordLength)
	var raw []byte
	if t.mapped != nil {
		raw = t.mapped[offset : offset+length]
	} else {
		if offset < t.windowAt || offset+length > t.windowAt+int64(t.windowN) {
			if err := t.fill(offset); err != nil {
				return nil, false, newError("dbase-table-recordat-1", err)
			}
		}
		start := offset - t.windowAt
		raw = t.window[start : start+length]
	}
	if Marker(raw[0]) == EOFMarker {
		return nil, false, nil
	}
	return raw, true, nil
}

// flagAt returns the deletion flag of the record at the physical index. It
// reads past the read-ahead window so borrowed records stay intact.
func (t *Table) flagAt(index uint32) (Marker, bool, error) {
	offset, ok := t.recordOffset(index)
	if !ok {
		return 0, false, nil
	}
	var flag byte
	if t.mapped != nil {
		flag = t.mapped[offset]
	} else {
		b, err := t.byteAt(offset)
		if err != nil {
			return 0, false, newError("dbase-table-flagat-1", err)
		}
		flag = b
	}
	if Marker(flag) == EOFMarker {
		return 0, false, nil
	}
	return Marker(flag), true, nil
}

// fill reads as many whole records starting at offset as the buffer holds.
func (t *Table) fill(offset int64) error {
	length := int(t.header.RecordLength)
	n := t.config.bufferSize() / length * length
	if n < length {
		n = length
	}
	if remaining := t.source.Size() - offset; int64(n) > remaining {
		n = int(remaining)
	}
	if cap(t.window) < n {
		t.window = make([]byte, n)
	}
	t.window = t.window[:n]
	read, err := t.source.ReadAt(t.window, offset)
	if read < n {
		if err == nil || errors.Is(err, io.EOF) {
			err = ErrIncomplete
		}
		return err
	}
	t.windowAt, t.windowN = offset, n
	return nil
}

func (t *Table) byteAt(offset int64) (byte, error) {
	b := make([]byte, 1)
	if _, err := t.source.ReadAt(b, offset); err != nil {
		return 0, err
	}
	return b[0], nil
}

// advance moves to the next record whose deletion flag keep accepts.
// MaxRecords counts the accepted records.
func (t *Table) advance(keep func(deleted bool) bool) (uint32, []byte, error) {
	for {
		if t.done {
			return 0, nil, ErrEOF
		}
		if t.config.MaxRecords > 0 && t.produced >= t.config.MaxRecords {
			t.done = true
			return 0, nil, ErrEOF
		}
		raw, ok, err := t.recordAt(t.next)
		if err != nil {
			return 0, nil, newError("dbase-table-advance-1", err)
		}
		if !ok {
			t.done = true
			return 0, nil, ErrEOF
		}
		index := t.next
		t.next++
		if !keep(Marker(raw[0]) == Deleted) {
			continue
		}
		t.produced++
		return index, raw, nil
	}
}

// Next returns the next record or ErrEOF. Deleted records are returned with
// Deleted set unless SkipDeleted is configured. In loaded mode the
// materialized rows are returned.
func (t *Table) Next() (*Row, error) {
	if t.closed {
		return nil, newError("dbase-table-next-1", ErrClosed)
	}
	if t.loaded {
		if t.pos >= len(t.rows) {
			return nil, ErrEOF
		}
		row := t.rows[t.pos]
		t.pos++
		return row, nil
	}
	index, raw, err := t.advance(t.visible)
	if err != nil {
		return nil, err
	}
	row, err := t.decodeRow(index, raw)
	if err != nil {
		return nil, newError("dbase-table-next-2", err)
	}
	return row, nil
}

// visible reports whether Next returns a record with the deletion flag.
func (t *Table) visible(deleted bool) bool {
	return !deleted || !t.config.SkipDeleted
}

// Rewind restarts enumeration at the first record.
func (t *Table) Rewind() {
	t.next = 0
	t.produced = 0
	t.done = false
	t.pos = 0
}

func (t *Table) decodeRow(index uint32, raw []byte) (*Row, error) {
	row := &Row{
		table:    t,
		Position: int(index),
		Deleted:  Marker(raw[0]) == Deleted,
		fields:   make([]*Field, len(t.columns)),
	}
	var nullFlags []byte
	if t.nullFlags != nil {
		nullFlags = fieldBytes(raw, t.nullFlags)
	}
	for i, column := range t.columns {
		value, err := t.decodeField(column, raw, nullFlags)
		if err != nil {
			if t.config.ValidateFields {
				return nil, newError("dbase-table-decoderow-1", err)
			}
			errorf("Record %d: %v", index, err)
			var fieldErr *FieldError
			if errors.As(err, &fieldErr) {
				value = InvalidValue{Raw: fieldErr.Raw, Err: fieldErr.Err}
			} else {
				value = InvalidValue{Err: err}
			}
		}
		row.fields[i] = &Field{column: column, value: value}
	}
	return row, nil
}

// fieldBytes slices the field out of the record, nil if it does not fit.
func fieldBytes(raw []byte, column *Column) []byte {
	end := column.offset + column.length
	if column.offset < 1 || end > len(raw) {
		return nil
	}
	return raw[column.offset:end]
}

// fieldData applies the Visual FoxPro null and var-length flags. null is true
// if the null bit of the column is set.
func (t *Table) fieldData(column *Column, raw []byte, nullFlags []byte) (data []byte, null bool, err error) {
	data = fieldBytes(raw, column)
	if data == nil {
		return nil, false, &FieldError{Field: column.Name(), Type: column.Type(), Err: ErrIncomplete}
	}
	if column.nullBit >= 0 && nthBit(nullFlags, column.nullBit) {
		return nil, true, nil
	}
	if column.varBit >= 0 && nthBit(nullFlags, column.varBit) && len(data) > 0 {
		if n := int(data[len(data)-1]); n < len(data) {
			data = data[:n]
		}
	}
	return data, false, nil
}

func (t *Table) decodeField(column *Column, raw []byte, nullFlags []byte) (interface{}, error) {
	data, null, err := t.fieldData(column, raw, nullFlags)
	if err != nil || null {
		return nil, err
	}
	value, err := t.parser.Parse(column, data, &t.parse)
	if err != nil {
		return nil, &FieldError{
			Field: column.Name(),
			Type:  column.Type(),
			Raw:   append([]byte(nil), data...),
			Err:   err,
		}
	}
	return value, nil
}

/**
 *	################################################################
 *	#				Materialized mode
 *	################################################################
 */

// Load reads all records Next would return into memory and switches to
// random access. It rewinds the table.
func (t *Table) Load() error {
	return t.LoadContext(context.Background())
}

// LoadContext is Load with cancellation checked between records. A cancelled
// or failed load leaves the table streaming.
func (t *Table) LoadContext(ctx context.Context) error {
	if t.closed {
		return newError("dbase-table-load-1", ErrClosed)
	}
	if t.loaded {
		return nil
	}
	debugf("Loading table: %s", t.filename)
	t.Rewind()
	capacity := int64(t.header.RecordsCount)
	if physical := t.source.Size() / int64(t.header.RecordLength); physical < capacity {
		capacity = physical
	}
	rows := make([]*Row, 0, capacity)
	for {
		if err := ctx.Err(); err != nil {
			t.Rewind()
			return newError("dbase-table-load-2", err)
		}
		row, err := t.Next()
		if errors.Is(err, ErrEOF) {
			break
		}
		if err != nil {
			t.Rewind()
			return newError("dbase-table-load-3", err)
		}
		rows = append(rows, row)
	}
	t.Rewind()
	t.rows = rows
	t.loaded = true
	debugf("Loaded %d records", len(rows))
	return nil
}

// Unload drops the materialized rows and returns to streaming mode.
func (t *Table) Unload() {
	t.rows = nil
	t.loaded = false
	t.Rewind()
}

// Loaded reports whether the table is in materialized mode.
func (t *Table) Loaded() bool {
	return t.loaded
}

// Rows returns the materialized rows.
func (t *Table) Rows() ([]*Row, error) {
	if !t.loaded {
		return nil, newError("dbase-table-rows-1", ErrNotLoaded)
	}
	return t.rows, nil
}

// Row returns the materialized row at index.
func (t *Table) Row(index int) (*Row, error) {
	if !t.loaded {
		return nil, newError("dbase-table-row-1", ErrNotLoaded)
	}
	if index < 0 || index >= len(t.rows) {
		return nil, newErrorf("dbase-table-row-2", "%w: %d", ErrInvalidPosition, index)
	}
	return t.rows[index], nil
}

/**
 *	################################################################
 *	#						Enumeration
 *	################################################################
 */

// Records enumerates the active records from the start of the table.
func (t *Table) Records() iter.Seq2[*Row, error] {
	return t.enumerate(false)
}

// DeletedRecords enumerates the deleted records from the start of the table.
func (t *Table) DeletedRecords() iter.Seq2[*Row, error] {
	return t.enumerate(true)
}

// enumerate yields the records with the deletion flag. MaxRecords caps the
// yielded records in streaming mode, loaded rows were capped by Load.
func (t *Table) enumerate(deleted bool) iter.Seq2[*Row, error] {
	return func(yield func(*Row, error) bool) {
		if t.closed {
			yield(nil, newError("dbase-table-enumerate-1", ErrClosed))
			return
		}
		t.Rewind()
		if t.loaded {
			for _, row := range t.rows {
				if row.Deleted != deleted {
					continue
				}
				if !yield(row, nil) {
					return
				}
			}
			return
		}
		keep := func(flag bool) bool {
			return flag == deleted && t.visible(flag)
		}
		for {
			index, raw, err := t.advance(keep)
			if errors.Is(err, ErrEOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			row, err := t.decodeRow(index, raw)
			if err != nil {
				yield(nil, newError("dbase-table-enumerate-2", err))
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// Count returns the number of active physical records.
func (t *Table) Count() (int, error) {
	active, _, err := t.countFlags()
	return active, err
}

// DeletedCount returns the number of deleted physical records.
func (t *Table) DeletedCount() (int, error) {
	_, deleted, err := t.countFlags()
	return deleted, err
}

// countFlags scans the deletion flags without decoding any field.
func (t *Table) countFlags() (int, int, error) {
	if t.closed {
		return 0, 0, newError("dbase-table-count-1", ErrClosed)
	}
	active, deleted := 0, 0
	for i := uint32(0); ; i++ {
		flag, ok, err := t.flagAt(i)
		if err != nil {
			return 0, 0, newError("dbase-table-count-2", err)
		}
		if !ok {
			break
		}
		if flag == Deleted {
			deleted++
		} else {
			active++
		}
	}
	return active, deleted, nil
}
