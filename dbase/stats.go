package dbase

import (
	"fmt"
	"time"
)

// Stats summarizes a table for collaborators like report or export tools.
type Stats struct {
	Version       FileVersion
	Dialect       Dialect
	Declared      uint32     // Record count declared by the header
	Active        int        // Active physical records
	Deleted       int        // Deleted physical records
	Columns       int        // Decoded columns
	Encoding      string     // Name of the active encoding
	MemoFormat    MemoFormat // Format of the bound memo file, MemoNone if none is bound
	MemoBlockSize int
	HeaderLength  uint16
	RecordLength  uint16
	Modified      *time.Time // Last update, nil if the header date is invalid
}

// Stats counts the records by deletion flag and collects the header facts.
func (t *Table) Stats() (*Stats, error) {
	active, deleted, err := t.countFlags()
	if err != nil {
		return nil, newError("dbase-stats-1", err)
	}
	stats := &Stats{
		Version:      t.header.Version,
		Dialect:      t.header.Version.Dialect(),
		Declared:     t.header.RecordsCount,
		Active:       active,
		Deleted:      deleted,
		Columns:      len(t.columns),
		Encoding:     t.converter.Name(),
		MemoFormat:   MemoNone,
		HeaderLength: t.header.HeaderLength,
		RecordLength: t.header.RecordLength,
	}
	if t.memo != nil {
		stats.MemoFormat = t.memo.Format()
		stats.MemoBlockSize = t.memo.BlockSize()
	}
	if modified, ok := t.header.Modified(); ok {
		stats.Modified = &modified
	}
	return stats, nil
}

func (s *Stats) String() string {
	return fmt.Sprintf("%v (%v): %d active, %d deleted, %d columns, encoding %s, memo %v", s.Version, s.Dialect, s.Active, s.Deleted, s.Columns, s.Encoding, s.MemoFormat)
}
