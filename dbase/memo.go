package dbase

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// MemoKind tags a memo payload by the kind of data it holds.
type MemoKind uint32

const (
	MemoPicture MemoKind = 0
	MemoText    MemoKind = 1
	MemoObject  MemoKind = 2
	MemoBinary  MemoKind = 3
)

func (k MemoKind) String() string {
	switch k {
	case MemoPicture:
		return "picture"
	case MemoText:
		return "text"
	case MemoObject:
		return "object"
	case MemoBinary:
		return "binary"
	}
	return fmt.Sprintf("MemoKind(%d)", uint32(k))
}

// MemoPayload is the resolved content of a memo block.
type MemoPayload struct {
	Kind MemoKind
	Data []byte
}

// MemoFile resolves block references into memo payloads.
type MemoFile interface {
	Read(block uint32) (MemoPayload, error)
	Format() MemoFormat
	BlockSize() int
	Close() error
}

// openMemo creates the memo backend for the format over src.
func openMemo(format MemoFormat, src Source) (MemoFile, error) {
	debugf("Opening %v memo file (%d bytes)", format, src.Size())
	switch format {
	case MemoDBaseIII:
		return newDBaseIIIMemo(src), nil
	case MemoDBaseIV:
		return newDBaseIVMemo(src)
	case MemoFPT:
		return newFPTMemo(src)
	}
	return nil, newErrorf("dbase-memo-open-1", "no memo file for format %v", format)
}

// memoPath returns the memo file next to the table, matching the extension case-insensitively.
func memoPath(table string, format MemoFormat) (string, error) {
	ext := format.Extension()
	if strings.EqualFold(filepath.Ext(table), string(DBC)) {
		ext = DCT
	}
	name := strings.TrimSuffix(table, filepath.Ext(table)) + string(ext)
	found, err := findFile(name)
	if err != nil {
		return "", newError("dbase-memo-path-1", ErrMissingMemo)
	}
	return found, nil
}

// memoReference decodes the block index stored in a memo-backed field. Visual
// FoxPro stores a 4 byte integer, older dialects right aligned ASCII digits.
// ok is false for empty references.
func memoReference(raw []byte) (uint32, bool, error) {
	if len(raw) == 4 {
		block := binary.LittleEndian.Uint32(raw)
		return block, block != 0, nil
	}
	text := string(trimLeft(trimRight(raw)))
	if text == "" {
		return 0, false, nil
	}
	block, err := strconv.ParseUint(text, 10, 32)
	if err != nil {
		return 0, false, fmt.Errorf("invalid memo reference %q: %w", text, err)
	}
	return uint32(block), block != 0, nil
}

// readBlockRange reads length bytes at offset, failing with ErrIncomplete past the end.
func readBlockRange(src Source, offset int64, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > src.Size() {
		return nil, newErrorf("dbase-memo-read-1", "%w: block range %d+%d beyond memo size %d", ErrIncomplete, offset, length, src.Size())
	}
	out := make([]byte, length)
	if _, err := src.ReadAt(out, offset); err != nil {
		return nil, newError("dbase-memo-read-2", err)
	}
	return out, nil
}
