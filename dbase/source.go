package dbase

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Source is an addressable, read-only byte source for a table or memo file.
type Source interface {
	io.ReaderAt
	Size() int64
	Close() error
}

// mappedSource is implemented by sources whose whole content is addressable
// in memory. Record views slice into it without copying.
type mappedSource interface {
	Bytes() []byte
}

type fileSource struct {
	file *os.File
	size int64
}

func openFileSource(name string) (*fileSource, error) {
	file, err := os.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newError("dbase-source-open-1", ErrNotFound)
		}
		return nil, newError("dbase-source-open-2", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, newError("dbase-source-open-3", err)
	}
	return &fileSource{file: file, size: info.Size()}, nil
}

func (f *fileSource) ReadAt(p []byte, off int64) (int, error) {
	return f.file.ReadAt(p, off)
}

func (f *fileSource) Size() int64 {
	return f.size
}

func (f *fileSource) Close() error {
	return f.file.Close()
}

type bytesSource struct {
	*bytes.Reader
	data []byte
}

// NewBytesSource returns a Source over an in-memory table or memo file.
func NewBytesSource(data []byte) Source {
	return &bytesSource{Reader: bytes.NewReader(data), data: data}
}

func (b *bytesSource) Bytes() []byte {
	return b.data
}

func (b *bytesSource) Close() error {
	return nil
}

// openSource opens a file as Source, memory mapped if requested.
func openSource(name string, mapped bool) (Source, error) {
	if mapped {
		return openMappedSource(name)
	}
	src, err := openFileSource(name)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// cursor is a read position over a Source. Field table recovery saves and
// restores positions with mark and reset.
type cursor struct {
	src Source
	pos int64
}

func newCursor(src Source) *cursor {
	return &cursor{src: src}
}

// read returns exactly n bytes or ErrIncomplete.
func (c *cursor) read(n int) ([]byte, error) {
	if c.pos+int64(n) > c.src.Size() {
		return nil, newError("dbase-cursor-read-1", ErrIncomplete)
	}
	b := make([]byte, n)
	read, err := c.src.ReadAt(b, c.pos)
	if read < n {
		if err == nil || errors.Is(err, io.EOF) {
			err = ErrIncomplete
		}
		return nil, newError("dbase-cursor-read-2", err)
	}
	c.pos += int64(n)
	return b, nil
}

func (c *cursor) peek() (byte, error) {
	if c.pos >= c.src.Size() {
		return 0, newError("dbase-cursor-peek-1", ErrIncomplete)
	}
	b := make([]byte, 1)
	if _, err := c.src.ReadAt(b, c.pos); err != nil && !errors.Is(err, io.EOF) {
		return 0, newError("dbase-cursor-peek-2", err)
	}
	return b[0], nil
}

func (c *cursor) mark() int64 {
	return c.pos
}

func (c *cursor) reset(pos int64) {
	c.pos = pos
}

// findFile resolves name case-insensitively within its directory.
func findFile(name string) (string, error) {
	debugf("Searching for file: %s", name)
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}
	files, err := os.ReadDir(filepath.Dir(name))
	if err != nil {
		return "", newError("dbase-source-findfile-1", err)
	}
	for _, file := range files {
		if strings.EqualFold(file.Name(), filepath.Base(name)) {
			debugf("Found file: %s", file.Name())
			return filepath.Join(filepath.Dir(name), file.Name()), nil
		}
	}
	return "", newError("dbase-source-findfile-2", ErrNotFound)
}
