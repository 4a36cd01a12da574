//go:build !windows
// +build !windows

package dbase

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// mmapSource is a read-only memory mapping of a table file.
type mmapSource struct {
	data []byte
}

func openMappedSource(name string) (Source, error) {
	file, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newError("dbase-source-unix-mmap-1", ErrNotFound)
		}
		return nil, newError("dbase-source-unix-mmap-2", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, newError("dbase-source-unix-mmap-3", err)
	}
	if info.Size() == 0 {
		return &mmapSource{}, nil
	}
	data, err := unix.Mmap(int(file.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, newError("dbase-source-unix-mmap-4", err)
	}
	debugf("Mapped %s (%d bytes)", name, len(data))
	return &mmapSource{data: data}, nil
}

func (m *mmapSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, newError("dbase-source-unix-readat-1", ErrInvalidPosition)
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *mmapSource) Size() int64 {
	return int64(len(m.data))
}

func (m *mmapSource) Bytes() []byte {
	return m.data
}

func (m *mmapSource) Close() error {
	if m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	if err := unix.Munmap(data); err != nil {
		return newError("dbase-source-unix-close-1", err)
	}
	return nil
}
