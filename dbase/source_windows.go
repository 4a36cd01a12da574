//go:build windows
// +build windows

package dbase

import (
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// mmapSource is a read-only file mapping view of a table file.
type mmapSource struct {
	mapping windows.Handle
	addr    uintptr
	data    []byte
}

func openMappedSource(name string) (Source, error) {
	file, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newError("dbase-source-windows-mmap-1", ErrNotFound)
		}
		return nil, newError("dbase-source-windows-mmap-2", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, newError("dbase-source-windows-mmap-3", err)
	}
	size := info.Size()
	if size == 0 {
		return &mmapSource{}, nil
	}
	mapping, err := windows.CreateFileMapping(windows.Handle(file.Fd()), nil, windows.PAGE_READONLY, uint32(size>>32), uint32(size), nil)
	if err != nil {
		return nil, newError("dbase-source-windows-mmap-4", err)
	}
	addr, err := windows.MapViewOfFile(mapping, windows.FILE_MAP_READ, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(mapping)
		return nil, newError("dbase-source-windows-mmap-5", err)
	}
	debugf("Mapped %s (%d bytes)", name, size)
	return &mmapSource{
		mapping: mapping,
		addr:    addr,
		data:    unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size)),
	}, nil
}

func (m *mmapSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, newError("dbase-source-windows-readat-1", ErrInvalidPosition)
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
	m.data = nil
	if err := windows.UnmapViewOfFile(m.addr); err != nil {
		return newError("dbase-source-windows-close-1", err)
	}
	if err := windows.CloseHandle(m.mapping); err != nil {
		return newError("dbase-source-windows-close-2", err)
	}
	return nil
}
