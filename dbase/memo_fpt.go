package dbase

import (
	"encoding/binary"
)

const fptDefaultBlockSize = 64

// MemoHeader is the raw header of a FoxPro memo file, stored big endian.
type MemoHeader struct {
	NextFree  uint32  // Location of next free block
	Unused    [2]byte // Unused
	BlockSize uint16  // Block size (bytes per block)
}

// fptMemo reads Visual FoxPro FPT files. Every block starts with a big endian
// type and length, the payload may span any number of blocks.
type fptMemo struct {
	src    Source
	header MemoHeader
}

func newFPTMemo(src Source) (*fptMemo, error) {
	debugf("Reading memo header...")
	b, err := readBlockRange(src, 0, 8)
	if err != nil {
		return nil, newError("dbase-memo-fpt-open-1", err)
	}
	header := MemoHeader{
		NextFree:  binary.BigEndian.Uint32(b[:4]),
		BlockSize: binary.BigEndian.Uint16(b[6:8]),
	}
	if header.BlockSize == 0 {
		header.BlockSize = fptDefaultBlockSize
	}
	debugf("Memo header: %+v", header)
	return &fptMemo{src: src, header: header}, nil
}

func (m *fptMemo) Read(block uint32) (MemoPayload, error) {
	position := int64(m.header.BlockSize) * int64(block)
	debugf("Reading memo block %d at position %d", block, position)
	hbuf, err := readBlockRange(m.src, position, 8)
	if err != nil {
		return MemoPayload{}, newError("dbase-memo-fpt-read-1", err)
	}
	sign := binary.BigEndian.Uint32(hbuf[:4])
	length := binary.BigEndian.Uint32(hbuf[4:])
	if length == 0 {
		return MemoPayload{Kind: MemoKind(sign), Data: []byte{}}, nil
	}
	data, err := readBlockRange(m.src, position+8, int64(length))
	if err != nil {
		return MemoPayload{}, newError("dbase-memo-fpt-read-2", err)
	}
	return MemoPayload{Kind: MemoKind(sign), Data: data}, nil
}

func (m *fptMemo) Format() MemoFormat {
	return MemoFPT
}

func (m *fptMemo) BlockSize() int {
	return int(m.header.BlockSize)
}

// Header returns the decoded memo file header.
func (m *fptMemo) Header() MemoHeader {
	return m.header
}

func (m *fptMemo) Close() error {
	return m.src.Close()
}
