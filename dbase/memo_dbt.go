package dbase

import (
	"bytes"
	"encoding/binary"
)

const dbtBlockSize = 512

// dBase IV block header: FF FF 08 00 followed by the length including the header.
var dbaseIVSignature = []byte{0xFF, 0xFF, 0x08, 0x00}

// dbaseIIIMemo reads dBase III DBT files: fixed 512 byte blocks, the payload
// ends at the first 0x1A.
type dbaseIIIMemo struct {
	src Source
}

func newDBaseIIIMemo(src Source) *dbaseIIIMemo {
	return &dbaseIIIMemo{src: src}
}

func (m *dbaseIIIMemo) Read(block uint32) (MemoPayload, error) {
	data, err := readTerminated(m.src, int64(block)*dbtBlockSize, dbtBlockSize)
	if err != nil {
		return MemoPayload{}, newError("dbase-memo-dbt3-read-1", err)
	}
	return MemoPayload{Kind: MemoText, Data: data}, nil
}

func (m *dbaseIIIMemo) Format() MemoFormat {
	return MemoDBaseIII
}

func (m *dbaseIIIMemo) BlockSize() int {
	return dbtBlockSize
}

func (m *dbaseIIIMemo) Close() error {
	return m.src.Close()
}

// readTerminated follows continuation blocks until a 0x1A or the end of the file.
func readTerminated(src Source, offset int64, blockSize int) ([]byte, error) {
	if offset >= src.Size() {
		return nil, newErrorf("dbase-memo-terminated-1", "%w: block offset %d beyond memo size %d", ErrIncomplete, offset, src.Size())
	}
	out := make([]byte, 0, blockSize)
	for offset < src.Size() {
		n := int64(blockSize)
		if offset+n > src.Size() {
			n = src.Size() - offset
		}
		chunk, err := readBlockRange(src, offset, n)
		if err != nil {
			return nil, err
		}
		if i := bytes.IndexByte(chunk, byte(EOFMarker)); i >= 0 {
			return append(out, chunk[:i]...), nil
		}
		out = append(out, chunk...)
		offset += n
	}
	return out, nil
}

// dbaseIVMemo reads dBase IV DBT files. Blocks carry a length header; blocks
// without the signature are read like dBase III blocks.
type dbaseIVMemo struct {
	src       Source
	blockSize int
}

func newDBaseIVMemo(src Source) (*dbaseIVMemo, error) {
	header, err := readBlockRange(src, 0, 24)
	if err != nil {
		return nil, newError("dbase-memo-dbt4-open-1", err)
	}
	size := int(binary.LittleEndian.Uint16(header[20:22]))
	if size == 0 {
		size = int(binary.LittleEndian.Uint32(header[4:8]))
	}
	if size <= 0 || size > 1<<16 {
		size = dbtBlockSize
	}
	debugf("dBase IV memo block size: %d", size)
	return &dbaseIVMemo{src: src, blockSize: size}, nil
}

func (m *dbaseIVMemo) Read(block uint32) (MemoPayload, error) {
	offset := int64(block) * int64(m.blockSize)
	head, err := readBlockRange(m.src, offset, 8)
	if err != nil {
		return MemoPayload{}, newError("dbase-memo-dbt4-read-1", err)
	}
	if !bytes.Equal(head[:4], dbaseIVSignature) {
		data, err := readTerminated(m.src, offset, m.blockSize)
		if err != nil {
			return MemoPayload{}, newError("dbase-memo-dbt4-read-2", err)
		}
		return MemoPayload{Kind: MemoText, Data: data}, nil
	}
	length := int64(binary.LittleEndian.Uint32(head[4:8]))
	if length < 8 {
		return MemoPayload{Kind: MemoText, Data: []byte{}}, nil
	}
	data, err := readBlockRange(m.src, offset+8, length-8)
	if err != nil {
		return MemoPayload{}, newError("dbase-memo-dbt4-read-3", err)
	}
	return MemoPayload{Kind: MemoText, Data: data}, nil
}

func (m *dbaseIVMemo) Format() MemoFormat {
	return MemoDBaseIV
}

func (m *dbaseIVMemo) BlockSize() int {
	return m.blockSize
}

func (m *dbaseIVMemo) Close() error {
	return m.src.Close()
}
