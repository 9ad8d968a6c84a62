package fseq

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/olivier-w/lorplayer/internal/errs"
	"github.com/olivier-w/lorplayer/internal/filectl"
)

// CompressionBlockCount scans the compression-block table for the first
// zero-size entry and returns its index, treating it and everything after it
// as padding. If every declared entry is non-zero, the declared count itself
// is returned.
func CompressionBlockCount(fc *filectl.Controller, h *Header) (int, error) {
	n := int(h.CompressionBlockCount)
	if n == 0 {
		return 0, nil
	}

	table := make([]byte, n*compressionBlockEntrySize)
	read, err := fc.Read(HeaderSize, table)
	if err != nil {
		return 0, errs.Wrap(errs.Syscall, "fseq.CompressionBlockCount", err)
	}
	if read != len(table) {
		return 0, errs.New(errs.Syscall, "fseq.CompressionBlockCount")
	}

	for i := 0; i < n; i++ {
		size := binary.LittleEndian.Uint32(table[i*compressionBlockEntrySize+4 : i*compressionBlockEntrySize+8])
		if size == 0 {
			return i, nil
		}
	}
	return n, nil
}

func blockSizeAt(table []byte, i int) uint32 {
	return binary.LittleEndian.Uint32(table[i*compressionBlockEntrySize+4 : i*compressionBlockEntrySize+8])
}

// blockAbsoluteAddr recomputes the absolute byte offset and compressed size
// of block index by re-reading and summing the leading table entries, per
// the reference implementation (a cached cumulative-offset table is a valid
// future optimization but isn't required for correctness).
func blockAbsoluteAddr(fc *filectl.Controller, h *Header, index int) (addr int64, size uint32, err error) {
	if index < 0 || index >= int(h.CompressionBlockCount) {
		return 0, 0, errs.New(errs.Range, "fseq.blockAbsoluteAddr")
	}

	tableSize := (index + 1) * compressionBlockEntrySize
	table := make([]byte, tableSize)
	n, rerr := fc.Read(HeaderSize, table)
	if rerr != nil {
		return 0, 0, errs.Wrap(errs.Syscall, "fseq.blockAbsoluteAddr", rerr)
	}
	if n != tableSize {
		return 0, 0, errs.New(errs.Syscall, "fseq.blockAbsoluteAddr")
	}

	addr = int64(h.ChannelDataOffset)
	for i := 0; i <= index; i++ {
		s := blockSizeAt(table, i)
		if s == 0 {
			return 0, 0, errs.New(errs.Decode, "fseq.blockAbsoluteAddr")
		}
		size = s
		if i < index {
			addr += int64(s)
		}
	}
	return addr, size, nil
}

// ReadBlock decompresses compression block index into an ordered list of
// per-frame byte buffers, each ChannelCount bytes long.
func ReadBlock(fc *filectl.Controller, h *Header, index int) ([][]byte, error) {
	if h.Compression != CompressionZstd {
		return nil, errs.New(errs.InvalidArg, "fseq.ReadBlock")
	}

	addr, size, err := blockAbsoluteAddr(fc, h, index)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, errs.New(errs.Range, "fseq.ReadBlock")
	}

	compressed := make([]byte, size)
	n, err := fc.Read(addr, compressed)
	if err != nil {
		return nil, errs.Wrap(errs.Syscall, "fseq.ReadBlock", err)
	}
	if uint32(n) != size {
		return nil, errs.New(errs.Syscall, "fseq.ReadBlock")
	}

	dec, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, errs.Wrap(errs.Zstd, "fseq.ReadBlock", err)
	}
	defer dec.Close()

	frameSize := int(h.ChannelCount)
	if frameSize == 0 {
		return nil, errs.New(errs.Decode, "fseq.ReadBlock")
	}

	var decoded bytes.Buffer
	chunk := make([]byte, 64*1024)
	for {
		n, rerr := dec.Read(chunk)
		if n > 0 {
			decoded.Write(chunk[:n])
			if decoded.Len()%frameSize != 0 {
				return nil, errs.New(errs.Decode, "fseq.ReadBlock")
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, errs.Wrap(errs.Zstd, "fseq.ReadBlock", rerr)
		}
	}

	out := decoded.Bytes()
	frameCount := len(out) / frameSize
	frames := make([][]byte, frameCount)
	for i := 0; i < frameCount; i++ {
		frame := make([]byte, frameSize)
		copy(frame, out[i*frameSize:(i+1)*frameSize])
		frames[i] = frame
	}
	return frames, nil
}
