// Package fseq decodes the FSEQ v2 sequence file format: the fixed header,
// the compression-block table, and the variable table that carries the
// optional companion audio file path.
package fseq

import (
	"encoding/binary"

	"github.com/olivier-w/lorplayer/internal/errs"
	"github.com/olivier-w/lorplayer/internal/filectl"
)

const (
	HeaderSize = 32

	compressionBlockEntrySize = 8
)

// Compression identifies the channel-data compression scheme.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionZstd Compression = 1
	CompressionZlib Compression = 2 // present in the format, unused by this player
)

// Header is the decoded, immutable 32-byte FSEQ header.
type Header struct {
	ChannelDataOffset     uint32
	MinorVersion          uint8
	MajorVersion          uint8
	VariableDataOffset    uint16
	ChannelCount          uint32
	FrameCount            uint32
	FrameStepTimeMillis   uint16
	Compression           Compression
	CompressionBlockCount uint8
	ChannelRangeCount     uint8
	SequenceUID           uint64
}

var magic = [4]byte{'P', 'S', 'E', 'Q'}

// OpenHeader reads and validates the 32-byte header at offset 0.
func OpenHeader(fc *filectl.Controller) (*Header, error) {
	buf := make([]byte, HeaderSize)
	n, err := fc.Read(0, buf)
	if err != nil {
		return nil, errs.Wrap(errs.Syscall, "fseq.OpenHeader", err)
	}
	if n != HeaderSize {
		return nil, errs.New(errs.Syscall, "fseq.OpenHeader")
	}

	if buf[0] != magic[0] || buf[1] != magic[1] || buf[2] != magic[2] || buf[3] != magic[3] {
		return nil, errs.New(errs.Decode, "fseq.OpenHeader")
	}

	h := &Header{
		ChannelDataOffset:     uint32(binary.LittleEndian.Uint16(buf[4:6])),
		MinorVersion:          buf[6],
		MajorVersion:          buf[7],
		VariableDataOffset:    binary.LittleEndian.Uint16(buf[8:10]),
		ChannelCount:          binary.LittleEndian.Uint32(buf[10:14]),
		FrameCount:            binary.LittleEndian.Uint32(buf[14:18]),
		FrameStepTimeMillis:   uint16(buf[18]),
		Compression:           Compression(buf[20]),
		CompressionBlockCount: buf[21],
		ChannelRangeCount:     buf[22],
		SequenceUID:           binary.LittleEndian.Uint64(buf[24:32]),
	}

	if h.MajorVersion != 2 {
		return nil, errs.New(errs.Decode, "fseq.OpenHeader")
	}

	return h, nil
}
