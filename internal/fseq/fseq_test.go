package fseq

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/olivier-w/lorplayer/internal/errs"
	"github.com/olivier-w/lorplayer/internal/filectl"
)

func buildHeader(t *testing.T, channelDataOffset uint16, varDataOffset uint16, channelCount, frameCount uint32, compression Compression, comBlockCount uint8) []byte {
	t.Helper()
	b := make([]byte, HeaderSize)
	copy(b[0:4], magic[:])
	binary.LittleEndian.PutUint16(b[4:6], channelDataOffset)
	b[6] = 0 // minor
	b[7] = 2 // major
	binary.LittleEndian.PutUint16(b[8:10], varDataOffset)
	binary.LittleEndian.PutUint32(b[10:14], channelCount)
	binary.LittleEndian.PutUint32(b[14:18], frameCount)
	b[18] = 50 // frameStepTimeMillis
	b[19] = 0
	b[20] = byte(compression)
	b[21] = comBlockCount
	b[22] = 0
	b[23] = 0
	binary.LittleEndian.PutUint64(b[24:32], 0xdeadbeef)
	return b
}

func openFixture(t *testing.T, data []byte) *filectl.Controller {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.fseq")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	fc, err := filectl.Open(path, filectl.ModeRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { fc.Close() })
	return fc
}

func TestOpenHeaderDecodesFields(t *testing.T) {
	hdr := buildHeader(t, 40, 32, 16, 1000, CompressionNone, 0)
	fc := openFixture(t, hdr)

	h, err := OpenHeader(fc)
	if err != nil {
		t.Fatalf("OpenHeader: %v", err)
	}
	if h.ChannelDataOffset != 40 || h.ChannelCount != 16 || h.FrameCount != 1000 {
		t.Fatalf("unexpected header: %+v", h)
	}
	if h.SequenceUID != 0xdeadbeef {
		t.Fatalf("expected sequence uid 0xdeadbeef, got %x", h.SequenceUID)
	}
}

func TestOpenHeaderRejectsBadMagic(t *testing.T) {
	hdr := buildHeader(t, 40, 32, 16, 1000, CompressionNone, 0)
	hdr[0] = 'X'
	fc := openFixture(t, hdr)

	_, err := OpenHeader(fc)
	if !errs.Is(err, errs.Decode) {
		t.Fatalf("expected errs.Decode, got %v", err)
	}
}

func TestOpenHeaderRejectsWrongVersion(t *testing.T) {
	hdr := buildHeader(t, 40, 32, 16, 1000, CompressionNone, 0)
	hdr[7] = 1
	fc := openFixture(t, hdr)

	_, err := OpenHeader(fc)
	if !errs.Is(err, errs.Decode) {
		t.Fatalf("expected errs.Decode, got %v", err)
	}
}

func variableRecord(id0, id1 byte, value string) []byte {
	// value is NUL-padded by one byte the way the reference implementation
	// leaves a terminator inside the declared value size.
	full := append([]byte(value), 0)
	size := uint16(4 + len(full))
	rec := make([]byte, size)
	binary.LittleEndian.PutUint16(rec[0:2], size)
	rec[2] = id0
	rec[3] = id1
	copy(rec[4:], full)
	return rec
}

func TestMediaFileFindsMfRecord(t *testing.T) {
	var varTable bytes.Buffer
	varTable.Write(variableRecord('s', 'p', "fplayer"))
	varTable.Write(variableRecord('m', 'f', "song.wav"))
	varTable.Write([]byte{0, 0}) // trailing padding < 5 bytes

	hdr := buildHeader(t, uint16(32+varTable.Len()), 32, 16, 10, CompressionNone, 0)
	full := append(hdr, varTable.Bytes()...)
	fc := openFixture(t, full)

	h, err := OpenHeader(fc)
	if err != nil {
		t.Fatalf("OpenHeader: %v", err)
	}
	mf, err := MediaFile(fc, h)
	if err != nil {
		t.Fatalf("MediaFile: %v", err)
	}
	if mf != "song.wav" {
		t.Fatalf("expected song.wav, got %q", mf)
	}
}

func TestMediaFileAbsentReturnsEmpty(t *testing.T) {
	var varTable bytes.Buffer
	varTable.Write(variableRecord('s', 'p', "fplayer"))

	hdr := buildHeader(t, uint16(32+varTable.Len()), 32, 16, 10, CompressionNone, 0)
	full := append(hdr, varTable.Bytes()...)
	fc := openFixture(t, full)

	h, err := OpenHeader(fc)
	if err != nil {
		t.Fatalf("OpenHeader: %v", err)
	}
	mf, err := MediaFile(fc, h)
	if err != nil {
		t.Fatalf("MediaFile: %v", err)
	}
	if mf != "" {
		t.Fatalf("expected empty media file, got %q", mf)
	}
}

func TestCompressionBlockCountTrimsTrailingZero(t *testing.T) {
	const channelDataOffset = 32 + 3*8
	hdr := buildHeader(t, channelDataOffset, channelDataOffset, 16, 10, CompressionZstd, 3)

	var table bytes.Buffer
	binary.Write(&table, binary.LittleEndian, uint32(0)) // firstFrameId
	binary.Write(&table, binary.LittleEndian, uint32(100))
	binary.Write(&table, binary.LittleEndian, uint32(100))
	binary.Write(&table, binary.LittleEndian, uint32(50))
	binary.Write(&table, binary.LittleEndian, uint32(0)) // padding: zero size
	binary.Write(&table, binary.LittleEndian, uint32(0))

	full := append(hdr, table.Bytes()...)
	fc := openFixture(t, full)
	h, err := OpenHeader(fc)
	if err != nil {
		t.Fatalf("OpenHeader: %v", err)
	}

	n, err := CompressionBlockCount(fc, h)
	if err != nil {
		t.Fatalf("CompressionBlockCount: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected effective count 2, got %d", n)
	}
}

func TestReadBlockReassemblesFrames(t *testing.T) {
	const channelCount = 16
	const frames = 250

	raw := make([]byte, channelCount*frames)
	for f := 0; f < frames; f++ {
		v := byte(f % 256)
		for c := 0; c < channelCount; c++ {
			raw[f*channelCount+c] = v
		}
	}

	var compressed bytes.Buffer
	enc, err := zstd.NewWriter(&compressed)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	if _, err := enc.Write(raw); err != nil {
		t.Fatalf("zstd write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("zstd close: %v", err)
	}

	channelDataOffset := uint16(32 + 8)
	hdr := buildHeader(t, channelDataOffset, channelDataOffset, channelCount, frames, CompressionZstd, 1)

	var table bytes.Buffer
	binary.Write(&table, binary.LittleEndian, uint32(0))
	binary.Write(&table, binary.LittleEndian, uint32(compressed.Len()))

	full := append(hdr, table.Bytes()...)
	full = append(full, compressed.Bytes()...)
	fc := openFixture(t, full)
	h, err := OpenHeader(fc)
	if err != nil {
		t.Fatalf("OpenHeader: %v", err)
	}

	out, err := ReadBlock(fc, h, 0)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if len(out) != frames {
		t.Fatalf("expected %d frames, got %d", frames, len(out))
	}
	for f := 0; f < frames; f++ {
		want := byte(f % 256)
		for c := 0; c < channelCount; c++ {
			if out[f][c] != want {
				t.Fatalf("frame %d channel %d: got %d want %d", f, c, out[f][c], want)
			}
		}
	}
}
