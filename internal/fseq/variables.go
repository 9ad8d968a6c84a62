package fseq

import (
	"bytes"
	"encoding/binary"

	"github.com/olivier-w/lorplayer/internal/errs"
	"github.com/olivier-w/lorplayer/internal/filectl"
)

const variableHeaderSize = 4

// MediaFile reads the variable table between the header's variableDataOffset
// and channelDataOffset and returns the value of the "mf" variable, if
// present. A well-formed table with no "mf" entry returns ("", nil).
func MediaFile(fc *filectl.Controller, h *Header) (string, error) {
	size := int(h.ChannelDataOffset) - int(h.VariableDataOffset)
	if size <= 0 {
		return "", nil
	}

	buf := make([]byte, size)
	n, err := fc.Read(int64(h.VariableDataOffset), buf)
	if err != nil {
		return "", errs.Wrap(errs.Syscall, "fseq.MediaFile", err)
	}
	buf = buf[:n]

	for remaining := buf; len(remaining) >= 5; {
		recSize := binary.LittleEndian.Uint16(remaining[0:2])
		if recSize < variableHeaderSize+1 || int(recSize) > len(remaining) {
			return "", errs.New(errs.Decode, "fseq.MediaFile")
		}

		id0, id1 := remaining[2], remaining[3]
		value := remaining[variableHeaderSize:recSize]

		if id0 == 'm' && id1 == 'f' {
			if nul := bytes.IndexByte(value, 0); nul >= 0 {
				value = value[:nul]
			}
			return string(value), nil
		}

		remaining = remaining[recSize:]
	}

	return "", nil
}
