// Package lor implements the LOR wire protocol: a stop-byte-framed append
// buffer, heartbeat/unit-off/channel/channel-set effect encoding, and the
// vendor intensity curve.
package lor

const (
	stackSize    = 2048
	flushPercent = 0.8
)

// Transfer receives one flushed buffer's worth of bytes, forwarding them to
// the serial sink.
type Transfer func(b []byte) error

// Buffer is a fixed-capacity, append-only byte buffer used to assemble one or
// more stop-byte-framed LOR packets before handing them to the serial sink.
// It stays zero-filled between writes so the byte immediately before and
// after each payload serves as that packet's leading/trailing 0x00 stop byte
// without ever being written explicitly.
type Buffer struct {
	stack    [stackSize]byte
	writeIdx int
	blocks   int
}

// NewBuffer returns a ready-to-use, zeroed Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Head returns a slice the caller may write a single packet's payload into,
// positioned just past the current leading stop byte. The caller must write
// fewer than len(Head()) bytes, leaving the last byte for the trailing stop
// byte, and must call Advance with the exact number of payload bytes written.
func (b *Buffer) Head() []byte {
	return b.stack[b.writeIdx+1:]
}

// Advance records n payload bytes plus the two framing stop bytes.
func (b *Buffer) Advance(n int) {
	if n <= 0 {
		panic("lor: Advance requires n > 0")
	}
	size := n + 2
	if b.writeIdx+size > stackSize {
		panic("lor: buffer overflow")
	}
	b.writeIdx += size
	b.blocks++
}

// FlushIf flushes the buffer through transfer when force is true and the
// buffer holds at least one packet, or when the buffer has filled past
// flushPercent regardless of force. It resets the write head afterward.
func (b *Buffer) FlushIf(force bool, transfer Transfer) error {
	if !b.shouldFlush(force) {
		return nil
	}
	if err := transfer(b.stack[:b.writeIdx]); err != nil {
		return err
	}
	b.reset()
	return nil
}

func (b *Buffer) shouldFlush(force bool) bool {
	if force {
		return b.blocks > 0
	}
	return float64(b.writeIdx) >= stackSize*flushPercent
}

func (b *Buffer) reset() {
	for i := 0; i < b.writeIdx; i++ {
		b.stack[i] = 0
	}
	b.writeIdx = 0
	b.blocks = 0
}
