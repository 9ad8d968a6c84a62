// Package filectl provides a serialized, positioned-I/O handle over a
// regular file. All reads and writes seek to an explicit offset first, so
// concurrent callers (the playback loop and the frame pump's preload worker)
// can share one handle without racing on the file's implicit cursor.
package filectl

import (
	"io"
	"os"
	"sync"

	"github.com/olivier-w/lorplayer/internal/errs"
)

// Mode selects how a file is opened.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// Controller wraps an *os.File behind a mutex so Read/ReadTo/Write/Size can
// be called from more than one goroutine without corrupting the shared seek
// position.
type Controller struct {
	mu   sync.Mutex
	file *os.File
}

// Open opens path in the given mode. Open fails with errs.InvalidArg for an
// unrecognized mode and errs.Syscall if the underlying open call fails.
func Open(path string, mode Mode) (*Controller, error) {
	var flag int
	switch mode {
	case ModeRead:
		flag = os.O_RDONLY
	case ModeWrite:
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	default:
		return nil, errs.New(errs.InvalidArg, "filectl.Open")
	}

	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, errs.Wrap(errs.Syscall, "filectl.Open", err)
	}
	return &Controller{file: f}, nil
}

// Close releases the underlying file handle.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.Close()
}

// Read reads up to len(dst) bytes starting at offset. A short read (including
// io.EOF) is returned to the caller rather than retried.
func (c *Controller) Read(offset int64, dst []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.file.Seek(offset, io.SeekStart); err != nil {
		return 0, errs.Wrap(errs.Syscall, "filectl.Read", err)
	}
	n, err := io.ReadFull(c.file, dst)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return n, errs.Wrap(errs.Syscall, "filectl.Read", err)
	}
	return n, nil
}

// ReadTo reads up to maxUnits units of unitSize bytes each starting at
// offset, stopping early at EOF, and returns the number of whole units read.
// dst must have capacity for maxUnits*unitSize bytes.
func (c *Controller) ReadTo(offset int64, unitSize, maxUnits int, dst []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.file.Seek(offset, io.SeekStart); err != nil {
		return 0, errs.Wrap(errs.Syscall, "filectl.ReadTo", err)
	}
	want := unitSize * maxUnits
	if want > len(dst) {
		want = len(dst)
	}
	n, err := io.ReadFull(c.file, dst[:want])
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return n / unitSize, errs.Wrap(errs.Syscall, "filectl.ReadTo", err)
	}
	return n / unitSize, nil
}

// Write writes src at offset.
func (c *Controller) Write(offset int64, src []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.file.Seek(offset, io.SeekStart); err != nil {
		return 0, errs.Wrap(errs.Syscall, "filectl.Write", err)
	}
	n, err := c.file.Write(src)
	if err != nil {
		return n, errs.Wrap(errs.Syscall, "filectl.Write", err)
	}
	return n, nil
}

// Size returns the size of the backing file in bytes.
func (c *Controller) Size() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	end, err := c.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, errs.Wrap(errs.Syscall, "filectl.Size", err)
	}
	if _, err := c.file.Seek(0, io.SeekStart); err != nil {
		return 0, errs.Wrap(errs.Syscall, "filectl.Size", err)
	}
	return end, nil
}
