// Package pump implements the frame pump: a double-buffered, asynchronously
// preloading reader that turns an on-disk FSEQ into a stream of fixed-size
// frame buffers, hiding I/O and zstd-decompression latency behind playback.
package pump

import (
	"log/slog"

	"github.com/olivier-w/lorplayer/internal/errs"
	"github.com/olivier-w/lorplayer/internal/filectl"
	"github.com/olivier-w/lorplayer/internal/framelist"
	"github.com/olivier-w/lorplayer/internal/fseq"
)

// Pump owns two frame lists: curr (consumed by the foreground playback loop)
// and next (filled by at most one background worker at a time). Only the
// foreground touches curr; only the worker touches next while a preload is
// in flight, and the foreground reads next only after joining the worker.
type Pump struct {
	fc  *filectl.Controller
	seq *fseq.Header
	log *slog.Logger

	curr framelist.List
	next framelist.List

	preloading bool
	worker     chan struct{}

	posFrame uint32
	posBlock int
}

// New returns a zero-initialized pump bound to fc/seq.
func New(fc *filectl.Controller, seq *fseq.Header, log *slog.Logger) *Pump {
	if log == nil {
		log = slog.Default()
	}
	return &Pump{fc: fc, seq: seq, log: log}
}

// CheckPreload spawns a background read of the next block/batch if curr is
// running low and no preload is already in flight. currentFrame anchors the
// uncompressed read position.
func (p *Pump) CheckPreload(currentFrame uint32) error {
	if p.curr.Count() == 0 {
		return nil // empty: the caller will fall through to a synchronous read
	}
	if p.preloading {
		return nil // already busy
	}

	reqd := (1000 / int(p.seq.FrameStepTimeMillis)) * 3
	if p.curr.Count() >= reqd {
		return nil
	}

	switch p.seq.Compression {
	case fseq.CompressionZstd:
		p.posBlock++
	case fseq.CompressionNone:
		p.posFrame = currentFrame + uint32(p.curr.Count())
	default:
		return errs.New(errs.Range, "pump.CheckPreload")
	}

	p.preloading = true
	done := make(chan struct{})
	p.worker = done

	go func() {
		defer close(done)
		list, err := p.read()
		if err != nil {
			p.log.Warn("preload failed", "error", err)
			list = framelist.List{}
		}
		p.next = list
	}()

	return nil
}

// NextFrame returns the next frame buffer in sequence order, or ok=false at
// end of sequence.
func (p *Pump) NextFrame() (frame []byte, ok bool, err error) {
	if p.curr.Count() == 0 {
		p.join()

		if p.next.Count() == 0 {
			list, rerr := p.read()
			if rerr != nil {
				return nil, false, rerr
			}
			p.next = list
		}

		if p.next.Count() > 0 {
			p.curr = p.next
			p.next = framelist.List{}
		}
	}

	frame, ok = p.curr.Shift()
	return frame, ok, nil
}

// FramesRemaining reports how many frames are buffered in curr.
func (p *Pump) FramesRemaining() int {
	return p.curr.Count()
}

// Close detaches any in-flight worker rather than blocking shutdown behind a
// slow read, and releases both frame lists.
func (p *Pump) Close() {
	p.worker = nil
	p.curr = framelist.List{}
	p.next = framelist.List{}
}

func (p *Pump) join() {
	if p.worker != nil {
		<-p.worker
		p.worker = nil
		p.preloading = false
	}
}

// read dispatches to the compressed or uncompressed reader based on the
// current position counters, which are advanced only by CheckPreload.
func (p *Pump) read() (framelist.List, error) {
	switch p.seq.Compression {
	case fseq.CompressionZstd:
		blocks, err := fseq.CompressionBlockCount(p.fc, p.seq)
		if err != nil {
			return framelist.List{}, err
		}
		if p.posBlock >= blocks {
			return framelist.List{}, nil
		}
		frames, err := fseq.ReadBlock(p.fc, p.seq, p.posBlock)
		if err != nil {
			return framelist.List{}, err
		}
		var list framelist.List
		for _, f := range frames {
			list.Append(f)
		}
		return list, nil
	case fseq.CompressionNone:
		if p.posFrame >= p.seq.FrameCount {
			return framelist.List{}, nil
		}
		return p.readUncompressed(p.posFrame)
	default:
		return framelist.List{}, errs.New(errs.Range, "pump.read")
	}
}

// readUncompressed batches roughly 10s of frames in one positioned read,
// then splits the block into per-frame owned buffers to match the
// compressed path's ownership model.
func (p *Pump) readUncompressed(startFrame uint32) (framelist.List, error) {
	batch := 10000 / int(p.seq.FrameStepTimeMillis)
	offset := int64(p.seq.ChannelDataOffset) + int64(startFrame)*int64(p.seq.ChannelCount)

	buf := make([]byte, batch*int(p.seq.ChannelCount))
	units, err := p.fc.ReadTo(offset, int(p.seq.ChannelCount), batch, buf)
	if err != nil {
		return framelist.List{}, err
	}
	if units == 0 {
		return framelist.List{}, nil
	}

	var list framelist.List
	for i := 0; i < units; i++ {
		frame := make([]byte, p.seq.ChannelCount)
		copy(frame, buf[i*int(p.seq.ChannelCount):(i+1)*int(p.seq.ChannelCount)])
		list.Append(frame)
	}
	return list, nil
}
