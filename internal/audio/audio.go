// Package audio provides the player's narrow audio sink: lazily
// initialised, asynchronous playback of a single WAV file at a time, with
// a poll-based IsPlaying used to synchronize shutdown against the LOR main
// loop. It is a trimmed descendant of a richer playback package, stripped
// of seeking, pausing, volume, speed, and live-stream support that this
// player's job model has no use for.
package audio

import (
	"encoding/binary"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/go-audio/wav"

	"github.com/olivier-w/lorplayer/internal/errs"
)

// Sink manages at most one in-flight playback at a time.
type Sink struct {
	mu     sync.Mutex
	ctx    *oto.Context
	player *oto.Player
	file   *os.File
	done   chan struct{}
}

var (
	globalCtx  *oto.Context
	ctxOnce    sync.Once
	ctxInitErr error
)

func initContext(sampleRate, channelCount int) (*oto.Context, error) {
	ctxOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channelCount,
			Format:       oto.FormatSignedInt16LE,
		}
		var ready chan struct{}
		globalCtx, ready, ctxInitErr = oto.NewContext(op)
		if ctxInitErr == nil {
			<-ready
			if globalCtx != nil {
				ctxInitErr = globalCtx.Err()
			}
		}
	})
	return globalCtx, ctxInitErr
}

// New returns an idle Sink. Initialization of the underlying audio context
// is deferred to the first Play call.
func New() *Sink {
	return &Sink{}
}

// Play stops any previous playback on this sink and starts playing path
// asynchronously. path must name a WAV (or WAV-compatible AIFF-class) file.
func (s *Sink) Play(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	f, err := os.Open(path)
	if err != nil {
		return errs.Wrap(errs.AudioInit, "audio.Play", err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return errs.New(errs.InvalidFormat, "audio.Play")
	}

	// FwdToPCM positions the reader at the start of PCM data
	if err := dec.FwdToPCM(); err != nil {
		f.Close()
		return errs.Wrap(errs.AudioInit, "audio.Play", err)
	}

	ctx, err := initContext(int(dec.SampleRate), int(dec.NumChans))
	if err != nil {
		f.Close()
		return errs.Wrap(errs.AudioInit, "audio.Play", err)
	}

	src, err := io.ReadAll(dec.PCMChunk.R)
	if err != nil {
		f.Close()
		return errs.Wrap(errs.AudioInit, "audio.Play", err)
	}
	pcm := toS16LE(src, int(dec.BitDepth))

	player := ctx.NewPlayer(newByteReader(pcm))
	player.Play()

	s.ctx = ctx
	s.player = player
	s.file = f
	s.done = make(chan struct{})
	go s.watch(s.player, s.done)
	return nil
}

func (s *Sink) watch(player *oto.Player, done chan struct{}) {
	for {
		time.Sleep(50 * time.Millisecond)
		if !player.IsPlaying() && player.BufferedSize() == 0 {
			close(done)
			return
		}
		select {
		case <-done:
			return
		default:
		}
	}
}

// IsPlaying reports whether the current playback is still in progress.
// Once it reports false, the sink releases the resources held by that
// playback (its file handle and player).
func (s *Sink) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return false
	}
	select {
	case <-s.done:
		s.releaseLocked()
		return false
	default:
		return true
	}
}

// Stop halts any current playback immediately.
func (s *Sink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Sink) stopLocked() {
	if s.player != nil {
		_ = s.player.Close()
	}
	s.releaseLocked()
}

func (s *Sink) releaseLocked() {
	if s.file != nil {
		s.file.Close()
	}
	s.player = nil
	s.file = nil
	s.done = nil
}

// Exit tears down the sink. The underlying audio context is process-global
// and is not closed, matching oto's own single-context-per-process model.
func (s *Sink) Exit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// toS16LE converts source PCM to the signed 16-bit little-endian layout the
// output context is configured for. 16-bit input passes through unchanged.
func toS16LE(src []byte, bitDepth int) []byte {
	if bitDepth == 16 {
		return src
	}

	bytesPerSample := bitDepth / 8
	if bytesPerSample == 0 {
		return nil
	}
	samples := len(src) / bytesPerSample
	out := make([]byte, samples*2)

	for i := 0; i < samples; i++ {
		off := i * bytesPerSample
		var sample int
		switch bitDepth {
		case 8:
			// 8-bit WAV is unsigned
			sample = (int(src[off]) - 128) << 8
		case 24:
			s := int32(src[off]) | int32(src[off+1])<<8 | int32(src[off+2])<<16
			if s&0x800000 != 0 {
				s |= ^int32(0xFFFFFF) // sign extend
			}
			sample = int(s >> 8)
		case 32:
			sample = int(int32(binary.LittleEndian.Uint32(src[off:])) >> 16)
		}
		if sample > 32767 {
			sample = 32767
		} else if sample < -32768 {
			sample = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sample)))
	}
	return out
}

// byteReader adapts an in-memory PCM buffer to io.Reader for oto.
type byteReader struct {
	data []byte
	pos  int
}

func newByteReader(data []byte) *byteReader {
	return &byteReader{data: data}
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
