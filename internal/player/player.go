// Package player implements the playback orchestrator: the per-frame loop
// tying the sequence reader, frame pump, cell table, LOR encoder, serial
// sink and audio sink together into one playback job. It replaces the
// source's process-wide fatal exits with returned errors; the caller (the
// CLI entry point) is responsible for turning those into an exit code.
package player

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/olivier-w/lorplayer/internal/cell"
	"github.com/olivier-w/lorplayer/internal/clock"
	"github.com/olivier-w/lorplayer/internal/cmap"
	"github.com/olivier-w/lorplayer/internal/filectl"
	"github.com/olivier-w/lorplayer/internal/fseq"
	"github.com/olivier-w/lorplayer/internal/lor"
	"github.com/olivier-w/lorplayer/internal/pump"
	"github.com/olivier-w/lorplayer/internal/queue"
	"github.com/olivier-w/lorplayer/internal/serial"
	"github.com/olivier-w/lorplayer/internal/util"
)

// heartbeatDelay is the ~500ms cadence at which a heartbeat packet keeps the
// LOR controller network considering the link live, both during playback
// and during the pre-playback wait.
const heartbeatDelay = 500 * time.Millisecond

// Sink is the subset of audio.Sink the orchestrator depends on, narrowed so
// tests can substitute a fake.
type Sink interface {
	Play(path string) error
	IsPlaying() bool
	Stop()
	Exit()
}

// runtime holds everything that must be freed, in reverse initialization
// order, when a play job finishes or fails.
type runtime struct {
	fc     *filectl.Controller
	cm     *cmap.Map
	seq    *fseq.Header
	pmp    *pump.Pump
	ctable *cell.Table
	scoll  *clock.Collector
}

func (r *runtime) free() {
	// freed in reverse of Exec's initialization order
	if r.pmp != nil {
		r.pmp.Close()
	}
	r.ctable = nil
	r.scoll = nil
	r.cm = nil
	if r.fc != nil {
		r.fc.Close()
	}
}

// Exec runs one play job end to end: open the sequence and channel map,
// optionally wait for the controller link to settle, start audio, then
// drive the main frame loop until both the sequence and the audio track
// have finished. It returns the first error encountered; resources are
// always released before returning.
func Exec(entry queue.Entry, sink *serial.Sink, audioSink Sink, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	rt := &runtime{}
	defer rt.free()

	fc, err := filectl.Open(entry.SeqPath, filectl.ModeRead)
	if err != nil {
		return fmt.Errorf("player.Exec: open sequence: %w", err)
	}
	rt.fc = fc

	cmData, err := readFile(entry.CmapPath)
	if err != nil {
		return fmt.Errorf("player.Exec: read channel map: %w", err)
	}
	cm, err := cmap.Parse(cmData)
	if err != nil {
		return fmt.Errorf("player.Exec: parse channel map: %w", err)
	}
	rt.cm = cm

	seq, err := fseq.OpenHeader(fc)
	if err != nil {
		return fmt.Errorf("player.Exec: open header: %w", err)
	}
	rt.seq = seq

	rt.scoll = clock.NewCollector()
	rt.ctable = cell.New(cm, seq.ChannelCount, log)
	rt.pmp = pump.New(fc, seq, log)

	buf := lor.NewBuffer()

	if entry.WaitSec > 0 {
		if err := wait(sink, buf, entry.WaitSec); err != nil {
			return fmt.Errorf("player.Exec: pre-playback wait: %w", err)
		}
	}

	audioPath := entry.AudioPath
	if audioPath == "" {
		if mf, err := fseq.MediaFile(fc, seq); err != nil {
			log.Warn("media file lookup failed", "error", err)
		} else {
			audioPath = mf
		}
	}
	if audioPath != "" {
		if err := audioSink.Play(audioPath); err != nil {
			log.Warn("audio playback failed", "path", audioPath, "error", err)
		}
	}

	if err := loop(rt, sink, buf, log); err != nil {
		return fmt.Errorf("player.Exec: playback loop: %w", err)
	}

	log.Info("turning off lights, waiting for end of audio")
	if err := lightsOff(sink, buf); err != nil {
		return fmt.Errorf("player.Exec: lights off: %w", err)
	}
	for audioSink.IsPlaying() {
		time.Sleep(50 * time.Millisecond)
	}
	log.Info("end of sequence")

	return nil
}

func readFile(path string) ([]byte, error) {
	fc, err := filectl.Open(path, filectl.ModeRead)
	if err != nil {
		return nil, err
	}
	defer fc.Close()

	size, err := fc.Size()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := fc.Read(0, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// wait sends a heartbeat twice a second for waitsec seconds, independent of
// the main frame clock, so downstream hardware considers the link
// established before any frame output begins.
func wait(sink *serial.Sink, buf *lor.Buffer, waitsec int) error {
	iterations := 2 * waitsec
	for i := 0; i < iterations; i++ {
		lor.WriteHeartbeat(buf)
		if err := buf.FlushIf(true, sink.Write); err != nil {
			return err
		}
		time.Sleep(heartbeatDelay)
	}
	return nil
}

func lightsOff(sink *serial.Sink, buf *lor.Buffer) error {
	for unit := lor.UnitMin; ; unit++ {
		lor.WriteSetOff(buf, unit)
		if unit == lor.UnitMax {
			break
		}
	}
	if err := buf.FlushIf(true, sink.Write); err != nil {
		return err
	}
	return sink.Drain()
}

// loop is the main per-frame playback loop: spec.md 4.11 step 4.
func loop(rt *runtime, sink *serial.Sink, buf *lor.Buffer, log *slog.Logger) error {
	seq := rt.seq
	heartbeatTicks := uint32(500 / int(seq.FrameStepTimeMillis))
	if heartbeatTicks == 0 {
		heartbeatTicks = 1
	}
	logTicks := uint32(1000 / int(seq.FrameStepTimeMillis))
	if logTicks == 0 {
		logTicks = 1
	}

	var written uint32
	var nextFrame uint32

	for nextFrame < seq.FrameCount {
		rt.scoll.Sleep(time.Duration(seq.FrameStepTimeMillis) * time.Millisecond)

		if nextFrame%heartbeatTicks == 0 {
			lor.WriteHeartbeat(buf)
		}

		if err := rt.pmp.CheckPreload(nextFrame); err != nil {
			return err
		}
		frame, ok, err := rt.pmp.NextFrame()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		frameID := nextFrame
		nextFrame++

		for i := uint32(0); i < seq.ChannelCount && i < uint32(len(frame)); i++ {
			rt.ctable.Set(i, frame[i])
		}

		n, err := emitFrame(rt.ctable, buf, sink)
		if err != nil {
			return err
		}
		written += n

		if err := sink.Drain(); err != nil {
			return err
		}

		if (frameID)%logTicks == 0 {
			logStatus(log, rt, frameID, written)
			written = 0
		}
	}

	return nil
}

// emitFrame links the cell table, iterates its groups in ascending
// section/offset order, encodes one effect per group into buf (flushing as
// thresholds are met), and returns the number of bytes written, counting each
// packet's payload and its two stop bytes.
func emitFrame(ctable *cell.Table, buf *lor.Buffer, sink *serial.Sink) (uint32, error) {
	ctable.LinkAll()

	var written uint32
	var cursor uint32
	for {
		group, ok := ctable.NextGroup(&cursor)
		if !ok {
			break
		}

		var eff lor.Effect
		if group.Intensity == 0 {
			eff = lor.SetOff()
		} else {
			eff = lor.SetIntensity(group.Intensity)
		}

		before := buf.Head()
		if group.Size > 1 {
			lor.WriteChannelSetEffect(buf, group.Unit, group.Section, group.ChannelBits, eff)
		} else {
			circuit := uint16(group.Section)*16 + uint16(offsetOf(group.ChannelBits)) + 1
			lor.WriteChannelEffect(buf, group.Unit, circuit, eff)
		}
		written += uint32(len(before) - len(buf.Head()))

		if err := buf.FlushIf(false, sink.Write); err != nil {
			return written, err
		}
	}
	if err := buf.FlushIf(true, sink.Write); err != nil {
		return written, err
	}
	return written, nil
}

// offsetOf returns the single set bit's position in a single-member group's
// channel bitmask.
func offsetOf(bits uint16) uint8 {
	for i := uint8(0); i < 16; i++ {
		if bits&(1<<i) != 0 {
			return i
		}
	}
	return 0
}

func logStatus(log *slog.Logger, rt *runtime, frameID uint32, written uint32) {
	ms := float64(rt.scoll.Average()) / 1e6
	fps := 0.0
	if ms > 0 {
		fps = 1000 / ms
	}

	remainingFrames := rt.seq.FrameCount - frameID
	remaining := time.Duration(remainingFrames) * time.Duration(rt.seq.FrameStepTimeMillis) * time.Millisecond

	log.Info("playback status",
		slog.Group("status",
			"remaining", util.FormatDuration(remaining),
			"dt_ms", ms,
			"fps", fps,
			"pump_depth", rt.pmp.FramesRemaining(),
			"kbps", float64(written)/1024.0,
		),
	)
}
