// Command lorplayer plays a pre-authored FSEQ lighting sequence to a
// Light-O-Rama controller network over a serial line, optionally
// synchronizing an audio track.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/olivier-w/lorplayer/internal/audio"
	"github.com/olivier-w/lorplayer/internal/player"
	"github.com/olivier-w/lorplayer/internal/queue"
	"github.com/olivier-w/lorplayer/internal/serial"
)

func main() {
	os.Exit(run())
}

func run() int {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var (
		seqPath       = pflag.StringP("sequence", "f", "", "path to the FSEQ sequence file (required)")
		cmapPath      = pflag.StringP("cmap", "c", "", "path to the channel-range map JSON file (required)")
		device        = pflag.StringP("device", "d", "null", `serial device, or "null"/"stdout"`)
		baud          = pflag.IntP("baud", "b", 19200, "serial baud rate")
		audioOverride = pflag.StringP("audio", "a", "", "override audio file (defaults to the sequence's embedded media file, if any)")
		waitSec       = pflag.IntP("wait", "w", 0, "seconds to wait for the controller link before playback")
	)
	pflag.Parse()

	if *seqPath == "" || *cmapPath == "" {
		log.Error("missing required flags", "need", "-f/--sequence and -c/--cmap")
		pflag.Usage()
		return 2
	}

	sink, err := serial.Open(*device, *baud, os.Stdout)
	if err != nil {
		log.Error("failed to open serial device", "device", *device, "error", err)
		return 1
	}
	defer sink.Close()

	audioSink := audio.New()
	defer audioSink.Exit()

	entry := queue.Entry{
		SeqPath:   *seqPath,
		AudioPath: *audioOverride,
		CmapPath:  *cmapPath,
		WaitSec:   *waitSec,
	}

	if err := player.Exec(entry, sink, audioSink, log); err != nil {
		log.Error("playback failed", "error", err)
		return 1
	}

	return 0
}
