package player

import (
	"encoding/binary"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/olivier-w/lorplayer/internal/queue"
	"github.com/olivier-w/lorplayer/internal/serial"
)

// fakeAudio is a Sink that records calls instead of touching real audio
// hardware, which this test environment may not have.
type fakeAudio struct {
	played  []string
	playing bool
}

func (f *fakeAudio) Play(path string) error {
	f.played = append(f.played, path)
	f.playing = true
	return nil
}

func (f *fakeAudio) IsPlaying() bool {
	wasPlaying := f.playing
	f.playing = false
	return wasPlaying
}

func (f *fakeAudio) Stop() { f.playing = false }
func (f *fakeAudio) Exit() {}

func buildUncompressedSequence(t *testing.T, channelCount uint32, frames [][]byte) string {
	t.Helper()

	const channelDataOffset = 32
	header := make([]byte, channelDataOffset)
	copy(header[0:4], []byte{'P', 'S', 'E', 'Q'})
	binary.LittleEndian.PutUint16(header[4:6], uint16(channelDataOffset))
	header[6] = 0 // minor
	header[7] = 2 // major
	binary.LittleEndian.PutUint16(header[8:10], uint16(channelDataOffset))
	binary.LittleEndian.PutUint32(header[10:14], channelCount)
	binary.LittleEndian.PutUint32(header[14:18], uint32(len(frames)))
	header[18] = 50 // frameStepTimeMillis
	header[19] = 0
	header[20] = 0 // compression: none
	header[21] = 0 // compressionBlockCount
	header[22] = 0
	header[23] = 0

	var body []byte
	body = append(body, header...)
	for _, f := range frames {
		body = append(body, f...)
	}

	path := filepath.Join(t.TempDir(), "test.fseq")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("writing sequence fixture: %v", err)
	}
	return path
}

func buildChannelMap(t *testing.T, channelCount uint32) string {
	t.Helper()
	cmapJSON := `[{"index":{"from":0,"to":` + itoa(channelCount-1) + `},"circuit":{"from":1,"to":` + itoa(channelCount) + `},"unit":20}]`
	path := filepath.Join(t.TempDir(), "cmap.json")
	if err := os.WriteFile(path, []byte(cmapJSON), 0o644); err != nil {
		t.Fatalf("writing cmap fixture: %v", err)
	}
	return path
}

func itoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func TestExecPlaysSequenceToCompletion(t *testing.T) {
	const channelCount = 16
	frames := [][]byte{
		make([]byte, channelCount),
		make([]byte, channelCount),
		make([]byte, channelCount),
	}
	for i := range frames[1] {
		frames[1][i] = 255
	}

	seqPath := buildUncompressedSequence(t, channelCount, frames)
	cmapPath := buildChannelMap(t, channelCount)

	sink, err := serial.Open("null", 19200, nil)
	if err != nil {
		t.Fatalf("serial.Open: %v", err)
	}
	defer sink.Close()

	audio := &fakeAudio{}
	entry := queue.Entry{SeqPath: seqPath, CmapPath: cmapPath, AudioPath: "song.wav"}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	if err := Exec(entry, sink, audio, log); err != nil {
		t.Fatalf("Exec: %v", err)
	}

	if len(audio.played) != 1 || audio.played[0] != "song.wav" {
		t.Fatalf("expected audio to play song.wav once, got %+v", audio.played)
	}
}

func TestExecWithoutWaitSkipsHeartbeatPhase(t *testing.T) {
	const channelCount = 4
	frames := [][]byte{make([]byte, channelCount)}
	seqPath := buildUncompressedSequence(t, channelCount, frames)
	cmapPath := buildChannelMap(t, channelCount)

	sink, err := serial.Open("null", 19200, nil)
	if err != nil {
		t.Fatalf("serial.Open: %v", err)
	}
	defer sink.Close()

	audio := &fakeAudio{}
	entry := queue.Entry{SeqPath: seqPath, CmapPath: cmapPath, WaitSec: 0}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	if err := Exec(entry, sink, audio, log); err != nil {
		t.Fatalf("Exec: %v", err)
	}
}

func TestExecFailsOnMissingSequence(t *testing.T) {
	cmapPath := buildChannelMap(t, 4)
	sink, err := serial.Open("null", 19200, nil)
	if err != nil {
		t.Fatalf("serial.Open: %v", err)
	}
	defer sink.Close()

	entry := queue.Entry{SeqPath: "/nonexistent/path.fseq", CmapPath: cmapPath}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	if err := Exec(entry, sink, &fakeAudio{}, log); err == nil {
		t.Fatalf("expected error for missing sequence file")
	}
}
