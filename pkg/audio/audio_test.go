package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	f := Format{SampleRate: 16000, Channels: 1}

	if got := f.BytesPerSecond(); got != 32000 {
		t.Errorf("BytesPerSecond() = %d, want 32000", got)
	}
	if got := f.Duration(6400); got != 200*time.Millisecond {
		t.Errorf("Duration(6400) = %v, want 200ms", got)
	}

	stereo := Format{SampleRate: 44100, Channels: 2}
	if got := stereo.BytesPerSecond(); got != 176400 {
		t.Errorf("stereo BytesPerSecond() = %d, want 176400", got)
	}
}

func TestEncodeWAV(t *testing.T) {
	pcm := make([]byte, 3200)
	out := EncodeWAV(pcm, 16000, 1)

	if len(out) != 44+len(pcm) {
		t.Fatalf("encoded length = %d, want %d", len(out), 44+len(pcm))
	}
	if string(out[0:4]) != "RIFF" || string(out[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE markers: %q %q", out[0:4], out[8:12])
	}
	if string(out[12:16]) != "fmt " || string(out[36:40]) != "data" {
		t.Fatalf("missing fmt/data chunks: %q %q", out[12:16], out[36:40])
	}

	if got := binary.LittleEndian.Uint32(out[4:8]); got != uint32(36+len(pcm)) {
		t.Errorf("RIFF chunk size = %d, want %d", got, 36+len(pcm))
	}
	if got := binary.LittleEndian.Uint32(out[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(out[28:32]); got != 32000 {
		t.Errorf("byte rate = %d, want 32000", got)
	}
	if got := binary.LittleEndian.Uint16(out[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint16(out[34:36]); got != 16 {
		t.Errorf("bits per sample = %d, want 16", got)
	}
	if got := binary.LittleEndian.Uint32(out[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", got, len(pcm))
	}
}

func TestLevel(t *testing.T) {
	t.Run("silence", func(t *testing.T) {
		if got := Level(make([]byte, 640)); got != 0 {
			t.Errorf("Level(silence) = %v, want 0", got)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if got := Level(nil); got != 0 {
			t.Errorf("Level(nil) = %v, want 0", got)
		}
	})

	t.Run("full scale", func(t *testing.T) {
		// Square wave alternating between max and min amplitude.
		pcm := make([]byte, 640)
		for i := 0; i < len(pcm); i += 4 {
			binary.LittleEndian.PutUint16(pcm[i:], uint16(math.MaxInt16))
			binary.LittleEndian.PutUint16(pcm[i+2:], uint16(0x8001)) // -32767
		}
		got := Level(pcm)
		if got < 254.9 || got > 255.1 {
			t.Errorf("Level(full scale) = %v, want ~255", got)
		}
	})

	t.Run("monotonic in amplitude", func(t *testing.T) {
		quiet := tonePCM(500)
		loud := tonePCM(20000)
		if Level(quiet) >= Level(loud) {
			t.Errorf("Level(quiet)=%v >= Level(loud)=%v", Level(quiet), Level(loud))
		}
	})
}

// tonePCM builds 160 samples of a constant-amplitude square wave.
func tonePCM(amp int16) []byte {
	pcm := make([]byte, 320)
	for i := 0; i < len(pcm); i += 4 {
		binary.LittleEndian.PutUint16(pcm[i:], uint16(amp))
		binary.LittleEndian.PutUint16(pcm[i+2:], uint16(-amp))
	}
	return pcm
}
