package audio

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// Transcoder converts one encoded audio buffer into another container/codec.
// The input is a complete recording (one utterance); streaming conversion is
// not supported. Implementations must clean up any temporary state on every
// return path.
type Transcoder interface {
	// Transcode converts in to the implementation's target format. srcHint is
	// the source container file extension without the dot (e.g., "webm",
	// "ogg"); implementations that do not need it may ignore it.
	Transcode(ctx context.Context, in []byte, srcHint string) ([]byte, error)

	// TargetFormat is the container file extension of the output without the
	// dot ("wav", "mp3"). Empty means the output keeps the input's container.
	TargetFormat() string
}

// Passthrough is a Transcoder that returns its input unchanged. Use it when
// the client already records in a container the transcription service accepts.
type Passthrough struct{}

// Transcode returns in as-is. An empty input is an error so that a broken
// capture path is caught before it reaches the transcription service.
func (Passthrough) Transcode(_ context.Context, in []byte, _ string) ([]byte, error) {
	if len(in) == 0 {
		return nil, errors.New("audio: empty input buffer")
	}
	return in, nil
}

// TargetFormat returns "" since the input container is kept as-is.
func (Passthrough) TargetFormat() string { return "" }

// WAVWrapper is a Transcoder that wraps raw PCM utterances in a WAV header.
// It requires no external binary and is the default for clients that send
// raw PCM16 frames.
type WAVWrapper struct {
	Format Format
}

// Transcode wraps in (raw 16-bit LE PCM) in a RIFF/WAV container.
func (w WAVWrapper) Transcode(_ context.Context, in []byte, _ string) ([]byte, error) {
	if len(in) == 0 {
		return nil, errors.New("audio: empty input buffer")
	}
	if len(in)%2 != 0 {
		return nil, fmt.Errorf("audio: odd byte count %d in PCM input", len(in))
	}
	f := w.Format
	if f.SampleRate <= 0 {
		f.SampleRate = 16000
	}
	if f.Channels <= 0 {
		f.Channels = 1
	}
	return EncodeWAV(in, f.SampleRate, f.Channels), nil
}

// TargetFormat returns "wav".
func (WAVWrapper) TargetFormat() string { return "wav" }

// Default ffmpeg output parameters, chosen for speech: mono, 44.1 kHz,
// 128 kbit/s MP3 is universally accepted by transcription APIs.
const (
	defaultFFmpegFormat  = "mp3"
	defaultFFmpegBitrate = "128k"
	defaultFFmpegRate    = 44100
)

// FFmpegOption is a functional option for configuring an FFmpegTranscoder.
type FFmpegOption func(*FFmpegTranscoder)

// WithBinary overrides the ffmpeg executable path. Default is "ffmpeg"
// resolved via PATH.
func WithBinary(path string) FFmpegOption {
	return func(t *FFmpegTranscoder) { t.binary = path }
}

// WithTargetFormat sets the output container/codec (e.g., "mp3", "wav").
func WithTargetFormat(format string) FFmpegOption {
	return func(t *FFmpegTranscoder) { t.format = format }
}

// WithSampleRate sets the output sample rate in Hz.
func WithSampleRate(rate int) FFmpegOption {
	return func(t *FFmpegTranscoder) { t.sampleRate = rate }
}

// WithTempDir overrides the directory used for per-invocation temp files.
// Default is os.TempDir().
func WithTempDir(dir string) FFmpegOption {
	return func(t *FFmpegTranscoder) { t.tmpDir = dir }
}

// FFmpegTranscoder converts arbitrary recording containers (WebM/Opus, Ogg,
// …) by shelling out to ffmpeg with per-invocation temporary files. Both
// temp files are private to one call and removed on every exit path.
//
// FFmpegTranscoder is safe for concurrent use; each call operates on its own
// files and process.
type FFmpegTranscoder struct {
	binary     string
	format     string
	bitrate    string
	sampleRate int
	tmpDir     string
}

// NewFFmpegTranscoder creates an FFmpegTranscoder with mp3 output defaults.
func NewFFmpegTranscoder(opts ...FFmpegOption) *FFmpegTranscoder {
	t := &FFmpegTranscoder{
		binary:     "ffmpeg",
		format:     defaultFFmpegFormat,
		bitrate:    defaultFFmpegBitrate,
		sampleRate: defaultFFmpegRate,
		tmpDir:     os.TempDir(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Transcode writes in to a temp file, runs ffmpeg, and reads the converted
// result back. srcHint names the source container extension; an empty hint
// defaults to "webm" (the browser MediaRecorder default).
func (t *FFmpegTranscoder) Transcode(ctx context.Context, in []byte, srcHint string) ([]byte, error) {
	if len(in) == 0 {
		return nil, errors.New("audio: empty input buffer")
	}
	if srcHint == "" {
		srcHint = "webm"
	}

	stem := tempStem()
	inPath := filepath.Join(t.tmpDir, stem+"."+srcHint)
	outPath := filepath.Join(t.tmpDir, stem+"."+t.format)

	if err := os.WriteFile(inPath, in, 0o600); err != nil {
		return nil, fmt.Errorf("audio: write temp input: %w", err)
	}
	defer removeTemp(inPath)
	defer removeTemp(outPath)

	args := t.args(inPath, outPath)
	cmd := exec.CommandContext(ctx, t.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("audio: ffmpeg %s->%s: %w: %s", srcHint, t.format, err, lastLine(stderr.Bytes()))
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("audio: read temp output: %w", err)
	}
	return out, nil
}

// TargetFormat returns the configured output container.
func (t *FFmpegTranscoder) TargetFormat() string { return t.format }

// args builds the ffmpeg argument list for one conversion.
func (t *FFmpegTranscoder) args(inPath, outPath string) []string {
	args := []string{"-y", "-i", inPath, "-ac", "1", "-ar", strconv.Itoa(t.sampleRate)}
	if t.format == "mp3" {
		args = append(args, "-codec:a", "libmp3lame", "-b:a", t.bitrate)
	}
	args = append(args, "-f", t.format, outPath)
	return args
}

// tempStem returns a random file-name stem for one transcode invocation.
func tempStem() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back to a
		// constant stem so the error surfaces as a file collision at worst.
		return "lumi-transcode"
	}
	return "lumi-" + hex.EncodeToString(b[:])
}

// removeTemp deletes a temp file, logging (not failing) on error. A missing
// file is expected on the ffmpeg failure path for the output.
func removeTemp(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("audio: remove temp file", "path", path, "err", err)
	}
}

// lastLine returns the final non-empty line of b, which for ffmpeg stderr is
// usually the actual error message.
func lastLine(b []byte) string {
	lines := bytes.Split(bytes.TrimSpace(b), []byte("\n"))
	if len(lines) == 0 {
		return ""
	}
	return string(bytes.TrimSpace(lines[len(lines)-1]))
}
