package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Player is the reply audio sink.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

// FFplayPlayer pipes reply audio into ffplay. ffplay detects the container
// from the stream, so mp3 and wav replies both work unchanged.
type FFplayPlayer struct {
	binary string
}

// NewFFplayPlayer creates a player using the given ffplay binary, or
// "ffplay" from PATH when empty.
func NewFFplayPlayer(binary string) *FFplayPlayer {
	if binary == "" {
		binary = "ffplay"
	}
	return &FFplayPlayer{binary: binary}
}

// Play blocks until playback finishes or ctx is cancelled.
func (p *FFplayPlayer) Play(ctx context.Context, audio []byte) error {
	cmd := exec.CommandContext(ctx, p.binary, "-autoexit", "-nodisp", "-loglevel", "error", "-i", "pipe:0")
	cmd.Stdin = bytes.NewReader(audio)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("playback: %w: %s", err, bytes.TrimSpace(out))
	}
	return nil
}

// FilePlayer writes each reply into a directory instead of playing it.
// Used with -save-replies and on machines without ffplay.
type FilePlayer struct {
	dir string
	seq int
}

// NewFilePlayer creates a player that drops replies into dir.
func NewFilePlayer(dir string) (*FilePlayer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("playback: create %q: %w", dir, err)
	}
	return &FilePlayer{dir: dir}, nil
}

// Play writes the reply to a timestamped file.
func (p *FilePlayer) Play(_ context.Context, audio []byte) error {
	p.seq++
	name := fmt.Sprintf("reply-%s-%03d.bin", time.Now().Format("150405"), p.seq)
	path := filepath.Join(p.dir, name)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return fmt.Errorf("playback: write %q: %w", path, err)
	}
	return nil
}

var (
	_ Player = (*FFplayPlayer)(nil)
	_ Player = (*FilePlayer)(nil)
)
