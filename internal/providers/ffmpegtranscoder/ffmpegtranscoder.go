// Package ffmpegtranscoder adapts the ffmpeg/ffprobe command-line tools to
// the pipeline's Transcoder capability.
package ffmpegtranscoder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/MrWong99/scrivener/internal/capability"
)

// Transcoder shells out to ffmpeg and ffprobe. It is safe for concurrent
// use: each call spawns its own subprocess.
type Transcoder struct {
	FFmpegPath  string
	FFprobePath string
}

var _ capability.Transcoder = (*Transcoder)(nil)

// New resolves ffmpeg/ffprobe from PATH. If either binary is missing,
// Transcode falls back to copying the source file verbatim and Probe
// reports a duration of zero, matching the behavior of a deployment
// without a working audio toolchain.
func New() *Transcoder {
	ffmpeg, _ := exec.LookPath("ffmpeg")
	ffprobe, _ := exec.LookPath("ffprobe")
	return &Transcoder{FFmpegPath: ffmpeg, FFprobePath: ffprobe}
}

// Transcode converts src to mono 16kHz PCM WAV at dst.
func (t *Transcoder) Transcode(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("ffmpegtranscoder: create destination directory: %w", err)
	}

	if t.FFmpegPath == "" {
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("ffmpegtranscoder: ffmpeg unavailable, copy fallback failed: %w", err)
		}
		return nil
	}

	cmd := exec.CommandContext(ctx, t.FFmpegPath,
		"-y",
		"-i", src,
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dst,
	)
	return runCommand(cmd)
}

// Probe returns src's duration in seconds via ffprobe. It returns 0.0,
// nil if ffprobe is unavailable or its output cannot be parsed.
func (t *Transcoder) Probe(ctx context.Context, path string) (float64, error) {
	if t.FFprobePath == "" {
		return 0.0, nil
	}
	cmd := exec.CommandContext(ctx, t.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return 0.0, nil
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(out.String()), 64)
	if err != nil {
		return 0.0, nil
	}
	return duration, nil
}

// Segment splits src into fixed-length WAV files under outDir using
// ffmpeg's segment muxer, returning the resulting file paths sorted by
// name. An error or empty result tells the caller to fall back to a
// single chunk.
func (t *Transcoder) Segment(ctx context.Context, src, outDir string, segmentSeconds int) ([]string, error) {
	if t.FFmpegPath == "" {
		return nil, fmt.Errorf("ffmpegtranscoder: ffmpeg unavailable")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("ffmpegtranscoder: create segments directory: %w", err)
	}

	pattern := filepath.Join(outDir, "chunk_%03d.wav")
	cmd := exec.CommandContext(ctx, t.FFmpegPath,
		"-y",
		"-i", src,
		"-f", "segment",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-c", "copy",
		pattern,
	)
	if err := runCommand(cmd); err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(filepath.Join(outDir, "chunk_*.wav"))
	if err != nil {
		return nil, fmt.Errorf("ffmpegtranscoder: list segments: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

func runCommand(cmd *exec.Cmd) error {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpegtranscoder: %s failed: %w: %s", filepath.Base(cmd.Path), err, stderr.String())
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, in, 0o644)
}
