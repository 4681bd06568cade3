package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/voicenote/internal/config"
)

// Constraints describe what the recorder asks of the capture device
type Constraints struct {
	Source     string
	Format     FormatDescriptor
	SampleRate int
}

// Device opens capture streams. onChunk receives encoded data in capture order and
// must not retain the slice.
type Device interface {
	Open(ctx context.Context, c Constraints, onChunk func([]byte)) (Stream, error)
}

// Stream is an open capture. No chunk is delivered after Close returns.
type Stream interface {
	Close() error
}

const (
	defaultStartupGrace = 300 * time.Millisecond
	stopTimeout         = 5 * time.Second
)

// FFmpegDevice captures from the sound server with an ffmpeg process that writes
// the selected container to stdout.
type FFmpegDevice struct {
	ffmpegPath   string
	backend      BackendType
	sources      SourceLister
	startupGrace time.Duration
}

// NewFFmpegDevice creates a capture device for the configured backend
func NewFFmpegDevice(cfg *config.Config) *FFmpegDevice {
	path := "ffmpeg"
	if cfg != nil && cfg.Audio.FFmpegPath != "" {
		path = cfg.Audio.FFmpegPath
	}
	return &FFmpegDevice{
		ffmpegPath:   path,
		backend:      determineBackend(cfg),
		sources:      NewSourceLister(cfg),
		startupGrace: defaultStartupGrace,
	}
}

// Open starts capturing. The process is given a short grace period so that a
// missing device or denied access is reported here rather than on Close.
func (d *FFmpegDevice) Open(ctx context.Context, c Constraints, onChunk func([]byte)) (Stream, error) {
	bin, err := exec.LookPath(d.ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	if d.sources != nil && !isDefaultSource(c.Source) {
		if err := ValidateSource(d.sources, c.Source); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
		}
	}

	args := d.buildArgs(c)
	slog.Info("Starting capture", "backend", d.backend, "source", c.Source, "format", c.Format.Kind)
	slog.Debug("Capture command", "command", bin+" "+strings.Join(args, " "))

	cmd := exec.Command(bin, args...)
	cmd.Env = append(os.Environ(), d.backend.env()...)
	// exec copies stdout on its own goroutine and Wait returns only after the
	// copy finished, so every chunk is delivered before the stream reports closed.
	cmd.Stdout = chunkWriter(onChunk)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start ffmpeg: %v", ErrDeviceUnavailable, err)
	}

	s := &ffmpegStream{cmd: cmd, stderr: stderr, exited: make(chan error, 1)}
	go func() {
		s.exited <- cmd.Wait()
	}()

	select {
	case err := <-s.exited:
		return nil, classifyStartFailure(err, stderr.String())
	case <-ctx.Done():
		cmd.Process.Kill()
		<-s.exited
		return nil, ctx.Err()
	case <-time.After(d.startupGrace):
	}

	return s, nil
}

// buildArgs constructs the ffmpeg capture command line. Capture is always mono.
func (d *FFmpegDevice) buildArgs(c Constraints) []string {
	source := c.Source
	if source == "" {
		source = "default"
	}
	rate := c.SampleRate
	if rate <= 0 {
		rate = 48000
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-f", d.backend.inputFormat(),
		"-i", source,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(rate),
	}
	if c.Format.Encoder != "" {
		args = append(args, "-c:a", c.Format.Encoder)
	}
	if c.Format.Encoder == "libopus" {
		args = append(args, "-b:a", "64k")
	}
	if c.Format.Muxer == "ipod" || c.Format.Muxer == "mp4" {
		// mp4 cannot seek back on a pipe to write the index
		args = append(args, "-movflags", "frag_keyframe+empty_moov")
	}
	args = append(args, "-f", c.Format.Muxer, "pipe:1")
	return args
}

func classifyStartFailure(waitErr error, stderr string) error {
	detail := strings.TrimSpace(stderr)
	if detail == "" && waitErr != nil {
		detail = waitErr.Error()
	}
	lower := strings.ToLower(detail)
	if strings.Contains(lower, "permission denied") || strings.Contains(lower, "access denied") {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, detail)
	}
	return fmt.Errorf("%w: %s", ErrNoDevice, detail)
}

type ffmpegStream struct {
	cmd    *exec.Cmd
	stderr *lockedBuffer
	exited chan error

	closeOnce sync.Once
	closeErr  error
}

// Close asks ffmpeg to finish the container, then waits for it to exit
func (s *ffmpegStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.stop()
	})
	return s.closeErr
}

func (s *ffmpegStream) stop() error {
	if s.cmd.Process != nil {
		slog.Debug("Sending SIGINT to capture process")
		if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
			slog.Debug("Failed to interrupt capture process, killing", "error", err)
			s.cmd.Process.Kill()
		}
	}

	select {
	case err := <-s.exited:
		if err == nil {
			return nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// 255 is ffmpeg's exit code after a handled interrupt
			if exitErr.ExitCode() == 255 {
				return nil
			}
			if exitErr.ProcessState != nil {
				state := exitErr.ProcessState.String()
				if state == "signal: interrupt" || state == "signal: killed" {
					return nil
				}
			}
		}
		slog.Debug("Capture stderr", "output", s.stderr.String())
		return fmt.Errorf("capture process failed: %w", err)

	case <-time.After(stopTimeout):
		slog.Warn("Capture process did not exit within timeout, force killing")
		s.cmd.Process.Kill()
		<-s.exited
		return nil
	}
}

// chunkWriter adapts a chunk callback to io.Writer
type chunkWriter func([]byte)

func (w chunkWriter) Write(p []byte) (int, error) {
	w(p)
	return len(p), nil
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
