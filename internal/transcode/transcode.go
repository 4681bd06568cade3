// Package transcode converts recordings into single-channel Ogg/Opus voice notes
// using the shared transcoding engine.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/audiolibrelab/voicenote/internal/audio"
	"github.com/audiolibrelab/voicenote/internal/engine"
	"github.com/audiolibrelab/voicenote/internal/metrics"
)

const DefaultTimeout = 30 * time.Second

// Reason classifies a failed conversion
type Reason string

const (
	ReasonEngineUnavailable Reason = "engineUnavailable"
	ReasonTimeout           Reason = "timeout"
	ReasonEmptyOutput       Reason = "emptyOutput"
	ReasonConversionFailed  Reason = "conversionFailed"
	ReasonInvalidOutput     Reason = "invalidOutput"
)

// Error is returned for every failed conversion
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transcode failed: %s", e.Reason)
	}
	return fmt.Sprintf("transcode failed: %s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Profile is the fixed voice-note encoding
type Profile struct {
	Channels         int
	Codec            string
	Bitrate          string
	CompressionLevel int
	Container        string
}

// VoiceProfile is applied to every conversion regardless of the source
var VoiceProfile = Profile{
	Channels:         1,
	Codec:            "libopus",
	Bitrate:          "64k",
	CompressionLevel: 10,
	Container:        "ogg",
}

// Args builds the engine arguments converting input into output
func (p Profile) Args(input, output string) []string {
	return []string{
		"-i", input,
		"-vn",
		"-ac", fmt.Sprint(p.Channels),
		"-c:a", p.Codec,
		"-b:a", p.Bitrate,
		"-vbr", "off",
		"-compression_level", fmt.Sprint(p.CompressionLevel),
		"-f", p.Container,
		output,
	}
}

// EngineSource hands out the shared engine
type EngineSource interface {
	Acquire(ctx context.Context) (engine.Engine, error)
}

// Result is a converted voice note
type Result struct {
	Data      []byte
	MimeType  string
	Extension string
}

type Transcoder struct {
	engines EngineSource
	timeout time.Duration
	newID   func() string
}

type Option func(*Transcoder)

func WithTimeout(d time.Duration) Option {
	return func(t *Transcoder) {
		if d > 0 {
			t.timeout = d
		}
	}
}

func New(engines EngineSource, opts ...Option) *Transcoder {
	t := &Transcoder{
		engines: engines,
		timeout: DefaultTimeout,
		newID:   func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transcode converts source into the voice profile. sourceHint is the source mime
// type or file name and only picks the input entry's extension. Workspace entries
// are removed before returning on every path, and again once an engine that
// outlived its deadline returns.
func (t *Transcoder) Transcode(ctx context.Context, source []byte, sourceHint string) (*Result, error) {
	start := time.Now()
	res, err := t.transcode(ctx, source, sourceHint)

	metrics.TranscodeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		var terr *Error
		if errors.As(err, &terr) {
			metrics.TranscodesTotal.WithLabelValues(string(terr.Reason)).Inc()
		}
		slog.Error("Transcode failed", "error", err, "source_bytes", len(source), "hint", sourceHint)
		return nil, err
	}
	metrics.TranscodesTotal.WithLabelValues("success").Inc()
	slog.Info("Transcode completed", "source_bytes", len(source), "output_bytes", len(res.Data), "elapsed", time.Since(start))
	return res, nil
}

func (t *Transcoder) transcode(ctx context.Context, source []byte, sourceHint string) (*Result, error) {
	eng, err := t.engines.Acquire(ctx)
	if err != nil {
		return nil, &Error{Reason: ReasonEngineUnavailable, Err: err}
	}

	id := t.newID()
	input := fmt.Sprintf("in-%s.%s", id, inputExtension(sourceHint))
	output := fmt.Sprintf("out-%s.%s", id, audio.TargetExtension)
	defer cleanup(eng, input, output)

	if err := eng.WriteFile(input, source); err != nil {
		return nil, &Error{Reason: ReasonConversionFailed, Err: fmt.Errorf("failed to write source: %w", err)}
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- eng.Exec(runCtx, VoiceProfile.Args(input, output)...)
	}()

	select {
	case err := <-done:
		if err != nil {
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				return nil, &Error{Reason: ReasonTimeout, Err: err}
			}
			return nil, &Error{Reason: ReasonConversionFailed, Err: err}
		}
	case <-runCtx.Done():
		// the engine may still write after we return; clean up again once it stops
		go func() {
			<-done
			cleanup(eng, input, output)
		}()
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, &Error{Reason: ReasonTimeout, Err: fmt.Errorf("conversion exceeded %v", t.timeout)}
		}
		return nil, &Error{Reason: ReasonConversionFailed, Err: runCtx.Err()}
	}

	data, err := eng.ReadFile(output)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &Error{Reason: ReasonEmptyOutput, Err: err}
		}
		return nil, &Error{Reason: ReasonConversionFailed, Err: fmt.Errorf("failed to read output: %w", err)}
	}
	if len(data) == 0 {
		return nil, &Error{Reason: ReasonEmptyOutput}
	}
	if err := ValidateVoiceNote(data); err != nil {
		return nil, &Error{Reason: ReasonInvalidOutput, Err: err}
	}

	return &Result{Data: data, MimeType: audio.TargetMimeType, Extension: audio.TargetExtension}, nil
}

// cleanup removes both entries; failures are logged and never returned
func cleanup(eng engine.Engine, names ...string) {
	for _, name := range names {
		if err := eng.DeleteFile(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to remove workspace entry", "entry", name, "error", err)
		}
	}
}

// inputExtension picks an extension for the input entry from a mime type or file name
func inputExtension(hint string) string {
	if f, ok := audio.FormatForMime(hint); ok {
		return f.FileExtension
	}
	if f := audio.FormatForFile(filepath.Base(hint)); f.FileExtension != "" && f.Kind != audio.FormatUnknown {
		return f.FileExtension
	} else if ext := strings.TrimPrefix(filepath.Ext(hint), "."); ext != "" && !strings.ContainsAny(ext, "/; ") {
		return strings.ToLower(ext)
	}
	return "bin"
}
