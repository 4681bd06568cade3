package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiolibrelab/voicenote/internal/metrics"
)

// State represents the current state of the recorder
type State string

const (
	StateIdle      State = "IDLE"
	StateRecording State = "RECORDING"
	StateStopped   State = "STOPPED"
)

// SessionInfo contains information about the current recording session
type SessionInfo struct {
	StartTime  time.Time `json:"start_time"`
	Format     string    `json:"format"`
	MimeType   string    `json:"mime_type"`
	ChunkCount int       `json:"chunk_count"`
	ByteCount  int       `json:"byte_count"`
}

// Recording is the immutable result of a stopped session
type Recording struct {
	Data      []byte
	MimeType  string
	FileName  string
	Format    FormatDescriptor
	StartedAt time.Time
	Duration  time.Duration
}

// RecorderOptions configure the capture constraints
type RecorderOptions struct {
	Source     string
	SampleRate int
}

type session struct {
	format    FormatDescriptor
	startedAt time.Time
	stream    Stream
	chunks    [][]byte
	size      int
	closed    bool
}

// Recorder drives a capture device through Idle -> Recording -> Stopped
type Recorder struct {
	device Device
	caps   Capabilities
	opts   RecorderOptions
	now    func() time.Time

	// op serializes state transitions; mu guards the fields below and chunk appends.
	op      sync.Mutex
	mu      sync.Mutex
	state   State
	session *session
}

// NewRecorder creates a recorder that picks its format from caps
func NewRecorder(device Device, caps Capabilities, opts RecorderOptions) *Recorder {
	return &Recorder{
		device: device,
		caps:   caps,
		opts:   opts,
		now:    time.Now,
		state:  StateIdle,
	}
}

// StartRecording opens the device and begins buffering chunks
func (r *Recorder) StartRecording(ctx context.Context) error {
	r.op.Lock()
	defer r.op.Unlock()

	if r.State() == StateRecording {
		return fmt.Errorf("%w: already recording", ErrInvalidState)
	}

	format := SelectBestFormat(r.caps)
	if format.Kind == FormatUnknown {
		slog.Warn("No catalog format is supported natively, recording in fallback container; conversion will be required",
			"container", format.Muxer)
	}

	s := &session{format: format, startedAt: r.now()}
	stream, err := r.device.Open(ctx, Constraints{
		Source:     r.opts.Source,
		Format:     format,
		SampleRate: r.opts.SampleRate,
	}, func(chunk []byte) {
		r.appendChunk(s, chunk)
	})
	if err != nil {
		r.reset()
		metrics.RecordingsTotal.WithLabelValues("device_error").Inc()
		return fmt.Errorf("failed to open capture device: %w", err)
	}

	r.mu.Lock()
	s.stream = stream
	r.session = s
	r.state = StateRecording
	r.mu.Unlock()

	metrics.ActiveRecordings.Inc()
	slog.Info("Recording started", "format", format.Kind, "mime_type", format.MimeType)
	return nil
}

// appendChunk copies a non-empty chunk into the session while it is live
func (r *Recorder) appendChunk(s *session, chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)

	r.mu.Lock()
	defer r.mu.Unlock()
	if s.closed {
		return
	}
	s.chunks = append(s.chunks, buf)
	s.size += len(buf)
}

// StopRecording releases the device and returns the joined buffer
func (r *Recorder) StopRecording() (*Recording, error) {
	r.op.Lock()
	defer r.op.Unlock()

	r.mu.Lock()
	if r.state != StateRecording {
		state := r.state
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot stop while %s", ErrInvalidState, state)
	}
	s := r.session
	r.mu.Unlock()

	if err := s.stream.Close(); err != nil {
		slog.Warn("Capture device did not close cleanly", "error", err)
	}

	r.mu.Lock()
	s.closed = true
	data := bytes.Join(s.chunks, nil)
	s.chunks = nil
	r.session = nil
	r.state = StateStopped
	r.mu.Unlock()

	metrics.ActiveRecordings.Dec()

	if len(data) == 0 {
		metrics.RecordingsTotal.WithLabelValues("empty").Inc()
		return nil, ErrEmptyRecording
	}

	rec := &Recording{
		Data:      data,
		MimeType:  s.format.MimeType,
		FileName:  fmt.Sprintf("audio-%s.%s", uuid.Must(uuid.NewV7()).String(), s.format.FileExtension),
		Format:    s.format,
		StartedAt: s.startedAt,
		Duration:  r.now().Sub(s.startedAt),
	}

	metrics.RecordingsTotal.WithLabelValues("success").Inc()
	metrics.RecordedBytes.Observe(float64(len(data)))
	slog.Info("Recording stopped", "bytes", len(data), "file_name", rec.FileName, "duration", rec.Duration)
	return rec, nil
}

// Cancel discards the live session without producing a buffer
func (r *Recorder) Cancel() error {
	r.op.Lock()
	defer r.op.Unlock()

	r.mu.Lock()
	if r.state != StateRecording {
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("%w: nothing to cancel while %s", ErrInvalidState, state)
	}
	s := r.session
	r.mu.Unlock()

	if err := s.stream.Close(); err != nil {
		slog.Debug("Capture device close failed during cancel", "error", err)
	}

	r.mu.Lock()
	s.closed = true
	s.chunks = nil
	r.mu.Unlock()
	r.reset()

	metrics.ActiveRecordings.Dec()
	metrics.RecordingsTotal.WithLabelValues("cancelled").Inc()
	slog.Info("Recording cancelled")
	return nil
}

// reset returns the recorder to Idle
func (r *Recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = nil
	r.state = StateIdle
}

// State returns the current state
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Status returns the state plus information about a live session
func (r *Recorder) Status() (State, *SessionInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return r.state, nil
	}
	return r.state, &SessionInfo{
		StartTime:  r.session.startedAt,
		Format:     r.session.format.Kind.String(),
		MimeType:   r.session.format.MimeType,
		ChunkCount: len(r.session.chunks),
		ByteCount:  r.session.size,
	}
}

// Format returns the format a new session would record in
func (r *Recorder) Format() FormatDescriptor {
	return SelectBestFormat(r.caps)
}
