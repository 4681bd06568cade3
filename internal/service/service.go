package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/audiolibrelab/voicenote/internal/audio"
	"github.com/audiolibrelab/voicenote/internal/config"
	"github.com/audiolibrelab/voicenote/internal/engine"
	"github.com/audiolibrelab/voicenote/internal/packager"
	"github.com/audiolibrelab/voicenote/internal/transcode"
	"github.com/audiolibrelab/voicenote/internal/upload"
)

// Service represents the core voice note service interface
type Service interface {
	// Recording operations
	StartRecording(ctx context.Context) error
	StopRecording() (*audio.Recording, error)
	CancelRecording() error
	GetStatus() Status

	// Conversion and sending
	Prepare(ctx context.Context, data []byte, mimeType, name string) (*packager.Payload, error)
	ConvertFile(ctx context.Context, inputPath, outputPath string) (string, error)
	SaveRecording(rec *audio.Recording) (string, error)
	SendPending(ctx context.Context, conversationID, caption string) (*SendResult, error)
	SendRecording(ctx context.Context, rec *audio.Recording, conversationID, caption string) (*SendResult, error)
	SendFile(ctx context.Context, path, conversationID, caption string) (*SendResult, error)

	// Engine operations
	WarmUp(ctx context.Context) (*EngineInfo, error)
	GetEngineStatus() EngineStatus

	// Configuration and information operations
	Formats() FormatsReport
	LoadProfile(profile string) error
	GetConfig() *config.Config
	GetLastError() string
}

// ErrNoPendingRecording is returned when sending without a stopped recording
var ErrNoPendingRecording = errors.New("no recording waiting to be sent")

// Recorder is the capture state machine the service drives
type Recorder interface {
	StartRecording(ctx context.Context) error
	StopRecording() (*audio.Recording, error)
	Cancel() error
	Status() (audio.State, *audio.SessionInfo)
}

// Converter turns a recording into a voice note
type Converter interface {
	Transcode(ctx context.Context, source []byte, sourceHint string) (*transcode.Result, error)
}

// Uploader is the chat backend
type Uploader interface {
	Upload(ctx context.Context, p *packager.Payload) (*upload.UploadResult, error)
	SendMessage(ctx context.Context, msg upload.OutgoingMessage) (*upload.SentMessage, error)
}

// Status is a snapshot of the recorder and the engine
type Status struct {
	State     audio.State        `json:"state"`
	Session   *audio.SessionInfo `json:"session,omitempty"`
	Pending   *PendingInfo       `json:"pending,omitempty"`
	Engine    EngineStatus       `json:"engine"`
	LastError string             `json:"last_error,omitempty"`
}

// PendingInfo describes a stopped recording that has not been sent yet
type PendingInfo struct {
	FileName           string        `json:"file_name"`
	MimeType           string        `json:"mime_type"`
	ByteSize           int           `json:"byte_size"`
	Duration           time.Duration `json:"duration"`
	RequiresConversion bool          `json:"requires_conversion"`
}

type EngineStatus struct {
	Ready   bool `json:"ready"`
	Loading bool `json:"loading"`
}

// EngineInfo is reported after a warm up
type EngineInfo struct {
	Version  string        `json:"version,omitempty"`
	LoadTime time.Duration `json:"load_time"`
}

// FormatSupport is a catalog entry with the local probe result
type FormatSupport struct {
	audio.FormatDescriptor
	Supported          bool `json:"supported"`
	RequiresConversion bool `json:"requires_conversion"`
}

type FormatsReport struct {
	Formats  []FormatSupport        `json:"formats"`
	Selected audio.FormatDescriptor `json:"selected"`
}

// SendResult is returned after a voice note was delivered
type SendResult struct {
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	ByteSize  int    `json:"byte_size"`
	MediaURL  string `json:"media_url"`
	MediaKind string `json:"media_kind"`
	MessageID string `json:"message_id,omitempty"`
	Converted bool   `json:"converted"`
}

// Deps are the collaborators of the service
type Deps struct {
	Recorder     Recorder
	Engine       *engine.Handle
	Converter    Converter
	Uploader     Uploader
	Capabilities audio.Capabilities

	// NewRecorder rebuilds the recorder after a profile switch; nil keeps the current one.
	NewRecorder func(cfg *config.Config) Recorder
	// Fs is where recordings and converted files are written; defaults to the OS filesystem.
	Fs afero.Fs
}

// VoiceNoteService is the main service implementation
type VoiceNoteService struct {
	configFile string
	engine     *engine.Handle
	converter  Converter
	uploader   Uploader
	caps       audio.Capabilities
	fs         afero.Fs

	newRecorder func(cfg *config.Config) Recorder

	mu       sync.Mutex
	cfg      *config.Config
	recorder Recorder
	pending  *audio.Recording

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a service from explicit collaborators
func New(cfg *config.Config, configFile string, deps Deps) *VoiceNoteService {
	fs := deps.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &VoiceNoteService{
		configFile:  configFile,
		engine:      deps.Engine,
		converter:   deps.Converter,
		uploader:    deps.Uploader,
		caps:        deps.Capabilities,
		fs:          fs,
		newRecorder: deps.NewRecorder,
		cfg:         cfg,
		recorder:    deps.Recorder,
	}
}

// NewEngineHandle builds the shared engine handle for cfg
func NewEngineHandle(cfg *config.Config) *engine.Handle {
	return engine.NewHandle(engine.NewFFmpegLoader(cfg.Engine),
		engine.WithLoadTimeout(cfg.Engine.GetLoadTimeout()),
		engine.WithFailureCooldown(cfg.Engine.GetFailureCooldown()),
	)
}

// NewFromConfig wires the ffmpeg capture device, the given engine handle and the
// backend client. Capability probing failures are logged and leave only the
// fallback format available.
func NewFromConfig(ctx context.Context, cfg *config.Config, configFile string, handle *engine.Handle) *VoiceNoteService {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	caps, err := audio.ProbeCapabilities(probeCtx, cfg.Audio.FFmpegPath)
	if err != nil {
		slog.Warn("Could not probe ffmpeg capabilities", "error", err)
	}

	newRecorder := func(cfg *config.Config) Recorder {
		return audio.NewRecorder(audio.NewFFmpegDevice(cfg), caps, audio.RecorderOptions{
			Source:     cfg.Source.Device,
			SampleRate: cfg.Audio.SampleRate,
		})
	}

	return New(cfg, configFile, Deps{
		Recorder:     newRecorder(cfg),
		Engine:       handle,
		Converter:    transcode.New(handle, transcode.WithTimeout(cfg.Transcode.GetTimeout())),
		Uploader:     upload.NewClient(cfg.Upload),
		Capabilities: caps,
		NewRecorder:  newRecorder,
	})
}

// StartRecording begins a new capture. A pending recording is discarded.
func (s *VoiceNoteService) StartRecording(ctx context.Context) error {
	slog.Debug("Service.StartRecording called")
	s.clearLastError()

	if err := s.currentRecorder().StartRecording(ctx); err != nil {
		s.setLastError(err)
		return err
	}

	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
	return nil
}

// StopRecording stops the capture and keeps the recording as the pending attachment
func (s *VoiceNoteService) StopRecording() (*audio.Recording, error) {
	rec, err := s.currentRecorder().StopRecording()
	if err != nil {
		s.setLastError(err)
		return nil, err
	}

	s.mu.Lock()
	s.pending = rec
	s.mu.Unlock()
	s.clearLastError()
	return rec, nil
}

// CancelRecording aborts a live capture, or discards the pending recording. The
// engine is never touched.
func (s *VoiceNoteService) CancelRecording() error {
	rec := s.currentRecorder()
	if state, _ := rec.Status(); state == audio.StateRecording {
		if err := rec.Cancel(); err != nil {
			s.setLastError(err)
			return err
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return fmt.Errorf("%w: nothing to cancel", audio.ErrInvalidState)
	}
	slog.Info("Pending recording discarded", "file_name", s.pending.FileName)
	s.pending = nil
	return nil
}

// GetStatus returns the recorder state, the pending recording and the engine state
func (s *VoiceNoteService) GetStatus() Status {
	state, session := s.currentRecorder().Status()

	s.mu.Lock()
	var pending *PendingInfo
	if s.pending != nil {
		pending = &PendingInfo{
			FileName:           s.pending.FileName,
			MimeType:           s.pending.MimeType,
			ByteSize:           len(s.pending.Data),
			Duration:           s.pending.Duration,
			RequiresConversion: audio.RequiresConversion(s.pending.MimeType),
		}
	}
	s.mu.Unlock()

	return Status{
		State:     state,
		Session:   session,
		Pending:   pending,
		Engine:    s.GetEngineStatus(),
		LastError: s.GetLastError(),
	}
}

// Prepare converts data into a voice note when it is not one already and packages
// it. Data declared as a voice-compatible type is checked to be mono Ogg/Opus and
// converted when it is not. A failed conversion is returned as is; the source
// bytes are never packaged instead.
func (s *VoiceNoteService) Prepare(ctx context.Context, data []byte, mimeType, name string) (*packager.Payload, error) {
	payload, _, err := s.prepare(ctx, data, mimeType, name)
	return payload, err
}

// prepare also reports whether data went through the transcoder
func (s *VoiceNoteService) prepare(ctx context.Context, data []byte, mimeType, name string) (*packager.Payload, bool, error) {
	if len(data) == 0 {
		return nil, false, packager.ErrEmptyPayload
	}

	hint := mimeType
	convert := audio.RequiresConversion(mimeType)
	if !convert {
		if err := transcode.ValidateVoiceNote(data); err != nil {
			slog.Warn("Declared voice note is not mono Ogg/Opus, converting", "mime_type", mimeType, "name", name, "error", err)
			convert = true
			// the declared type is wrong, the name is the better guess
			hint = name
		}
	}
	if hint == "" {
		hint = name
	}

	if convert {
		slog.Debug("Recording requires conversion", "mime_type", mimeType, "name", name)
		res, err := s.converter.Transcode(ctx, data, hint)
		if err != nil {
			return nil, false, err
		}
		data, mimeType = res.Data, res.MimeType
	}

	payload, err := packager.Package(data, mimeType, name, true)
	return payload, convert, err
}

// ConvertFile converts a local file into a voice note. An empty outputPath writes
// next to the configured output directory.
func (s *VoiceNoteService) ConvertFile(ctx context.Context, inputPath, outputPath string) (string, error) {
	s.clearLastError()
	data, err := afero.ReadFile(s.fs, inputPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", inputPath, err)
	}

	format := audio.FormatForFile(inputPath)
	payload, err := s.Prepare(ctx, data, format.MimeType, filepath.Base(inputPath))
	if err != nil {
		s.setLastError(err)
		return "", err
	}

	if outputPath == "" {
		outputPath = filepath.Join(s.GetConfig().Output.Directory, payload.FileName)
	}
	if filepath.Clean(outputPath) == filepath.Clean(inputPath) {
		return "", fmt.Errorf("output would overwrite input %s", inputPath)
	}
	voice, err := decodePayload(payload)
	if err != nil {
		return "", err
	}
	if err := s.writeFile(outputPath, voice); err != nil {
		return "", err
	}

	slog.Info("Voice note written", "input", inputPath, "output", outputPath, "bytes", len(voice))
	return outputPath, nil
}

// SaveRecording writes a recording as captured into the output directory
func (s *VoiceNoteService) SaveRecording(rec *audio.Recording) (string, error) {
	if rec == nil || len(rec.Data) == 0 {
		return "", audio.ErrEmptyRecording
	}
	path := filepath.Join(s.GetConfig().Output.Directory, rec.FileName)
	if err := s.writeFile(path, rec.Data); err != nil {
		return "", err
	}
	slog.Info("Recording saved", "path", path, "bytes", len(rec.Data))
	return path, nil
}

// SendPending sends the recording kept by StopRecording. It stays pending when the
// send fails so that the caller can retry.
func (s *VoiceNoteService) SendPending(ctx context.Context, conversationID, caption string) (*SendResult, error) {
	s.mu.Lock()
	rec := s.pending
	s.mu.Unlock()
	if rec == nil {
		return nil, ErrNoPendingRecording
	}

	res, err := s.SendRecording(ctx, rec, conversationID, caption)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.pending == rec {
		s.pending = nil
	}
	s.mu.Unlock()
	return res, nil
}

// SendRecording converts when required, uploads and posts the voice note
func (s *VoiceNoteService) SendRecording(ctx context.Context, rec *audio.Recording, conversationID, caption string) (*SendResult, error) {
	if rec == nil {
		return nil, ErrNoPendingRecording
	}
	return s.send(ctx, rec.Data, rec.MimeType, rec.FileName, conversationID, caption)
}

// SendFile sends a local audio file as a voice note
func (s *VoiceNoteService) SendFile(ctx context.Context, path, conversationID, caption string) (*SendResult, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return s.send(ctx, data, audio.FormatForFile(path).MimeType, filepath.Base(path), conversationID, caption)
}

func (s *VoiceNoteService) send(ctx context.Context, data []byte, mimeType, name, conversationID, caption string) (*SendResult, error) {
	s.clearLastError()
	if strings.TrimSpace(conversationID) == "" {
		return nil, errors.New("conversation id is required")
	}

	payload, converted, err := s.prepare(ctx, data, mimeType, name)
	if err != nil {
		s.setLastError(err)
		return nil, err
	}

	uploaded, err := s.uploader.Upload(ctx, payload)
	if err != nil {
		s.setLastError(err)
		return nil, err
	}

	// voice notes are always sent as audio, whatever the backend guessed
	msg, err := s.uploader.SendMessage(ctx, upload.OutgoingMessage{
		ConversationID: conversationID,
		Caption:        caption,
		Media:          &upload.Media{URL: uploaded.MediaURL, Kind: packager.MediaAudio},
	})
	if err != nil {
		s.setLastError(err)
		return nil, err
	}

	return &SendResult{
		FileName:  payload.FileName,
		MimeType:  payload.MimeType,
		ByteSize:  payload.ByteSize,
		MediaURL:  uploaded.MediaURL,
		MediaKind: string(packager.MediaAudio),
		MessageID: msg.ID,
		Converted: converted,
	}, nil
}

// WarmUp loads the engine ahead of the first conversion
func (s *VoiceNoteService) WarmUp(ctx context.Context) (*EngineInfo, error) {
	if s.engine == nil {
		return nil, &engine.LoadError{Reason: engine.LoadInstantiationFailed, Err: errors.New("no engine configured")}
	}

	start := time.Now()
	eng, err := s.engine.Acquire(ctx)
	if err != nil {
		s.setLastError(err)
		return nil, err
	}

	info := &EngineInfo{LoadTime: time.Since(start)}
	if v, ok := eng.(interface{ Version() string }); ok {
		info.Version = v.Version()
	}
	return info, nil
}

func (s *VoiceNoteService) GetEngineStatus() EngineStatus {
	if s.engine == nil {
		return EngineStatus{}
	}
	return EngineStatus{Ready: s.engine.Ready(), Loading: s.engine.Loading()}
}

// Formats lists the catalog with the local probe results
func (s *VoiceNoteService) Formats() FormatsReport {
	report := FormatsReport{Selected: audio.SelectBestFormat(s.caps)}
	for _, f := range audio.Catalog {
		report.Formats = append(report.Formats, FormatSupport{
			FormatDescriptor:   f,
			Supported:          f.Supported(s.caps),
			RequiresConversion: audio.RequiresConversion(f.MimeType),
		})
	}
	return report
}

// LoadProfile loads a new configuration profile. Not allowed while recording.
func (s *VoiceNoteService) LoadProfile(profile string) error {
	if state, _ := s.currentRecorder().Status(); state == audio.StateRecording {
		return fmt.Errorf("%w: cannot switch profile while recording", audio.ErrInvalidState)
	}

	newCfg, err := config.LoadWithProfile(s.configFile, profile)
	if err != nil {
		return fmt.Errorf("failed to load profile '%s': %w", profile, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = newCfg
	if s.newRecorder != nil {
		s.recorder = s.newRecorder(newCfg)
	}
	slog.Info("Profile loaded", "profile", newCfg.Profile, "source", newCfg.Source.Device)
	return nil
}

// GetConfig returns the current configuration
func (s *VoiceNoteService) GetConfig() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *VoiceNoteService) currentRecorder() Recorder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorder
}

func (s *VoiceNoteService) writeFile(path string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// GetLastError returns the notice for the last failed operation (thread-safe)
func (s *VoiceNoteService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError records the user-facing notice for err (thread-safe)
func (s *VoiceNoteService) setLastError(err error) {
	notice := Notice(err)
	s.lastErrorMutex.Lock()
	s.lastError = notice
	s.lastErrorMutex.Unlock()

	slog.Error("Service error occurred", "error", err, "notice", notice)
}

// clearLastError clears the last error message (thread-safe)
func (s *VoiceNoteService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

// decodePayload returns the bytes carried by a payload
func decodePayload(p *packager.Payload) ([]byte, error) {
	data, err := p.Decode()
	if err != nil {
		return nil, fmt.Errorf("corrupt payload for %s: %w", p.FileName, err)
	}
	return data, nil
}
