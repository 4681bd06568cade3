package audio

import (
	"strings"

	"github.com/audiolibrelab/voicenote/internal/config"
)

// BackendType represents the sound server the capture device reads from
type BackendType string

const (
	BackendTypePulse    BackendType = "pulse"
	BackendTypePipeWire BackendType = "pipewire"
	BackendTypeALSA     BackendType = "alsa"
	BackendTypeAuto     BackendType = "auto"
)

// determineBackend determines which backend to use based on configuration
func determineBackend(cfg *config.Config) BackendType {
	if cfg == nil {
		return BackendTypePulse
	}
	switch strings.ToLower(cfg.Audio.Backend) {
	case "pipewire":
		return BackendTypePipeWire
	case "alsa":
		return BackendTypeALSA
	default:
		// PipeWire installs serve the pulse protocol too, so pulse is the safest default.
		return BackendTypePulse
	}
}

// inputFormat returns the ffmpeg input device format for the backend
func (b BackendType) inputFormat() string {
	if b == BackendTypeALSA {
		return "alsa"
	}
	return "pulse"
}

// env returns extra environment for the capture process
func (b BackendType) env() []string {
	if b == BackendTypePipeWire {
		return []string{"PIPEWIRE_LATENCY=256/48000"}
	}
	return nil
}

// NewSourceLister returns the source lister matching the configured backend
func NewSourceLister(cfg *config.Config) SourceLister {
	if determineBackend(cfg) == BackendTypeALSA {
		return &ALSASources{}
	}
	return &PulseSources{}
}

// GetAvailableBackends returns the backends this build can capture from
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypePulse, BackendTypePipeWire, BackendTypeALSA}
}
