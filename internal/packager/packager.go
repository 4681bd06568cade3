// Package packager assembles upload payloads from final audio bytes.
package packager

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/voicenote/internal/audio"
)

// MaxPayloadSize is the largest file the upload endpoint accepts
const MaxPayloadSize = 50 << 20

// MediaKind is the message media type the transport accepts
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaAudio    MediaKind = "audio"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// Valid reports whether k is one of the enumerated media kinds
func (k MediaKind) Valid() bool {
	switch k {
	case MediaImage, MediaAudio, MediaVideo, MediaDocument:
		return true
	}
	return false
}

var (
	ErrEmptyPayload    = errors.New("payload is empty")
	ErrPayloadTooLarge = errors.New("payload exceeds upload limit")
	ErrNotVoiceFormat  = errors.New("voice payload is not Ogg/Opus")
)

// Payload is what the upload collaborator transmits
type Payload struct {
	FileName          string    `json:"fileName"`
	MimeType          string    `json:"fileType"`
	ByteSize          int       `json:"fileSize"`
	Base64Content     string    `json:"fileData"`
	ResolvedMediaKind MediaKind `json:"-"`
}

var extensionKinds = map[string]MediaKind{
	"jpg": MediaImage, "jpeg": MediaImage, "png": MediaImage, "gif": MediaImage, "webp": MediaImage,
	"mp3": MediaAudio, "ogg": MediaAudio, "wav": MediaAudio, "m4a": MediaAudio, "opus": MediaAudio,
	"mp4": MediaVideo, "webm": MediaVideo, "mov": MediaVideo, "avi": MediaVideo,
}

// ClassifyMediaKind resolves the media kind from the mime type, falling back to the
// file extension only when the mime type says nothing. An audio/* mime always wins,
// so a voice note recorded as .webm is still audio.
func ClassifyMediaKind(mimeType, fileName string) MediaKind {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mt, "audio/"):
		return MediaAudio
	case strings.HasPrefix(mt, "image/"):
		return MediaImage
	case strings.HasPrefix(mt, "video/"):
		return MediaVideo
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	if kind, ok := extensionKinds[ext]; ok {
		return kind
	}
	return MediaDocument
}

// Package builds the upload payload. voice requires an Ogg/Opus mime type and gives
// the file an .ogg extension.
func Package(data []byte, mimeType, name string, voice bool) (*Payload, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(data) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(data), MaxPayloadSize)
	}
	if voice {
		if !audio.IsVoiceCompatible(mimeType) {
			return nil, fmt.Errorf("%w: %q", ErrNotVoiceFormat, mimeType)
		}
		name = voiceFileName(name)
	}
	if name == "" {
		name = "attachment"
	}

	return &Payload{
		FileName:          name,
		MimeType:          mimeType,
		ByteSize:          len(data),
		Base64Content:     base64.StdEncoding.EncodeToString(data),
		ResolvedMediaKind: ClassifyMediaKind(mimeType, name),
	}, nil
}

func voiceFileName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." || base == "/" {
		base = "voice-note"
	}
	return base + "." + audio.TargetExtension
}

// Decode returns the raw bytes carried by the payload
func (p *Payload) Decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(p.Base64Content)
}
