package packager

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyMediaKind(t *testing.T) {
	tests := []struct {
		mime     string
		name     string
		expected MediaKind
	}{
		{"audio/ogg; codecs=opus", "audio-1.ogg", MediaAudio},
		// a filename heuristic must never override an audio mime
		{"audio/webm; codecs=opus", "audio-1.webm", MediaAudio},
		{"audio/mp4", "clip.mp4", MediaAudio},
		{"image/png", "shot", MediaImage},
		{"video/mp4", "clip.bin", MediaVideo},
		{"", "photo.JPG", MediaImage},
		{"application/octet-stream", "memo.opus", MediaAudio},
		{"", "screen.webm", MediaVideo},
		{"application/pdf", "report.pdf", MediaDocument},
		{"", "", MediaDocument},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ClassifyMediaKind(tt.mime, tt.name), "%s %s", tt.mime, tt.name)
	}
}

func TestPackage_VoiceNote(t *testing.T) {
	data := []byte("OggS-voice")

	p, err := Package(data, "audio/ogg; codecs=opus", "audio-0192.webm", true)
	require.NoError(t, err)

	assert.Equal(t, "audio-0192.ogg", p.FileName)
	assert.Equal(t, "audio/ogg; codecs=opus", p.MimeType)
	assert.Equal(t, len(data), p.ByteSize)
	assert.Equal(t, MediaAudio, p.ResolvedMediaKind)

	decoded, err := base64.StdEncoding.DecodeString(p.Base64Content)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestPackage_VoiceNoteWithoutName(t *testing.T) {
	p, err := Package([]byte("x"), "audio/ogg; codecs=opus", "", true)
	require.NoError(t, err)
	assert.Equal(t, "voice-note.ogg", p.FileName)
}

func TestPackage_RejectsNonVoiceFormat(t *testing.T) {
	_, err := Package([]byte("webm"), "audio/webm; codecs=opus", "a.webm", true)
	assert.ErrorIs(t, err, ErrNotVoiceFormat)
}

func TestPackage_Attachment(t *testing.T) {
	p, err := Package([]byte("%PDF"), "application/pdf", "report.pdf", false)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", p.FileName)
	assert.Equal(t, MediaDocument, p.ResolvedMediaKind)
}

func TestPackage_Empty(t *testing.T) {
	_, err := Package(nil, "audio/ogg; codecs=opus", "a.ogg", true)
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestPackage_TooLarge(t *testing.T) {
	_, err := Package(make([]byte, MaxPayloadSize+1), "audio/ogg; codecs=opus", "a.ogg", true)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestMediaKind_Valid(t *testing.T) {
	for _, k := range []MediaKind{MediaImage, MediaAudio, MediaVideo, MediaDocument} {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, MediaKind("sticker").Valid())
	assert.False(t, MediaKind("").Valid())
}
