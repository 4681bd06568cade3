package transcode

import (
	"bytes"
	"fmt"

	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// VoiceNoteHeader is the identification header of an Ogg/Opus stream
type VoiceNoteHeader struct {
	Channels   uint8
	SampleRate uint32
	PreSkip    uint16
}

// ReadVoiceNoteHeader parses the OpusHead page at the start of an Ogg stream
func ReadVoiceNoteHeader(data []byte) (*VoiceNoteHeader, error) {
	_, header, err := oggreader.NewWith(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("not an Ogg/Opus stream: %w", err)
	}
	return &VoiceNoteHeader{
		Channels:   header.Channels,
		SampleRate: header.SampleRate,
		PreSkip:    header.PreSkip,
	}, nil
}

// ValidateVoiceNote checks that data is a mono Ogg/Opus stream
func ValidateVoiceNote(data []byte) error {
	header, err := ReadVoiceNoteHeader(data)
	if err != nil {
		return err
	}
	if int(header.Channels) != VoiceProfile.Channels {
		return fmt.Errorf("expected %d channel, got %d", VoiceProfile.Channels, header.Channels)
	}
	return nil
}
