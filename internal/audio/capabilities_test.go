package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const muxersListing = `File formats:
 D. = Demuxing supported
 .E = Muxing supported
 --
  E ipod            iPod H.264 MP4 (MPEG-4 Part 14)
  E matroska        Matroska
  E ogg             Ogg
  E webm            WebM
  E wav             WAV / WAVE (Waveform Audio)
`

const encodersListing = `Encoders:
 V..... = Video
 A..... = Audio
 ------
 A....D aac                  AAC (Advanced Audio Coding)
 A....D libopus              libopus Opus (codec opus)
 A....D pcm_s16le            PCM signed 16-bit little-endian
`

func TestParseListing(t *testing.T) {
	assert.Equal(t, []string{"ipod", "matroska", "ogg", "webm", "wav"}, parseListing(muxersListing))
	assert.Equal(t, []string{"aac", "libopus", "pcm_s16le"}, parseListing(encodersListing))
}

func TestParseListing_CommaSeparatedNames(t *testing.T) {
	out := " --\n  E mov,mp4,m4a     QuickTime / MOV\n"
	assert.Equal(t, []string{"mov", "mp4", "m4a"}, parseListing(out))
}

func TestParseListing_NoSeparator(t *testing.T) {
	assert.Empty(t, parseListing("ffmpeg: command not found\n"))
}

func TestCapabilities(t *testing.T) {
	caps := NewCapabilities(parseListing(muxersListing), parseListing(encodersListing))

	assert.True(t, caps.HasMuxer("ogg"))
	assert.False(t, caps.HasMuxer("mp3"))
	assert.True(t, caps.HasEncoder("libopus"))
	assert.Equal(t, []string{"aac", "libopus", "pcm_s16le"}, caps.Encoders())
	assert.Equal(t, FormatOggOpus, SelectBestFormat(caps).Kind)
}
