package audio

import (
	"mime"
	"path/filepath"
	"strings"
)

// FormatKind identifies a recording container/codec pair
type FormatKind int

const (
	FormatUnknown FormatKind = iota
	FormatOggOpus
	FormatWebMOpus
	FormatMP4AAC
	FormatWAV
)

func (k FormatKind) String() string {
	switch k {
	case FormatOggOpus:
		return "ogg-opus"
	case FormatWebMOpus:
		return "webm-opus"
	case FormatMP4AAC:
		return "mp4-aac"
	case FormatWAV:
		return "wav"
	default:
		return "unknown"
	}
}

// TargetMimeType is the only format the messaging transport accepts for voice notes
const (
	TargetMimeType  = "audio/ogg; codecs=opus"
	TargetExtension = "ogg"
)

// FormatDescriptor describes a format the capture device may record into
type FormatDescriptor struct {
	Kind          FormatKind `json:"kind"`
	MimeType      string     `json:"mime_type"`
	FileExtension string     `json:"file_extension"`
	DisplayName   string     `json:"display_name"`

	// Muxer and Encoder are the ffmpeg component names needed to produce the format.
	Muxer   string `json:"muxer"`
	Encoder string `json:"encoder,omitempty"`
}

// Supported reports whether the runtime can produce the format natively
func (f FormatDescriptor) Supported(caps Capabilities) bool {
	if f.Kind == FormatUnknown {
		return false
	}
	if !caps.HasMuxer(f.Muxer) {
		return false
	}
	return f.Encoder == "" || caps.HasEncoder(f.Encoder)
}

// Catalog is ordered by transport preference; the first supported entry wins.
var Catalog = []FormatDescriptor{
	{Kind: FormatOggOpus, MimeType: TargetMimeType, FileExtension: "ogg", DisplayName: "Ogg Opus", Muxer: "ogg", Encoder: "libopus"},
	{Kind: FormatWebMOpus, MimeType: "audio/webm; codecs=opus", FileExtension: "webm", DisplayName: "WebM Opus", Muxer: "webm", Encoder: "libopus"},
	{Kind: FormatMP4AAC, MimeType: "audio/mp4", FileExtension: "m4a", DisplayName: "MPEG-4 AAC", Muxer: "ipod", Encoder: "aac"},
	{Kind: FormatWAV, MimeType: "audio/wav", FileExtension: "wav", DisplayName: "WAV PCM", Muxer: "wav", Encoder: "pcm_s16le"},
}

// FallbackFormat is used when no catalog entry is supported. The mime type is left
// unspecified, so recordings in this format always require conversion.
var FallbackFormat = FormatDescriptor{
	Kind:          FormatUnknown,
	MimeType:      "",
	FileExtension: "mka",
	DisplayName:   "Unspecified (Matroska)",
	Muxer:         "matroska",
}

// SelectBestFormat returns the first catalog entry supported by caps, or FallbackFormat.
func SelectBestFormat(caps Capabilities) FormatDescriptor {
	for _, f := range Catalog {
		if f.Supported(caps) {
			return f
		}
	}
	return FallbackFormat
}

// IsVoiceCompatible reports whether mimeType can be sent as a voice note without conversion.
func IsVoiceCompatible(mimeType string) bool {
	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	return mediaType == "audio/ogg" && strings.EqualFold(params["codecs"], "opus")
}

// RequiresConversion reports whether a recording with mimeType must be transcoded first.
func RequiresConversion(mimeType string) bool {
	return !IsVoiceCompatible(mimeType)
}

// FormatForMime finds the catalog entry for a mime type, ignoring parameters when no exact match exists.
func FormatForMime(mimeType string) (FormatDescriptor, bool) {
	for _, f := range Catalog {
		if strings.EqualFold(f.MimeType, mimeType) {
			return f, true
		}
	}
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return FormatDescriptor{}, false
	}
	for _, f := range Catalog {
		if b, _, _ := mime.ParseMediaType(f.MimeType); b == base {
			return f, true
		}
	}
	return FormatDescriptor{}, false
}

// FormatForFile guesses the format of a file from its extension. An .ogg file is
// assumed to carry Opus; callers must check the bytes before trusting that.
func FormatForFile(name string) FormatDescriptor {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	switch ext {
	case "ogg", "opus", "oga":
		return Catalog[0]
	case "":
		return FallbackFormat
	}
	for _, f := range Catalog {
		if f.FileExtension == ext {
			return f
		}
	}
	return FormatDescriptor{
		Kind:          FormatUnknown,
		MimeType:      mime.TypeByExtension("." + ext),
		FileExtension: ext,
		DisplayName:   strings.ToUpper(ext),
	}
}
