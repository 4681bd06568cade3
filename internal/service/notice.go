package service

import (
	"errors"
	"fmt"
	"os"

	"github.com/audiolibrelab/voicenote/internal/audio"
	"github.com/audiolibrelab/voicenote/internal/engine"
	"github.com/audiolibrelab/voicenote/internal/packager"
	"github.com/audiolibrelab/voicenote/internal/transcode"
	"github.com/audiolibrelab/voicenote/internal/upload"
)

// Notice maps an error to the message shown to the user. Every conversion failure
// reason has its own message.
func Notice(err error) string {
	if err == nil {
		return ""
	}

	var terr *transcode.Error
	if errors.As(err, &terr) {
		switch terr.Reason {
		case transcode.ReasonEngineUnavailable:
			return "Could not load the audio converter. Please try sending again."
		case transcode.ReasonTimeout:
			return "Converting the recording took too long. Try a shorter recording."
		case transcode.ReasonEmptyOutput:
			return "The conversion produced no audio. Please record the message again."
		case transcode.ReasonInvalidOutput:
			return "The converter produced an invalid voice note. Please record the message again."
		default:
			return "The recording could not be converted to a voice note."
		}
	}

	var loadErr *engine.LoadError
	if errors.As(err, &loadErr) {
		if loadErr.Reason == engine.LoadTimeout {
			return "Loading the audio converter took too long. Please try again."
		}
		return "Could not load the audio converter. Please try again."
	}

	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return "Microphone access was denied. Allow access to the capture device and try again."
	case errors.Is(err, audio.ErrNoDevice):
		return "No microphone was found. Connect a capture device and try again."
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return "The microphone is not available."
	case errors.Is(err, audio.ErrInvalidState):
		return "That is not possible right now: " + err.Error()
	case errors.Is(err, audio.ErrEmptyRecording):
		return "Nothing was recorded. Please try again."
	case errors.Is(err, packager.ErrPayloadTooLarge):
		return fmt.Sprintf("The voice note is larger than the %d MB upload limit.", packager.MaxPayloadSize>>20)
	case errors.Is(err, packager.ErrEmptyPayload):
		return "There is nothing to send."
	case errors.Is(err, packager.ErrNotVoiceFormat):
		return "The file is not a voice note."
	case errors.Is(err, ErrNoPendingRecording):
		return "Record a message before sending."
	case errors.Is(err, upload.ErrTransport):
		return "Could not reach the chat server. Please try again."
	case errors.Is(err, os.ErrNotExist):
		return "The file does not exist."
	}
	return fmt.Sprintf("Something went wrong: %v", err)
}
