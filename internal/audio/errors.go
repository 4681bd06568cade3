package audio

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrPermissionDenied  = fmt.Errorf("%w: permission denied", ErrDeviceUnavailable)
	ErrNoDevice          = fmt.Errorf("%w: no capture device", ErrDeviceUnavailable)

	ErrInvalidState   = errors.New("invalid recorder state")
	ErrEmptyRecording = errors.New("recording captured no audio")
)
