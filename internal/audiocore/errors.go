package audiocore

import (
	"github.com/jupiter-voice/jupiter/internal/errors"
)

// ComponentAudioCore identifies audiocore errors
const ComponentAudioCore = "audiocore"

var (
	// ErrNoDevices is returned when the backend reports no capture devices
	ErrNoDevices = errors.Newf("no audio capture devices found").
			Component(ComponentAudioCore).
			Category(errors.CategoryNotFound).
			Context("resource", "audio_device").
			Build()

	// ErrDeviceIndex is returned when a configured device index does not exist
	ErrDeviceIndex = errors.Newf("audio device index out of range").
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Context("resource", "audio_device").
			Build()
)
