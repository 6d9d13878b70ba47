package malgo

import (
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/jupiter-voice/jupiter/internal/audiocore"
	"github.com/jupiter-voice/jupiter/internal/errors"
)

// getBackendForPlatform returns the appropriate malgo backend for the current platform
func getBackendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("unsupported operating system %s", runtime.GOOS).
			Component("audiocore.malgo").
			Category(errors.CategoryAudioSource).
			Context("os", runtime.GOOS).
			Build()
	}
}

// isNullDevice reports miniaudio's placeholder sink, which never produces audio
func isNullDevice(info *malgo.DeviceInfo) bool {
	return strings.Contains(info.Name(), "Discard all samples")
}

// toDeviceInfo maps a malgo device to audiocore's description. The index is
// the position in the backend's enumeration and is what Open expects.
func toDeviceInfo(index int, info *malgo.DeviceInfo) audiocore.DeviceInfo {
	var channels, rate int
	for _, f := range info.Formats {
		channels = max(channels, int(f.Channels))
		if rate == 0 && f.SampleRate > 0 {
			rate = int(f.SampleRate)
		}
	}
	if channels == 0 {
		channels = 1
	}

	return audiocore.DeviceInfo{
		Index:             index,
		Name:              info.Name(),
		Channels:          channels,
		DefaultSampleRate: rate,
		IsDefault:         info.IsDefault == 1,
	}
}

// describeDevices converts an enumeration, dropping the null device.
func describeDevices(infos []malgo.DeviceInfo) []audiocore.DeviceInfo {
	devices := make([]audiocore.DeviceInfo, 0, len(infos))
	for i := range infos {
		if isNullDevice(&infos[i]) {
			continue
		}
		devices = append(devices, toDeviceInfo(i, &infos[i]))
	}
	return devices
}

// defaultIndex returns the index flagged as default by the backend.
func defaultIndex(infos []malgo.DeviceInfo) (int, error) {
	for i := range infos {
		if infos[i].IsDefault == 1 && !isNullDevice(&infos[i]) {
			return i, nil
		}
	}
	return 0, errors.Newf("backend reports no default capture device").
		Component("audiocore.malgo").
		Category(errors.CategoryNotFound).
		Context("available_devices", len(infos)).
		Build()
}
