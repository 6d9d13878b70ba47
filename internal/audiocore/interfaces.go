// Package audiocore captures fixed-size mono PCM frames from a microphone
// and hands them to the wake-word pipeline.
//
// Architecture overview:
//
//	Backend (malgo) -> Stream callback -> int16 to float32 -> peak normalize
//	  -> FrameBuffer (ring, oldest evicted) -> FrameHandler
//
// The Backend interface isolates the platform audio API so Capture can be
// exercised in tests without a sound card.
package audiocore

// Frame is one callback's worth of mono samples normalized to [-1, 1].
type Frame []float32

// FrameHandler receives each processed frame on the backend's callback
// thread. Implementations must not block.
type FrameHandler func(Frame)

// AudioFormat describes the stream opened on the device.
type AudioFormat struct {
	SampleRate int // Hz
	Channels   int
	FrameSize  int // samples delivered per callback
}

// DeviceInfo describes an input-capable device.
type DeviceInfo struct {
	Index             int
	Name              string
	Channels          int
	DefaultSampleRate int
	IsDefault         bool
}

// StreamConfig is passed to Backend.Open.
type StreamConfig struct {
	DeviceIndex int // index into Backend.Devices()
	Format      AudioFormat
}

// Backend abstracts the platform audio API.
type Backend interface {
	// Devices lists capture devices in a stable order.
	Devices() ([]DeviceInfo, error)

	// DefaultDevice returns the index of the system default capture device.
	DefaultDevice() (int, error)

	// Open prepares a capture stream. onData receives little-endian S16
	// samples and is invoked on the backend's own thread.
	Open(cfg StreamConfig, onData func(pcm []byte)) (Stream, error)
}

// Stream is an opened capture stream.
type Stream interface {
	Start() error
	Stop() error
	// Close releases all native resources. It is safe after Stop or on its own.
	Close() error
}
