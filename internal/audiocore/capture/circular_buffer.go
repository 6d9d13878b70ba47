// Package capture holds the ring buffer of recently captured audio.
package capture

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/smallnest/ringbuffer"

	"github.com/jupiter-voice/jupiter/internal/errors"
)

const bytesPerSample = 4 // float32

// FrameBuffer keeps the most recent samples of a capture stream. When full,
// the oldest samples are evicted to make room. It is safe for concurrent use.
type FrameBuffer struct {
	mu       sync.Mutex
	rb       *ringbuffer.RingBuffer
	encode   []byte
	scratch  []byte
	capacity int // in samples
}

// NewFrameBuffer creates a buffer holding frames*frameSize samples.
func NewFrameBuffer(frames, frameSize int) (*FrameBuffer, error) {
	if frames <= 0 || frameSize <= 0 {
		return nil, errors.Newf("invalid frame buffer size: %d frames of %d samples", frames, frameSize).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Build()
	}

	capacity := frames * frameSize
	return &FrameBuffer{
		rb:       ringbuffer.New(capacity * bytesPerSample),
		capacity: capacity,
	}, nil
}

// Write appends samples, evicting the oldest ones if the buffer is full.
func (fb *FrameBuffer) Write(samples []float32) error {
	if len(samples) == 0 {
		return nil
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()

	// Only the newest capacity samples can ever be retained
	if len(samples) > fb.capacity {
		samples = samples[len(samples)-fb.capacity:]
	}

	need := len(samples) * bytesPerSample
	if cap(fb.encode) < need {
		fb.encode = make([]byte, need)
	}
	buf := fb.encode[:need]
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*bytesPerSample:], math.Float32bits(s))
	}

	if free := fb.rb.Free(); free < need {
		if err := fb.discardLocked(need - free); err != nil {
			return err
		}
	}

	if _, err := fb.rb.Write(buf); err != nil {
		return errors.New(err).
			Component("audiocore").
			Category(errors.CategoryResource).
			Context("operation", "frame_buffer_write").
			Context("bytes", need).
			Build()
	}

	return nil
}

// discardLocked drops the n oldest bytes.
func (fb *FrameBuffer) discardLocked(n int) error {
	if cap(fb.scratch) < n {
		fb.scratch = make([]byte, n)
	}
	if _, err := fb.rb.Read(fb.scratch[:n]); err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return errors.New(err).
			Component("audiocore").
			Category(errors.CategoryResource).
			Context("operation", "frame_buffer_evict").
			Build()
	}
	return nil
}

// Snapshot returns a copy of all buffered samples, oldest first. The
// buffer contents are unchanged. An empty buffer yields an empty slice.
func (fb *FrameBuffer) Snapshot() []float32 {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	n := fb.rb.Length()
	if n == 0 {
		return []float32{}
	}

	raw := make([]byte, n)
	read, err := fb.rb.Read(raw)
	raw = raw[:read]
	fb.rb.Reset()
	if len(raw) > 0 {
		// Rewriting what was just read always fits
		_, _ = fb.rb.Write(raw)
	}
	if err != nil && read == 0 {
		return []float32{}
	}

	out := make([]float32, len(raw)/bytesPerSample)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*bytesPerSample:]))
	}
	return out
}

// Len returns the number of buffered samples.
func (fb *FrameBuffer) Len() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.rb.Length() / bytesPerSample
}

// Capacity returns the maximum number of samples retained.
func (fb *FrameBuffer) Capacity() int {
	return fb.capacity
}

// Reset empties the buffer.
func (fb *FrameBuffer) Reset() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.rb.Reset()
}
