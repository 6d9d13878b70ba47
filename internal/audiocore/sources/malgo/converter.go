package malgo

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gen2brain/malgo"
)

// ConvertToS16 converts interleaved samples in sourceFormat to little-endian
// 16-bit PCM. outputBuffer is reused when large enough.
func ConvertToS16(samples []byte, sourceFormat malgo.FormatType, outputBuffer []byte) ([]byte, error) {
	if len(samples) == 0 {
		return []byte{}, nil
	}

	bytesPerSample, _ := GetFormatInfo(sourceFormat)
	if bytesPerSample == 0 {
		return nil, fmt.Errorf("unsupported source format: %v", sourceFormat)
	}

	if sourceFormat == malgo.FormatS16 {
		if len(outputBuffer) >= len(samples) {
			copy(outputBuffer, samples)
			return outputBuffer[:len(samples)], nil
		}
		return append([]byte(nil), samples...), nil
	}

	validSampleCount := len(samples) / bytesPerSample
	requiredSize := validSampleCount * 2

	var output []byte
	if len(outputBuffer) >= requiredSize {
		output = outputBuffer[:requiredSize]
	} else {
		output = make([]byte, requiredSize)
	}

	for i := range validSampleCount {
		src := samples[i*bytesPerSample:]
		var val int32

		switch sourceFormat {
		case malgo.FormatU8:
			val = (int32(src[0]) - 128) << 8
		case malgo.FormatS24:
			val = int32(src[0]) | int32(src[1])<<8 | int32(src[2])<<16
			if val&0x800000 != 0 {
				val |= -0x1000000 // sign extend
			}
			val >>= 8
		case malgo.FormatS32:
			val = int32(binary.LittleEndian.Uint32(src)) >> 16
		case malgo.FormatF32:
			f := math.Float32frombits(binary.LittleEndian.Uint32(src)) * 32767.0
			val = int32(max(min(f, 32767.0), -32768.0))
		}

		val = max(min(val, math.MaxInt16), math.MinInt16)
		binary.LittleEndian.PutUint16(output[i*2:], uint16(int16(val)))
	}

	return output, nil
}

// GetFormatInfo returns the sample width and a short name for a malgo format.
func GetFormatInfo(format malgo.FormatType) (bytesPerSample int, name string) {
	switch format {
	case malgo.FormatU8:
		return 1, "U8"
	case malgo.FormatS16:
		return 2, "S16"
	case malgo.FormatS24:
		return 3, "S24"
	case malgo.FormatS32:
		return 4, "S32"
	case malgo.FormatF32:
		return 4, "F32"
	default:
		return 0, "Unknown"
	}
}

// frameChunker regroups variably sized device periods into fixed-size frames.
// It is used only from the device callback thread.
type frameChunker struct {
	frameBytes int
	pending    []byte
}

func newFrameChunker(frameSamples int) *frameChunker {
	frameBytes := frameSamples * 2
	return &frameChunker{
		frameBytes: frameBytes,
		pending:    make([]byte, 0, frameBytes*2),
	}
}

// push appends pcm and calls emit once per complete frame. Each emitted
// slice is a fresh copy.
func (fc *frameChunker) push(pcm []byte, emit func([]byte)) {
	fc.pending = append(fc.pending, pcm...)
	for len(fc.pending) >= fc.frameBytes {
		frame := make([]byte, fc.frameBytes)
		copy(frame, fc.pending[:fc.frameBytes])
		fc.pending = append(fc.pending[:0], fc.pending[fc.frameBytes:]...)
		emit(frame)
	}
}
