package audiocore

import "encoding/binary"

const pcm16Scale = 1.0 / 32768.0

// PCM16ToFloat32 decodes little-endian S16 samples into dst, scaled to
// [-1, 1). dst is grown if needed; a trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte, dst []float32) []float32 {
	n := len(pcm) / 2
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]

	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		dst[i] = float32(sample) * pcm16Scale
	}

	return dst
}
