package features

import (
	"math"
	"math/bits"
)

const (
	powerFloor = 1e-10
	topDB      = 80.0
)

// melFilter is one triangular band stored sparsely from bin start.
type melFilter struct {
	start   int
	weights []float64
}

// mfccTransform holds the precomputed tables for one Config. It keeps
// scratch buffers and is not safe for concurrent use.
type mfccTransform struct {
	nfft    int
	hop     int
	nmfcc   int
	window  []float64
	filters []melFilter
	dct     [][]float64 // [nmfcc][nmels]

	re, im []float64
	power  []float64
	logMel []float64
}

func newMFCCTransform(cfg Config) *mfccTransform {
	return &mfccTransform{
		nfft:    cfg.NFFT,
		hop:     cfg.HopLength,
		nmfcc:   cfg.NMFCC,
		window:  hannWindow(cfg.NFFT),
		filters: melFilterBank(cfg.NMels, cfg.NFFT, cfg.SampleRate),
		dct:     dctMatrix(cfg.NMFCC, cfg.NMels),
		re:      make([]float64, cfg.NFFT),
		im:      make([]float64, cfg.NFFT),
		power:   make([]float64, cfg.NFFT/2+1),
		logMel:  make([]float64, cfg.NMels),
	}
}

// frameCount is the number of centered analysis windows for n samples.
func (m *mfccTransform) frameCount(n int) int {
	return 1 + n/m.hop
}

// compute returns the cepstrum as [nmfcc][frames]. Windows are centered on
// multiples of hop, with the signal reflect-padded by nfft/2 at both ends.
func (m *mfccTransform) compute(samples []float32) [][]float64 {
	padded := reflectPad(samples, m.nfft/2)
	frames := m.frameCount(len(samples))

	// log-mel spectrogram, [frames][nmels]
	spec := make([][]float64, frames)
	maxDB := math.Inf(-1)
	for t := range frames {
		start := t * m.hop
		for i := range m.nfft {
			m.re[i] = float64(padded[start+i]) * m.window[i]
			m.im[i] = 0
		}
		fft(m.re, m.im)
		for k := range m.power {
			m.power[k] = m.re[k]*m.re[k] + m.im[k]*m.im[k]
		}

		row := make([]float64, len(m.filters))
		for b, f := range m.filters {
			var sum float64
			for i, w := range f.weights {
				sum += w * m.power[f.start+i]
			}
			db := 10 * math.Log10(max(sum, powerFloor))
			row[b] = db
			maxDB = max(maxDB, db)
		}
		spec[t] = row
	}

	floor := maxDB - topDB
	out := make([][]float64, m.nmfcc)
	for k := range out {
		out[k] = make([]float64, frames)
	}
	for t, row := range spec {
		for b, v := range row {
			m.logMel[b] = max(v, floor)
		}
		for k, basis := range m.dct {
			var sum float64
			for b, c := range basis {
				sum += c * m.logMel[b]
			}
			out[k][t] = sum
		}
	}

	return out
}

// reflectPad mirrors pad samples at each end without repeating the edge
// sample. Signals shorter than pad+1 are padded by repeated reflection.
func reflectPad(x []float32, pad int) []float32 {
	n := len(x)
	out := make([]float32, n+2*pad)
	copy(out[pad:], x)
	if n < 2 {
		return out
	}

	period := 2 * (n - 1)
	reflect := func(i int) int {
		i %= period
		if i < 0 {
			i += period
		}
		if i >= n {
			i = period - i
		}
		return i
	}
	for i := range pad {
		out[pad-1-i] = x[reflect(-(i + 1))]
		out[pad+n+i] = x[reflect(n+i)]
	}
	return out
}

// hannWindow returns the periodic Hann window used for spectral analysis.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// fft is an in-place iterative radix-2 transform. len(re) must be a power of two.
func fft(re, im []float64) {
	n := len(re)
	if n <= 1 {
		return
	}
	shift := 64 - bits.TrailingZeros(uint(n))

	for i := range n {
		j := int(bits.Reverse64(uint64(i)) >> shift)
		if j > i {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		theta := -2 * math.Pi / float64(size)
		wr, wi := math.Cos(theta), math.Sin(theta)
		for start := 0; start < n; start += size {
			cr, ci := 1.0, 0.0
			for k := range half {
				a, b := start+k, start+k+half
				tr := cr*re[b] - ci*im[b]
				ti := cr*im[b] + ci*re[b]
				re[b], im[b] = re[a]-tr, im[a]-ti
				re[a] += tr
				im[a] += ti
				cr, ci = cr*wr-ci*wi, cr*wi+ci*wr
			}
		}
	}
}

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	melFSP     = 200.0 / 3
	melMinLog  = 1000.0
	melLogStep = 0.06875177742094912 // ln(6.4) / 27
)

func hzToMel(f float64) float64 {
	if f < melMinLog {
		return f / melFSP
	}
	return melMinLog/melFSP + math.Log(f/melMinLog)/melLogStep
}

func melToHz(m float64) float64 {
	minLogMel := melMinLog / melFSP
	if m < minLogMel {
		return m * melFSP
	}
	return melMinLog * math.Exp(melLogStep*(m-minLogMel))
}

// melFilterBank builds nmels area-normalized triangular filters spanning
// 0 Hz to Nyquist over the nfft/2+1 power bins.
func melFilterBank(nmels, nfft, sampleRate int) []melFilter {
	bins := nfft/2 + 1
	binHz := float64(sampleRate) / float64(nfft)

	maxMel := hzToMel(float64(sampleRate) / 2)
	edges := make([]float64, nmels+2)
	for i := range edges {
		edges[i] = melToHz(maxMel * float64(i) / float64(nmels+1))
	}

	filters := make([]melFilter, nmels)
	for m := range filters {
		lo, mid, hi := edges[m], edges[m+1], edges[m+2]
		norm := 2 / (hi - lo)

		f := melFilter{start: -1}
		for k := range bins {
			hz := float64(k) * binHz
			var w float64
			switch {
			case hz > lo && hz <= mid:
				w = (hz - lo) / (mid - lo)
			case hz > mid && hz < hi:
				w = (hi - hz) / (hi - mid)
			}
			if w <= 0 {
				if f.start >= 0 {
					break
				}
				continue
			}
			if f.start < 0 {
				f.start = k
			}
			f.weights = append(f.weights, w*norm)
		}
		if f.start < 0 {
			f.start = 0
		}
		filters[m] = f
	}
	return filters
}

// dctMatrix returns the first n rows of the orthonormal DCT-II basis of size m.
func dctMatrix(n, m int) [][]float64 {
	out := make([][]float64, n)
	scale0 := math.Sqrt(1 / float64(m))
	scale := math.Sqrt(2 / float64(m))
	for k := range out {
		row := make([]float64, m)
		s := scale
		if k == 0 {
			s = scale0
		}
		for i := range row {
			row[i] = s * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(m)))
		}
		out[k] = row
	}
	return out
}
