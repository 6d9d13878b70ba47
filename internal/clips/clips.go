// Package clips writes the audio around a detection to WAV files.
package clips

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"github.com/jupiter-voice/jupiter/internal/errors"
	"github.com/jupiter-voice/jupiter/internal/logger"
)

const (
	componentClips = "clips"
	bitDepth       = 16
	numChannels    = 1
	pcmFormat      = 1 // WAVE_FORMAT_PCM
	queueSize      = 4

	clipPrefix = "wake-"
	clipExt    = ".wav"
)

type job struct {
	path    string
	samples []float32
}

// Writer saves clips under a directory. Enqueue hands work to the goroutine
// started by Run so the detection callback never touches the disk.
type Writer struct {
	dir        string
	sampleRate int
	maxAge     time.Duration
	now        func() time.Time
	queue      chan job
	log        logger.Logger
}

// NewWriter creates a writer for dir, creating it if needed. Clips older
// than maxAge are pruned after each write; zero disables pruning.
func NewWriter(dir string, sampleRate int, maxAge time.Duration) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(err).
			Component(componentClips).
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}
	return &Writer{
		dir:        dir,
		sampleRate: sampleRate,
		maxAge:     maxAge,
		now:        time.Now,
		queue:      make(chan job, queueSize),
		log:        logger.Global().Module(componentClips),
	}, nil
}

// ClipName returns the file name used for event id.
func ClipName(id uuid.UUID) string {
	return clipPrefix + id.String() + clipExt
}

// Enqueue schedules samples to be written as the clip for id and returns its
// file name. It returns "" when the queue is full or there is nothing to write.
func (w *Writer) Enqueue(id uuid.UUID, samples []float32) string {
	if len(samples) == 0 {
		return ""
	}
	name := ClipName(id)
	select {
	case w.queue <- job{path: filepath.Join(w.dir, name), samples: samples}:
		return name
	default:
		w.log.Warn("clip queue full, skipping clip", logger.String("clip", name))
		return ""
	}
}

// Run writes queued clips until ctx is done. Clips still queued at that
// point are written before it returns.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case j := <-w.queue:
			w.write(j)
		case <-ctx.Done():
			for {
				select {
				case j := <-w.queue:
					w.write(j)
				default:
					return nil
				}
			}
		}
	}
}

func (w *Writer) write(j job) {
	if err := SaveWAV(j.path, j.samples, w.sampleRate); err != nil {
		w.log.Error("failed to write clip", logger.String("path", j.path), logger.Error(err))
		return
	}
	w.log.Info("saved wake clip",
		logger.String("path", j.path),
		logger.Int("samples", len(j.samples)))

	if w.maxAge > 0 {
		if n := w.Prune(); n > 0 {
			w.log.Debug("pruned old clips", logger.Int("count", n))
		}
	}
}

// Prune removes clips older than the retention age and returns how many were
// deleted. Files not named like clips are left alone.
func (w *Writer) Prune() int {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn("failed to list clip directory", logger.Error(err))
		return 0
	}

	cutoff := w.now().Add(-w.maxAge)
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, clipPrefix) || !strings.HasSuffix(name, clipExt) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(w.dir, name)); err != nil {
			w.log.Warn("failed to remove old clip", logger.String("clip", name), logger.Error(err))
			continue
		}
		removed++
	}
	return removed
}

// SaveWAV writes samples in [-1, 1] as 16-bit mono PCM.
func SaveWAV(path string, samples []float32, sampleRate int) (err error) {
	f, err := os.Create(path) //nolint:gosec // path built from the configured clip directory
	if err != nil {
		return errors.New(err).
			Component(componentClips).
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, numChannels, pcmFormat)
	buf := &audio.IntBuffer{
		Data:           floatToInts(samples),
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: numChannels},
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return errors.New(err).
			Component(componentClips).
			Category(errors.CategoryFileIO).
			Context("operation", "encode_wav").
			Build()
	}
	return enc.Close()
}

func floatToInts(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * math.MaxInt16)
		out[i] = int(max(min(v, math.MaxInt16), math.MinInt16))
	}
	return out
}
