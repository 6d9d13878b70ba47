package wakeword

import (
	"context"
	"time"

	"github.com/jupiter-voice/jupiter/internal/logger"
)

// ListenOptions controls ListenForWakeWord.
type ListenOptions struct {
	// Timeout ends listening when no detection occurs for this long. Zero
	// listens until ctx is done. In continuous mode each handled detection
	// restarts the clock.
	Timeout time.Duration
	// Continuous keeps listening after a detection instead of returning.
	Continuous bool
	// OnDetect is called for each handled detection on the listening goroutine.
	OnDetect func(Detection)
}

// ListenForWakeWord blocks until the wake word is heard, the timeout passes
// or ctx is done. A stopped detector is started for the call; in single-shot
// mode it is stopped again afterwards, in continuous mode it is left running
// until ctx is done or Stop is called. Detections closer together than the
// configured debounce are ignored. It reports whether any detection was
// handled.
func (d *Detector) ListenForWakeWord(ctx context.Context, opts ListenOptions) bool {
	events, unsubscribe := d.Subscribe(8)
	defer unsubscribe()

	if !d.IsRunning() {
		if err := d.Start(ctx); err != nil {
			d.log.Warn("detector start reported an error", logger.Error(err))
		}
		if !opts.Continuous {
			defer d.stopAfterListen()
		}
	}

	// a detection from before this call must not satisfy it
	d.IsDetected()

	var timeout <-chan time.Time
	var timer *time.Timer
	if opts.Timeout > 0 {
		timer = time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var lastHandled time.Time
	heard := false

	for {
		select {
		case <-ctx.Done():
			return heard
		case <-timeout:
			d.log.Debug("listening timed out", logger.Bool("detected", heard))
			return heard
		case det := <-events:
			d.IsDetected()
			if !lastHandled.IsZero() && det.Timestamp.Sub(lastHandled) < d.cfg.ListenDebounce {
				continue
			}
			lastHandled = det.Timestamp
			heard = true

			if opts.OnDetect != nil {
				d.safeListenHandler(opts.OnDetect, det)
			}
			if !opts.Continuous {
				return true
			}
			if timer != nil {
				timer.Reset(opts.Timeout)
			}
		}
	}
}

func (d *Detector) stopAfterListen() {
	if err := d.Stop(); err != nil {
		d.log.Warn("failed to stop detector after listening", logger.Error(err))
	}
}

func (d *Detector) safeListenHandler(fn func(Detection), det Detection) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.CallbackFailed()
			d.log.Error("listen handler panicked", logger.Any("panic", r))
		}
	}()
	fn(det)
}
