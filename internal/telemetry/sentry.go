// Package telemetry wires enhanced errors to Sentry.
package telemetry

import (
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/jupiter-voice/jupiter/internal/buildinfo"
	"github.com/jupiter-voice/jupiter/internal/conf"
	"github.com/jupiter-voice/jupiter/internal/errors"
	"github.com/jupiter-voice/jupiter/internal/logger"
)

var initialized atomic.Bool

// InitSentry initializes the Sentry SDK and routes enhanced errors to it.
// It does nothing unless Sentry is enabled with a DSN.
func InitSentry(settings *conf.SentrySettings, info *buildinfo.Context) error {
	log := logger.Global().Module("telemetry")

	if !settings.Enabled {
		log.Debug("sentry telemetry disabled")
		return nil
	}
	if settings.DSN == "" {
		log.Warn("sentry enabled without a DSN, telemetry stays off")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		SampleRate:       1.0,
		Debug:            settings.Debug,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          info.Release(),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("instance_id", info.InstanceID)
	})
	errors.SetPrivacyScrubber(logger.RedactSensitiveData)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	initialized.Store(true)

	log.Info("sentry telemetry enabled", logger.String("release", info.Release()))
	return nil
}

// Flush waits up to timeout for buffered events to be sent.
func Flush(timeout time.Duration) {
	if initialized.Load() {
		sentry.Flush(timeout)
	}
}

// applyPrivacyFilters strips host identifying data from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	return event
}
