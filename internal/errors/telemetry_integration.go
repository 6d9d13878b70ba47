// Package errors - telemetry integration (optional)
package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter is an interface for reporting errors to telemetry systems
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// SentryReporter implements TelemetryReporter for Sentry
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a new Sentry telemetry reporter
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError reports an enhanced error to Sentry with privacy protection
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}

	scrubbedMessage := ScrubMessage(fmt.Sprintf("[%s] %s", ee.Category, ee.Error()))
	component := ee.GetComponent()

	sentry.WithScope(func(scope *sentry.Scope) {
		errorTitle := generateErrorTitle(ee)

		scope.SetTag("error_title", errorTitle)
		scope.SetTag("component", component)
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))
		if ee.Priority != "" {
			scope.SetTag("priority", ee.Priority)
		}

		for key, value := range ee.GetContext() {
			if strValue, ok := value.(string); ok {
				value = ScrubMessage(strValue)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}

		level := getErrorLevel(ee.Category)
		scope.SetLevel(level)
		scope.SetFingerprint([]string{errorTitle, component, string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = scrubbedMessage
		event.Level = level
		event.Exception = []sentry.Exception{{
			Type:  errorTitle,
			Value: scrubbedMessage,
		}}

		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

// generateErrorTitle creates a meaningful error title for Sentry based on enhanced error context
func generateErrorTitle(ee *EnhancedError) string {
	var titleParts []string

	if component := ee.GetComponent(); component != "" && component != ComponentUnknown {
		titleParts = append(titleParts, titleCase(component))
	}

	if categoryTitle := formatCategoryForTitle(ee.Category); categoryTitle != "" {
		titleParts = append(titleParts, categoryTitle)
	}

	if operation, ok := ee.GetContext()["operation"].(string); ok && operation != "" {
		titleParts = append(titleParts, formatOperationForTitle(operation))
	}

	if len(titleParts) == 0 {
		return fmt.Sprintf("%T", ee.Err)
	}

	return strings.Join(titleParts, " ")
}

// formatCategoryForTitle converts error categories to human-readable titles
func formatCategoryForTitle(category ErrorCategory) string {
	switch category {
	case CategoryValidation:
		return "Validation Error"
	case CategoryNetwork:
		return "Network Error"
	case CategoryFileIO:
		return "File I/O Error"
	case CategoryModelInit:
		return "Model Initialization Error"
	case CategoryModelLoad:
		return "Model Loading Error"
	case CategoryInference:
		return "Inference Error"
	case CategoryAudio:
		return "Audio Processing Error"
	case CategoryAudioSource:
		return "Audio Source Error"
	case CategoryFeatureExtraction:
		return "Feature Extraction Error"
	case CategoryConfiguration:
		return "Configuration Error"
	case CategorySystem:
		return "System Error"
	default:
		return string(category)
	}
}

// formatOperationForTitle converts operation context to human-readable format
func formatOperationForTitle(operation string) string {
	words := strings.Fields(strings.ReplaceAll(operation, "_", " "))
	for i, word := range words {
		words[i] = titleCase(word)
	}
	return strings.Join(words, " ")
}

// titleCase capitalizes the first letter of a string
func titleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// getErrorLevel returns appropriate Sentry level based on category
func getErrorLevel(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryModelInit, CategoryModelLoad, CategoryValidation, CategoryConfiguration, CategorySystem:
		return sentry.LevelError
	case CategoryNetwork, CategoryMQTTConnection, CategoryMQTTPublish, CategoryTimeout:
		return sentry.LevelWarning // Often transient
	case CategoryFileIO, CategoryAudio, CategoryAudioSource, CategoryFeatureExtraction, CategoryInference:
		return sentry.LevelWarning // Usually recoverable
	case CategoryCancellation:
		return sentry.LevelInfo
	default:
		return sentry.LevelError
	}
}

var (
	telemetryMu             sync.RWMutex
	globalTelemetryReporter TelemetryReporter
)

// SetTelemetryReporter sets the global telemetry reporter. Passing nil
// disables reporting and restores the fast path in Build.
func SetTelemetryReporter(reporter TelemetryReporter) {
	telemetryMu.Lock()
	defer telemetryMu.Unlock()
	globalTelemetryReporter = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

// GetTelemetryReporter returns the current telemetry reporter
func GetTelemetryReporter() TelemetryReporter {
	telemetryMu.RLock()
	defer telemetryMu.RUnlock()
	return globalTelemetryReporter
}

// reportToTelemetry reports an error to the configured telemetry system
func reportToTelemetry(ee *EnhancedError) {
	reporter := GetTelemetryReporter()
	if reporter != nil && reporter.IsEnabled() {
		reporter.ReportError(ee)
	}
}

// PrivacyScrubber is a function type for privacy scrubbing
type PrivacyScrubber func(string) string

var globalPrivacyScrubber PrivacyScrubber

// SetPrivacyScrubber sets the global privacy scrubbing function
func SetPrivacyScrubber(scrubber PrivacyScrubber) {
	telemetryMu.Lock()
	defer telemetryMu.Unlock()
	globalPrivacyScrubber = scrubber
}

// ScrubMessage applies privacy protection to a message before it leaves the process
func ScrubMessage(message string) string {
	telemetryMu.RLock()
	scrubber := globalPrivacyScrubber
	telemetryMu.RUnlock()
	if scrubber != nil {
		return scrubber(message)
	}
	return basicURLScrub(message)
}

var (
	urlQueryRegex  = regexp.MustCompile(`(\w+://[^?\s]+)\?\S*`)
	userinfoRegex  = regexp.MustCompile(`(\w+://)[^@/\s]+@`)
	queryParamRe   = regexp.MustCompile(`[?&]([^=\s]+)=([^&\s]+)`)
	secretPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)api[_-]?key[=:]\S+`),
		regexp.MustCompile(`(?i)token[=:]\S+`),
		regexp.MustCompile(`(?i)password[=:]\S+`),
		regexp.MustCompile(`(?i)dsn[=:]\S+`),
		regexp.MustCompile(`[0-9a-fA-F]{32,}`),
	}
	idPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)user[_-]?id[=:]\S+`),
		regexp.MustCompile(`(?i)device[_-]?id[=:]\S+`),
		regexp.MustCompile(`(?i)client[_-]?id[=:]\S+`),
	}
)

// basicURLScrub provides basic URL and credential anonymization as fallback
func basicURLScrub(message string) string {
	scrubbed := userinfoRegex.ReplaceAllString(message, "$1[REDACTED]@")
	scrubbed = urlQueryRegex.ReplaceAllString(scrubbed, "$1?[REDACTED]")
	scrubbed = queryParamRe.ReplaceAllString(scrubbed, "?[REDACTED]")

	for _, re := range secretPatterns {
		scrubbed = re.ReplaceAllString(scrubbed, "[API_KEY_REDACTED]")
	}
	for _, re := range idPatterns {
		scrubbed = re.ReplaceAllString(scrubbed, "[ID_REDACTED]")
	}

	return scrubbed
}
