// Package listen implements the wake-word listening command.
package listen

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jupiter-voice/jupiter/cmd/devices"
	"github.com/jupiter-voice/jupiter/internal/analysis"
	"github.com/jupiter-voice/jupiter/internal/audiocore"
	"github.com/jupiter-voice/jupiter/internal/audiocore/sources/malgo"
	"github.com/jupiter-voice/jupiter/internal/buildinfo"
	"github.com/jupiter-voice/jupiter/internal/conf"
	"github.com/jupiter-voice/jupiter/internal/logger"
	"github.com/jupiter-voice/jupiter/internal/wakeword"
)

type flags struct {
	listDevices bool
	timeout     float64 // seconds
	continuous  bool
}

// Command creates the listen command.
func Command(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Listen for the wake word",
		Long: "Capture audio from the microphone and report when the wake word is heard. " +
			"Without --continuous the command exits after the first detection.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, settings, info, f)
		},
	}

	setupFlags(cmd, &f)
	return cmd
}

// setupFlags registers the listen flags and binds the config-backed ones to
// their viper keys so they take precedence over the config file.
func setupFlags(cmd *cobra.Command, f *flags) {
	fs := cmd.Flags()
	fs.String("model", "", "Path to the wake word .tflite model")
	fs.Float64("threshold", 0.85, "Per-prediction confidence threshold, 0 to 1")
	fs.Int("device", audiocore.DefaultDevice, "Capture device index, -1 for the system default")
	fs.String("clips", "", "Save a WAV clip of each detection to this directory")
	fs.String("metrics-listen", "", "Serve Prometheus metrics on this host:port")
	fs.BoolVar(&f.listDevices, "list-devices", false, "List capture devices and exit")
	fs.Float64Var(&f.timeout, "timeout", 0, "Stop listening after this many seconds without a detection")
	fs.BoolVar(&f.continuous, "continuous", false, "Keep listening after a detection")

	for flag, key := range map[string]string{
		"model":          "wakeword.modelpath",
		"threshold":      "wakeword.threshold",
		"device":         "audio.device",
		"clips":          "clips.path",
		"metrics-listen": "telemetry.listen",
	} {
		_ = viper.BindPFlag(key, fs.Lookup(flag))
	}
}

// applyOverrides turns on the features implied by explicitly set flags and
// checks what the config layer cannot.
func applyOverrides(cmd *cobra.Command, settings *conf.Settings, f flags) error {
	fs := cmd.Flags()
	if fs.Changed("clips") {
		settings.Clips.Enabled = true
	}
	if fs.Changed("metrics-listen") {
		settings.Telemetry.Enabled = true
	}
	if settings.Clips.Enabled && strings.TrimSpace(settings.Clips.Path) == "" {
		return fmt.Errorf("--clips requires a directory")
	}
	if f.timeout < 0 {
		return fmt.Errorf("--timeout must not be negative")
	}
	if settings.WakeWord.ModelPath == "" {
		return fmt.Errorf("no model given: pass --model or set wakeword.modelpath in the config")
	}
	return nil
}

func newBackend(out io.Writer) audiocore.Backend {
	b, err := malgo.NewBackend()
	if err != nil {
		fmt.Fprintf(out, "Audio capture unavailable: %v\n", err)
		return nil
	}
	return b
}

func run(cmd *cobra.Command, settings *conf.Settings, info *buildinfo.Context, f flags) error {
	out := cmd.OutOrStdout()

	if f.listDevices {
		return devices.List(out, devices.OpenBackend)
	}

	if err := applyOverrides(cmd, settings, f); err != nil {
		return err
	}

	var opts []analysis.PipelineOption
	if backend := newBackend(out); backend != nil {
		opts = append(opts, analysis.WithBackend(backend))
	}

	p, err := analysis.NewPipeline(settings, info, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Global().Module("cli").Warn("failed to stop detector", logger.Error(err))
		}
	}()

	if p.Degraded() {
		fmt.Fprintf(out, "Model %s could not be loaded; listening without wake word detection\n",
			settings.WakeWord.ModelPath)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timeout := time.Duration(f.timeout * float64(time.Second))
	fmt.Fprintf(out, "Listening for wake word (threshold %.2f)...\n", settings.WakeWord.Threshold)

	heard, err := p.Run(ctx, analysis.RunOptions{
		Timeout:    timeout,
		Continuous: f.continuous,
		OnDetect: func(d wakeword.Detection) {
			fmt.Fprintf(out, "%s  Wake word detected (confidence %.2f)\n",
				d.Timestamp.Format("15:04:05.000"), d.Confidence)
		},
	})
	if err != nil {
		return err
	}

	switch {
	case ctx.Err() != nil:
		fmt.Fprintln(out, "Stopped")
	case !heard && timeout > 0:
		fmt.Fprintf(out, "No wake word detected within %.1fs\n", f.timeout)
	}
	return nil
}
