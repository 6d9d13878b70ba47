// Package cmd defines the jupiter command line interface.
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jupiter-voice/jupiter/cmd/devices"
	"github.com/jupiter-voice/jupiter/cmd/listen"
	"github.com/jupiter-voice/jupiter/internal/buildinfo"
	"github.com/jupiter-voice/jupiter/internal/conf"
	"github.com/jupiter-voice/jupiter/internal/logger"
	"github.com/jupiter-voice/jupiter/internal/telemetry"
)

const sentryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command. settings is populated
// before any subcommand runs.
func RootCommand(info *buildinfo.Context) *cobra.Command {
	settings := &conf.Settings{}
	var configFile string
	var central *logger.CentralLogger

	rootCmd := &cobra.Command{
		Use:           "jupiter",
		Short:         "Jupiter wake-word engine",
		Version:       info.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config.yaml (default: search standard locations)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	rootCmd.AddCommand(
		listen.Command(settings, info),
		devices.Command(),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		// flags win over config file and environment
		if err := viper.BindPFlag("debug", cmd.Flags().Lookup("debug")); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}

		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded

		central, err = initLogging(settings)
		if err != nil {
			return err
		}

		return telemetry.InitSentry(&settings.Sentry, info)
	}

	rootCmd.PersistentPostRun = func(*cobra.Command, []string) {
		telemetry.Flush(sentryFlushTimeout)
		if central != nil {
			_ = central.Close()
		}
	}

	return rootCmd
}

// initLogging replaces the global logger with one built from settings.
func initLogging(settings *conf.Settings) (*logger.CentralLogger, error) {
	cfg := settings.Logging
	if settings.Debug {
		cfg.DefaultLevel = "debug"
		if cfg.Console != nil {
			console := *cfg.Console
			console.Level = "debug"
			cfg.Console = &console
		}
	}

	central, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return nil, fmt.Errorf("error initializing logger: %w", err)
	}
	logger.SetGlobal(central)
	return central, nil
}
