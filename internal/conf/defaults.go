// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("audio.device", -1)
	viper.SetDefault("audio.samplerate", 16000)
	viper.SetDefault("audio.framesize", 512)
	viper.SetDefault("audio.bufferframes", 100) // ~3.2 s at 512 samples / 16 kHz

	viper.SetDefault("features.nmfcc", 13)
	viper.SetDefault("features.numframes", 101)
	viper.SetDefault("features.nfft", 2048)
	viper.SetDefault("features.hoplength", 160)
	viper.SetDefault("features.nmels", 128)
	viper.SetDefault("features.silencethreshold", 0.005)

	viper.SetDefault("wakeword.modelpath", "")
	viper.SetDefault("wakeword.threshold", 0.85)
	viper.SetDefault("wakeword.windowsize", 5)
	viper.SetDefault("wakeword.requiredstreak", 2)
	viper.SetDefault("wakeword.cooldown", 2*time.Second)
	viper.SetDefault("wakeword.queuesize", 100)
	viper.SetDefault("wakeword.pollinterval", 100*time.Millisecond)
	viper.SetDefault("wakeword.stoptimeout", 2*time.Second)
	viper.SetDefault("wakeword.listendebounce", time.Second)
	viper.SetDefault("wakeword.threads", 0)
	viper.SetDefault("wakeword.xnnpack", false)

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/jupiter.log")
	viper.SetDefault("logging.file_output.level", "debug")
	viper.SetDefault("logging.file_output.buffer_size", 32*1024)
	viper.SetDefault("logging.file_output.flush_interval", "5s")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "127.0.0.1:9090")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "jupiter/wakeword")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.clientid", "")
	viper.SetDefault("mqtt.qos", 0)
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("clips.enabled", false)
	viper.SetDefault("clips.path", "clips/")
	viper.SetDefault("clips.maxage", 7*24*time.Hour)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.debug", false)
}
