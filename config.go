package nowhub

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v7"

	"github.com/ystepanoff/nowhub/logger"
	"github.com/ystepanoff/nowhub/protocol"
	"github.com/ystepanoff/nowhub/transport"
)

const envPrefix = "NOWHUB_"

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the hub configuration. Every field can be set from the
// environment with the NOWHUB_ prefix.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	LogOutput string `env:"LOG_OUTPUT" envDefault:"stdout"`

	StorePath string `env:"STORE_PATH" envDefault:"config.json"`

	SyncTimeout       time.Duration `env:"SYNC_TIMEOUT"       envDefault:"30s"`
	BroadcastInterval time.Duration `env:"BROADCAST_INTERVAL" envDefault:"1s"`
	BlinkInterval     time.Duration `env:"BLINK_INTERVAL"     envDefault:"500ms"`
	// PingInterval of zero disables the periodic ping.
	PingInterval time.Duration `env:"PING_INTERVAL" envDefault:"1m"`
	QueueSize    int           `env:"QUEUE_SIZE"    envDefault:"64"`

	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9464"`

	MQTTURL         string        `env:"MQTT_URL"          envDefault:""`
	MQTTClientID    string        `env:"MQTT_CLIENT_ID"    envDefault:"nowhub"`
	MQTTTopicPrefix string        `env:"MQTT_TOPIC_PREFIX" envDefault:"nowhub"`
	MQTTTimeout     time.Duration `env:"MQTT_TIMEOUT"      envDefault:"5s"`
}

// DefaultConfig returns the configuration used when the environment is empty.
func DefaultConfig() Config {
	return Config{
		LogLevel:          "info",
		LogFormat:         logger.FormatJSON,
		LogOutput:         "stdout",
		StorePath:         "config.json",
		SyncTimeout:       protocol.SyncModeTimeout,
		BroadcastInterval: protocol.SyncBroadcastInterval,
		BlinkInterval:     protocol.IndicatorBlinkInterval,
		PingInterval:      protocol.PingInterval,
		QueueSize:         64,
		MetricsAddr:       ":9464",
		MQTTClientID:      "nowhub",
		MQTTTopicPrefix:   "nowhub",
		MQTTTimeout:       5 * time.Second,
	}
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"sync timeout", c.SyncTimeout},
		{"broadcast interval", c.BroadcastInterval},
		{"blink interval", c.BlinkInterval},
		{"mqtt timeout", c.MQTTTimeout},
	}
	for _, p := range positive {
		if p.d <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidConfig, p.name, p.d))
		}
	}
	if c.PingInterval < 0 {
		errs = append(errs, fmt.Errorf("%w: ping interval must not be negative", ErrInvalidConfig))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: queue size must be positive, got %d", ErrInvalidConfig, c.QueueSize))
	}
	if c.StorePath == "" {
		errs = append(errs, fmt.Errorf("%w: store path is empty", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

// Logger returns the logger configuration.
func (c Config) Logger() logger.Config {
	return logger.Config{
		Level:  c.LogLevel,
		Output: c.LogOutput,
		Format: c.LogFormat,
	}
}

// Pairing returns the sync-mode timings.
func (c Config) Pairing() transport.PairingConfig {
	return transport.PairingConfig{
		Timeout:           c.SyncTimeout,
		BroadcastInterval: c.BroadcastInterval,
		BlinkInterval:     c.BlinkInterval,
	}
}
