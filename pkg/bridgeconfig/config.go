package bridgeconfig

import (
	"fmt"
	"os"

	"github.com/illmade-knight/go-kafkabridge/pkg/kafkasource"
	"github.com/illmade-knight/go-kafkabridge/pkg/pubsubsink"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// BridgeConfig is the top level configuration of the bridge binary.
type BridgeConfig struct {
	LogLevel    string             `yaml:"log_level"`
	MetricsAddr string             `yaml:"metrics_addr"`
	Kafka       kafkasource.Config `yaml:"kafka"`

	// Sink holds the raw sink properties, keyed as in pubsubsink (e.g. "gcp.project.id").
	Sink map[string]string `yaml:"sink"`
}

// Default returns a config with the consumer defaults and no sink properties.
func Default() BridgeConfig {
	return BridgeConfig{
		LogLevel:    "info",
		MetricsAddr: ":9090",
		Kafka:       kafkasource.DefaultConfig(),
		Sink:        map[string]string{},
	}
}

// LoadAndValidateConfig reads a YAML file, applies it over the defaults and validates
// the Kafka section. Sink properties are validated by SinkConfig.
func LoadAndValidateConfig(configPath string) (*BridgeConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	config := Default()
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML from '%s': %w", configPath, err)
	}

	if _, err := zerolog.ParseLevel(config.LogLevel); err != nil {
		return nil, fmt.Errorf("validation error: log_level: %w", err)
	}
	if err := config.Kafka.Validate(); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	return &config, nil
}

// SinkConfig builds the sink configuration. Environment properties fill keys the file leaves unset.
func (c *BridgeConfig) SinkConfig() (pubsubsink.Config, error) {
	props := pubsubsink.PropertiesFromEnv()
	for k, v := range c.Sink {
		props[k] = v
	}
	return pubsubsink.ConfigFromProperties(props)
}

// Level returns the parsed log level, defaulting to info.
func (c *BridgeConfig) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
