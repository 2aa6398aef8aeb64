// Package config loads the YAML configuration shared by the clevertouch
// daemon and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hemphen/clevertouch-go/internal/logging"
)

const (
	DefaultPollIntervalSeconds = 60
	DefaultMetricsListenAddr   = ":9090"
	DefaultTopicPrefix         = "clevertouch"
	DefaultDiscoveryPrefix     = "homeassistant"
)

// Config is the whole configuration file.
type Config struct {
	API     APIConfig     `yaml:"api"`
	MQTT    *MQTTConfig   `yaml:"mqtt,omitempty"`
	Metrics MetricsConfig `yaml:"metrics"`

	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	LogLevel            string `yaml:"log_level,omitempty"`
}

// APIConfig selects the cloud deployment and account.
type APIConfig struct {
	// Host of the cloud deployment; empty selects the default host.
	Host string `yaml:"host,omitempty"`

	// Manufacturer selects the OpenID realm; empty selects the default.
	Manufacturer string `yaml:"manufacturer,omitempty"`

	Email string `yaml:"email"`

	// TokenFile holds the persisted refresh token written by
	// `clevertouch-cli login`.
	TokenFile string `yaml:"token_file,omitempty"`
}

// MQTTConfig configures the Home Assistant bridge. When the section is
// absent the daemon runs metrics-only.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	TopicPrefix     string `yaml:"topic_prefix,omitempty"`
	DiscoveryPrefix string `yaml:"discovery_prefix,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr,omitempty"`
}

// Load reads, defaults and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.PollIntervalSeconds <= 0 {
		c.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = DefaultMetricsListenAddr
	}
	if c.API.TokenFile == "" {
		c.API.TokenFile = DefaultTokenFile()
	}
	if c.MQTT != nil {
		if c.MQTT.TopicPrefix == "" {
			c.MQTT.TopicPrefix = DefaultTopicPrefix
		}
		if c.MQTT.DiscoveryPrefix == "" {
			c.MQTT.DiscoveryPrefix = DefaultDiscoveryPrefix
		}
	}
}

func (c *Config) validate() error {
	if c.API.Email == "" {
		return fmt.Errorf("config: api.email is required")
	}
	if c.MQTT != nil && c.MQTT.Broker == "" {
		return fmt.Errorf("config: mqtt.broker is required when mqtt is configured")
	}
	return nil
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// DefaultTokenFile is the fallback location of the persisted refresh token.
func DefaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "clevertouch-token.json"
	}
	return filepath.Join(home, ".config", "clevertouch", "token.json")
}

// ClientOptions builds paho client options from the MQTT section.
// Subscriptions belong in the OnConnect handler so they survive reconnects.
func (m *MQTTConfig) ClientOptions() *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(m.Broker).
		SetUsername(m.Username).
		SetPassword(m.Password).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(client mqtt.Client, err error) {
			logging.Warn("MQTT connection lost", zap.Error(err))
		}).
		SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
			logging.Info("MQTT reconnecting")
		})
}
