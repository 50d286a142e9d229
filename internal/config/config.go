// Package config loads server settings from configs/config.yml and
// SOUSVIDE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "SOUSVIDE"

type Config struct {
	Port      string          `mapstructure:"port"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Device    DeviceConfig    `mapstructure:"device"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Status    StatusConfig    `mapstructure:"status"`
	Auth      AuthConfig      `mapstructure:"auth"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	InfluxDB  InfluxDBConfig  `mapstructure:"influxdb"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type HTTPConfig struct {
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DeviceConfig struct {
	Name     string `mapstructure:"name"`
	Address  string `mapstructure:"address"`
	Timezone string `mapstructure:"timezone"`

	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	Heartbeat      time.Duration `mapstructure:"heartbeat"`
	OpenTimeout    time.Duration `mapstructure:"open_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`

	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`

	Simulator SimulatorConfig `mapstructure:"simulator"`
}

type SimulatorConfig struct {
	Unit        string        `mapstructure:"unit"`
	OpenLatency time.Duration `mapstructure:"open_latency"`
}

type SchedulerConfig struct {
	MisfireGrace    time.Duration `mapstructure:"misfire_grace"`
	RemoveCompleted bool          `mapstructure:"remove_completed"`
}

type StatusConfig struct {
	// PollInterval of zero disables background polling.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type AuthConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type MQTTConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Broker     string `mapstructure:"broker"`
	ClientID   string `mapstructure:"client_id"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	Topic      string `mapstructure:"topic"`
	MaxRetries int    `mapstructure:"max_retries"`
}

type InfluxDBConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Org     string `mapstructure:"org"`
	Bucket  string `mapstructure:"bucket"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("db.path", "app.db")

	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("device.name", "anova")
	v.SetDefault("device.address", "simulator")
	v.SetDefault("device.timezone", "America/New_York")
	v.SetDefault("device.idle_timeout", 300*time.Second)
	v.SetDefault("device.heartbeat", 20*time.Second)
	v.SetDefault("device.open_timeout", 10*time.Second)
	v.SetDefault("device.command_timeout", 15*time.Second)
	v.SetDefault("device.breaker_failures", 3)
	v.SetDefault("device.breaker_cooldown", 30*time.Second)
	v.SetDefault("device.simulator.unit", "f")
	v.SetDefault("device.simulator.open_latency", 200*time.Millisecond)

	v.SetDefault("scheduler.misfire_grace", time.Minute)
	v.SetDefault("scheduler.remove_completed", false)

	v.SetDefault("status.poll_interval", 0)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", 12*time.Hour)

	// keys need a default to be visible to AutomaticEnv during Unmarshal
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "sous-vide")
	v.SetDefault("mqtt.topic", "sousvide/status")
	v.SetDefault("mqtt.max_retries", 5)

	v.SetDefault("influxdb.enabled", false)
	v.SetDefault("influxdb.url", "")
	v.SetDefault("influxdb.token", "")
	v.SetDefault("influxdb.org", "")
	v.SetDefault("influxdb.bucket", "")
}

// Load reads config.yml from dir (when present), applies defaults and
// environment overrides, and validates the result. An empty dir means "configs".
func Load(dir string) (*Config, error) {
	if dir == "" {
		dir = "configs"
	}

	v := viper.New()
	setDefaults(v)
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Device.IdleTimeout <= 0 {
		return fmt.Errorf("device.idle_timeout must be positive, got %s", c.Device.IdleTimeout)
	}
	if c.Device.Heartbeat <= 0 {
		return fmt.Errorf("device.heartbeat must be positive, got %s", c.Device.Heartbeat)
	}
	if c.Status.PollInterval < 0 {
		return fmt.Errorf("status.poll_interval must not be negative, got %s", c.Status.PollInterval)
	}
	if _, err := time.LoadLocation(c.Device.Timezone); err != nil {
		return fmt.Errorf("device.timezone: %w", err)
	}
	if c.Auth.Enabled && c.Auth.SigningKey == "" {
		return errors.New("auth.signing_key is required when auth is enabled")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required when mqtt is enabled")
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		return errors.New("influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}
	return nil
}
