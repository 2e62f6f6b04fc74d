// Package config loads the client's operational settings. Broker
// credentials are not part of it; they live in the store once a device is
// onboarded.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/beegreen/internal/logger"
	"github.com/sweeney/beegreen/internal/mqtt"
	"github.com/sweeney/beegreen/internal/pump"
)

// EnvPrefix prefixes environment overrides, e.g. BEEGREEN_HTTP_ADDR.
const EnvPrefix = "BEEGREEN"

// FileName is the config file base name searched for when no path is given.
const FileName = "beegreen"

// Config is the full set of settings.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Store    StoreConfig    `mapstructure:"store"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Topics   mqtt.Topics    `mapstructure:"topics"`
	Liveness LivenessConfig `mapstructure:"liveness"`
	Pump     PumpConfig     `mapstructure:"pump"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type HTTPConfig struct {
	// Addr is the status page listen address; empty disables it.
	Addr string `mapstructure:"addr"`
}

type MQTTConfig struct {
	Transport      string        `mapstructure:"transport"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ClientIDPrefix string        `mapstructure:"client_id_prefix"`
}

type LivenessConfig struct {
	Threshold     time.Duration `mapstructure:"threshold"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

type PumpConfig struct {
	CommandFormat string        `mapstructure:"command_format"`
	DefaultRun    time.Duration `mapstructure:"default_run"`
}

type ScheduleConfig struct {
	SnapshotTimeout time.Duration `mapstructure:"snapshot_timeout"`
}

type setting struct {
	key   string
	value any
}

// defaults are kept as plain strings for durations so the same table can
// seed viper and be written out as YAML.
func defaults() []setting {
	return []setting{
		{"log.level", logger.DefaultLevel},
		{"store.path", DefaultStorePath()},
		{"http.addr", "127.0.0.1:8080"},
		{"mqtt.transport", mqtt.TransportWSS},
		{"mqtt.connect_timeout", "10s"},
		{"mqtt.client_id_prefix", "beegreen-"},
		{"topics.pump_trigger", mqtt.DefaultTopics.PumpTrigger},
		{"topics.pump_status", mqtt.DefaultTopics.PumpStatus},
		{"topics.heartbeat", mqtt.DefaultTopics.Heartbeat},
		{"topics.set_schedule", mqtt.DefaultTopics.SetSchedule},
		{"topics.get_schedules", mqtt.DefaultTopics.GetSchedules},
		{"topics.schedules_response", mqtt.DefaultTopics.SchedulesResponse},
		{"liveness.threshold", "60s"},
		{"liveness.check_interval", "5s"},
		{"pump.command_format", string(pump.FormatFlag)},
		{"pump.default_run", "15m"},
		{"schedule.snapshot_timeout", "10s"},
	}
}

// DefaultStorePath returns the database location under the user config dir.
func DefaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "beegreen.db"
	}
	return filepath.Join(dir, "beegreen", "beegreen.db")
}

func newViper() *viper.Viper {
	v := viper.New()
	for _, s := range defaults() {
		v.SetDefault(s.key, s.value)
	}
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads settings. With an empty path, beegreen.yaml is looked up in
// the working directory and the user config dir, and a missing file is not
// an error. An explicit path must exist.
func Load(path string) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "beegreen"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	if !logger.ValidLevel(c.Log.Level) {
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	switch c.MQTT.Transport {
	case mqtt.TransportTCP, mqtt.TransportSSL, mqtt.TransportWS, mqtt.TransportWSS:
	default:
		return fmt.Errorf("mqtt.transport: unknown transport %q", c.MQTT.Transport)
	}
	if c.MQTT.ConnectTimeout <= 0 {
		return errors.New("mqtt.connect_timeout must be positive")
	}
	if err := c.Topics.Validate(); err != nil {
		return fmt.Errorf("topics: %w", err)
	}
	if c.Liveness.Threshold <= 0 || c.Liveness.CheckInterval <= 0 {
		return errors.New("liveness: threshold and check_interval must be positive")
	}
	if c.Liveness.CheckInterval > c.Liveness.Threshold {
		return fmt.Errorf("liveness.check_interval %v exceeds threshold %v", c.Liveness.CheckInterval, c.Liveness.Threshold)
	}
	if _, err := pump.ParseFormat(c.Pump.CommandFormat); err != nil {
		return fmt.Errorf("pump.command_format: %w", err)
	}
	if c.Pump.DefaultRun <= 0 {
		return errors.New("pump.default_run must be positive")
	}
	if c.Schedule.SnapshotTimeout <= 0 {
		return errors.New("schedule.snapshot_timeout must be positive")
	}
	return nil
}

// DefaultYAML renders the default settings as a YAML document.
func DefaultYAML() ([]byte, error) {
	root := map[string]any{}
	for _, s := range defaults() {
		parts := strings.Split(s.key, ".")
		node := root
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = s.value
	}
	return yaml.Marshal(root)
}

// WriteDefault writes the default settings to path. An existing file is
// only replaced when overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	data, err := DefaultYAML()
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
