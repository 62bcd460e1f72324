package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/Zereker/hnmp"
)

const (
	defaultConfigName = "hnmp"
	envPrefix         = "HNMP"
)

// Config is the resolved runtime configuration.
type Config struct {
	Server    Server    `mapstructure:"server"`
	Client    Client    `mapstructure:"client"`
	Telemetry Telemetry `mapstructure:"telemetry"`
	Log       Log       `mapstructure:"log"`
}

// Server is the game server to connect to.
type Server struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
}

// Client tunes the connection.
type Client struct {
	SendBuffer   int           `mapstructure:"send_buffer"`
	ReadBuffer   int           `mapstructure:"read_buffer"`
	MaxFrameSize int           `mapstructure:"max_frame_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
}

// Telemetry enables optional outputs. Empty values disable them.
type Telemetry struct {
	// PacketLogPath enables NDJSON message telemetry when set.
	PacketLogPath string `mapstructure:"packet_log_path"`
	// MetricsAddr serves Prometheus metrics on /metrics when set.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Log configures the default logger.
type Log struct {
	Level string `mapstructure:"level"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName(defaultConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("config")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.address", "127.0.0.1")
	v.SetDefault("server.port", 27015)

	v.SetDefault("client.send_buffer", 16)
	v.SetDefault("client.read_buffer", 4096)
	v.SetDefault("client.max_frame_size", 1024*1024)
	v.SetDefault("client.dial_timeout", "10s")

	v.SetDefault("telemetry.packet_log_path", "")
	v.SetDefault("telemetry.metrics_addr", "")

	v.SetDefault("log.level", "info")
	return v
}

// Load reads the configuration. path names a YAML file; when empty,
// hnmp.yaml is searched for in the working directory and in config/.
// A missing file is not an error: defaults and environment apply.
func Load(path string) (Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
		case path != "" && errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, errors.Wrap(err, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}

	cfg.Server.Address = strings.TrimSpace(cfg.Server.Address)
	cfg.Telemetry.PacketLogPath = strings.TrimSpace(cfg.Telemetry.PacketLogPath)
	cfg.Telemetry.MetricsAddr = strings.TrimSpace(cfg.Telemetry.MetricsAddr)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	if cfg.Telemetry.PacketLogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Telemetry.PacketLogPath), 0o755); err != nil {
			return Config{}, errors.Wrap(err, "create telemetry dir")
		}
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Server.Address == "" {
		return errors.New("server.address must not be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Client.SendBuffer <= 0 {
		return errors.Errorf("invalid client.send_buffer %d", c.Client.SendBuffer)
	}
	if c.Client.ReadBuffer <= 0 {
		return errors.Errorf("invalid client.read_buffer %d", c.Client.ReadBuffer)
	}
	if c.Client.MaxFrameSize <= 0 {
		return errors.Errorf("invalid client.max_frame_size %d", c.Client.MaxFrameSize)
	}
	if c.Client.DialTimeout <= 0 {
		return errors.Errorf("invalid client.dial_timeout %s", c.Client.DialTimeout)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// ConnOptions returns the connection options carried by the config.
func (c Config) ConnOptions() []hnmp.Option {
	return []hnmp.Option{
		hnmp.BufferSizeOption(c.Client.SendBuffer),
		hnmp.ReadBufferSizeOption(c.Client.ReadBuffer),
		hnmp.MessageMaxSize(c.Client.MaxFrameSize),
		hnmp.DialTimeoutOption(c.Client.DialTimeout),
	}
}

// SlogLevel parses the configured level ("debug", "info", "warn", "error").
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, errors.Wrapf(err, "invalid log.level %q", l.Level)
	}
	return level, nil
}

// EnsureFile writes the default configuration to path unless a file is
// already there. It reports whether a file was created.
func EnsureFile(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, errors.Wrapf(err, "stat %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, errors.Wrap(err, "create config dir")
	}

	if err := newViper().SafeWriteConfigAs(path); err != nil {
		var exists viper.ConfigFileAlreadyExistsError
		if errors.As(err, &exists) {
			return false, nil
		}
		return false, errors.Wrapf(err, "write %s", path)
	}
	return true, nil
}
