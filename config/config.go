package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. VEHICLES_DB_HOST
const EnvPrefix = "VEHICLES"

// AppConfig is the full service configuration
type AppConfig struct {
	Watch   WatchConfig    `mapstructure:"watch"`
	DB      DatabaseConfig `mapstructure:"db"`
	Log     LogConfig      `mapstructure:"log"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
	Kafka   KafkaConfig    `mapstructure:"kafka"`
}

type WatchConfig struct {
	// Directory watched for dropped telemetry files (not recursive)
	Dir string `mapstructure:"dir"`
	// Concurrent pipeline invocations
	Workers int `mapstructure:"workers"`
	// Capacity of the event channel between watcher and workers
	BufferSize int `mapstructure:"buffer_size"`
}

type DatabaseConfig struct {
	// mysql or sqlite
	Driver   string `mapstructure:"driver"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Name     string `mapstructure:"name"`
	// SQLite database file
	Path string `mapstructure:"path"`
	// gorm logger: silent, error, warn, info
	LogLevel        string        `mapstructure:"log_level"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// Rows per INSERT statement within one file's transaction
	BatchSize int `mapstructure:"batch_size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console, json
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load reads configuration from defaults, the optional file at path and
// VEHICLES_* environment variables, in increasing precedence.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("ingest")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/telemetry-ingest/")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("watch.dir", "data")
	v.SetDefault("watch.workers", 1)
	v.SetDefault("watch.buffer_size", 100)

	// every key needs a default for AutomaticEnv to reach it on Unmarshal
	v.SetDefault("db.driver", "mysql")
	v.SetDefault("db.username", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.host", "")
	v.SetDefault("db.name", "")
	v.SetDefault("db.path", "vehicles.db")
	v.SetDefault("db.log_level", "warn")
	v.SetDefault("db.max_open_conns", 4)
	v.SetDefault("db.max_idle_conns", 2)
	v.SetDefault("db.conn_max_lifetime", "1h")
	v.SetDefault("db.batch_size", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	k := NewKafkaConfig()
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.bootstrap_servers", k.BootstrapServers)
	v.SetDefault("kafka.security_protocol", k.SecurityProtocol)
	v.SetDefault("kafka.sasl_mechanism", k.SASLMechanism)
	v.SetDefault("kafka.sasl_username", "")
	v.SetDefault("kafka.sasl_password", "")
	v.SetDefault("kafka.topic", k.Topic)
	v.SetDefault("kafka.compression_type", k.CompressionType)
	v.SetDefault("kafka.acks", k.Acks)
	v.SetDefault("kafka.max_in_flight", k.MaxInFlight)
	v.SetDefault("kafka.linger_ms", k.LingerMS)
	v.SetDefault("kafka.batch_size", k.BatchSize)
}

// Validate rejects configurations the service cannot run with
func (c *AppConfig) Validate() error {
	if c.Watch.Dir == "" {
		return fmt.Errorf("watch.dir cannot be empty")
	}
	if c.Watch.Workers < 1 {
		return fmt.Errorf("watch.workers must be at least 1, got %d", c.Watch.Workers)
	}
	if c.Watch.BufferSize < 0 {
		return fmt.Errorf("watch.buffer_size cannot be negative, got %d", c.Watch.BufferSize)
	}

	switch strings.ToLower(c.DB.Driver) {
	case "mysql":
		if c.DB.Host == "" || c.DB.Name == "" {
			return fmt.Errorf("db.host and db.name are required for mysql")
		}
	case "sqlite":
		if c.DB.Path == "" {
			return fmt.Errorf("db.path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported db.driver %q (want mysql or sqlite)", c.DB.Driver)
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unsupported log.format %q (want console or json)", c.Log.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	return c.Kafka.Validate()
}
