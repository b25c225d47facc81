// Package config loads service configuration from defaults, an optional
// YAML file and STOREFRONT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, with "." in keys
// replaced by "_" (STOREFRONT_STORAGE_BACKEND).
const EnvPrefix = "STOREFRONT"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	API      APIConfig      `mapstructure:"api"`
	Media    MediaConfig    `mapstructure:"media"`
	Submit   SubmitConfig   `mapstructure:"submit"`
	Events   EventsConfig   `mapstructure:"events"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Janitor  JanitorConfig  `mapstructure:"janitor"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	RateLimit       float64       `mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst       int           `mapstructure:"rate_burst" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes" validate:"gt=0"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies" validate:"dive,cidr"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// StorageConfig selects the object store backend. The S3 fields only apply
// to the s3 backend; DataDir only to filesystem.
type StorageConfig struct {
	Backend         string `mapstructure:"backend" validate:"oneof=s3 filesystem memory"`
	Bucket          string `mapstructure:"bucket" validate:"required"`
	DataDir         string `mapstructure:"data_dir"`
	Endpoint        string `mapstructure:"endpoint" validate:"omitempty,url"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries" validate:"gte=0"`
}

type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url" validate:"omitempty,url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst int           `mapstructure:"rate_burst" validate:"gte=0"`
}

// MediaConfig drives photo normalization.
type MediaConfig struct {
	MaxWidth    int     `mapstructure:"max_width" validate:"gte=1"`
	Quality     float64 `mapstructure:"quality" validate:"gt=0,lte=1"`
	Format      string  `mapstructure:"format" validate:"oneof=jpeg png webp avif"`
	MaxBytes    int64   `mapstructure:"max_bytes" validate:"gt=0"`
	Concurrency int     `mapstructure:"concurrency" validate:"gte=1"`
	CacheSize   int     `mapstructure:"cache_size" validate:"gte=0"`
}

type SubmitConfig struct {
	OperationTimeout    time.Duration `mapstructure:"operation_timeout"`
	CompensateOnFailure bool          `mapstructure:"compensate_on_failure"`
}

type EventsConfig struct {
	Buffer       int      `mapstructure:"buffer" validate:"gte=1"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
}

type WorkerConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1"`
	BatchSize   int           `mapstructure:"batch_size" validate:"gte=1"`
}

type JanitorConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	DraftTTL       time.Duration `mapstructure:"draft_ttl"`
	EventRetention time.Duration `mapstructure:"event_retention"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_upload_bytes", int64(100<<20))
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("database.path", "./data/storefront.db")

	v.SetDefault("storage.backend", "filesystem")
	v.SetDefault("storage.bucket", "storefront-media")
	v.SetDefault("storage.data_dir", "./data/objects")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.access_key_id", "")
	v.SetDefault("storage.secret_access_key", "")
	v.SetDefault("storage.max_retries", 3)

	v.SetDefault("api.base_url", "")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.rate_limit", 20.0)
	v.SetDefault("api.rate_burst", 10)

	v.SetDefault("media.max_width", 480)
	v.SetDefault("media.quality", 0.6)
	v.SetDefault("media.format", "jpeg")
	v.SetDefault("media.max_bytes", int64(25<<20))
	v.SetDefault("media.concurrency", 4)
	v.SetDefault("media.cache_size", 64)

	v.SetDefault("submit.operation_timeout", 60*time.Second)
	v.SetDefault("submit.compensate_on_failure", false)

	v.SetDefault("events.buffer", 16)
	v.SetDefault("events.kafka_brokers", []string{})
	v.SetDefault("events.kafka_topic", "storefront-events")

	v.SetDefault("worker.interval", 30*time.Second)
	v.SetDefault("worker.max_attempts", 5)
	v.SetDefault("worker.batch_size", 20)

	v.SetDefault("janitor.interval", 6*time.Hour)
	v.SetDefault("janitor.draft_ttl", 30*24*time.Hour)
	v.SetDefault("janitor.event_retention", 90*24*time.Hour)
}

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("%s: failed on '%s' (value: %v)", e.Namespace(), e.Tag(), e.Value())
		}
		return err
	}

	if cfg.Storage.Backend == "filesystem" && cfg.Storage.DataDir == "" {
		return errors.New("storage.data_dir is required for the filesystem backend")
	}
	if len(cfg.Events.KafkaBrokers) > 0 && cfg.Events.KafkaTopic == "" {
		return errors.New("events.kafka_topic is required when kafka_brokers is set")
	}
	return nil
}
