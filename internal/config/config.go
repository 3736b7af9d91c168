package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

type Config struct {
	OpsAddr       string
	DatabaseURL   string
	MigrationsDir string
	// Redis backs the preview cache and the workflow signal streams. Both
	// fall back to in-process implementations when RedisURL is empty.
	RedisURL       string
	SignalStream   string
	SignalGroup    string
	SignalConsumer string
	ResultStream   string
	PreviewTTL     time.Duration
	MirrorDir      string
	MergeTimeout   time.Duration
	LogLevel       string
	Minio          MinioConfig
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSsl"`
}

func (m MinioConfig) Enabled() bool {
	return m.Endpoint != ""
}

func (m MinioConfig) Validate() error {
	enabled := m.Enabled()
	return validation.ValidateStruct(&m,
		validation.Field(&m.Bucket, validation.When(enabled, validation.Required)),
		validation.Field(&m.AccessKey, validation.When(enabled, validation.Required)),
		validation.Field(&m.SecretKey, validation.When(enabled, validation.Required)),
	)
}

// fileConfig is the YAML overlay. Zero values leave the defaults alone.
type fileConfig struct {
	OpsAddr             string      `yaml:"opsAddr"`
	DatabaseURL         string      `yaml:"databaseUrl"`
	MigrationsDir       string      `yaml:"migrationsDir"`
	RedisURL            string      `yaml:"redisUrl"`
	SignalStream        string      `yaml:"signalStream"`
	SignalGroup         string      `yaml:"signalGroup"`
	SignalConsumer      string      `yaml:"signalConsumer"`
	ResultStream        string      `yaml:"resultStream"`
	PreviewTTLSeconds   int         `yaml:"previewTtlSeconds"`
	MirrorDir           string      `yaml:"mirrorDir"`
	MergeTimeoutSeconds int         `yaml:"mergeTimeoutSeconds"`
	LogLevel            string      `yaml:"logLevel"`
	Minio               MinioConfig `yaml:"minio"`
}

func Defaults() Config {
	return Config{
		OpsAddr:        ":8788",
		SignalStream:   "folio:approval-signals",
		SignalGroup:    "folio-engine",
		SignalConsumer: defaultConsumer(),
		ResultStream:   "folio:approval-results",
		PreviewTTL:     30 * time.Minute,
		MergeTimeout:   10 * time.Second,
		LogLevel:       "info",
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by FOLIO_CONFIG_FILE, and the environment, in increasing precedence.
func Load() (Config, error) {
	return LoadFrom(os.Getenv("FOLIO_CONFIG_FILE"))
}

// LoadFrom is Load with an explicit file path. An empty path skips the file.
func LoadFrom(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		fromFile, err := LoadFile(path, cfg)
		if err != nil {
			return Config{}, err
		}
		cfg = fromFile
	}
	return applyEnv(cfg), nil
}

// LoadFile overlays the YAML file at path onto base.
func LoadFile(path string, base Config) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg := base
	setString(&cfg.OpsAddr, file.OpsAddr)
	setString(&cfg.DatabaseURL, file.DatabaseURL)
	setString(&cfg.MigrationsDir, file.MigrationsDir)
	setString(&cfg.RedisURL, file.RedisURL)
	setString(&cfg.SignalStream, file.SignalStream)
	setString(&cfg.SignalGroup, file.SignalGroup)
	setString(&cfg.SignalConsumer, file.SignalConsumer)
	setString(&cfg.ResultStream, file.ResultStream)
	setString(&cfg.MirrorDir, file.MirrorDir)
	setString(&cfg.LogLevel, file.LogLevel)
	if file.PreviewTTLSeconds != 0 {
		cfg.PreviewTTL = time.Duration(file.PreviewTTLSeconds) * time.Second
	}
	if file.MergeTimeoutSeconds != 0 {
		cfg.MergeTimeout = time.Duration(file.MergeTimeoutSeconds) * time.Second
	}
	setString(&cfg.Minio.Endpoint, file.Minio.Endpoint)
	setString(&cfg.Minio.AccessKey, file.Minio.AccessKey)
	setString(&cfg.Minio.SecretKey, file.Minio.SecretKey)
	setString(&cfg.Minio.Bucket, file.Minio.Bucket)
	cfg.Minio.UseSSL = cfg.Minio.UseSSL || file.Minio.UseSSL
	return cfg, nil
}

func applyEnv(cfg Config) Config {
	cfg.OpsAddr = getenv("FOLIO_OPS_ADDR", cfg.OpsAddr)
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.MigrationsDir = getenv("FOLIO_MIGRATIONS_DIR", cfg.MigrationsDir)
	cfg.RedisURL = getenv("REDIS_URL", cfg.RedisURL)
	cfg.SignalStream = getenv("FOLIO_SIGNAL_STREAM", cfg.SignalStream)
	cfg.SignalGroup = getenv("FOLIO_SIGNAL_GROUP", cfg.SignalGroup)
	cfg.SignalConsumer = getenv("FOLIO_SIGNAL_CONSUMER", cfg.SignalConsumer)
	cfg.ResultStream = getenv("FOLIO_RESULT_STREAM", cfg.ResultStream)
	cfg.PreviewTTL = getenvSeconds("FOLIO_PREVIEW_TTL_SECONDS", cfg.PreviewTTL)
	cfg.MirrorDir = getenv("FOLIO_MIRROR_DIR", cfg.MirrorDir)
	cfg.MergeTimeout = getenvSeconds("FOLIO_MERGE_TIMEOUT_SECONDS", cfg.MergeTimeout)
	cfg.LogLevel = getenv("FOLIO_LOG_LEVEL", cfg.LogLevel)
	cfg.Minio.Endpoint = getenv("MINIO_ENDPOINT", cfg.Minio.Endpoint)
	cfg.Minio.AccessKey = getenv("MINIO_ACCESS_KEY", cfg.Minio.AccessKey)
	cfg.Minio.SecretKey = getenv("MINIO_SECRET_KEY", cfg.Minio.SecretKey)
	cfg.Minio.Bucket = getenv("MINIO_BUCKET", cfg.Minio.Bucket)
	cfg.Minio.UseSSL = getenvBool("MINIO_USE_SSL", cfg.Minio.UseSSL)
	return cfg
}

func (c Config) Validate() error {
	redisOn := c.RedisURL != ""
	return validation.ValidateStruct(&c,
		validation.Field(&c.OpsAddr, validation.Required),
		validation.Field(&c.SignalStream, validation.When(redisOn, validation.Required)),
		validation.Field(&c.SignalGroup, validation.When(redisOn, validation.Required)),
		validation.Field(&c.SignalConsumer, validation.When(redisOn, validation.Required)),
		validation.Field(&c.ResultStream, validation.When(redisOn, validation.Required)),
		validation.Field(&c.PreviewTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MergeTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.LogLevel, validation.Required, validation.In("debug", "info", "warn", "error", "panic", "fatal")),
		validation.Field(&c.Minio),
	)
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvSeconds(key string, fallback time.Duration) time.Duration {
	seconds := getenvInt(key, -1)
	if seconds < 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func getenvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func defaultConsumer() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "engine"
	}
	return "engine-" + host
}
