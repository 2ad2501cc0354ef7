package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	_ "github.com/joho/godotenv/autoload"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort           = "3005"
	DefaultRegion         = "auto"
	DefaultMaxFileSize    = "1024mb"
	DefaultPartSize       = 5 * 1024 * 1024
	DefaultConcurrency    = 3
	DefaultMaxRetries     = 3
	DefaultRequestTimeout = 5 * time.Minute
	DefaultMaxAttempts    = 5
	DefaultUploadURLTTL   = 24 * time.Hour
	DefaultDownloadURLTTL = time.Hour
)

// DefaultAllowedOrigins is the CORS allow-list used when CORS_ORIGINS is unset.
var DefaultAllowedOrigins = []string{
	"https://r2.vrchat.vip",
	"http://r2.vrchat.vip",
	"https://vrchat.vip",
	"http://vrchat.vip",
	"http://localhost:8080",
}

// Config is built once at startup and shared read-only by every component.
type Config struct {
	AccountID       string        `yaml:"account_id" json:"account_id"`
	Endpoint        string        `yaml:"endpoint" json:"endpoint"`
	Region          string        `yaml:"region" json:"region"`
	Bucket          string        `yaml:"bucket" json:"bucket"`
	AccessKeyID     string        `yaml:"access_key_id" json:"-"`
	SecretAccessKey string        `yaml:"secret_access_key" json:"-"`
	AssumeRoleARN   string        `yaml:"assume_role_arn" json:"assume_role_arn,omitempty"`
	UsePathStyle    bool          `yaml:"use_path_style" json:"use_path_style"`
	PublicURL       string        `yaml:"public_url" json:"public_url"`
	ProxyURL        string        `yaml:"proxy_url" json:"proxy_url"`
	MaxFileSize     string        `yaml:"max_file_size" json:"max_file_size"`
	AllowedOrigins  []string      `yaml:"allowed_origins" json:"allowed_origins"`
	Port            string        `yaml:"port" json:"port"`
	PartSize        int64         `yaml:"part_size" json:"part_size"`
	Concurrency     int           `yaml:"concurrency" json:"concurrency"`
	MaxRetries      int           `yaml:"max_retries" json:"max_retries"`
	RequestTimeout  time.Duration `yaml:"request_timeout" json:"request_timeout"`
	MaxAttempts     int           `yaml:"max_attempts" json:"max_attempts"`
	UploadURLTTL    time.Duration `yaml:"upload_url_ttl" json:"upload_url_ttl"`
	DownloadURLTTL  time.Duration `yaml:"download_url_ttl" json:"download_url_ttl"`
	AbortOnFailure  bool          `yaml:"abort_on_failure" json:"abort_on_failure"`
	LogLevel        string        `yaml:"log_level" json:"log_level"`
	TracingEndpoint string        `yaml:"tracing_endpoint" json:"tracing_endpoint,omitempty"`

	// MaxBodySize is MaxFileSize in bytes, resolved by Load.
	MaxBodySize int64 `yaml:"-" json:"max_body_size"`
}

// Default returns a Config populated with the reference defaults.
func Default() *Config {
	return &Config{
		Region:         DefaultRegion,
		UsePathStyle:   true,
		MaxFileSize:    DefaultMaxFileSize,
		AllowedOrigins: append([]string(nil), DefaultAllowedOrigins...),
		Port:           DefaultPort,
		PartSize:       DefaultPartSize,
		Concurrency:    DefaultConcurrency,
		MaxRetries:     DefaultMaxRetries,
		RequestTimeout: DefaultRequestTimeout,
		MaxAttempts:    DefaultMaxAttempts,
		UploadURLTTL:   DefaultUploadURLTTL,
		DownloadURLTTL: DefaultDownloadURLTTL,
		LogLevel:       "info",
	}
}

// Load reads the optional YAML file at CONFIG_PATH, applies environment
// overrides and validates the result.
func Load() (*Config, error) {
	c := Default()

	path := getenv("CONFIG_PATH", "./config.yaml")
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.finalize(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	setString(&c.AccountID, "R2_ACCOUNT_ID")
	setString(&c.Endpoint, "R2_ENDPOINT")
	setString(&c.Region, "R2_REGION")
	setString(&c.Bucket, "R2_BUCKET_NAME")
	setString(&c.AccessKeyID, "R2_ACCESS_KEY_ID")
	setString(&c.SecretAccessKey, "R2_SECRET_ACCESS_KEY")
	setString(&c.AssumeRoleARN, "ASSUME_ROLE_ARN")
	setString(&c.PublicURL, "R2_PUBLIC_URL")
	setString(&c.ProxyURL, "CORS_PROXY_URL")
	setString(&c.MaxFileSize, "MAX_FILE_SIZE")
	setString(&c.Port, "PORT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.TracingEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.AllowedOrigins = splitComma(v)
	}

	var errs []error
	errs = append(errs,
		setBool(&c.UsePathStyle, "S3_USE_PATH_STYLE"),
		setBool(&c.AbortOnFailure, "ABORT_ON_FAILURE"),
		setInt(&c.Concurrency, "UPLOAD_CONCURRENCY"),
		setInt(&c.MaxRetries, "UPLOAD_MAX_RETRIES"),
		setInt(&c.MaxAttempts, "BACKEND_MAX_ATTEMPTS"),
		setDuration(&c.RequestTimeout, "REQUEST_TIMEOUT"),
		setDuration(&c.UploadURLTTL, "UPLOAD_URL_TTL"),
		setDuration(&c.DownloadURLTTL, "DOWNLOAD_URL_TTL"),
	)
	if v := os.Getenv("UPLOAD_PART_SIZE"); v != "" {
		n, err := units.RAMInBytes(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("UPLOAD_PART_SIZE: %w", err))
		} else {
			c.PartSize = n
		}
	}
	return errors.Join(errs...)
}

// finalize derives computed fields and validates the configuration.
func (c *Config) finalize() error {
	if c.Endpoint == "" && c.AccountID != "" {
		c.Endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
	}
	if c.PublicURL != "" && !strings.HasSuffix(c.PublicURL, "/") {
		c.PublicURL += "/"
	}

	size, err := units.RAMInBytes(c.MaxFileSize)
	if err != nil {
		return fmt.Errorf("max file size %q: %w", c.MaxFileSize, err)
	}
	c.MaxBodySize = size

	return c.Validate()
}

// Validate reports every missing or out-of-range setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Bucket == "" {
		errs = append(errs, errors.New("bucket name is required (R2_BUCKET_NAME)"))
	}
	if c.Endpoint == "" {
		errs = append(errs, errors.New("storage endpoint is required (R2_ACCOUNT_ID or R2_ENDPOINT)"))
	}
	if c.PublicURL == "" {
		errs = append(errs, errors.New("public url is required (R2_PUBLIC_URL)"))
	}
	if c.PartSize <= 0 {
		errs = append(errs, errors.New("part size must be greater than zero"))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, errors.New("upload concurrency must be greater than zero"))
	}
	if c.MaxAttempts <= 0 {
		errs = append(errs, errors.New("backend max attempts must be greater than zero"))
	}
	return errors.Join(errs...)
}

// SlogLevel maps LogLevel onto a slog.Level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ListenAddr is the address the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return ":" + c.Port
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitComma(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
