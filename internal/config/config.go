// Package config loads the storefront binary's configuration from defaults,
// an optional YAML file, STOREFRONT_* environment variables and bound flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: api.base_url is read from
// STOREFRONT_API_BASE_URL.
const EnvPrefix = "STOREFRONT"

var ErrInvalid = errors.New("config: invalid value")

type Config struct {
	API      API     `mapstructure:"api"`
	Cache    Cache   `mapstructure:"cache"`
	Storage  Storage `mapstructure:"storage"`
	Redis    Redis   `mapstructure:"redis"`
	S3       S3      `mapstructure:"s3"`
	Log      Log     `mapstructure:"log"`
	Sentry   Sentry  `mapstructure:"sentry"`
	Server   Server  `mapstructure:"server"`
	Catalog  Catalog `mapstructure:"catalog"`
	Currency string  `mapstructure:"currency"`
	Output   string  `mapstructure:"output"`
}

type API struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	AuthScheme string        `mapstructure:"auth_scheme"`
}

type Cache struct {
	Driver     string        `mapstructure:"driver"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

type Storage struct {
	Driver string `mapstructure:"driver"`
	Dir    string `mapstructure:"dir"`
}

type Redis struct {
	URL string `mapstructure:"url"`
}

type S3 struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	PathStyle bool   `mapstructure:"path_style"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Sentry struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

type Server struct {
	Addr         string        `mapstructure:"addr"`
	CookieSecret string        `mapstructure:"cookie_secret"`
	SecureCookie bool          `mapstructure:"secure_cookie"`
	MaxVisitors  int           `mapstructure:"max_visitors"`
	VisitorTTL   time.Duration `mapstructure:"visitor_ttl"`
	StateTTL     time.Duration `mapstructure:"state_ttl"`
}

type Catalog struct {
	Refresh string `mapstructure:"refresh"`
}

// Defaults lists every key with its default value.
var Defaults = map[string]any{
	"api.base_url":         "https://code-commando.com/api/v1",
	"api.timeout":          15 * time.Second,
	"api.auth_scheme":      "",
	"cache.driver":         "memory",
	"cache.ttl":            5 * time.Minute,
	"cache.max_entries":    1000,
	"storage.driver":       "file",
	"storage.dir":          "",
	"redis.url":            "",
	"s3.bucket":            "",
	"s3.region":            "us-east-1",
	"s3.endpoint":          "",
	"s3.access_key":        "",
	"s3.secret_key":        "",
	"s3.path_style":        false,
	"log.level":            "warn",
	"log.format":           "text",
	"sentry.dsn":           "",
	"sentry.environment":   "development",
	"server.addr":          ":8080",
	"server.cookie_secret": "",
	"server.secure_cookie": false,
	"server.max_visitors":  10000,
	"server.visitor_ttl":   30 * time.Minute,
	"server.state_ttl":     30 * 24 * time.Hour,
	"catalog.refresh":      "@every 5m",
	"currency":             "USD",
	"output":               "text",
}

// Loader reads configuration. Flags bound with BindFlag take precedence over
// the environment, which takes precedence over the file.
type Loader struct {
	v *viper.Viper
}

// NewLoader returns a Loader primed with Defaults and environment lookup.
func NewLoader() *Loader {
	v := viper.New()
	for key, val := range Defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// BindFlag maps a command-line flag onto key.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("%w: no flag for %s", ErrInvalid, key)
	}
	return l.v.BindPFlag(key, flag)
}

// Load reads file, when non-empty, and decodes the merged configuration.
func (l *Loader) Load(file string) (Config, error) {
	if file != "" {
		l.v.SetConfigFile(file)
		if err := l.v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated values and driver requirements.
func (c Config) Validate() error {
	var errs []error

	switch c.Cache.Driver {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			errs = append(errs, fmt.Errorf("%w: cache.driver=redis needs redis.url", ErrInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: cache.driver %q", ErrInvalid, c.Cache.Driver))
	}

	switch c.Storage.Driver {
	case "file", "memory":
	case "redis":
		if c.Redis.URL == "" {
			errs = append(errs, fmt.Errorf("%w: storage.driver=redis needs redis.url", ErrInvalid))
		}
	case "s3":
		if c.S3.Bucket == "" {
			errs = append(errs, fmt.Errorf("%w: storage.driver=s3 needs s3.bucket", ErrInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: storage.driver %q", ErrInvalid, c.Storage.Driver))
	}

	switch c.Output {
	case "text", "json", "yaml":
	default:
		errs = append(errs, fmt.Errorf("%w: output %q", ErrInvalid, c.Output))
	}

	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("%w: cache.ttl must be positive", ErrInvalid))
	}

	return errors.Join(errs...)
}
