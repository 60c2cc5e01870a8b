package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultAPIBaseURL is the last-resort API address. Release builds may set it with
// -ldflags "-X github.com/habedi/uniboard/config.DefaultAPIBaseURL=...".
var DefaultAPIBaseURL = "http://localhost:8000"

// Source names the tier an API base URL came from.
type Source string

const (
	SourceFlag    Source = "flag"
	SourceFile    Source = "config file"
	SourceEnv     Source = "environment"
	SourceDefault Source = "default"
)

// Env holds settings read from the process environment.
type Env struct {
	APIBaseURL      string        `env:"UNIBOARD_API_BASE_URL"`
	Timeout         time.Duration `env:"UNIBOARD_TIMEOUT,default=10s"`
	Port            int           `env:"PORT,default=3000"`
	StaticDir       string        `env:"UNIBOARD_STATIC_DIR,default=dist"`
	RequestsPerMin  int           `env:"UNIBOARD_RATE_LIMIT,default=600"`
	UploadRateLimit int64         `env:"UNIBOARD_UPLOAD_RATE_LIMIT,default=0"`
	AllowedOrigins  []string      `env:"UNIBOARD_CORS_ALLOWED_ORIGINS"`
}

// File is the optional YAML configuration file.
type File struct {
	APIBaseURL          string `yaml:"api_base_url" validate:"omitempty,url"`
	Timeout             string `yaml:"timeout"`
	UploadRateLimit     int64  `yaml:"upload_rate_limit" validate:"gte=0"`
	SingleFlightRefresh bool   `yaml:"single_flight_refresh"`
}

// Config is the resolved runtime configuration.
type Config struct {
	APIBaseURL          string
	APIBaseURLSource    Source
	Timeout             time.Duration
	Port                int
	StaticDir           string
	RequestsPerMin      int
	UploadRateLimit     int64 // bytes per second, 0 for unlimited
	SingleFlightRefresh bool
	AllowedOrigins      []string
}

// Options carries values that take precedence over the environment.
type Options struct {
	APIBaseURL string // from --api-url
	ConfigFile string // empty means DefaultPath()
	EnvFile    string // empty means ".env"
	// Lookuper replaces the process environment; used in tests.
	Lookuper envconfig.Lookuper
}

// DefaultPath returns ~/.uniboard/config.yaml.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".uniboard", "config.yaml")
}

// Load resolves the configuration. The API base URL is taken from the
// --api-url flag, then the config file, then UNIBOARD_API_BASE_URL, then
// DefaultAPIBaseURL.
func Load(ctx context.Context, opts Options) (*Config, error) {
	if opts.Lookuper == nil {
		loadDotEnv(opts.EnvFile)
	}

	var env Env
	ec := &envconfig.Config{Target: &env, Lookuper: opts.Lookuper}
	if ec.Lookuper == nil {
		ec.Lookuper = envconfig.OsLookuper()
	}
	if err := envconfig.ProcessWith(ctx, ec); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	path := opts.ConfigFile
	if path == "" {
		path = DefaultPath()
	}
	file, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Timeout:         env.Timeout,
		Port:            env.Port,
		StaticDir:       env.StaticDir,
		RequestsPerMin:  env.RequestsPerMin,
		UploadRateLimit: env.UploadRateLimit,
		AllowedOrigins:  env.AllowedOrigins,
	}

	runtime, runtimeSource := opts.APIBaseURL, SourceFlag
	if strings.TrimSpace(runtime) == "" && file != nil {
		runtime, runtimeSource = file.APIBaseURL, SourceFile
	}
	cfg.APIBaseURL, cfg.APIBaseURLSource = ResolveBaseURL(runtime, env.APIBaseURL)
	if cfg.APIBaseURLSource == SourceFlag {
		cfg.APIBaseURLSource = runtimeSource
	}

	if file != nil {
		if file.Timeout != "" {
			d, err := time.ParseDuration(file.Timeout)
			if err != nil || d <= 0 {
				return nil, fmt.Errorf("invalid timeout %q in %s", file.Timeout, path)
			}
			cfg.Timeout = d
		}
		if file.UploadRateLimit > 0 {
			cfg.UploadRateLimit = file.UploadRateLimit
		}
		cfg.SingleFlightRefresh = file.SingleFlightRefresh
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %s", cfg.Timeout)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}

	log.Debug().Str("api_base_url", cfg.APIBaseURL).Str("source", string(cfg.APIBaseURLSource)).
		Dur("timeout", cfg.Timeout).Msg("Configuration loaded")
	return cfg, nil
}

// ResolveBaseURL applies the three-tier precedence: a runtime value wins over
// the environment value, which wins over DefaultAPIBaseURL. Blank values are
// skipped. A trailing slash is removed.
func ResolveBaseURL(runtime, env string) (string, Source) {
	if v := strings.TrimSpace(runtime); v != "" {
		return strings.TrimRight(v, "/"), SourceFlag
	}
	if v := strings.TrimSpace(env); v != "" {
		return strings.TrimRight(v, "/"), SourceEnv
	}
	return strings.TrimRight(DefaultAPIBaseURL, "/"), SourceDefault
}

// LoadFile reads and validates the YAML config file. A missing file is not an error.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &f, nil
}

// SaveFile writes f to path, creating the directory if needed.
func SaveFile(path string, f File) error {
	if err := validator.New().Struct(f); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func loadDotEnv(path string) {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("Failed to load env file")
	}
}
