package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override, e.g. DANZO_CONNECTIONS.
const EnvPrefix = "DANZO"

// DefaultFile is read when present in the working directory and no file is named.
const DefaultFile = ".danzo.yaml"

// Config holds every tunable of the CLI. Layering order is defaults, YAML file, .env and
// environment, then flags set on the command line.
type Config struct {
	Connections   int           `yaml:"connections" split_words:"true" validate:"gte=0,lte=64"`
	Workers       int           `yaml:"workers" split_words:"true" validate:"gte=1"`
	Retries       int           `yaml:"retries" split_words:"true" validate:"gte=0"`
	ChunkSize     Size          `yaml:"chunk_size" split_words:"true" validate:"gte=0"`
	BufferSize    Size          `yaml:"buffer_size" split_words:"true" validate:"gte=0"`
	Timeout       time.Duration `yaml:"timeout" split_words:"true" validate:"gte=0"`
	KATimeout     time.Duration `yaml:"keep_alive_timeout" split_words:"true" validate:"gte=0"`
	UserAgent     string        `yaml:"user_agent" split_words:"true"`
	Proxy         string        `yaml:"proxy" split_words:"true"`
	ProxyUsername string        `yaml:"proxy_username" split_words:"true"`
	ProxyPassword string        `yaml:"proxy_password" split_words:"true"`
	Headers       []string      `yaml:"headers" split_words:"true"`
	SavePath      string        `yaml:"save_path" split_words:"true"`
	MetricsAddr   string        `yaml:"metrics_addr" split_words:"true" validate:"omitempty,hostname_port"`
	Debug         bool          `yaml:"debug" split_words:"true"`
	LogFile       bool          `yaml:"log_file" split_words:"true"`
}

func Default() Config {
	return Config{
		Connections: 8,
		Workers:     1,
		Retries:     3,
		ChunkSize:   2 * 1024 * 1024,
		BufferSize:  64 * 1024,
		Timeout:     3 * time.Minute,
		KATimeout:   90 * time.Second,
		UserAgent:   "danzo/1337",
	}
}

// Size is a byte count that reads "2MiB", "512KB" or a plain number from YAML and env.
type Size int64

func ParseSize(s string) (Size, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return Size(n), nil
}

func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseSize(value.Value)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Decode implements envconfig.Decoder.
func (s *Size) Decode(value string) error {
	parsed, err := ParseSize(value)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// LoadFromFile applies the YAML file at path over cfg. Keys absent from the file keep
// their current values.
func LoadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	loaded := *cfg
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	*cfg = loaded
	return nil
}

// LoadFromEnv loads an optional .env file into the process environment, then applies
// DANZO_* variables over cfg.
func LoadFromEnv(cfg *Config, dotenv string) error {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", dotenv, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("failed to process environment variables: %w", err)
	}
	return nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Load builds the effective configuration from defaults, the named YAML file (or
// DefaultFile when it exists), .env and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := LoadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := LoadFromEnv(&cfg, ".env"); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
