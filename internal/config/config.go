// Package config loads gtfsreload settings from defaults, a yaml file, the
// environment and command line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	DefaultFile   = "gtfsreload.yaml"
	DefaultSource = "https://www.transitchicago.com/downloads/sch_data/google_transit.zip"
	EnvPrefix     = "GTFSRELOAD_"
)

// Drivers must match the oneof rule on StoreConfig.Driver.
var Drivers = []string{"sqlite", "postgres", "modernc"}

type Config struct {
	Store           StoreConfig  `koanf:"store"`
	Source          SourceConfig `koanf:"source"`
	WorkDir         string       `koanf:"work_dir"`
	ClipFeature     string       `koanf:"clip_feature"`
	CreateSchema    bool         `koanf:"create_schema"`
	Validate        bool         `koanf:"validate"`
	MetricsTextfile string       `koanf:"metrics_textfile"`
	LogLevel        string       `koanf:"log_level"`
}

type StoreConfig struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite postgres modernc"`
	DSN    string `koanf:"dsn" validate:"required"`
}

type SourceConfig struct {
	URL string   `koanf:"url" validate:"required"`
	S3  S3Config `koanf:"s3"`
}

type S3Config struct {
	Region          string `koanf:"region"`
	Endpoint        string `koanf:"endpoint" validate:"omitempty,url"`
	PathStyle       bool   `koanf:"path_style"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
}

var defaults = map[string]any{
	"store.driver":                "sqlite",
	"store.dsn":                   "gtfs.db",
	"source.url":                  DefaultSource,
	"source.s3.region":            "us-east-1",
	"source.s3.endpoint":          "",
	"source.s3.path_style":        false,
	"source.s3.access_key_id":     "",
	"source.s3.secret_access_key": "",
	"work_dir":                    "",
	"clip_feature":                "",
	"create_schema":               false,
	"validate":                    false,
	"metrics_textfile":            "",
	"log_level":                   "info",
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"source":           "source.url",
	"driver":           "store.driver",
	"dsn":              "store.dsn",
	"work-dir":         "work_dir",
	"clip-feature":     "clip_feature",
	"create-schema":    "create_schema",
	"validate":         "validate",
	"metrics-textfile": "metrics_textfile",
	"log-level":        "log_level",
}

// RegisterFlags defines the flags Load understands on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("source", "", "Feed archive: http(s) URL, s3://bucket/key or local path")
	fs.String("driver", "", "Store driver: "+strings.Join(Drivers, ", "))
	fs.String("dsn", "", "Store connection string or database path")
	fs.String("work-dir", "", "Directory to download the archive into")
	fs.String("clip-feature", "", "GeoJSON file to clip the feed to before loading")
	fs.Bool("create-schema", false, "Create missing tables before loading")
	fs.Bool("validate", false, "Audit references before committing")
	fs.String("metrics-textfile", "", "Write prometheus metrics to this file")
	fs.String("log-level", "", "debug, info, warn or error")
}

// Load layers, lowest first: defaults, the yaml file at cfgFile (or
// gtfsreload.yaml if present), GTFSRELOAD_ environment variables, and flags
// that were explicitly set. A double underscore in an environment variable
// name separates nested keys, so GTFSRELOAD_STORE__DSN sets store.dsn.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			cfgFile = DefaultFile
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) check() error {
	var errs []error
	if err := validator.New().Struct(c); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return level, nil
}
