// Package config loads the YAML configuration of the command line tool.
//
// The file may reference environment variables as ${NAME}. Variables are read from the process
// environment and from an optional .env file next to the configuration; the process environment
// wins.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jamespfennell/gtfsrt/extensions/nyct"
	"github.com/jamespfennell/gtfsrt/internal/logging"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	LogLevelEnv  = "GTFSRT_LOG_LEVEL"
	StorePathEnv = "GTFSRT_STORE_PATH"
)

// Source is a feed source: a stream of messages merged into one entity table.
type Source struct {
	Name string `yaml:"name" validate:"required"`
	// Extension is the agency extension applied after parsing: nyct or nyctbustrips.
	Extension string             `yaml:"extension" validate:"omitempty,oneof=nyct nyctbustrips"`
	NYCT      nyct.ExtensionOpts `yaml:"nyct"`
	// Timezone is used to interpret trip start dates.
	Timezone        string `yaml:"timezone" validate:"omitempty,timezone"`
	DefaultLanguage string `yaml:"defaultLanguage" validate:"omitempty,bcp47_language_tag"`
	// StaticGTFS is the path of the GTFS static archive whose stop times anchor predictions.
	StaticGTFS string `yaml:"staticGTFS"`
	// Files are GTFS Realtime messages applied in order by the merge command.
	Files []string `yaml:"files"`
}

// Location returns the timezone of the source, UTC if none is configured.
func (s Source) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

type StoreConfig struct {
	// Path of the SQLite database holding merged snapshots. Empty disables persistence.
	Path string `yaml:"path"`
}

// Config is the root configuration structure
type Config struct {
	Sources []Source       `yaml:"sources" validate:"unique=Name,dive"`
	Logging logging.Config `yaml:"logging"`
	Store   StoreConfig    `yaml:"store"`
}

// Default is the configuration used when no file is given.
func Default() *Config {
	return &Config{Logging: logging.DefaultConfig()}
}

// Load reads and validates the configuration file.
func Load(path string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses and validates configuration content, applying environment overrides.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if level := os.Getenv(LogLevelEnv); level != "" {
		cfg.Logging.Level = level
	}
	if path := os.Getenv(StorePathEnv); path != "" {
		cfg.Store.Path = path
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Source returns the source with the given name.
func (c *Config) Source(name string) (Source, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}
