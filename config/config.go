// Package config loads the browser's YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/anacrolix/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Address the HTTP API listens on. Empty disables it.
	HTTPAddr string `yaml:"http_addr"`
	// Network interfaces to discover servers on. The system's default
	// multicast interface if empty.
	Interfaces []string `yaml:"interfaces"`
	// Objects requested per Browse call.
	PageSize int `yaml:"page_size"`
	// Browse and destroy calls in flight across all servers.
	Workers int `yaml:"workers"`
	// MX header of SSDP searches, in seconds.
	MX int `yaml:"mx"`
	// How often to repeat the SSDP search.
	SearchInterval time.Duration `yaml:"search_interval"`
	// Timeout of each HTTP request made to a server.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ThumbnailSize  uint          `yaml:"thumbnail_size"`
	// One of debug, info, warning, error.
	LogLevel string `yaml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		HTTPAddr:       ":8080",
		PageSize:       50,
		Workers:        4,
		MX:             2,
		SearchInterval: 5 * time.Minute,
		RequestTimeout: 30 * time.Second,
		ThumbnailSize:  160,
		LogLevel:       "info",
	}
}

// Reads the file at path, creating it with the defaults if it doesn't
// exist. Fields missing from the file take their default values.
func LoadConfig(path string) (cfg Config, err error) {
	cfg = DefaultConfig()
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Default.WithNames("config").Printf("creating default config at %s", path)
		err = cfg.Save(path)
		return
	}
	if err != nil {
		return
	}
	var fromFile Config
	if err = yaml.Unmarshal(b, &fromFile); err != nil {
		err = fmt.Errorf("parsing %s: %w", path, err)
		return
	}
	cfg.Merge(fromFile)
	err = cfg.Validate()
	return
}

// Copies the set fields of other over me.
func (me *Config) Merge(other Config) {
	if other.HTTPAddr != "" {
		me.HTTPAddr = other.HTTPAddr
	}
	if len(other.Interfaces) != 0 {
		me.Interfaces = other.Interfaces
	}
	if other.PageSize != 0 {
		me.PageSize = other.PageSize
	}
	if other.Workers != 0 {
		me.Workers = other.Workers
	}
	if other.MX != 0 {
		me.MX = other.MX
	}
	if other.SearchInterval != 0 {
		me.SearchInterval = other.SearchInterval
	}
	if other.RequestTimeout != 0 {
		me.RequestTimeout = other.RequestTimeout
	}
	if other.ThumbnailSize != 0 {
		me.ThumbnailSize = other.ThumbnailSize
	}
	if other.LogLevel != "" {
		me.LogLevel = other.LogLevel
	}
}

func (me Config) Validate() error {
	if me.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", me.Workers)
	}
	if me.PageSize < 1 {
		return fmt.Errorf("page_size must be positive, got %d", me.PageSize)
	}
	if me.MX < 1 || me.MX > 5 {
		return fmt.Errorf("mx must be between 1 and 5, got %d", me.MX)
	}
	if _, err := me.Level(); err != nil {
		return err
	}
	return nil
}

// The minimum level of log messages.
func (me Config) Level() (log.Level, error) {
	switch me.LogLevel {
	case "debug":
		return log.Debug, nil
	case "", "info":
		return log.Info, nil
	case "warning", "warn":
		return log.Warning, nil
	case "error":
		return log.Error, nil
	}
	return log.Info, fmt.Errorf("unknown log level %q", me.LogLevel)
}

func (me Config) Save(path string) error {
	b, err := yaml.Marshal(me)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, b, 0o644)
}
