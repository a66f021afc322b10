// Package config loads the optional glossary.yaml settings file.
//
// Values are resolved in this order, later ones winning:
//   - built-in defaults
//   - glossary.yaml next to the executable, or the file given with --config
//   - the GLOSSARY_DB environment variable (database path only)
//   - command line flags, applied by the caller
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/digitalsleuth/dfir-glossary/pkg/dictionary"
)

// FileName is the settings file looked up beside the executable.
const FileName = "glossary.yaml"

// EnvDatabase overrides the database path.
const EnvDatabase = "GLOSSARY_DB"

// Config holds every setting the command line tool understands.
type Config struct {
	// Database is the path of the glossary SQLite file.
	// Default: glossdb.sqlite beside the executable
	Database string `yaml:"database"`

	Log      LogConfig      `yaml:"log"`
	Download DownloadConfig `yaml:"download"`
	Scan     ScanConfig     `yaml:"scan"`
}

// LogConfig configures diagnostic output on stderr.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: warn
	Level string `yaml:"level"`

	// Format is console or json. Default: console
	Format string `yaml:"format"`
}

// DownloadConfig names the GitHub repository publishing the database.
type DownloadConfig struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`

	// APIBase is the GitHub API endpoint. Default: https://api.github.com
	APIBase string `yaml:"api_base"`
}

// ScanConfig configures document scanning.
type ScanConfig struct {
	// Workers is the number of documents processed at once. Default: 4
	Workers int `yaml:"workers"`

	// Timeout bounds each HTTP fetch. Default: 30s
	Timeout string `yaml:"timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DefaultDatabasePath(),
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
		Download: DownloadConfig{
			Owner:   dictionary.DefaultOwner,
			Repo:    dictionary.DefaultRepo,
			APIBase: dictionary.DefaultAPIBase,
		},
		Scan: ScanConfig{
			Workers: 4,
			Timeout: "30s",
		},
	}
}

// DefaultDatabasePath returns glossdb.sqlite in the executable's directory,
// falling back to the working directory when that cannot be determined.
func DefaultDatabasePath() string {
	exe, err := os.Executable()
	if err != nil {
		return dictionary.DatabaseFileName
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), dictionary.DatabaseFileName)
}

// Load builds the configuration. An explicit path must exist; without one,
// glossary.yaml beside the executable is read if present.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		exe, err := os.Executable()
		if err == nil {
			path = filepath.Join(filepath.Dir(exe), FileName)
		}
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load config %s: %w", path, err)
			}
		}
	}

	if env := os.Getenv(EnvDatabase); env != "" {
		cfg.Database = env
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges a YAML file into c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// Validate checks values that cannot be fixed up later.
func (c *Config) Validate() error {
	if c.Database == "" {
		return errors.New("database path is empty")
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan.workers must be at least 1, got %d", c.Scan.Workers)
	}
	if _, err := c.ScanTimeout(); err != nil {
		return err
	}
	return nil
}

// ScanTimeout parses Scan.Timeout.
func (c *Config) ScanTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Scan.Timeout)
	if err != nil {
		return 0, fmt.Errorf("scan.timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("scan.timeout must be positive, got %s", c.Scan.Timeout)
	}
	return d, nil
}
