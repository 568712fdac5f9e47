// Package config loads the server configuration from a YAML file, a .env
// file and the environment, in increasing order of precedence.
package config

import (
	"annotation-server/hub"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListen    = ":3002"
	DefaultLogLevel  = "info"
	DefaultFrameRate = 60
	DefaultZoom      = 14
)

type (
	Config struct {
		Listen     string            `yaml:"listen"`
		LogLevel   string            `yaml:"log_level"`
		FrameRate  int               `yaml:"frame_rate"`
		Storage    Storage           `yaml:"storage"`
		Projection Projection        `yaml:"projection"`
		Managers   []hub.ManagerSpec `yaml:"managers"`

		path string
	}

	// Storage selects the snapshot store. Type is one of memory,
	// filesystem, sqlite or s3.
	Storage struct {
		Type           string `yaml:"type"`
		LocalPath      string `yaml:"local_path"`
		DataSourceName string `yaml:"data_source_name"`
		S3Bucket       string `yaml:"s3_bucket"`
	}

	// Projection configures the screen projection drags are computed in.
	Projection struct {
		Origin [2]float64 `yaml:"origin"`
		Zoom   float64    `yaml:"zoom"`
	}
)

func newDefault() *Config {
	return &Config{
		Listen:    DefaultListen,
		LogLevel:  DefaultLogLevel,
		FrameRate: DefaultFrameRate,
		Storage:   Storage{Type: "memory"},
		Projection: Projection{
			Zoom: DefaultZoom,
		},
	}
}

// LoadDotEnv loads a .env file from the working directory if there is one.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found")
	}
}

// Load reads path, if not empty, and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := newDefault()
	cfg.path = path

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path is the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

func (c *Config) applyEnv() {
	if val := os.Getenv("LISTEN_ADDR"); val != "" {
		c.Listen = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("FRAME_RATE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.FrameRate = i
		} else {
			logrus.WithField("value", val).Warn("Ignoring invalid FRAME_RATE")
		}
	}
	if val := os.Getenv("STORAGE_TYPE"); val != "" {
		c.Storage.Type = val
	}
	if val := os.Getenv("LOCAL_STORAGE_PATH"); val != "" {
		c.Storage.LocalPath = val
	}
	if val := os.Getenv("DATA_SOURCE_NAME"); val != "" {
		c.Storage.DataSourceName = val
	}
	if val := os.Getenv("S3_BUCKET_NAME"); val != "" {
		c.Storage.S3Bucket = val
	}
}

// Validate checks the manager list and the value ranges.
func (c *Config) Validate() error {
	if c.FrameRate <= 0 {
		return fmt.Errorf("frame_rate must be positive, got %d", c.FrameRate)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Managers))
	var errs []error
	for i, m := range c.Managers {
		if m.ID == "" {
			errs = append(errs, fmt.Errorf("managers[%d]: id is required", i))
			continue
		}
		if _, dup := seen[m.ID]; dup {
			errs = append(errs, fmt.Errorf("managers[%d]: duplicate id %q", i, m.ID))
		}
		seen[m.ID] = struct{}{}
		if err := m.Style.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("managers[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// OriginPoint returns the projection origin as (lon, lat).
func (p Projection) OriginPoint() orb.Point {
	return orb.Point(p.Origin)
}
