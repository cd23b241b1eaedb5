package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/image-trimmer/internal/batch"
	"github.com/ironsheep/image-trimmer/internal/imaging"
	"github.com/ironsheep/image-trimmer/internal/oledb"
)

// Environment variables read by ApplyEnv.
const (
	EnvLogLevel = "IMAGE_TRIMMER_LOG_LEVEL"
	EnvWorkers  = "IMAGE_TRIMMER_WORKERS"
)

// Config holds the application configuration
type Config struct {
	Threshold    ThresholdConfig    `yaml:"threshold"`
	Transparency TransparencyConfig `yaml:"transparency"`
	Output       OutputConfig       `yaml:"output"`
	Batch        BatchConfig        `yaml:"batch"`
	Database     DatabaseConfig     `yaml:"database"`
	LogLevel     string             `yaml:"log_level"`
}

// ThresholdConfig holds the background threshold. Background, when set,
// takes precedence over the individual channels.
type ThresholdConfig struct {
	R          int    `yaml:"r"`
	G          int    `yaml:"g"`
	B          int    `yaml:"b"`
	Background string `yaml:"background,omitempty"`
}

// TransparencyConfig holds the optional post-trim transparency pass
type TransparencyConfig struct {
	Enabled bool `yaml:"enabled"`
	From    int  `yaml:"from"`
	To      int  `yaml:"to"`
}

// OutputConfig holds configuration for output files
type OutputConfig struct {
	Format   string `yaml:"format"`
	Prefix   string `yaml:"prefix"`
	Quality  int    `yaml:"quality"`
	Lossless bool   `yaml:"lossless"`
}

// BatchConfig holds configuration for batch runs
type BatchConfig struct {
	Workers int `yaml:"workers"`
}

// DatabaseConfig holds the Access database connection settings
type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	DSN        string `yaml:"dsn"`
	Query      string `yaml:"query"`
	IDColumn   string `yaml:"id_column"`
	BlobColumn string `yaml:"blob_column"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Threshold: ThresholdConfig{
			R: int(imaging.DefaultThreshold.R),
			G: int(imaging.DefaultThreshold.G),
			B: int(imaging.DefaultThreshold.B),
		},
		Transparency: TransparencyConfig{
			Enabled: false,
			From:    int(imaging.DefaultTransparentFrom),
			To:      int(imaging.DefaultTransparentTo),
		},
		Output: OutputConfig{
			Format:  imaging.DefaultFormat,
			Prefix:  "image_",
			Quality: 90,
		},
		Batch: BatchConfig{
			Workers: runtime.NumCPU(),
		},
		Database: DatabaseConfig{
			Driver:     oledb.DefaultDriver,
			DSN:        oledb.DefaultDSN,
			Query:      oledb.DefaultQuery,
			IDColumn:   oledb.DefaultIDColumn,
			BlobColumn: oledb.DefaultBlobColumn,
		},
		LogLevel: "info",
	}
}

// LoadFromFile loads configuration from a YAML file. Keys missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load resolves the configuration used by the commands. An explicit path
// must exist. With an empty path the file at GetConfigPath is used when
// present, otherwise the defaults. Environment overrides are applied and the
// result is validated.
func Load(path string) (*Config, error) {
	var (
		c   *Config
		err error
	)
	switch {
	case path != "":
		c, err = LoadFromFile(path)
	default:
		if _, statErr := os.Stat(GetConfigPath()); statErr == nil {
			c, err = LoadFromFile(GetConfigPath())
		} else {
			c = Default()
		}
	}
	if err != nil {
		return nil, err
	}

	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	for _, ch := range []struct {
		name  string
		value int
	}{
		{"threshold.r", c.Threshold.R},
		{"threshold.g", c.Threshold.G},
		{"threshold.b", c.Threshold.B},
		{"transparency.from", c.Transparency.From},
		{"transparency.to", c.Transparency.To},
	} {
		if ch.value < 0 || ch.value > 255 {
			return fmt.Errorf("%s must be between 0 and 255", ch.name)
		}
	}

	if c.Threshold.Background != "" {
		if _, err := imaging.ParseThreshold(c.Threshold.Background); err != nil {
			return fmt.Errorf("threshold.background: %w", err)
		}
	}

	if !isSupportedFormat(c.Output.Format) {
		return fmt.Errorf("output.format %q is not one of %s",
			c.Output.Format, strings.Join(imaging.SupportedFormats(), ", "))
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if strings.ContainsAny(c.Output.Prefix, `/\`) {
		return fmt.Errorf("output.prefix must not contain path separators")
	}

	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be positive")
	}

	if c.Database.IDColumn == "" || c.Database.BlobColumn == "" {
		return fmt.Errorf("database.id_column and database.blob_column cannot be empty")
	}

	return nil
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		c.Batch.Workers = n
	}
	return nil
}

// Debug reports whether debug logging is enabled.
func (c *Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}

// BackgroundThreshold returns the threshold section as an imaging.Threshold.
// An unparsable background colour falls back to the channel values; Validate
// reports it.
func (c *Config) BackgroundThreshold() imaging.Threshold {
	if c.Threshold.Background != "" {
		if t, err := imaging.ParseThreshold(c.Threshold.Background); err == nil {
			return t
		}
	}
	return imaging.Threshold{
		R: clampByte(c.Threshold.R),
		G: clampByte(c.Threshold.G),
		B: clampByte(c.Threshold.B),
	}
}

// SaveOptions returns the output settings as imaging.SaveOptions.
func (c *Config) SaveOptions() imaging.SaveOptions {
	return imaging.SaveOptions{
		Format:   c.Output.Format,
		Quality:  c.Output.Quality,
		Lossless: c.Output.Lossless,
	}
}

// BatchOptions converts the configuration into batch runner settings.
func (c *Config) BatchOptions(progress batch.ProgressFunc) batch.Options {
	from, to := c.TransparentRange()
	return batch.Options{
		Threshold:       c.BackgroundThreshold(),
		Transparency:    c.Transparency.Enabled,
		TransparentFrom: from,
		TransparentTo:   to,
		Save:            c.SaveOptions(),
		Prefix:          c.Output.Prefix,
		Workers:         c.Batch.Workers,
		Progress:        progress,
	}
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "image-trimmer", "config.yaml")
}

func isSupportedFormat(format string) bool {
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	for _, f := range imaging.SupportedFormats() {
		if f == format {
			return true
		}
	}
	return false
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// TransparentRange returns the transparency range as bytes.
func (c *Config) TransparentRange() (from, to uint8) {
	return clampByte(c.Transparency.From), clampByte(c.Transparency.To)
}
