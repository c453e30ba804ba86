// Package config loads epubshelf settings from YAML with EPUBSHELF_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Export  ExportConfig  `yaml:"export"`
}

// StorageConfig locates the catalog database, image blobs and temporary exports.
type StorageConfig struct {
	DataDir string      `yaml:"data_dir" validate:"required"`
	TempDir string      `yaml:"temp_dir"`
	Blobs   BlobsConfig `yaml:"blobs"`
}

// BlobsConfig selects where image assets are stored.
type BlobsConfig struct {
	Kind string   `yaml:"kind" validate:"oneof=local s3"`
	S3   S3Config `yaml:"s3"`
}

// S3Config holds the settings for the s3 blob store.
type S3Config struct {
	Bucket          string `yaml:"bucket" validate:"required_if=Enabled true"`
	Region          string `yaml:"region" validate:"required_if=Enabled true"`
	Endpoint        string `yaml:"endpoint" validate:"omitempty,url"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	Prefix          string `yaml:"prefix"`

	// Enabled is derived from BlobsConfig.Kind before validation.
	Enabled bool `yaml:"-"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

type IngestConfig struct {
	MaxEntrySize int64 `yaml:"max_entry_size" validate:"gte=0"`
}

type ExportConfig struct {
	Markdown MarkdownConfig `yaml:"markdown"`
	PDF      PDFConfig      `yaml:"pdf"`
}

type MarkdownConfig struct {
	HeadingStyle string `yaml:"heading_style" validate:"omitempty,oneof=atx setext"`
}

// PDFConfig tunes the PDF renderer. FontPath names an optional UTF-8 TrueType font.
type PDFConfig struct {
	FontPath      string `yaml:"font_path"`
	ImageMaxWidth int    `yaml:"image_max_width" validate:"gte=0"`
	ImageQuality  int    `yaml:"image_quality" validate:"gte=0,lte=100"`
}

// Default returns the built-in configuration.
func Default() *Config {
	dataDir := "epubshelf-data"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".epubshelf")
	}
	return &Config{
		Storage: StorageConfig{
			DataDir: dataDir,
			Blobs:   BlobsConfig{Kind: "local"},
		},
		Logging: LoggingConfig{Level: "info"},
		Ingest:  IngestConfig{MaxEntrySize: 256 << 20},
		Export: ExportConfig{
			Markdown: MarkdownConfig{HeadingStyle: "atx"},
			PDF: PDFConfig{
				ImageMaxWidth: 1200,
				ImageQuality:  85,
			},
		},
	}
}

// Load reads path over the defaults, applies environment overrides and validates
// the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks struct constraints and fills derived defaults.
func (c *Config) Validate() error {
	c.Storage.Blobs.S3.Enabled = c.Storage.Blobs.Kind == "s3"
	if c.Storage.TempDir == "" {
		c.Storage.TempDir = os.TempDir()
	}
	return validator.New().Struct(c)
}

// DatabaseDir is where the catalog database lives.
func (c *Config) DatabaseDir() string {
	return filepath.Join(c.Storage.DataDir, "catalog")
}

// BlobDir is the root of the local blob store.
func (c *Config) BlobDir() string {
	return filepath.Join(c.Storage.DataDir, "blobs")
}

// applyEnvOverrides applies EPUBSHELF_ prefixed environment variables.
func applyEnvOverrides(cfg *Config) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"EPUBSHELF_DATA_DIR", &cfg.Storage.DataDir},
		{"EPUBSHELF_TEMP_DIR", &cfg.Storage.TempDir},
		{"EPUBSHELF_BLOBS_KIND", &cfg.Storage.Blobs.Kind},
		{"EPUBSHELF_S3_BUCKET", &cfg.Storage.Blobs.S3.Bucket},
		{"EPUBSHELF_S3_REGION", &cfg.Storage.Blobs.S3.Region},
		{"EPUBSHELF_S3_ENDPOINT", &cfg.Storage.Blobs.S3.Endpoint},
		{"EPUBSHELF_S3_ACCESS_KEY_ID", &cfg.Storage.Blobs.S3.AccessKeyID},
		{"EPUBSHELF_S3_SECRET_ACCESS_KEY", &cfg.Storage.Blobs.S3.SecretAccessKey},
		{"EPUBSHELF_S3_PREFIX", &cfg.Storage.Blobs.S3.Prefix},
		{"EPUBSHELF_LOG_LEVEL", &cfg.Logging.Level},
		{"EPUBSHELF_PDF_FONT_PATH", &cfg.Export.PDF.FontPath},
		{"EPUBSHELF_MARKDOWN_HEADING_STYLE", &cfg.Export.Markdown.HeadingStyle},
	}
	for _, s := range strs {
		if val := os.Getenv(s.key); val != "" {
			*s.dst = val
		}
	}

	var errs []error
	if val := os.Getenv("EPUBSHELF_S3_USE_PATH_STYLE"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			errs = append(errs, fmt.Errorf("EPUBSHELF_S3_USE_PATH_STYLE: %w", err))
		}
		cfg.Storage.Blobs.S3.UsePathStyle = b
	}
	if val := os.Getenv("EPUBSHELF_MAX_ENTRY_SIZE"); val != "" {
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("EPUBSHELF_MAX_ENTRY_SIZE: %w", err))
		}
		cfg.Ingest.MaxEntrySize = n
	}
	return errors.Join(errs...)
}
