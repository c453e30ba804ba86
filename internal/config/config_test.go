package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Blobs.Kind != "local" {
		t.Errorf("Blobs.Kind = %q, want local", cfg.Storage.Blobs.Kind)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Storage.TempDir == "" {
		t.Error("TempDir should default to the system temp dir")
	}
	if cfg.Export.Markdown.HeadingStyle != "atx" {
		t.Errorf("HeadingStyle = %q, want atx", cfg.Export.Markdown.HeadingStyle)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dataDir := t.TempDir()
	p := writeConfig(t, `
storage:
  data_dir: `+dataDir+`
logging:
  level: debug
export:
  pdf:
    image_max_width: 800
`)
	t.Setenv("EPUBSHELF_LOG_LEVEL", "warn")
	t.Setenv("EPUBSHELF_MAX_ENTRY_SIZE", "1024")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.DataDir != dataDir {
		t.Errorf("DataDir = %q, want %q", cfg.Storage.DataDir, dataDir)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want env override warn", cfg.Logging.Level)
	}
	if cfg.Ingest.MaxEntrySize != 1024 {
		t.Errorf("MaxEntrySize = %d, want 1024", cfg.Ingest.MaxEntrySize)
	}
	if cfg.Export.PDF.ImageMaxWidth != 800 || cfg.Export.PDF.ImageQuality != 85 {
		t.Errorf("PDF = %+v, want file value kept with default quality", cfg.Export.PDF)
	}
	if cfg.DatabaseDir() != filepath.Join(dataDir, "catalog") {
		t.Errorf("DatabaseDir() = %q", cfg.DatabaseDir())
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{name: "unknown blob kind", content: "storage:\n  blobs:\n    kind: ftp\n"},
		{name: "s3 without bucket", content: "storage:\n  blobs:\n    kind: s3\n    s3:\n      region: eu-west-1\n"},
		{name: "bad log level", content: "logging:\n  level: loud\n"},
		{name: "quality out of range", content: "export:\n  pdf:\n    image_quality: 101\n"},
		{name: "bad heading style", content: "export:\n  markdown:\n    heading_style: underline\n"},
		{name: "bad yaml", content: "storage: [\n"},
		{name: "bad env bool", content: "", env: map[string]string{"EPUBSHELF_S3_USE_PATH_STYLE": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("Load() error = nil, want error")
			}
		})
	}
}

func TestLoad_S3(t *testing.T) {
	p := writeConfig(t, `
storage:
  blobs:
    kind: s3
    s3:
      bucket: books
      region: us-east-1
      endpoint: http://localhost:9000
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Storage.Blobs.S3.Enabled {
		t.Error("S3.Enabled = false, want true")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() error = nil, want error")
	}
}
