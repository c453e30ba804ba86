package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yuanying/epubshelf/internal/epubtest"
)

// run executes the CLI against dataDir and returns stdout.
func run(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--data-dir", dataDir, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeEPUB(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "dracula.epub")
	if err := os.WriteFile(p, epubtest.Build(t, epubtest.Dracula()), 0o644); err != nil {
		t.Fatalf("failed to write epub: %v", err)
	}
	return p
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	dataDir := t.TempDir()
	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--data-dir", dataDir, "--log-level", "WARN"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Storage.DataDir != dataDir {
		t.Errorf("DataDir = %q, want %q", cfg.Storage.DataDir, dataDir)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestLoadConfig_InvalidLogLevel(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--log-level", "chatty"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	if _, err := loadConfig(cmd); err == nil {
		t.Fatal("loadConfig() error = nil, want error")
	}
}

func TestExportCmd_Defaults(t *testing.T) {
	cmd := newExportCmd()
	if got, _ := cmd.Flags().GetString("format"); got != "markdown" {
		t.Errorf("format = %q, want markdown", got)
	}
	if got, _ := cmd.Flags().GetString("mode"); got != "single" {
		t.Errorf("mode = %q, want single", got)
	}
	if cmd.Flags().ShorthandLookup("o") == nil {
		t.Error("expected -o shorthand for --output")
	}
}

func TestOutputPath(t *testing.T) {
	dir := t.TempDir()
	if got := outputPath("", "Dracula.pdf"); got != "Dracula.pdf" {
		t.Errorf("outputPath(empty) = %q", got)
	}
	if got := outputPath(dir, "Dracula.pdf"); got != filepath.Join(dir, "Dracula.pdf") {
		t.Errorf("outputPath(dir) = %q", got)
	}
	file := filepath.Join(dir, "custom.pdf")
	if got := outputPath(file, "Dracula.pdf"); got != file {
		t.Errorf("outputPath(file) = %q", got)
	}
}

func TestCLI_ImportListExportDelete(t *testing.T) {
	t.Setenv("EPUBSHELF_TEMP_DIR", t.TempDir())
	dataDir := t.TempDir()
	epubPath := writeEPUB(t)

	out, err := run(t, dataDir, "import", epubPath)
	if err != nil {
		t.Fatalf("import error = %v", err)
	}
	fields := strings.Split(strings.TrimSpace(out), "\t")
	if len(fields) != 3 || fields[1] != "Dracula" || fields[2] != "3 chapters" {
		t.Fatalf("import output = %q", out)
	}
	id := fields[0]

	if _, err := run(t, dataDir, "import", epubPath); err == nil {
		t.Error("second import should fail as a duplicate")
	}

	out, err = run(t, dataDir, "list")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "Bram Stoker") {
		t.Errorf("list output = %q", out)
	}

	out, err = run(t, dataDir, "show", id)
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	if !strings.Contains(out, "Title:     Dracula") || !strings.Contains(out, "  Mina Murray's Journal [1]") {
		t.Errorf("show output = %q", out)
	}

	out, err = run(t, dataDir, "chapter", id, "2")
	if err != nil {
		t.Fatalf("chapter error = %v", err)
	}
	if !strings.Contains(out, "25 April.") {
		t.Errorf("chapter output = %q", out)
	}
	if _, err := run(t, dataDir, "chapter", id, "7"); err == nil {
		t.Error("chapter out of range should fail")
	}

	outDir := t.TempDir()
	for _, args := range [][]string{
		{"--format", "markdown"},
		{"--format", "markdown", "--mode", "chapters"},
		{"--format", "pdf"},
	} {
		out, err = run(t, dataDir, append([]string{"export", id, "-o", outDir}, args...)...)
		if err != nil {
			t.Fatalf("export %v error = %v", args, err)
		}
	}
	for _, name := range []string{"Dracula_single.md", "Dracula_chapters.zip", "Dracula.pdf"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
	open := strings.LastIndex(out, "(")
	if open < 0 {
		t.Fatalf("pdf export output = %q, want a page count", out)
	}
	var pages int
	if _, err := fmt.Sscanf(out[open:], "(%d pages)", &pages); err != nil {
		t.Fatalf("pdf export output = %q: %v", out, err)
	}
	// Title page, contents and three chapters.
	if pages < 5 {
		t.Errorf("reported pages = %d, want at least 5", pages)
	}

	if _, err := run(t, dataDir, "export", id, "--format", "docx"); err == nil {
		t.Error("unsupported format should fail")
	}

	if _, err := run(t, dataDir, "delete", id); err != nil {
		t.Fatalf("delete error = %v", err)
	}
	if _, err := run(t, dataDir, "show", id); err == nil {
		t.Error("show after delete should fail")
	}
}
