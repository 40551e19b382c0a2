package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMinimalConfig(t *testing.T) {
	path := writeTempConfig(t, "version: 1\ngeneral:\n  output_dir: ~/downloads\n")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if c.Version != 1 {
		t.Fatalf("expected version 1, got %d", c.Version)
	}
	if c.General.OutputDir == "" {
		t.Fatalf("expected expanded output_dir")
	}
	if c.EffectiveSplit() != 8 {
		t.Fatalf("expected default split 8, got %d", c.EffectiveSplit())
	}
	if c.EffectiveVerifyMode() != ModeAuto {
		t.Fatalf("expected default verify mode auto, got %s", c.EffectiveVerifyMode())
	}
}

func TestLoadRejectsMissingOutputDir(t *testing.T) {
	path := writeTempConfig(t, "version: 1\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing output_dir")
	}
}

func TestLoadRejectsBadVerifyMode(t *testing.T) {
	path := writeTempConfig(t, "version: 1\ngeneral:\n  output_dir: /tmp/x\nverify:\n  mode: maybe\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid verify.mode")
	}
}

func TestLoadRejectsUnsupportedVersion(t *testing.T) {
	path := writeTempConfig(t, "version: 2\ngeneral:\n  output_dir: /tmp/x\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestEffectiveFilesDefaultsToCPU(t *testing.T) {
	var c Config
	if got := c.EffectiveFiles(4); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
	c.Concurrency.Files = 2
	if got := c.EffectiveFiles(4); got != 2 {
		t.Fatalf("expected override 2, got %d", got)
	}
}
