package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadWithFile_DefaultPathNoFile(t *testing.T) {
	clearLexorchEnv(t)

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("UserHomeDir: %v", err)
	}
	configDir := filepath.Join(home, ".config", "lexorch")
	if _, err := os.Stat(filepath.Join(configDir, "config.yaml")); err == nil {
		t.Skip("a real config file exists at the default path; skipping to avoid reading real secrets")
	}

	cfg, err := LoadWithFile("")
	if err != nil {
		t.Fatalf("LoadWithFile: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
}

func TestValidateConfigPath_RejectsSiblingDirectory(t *testing.T) {
	clearLexorchEnv(t)

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("UserHomeDir: %v", err)
	}
	configDir := filepath.Join(home, ".config", "lexorch-test-loader")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(configDir) })

	configPath := filepath.Join(configDir, "config.yaml")
	content := "observability:\n  service_name: lexorch-test\nllm:\n  base_url: http://llm.test:8000\n"
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// LoadWithFile only accepts paths under ~/.config/lexorch or /etc/lexorch;
	// exercise validateConfigPath's prefix check directly since the test
	// fixture lives in a sibling directory.
	if err := validateConfigPath(configPath); err == nil {
		t.Error("expected error for a sibling directory that only shares the ~/.config/lexorch name prefix")
	}
}

func TestValidateConfigPath_RejectsOutsideAllowedDirs(t *testing.T) {
	if err := validateConfigPath("/tmp/not-allowed/config.yaml"); err == nil {
		t.Error("expected error for path outside ~/.config/lexorch and /etc/lexorch")
	}
}

func TestValidateConfigPath_RejectsTraversal(t *testing.T) {
	home, _ := os.UserHomeDir()
	path := filepath.Join(home, ".config", "lexorch", "..", "..", "etc", "passwd")
	if err := validateConfigPath(path); err == nil {
		t.Error("expected error for path traversal outside allowed directories")
	}
}

func TestValidateConfigFileProperties_RejectsWorldReadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  http_port: 9090\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if err := validateConfigFileProperties(info); err == nil {
		t.Error("expected error for world-readable config file")
	}
}

func TestValidateConfigFileProperties_AcceptsOwnerOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  http_port: 9090\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		t.Errorf("unexpected error for 0600 config file: %v", err)
	}
}

func TestValidateConfigFileProperties_RejectsOversized(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	big := strings.Repeat("x", maxConfigFileSize+1)
	if err := os.WriteFile(path, []byte(big), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if err := validateConfigFileProperties(info); err == nil {
		t.Error("expected error for oversized config file")
	}
}

func TestEnsureConfigDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("UserHomeDir: %v", err)
	}
	if err := EnsureConfigDir(); err != nil {
		t.Fatalf("EnsureConfigDir: %v", err)
	}
	info, err := os.Stat(filepath.Join(home, ".config", "lexorch"))
	if err != nil {
		t.Fatalf("expected config dir to exist: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected ~/.config/lexorch to be a directory")
	}
}
