package main

import (
	"os"
	"path/filepath"
	"testing"

	"halcyon-hq/spendwatch/pkg/config"
)

func loadTestConfig(t *testing.T) (*config.Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "storage:\n  backend: memory\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return config.LoadConfig(path)
}

func TestVersionCommandExists(t *testing.T) {
	if versionCmd == nil {
		t.Fatal("versionCmd is nil")
	}
	if versionCmd.Use != "version" {
		t.Errorf("versionCmd.Use = %q, want %q", versionCmd.Use, "version")
	}
	if versionCmd.Run == nil {
		t.Error("versionCmd.Run should not be nil")
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	expected := map[string]bool{
		"run":      false,
		"ingest":   false,
		"validate": false,
		"version":  false,
	}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := expected[cmd.Name()]; ok {
			expected[cmd.Name()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("Expected subcommand %q to be registered", name)
		}
	}
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  listen_address: ":9090"
storage:
  backend: memory
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	origCfgFile := cfgFile
	cfgFile = path
	defer func() { cfgFile = origCfgFile }()

	if err := validateConfig(validateCmd, nil); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestValidateCommandReportsErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  backend: cassandra
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	origCfgFile := cfgFile
	cfgFile = path
	defer func() { cfgFile = origCfgFile }()

	if err := validateConfig(validateCmd, nil); err == nil {
		t.Error("Expected validation error for unknown backend")
	}
}

func TestBuildFetchersRespectsFlags(t *testing.T) {
	cfg, err := loadTestConfig(t)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	fetchers := buildFetchers(cfg, nil)
	if len(fetchers) != 0 {
		t.Errorf("Expected no fetchers with all providers disabled, got %d", len(fetchers))
	}

	cfg.Providers.OpenAI.Enabled = true
	cfg.Providers.Anthropic.Enabled = true
	fetchers = buildFetchers(cfg, nil)
	if len(fetchers) != 2 {
		t.Errorf("Expected 2 fetchers, got %d", len(fetchers))
	}
}
