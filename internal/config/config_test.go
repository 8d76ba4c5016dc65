package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, ".pzl")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		t.Fatalf("create config directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	work := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(work)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.ServerURL != "http://localhost:8000" {
		t.Errorf("server url = %q, want default", cfg.ServerURL)
	}
	if cfg.MainAgent.ModelName != "qwq-plus-latest" || cfg.MainAgent.MaxRetries != 3 {
		t.Errorf("main agent defaults = %+v", cfg.MainAgent)
	}
	if cfg.MetadataExtractor.ModelName != "qwen-turbo" {
		t.Errorf("extractor default = %+v", cfg.MetadataExtractor)
	}
	if cfg.Searcher.MaxSearchTokens != 12000 {
		t.Errorf("searcher default = %+v", cfg.Searcher)
	}
	if cfg.StallThreshold != 180*time.Second || cfg.StallPollInterval != 10*time.Second {
		t.Errorf("stall defaults = %v / %v", cfg.StallThreshold, cfg.StallPollInterval)
	}
}

func TestLoadOverlaysHomeThenLocal(t *testing.T) {
	home := t.TempDir()
	work := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(work)

	writeConfigFile(t, home, `
server_url = "http://home.example:9000"
stall_threshold = "5m"

[main_agent]
model_name = "home-model"
`)
	writeConfigFile(t, work, `
server_url = "http://local.example:9001"

[searcher]
max_search_tokens = 2000
selected_tools = ["search_web"]
`)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	// The project-local file wins over the home file.
	if cfg.ServerURL != "http://local.example:9001" {
		t.Errorf("server url = %q, want local override", cfg.ServerURL)
	}
	// Home-only settings survive when the local file is silent on them.
	if cfg.MainAgent.ModelName != "home-model" {
		t.Errorf("main agent model = %q, want home override", cfg.MainAgent.ModelName)
	}
	if cfg.StallThreshold != 5*time.Minute {
		t.Errorf("stall threshold = %v, want 5m", cfg.StallThreshold)
	}
	if cfg.Searcher.MaxSearchTokens != 2000 {
		t.Errorf("search tokens = %d, want 2000", cfg.Searcher.MaxSearchTokens)
	}
	if len(cfg.Searcher.SelectedTools) != 1 || cfg.Searcher.SelectedTools[0] != "search_web" {
		t.Errorf("selected tools = %v", cfg.Searcher.SelectedTools)
	}
	// Untouched defaults remain.
	if cfg.MetadataExtractor.ModelName != "qwen-turbo" {
		t.Errorf("extractor model = %q, want default", cfg.MetadataExtractor.ModelName)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	home := t.TempDir()
	work := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(work)

	writeConfigFile(t, work, `stall_threshold = "three minutes"`)

	if _, err := Load(context.Background()); err == nil {
		t.Fatal("Load must reject an unparseable duration")
	}
}

func TestLoadRejectsPollAboveThreshold(t *testing.T) {
	home := t.TempDir()
	work := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(work)

	writeConfigFile(t, work, `
stall_threshold = "10s"
stall_poll_interval = "30s"
`)

	if _, err := Load(context.Background()); err == nil {
		t.Fatal("Load must reject poll interval above threshold")
	}
}

func TestLaunchConfigConversion(t *testing.T) {
	t.Parallel()

	cfg := defaults()
	cfg.Searcher.SelectedTools = []string{"search_web", "read_page"}
	launch := cfg.LaunchConfig()

	if launch.MainAgent.ModelName != cfg.MainAgent.ModelName {
		t.Errorf("main agent model = %q", launch.MainAgent.ModelName)
	}
	if launch.Searcher.MaxSearchTokens != cfg.Searcher.MaxSearchTokens {
		t.Errorf("search tokens = %d", launch.Searcher.MaxSearchTokens)
	}

	// The converted tool list must be a copy.
	launch.Searcher.SelectedTools[0] = "mutated"
	if cfg.Searcher.SelectedTools[0] != "search_web" {
		t.Error("LaunchConfig must copy the tool slice")
	}
}
