package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	if cfg.Generation.MaxTokens != want.Generation.MaxTokens {
		t.Errorf("max_tokens = %d", cfg.Generation.MaxTokens)
	}
	if cfg.Backend.Addr != want.Backend.Addr {
		t.Errorf("backend addr = %q", cfg.Backend.Addr)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[model]
path = "qwen2.5:0.5b"
system_prompt = "be brief"

[generation]
max_tokens = 64
temperature = 0.7
top_k = 40

[logging]
level = "debug"
format = "json"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.Path != "qwen2.5:0.5b" {
		t.Errorf("model path = %q", cfg.Model.Path)
	}
	if cfg.Generation.MaxTokens != 64 || cfg.Generation.Temperature != 0.7 || cfg.Generation.TopK != 40 {
		t.Errorf("generation = %+v", cfg.Generation)
	}
	// Untouched sections keep their defaults.
	if cfg.Generation.RepeatPenalty != 1.1 {
		t.Errorf("repeat_penalty = %g", cfg.Generation.RepeatPenalty)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[generation]
max_tokenz = 64
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("err = %v, want unknown key error", err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	for _, tc := range []struct {
		name string
		body string
	}{
		{"negative temperature", "[generation]\ntemperature = -0.5"},
		{"top_p above one", "[generation]\ntop_p = 1.5"},
		{"penalty below one", "[generation]\nrepeat_penalty = 0.5"},
		{"zero max_tokens", "[generation]\nmax_tokens = -1"},
		{"empty backend", `[backend]` + "\n" + `addr = ""`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Fatalf("config %q accepted", tc.body)
			}
		})
	}
}

func TestDirHonorsEnvOverride(t *testing.T) {
	t.Setenv("OXIDE_CONFIG_DIR", "/custom/dir")
	if got := Dir(); got != "/custom/dir" {
		t.Errorf("Dir() = %q", got)
	}
	t.Setenv("OXIDE_CONFIG_DIR", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := Dir(); got != filepath.Join("/xdg", "oxide") {
		t.Errorf("Dir() = %q", got)
	}
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}
