package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk application configuration, loaded from a TOML
// file. CLI flags override whatever is set here.
type Config struct {
	Model      ModelConfig      `toml:"model"`
	Generation GenerationConfig `toml:"generation"`
	Backend    BackendConfig    `toml:"backend"`
	Logging    LoggingConfig    `toml:"logging"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Cache      CacheConfig      `toml:"cache"`
}

type ModelConfig struct {
	// Path is a GGUF file path or an Ollama-style model name
	// resolved against the local Ollama store.
	Path         string `toml:"path"`
	SystemPrompt string `toml:"system_prompt"`
	// TemplateOverride replaces the model's embedded chat template.
	TemplateOverride string `toml:"template_override"`
}

type GenerationConfig struct {
	MaxTokens     int     `toml:"max_tokens"`
	Temperature   float64 `toml:"temperature"`
	TopK          int     `toml:"top_k"`
	TopP          float64 `toml:"top_p"`
	RepeatPenalty float64 `toml:"repeat_penalty"`
	RepeatLastN   int     `toml:"repeat_last_n"`
	Seed          uint64  `toml:"seed"`
	BatchSize     int     `toml:"batch_size"`
}

type BackendConfig struct {
	// Addr is the Arrow Flight model server, host:port.
	Addr string `toml:"addr"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type CacheConfig struct {
	PromptTTLMinutes int `toml:"prompt_ttl_minutes"`
	PromptMaxEntries int `toml:"prompt_max_entries"`
}

// Dir returns the config directory. Resolution order:
// $OXIDE_CONFIG_DIR > $XDG_CONFIG_HOME/oxide > ~/.config/oxide.
func Dir() string {
	if dir := os.Getenv("OXIDE_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "oxide")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "oxide-config")
	}
	return filepath.Join(home, ".config", "oxide")
}

// Path returns the config file location.
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Generation: GenerationConfig{
			MaxTokens:     512,
			Temperature:   0.3,
			RepeatPenalty: 1.1,
			RepeatLastN:   64,
			Seed:          299792458,
			BatchSize:     128,
		},
		Backend: BackendConfig{
			Addr: "localhost:8815",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Addr: ":9091",
		},
		Cache: CacheConfig{
			PromptTTLMinutes: 30,
			PromptMaxEntries: 64,
		},
	}
}

// Load reads path, or the default location when path is empty. A
// missing file yields the defaults; a present but invalid file is an
// error.
func Load(path string) (Config, error) {
	if path == "" {
		path = Path()
	}
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Generation.MaxTokens <= 0 {
		return fmt.Errorf("invalid max_tokens: %d (must be positive)", c.Generation.MaxTokens)
	}
	if c.Generation.Temperature < 0 {
		return fmt.Errorf("invalid temperature: %g (must be non-negative)", c.Generation.Temperature)
	}
	if c.Generation.TopK < 0 {
		return fmt.Errorf("invalid top_k: %d (must be non-negative)", c.Generation.TopK)
	}
	if c.Generation.TopP < 0 || c.Generation.TopP > 1 {
		return fmt.Errorf("invalid top_p: %g (must be in [0,1])", c.Generation.TopP)
	}
	if c.Generation.RepeatPenalty != 0 && c.Generation.RepeatPenalty < 1 {
		return fmt.Errorf("invalid repeat_penalty: %g (must be >= 1.0)", c.Generation.RepeatPenalty)
	}
	if c.Generation.RepeatLastN < 0 {
		return fmt.Errorf("invalid repeat_last_n: %d (must be non-negative)", c.Generation.RepeatLastN)
	}
	if c.Generation.BatchSize <= 0 {
		return fmt.Errorf("invalid batch_size: %d (must be positive)", c.Generation.BatchSize)
	}
	if c.Backend.Addr == "" {
		return fmt.Errorf("backend addr must not be empty")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics enabled but addr is empty")
	}
	if c.Cache.PromptTTLMinutes < 0 {
		return fmt.Errorf("invalid prompt_ttl_minutes: %d (must be non-negative)", c.Cache.PromptTTLMinutes)
	}
	return nil
}
