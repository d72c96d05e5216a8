package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/tailscale/hujson"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// DefaultVoices is the prebuilt narration voice pool used when none is configured.
var DefaultVoices = []string{"Kore", "Puck", "Charon", "Fenrir", "Aoede"}

// Load reads a JSONC config file, expands ${{ .Env.VAR }} templates,
// standardizes it to plain JSON, unmarshals it into Config and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes JSONC bytes into a Config with defaults applied.
func Parse(data []byte) (*Config, error) {
	// Expand environment variable templates (before standardizing, since templates are in strings)
	expanded := expandEnvTemplates(string(data))

	std, err := hujson.Standardize([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18430
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "dir"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = filepath.Join(StudioPath(), "data")
	}
	if cfg.Storage.Driver == "sqlite" && cfg.Storage.DSN == "" {
		cfg.Storage.DSN = filepath.Join(StudioPath(), "studio.db")
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "studio"
	}

	if cfg.Assets.Driver == "" {
		cfg.Assets.Driver = "local"
	}
	if cfg.Assets.Dir == "" {
		cfg.Assets.Dir = filepath.Join(StudioPath(), "assets")
	}
	if cfg.Assets.BaseURL == "" {
		cfg.Assets.BaseURL = "/assets"
	}

	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Events.LogLevel == "" {
		cfg.Events.LogLevel = "info"
	}
	if cfg.Events.NATSSubject == "" {
		cfg.Events.NATSSubject = "studio.events"
	}

	g := &cfg.Providers.Gemini
	if g.ImageModel == "" {
		g.ImageModel = "gemini-2.5-flash-image"
	}
	if g.SpeechModel == "" {
		g.SpeechModel = "gemini-2.5-flash-preview-tts"
	}
	if g.VideoModel == "" {
		g.VideoModel = "veo-3.1-fast-generate-preview"
	}
	if g.TextModel == "" {
		g.TextModel = "gemini-2.5-flash"
	}
	if g.PollInterval == 0 {
		g.PollInterval = Duration(10 * time.Second)
	}
	if g.Timeout == 0 {
		g.Timeout = Duration(10 * time.Minute)
	}

	p := &cfg.Pipeline
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay == 0 {
		p.BaseDelay = Duration(5 * time.Second)
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = Duration(30 * time.Second)
	}
	if len(p.Voices) == 0 {
		p.Voices = append([]string(nil), DefaultVoices...)
	}
	if p.DefaultStyle == "" {
		p.DefaultStyle = "cinematic"
	}
	if p.DefaultAspectRatio == "" {
		p.DefaultAspectRatio = "16:9"
	}

	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = "0 * * * *"
	}
	if cfg.Retention.MaxAge == 0 {
		cfg.Retention.MaxAge = Duration(7 * 24 * time.Hour)
	}
}
