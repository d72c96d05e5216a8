package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/studio/internal/assets"
	"github.com/dohr-michael/studio/internal/config"
	"github.com/dohr-michael/studio/internal/events"
	"github.com/dohr-michael/studio/internal/genai"
	"github.com/dohr-michael/studio/internal/secrets"
	"github.com/dohr-michael/studio/internal/storage"
	"github.com/dohr-michael/studio/internal/storage/dirstore"
	"github.com/dohr-michael/studio/internal/storage/levelstore"
	"github.com/dohr-michael/studio/internal/storage/redisstore"
	"github.com/dohr-michael/studio/internal/storage/sqlstore"
	"github.com/dohr-michael/studio/internal/storyboard"
)

// loadConfig reads the --config file, falling back to defaults when it does
// not exist, and decrypts ENC[age:...] values.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	cfg, err := config.Load(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Debug("config not found, using defaults", "path", path)
		cfg = config.Default()
	case err != nil:
		return nil, err
	}

	if err := secrets.ResolveConfig(cfg, secrets.KeyPath()); err != nil {
		return nil, fmt.Errorf("resolve secrets: %w", err)
	}

	if !cmd.Bool("debug") {
		var level slog.Level
		if err := level.UnmarshalText([]byte(cfg.Events.LogLevel)); err != nil {
			slog.Warn("invalid log level, using info", "level", cfg.Events.LogLevel)
			level = slog.LevelInfo
		}
		setLogLevel(level)
	}
	return cfg, nil
}

// openBackend opens the record store selected by cfg.Driver.
func openBackend(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Driver {
	case "dir":
		return dirstore.New(cfg.Dir), nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		return sqlstore.Open(ctx, cfg.Driver, cfg.DSN)
	case "postgres":
		return sqlstore.Open(ctx, cfg.Driver, cfg.DSN)
	case "leveldb":
		return levelstore.Open(cfg.Dir)
	case "redis":
		return redisstore.Open(ctx, redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// openAssets opens the media store selected by cfg.Driver.
func openAssets(ctx context.Context, cfg config.AssetsConfig) (assets.Store, error) {
	switch cfg.Driver {
	case "local":
		return assets.NewLocal(cfg.Dir, cfg.BaseURL), nil
	case "minio":
		return assets.NewMinIO(ctx, assets.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			Secure:    cfg.MinIO.Secure,
			BaseURL:   cfg.BaseURL,
		})
	default:
		return nil, fmt.Errorf("unknown assets driver %q", cfg.Driver)
	}
}

// productionConfig assembles the pipeline dependencies. Without an API key
// the generative collaborators stay unset and every step fails with a
// "not configured" error.
func productionConfig(ctx context.Context, cfg *config.Config, store *storyboard.Store, media assets.Store, bus *events.Bus) storyboard.ProductionConfig {
	pc := storyboard.ProductionConfig{
		Store:  store,
		Assets: media,
		Retry: genai.RetryPolicy{
			MaxAttempts: cfg.Pipeline.MaxAttempts,
			BaseDelay:   cfg.Pipeline.BaseDelay.Duration(),
			MaxDelay:    cfg.Pipeline.MaxDelay.Duration(),
		},
		VoicePool: cfg.Pipeline.Voices,
		Bus:       bus,
	}

	g := cfg.Providers.Gemini
	if g.APIKey == "" {
		slog.Warn("gemini api key not configured, generation is disabled")
		return pc
	}
	client, err := genai.NewGemini(ctx, genai.GeminiConfig{
		APIKey:       g.APIKey,
		ImageModel:   g.ImageModel,
		SpeechModel:  g.SpeechModel,
		VideoModel:   g.VideoModel,
		TextModel:    g.TextModel,
		PollInterval: g.PollInterval.Duration(),
		Timeout:      g.Timeout.Duration(),
	})
	if err != nil {
		slog.Error("gemini client unavailable, generation is disabled", "error", err)
		return pc
	}
	pc.Images = client
	pc.Voices = client
	pc.Videos = client
	pc.Text = client
	return pc
}

// withStores opens the configured backend for commands that work on
// records directly, without a running gateway.
func withStores(ctx context.Context, cmd *cli.Command, fn func(cfg *config.Config, backend storage.Backend) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	backend, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer backend.Close()
	return fn(cfg, backend)
}

// gatewayURL returns the --gateway flag or the websocket URL of the
// configured gateway.
func gatewayURL(cmd *cli.Command) (string, error) {
	if cmd.IsSet("gateway") {
		return cmd.String("gateway"), nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ws://%s:%d/api/ws", cfg.Gateway.Host, cfg.Gateway.Port), nil
}

var gatewayFlag = &cli.StringFlag{
	Name:  "gateway",
	Usage: "Gateway WebSocket URL (defaults to the configured gateway)",
}
