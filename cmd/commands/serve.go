package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/studio/internal/config"
	"github.com/dohr-michael/studio/internal/events"
	"github.com/dohr-michael/studio/internal/gateway"
	"github.com/dohr-michael/studio/internal/heartbeat"
	"github.com/dohr-michael/studio/internal/scheduler"
	"github.com/dohr-michael/studio/internal/storage"
	"github.com/dohr-michael/studio/internal/storyboard"
	"github.com/dohr-michael/studio/internal/tasks"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the studio gateway and task registry",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = cmd.Int("port")
	}

	backend, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer backend.Close()

	media, err := openAssets(ctx, cfg.Assets)
	if err != nil {
		return fmt.Errorf("open assets: %w", err)
	}

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	if cfg.Events.LogDir != "" {
		eventLog := storage.NewEventLogger(cfg.Events.LogDir, bus)
		defer eventLog.Close()
	}
	if cfg.Events.NATSURL != "" {
		bridge, err := events.NewNATSBridge(bus, cfg.Events.NATSURL, cfg.Events.NATSSubject)
		if err != nil {
			slog.Warn("nats bridge disabled", "url", cfg.Events.NATSURL, "error", err)
		} else {
			defer bridge.Close()
		}
	}

	// Task registry; tasks left running by a previous process are failed.
	registry := tasks.NewRegistry(tasks.RegistryConfig{
		Store: tasks.NewStore(backend),
		Bus:   bus,
	})
	recovered, err := registry.Init(ctx)
	if err != nil {
		return fmt.Errorf("init task registry: %w", err)
	}
	if recovered > 0 {
		slog.Info("interrupted tasks recovered", "count", recovered)
	}
	defer registry.Dispose()

	pipeline := storyboard.NewPipeline(productionConfig(ctx, cfg, storyboard.NewStore(backend), media, bus))

	retention, err := scheduler.NewRetention(registry, cfg.Retention.Schedule, cfg.Retention.MaxAge.Duration())
	if err != nil {
		return fmt.Errorf("retention: %w", err)
	}
	retention.Start()
	defer retention.Stop()

	// SIGHUP reloads .env and the config file.
	reloader := config.NewReloader(cmd.String("config"), config.DotenvPath(), cfg)
	reloader.OnReload(func(c *config.Config) {
		if err := retention.Update(c.Retention.Schedule, c.Retention.MaxAge.Duration()); err != nil {
			slog.Warn("retention config rejected", "error", err)
		}
	})
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go reloader.ReloadOn(ctx, hup)

	server := gateway.NewServer(gateway.Config{
		Host:               cfg.Gateway.Host,
		Port:               cfg.Gateway.Port,
		Bus:                bus,
		Tasks:              registry,
		Pipeline:           pipeline,
		Assets:             media,
		AssetsBaseURL:      cfg.Assets.BaseURL,
		DefaultStyle:       cfg.Pipeline.DefaultStyle,
		DefaultAspectRatio: cfg.Pipeline.DefaultAspectRatio,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	beat := heartbeat.NewWriter(heartbeatPath(), fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port), func() int {
		active, err := registry.Active()
		if err != nil {
			return -1
		}
		return len(active)
	})
	beat.Start()
	defer beat.Stop()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
