package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/erazemk/najdeno/internal/api"
	"github.com/erazemk/najdeno/internal/config"
	"github.com/erazemk/najdeno/internal/db"
	"github.com/erazemk/najdeno/internal/logging"
	"github.com/erazemk/najdeno/internal/metrics"
	"github.com/erazemk/najdeno/internal/realtime"
	"github.com/erazemk/najdeno/internal/store"
)

var (
	serveAddr string
	serveLog  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the HTTP API server. A missing database is created on first run
and the generated admin password is printed.

Examples:
  najdeno serve --addr :8080
  NAJDENO_REALTIME_NATS_URL=nats://localhost:4222 najdeno serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "listen address (overrides server.addr)")
	serveCmd.Flags().StringVarP(&serveLog, "log", "l", "", "log file path (overrides log.file)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = serveAddr
	}
	if cmd.Flags().Changed("log") {
		cfg.Log.File = serveLog
	}

	// INFO/WARN to stdout, ERROR to stderr, optionally also a rotated file.
	closeLog := logging.Setup(logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer closeLog()

	// Check if DB exists, auto-init if not.
	if _, err := os.Stat(cfg.Database.Path); os.IsNotExist(err) {
		database, password, err := initDatabase(cmd.Context(), cfg.Database.Path, cfg.Auth.AdminEmail)
		if err != nil {
			slog.Error("failed to initialize database", "error", err)
			return err
		}
		database.Close()

		printInitResult(cmd.OutOrStdout(), cfg.Database.Path, cfg.Auth.AdminEmail, password)
		fmt.Fprintln(cmd.OutOrStdout())
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		return err
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		slog.Error("failed to migrate database", "error", err)
		return err
	}
	slog.Info("database ready", "path", cfg.Database.Path)

	// Load JWT secret from database (auto-generated on first run).
	jwtSecret, err := store.GetJWTSecret(cmd.Context(), database)
	if err != nil {
		slog.Error("failed to get JWT secret", "error", err)
		return err
	}

	m := metrics.New()
	hub := realtime.NewHub()
	hub.OnPublish = m.EventPublished
	hub.OnDrop = m.EventDropped
	defer hub.Close()

	var publisher realtime.Publisher = hub
	if cfg.Realtime.NATSURL != "" {
		bridge, closeBridge, err := connectBridge(cfg.Realtime, hub)
		if err != nil {
			slog.Error("failed to connect to NATS", "url", cfg.Realtime.NATSURL, "error", err)
			return err
		}
		defer closeBridge()
		publisher = bridge
	}

	// Validated by config.Load.
	proxies, _ := cfg.Server.TrustedProxyPrefixes()

	router := api.NewRouter(api.Options{
		DB:               database,
		JWTSecret:        jwtSecret,
		Hub:              hub,
		Publisher:        publisher,
		Metrics:          m,
		TrustedProxies:   proxies,
		LoginRate:        cfg.Auth.LoginRate,
		LoginBurst:       cfg.Auth.LoginBurst,
		MaxImageBytes:    cfg.Images.MaxBytes,
		MaxImagesPerItem: cfg.Images.MaxPerItem,
		SubscriberBuffer: cfg.Realtime.SubscriberBuffer,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")

		// Ends open event streams so Shutdown does not wait on them.
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Server.Addr, "version", version)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		return err
	}

	slog.Info("server stopped, closing database")
	return nil
}

// connectBridge connects to NATS and relays items between instances.
func connectBridge(cfg config.RealtimeConfig, hub *realtime.Hub) (*realtime.NATSBridge, func(), error) {
	nc, err := realtime.ConnectNATS(cfg.NATSURL)
	if err != nil {
		return nil, nil, err
	}
	bridge, err := realtime.NewNATSBridge(nc, hub)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	slog.Info("realtime bridge connected", "url", nc.ConnectedUrl(), "subject", realtime.Subject)
	return bridge, func() {
		bridge.Close()
		nc.Drain()
	}, nil
}
