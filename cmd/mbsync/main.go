package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marketboard/mbsync/internal/api"
	"github.com/marketboard/mbsync/internal/archive"
	"github.com/marketboard/mbsync/internal/config"
	"github.com/marketboard/mbsync/internal/connection"
	"github.com/marketboard/mbsync/internal/database"
	"github.com/marketboard/mbsync/internal/httpapi"
	"github.com/marketboard/mbsync/internal/market"
	"github.com/marketboard/mbsync/internal/metrics"
	"github.com/marketboard/mbsync/internal/poller"
	"github.com/marketboard/mbsync/internal/router"
	"github.com/marketboard/mbsync/internal/store"
	"github.com/marketboard/mbsync/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/mbsync.yaml", "path to config file")
	envPath := flag.String("env", ".env", "path to .env file loaded before the config")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load env file", "path", *envPath, "error", err)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("starting mbsync",
		"version", version.String(),
		"config", *configPath,
		"home_world", cfg.Provider.HomeWorld,
		"ws_url", cfg.Provider.WSURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("mbsync failed", "error", err)
		os.Exit(1)
	}
	logger.Info("mbsync stopped")
}

// run wires every component, blocks until ctx is done, then shuts down in
// reverse dependency order.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(reg)

	st := store.New(store.Config{
		MaxListings: cfg.Store.MaxListings,
		MaxHistory:  cfg.Store.MaxHistory,
	})
	recorder.RegisterStore(st.Len)

	conn := connection.NewManager(managerConfig(cfg), logger)

	statusCh, stopStatus := conn.WatchStatus()
	defer stopStatus()
	go recorder.TrackStatus(ctx, statusCh)

	client := api.NewClient(cfg.Provider.RestURL,
		api.WithTimeout(cfg.Provider.Timeout),
		api.WithLogger(logger),
		api.WithHomeWorld(cfg.Provider.HomeWorld),
		api.WithLimits(cfg.Provider.ListingsLimit, cfg.Provider.EntriesLimit),
		api.WithUserAgent(version.UserAgent()),
	)

	coordOpts := []market.Option{market.WithRecorder(recorder)}
	httpOpts := []httpapi.Option{
		httpapi.WithConnectionStats(conn),
		httpapi.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
	}

	var pool *pgxpool.Pool
	var arch *archive.Archive
	if cfg.Archive.Enabled {
		var err error
		pool, arch, err = startArchive(ctx, cfg, recorder, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		coordOpts = append(coordOpts, market.WithHistorySink(arch))
		httpOpts = append(httpOpts, httpapi.WithHealthCheck("archive_db", pool.Ping))
	}

	coord := market.NewCoordinator(market.Config{
		HomeWorld:          cfg.Provider.HomeWorld,
		RefreshConcurrency: cfg.Poller.Concurrency,
		FetchTimeout:       cfg.Provider.Timeout,
	}, client, conn, st, logger, coordOpts...)

	rtr := router.NewRouter(router.RouterConfig{
		DeltaBufferSize: cfg.Connection.MessageBufferSize,
	}, conn.Messages(), coord, logger)
	if err := rtr.Start(ctx); err != nil {
		return fmt.Errorf("start router: %w", err)
	}
	recorder.RegisterRouter(rtr.Stats)

	p := poller.New(poller.Config{
		Interval:    cfg.Poller.Interval,
		Timeout:     cfg.Poller.Timeout,
		SnapshotTTL: cfg.Store.SnapshotTTL,
	}, coord, logger)
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}

	srv := httpapi.New(httpapi.Config{Port: cfg.HTTP.Port}, coord, logger, httpOpts...)
	if err := srv.Start(); err != nil {
		return err
	}

	// A failed first dial is retried by the manager's backoff.
	if err := conn.Connect(ctx); err != nil {
		logger.Warn("initial connect failed", "error", err)
	}

	seedWatches(ctx, coord, cfg.Watch, logger)

	logger.Info("mbsync running",
		"http_port", cfg.HTTP.Port,
		"watched", len(coord.Watched()),
		"archive", cfg.Archive.Enabled,
	)

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}
	if err := p.Stop(shutdownCtx); err != nil {
		logger.Warn("poller stop failed", "error", err)
	}
	if err := conn.Close(shutdownCtx); err != nil && !errors.Is(err, connection.ErrAlreadyClosed) {
		logger.Warn("connection close failed", "error", err)
	}
	if err := rtr.Stop(shutdownCtx); err != nil {
		logger.Warn("router stop failed", "error", err)
	}
	if arch != nil {
		if err := arch.Stop(shutdownCtx); err != nil {
			logger.Warn("archive stop failed", "error", err)
		}
	}
	return nil
}

func startArchive(ctx context.Context, cfg *config.Config, recorder *metrics.Recorder, logger *slog.Logger) (*pgxpool.Pool, *archive.Archive, error) {
	db := cfg.Archive.Database
	logger.Info("connecting to archive database",
		"host", db.Host,
		"port", db.Port,
		"database", db.Name,
	)

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := database.Connect(connectCtx, db)
	if err != nil {
		return nil, nil, fmt.Errorf("connect archive database: %w", err)
	}
	if err := database.EnsureSchema(connectCtx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("archive schema: %w", err)
	}

	arch := archive.New(archive.Config{
		BatchSize:     cfg.Archive.BatchSize,
		FlushInterval: cfg.Archive.FlushInterval,
		BufferSize:    cfg.Archive.BufferSize,
	}, pool, logger, archive.WithRecorder(recorder))
	arch.Start(ctx)

	return pool, arch, nil
}

// seedWatches watches the configured items. A failed first fetch keeps the
// watch; the poller or a manual refresh fills it in later.
func seedWatches(ctx context.Context, coord market.Coordinator, entries []config.WatchEntry, logger *slog.Logger) {
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if _, err := coord.Watch(ctx, e.ItemID, e.World); err != nil {
			logger.Warn("initial watch fetch failed",
				"item_id", e.ItemID,
				"world", e.World,
				"error", err,
			)
		}
	}
}

func managerConfig(cfg *config.Config) connection.ManagerConfig {
	mc := connection.DefaultManagerConfig()
	mc.Client.URL = cfg.Provider.WSURL
	mc.Client.PingInterval = cfg.Connection.PingInterval
	mc.Client.PingTimeout = cfg.Connection.PingTimeout
	mc.Client.WriteTimeout = cfg.Connection.WriteTimeout
	mc.Client.BufferSize = cfg.Connection.MessageBufferSize
	mc.Client.MaxMessageSize = cfg.Connection.MaxMessageSize
	mc.ReconnectBaseWait = cfg.Connection.ReconnectBaseDelay
	mc.ReconnectMaxWait = cfg.Connection.ReconnectMaxDelay
	mc.MessageBufferSize = cfg.Connection.MessageBufferSize
	return mc
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
