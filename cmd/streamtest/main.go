// streamtest connects to the Universalis push channel, subscribes to items
// and prints decoded listing deltas to the console.
// Usage: go run ./cmd/streamtest --items 5057,36112 [--config configs/mbsync.yaml]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/marketboard/mbsync/internal/codec"
	"github.com/marketboard/mbsync/internal/config"
	"github.com/marketboard/mbsync/internal/connection"
	"github.com/marketboard/mbsync/internal/router"
	"github.com/marketboard/mbsync/internal/world"
)

func main() {
	configPath := flag.String("config", "", "optional config file; provider and connection settings are used")
	items := flag.String("items", "5057", "comma-separated item IDs to subscribe to")
	verbose := flag.Bool("verbose", false, "print full delta JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg := &config.Config{}
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}
	cfg.ApplyDefaults()

	itemIDs, err := parseItems(*items)
	if err != nil {
		logger.Error("invalid --items", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connCfg := connection.DefaultManagerConfig()
	connCfg.Client.URL = cfg.Provider.WSURL
	connCfg.Client.PingInterval = cfg.Connection.PingInterval
	connCfg.Client.PingTimeout = cfg.Connection.PingTimeout
	connCfg.ReconnectBaseWait = cfg.Connection.ReconnectBaseDelay
	connCfg.ReconnectMaxWait = cfg.Connection.ReconnectMaxDelay

	connMgr := connection.NewManager(connCfg, logger)

	// Subscriptions made before Connect are replayed once connected.
	for _, id := range itemIDs {
		connMgr.Subscribe(id)
	}

	rtr := router.NewRouter(router.DefaultRouterConfig(), connMgr.Messages(),
		router.DeltaHandlerFunc(func(d codec.ListingDelta) { printDelta(d, *verbose) }), logger)
	if err := rtr.Start(ctx); err != nil {
		logger.Error("failed to start router", "error", err)
		os.Exit(1)
	}

	statusCh, stopStatus := connMgr.WatchStatus()
	defer stopStatus()
	go func() {
		for change := range statusCh {
			fmt.Printf("[STATUS] %s -> %s session=%s retry_in=%s err=%v\n",
				change.Previous, change.State, change.SessionID, change.RetryIn, change.Err)
		}
	}()

	logger.Info("connecting", "url", connCfg.Client.URL, "items", itemIDs)
	if err := connMgr.Connect(ctx); err != nil {
		logger.Warn("initial connect failed, retrying in background", "error", err)
	}

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cs := connMgr.Stats()
				rs := rtr.Stats()
				logger.Info("stats",
					"state", cs.State,
					"subscriptions", cs.Subscriptions,
					"drops", cs.Drops,
					"frames", rs.FramesReceived,
					"deltas", rs.DeltasRouted,
					"unknown", rs.UnknownFrames,
					"malformed", rs.MalformedFrames,
					"queued", rs.Queue.Len,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down...")
	connMgr.Close(shutdownCtx)
	rtr.Stop(shutdownCtx)
	logger.Info("shutdown complete")
}

func parseItems(s string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("bad item id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no item ids")
	}
	return ids, nil
}

func printDelta(d codec.ListingDelta, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(d, "", "  ")
		fmt.Printf("[LISTINGS] %s\n", data)
		return
	}

	worldName, ok := world.Name(d.WorldID)
	if !ok {
		worldName = strconv.Itoa(d.WorldID)
	}
	fmt.Printf("[LISTINGS] item=%d world=%s count=%d\n", d.ItemID, worldName, len(d.Listings))
	for _, l := range d.Listings {
		hq := ""
		if l.HQ {
			hq = " HQ"
		}
		fmt.Printf("    %8d x%-4d = %10d%s  %s\n", l.PricePerUnit, l.Quantity, l.TotalPrice(), hq, l.RetainerName)
	}
}
