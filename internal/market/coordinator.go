package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/marketboard/mbsync/internal/codec"
	"github.com/marketboard/mbsync/internal/connection"
	"github.com/marketboard/mbsync/internal/model"
	"github.com/marketboard/mbsync/internal/store"
	"github.com/marketboard/mbsync/internal/world"
)

// Coordinator keeps the snapshot store in sync for a set of watched items,
// combining REST snapshots with pushed listing deltas.
type Coordinator interface {
	// Watch starts tracking an item in a world, data center or region
	// (empty means the home world), subscribes to its push channel and
	// fetches a full snapshot.
	Watch(ctx context.Context, itemID int, scope string) (model.ItemSnapshot, error)

	// Unwatch stops tracking an item. The stored snapshot stays readable
	// until pruned.
	Unwatch(itemID int) error

	// Query returns the stored snapshot for an item.
	Query(itemID int) (model.ItemSnapshot, bool)

	// Refresh fetches a watched item again using its watch scope.
	Refresh(ctx context.Context, itemID int) (model.ItemSnapshot, error)

	// RefreshAll refreshes every watched item with bounded concurrency.
	RefreshAll(ctx context.Context) error

	// HandleDelta merges pushed listings into a watched item's snapshot.
	HandleDelta(delta codec.ListingDelta)

	// PruneStale drops snapshots of unwatched items not updated within ttl.
	PruneStale(ttl time.Duration) int

	// Watched returns the watched items sorted by ID.
	Watched() []WatchInfo

	// IsWatched reports whether an item is watched.
	IsWatched(itemID int) bool

	// IsConnected reports whether the push channel is up.
	IsConnected() bool

	// WatchStatus registers a connection status watcher.
	WatchStatus() (<-chan connection.StatusChange, func())
}

// coordinator implements the Coordinator interface.
type coordinator struct {
	cfg     Config
	fetcher Fetcher
	subs    Subscriber
	store   *store.Store
	sink    HistorySink
	metrics Recorder
	logger  *slog.Logger

	flight singleflight.Group

	// mu guards watches. Writers that must not race a watch change
	// (fetch apply, delta merge) hold it for reading across the store write.
	mu      sync.RWMutex
	watches map[int]watch
	nextGen uint64
}

// Option configures a Coordinator.
type Option func(*coordinator)

// WithHistorySink forwards fetched sale history to sink.
func WithHistorySink(sink HistorySink) Option {
	return func(c *coordinator) {
		c.sink = sink
	}
}

// WithRecorder reports coordinator events to r.
func WithRecorder(r Recorder) Option {
	return func(c *coordinator) {
		c.metrics = r
	}
}

// NewCoordinator creates a new Sync Coordinator.
func NewCoordinator(cfg Config, fetcher Fetcher, subs Subscriber, st *store.Store, logger *slog.Logger, opts ...Option) Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HomeWorld == "" {
		cfg.HomeWorld = DefaultConfig().HomeWorld
	}
	if cfg.RefreshConcurrency <= 0 {
		cfg.RefreshConcurrency = 1
	}

	c := &coordinator{
		cfg:     cfg,
		fetcher: fetcher,
		subs:    subs,
		store:   st,
		logger:  logger,
		watches: make(map[int]watch),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Watch starts tracking an item.
func (c *coordinator) Watch(ctx context.Context, itemID int, scopeName string) (model.ItemSnapshot, error) {
	if itemID <= 0 {
		return model.ItemSnapshot{}, fmt.Errorf("%w: %d", ErrInvalidItem, itemID)
	}
	if scopeName == "" {
		scopeName = c.cfg.HomeWorld
	}
	scope, err := world.Resolve(scopeName)
	if err != nil {
		return model.ItemSnapshot{}, err
	}

	c.mu.Lock()
	w, exists := c.watches[itemID]
	changed := !exists || w.scope.Name != scope.Name
	if changed {
		c.nextGen++
		w = watch{scope: scope, since: time.Now(), gen: c.nextGen}
		c.watches[itemID] = w
	}
	c.mu.Unlock()

	if changed {
		c.logger.Info("watching item", "item_id", itemID, "scope", scope.Name)
	}

	if err := c.subs.Subscribe(itemID); err != nil && !errors.Is(err, connection.ErrNotConnected) {
		// The item stays in the subscription set and is replayed on reconnect.
		c.logger.Warn("subscribe failed", "item_id", itemID, "error", err)
	}

	return c.fetchAndApply(ctx, itemID, w)
}

// Unwatch stops tracking an item.
func (c *coordinator) Unwatch(itemID int) error {
	c.mu.Lock()
	_, ok := c.watches[itemID]
	delete(c.watches, itemID)
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("item %d: %w", itemID, ErrNotWatched)
	}

	if err := c.subs.Unsubscribe(itemID); err != nil && !errors.Is(err, connection.ErrNotConnected) {
		c.logger.Warn("unsubscribe failed", "item_id", itemID, "error", err)
	}

	c.logger.Info("unwatched item", "item_id", itemID)
	return nil
}

// Query returns the stored snapshot.
func (c *coordinator) Query(itemID int) (model.ItemSnapshot, bool) {
	return c.store.Get(itemID)
}

// Refresh fetches a watched item again.
func (c *coordinator) Refresh(ctx context.Context, itemID int) (model.ItemSnapshot, error) {
	c.mu.RLock()
	w, ok := c.watches[itemID]
	c.mu.RUnlock()

	if !ok {
		return model.ItemSnapshot{}, fmt.Errorf("item %d: %w", itemID, ErrNotWatched)
	}
	return c.fetchAndApply(ctx, itemID, w)
}

// PruneStale drops old snapshots of unwatched items.
func (c *coordinator) PruneStale(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	removed := c.store.Prune(time.Now().Add(-ttl), c.IsWatched)
	if removed > 0 {
		c.logger.Info("pruned stale snapshots", "count", removed, "ttl", ttl)
	}
	return removed
}

// Watched returns the watched items.
func (c *coordinator) Watched() []WatchInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]WatchInfo, 0, len(c.watches))
	for id, w := range c.watches {
		out = append(out, w.info(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// IsWatched reports watch membership.
func (c *coordinator) IsWatched(itemID int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.watches[itemID]
	return ok
}

// IsConnected reports push channel state.
func (c *coordinator) IsConnected() bool {
	return c.subs.IsConnected()
}

// WatchStatus registers a connection status watcher.
func (c *coordinator) WatchStatus() (<-chan connection.StatusChange, func()) {
	return c.subs.WatchStatus()
}
