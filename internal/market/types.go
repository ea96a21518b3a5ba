package market

import (
	"context"
	"errors"
	"time"

	"github.com/marketboard/mbsync/internal/connection"
	"github.com/marketboard/mbsync/internal/model"
	"github.com/marketboard/mbsync/internal/world"
)

var (
	// ErrNotWatched is returned for operations on items that are not
	// watched, and by fetches whose watch was removed or replaced while
	// the request was in flight.
	ErrNotWatched = errors.New("item not watched")

	// ErrInvalidItem rejects non-positive item IDs.
	ErrInvalidItem = errors.New("invalid item id")
)

// Config holds Sync Coordinator configuration.
type Config struct {
	HomeWorld          string        // Scope used when Watch names none
	RefreshConcurrency int           // Parallel fetches in RefreshAll
	FetchTimeout       time.Duration // Per-fetch deadline, 0 for none
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HomeWorld:          "Zodiark",
		RefreshConcurrency: 4,
		FetchTimeout:       30 * time.Second,
	}
}

// Fetcher pulls full item snapshots.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, itemID int, scope string) (model.ItemSnapshot, error)
}

// Subscriber manages push subscriptions. connection.Manager satisfies it.
type Subscriber interface {
	Subscribe(itemID int) error
	Unsubscribe(itemID int) error
	IsConnected() bool
	WatchStatus() (<-chan connection.StatusChange, func())
}

// HistorySink receives the sale records of every applied fetch.
type HistorySink interface {
	ArchiveSales(records []model.SaleRecord)
}

// Recorder receives coordinator events for metrics. Implementations must be
// safe for concurrent use.
type Recorder interface {
	ObserveFetch(d time.Duration, err error)
	DeltaApplied()
	DeltaIgnored()
	LateFetchDiscarded()
}

// WatchInfo describes one watched item.
type WatchInfo struct {
	ItemID    int        `json:"itemId"`
	Scope     string     `json:"scope"`
	ScopeKind world.Kind `json:"scopeKind"`
	Since     time.Time  `json:"since"`
}

// watch is the coordinator's record of a watched item. gen changes whenever
// the watch is created or its scope changes, so a fetch started under an
// older gen can be recognized as late.
type watch struct {
	scope world.Scope
	since time.Time
	gen   uint64
}

func (w watch) info(itemID int) WatchInfo {
	return WatchInfo{
		ItemID:    itemID,
		Scope:     w.scope.Name,
		ScopeKind: w.scope.Kind,
		Since:     w.since,
	}
}
