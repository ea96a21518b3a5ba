package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marketboard/mbsync/internal/codec"
	"github.com/marketboard/mbsync/internal/model"
	"github.com/marketboard/mbsync/internal/world"
)

// fetchAndApply fetches a snapshot for a watch and stores it. Concurrent
// requests for the same watch share one fetch.
func (c *coordinator) fetchAndApply(ctx context.Context, itemID int, w watch) (model.ItemSnapshot, error) {
	key := strconv.Itoa(itemID) + "/" + w.scope.Name + "/" + strconv.FormatUint(w.gen, 10)

	v, err, shared := c.flight.Do(key, func() (any, error) {
		return c.fetch(ctx, itemID, w)
	})
	if err != nil {
		return model.ItemSnapshot{}, err
	}

	snap := v.(model.ItemSnapshot)
	if shared {
		snap = snap.Clone()
	}
	return snap, nil
}

// fetch performs one REST fetch and applies it unless the watch changed
// while the request was in flight.
func (c *coordinator) fetch(ctx context.Context, itemID int, w watch) (model.ItemSnapshot, error) {
	if c.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.FetchTimeout)
		defer cancel()
	}

	start := time.Now()
	snap, err := c.fetcher.FetchSnapshot(ctx, itemID, w.scope.Name)
	if c.metrics != nil {
		c.metrics.ObserveFetch(time.Since(start), err)
	}
	if err != nil {
		c.logger.Warn("snapshot fetch failed",
			"item_id", itemID,
			"scope", w.scope.Name,
			"error", err,
		)
		return model.ItemSnapshot{}, err
	}

	if snap.Scope == "" {
		snap.Scope = w.scope.Name
	}

	c.mu.RLock()
	cur, ok := c.watches[itemID]
	if !ok || cur.gen != w.gen {
		c.mu.RUnlock()
		if c.metrics != nil {
			c.metrics.LateFetchDiscarded()
		}
		c.logger.Debug("discarding late fetch", "item_id", itemID, "scope", w.scope.Name)
		return model.ItemSnapshot{}, fmt.Errorf("item %d: watch changed during fetch: %w", itemID, ErrNotWatched)
	}
	stored := c.store.ReplaceSnapshot(snap)
	c.mu.RUnlock()

	if c.sink != nil && len(stored.RecentHistory) > 0 {
		c.sink.ArchiveSales(stored.RecentHistory)
	}

	c.logger.Debug("snapshot applied",
		"item_id", itemID,
		"scope", stored.Scope,
		"listings", len(stored.CurrentListings),
		"history", len(stored.RecentHistory),
	)

	return stored, nil
}

// RefreshAll refreshes every watched item. Failures of single items do not
// stop the others; they are joined into the returned error.
func (c *coordinator) RefreshAll(ctx context.Context) error {
	type target struct {
		itemID int
		w      watch
	}

	c.mu.RLock()
	targets := make([]target, 0, len(c.watches))
	for id, w := range c.watches {
		targets = append(targets, target{itemID: id, w: w})
	}
	c.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}

	start := time.Now()

	var g errgroup.Group
	g.SetLimit(c.cfg.RefreshConcurrency)

	var mu sync.Mutex
	var errs []error

	for _, t := range targets {
		t := t
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			_, err := c.fetchAndApply(ctx, t.itemID, t.w)
			if err != nil && !errors.Is(err, ErrNotWatched) {
				mu.Lock()
				errs = append(errs, fmt.Errorf("item %d: %w", t.itemID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	c.logger.Debug("refresh complete",
		"items", len(targets),
		"failed", len(errs),
		"duration", time.Since(start),
	)

	return errors.Join(errs...)
}

// HandleDelta merges pushed listings into a watched item's snapshot.
// Deltas for unwatched items, or from worlds outside the watch scope, are
// ignored. History is never touched.
func (c *coordinator) HandleDelta(delta codec.ListingDelta) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w, ok := c.watches[delta.ItemID]
	if !ok {
		c.ignoreDelta(delta, "not watched")
		return
	}
	if delta.WorldID != 0 && !w.scope.Contains(delta.WorldID) {
		c.ignoreDelta(delta, "outside scope")
		return
	}

	added := normalizeListings(delta)
	at := delta.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}

	c.store.UpdateListings(delta.ItemID, func(cur []model.Listing) []model.Listing {
		return mergeListings(cur, added)
	}, at)

	if c.metrics != nil {
		c.metrics.DeltaApplied()
	}
}

func (c *coordinator) ignoreDelta(delta codec.ListingDelta, reason string) {
	if c.metrics != nil {
		c.metrics.DeltaIgnored()
	}
	c.logger.Debug("ignoring delta",
		"item_id", delta.ItemID,
		"world_id", delta.WorldID,
		"reason", reason,
	)
}

// normalizeListings fills item and world fields the push frame left out.
func normalizeListings(delta codec.ListingDelta) []model.Listing {
	worldName, _ := world.Name(delta.WorldID)

	out := make([]model.Listing, len(delta.Listings))
	for i, l := range delta.Listings {
		l.ItemID = delta.ItemID
		if l.WorldName == "" {
			l.WorldName = worldName
		}
		out[i] = l
	}
	return out
}

// mergeListings adds listings to cur, replacing any with the same non-empty
// ListingID, and returns the result in ascending price order. Equal prices
// keep their relative order.
func mergeListings(cur, added []model.Listing) []model.Listing {
	out := make([]model.Listing, 0, len(cur)+len(added))
	index := make(map[string]int, len(cur)+len(added))

	put := func(l model.Listing) {
		if l.ListingID != "" {
			if i, ok := index[l.ListingID]; ok {
				out[i] = l
				return
			}
			index[l.ListingID] = len(out)
		}
		out = append(out, l)
	}

	for _, l := range cur {
		put(l)
	}
	for _, l := range added {
		put(l)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PricePerUnit < out[j].PricePerUnit
	})
	return out
}
