package store

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/marketboard/mbsync/internal/model"
)

// Config bounds how much each snapshot may hold. Zero means unbounded.
type Config struct {
	MaxListings int
	MaxHistory  int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxListings: 100,
		MaxHistory:  100,
	}
}

// ListingsFunc computes new listings from the current ones. The input slice
// is a private copy and may be modified.
type ListingsFunc func(current []model.Listing) []model.Listing

// Store is an in-memory snapshot cache keyed by item ID.
//
// Each item has its own lock, so writes to different items never contend.
// Snapshots are swapped atomically: readers see either the previous or the
// next snapshot, never a mix of the two.
type Store struct {
	cfg     Config
	entries sync.Map // int -> *entry
	count   atomic.Int64
}

type entry struct {
	mu      sync.Mutex // serializes writers and removal
	removed bool       // set under mu when the entry leaves the map
	snap    atomic.Pointer[model.ItemSnapshot]
}

// New creates an empty Store.
func New(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Get returns a copy of the item's snapshot.
func (s *Store) Get(itemID int) (model.ItemSnapshot, bool) {
	v, ok := s.entries.Load(itemID)
	if !ok {
		return model.ItemSnapshot{}, false
	}
	snap := v.(*entry).snap.Load()
	if snap == nil {
		return model.ItemSnapshot{}, false
	}
	return snap.Clone(), true
}

// ReplaceCurrentListings swaps in a new listing set, leaving history as is.
func (s *Store) ReplaceCurrentListings(itemID int, listings []model.Listing, at time.Time) {
	s.update(itemID, func(next *model.ItemSnapshot) {
		next.CurrentListings = s.capListings(append([]model.Listing(nil), listings...))
		next.ListingsUpdatedAt = at
	})
}

// ReplaceHistory swaps in a new sale history, leaving listings as is.
func (s *Store) ReplaceHistory(itemID int, records []model.SaleRecord, at time.Time) {
	s.update(itemID, func(next *model.ItemSnapshot) {
		next.RecentHistory = s.capHistory(append([]model.SaleRecord(nil), records...))
		next.HistoryUpdatedAt = at
	})
}

// ReplaceSnapshot swaps in listings and history together as one update.
// Returns the stored snapshot after caps are applied.
func (s *Store) ReplaceSnapshot(snap model.ItemSnapshot) model.ItemSnapshot {
	return s.update(snap.ItemID, func(next *model.ItemSnapshot) {
		next.Scope = snap.Scope
		next.CurrentListings = s.capListings(append([]model.Listing(nil), snap.CurrentListings...))
		next.RecentHistory = s.capHistory(append([]model.SaleRecord(nil), snap.RecentHistory...))
		next.FetchedAt = snap.FetchedAt
		next.ListingsUpdatedAt = orTime(snap.ListingsUpdatedAt, snap.FetchedAt)
		next.HistoryUpdatedAt = orTime(snap.HistoryUpdatedAt, snap.FetchedAt)
	})
}

// UpdateListings runs fn against the current listings under the item's lock
// and stores the result. History is untouched. Returns the new snapshot.
func (s *Store) UpdateListings(itemID int, fn ListingsFunc, at time.Time) model.ItemSnapshot {
	return s.update(itemID, func(next *model.ItemSnapshot) {
		next.CurrentListings = s.capListings(fn(next.CurrentListings))
		next.ListingsUpdatedAt = at
	})
}

// Delete removes an item. Reports whether it was present.
func (s *Store) Delete(itemID int) bool {
	v, ok := s.entries.Load(itemID)
	if !ok {
		return false
	}
	return s.remove(itemID, v.(*entry), nil)
}

// Prune removes snapshots last updated before cutoff. Items for which keep
// returns true are skipped. Returns the number removed.
func (s *Store) Prune(cutoff time.Time, keep func(itemID int) bool) int {
	stale := func(snap *model.ItemSnapshot) bool {
		return snap == nil || snap.UpdatedAt().Before(cutoff)
	}

	removed := 0
	s.entries.Range(func(k, v any) bool {
		itemID := k.(int)
		if keep != nil && keep(itemID) {
			return true
		}
		e := v.(*entry)
		if stale(e.snap.Load()) && s.remove(itemID, e, stale) {
			removed++
		}
		return true
	})
	return removed
}

// remove detaches e from the map under its lock, so a writer holding e
// either finishes first or sees removed and retries on a fresh entry.
// When cond is set it must still hold once the lock is taken.
func (s *Store) remove(itemID int, e *entry, cond func(*model.ItemSnapshot) bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed || (cond != nil && !cond(e.snap.Load())) {
		return false
	}
	if !s.entries.CompareAndDelete(itemID, e) {
		return false
	}
	e.removed = true
	s.count.Add(-1)
	return true
}

// Len returns the number of items held.
func (s *Store) Len() int {
	return int(s.count.Load())
}

// update applies mutate to a private copy of the item's snapshot and
// publishes it.
func (s *Store) update(itemID int, mutate func(next *model.ItemSnapshot)) model.ItemSnapshot {
	for {
		if snap, ok := s.apply(s.entry(itemID), itemID, mutate); ok {
			return snap
		}
	}
}

// apply runs one update against e. It reports false when e was removed
// before its lock was taken.
func (s *Store) apply(e *entry, itemID int, mutate func(next *model.ItemSnapshot)) (model.ItemSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return model.ItemSnapshot{}, false
	}

	var next model.ItemSnapshot
	if cur := e.snap.Load(); cur != nil {
		next = cur.Clone()
	} else {
		next = model.ItemSnapshot{ItemID: itemID}
	}
	mutate(&next)
	next.ItemID = itemID

	e.snap.Store(&next)
	return next.Clone(), true
}

func (s *Store) entry(itemID int) *entry {
	if v, ok := s.entries.Load(itemID); ok {
		return v.(*entry)
	}
	v, loaded := s.entries.LoadOrStore(itemID, &entry{})
	if !loaded {
		s.count.Add(1)
	}
	return v.(*entry)
}

func (s *Store) capListings(l []model.Listing) []model.Listing {
	if s.cfg.MaxListings > 0 && len(l) > s.cfg.MaxListings {
		return l[:s.cfg.MaxListings:s.cfg.MaxListings]
	}
	return l
}

func (s *Store) capHistory(h []model.SaleRecord) []model.SaleRecord {
	if s.cfg.MaxHistory > 0 && len(h) > s.cfg.MaxHistory {
		return h[:s.cfg.MaxHistory:s.cfg.MaxHistory]
	}
	return h
}

func orTime(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}
