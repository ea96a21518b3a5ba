package store

import (
	"sync"
	"testing"
	"time"

	"github.com/marketboard/mbsync/internal/model"
)

func listing(price, qty int64) model.Listing {
	return model.Listing{Observation: model.Observation{PricePerUnit: price, Quantity: qty}}
}

func sale(price int64) model.SaleRecord {
	return model.SaleRecord{Observation: model.Observation{PricePerUnit: price, Quantity: 1}}
}

func TestStore_GetMissing(t *testing.T) {
	s := New(DefaultConfig())
	if _, ok := s.Get(1); ok {
		t.Error("Get on empty store should report false")
	}
}

func TestStore_ReplaceSnapshot(t *testing.T) {
	s := New(DefaultConfig())
	at := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	s.ReplaceSnapshot(model.ItemSnapshot{
		ItemID:          5333,
		Scope:           "Zodiark",
		CurrentListings: []model.Listing{listing(1000, 2)},
		RecentHistory:   []model.SaleRecord{},
		FetchedAt:       at,
	})

	snap, ok := s.Get(5333)
	if !ok {
		t.Fatal("Get returned false after ReplaceSnapshot")
	}
	if snap.Scope != "Zodiark" {
		t.Errorf("Scope = %q, want Zodiark", snap.Scope)
	}
	if len(snap.CurrentListings) != 1 || snap.CurrentListings[0].TotalPrice() != 2000 {
		t.Errorf("CurrentListings = %+v", snap.CurrentListings)
	}
	if !snap.ListingsUpdatedAt.Equal(at) || !snap.HistoryUpdatedAt.Equal(at) {
		t.Errorf("field-group timestamps should default to FetchedAt")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestStore_ReplaceGroupsIndependently(t *testing.T) {
	s := New(DefaultConfig())
	t0 := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	s.ReplaceSnapshot(model.ItemSnapshot{
		ItemID:          1,
		CurrentListings: []model.Listing{listing(100, 1)},
		RecentHistory:   []model.SaleRecord{sale(90)},
		FetchedAt:       t0,
	})

	t1 := t0.Add(time.Minute)
	s.ReplaceCurrentListings(1, []model.Listing{listing(80, 1), listing(85, 1)}, t1)

	snap, _ := s.Get(1)
	if len(snap.CurrentListings) != 2 {
		t.Errorf("len(CurrentListings) = %d, want 2", len(snap.CurrentListings))
	}
	if len(snap.RecentHistory) != 1 || snap.RecentHistory[0].PricePerUnit != 90 {
		t.Errorf("history changed by listing replace: %+v", snap.RecentHistory)
	}
	if !snap.ListingsUpdatedAt.Equal(t1) || !snap.HistoryUpdatedAt.Equal(t0) {
		t.Errorf("timestamps = %v / %v", snap.ListingsUpdatedAt, snap.HistoryUpdatedAt)
	}

	t2 := t1.Add(time.Minute)
	s.ReplaceHistory(1, []model.SaleRecord{sale(70), sale(75)}, t2)

	snap, _ = s.Get(1)
	if len(snap.CurrentListings) != 2 {
		t.Errorf("listings changed by history replace")
	}
	if len(snap.RecentHistory) != 2 {
		t.Errorf("len(RecentHistory) = %d, want 2", len(snap.RecentHistory))
	}
	if !snap.FetchedAt.Equal(t0) {
		t.Errorf("FetchedAt = %v, want %v", snap.FetchedAt, t0)
	}
}

func TestStore_ReadersGetCopies(t *testing.T) {
	s := New(DefaultConfig())
	input := []model.Listing{listing(100, 1)}
	s.ReplaceCurrentListings(1, input, time.Now())

	input[0].PricePerUnit = 1
	snap, _ := s.Get(1)
	if snap.CurrentListings[0].PricePerUnit != 100 {
		t.Error("store aliased caller's slice")
	}

	snap.CurrentListings[0].PricePerUnit = 2
	again, _ := s.Get(1)
	if again.CurrentListings[0].PricePerUnit != 100 {
		t.Error("Get returned an aliased slice")
	}
}

func TestStore_UpdateListings(t *testing.T) {
	s := New(DefaultConfig())
	s.ReplaceSnapshot(model.ItemSnapshot{
		ItemID:          1,
		CurrentListings: []model.Listing{listing(100, 1)},
		RecentHistory:   []model.SaleRecord{sale(90)},
		FetchedAt:       time.Now(),
	})

	at := time.Now().Add(time.Second)
	got := s.UpdateListings(1, func(cur []model.Listing) []model.Listing {
		return append(cur, listing(120, 3))
	}, at)

	if len(got.CurrentListings) != 2 {
		t.Fatalf("len(CurrentListings) = %d, want 2", len(got.CurrentListings))
	}
	if len(got.RecentHistory) != 1 {
		t.Errorf("UpdateListings touched history")
	}
	if !got.ListingsUpdatedAt.Equal(at) {
		t.Errorf("ListingsUpdatedAt = %v, want %v", got.ListingsUpdatedAt, at)
	}
}

func TestStore_Caps(t *testing.T) {
	s := New(Config{MaxListings: 2, MaxHistory: 1})

	s.ReplaceSnapshot(model.ItemSnapshot{
		ItemID:          1,
		CurrentListings: []model.Listing{listing(1, 1), listing(2, 1), listing(3, 1)},
		RecentHistory:   []model.SaleRecord{sale(9), sale(8)},
		FetchedAt:       time.Now(),
	})

	snap, _ := s.Get(1)
	if len(snap.CurrentListings) != 2 || snap.CurrentListings[1].PricePerUnit != 2 {
		t.Errorf("listings not capped to cheapest 2: %+v", snap.CurrentListings)
	}
	if len(snap.RecentHistory) != 1 || snap.RecentHistory[0].PricePerUnit != 9 {
		t.Errorf("history not capped to most recent: %+v", snap.RecentHistory)
	}

	unbounded := New(Config{})
	many := make([]model.Listing, 500)
	unbounded.ReplaceCurrentListings(1, many, time.Now())
	snap, _ = unbounded.Get(1)
	if len(snap.CurrentListings) != 500 {
		t.Errorf("zero cap should be unbounded, got %d", len(snap.CurrentListings))
	}
}

func TestStore_DeleteAndPrune(t *testing.T) {
	s := New(DefaultConfig())
	old := time.Now().Add(-2 * time.Hour)
	fresh := time.Now()

	s.ReplaceSnapshot(model.ItemSnapshot{ItemID: 1, FetchedAt: old})
	s.ReplaceSnapshot(model.ItemSnapshot{ItemID: 2, FetchedAt: old})
	s.ReplaceSnapshot(model.ItemSnapshot{ItemID: 3, FetchedAt: fresh})

	removed := s.Prune(time.Now().Add(-time.Hour), func(id int) bool { return id == 2 })
	if removed != 1 {
		t.Errorf("Prune removed %d, want 1", removed)
	}
	if _, ok := s.Get(1); ok {
		t.Error("stale item 1 should be pruned")
	}
	if _, ok := s.Get(2); !ok {
		t.Error("kept item 2 should survive")
	}

	if !s.Delete(3) {
		t.Error("Delete(3) = false, want true")
	}
	if s.Delete(3) {
		t.Error("second Delete(3) = true, want false")
	}

	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestStore_PruneDoesNotLoseConcurrentWrite(t *testing.T) {
	s := New(DefaultConfig())
	cutoff := time.Now()

	// An entry with no snapshot yet is stale for any cutoff.
	e := s.entry(5333)
	e.mu.Lock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.ReplaceCurrentListings(5333, []model.Listing{listing(1000, 2)}, time.Now().Add(time.Second))
	}()
	go func() {
		defer wg.Done()
		s.Prune(cutoff, nil)
	}()

	// Let both goroutines block on the entry lock.
	time.Sleep(20 * time.Millisecond)
	e.mu.Unlock()
	wg.Wait()

	snap, ok := s.Get(5333)
	if !ok {
		t.Fatal("write lost to a concurrent prune")
	}
	if len(snap.CurrentListings) != 1 || snap.CurrentListings[0].PricePerUnit != 1000 {
		t.Errorf("CurrentListings = %+v", snap.CurrentListings)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestStore_SameKeyWritesApplyInOrder(t *testing.T) {
	s := New(Config{})

	for i := 1; i <= 100; i++ {
		s.UpdateListings(1, func(cur []model.Listing) []model.Listing {
			return append(cur, listing(int64(len(cur)+1), 1))
		}, time.Now())
	}

	snap, _ := s.Get(1)
	if len(snap.CurrentListings) != 100 {
		t.Fatalf("len = %d, want 100", len(snap.CurrentListings))
	}
	for i, l := range snap.CurrentListings {
		if l.PricePerUnit != int64(i+1) {
			t.Fatalf("listing %d price = %d, want %d", i, l.PricePerUnit, i+1)
		}
	}
}

func TestStore_ConcurrentNoTornReads(t *testing.T) {
	s := New(Config{})
	const writers = 8
	const rounds = 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				// Listings and history always carry matching prices.
				p := int64(w*rounds + r)
				s.ReplaceSnapshot(model.ItemSnapshot{
					ItemID:          1,
					CurrentListings: []model.Listing{listing(p, 1)},
					RecentHistory:   []model.SaleRecord{sale(p)},
					FetchedAt:       time.Now(),
				})
				s.ReplaceCurrentListings(100+w, []model.Listing{listing(p, 1)}, time.Now())
			}
		}(w)
	}

	stop := make(chan struct{})
	var torn int
	var readerWG sync.WaitGroup
	readerWG.Add(1)
	go func() {
		defer readerWG.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap, ok := s.Get(1)
			if !ok {
				continue
			}
			if snap.CurrentListings[0].PricePerUnit != snap.RecentHistory[0].PricePerUnit {
				torn++
			}
		}
	}()

	wg.Wait()
	close(stop)
	readerWG.Wait()

	if torn != 0 {
		t.Errorf("observed %d torn snapshots", torn)
	}
	if s.Len() != writers+1 {
		t.Errorf("Len() = %d, want %d", s.Len(), writers+1)
	}
}
