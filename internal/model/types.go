package model

import "time"

// -----------------------------------------------------------------------------
// Market Observations
// -----------------------------------------------------------------------------

// Observation is the shape shared by listings and sale records: one priced
// quantity of an item seen on a world.
type Observation struct {
	ItemID       int    // Game item ID
	PricePerUnit int64  // Gil per unit, >= 0
	Quantity     int64  // Units, >= 0
	WorldName    string // World the observation was made on
	HQ           bool   // High-quality variant
}

// TotalPrice is PricePerUnit * Quantity. It is derived on every call and never stored.
func (o Observation) TotalPrice() int64 {
	return o.PricePerUnit * o.Quantity
}

// Listing is an active offer on the market board.
type Listing struct {
	Observation
	ListingID      string    // Provider listing ID (may be empty)
	RetainerName   string    // Seller label
	LastReviewTime time.Time // When the provider last saw the listing
}

// SaleRecord is a completed transaction.
type SaleRecord struct {
	Observation
	BuyerName string    // Buyer label
	SoldAt    time.Time // Sale timestamp
}

// -----------------------------------------------------------------------------
// Snapshots
// -----------------------------------------------------------------------------

// ItemSnapshot is the combined listings + history view of one item.
//
// CurrentListings are kept in ascending price order and RecentHistory in
// descending sale-time order. Listings and history carry their own update
// timestamps because the push channel only refreshes listings.
type ItemSnapshot struct {
	ItemID          int
	Scope           string // World, data center or region the snapshot was queried for
	CurrentListings []Listing
	RecentHistory   []SaleRecord

	FetchedAt         time.Time // Last successful REST fetch (zero if never fetched)
	ListingsUpdatedAt time.Time // Last change to CurrentListings
	HistoryUpdatedAt  time.Time // Last change to RecentHistory
}

// Clone returns a deep copy whose slices do not alias the receiver's.
func (s ItemSnapshot) Clone() ItemSnapshot {
	out := s
	if s.CurrentListings != nil {
		out.CurrentListings = append([]Listing(nil), s.CurrentListings...)
	}
	if s.RecentHistory != nil {
		out.RecentHistory = append([]SaleRecord(nil), s.RecentHistory...)
	}
	return out
}

// UpdatedAt returns the most recent of the snapshot's timestamps.
func (s ItemSnapshot) UpdatedAt() time.Time {
	latest := s.FetchedAt
	if s.ListingsUpdatedAt.After(latest) {
		latest = s.ListingsUpdatedAt
	}
	if s.HistoryUpdatedAt.After(latest) {
		latest = s.HistoryUpdatedAt
	}
	return latest
}

// LowestPrice returns the cheapest listing's unit price, if any.
func (s ItemSnapshot) LowestPrice() (int64, bool) {
	if len(s.CurrentListings) == 0 {
		return 0, false
	}
	low := s.CurrentListings[0].PricePerUnit
	for _, l := range s.CurrentListings[1:] {
		if l.PricePerUnit < low {
			low = l.PricePerUnit
		}
	}
	return low, true
}
