package httpapi

import (
	"time"

	"github.com/marketboard/mbsync/internal/connection"
	"github.com/marketboard/mbsync/internal/model"
)

type listingJSON struct {
	ListingID      string    `json:"listingId,omitempty"`
	PricePerUnit   int64     `json:"pricePerUnit"`
	Quantity       int64     `json:"quantity"`
	TotalPrice     int64     `json:"totalPrice"`
	WorldName      string    `json:"worldName"`
	HQ             bool      `json:"hq"`
	RetainerName   string    `json:"retainerName"`
	LastReviewTime time.Time `json:"lastReviewTime"`
}

type saleJSON struct {
	PricePerUnit int64     `json:"pricePerUnit"`
	Quantity     int64     `json:"quantity"`
	TotalPrice   int64     `json:"totalPrice"`
	WorldName    string    `json:"worldName"`
	HQ           bool      `json:"hq"`
	BuyerName    string    `json:"buyerName"`
	SoldAt       time.Time `json:"soldAt"`
}

type snapshotJSON struct {
	ItemID            int           `json:"itemId"`
	Scope             string        `json:"scope"`
	Watched           bool          `json:"watched"`
	Listings          []listingJSON `json:"listings"`
	RecentHistory     []saleJSON    `json:"recentHistory"`
	FetchedAt         *time.Time    `json:"fetchedAt,omitempty"`
	ListingsUpdatedAt *time.Time    `json:"listingsUpdatedAt,omitempty"`
	HistoryUpdatedAt  *time.Time    `json:"historyUpdatedAt,omitempty"`
}

// toSnapshotJSON converts a snapshot. Total prices are computed here, on read.
func toSnapshotJSON(snap model.ItemSnapshot, watched bool) snapshotJSON {
	out := snapshotJSON{
		ItemID:            snap.ItemID,
		Scope:             snap.Scope,
		Watched:           watched,
		Listings:          make([]listingJSON, 0, len(snap.CurrentListings)),
		RecentHistory:     make([]saleJSON, 0, len(snap.RecentHistory)),
		FetchedAt:         optionalTime(snap.FetchedAt),
		ListingsUpdatedAt: optionalTime(snap.ListingsUpdatedAt),
		HistoryUpdatedAt:  optionalTime(snap.HistoryUpdatedAt),
	}

	for _, l := range snap.CurrentListings {
		out.Listings = append(out.Listings, listingJSON{
			ListingID:      l.ListingID,
			PricePerUnit:   l.PricePerUnit,
			Quantity:       l.Quantity,
			TotalPrice:     l.TotalPrice(),
			WorldName:      l.WorldName,
			HQ:             l.HQ,
			RetainerName:   l.RetainerName,
			LastReviewTime: l.LastReviewTime,
		})
	}
	for _, r := range snap.RecentHistory {
		out.RecentHistory = append(out.RecentHistory, saleJSON{
			PricePerUnit: r.PricePerUnit,
			Quantity:     r.Quantity,
			TotalPrice:   r.TotalPrice(),
			WorldName:    r.WorldName,
			HQ:           r.HQ,
			BuyerName:    r.BuyerName,
			SoldAt:       r.SoldAt,
		})
	}
	return out
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type statusJSON struct {
	State     string    `json:"state"`
	Previous  string    `json:"previous,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Error     string    `json:"error,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	RetryInMs int64     `json:"retryInMs,omitempty"`
	At        time.Time `json:"at"`
}

func toStatusJSON(c connection.StatusChange) statusJSON {
	out := statusJSON{
		State:     c.State.String(),
		SessionID: c.SessionID,
		Attempt:   c.Attempt,
		RetryInMs: c.RetryIn.Milliseconds(),
		At:        c.At,
	}
	if c.State != c.Previous {
		out.Previous = c.Previous.String()
	}
	if c.Err != nil {
		out.Error = c.Err.Error()
	}
	return out
}
