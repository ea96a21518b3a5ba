package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/marketboard/mbsync/internal/model"
)

// ErrMalformed marks a payload that could not be decoded.
var ErrMalformed = errors.New("malformed payload")

const (
	eventSubscribe   = "subscribe"
	eventUnsubscribe = "unsubscribe"
	eventListingAdd  = "listings/add"
)

// Kind tags a decoded push frame.
type Kind int

const (
	KindUnknown Kind = iota
	KindListingAdd
)

func (k Kind) String() string {
	switch k {
	case KindListingAdd:
		return "listing_add"
	default:
		return "unknown"
	}
}

// ListingDelta carries listings the provider reports as newly added for one item.
type ListingDelta struct {
	ItemID     int
	WorldID    int // 0 when the frame did not say
	Listings   []model.Listing
	ReceivedAt time.Time
}

// Message is the result of decoding one push frame.
//
// Kind is KindUnknown for anything that is not a listing-add event. Err is
// nil for well-formed frames of an unrecognized shape and wraps ErrMalformed
// when the frame could not be parsed.
type Message struct {
	Kind  Kind
	Event string
	Delta ListingDelta
	Err   error
}

// Channel returns the listing-add channel name for an item.
func Channel(itemID int) string {
	return eventListingAdd + "/" + strconv.Itoa(itemID)
}

// EncodeSubscribe builds the subscribe frame for an item.
func EncodeSubscribe(itemID int) []byte {
	return encodeCommand(eventSubscribe, itemID)
}

// EncodeUnsubscribe builds the unsubscribe frame for an item.
func EncodeUnsubscribe(itemID int) []byte {
	return encodeCommand(eventUnsubscribe, itemID)
}

func encodeCommand(event string, itemID int) []byte {
	data, _ := json.Marshal(command{Event: event, Channel: Channel(itemID)})
	return data
}

// Decode parses an inbound push frame. It never fails: anything it cannot
// interpret comes back as KindUnknown.
func Decode(data []byte) Message {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{Kind: KindUnknown, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	isListingAdd := env.Event == eventListingAdd ||
		(env.Event == "" && strings.HasPrefix(env.Channel, eventListingAdd+"/"))
	if !isListingAdd {
		return Message{Kind: KindUnknown, Event: env.Event}
	}

	itemID, err := env.itemID()
	if err != nil {
		return Message{Kind: KindUnknown, Event: env.Event, Err: err}
	}

	var wire []listingWire
	if len(env.Listings) > 0 && string(env.Listings) != "null" {
		if err := json.Unmarshal(env.Listings, &wire); err != nil {
			return Message{Kind: KindUnknown, Event: env.Event, Err: fmt.Errorf("%w: listings: %v", ErrMalformed, err)}
		}
	}

	listings, err := toListings(itemID, wire)
	if err != nil {
		return Message{Kind: KindUnknown, Event: env.Event, Err: err}
	}

	delta := ListingDelta{ItemID: itemID, Listings: listings}
	if env.World != nil {
		delta.WorldID = *env.World
	}

	return Message{Kind: KindListingAdd, Event: eventListingAdd, Delta: delta}
}

// itemID reads the item from the "item" field, falling back to the channel suffix.
func (e envelope) itemID() (int, error) {
	if e.Item != nil {
		if *e.Item <= 0 {
			return 0, fmt.Errorf("%w: item id %d", ErrMalformed, *e.Item)
		}
		return *e.Item, nil
	}

	suffix, ok := strings.CutPrefix(e.Channel, eventListingAdd+"/")
	if !ok {
		return 0, fmt.Errorf("%w: listing event without item", ErrMalformed)
	}
	id, err := strconv.Atoi(suffix)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: channel %q", ErrMalformed, e.Channel)
	}
	return id, nil
}

// DecodeSnapshot parses a REST snapshot body. fetchedAt stamps the result.
func DecodeSnapshot(data []byte, fetchedAt time.Time) (model.ItemSnapshot, error) {
	var wire snapshotWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return model.ItemSnapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if wire.ItemID == nil {
		return model.ItemSnapshot{}, fmt.Errorf("%w: missing itemID", ErrMalformed)
	}

	itemID := *wire.ItemID
	listings, err := toListings(itemID, wire.Listings)
	if err != nil {
		return model.ItemSnapshot{}, err
	}
	history, err := toSales(itemID, wire.RecentHistory)
	if err != nil {
		return model.ItemSnapshot{}, err
	}

	return model.ItemSnapshot{
		ItemID:            itemID,
		Scope:             wire.scope(),
		CurrentListings:   listings,
		RecentHistory:     history,
		FetchedAt:         fetchedAt,
		ListingsUpdatedAt: fetchedAt,
		HistoryUpdatedAt:  fetchedAt,
	}, nil
}

func toListings(itemID int, wire []listingWire) ([]model.Listing, error) {
	out := make([]model.Listing, 0, len(wire))
	for i, w := range wire {
		if w.PricePerUnit < 0 || w.Quantity < 0 {
			return nil, fmt.Errorf("%w: listing %d has negative price or quantity", ErrMalformed, i)
		}
		out = append(out, model.Listing{
			Observation: model.Observation{
				ItemID:       itemID,
				PricePerUnit: w.PricePerUnit,
				Quantity:     w.Quantity,
				WorldName:    w.WorldName,
				HQ:           w.HQ,
			},
			ListingID:      w.ListingID,
			RetainerName:   w.RetainerName,
			LastReviewTime: unixSeconds(w.LastReviewTime),
		})
	}
	return out, nil
}

func toSales(itemID int, wire []saleWire) ([]model.SaleRecord, error) {
	out := make([]model.SaleRecord, 0, len(wire))
	for i, w := range wire {
		if w.PricePerUnit < 0 || w.Quantity < 0 {
			return nil, fmt.Errorf("%w: sale %d has negative price or quantity", ErrMalformed, i)
		}
		out = append(out, model.SaleRecord{
			Observation: model.Observation{
				ItemID:       itemID,
				PricePerUnit: w.PricePerUnit,
				Quantity:     w.Quantity,
				WorldName:    w.WorldName,
				HQ:           w.HQ,
			},
			BuyerName: w.BuyerName,
			SoldAt:    unixSeconds(w.Timestamp),
		})
	}
	return out, nil
}

func unixSeconds(s int64) time.Time {
	if s <= 0 {
		return time.Time{}
	}
	return time.Unix(s, 0).UTC()
}
