package codec

import "encoding/json"

// command is an outbound subscription frame.
type command struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
}

// envelope is the minimal shape read from every inbound push frame.
type envelope struct {
	Event    string          `json:"event"`
	Channel  string          `json:"channel"`
	Item     *int            `json:"item"`
	World    *int            `json:"world"`
	Listings json.RawMessage `json:"listings"`
}

// listingWire is one listing as sent by the provider (push and REST).
type listingWire struct {
	ListingID      string `json:"listingID"`
	PricePerUnit   int64  `json:"pricePerUnit"`
	Quantity       int64  `json:"quantity"`
	WorldName      string `json:"worldName"`
	WorldID        int    `json:"worldID"`
	RetainerName   string `json:"retainerName"`
	HQ             bool   `json:"hq"`
	LastReviewTime int64  `json:"lastReviewTime"` // Unix seconds
}

// saleWire is one history entry from the REST endpoint.
type saleWire struct {
	PricePerUnit int64  `json:"pricePerUnit"`
	Quantity     int64  `json:"quantity"`
	WorldName    string `json:"worldName"`
	BuyerName    string `json:"buyerName"`
	HQ           bool   `json:"hq"`
	Timestamp    int64  `json:"timestamp"` // Unix seconds
}

// snapshotWire is the REST response body for /api/v2/{world}/{item}.
type snapshotWire struct {
	ItemID        *int          `json:"itemID"`
	WorldName     string        `json:"worldName"`
	DCName        string        `json:"dcName"`
	RegionName    string        `json:"regionName"`
	Listings      []listingWire `json:"listings"`
	RecentHistory []saleWire    `json:"recentHistory"`
}

// scope returns the name of the world/DC/region the provider answered for.
func (s snapshotWire) scope() string {
	switch {
	case s.WorldName != "":
		return s.WorldName
	case s.DCName != "":
		return s.DCName
	default:
		return s.RegionName
	}
}
