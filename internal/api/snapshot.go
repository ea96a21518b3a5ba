package api

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/marketboard/mbsync/internal/codec"
	"github.com/marketboard/mbsync/internal/model"
)

const snapshotPath = "/api/v2/{scope}/{item}"

// FetchSnapshot retrieves the current listings and recent history of one item
// for a world, data center or region. An empty scope means the home world.
//
// Failures are returned as *FetchError.
func (c *Client) FetchSnapshot(ctx context.Context, itemID int, scope string) (model.ItemSnapshot, error) {
	if scope == "" {
		scope = c.homeWorld
	}

	start := time.Now()
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"scope": scope,
			"item":  strconv.Itoa(itemID),
		}).
		SetQueryParams(map[string]string{
			"listings": strconv.Itoa(c.listings),
			"entries":  strconv.Itoa(c.entries),
		}).
		Get(snapshotPath)
	if err != nil {
		return model.ItemSnapshot{}, &FetchError{Kind: NetworkFailure, Err: err}
	}

	if code := resp.StatusCode(); code < 200 || code > 299 {
		c.logger.Debug("snapshot fetch rejected",
			"item_id", itemID,
			"scope", scope,
			"status", code,
		)
		return model.ItemSnapshot{}, &FetchError{Kind: HTTPStatus, StatusCode: code}
	}

	snap, err := codec.DecodeSnapshot(resp.Body(), time.Now())
	if err != nil {
		return model.ItemSnapshot{}, &FetchError{Kind: MalformedResponse, Err: err}
	}
	if snap.ItemID != itemID {
		return model.ItemSnapshot{}, &FetchError{
			Kind: MalformedResponse,
			Err:  fmt.Errorf("response for item %d, requested %d", snap.ItemID, itemID),
		}
	}
	if snap.Scope == "" {
		snap.Scope = scope
	}

	c.logger.Debug("snapshot fetched",
		"item_id", itemID,
		"scope", snap.Scope,
		"listings", len(snap.CurrentListings),
		"history", len(snap.RecentHistory),
		"duration", time.Since(start),
	)

	return snap, nil
}
