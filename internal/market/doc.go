// Package market implements the Sync Coordinator.
//
// The coordinator owns the watch list. For each watched item it keeps a push
// subscription open and a snapshot in the store, built from a REST fetch and
// kept current by listing deltas. Fetches that complete after their watch was
// removed or replaced are discarded.
package market
