// Package store implements the in-memory Snapshot Store.
//
// The store holds one ItemSnapshot per item and only ever replaces snapshots
// wholesale. Listings and history can be replaced independently; the REST
// fetch path replaces both in a single step while the push path rewrites
// listings only.
package store
