// Package poller implements the periodic refresher.
//
// The poller:
//   - Refreshes every watched item over REST on a fixed interval, as a backstop
//     for listings the push channel missed and for sale history, which the
//     push channel never carries
//   - Prunes snapshots of items that have been unwatched for longer than the
//     snapshot TTL
package poller
