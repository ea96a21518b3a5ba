// Package archive persists sale history to PostgreSQL.
//
// Each successful snapshot fetch hands its recent sales to the archive, which
// buffers them and inserts in batches. Sales seen by an earlier fetch are
// skipped by the table's primary key.
package archive
