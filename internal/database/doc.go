// Package database provides the PostgreSQL connection pool used by the
// sale history archive, and the archive schema.
package database
