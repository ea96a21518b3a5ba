// Package world holds the static region / data center / world tables and
// resolves user-supplied market scopes against them.
//
// The tables are immutable and built once at init; every lookup is safe for
// concurrent use.
package world
