package router

import (
	"github.com/marketboard/mbsync/internal/codec"
	"github.com/marketboard/mbsync/internal/queue"
)

// RouterConfig holds configuration for the Message Router.
type RouterConfig struct {
	DeltaBufferSize int // Initial delta queue capacity. Default: 1000
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		DeltaBufferSize: 1000,
	}
}

// DeltaHandler consumes decoded listing deltas. Calls are made from a single
// goroutine, in the order frames arrived.
type DeltaHandler interface {
	HandleDelta(delta codec.ListingDelta)
}

// DeltaHandlerFunc adapts a function to DeltaHandler.
type DeltaHandlerFunc func(delta codec.ListingDelta)

// HandleDelta calls f(delta).
func (f DeltaHandlerFunc) HandleDelta(delta codec.ListingDelta) {
	f(delta)
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	FramesReceived   int64
	DeltasRouted     int64 // Queued for dispatch
	DeltasDispatched int64 // Handed to the DeltaHandler
	UnknownFrames    int64 // Well-formed frames of another shape
	MalformedFrames  int64
	Queue            queue.Stats
}
