package router

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/marketboard/mbsync/internal/codec"
	"github.com/marketboard/mbsync/internal/connection"
	"github.com/marketboard/mbsync/internal/queue"
)

// Router decodes raw push frames and dispatches listing deltas.
type Router interface {
	// Start begins routing messages from the input channel to the handler.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the router. Deltas already queued are
	// dispatched before it returns, unless ctx expires first.
	Stop(ctx context.Context) error

	// Stats returns current router statistics.
	Stats() RouterStats
}

// router is the internal implementation.
type router struct {
	cfg     RouterConfig
	logger  *slog.Logger
	handler DeltaHandler

	// Input from Connection Manager
	input <-chan connection.RawMessage

	// Decoded deltas waiting for dispatch
	deltas *queue.Queue[codec.ListingDelta]

	// Lifecycle
	ctx          context.Context
	cancel       context.CancelFunc
	routeDone    chan struct{}
	dispatchDone chan struct{}
	stopOnce     sync.Once

	received   atomic.Int64
	routed     atomic.Int64
	dispatched atomic.Int64
	unknown    atomic.Int64
	malformed  atomic.Int64
}

// NewRouter creates a new Message Router.
func NewRouter(cfg RouterConfig, input <-chan connection.RawMessage, handler DeltaHandler, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &router{
		cfg:          cfg,
		logger:       logger,
		handler:      handler,
		input:        input,
		deltas:       queue.New[codec.ListingDelta](cfg.DeltaBufferSize),
		routeDone:    make(chan struct{}),
		dispatchDone: make(chan struct{}),
	}
}

// Start begins routing messages.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	go r.routeLoop()
	go r.dispatchLoop()

	r.logger.Info("message router started", "delta_buffer", r.cfg.DeltaBufferSize)

	return nil
}

// Stop gracefully shuts down the router.
func (r *router) Stop(ctx context.Context) error {
	var err error
	r.stopOnce.Do(func() {
		r.logger.Info("stopping message router")

		if r.cancel == nil {
			r.deltas.Close()
			return
		}
		r.cancel()

		select {
		case <-r.routeDone:
		case <-ctx.Done():
			err = ctx.Err()
		}

		// No more pushes once routing has stopped.
		r.deltas.Close()

		select {
		case <-r.dispatchDone:
			r.logger.Info("message router stopped", "pending", r.deltas.Len())
		case <-ctx.Done():
			r.logger.Warn("message router stop timed out", "pending", r.deltas.Len())
			err = ctx.Err()
		}
	})
	return err
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	return RouterStats{
		FramesReceived:   r.received.Load(),
		DeltasRouted:     r.routed.Load(),
		DeltasDispatched: r.dispatched.Load(),
		UnknownFrames:    r.unknown.Load(),
		MalformedFrames:  r.malformed.Load(),
		Queue:            r.deltas.Stats(),
	}
}

// routeLoop is the main routing goroutine.
func (r *router) routeLoop() {
	defer close(r.routeDone)

	for {
		select {
		case <-r.ctx.Done():
			return
		case raw, ok := <-r.input:
			if !ok {
				r.logger.Info("input channel closed")
				r.deltas.Close()
				return
			}
			r.route(raw)
		}
	}
}

// route decodes a single frame and queues it if it carries a delta.
func (r *router) route(raw connection.RawMessage) {
	r.received.Add(1)

	msg := codec.Decode(raw.Data)

	switch msg.Kind {
	case codec.KindListingAdd:
		delta := msg.Delta
		delta.ReceivedAt = raw.ReceivedAt
		if r.deltas.Push(delta) {
			r.routed.Add(1)
		}

	default:
		if msg.Err != nil {
			r.malformed.Add(1)
			r.logger.Debug("failed to decode frame",
				"session", raw.SessionID,
				"bytes", len(raw.Data),
				"error", msg.Err,
			)
			return
		}
		r.unknown.Add(1)
		r.logger.Debug("skipping frame", "event", msg.Event, "session", raw.SessionID)
	}
}

// dispatchLoop hands deltas to the handler one at a time, in order.
func (r *router) dispatchLoop() {
	defer close(r.dispatchDone)

	for {
		delta, ok := r.deltas.Pop()
		if !ok {
			return
		}
		if r.handler != nil {
			r.handler.HandleDelta(delta)
		}
		r.dispatched.Add(1)
	}
}
