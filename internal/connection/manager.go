package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marketboard/mbsync/internal/codec"
)

// Manager owns the single push connection and the set of item subscriptions
// multiplexed over it.
type Manager interface {
	// Connect opens the connection and replays every subscription.
	// It is a no-op while Connecting or Connected. A failed attempt
	// schedules a reconnect.
	Connect(ctx context.Context) error

	// Disconnect closes the connection and cancels any pending reconnect.
	// Subscriptions are kept for the next Connect.
	Disconnect(ctx context.Context) error

	// Close shuts the manager down for good, dropping all subscriptions.
	// Messages and status watchers are closed.
	Close(ctx context.Context) error

	// Subscribe adds an item to the subscription set and, when Connected,
	// sends the subscribe frame. Returns ErrNotConnected if the item is
	// only queued for the next connect.
	Subscribe(itemID int) error

	// Unsubscribe removes an item and, when Connected, sends the
	// unsubscribe frame. Returns ErrNotConnected if no frame was sent.
	Unsubscribe(itemID int) error

	// Subscriptions returns the subscribed item IDs in ascending order.
	Subscriptions() []int

	// IsSubscribed reports whether itemID is in the subscription set.
	IsSubscribed(itemID int) bool

	// State returns the current connection state.
	State() State

	// IsConnected reports whether State is Connected.
	IsConnected() bool

	// WatchStatus registers a status watcher. The current status is sent
	// first. Call cancel to unregister.
	WatchStatus() (changes <-chan StatusChange, cancel func())

	// Messages returns inbound frames for the router, in wire order.
	Messages() <-chan RawMessage

	// Stats returns current connection and subscription statistics.
	Stats() ManagerStats
}

// ClientFactory creates the Client for one connection attempt.
type ClientFactory func(cfg ClientConfig, logger *slog.Logger) Client

// Timer is the part of *time.Timer the manager uses.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

// ManagerOption configures a Manager.
type ManagerOption func(*manager)

// WithClientFactory replaces the WebSocket client constructor.
func WithClientFactory(f ClientFactory) ManagerOption {
	return func(m *manager) {
		m.newClient = f
	}
}

// WithAfterFunc replaces the reconnect timer.
func WithAfterFunc(f AfterFunc) ManagerOption {
	return func(m *manager) {
		m.afterFunc = f
	}
}

// manager implements the Manager interface.
type manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	newClient ClientFactory
	afterFunc AfterFunc

	out    chan RawMessage
	status *statusHub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// opMu serializes subscription traffic so a replay and a concurrent
	// Subscribe never both send a frame for the same item.
	opMu sync.Mutex

	mu          sync.Mutex
	state       State
	client      Client
	sessionID   string
	sessionDone chan struct{}
	epoch       uint64 // bumped whenever the current connection is abandoned
	dialCancel  context.CancelFunc
	subs        map[int]struct{}
	timer       Timer
	timerGen    uint64
	attempt     int
	closed      bool

	connects        atomic.Int64
	connectFailures atomic.Int64
	drops           atomic.Int64
	frames          atomic.Int64
	subscribesSent  atomic.Int64
	unsubsSent      atomic.Int64
}

// NewManager creates a new Connection Manager in the Disconnected state.
func NewManager(cfg ManagerConfig, logger *slog.Logger, opts ...ManagerOption) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &manager{
		cfg:       cfg,
		logger:    logger,
		newClient: NewClient,
		afterFunc: func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) },
		out:       make(chan RawMessage, cfg.MessageBufferSize),
		subs:      make(map[int]struct{}),
		state:     StateDisconnected,
	}
	m.status = newStatusHub(cfg.StatusBufferSize, StatusChange{State: StateDisconnected, Previous: StateDisconnected, At: time.Now()})
	m.ctx, m.cancel = context.WithCancel(context.Background())

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Connect opens the connection.
func (m *manager) Connect(ctx context.Context) error {
	return m.connect(ctx, false, 0)
}

func (m *manager) connect(ctx context.Context, fromTimer bool, gen uint64) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrAlreadyClosed
	case fromTimer && gen != m.timerGen:
		// Reconnect was cancelled after the timer fired.
		m.mu.Unlock()
		return nil
	case m.state == StateConnecting || m.state == StateConnected:
		m.mu.Unlock()
		return nil
	case m.state == StateClosing:
		m.mu.Unlock()
		return fmt.Errorf("disconnect in progress: %w", ErrNotConnected)
	}

	m.stopTimerLocked()
	m.epoch++
	epoch := m.epoch
	dialCtx, cancel := context.WithCancel(ctx)
	m.dialCancel = cancel
	attempt := m.attempt
	m.setStateLocked(StateConnecting, nil, 0)
	m.mu.Unlock()
	defer cancel()

	clientCfg := m.cfg.Client
	c := m.newClient(clientCfg, m.logger)

	m.logger.Info("connecting", "url", clientCfg.URL, "attempt", attempt)
	err := c.Connect(dialCtx)

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	m.dialCancel = nil
	if epoch != m.epoch || m.closed {
		// Disconnect or Close ran while dialing.
		m.mu.Unlock()
		c.Close()
		return fmt.Errorf("connect interrupted: %w", ErrNotConnected)
	}

	if err != nil {
		m.connectFailures.Add(1)
		m.setStateLocked(StateDisconnected, err, 0)
		m.scheduleReconnectLocked(err)
		m.mu.Unlock()
		c.Close()
		m.logger.Warn("connection failed", "url", clientCfg.URL, "error", err)
		return fmt.Errorf("connect %s: %w", clientCfg.URL, err)
	}

	sessionID := uuid.NewString()
	done := make(chan struct{})
	m.client = c
	m.sessionID = sessionID
	m.sessionDone = done
	m.attempt = 0
	m.connects.Add(1)
	m.setStateLocked(StateConnected, nil, 0)
	items := m.subscriptionsLocked()

	m.wg.Add(1)
	go m.readLoop(c, epoch, sessionID, done)
	m.mu.Unlock()

	m.logger.Info("connected", "session", sessionID, "subscriptions", len(items))

	m.replay(c, sessionID, items)
	return nil
}

// replay re-issues one subscribe frame per item. Caller holds opMu.
func (m *manager) replay(c Client, sessionID string, items []int) {
	for _, itemID := range items {
		if err := c.Send(codec.EncodeSubscribe(itemID)); err != nil {
			// The read loop will notice the broken socket and reconnect.
			m.logger.Warn("replay subscribe failed",
				"session", sessionID,
				"item_id", itemID,
				"error", err,
			)
			return
		}
		m.subscribesSent.Add(1)
	}
	if len(items) > 0 {
		m.logger.Debug("subscriptions replayed", "session", sessionID, "count", len(items))
	}
}

// Disconnect closes the connection without forgetting subscriptions.
func (m *manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	m.stopTimerLocked()
	if m.dialCancel != nil {
		m.dialCancel()
	}
	if m.state == StateDisconnected || m.state == StateClosing {
		m.mu.Unlock()
		return nil
	}

	m.epoch++
	epoch := m.epoch
	c, done := m.client, m.sessionDone
	m.client, m.sessionDone, m.sessionID = nil, nil, ""
	m.attempt = 0
	m.setStateLocked(StateClosing, nil, 0)
	m.mu.Unlock()

	m.logger.Info("disconnecting")

	if c != nil {
		c.Close()
	}

	var err error
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	m.mu.Lock()
	if m.epoch == epoch {
		m.setStateLocked(StateDisconnected, nil, 0)
	}
	m.mu.Unlock()

	return err
}

// Close shuts down the manager.
func (m *manager) Close(ctx context.Context) error {
	m.logger.Info("closing connection manager")

	m.opMu.Lock()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.opMu.Unlock()
		return nil
	}
	m.subs = make(map[int]struct{})
	m.mu.Unlock()
	m.opMu.Unlock()

	err := m.Disconnect(ctx)

	m.mu.Lock()
	m.closed = true
	m.stopTimerLocked()
	m.mu.Unlock()

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
		return ctx.Err()
	}

	close(m.out)
	m.status.close()

	m.logger.Info("connection manager closed")
	return err
}

// Subscribe adds itemID to the subscription set.
func (m *manager) Subscribe(itemID int) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	_, exists := m.subs[itemID]
	m.subs[itemID] = struct{}{}
	connected := m.state == StateConnected
	c := m.client
	m.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}
	if exists {
		return nil
	}

	if err := c.Send(codec.EncodeSubscribe(itemID)); err != nil {
		if err == ErrNotConnected {
			return ErrNotConnected
		}
		return fmt.Errorf("send subscribe %d: %w", itemID, err)
	}
	m.subscribesSent.Add(1)

	m.logger.Debug("subscribed", "item_id", itemID)
	return nil
}

// Unsubscribe removes itemID from the subscription set.
func (m *manager) Unsubscribe(itemID int) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	_, exists := m.subs[itemID]
	delete(m.subs, itemID)
	connected := m.state == StateConnected
	c := m.client
	m.mu.Unlock()

	if !exists {
		return nil
	}
	if !connected {
		return ErrNotConnected
	}

	if err := c.Send(codec.EncodeUnsubscribe(itemID)); err != nil {
		if err == ErrNotConnected {
			return ErrNotConnected
		}
		return fmt.Errorf("send unsubscribe %d: %w", itemID, err)
	}
	m.unsubsSent.Add(1)

	m.logger.Debug("unsubscribed", "item_id", itemID)
	return nil
}

// Subscriptions returns a sorted copy of the subscription set.
func (m *manager) Subscriptions() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscriptionsLocked()
}

func (m *manager) subscriptionsLocked() []int {
	items := make([]int, 0, len(m.subs))
	for id := range m.subs {
		items = append(items, id)
	}
	sort.Ints(items)
	return items
}

// IsSubscribed reports set membership.
func (m *manager) IsSubscribed(itemID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subs[itemID]
	return ok
}

// State returns the current state.
func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the connection is open.
func (m *manager) IsConnected() bool {
	return m.State() == StateConnected
}

// WatchStatus registers a status watcher.
func (m *manager) WatchStatus() (<-chan StatusChange, func()) {
	return m.status.watch()
}

// Messages returns the output channel for the router.
func (m *manager) Messages() <-chan RawMessage {
	return m.out
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return ManagerStats{
		State:             m.state,
		SessionID:         m.sessionID,
		Subscriptions:     len(m.subs),
		Connects:          m.connects.Load(),
		ConnectFailures:   m.connectFailures.Load(),
		Drops:             m.drops.Load(),
		FramesReceived:    m.frames.Load(),
		SubscribesSent:    m.subscribesSent.Load(),
		UnsubscribesSent:  m.unsubsSent.Load(),
		ReconnectAttempts: m.attempt,
	}
}

// readLoop forwards one connection's messages until it ends.
func (m *manager) readLoop(c Client, epoch uint64, sessionID string, done chan struct{}) {
	defer m.wg.Done()
	defer close(done)

	for {
		select {
		case <-m.ctx.Done():
			return

		case msg, ok := <-c.Messages():
			if !ok {
				var err error
				select {
				case err = <-c.Errors():
				default:
				}
				m.handleDrop(c, epoch, sessionID, err)
				return
			}

			m.frames.Add(1)

			select {
			case m.out <- RawMessage{
				Data:       msg.Data,
				SessionID:  sessionID,
				ReceivedAt: msg.ReceivedAt,
			}:
			case <-m.ctx.Done():
				return
			}
		}
	}
}

// handleDrop reacts to a connection that ended without Disconnect.
func (m *manager) handleDrop(c Client, epoch uint64, sessionID string, err error) {
	m.mu.Lock()
	if epoch != m.epoch || m.closed {
		// Ended by Disconnect or Close.
		m.mu.Unlock()
		return
	}

	m.epoch++
	m.client, m.sessionDone, m.sessionID = nil, nil, ""
	m.drops.Add(1)
	m.logger.Warn("connection lost", "session", sessionID, "error", err)
	m.setStateLocked(StateDisconnected, err, 0)
	m.scheduleReconnectLocked(err)
	m.mu.Unlock()

	c.Close()
}

// scheduleReconnectLocked arms the reconnect timer using capped exponential
// backoff. Caller holds mu.
func (m *manager) scheduleReconnectLocked(cause error) {
	if m.closed {
		return
	}

	delay := Backoff(m.attempt, m.cfg.ReconnectBaseWait, m.cfg.ReconnectMaxWait)
	m.attempt++
	m.timerGen++
	gen := m.timerGen

	m.timer = m.afterFunc(delay, func() {
		if err := m.connect(m.ctx, true, gen); err != nil {
			m.logger.Debug("reconnect attempt failed", "error", err)
		}
	})

	m.logger.Info("reconnect scheduled", "attempt", m.attempt, "delay", delay)

	m.status.publish(StatusChange{
		State:    StateDisconnected,
		Previous: StateDisconnected,
		Err:      cause,
		Attempt:  m.attempt,
		RetryIn:  delay,
		At:       time.Now(),
	})
}

// stopTimerLocked cancels any pending reconnect. Caller holds mu.
func (m *manager) stopTimerLocked() {
	m.timerGen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// setStateLocked records a transition and notifies watchers. Caller holds mu.
func (m *manager) setStateLocked(s State, err error, retryIn time.Duration) {
	prev := m.state
	m.state = s

	change := StatusChange{
		State:    s,
		Previous: prev,
		Err:      err,
		RetryIn:  retryIn,
		At:       time.Now(),
	}
	if s == StateConnected {
		change.SessionID = m.sessionID
	}
	m.status.publish(change)
}
