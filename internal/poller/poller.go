package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Refresher is the part of the coordinator the poller drives.
type Refresher interface {
	RefreshAll(ctx context.Context) error
	PruneStale(ttl time.Duration) int
}

// Config holds poller configuration.
type Config struct {
	Interval      time.Duration // Refresh interval; 0 disables periodic refresh
	Timeout       time.Duration // Deadline for one refresh cycle
	SnapshotTTL   time.Duration // Age after which unwatched snapshots are pruned; 0 disables pruning
	PruneInterval time.Duration // How often to prune (default: 1m)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:      0,
		Timeout:       2 * time.Minute,
		SnapshotTTL:   time.Hour,
		PruneInterval: time.Minute,
	}
}

// Stats reports poller counters.
type Stats struct {
	Cycles       int64
	FailedCycles int64 // Cycles where at least one item failed
	Pruned       int64
}

// Poller periodically refreshes every watched item over REST and prunes
// snapshots nobody watches any more.
type Poller struct {
	cfg       Config
	refresher Refresher
	logger    *slog.Logger

	mu    sync.Mutex
	stats Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, refresher Refresher, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = DefaultConfig().PruneInterval
	}
	return &Poller{
		cfg:       cfg,
		refresher: refresher,
		logger:    logger.With("component", "poller"),
	}
}

// Start begins the polling loops.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	if p.cfg.Interval > 0 {
		p.wg.Add(1)
		go p.refreshLoop()
	}
	if p.cfg.SnapshotTTL > 0 {
		p.wg.Add(1)
		go p.pruneLoop()
	}

	p.logger.Info("poller started",
		"interval", p.cfg.Interval,
		"snapshot_ttl", p.cfg.SnapshotTTL,
	)
	return nil
}

// Stop cancels any running cycle and waits for the loops to exit.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current counters.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Poller) refreshLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.refreshAll()
		}
	}
}

func (p *Poller) pruneLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.prune()
		}
	}
}

// refreshAll runs one refresh cycle.
func (p *Poller) refreshAll() {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := p.refresher.RefreshAll(ctx)

	p.mu.Lock()
	p.stats.Cycles++
	if err != nil {
		p.stats.FailedCycles++
	}
	p.mu.Unlock()

	if err != nil {
		if p.ctx.Err() != nil {
			return
		}
		p.logger.Warn("refresh cycle had failures", "error", err, "duration", time.Since(start))
		return
	}
	p.logger.Debug("refresh cycle complete", "duration", time.Since(start))
}

func (p *Poller) prune() {
	n := p.refresher.PruneStale(p.cfg.SnapshotTTL)
	if n == 0 {
		return
	}

	p.mu.Lock()
	p.stats.Pruned += int64(n)
	p.mu.Unlock()

	p.logger.Info("pruned stale snapshots", "count", n)
}
