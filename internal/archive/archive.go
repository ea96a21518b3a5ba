package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marketboard/mbsync/internal/model"
	"github.com/marketboard/mbsync/internal/queue"
)

const insertSale = `
	INSERT INTO sale_history (item_id, world_name, price_per_unit, quantity, hq, buyer_name, sold_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT DO NOTHING
`

// Config contains archive batching settings.
type Config struct {
	BatchSize     int           // Rows per insert batch
	FlushInterval time.Duration // Max time a row waits before being written
	BufferSize    int           // Max rows pending; further rows are dropped
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: 5 * time.Second,
		BufferSize:    10000,
	}
}

// BatchSender sends a pgx batch. *pgxpool.Pool satisfies it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Recorder receives flush outcomes.
type Recorder interface {
	ArchiveFlushed(inserted, failed int)
}

// Stats reports archive counters.
type Stats struct {
	Pending   int
	Inserts   int64
	Conflicts int64 // Rows already archived by an earlier fetch
	Dropped   int64 // Rows rejected because the buffer was full or closed
	Errors    int64 // Failed batches
	Flushes   int64
}

// Archive writes sale records to PostgreSQL in batches. It implements the
// coordinator's history sink: ArchiveSales never blocks on the database.
type Archive struct {
	cfg     Config
	db      BatchSender
	logger  *slog.Logger
	metrics Recorder

	input *queue.Queue[model.SaleRecord]

	batch   []model.SaleRecord
	batchMu sync.Mutex

	statsMu sync.Mutex
	stats   Stats

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// Option configures an Archive.
type Option func(*Archive)

// WithRecorder reports flush outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(a *Archive) { a.metrics = r }
}

// New creates an Archive writing through db.
func New(cfg Config, db BatchSender, logger *slog.Logger, opts ...Option) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}

	a := &Archive{
		cfg:    cfg,
		db:     db,
		logger: logger.With("component", "archive"),
		input:  queue.New[model.SaleRecord](cfg.BatchSize),
		batch:  make([]model.SaleRecord, 0, cfg.BatchSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ArchiveSales queues records for writing.
func (a *Archive) ArchiveSales(records []model.SaleRecord) {
	var dropped int64
	for _, r := range records {
		if a.input.Len() >= a.cfg.BufferSize || !a.input.Push(r) {
			dropped++
		}
	}
	if dropped == 0 {
		return
	}

	a.statsMu.Lock()
	a.stats.Dropped += dropped
	a.statsMu.Unlock()
	a.logger.Warn("archive buffer full, dropping sales", "dropped", dropped)
}

// Start begins consuming queued records. Cancelling ctx does not abort
// inserts; Stop ends the archive after writing what is queued.
func (a *Archive) Start(ctx context.Context) {
	a.ctx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))

	a.wg.Add(2)
	go a.consumeLoop()
	go a.flushLoop()

	a.logger.Info("archive started",
		"batch_size", a.cfg.BatchSize,
		"flush_interval", a.cfg.FlushInterval,
	)
}

// Stop stops accepting records and writes everything already queued, or
// gives up when ctx is done.
func (a *Archive) Stop(ctx context.Context) error {
	a.logger.Info("stopping archive")
	a.input.Close()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		a.logger.Info("archive stopped")
	case <-ctx.Done():
		err = ctx.Err()
		a.logger.Warn("archive stop timed out", "pending", a.input.Len())
	}

	if a.cancel != nil {
		a.cancel()
	}
	return err
}

// Stats returns current counters.
func (a *Archive) Stats() Stats {
	a.statsMu.Lock()
	s := a.stats
	a.statsMu.Unlock()

	a.batchMu.Lock()
	s.Pending = len(a.batch) + a.input.Len()
	a.batchMu.Unlock()
	return s
}

func (a *Archive) consumeLoop() {
	defer a.wg.Done()
	defer close(a.done)

	for {
		r, ok := a.input.Pop()
		if !ok {
			a.flush()
			return
		}

		a.batchMu.Lock()
		a.batch = append(a.batch, r)
		if room := a.cfg.BatchSize - len(a.batch); room > 0 {
			a.batch = append(a.batch, a.input.PopBatch(room)...)
		}
		full := len(a.batch) >= a.cfg.BatchSize
		a.batchMu.Unlock()

		if full {
			a.flush()
		}
	}
}

func (a *Archive) flushLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.done:
			return
		case <-ticker.C:
			a.flush()
		}
	}
}

// flush writes the current batch.
func (a *Archive) flush() {
	a.batchMu.Lock()
	if len(a.batch) == 0 {
		a.batchMu.Unlock()
		return
	}
	batch := a.batch
	a.batch = make([]model.SaleRecord, 0, a.cfg.BatchSize)
	a.batchMu.Unlock()

	start := time.Now()

	conflicts, err := a.insert(batch)
	if err != nil {
		a.logger.Error("batch insert failed", "error", err, "count", len(batch))
		a.statsMu.Lock()
		a.stats.Errors++
		a.statsMu.Unlock()
		if a.metrics != nil {
			a.metrics.ArchiveFlushed(0, len(batch))
		}
		return
	}

	inserted := len(batch) - conflicts
	a.statsMu.Lock()
	a.stats.Inserts += int64(inserted)
	a.stats.Conflicts += int64(conflicts)
	a.stats.Flushes++
	a.statsMu.Unlock()
	if a.metrics != nil {
		a.metrics.ArchiveFlushed(inserted, 0)
	}

	a.logger.Debug("flushed sales",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// insert sends rows as one pgx batch and counts rows that already existed.
func (a *Archive) insert(rows []model.SaleRecord) (conflicts int, err error) {
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(insertSale,
			r.ItemID, r.WorldName, r.PricePerUnit, r.Quantity, r.HQ, r.BuyerName, r.SoldAt.UTC())
	}

	results := a.db.SendBatch(a.ctx, b)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
