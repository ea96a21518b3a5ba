package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marketboard/mbsync/internal/api"
	"github.com/marketboard/mbsync/internal/connection"
	"github.com/marketboard/mbsync/internal/router"
)

const namespace = "mbsync"

// Recorder records sync metrics on a Prometheus registerer.
// All methods are no-ops on a nil *Recorder.
type Recorder struct {
	reg prometheus.Registerer

	connState         prometheus.Gauge
	connects          prometheus.Counter
	disconnects       prometheus.Counter
	reconnectAttempts prometheus.Counter

	fetchDuration prometheus.Histogram
	fetchErrors   *prometheus.CounterVec

	deltas      *prometheus.CounterVec
	lateFetches prometheus.Counter
	archiveRows *prometheus.CounterVec
}

// New creates a Recorder whose collectors are registered on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		connState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "Push connection state (0 disconnected, 1 connecting, 2 connected, 3 closing)",
		}),
		connects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "connects_total",
			Help:      "Successful push connections",
		}),
		disconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "disconnects_total",
			Help:      "Push connections lost or closed",
		}),
		reconnectAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnect_attempts_total",
			Help:      "Reconnects scheduled after a failure",
		}),
		fetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Snapshot fetch latency",
			Buckets:   prometheus.DefBuckets,
		}),
		fetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "errors_total",
			Help:      "Failed snapshot fetches by kind",
		}, []string{"kind"}),
		deltas: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "deltas_total",
			Help:      "Listing deltas by outcome",
		}, []string{"outcome"}),
		lateFetches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "late_fetches_discarded_total",
			Help:      "Fetch results dropped because the watch changed",
		}),
		archiveRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "rows_total",
			Help:      "Archived sale rows by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveFetch records one snapshot fetch.
func (r *Recorder) ObserveFetch(d time.Duration, err error) {
	if r == nil {
		return
	}
	r.fetchDuration.Observe(d.Seconds())
	if err != nil {
		r.fetchErrors.WithLabelValues(fetchErrorKind(err)).Inc()
	}
}

// DeltaApplied counts a delta merged into the store.
func (r *Recorder) DeltaApplied() {
	if r == nil {
		return
	}
	r.deltas.WithLabelValues("applied").Inc()
}

// DeltaIgnored counts a delta for an unwatched item or foreign world.
func (r *Recorder) DeltaIgnored() {
	if r == nil {
		return
	}
	r.deltas.WithLabelValues("ignored").Inc()
}

// LateFetchDiscarded counts a fetch result dropped after its watch changed.
func (r *Recorder) LateFetchDiscarded() {
	if r == nil {
		return
	}
	r.lateFetches.Inc()
}

// ArchiveFlushed counts rows handed to the archive database.
func (r *Recorder) ArchiveFlushed(inserted, failed int) {
	if r == nil {
		return
	}
	r.archiveRows.WithLabelValues("inserted").Add(float64(inserted))
	r.archiveRows.WithLabelValues("failed").Add(float64(failed))
}

// ObserveStatus updates connection metrics from one status change.
func (r *Recorder) ObserveStatus(change connection.StatusChange) {
	if r == nil {
		return
	}
	r.connState.Set(float64(change.State))

	switch {
	case change.State == connection.StateConnected && change.Previous != connection.StateConnected:
		r.connects.Inc()
	case change.Previous == connection.StateConnected && change.State != connection.StateConnected:
		r.disconnects.Inc()
	}
	if change.RetryIn > 0 {
		r.reconnectAttempts.Inc()
	}
}

// TrackStatus feeds status changes into ObserveStatus until ctx is done or
// the channel closes.
func (r *Recorder) TrackStatus(ctx context.Context, changes <-chan connection.StatusChange) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			r.ObserveStatus(c)
		}
	}
}

// RegisterRouter exports router counters read from stats on each scrape.
func (r *Recorder) RegisterRouter(stats func() router.RouterStats) {
	if r == nil {
		return
	}
	f := promauto.With(r.reg)

	frames := []struct {
		name, help string
		read       func(router.RouterStats) int64
	}{
		{"frames_received_total", "Push frames received", func(s router.RouterStats) int64 { return s.FramesReceived }},
		{"deltas_decoded_total", "Listing deltas decoded", func(s router.RouterStats) int64 { return s.DeltasRouted }},
		{"unknown_frames_total", "Well-formed frames of another shape", func(s router.RouterStats) int64 { return s.UnknownFrames }},
		{"malformed_frames_total", "Frames that failed to decode", func(s router.RouterStats) int64 { return s.MalformedFrames }},
	}
	for _, fr := range frames {
		read := fr.read
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      fr.name,
			Help:      fr.help,
		}, func() float64 { return float64(read(stats())) })
	}

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "queue_length",
		Help:      "Deltas waiting for dispatch",
	}, func() float64 { return float64(stats().Queue.Len) })
}

// RegisterStore exports the number of stored snapshots.
func (r *Recorder) RegisterStore(size func() int) {
	if r == nil {
		return
	}
	promauto.With(r.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "items",
		Help:      "Snapshots held in memory",
	}, func() float64 { return float64(size()) })
}

func fetchErrorKind(err error) string {
	var fe *api.FetchError
	if errors.As(err, &fe) {
		return fe.Kind.String()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return "other"
}
