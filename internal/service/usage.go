package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/keygatehq/keygate/internal/metrics"
	"github.com/keygatehq/keygate/internal/model"
	"github.com/keygatehq/keygate/internal/store"
)

// Recorder appends the audit row for each completed request. Writes are
// best-effort: a failure is logged and counted but never reaches the
// response path.
type Recorder struct {
	store        *store.Store
	storeTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// NewRecorder creates a Recorder with a bounded per-write timeout.
func NewRecorder(st *store.Store, storeTimeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Recorder {
	return &Recorder{
		store:        st,
		storeTimeout: storeTimeout,
		logger:       logger,
		metrics:      m,
	}
}

// Record appends one usage row. It uses its own background context so it can
// run after the originating request's context is gone, and never returns an
// error to the caller.
func (r *Recorder) Record(rec *model.UsageRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), r.storeTimeout)
	defer cancel()

	if err := r.store.InsertUsage(ctx, rec); err != nil {
		r.metrics.UsageWriteFailures.Inc()
		r.logger.Warn("usage record dropped",
			"key_id", rec.APIKeyID, "endpoint", rec.Endpoint, "error", err)
	}
}
