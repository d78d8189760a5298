package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/keygatehq/keygate/internal/metrics"
	"github.com/keygatehq/keygate/internal/store"
)

// Outcome tags a rate-limit decision. AdmittedDegraded marks a fail-open
// admission taken because the usage count could not be read.
type Outcome string

const (
	Admitted         Outcome = "admitted"
	Denied           Outcome = "denied"
	AdmittedDegraded Outcome = "admitted_degraded"
)

// Decision is the limiter's verdict for one request. Limit, Remaining, and
// ResetAt feed the client-facing rate-limit headers.
type Decision struct {
	Outcome   Outcome
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Admit reports whether the request may proceed.
func (d Decision) Admit() bool {
	return d.Outcome != Denied
}

// Limiter enforces a per-key request quota over a rolling window by counting
// usage rows. The count-then-admit sequence is deliberately unsynchronized:
// two concurrent requests near the boundary can both be admitted, trading a
// small constant over-admission under burst for read scalability. On a
// storage error the limiter fails open, because API availability outranks
// strict quota enforcement during an outage.
type Limiter struct {
	store        *store.Store
	window       time.Duration
	storeTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// NewLimiter creates a Limiter counting over the given rolling window.
func NewLimiter(st *store.Store, window, storeTimeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Limiter {
	return &Limiter{
		store:        st,
		window:       window,
		storeTimeout: storeTimeout,
		logger:       logger,
		metrics:      m,
	}
}

// Window returns the configured rolling window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Check counts usage for keyID within the current window and decides
// admit/deny. ResetAt is now plus the window length, for client headers;
// this is a sliding count, not a fixed bucket. Check never returns an
// error: counting failures admit the request in degraded mode.
func (l *Limiter) Check(ctx context.Context, keyID string, quota int) Decision {
	now := time.Now()
	resetAt := now.Add(l.window)

	cctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	count, err := l.store.CountUsageSince(cctx, keyID, now.Add(-l.window))
	if err != nil {
		l.logger.Warn("usage count failed, admitting in degraded mode",
			"key_id", keyID, "error", err)
		l.metrics.LimiterDecisions.WithLabelValues(string(AdmittedDegraded)).Inc()
		return Decision{Outcome: AdmittedDegraded, Limit: quota, Remaining: quota, ResetAt: resetAt}
	}

	if count >= quota {
		l.metrics.LimiterDecisions.WithLabelValues(string(Denied)).Inc()
		return Decision{Outcome: Denied, Limit: quota, Remaining: 0, ResetAt: resetAt}
	}

	// Remaining reports what is left after this request is admitted.
	remaining := quota - count - 1
	if remaining < 0 {
		remaining = 0
	}
	l.metrics.LimiterDecisions.WithLabelValues(string(Admitted)).Inc()
	return Decision{Outcome: Admitted, Limit: quota, Remaining: remaining, ResetAt: resetAt}
}
