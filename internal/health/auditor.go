// Package health audits the registry chain in the background so a corrupted
// chain surfaces on /healthz and in metrics without anyone calling verify.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/jmerrifield20/starnotary/internal/chain"
	"go.uber.org/zap"
)

// Status values reported by the auditor.
const (
	StatusUnknown     = "unknown"
	StatusOK          = "ok"
	StatusCompromised = "compromised"
	StatusError       = "error"
)

// Config holds audit configuration.
type Config struct {
	Interval     time.Duration
	AuditTimeout time.Duration
}

// Validator walks the chain and returns every violation found.
type Validator interface {
	ValidateChain(ctx context.Context) ([]chain.Violation, error)
}

// MetricsRecordFunc is an optional callback invoked after each audit.
type MetricsRecordFunc func(violations int, err error)

// Report is the outcome of the most recent audit.
type Report struct {
	Status     string    `json:"status"`
	CheckedAt  time.Time `json:"checked_at,omitzero"`
	Violations []string  `json:"violations,omitempty"`
}

// Auditor periodically validates the chain and keeps the latest Report.
type Auditor struct {
	validator Validator
	cfg       Config
	now       func() time.Time
	onMetrics MetricsRecordFunc
	logger    *zap.Logger

	mu   sync.RWMutex
	last Report
}

// New creates a new Auditor.
func New(v Validator, cfg Config, logger *zap.Logger) *Auditor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.AuditTimeout <= 0 {
		cfg.AuditTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{
		validator: v,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
		last:      Report{Status: StatusUnknown},
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (a *Auditor) SetMetricsRecord(fn MetricsRecordFunc) {
	a.onMetrics = fn
}

// SetClock overrides the clock used to stamp reports.
func (a *Auditor) SetClock(now func() time.Time) {
	a.now = now
}

// Start audits every Interval until ctx is done. When no audit has run yet
// it audits once immediately; otherwise it waits for the first tick.
func (a *Auditor) Start(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	if a.Report().Status == StatusUnknown {
		a.auditWithTimeout(ctx)
	}
	for {
		select {
		case <-ticker.C:
			a.auditWithTimeout(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *Auditor) auditWithTimeout(ctx context.Context) {
	actx, cancel := context.WithTimeout(ctx, a.cfg.AuditTimeout)
	defer cancel()
	a.Audit(actx)
}

// Audit validates the chain once and records the result.
func (a *Auditor) Audit(ctx context.Context) Report {
	violations, err := a.validator.ValidateChain(ctx)
	if a.onMetrics != nil {
		a.onMetrics(len(violations), err)
	}

	r := Report{CheckedAt: a.now().UTC()}
	switch {
	case err != nil:
		r.Status = StatusError
		a.logger.Error("health: chain audit failed", zap.Error(err))
	case len(violations) > 0:
		r.Status = StatusCompromised
		for _, v := range violations {
			r.Violations = append(r.Violations, v.String())
		}
	default:
		r.Status = StatusOK
	}

	a.mu.Lock()
	prev := a.last.Status
	a.last = r
	a.mu.Unlock()

	if r.Status == StatusCompromised && prev != StatusCompromised {
		a.logger.Warn("health: chain compromised",
			zap.Int("violations", len(r.Violations)),
			zap.Strings("errors", r.Violations),
		)
	} else if r.Status == StatusOK && prev == StatusCompromised {
		a.logger.Info("health: chain recovered")
	}
	return r
}

// Report returns the latest audit result.
func (a *Auditor) Report() Report {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}
