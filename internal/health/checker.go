// Package health audits ledger integrity in the background and reports it
// through the standard gRPC health service.
package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Config holds integrity check configuration.
type Config struct {
	CheckInterval time.Duration
	CheckTimeout  time.Duration
	FailThreshold int
}

// Verifier re-verifies a chain. *ledger.Ledger satisfies it.
type Verifier interface {
	Verify(ctx context.Context) error
}

// StatusSetter receives serving-status transitions. *health.Server from
// google.golang.org/grpc/health satisfies it.
type StatusSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

// DegradedFunc is an optional callback fired once when the ledger becomes degraded.
type DegradedFunc func(err error)

// MetricsRecordFunc is an optional callback for recording check results.
type MetricsRecordFunc func(success bool)

// Checker runs periodic integrity checks. The ledger is degraded once
// FailThreshold consecutive checks fail, and healthy again after one success.
type Checker struct {
	verifier   Verifier
	cfg        Config
	logger     *zap.Logger
	onStatus   StatusSetter
	onDegraded DegradedFunc
	onMetrics  MetricsRecordFunc

	mu        sync.Mutex
	failCount int
	healthy   atomic.Bool
}

// New creates a Checker. The ledger is assumed healthy until a check says otherwise.
func New(v Verifier, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 5 * time.Minute
	}
	if cfg.CheckTimeout == 0 {
		cfg.CheckTimeout = 30 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Checker{verifier: v, cfg: cfg, logger: logger}
	c.healthy.Store(true)
	return c
}

// SetStatusSetter configures where serving-status transitions are published.
func (c *Checker) SetStatusSetter(s StatusSetter) {
	c.onStatus = s
	if s != nil {
		s.SetServingStatus(ServiceName, servingStatus(c.Healthy()))
	}
}

// SetDegradedCallback configures the degraded-transition callback.
func (c *Checker) SetDegradedCallback(fn DegradedFunc) {
	c.onDegraded = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (c *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	c.onMetrics = fn
}

// Healthy reports the current integrity status.
func (c *Checker) Healthy() bool {
	return c.healthy.Load()
}

// Start runs the check loop until ctx is done. The first check runs immediately.
func (c *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		checkCtx, cancel := context.WithTimeout(ctx, c.cfg.CheckTimeout)
		c.Check(checkCtx)
		cancel()

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// Check runs one verification and applies the resulting transition.
// It reports whether this check passed.
func (c *Checker) Check(ctx context.Context) bool {
	err := c.verifier.Verify(ctx)
	success := err == nil
	if ctx.Err() != nil && !success {
		// Cancelled or timed out checks say nothing about the chain.
		return false
	}

	if c.onMetrics != nil {
		c.onMetrics(success)
	}

	c.mu.Lock()
	if success {
		c.failCount = 0
	} else {
		c.failCount++
	}
	count := c.failCount
	c.mu.Unlock()

	switch {
	case success && !c.healthy.Load():
		c.setHealthy(true)
		c.logger.Info("health: ledger integrity recovered")
	case !success && count == c.cfg.FailThreshold:
		c.setHealthy(false)
		c.logger.Warn("health: ledger integrity degraded",
			zap.Int("fail_count", count),
			zap.Error(err),
		)
		if c.onDegraded != nil {
			c.onDegraded(err)
		}
	case !success:
		c.logger.Warn("health: ledger integrity check failed",
			zap.Int("fail_count", count),
			zap.Error(err),
		)
	}
	return success
}

func (c *Checker) setHealthy(ok bool) {
	c.healthy.Store(ok)
	if c.onStatus != nil {
		c.onStatus.SetServingStatus(ServiceName, servingStatus(ok))
	}
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
