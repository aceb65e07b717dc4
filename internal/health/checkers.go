package health

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/tcsintel/intelgraph/internal/circuitbreaker"
)

// degradedLatency is the point where a dependency still answers but counts
// as degraded.
const degradedLatency = 100 * time.Millisecond

// RedisChecker verifies the session/cache store backend. Critical: without
// Redis neither store can serve.
type RedisChecker struct {
	wrapper *circuitbreaker.RedisWrapper
	logger  *zap.Logger
	timeout time.Duration
}

// NewRedisChecker creates a Redis health checker over the breaker wrapper.
func NewRedisChecker(wrapper *circuitbreaker.RedisWrapper, logger *zap.Logger) *RedisChecker {
	return &RedisChecker{wrapper: wrapper, logger: logger, timeout: 5 * time.Second}
}

func (r *RedisChecker) Name() string           { return "redis" }
func (r *RedisChecker) IsCritical() bool       { return true }
func (r *RedisChecker) Timeout() time.Duration { return r.timeout }

func (r *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "redis", Critical: true, Timestamp: start.UTC()}

	if r.wrapper.IsCircuitBreakerOpen() {
		result.Status = StatusUnhealthy
		result.Error = "circuit breaker open"
		result.Message = "Redis circuit breaker is open"
		result.Duration = time.Since(start)
		return result
	}

	err := r.wrapper.Ping(ctx).Err()
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "Redis ping failed"
		return result
	}

	if result.Duration > degradedLatency {
		result.Status = StatusDegraded
		result.Message = "Redis responding with high latency"
	} else {
		result.Status = StatusHealthy
		result.Message = "Redis healthy"
	}
	result.Details = map[string]interface{}{"latency_ms": result.Duration.Milliseconds()}
	return result
}

// TemporalChecker verifies the workflow service. Critical: no Temporal, no
// new research sessions.
type TemporalChecker struct {
	client  client.Client
	logger  *zap.Logger
	timeout time.Duration
}

// NewTemporalChecker creates a Temporal health checker.
func NewTemporalChecker(c client.Client, logger *zap.Logger) *TemporalChecker {
	return &TemporalChecker{client: c, logger: logger, timeout: 5 * time.Second}
}

func (t *TemporalChecker) Name() string           { return "temporal" }
func (t *TemporalChecker) IsCritical() bool       { return true }
func (t *TemporalChecker) Timeout() time.Duration { return t.timeout }

func (t *TemporalChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "temporal", Critical: true, Timestamp: start.UTC()}

	_, err := t.client.WorkflowService().GetSystemInfo(ctx, &workflowservice.GetSystemInfoRequest{})
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "Temporal service unreachable"
		return result
	}

	if result.Duration > degradedLatency {
		result.Status = StatusDegraded
		result.Message = "Temporal responding with high latency"
	} else {
		result.Status = StatusHealthy
		result.Message = "Temporal healthy"
	}
	result.Details = map[string]interface{}{"latency_ms": result.Duration.Milliseconds()}
	return result
}

// ArchiveChecker verifies the optional session archive database.
// Non-critical: archival is best effort and a down archive never blocks
// research.
type ArchiveChecker struct {
	db      *sqlx.DB
	logger  *zap.Logger
	timeout time.Duration
}

// NewArchiveChecker creates an archive database health checker.
func NewArchiveChecker(db *sqlx.DB, logger *zap.Logger) *ArchiveChecker {
	return &ArchiveChecker{db: db, logger: logger, timeout: 5 * time.Second}
}

func (a *ArchiveChecker) Name() string           { return "archive" }
func (a *ArchiveChecker) IsCritical() bool       { return false }
func (a *ArchiveChecker) Timeout() time.Duration { return a.timeout }

func (a *ArchiveChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "archive", Timestamp: start.UTC()}

	err := a.db.PingContext(ctx)
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusDegraded
		result.Error = err.Error()
		result.Message = "Archive database unreachable, sessions will not be archived"
		return result
	}

	stats := a.db.Stats()
	result.Status = StatusHealthy
	result.Message = "Archive database healthy"
	result.Details = map[string]interface{}{
		"latency_ms":       result.Duration.Milliseconds(),
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
	}
	return result
}

// GatewayChecker validates the agent gateway configuration: a configured
// model and a sane rate limit. Non-critical and purely local; it never
// spends an external call on a probe.
type GatewayChecker struct {
	model  string
	limits func() (rpm, tpm int)
}

// NewGatewayChecker creates a gateway configuration checker. limits reports
// the effective rate limits; nil skips that part of the check.
func NewGatewayChecker(model string, limits func() (rpm, tpm int)) *GatewayChecker {
	return &GatewayChecker{model: model, limits: limits}
}

func (g *GatewayChecker) Name() string           { return "gateway" }
func (g *GatewayChecker) IsCritical() bool       { return false }
func (g *GatewayChecker) Timeout() time.Duration { return time.Second }

func (g *GatewayChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "gateway", Timestamp: start.UTC()}

	if g.model == "" {
		result.Status = StatusUnhealthy
		result.Error = "no model configured"
		result.Message = "Agent gateway has no model configured"
		result.Duration = time.Since(start)
		return result
	}

	details := map[string]interface{}{"model": g.model}
	result.Status = StatusHealthy
	result.Message = "Agent gateway configured"
	if g.limits != nil {
		rpm, tpm := g.limits()
		details["rpm_limit"] = rpm
		details["tpm_limit"] = tpm
		if rpm <= 0 {
			result.Status = StatusDegraded
			result.Message = "Agent gateway rate limit disabled"
		}
	}
	result.Details = details
	result.Duration = time.Since(start)
	return result
}
