package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager holds the registered checkers, runs them concurrently with a
// per-check timeout, and caches the latest results for the background loop.
type Manager struct {
	logger   *zap.Logger
	interval time.Duration

	mu       sync.RWMutex
	checkers map[string]Checker
	last     map[string]CheckResult

	stopCh  chan struct{}
	stopped sync.Once
	started bool
}

// NewManager creates a health manager. interval controls the background
// check cadence; non-positive disables the background loop.
func NewManager(interval time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		logger:   logger,
		interval: interval,
		checkers: make(map[string]Checker),
		last:     make(map[string]CheckResult),
		stopCh:   make(chan struct{}),
	}
}

// Register adds a checker. Registering the same name twice is an error.
func (m *Manager) Register(c Checker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.checkers[c.Name()]; exists {
		return fmt.Errorf("health checker %q already registered", c.Name())
	}
	m.checkers[c.Name()] = c
	m.logger.Info("Registered health checker",
		zap.String("name", c.Name()),
		zap.Bool("critical", c.IsCritical()),
	)
	return nil
}

// Start launches the background check loop.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started || m.interval <= 0 {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.RunChecks(context.Background())
			}
		}
	}()
}

// Stop halts the background loop. Safe to call more than once.
func (m *Manager) Stop() {
	m.stopped.Do(func() { close(m.stopCh) })
}

// RunChecks executes every registered checker concurrently, each under its
// own timeout, and caches the results.
func (m *Manager) RunChecks(ctx context.Context) map[string]CheckResult {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	var wg sync.WaitGroup
	var resMu sync.Mutex
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			res := m.runOne(ctx, c)
			resMu.Lock()
			results[c.Name()] = res
			resMu.Unlock()
		}(c)
	}
	wg.Wait()

	m.mu.Lock()
	for name, res := range results {
		m.last[name] = res
	}
	m.mu.Unlock()
	return results
}

func (m *Manager) runOne(ctx context.Context, c Checker) CheckResult {
	timeout := c.Timeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan CheckResult, 1)
	go func() { done <- c.Check(cctx) }()

	select {
	case res := <-done:
		res.StatusStr = res.Status.String()
		return res
	case <-cctx.Done():
		return CheckResult{
			Component: c.Name(),
			Status:    StatusUnhealthy,
			StatusStr: StatusUnhealthy.String(),
			Error:     "health check timed out",
			Duration:  timeout,
			Timestamp: time.Now().UTC(),
			Critical:  c.IsCritical(),
		}
	}
}

// Detailed runs all checks and builds the full report. An unhealthy critical
// component marks the service unhealthy; any other non-healthy outcome only
// degrades it.
func (m *Manager) Detailed(ctx context.Context) DetailedHealth {
	results := m.RunChecks(ctx)

	summary := Summary{Total: len(results)}
	status := StatusHealthy
	ready := true
	for _, res := range results {
		switch res.Status {
		case StatusHealthy:
			summary.Healthy++
		case StatusDegraded:
			summary.Degraded++
			if status == StatusHealthy {
				status = StatusDegraded
			}
		default:
			summary.Unhealthy++
			if res.Critical {
				status = StatusUnhealthy
				ready = false
			} else if status == StatusHealthy {
				status = StatusDegraded
			}
		}
	}

	return DetailedHealth{
		Overall: OverallHealth{
			Status:    status.String(),
			Ready:     ready,
			Timestamp: time.Now().UTC(),
		},
		Components: results,
		Summary:    summary,
	}
}

// IsReady reports whether every critical dependency passed its most recent
// check, running the checks synchronously if none have run yet.
func (m *Manager) IsReady(ctx context.Context) bool {
	results := m.lastResults()
	if len(results) == 0 {
		results = m.RunChecks(ctx)
	}
	for _, res := range results {
		if res.Critical && res.Status == StatusUnhealthy {
			return false
		}
	}
	return true
}

func (m *Manager) lastResults() map[string]CheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]CheckResult, len(m.last))
	for k, v := range m.last {
		out[k] = v
	}
	return out
}
