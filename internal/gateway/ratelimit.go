package gateway

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// Built-in limits for the tier most OpenAI accounts start on. A rate-limit
// file raises them without a redeploy.
const (
	builtinRPM = 30
	builtinTPM = 60000
)

type providerLimit struct {
	RPM int `yaml:"rpm"`
	TPM int `yaml:"tpm"`
}

type limitsFile struct {
	RateLimits struct {
		DefaultRPM        int                      `yaml:"default_rpm"`
		DefaultTPM        int                      `yaml:"default_tpm"`
		ProviderOverrides map[string]providerLimit `yaml:"provider_overrides"`
	} `yaml:"rate_limits"`
}

// Limiter paces outbound model calls. Two budgets apply, requests per
// minute and tokens per minute; a call waits for both.
type Limiter struct {
	mu       sync.RWMutex
	requests *rate.Limiter
	tokens   *rate.Limiter
	rpm      int
	tpm      int

	path     string
	provider string
	logger   *zap.Logger
}

// NewLimiter builds a limiter for provider from the yaml file at path. A
// missing or unreadable file falls back to the built-in limits.
func NewLimiter(path, provider string, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Limiter{path: path, provider: provider, logger: logger}
	l.apply(builtinRPM, builtinTPM)
	if path == "" {
		return l
	}
	if err := l.Reload(); err != nil {
		logger.Warn("Rate limit file unavailable, using built-in limits",
			zap.String("path", path),
			zap.Int("rpm", builtinRPM),
			zap.Int("tpm", builtinTPM),
			zap.Error(err))
	}
	return l
}

// NewLimiterWithLimits builds a limiter with fixed limits, bypassing the
// file. Used where limits are known up front.
func NewLimiterWithLimits(rpm, tpm int, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rpm <= 0 {
		rpm = builtinRPM
	}
	if tpm <= 0 {
		tpm = builtinTPM
	}
	l := &Limiter{logger: logger}
	l.apply(rpm, tpm)
	return l
}

// Reload re-reads the rate-limit file. On error the current limits stay
// in force.
func (l *Limiter) Reload() error {
	if l.path == "" {
		return nil
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return err
	}
	var f limitsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse rate limit file %s: %w", l.path, err)
	}

	rpm := f.RateLimits.DefaultRPM
	tpm := f.RateLimits.DefaultTPM
	if o, ok := f.RateLimits.ProviderOverrides[l.provider]; ok {
		if o.RPM > 0 {
			rpm = o.RPM
		}
		if o.TPM > 0 {
			tpm = o.TPM
		}
	}
	if rpm <= 0 {
		rpm = builtinRPM
	}
	if tpm <= 0 {
		tpm = builtinTPM
	}

	l.apply(rpm, tpm)
	l.logger.Info("Rate limits loaded",
		zap.String("provider", l.provider),
		zap.Int("rpm", rpm),
		zap.Int("tpm", tpm))
	return nil
}

func (l *Limiter) apply(rpm, tpm int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rpm, l.tpm = rpm, tpm
	// Request burst covers one research fan-out so a small parallel batch
	// is not serialized artificially.
	l.requests = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), max(1, rpm/10))
	// Token burst is a full minute's allowance; Wait never asks for more.
	l.tokens = rate.NewLimiter(rate.Limit(float64(tpm)/60.0), tpm)
}

// Wait blocks until the call may proceed or ctx is done. estimatedTokens
// is the expected token cost of the call; zero skips the token budget.
func (l *Limiter) Wait(ctx context.Context, estimatedTokens int) error {
	l.mu.RLock()
	requests, tokens, tokenCap := l.requests, l.tokens, l.tpm
	l.mu.RUnlock()

	if err := requests.Wait(ctx); err != nil {
		return err
	}
	if estimatedTokens > 0 {
		return tokens.WaitN(ctx, min(estimatedTokens, tokenCap))
	}
	return nil
}

// Limits returns the effective requests-per-minute and tokens-per-minute.
func (l *Limiter) Limits() (rpm, tpm int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rpm, l.tpm
}
