package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/tcsintel/intelgraph/internal/models"
	"github.com/tcsintel/intelgraph/internal/util"
)

const keyPrefix = "intel:cache:"

// Key identifies a cached research result. Two requests for the same
// competitor hit the same entry when their focus normalizes identically.
type Key struct {
	Competitor    string
	ResearchFocus string
}

// redisKey renders the Redis key:
// intel:cache:<competitor_slug>:<focus_hash>.
func (k Key) redisKey() string {
	return keyPrefix + slug(k.Competitor) + ":" + focusHash(k.ResearchFocus)
}

// NormalizeFocus lowercases the focus, collapses whitespace runs to a
// single space, and trims the ends. "AI Strategy" and " ai   strategy "
// address the same entry.
func NormalizeFocus(focus string) string {
	return util.NormalizeWhitespace(focus)
}

// slug renders a competitor name safe for key use: lowercased, spaces
// become underscores, everything outside [a-z0-9_-] dropped.
func slug(competitor string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(competitor)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	return b.String()
}

func focusHash(focus string) string {
	sum := sha256.Sum256([]byte(NormalizeFocus(focus)))
	return hex.EncodeToString(sum[:])[:8]
}

// Entry is a cached per-competitor research result. TTLDays records the
// freshness window that was in force when the entry was written.
type Entry struct {
	Competitor        string                  `json:"competitor"`
	ResearchFocus     string                  `json:"research_focus"`
	CachedAt          time.Time               `json:"cached_at"`
	TTLDays           int                     `json:"ttl_days"`
	AINarrative       string                  `json:"ai_narrative"`
	KeyInitiatives    []string                `json:"key_initiatives"`
	MarketPositioning string                  `json:"market_positioning"`
	Sources           []models.ResearchSource `json:"sources"`
	ConfidenceScore   float64                 `json:"confidence_score"`
}

// NewEntry builds a cache entry from a fresh research result.
func NewEntry(result models.CompetitorResult, researchFocus string, ttlDays int, now time.Time) *Entry {
	return &Entry{
		Competitor:        result.Competitor,
		ResearchFocus:     researchFocus,
		CachedAt:          now,
		TTLDays:           ttlDays,
		AINarrative:       result.AINarrative,
		KeyInitiatives:    append([]string(nil), result.KeyInitiatives...),
		MarketPositioning: result.MarketPositioning,
		Sources:           append([]models.ResearchSource(nil), result.Sources...),
		ConfidenceScore:   result.ConfidenceScore,
	}
}

// Result converts the entry back to a per-competitor result.
func (e *Entry) Result(fromCache bool) models.CompetitorResult {
	return models.CompetitorResult{
		Competitor:        e.Competitor,
		AINarrative:       e.AINarrative,
		KeyInitiatives:    append([]string(nil), e.KeyInitiatives...),
		MarketPositioning: e.MarketPositioning,
		Sources:           append([]models.ResearchSource(nil), e.Sources...),
		ConfidenceScore:   e.ConfidenceScore,
		ResearchTimestamp: e.CachedAt,
		FromCache:         fromCache,
	}
}

// AgeDays returns the entry's age in whole days at now.
func (e *Entry) AgeDays(now time.Time) int {
	return int(now.Sub(e.CachedAt).Hours() / 24)
}

// ExpiresAt returns when the entry leaves its own freshness window.
// Entries written before ttl_days existed fall back to defaultTTLDays.
func (e *Entry) ExpiresAt(defaultTTLDays int) time.Time {
	ttl := e.TTLDays
	if ttl <= 0 {
		ttl = defaultTTLDays
	}
	return e.CachedAt.Add(time.Duration(ttl) * 24 * time.Hour)
}

// IsExpired reports whether the entry is past its own freshness window.
func (e *Entry) IsExpired(now time.Time, defaultTTLDays int) bool {
	return now.After(e.ExpiresAt(defaultTTLDays))
}

// Accept reports whether the entry satisfies a request's freshness and
// coverage thresholds at the current time. Acceptance is a pure read: a
// rejected entry is left in place.
func Accept(entry *Entry, maxAgeDays, minSources int) bool {
	return AcceptAt(entry, maxAgeDays, minSources, time.Now())
}

// AcceptAt is Accept against an explicit clock. Freshness uses the same
// exact-time arithmetic as ExpiresAt, with the request's maxAgeDays as the
// window: an entry aged exactly maxAgeDays still passes, anything past that
// instant does not. Acceptance and the expiry sweep therefore agree on the
// cutoff when the request window matches the entry's own TTL.
func AcceptAt(entry *Entry, maxAgeDays, minSources int, now time.Time) bool {
	if entry == nil {
		return false
	}
	freshUntil := entry.CachedAt.Add(time.Duration(maxAgeDays) * 24 * time.Hour)
	return !now.After(freshUntil) && len(entry.Sources) >= minSources
}
