package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tcsintel/intelgraph/internal/circuitbreaker"
	"github.com/tcsintel/intelgraph/internal/metrics"
	"github.com/tcsintel/intelgraph/internal/models"
)

var (
	// ErrSessionNotFound is returned when a session does not exist.
	ErrSessionNotFound = errors.New("session not found")
)

const keyPrefix = "intel:session:"

// Store persists research sessions in Redis with a local read mirror.
// All mutation goes through Update so concurrent writers for the same
// session serialize on a per-session lock.
type Store struct {
	client     *circuitbreaker.RedisWrapper
	logger     *zap.Logger
	ttl        time.Duration
	mu         sync.RWMutex
	mirror     map[string]*models.Session
	mirrorSeen map[string]time.Time // last access time for LRU eviction
	mirrorMax  int

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// CreateParams holds the validated inputs for a new research session.
type CreateParams struct {
	Competitors   []string
	ResearchFocus string
	MaxAgeDays    int
	MinSources    int
}

// NewStore creates a session store backed by the given Redis client.
func NewStore(client *circuitbreaker.RedisWrapper, ttl time.Duration, mirrorMax int, logger *zap.Logger) *Store {
	if mirrorMax < 1 {
		mirrorMax = 1024
	}
	return &Store{
		client:     client,
		logger:     logger,
		ttl:        ttl,
		mirror:     make(map[string]*models.Session),
		mirrorSeen: make(map[string]time.Time),
		mirrorMax:  mirrorMax,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Create creates a new pending session and persists it.
func (s *Store) Create(ctx context.Context, params CreateParams) (*models.Session, error) {
	now := time.Now().UTC()
	session := &models.Session{
		ID:                      uuid.New().String(),
		Status:                  models.StatusPending,
		Competitors:             append([]string(nil), params.Competitors...),
		ResearchFocus:           params.ResearchFocus,
		MaxAgeDays:              params.MaxAgeDays,
		MinSourcesPerCompetitor: params.MinSources,
		AgentsState:             models.NewAgentsState(now),
		Messages:                make([]models.Message, 0),
		ErrorMessages:           make([]string, 0),
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	if err := s.save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.mu.Lock()
	s.mirror[session.ID] = session
	s.mirrorSeen[session.ID] = time.Now()
	s.evictMirror()
	metrics.SessionMirrorSize.Set(float64(len(s.mirror)))
	s.mu.Unlock()

	s.logger.Info("Created research session",
		zap.String("session_id", session.ID),
		zap.Int("competitors", len(session.Competitors)),
	)

	return session.Clone(), nil
}

// Get retrieves a session by ID. The returned session is a deep copy;
// callers never share memory with the mirror.
func (s *Store) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	// Check the mirror first. Entries older than the Redis TTL are
	// dropped so the mirror never outlives the backing key.
	s.mu.RLock()
	session, ok := s.mirror[sessionID]
	if ok && time.Since(session.UpdatedAt) < s.ttl {
		clone := session.Clone()
		s.mu.RUnlock()
		s.mu.Lock()
		s.mirrorSeen[sessionID] = time.Now()
		s.mu.Unlock()
		return clone, nil
	}
	s.mu.RUnlock()
	if ok {
		s.mu.Lock()
		delete(s.mirror, sessionID)
		delete(s.mirrorSeen, sessionID)
		s.mu.Unlock()
	}

	// Load from Redis
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var loaded models.Session
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	s.mu.Lock()
	s.mirror[sessionID] = &loaded
	s.mirrorSeen[sessionID] = time.Now()
	s.evictMirror()
	metrics.SessionMirrorSize.Set(float64(len(s.mirror)))
	s.mu.Unlock()

	return loaded.Clone(), nil
}

// Update applies fn to the current session state and persists the result.
// Updates to the same session serialize; progress percentages never move
// backwards and always land in [0, 100].
func (s *Store) Update(ctx context.Context, sessionID string, fn func(*models.Session) error) (*models.Session, error) {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	prevProgress := make(map[string]int, len(current.AgentsState))
	for agent, state := range current.AgentsState {
		if state != nil {
			prevProgress[agent] = state.ProgressPercentage
		}
	}

	if err := fn(current); err != nil {
		return nil, err
	}

	for agent, state := range current.AgentsState {
		if state == nil {
			continue
		}
		if prev, ok := prevProgress[agent]; ok && state.ProgressPercentage < prev {
			state.ProgressPercentage = prev
		}
		if state.ProgressPercentage < 0 {
			state.ProgressPercentage = 0
		}
		if state.ProgressPercentage > 100 {
			state.ProgressPercentage = 100
		}
	}
	current.UpdatedAt = time.Now().UTC()

	if err := s.save(ctx, current); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.mu.Lock()
	s.mirror[sessionID] = current
	s.mirrorSeen[sessionID] = time.Now()
	metrics.SessionMirrorSize.Set(float64(len(s.mirror)))
	s.mu.Unlock()

	return current.Clone(), nil
}

// AppendMessage appends a message to the session transcript, keeping at
// most the newest models.MaxTranscriptMessages entries.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg models.Message) error {
	_, err := s.Update(ctx, sessionID, func(session *models.Session) error {
		session.AppendMessage(msg)
		return nil
	})
	return err
}

// List returns all live sessions, newest first.
func (s *Store) List(ctx context.Context) ([]*models.Session, error) {
	keys, err := s.client.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]*models.Session, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue // expired or unreadable between KEYS and GET
		}
		var session models.Session
		if err := json.Unmarshal(data, &session); err != nil {
			continue
		}
		sessions = append(sessions, &session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// Delete removes a session from Redis and the mirror.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	deleted, err := s.client.Del(ctx, s.key(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.mu.Lock()
	_, mirrored := s.mirror[sessionID]
	delete(s.mirror, sessionID)
	delete(s.mirrorSeen, sessionID)
	metrics.SessionMirrorSize.Set(float64(len(s.mirror)))
	s.mu.Unlock()

	s.locksMu.Lock()
	delete(s.locks, sessionID)
	s.locksMu.Unlock()

	if deleted == 0 && !mirrored {
		return ErrSessionNotFound
	}

	s.logger.Info("Deleted session", zap.String("session_id", sessionID))
	return nil
}

// RedisWrapper returns the underlying Redis wrapper for health checks.
func (s *Store) RedisWrapper() *circuitbreaker.RedisWrapper {
	return s.client
}

// Close closes the underlying Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(sessionID string) string {
	return keyPrefix + sessionID
}

func (s *Store) save(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return s.client.Set(ctx, s.key(session.ID), data, s.ttl).Err()
}

func (s *Store) lockFor(sessionID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}

// evictMirror removes the least recently accessed half of the mirror
// when it grows past mirrorMax. Caller must hold s.mu.
func (s *Store) evictMirror() {
	if len(s.mirror) <= s.mirrorMax {
		return
	}

	type accessEntry struct {
		id   string
		time time.Time
	}
	entries := make([]accessEntry, 0, len(s.mirror))
	for id := range s.mirror {
		entries = append(entries, accessEntry{id: id, time: s.mirrorSeen[id]})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].time.Before(entries[j].time)
	})

	toRemove := s.mirrorMax / 2
	if toRemove < 1 {
		toRemove = 1
	}
	for i := 0; i < toRemove && i < len(entries); i++ {
		delete(s.mirror, entries[i].id)
		delete(s.mirrorSeen, entries[i].id)
		metrics.SessionMirrorEvictions.Inc()
	}
}
