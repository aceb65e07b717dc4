// Package streaming fans session progress events out to connected stream
// subscribers, with a per-session ring buffer for replaying missed events.
package streaming

import (
	"sync"
	"time"

	"github.com/tcsintel/intelgraph/internal/metrics"
)

// Event types pushed over the progress stream.
const (
	EventAgentUpdate   = "agent_update"
	EventMessage       = "message"
	EventSessionStatus = "session_status"
)

// Event is a single progress update for a research session.
type Event struct {
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	Agent     string    `json:"agent,omitempty"`
	Status    string    `json:"status,omitempty"`
	Progress  int       `json:"progress,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Seq       uint64    `json:"seq"`
}

const defaultCapacity = 256

// Manager provides in-memory pub/sub for session events. One manager is
// shared by the activities (publishers) and the stream handler (subscribers).
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	// per-session ring buffer for replay of missed events
	history  map[string]*ring
	capacity int
}

// NewManager builds a manager whose per-session replay buffers hold capacity
// events. Non-positive capacity falls back to the default.
func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// Subscribe adds a subscriber channel for a session; the caller must drain it
// and call Unsubscribe when done.
func (m *Manager) Subscribe(sessionID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[sessionID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	metrics.StreamSubscribers.Inc()
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (m *Manager) Unsubscribe(sessionID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs, ok := m.subscribers[sessionID]
	if !ok {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	metrics.StreamSubscribers.Dec()
	if len(subs) == 0 {
		delete(m.subscribers, sessionID)
	}
}

// Publish assigns the next sequence number, records the event in the session
// ring and delivers it to all subscribers. Slow subscribers drop the event
// rather than blocking the publisher.
func (m *Manager) Publish(sessionID string, evt Event) {
	evt.SessionID = sessionID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	m.mu.Lock()
	rg := m.history[sessionID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[sessionID] = rg
	}
	rg.nextSeq++
	evt.Seq = rg.nextSeq
	rg.push(evt)

	targets := make([]chan Event, 0, len(m.subscribers[sessionID]))
	for ch := range m.subscribers[sessionID] {
		targets = append(targets, ch)
	}
	m.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- evt:
		default:
		}
	}
}

// ReplaySince returns the session's buffered events with Seq > since,
// best-effort within ring capacity. The lock is held across the ring read:
// Publish mutates the same ring under the write lock.
func (m *Manager) ReplaySince(sessionID string, since uint64) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rg := m.history[sessionID]
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Drop discards the session's replay history and disconnects its
// subscribers. Called when a session is deleted.
func (m *Manager) Drop(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.history, sessionID)
	if subs, ok := m.subscribers[sessionID]; ok {
		for ch := range subs {
			close(ch)
			metrics.StreamSubscribers.Dec()
		}
		delete(m.subscribers, sessionID)
	}
}

// ring is a fixed-capacity ring buffer of events.
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	// overwrite oldest
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
