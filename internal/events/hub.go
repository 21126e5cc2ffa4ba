package events

import (
	"log"
	"sync"
	"time"

	"github.com/ckirkland/conductor/pkg/models"
)

// ReplayCount is how many historical entries a new subscriber receives.
// The full summary log is never replayed to avoid flooding a reconnecting
// client.
const ReplayCount = 5

// DefaultHeartbeat is the default keep-alive interval per subscriber.
const DefaultHeartbeat = 15 * time.Second

// subscriptionBuffer is the per-subscriber channel capacity.
const subscriptionBuffer = 64

// Hub broadcasts events to live observers per scope (an orchestration ID or
// a task ID) and retains a bounded summary log per scope for replay.
type Hub struct {
	mu        sync.Mutex
	scopes    map[string]*scope
	heartbeat time.Duration
}

type scope struct {
	log     []Event
	subs    map[*Subscription]bool
	dropped uint64
}

// Subscription is one observer's live event stream.
type Subscription struct {
	ch      chan Event
	done    chan struct{}
	hub     *Hub
	scopeID string
	once    sync.Once
}

// NewHub creates a Hub with the given heartbeat interval. A non-positive
// interval uses DefaultHeartbeat.
func NewHub(heartbeat time.Duration) *Hub {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Hub{
		scopes:    make(map[string]*scope),
		heartbeat: heartbeat,
	}
}

func (h *Hub) scopeLocked(scopeID string) *scope {
	s, ok := h.scopes[scopeID]
	if !ok {
		s = &scope{subs: make(map[*Subscription]bool)}
		h.scopes[scopeID] = s
	}
	return s
}

// Publish broadcasts an event to every live subscriber of the scope and
// appends it to the scope's summary log.
func (h *Hub) Publish(scopeID string, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.ScopeID = scopeID

	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.scopeLocked(scopeID)
	s.log = append(s.log, event)
	if len(s.log) > models.MaxSummaryEntries {
		s.log = s.log[len(s.log)-models.MaxSummaryEntries:]
	}

	for sub := range s.subs {
		if !sub.trySendLocked(event) {
			s.dropped++
			if s.dropped%10 == 1 {
				log.Printf("[events] subscriber for scope %s full, dropped event (total dropped: %d): type=%s",
					scopeID, s.dropped, event.Type)
			}
		}
	}
}

// Seed replaces the scope's summary log, used when restoring persisted
// orchestrations so late subscribers still get replay after a restart.
func (h *Hub) Seed(scopeID string, entries []models.SummaryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.scopeLocked(scopeID)
	s.log = s.log[:0]
	for _, e := range entries {
		s.log = append(s.log, Event{
			Type:      EventType(e.Type),
			ScopeID:   scopeID,
			TaskID:    e.TaskID,
			Message:   e.Message,
			Timestamp: e.Timestamp,
		})
	}
}

// Subscribe registers a new observer for the scope. The last ReplayCount log
// entries are delivered first, followed by live events and periodic
// heartbeats until the subscription is closed.
func (h *Hub) Subscribe(scopeID string) *Subscription {
	sub := &Subscription{
		ch:      make(chan Event, subscriptionBuffer),
		done:    make(chan struct{}),
		hub:     h,
		scopeID: scopeID,
	}

	h.mu.Lock()
	s := h.scopeLocked(scopeID)
	replay := s.log
	if len(replay) > ReplayCount {
		replay = replay[len(replay)-ReplayCount:]
	}
	for _, ev := range replay {
		sub.ch <- ev
	}
	s.subs[sub] = true
	h.mu.Unlock()

	go sub.heartbeatLoop(h.heartbeat)

	return sub
}

// Events returns the subscriber's event channel. It is closed when the
// subscription is closed.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close unsubscribes the observer. The hub holds no reference afterward.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		if sc, ok := s.hub.scopes[s.scopeID]; ok {
			delete(sc.subs, s)
		}
		close(s.done)
		close(s.ch)
		s.hub.mu.Unlock()
	})
}

// trySendLocked delivers an event without blocking. Caller holds hub.mu,
// which also serializes sends against Close.
func (s *Subscription) trySendLocked(event Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- event:
		return true
	default:
		return false
	}
}

// heartbeatLoop emits keep-alive events until the subscription closes.
func (s *Subscription) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.hub.mu.Lock()
			s.trySendLocked(Event{
				Type:      EventHeartbeat,
				ScopeID:   s.scopeID,
				Timestamp: time.Now(),
			})
			s.hub.mu.Unlock()
		}
	}
}

// CloseScope closes every subscription for the scope and drops its log.
// Used when an orchestration is deleted.
func (h *Hub) CloseScope(scopeID string) {
	h.mu.Lock()
	s, ok := h.scopes[scopeID]
	if !ok {
		h.mu.Unlock()
		return
	}
	subs := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	delete(h.scopes, scopeID)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// Log returns a copy of the scope's summary log.
func (h *Hub) Log(scopeID string) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.scopes[scopeID]
	if !ok {
		return nil
	}
	out := make([]Event, len(s.log))
	copy(out, s.log)
	return out
}

// DroppedCount returns the number of dropped events for a scope.
func (h *Hub) DroppedCount(scopeID string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.scopes[scopeID]; ok {
		return s.dropped
	}
	return 0
}
