// Package notify holds short-lived user-facing messages.
package notify

import (
	"sync"
	"time"

	"github.com/Veraticus/susa-must-flow/internal/model"
)

// DefaultTTL is how long a notification stays active.
const DefaultTTL = 5 * time.Second

// Sink accumulates notifications and expires each one after its TTL.
type Sink struct {
	timers  map[int64]*time.Timer
	changes chan struct{}
	now     func() time.Time
	items   []model.Notification
	ttl     time.Duration
	nextID  int64
	mu      sync.Mutex
	closed  bool
}

// NewSink creates a sink. A non-positive ttl selects DefaultTTL.
func NewSink(ttl time.Duration) *Sink {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Sink{
		ttl:     ttl,
		timers:  make(map[int64]*time.Timer),
		changes: make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Notify implements service.Notifier.
func (s *Sink) Notify(kind model.NotificationType, message string) {
	s.Add(kind, message)
}

// Add stores a notification and schedules its removal. It returns the
// notification id, or zero once the sink is closed.
func (s *Sink) Add(kind model.NotificationType, message string) int64 {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	s.nextID++
	id := s.nextID
	s.items = append(s.items, model.Notification{
		ID:        id,
		Type:      kind,
		Message:   message,
		CreatedAt: s.now(),
	})
	s.timers[id] = time.AfterFunc(s.ttl, func() { s.Remove(id) })
	s.mu.Unlock()

	s.signal()
	return id
}

// Remove drops a notification before it expires. Unknown ids are ignored.
func (s *Sink) Remove(id int64) {
	s.mu.Lock()
	removed := false
	for i, n := range s.items {
		if n.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			removed = true
			break
		}
	}
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	if removed {
		s.signal()
	}
}

// Active returns the notifications that have not expired, oldest first.
func (s *Sink) Active() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Notification, len(s.items))
	copy(out, s.items)
	return out
}

// Changes signals that the active set changed. Bursts coalesce into one
// pending signal.
func (s *Sink) Changes() <-chan struct{} {
	return s.changes
}

// Close stops all pending expiry timers. Later Adds are dropped.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Sink) signal() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
