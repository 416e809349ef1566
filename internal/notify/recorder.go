package notify

import (
	"sync"

	"github.com/Veraticus/susa-must-flow/internal/model"
)

// Recorder is a Notifier that keeps every message, for tests and for
// one-shot CLI commands that print notifications as they arrive.
type Recorder struct {
	// OnNotify, when set, is called for each message after it is recorded.
	OnNotify func(n model.Notification)

	items []model.Notification
	mu    sync.Mutex
}

// Notify implements service.Notifier.
func (r *Recorder) Notify(kind model.NotificationType, message string) {
	r.mu.Lock()
	n := model.Notification{ID: int64(len(r.items) + 1), Type: kind, Message: message}
	r.items = append(r.items, n)
	hook := r.OnNotify
	r.mu.Unlock()

	if hook != nil {
		hook(n)
	}
}

// All returns every recorded notification in order.
func (r *Recorder) All() []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Messages returns the recorded messages of the given type.
func (r *Recorder) Messages(kind model.NotificationType) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.items {
		if n.Type == kind {
			out = append(out, n.Message)
		}
	}
	return out
}

// Reset forgets all recorded notifications.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}
