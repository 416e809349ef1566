package coordinator

import (
	"sync"

	"github.com/Veraticus/susa-must-flow/internal/model"
)

// MemoryLedger is the in-process StatusLedger.
type MemoryLedger struct {
	last map[int64]model.ProjectStatus
	mu   sync.Mutex
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{last: make(map[int64]model.ProjectStatus)}
}

// Last implements service.StatusLedger.
func (l *MemoryLedger) Last(jobID int64) (model.ProjectStatus, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.last[jobID]
	return s, ok
}

// Swap implements service.StatusLedger.
func (l *MemoryLedger) Swap(jobID int64, status model.ProjectStatus) (model.ProjectStatus, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev, seen := l.last[jobID]
	l.last[jobID] = status
	return prev, seen
}
