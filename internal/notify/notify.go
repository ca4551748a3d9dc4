// Package notify pushes job outcomes to users. Delivery is best
// effort; a failed push never affects persisted state.
package notify

import (
	"context"
	"log"
	"sync"
)

// Event names pushed to clients.
const (
	EventBrainDone  = "brain_done"
	EventBrainError = "brain_error"
	EventBrainDream = "brain_dream"
	EventReviewDue  = "review_due"
)

// Sink delivers one event to one user.
type Sink interface {
	Name() string
	Notify(ctx context.Context, userID, event string, payload any) error
}

// Manager fans an event out to every registered sink, logging failures
// instead of returning them.
type Manager struct {
	mu    sync.RWMutex
	sinks []Sink
}

func NewManager(sinks ...Sink) *Manager {
	return &Manager{sinks: sinks}
}

func (m *Manager) Add(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

func (m *Manager) Notify(ctx context.Context, userID, event string, payload any) {
	m.mu.RLock()
	sinks := make([]Sink, len(m.sinks))
	copy(sinks, m.sinks)
	m.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Notify(ctx, userID, event, payload); err != nil {
			log.Printf("[notify] %s push to %s failed: %v", s.Name(), userID, err)
		}
	}
}
