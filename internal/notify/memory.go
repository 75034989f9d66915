package notify

import (
	"context"
	"fmt"
	"sync"
)

// Memory stores published events for inspection in tests.
type Memory struct {
	mu     sync.RWMutex
	events []ChangeEvent
}

// NewMemory returns an empty memory publisher.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish records the event and returns a pseudo ID.
func (m *Memory) Publish(_ context.Context, event ChangeEvent) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return fmt.Sprintf("memory-%d", len(m.events)), nil
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []ChangeEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ChangeEvent, len(m.events))
	copy(out, m.events)
	return out
}
