package archive

import (
	"context"
	"fmt"
	"sync"
)

// Memory keeps archived pages in a map. Development and test backend.
type Memory struct {
	mu    sync.RWMutex
	pages map[string][]byte
}

// NewMemory creates an empty in-memory archive.
func NewMemory() *Memory {
	return &Memory{pages: make(map[string][]byte)}
}

// SavePage stores a copy of the HTML and returns a memory:// URI.
func (m *Memory) SavePage(_ context.Context, key string, html []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[key] = append([]byte(nil), html...)
	return fmt.Sprintf("memory://%s", key), nil
}

// Page returns the archived HTML for key, or nil when absent.
func (m *Memory) Page(key string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	html, ok := m.pages[key]
	if !ok {
		return nil
	}
	return append([]byte(nil), html...)
}

// Len reports the number of archived pages.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pages)
}
