// Package frontier holds the set of URLs awaiting a crawl visit.
package frontier

import (
	"container/list"
	"sync"

	"go.uber.org/zap"

	"github.com/marketwatch/crawler/internal/market"
)

// Frontier is a deduplicating FIFO queue. Each URL is handed out at
// most once per crawl run; a process-lifetime visited set keyed by the
// normalized URL enforces this. The queue and the visited set are
// guarded as a single critical section so two in-flight fetches can
// never both enqueue the same follow-up.
type Frontier struct {
	mu       sync.Mutex
	queue    *list.List
	seen     map[string]struct{}
	siteHost string
	logger   *zap.Logger
}

// New constructs an empty Frontier for the given site host.
func New(siteHost string, logger *zap.Logger) *Frontier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Frontier{
		queue:    list.New(),
		seen:     make(map[string]struct{}),
		siteHost: siteHost,
		logger:   logger,
	}
}

// Seed adds the initial URLs.
func (f *Frontier) Seed(urls []string) {
	for _, u := range urls {
		f.Push(u)
	}
}

// Push enqueues a URL unless it was already queued or visited. It
// reports whether the URL was accepted. Unparseable URLs are dropped.
func (f *Frontier) Push(rawURL string) bool {
	normalized, err := market.Normalize(rawURL, f.siteHost)
	if err != nil {
		f.logger.Debug("dropping unparseable url", zap.String("url", rawURL), zap.Error(err))
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.seen[normalized]; dup {
		return false
	}
	f.seen[normalized] = struct{}{}
	f.queue.PushBack(normalized)
	return true
}

// Pop removes and returns the oldest queued URL, preserving FIFO order
// so category pages drain before the products they reference.
func (f *Frontier) Pop() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	front := f.queue.Front()
	if front == nil {
		return "", false
	}
	f.queue.Remove(front)
	return front.Value.(string), true
}

// Drained reports whether the queue is empty.
func (f *Frontier) Drained() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Len() == 0
}

// Len returns the number of queued URLs, for metrics.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Len()
}
