// Package session owns the pooled browser-automation sessions used to
// fetch and render marketplace pages.
package session

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/marketwatch/crawler/internal/market"
)

// Config controls pool sizing and per-session behavior.
type Config struct {
	PoolSize   int
	NavTimeout time.Duration
	DomainQPS  float64
	UserAgent  string
	Headless   bool
}

// Pool lends out a fixed number of browser sessions. Acquire blocks
// until one is free and never creates sessions beyond the configured
// count; Release returns a session unconditionally, errored or not.
type Pool struct {
	cfg      Config
	logger   *zap.Logger
	sessions chan market.Session
	stopCh   chan struct{}
	closed   atomic.Bool

	domainLimiters sync.Map

	teardown func(context.Context) error
}

// NewWithSessions builds a Pool over pre-constructed sessions. Used by
// tests and by the chromedp constructor in this package.
func NewWithSessions(cfg Config, logger *zap.Logger, sessions []market.Session, teardown func(context.Context) error) (*Pool, error) {
	if len(sessions) == 0 {
		return nil, fmt.Errorf("session pool requires at least one session")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ch := make(chan market.Session, len(sessions))
	for _, s := range sessions {
		ch <- s
	}
	cfg.PoolSize = len(sessions)
	return &Pool{
		cfg:      cfg,
		logger:   logger,
		sessions: ch,
		stopCh:   make(chan struct{}),
		teardown: teardown,
	}, nil
}

// Acquire blocks the caller until a session is available.
func (p *Pool) Acquire(ctx context.Context) (market.Session, error) {
	select {
	case <-p.stopCh:
		return nil, market.ErrPoolClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire session: %w", ctx.Err())
	case s := <-p.sessions:
		return s, nil
	}
}

// Release returns a session to the pool. Sessions that errored while
// loading are still reusable; only Shutdown destroys them.
func (p *Pool) Release(s market.Session) {
	if s == nil {
		return
	}
	if p.closed.Load() {
		return
	}
	select {
	case p.sessions <- s:
	default:
		// Pool is already full; a double release is a programming
		// error but must not block the worker.
		p.logger.Warn("session released into a full pool")
	}
}

// Shutdown reclaims every session and terminates the underlying
// browser. The coordinator calls it exactly once, after confirming no
// task still holds a session.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.stopCh)

	for i := 0; i < p.cfg.PoolSize; i++ {
		select {
		case <-p.sessions:
		case <-ctx.Done():
			return fmt.Errorf("drain session pool: %w", ctx.Err())
		}
	}
	if p.teardown != nil {
		if err := p.teardown(ctx); err != nil {
			return fmt.Errorf("teardown sessions: %w", err)
		}
	}
	return nil
}

// Available returns the number of idle sessions, for metrics.
func (p *Pool) Available() int {
	return len(p.sessions)
}

// waitDomainBudget enforces the per-domain politeness rate before a
// navigation hits the site.
func (p *Pool) waitDomainBudget(ctx context.Context, rawURL string) error {
	if p.cfg.DomainQPS <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse navigate url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := p.domainLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(p.cfg.DomainQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait domain limiter: %w", err)
	}
	return nil
}
