package session

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/marketwatch/crawler/internal/market"
)

// scrollSteps is how many wheel increments Navigate performs so lazily
// rendered tiles below the fold make it into the DOM snapshot.
const scrollSteps = 10

// NewChromedpPool starts one headless browser and opens PoolSize tabs,
// each of which backs one pooled session.
func NewChromedpPool(cfg Config, logger *zap.Logger) (*Pool, error) {
	if cfg.PoolSize <= 0 {
		return nil, fmt.Errorf("session.pool_size must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	var pool *Pool
	sessions := make([]market.Session, 0, cfg.PoolSize)
	cancels := make([]context.CancelFunc, 0, cfg.PoolSize)
	for i := 0; i < cfg.PoolSize; i++ {
		tabCtx, tabCancel := chromedp.NewContext(browserCtx)
		if err := chromedp.Run(tabCtx); err != nil {
			tabCancel()
			for _, c := range cancels {
				c()
			}
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("open tab %d: %w", i, err)
		}
		cancels = append(cancels, tabCancel)
		sessions = append(sessions, &browserSession{
			tabCtx: tabCtx,
			cfg:    cfg,
			pool:   func() *Pool { return pool },
			logger: logger.With(zap.Int("session", i)),
		})
	}

	teardown := func(context.Context) error {
		for _, c := range cancels {
			c()
		}
		browserCancel()
		allocCancel()
		return nil
	}

	p, err := NewWithSessions(cfg, logger, sessions, teardown)
	if err != nil {
		_ = teardown(context.Background())
		return nil, err
	}
	pool = p
	return p, nil
}

// browserSession is one persistent browser tab. Navigate and
// ClickAndCollect both leave the page open so a follow-up click
// operates on the rendered state.
type browserSession struct {
	tabCtx context.Context
	cfg    Config
	pool   func() *Pool
	logger *zap.Logger
}

// Navigate loads the URL, scrolls the page to force lazy content in,
// and returns the rendered HTML.
func (s *browserSession) Navigate(ctx context.Context, rawURL string) (string, error) {
	if p := s.pool(); p != nil {
		if err := p.waitDomainBudget(ctx, rawURL); err != nil {
			return "", err
		}
	}

	taskCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.NavTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	var html string
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(s.cfg.UserAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		scrollPage(scrollSteps),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return "", fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	return html, nil
}

// ClickAndCollect clicks the element matched by the selector on the
// currently loaded page and returns the page as rendered afterwards.
// Used to expand paginated seller lists.
func (s *browserSession) ClickAndCollect(ctx context.Context, selector string) (string, error) {
	taskCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.NavTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	var html string
	tasks := chromedp.Tasks{
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
		chromedp.WaitReady("body", chromedp.ByQuery),
		scrollPage(scrollSteps / 2),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return "", fmt.Errorf("click %q: %w", selector, err)
	}
	return html, nil
}

func scrollPage(steps int) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for i := 0; i < steps; i++ {
			if err := chromedp.Evaluate(`window.scrollBy(0, 250)`, nil).Do(ctx); err != nil {
				return err
			}
			if err := chromedp.Sleep(100 * time.Millisecond).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
