// Package coordinator drives a crawl run: it drains the frontier
// through a bounded worker pool, gates entity refreshes, persists what
// the extractor finds and pushes discovered URLs back into the
// frontier.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketwatch/crawler/internal/archive"
	"github.com/marketwatch/crawler/internal/market"
	"github.com/marketwatch/crawler/internal/metrics"
	"github.com/marketwatch/crawler/internal/notify"
)

// State is the lifecycle phase of a crawl run.
type State string

// Run states. A run moves strictly forward: running, then draining
// once the frontier is empty with no task in flight, then stopped.
const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDraining State = "draining"
	StateStopped  State = "stopped"
)

// Config controls Coordinator behavior.
type Config struct {
	SiteHost       string
	MaxConcurrency int
	// MaxRetries bounds the attempts for a page that renders
	// incompletely; the waits between attempts grow linearly from
	// RetryBase.
	MaxRetries int
	RetryBase  time.Duration
	// AcquireTimeout bounds the wait for a session. Zero means block
	// until one frees up.
	AcquireTimeout time.Duration
}

// Stats summarizes one finished run.
type Stats struct {
	RunID             string
	PagesProcessed    int64
	PagesFailed       int64
	PagesAbandoned    int64
	HistoryAppended   int64
	HistorySuppressed int64
	RefreshSuppressed int64
	Skipped           int64
}

// Coordinator owns the crawl loop. Build one per run.
type Coordinator struct {
	cfg       Config
	frontier  market.Frontier
	pool      market.SessionPool
	extractor market.Extractor
	store     market.Store
	policy    market.RefreshPolicy
	clock     market.Clock
	archive   archive.Archive
	notifier  notify.Publisher
	logger    *zap.Logger

	runID string
	state atomic.Value

	pagesProcessed    atomic.Int64
	pagesFailed       atomic.Int64
	pagesAbandoned    atomic.Int64
	historyAppended   atomic.Int64
	historySuppressed atomic.Int64
	refreshSuppressed atomic.Int64
	skipped           atomic.Int64
}

type task struct {
	url  string
	kind market.URLKind
}

// New constructs a Coordinator. The archive and notifier may be nil,
// in which case pages are not archived and changes are not published.
func New(
	cfg Config,
	frontier market.Frontier,
	pool market.SessionPool,
	extractor market.Extractor,
	store market.Store,
	policy market.RefreshPolicy,
	clock market.Clock,
	arc archive.Archive,
	notifier notify.Publisher,
	logger *zap.Logger,
) *Coordinator {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 2 * time.Second
	}
	if arc == nil {
		arc = archive.NoOp{}
	}
	if notifier == nil {
		notifier = notify.NoOp{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		cfg:       cfg,
		frontier:  frontier,
		pool:      pool,
		extractor: extractor,
		store:     store,
		policy:    policy,
		clock:     clock,
		archive:   arc,
		notifier:  notifier,
		logger:    logger,
		runID:     uuid.NewString(),
	}
	c.state.Store(StateIdle)
	return c
}

// RunID identifies this crawl run in logs, archives and events.
func (c *Coordinator) RunID() string { return c.runID }

// State returns the current lifecycle phase.
func (c *Coordinator) State() State {
	return c.state.Load().(State)
}

// Run drains the frontier to quiescence and shuts the session pool
// down. It returns once every dispatched task has finished. Canceling
// the context stops dispatching; in-flight tasks are still awaited.
func (c *Coordinator) Run(ctx context.Context) (Stats, error) {
	c.state.Store(StateRunning)
	c.logger.Info("crawl run starting",
		zap.String("run_id", c.runID),
		zap.Int("max_concurrency", c.cfg.MaxConcurrency),
	)

	tasks := make(chan task)
	done := make(chan struct{}, c.cfg.MaxConcurrency)
	var wg sync.WaitGroup
	for i := 0; i < c.cfg.MaxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				c.process(ctx, t)
				done <- struct{}{}
			}
		}()
	}

	c.dispatch(ctx, tasks, done)

	c.state.Store(StateDraining)
	close(tasks)
	wg.Wait()

	shutdownErr := c.pool.Shutdown(context.WithoutCancel(ctx))
	c.state.Store(StateStopped)

	stats := c.stats()
	c.logger.Info("crawl run finished",
		zap.String("run_id", c.runID),
		zap.Int64("pages_processed", stats.PagesProcessed),
		zap.Int64("pages_failed", stats.PagesFailed),
		zap.Int64("pages_abandoned", stats.PagesAbandoned),
		zap.Int64("history_appended", stats.HistoryAppended),
	)
	if shutdownErr != nil {
		return stats, fmt.Errorf("session pool shutdown: %w", shutdownErr)
	}
	return stats, ctx.Err()
}

// dispatch pops frontier URLs and hands them to workers until the
// frontier is drained with nothing in flight, or the context ends.
func (c *Coordinator) dispatch(ctx context.Context, tasks chan<- task, done <-chan struct{}) {
	inFlight := 0
	for {
		// Collect finished tasks without blocking so the in-flight
		// count stays accurate.
		for {
			select {
			case <-done:
				inFlight--
				continue
			default:
			}
			break
		}

		if ctx.Err() != nil {
			break
		}

		url, ok := c.frontier.Pop()
		if !ok {
			if inFlight == 0 {
				return
			}
			select {
			case <-done:
				inFlight--
			case <-ctx.Done():
			}
			continue
		}
		c.observeFrontierDepth()

		kind := market.Classify(url, c.cfg.SiteHost)
		if kind == market.KindUnknown {
			c.skipped.Add(1)
			metrics.PageProcessed(string(kind), "classification_skip")
			c.logger.Debug("url skipped by classification",
				zap.String("run_id", c.runID), zap.String("url", url))
			continue
		}

		fresh, err := c.policy.NeedsRefresh(ctx, kind, url, c.clock.Now())
		if err != nil {
			c.pagesFailed.Add(1)
			c.logger.Error("refresh check failed",
				zap.String("run_id", c.runID), zap.String("url", url), zap.Error(err))
			continue
		}
		if !fresh {
			c.refreshSuppressed.Add(1)
			metrics.RefreshSuppressed(string(kind))
			c.logger.Debug("entity still fresh",
				zap.String("run_id", c.runID), zap.String("url", url))
			continue
		}

		select {
		case tasks <- task{url: url, kind: kind}:
			inFlight++
		case <-ctx.Done():
		}
	}

	// Context canceled: wait out whatever is still in flight.
	for inFlight > 0 {
		<-done
		inFlight--
	}
}

// process runs one URL end to end. Every failure here is isolated to
// its URL; the run continues regardless of the outcome.
func (c *Coordinator) process(ctx context.Context, t task) {
	metrics.WorkerStarted()
	defer metrics.WorkerFinished()

	acquireCtx := ctx
	if c.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, c.cfg.AcquireTimeout)
		defer cancel()
	}
	sess, err := c.pool.Acquire(acquireCtx)
	if err != nil {
		c.pagesFailed.Add(1)
		metrics.PageProcessed(string(t.kind), "session_timeout")
		c.logger.Warn("session acquisition failed",
			zap.String("run_id", c.runID), zap.String("url", t.url), zap.Error(err))
		return
	}
	metrics.SessionCheckedOut()
	defer func() {
		c.pool.Release(sess)
		metrics.SessionReturned()
	}()

	res, err := c.extractWithRetry(ctx, t, sess)
	if err != nil {
		switch {
		case errors.Is(err, market.ErrIncompletePage):
			c.pagesAbandoned.Add(1)
			metrics.PageProcessed(string(t.kind), "abandoned")
			c.logger.Warn("page abandoned after retries",
				zap.String("run_id", c.runID), zap.String("url", t.url),
				zap.Int("max_retries", c.cfg.MaxRetries))
		default:
			c.pagesFailed.Add(1)
			metrics.PageProcessed(string(t.kind), "extraction_error")
			c.logger.Error("extraction failed",
				zap.String("run_id", c.runID), zap.String("url", t.url), zap.Error(err))
		}
		return
	}

	if err := c.persist(ctx, t, res); err != nil {
		c.pagesFailed.Add(1)
		metrics.PageProcessed(string(t.kind), "storage_error")
		c.logger.Error("persisting page failed",
			zap.String("run_id", c.runID), zap.String("url", t.url), zap.Error(err))
		return
	}

	for _, u := range res.FollowUps {
		c.frontier.Push(u)
	}
	c.observeFrontierDepth()

	c.pagesProcessed.Add(1)
	metrics.PageProcessed(string(t.kind), "ok")
}

// extractWithRetry retries incompletely rendered pages up to
// MaxRetries attempts, waiting RetryBase times the attempt number
// between tries. Any other error fails the URL immediately.
func (c *Coordinator) extractWithRetry(ctx context.Context, t task, sess market.Session) (market.Result, error) {
	archSess := &archivingSession{
		Session: sess,
		archive: c.archive,
		runID:   c.runID,
		logger:  c.logger,
	}

	var res market.Result
	var err error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		start := c.clock.Now()
		res, err = c.extractor.Extract(ctx, t.kind, t.url, archSess)
		metrics.ObserveFetchDuration(string(t.kind), c.clock.Now().Sub(start).Seconds())
		if err == nil || !errors.Is(err, market.ErrIncompletePage) {
			return res, err
		}
		if attempt == c.cfg.MaxRetries {
			break
		}
		metrics.RetryScheduled()
		c.logger.Debug("page incomplete, retrying",
			zap.String("run_id", c.runID), zap.String("url", t.url),
			zap.Int("attempt", attempt))
		if werr := sleepCtx(ctx, time.Duration(attempt)*c.cfg.RetryBase); werr != nil {
			return market.Result{}, err
		}
	}
	return market.Result{}, err
}

// persist writes the extraction result through the store and publishes
// a change event when a new history entry was appended.
func (c *Coordinator) persist(ctx context.Context, t task, res market.Result) error {
	switch {
	case res.Entity != nil:
		return c.persistEntity(ctx, t.kind, res.Entity)
	case res.Product != nil:
		return c.persistProduct(ctx, res.Product)
	default:
		return nil
	}
}

func (c *Coordinator) persistEntity(ctx context.Context, kind market.URLKind, entity *market.EntityRecord) error {
	var err error
	if kind == market.KindBrand {
		_, err = c.store.UpsertBrand(ctx, entity.Name, entity.URL)
	} else {
		_, err = c.store.UpsertSeller(ctx, entity.Name, entity.URL)
	}
	if err != nil {
		return fmt.Errorf("upsert %s %q: %w", kind, entity.Name, err)
	}
	return nil
}

func (c *Coordinator) persistProduct(ctx context.Context, rec *market.ProductRecord) error {
	var brandID *int64
	if rec.BrandName != "" {
		id, err := c.store.UpsertBrand(ctx, rec.BrandName, c.normalize(rec.BrandURL))
		if err != nil {
			return fmt.Errorf("upsert brand %q: %w", rec.BrandName, err)
		}
		brandID = &id
	}

	sellerID, err := c.store.UpsertSeller(ctx, rec.SellerName, c.normalize(rec.SellerURL))
	if err != nil {
		return fmt.Errorf("upsert seller %q: %w", rec.SellerName, err)
	}

	productID, err := c.store.UpsertProduct(ctx, rec.PK, rec.Observation.Name, rec.Observation.URL, brandID, sellerID)
	if err != nil {
		return fmt.Errorf("upsert product pk=%d: %w", rec.PK, err)
	}

	entry, err := c.store.RecordObservation(ctx, productID, rec.Observation)
	if err != nil {
		return fmt.Errorf("record observation pk=%d: %w", rec.PK, err)
	}
	if entry == nil {
		c.historySuppressed.Add(1)
		metrics.HistorySuppressed()
		return nil
	}

	c.historyAppended.Add(1)
	metrics.HistoryAppended()
	if _, err := c.notifier.Publish(ctx, notify.ChangeEvent{
		RunID:      c.runID,
		ProductPK:  rec.PK,
		ProductID:  productID,
		HistoryID:  entry.ID,
		Hash:       entry.Hash,
		URL:        rec.Observation.URL,
		ObservedAt: entry.CreatedAt,
	}); err != nil {
		c.logger.Warn("change event publish failed",
			zap.String("run_id", c.runID), zap.Int64("product_pk", rec.PK), zap.Error(err))
	}
	return nil
}

func (c *Coordinator) normalize(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	normalized, err := market.Normalize(rawURL, c.cfg.SiteHost)
	if err != nil {
		return rawURL
	}
	return normalized
}

func (c *Coordinator) observeFrontierDepth() {
	if f, ok := c.frontier.(interface{ Len() int }); ok {
		metrics.SetFrontierDepth(f.Len())
	}
}

func (c *Coordinator) stats() Stats {
	return Stats{
		RunID:             c.runID,
		PagesProcessed:    c.pagesProcessed.Load(),
		PagesFailed:       c.pagesFailed.Load(),
		PagesAbandoned:    c.pagesAbandoned.Load(),
		HistoryAppended:   c.historyAppended.Load(),
		HistorySuppressed: c.historySuppressed.Load(),
		RefreshSuppressed: c.refreshSuppressed.Load(),
		Skipped:           c.skipped.Load(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
