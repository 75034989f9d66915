package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marketwatch/crawler/internal/clock/system"
	"github.com/marketwatch/crawler/internal/coordinator"
	"github.com/marketwatch/crawler/internal/extract"
	"github.com/marketwatch/crawler/internal/frontier"
	"github.com/marketwatch/crawler/internal/refresh"
	"github.com/marketwatch/crawler/internal/session"
)

func newCrawlCmd() *cobra.Command {
	var seeds []string

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl from the configured seed URLs to quiescence.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			seedURLs := cfg.Crawl.SeedURLs
			if len(seeds) > 0 {
				seedURLs = seeds
			}
			if len(seedURLs) == 0 {
				return fmt.Errorf("no seed urls: set crawl.seed_urls or pass --seed")
			}

			st, err := newStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			arc, closeArchive, err := newArchive(ctx, cfg.Archive, logger)
			if err != nil {
				return err
			}
			if closeArchive != nil {
				defer func() { _ = closeArchive() }()
			}

			notifier, closeNotifier, err := newNotifier(ctx, cfg.Notify, logger)
			if err != nil {
				return err
			}
			if closeNotifier != nil {
				defer func() { _ = closeNotifier() }()
			}

			pool, err := session.NewChromedpPool(session.Config{
				PoolSize:   cfg.Session.PoolSize,
				NavTimeout: cfg.NavTimeout(),
				DomainQPS:  cfg.Session.DomainQPS,
				UserAgent:  cfg.Session.UserAgent,
				Headless:   cfg.Session.Headless,
			}, logger)
			if err != nil {
				return fmt.Errorf("start session pool: %w", err)
			}

			fr := frontier.New(cfg.Crawl.SiteHost, logger)
			fr.Seed(seedURLs)

			extractor := extract.New(extract.Config{
				SiteHost: cfg.Crawl.SiteHost,
				Keywords: cfg.Crawl.Keywords,
			}, st, logger)

			coord := coordinator.New(coordinator.Config{
				SiteHost:       cfg.Crawl.SiteHost,
				MaxConcurrency: cfg.Crawl.MaxConcurrency,
				MaxRetries:     cfg.Crawl.MaxRetries,
				RetryBase:      cfg.RetryBase(),
				AcquireTimeout: cfg.AcquireTimeout(),
			}, fr, pool, extractor, st, refresh.New(st, cfg.RefreshTTL()),
				system.Clock{}, arc, notifier, logger)

			stats, err := coord.Run(ctx)
			logger.Info("crawl summary",
				zap.String("run_id", stats.RunID),
				zap.Int64("pages_processed", stats.PagesProcessed),
				zap.Int64("pages_failed", stats.PagesFailed),
				zap.Int64("pages_abandoned", stats.PagesAbandoned),
				zap.Int64("history_appended", stats.HistoryAppended),
				zap.Int64("history_suppressed", stats.HistorySuppressed),
				zap.Int64("refresh_suppressed", stats.RefreshSuppressed),
				zap.Int64("skipped", stats.Skipped),
			)
			return err
		},
	}

	cmd.Flags().StringSliceVar(&seeds, "seed", nil, "seed URL (repeatable, overrides config)")
	return cmd
}
