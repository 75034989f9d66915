package cmd

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/marketwatch/crawler/internal/archive"
	"github.com/marketwatch/crawler/internal/clock/system"
	"github.com/marketwatch/crawler/internal/config"
	"github.com/marketwatch/crawler/internal/notify"
	"github.com/marketwatch/crawler/internal/store"
)

// newStore connects the Postgres change-detection store and applies
// the schema. The caller owns Close.
func newStore(ctx context.Context, cfg config.Config) (*store.Postgres, error) {
	st, err := store.NewPostgres(ctx, store.PostgresConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	}, system.Clock{})
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return st, nil
}

// newArchive builds the configured page archive. The returned closer
// releases any underlying client and may be nil.
func newArchive(ctx context.Context, cfg config.ArchiveConfig, logger *zap.Logger) (archive.Archive, func() error, error) {
	switch cfg.Provider {
	case "", "none":
		return archive.NoOp{}, nil, nil
	case "memory":
		return archive.NewMemory(), nil, nil
	case "local":
		arc, err := archive.NewLocal(cfg.LocalDir)
		if err != nil {
			return nil, nil, err
		}
		return arc, nil, nil
	case "gcs":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("gcs client: %w", err)
		}
		arc, err := archive.NewGCS(client, cfg.GCSBucket, cfg.Prefix)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		logger.Info("archiving pages to gcs", zap.String("bucket", cfg.GCSBucket))
		return arc, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown archive provider %q", cfg.Provider)
	}
}

// newNotifier builds the configured change-event publisher. The
// returned closer stops the topic and client and may be nil.
func newNotifier(ctx context.Context, cfg config.NotifyConfig, logger *zap.Logger) (notify.Publisher, func() error, error) {
	switch cfg.Provider {
	case "", "none":
		return notify.NoOp{}, nil, nil
	case "memory":
		return notify.NewMemory(), nil, nil
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub client: %w", err)
		}
		topic := client.Topic(cfg.Topic)
		pub, err := notify.NewPubSub(topic)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		logger.Info("publishing change events",
			zap.String("project", cfg.ProjectID), zap.String("topic", cfg.Topic))
		closer := func() error {
			topic.Stop()
			return client.Close()
		}
		return pub, closer, nil
	default:
		return nil, nil, fmt.Errorf("unknown notify provider %q", cfg.Provider)
	}
}
