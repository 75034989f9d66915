package coordinator

import (
	"context"

	"go.uber.org/zap"

	"github.com/marketwatch/crawler/internal/archive"
	"github.com/marketwatch/crawler/internal/market"
)

// archivingSession tees the HTML of every navigation into the archive.
// Archive failures are logged and never fail the fetch.
type archivingSession struct {
	market.Session
	archive archive.Archive
	runID   string
	logger  *zap.Logger
}

func (s *archivingSession) Navigate(ctx context.Context, url string) (string, error) {
	html, err := s.Session.Navigate(ctx, url)
	if err != nil {
		return html, err
	}
	key := archive.PageKey(s.runID, url)
	if _, aerr := s.archive.SavePage(ctx, key, []byte(html)); aerr != nil {
		s.logger.Warn("page archive failed",
			zap.String("run_id", s.runID), zap.String("url", url), zap.Error(aerr))
	}
	return html, nil
}
