// Package refresh suppresses redundant re-fetches of slowly-changing
// entity pages.
package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/marketwatch/crawler/internal/market"
)

// DefaultTTL is the minimum wall-clock interval before a brand or
// seller page is eligible for a re-fetch.
const DefaultTTL = time.Hour

// Policy implements market.RefreshPolicy against the store's
// last_update timestamps. All comparisons are between UTC instants.
type Policy struct {
	store market.Store
	ttl   time.Duration
}

// New builds a Policy; a non-positive ttl falls back to DefaultTTL.
func New(store market.Store, ttl time.Duration) *Policy {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Policy{store: store, ttl: ttl}
}

// NeedsRefresh reports whether the page behind url should be fetched.
// Only brand and seller pages are ever suppressed; every other kind
// re-fetches on every visit because the hash gate already bounds
// redundant writes.
func (p *Policy) NeedsRefresh(ctx context.Context, kind market.URLKind, url string, now time.Time) (bool, error) {
	var lastUpdate time.Time
	switch kind {
	case market.KindBrand:
		b, err := p.store.BrandByURL(ctx, url)
		if err != nil {
			return false, fmt.Errorf("brand lookup: %w", err)
		}
		if b == nil {
			return true, nil
		}
		lastUpdate = b.LastUpdate
	case market.KindSeller:
		s, err := p.store.SellerByURL(ctx, url)
		if err != nil {
			return false, fmt.Errorf("seller lookup: %w", err)
		}
		if s == nil {
			return true, nil
		}
		lastUpdate = s.LastUpdate
	default:
		return true, nil
	}
	return now.Sub(lastUpdate) >= p.ttl, nil
}
