package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marketwatch/crawler/internal/market"
	"github.com/marketwatch/crawler/internal/store"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func TestNeedsRefreshSuppressesFreshEntities(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	// Seller updated 30 minutes ago with a 60 minute TTL.
	st := store.NewMemory(fixedClock{now: now.Add(-30 * time.Minute)})
	_, err := st.UpsertSeller(ctx, "Acme Store", "https://www.megamarket.example/seller/acme-7/")
	require.NoError(t, err)

	p := New(st, time.Hour)
	need, err := p.NeedsRefresh(ctx, market.KindSeller, "https://www.megamarket.example/seller/acme-7/", now)
	require.NoError(t, err)
	require.False(t, need)
}

func TestNeedsRefreshAfterTTLExpires(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	st := store.NewMemory(fixedClock{now: now.Add(-90 * time.Minute)})
	_, err := st.UpsertSeller(ctx, "Acme Store", "https://www.megamarket.example/seller/acme-7/")
	require.NoError(t, err)

	p := New(st, time.Hour)
	need, err := p.NeedsRefresh(ctx, market.KindSeller, "https://www.megamarket.example/seller/acme-7/", now)
	require.NoError(t, err)
	require.True(t, need)
}

func TestNeedsRefreshForUnknownEntity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	p := New(store.NewMemory(fixedClock{now: now}), time.Hour)

	need, err := p.NeedsRefresh(ctx, market.KindBrand, "https://www.megamarket.example/brand/acme/", now)
	require.NoError(t, err)
	require.True(t, need)
}

func TestNeedsRefreshNeverSuppressesProductPages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	p := New(store.NewMemory(fixedClock{now: now}), time.Hour)

	for _, kind := range []market.URLKind{market.KindProduct, market.KindCategory, market.KindSearch} {
		need, err := p.NeedsRefresh(ctx, kind, "https://www.megamarket.example/product/x-111/", now)
		require.NoError(t, err)
		require.True(t, need, kind)
	}
}
