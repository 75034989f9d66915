package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marketwatch/crawler/internal/market"
)

type tickingClock struct {
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func sampleObservation() market.Observation {
	return market.Observation{
		Name:          "Phone X",
		URL:           "https://www.megamarket.example/product/phone-x-111/",
		Price:         4900,
		MemberPrice:   4500,
		Rating:        4.5,
		ReviewCount:   120,
		QuestionCount: 3,
		Brand:         "Acme",
	}
}

func TestMemoryHashGateIdempotence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory(&tickingClock{now: time.Unix(1700000000, 0).UTC()})

	sellerID, err := m.UpsertSeller(ctx, "Acme Store", "")
	require.NoError(t, err)
	productID, err := m.UpsertProduct(ctx, 111, "Phone X", "/product/phone-x-111/", nil, sellerID)
	require.NoError(t, err)

	first, err := m.RecordObservation(ctx, productID, sampleObservation())
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := m.RecordObservation(ctx, productID, sampleObservation())
	require.NoError(t, err)
	require.Nil(t, second)

	entries, err := m.HistoryByProduct(ctx, productID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestMemoryHashGateSensitivity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory(&tickingClock{now: time.Unix(1700000000, 0).UTC()})
	productID, err := m.UpsertProduct(ctx, 111, "Phone X", "/product/phone-x-111/", nil, 1)
	require.NoError(t, err)

	_, err = m.RecordObservation(ctx, productID, sampleObservation())
	require.NoError(t, err)

	// A tracked-field change appends.
	obs := sampleObservation()
	obs.MemberPrice = 4400
	entry, err := m.RecordObservation(ctx, productID, obs)
	require.NoError(t, err)
	require.NotNil(t, entry)

	// An untracked-field change alone does not.
	obs.QuestionCount = 99
	entry, err = m.RecordObservation(ctx, productID, obs)
	require.NoError(t, err)
	require.Nil(t, entry)

	entries, err := m.HistoryByProduct(ctx, productID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NotEqual(t, entries[0].Hash, entries[1].Hash)
}

func TestMemoryBrandURLCorrectionBumpsLastUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory(&tickingClock{now: time.Unix(1700000000, 0).UTC()})

	id, err := m.UpsertBrand(ctx, "Acme", "")
	require.NoError(t, err)

	created, err := m.BrandByName(ctx, "Acme")
	require.NoError(t, err)
	require.NotNil(t, created)

	// Same name, no URL: nothing changes.
	again, err := m.UpsertBrand(ctx, "Acme", "")
	require.NoError(t, err)
	require.Equal(t, id, again)
	unchanged, err := m.BrandByName(ctx, "Acme")
	require.NoError(t, err)
	require.Equal(t, created.LastUpdate, unchanged.LastUpdate)

	// A newly learned URL corrects in place and bumps last_update.
	_, err = m.UpsertBrand(ctx, "Acme", "https://www.megamarket.example/brand/acme/")
	require.NoError(t, err)
	updated, err := m.BrandByURL(ctx, "https://www.megamarket.example/brand/acme/")
	require.NoError(t, err)
	require.NotNil(t, updated)
	require.Equal(t, id, updated.ID)
	require.True(t, updated.LastUpdate.After(created.LastUpdate))
}

func TestMemoryProductNeverCorrected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory(&tickingClock{now: time.Unix(1700000000, 0).UTC()})

	id, err := m.UpsertProduct(ctx, 111, "Phone X", "/product/phone-x-111/", nil, 1)
	require.NoError(t, err)

	same, err := m.UpsertProduct(ctx, 111, "Phone X Renamed", "/product/renamed-111/", nil, 2)
	require.NoError(t, err)
	require.Equal(t, id, same)

	p, err := m.ProductByPK(ctx, 111)
	require.NoError(t, err)
	require.Equal(t, "Phone X", p.Name)
	require.Equal(t, "/product/phone-x-111/", p.URL)
	require.Equal(t, int64(1), p.SellerID)
}
