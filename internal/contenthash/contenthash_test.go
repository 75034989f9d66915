package contenthash

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marketwatch/crawler/internal/market"
)

func baseObservation() market.Observation {
	return market.Observation{
		Name:          "Phone X",
		URL:           "https://www.megamarket.example/product/phone-x-111/",
		OnSale:        false,
		Price:         4900,
		MemberPrice:   4500,
		Rating:        4.5,
		ReviewCount:   120,
		QuestionCount: 3,
		Brand:         "Acme",
	}
}

// TestObservationStableDigest pins the digest format so stored hashes
// stay comparable across releases.
func TestObservationStableDigest(t *testing.T) {
	t.Parallel()

	require.Equal(t, "63683cfd6a03e45a6c62f47d83f638df", Observation(baseObservation()))
}

// TestObservationSensitiveToTrackedFields changes each field in the
// digest set and expects a different hash every time.
func TestObservationSensitiveToTrackedFields(t *testing.T) {
	t.Parallel()

	base := Observation(baseObservation())

	mutations := map[string]func(*market.Observation){
		"name":         func(o *market.Observation) { o.Name = "Phone X Pro" },
		"url":          func(o *market.Observation) { o.URL = "https://www.megamarket.example/product/phone-x-pro-112/" },
		"on_sale":      func(o *market.Observation) { o.OnSale = true },
		"member_price": func(o *market.Observation) { o.MemberPrice = 4400 },
		"rating":       func(o *market.Observation) { o.Rating = 4.6 },
		"review_count": func(o *market.Observation) { o.ReviewCount = 121 },
		"brand":        func(o *market.Observation) { o.Brand = "Acme Labs" },
	}
	for field, mutate := range mutations {
		obs := baseObservation()
		mutate(&obs)
		require.NotEqual(t, base, Observation(obs), "digest must change when %s changes", field)
	}
}

// TestObservationIgnoresUntrackedFields covers price and question count,
// which are stored on the history row but excluded from the digest.
func TestObservationIgnoresUntrackedFields(t *testing.T) {
	t.Parallel()

	base := Observation(baseObservation())

	obs := baseObservation()
	obs.Price = 5100
	obs.QuestionCount = 42
	require.Equal(t, base, Observation(obs))
}
