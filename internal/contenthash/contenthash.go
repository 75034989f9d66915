// Package contenthash computes the change-detection digest for product
// observations.
package contenthash

import (
	"crypto/md5" //nolint:gosec // change detection, not security
	"encoding/hex"
	"encoding/json"

	"github.com/marketwatch/crawler/internal/market"
)

// Observation digests the fixed field set {name, url, on_sale,
// member_price, rating, review_count, brand}. Fields outside the set
// (price, question_count) never influence the digest, so updating them
// alone does not produce a new history entry. The input is serialized
// as sorted-key JSON before hashing so the digest is stable across
// process restarts and schema reorderings.
func Observation(obs market.Observation) string {
	relevant := map[string]any{
		"name":         obs.Name,
		"url":          obs.URL,
		"on_sale":      obs.OnSale,
		"member_price": obs.MemberPrice,
		"rating":       obs.Rating,
		"review_count": obs.ReviewCount,
		"brand":        obs.Brand,
	}
	data, err := json.Marshal(relevant)
	if err != nil {
		// Only marshalable types appear above.
		panic(err)
	}
	sum := md5.Sum(data) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
