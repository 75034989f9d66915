package market

import (
	"context"
	"time"
)

// Session is one live browser-automation connection. Navigate loads a
// URL and returns the rendered HTML; ClickAndCollect clicks the element
// matched by the selector and returns the page as rendered afterwards.
type Session interface {
	Navigate(ctx context.Context, url string) (string, error)
	ClickAndCollect(ctx context.Context, selector string) (string, error)
}

// SessionPool bounds the number of concurrently open sessions.
type SessionPool interface {
	Acquire(ctx context.Context) (Session, error)
	Release(Session)
	Shutdown(ctx context.Context) error
}

// Extractor turns a rendered page into a typed record plus discovered
// follow-up URLs. The session is handed in so paginated pages can be
// expanded in place. Retryable failures are reported as
// ErrIncompletePage; anything else is per-URL fatal.
type Extractor interface {
	Extract(ctx context.Context, kind URLKind, pageURL string, sess Session) (Result, error)
}

// Frontier is the deduplicating queue of URLs awaiting a visit.
type Frontier interface {
	Seed(urls []string)
	Push(url string) bool
	Pop() (string, bool)
	Drained() bool
}

// Store is the sole writer to persistent entity state and enforces the
// hash-gated history invariant.
type Store interface {
	UpsertBrand(ctx context.Context, name, url string) (int64, error)
	UpsertSeller(ctx context.Context, name, url string) (int64, error)
	UpsertProduct(ctx context.Context, pk int64, name, url string, brandID *int64, sellerID int64) (int64, error)
	// RecordObservation appends a history entry when the observation's
	// content hash differs from the latest stored entry. A nil entry
	// with nil error means the observation was a no-op.
	RecordObservation(ctx context.Context, productID int64, obs Observation) (*HistoryEntry, error)

	BrandByName(ctx context.Context, name string) (*Brand, error)
	BrandByURL(ctx context.Context, url string) (*Brand, error)
	SellerByName(ctx context.Context, name string) (*Seller, error)
	SellerByURL(ctx context.Context, url string) (*Seller, error)
	ProductByPK(ctx context.Context, pk int64) (*Product, error)
	LatestHistory(ctx context.Context, productID int64) (*HistoryEntry, error)
	HistoryByProduct(ctx context.Context, productID int64) ([]HistoryEntry, error)
}

// RefreshPolicy decides whether a slowly-changing entity page needs
// re-fetching at all.
type RefreshPolicy interface {
	NeedsRefresh(ctx context.Context, kind URLKind, url string, now time.Time) (bool, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
