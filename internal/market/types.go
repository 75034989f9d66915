// Package market defines core types shared across subsystems.
package market

import "time"

// URLKind classifies a marketplace URL by its first path segment.
type URLKind string

// URL kinds recognized by the crawl engine.
const (
	KindCategory URLKind = "category"
	KindSearch   URLKind = "search"
	KindProduct  URLKind = "product"
	KindBrand    URLKind = "brand"
	KindSeller   URLKind = "seller"
	KindUnknown  URLKind = "unknown"
)

// Brand is a slowly-changing entity identified by name.
type Brand struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url,omitempty"`
	LastUpdate time.Time `json:"last_update"`
}

// Seller is a slowly-changing entity identified by name.
type Seller struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url,omitempty"`
	LastUpdate time.Time `json:"last_update"`
}

// Product is created once per marketplace primary key and never deleted.
// Mutable facts live in its history entries.
type Product struct {
	ID       int64  `json:"id"`
	PK       int64  `json:"pk"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	BrandID  *int64 `json:"brand_id,omitempty"`
	SellerID int64  `json:"seller_id"`
}

// Observation is one set of facts extracted from a product page or tile.
// Brand carries the brand name so the content hash can cover it even
// though products reference brands by ID.
type Observation struct {
	Name          string  `json:"name"`
	URL           string  `json:"url"`
	OnSale        bool    `json:"on_sale"`
	Price         float64 `json:"price"`
	MemberPrice   float64 `json:"member_price"`
	Rating        float64 `json:"rating"`
	ReviewCount   int     `json:"review_count"`
	QuestionCount int     `json:"question_count"`
	Brand         string  `json:"brand,omitempty"`
}

// HistoryEntry is one append-only snapshot of a product's facts.
type HistoryEntry struct {
	ID            int64     `json:"id"`
	ProductID     int64     `json:"product_id"`
	Price         float64   `json:"price"`
	MemberPrice   float64   `json:"member_price"`
	Rating        float64   `json:"rating"`
	ReviewCount   int       `json:"review_count"`
	QuestionCount int       `json:"question_count"`
	OnSale        bool      `json:"on_sale"`
	Hash          string    `json:"hash"`
	CreatedAt     time.Time `json:"created_at"`
}

// ProductRecord is everything the extractor learns from a product page:
// the observation itself plus the brand and seller it references.
type ProductRecord struct {
	PK          int64
	Observation Observation
	BrandName   string
	BrandURL    string
	SellerName  string
	SellerURL   string
}

// EntityRecord is the result of extracting a brand or seller page.
type EntityRecord struct {
	Name string
	URL  string
}

// Result is the tagged outcome of extracting one page. Exactly one of
// Product and Entity is set for product and brand/seller pages; both
// are nil for category and search pages, which only yield follow-ups.
type Result struct {
	Kind      URLKind
	Product   *ProductRecord
	Entity    *EntityRecord
	FollowUps []string
}
