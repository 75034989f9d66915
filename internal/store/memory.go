package store

import (
	"context"
	"sync"

	"github.com/marketwatch/crawler/internal/contenthash"
	"github.com/marketwatch/crawler/internal/market"
)

// Memory is an in-memory change-detection store for local development
// and tests. It mirrors the Postgres semantics exactly, including the
// hash gate and URL correction rules.
type Memory struct {
	mu      sync.Mutex
	clock   market.Clock
	brands  []*market.Brand
	sellers []*market.Seller
	prods   []*market.Product
	history map[int64][]market.HistoryEntry
	nextID  int64
}

// NewMemory constructs an empty Memory store.
func NewMemory(clock market.Clock) *Memory {
	return &Memory{
		clock:   clock,
		history: make(map[int64][]market.HistoryEntry),
	}
}

func (m *Memory) nextSerial() int64 {
	m.nextID++
	return m.nextID
}

// UpsertBrand gets or creates a brand by name, correcting the URL in
// place when a differing non-empty one is observed.
func (m *Memory) UpsertBrand(_ context.Context, name, url string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.brands {
		if b.Name == name {
			if url != "" && url != b.URL {
				b.URL = url
				b.LastUpdate = m.clock.Now()
			}
			return b.ID, nil
		}
	}
	b := &market.Brand{ID: m.nextSerial(), Name: name, URL: url, LastUpdate: m.clock.Now()}
	m.brands = append(m.brands, b)
	return b.ID, nil
}

// UpsertSeller is symmetric to UpsertBrand.
func (m *Memory) UpsertSeller(_ context.Context, name, url string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sellers {
		if s.Name == name {
			if url != "" && url != s.URL {
				s.URL = url
				s.LastUpdate = m.clock.Now()
			}
			return s.ID, nil
		}
	}
	s := &market.Seller{ID: m.nextSerial(), Name: name, URL: url, LastUpdate: m.clock.Now()}
	m.sellers = append(m.sellers, s)
	return s.ID, nil
}

// UpsertProduct gets or creates a product by pk; later sightings are
// never corrected.
func (m *Memory) UpsertProduct(_ context.Context, pk int64, name, url string, brandID *int64, sellerID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.prods {
		if p.PK == pk {
			return p.ID, nil
		}
	}
	p := &market.Product{ID: m.nextSerial(), PK: pk, Name: name, URL: url, BrandID: brandID, SellerID: sellerID}
	m.prods = append(m.prods, p)
	return p.ID, nil
}

// RecordObservation appends a history entry iff the hash differs from
// the latest entry's.
func (m *Memory) RecordObservation(_ context.Context, productID int64, obs market.Observation) (*market.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash := contenthash.Observation(obs)
	entries := m.history[productID]
	if n := len(entries); n > 0 && entries[n-1].Hash == hash {
		return nil, nil
	}
	entry := market.HistoryEntry{
		ID:            m.nextSerial(),
		ProductID:     productID,
		Price:         obs.Price,
		MemberPrice:   obs.MemberPrice,
		Rating:        obs.Rating,
		ReviewCount:   obs.ReviewCount,
		QuestionCount: obs.QuestionCount,
		OnSale:        obs.OnSale,
		Hash:          hash,
		CreatedAt:     m.clock.Now(),
	}
	m.history[productID] = append(entries, entry)
	return &entry, nil
}

// BrandByName looks a brand up by name.
func (m *Memory) BrandByName(_ context.Context, name string) (*market.Brand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.brands {
		if b.Name == name {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

// BrandByURL looks a brand up by URL.
func (m *Memory) BrandByURL(_ context.Context, url string) (*market.Brand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.brands {
		if b.URL != "" && b.URL == url {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

// SellerByName looks a seller up by name.
func (m *Memory) SellerByName(_ context.Context, name string) (*market.Seller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sellers {
		if s.Name == name {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

// SellerByURL looks a seller up by URL.
func (m *Memory) SellerByURL(_ context.Context, url string) (*market.Seller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sellers {
		if s.URL != "" && s.URL == url {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

// ProductByPK looks a product up by marketplace pk.
func (m *Memory) ProductByPK(_ context.Context, pk int64) (*market.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.prods {
		if p.PK == pk {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

// LatestHistory returns the most recent entry for a product, or nil.
func (m *Memory) LatestHistory(_ context.Context, productID int64) (*market.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.history[productID]
	if len(entries) == 0 {
		return nil, nil
	}
	cp := entries[len(entries)-1]
	return &cp, nil
}

// HistoryByProduct returns all entries for a product, oldest first.
func (m *Memory) HistoryByProduct(_ context.Context, productID int64) ([]market.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]market.HistoryEntry(nil), m.history[productID]...), nil
}
