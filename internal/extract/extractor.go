// Package extract turns rendered marketplace pages into typed records.
// The selectors target the marketplace's current widget layout and are
// expected to drift; every failure here is isolated to its URL.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/marketwatch/crawler/internal/contenthash"
	"github.com/marketwatch/crawler/internal/market"
)

// Selector constants for the marketplace widget layout.
const (
	tileSelector          = "#contentScrollPaginator .tile-root"
	entityNameSelector    = `div[data-widget="sellerTransparency"] span`
	productSKUSelector    = `button[data-widget="webDetailSKU"] div`
	productNameSelector   = `div[data-widget="webProductHeading"] h1`
	productScoreSelector  = `div[data-widget="webSingleProductScore"] a div`
	questionCountSelector = `div[data-widget="webQuestionCount"] a div`
	brandSelector         = `div[data-widget="webBrand"] a`
	priceSelector         = `div[data-widget="webPrice"] span`
	promoSelector         = `div[data-widget="bigPromoPDP"]`
	sellerSelector        = `div[data-widget="webCurrentSeller"] a`
	sellerListSelector    = "#seller-list a"
	moreSellersSelector   = "#seller-list button"
)

// Config controls extraction behavior.
type Config struct {
	SiteHost string
	// Keywords filter product tiles by name or brand; empty keeps all.
	Keywords []string
	// OnSaleMarker is the promo section label marking sale items.
	OnSaleMarker string
	// NoQuestionsMarker appears in the question widget when no
	// questions have been asked yet.
	NoQuestionsMarker string
}

// Extractor implements market.Extractor with goquery. The store is
// used read-only, for the tile-level change pre-check that keeps
// unchanged products out of the frontier.
type Extractor struct {
	cfg    Config
	store  market.Store
	logger *zap.Logger
}

// New builds an Extractor.
func New(cfg Config, store market.Store, logger *zap.Logger) *Extractor {
	if cfg.OnSaleMarker == "" {
		cfg.OnSaleMarker = "Распродажа"
	}
	if cfg.NoQuestionsMarker == "" {
		cfg.NoQuestionsMarker = "Задать"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, store: store, logger: logger}
}

// Extract fetches the page through the session and parses it according
// to its kind.
func (e *Extractor) Extract(ctx context.Context, kind market.URLKind, pageURL string, sess market.Session) (market.Result, error) {
	html, err := sess.Navigate(ctx, pageURL)
	if err != nil {
		return market.Result{}, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return market.Result{}, &market.ExtractionError{Kind: kind, URL: pageURL, Err: err}
	}

	switch kind {
	case market.KindCategory, market.KindSearch:
		return market.Result{
			Kind:      kind,
			FollowUps: e.parseTiles(ctx, doc),
		}, nil
	case market.KindBrand, market.KindSeller:
		return e.parseEntityPage(ctx, kind, pageURL, doc)
	case market.KindProduct:
		return e.parseProductPage(ctx, pageURL, doc, sess)
	default:
		return market.Result{}, &market.ExtractionError{Kind: kind, URL: pageURL, Err: errors.New("unsupported url kind")}
	}
}

// parseEntityPage handles brand and seller pages: the entity record
// itself plus its product tiles as follow-ups.
func (e *Extractor) parseEntityPage(ctx context.Context, kind market.URLKind, pageURL string, doc *goquery.Document) (market.Result, error) {
	name := strings.TrimSpace(doc.Find(entityNameSelector).First().Text())
	if name == "" {
		return market.Result{}, market.ErrIncompletePage
	}
	return market.Result{
		Kind:      kind,
		Entity:    &market.EntityRecord{Name: name, URL: pageURL},
		FollowUps: e.parseTiles(ctx, doc),
	}, nil
}

// parseTiles walks the product tiles of a listing page. A tile's URL
// becomes a follow-up only when it passes the keyword filter and the
// tile-level facts differ from the latest stored snapshot; per-tile
// failures are skipped, never fatal.
func (e *Extractor) parseTiles(ctx context.Context, doc *goquery.Document) []string {
	var followUps []string
	doc.Find(tileSelector).Each(func(_ int, tile *goquery.Selection) {
		u, err := e.parseTile(ctx, tile)
		if err != nil {
			e.logger.Debug("skipping tile", zap.Error(err))
			return
		}
		if u != "" {
			followUps = append(followUps, u)
		}
	})
	return followUps
}

func (e *Extractor) parseTile(ctx context.Context, tile *goquery.Selection) (string, error) {
	link := tile.Find("a").First()
	href, ok := link.Attr("href")
	if !ok || href == "" {
		return "", errors.New("tile without link")
	}
	normalized, err := market.Normalize(href, e.cfg.SiteHost)
	if err != nil {
		return "", fmt.Errorf("tile url: %w", err)
	}
	pk, ok := market.ProductPK(normalized)
	if !ok {
		return "", fmt.Errorf("tile url %s carries no product pk", normalized)
	}

	name := strings.TrimSpace(link.Find("span").First().Text())
	if name == "" {
		return "", errors.New("tile without name")
	}
	brand := strings.TrimSpace(tile.Find("b").First().Text())
	if !e.matchesKeywords(name, brand) {
		return "", nil
	}

	obs := market.Observation{
		Name:   name,
		URL:    normalized,
		Brand:  brand,
		OnSale: strings.Contains(tile.Find("section").Text(), e.cfg.OnSaleMarker),
	}
	obs.MemberPrice = parsePrice(firstTextContaining(tile.Find("span"), "₽"))
	rating := tile.Find(".tile-rating span")
	if rating.Length() >= 2 {
		obs.Rating = parseFloat(rating.Eq(0).Text())
		obs.ReviewCount = parseCount(rating.Eq(1).Text())
	}

	changed, err := e.tileChanged(ctx, pk, obs)
	if err != nil {
		return "", err
	}
	if !changed {
		return "", nil
	}
	return normalized, nil
}

// tileChanged reports whether the tile-derived snapshot differs from
// the product's latest stored history entry.
func (e *Extractor) tileChanged(ctx context.Context, pk int64, obs market.Observation) (bool, error) {
	product, err := e.store.ProductByPK(ctx, pk)
	if err != nil {
		return false, fmt.Errorf("product lookup pk=%d: %w", pk, err)
	}
	if product == nil {
		return true, nil
	}
	latest, err := e.store.LatestHistory(ctx, product.ID)
	if err != nil {
		return false, fmt.Errorf("latest history pk=%d: %w", pk, err)
	}
	if latest == nil {
		return true, nil
	}
	return latest.Hash != contenthash.Observation(obs), nil
}

func (e *Extractor) matchesKeywords(name, brand string) bool {
	if len(e.cfg.Keywords) == 0 {
		return true
	}
	lowerName := strings.ToLower(name)
	lowerBrand := strings.ToLower(brand)
	for _, kw := range e.cfg.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(lowerName, kw) || strings.Contains(lowerBrand, kw) {
			return true
		}
	}
	return false
}

// parseProductPage scrapes the full product card. Missing page regions
// mean the page has not finished rendering, which the coordinator
// retries.
func (e *Extractor) parseProductPage(ctx context.Context, pageURL string, doc *goquery.Document, sess market.Session) (market.Result, error) {
	skuText := strings.TrimSpace(doc.Find(productSKUSelector).First().Text())
	name := strings.TrimSpace(doc.Find(productNameSelector).First().Text())
	sellerLink := doc.Find(sellerSelector).First()
	if skuText == "" || name == "" || sellerLink.Length() == 0 {
		return market.Result{}, market.ErrIncompletePage
	}

	fields := strings.Fields(skuText)
	pk, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil {
		return market.Result{}, &market.ExtractionError{
			Kind: market.KindProduct, URL: pageURL,
			Err: fmt.Errorf("parse sku %q: %w", skuText, err),
		}
	}

	obs := market.Observation{
		Name:   name,
		URL:    pageURL,
		OnSale: doc.Find(promoSelector).Length() > 0,
	}

	if score := strings.TrimSpace(doc.Find(productScoreSelector).First().Text()); score != "" {
		parts := strings.SplitN(score, " • ", 2)
		obs.Rating = parseFloat(parts[0])
		if len(parts) == 2 {
			obs.ReviewCount = parseCount(parts[1])
		}
	}
	if q := strings.TrimSpace(doc.Find(questionCountSelector).First().Text()); q != "" &&
		!strings.Contains(q, e.cfg.NoQuestionsMarker) {
		obs.QuestionCount = parseCount(q)
	}

	prices := doc.Find(priceSelector)
	switch {
	case prices.Length() >= 2:
		obs.MemberPrice = parsePrice(prices.Eq(0).Text())
		obs.Price = parsePrice(prices.Eq(1).Text())
	case prices.Length() == 1:
		obs.MemberPrice = parsePrice(prices.Eq(0).Text())
		obs.Price = obs.MemberPrice
	}

	record := market.ProductRecord{PK: pk, Observation: obs}
	var followUps []string

	if brand := doc.Find(brandSelector).First(); brand.Length() > 0 {
		record.BrandName = strings.TrimSpace(brand.Text())
		if href, ok := brand.Attr("href"); ok {
			record.BrandURL = href
			followUps = append(followUps, href)
		}
		record.Observation.Brand = record.BrandName
	}

	record.SellerName = strings.TrimSpace(sellerLink.Text())
	if href, ok := sellerLink.Attr("href"); ok {
		record.SellerURL = href
		followUps = append(followUps, href)
	}

	followUps = append(followUps, e.otherSellers(ctx, doc, sess)...)

	return market.Result{
		Kind:      market.KindProduct,
		Product:   &record,
		FollowUps: followUps,
	}, nil
}

// otherSellers collects the seller-list links, expanding the paginated
// list through a click when the marketplace truncates it. A failed
// expansion falls back to the visible entries.
func (e *Extractor) otherSellers(ctx context.Context, doc *goquery.Document, sess market.Session) []string {
	listDoc := doc
	if doc.Find(moreSellersSelector).Length() > 0 {
		html, err := sess.ClickAndCollect(ctx, moreSellersSelector)
		if err != nil {
			e.logger.Warn("seller list expansion failed", zap.Error(err))
		} else if expanded, perr := goquery.NewDocumentFromReader(strings.NewReader(html)); perr == nil {
			listDoc = expanded
		}
	}

	var urls []string
	listDoc.Find(sellerListSelector).Each(func(_ int, link *goquery.Selection) {
		if href, ok := link.Attr("href"); ok && href != "" {
			urls = append(urls, href)
		}
	})
	return urls
}

func firstTextContaining(sel *goquery.Selection, marker string) string {
	var found string
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(s.Text(), marker) {
			found = s.Text()
			return false
		}
		return true
	})
	return found
}

// parsePrice strips currency symbols and spacing from a price label.
func parsePrice(text string) float64 {
	return parseFloat(text)
}

// parseCount keeps the digits of a count label such as "1 024 отзыва".
func parseCount(text string) int {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0
	}
	return n
}

func parseFloat(text string) float64 {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
		if r == ',' {
			b.WriteRune('.')
		}
	}
	if b.Len() == 0 {
		return 0
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return f
}
