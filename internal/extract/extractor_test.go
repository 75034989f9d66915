package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marketwatch/crawler/internal/market"
	"github.com/marketwatch/crawler/internal/store"
)

const siteHost = "www.megamarket.example"

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

// scriptedSession serves canned HTML per URL and for click expansion.
type scriptedSession struct {
	pages     map[string]string
	clickHTML string
	clicked   []string
	navErr    error
}

func (s *scriptedSession) Navigate(_ context.Context, url string) (string, error) {
	if s.navErr != nil {
		return "", s.navErr
	}
	html, ok := s.pages[url]
	if !ok {
		return "", errors.New("no page scripted for " + url)
	}
	return html, nil
}

func (s *scriptedSession) ClickAndCollect(_ context.Context, selector string) (string, error) {
	s.clicked = append(s.clicked, selector)
	return s.clickHTML, nil
}

const categoryHTML = `
<html><body>
<div id="contentScrollPaginator">
  <div class="tile-root">
    <a href="/product/phone-x-111/"><span>Phone X</span></a>
    <b>Acme</b>
    <span>4 500 ₽</span>
    <div class="tile-rating"><span>4.5</span><span>120 отзывов</span></div>
  </div>
  <div class="tile-root">
    <a href="/product/kettle-9-222/"><span>Steel Kettle</span></a>
    <b>HomePro</b>
    <span>1 200 ₽</span>
  </div>
  <div class="tile-root">
    <span>broken tile without a link</span>
  </div>
</div>
</body></html>`

const productHTML = `
<html><body>
<div class="container c">
  <button data-widget="webDetailSKU"><div>Артикул: 111</div></button>
  <div data-widget="webPdpGrid">
    <div data-widget="webProductHeading"><h1>Phone X</h1></div>
    <div data-widget="webSingleProductScore"><a><div>4.5 • 120 отзывов</div></a></div>
    <div data-widget="webQuestionCount"><a><div>3 вопроса</div></a></div>
    <div data-widget="webBrand"><div><div><a href="/brand/acme/">Acme</a></div></div></div>
    <div data-widget="webPrice"><span>4 500 ₽</span><span>4 900 ₽</span></div>
  </div>
</div>
<div class="container c">
  <div data-widget="webCurrentSeller"><div><div><a href="/seller/acme-7/">Acme Store</a></div></div></div>
  <div id="seller-list">
    <div><a href="/seller/reseller-8/">Reseller</a></div>
  </div>
</div>
</body></html>`

const sellerHTML = `
<html><body>
<div data-widget="sellerTransparency"><div><span>Acme Store</span></div></div>
<div id="contentScrollPaginator">
  <div class="tile-root">
    <a href="/product/phone-x-111/"><span>Phone X</span></a>
    <b>Acme</b>
    <span>4 500 ₽</span>
  </div>
</div>
</body></html>`

func newExtractor(keywords []string) (*Extractor, *store.Memory) {
	st := store.NewMemory(fixedClock{now: time.Unix(1700000000, 0).UTC()})
	ex := New(Config{SiteHost: siteHost, Keywords: keywords}, st, nil)
	return ex, st
}

func TestExtractCategoryReturnsTileFollowUps(t *testing.T) {
	t.Parallel()

	ex, _ := newExtractor(nil)
	sess := &scriptedSession{pages: map[string]string{
		"https://www.megamarket.example/category/phones-1/": categoryHTML,
	}}

	res, err := ex.Extract(context.Background(), market.KindCategory,
		"https://www.megamarket.example/category/phones-1/", sess)
	require.NoError(t, err)
	require.Equal(t, market.KindCategory, res.Kind)
	require.Nil(t, res.Product)
	require.Equal(t, []string{
		"https://www.megamarket.example/product/phone-x-111/",
		"https://www.megamarket.example/product/kettle-9-222/",
	}, res.FollowUps)
}

func TestExtractCategoryKeywordFilter(t *testing.T) {
	t.Parallel()

	ex, _ := newExtractor([]string{"phone"})
	sess := &scriptedSession{pages: map[string]string{
		"https://www.megamarket.example/category/phones-1/": categoryHTML,
	}}

	res, err := ex.Extract(context.Background(), market.KindCategory,
		"https://www.megamarket.example/category/phones-1/", sess)
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://www.megamarket.example/product/phone-x-111/",
	}, res.FollowUps)
}

func TestExtractCategorySkipsUnchangedProducts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ex, st := newExtractor(nil)

	// Store the exact snapshot the first tile will produce.
	sellerID, err := st.UpsertSeller(ctx, "Acme Store", "")
	require.NoError(t, err)
	productID, err := st.UpsertProduct(ctx, 111, "Phone X",
		"https://www.megamarket.example/product/phone-x-111/", nil, sellerID)
	require.NoError(t, err)
	_, err = st.RecordObservation(ctx, productID, market.Observation{
		Name:        "Phone X",
		URL:         "https://www.megamarket.example/product/phone-x-111/",
		MemberPrice: 4500,
		Rating:      4.5,
		ReviewCount: 120,
		Brand:       "Acme",
	})
	require.NoError(t, err)

	sess := &scriptedSession{pages: map[string]string{
		"https://www.megamarket.example/category/phones-1/": categoryHTML,
	}}
	res, err := ex.Extract(ctx, market.KindCategory,
		"https://www.megamarket.example/category/phones-1/", sess)
	require.NoError(t, err)

	// Only the second, never-seen product remains.
	require.Equal(t, []string{
		"https://www.megamarket.example/product/kettle-9-222/",
	}, res.FollowUps)
}

func TestExtractProductPage(t *testing.T) {
	t.Parallel()

	ex, _ := newExtractor(nil)
	url := "https://www.megamarket.example/product/phone-x-111/"
	sess := &scriptedSession{pages: map[string]string{url: productHTML}}

	res, err := ex.Extract(context.Background(), market.KindProduct, url, sess)
	require.NoError(t, err)
	require.NotNil(t, res.Product)

	p := res.Product
	require.Equal(t, int64(111), p.PK)
	require.Equal(t, "Phone X", p.Observation.Name)
	require.Equal(t, 4500.0, p.Observation.MemberPrice)
	require.Equal(t, 4900.0, p.Observation.Price)
	require.Equal(t, 4.5, p.Observation.Rating)
	require.Equal(t, 120, p.Observation.ReviewCount)
	require.Equal(t, 3, p.Observation.QuestionCount)
	require.Equal(t, "Acme", p.BrandName)
	require.Equal(t, "Acme", p.Observation.Brand)
	require.Equal(t, "Acme Store", p.SellerName)
	require.Equal(t, "/seller/acme-7/", p.SellerURL)

	require.Equal(t, []string{
		"/brand/acme/",
		"/seller/acme-7/",
		"/seller/reseller-8/",
	}, res.FollowUps)
	require.Empty(t, sess.clicked)
}

func TestExtractProductExpandsSellerList(t *testing.T) {
	t.Parallel()

	truncated := `
<html><body>
<div class="container c">
  <button data-widget="webDetailSKU"><div>Артикул: 111</div></button>
  <div data-widget="webProductHeading"><h1>Phone X</h1></div>
  <div data-widget="webPrice"><span>4 500 ₽</span></div>
</div>
<div class="container c">
  <div data-widget="webCurrentSeller"><a href="/seller/acme-7/">Acme Store</a></div>
  <div id="seller-list">
    <a href="/seller/reseller-8/">Reseller</a>
    <button>Show all</button>
  </div>
</div>
</body></html>`
	expanded := `
<html><body>
<div id="seller-list">
  <a href="/seller/reseller-8/">Reseller</a>
  <a href="/seller/reseller-9/">Another</a>
</div>
</body></html>`

	ex, _ := newExtractor(nil)
	url := "https://www.megamarket.example/product/phone-x-111/"
	sess := &scriptedSession{
		pages:     map[string]string{url: truncated},
		clickHTML: expanded,
	}

	res, err := ex.Extract(context.Background(), market.KindProduct, url, sess)
	require.NoError(t, err)
	require.Equal(t, []string{"#seller-list button"}, sess.clicked)
	require.Contains(t, res.FollowUps, "/seller/reseller-9/")
}

func TestExtractProductIncompletePage(t *testing.T) {
	t.Parallel()

	ex, _ := newExtractor(nil)
	url := "https://www.megamarket.example/product/phone-x-111/"
	sess := &scriptedSession{pages: map[string]string{
		url: "<html><body><div>loading…</div></body></html>",
	}}

	_, err := ex.Extract(context.Background(), market.KindProduct, url, sess)
	require.ErrorIs(t, err, market.ErrIncompletePage)
}

func TestExtractSellerPage(t *testing.T) {
	t.Parallel()

	ex, _ := newExtractor(nil)
	url := "https://www.megamarket.example/seller/acme-7/"
	sess := &scriptedSession{pages: map[string]string{url: sellerHTML}}

	res, err := ex.Extract(context.Background(), market.KindSeller, url, sess)
	require.NoError(t, err)
	require.NotNil(t, res.Entity)
	require.Equal(t, "Acme Store", res.Entity.Name)
	require.Equal(t, url, res.Entity.URL)
	require.Equal(t, []string{
		"https://www.megamarket.example/product/phone-x-111/",
	}, res.FollowUps)
}
