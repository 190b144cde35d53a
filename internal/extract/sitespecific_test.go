package extract

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parselab/shop-parser/internal/parser"
)

func newTestProfile(selectors map[string]string) parser.SiteProfile {
	return parser.SiteProfile{
		Domain:    "shop.example",
		BaseURL:   "https://shop.example",
		Selectors: selectors,
	}
}

func TestSiteSpecificExtractSingleProduct(t *testing.T) {
	t.Parallel()

	html := `<html><body>
	<h2 class="item-title">Steel Thermos 1L</h2>
	<div class="cost">7 900 ₸</div>
	<div class="cost-old">9 900 ₸</div>
	<span class="vendor-code">TH-1000</span>
	<div class="maker">ThermoWare</div>
	<div class="availability-label">В наличии</div>
	<span class="volume-value">1 L</span>
	</body></html>`

	profile := newTestProfile(map[string]string{
		"title":        "h2.item-title",
		"price":        ".cost",
		"old_price":    ".cost-old",
		"sku":          ".vendor-code",
		"brand":        ".maker",
		"stock_status": ".availability-label",
		"attr:volume":  ".volume-value",
	})
	strategy := NewSiteSpecific(profile, NewUniversal("KZT"))

	products, err := strategy.Extract([]byte(html), "https://shop.example/thermos")
	require.NoError(t, err)
	require.Len(t, products, 1)

	p := products[0]
	assert.Equal(t, "Steel Thermos 1L", p.Title)
	assert.Equal(t, "TH-1000", p.SKU)
	assert.Equal(t, "ThermoWare", p.Brand)
	assert.Equal(t, "in_stock", p.StockStatus)
	require.NotNil(t, p.Price)
	assert.True(t, p.Price.Amount.Equal(decimal.NewFromInt(7900)))
	assert.Equal(t, "KZT", p.Price.Currency)
	require.NotNil(t, p.OldPrice)
	assert.True(t, p.OldPrice.Equal(decimal.NewFromInt(9900)))
	require.NotNil(t, p.DiscountPercent)
	assert.True(t, p.DiscountPercent.Equal(decimal.RequireFromString("20.2")), "got %s", p.DiscountPercent)
	assert.Equal(t, map[string]string{"volume": "1 L"}, p.Attributes)
}

func TestSiteSpecificExtractListingCards(t *testing.T) {
	t.Parallel()

	html := `<html><body>
	<div class="card"><span class="name">Mug Red</span><span class="amount">$5.00</span></div>
	<div class="card"><span class="name">Mug Blue</span><span class="amount">$6.00</span></div>
	<div class="card"><span class="amount">$7.00</span></div>
	</body></html>`

	profile := newTestProfile(map[string]string{
		"product": "div.card",
		"title":   ".name",
		"price":   ".amount",
	})
	strategy := NewSiteSpecific(profile, NewUniversal("USD"))

	products, err := strategy.Extract([]byte(html), "https://shop.example/mugs")
	require.NoError(t, err)
	// The titleless card yields nothing; inside listings there is no
	// page-level fallback.
	require.Len(t, products, 2)
	assert.Equal(t, "Mug Red", products[0].Title)
	assert.Equal(t, "Mug Blue", products[1].Title)
	require.NotNil(t, products[1].Price)
	assert.True(t, products[1].Price.Amount.Equal(decimal.NewFromInt(6)))
}

func TestSiteSpecificFallsBackPerField(t *testing.T) {
	t.Parallel()

	html := `<html>
	<head><meta name="description" content="From the page meta."></head>
	<body>
	<h1>Fallback Lamp</h1>
	<span class="selector-title">Selector Lamp</span>
	<div class="price">25.00 €</div>
	</body></html>`

	// The profile resolves only the title; price and description come from
	// the universal heuristics.
	profile := newTestProfile(map[string]string{
		"title": ".selector-title",
	})
	strategy := NewSiteSpecific(profile, NewUniversal("USD"))

	products, err := strategy.Extract([]byte(html), "https://shop.example/lamp")
	require.NoError(t, err)
	require.Len(t, products, 1)

	p := products[0]
	assert.Equal(t, "Selector Lamp", p.Title)
	assert.Equal(t, "From the page meta.", p.Description)
	require.NotNil(t, p.Price)
	assert.True(t, p.Price.Amount.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, "EUR", p.Price.Currency)
}

func TestSiteSpecificTitleFallbackToPage(t *testing.T) {
	t.Parallel()

	html := `<html><body><h1>Page Heading</h1></body></html>`
	profile := newTestProfile(map[string]string{
		"title": ".missing-selector",
	})
	strategy := NewSiteSpecific(profile, NewUniversal("USD"))

	products, err := strategy.Extract([]byte(html), "https://shop.example/heading")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Page Heading", products[0].Title)
}

func TestSiteSpecificNextPagePrefersProfileSelector(t *testing.T) {
	t.Parallel()

	html := `<html><body>
	<a class="pager-forward" href="/catalog?offset=40">→</a>
	<a rel="next" href="/catalog?page=2">next</a>
	</body></html>`

	profile := newTestProfile(map[string]string{
		"next_page": "a.pager-forward",
	})
	strategy := NewSiteSpecific(profile, NewUniversal("USD"))

	got := strategy.NextPageURL([]byte(html), "https://shop.example/catalog")
	assert.Equal(t, "https://shop.example/catalog?offset=40", got)
}
