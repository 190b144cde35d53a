package extract

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonLDProductPage = `<html>
<head>
<title>Acme Widget | Shop</title>
<meta name="description" content="The finest widget.">
<link rel="canonical" href="https://shop.example/widget">
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "Product",
  "name": "Acme Widget",
  "description": "A very fine widget.",
  "sku": "AW-100",
  "brand": {"@type": "Brand", "name": "Acme"},
  "image": ["/img/widget-1.jpg", "/img/widget-2.jpg"],
  "aggregateRating": {"ratingValue": 4.5, "reviewCount": 12},
  "offers": {
    "@type": "Offer",
    "price": "79.99",
    "priceCurrency": "EUR",
    "availability": "https://schema.org/InStock"
  }
}
</script>
</head>
<body>
<nav class="breadcrumbs"><a href="/">Home</a><a href="/tools">Tools</a></nav>
<h1>Acme Widget</h1>
</body>
</html>`

func TestUniversalExtractJSONLD(t *testing.T) {
	t.Parallel()

	u := NewUniversal("USD")
	products, err := u.Extract([]byte(jsonLDProductPage), "https://shop.example/widget")
	require.NoError(t, err)
	require.Len(t, products, 1)

	p := products[0]
	assert.Equal(t, "Acme Widget", p.Title)
	assert.Equal(t, "A very fine widget.", p.Description)
	assert.Equal(t, "AW-100", p.SKU)
	assert.Equal(t, "Acme", p.Brand)
	assert.Equal(t, "in_stock", p.StockStatus)
	assert.InDelta(t, 4.5, p.Rating, 0.001)
	assert.Equal(t, 12, p.ReviewsCount)
	require.NotNil(t, p.Price)
	assert.True(t, p.Price.Amount.Equal(decimal.RequireFromString("79.99")))
	assert.Equal(t, "EUR", p.Price.Currency)
	assert.Equal(t, []string{
		"https://shop.example/img/widget-1.jpg",
		"https://shop.example/img/widget-2.jpg",
	}, p.Images)
	assert.Equal(t, []string{"Home", "Tools"}, p.Breadcrumbs)
	assert.Equal(t, "Tools", p.Category)
	assert.Equal(t, "shop.example", p.SourceSite)

	assert.Equal(t, "Acme Widget | Shop", p.SEO.MetaTitle)
	assert.Equal(t, "The finest widget.", p.SEO.MetaDescription)
	assert.Equal(t, 1, p.SEO.H1Count)
	assert.True(t, p.SEO.HasCanonical)
	assert.True(t, p.SEO.HasSchemaOrg)
}

func TestUniversalExtractItemList(t *testing.T) {
	t.Parallel()

	html := `<html><head><script type="application/ld+json">
	{
	  "@type": "ItemList",
	  "itemListElement": [
	    {"@type": "ListItem", "item": {"@type": "Product", "name": "First", "offers": {"price": "10", "priceCurrency": "USD"}}},
	    {"@type": "ListItem", "item": {"@type": "Product", "name": "Second", "offers": {"price": "20", "priceCurrency": "USD"}}}
	  ]
	}
	</script></head><body><h1>Catalog</h1></body></html>`

	u := NewUniversal("USD")
	products, err := u.Extract([]byte(html), "https://shop.example/catalog")
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "First", products[0].Title)
	assert.Equal(t, "Second", products[1].Title)
}

func TestUniversalExtractMicrodata(t *testing.T) {
	t.Parallel()

	html := `<html><body>
	<div itemscope itemtype="https://schema.org/Product">
	  <span itemprop="name">Micro Kettle</span>
	  <meta itemprop="price" content="4990">
	  <meta itemprop="priceCurrency" content="KZT">
	  <link itemprop="availability" href="https://schema.org/OutOfStock">
	</div>
	</body></html>`

	u := NewUniversal("USD")
	products, err := u.Extract([]byte(html), "https://shop.example/kettle")
	require.NoError(t, err)
	require.Len(t, products, 1)
	p := products[0]
	assert.Equal(t, "Micro Kettle", p.Title)
	assert.Equal(t, "out_of_stock", p.StockStatus)
	require.NotNil(t, p.Price)
	assert.True(t, p.Price.Amount.Equal(decimal.NewFromInt(4990)))
	assert.Equal(t, "KZT", p.Price.Currency)
}

func TestUniversalExtractHeuristics(t *testing.T) {
	t.Parallel()

	html := `<html>
	<head><meta name="description" content="Hand-ground blend."></head>
	<body>
	<h1>Coffee Grinder Pro</h1>
	<div class="product-price">12 500 ₸</div>
	<div class="old-price">15 000 ₸</div>
	<div class="brand">GrindCo</div>
	<div class="stock">In stock</div>
	<table class="specs">
	  <tr><td>Weight</td><td>1.2 kg</td></tr>
	  <tr><td>Color</td><td>Black</td></tr>
	</table>
	</body></html>`

	u := NewUniversal("USD")
	products, err := u.Extract([]byte(html), "https://shop.example/grinder")
	require.NoError(t, err)
	require.Len(t, products, 1)

	p := products[0]
	assert.Equal(t, "Coffee Grinder Pro", p.Title)
	assert.Equal(t, "Hand-ground blend.", p.Description)
	assert.Equal(t, "GrindCo", p.Brand)
	assert.Equal(t, "in_stock", p.StockStatus)
	require.NotNil(t, p.Price)
	assert.True(t, p.Price.Amount.Equal(decimal.NewFromInt(12500)))
	assert.Equal(t, "KZT", p.Price.Currency)
	require.NotNil(t, p.OldPrice)
	assert.True(t, p.OldPrice.Equal(decimal.NewFromInt(15000)))
	require.NotNil(t, p.DiscountPercent)
	assert.True(t, p.DiscountPercent.Equal(decimal.RequireFromString("16.67")), "got %s", p.DiscountPercent)
	assert.Equal(t, map[string]string{"Weight": "1.2 kg", "Color": "Black"}, p.Attributes)
}

func TestUniversalExtractTitlelessPageYieldsNothing(t *testing.T) {
	t.Parallel()

	html := `<html><body><div class="price">$10</div></body></html>`
	u := NewUniversal("USD")
	products, err := u.Extract([]byte(html), "https://shop.example/empty")
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestUniversalNextPageURL(t *testing.T) {
	t.Parallel()

	html := `<html><head><link rel="next" href="?page=2"></head><body></body></html>`
	u := NewUniversal("USD")
	got := u.NextPageURL([]byte(html), "https://shop.example/catalog")
	assert.Equal(t, "https://shop.example/catalog?page=2", got)
}
