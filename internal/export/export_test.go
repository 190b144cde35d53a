package export

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parselab/shop-parser/internal/parser"
)

func sampleTask() parser.Task {
	return parser.Task{
		ID:         "task-1",
		URL:        "https://shop.example/catalog",
		ParserType: parser.ParserTypeUniversal,
	}
}

func sampleProducts() []parser.Product {
	oldPrice := decimal.RequireFromString("25.00")
	discount := decimal.RequireFromString("20.00")
	return []parser.Product{
		{
			ID:     "prod-1",
			TaskID: "task-1",
			Title:  "Enamel Mug",
			SKU:    "MUG-01",
			Brand:  "CampWare",
			Price: &parser.Price{
				Amount:   decimal.RequireFromString("20.00"),
				Currency: "USD",
			},
			OldPrice:        &oldPrice,
			DiscountPercent: &discount,
			Category:        "Kitchen",
			StockStatus:     "in_stock",
			Rating:          4.2,
			ReviewsCount:    7,
			Attributes:      map[string]string{"volume": "300 ml", "color": "green"},
			Images:          []string{"https://shop.example/img/mug.jpg"},
			Description:     "A mug with O'Brien's seal.",
			SourceURL:       "https://shop.example/mug",
			SourceSite:      "shop.example",
			ParsedAt:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			ID:         "prod-2",
			TaskID:     "task-1",
			Title:      "Plain Spoon",
			SourceURL:  "https://shop.example/spoon",
			SourceSite: "shop.example",
			ParsedAt:   time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC),
		},
	}
}

func TestRegistryUnknownFormat(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, _, err := r.Export("yaml", sampleTask(), sampleProducts())
	require.Error(t, err)
	var exportErr *parser.ExportError
	assert.ErrorAs(t, err, &exportErr)
}

func TestRegistryFormatsSorted(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	assert.Equal(t, []string{"csv", "json", "jsonld", "sql", "wxr"}, r.Formats())
}

func TestExportsAreDeterministic(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	task := sampleTask()
	products := sampleProducts()

	for _, format := range r.Formats() {
		format := format
		t.Run(format, func(t *testing.T) {
			t.Parallel()
			first, _, err := r.Export(format, task, products)
			require.NoError(t, err)
			second, _, err := r.Export(format, task, products)
			require.NoError(t, err)
			assert.Equal(t, first, second, "repeated export must be byte-identical")
		})
	}
}

func TestJSONExport(t *testing.T) {
	t.Parallel()

	e := &JSONExporter{}
	data, err := e.Export(sampleTask(), sampleProducts())
	require.NoError(t, err)

	var doc struct {
		TaskID   string           `json:"task_id"`
		Count    int              `json:"count"`
		Products []parser.Product `json:"products"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "task-1", doc.TaskID)
	assert.Equal(t, 2, doc.Count)
	require.Len(t, doc.Products, 2)
	assert.Equal(t, "Enamel Mug", doc.Products[0].Title)

	empty, err := e.Export(sampleTask(), nil)
	require.NoError(t, err)
	assert.Contains(t, string(empty), `"products": []`)
}

func TestCSVExport(t *testing.T) {
	t.Parallel()

	e := &CSVExporter{}
	data, err := e.Export(sampleTask(), sampleProducts())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "id,task_id,sku"))
	assert.Contains(t, lines[1], "MUG-01")
	assert.Contains(t, lines[1], "20.00,USD,25.00,20.00")
	assert.Contains(t, lines[1], "2026-03-01T12:00:00Z")
	// Product without a price leaves the money columns empty.
	assert.Contains(t, lines[2], "Plain Spoon,,,,,,,")
}

func TestSQLExport(t *testing.T) {
	t.Parallel()

	e := &SQLExporter{Table: "products", BatchSize: 1}
	data, err := e.Export(sampleTask(), sampleProducts())
	require.NoError(t, err)
	out := string(data)

	assert.Equal(t, 2, strings.Count(out, "INSERT INTO products"), "batch size 1 splits statements")
	assert.Contains(t, out, "'MUG-01'")
	assert.Contains(t, out, "20.00, 'USD', 25.00, 20.00")
	// Single quotes in values are doubled.
	assert.Contains(t, out, "O''Brien''s")
	// Missing fields render as NULL.
	assert.Contains(t, out, "NULL, NULL, 'Plain Spoon'")
}

func TestWXRExport(t *testing.T) {
	t.Parallel()

	e := &WXRExporter{}
	data, err := e.Export(sampleTask(), sampleProducts())
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `<rss version="2.0"`)
	assert.Contains(t, out, "<wp:wxr_version>1.2</wp:wxr_version>")
	assert.Contains(t, out, "<title>Enamel Mug</title>")
	assert.Contains(t, out, `<category domain="product_cat">Kitchen</category>`)
	assert.Contains(t, out, "<wp:meta_key>_sku</wp:meta_key>")
	assert.Contains(t, out, `<img src="https://shop.example/img/mug.jpg" />`)
	// Attribute meta keys appear in sorted order.
	color := strings.Index(out, "attribute_color")
	volume := strings.Index(out, "attribute_volume")
	require.Greater(t, color, 0)
	require.Greater(t, volume, 0)
	assert.Less(t, color, volume)
}

func TestJSONLDExport(t *testing.T) {
	t.Parallel()

	e := &JSONLDExporter{}
	data, err := e.Export(sampleTask(), sampleProducts())
	require.NoError(t, err)

	var snippets []map[string]any
	require.NoError(t, json.Unmarshal(data, &snippets))
	require.Len(t, snippets, 2)

	first := snippets[0]
	assert.Equal(t, "Product", first["@type"])
	assert.Equal(t, "Enamel Mug", first["name"])
	offers, ok := first["offers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "20.00", offers["price"])
	assert.Equal(t, "USD", offers["priceCurrency"])
	assert.Equal(t, "https://schema.org/InStock", offers["availability"])

	second := snippets[1]
	assert.Equal(t, "Plain Spoon", second["name"])
	_, hasOffers := second["offers"]
	assert.False(t, hasOffers)
}
