package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/parselab/shop-parser/internal/parser"
)

func TestInsertProductInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewProductStoreWithPool(mock)

	now := time.Unix(1700000000, 0).UTC()
	amount := "1200.5"
	currency := "KZT"
	product := parser.Product{
		ID:         "prod-1",
		TaskID:     "task-1",
		SKU:        "SKU-1",
		Title:      "Widget",
		Price:      &parser.Price{Amount: decimal.RequireFromString(amount), Currency: currency},
		SourceURL:  "https://shop.example/p/1",
		SourceSite: "shop.example",
		ParserType: parser.ParserTypeUniversal,
		ParsedAt:   now,
	}

	mock.ExpectExec("INSERT INTO parsed_products").
		WithArgs(
			product.ID, product.TaskID, product.SKU, product.ExternalID,
			product.Title, product.Description,
			&amount, &currency,
			(*string)(nil), (*string)(nil),
			product.Category, []byte(`[]`), product.Brand,
			product.StockStatus, product.Rating, product.ReviewsCount,
			[]byte(`{}`), []byte(`[]`),
			[]byte(`{"h1_count":0,"h2_count":0,"has_canonical":false,"has_schema_org":false}`),
			product.SourceURL, product.SourceSite, "universal",
			product.ParsedAt, product.Duplicate, product.SnapshotURI,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.InsertProduct(context.Background(), product)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListProductsScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewProductStoreWithPool(mock)

	now := time.Unix(1700000000, 0).UTC()
	amount := "999.99"
	currency := "USD"
	oldPrice := "1299.99"
	discount := "23.08"

	rows := pgxmock.NewRows([]string{
		"id", "task_id", "sku", "external_id", "title", "description",
		"price_amount", "price_currency", "old_price", "discount_percent",
		"category", "breadcrumbs", "brand", "stock_status", "rating",
		"reviews_count", "attributes", "images", "seo_data", "source_url",
		"source_site", "parser_type", "parsed_at", "duplicate",
		"snapshot_uri",
	}).AddRow(
		"prod-1", "task-1", "SKU-1", "", "Widget", "A fine widget",
		&amount, &currency, &oldPrice, &discount,
		"Widgets", []byte(`["Home","Widgets"]`), "Acme", "in_stock", 4.5,
		12, []byte(`{"color":"red"}`), []byte(`["https://cdn.example/1.jpg"]`),
		[]byte(`{"meta_title":"Widget","h1_count":1,"h2_count":2,"has_canonical":true,"has_schema_org":true}`),
		"https://shop.example/p/1", "shop.example", "universal", now, false, "",
	)

	mock.ExpectQuery("SELECT (.+) FROM parsed_products").
		WithArgs("task-1").
		WillReturnRows(rows)

	products, err := store.ListProducts(context.Background(), "task-1")
	require.NoError(t, err)
	require.Len(t, products, 1)

	p := products[0]
	require.Equal(t, "Widget", p.Title)
	require.NotNil(t, p.Price)
	require.Equal(t, "999.99", p.Price.Amount.StringFixed(2))
	require.Equal(t, "USD", p.Price.Currency)
	require.NotNil(t, p.OldPrice)
	require.Equal(t, "1299.99", p.OldPrice.StringFixed(2))
	require.NotNil(t, p.DiscountPercent)
	require.Equal(t, "23.08", p.DiscountPercent.StringFixed(2))
	require.Equal(t, []string{"Home", "Widgets"}, p.Breadcrumbs)
	require.Equal(t, map[string]string{"color": "red"}, p.Attributes)
	require.Equal(t, []string{"https://cdn.example/1.jpg"}, p.Images)
	require.True(t, p.SEO.HasSchemaOrg)
	require.Equal(t, 1, p.SEO.H1Count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsAggregatesTotals(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewProductStoreWithPool(mock)

	rows := pgxmock.NewRows([]string{"tasks", "products", "sites"}).
		AddRow(int64(42), int64(1234), int64(7))
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(42), stats.TotalTasks)
	require.Equal(t, int64(1234), stats.TotalProducts)
	require.Equal(t, int64(7), stats.TotalSites)
	require.NoError(t, mock.ExpectationsWereMet())
}
