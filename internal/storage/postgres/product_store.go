package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/parselab/shop-parser/internal/parser"
)

// ProductStore implements parser.ProductStore on Postgres. Inserts are
// append-only; products are removed only by cascading task deletion.
type ProductStore struct {
	pool dbPool
}

// NewProductStore connects a pool and returns a ProductStore.
func NewProductStore(ctx context.Context, dsn string) (*ProductStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ProductStore{pool: pool}, nil
}

// NewProductStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewProductStoreWithPool(pool dbPool) *ProductStore {
	return &ProductStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *ProductStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

const productColumns = `id, task_id, sku, external_id, title, description,
price_amount, price_currency, old_price, discount_percent, category,
breadcrumbs, brand, stock_status, rating, reviews_count, attributes,
images, seo_data, source_url, source_site, parser_type, parsed_at,
duplicate, snapshot_uri`

// InsertProduct persists one extracted product.
func (s *ProductStore) InsertProduct(ctx context.Context, p parser.Product) error {
	breadcrumbs, err := json.Marshal(orEmptySlice(p.Breadcrumbs))
	if err != nil {
		return fmt.Errorf("marshal breadcrumbs: %w", err)
	}
	attributes, err := json.Marshal(orEmptyTags(p.Attributes))
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	images, err := json.Marshal(orEmptySlice(p.Images))
	if err != nil {
		return fmt.Errorf("marshal images: %w", err)
	}
	seo, err := json.Marshal(p.SEO)
	if err != nil {
		return fmt.Errorf("marshal seo data: %w", err)
	}

	query := `INSERT INTO parsed_products (` + productColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`
	_, err = s.pool.Exec(ctx, query,
		p.ID, p.TaskID, p.SKU, p.ExternalID, p.Title, p.Description,
		priceAmountArg(p.Price), priceCurrencyArg(p.Price),
		decimalArg(p.OldPrice), decimalArg(p.DiscountPercent),
		p.Category, breadcrumbs, p.Brand, p.StockStatus, p.Rating,
		p.ReviewsCount, attributes, images, seo, p.SourceURL, p.SourceSite,
		string(p.ParserType), p.ParsedAt, p.Duplicate, p.SnapshotURI,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// ListProducts returns a task's products in persistence order, which
// matches page and extraction order.
func (s *ProductStore) ListProducts(ctx context.Context, taskID string) ([]parser.Product, error) {
	query := `SELECT ` + productColumns + ` FROM parsed_products
WHERE task_id = $1
ORDER BY parsed_at ASC, id ASC`
	rows, err := s.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []parser.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	return products, nil
}

// Stats aggregates store-wide totals.
func (s *ProductStore) Stats(ctx context.Context) (parser.Stats, error) {
	query := `SELECT
(SELECT COUNT(*) FROM parser_tasks),
(SELECT COUNT(*) FROM parsed_products),
(SELECT COUNT(DISTINCT source_site) FROM parsed_products)`
	var stats parser.Stats
	err := s.pool.QueryRow(ctx, query).Scan(
		&stats.TotalTasks, &stats.TotalProducts, &stats.TotalSites)
	if err != nil {
		return parser.Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return stats, nil
}

func scanProduct(row pgx.Row) (parser.Product, error) {
	var (
		p           parser.Product
		amount      *string
		currency    *string
		oldPrice    *string
		discount    *string
		breadcrumbs []byte
		attributes  []byte
		images      []byte
		seo         []byte
		parserType  string
	)
	err := row.Scan(
		&p.ID, &p.TaskID, &p.SKU, &p.ExternalID, &p.Title, &p.Description,
		&amount, &currency, &oldPrice, &discount, &p.Category, &breadcrumbs,
		&p.Brand, &p.StockStatus, &p.Rating, &p.ReviewsCount, &attributes,
		&images, &seo, &p.SourceURL, &p.SourceSite, &parserType, &p.ParsedAt,
		&p.Duplicate, &p.SnapshotURI,
	)
	if err != nil {
		return parser.Product{}, err
	}
	p.ParserType = parser.ParserType(parserType)
	p.ParsedAt = p.ParsedAt.UTC()

	if amount != nil {
		value, err := decimal.NewFromString(*amount)
		if err != nil {
			return parser.Product{}, fmt.Errorf("parse price amount: %w", err)
		}
		code := ""
		if currency != nil {
			code = *currency
		}
		p.Price = &parser.Price{Amount: value, Currency: code}
	}
	if p.OldPrice, err = decimalFromScan(oldPrice); err != nil {
		return parser.Product{}, err
	}
	if p.DiscountPercent, err = decimalFromScan(discount); err != nil {
		return parser.Product{}, err
	}

	for _, blob := range []struct {
		data []byte
		dst  any
	}{
		{breadcrumbs, &p.Breadcrumbs},
		{attributes, &p.Attributes},
		{images, &p.Images},
		{seo, &p.SEO},
	} {
		if len(blob.data) == 0 {
			continue
		}
		if err := json.Unmarshal(blob.data, blob.dst); err != nil {
			return parser.Product{}, fmt.Errorf("unmarshal product field: %w", err)
		}
	}
	if len(p.Breadcrumbs) == 0 {
		p.Breadcrumbs = nil
	}
	if len(p.Attributes) == 0 {
		p.Attributes = nil
	}
	if len(p.Images) == 0 {
		p.Images = nil
	}
	return p, nil
}

func decimalFromScan(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	value, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("parse decimal: %w", err)
	}
	return &value, nil
}

func priceAmountArg(p *parser.Price) *string {
	if p == nil {
		return nil
	}
	s := p.Amount.String()
	return &s
}

func priceCurrencyArg(p *parser.Price) *string {
	if p == nil {
		return nil
	}
	return &p.Currency
}

func decimalArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func orEmptySlice(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
