package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/parselab/shop-parser/internal/parser"
)

// CSVExporter renders the core scalar fields, one row per product.
type CSVExporter struct{}

// Format implements Exporter.
func (e *CSVExporter) Format() string { return "csv" }

// ContentType implements Exporter.
func (e *CSVExporter) ContentType() string { return "text/csv" }

var csvHeader = []string{
	"id", "task_id", "sku", "external_id", "title", "brand", "category",
	"price_amount", "price_currency", "old_price", "discount_percent",
	"stock_status", "rating", "reviews_count", "source_url", "source_site",
	"parsed_at",
}

// Export implements Exporter.
func (e *CSVExporter) Export(_ parser.Task, products []parser.Product) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, p := range products {
		row := []string{
			p.ID, p.TaskID, p.SKU, p.ExternalID, p.Title, p.Brand, p.Category,
			priceAmount(p), priceCurrency(p), decimalOrEmpty(p.OldPrice),
			decimalOrEmpty(p.DiscountPercent), p.StockStatus,
			ratingString(p.Rating), strconv.Itoa(p.ReviewsCount),
			p.SourceURL, p.SourceSite,
			p.ParsedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func ratingString(r float64) string {
	if r == 0 {
		return ""
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}
