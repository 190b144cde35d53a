package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/parselab/shop-parser/internal/parser"
)

// SQLExporter renders batched INSERT statements against a generic products
// table.
type SQLExporter struct {
	Table     string
	BatchSize int
}

// Format implements Exporter.
func (e *SQLExporter) Format() string { return "sql" }

// ContentType implements Exporter.
func (e *SQLExporter) ContentType() string { return "application/sql" }

var sqlColumns = []string{
	"external_id", "sku", "title", "description", "brand", "category",
	"price", "currency", "old_price", "discount_percent", "stock_status",
	"rating", "reviews_count", "source_url", "source_site", "parsed_at",
}

// Export implements Exporter.
func (e *SQLExporter) Export(_ parser.Task, products []parser.Product) ([]byte, error) {
	table := e.Table
	if table == "" {
		table = "products"
	}
	batch := e.BatchSize
	if batch <= 0 {
		batch = 100
	}

	var buf bytes.Buffer
	for start := 0; start < len(products); start += batch {
		end := start + batch
		if end > len(products) {
			end = len(products)
		}
		fmt.Fprintf(&buf, "INSERT INTO %s (%s) VALUES\n", table, strings.Join(sqlColumns, ", "))
		for i, p := range products[start:end] {
			buf.WriteString("  (")
			buf.WriteString(strings.Join(sqlRow(p), ", "))
			buf.WriteString(")")
			if i < end-start-1 {
				buf.WriteString(",")
			} else {
				buf.WriteString(";")
			}
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}

func sqlRow(p parser.Product) []string {
	return []string{
		sqlString(p.ExternalID),
		sqlString(p.SKU),
		sqlString(p.Title),
		sqlString(p.Description),
		sqlString(p.Brand),
		sqlString(p.Category),
		sqlNumber(priceAmount(p)),
		sqlString(priceCurrency(p)),
		sqlNumber(decimalOrEmpty(p.OldPrice)),
		sqlNumber(decimalOrEmpty(p.DiscountPercent)),
		sqlString(p.StockStatus),
		sqlNumber(ratingString(p.Rating)),
		strconv.Itoa(p.ReviewsCount),
		sqlString(p.SourceURL),
		sqlString(p.SourceSite),
		sqlString(p.ParsedAt.UTC().Format(time.RFC3339)),
	}
}

func sqlString(s string) string {
	if s == "" {
		return "NULL"
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func sqlNumber(s string) string {
	if s == "" {
		return "NULL"
	}
	return s
}
