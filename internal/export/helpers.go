package export

import (
	"github.com/shopspring/decimal"

	"github.com/parselab/shop-parser/internal/parser"
)

// Decimal amounts are exported with exactly two fractional digits so
// repeated exports stay byte-identical.
func priceAmount(p parser.Product) string {
	if p.Price == nil {
		return ""
	}
	return p.Price.Amount.StringFixed(2)
}

func priceCurrency(p parser.Product) string {
	if p.Price == nil {
		return ""
	}
	return p.Price.Currency
}

func decimalOrEmpty(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}
