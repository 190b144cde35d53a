package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/parselab/shop-parser/internal/parser"
)

// Currency symbols seen on storefronts, mapped to ISO 4217 codes. Longer
// symbols are matched first.
var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"₸", "KZT"},
	{"₽", "RUB"},
	{"₴", "UAH"},
	{"₹", "INR"},
	{"zł", "PLN"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"$", "USD"},
}

var (
	currencyCodeRe = regexp.MustCompile(`(?i)\b(KZT|RUB|USD|EUR|GBP|UAH|KGS|BYN|JPY|INR|PLN|CNY)\b`)
	numberRe       = regexp.MustCompile(`[0-9][0-9\s\x{00a0}.,']*`)
	groupedRe      = regexp.MustCompile(`^\d{1,3}([.,']\d{3})+$`)
)

// ParsePrice normalizes raw price text into an amount and a currency code.
// Locale thousand separators and currency symbols are stripped; when no
// symbol or code is present the fallback currency applies.
func ParsePrice(text, fallbackCurrency string) (*parser.Price, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &parser.ParseError{Reason: "empty price text"}
	}

	currency := fallbackCurrency
	for _, entry := range currencySymbols {
		if strings.Contains(trimmed, entry.symbol) {
			currency = entry.code
			break
		}
	}
	if currency == fallbackCurrency {
		if m := currencyCodeRe.FindString(trimmed); m != "" {
			currency = strings.ToUpper(m)
		}
	}

	raw := numberRe.FindString(trimmed)
	if raw == "" {
		return nil, &parser.ParseError{Reason: "no numeric value in price text"}
	}
	normalized, err := normalizeNumber(raw)
	if err != nil {
		return nil, err
	}

	amount, derr := decimal.NewFromString(normalized)
	if derr != nil {
		return nil, &parser.ParseError{Reason: "unparseable price: " + raw}
	}
	if amount.IsNegative() {
		return nil, &parser.ParseError{Reason: "negative price"}
	}
	return &parser.Price{Amount: amount, Currency: currency}, nil
}

// normalizeNumber reduces a locale-formatted numeric string to a plain
// decimal: spaces are thousand separators; when both comma and period
// appear, the rightmost is the decimal separator; a lone separator
// followed by exactly three digits in a grouped pattern is a thousand
// separator.
func normalizeNumber(raw string) (string, error) {
	s := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	s = strings.TrimRight(s, ".,'")

	comma := strings.LastIndex(s, ",")
	period := strings.LastIndex(s, ".")

	switch {
	case comma >= 0 && period >= 0:
		if comma > period {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		if groupedRe.MatchString(s) {
			s = strings.ReplaceAll(s, ",", "")
		} else if strings.Count(s, ",") == 1 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case period >= 0:
		if groupedRe.MatchString(s) {
			s = strings.ReplaceAll(s, ".", "")
		} else if strings.Count(s, ".") > 1 {
			return "", &parser.ParseError{Reason: "ambiguous number format: " + raw}
		}
	}
	s = strings.ReplaceAll(s, "'", "")
	if s == "" {
		return "", &parser.ParseError{Reason: "empty number"}
	}
	return s, nil
}

// DiscountPercent derives the discount when the old price exceeds the
// current one: round((old - price) / old * 100, 2). Returns nil otherwise.
func DiscountPercent(price *parser.Price, oldPrice *decimal.Decimal) *decimal.Decimal {
	if price == nil || oldPrice == nil {
		return nil
	}
	if !oldPrice.GreaterThan(price.Amount) || oldPrice.IsZero() {
		return nil
	}
	d := oldPrice.Sub(price.Amount).Div(*oldPrice).Mul(decimal.NewFromInt(100)).Round(2)
	return &d
}
