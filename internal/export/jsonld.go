package export

import (
	"encoding/json"
	"fmt"

	"github.com/parselab/shop-parser/internal/parser"
)

// JSONLDExporter renders schema.org Product snippets, one per product.
type JSONLDExporter struct{}

// Format implements Exporter.
func (e *JSONLDExporter) Format() string { return "jsonld" }

// ContentType implements Exporter.
func (e *JSONLDExporter) ContentType() string { return "application/ld+json" }

type ldProduct struct {
	Context     string   `json:"@context"`
	Type        string   `json:"@type"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	SKU         string   `json:"sku,omitempty"`
	Brand       *ldBrand `json:"brand,omitempty"`
	Image       []string `json:"image,omitempty"`
	Offers      *ldOffer `json:"offers,omitempty"`
	URL         string   `json:"url"`
}

type ldBrand struct {
	Type string `json:"@type"`
	Name string `json:"name"`
}

type ldOffer struct {
	Type          string `json:"@type"`
	Price         string `json:"price"`
	PriceCurrency string `json:"priceCurrency"`
	Availability  string `json:"availability,omitempty"`
}

// Export implements Exporter.
func (e *JSONLDExporter) Export(_ parser.Task, products []parser.Product) ([]byte, error) {
	snippets := make([]ldProduct, 0, len(products))
	for _, p := range products {
		snippet := ldProduct{
			Context:     "https://schema.org",
			Type:        "Product",
			Name:        p.Title,
			Description: p.Description,
			SKU:         p.SKU,
			Image:       p.Images,
			URL:         p.SourceURL,
		}
		if p.Brand != "" {
			snippet.Brand = &ldBrand{Type: "Brand", Name: p.Brand}
		}
		if p.Price != nil {
			snippet.Offers = &ldOffer{
				Type:          "Offer",
				Price:         p.Price.Amount.StringFixed(2),
				PriceCurrency: p.Price.Currency,
				Availability:  ldAvailability(p.StockStatus),
			}
		}
		snippets = append(snippets, snippet)
	}
	data, err := json.MarshalIndent(snippets, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal jsonld: %w", err)
	}
	return append(data, '\n'), nil
}

func ldAvailability(status string) string {
	switch status {
	case "in_stock":
		return "https://schema.org/InStock"
	case "out_of_stock":
		return "https://schema.org/OutOfStock"
	case "preorder":
		return "https://schema.org/PreOrder"
	default:
		return ""
	}
}
