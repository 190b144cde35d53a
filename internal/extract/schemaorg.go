package extract

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/parselab/shop-parser/internal/parser"
)

// schemaProduct is the normalized subset of a schema.org Product entity
// pulled from JSON-LD or microdata.
type schemaProduct struct {
	Title        string
	Description  string
	SKU          string
	Brand        string
	Category     string
	PriceText    string
	Currency     string
	OldPriceText string
	Availability string
	Rating       float64
	ReviewsCount int
	Images       []string
}

// productsFromJSONLD walks every ld+json script and collects Product
// entities, including those nested in @graph and ItemList structures.
func productsFromJSONLD(doc *goquery.Document) []schemaProduct {
	var out []schemaProduct
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var payload any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return
		}
		walkJSONLD(payload, &out)
	})
	return out
}

func walkJSONLD(node any, out *[]schemaProduct) {
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			walkJSONLD(item, out)
		}
	case map[string]any:
		if isType(v, "Product") {
			if p, ok := productFromNode(v); ok {
				*out = append(*out, p)
			}
			return
		}
		for _, key := range []string{"@graph", "itemListElement", "item", "mainEntity"} {
			if child, ok := v[key]; ok {
				walkJSONLD(child, out)
			}
		}
	}
}

func isType(node map[string]any, want string) bool {
	switch t := node["@type"].(type) {
	case string:
		return strings.EqualFold(t, want)
	case []any:
		for _, entry := range t {
			if s, ok := entry.(string); ok && strings.EqualFold(s, want) {
				return true
			}
		}
	}
	return false
}

func productFromNode(node map[string]any) (schemaProduct, bool) {
	p := schemaProduct{
		Title:       jsonString(node["name"]),
		Description: jsonString(node["description"]),
		SKU:         jsonString(node["sku"]),
		Category:    jsonString(node["category"]),
		Images:      jsonStrings(node["image"]),
	}
	if p.Title == "" {
		return schemaProduct{}, false
	}
	if brand, ok := node["brand"].(map[string]any); ok {
		p.Brand = jsonString(brand["name"])
	} else {
		p.Brand = jsonString(node["brand"])
	}

	offer := firstOffer(node["offers"])
	if offer != nil {
		p.PriceText = jsonString(offer["price"])
		p.Currency = jsonString(offer["priceCurrency"])
		p.Availability = availabilityStatus(jsonString(offer["availability"]))
		// Some feeds expose the pre-discount price on the offer.
		if high := jsonString(offer["highPrice"]); high != "" {
			p.OldPriceText = high
		}
	}

	if rating, ok := node["aggregateRating"].(map[string]any); ok {
		p.Rating = jsonFloat(rating["ratingValue"])
		p.ReviewsCount = int(jsonFloat(rating["reviewCount"]))
		if p.ReviewsCount == 0 {
			p.ReviewsCount = int(jsonFloat(rating["ratingCount"]))
		}
	}
	return p, true
}

func firstOffer(node any) map[string]any {
	switch v := node.(type) {
	case map[string]any:
		if isType(v, "AggregateOffer") {
			if low := jsonString(v["lowPrice"]); low != "" {
				v["price"] = low
			}
		}
		return v
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

// productsFromMicrodata collects itemscope Product blocks.
func productsFromMicrodata(doc *goquery.Document) []schemaProduct {
	var out []schemaProduct
	doc.Find(`[itemscope][itemtype*="schema.org/Product"]`).Each(func(_ int, scope *goquery.Selection) {
		p := schemaProduct{
			Title:       itemprop(scope, "name"),
			Description: itemprop(scope, "description"),
			SKU:         itemprop(scope, "sku"),
			Brand:       itemprop(scope, "brand"),
			Category:    itemprop(scope, "category"),
			PriceText:   itemprop(scope, "price"),
			Currency:    itemprop(scope, "priceCurrency"),
		}
		if p.Title == "" {
			return
		}
		scope.Find(`[itemprop="image"]`).Each(func(_ int, img *goquery.Selection) {
			if src := firstAttr(img, "src", "content", "href"); src != "" {
				p.Images = append(p.Images, src)
			}
		})
		if avail, ok := scope.Find(`[itemprop="availability"]`).Attr("href"); ok {
			p.Availability = availabilityStatus(avail)
		}
		if rating := itemprop(scope, "ratingValue"); rating != "" {
			p.Rating, _ = strconv.ParseFloat(strings.TrimSpace(rating), 64)
		}
		if count := itemprop(scope, "reviewCount"); count != "" {
			p.ReviewsCount, _ = strconv.Atoi(strings.TrimSpace(count))
		}
		out = append(out, p)
	})
	return out
}

// itemprop resolves a microdata property, preferring the content attribute
// over element text.
func itemprop(scope *goquery.Selection, name string) string {
	sel := scope.Find(`[itemprop="` + name + `"]`).First()
	if sel.Length() == 0 {
		return ""
	}
	if content, ok := sel.Attr("content"); ok && content != "" {
		return strings.TrimSpace(content)
	}
	return strings.TrimSpace(sel.Text())
}

func firstAttr(sel *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := sel.Attr(name); ok && v != "" {
			return v
		}
	}
	return ""
}

// availabilityStatus maps schema.org availability URIs to the canonical
// stock status vocabulary.
func availabilityStatus(value string) string {
	lower := strings.ToLower(value)
	switch {
	case strings.Contains(lower, "instock"):
		return "in_stock"
	case strings.Contains(lower, "outofstock"):
		return "out_of_stock"
	case strings.Contains(lower, "preorder"):
		return "preorder"
	case strings.Contains(lower, "discontinued"):
		return "discontinued"
	case lower == "":
		return ""
	default:
		return "unknown"
	}
}

func jsonString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	}
	return ""
}

func jsonStrings(v any) []string {
	switch s := v.(type) {
	case string:
		if s == "" {
			return nil
		}
		return []string{s}
	case []any:
		var out []string
		for _, item := range s {
			if str, ok := item.(string); ok && str != "" {
				out = append(out, str)
			} else if m, ok := item.(map[string]any); ok {
				if u := jsonString(m["url"]); u != "" {
					out = append(out, u)
				}
			}
		}
		return out
	case map[string]any:
		if u := jsonString(s["url"]); u != "" {
			return []string{u}
		}
	}
	return nil
}

func jsonFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f
	}
	return 0
}

// extractSEO captures page-level SEO signals.
func extractSEO(doc *goquery.Document) parser.SEOData {
	seo := parser.SEOData{
		MetaTitle: strings.TrimSpace(doc.Find("title").First().Text()),
		H1Count:   doc.Find("h1").Length(),
		H2Count:   doc.Find("h2").Length(),
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		seo.MetaDescription = strings.TrimSpace(desc)
	}
	seo.HasCanonical = doc.Find(`link[rel="canonical"]`).Length() > 0
	seo.HasSchemaOrg = doc.Find(`script[type="application/ld+json"]`).Length() > 0 ||
		doc.Find(`[itemtype*="schema.org"]`).Length() > 0
	return seo
}
