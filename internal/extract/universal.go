package extract

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/parselab/shop-parser/internal/parser"
)

// Universal is the domain-agnostic strategy. It prefers schema.org Product
// data (JSON-LD, then microdata) and falls back to structural heuristics.
// Title is the only hard requirement: a page with no resolvable title
// yields no records.
type Universal struct {
	fallbackCurrency string
}

// NewUniversal builds the universal strategy.
func NewUniversal(fallbackCurrency string) *Universal {
	if fallbackCurrency == "" {
		fallbackCurrency = "USD"
	}
	return &Universal{fallbackCurrency: fallbackCurrency}
}

// Extract implements parser.Strategy. Listing pages with several schema.org
// entities yield several records.
func (u *Universal) Extract(content []byte, sourceURL string) ([]parser.Product, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, &parser.ParseError{URL: sourceURL, Reason: "malformed html: " + err.Error()}
	}

	seo := extractSEO(doc)
	crumbs := breadcrumbsFrom(doc)

	var products []parser.Product
	entities := productsFromJSONLD(doc)
	if len(entities) == 0 {
		entities = productsFromMicrodata(doc)
	}
	for _, entity := range entities {
		products = append(products, u.fromSchema(entity, sourceURL, seo, crumbs))
	}

	if len(products) == 0 {
		if p, ok := u.heuristicProduct(doc, sourceURL, seo, crumbs); ok {
			products = append(products, p)
		}
	}
	if len(products) == 0 {
		return nil, nil
	}
	return products, nil
}

// NextPageURL implements parser.Strategy.
func (u *Universal) NextPageURL(content []byte, currentURL string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return ""
	}
	return NextPageURL(doc, currentURL)
}

func (u *Universal) fromSchema(entity schemaProduct, sourceURL string, seo parser.SEOData, crumbs []string) parser.Product {
	p := parser.Product{
		Title:        entity.Title,
		Description:  entity.Description,
		SKU:          entity.SKU,
		Brand:        entity.Brand,
		Category:     entity.Category,
		StockStatus:  entity.Availability,
		Rating:       entity.Rating,
		ReviewsCount: entity.ReviewsCount,
		Images:       resolveURLs(sourceURL, entity.Images),
		Breadcrumbs:  crumbs,
		SEO:          seo,
		SourceURL:    sourceURL,
		SourceSite:   domainOf(sourceURL),
	}
	if price, err := ParsePrice(entity.PriceText, u.fallbackCurrency); err == nil {
		if entity.Currency != "" {
			price.Currency = strings.ToUpper(entity.Currency)
		}
		p.Price = price
	}
	if old, err := ParsePrice(entity.OldPriceText, u.fallbackCurrency); err == nil {
		p.OldPrice = &old.Amount
	}
	u.finalize(&p)
	return p
}

// heuristicProduct assembles a single record from structural signals when
// no schema.org data is present.
func (u *Universal) heuristicProduct(doc *goquery.Document, sourceURL string, seo parser.SEOData, crumbs []string) (parser.Product, bool) {
	title := u.HeuristicTitle(doc)
	if title == "" {
		return parser.Product{}, false
	}
	price, oldPrice := u.HeuristicPrices(doc)
	p := parser.Product{
		Title:       title,
		Description: u.HeuristicDescription(doc),
		Price:       price,
		OldPrice:    oldPrice,
		Brand:       u.HeuristicBrand(doc),
		StockStatus: u.HeuristicStock(doc),
		Attributes:  u.HeuristicAttributes(doc),
		Images:      u.HeuristicImages(doc, sourceURL),
		Breadcrumbs: crumbs,
		SEO:         seo,
		SourceURL:   sourceURL,
		SourceSite:  domainOf(sourceURL),
	}
	u.finalize(&p)
	return p, true
}

// finalize derives fields shared by both extraction paths.
func (u *Universal) finalize(p *parser.Product) {
	p.DiscountPercent = DiscountPercent(p.Price, p.OldPrice)
	if p.Category == "" && len(p.Breadcrumbs) > 0 {
		p.Category = p.Breadcrumbs[len(p.Breadcrumbs)-1]
	}
}

// HeuristicTitle resolves the page's dominant title: the first h1, then
// Open Graph title, then the document title.
func (u *Universal) HeuristicTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	if t, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

var oldPriceClassRe = regexp.MustCompile(`(?i)(old|was|strike|crossed|regular)`)

// HeuristicPrices finds current and pre-discount prices by class
// conventions: elements with price-ish classes for the current amount,
// struck-through or "old" elements for the previous one.
func (u *Universal) HeuristicPrices(doc *goquery.Document) (*parser.Price, *decimal.Decimal) {
	var price *parser.Price
	var oldPrice *decimal.Decimal

	if amount, ok := doc.Find(`meta[property="product:price:amount"]`).Attr("content"); ok {
		if parsed, err := ParsePrice(amount, u.fallbackCurrency); err == nil {
			if code, ok := doc.Find(`meta[property="product:price:currency"]`).Attr("content"); ok && code != "" {
				parsed.Currency = strings.ToUpper(strings.TrimSpace(code))
			}
			price = parsed
		}
	}

	doc.Find(`[class*="price"], [id*="price"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		text := strings.TrimSpace(s.Text())
		parsed, err := ParsePrice(text, u.fallbackCurrency)
		if err != nil {
			return true
		}
		if oldPriceClassRe.MatchString(class) {
			if oldPrice == nil {
				oldPrice = &parsed.Amount
			}
			return true
		}
		if price == nil {
			price = parsed
		}
		return price == nil || oldPrice == nil
	})

	if oldPrice == nil {
		doc.Find("del, s").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if parsed, err := ParsePrice(strings.TrimSpace(s.Text()), u.fallbackCurrency); err == nil {
				oldPrice = &parsed.Amount
				return false
			}
			return true
		})
	}
	return price, oldPrice
}

// HeuristicDescription prefers the meta description, then description-ish
// blocks.
func (u *Universal) HeuristicDescription(doc *goquery.Document) string {
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok && strings.TrimSpace(desc) != "" {
		return strings.TrimSpace(desc)
	}
	return strings.TrimSpace(doc.Find(`[class*="description"]`).First().Text())
}

// HeuristicBrand checks product meta tags, then brand-ish elements.
func (u *Universal) HeuristicBrand(doc *goquery.Document) string {
	if brand, ok := doc.Find(`meta[property="product:brand"], meta[property="og:brand"]`).Attr("content"); ok {
		return strings.TrimSpace(brand)
	}
	return strings.TrimSpace(doc.Find(`[class*="brand"]`).First().Text())
}

// HeuristicStock scans availability-ish elements for stock phrases.
func (u *Universal) HeuristicStock(doc *goquery.Document) string {
	text := strings.ToLower(doc.Find(`[class*="stock"], [class*="avail"]`).First().Text())
	switch {
	case strings.Contains(text, "out of stock"), strings.Contains(text, "нет в наличии"):
		return "out_of_stock"
	case strings.Contains(text, "in stock"), strings.Contains(text, "в наличии"):
		return "in_stock"
	default:
		return ""
	}
}

// HeuristicAttributes reads name/value rows out of specification tables.
func (u *Universal) HeuristicAttributes(doc *goquery.Document) map[string]string {
	attrs := make(map[string]string)
	doc.Find(`[class*="spec"] tr, [class*="characteristic"] tr, [class*="attribute"] tr`).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		name := strings.TrimSpace(cells.Eq(0).Text())
		value := strings.TrimSpace(cells.Eq(1).Text())
		if name != "" && value != "" {
			attrs[name] = value
		}
	})
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

var galleryClassRe = regexp.MustCompile(`(?i)(gallery|slider|carousel|product-image|photos)`)

// HeuristicImages picks the page's image gallery: Open Graph images first,
// then the densest image container.
func (u *Universal) HeuristicImages(doc *goquery.Document, sourceURL string) []string {
	var images []string
	doc.Find(`meta[property="og:image"]`).Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("content"); ok && src != "" {
			images = append(images, src)
		}
	})

	var bestCluster *goquery.Selection
	bestCount := 1
	doc.Find("div, ul, section, figure").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		if !galleryClassRe.MatchString(class) {
			return
		}
		if count := s.Find("img").Length(); count > bestCount {
			bestCount = count
			bestCluster = s
		}
	})
	if bestCluster != nil {
		bestCluster.Find("img").Each(func(_ int, img *goquery.Selection) {
			if src := firstAttr(img, "src", "data-src"); src != "" {
				images = append(images, src)
			}
		})
	}
	return resolveURLs(sourceURL, dedupeStrings(images))
}

// breadcrumbsFrom reads the ordered breadcrumb trail, skipping separator
// glyphs.
func breadcrumbsFrom(doc *goquery.Document) []string {
	var crumbs []string
	sel := doc.Find(`[class*="breadcrumb"] a, nav[aria-label="breadcrumb"] a`)
	sel.Each(func(_ int, a *goquery.Selection) {
		text := strings.TrimSpace(a.Text())
		if text == "" || text == "/" || text == "›" || text == "»" {
			return
		}
		crumbs = append(crumbs, text)
	})
	return crumbs
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}

func resolveURLs(baseURL string, refs []string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return refs
	}
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		parsed, err := url.Parse(strings.TrimSpace(ref))
		if err != nil {
			continue
		}
		out = append(out, base.ResolveReference(parsed).String())
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
