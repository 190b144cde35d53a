package extract

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/parselab/shop-parser/internal/parser"
)

// Selector map keys recognized by the site-specific strategy. The optional
// "product" selector marks repeated listing cards; without it the whole
// page is one record. Keys prefixed "attr:" populate the attributes map.
const (
	selProduct      = "product"
	selTitle        = "title"
	selDescription  = "description"
	selPrice        = "price"
	selOldPrice     = "old_price"
	selSKU          = "sku"
	selExternalID   = "external_id"
	selBrand        = "brand"
	selCategory     = "category"
	selBreadcrumbs  = "breadcrumbs"
	selStockStatus  = "stock_status"
	selRating       = "rating"
	selReviewsCount = "reviews_count"
	selImages       = "images"
	selNextPage     = "next_page"

	attrPrefix = "attr:"
)

// SiteSpecific extracts via a profile's selector map. Fields whose selector
// is missing or yields nothing fall back to the universal heuristics for
// that field only. Title remains mandatory after fallback.
type SiteSpecific struct {
	profile   parser.SiteProfile
	universal *Universal
}

// NewSiteSpecific builds the strategy for one site profile.
func NewSiteSpecific(profile parser.SiteProfile, universal *Universal) *SiteSpecific {
	return &SiteSpecific{profile: profile, universal: universal}
}

// Extract implements parser.Strategy.
func (s *SiteSpecific) Extract(content []byte, sourceURL string) ([]parser.Product, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, &parser.ParseError{URL: sourceURL, Reason: "malformed html: " + err.Error()}
	}

	seo := extractSEO(doc)
	crumbs := s.breadcrumbs(doc)

	roots := []*goquery.Selection{doc.Selection}
	listing := false
	if sel := s.profile.Selectors[selProduct]; sel != "" {
		if cards := doc.Find(sel); cards.Length() > 0 {
			listing = true
			roots = roots[:0]
			cards.Each(func(_ int, card *goquery.Selection) {
				roots = append(roots, card)
			})
		}
	}

	var products []parser.Product
	for _, root := range roots {
		// Page-level fallback only applies to whole-page extraction;
		// inside listing cards it would smear one card's data across all.
		p, ok := s.extractOne(doc, root, sourceURL, seo, crumbs, !listing)
		if ok {
			products = append(products, p)
		}
	}
	if len(products) == 0 {
		return nil, nil
	}
	return products, nil
}

// NextPageURL implements parser.Strategy, preferring the profile's
// next-page selector over the universal heuristic.
func (s *SiteSpecific) NextPageURL(content []byte, currentURL string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return ""
	}
	if sel := s.profile.Selectors[selNextPage]; sel != "" {
		if href, ok := doc.Find(sel).First().Attr("href"); ok {
			if base, err := url.Parse(currentURL); err == nil {
				if resolved := resolve(base, href, currentURL); resolved != "" {
					return resolved
				}
			}
		}
	}
	return NextPageURL(doc, currentURL)
}

func (s *SiteSpecific) extractOne(
	doc *goquery.Document,
	root *goquery.Selection,
	sourceURL string,
	seo parser.SEOData,
	crumbs []string,
	pageFallback bool,
) (parser.Product, bool) {
	title := s.text(root, selTitle)
	if title == "" && pageFallback {
		title = s.universal.HeuristicTitle(doc)
	}
	if title == "" {
		return parser.Product{}, false
	}

	p := parser.Product{
		Title:       title,
		Description: s.text(root, selDescription),
		SKU:         s.text(root, selSKU),
		ExternalID:  s.text(root, selExternalID),
		Brand:       s.text(root, selBrand),
		Category:    s.text(root, selCategory),
		Breadcrumbs: crumbs,
		SEO:         seo,
		SourceURL:   sourceURL,
		SourceSite:  domainOf(sourceURL),
	}

	if raw := s.text(root, selPrice); raw != "" {
		if price, err := ParsePrice(raw, s.universal.fallbackCurrency); err == nil {
			p.Price = price
		}
	}
	if raw := s.text(root, selOldPrice); raw != "" {
		if old, err := ParsePrice(raw, s.universal.fallbackCurrency); err == nil {
			p.OldPrice = &old.Amount
		}
	}
	if raw := s.text(root, selStockStatus); raw != "" {
		p.StockStatus = normalizeStockText(raw)
	}
	if raw := s.text(root, selRating); raw != "" {
		p.Rating, _ = strconv.ParseFloat(strings.TrimSpace(raw), 64)
	}
	if raw := s.text(root, selReviewsCount); raw != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(strings.Map(keepDigits, raw))); err == nil {
			p.ReviewsCount = n
		}
	}
	if sel := s.profile.Selectors[selImages]; sel != "" {
		var images []string
		root.Find(sel).Each(func(_ int, img *goquery.Selection) {
			if src := firstAttr(img, "src", "data-src", "href", "content"); src != "" {
				images = append(images, src)
			}
		})
		p.Images = resolveURLs(sourceURL, dedupeStrings(images))
	}

	for key, sel := range s.profile.Selectors {
		if !strings.HasPrefix(key, attrPrefix) || sel == "" {
			continue
		}
		if value := strings.TrimSpace(root.Find(sel).First().Text()); value != "" {
			if p.Attributes == nil {
				p.Attributes = make(map[string]string)
			}
			p.Attributes[strings.TrimPrefix(key, attrPrefix)] = value
		}
	}

	if pageFallback {
		s.fillFromPage(doc, &p)
	}
	s.universal.finalize(&p)
	return p, true
}

// fillFromPage applies the universal heuristics to fields the selector map
// could not resolve (partial fallback, not whole-record fallback).
func (s *SiteSpecific) fillFromPage(doc *goquery.Document, p *parser.Product) {
	if p.Price == nil || p.OldPrice == nil {
		price, oldPrice := s.universal.HeuristicPrices(doc)
		if p.Price == nil {
			p.Price = price
		}
		if p.OldPrice == nil {
			p.OldPrice = oldPrice
		}
	}
	if p.Description == "" {
		p.Description = s.universal.HeuristicDescription(doc)
	}
	if p.Brand == "" {
		p.Brand = s.universal.HeuristicBrand(doc)
	}
	if p.StockStatus == "" {
		p.StockStatus = s.universal.HeuristicStock(doc)
	}
	if len(p.Images) == 0 {
		p.Images = s.universal.HeuristicImages(doc, p.SourceURL)
	}
	if p.Attributes == nil {
		p.Attributes = s.universal.HeuristicAttributes(doc)
	}
}

func (s *SiteSpecific) breadcrumbs(doc *goquery.Document) []string {
	sel := s.profile.Selectors[selBreadcrumbs]
	if sel == "" {
		return breadcrumbsFrom(doc)
	}
	var crumbs []string
	doc.Find(sel).Each(func(_ int, node *goquery.Selection) {
		if text := strings.TrimSpace(node.Text()); text != "" {
			crumbs = append(crumbs, text)
		}
	})
	if len(crumbs) == 0 {
		return breadcrumbsFrom(doc)
	}
	return crumbs
}

// text resolves a scalar field selector, preferring the content attribute.
func (s *SiteSpecific) text(root *goquery.Selection, field string) string {
	sel := s.profile.Selectors[field]
	if sel == "" {
		return ""
	}
	node := root.Find(sel).First()
	if node.Length() == 0 {
		return ""
	}
	if content, ok := node.Attr("content"); ok && content != "" {
		return strings.TrimSpace(content)
	}
	return strings.TrimSpace(node.Text())
}

func normalizeStockText(raw string) string {
	if status := availabilityStatus(raw); status != "" && status != "unknown" {
		return status
	}
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "out of stock"), strings.Contains(lower, "нет в наличии"):
		return "out_of_stock"
	case strings.Contains(lower, "in stock"), strings.Contains(lower, "в наличии"):
		return "in_stock"
	default:
		return strings.TrimSpace(raw)
	}
}

func keepDigits(r rune) rune {
	if r >= '0' && r <= '9' {
		return r
	}
	return -1
}
