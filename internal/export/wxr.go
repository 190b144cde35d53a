package export

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/parselab/shop-parser/internal/parser"
)

// WXRExporter renders a WordPress eXtended RSS document: one item per
// product, with custom fields for price and SKU, category taxonomy, and
// inline image references.
type WXRExporter struct{}

// Format implements Exporter.
func (e *WXRExporter) Format() string { return "wxr" }

// ContentType implements Exporter.
func (e *WXRExporter) ContentType() string { return "application/xml" }

type wxrRSS struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	XmlnsWP string     `xml:"xmlns:wp,attr"`
	Channel wxrChannel `xml:"channel"`
}

type wxrChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	WXRVersion  string    `xml:"wp:wxr_version"`
	Items       []wxrItem `xml:"item"`
}

type wxrItem struct {
	Title      string        `xml:"title"`
	Link       string        `xml:"link"`
	Content    wxrCDATA      `xml:"content:encoded"`
	PostType   string        `xml:"wp:post_type"`
	Status     string        `xml:"wp:status"`
	Categories []wxrCategory `xml:"category"`
	PostMeta   []wxrPostMeta `xml:"wp:postmeta"`
}

type wxrCategory struct {
	Domain   string `xml:"domain,attr"`
	Nicename string `xml:"nicename,attr,omitempty"`
	Value    string `xml:",chardata"`
}

type wxrPostMeta struct {
	Key   string   `xml:"wp:meta_key"`
	Value wxrCDATA `xml:"wp:meta_value"`
}

type wxrCDATA struct {
	Value string `xml:",cdata"`
}

// Export implements Exporter.
func (e *WXRExporter) Export(task parser.Task, products []parser.Product) ([]byte, error) {
	channel := wxrChannel{
		Title:       "Parsed products",
		Link:        task.URL,
		Description: "Export of task " + task.ID,
		WXRVersion:  "1.2",
	}
	for _, p := range products {
		channel.Items = append(channel.Items, buildWXRItem(p))
	}

	doc := wxrRSS{
		Version: "2.0",
		XmlnsWP: "http://wordpress.org/export/1.2/",
		Channel: channel,
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode wxr: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func buildWXRItem(p parser.Product) wxrItem {
	item := wxrItem{
		Title:    p.Title,
		Link:     p.SourceURL,
		Content:  wxrCDATA{Value: productContent(p)},
		PostType: "product",
		Status:   "publish",
	}
	if p.Category != "" {
		item.Categories = append(item.Categories, wxrCategory{
			Domain: "product_cat",
			Value:  p.Category,
		})
	}
	meta := []wxrPostMeta{
		{Key: "_price", Value: wxrCDATA{Value: priceAmount(p)}},
		{Key: "_regular_price", Value: wxrCDATA{Value: regularPrice(p)}},
		{Key: "_sku", Value: wxrCDATA{Value: p.SKU}},
		{Key: "_stock_status", Value: wxrCDATA{Value: p.StockStatus}},
	}
	for _, name := range sortedKeys(p.Attributes) {
		meta = append(meta, wxrPostMeta{
			Key:   "attribute_" + name,
			Value: wxrCDATA{Value: p.Attributes[name]},
		})
	}
	item.PostMeta = meta
	return item
}

// productContent embeds the description and inline image references.
func productContent(p parser.Product) string {
	var buf bytes.Buffer
	if p.Description != "" {
		buf.WriteString("<p>")
		buf.WriteString(p.Description)
		buf.WriteString("</p>")
	}
	for _, img := range p.Images {
		buf.WriteString(`<img src="`)
		buf.WriteString(img)
		buf.WriteString(`" />`)
	}
	return buf.String()
}

func regularPrice(p parser.Product) string {
	if p.OldPrice != nil {
		return p.OldPrice.StringFixed(2)
	}
	return priceAmount(p)
}
