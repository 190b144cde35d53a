package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docFrom(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestNextPageURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		html       string
		currentURL string
		want       string
	}{
		{
			name:       "link rel next",
			html:       `<html><head><link rel="next" href="/catalog?page=2"></head><body></body></html>`,
			currentURL: "https://shop.example/catalog",
			want:       "https://shop.example/catalog?page=2",
		},
		{
			name:       "anchor rel next",
			html:       `<html><body><a rel="next" href="page-2.html">more</a></body></html>`,
			currentURL: "https://shop.example/catalog/page-1.html",
			want:       "https://shop.example/catalog/page-2.html",
		},
		{
			name:       "anchor text next",
			html:       `<html><body><a href="/c?p=5">Next</a></body></html>`,
			currentURL: "https://shop.example/c?p=4",
			want:       "https://shop.example/c?p=5",
		},
		{
			name:       "anchor cyrillic text",
			html:       `<html><body><a href="/catalog?page=3">Далее</a></body></html>`,
			currentURL: "https://shop.example/catalog?page=2",
			want:       "https://shop.example/catalog?page=3",
		},
		{
			name:       "anchor class next",
			html:       `<html><body><a class="pagination-next" href="?page=7">7</a></body></html>`,
			currentURL: "https://shop.example/catalog?page=6",
			want:       "https://shop.example/catalog?page=7",
		},
		{
			name:       "prev class ignored",
			html:       `<html><body><a class="next-prev" href="?page=1">back</a></body></html>`,
			currentURL: "https://shop.example/catalog?page=2",
			want:       "",
		},
		{
			name: "incremented page parameter",
			html: `<html><body>
				<a href="/catalog?page=1">1</a>
				<a href="/catalog?page=2">2</a>
				<a href="/catalog?page=3">3</a>
			</body></html>`,
			currentURL: "https://shop.example/catalog?page=2",
			want:       "https://shop.example/catalog?page=3",
		},
		{
			name:       "page parameter absent never loops",
			html:       `<html><body><a href="/catalog?page=2">2</a></body></html>`,
			currentURL: "https://shop.example/catalog",
			want:       "",
		},
		{
			name:       "self link exhausted",
			html:       `<html><body><a rel="next" href="/catalog?page=2">2</a></body></html>`,
			currentURL: "https://shop.example/catalog?page=2",
			want:       "",
		},
		{
			name:       "javascript href ignored",
			html:       `<html><body><a rel="next" href="javascript:void(0)">next</a></body></html>`,
			currentURL: "https://shop.example/catalog",
			want:       "",
		},
		{
			name:       "no pagination",
			html:       `<html><body><p>just a page</p></body></html>`,
			currentURL: "https://shop.example/item/42",
			want:       "",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NextPageURL(docFrom(t, tt.html), tt.currentURL)
			assert.Equal(t, tt.want, got)
		})
	}
}
