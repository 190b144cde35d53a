package extract

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Pagination discovery policy, in priority order:
//  1. rel="next" on <link> or <a>
//  2. anchors whose text or class marks them as "next"
//  3. an anchor pointing at the current URL with its page query parameter
//     incremented by one
var nextAnchorTexts = map[string]struct{}{
	"next":      {},
	"next page": {},
	"›":         {},
	"»":         {},
	"далее":     {},
	"следующая": {},
	"вперед":    {},
}

var pageParams = []string{"page", "p", "pagen"}

// NextPageURL discovers the next page link in content, resolved against
// currentURL. Returns "" when pagination is exhausted.
func NextPageURL(doc *goquery.Document, currentURL string) string {
	base, err := url.Parse(currentURL)
	if err != nil {
		return ""
	}

	if href, ok := doc.Find(`link[rel="next"], a[rel="next"]`).First().Attr("href"); ok {
		return resolve(base, href, currentURL)
	}

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(a.Text()))
		class, _ := a.Attr("class")
		class = strings.ToLower(class)
		_, textMatch := nextAnchorTexts[text]
		classMatch := strings.Contains(class, "next") && !strings.Contains(class, "prev")
		if !textMatch && !classMatch {
			return true
		}
		href, _ := a.Attr("href")
		if resolved := resolve(base, href, currentURL); resolved != "" {
			found = resolved
			return false
		}
		return true
	})
	if found != "" {
		return found
	}

	return incrementedPageLink(doc, base, currentURL)
}

// incrementedPageLink looks for an anchor whose URL equals the current one
// with its page parameter advanced by one. This only fires when the current
// URL already carries a page parameter, so plain listing roots never loop.
func incrementedPageLink(doc *goquery.Document, base *url.URL, currentURL string) string {
	query := base.Query()
	for _, param := range pageParams {
		raw := query.Get(param)
		if raw == "" {
			continue
		}
		current, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		wantQuery := cloneValues(query)
		wantQuery.Set(param, strconv.Itoa(current+1))
		want := *base
		want.RawQuery = wantQuery.Encode()

		var found string
		doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			resolved := resolve(base, href, currentURL)
			if resolved == "" {
				return true
			}
			got, err := url.Parse(resolved)
			if err != nil {
				return true
			}
			if got.Host == want.Host && got.Path == want.Path && got.Query().Get(param) == wantQuery.Get(param) {
				found = resolved
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

func resolve(base *url.URL, href, currentURL string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref).String()
	if resolved == currentURL {
		return ""
	}
	return resolved
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
