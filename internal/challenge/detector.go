// Package challenge recognizes anti-bot and captcha interstitials. A
// detection is terminal for the task: these pages are never auto-retried.
package challenge

import (
	"bytes"
	"net/http"

	"github.com/parselab/shop-parser/internal/parser"
)

// Known fingerprints of challenge and verification pages. Matched
// case-insensitively against the response body.
var markers = [][]byte{
	[]byte("cf-browser-verification"),
	[]byte("cf_chl_opt"),
	[]byte("just a moment..."),
	[]byte("attention required! | cloudflare"),
	[]byte("g-recaptcha"),
	[]byte("h-captcha"),
	[]byte("hcaptcha.com/captcha"),
	[]byte("ddos-guard"),
	[]byte("verify you are human"),
	[]byte("checking your browser before accessing"),
}

// Detector scans fetch responses for challenge fingerprints.
type Detector struct{}

// NewDetector creates a Detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect returns a ChallengeError when the response looks like an anti-bot
// page, nil otherwise. Challenge interstitials usually arrive with 403 or
// 503, but some providers serve them with 200, so the body is always
// scanned.
func (d *Detector) Detect(resp parser.FetchResponse) *parser.ChallengeError {
	if len(resp.Body) == 0 {
		return nil
	}
	lower := bytes.ToLower(resp.Body)
	for _, marker := range markers {
		if bytes.Contains(lower, marker) {
			return &parser.ChallengeError{URL: resp.URL, Marker: string(marker)}
		}
	}
	if resp.StatusCode == http.StatusServiceUnavailable && bytes.Contains(lower, []byte("cloudflare")) {
		return &parser.ChallengeError{URL: resp.URL, Marker: "cloudflare 503"}
	}
	return nil
}
