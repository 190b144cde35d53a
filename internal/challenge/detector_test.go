package challenge

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parselab/shop-parser/internal/parser"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	d := NewDetector()

	tests := []struct {
		name       string
		body       string
		statusCode int
		want       bool
	}{
		{"cloudflare interstitial", `<title>Just a moment...</title>`, 503, true},
		{"cloudflare marker mixed case", `<div id="CF-Browser-Verification"></div>`, 200, true},
		{"recaptcha widget", `<div class="g-recaptcha" data-sitekey="x"></div>`, 200, true},
		{"hcaptcha widget", `<div class="h-captcha"></div>`, 200, true},
		{"ddos guard", `<script src="/ddos-guard/check.js"></script>`, 403, true},
		{"human verification", `<p>Verify you are human by completing the action below.</p>`, 200, true},
		{"cloudflare 503 body", `<html><body>cloudflare</body></html>`, 503, true},
		{"ordinary product page", `<html><h1>Enamel Mug</h1></html>`, 200, false},
		{"plain 503 without markers", `<html><body>maintenance</body></html>`, 503, false},
		{"empty body", ``, 403, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := d.Detect(parser.FetchResponse{
				URL:        "https://shop.example/page",
				StatusCode: tt.statusCode,
				Body:       []byte(tt.body),
			})
			if tt.want {
				require.NotNil(t, got)
				assert.Equal(t, "https://shop.example/page", got.URL)
				assert.NotEmpty(t, got.Marker)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestDetectReturnsChallengeError(t *testing.T) {
	t.Parallel()

	d := NewDetector()
	err := d.Detect(parser.FetchResponse{
		URL:        "https://shop.example",
		StatusCode: http.StatusOK,
		Body:       []byte(`checking your browser before accessing`),
	})
	require.NotNil(t, err)
	assert.False(t, parser.IsRetryable(err))
}
