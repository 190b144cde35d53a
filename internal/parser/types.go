// Package parser defines core types shared across subsystems.
package parser

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// TaskStatus represents the lifecycle state of a parsing task.
type TaskStatus string

// Task status values persisted in the task store.
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// ParserType selects the extraction strategy for a task. It is either
// ParserTypeUniversal or the domain of a configured site profile.
type ParserType string

// ParserTypeUniversal selects the domain-agnostic heuristic strategy.
const ParserTypeUniversal ParserType = "universal"

// Task represents one parsing job for a URL, tracked through its lifecycle.
type Task struct {
	ID                string            `json:"id"`
	URL               string            `json:"url"`
	ParserType        ParserType        `json:"parser_type"`
	Status            TaskStatus        `json:"status"`
	Progress          int               `json:"progress"`
	MaxPages          int               `json:"max_pages"`
	RateLimitOverride float64           `json:"rate_limit_override,omitempty"`
	ProductsFound     int               `json:"products_found"`
	ProductsSaved     int               `json:"products_saved"`
	RetryCount        int               `json:"retry_count"`
	MaxRetries        int               `json:"max_retries"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	Tags              map[string]string `json:"tags,omitempty"`
	CancelRequested   bool              `json:"cancel_requested"`
	DeadlineSeconds   int               `json:"deadline_seconds,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	StartedAt         *time.Time        `json:"started_at,omitempty"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
}

// Terminal reports whether the task has reached a final state.
func (t Task) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// CanTransition enforces the task state machine: pending -> running ->
// {completed, failed}, with failed -> pending allowed only while the retry
// budget is not exhausted.
func (t Task) CanTransition(to TaskStatus) bool {
	switch t.Status {
	case TaskStatusPending:
		return to == TaskStatusRunning
	case TaskStatusRunning:
		return to == TaskStatusCompleted || to == TaskStatusFailed
	case TaskStatusFailed:
		return to == TaskStatusPending && t.RetryCount < t.MaxRetries
	default:
		return false
	}
}

// ProgressForPages computes task progress after a page is processed. The
// value is clamped to 99 so only the terminal transition reports 100.
func ProgressForPages(pagesDone, maxPages int) int {
	if maxPages <= 0 {
		return 0
	}
	p := int(float64(pagesDone)/float64(maxPages)*100 + 0.5)
	if p < 0 {
		p = 0
	}
	if p > 99 {
		p = 99
	}
	return p
}

// Price is a parsed monetary amount with an ISO 4217 currency code.
type Price struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// SEOData captures page-level SEO signals recorded alongside a product.
type SEOData struct {
	MetaTitle       string `json:"meta_title,omitempty"`
	MetaDescription string `json:"meta_description,omitempty"`
	H1Count         int    `json:"h1_count"`
	H2Count         int    `json:"h2_count"`
	HasCanonical    bool   `json:"has_canonical"`
	HasSchemaOrg    bool   `json:"has_schema_org"`
}

// Product is one extracted item, owned by exactly one task. Records are
// immutable once created; re-parsing produces new records.
type Product struct {
	ID              string            `json:"id"`
	TaskID          string            `json:"task_id"`
	SKU             string            `json:"sku,omitempty"`
	ExternalID      string            `json:"external_id,omitempty"`
	Title           string            `json:"title"`
	Description     string            `json:"description,omitempty"`
	Price           *Price            `json:"price,omitempty"`
	OldPrice        *decimal.Decimal  `json:"old_price,omitempty"`
	DiscountPercent *decimal.Decimal  `json:"discount_percent,omitempty"`
	Category        string            `json:"category,omitempty"`
	Breadcrumbs     []string          `json:"breadcrumbs,omitempty"`
	Brand           string            `json:"brand,omitempty"`
	StockStatus     string            `json:"stock_status,omitempty"`
	Rating          float64           `json:"rating,omitempty"`
	ReviewsCount    int               `json:"reviews_count,omitempty"`
	Attributes      map[string]string `json:"attributes,omitempty"`
	Images          []string          `json:"images,omitempty"`
	SEO             SEOData           `json:"seo_data"`
	SourceURL       string            `json:"source_url"`
	SourceSite      string            `json:"source_site"`
	ParserType      ParserType        `json:"parser_type"`
	ParsedAt        time.Time         `json:"parsed_at"`
	Duplicate       bool              `json:"duplicate,omitempty"`
	SnapshotURI     string            `json:"snapshot_uri,omitempty"`
}

// DedupeKey identifies a product within one task run: SKU, then external
// ID, then source URL. Duplicates are flagged, never merged.
func (p Product) DedupeKey() string {
	if p.SKU != "" {
		return "sku:" + p.SKU
	}
	if p.ExternalID != "" {
		return "ext:" + p.ExternalID
	}
	return "url:" + p.SourceURL
}

// SiteProfile is declarative per-domain configuration supplied externally.
// The core never mutates it.
type SiteProfile struct {
	Domain           string            `json:"domain" mapstructure:"domain"`
	BaseURL          string            `json:"base_url" mapstructure:"base_url"`
	UseBrowser       bool              `json:"use_browser" mapstructure:"use_browser"`
	Selectors        map[string]string `json:"selector_map" mapstructure:"selector_map"`
	RateLimitSeconds float64           `json:"rate_limit" mapstructure:"rate_limit"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	TaskID     string
	URL        string
	UseBrowser bool
	Headers    http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL         string
	StatusCode  int
	Headers     http.Header
	Body        []byte
	Duration    time.Duration
	UsedBrowser bool
}

// CompletionEvent is emitted to the event sink when a task finishes
// successfully.
type CompletionEvent struct {
	TaskID        string  `json:"task_id"`
	URL           string  `json:"url"`
	ProductsCount int     `json:"products_count"`
	Duration      float64 `json:"duration"`
}

// Stats aggregates store-wide totals for the dashboard.
type Stats struct {
	TotalTasks    int64 `json:"total_tasks"`
	TotalProducts int64 `json:"total_products"`
	TotalSites    int64 `json:"total_sites"`
}

// QueueItem wraps a task ready to run.
type QueueItem struct {
	TaskID    string
	Submitted int64
}
