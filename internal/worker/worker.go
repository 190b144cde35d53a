// Package worker implements the parsing pipeline execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/parselab/shop-parser/internal/extract"
	"github.com/parselab/shop-parser/internal/parser"
	"github.com/parselab/shop-parser/internal/ratelimit"
	"github.com/parselab/shop-parser/internal/telemetry"
)

// Config controls Worker behavior.
type Config struct {
	SnapshotPrefix  string
	SnapshotEnabled bool
	CompletionEvent string
}

// Worker consumes queue items and executes the parse pipeline: rate-limited
// fetch, extraction, streaming persistence, progress tracking.
type Worker struct {
	queue          parser.Queue
	taskStore      parser.TaskStore
	productStore   parser.ProductStore
	snapshots      parser.SnapshotStore
	sink           parser.EventSink
	limiter        *ratelimit.Limiter
	registry       *extract.Registry
	directFetcher  parser.Fetcher
	browserFetcher parser.Fetcher
	retry          *parser.ExponentialRetryPolicy
	clock          parser.Clock
	ids            parser.IDGenerator
	cfg            Config
	logger         *zap.Logger
}

// New constructs a Worker.
func New(
	queue parser.Queue,
	taskStore parser.TaskStore,
	productStore parser.ProductStore,
	snapshots parser.SnapshotStore,
	sink parser.EventSink,
	limiter *ratelimit.Limiter,
	registry *extract.Registry,
	direct parser.Fetcher,
	browser parser.Fetcher,
	retry *parser.ExponentialRetryPolicy,
	clock parser.Clock,
	ids parser.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if retry == nil {
		retry = parser.NewExponentialRetryPolicy()
	}
	if cfg.CompletionEvent == "" {
		cfg.CompletionEvent = "parser.completed"
	}
	if cfg.SnapshotPrefix == "" {
		cfg.SnapshotPrefix = "snapshots"
	}
	return &Worker{
		queue:          queue,
		taskStore:      taskStore,
		productStore:   productStore,
		snapshots:      snapshots,
		sink:           sink,
		limiter:        limiter,
		registry:       registry,
		directFetcher:  direct,
		browserFetcher: browser,
		retry:          retry,
		clock:          clock,
		ids:            ids,
		cfg:            cfg,
		logger:         logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued task", zap.String("task_id", item.TaskID))
		w.processTask(ctx, item)
	}
}

func (w *Worker) processTask(ctx context.Context, item parser.QueueItem) {
	task, err := w.taskStore.GetTask(ctx, item.TaskID)
	if err != nil {
		w.logger.Error("load task failed", zap.String("task_id", item.TaskID), zap.Error(err))
		return
	}
	if task.Terminal() {
		w.logger.Warn("task already terminal", zap.String("task_id", task.ID), zap.String("status", string(task.Status)))
		return
	}
	if task.CancelRequested {
		w.failTask(ctx, task, "task canceled")
		return
	}

	strategy, profile, err := w.registry.Resolve(task.ParserType)
	if err != nil {
		w.failTask(ctx, task, err.Error())
		return
	}

	if !task.CanTransition(parser.TaskStatusRunning) {
		w.logger.Warn("task not runnable", zap.String("task_id", task.ID), zap.String("status", string(task.Status)))
		return
	}
	started := w.clock.Now()
	task.Status = parser.TaskStatusRunning
	task.StartedAt = &started
	if err := w.taskStore.UpdateTask(ctx, task); err != nil {
		w.logger.Error("start task update failed", zap.String("task_id", task.ID), zap.Error(err))
		return
	}

	w.runPages(ctx, task, strategy, profile)
}

// runPages walks the pagination chain, fetching and extracting page by page.
func (w *Worker) runPages(ctx context.Context, task parser.Task, strategy parser.Strategy, profile *parser.SiteProfile) {
	maxPages := task.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	interval := fetchInterval(task, profile)
	useBrowser := profile != nil && profile.UseBrowser
	seen := make(map[string]bool)

	currentURL := task.URL
	for page := 1; page <= maxPages; page++ {
		if reason, stop := w.checkInterrupt(ctx, &task); stop {
			w.failTask(ctx, task, reason)
			return
		}

		resp, err := w.fetchWithRetry(ctx, task, currentURL, useBrowser, interval)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.handlePageError(ctx, task, page, err)
			return
		}

		snapshotURI := w.archiveSnapshot(ctx, task.ID, page, resp.Body)

		products, err := strategy.Extract(resp.Body, resp.URL)
		if err != nil {
			w.handlePageError(ctx, task, page, err)
			return
		}

		site := domainOf(resp.URL)
		telemetry.CountProducts(site, len(products))
		for _, p := range products {
			w.persistProduct(ctx, &task, p, site, snapshotURI, seen)
		}

		task.Progress = parser.ProgressForPages(page, maxPages)
		if err := w.taskStore.UpdateTask(ctx, task); err != nil {
			w.logger.Error("progress update failed", zap.String("task_id", task.ID), zap.Error(err))
		}

		if page == maxPages {
			break
		}
		next := strategy.NextPageURL(resp.Body, resp.URL)
		if next == "" {
			break
		}
		currentURL = next
	}

	w.completeTask(ctx, task)
}

// checkInterrupt reloads the task to observe cancellation requests and the
// deadline between pages.
func (w *Worker) checkInterrupt(ctx context.Context, task *parser.Task) (string, bool) {
	fresh, err := w.taskStore.GetTask(ctx, task.ID)
	if err != nil {
		w.logger.Error("reload task failed", zap.String("task_id", task.ID), zap.Error(err))
		return "", false
	}
	task.CancelRequested = fresh.CancelRequested
	if task.CancelRequested {
		return "task canceled", true
	}
	if task.DeadlineSeconds > 0 && task.StartedAt != nil {
		deadline := task.StartedAt.Add(time.Duration(task.DeadlineSeconds) * time.Second)
		if w.clock.Now().After(deadline) {
			return "task deadline exceeded", true
		}
	}
	return "", false
}

func (w *Worker) fetchWithRetry(ctx context.Context, task parser.Task, rawURL string, useBrowser bool, interval time.Duration) (parser.FetchResponse, error) {
	fetcher := w.directFetcher
	if useBrowser && w.browserFetcher != nil {
		fetcher = w.browserFetcher
	}
	site := domainOf(rawURL)

	var lastErr error
	for attempt := 0; ; attempt++ {
		// Each attempt counts as a fetch to the domain and re-acquires
		// the spacing slot.
		if err := w.limiter.Wait(ctx, rawURL, interval); err != nil {
			return parser.FetchResponse{}, err
		}
		resp, err := fetcher.Fetch(ctx, parser.FetchRequest{
			TaskID:     task.ID,
			URL:        rawURL,
			UseBrowser: useBrowser,
		})
		if err == nil {
			telemetry.CountPage(site, resp.StatusCode)
			return resp, nil
		}
		lastErr = err
		var fetchErr *parser.FetchError
		if errors.As(err, &fetchErr) && fetchErr.StatusCode > 0 {
			telemetry.CountPage(site, fetchErr.StatusCode)
		}
		if !w.retry.ShouldRetry(err, attempt+1) {
			return parser.FetchResponse{}, lastErr
		}
		backoff := w.retry.Backoff(attempt)
		w.logger.Warn("fetch attempt failed",
			zap.String("task_id", task.ID),
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return parser.FetchResponse{}, lastErr
		case <-time.After(backoff):
		}
	}
}

// handlePageError decides the task outcome after a page failed all its
// attempts. Challenges fail the task outright. A first-page failure consumes
// the task retry budget and requeues while budget remains. A later page
// failure stops pagination and completes with partial results.
func (w *Worker) handlePageError(ctx context.Context, task parser.Task, page int, err error) {
	var challenge *parser.ChallengeError
	if errors.As(err, &challenge) {
		w.failTask(ctx, task, err.Error())
		return
	}

	if page > 1 {
		w.logger.Warn("page failed, completing with partial results",
			zap.String("task_id", task.ID),
			zap.Int("page", page),
			zap.Error(err),
		)
		w.completeTask(ctx, task)
		return
	}

	if parser.IsRetryable(err) {
		w.requeueTask(ctx, task, err)
		return
	}
	w.failTask(ctx, task, err.Error())
}

// requeueTask handles a retryable first-page failure: the task first takes
// the running -> failed edge, then failed -> pending while the retry budget
// allows it. With the budget spent the task stays failed.
func (w *Worker) requeueTask(ctx context.Context, task parser.Task, cause error) {
	if !task.CanTransition(parser.TaskStatusFailed) {
		w.logger.Error("invalid transition to failed",
			zap.String("task_id", task.ID),
			zap.String("status", string(task.Status)),
		)
		return
	}
	now := w.clock.Now()
	task.Status = parser.TaskStatusFailed
	task.ErrorMessage = cause.Error()
	task.CompletedAt = &now
	if err := w.taskStore.UpdateTask(ctx, task); err != nil {
		w.logger.Error("requeue task update failed", zap.String("task_id", task.ID), zap.Error(err))
		return
	}

	if !task.CanTransition(parser.TaskStatusPending) {
		telemetry.CountTask(string(parser.TaskStatusFailed))
		w.logger.Warn("task failed",
			zap.String("task_id", task.ID),
			zap.String("reason", cause.Error()),
		)
		return
	}
	task.RetryCount++
	task.Status = parser.TaskStatusPending
	task.StartedAt = nil
	task.CompletedAt = nil
	if err := w.taskStore.UpdateTask(ctx, task); err != nil {
		w.logger.Error("requeue task update failed", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	if err := w.queue.Enqueue(ctx, parser.QueueItem{TaskID: task.ID, Submitted: w.clock.Now().Unix()}); err != nil {
		w.logger.Error("requeue enqueue failed", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	w.logger.Info("task requeued",
		zap.String("task_id", task.ID),
		zap.Int("retry_count", task.RetryCount),
		zap.Int("max_retries", task.MaxRetries),
	)
}

func (w *Worker) persistProduct(ctx context.Context, task *parser.Task, p parser.Product, site, snapshotURI string, seen map[string]bool) {
	id, err := w.ids.NewID()
	if err != nil {
		w.logger.Error("generate product id failed", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	p.ID = id
	p.TaskID = task.ID
	p.ParserType = task.ParserType
	p.ParsedAt = w.clock.Now()
	p.SnapshotURI = snapshotURI
	if p.SourceSite == "" {
		p.SourceSite = site
	}

	key := p.DedupeKey()
	p.Duplicate = seen[key]
	seen[key] = true

	task.ProductsFound++
	if err := w.insertWithRetry(ctx, p); err != nil {
		w.logger.Error("insert product failed",
			zap.String("task_id", task.ID),
			zap.String("source_url", p.SourceURL),
			zap.Error(err),
		)
		return
	}
	task.ProductsSaved++
}

// insertWithRetry retries store writes with backoff. A write failure never
// aborts the in-progress task; the product is dropped only after the final
// attempt.
func (w *Worker) insertWithRetry(ctx context.Context, p parser.Product) error {
	var lastErr error
	for attempt := 0; attempt < w.retry.MaxAttempts(); attempt++ {
		lastErr = w.productStore.InsertProduct(ctx, p)
		if lastErr == nil {
			return nil
		}
		if attempt+1 >= w.retry.MaxAttempts() || ctx.Err() != nil {
			break
		}
		backoff := w.retry.Backoff(attempt)
		w.logger.Warn("insert product attempt failed",
			zap.String("task_id", p.TaskID),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(backoff):
		}
	}
	return lastErr
}

// archiveSnapshot stores the raw page body. Failures are logged and the
// pipeline continues without a snapshot URI.
func (w *Worker) archiveSnapshot(ctx context.Context, taskID string, page int, body []byte) string {
	if w.snapshots == nil || !w.cfg.SnapshotEnabled {
		return ""
	}
	path := fmt.Sprintf("%s/%s/%d.html", w.cfg.SnapshotPrefix, taskID, page)
	uri, err := w.snapshots.PutObject(ctx, path, "text/html; charset=utf-8", body)
	if err != nil {
		w.logger.Warn("snapshot archive failed", zap.String("task_id", taskID), zap.Int("page", page), zap.Error(err))
		return ""
	}
	return uri
}

func (w *Worker) completeTask(ctx context.Context, task parser.Task) {
	now := w.clock.Now()
	task.Status = parser.TaskStatusCompleted
	task.Progress = 100
	task.CompletedAt = &now
	if err := w.taskStore.UpdateTask(ctx, task); err != nil {
		w.logger.Error("complete task update failed", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	telemetry.CountTask(string(parser.TaskStatusCompleted))
	w.logger.Info("task completed",
		zap.String("task_id", task.ID),
		zap.Int("products_found", task.ProductsFound),
		zap.Int("products_saved", task.ProductsSaved),
	)
	w.emitCompletion(ctx, task)
}

func (w *Worker) failTask(ctx context.Context, task parser.Task, reason string) {
	now := w.clock.Now()
	task.Status = parser.TaskStatusFailed
	task.ErrorMessage = reason
	task.CompletedAt = &now
	if err := w.taskStore.UpdateTask(ctx, task); err != nil {
		w.logger.Error("fail task update failed", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	telemetry.CountTask(string(parser.TaskStatusFailed))
	w.logger.Warn("task failed",
		zap.String("task_id", task.ID),
		zap.String("reason", reason),
	)
}

// emitCompletion is fire-and-forget: sink failures never affect the task.
func (w *Worker) emitCompletion(ctx context.Context, task parser.Task) {
	if w.sink == nil {
		return
	}
	event := parser.CompletionEvent{
		TaskID:        task.ID,
		URL:           task.URL,
		ProductsCount: task.ProductsSaved,
	}
	if task.StartedAt != nil && task.CompletedAt != nil {
		event.Duration = task.CompletedAt.Sub(*task.StartedAt).Seconds()
	}
	if err := w.sink.Emit(ctx, w.cfg.CompletionEvent, event); err != nil {
		w.logger.Warn("completion event emit failed", zap.String("task_id", task.ID), zap.Error(err))
	}
}

// fetchInterval resolves per-domain spacing: task override, then site
// profile, then the limiter default.
func fetchInterval(task parser.Task, profile *parser.SiteProfile) time.Duration {
	if task.RateLimitOverride > 0 {
		return time.Duration(task.RateLimitOverride * float64(time.Second))
	}
	if profile != nil && profile.RateLimitSeconds > 0 {
		return time.Duration(profile.RateLimitSeconds * float64(time.Second))
	}
	return 0
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
