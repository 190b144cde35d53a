// Package api exposes the HTTP interface for the parsing service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parselab/shop-parser/internal/config"
	"github.com/parselab/shop-parser/internal/dispatcher"
	"github.com/parselab/shop-parser/internal/export"
	"github.com/parselab/shop-parser/internal/extract"
	metrics "github.com/parselab/shop-parser/internal/middleware"
	"github.com/parselab/shop-parser/internal/parser"
	"github.com/parselab/shop-parser/internal/telemetry"
)

// Version is stamped at build time.
var Version = "dev"

const (
	defaultTaskLimit = 50
	maxTaskLimit     = 500
	enqueueTimeout   = 5 * time.Second
)

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router       chi.Router
	taskStore    parser.TaskStore
	productStore parser.ProductStore
	dispatcher   *dispatcher.Dispatcher
	registry     *extract.Registry
	exports      *export.Registry
	idGen        parser.IDGenerator
	clock        parser.Clock
	cfg          config.Config
	logger       *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	taskStore parser.TaskStore,
	productStore parser.ProductStore,
	dispatcher *dispatcher.Dispatcher,
	registry *extract.Registry,
	exports *export.Registry,
	idGen parser.IDGenerator,
	clock parser.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		taskStore:    taskStore,
		productStore: productStore,
		dispatcher:   dispatcher,
		registry:     registry,
		exports:      exports,
		idGen:        idGen,
		clock:        clock,
		cfg:          cfg,
		logger:       logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(s.apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.submitTask)
			r.Post("/standard", s.submitStandardTask)
			r.Get("/", s.listTasks)
			r.Route("/{task_id}", func(r chi.Router) {
				r.Get("/", s.getTask)
				r.Post("/cancel", s.cancelTask)
				r.Get("/products", s.listTaskProducts)
				r.Get("/export", s.exportTask)
			})
		})
		r.Get("/stats", s.stats)
		r.Get("/formats", s.formats)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"module":  "shop-parser",
		"version": Version,
	})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.taskStore.ListTasks(r.Context(), nil, 1); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "task store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitTaskRequest struct {
	URL             string            `json:"url"`
	ParserType      string            `json:"parser_type"`
	MaxPages        *int              `json:"max_pages"`
	MaxRetries      *int              `json:"max_retries"`
	RateLimit       *float64          `json:"rate_limit"`
	DeadlineSeconds *int              `json:"deadline_seconds"`
	Tags            map[string]string `json:"tags"`
}

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var req submitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	task, err := s.buildTask(req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.enqueueTask(r.Context(), w, task)
}

type standardTaskRequest struct {
	Name string `json:"name"`
}

func (s *Server) submitStandardTask(w http.ResponseWriter, r *http.Request) {
	var req standardTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "missing task name")
		return
	}
	template, ok := s.cfg.StandardTasks[req.Name]
	if !ok {
		s.writeError(w, http.StatusNotFound, "standard task template not found")
		return
	}
	task, err := s.buildTask(submitTaskRequest{
		URL:        template.URL,
		ParserType: template.ParserType,
		MaxPages:   intPtrOrNil(template.MaxPages),
		MaxRetries: intPtrOrNil(template.MaxRetries),
		RateLimit:  floatPtrOrNil(template.RateLimitSeconds),
		Tags:       template.Tags,
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.enqueueTask(r.Context(), w, task)
}

// buildTask validates a submission synchronously and fills defaults.
func (s *Server) buildTask(req submitTaskRequest) (parser.Task, error) {
	target, err := url.Parse(req.URL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return parser.Task{}, &parser.ValidationError{Field: "url", Reason: "must be an absolute http(s) URL"}
	}
	parserType := parser.ParserType(req.ParserType)
	if parserType == "" {
		parserType = parser.ParserTypeUniversal
	}
	if !s.registry.Known(parserType) {
		return parser.Task{}, &parser.ValidationError{Field: "parser_type", Reason: "unknown site profile: " + string(parserType)}
	}

	task := parser.Task{
		URL:        req.URL,
		ParserType: parserType,
		Status:     parser.TaskStatusPending,
		MaxPages:   valueOrDefault(req.MaxPages, s.cfg.Parser.MaxPagesDefault),
		MaxRetries: valueOrDefault(req.MaxRetries, s.cfg.Parser.MaxRetriesDefault),
		Tags:       req.Tags,
	}
	if task.MaxPages <= 0 {
		return parser.Task{}, &parser.ValidationError{Field: "max_pages", Reason: "must be >= 1"}
	}
	if task.MaxRetries < 0 {
		return parser.Task{}, &parser.ValidationError{Field: "max_retries", Reason: "must be >= 0"}
	}
	if req.RateLimit != nil {
		if *req.RateLimit < 0 {
			return parser.Task{}, &parser.ValidationError{Field: "rate_limit", Reason: "must be >= 0"}
		}
		task.RateLimitOverride = *req.RateLimit
	}
	task.DeadlineSeconds = valueOrDefault(req.DeadlineSeconds, s.cfg.Parser.TaskDeadlineSeconds)
	if task.DeadlineSeconds < 0 {
		return parser.Task{}, &parser.ValidationError{Field: "deadline_seconds", Reason: "must be >= 0"}
	}
	return task, nil
}

func (s *Server) enqueueTask(ctx context.Context, w http.ResponseWriter, task parser.Task) {
	id, err := s.idGen.NewID()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("generate task id: %v", err))
		return
	}
	task.ID = id
	task.CreatedAt = s.clock.Now()

	if err := s.taskStore.CreateTask(ctx, task); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("create task: %v", err))
		return
	}
	queueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	item := parser.QueueItem{TaskID: task.ID, Submitted: task.CreatedAt.Unix()}
	if err := s.dispatcher.Enqueue(queueCtx, item); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		s.writeError(w, status, fmt.Sprintf("enqueue task: %v", err))
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"task_id": task.ID,
		"status":  string(task.Status),
	})
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	var status *parser.TaskStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		candidate := parser.TaskStatus(raw)
		switch candidate {
		case parser.TaskStatusPending, parser.TaskStatusRunning,
			parser.TaskStatusCompleted, parser.TaskStatusFailed:
			status = &candidate
		default:
			s.writeError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
	}
	limit := defaultTaskLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxTaskLimit {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	tasks, err := s.taskStore.ListTasks(r.Context(), status, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []parser.Task{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.loadTask(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.loadTask(w, r)
	if !ok {
		return
	}
	if task.Terminal() {
		s.writeError(w, http.StatusConflict, "task already finished")
		return
	}
	if err := s.taskStore.RequestCancel(r.Context(), task.ID); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to request cancel")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"task_id": task.ID,
		"status":  "cancel_requested",
	})
}

func (s *Server) listTaskProducts(w http.ResponseWriter, r *http.Request) {
	task, ok := s.loadTask(w, r)
	if !ok {
		return
	}
	products, err := s.productStore.ListProducts(r.Context(), task.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	if products == nil {
		products = []parser.Product{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"task_id":  task.ID,
		"count":    len(products),
		"products": products,
	})
}

func (s *Server) exportTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.loadTask(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	products, err := s.productStore.ListProducts(r.Context(), task.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	data, contentType, err := s.exports.Export(format, task, products)
	if err != nil {
		var exportErr *parser.ExportError
		if errors.As(err, &exportErr) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.%s", task.ID, format))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Error("export write failed", zap.Error(err))
	}
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.productStore.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) formats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"formats": s.exports.Formats()})
}

func (s *Server) loadTask(w http.ResponseWriter, r *http.Request) (parser.Task, bool) {
	taskID := chi.URLParam(r, "task_id")
	task, err := s.taskStore.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, parser.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "task not found")
		} else {
			s.writeError(w, http.StatusInternalServerError, "failed to load task")
		}
		return parser.Task{}, false
	}
	return task, true
}

func valueOrDefault(ptr *int, def int) int {
	if ptr == nil {
		return def
	}
	return *ptr
}

func intPtrOrNil(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func floatPtrOrNil(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func (s *Server) apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				s.writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
