// Package api serves the confirmation dialog over JSON/HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/harunnryd/kakunin/internal/config"
	"github.com/harunnryd/kakunin/internal/logger"
	"github.com/harunnryd/kakunin/internal/registry"
	"github.com/harunnryd/kakunin/internal/telemetry"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxBodyBytes = 1 << 20

// Server exposes the session registry over HTTP.
type Server struct {
	registry        *registry.Registry
	handler         http.Handler
	server          *http.Server
	componentHealth func(context.Context) map[string]any
}

func NewServer(cfg config.ServerConfig, reg *registry.Registry) (*Server, error) {
	readTimeout, err := config.DurationOrDefault(cfg.ReadTimeout, config.DefaultServerReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse server read timeout: %w", err)
	}
	writeTimeout, err := config.DurationOrDefault(cfg.WriteTimeout, config.DefaultServerWriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse server write timeout: %w", err)
	}
	idleTimeout, err := config.DurationOrDefault(cfg.IdleTimeout, config.DefaultServerIdleTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse server idle timeout: %w", err)
	}
	port := cfg.Port
	if port == 0 {
		port = config.DefaultServerPort
	}

	s := &Server{registry: reg}
	s.handler = s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, instrument(pattern, h))
	}

	handle("GET /health", s.handleHealth)
	handle("POST /api/v1/sessions", s.handleCreateSession)
	handle("GET /api/v1/sessions", s.handleListSessions)
	handle("GET /api/v1/sessions/{id}", s.handleGetSession)
	handle("DELETE /api/v1/sessions/{id}", s.handleDeleteSession)
	handle("POST /api/v1/sessions/{id}/start", s.handleStart)
	handle("GET /api/v1/sessions/{id}/question", s.handleCurrentQuestion)
	handle("GET /api/v1/sessions/{id}/questions", s.handleQuestions)
	handle("POST /api/v1/sessions/{id}/answer", s.handleAnswer)
	handle("POST /api/v1/sessions/{id}/questions/{qid}/answer", s.handleAnswerQuestion)
	handle("POST /api/v1/sessions/{id}/approve", s.handleApprove)
	handle("POST /api/v1/sessions/{id}/modify", s.handleModify)
	handle("POST /api/v1/sessions/{id}/cancel", s.handleCancel)
	handle("GET /api/v1/sessions/{id}/status", s.handleStatus)
	handle("GET /api/v1/sessions/{id}/history", s.handleHistory)
	return mux
}

// ReportComponents adds the result of fn to the /health payload.
func (s *Server) ReportComponents(fn func(context.Context) map[string]any) {
	s.componentHealth = fn
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Addr() string {
	return s.server.Addr
}

// ListenAndServe blocks until the server stops. A graceful shutdown returns nil.
func (s *Server) ListenAndServe() error {
	slog.Info("Starting HTTP API server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument wraps h with a span, a trace id on the context and an access log line.
func instrument(pattern string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.Tracer("").Start(r.Context(), pattern,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			),
		)
		defer span.End()

		traceID := ulid.Make().String()
		if sc := span.SpanContext(); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		ctx = logger.WithTraceID(ctx, traceID)
		if id := r.PathValue("id"); id != "" {
			ctx = logger.WithSessionID(ctx, id)
			span.SetAttributes(telemetry.SessionAttr(id))
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		r.Body = http.MaxBytesReader(rec, r.Body, maxBodyBytes)
		h(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
		logger.FromContext(ctx).Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
