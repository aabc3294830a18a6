// Package server exposes the bot's HTTP surface: health, readiness, metrics,
// the public status and leaderboard views, and token-protected admin routes.
// It injects correlation IDs into request contexts for consistent logging.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/shooting-star/telemetry"
)

// NewMux returns the HTTP handler with all routes.
func NewMux(d Deps) http.Handler {
	h := NewHandlers(d)
	auth := adminAuth(d.AdminToken)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /healthz", h.HandleHealthz)
	mux.HandleFunc("GET /readyz", h.HandleReadyz)

	mux.HandleFunc("GET /status", h.HandleStatus)
	mux.HandleFunc("GET /leaderboard", h.HandleLeaderboard)

	mux.Handle("GET /admin/schedule", auth(http.HandlerFunc(h.HandleAdminSchedule)))
	mux.Handle("POST /admin/refresh-commands", auth(http.HandlerFunc(h.HandleAdminRefreshCommands)))

	return withCorrelation(mux)
}

// withCorrelation tags each request with a correlation id and a tracing span.
func withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Reuse corr header if provided else generate
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		telemetry.SetSpanHTTPStatus(span, rec.statusCode)
	})
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, d Deps, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(d),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// Use WithoutCancel to inherit context values but allow shutdown to complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr), slog.String("component", "http"))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
