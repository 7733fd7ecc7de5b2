package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/log"
	"github.com/aerosuite/platform/pkg/metrics"
)

type contextKey string

const (
	ctxRequestID contextKey = "requestId"
	ctxPrincipal contextKey = "principal"
)

// RequestIDFrom returns the request id attached by the middleware.
func RequestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(ctxRequestID).(string); ok {
		return id
	}
	return ""
}

// PrincipalFrom returns the authenticated principal id, if any.
func PrincipalFrom(ctx context.Context) string {
	if p, ok := ctx.Value(ctxPrincipal).(string); ok {
		return p
	}
	return ""
}

// requestIDMiddleware assigns every request a uuid, honoring an inbound
// X-Request-ID from a trusted proxy.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxRequestID, id)))
	})
}

// loggingMiddleware emits one structured line per request.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.WithRequestID(RequestIDFrom(r.Context())).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// metricsMiddleware records request counts and latency.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Inc()
		metrics.APIRequestDuration.WithLabelValues(r.Method).Observe(timer.Duration().Seconds())
	})
}

// recovererMiddleware converts panics into 500 envelopes; the worker
// stays up and the supervisor decides on replacement.
func recovererMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithRequestID(RequestIDFrom(r.Context())).Error().
					Interface("panic", rec).Msg("handler panicked")
				writeError(w, r, apperr.New(apperr.KindInternal, "internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
