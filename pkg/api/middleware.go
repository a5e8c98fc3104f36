package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/vantagehq/vantage/pkg/log"
	"github.com/vantagehq/vantage/pkg/metrics"
)

type contextKey string

const startTimeKey contextKey = "requestStart"
const requestIDKey contextKey = "requestID"

// timing records the request arrival time; handlers read it back to compute
// totalTimeMs at response dispatch. It runs first in the chain.
func timing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), startTimeKey, time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// startTime returns the request arrival time, or now if the middleware did
// not run (tests invoking handlers directly)
func startTime(ctx context.Context) time.Time {
	if t, ok := ctx.Value(startTimeKey).(time.Time); ok {
		return t
	}
	return time.Now()
}

// totalTimeMs is the wall-clock span from request arrival, in milliseconds
func totalTimeMs(ctx context.Context) int64 {
	return time.Since(startTime(ctx)).Milliseconds()
}

// requestID assigns each request a UUID echoed in the response headers and
// the request log
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger emits one structured log line per request and feeds the
// request metrics
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		elapsed := time.Since(startTime(r.Context()))

		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		metrics.APIRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		id, _ := r.Context().Value(requestIDKey).(string)
		log.Logger.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", elapsed).
			Msg("Request handled")
	})
}
