package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kchat-io/kchat/internal/metrics"
)

// statusWriter wraps http.ResponseWriter to capture status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Metrics returns middleware that records Prometheus metrics.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := NormalizePath(r.URL.Path)

		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, path, strconv.Itoa(wrapped.status),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, path,
		).Observe(duration)
	})
}

// NormalizePath collapses id segments to avoid high cardinality in metrics
// and rate-limit buckets.
func NormalizePath(path string) string {
	if strings.HasPrefix(path, "/groups/") {
		if strings.HasSuffix(path, "/messages") {
			return "/groups/:id/messages"
		}
		return "/groups/:id"
	}
	if strings.HasPrefix(path, "/messages/") && path != "/messages/recent" && path != "/messages/range" {
		return "/messages/:id"
	}
	return path
}
