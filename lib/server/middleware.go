package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// --------------------------------------------------------------------------
// Middleware (body limit, metrics, logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		s.metrics.GetOrCreateCounter(fmt.Sprintf(`sqkv_http_requests_total{method=%q,status="%s"}`,
			r.Method, strconv.Itoa(rw.statusCode))).Inc()
		s.metrics.GetOrCreateHistogram(fmt.Sprintf(`sqkv_http_request_duration_seconds{method=%q}`,
			r.Method)).Update(duration.Seconds())

		if logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
			logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, duration)
		}
	})
}
