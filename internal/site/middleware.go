package site

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/matapouriblue/matapouri-blue/internal/logger"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "matapouri_http_requests_total",
	Help: "HTTP requests by route pattern and status code",
}, []string{"method", "route", "status"})

// logRequests logs one entry per request and counts it by route pattern
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()

		fields := logger.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      status,
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}
		if status >= http.StatusInternalServerError {
			s.log.Warn("HTTP request", fields)
			return
		}
		s.log.Debug("HTTP request", fields)
	})
}

// recoverer turns a handler panic into the index page with status 500. A
// response that already started is left as is.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww, ok := w.(middleware.WrapResponseWriter)
		if !ok {
			ww = middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		}
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.log.Error("Handler panic", logger.Fields{
				"path":            r.URL.Path,
				"request_id":      middleware.GetReqID(r.Context()),
				"headers_written": ww.Status() != 0,
			}, fmt.Errorf("%v", rec))
			if ww.Status() != 0 {
				return
			}
			s.pages.render(ww, http.StatusInternalServerError, "index.html", s.indexData())
		}()
		next.ServeHTTP(ww, r)
	})
}
