// Package api exposes the accident statistics over HTTP.
package api

import (
	"fmt"
	"html"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/120m4n/infovis/internal"
	"github.com/120m4n/infovis/internal/logging"
	"github.com/120m4n/infovis/internal/metrics"
)

// NewRouter registers every route. health may be nil.
func NewRouter(h *Handler, health *Health) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(h.stats))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
		AllowedHeaders: []string{"Access-Control-Allow-Origin", "Content-Type", "Origin"},
	}))

	r.Get("/", routeIndex(r))
	r.Get("/GetTotal", h.GetTotal)
	r.Get("/Municipi", h.GetDistricts)
	r.Get("/GetDailyAccidents", h.GetDailyAccidents)
	r.Get("/GetGeocodedAccidents", h.GetGeocodedAccidents)
	r.Get("/GetAccidentDetails", h.GetAccidentDetails)
	r.Get("/GetCountWithHighlight", h.GetCountWithHighlight)
	r.Get("/GetCount", h.GetCount)
	r.Get("/GetIncidentiMunicipi", h.GetDistrictsAccidents)
	r.Get("/shutdown", h.Shutdown)

	if health != nil {
		r.Method(http.MethodGet, "/health", health)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// accessLog logs every request and feeds the request metrics, labelled by
// route pattern so that query strings do not explode the label space.
func accessLog(stats *internal.Stats) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				duration := time.Since(start)
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}

				route := "unmatched"
				if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
					route = rctx.RoutePattern()
				}

				stats.AddRequest()
				metrics.RecordHTTPRequest(route, status, duration)
				logging.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("query", r.URL.RawQuery).
					Str("remote", r.RemoteAddr).
					Int("status", status).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", duration).
					Msg("HTTP request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// routeIndex lists the registered GET routes as an HTML page.
func routeIndex(routes chi.Routes) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var paths []string
		err := chi.Walk(routes, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			if method == http.MethodGet {
				paths = append(paths, route)
			}
			return nil
		})
		if err != nil {
			logging.Error().Err(err).Msg("Error listing routes")
			writeText(w, http.StatusInternalServerError, "internal server error")
			return
		}
		sort.Strings(paths)

		var b strings.Builder
		b.WriteString("<html><body><ul>\n")
		for _, p := range paths {
			fmt.Fprintf(&b, "<li>%s</li>\n", html.EscapeString(p))
		}
		b.WriteString("</ul></body></html>\n")

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(b.String())) //nolint:errcheck
	}
}
