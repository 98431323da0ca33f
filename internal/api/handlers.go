package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/120m4n/infovis/internal"
	"github.com/120m4n/infovis/internal/logging"
	"github.com/120m4n/infovis/internal/query"
	"github.com/120m4n/infovis/internal/service"
)

// Handler serves the dashboard endpoints.
type Handler struct {
	svc            *service.Service
	stats          *internal.Stats
	defaultLimit   int
	highlightLimit int
	onShutdown     func()
}

// NewHandler creates a Handler. onShutdown runs after the /shutdown response
// has been written; it may be nil.
func NewHandler(svc *service.Service, stats *internal.Stats, defaultLimit, highlightLimit int, onShutdown func()) *Handler {
	if stats == nil {
		stats = internal.NewStats()
	}
	return &Handler{
		svc:            svc,
		stats:          stats,
		defaultLimit:   defaultLimit,
		highlightLimit: highlightLimit,
		onShutdown:     onShutdown,
	}
}

// writeJSON writes v indented, the way the dashboard has always received it.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logging.Error().Err(err).Msg("Error encoding response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body) //nolint:errcheck
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body)) //nolint:errcheck
}

// storeError answers 500 without exposing the driver error to the client.
func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, err error) {
	h.stats.AddStoreError()
	logging.Error().Err(err).Str("path", r.URL.Path).Msg("Store query failed")
	writeText(w, http.StatusInternalServerError, "internal server error")
}

// intParam parses an integer parameter, falling back to def when it is
// missing or malformed.
func (h *Handler) intParam(r *http.Request, name string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		h.stats.AddParamFallback()
		logging.Warn().Str("param", name).Str("value", raw).Int("default", def).Msg("Malformed numeric parameter, using default")
		return def
	}
	return n
}

// optionalIntParam parses an integer filter; missing or malformed means no
// filter.
func (h *Handler) optionalIntParam(r *http.Request, name string) *int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		h.stats.AddParamFallback()
		logging.Warn().Str("param", name).Str("value", raw).Msg("Malformed numeric filter, ignoring it")
		return nil
	}
	return &n
}

// GetTotal handles /GetTotal.
func (h *Handler) GetTotal(w http.ResponseWriter, r *http.Request) {
	totals, err := h.svc.Totals(r.Context())
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// GetDistricts handles /Municipi.
func (h *Handler) GetDistricts(w http.ResponseWriter, r *http.Request) {
	districts, err := h.svc.Districts(r.Context())
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, districts)
}

// GetDailyAccidents handles /GetDailyAccidents.
func (h *Handler) GetDailyAccidents(w http.ResponseWriter, r *http.Request) {
	days, err := h.svc.AccidentsByDay(r.Context())
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

// GetGeocodedAccidents handles /GetGeocodedAccidents.
func (h *Handler) GetGeocodedAccidents(w http.ResponseWriter, r *http.Request) {
	filter := query.AccidentFilter{
		Year:     strings.TrimSpace(r.URL.Query().Get("anno")),
		Hour:     h.optionalIntParam(r, "ora"),
		District: h.optionalIntParam(r, "numero_gruppo"),
	}
	accidents, err := h.svc.GeocodedAccidents(r.Context(), filter)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accidents)
}

// GetAccidentDetails handles /GetAccidentDetails?id=N.
func (h *Handler) GetAccidentDetails(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("id"))
	id, err := strconv.Atoi(raw)
	if err != nil {
		writeText(w, http.StatusBadRequest, fmt.Sprintf("invalid id %q", raw))
		return
	}

	doc, err := h.svc.AccidentDetail(r.Context(), id)
	if errors.Is(err, service.ErrNotFound) {
		h.stats.AddNotFound()
		writeText(w, http.StatusNotFound, fmt.Sprintf("item %d not found", id))
		return
	}
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	// Extended JSON keeps ObjectIDs and dates readable.
	body, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body) //nolint:errcheck
}

// GetCountWithHighlight handles /GetCountWithHighlight.
func (h *Handler) GetCountWithHighlight(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := h.intParam(r, "limit", h.highlightLimit)
	descending := q.Get("sort") != "asc"

	rows, err := h.svc.CountWithHighlight(r.Context(),
		q.Get("field"), limit, q.Get("highlight-field"), q.Get("highlight-value"), descending)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// GetCount handles /GetCount.
func (h *Handler) GetCount(w http.ResponseWriter, r *http.Request) {
	limit := h.intParam(r, "limit", h.defaultLimit)
	rows, err := h.svc.Count(r.Context(), r.URL.Query().Get("field"), limit)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// GetDistrictsAccidents handles /GetIncidentiMunicipi.
func (h *Handler) GetDistrictsAccidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := query.AccidentFilter{
		Year:  strings.TrimSpace(q.Get("anno")),
		Month: strings.TrimSpace(q.Get("mese")),
		Day:   strings.TrimSpace(q.Get("giorno")),
		Hour:  h.optionalIntParam(r, "ora"),
	}
	logging.Debug().
		Str("anno", filter.Year).
		Str("mese", filter.Month).
		Str("giorno", filter.Day).
		Msg("District accidents requested")

	rows, err := h.svc.DistrictsAccidents(r.Context(), filter)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// Shutdown handles /shutdown: it answers BYE, then hands over to onShutdown,
// which closes the store and stops the process.
func (h *Handler) Shutdown(w http.ResponseWriter, r *http.Request) {
	logging.Info().Str("remote", r.RemoteAddr).Msg("Shutdown requested")
	writeText(w, http.StatusOK, "BYE")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	if h.onShutdown != nil {
		h.onShutdown()
	}
}
