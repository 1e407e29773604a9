package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/peaking-cli/internal/model"
	"github.com/sells-group/peaking-cli/internal/peaking"
	"github.com/sells-group/peaking-cli/internal/runner"
)

// Source provides the outcome the handlers read from.
type Source interface {
	Current() (*runner.Outcome, error)
	Refresh(ctx context.Context) (*runner.Outcome, error)
}

// Handler serves the dashboard endpoints.
type Handler struct {
	src Source
}

// NewHandler creates a Handler over src.
func NewHandler(src Source) *Handler {
	return &Handler{src: src}
}

// YearValue is one point of a city series.
type YearValue struct {
	Year      int     `json:"year"`
	Emissions float64 `json:"emissions"`
}

// CityResponse is the dashboard view of one city.
type CityResponse struct {
	City       string           `json:"city"`
	Status     model.PeakStatus `json:"status"`
	Source     model.DataSource `json:"data_source"`
	PeakYear   int              `json:"peak_year,omitempty"`
	PctChange  float64          `json:"pct_change_since_peak"`
	DataPoints int              `json:"num_data_points"`
	Series     []YearValue      `json:"series"`
}

// SummaryResponse reports the headline figures of the latest run.
type SummaryResponse struct {
	RunID         string                   `json:"run_id"`
	CompletedAt   *time.Time               `json:"completed_at,omitempty"`
	Cities        int                      `json:"cities"`
	PeakedCount   int                      `json:"peaked_count"`
	StatusCounts  map[model.PeakStatus]int `json:"status_counts"`
	RegistryCount int                      `json:"registry_count"`
	NewlyPeaked   []string                 `json:"newly_peaked"`
	Load          peaking.LoadStats        `json:"load"`
	Overrides     []peaking.Override       `json:"overrides"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// current fetches the outcome or writes 503 when no run has finished.
func (h *Handler) current(w http.ResponseWriter) (*runner.Outcome, bool) {
	out, err := h.src.Current()
	if err != nil {
		if errors.Is(err, runner.ErrNoSnapshot) {
			writeError(w, http.StatusServiceUnavailable, "no completed run yet")
		} else {
			writeError(w, http.StatusInternalServerError, "failed to load results")
		}
		return nil, false
	}
	return out, true
}

func (h *Handler) listCities(w http.ResponseWriter, _ *http.Request) {
	out, ok := h.current(w)
	if !ok {
		return
	}
	cities := out.Result.Table.Cities()
	sort.Strings(cities)
	writeJSON(w, http.StatusOK, map[string][]string{"cities": cities})
}

func (h *Handler) getCity(w http.ResponseWriter, r *http.Request) {
	out, ok := h.current(w)
	if !ok {
		return
	}
	name, err := url.PathUnescape(chi.URLParam(r, "city"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid city")
		return
	}

	rec := findSelected(out.Result.Table, name)
	if rec == nil {
		writeError(w, http.StatusNotFound, "city not found")
		return
	}

	years := out.Result.Table.Years
	resp := CityResponse{
		City:       rec.City,
		Status:     rec.Status,
		Source:     rec.Source,
		PctChange:  rec.PctChangeSincePeak,
		DataPoints: rec.Params.NumDataPoints,
		Series:     make([]YearValue, 0, len(rec.Emissions)),
	}
	if rec.Status == model.StatusPeaked && rec.Params.NumDataPoints > 0 {
		resp.PeakYear = rec.Params.MaxEmissionsYear
	}
	for i, v := range rec.Emissions {
		resp.Series = append(resp.Series, YearValue{Year: years.Year(i), Emissions: v})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listPeaks(w http.ResponseWriter, _ *http.Request) {
	out, ok := h.current(w)
	if !ok {
		return
	}
	peaks := out.Result.Peaks
	if peaks == nil {
		peaks = []model.PeakYearRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"peaked_count": peaking.PeakedCount(out.Result.Dashboard),
		"peaks":        peaks,
	})
}

func (h *Handler) summary(w http.ResponseWriter, _ *http.Request) {
	out, ok := h.current(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, summarize(out))
}

func (h *Handler) audit(w http.ResponseWriter, r *http.Request) {
	out, ok := h.current(w)
	if !ok {
		return
	}
	rows := out.Result.Audit
	if city := r.URL.Query().Get("city"); city != "" {
		key := peaking.CityKey(city)
		filtered := make([]model.DashboardRow, 0)
		for _, row := range rows {
			if peaking.CityKey(row.City) == key {
				filtered = append(filtered, row)
			}
		}
		if len(filtered) == 0 {
			writeError(w, http.StatusNotFound, "city not found")
			return
		}
		rows = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	out, err := h.src.Refresh(r.Context())
	if err != nil {
		zap.L().Error("api: refresh failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, summarize(out))
}

func summarize(out *runner.Outcome) SummaryResponse {
	res := out.Result
	resp := SummaryResponse{
		Cities:        len(res.Table.Cities()),
		PeakedCount:   peaking.PeakedCount(res.Dashboard),
		StatusCounts:  res.Report.StatusCounts,
		RegistryCount: res.Report.RegistryCount,
		NewlyPeaked:   res.Report.NewlyPeaked,
		Load:          res.Load,
		Overrides:     res.Overrides,
	}
	if out.Run != nil {
		resp.RunID = out.Run.ID
		resp.CompletedAt = out.Run.CompletedAt
	}
	if resp.NewlyPeaked == nil {
		resp.NewlyPeaked = []string{}
	}
	return resp
}

func findSelected(t *model.Table, name string) *model.Record {
	key := peaking.CityKey(name)
	for _, r := range t.Records {
		if r.UseForDashboard && peaking.CityKey(r.City) == key {
			return r
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
