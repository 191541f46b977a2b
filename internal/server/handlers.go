package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/drkrodriguez/ISSS626-GAA/internal/geodata"
	"github.com/drkrodriguez/ISSS626-GAA/internal/model"
	"github.com/drkrodriguez/ISSS626-GAA/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.st.Ping(r.Context()); err != nil {
		s.log.Warn("store unreachable", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{Dataset: q.Get("dataset")}

	if v := q.Get("status"); v != "" {
		status, err := model.ParseRunStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		filter.Status = status
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Offset = n
		}
	}

	runs, err := s.st.ListRuns(r.Context(), filter)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := s.st.GetRun(r.Context(), runID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunGeoJSON(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	rows, err := s.st.GetRunRegions(r.Context(), runID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if len(rows) == 0 {
		writeError(w, http.StatusNotFound, eris.Errorf("no regions stored for run %s", runID))
		return
	}

	variant, err := pickVariant(r.URL.Query().Get("variant"), rows[0].Labels)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	regions := make([]geodata.Region, 0, len(rows))
	clusters := make(map[string]int, len(rows))
	for _, rr := range rows {
		g, err := geodata.DecodeEWKB(rr.Geometry)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		mp, ok := g.(*geom.MultiPolygon)
		if !ok {
			writeError(w, http.StatusInternalServerError, eris.Errorf("region %s geometry is not a multipolygon", rr.RegionID))
			return
		}
		regions = append(regions, geodata.Region{ID: rr.RegionID, Name: rr.Name, Geometry: mp})
		clusters[rr.RegionID] = rr.Labels[variant]
	}

	data, err := geodata.MarshalFeatureCollection(regions, func(reg geodata.Region) map[string]any {
		return map[string]any{"cluster": clusters[reg.ID]}
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

// pickVariant resolves which stored assignment to render. An empty request
// falls back to the hierarchical variant when stored, else the first one.
func pickVariant(requested string, labels map[string]int) (string, error) {
	available := make([]string, 0, len(labels))
	for v := range labels {
		available = append(available, v)
	}
	sort.Strings(available)
	if len(available) == 0 {
		return "", eris.New("run has no stored assignments")
	}

	if requested == "" {
		if _, ok := labels["hierarchical"]; ok {
			return "hierarchical", nil
		}
		return available[0], nil
	}
	if _, ok := labels[requested]; !ok {
		return "", eris.Errorf("variant %q not stored for this run (have %s)", requested, strings.Join(available, ", "))
	}
	return requested, nil
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	s.log.Error("store failure", zap.Error(err))
	writeError(w, http.StatusInternalServerError, err)
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data) //nolint:errcheck
	}
}

func writeError(w http.ResponseWriter, statusCode int, err error) {
	writeJSON(w, statusCode, ErrorResponse{
		Code:    http.StatusText(statusCode),
		Message: err.Error(),
	})
}
