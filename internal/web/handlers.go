package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jandubois/rsvctl/internal/registry"
	"github.com/jandubois/rsvctl/internal/status"
)

// probeStatus is one probe on one endpoint.
type probeStatus struct {
	ID       string `json:"id"`
	Metric   string `json:"metric"`
	Service  string `json:"service"`
	Endpoint string `json:"endpoint"`
	Status   string `json:"status"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// formatParam reads the format query parameter, defaulting to local.
func formatParam(r *http.Request) (status.Format, error) {
	name := r.URL.Query().Get("format")
	if name == "" {
		return status.FormatLocal, nil
	}
	return status.ParseFormat(name)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListProbes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	format, err := formatParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	probes, err := s.source.ConfiguredProbes(ctx, registry.Options{Pattern: r.URL.Query().Get("pattern")})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rows, err := s.reporter.Collect(ctx, probes, format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// Row keys are file@metric, so endpoint__key is the probe ID.
	result := make([]probeStatus, 0, len(rows))
	for _, row := range rows {
		result = append(result, probeStatus{
			ID:       row.Endpoint + "__" + row.Key,
			Metric:   row.Metric,
			Service:  row.Service,
			Endpoint: row.Endpoint,
			Status:   row.Status,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetProbe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	format, err := formatParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := s.source.ProbeByID(ctx, r.PathValue("id"))
	switch {
	case errors.Is(err, registry.ErrInvalidProbeID):
		writeError(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, registry.ErrProbeNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	endpoint := p.URIs[0]
	writeJSON(w, http.StatusOK, probeStatus{
		ID:       p.LocalUniqueName(endpoint),
		Metric:   p.MetricName,
		Service:  p.ServiceType,
		Endpoint: endpoint,
		Status:   s.reporter.Query(ctx, p, endpoint, format),
	})
}
