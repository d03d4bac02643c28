package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mcpwizard/mcpwizard/internal/discovery"
)

// submitDiscovery handles POST /api/v1/discovery. The job id comes back
// immediately; results are polled via the jobs route.
func (a *API) submitDiscovery(w http.ResponseWriter, r *http.Request) {
	opts := discovery.DefaultOptions()
	if err := decodeJSON(r, &opts); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON")
		return
	}
	if strings.TrimSpace(opts.Query) == "" {
		respondError(w, http.StatusBadRequest, "missing_query", "Field 'query' is required")
		return
	}

	id := a.discovery.SubmitJob(opts)
	respondJSON(w, http.StatusAccepted, Response{Data: map[string]string{"job_id": id}})
}

// getDiscoveryJob handles GET /api/v1/discovery/jobs/{id}. Evicted jobs
// are indistinguishable from jobs that never existed.
func (a *API) getDiscoveryJob(w http.ResponseWriter, r *http.Request) {
	job := a.discovery.GetJobStatus(chi.URLParam(r, "id"))
	if job == nil {
		respondError(w, http.StatusNotFound, "not_found", "Unknown or expired job")
		return
	}
	respondJSON(w, http.StatusOK, Response{Data: job})
}

// analyzeRepository handles POST /api/v1/discovery/analyze.
func (a *API) analyzeRepository(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON")
		return
	}

	entry, err := a.discovery.AnalyzeSingle(r.Context(), body.URL)
	if err != nil {
		var ve *discovery.ValidationError
		if errors.As(err, &ve) {
			respondError(w, http.StatusBadRequest, "invalid_url", ve.Msg)
			return
		}
		respondError(w, http.StatusBadGateway, "provider_error", err.Error())
		return
	}
	if entry == nil {
		respondError(w, http.StatusNotFound, "not_detected", "No MCP server detected in repository")
		return
	}

	respondJSON(w, http.StatusOK, Response{Data: entry})
}

// getProviderStatus handles GET /api/v1/providers/status.
func (a *API) getProviderStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, Response{Data: a.discovery.GetProviderStatus()})
}
