package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/mcpwizard/mcpwizard/internal/catalog"
	"github.com/mcpwizard/mcpwizard/internal/database"
	"github.com/mcpwizard/mcpwizard/internal/discovery"
	"github.com/mcpwizard/mcpwizard/internal/vault"
)

// DiscoveryService is the aggregation surface the API exposes.
type DiscoveryService interface {
	AnalyzeSingle(ctx context.Context, url string) (*catalog.Entry, error)
	SubmitJob(opts discovery.Options) string
	GetJobStatus(id string) *catalog.DiscoveryJob
	GetProviderStatus() discovery.ProviderStatus
}

// Store is the database surface the API reads and writes.
type Store interface {
	Health(ctx context.Context) error

	GetEntry(ctx context.Context, identity string) (*catalog.Entry, error)
	ListEntries(ctx context.Context, limit, offset int) ([]*catalog.Entry, int, error)
	SearchEntries(ctx context.Context, query string, limit, offset int) ([]*catalog.Entry, int, error)
	CountsBySource(ctx context.Context) (map[string]int, error)

	CreateConfig(ctx context.Context, config *database.UserConfig) error
	GetConfig(ctx context.Context, id uuid.UUID) (*database.UserConfig, error)
	ListConfigs(ctx context.Context, limit, offset int) ([]*database.UserConfig, int, error)
	UpdateConfig(ctx context.Context, id uuid.UUID, name string, entries json.RawMessage) (*database.UserConfig, error)
	DeleteConfig(ctx context.Context, id uuid.UUID) (bool, error)
	ListVersions(ctx context.Context, configID uuid.UUID, limit, offset int) ([]*database.ConfigVersion, int, error)
	RollbackConfig(ctx context.Context, configID uuid.UUID, version int) (*database.UserConfig, error)
}

// Config wires an API handler.
type Config struct {
	Store       Store
	Discovery   DiscoveryService
	Vault       *vault.Vault
	Logger      *zap.Logger
	Metrics     http.Handler
	CORSOrigins []string
}

// API handles HTTP API requests.
type API struct {
	store     Store
	discovery DiscoveryService
	vault     *vault.Vault
	logger    *zap.Logger
	metrics   http.Handler
	cors      []string
}

// New creates a new API handler.
func New(cfg Config) *API {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	return &API{
		store:     cfg.Store,
		discovery: cfg.Discovery,
		vault:     cfg.Vault,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		cors:      cfg.CORSOrigins,
	}
}

// Router creates the API router.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: a.cors,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"*"},
	}).Handler)

	r.Get("/healthz", a.health)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/discovery", a.submitDiscovery)
		r.Get("/discovery/jobs/{id}", a.getDiscoveryJob)
		r.Post("/discovery/analyze", a.analyzeRepository)

		r.Get("/servers", a.listServers)
		r.Get("/servers/*", a.getServer)
		r.Get("/search", a.searchServers)
		r.Get("/stats", a.getStats)
		r.Get("/providers/status", a.getProviderStatus)

		r.Post("/configs", a.createConfig)
		r.Get("/configs", a.listConfigs)
		r.Get("/configs/{id}", a.getConfig)
		r.Put("/configs/{id}", a.updateConfig)
		r.Delete("/configs/{id}", a.deleteConfig)
		r.Get("/configs/{id}/versions", a.listConfigVersions)
		r.Post("/configs/{id}/rollback/{version}", a.rollbackConfig)
	})

	return r
}

// Response wraps API responses.
type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Meta  *Meta       `json:"meta,omitempty"`
	Error *ErrorMsg   `json:"error,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// ErrorMsg represents an error response.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if a.store != nil {
		if err := a.store.Health(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "unhealthy", err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, Response{Data: map[string]string{"status": "ok"}})
}

// parsePagination extracts pagination parameters from the request.
func parsePagination(r *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}

	return
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, Response{
		Error: &ErrorMsg{
			Code:    code,
			Message: message,
		},
	})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v)
}
