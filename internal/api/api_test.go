package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/mcpwizard/mcpwizard/internal/catalog"
	"github.com/mcpwizard/mcpwizard/internal/database"
	"github.com/mcpwizard/mcpwizard/internal/discovery"
	"github.com/mcpwizard/mcpwizard/internal/vault"
)

type stubStore struct {
	entries map[string]*catalog.Entry
	configs map[uuid.UUID]*database.UserConfig
	counts  map[string]int
}

func newStubStore() *stubStore {
	return &stubStore{
		entries: make(map[string]*catalog.Entry),
		configs: make(map[uuid.UUID]*database.UserConfig),
		counts:  make(map[string]int),
	}
}

func (s *stubStore) Health(ctx context.Context) error { return nil }

func (s *stubStore) GetEntry(ctx context.Context, identity string) (*catalog.Entry, error) {
	return s.entries[identity], nil
}

func (s *stubStore) ListEntries(ctx context.Context, limit, offset int) ([]*catalog.Entry, int, error) {
	list := make([]*catalog.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	return list, len(list), nil
}

func (s *stubStore) SearchEntries(ctx context.Context, query string, limit, offset int) ([]*catalog.Entry, int, error) {
	return nil, 0, nil
}

func (s *stubStore) CountsBySource(ctx context.Context) (map[string]int, error) {
	return s.counts, nil
}

func (s *stubStore) CreateConfig(ctx context.Context, config *database.UserConfig) error {
	config.Version = 1
	s.configs[config.ID] = config
	return nil
}

func (s *stubStore) GetConfig(ctx context.Context, id uuid.UUID) (*database.UserConfig, error) {
	return s.configs[id], nil
}

func (s *stubStore) ListConfigs(ctx context.Context, limit, offset int) ([]*database.UserConfig, int, error) {
	list := make([]*database.UserConfig, 0, len(s.configs))
	for _, c := range s.configs {
		list = append(list, c)
	}
	return list, len(list), nil
}

func (s *stubStore) UpdateConfig(ctx context.Context, id uuid.UUID, name string, entries json.RawMessage) (*database.UserConfig, error) {
	config, ok := s.configs[id]
	if !ok {
		return nil, nil
	}
	config.Name = name
	config.Entries = entries
	config.Version++
	return config, nil
}

func (s *stubStore) DeleteConfig(ctx context.Context, id uuid.UUID) (bool, error) {
	_, ok := s.configs[id]
	delete(s.configs, id)
	return ok, nil
}

func (s *stubStore) ListVersions(ctx context.Context, configID uuid.UUID, limit, offset int) ([]*database.ConfigVersion, int, error) {
	return nil, 0, nil
}

func (s *stubStore) RollbackConfig(ctx context.Context, configID uuid.UUID, version int) (*database.UserConfig, error) {
	return s.configs[configID], nil
}

type stubDiscovery struct {
	jobs    map[string]*catalog.DiscoveryJob
	entry   *catalog.Entry
	lastErr error
}

func (s *stubDiscovery) AnalyzeSingle(ctx context.Context, url string) (*catalog.Entry, error) {
	if s.lastErr != nil {
		return nil, s.lastErr
	}
	return s.entry, nil
}

func (s *stubDiscovery) SubmitJob(opts discovery.Options) string {
	id := "job-1"
	if s.jobs == nil {
		s.jobs = make(map[string]*catalog.DiscoveryJob)
	}
	s.jobs[id] = &catalog.DiscoveryJob{ID: id, Status: catalog.JobPending, Query: opts.Query}
	return id
}

func (s *stubDiscovery) GetJobStatus(id string) *catalog.DiscoveryJob {
	return s.jobs[id]
}

func (s *stubDiscovery) GetProviderStatus() discovery.ProviderStatus {
	var status discovery.ProviderStatus
	status.Repository.Available = true
	status.Registry.Available = true
	return status
}

func newTestAPI(store Store, disc DiscoveryService) http.Handler {
	keyring.MockInit()
	return New(Config{
		Store:     store,
		Discovery: disc,
		Vault:     vault.New(),
	}).Router()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSubmitDiscovery(t *testing.T) {
	disc := &stubDiscovery{}
	handler := newTestAPI(newStubStore(), disc)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/discovery", map[string]any{"query": "file system"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp.Data["job_id"])
}

func TestSubmitDiscoveryRequiresQuery(t *testing.T) {
	handler := newTestAPI(newStubStore(), &stubDiscovery{})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/discovery", map[string]any{"max_results": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDiscoveryJob(t *testing.T) {
	disc := &stubDiscovery{}
	handler := newTestAPI(newStubStore(), disc)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/discovery/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	doJSON(t, handler, http.MethodPost, "/api/v1/discovery", map[string]any{"query": "q"})
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/discovery/jobs/job-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAnalyzeRepository(t *testing.T) {
	disc := &stubDiscovery{entry: &catalog.Entry{Identity: "acme/fs-mcp"}}
	handler := newTestAPI(newStubStore(), disc)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/discovery/analyze",
		map[string]any{"url": "https://github.com/acme/fs-mcp"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "acme/fs-mcp")
}

func TestAnalyzeRepositoryValidation(t *testing.T) {
	disc := &stubDiscovery{lastErr: &discovery.ValidationError{Msg: "bad url"}}
	handler := newTestAPI(newStubStore(), disc)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/discovery/analyze",
		map[string]any{"url": "nonsense"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeRepositoryNotDetected(t *testing.T) {
	handler := newTestAPI(newStubStore(), &stubDiscovery{})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/discovery/analyze",
		map[string]any{"url": "https://github.com/acme/plain-lib"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetServerByIdentityWithSlash(t *testing.T) {
	store := newStubStore()
	store.entries["acme/fs-mcp"] = &catalog.Entry{Identity: "acme/fs-mcp", Name: "fs-mcp"}
	handler := newTestAPI(store, &stubDiscovery{})

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/servers/acme/fs-mcp", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "acme/fs-mcp")

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/servers/acme/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchRequiresQuery(t *testing.T) {
	handler := newTestAPI(newStubStore(), &stubDiscovery{})

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStats(t *testing.T) {
	store := newStubStore()
	store.counts = map[string]int{"repository": 3, "registry": 2}
	handler := newTestAPI(store, &stubDiscovery{})

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Total    int            `json:"total"`
			BySource map[string]int `json:"by_source"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Data.Total)
	assert.Equal(t, 3, resp.Data.BySource["repository"])
}

func TestCreateConfigSealsSecrets(t *testing.T) {
	store := newStubStore()
	handler := newTestAPI(store, &stubDiscovery{})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/configs", map[string]any{
		"name": "dev",
		"entries": []map[string]any{{
			"identity": "acme/fs-mcp",
			"params":   map[string]string{"FS_ROOT": "/data"},
			"secrets":  map[string]string{"FS_API_KEY": "hunter2"},
		}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// The persisted row carries a reference, never the secret itself.
	require.Len(t, store.configs, 1)
	for id, config := range store.configs {
		assert.NotContains(t, string(config.Entries), "hunter2")
		assert.Contains(t, string(config.Entries), "vault://")

		var entries []configEntry
		require.NoError(t, json.Unmarshal(config.Entries, &entries))
		require.Len(t, entries, 1)
		ref := entries[0].Params["FS_API_KEY"]
		require.True(t, vault.IsReference(ref))

		owner, scope, key, err := vault.ParseReference(ref)
		require.NoError(t, err)
		assert.Equal(t, id.String(), owner)
		assert.Equal(t, "acme/fs-mcp", scope)

		secret, err := vault.New().Retrieve(owner, scope, key)
		require.NoError(t, err)
		assert.Equal(t, "hunter2", secret)
	}
}

func TestCreateConfigRequiresName(t *testing.T) {
	handler := newTestAPI(newStubStore(), &stubDiscovery{})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/configs", map[string]any{"entries": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteConfigPurgesSecrets(t *testing.T) {
	store := newStubStore()
	handler := newTestAPI(store, &stubDiscovery{})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/configs", map[string]any{
		"name": "dev",
		"entries": []map[string]any{{
			"identity": "acme/fs-mcp",
			"secrets":  map[string]string{"FS_API_KEY": "hunter2"},
		}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var id uuid.UUID
	var ref string
	for cid, config := range store.configs {
		id = cid
		var entries []configEntry
		require.NoError(t, json.Unmarshal(config.Entries, &entries))
		ref = entries[0].Params["FS_API_KEY"]
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/configs/"+id.String(), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	owner, scope, key, err := vault.ParseReference(ref)
	require.NoError(t, err)
	_, err = vault.New().Retrieve(owner, scope, key)
	assert.ErrorIs(t, err, vault.ErrNotFound)
}

func TestRollbackConfigNotFound(t *testing.T) {
	handler := newTestAPI(newStubStore(), &stubDiscovery{})

	rec := doJSON(t, handler, http.MethodPost,
		"/api/v1/configs/"+uuid.NewString()+"/rollback/2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProviderStatusRoute(t *testing.T) {
	handler := newTestAPI(newStubStore(), &stubDiscovery{})

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/providers/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "repository_provider")
}

func TestHealthz(t *testing.T) {
	handler := newTestAPI(newStubStore(), &stubDiscovery{})

	rec := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
