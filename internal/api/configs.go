package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mcpwizard/mcpwizard/internal/database"
	"github.com/mcpwizard/mcpwizard/internal/vault"
)

// configEntry is one selected catalog entry inside a config payload.
// Callers put secret values under "secrets"; the API moves them into
// the vault and persists references in their place.
type configEntry struct {
	Identity string            `json:"identity"`
	Params   map[string]string `json:"params,omitempty"`
	Secrets  map[string]string `json:"secrets,omitempty"`
}

type configPayload struct {
	Name    string        `json:"name"`
	Entries []configEntry `json:"entries"`
}

// sealSecrets vaults every secret value and rewrites it as a reference
// under params. After sealing, the payload holds no secret material.
func (a *API) sealSecrets(owner uuid.UUID, entries []configEntry) error {
	for i := range entries {
		e := &entries[i]
		if len(e.Secrets) == 0 {
			continue
		}
		if a.vault == nil {
			return fmt.Errorf("secret storage is not configured")
		}
		if e.Params == nil {
			e.Params = make(map[string]string, len(e.Secrets))
		}
		for key, value := range e.Secrets {
			if err := a.vault.Store(owner.String(), e.Identity, key, value); err != nil {
				return err
			}
			e.Params[key] = vault.Reference(owner.String(), e.Identity, key)
		}
		e.Secrets = nil
	}
	return nil
}

// purgeSecrets removes every vault reference held by a stored config.
// Best-effort: a failed delete is logged, not fatal.
func (a *API) purgeSecrets(config *database.UserConfig) {
	if a.vault == nil || config == nil {
		return
	}
	var entries []configEntry
	if err := json.Unmarshal(config.Entries, &entries); err != nil {
		return
	}
	for _, e := range entries {
		for _, value := range e.Params {
			if !vault.IsReference(value) {
				continue
			}
			owner, scope, key, err := vault.ParseReference(value)
			if err != nil {
				continue
			}
			if err := a.vault.Delete(owner, scope, key); err != nil {
				a.logger.Warn("vault cleanup failed", zap.String("ref", value), zap.Error(err))
			}
		}
	}
}

// createConfig handles POST /api/v1/configs.
func (a *API) createConfig(w http.ResponseWriter, r *http.Request) {
	var payload configPayload
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON")
		return
	}
	if strings.TrimSpace(payload.Name) == "" {
		respondError(w, http.StatusBadRequest, "missing_name", "Field 'name' is required")
		return
	}

	// The id is assigned here so vaulted secrets can be addressed by it
	// before the row exists.
	id := uuid.New()
	if err := a.sealSecrets(id, payload.Entries); err != nil {
		respondError(w, http.StatusInternalServerError, "vault_error", err.Error())
		return
	}

	entries, err := json.Marshal(payload.Entries)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "encode_error", err.Error())
		return
	}

	config := &database.UserConfig{ID: id, Name: payload.Name, Entries: entries}
	if err := a.store.CreateConfig(r.Context(), config); err != nil {
		respondError(w, http.StatusInternalServerError, "database_error", err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, Response{Data: config})
}

// listConfigs handles GET /api/v1/configs.
func (a *API) listConfigs(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePagination(r)

	configs, total, err := a.store.ListConfigs(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database_error", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Data: configs,
		Meta: &Meta{
			Total:   total,
			Page:    page,
			PerPage: perPage,
		},
	})
}

// getConfig handles GET /api/v1/configs/{id}.
func (a *API) getConfig(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid config ID")
		return
	}

	config, err := a.store.GetConfig(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database_error", err.Error())
		return
	}
	if config == nil {
		respondError(w, http.StatusNotFound, "not_found", "Config not found")
		return
	}

	respondJSON(w, http.StatusOK, Response{Data: config})
}

// updateConfig handles PUT /api/v1/configs/{id}. Every update writes a
// version snapshot.
func (a *API) updateConfig(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid config ID")
		return
	}

	var payload configPayload
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON")
		return
	}
	if strings.TrimSpace(payload.Name) == "" {
		respondError(w, http.StatusBadRequest, "missing_name", "Field 'name' is required")
		return
	}

	if err := a.sealSecrets(id, payload.Entries); err != nil {
		respondError(w, http.StatusInternalServerError, "vault_error", err.Error())
		return
	}

	entries, err := json.Marshal(payload.Entries)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "encode_error", err.Error())
		return
	}

	config, err := a.store.UpdateConfig(r.Context(), id, payload.Name, entries)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database_error", err.Error())
		return
	}
	if config == nil {
		respondError(w, http.StatusNotFound, "not_found", "Config not found")
		return
	}

	respondJSON(w, http.StatusOK, Response{Data: config})
}

// deleteConfig handles DELETE /api/v1/configs/{id}. Vaulted secrets
// referenced by the config are removed with it.
func (a *API) deleteConfig(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid config ID")
		return
	}

	config, err := a.store.GetConfig(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database_error", err.Error())
		return
	}
	if config == nil {
		respondError(w, http.StatusNotFound, "not_found", "Config not found")
		return
	}

	a.purgeSecrets(config)

	if _, err := a.store.DeleteConfig(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "database_error", err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// listConfigVersions handles GET /api/v1/configs/{id}/versions.
func (a *API) listConfigVersions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid config ID")
		return
	}

	page, perPage := parsePagination(r)

	versions, total, err := a.store.ListVersions(r.Context(), id, perPage, (page-1)*perPage)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database_error", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Data: versions,
		Meta: &Meta{
			Total:   total,
			Page:    page,
			PerPage: perPage,
		},
	})
}

// rollbackConfig handles POST /api/v1/configs/{id}/rollback/{version}.
func (a *API) rollbackConfig(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid config ID")
		return
	}

	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		respondError(w, http.StatusBadRequest, "invalid_version", "Invalid version number")
		return
	}

	config, err := a.store.RollbackConfig(r.Context(), id, version)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database_error", err.Error())
		return
	}
	if config == nil {
		respondError(w, http.StatusNotFound, "not_found", "Config or version not found")
		return
	}

	respondJSON(w, http.StatusOK, Response{Data: config})
}
