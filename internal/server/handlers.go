package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/bobmcallan/ledgerd/internal/common"
	"github.com/bobmcallan/ledgerd/internal/interfaces"
	"github.com/bobmcallan/ledgerd/internal/services/syncer"
)

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": common.GetFullVersion(),
		"uptime":  time.Since(s.app.StartupTime).Round(time.Second).String(),
	})
}

// handleVersion handles GET /api/version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.Version,
		"build":   common.Build,
		"commit":  common.GitCommit,
	})
}

// handleSyncCreate handles POST /api/syncs. The sync runs to completion
// before responding; re-running a finished sync is safe because every
// import is idempotent.
func (s *Server) handleSyncCreate(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		ConnectionID string `json:"connection_id"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.ConnectionID == "" {
		WriteError(w, http.StatusBadRequest, "connection_id is required")
		return
	}

	syncRec, err := s.app.SyncService.Run(r.Context(), req.ConnectionID)
	if err != nil {
		switch {
		case errors.Is(err, syncer.ErrSyncInFlight):
			WriteError(w, http.StatusConflict, "Sync already in flight for this connection")
		case errors.Is(err, interfaces.ErrNotFound):
			WriteError(w, http.StatusNotFound, "Connection not found")
		case syncRec != nil:
			// The sync ran and failed; the record carries the error.
			WriteJSON(w, http.StatusOK, syncRec)
		default:
			WriteError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	WriteJSON(w, http.StatusOK, syncRec)
}

// routeSyncs handles GET /api/syncs/{id}.
func (s *Server) routeSyncs(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id := pathSuffix(r.URL.Path, "/api/syncs/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Sync ID is required")
		return
	}

	syncRec, err := s.app.Storage.Syncs().Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Sync not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, syncRec)
}

// handleAccountList handles GET /api/accounts.
func (s *Server) handleAccountList(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	accounts, err := s.app.Storage.Accounts().List(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// handleConnectionList handles GET /api/connections.
func (s *Server) handleConnectionList(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	conns, err := s.app.Storage.Providers().ListConnections(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"connections": conns,
		"count":       len(conns),
	})
}

// routeLinks handles DELETE /api/links/{id}, detaching a provider link
// from its account while keeping historic holdings.
func (s *Server) routeLinks(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	id := pathSuffix(r.URL.Path, "/api/links/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Link ID is required")
		return
	}

	if err := s.app.SyncService.UnlinkAccount(r.Context(), id); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Link not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "unlinked"})
}
