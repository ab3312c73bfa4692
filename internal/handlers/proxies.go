package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/xelth-com/proxyfleet/internal/lifecycle"
	"github.com/xelth-com/proxyfleet/internal/models"
	"github.com/xelth-com/proxyfleet/internal/store"
)

// triggerTimeout bounds the async provider calls fired after a commit
const triggerTimeout = 60 * time.Second

// ProxyResponse is the public representation of a proxy
type ProxyResponse struct {
	ID            string          `json:"id"`
	ServerID      *int64          `json:"server_id"`
	Name          string          `json:"name"`
	IPAddress     *string         `json:"ip_address"`
	Provider      models.Provider `json:"provider"`
	ClientDefault *bool           `json:"client_default,omitempty"`
}

// CreateProxyRequest is the payload for creating a proxy
type CreateProxyRequest struct {
	Provider models.Provider `json:"provider"`
	Name     string          `json:"name"`
	Alias    string          `json:"alias"`
}

func serializeProxy(p *models.Proxy) ProxyResponse {
	return ProxyResponse{
		ID:        p.ID,
		ServerID:  p.ServerID,
		Name:      p.Name,
		IPAddress: p.IPAddress,
		Provider:  p.Provider,
	}
}

func serializeProxies(proxies []models.Proxy) []ProxyResponse {
	out := make([]ProxyResponse, 0, len(proxies))
	for i := range proxies {
		out = append(out, serializeProxy(&proxies[i]))
	}
	return out
}

// listProxies returns all active proxies
func (r *Router) listProxies(w http.ResponseWriter, req *http.Request) {
	proxies, err := r.proxies.ListActive(req.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch proxies")
		return
	}
	respondJSON(w, http.StatusOK, serializeProxies(proxies))
}

// createProxy commits a new proxy row and triggers the provider create
// asynchronously. The trigger only runs once the row is durably committed,
// so a crash in between leaves a row the next sweep picks up.
func (r *Router) createProxy(w http.ResponseWriter, req *http.Request) {
	var body CreateProxyRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !body.Provider.Valid() {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Unknown provider %q", body.Provider))
		return
	}

	if err := r.orch.CheckQuota(req.Context(), body.Provider, ""); err != nil {
		if errors.Is(err, lifecycle.ErrQuotaExceeded) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to check quota")
		return
	}

	proxy := &models.Proxy{
		Name:     body.Name,
		Alias:    body.Alias,
		Provider: body.Provider,
	}
	if err := r.proxies.Create(req.Context(), proxy); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create proxy")
		return
	}

	// Snapshot the committed row for the response; the trigger goroutine
	// works on its own copy and persists through the store.
	resp := serializeProxy(proxy)
	trigger := *proxy

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
		defer cancel()
		if err := r.orch.CreateServer(ctx, &trigger); err != nil {
			log.Errorf("create trigger for proxy %s failed: %v", trigger.Name, err)
		}
	}()

	respondJSON(w, http.StatusCreated, resp)
}

// deleteProxy removes the row, commits, then triggers the provider delete.
// A proxy that is some client's default is protected from deletion.
func (r *Router) deleteProxy(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	proxy, err := r.proxies.GetByID(req.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Proxy not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to fetch proxy")
		return
	}

	isDefault, err := r.clients.IsDefaultForAnyClient(req.Context(), proxy.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to check proxy references")
		return
	}
	if isDefault {
		respondError(w, http.StatusBadRequest, "Proxy is a client's default and can't be deleted")
		return
	}

	if err := r.proxies.Delete(req.Context(), proxy.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete proxy")
		return
	}

	if proxy.ServerID != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
			defer cancel()
			if err := r.orch.DeleteServer(ctx, proxy); err != nil {
				log.Errorf("delete trigger for proxy %s failed: %v", proxy.Name, err)
			}
		}()
	}

	w.WriteHeader(http.StatusNoContent)
}
