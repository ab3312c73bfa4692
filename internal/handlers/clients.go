package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xelth-com/proxyfleet/internal/models"
	"github.com/xelth-com/proxyfleet/internal/store"
)

// BlacklistRequest is the payload for adding a proxy to a client's blacklist
type BlacklistRequest struct {
	ProxyID string `json:"proxy_id"`
}

// visibleProxies returns the client's pool: active proxies minus blacklist,
// with the client's default flagged.
func (r *Router) visibleProxies(ctx context.Context, client *models.Client) ([]ProxyResponse, error) {
	proxies, err := r.proxies.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	blacklisted, err := r.clients.BlacklistedIDs(ctx, client)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(blacklisted))
	for _, id := range blacklisted {
		excluded[id] = true
	}

	out := make([]ProxyResponse, 0, len(proxies))
	for i := range proxies {
		if excluded[proxies[i].ID] {
			continue
		}
		resp := serializeProxy(&proxies[i])
		isDefault := client.DefaultProxyID != nil && *client.DefaultProxyID == proxies[i].ID
		resp.ClientDefault = &isDefault
		out = append(out, resp)
	}
	return out, nil
}

// getClientProxies returns the visible proxy pool for a client, creating the
// client on first lookup.
func (r *Router) getClientProxies(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]

	client, err := r.clients.GetOrCreateByName(req.Context(), name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch client")
		return
	}

	proxies, err := r.visibleProxies(req.Context(), client)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch proxies")
		return
	}
	respondJSON(w, http.StatusOK, proxies)
}

// blacklistProxy adds one proxy to the client's blacklist. The client's
// default proxy can't be blacklisted.
func (r *Router) blacklistProxy(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]

	var body BlacklistRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	client, err := r.clients.GetOrCreateByName(req.Context(), name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch client")
		return
	}

	proxy, err := r.proxies.GetByID(req.Context(), body.ProxyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Proxy not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to fetch proxy")
		return
	}

	if client.DefaultProxyID != nil && *client.DefaultProxyID == proxy.ID {
		respondError(w, http.StatusBadRequest, "You can't blacklist default proxy")
		return
	}

	if err := r.clients.AddBlacklist(req.Context(), client, proxy); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update blacklist")
		return
	}

	proxies, err := r.visibleProxies(req.Context(), client)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch proxies")
		return
	}
	respondJSON(w, http.StatusOK, proxies)
}
