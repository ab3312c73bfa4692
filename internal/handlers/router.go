package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xelth-com/proxyfleet/internal/buildinfo"
	"github.com/xelth-com/proxyfleet/internal/config"
	"github.com/xelth-com/proxyfleet/internal/lifecycle"
	"github.com/xelth-com/proxyfleet/internal/middleware"
	"github.com/xelth-com/proxyfleet/internal/store"
)

// Router wraps the mux router and the services the REST facade calls into
type Router struct {
	*mux.Router
	cfg     *config.Config
	proxies store.ProxyStore
	clients store.ClientStore
	users   store.UserStore
	orch    *lifecycle.Orchestrator
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(
	cfg *config.Config,
	proxies store.ProxyStore,
	clients store.ClientStore,
	users store.UserStore,
	orch *lifecycle.Orchestrator,
) *Router {
	r := &Router{
		Router:  mux.NewRouter(),
		cfg:     cfg,
		proxies: proxies,
		clients: clients,
		users:   users,
		orch:    orch,
	}

	// Health check and metrics
	r.HandleFunc("/health", r.healthCheck).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Auth routes
	r.HandleFunc("/auth/login", r.login).Methods("POST")

	// API routes (bearer token or operator JWT)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(cfg.APIToken, cfg.JWTSecret))
	api.HandleFunc("/proxies", r.listProxies).Methods("GET")
	api.HandleFunc("/proxies", r.createProxy).Methods("POST")
	api.HandleFunc("/proxies/{id}", r.deleteProxy).Methods("DELETE")
	api.HandleFunc("/client/{name}", r.getClientProxies).Methods("GET")
	api.HandleFunc("/client/{name}", r.blacklistProxy).Methods("PUT")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"commit":     buildinfo.CommitHash,
		"built_at":   buildinfo.BuildTime,
		"started_at": buildinfo.StartTime,
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
