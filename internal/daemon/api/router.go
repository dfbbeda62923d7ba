// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api provides the HTTP API for the daemon.
package api

import (
	"log/slog"
	"net/http"

	"github.com/tombee/hearth/internal/daemon/httputil"
	"github.com/tombee/hearth/internal/log"
)

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	Version   string
	Commit    string
	BuildDate string
}

// RouteRegistrar is implemented by every handler group.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Router wraps an http.ServeMux with request logging.
type Router struct {
	mux     *http.ServeMux
	config  RouterConfig
	handler http.Handler
	logger  *slog.Logger
}

// NewRouter creates a new HTTP router with the health and version endpoints
// registered. Handler groups are added with Register.
func NewRouter(cfg RouterConfig, logger *slog.Logger) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		config: cfg,
		logger: log.WithComponent(logger, "api"),
	}

	r.mux.HandleFunc("GET /v1/health", r.handleHealth)
	r.mux.HandleFunc("GET /v1/version", r.handleVersion)

	// Root endpoint for basic connectivity check
	r.mux.HandleFunc("GET /{$}", r.handleRoot)

	r.handler = log.HTTPMiddleware(r.logger)(r.mux)
	return r
}

// Register adds the routes of each handler group.
func (r *Router) Register(groups ...RouteRegistrar) {
	for _, g := range groups {
		g.RegisterRoutes(r.mux)
	}
}

// SetMetricsHandler exposes a Prometheus metrics endpoint.
func (r *Router) SetMetricsHandler(handler http.Handler) {
	if handler != nil {
		r.mux.Handle("GET /metrics", handler)
	}
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// Mux returns the underlying ServeMux for registering additional routes.
func (r *Router) Mux() *http.ServeMux {
	return r.mux
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *Router) handleVersion(w http.ResponseWriter, req *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"version":    r.config.Version,
		"commit":     r.config.Commit,
		"build_date": r.config.BuildDate,
	})
}

// handleRoot handles GET / for basic connectivity.
func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"name":    "hearthd",
		"version": r.config.Version,
	})
}
