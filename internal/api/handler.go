// Copyright (c) 2026 John Earle
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

// Package api serves the scanner's HTTP surface: triggering a scan for the
// signed-in account and reading back the stored insights and clients.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/clientpulse/scanner/internal/scan"
	"github.com/clientpulse/scanner/internal/store"
)

// Scanner runs a pipeline for one account.
type Scanner interface {
	Run(ctx context.Context, accountID string) (*scan.Result, error)
}

// Reader exposes stored insights and clients.
type Reader interface {
	ListInsights(ctx context.Context, accountID string, limit int, clientID *int64) ([]store.InsightRow, error)
	ListClients(ctx context.Context, accountID string) ([]store.Client, error)
}

// Authenticator resolves the account behind a request.
type Authenticator interface {
	AccountID(r *http.Request) (string, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error               string `json:"error"`
	CommunicationsCount *int   `json:"communications_count,omitempty"`
	InsightsCount       *int   `json:"insights_count,omitempty"`
}

// Handler serves the API routes.
type Handler struct {
	scanner Scanner
	reader  Reader
	auth    Authenticator
	health  []HealthCheck
}

// NewHandler creates an API handler.
func NewHandler(scanner Scanner, reader Reader, auth Authenticator, health ...HealthCheck) *Handler {
	return &Handler{scanner: scanner, reader: reader, auth: auth, health: health}
}

// Routes returns the mux with every route registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/scan", h.ServeScan)
	mux.HandleFunc("GET /api/insights", h.ServeInsights)
	mux.HandleFunc("GET /api/clients", h.ServeClients)
	mux.HandleFunc("POST /api/clients", h.ServeCreateClient)
	mux.HandleFunc("GET /health", h.ServeHealth)
	return recoverPanics(mux)
}

// ServeScan runs a scan for the signed-in account.
//
// Status codes:
//   - 200 with the run result, including zero-result runs
//   - 401 when no valid session is present
//   - 502 when the analysis call failed
//   - 500 for anything else
func (h *Handler) ServeScan(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.account(w, r)
	if !ok {
		return
	}

	res, err := h.scanner.Run(r.Context(), accountID)
	if err != nil {
		writeScanError(w, accountID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ServeInsights lists the account's open insights, newest first.
func (h *Handler) ServeInsights(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.account(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit := 20
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid limit"})
			return
		}
		limit = min(n, 100)
	}

	var clientID *int64
	if raw := q.Get("client_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid client_id"})
			return
		}
		clientID = &id
	}

	rows, err := h.reader.ListInsights(r.Context(), accountID, limit, clientID)
	if err != nil {
		slog.Error("list insights failed", "account_id", accountID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to fetch insights"})
		return
	}
	if rows == nil {
		rows = []store.InsightRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": rows})
}

// ServeClients lists the account's clients.
func (h *Handler) ServeClients(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.account(w, r)
	if !ok {
		return
	}

	clients, err := h.reader.ListClients(r.Context(), accountID)
	if err != nil {
		slog.Error("list clients failed", "account_id", accountID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to fetch clients"})
		return
	}
	if clients == nil {
		clients = []store.Client{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
}

// ServeCreateClient is not supported: clients are derived from
// communications.
func (h *Handler) ServeCreateClient(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.account(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusNotImplemented, errorBody{Error: "Client creation is not supported"})
}

// ServeHealth runs every health check and reports the first failure.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	for _, hc := range h.health {
		if err := hc.Check(r.Context()); err != nil {
			slog.Warn("health check failed", "dependency", hc.Name, "error", err)
			http.Error(w, hc.Name+" unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) account(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID, err := h.auth.AccountID(r)
	if err != nil || accountID == "" {
		slog.Debug("rejecting unauthenticated request", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
		return "", false
	}
	return accountID, true
}

func writeScanError(w http.ResponseWriter, accountID string, err error) {
	var ae *scan.AnalysisError
	switch {
	case errors.Is(err, scan.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
	case errors.As(err, &ae):
		n, zero := ae.CommunicationsCount, 0
		writeJSON(w, http.StatusBadGateway, errorBody{
			Error:               "Analysis failed",
			CommunicationsCount: &n,
			InsightsCount:       &zero,
		})
	default:
		slog.Error("scan failed", "account_id", accountID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to scan communications"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("handler panic", "path", r.URL.Path, "panic", rec)
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Serve starts the API server on the given port. It binds the port
// immediately and signals readiness via the returned channel before
// accepting connections. The server shuts down when ctx is cancelled.
func Serve(ctx context.Context, port int, handler http.Handler) (<-chan struct{}, error) {
	server := &http.Server{
		Handler:     handler,
		ReadTimeout: 10 * time.Second,
		// Scans include one long analysis call.
		WriteTimeout: 5 * time.Minute,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind api port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("api server shutdown error", "error", err)
		}
	}()

	go func() {
		slog.Info("api server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("api server error", "error", err)
		}
	}()

	return ready, nil
}
