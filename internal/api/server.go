// ABOUTME: HTTP management API: entity CRUD, prompts, chat, credentials
// ABOUTME: Handlers check methods manually and answer JSON

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ikailo/agentry/internal/auth"
	"github.com/ikailo/agentry/internal/capability"
	"github.com/ikailo/agentry/internal/credential"
	"github.com/ikailo/agentry/internal/registry"
	"github.com/ikailo/agentry/internal/router"
	"github.com/ikailo/agentry/internal/store"
)

// Server holds the handler dependencies.
type Server struct {
	stores   *store.Stores
	registry *registry.Registry
	router   *router.Router
	resolver *credential.Resolver
	caps     *capability.Registry
	relay    *router.LogRelay
	logger   *slog.Logger
}

// New creates the API server.
func New(stores *store.Stores, reg *registry.Registry, rt *router.Router, resolver *credential.Resolver, caps *capability.Registry, relay *router.LogRelay, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		stores:   stores,
		registry: reg,
		router:   rt,
		resolver: resolver,
		caps:     caps,
		relay:    relay,
		logger:   logger.With("component", "api"),
	}
}

// Routes builds the full handler tree. mw guards everything under /api.
func (s *Server) Routes(mw *auth.Middleware) http.Handler {
	api := http.NewServeMux()

	registerResource(api, "hosts", s.stores.Hosts, s)
	registerResource(api, "agents", s.stores.Agents, s)
	registerResource(api, "plugins", s.stores.Plugins, s)
	registerResource(api, "connections", s.stores.Connections, s)
	registerResource(api, "authorizers", s.stores.Authorizers, s)

	api.HandleFunc("/api/prompt", s.handlePrompt)
	api.HandleFunc("/api/invoke", s.handleInvoke)
	api.HandleFunc("/api/inform/", s.handleInform)
	api.HandleFunc("/api/chat/", s.handleChatHistory)
	api.HandleFunc("/api/events", s.handleEventStream)
	api.HandleFunc("/api/logs/", s.handleLogStream)
	api.HandleFunc("/api/credentials/status", s.handleCredentialStatus)
	api.HandleFunc("/api/credentials/authorize", s.handleCredentialAuthorize)
	api.HandleFunc("/api/credentials/complete", s.handleCredentialComplete)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/api/", mw.Require(api))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PromptRequest is the JSON request body for POST /api/prompt.
type PromptRequest struct {
	AgentID string `json:"agent_id"`
	Content string `json:"content"`
}

// PromptResponse is the JSON response for POST /api/prompt.
type PromptResponse struct {
	AgentID string `json:"agent_id"`
	Reply   string `json:"reply"`
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req PromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AgentID == "" || req.Content == "" {
		s.sendJSONError(w, http.StatusBadRequest, "agent_id and content are required")
		return
	}

	// The caller must be able to see the agent before prompting it.
	personID, _ := auth.PersonID(r.Context())
	if _, err := s.stores.Agents.GetOwnedByID(r.Context(), req.AgentID, personID, true); err != nil {
		s.storeError(w, err)
		return
	}

	reply, err := s.router.PromptAgent(r.Context(), req.AgentID, req.Content)
	switch {
	case errors.Is(err, router.ErrConnectionUnavailable):
		s.sendJSONError(w, http.StatusServiceUnavailable, "agent unavailable")
		return
	case errors.Is(err, router.ErrPromptTimeout):
		s.sendJSONError(w, http.StatusGatewayTimeout, "agent did not reply in time")
		return
	case err != nil:
		s.logger.Error("prompt failed", "agent_id", req.AgentID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, PromptResponse{AgentID: req.AgentID, Reply: reply})
}

// InvokeRequest is the JSON request body for POST /api/invoke.
type InvokeRequest struct {
	AgentID    string            `json:"agent_id"`
	Connection string            `json:"connection"`
	Args       map[string]string `json:"args,omitempty"`
}

// InvokeResponse is the JSON response for POST /api/invoke.
type InvokeResponse struct {
	Result string `json:"result"`
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AgentID == "" || req.Connection == "" {
		s.sendJSONError(w, http.StatusBadRequest, "agent_id and connection are required")
		return
	}

	personID, _ := auth.PersonID(r.Context())
	if _, err := s.stores.Agents.GetOwnedByID(r.Context(), req.AgentID, personID, false); err != nil {
		s.storeError(w, err)
		return
	}

	result, err := s.caps.Invoke(r.Context(), req.AgentID, req.Connection, req.Args)
	if err != nil {
		var unresolved *credential.UnresolvedError
		switch {
		case errors.Is(err, capability.ErrNoConnectionHandler):
			s.sendJSONError(w, http.StatusNotFound, "no handler for connection")
		case errors.As(err, &unresolved):
			s.sendJSONError(w, http.StatusForbidden, unresolved.Error())
		default:
			s.storeError(w, err)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, InvokeResponse{Result: result})
}

// InformRequest is the JSON request body for POST /api/inform/{hostID}.
type InformRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleInform(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	hostID := strings.TrimPrefix(r.URL.Path, "/api/inform/")
	if hostID == "" || strings.Contains(hostID, "/") {
		s.sendJSONError(w, http.StatusBadRequest, "host id required")
		return
	}

	var req InformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		s.sendJSONError(w, http.StatusBadRequest, "content is required")
		return
	}

	personID, _ := auth.PersonID(r.Context())
	if _, err := s.stores.Hosts.GetOwnedByID(r.Context(), hostID, personID, true); err != nil {
		s.storeError(w, err)
		return
	}

	delivered := s.router.InformHost(r.Context(), hostID, req.Content)
	s.writeJSON(w, http.StatusOK, map[string]bool{"delivered": delivered})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	hostID := strings.TrimPrefix(r.URL.Path, "/api/chat/")
	if hostID == "" || strings.Contains(hostID, "/") {
		s.sendJSONError(w, http.StatusBadRequest, "host id required")
		return
	}

	personID, _ := auth.PersonID(r.Context())
	if _, err := s.stores.Hosts.GetOwnedByID(r.Context(), hostID, personID, true); err != nil {
		s.storeError(w, err)
		return
	}

	history := s.registry.GetChatHistory(hostID)
	s.writeJSON(w, http.StatusOK, map[string]any{"host_id": hostID, "messages": history})
}

// CredentialRequest is the JSON request body for the credential routes.
type CredentialRequest struct {
	AgentID    string `json:"agent_id"`
	Connection string `json:"connection"`
	Secret     string `json:"secret,omitempty"`
}

func (s *Server) credentialRequest(w http.ResponseWriter, r *http.Request) (*CredentialRequest, bool) {
	var req CredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if req.AgentID == "" || req.Connection == "" {
		s.sendJSONError(w, http.StatusBadRequest, "agent_id and connection are required")
		return nil, false
	}

	personID, _ := auth.PersonID(r.Context())
	if _, err := s.stores.Agents.GetOwnedByID(r.Context(), req.AgentID, personID, false); err != nil {
		s.storeError(w, err)
		return nil, false
	}
	return &req, true
}

func (s *Server) handleCredentialStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	agentID := r.URL.Query().Get("agent_id")
	connection := r.URL.Query().Get("connection")
	if agentID == "" || connection == "" {
		s.sendJSONError(w, http.StatusBadRequest, "agent_id and connection are required")
		return
	}

	personID, _ := auth.PersonID(r.Context())
	if _, err := s.stores.Agents.GetOwnedByID(r.Context(), agentID, personID, false); err != nil {
		s.storeError(w, err)
		return
	}

	status, err := s.resolver.Status(r.Context(), agentID, connection)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (s *Server) handleCredentialAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, ok := s.credentialRequest(w, r)
	if !ok {
		return
	}
	if req.Secret == "" {
		s.sendJSONError(w, http.StatusBadRequest, "secret is required")
		return
	}

	if err := s.resolver.Authorize(r.Context(), req.AgentID, req.Connection, req.Secret); err != nil {
		if errors.Is(err, credential.ErrInvalidTransition) {
			s.sendJSONError(w, http.StatusConflict, err.Error())
			return
		}
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCredentialComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, ok := s.credentialRequest(w, r)
	if !ok {
		return
	}

	if err := s.resolver.Complete(r.Context(), req.AgentID, req.Connection); err != nil {
		if errors.Is(err, credential.ErrInvalidTransition) {
			s.sendJSONError(w, http.StatusConflict, err.Error())
			return
		}
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// storeError maps store errors onto HTTP statuses.
func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.sendJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		s.sendJSONError(w, http.StatusConflict, "already exists")
	case errors.Is(err, store.ErrInvalidQuery), errors.Is(err, store.ErrInvalidReference):
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("store operation failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeJSON writes a JSON response body with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// pagination reads skip/take query parameters; absent values mean the
// whole result set.
func pagination(r *http.Request) (skip, take int) {
	if v := r.URL.Query().Get("skip"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			skip = n
		}
	}
	if v := r.URL.Query().Get("take"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			take = n
		}
	}
	return skip, take
}
