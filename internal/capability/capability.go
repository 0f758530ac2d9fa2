// ABOUTME: Named capability handlers gated on resolved credentials
// ABOUTME: Invoke resolves the agent's secret before the handler runs

// Package capability maps connection names to executable handlers.
//
// A handler is the in-process implementation of an external capability
// (an HTTP API, a datastore, a tool). Invoke resolves the calling agent's
// credential for the connection first; handlers never see an agent whose
// authorization is incomplete.
package capability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ikailo/agentry/internal/credential"
)

// ErrNoConnectionHandler is returned when no handler is registered for a
// connection name.
var ErrNoConnectionHandler = errors.New("no handler registered for connection")

// Handler executes a capability call. secret is the resolved credential
// for the calling agent, empty when the connection needs none.
type Handler func(ctx context.Context, secret string, args map[string]string) (string, error)

// Registry holds the handler table and the credential gate.
type Registry struct {
	resolver *credential.Resolver
	logger   *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry over the given resolver.
func NewRegistry(resolver *credential.Resolver, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		resolver: resolver,
		logger:   logger.With("component", "capabilities"),
		handlers: make(map[string]Handler),
	}
}

// Register installs the handler for a connection name, replacing any
// previous one.
func (r *Registry) Register(name string, handler Handler) {
	r.mu.Lock()
	r.handlers[name] = handler
	r.mu.Unlock()
	r.logger.Debug("handler registered", "connection", name)
}

// Names returns the registered connection names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	return out
}

// Invoke resolves the agent's credential for the named connection, then
// runs the handler with the secret. Credential failures surface as the
// resolver's errors; a missing handler is ErrNoConnectionHandler.
func (r *Registry) Invoke(ctx context.Context, agentID, name string, args map[string]string) (string, error) {
	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("connection %q: %w", name, ErrNoConnectionHandler)
	}

	secret, err := r.resolver.GetCredentialForAgentByName(ctx, agentID, name)
	if err != nil {
		return "", fmt.Errorf("resolving credential for %q: %w", name, err)
	}

	r.logger.Debug("invoking capability", "agent_id", agentID, "connection", name)
	return handler(ctx, secret, args)
}
