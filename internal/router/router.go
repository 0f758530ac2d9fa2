// ABOUTME: Routes informational messages to hosts and prompts to agents
// ABOUTME: Correlates prompt replies by id with per-prompt timeout

package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ikailo/agentry/internal/registry"
)

var (
	// ErrConnectionUnavailable is returned when the target host or agent
	// is not currently connected.
	ErrConnectionUnavailable = errors.New("connection unavailable")

	// ErrPromptTimeout is returned when no reply arrives within the
	// configured window.
	ErrPromptTimeout = errors.New("prompt timed out")
)

// DefaultPromptTimeout bounds how long PromptAgent waits for a reply
// when the router is built without an explicit timeout.
const DefaultPromptTimeout = 30 * time.Second

// HostMessage is an informational message delivered to a host.
type HostMessage struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentPrompt is a request/response message delivered to an agent. The
// reply must carry the same CorrelationID.
type AgentPrompt struct {
	CorrelationID string `json:"correlation_id"`
	Content       string `json:"content"`
}

// Transport delivers router messages to connected peers. Implementations
// own the wire; the router never assumes anything about it beyond these
// two calls returning once the message is handed off.
type Transport interface {
	SendToHost(ctx context.Context, hostID string, msg HostMessage) error
	SendToAgent(ctx context.Context, agentID string, prompt AgentPrompt) error
}

// Router gates message delivery on registry connectivity and matches
// prompt replies to waiting callers by correlation id.
type Router struct {
	registry  *registry.Registry
	transport Transport
	timeout   time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]chan string
}

// New creates a router over the given registry and transport. A zero
// timeout selects DefaultPromptTimeout.
func New(reg *registry.Registry, transport Transport, timeout time.Duration, logger *slog.Logger) *Router {
	if timeout <= 0 {
		timeout = DefaultPromptTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry:  reg,
		transport: transport,
		timeout:   timeout,
		logger:    logger.With("component", "router"),
		pending:   make(map[string]chan string),
	}
}

// InformHost delivers a one-way message to a host. Returns false without
// touching the transport when the host is disconnected or delivery fails.
func (r *Router) InformHost(ctx context.Context, hostID, content string) bool {
	if !r.registry.IsHostConnected(hostID) {
		r.logger.Debug("inform skipped, host disconnected", "host_id", hostID)
		return false
	}

	msg := HostMessage{Content: content, Timestamp: time.Now().UTC()}
	if err := r.transport.SendToHost(ctx, hostID, msg); err != nil {
		r.logger.Warn("inform delivery failed", "host_id", hostID, "error", err)
		return false
	}

	r.registry.AppendChat(hostID, registry.ChatMessage{
		Sender:    "system",
		Content:   content,
		Timestamp: msg.Timestamp,
	})
	return true
}

// PromptAgent sends a prompt to a connected agent and blocks until the
// reply arrives, the timeout elapses, or ctx is cancelled.
func (r *Router) PromptAgent(ctx context.Context, agentID, content string) (string, error) {
	if !r.registry.IsAgentConnected(agentID) {
		return "", fmt.Errorf("agent %q: %w", agentID, ErrConnectionUnavailable)
	}

	correlationID := uuid.New().String()
	replyCh := make(chan string, 1)

	r.mu.Lock()
	r.pending[correlationID] = replyCh
	r.mu.Unlock()

	// Late replies find no pending entry and are dropped.
	defer func() {
		r.mu.Lock()
		delete(r.pending, correlationID)
		r.mu.Unlock()
	}()

	prompt := AgentPrompt{CorrelationID: correlationID, Content: content}
	if err := r.transport.SendToAgent(ctx, agentID, prompt); err != nil {
		return "", fmt.Errorf("sending prompt to agent %q: %w", agentID, err)
	}

	r.logger.Debug("prompt sent", "agent_id", agentID, "correlation_id", correlationID)

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-timer.C:
		r.logger.Warn("prompt timed out", "agent_id", agentID, "correlation_id", correlationID)
		return "", fmt.Errorf("agent %q: %w", agentID, ErrPromptTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// HandleReply routes an agent's reply back to the waiting PromptAgent
// call. Unknown or duplicate correlation ids are dropped.
func (r *Router) HandleReply(correlationID, content string) {
	r.mu.Lock()
	ch, ok := r.pending[correlationID]
	if ok {
		delete(r.pending, correlationID)
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("dropped reply with no pending prompt", "correlation_id", correlationID)
		return
	}
	ch <- content
}

// PendingPrompts reports how many prompts are awaiting replies.
func (r *Router) PendingPrompts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
