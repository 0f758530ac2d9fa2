// ABOUTME: In-process Transport for single-binary deployments and tests
// ABOUTME: Prompts run through a Responder; replies feed back asynchronously

package router

import (
	"context"
	"log/slog"
	"sync"
)

// Responder produces an agent's reply to a prompt in-process.
type Responder func(ctx context.Context, agentID, content string) (string, error)

// Loopback is a Transport for deployments where agents run inside the
// same process. Host messages are retained for inspection; agent prompts
// run through the Responder on a fresh goroutine and the reply is fed
// back through BindReplies.
type Loopback struct {
	responder Responder
	logger    *slog.Logger

	mu           sync.Mutex
	replies      func(correlationID, content string)
	hostMessages map[string][]HostMessage
}

// NewLoopback creates a loopback transport. A nil responder echoes the
// prompt content back unchanged.
func NewLoopback(responder Responder, logger *slog.Logger) *Loopback {
	if responder == nil {
		responder = func(_ context.Context, _, content string) (string, error) {
			return content, nil
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loopback{
		responder:    responder,
		logger:       logger.With("component", "loopback"),
		hostMessages: make(map[string][]HostMessage),
	}
}

// BindReplies wires the reply sink, normally Router.HandleReply. Must be
// called before the first SendToAgent.
func (l *Loopback) BindReplies(fn func(correlationID, content string)) {
	l.mu.Lock()
	l.replies = fn
	l.mu.Unlock()
}

func (l *Loopback) SendToHost(_ context.Context, hostID string, msg HostMessage) error {
	l.mu.Lock()
	l.hostMessages[hostID] = append(l.hostMessages[hostID], msg)
	l.mu.Unlock()
	return nil
}

func (l *Loopback) SendToAgent(ctx context.Context, agentID string, prompt AgentPrompt) error {
	l.mu.Lock()
	replies := l.replies
	l.mu.Unlock()

	go func() {
		content, err := l.responder(ctx, agentID, prompt.Content)
		if err != nil {
			l.logger.Warn("responder failed", "agent_id", agentID, "error", err)
			return
		}
		if replies != nil {
			replies(prompt.CorrelationID, content)
		}
	}()
	return nil
}

// HostMessages returns a copy of the messages delivered to a host.
func (l *Loopback) HostMessages(hostID string) []HostMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]HostMessage, len(l.hostMessages[hostID]))
	copy(out, l.hostMessages[hostID])
	return out
}
