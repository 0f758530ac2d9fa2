// ABOUTME: Live connectivity state for hosts and agents with per-id locking
// ABOUTME: Idempotent mark transitions, connect/disconnect events, host chat history

package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventKind identifies a connectivity transition.
type EventKind string

const (
	HostConnected     EventKind = "host_connected"
	HostDisconnected  EventKind = "host_disconnected"
	AgentConnected    EventKind = "agent_connected"
	AgentDisconnected EventKind = "agent_disconnected"
)

// Event is a single connectivity notification. It carries the id only.
type Event struct {
	Kind EventKind
	ID   string
}

// ChatMessage is one entry in a host's accumulated chat record.
type ChatMessage struct {
	AgentID   string    `json:"agent_id,omitempty"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// eventsKey is the broadcaster key for the global connectivity stream.
const eventsKey = "*"

// hostEntry holds the mutable state for one host id.
type hostEntry struct {
	mu        sync.Mutex
	connected bool
	history   []ChatMessage
}

// agentEntry holds the mutable state for one agent id.
type agentEntry struct {
	mu        sync.Mutex
	connected bool
}

// Registry tracks which hosts and agents are currently connected. The
// outer lock guards only the entry maps; each entry carries its own lock
// so transitions for unrelated ids proceed concurrently.
type Registry struct {
	mu     sync.RWMutex
	hosts  map[string]*hostEntry
	agents map[string]*agentEntry

	events *Broadcaster[Event]
	chat   *Broadcaster[ChatMessage]
	logger *slog.Logger
}

// New creates an empty registry. Every id starts Disconnected.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "registry")
	return &Registry{
		hosts:  make(map[string]*hostEntry),
		agents: make(map[string]*agentEntry),
		events: NewBroadcaster[Event](logger),
		chat:   NewBroadcaster[ChatMessage](logger),
		logger: logger,
	}
}

func (r *Registry) hostEntry(hostID string) *hostEntry {
	r.mu.RLock()
	e, ok := r.hosts[hostID]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.hosts[hostID]; ok {
		return e
	}
	e = &hostEntry{}
	r.hosts[hostID] = e
	return e
}

func (r *Registry) agentEntry(agentID string) *agentEntry {
	r.mu.RLock()
	e, ok := r.agents[agentID]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.agents[agentID]; ok {
		return e
	}
	e = &agentEntry{}
	r.agents[agentID] = e
	return e
}

// IsHostConnected reports whether the host is currently connected.
func (r *Registry) IsHostConnected(hostID string) bool {
	e := r.hostEntry(hostID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// IsAgentConnected reports whether the agent is currently connected.
func (r *Registry) IsAgentConnected(agentID string) bool {
	e := r.agentEntry(agentID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// MarkHostConnected transitions the host to Connected. Repeated marks in
// the same state are no-ops and emit nothing.
func (r *Registry) MarkHostConnected(hostID string) {
	e := r.hostEntry(hostID)
	e.mu.Lock()
	changed := !e.connected
	e.connected = true
	e.mu.Unlock()

	if changed {
		r.logger.Info("host connected", "host_id", hostID)
		r.events.Publish(eventsKey, Event{Kind: HostConnected, ID: hostID})
	}
}

// MarkHostDisconnected transitions the host to Disconnected.
func (r *Registry) MarkHostDisconnected(hostID string) {
	e := r.hostEntry(hostID)
	e.mu.Lock()
	changed := e.connected
	e.connected = false
	e.mu.Unlock()

	if changed {
		r.logger.Info("host disconnected", "host_id", hostID)
		r.events.Publish(eventsKey, Event{Kind: HostDisconnected, ID: hostID})
	}
}

// MarkAgentConnected transitions the agent to Connected.
func (r *Registry) MarkAgentConnected(agentID string) {
	e := r.agentEntry(agentID)
	e.mu.Lock()
	changed := !e.connected
	e.connected = true
	e.mu.Unlock()

	if changed {
		r.logger.Info("agent connected", "agent_id", agentID)
		r.events.Publish(eventsKey, Event{Kind: AgentConnected, ID: agentID})
	}
}

// MarkAgentDisconnected transitions the agent to Disconnected.
func (r *Registry) MarkAgentDisconnected(agentID string) {
	e := r.agentEntry(agentID)
	e.mu.Lock()
	changed := e.connected
	e.connected = false
	e.mu.Unlock()

	if changed {
		r.logger.Info("agent disconnected", "agent_id", agentID)
		r.events.Publish(eventsKey, Event{Kind: AgentDisconnected, ID: agentID})
	}
}

// AppendChat records a chat message for a host and notifies chat
// observers of that host. The history is append-only and time-ordered by
// arrival.
func (r *Registry) AppendChat(hostID string, msg ChatMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	e := r.hostEntry(hostID)
	e.mu.Lock()
	e.history = append(e.history, msg)
	e.mu.Unlock()

	r.chat.Publish(hostID, msg)
}

// GetChatHistory returns a copy of the accumulated chat record for a host.
func (r *Registry) GetChatHistory(hostID string) []ChatMessage {
	e := r.hostEntry(hostID)
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]ChatMessage, len(e.history))
	copy(out, e.history)
	return out
}

// SubscribeEvents delivers every connectivity transition until ctx ends.
func (r *Registry) SubscribeEvents(ctx context.Context) <-chan Event {
	ch, _ := r.events.Subscribe(ctx, eventsKey)
	return ch
}

// SubscribeChat delivers chat messages appended for one host until ctx
// ends.
func (r *Registry) SubscribeChat(ctx context.Context, hostID string) <-chan ChatMessage {
	ch, _ := r.chat.Subscribe(ctx, hostID)
	return ch
}

// ConnectedAgents returns the ids of all currently connected agents.
func (r *Registry) ConnectedAgents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for id, e := range r.agents {
		e.mu.Lock()
		if e.connected {
			out = append(out, id)
		}
		e.mu.Unlock()
	}
	return out
}

// ConnectedHosts returns the ids of all currently connected hosts.
func (r *Registry) ConnectedHosts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for id, e := range r.hosts {
		e.mu.Lock()
		if e.connected {
			out = append(out, id)
		}
		e.mu.Unlock()
	}
	return out
}

// Close releases all subscriber channels.
func (r *Registry) Close() {
	r.events.Close()
	r.chat.Close()
}
