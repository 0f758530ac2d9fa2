// ABOUTME: Live log relay: slog.Handler fan-out of agent-tagged records
// ABOUTME: Subscribers stream one agent's entries; slow readers drop

package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/ikailo/agentry/internal/registry"
)

// LogEntry is one relayed log record from an agent's activity.
type LogEntry struct {
	AgentID   string    `json:"agent_id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// LogRelay republishes agent-tagged log records to live subscribers,
// keyed by agent id.
type LogRelay struct {
	broadcaster *registry.Broadcaster[LogEntry]
}

// NewLogRelay creates an empty relay.
func NewLogRelay(logger *slog.Logger) *LogRelay {
	return &LogRelay{broadcaster: registry.NewBroadcaster[LogEntry](logger)}
}

// Publish delivers an entry to subscribers of its agent. Entries without
// an agent id are ignored.
func (l *LogRelay) Publish(entry LogEntry) {
	if entry.AgentID == "" {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	l.broadcaster.Publish(entry.AgentID, entry)
}

// Subscribe streams entries for one agent until ctx ends.
func (l *LogRelay) Subscribe(ctx context.Context, agentID string) <-chan LogEntry {
	ch, _ := l.broadcaster.Subscribe(ctx, agentID)
	return ch
}

// Close releases all subscriber channels.
func (l *LogRelay) Close() {
	l.broadcaster.Close()
}

// RelayHandler is a slog.Handler that forwards records carrying an
// "agent_id" attribute to a LogRelay, then hands the record to the next
// handler. Records without the attribute pass through untouched.
type RelayHandler struct {
	next  slog.Handler
	relay *LogRelay

	// agentID is set when WithAttrs pinned an agent id on this handler.
	agentID string
}

// NewRelayHandler wraps next so agent-tagged records also reach relay.
func NewRelayHandler(next slog.Handler, relay *LogRelay) *RelayHandler {
	return &RelayHandler{next: next, relay: relay}
}

func (h *RelayHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RelayHandler) Handle(ctx context.Context, record slog.Record) error {
	agentID := h.agentID
	if agentID == "" {
		record.Attrs(func(a slog.Attr) bool {
			if a.Key == "agent_id" {
				agentID = a.Value.String()
				return false
			}
			return true
		})
	}

	if agentID != "" {
		h.relay.Publish(LogEntry{
			AgentID:   agentID,
			Level:     record.Level.String(),
			Message:   record.Message,
			Timestamp: record.Time,
		})
	}

	return h.next.Handle(ctx, record)
}

func (h *RelayHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	for _, a := range attrs {
		if a.Key == "agent_id" {
			clone.agentID = a.Value.String()
		}
	}
	return &clone
}

func (h *RelayHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)
	return &clone
}
