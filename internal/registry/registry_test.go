package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drainEvents collects events until the channel stays quiet briefly.
func drainEvents(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-time.After(100 * time.Millisecond):
			return out
		}
	}
}

func TestRegistry_StartsDisconnected(t *testing.T) {
	r := New(nil)
	defer r.Close()

	assert.False(t, r.IsHostConnected("h1"))
	assert.False(t, r.IsAgentConnected("a1"))
}

func TestRegistry_MarkTransitions(t *testing.T) {
	r := New(nil)
	defer r.Close()

	r.MarkHostConnected("h1")
	assert.True(t, r.IsHostConnected("h1"))

	r.MarkHostDisconnected("h1")
	assert.False(t, r.IsHostConnected("h1"))

	r.MarkAgentConnected("a1")
	assert.True(t, r.IsAgentConnected("a1"))
	assert.False(t, r.IsAgentConnected("a2"))
}

func TestRegistry_RepeatedMarksEmitOneEvent(t *testing.T) {
	r := New(nil)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := r.SubscribeEvents(ctx)

	r.MarkAgentConnected("a1")
	r.MarkAgentConnected("a1")
	r.MarkAgentConnected("a1")

	got := drainEvents(events)
	require.Len(t, got, 1)
	assert.Equal(t, AgentConnected, got[0].Kind)
	assert.Equal(t, "a1", got[0].ID)

	// Disconnect of an id that was never connected emits nothing.
	r.MarkHostDisconnected("h-unknown")
	assert.Empty(t, drainEvents(events))
}

func TestRegistry_EventStreamCarriesAllTransitions(t *testing.T) {
	r := New(nil)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := r.SubscribeEvents(ctx)

	r.MarkHostConnected("h1")
	r.MarkAgentConnected("a1")
	r.MarkAgentDisconnected("a1")
	r.MarkHostDisconnected("h1")

	got := drainEvents(events)
	require.Len(t, got, 4)
	assert.Equal(t, HostConnected, got[0].Kind)
	assert.Equal(t, AgentConnected, got[1].Kind)
	assert.Equal(t, AgentDisconnected, got[2].Kind)
	assert.Equal(t, HostDisconnected, got[3].Kind)
}

func TestRegistry_ConnectedLists(t *testing.T) {
	r := New(nil)
	defer r.Close()

	r.MarkAgentConnected("a1")
	r.MarkAgentConnected("a2")
	r.MarkAgentDisconnected("a2")
	r.MarkHostConnected("h1")

	assert.ElementsMatch(t, []string{"a1"}, r.ConnectedAgents())
	assert.ElementsMatch(t, []string{"h1"}, r.ConnectedHosts())
}

func TestRegistry_ChatHistory(t *testing.T) {
	r := New(nil)
	defer r.Close()

	r.AppendChat("h1", ChatMessage{Sender: "person", Content: "hello"})
	r.AppendChat("h1", ChatMessage{Sender: "agent", AgentID: "a1", Content: "hi"})
	r.AppendChat("h2", ChatMessage{Sender: "person", Content: "elsewhere"})

	history := r.GetChatHistory("h1")
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, "hi", history[1].Content)
	assert.False(t, history[0].Timestamp.IsZero(), "timestamps are assigned on append")

	// The returned slice is a copy.
	history[0].Content = "mutated"
	assert.Equal(t, "hello", r.GetChatHistory("h1")[0].Content)

	assert.Empty(t, r.GetChatHistory("h3"))
}

func TestRegistry_ChatSubscriptionIsPerHost(t *testing.T) {
	r := New(nil)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := r.SubscribeChat(ctx, "h1")

	r.AppendChat("h2", ChatMessage{Sender: "person", Content: "other host"})
	r.AppendChat("h1", ChatMessage{Sender: "person", Content: "mine"})

	select {
	case msg := <-ch:
		assert.Equal(t, "mine", msg.Content)
	case <-time.After(time.Second):
		t.Fatal("expected a chat message")
	}

	select {
	case msg := <-ch:
		t.Fatalf("unexpected message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroadcaster[int](nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := b.Subscribe(ctx, "k")

	// Never read: publishing past the buffer must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize*2; i++ {
			b.Publish("k", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	assert.Len(t, ch, subscriberBufferSize)
}

func TestBroadcaster_UnsubscribeOnContextCancel(t *testing.T) {
	b := NewBroadcaster[string](nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, "k")
	cancel()

	// The channel closes once the cancellation is observed.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel was not closed after context cancel")
		}
	}
}
