// Package registry tracks live connectivity of hosts and agents.
//
// # Overview
//
// The Registry keeps a per-id connected/disconnected flag for every host
// and agent, plus the accumulated chat history per host. Each id has its
// own entry with its own lock, so unrelated hosts and agents never
// serialize against each other.
//
// # Notifications
//
// Every state change emits exactly one Event to subscribers; repeated
// marks in the same state are no-ops. Delivery is fan-out over buffered
// channels and drops for slow subscribers, so a bad observer can never
// block a connect or disconnect.
//
// The same Broadcaster type backs the chat and log relays in the router
// package, keyed by host or agent id.
package registry
