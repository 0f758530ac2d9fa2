// Package router delivers messages between persons and their connected
// agents and hosts.
//
// Delivery runs over a caller-supplied Transport; the router adds the
// connectivity gate (no sends to disconnected peers), correlation of
// prompt replies, and the per-prompt timeout. Replies that arrive after
// a prompt has timed out or been cancelled are dropped silently.
//
// The package also carries the log relay: a slog.Handler that republishes
// records tagged with an agent id to stream subscribers, so operators can
// watch one agent's log output live.
package router
