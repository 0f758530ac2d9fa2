// Package api exposes the management HTTP surface.
//
// Entity routes funnel strictly through the ownership-scoped store
// operations, so a caller can only ever read or mutate records their
// person owns (plus shared public records, read-only in effect since
// updates re-check ownership). Interaction routes sit on top of the
// router and registry: prompting an agent, informing a host, reading
// chat history, and streaming connectivity and log events over SSE.
//
// Every /api route requires a bearer person token; /health is open for
// probes.
package api
