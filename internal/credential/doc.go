// Package credential resolves per-agent secrets for external capabilities.
//
// A credential record exists per (agent, connection) pair and advances
// monotonically during an authorization attempt:
//
//	NoAuthorizer -> NoCredential -> Authorized -> Complete
//
// Lookups succeed only at NoAuthorizer (nothing to resolve) and Complete
// (a usable secret exists); every other state fails fast with an
// UnresolvedError naming the current state so callers can start the
// external authorization flow out-of-band. The resolver never runs an
// interactive flow itself and never retries.
package credential
