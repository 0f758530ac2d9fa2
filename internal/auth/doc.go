// Package auth covers both halves of caller identity: signed person
// tokens for the management API and shared secrets for hosts.
//
// Person tokens are HS256 JWTs carrying the person id as subject. The
// HTTP middleware verifies the bearer token, confirms the person still
// exists, and stashes the id in the request context for handlers to
// scope their store access with.
//
// Host secrets are random values generated once at registration; only
// the bcrypt hash is stored, so a leaked database never reveals a
// secret.
package auth
