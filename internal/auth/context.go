// ABOUTME: Request-context plumbing for the authenticated person id

package auth

import "context"

type contextKey string

const personIDKey contextKey = "person_id"

// WithPersonID returns a context carrying the authenticated person id.
func WithPersonID(ctx context.Context, personID string) context.Context {
	return context.WithValue(ctx, personIDKey, personID)
}

// PersonID extracts the authenticated person id from the context.
func PersonID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(personIDKey).(string)
	return id, ok && id != ""
}
