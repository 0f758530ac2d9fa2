// ABOUTME: HTTP middleware verifying bearer person tokens
// ABOUTME: Confirms the person record still exists before admitting requests

package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ikailo/agentry/internal/entity"
	"github.com/ikailo/agentry/internal/store"
)

// PersonLookup confirms a person id refers to an existing record.
type PersonLookup interface {
	GetByID(ctx context.Context, id string) (*entity.Person, error)
}

// Middleware authenticates management API requests.
type Middleware struct {
	issuer  *TokenIssuer
	persons PersonLookup
	logger  *slog.Logger
}

// NewMiddleware creates the middleware over a token issuer and the
// person store.
func NewMiddleware(issuer *TokenIssuer, persons PersonLookup, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{issuer: issuer, persons: persons, logger: logger.With("component", "auth")}
}

// Require wraps next so it only runs with a valid bearer token whose
// person still exists. The person id is placed in the request context.
func (m *Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		personID, err := m.issuer.Verify(token)
		if err != nil {
			m.logger.Debug("rejected token", "error", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		// A token can outlive its person; deleted persons lose access
		// immediately.
		if _, err := m.persons.GetByID(r.Context(), personID); err != nil {
			m.logger.Warn("token for unknown person", "person_id", personID)
			http.Error(w, "unknown person", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPersonID(r.Context(), personID)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

var _ PersonLookup = (*store.Store[*entity.Person])(nil)
