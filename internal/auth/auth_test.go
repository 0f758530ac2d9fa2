package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikailo/agentry/internal/entity"
	"github.com/ikailo/agentry/internal/store"
)

func TestTokenIssuer_MintAndVerify(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	token, err := issuer.Mint("person-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	personID, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "person-1", personID)
}

func TestTokenIssuer_RejectsEmptySecret(t *testing.T) {
	_, err := NewTokenIssuer("", time.Hour)
	assert.Error(t, err)
}

func TestTokenIssuer_RejectsGarbage(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	_, err = issuer.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_RejectsWrongSecret(t *testing.T) {
	minter, err := NewTokenIssuer("secret-a", time.Hour)
	require.NoError(t, err)
	verifier, err := NewTokenIssuer("secret-b", time.Hour)
	require.NoError(t, err)

	token, err := minter.Mint("person-1")
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_RejectsExpired(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	issuer.ttl = -time.Minute

	token, err := issuer.Mint("person-1")
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestHostSecret_GenerateAndVerify(t *testing.T) {
	secret, hash, err := GenerateHostSecret()
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	require.NotEmpty(t, hash)
	assert.NotEqual(t, secret, hash)

	assert.True(t, VerifyHostSecret(hash, secret))
	assert.False(t, VerifyHostSecret(hash, "wrong"))
	assert.False(t, VerifyHostSecret("", secret))
}

func TestHostSecret_Unique(t *testing.T) {
	a, _, err := GenerateHostSecret()
	require.NoError(t, err)
	b, _, err := GenerateHostSecret()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestPersonIDContext(t *testing.T) {
	ctx := context.Background()

	_, ok := PersonID(ctx)
	assert.False(t, ok)

	ctx = WithPersonID(ctx, "person-1")
	id, ok := PersonID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "person-1", id)
}

func setupMiddleware(t *testing.T) (*Middleware, *TokenIssuer, *entity.Person) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	stores := store.NewStores(db)
	person, err := stores.Persons.Create(context.Background(), &entity.Person{FirstName: "Ada"})
	require.NoError(t, err)

	issuer, err := NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	return NewMiddleware(issuer, stores.Persons, nil), issuer, person
}

func TestMiddleware_AdmitsValidToken(t *testing.T) {
	mw, issuer, person := setupMiddleware(t)

	token, err := issuer.Mint(person.ID)
	require.NoError(t, err)

	var gotPerson string
	handler := mw.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPerson, _ = PersonID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, person.ID, gotPerson)
}

func TestMiddleware_RejectsMissingOrBadTokens(t *testing.T) {
	mw, issuer, _ := setupMiddleware(t)

	handler := mw.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	cases := map[string]string{
		"no header":      "",
		"not bearer":     "Basic abc",
		"empty bearer":   "Bearer ",
		"garbage token":  "Bearer not-a-token",
		"unknown person": "",
	}

	// Token for a person that does not exist.
	orphanToken, err := issuer.Mint("no-such-person")
	require.NoError(t, err)
	cases["unknown person"] = "Bearer " + orphanToken

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}
