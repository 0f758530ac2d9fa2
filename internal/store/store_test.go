package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikailo/agentry/internal/entity"
)

// setupStores creates a temporary SQLite database with the full store set.
func setupStores(t *testing.T) *Stores {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return NewStores(db)
}

// createPerson inserts a person to own records in tests.
func createPerson(t *testing.T, stores *Stores, first string) *entity.Person {
	t.Helper()
	p, err := stores.Persons.Create(context.Background(), &entity.Person{
		FirstName: first,
		LastName:  "Tester",
		Email:     first + "@example.com",
	})
	require.NoError(t, err)
	return p
}

func TestStore_CreateAssignsIDAndTimestamp(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	p, err := stores.Persons.Create(ctx, &entity.Person{FirstName: "Ada"})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedDate.IsZero())

	got, err := stores.Persons.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)
	assert.Equal(t, p.ID, got.ID)
}

func TestStore_CreateKeepsCallerID(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	p := &entity.Person{FirstName: "Ada"}
	p.ID = "person-123"
	_, err := stores.Persons.Create(ctx, p)
	require.NoError(t, err)

	got, err := stores.Persons.GetByID(ctx, "person-123")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)
}

func TestStore_CreateDuplicateID(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	p := &entity.Person{FirstName: "Ada"}
	p.ID = "person-123"
	_, err := stores.Persons.Create(ctx, p)
	require.NoError(t, err)

	dup := &entity.Person{FirstName: "Grace"}
	dup.ID = "person-123"
	_, err = stores.Persons.Create(ctx, dup)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestStore_CreateUnknownOwner(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	h := &entity.Host{}
	h.Name = "orphan"
	h.OwnerID = "nonexistent"
	_, err := stores.Hosts.Create(ctx, h)
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestStore_GetByID_NotFound(t *testing.T) {
	stores := setupStores(t)

	_, err := stores.Persons.GetByID(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	p := createPerson(t, stores, "ada")

	existed, err := stores.Persons.Delete(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = stores.Persons.Delete(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestStore_DeleteMany(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	a := createPerson(t, stores, "ada")
	b := createPerson(t, stores, "grace")

	all, err := stores.Persons.DeleteMany(ctx, []string{a.ID, b.ID, "missing"})
	require.NoError(t, err)
	assert.False(t, all, "partial delete reports false")

	c := createPerson(t, stores, "edsger")
	all, err = stores.Persons.DeleteMany(ctx, []string{c.ID})
	require.NoError(t, err)
	assert.True(t, all)
}

func TestStore_VisibilityScoping(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	owner := createPerson(t, stores, "owner")
	other := createPerson(t, stores, "other")

	private := &entity.Agent{}
	private.Name = "private-agent"
	private.OwnerID = owner.ID
	private, err := stores.Agents.Create(ctx, private)
	require.NoError(t, err)

	public := &entity.Agent{}
	public.Name = "public-agent"
	public.OwnerID = owner.ID
	public.Visibility = entity.VisibilityPublic
	public, err = stores.Agents.Create(ctx, public)
	require.NoError(t, err)

	// Owner sees both.
	_, err = stores.Agents.GetOwnedByID(ctx, private.ID, owner.ID, false)
	assert.NoError(t, err)
	_, err = stores.Agents.GetOwnedByID(ctx, public.ID, owner.ID, false)
	assert.NoError(t, err)

	// A stranger never sees the private record, and the failure is
	// indistinguishable from the record not existing.
	_, err = stores.Agents.GetOwnedByID(ctx, private.ID, other.ID, true)
	assert.ErrorIs(t, err, ErrNotFound)

	// The public record is visible only with includePublic.
	_, err = stores.Agents.GetOwnedByID(ctx, public.ID, other.ID, false)
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := stores.Agents.GetOwnedByID(ctx, public.ID, other.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "public-agent", got.Name)
}

func TestStore_GetAllOwned(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	owner := createPerson(t, stores, "owner")
	other := createPerson(t, stores, "other")

	mine := &entity.Agent{}
	mine.Name = "mine"
	mine.OwnerID = owner.ID
	_, err := stores.Agents.Create(ctx, mine)
	require.NoError(t, err)

	shared := &entity.Agent{}
	shared.Name = "shared"
	shared.OwnerID = other.ID
	shared.Visibility = entity.VisibilityPublic
	_, err = stores.Agents.Create(ctx, shared)
	require.NoError(t, err)

	hidden := &entity.Agent{}
	hidden.Name = "hidden"
	hidden.OwnerID = other.ID
	_, err = stores.Agents.Create(ctx, hidden)
	require.NoError(t, err)

	own, err := stores.Agents.GetAllOwned(ctx, owner.ID, false, 0, 0)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "mine", own[0].Name)

	withPublic, err := stores.Agents.GetAllOwned(ctx, owner.ID, true, 0, 0)
	require.NoError(t, err)
	assert.Len(t, withPublic, 2)
}

func TestStore_OwnedOpsOnUnownedEntity(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	_, err := stores.Persons.GetOwnedByID(ctx, "any", "person", false)
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = stores.Persons.GetAllOwned(ctx, "person", false, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestStore_OrderingAndPagination(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		p := &entity.Person{FirstName: fmt.Sprintf("p%d", i)}
		p.CreatedDate = base.Add(time.Duration(i) * time.Minute)
		_, err := stores.Persons.Create(ctx, p)
		require.NoError(t, err)
	}

	all, err := stores.Persons.GetAll(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, p := range all {
		assert.Equal(t, fmt.Sprintf("p%d", i), p.FirstName)
	}

	page, err := stores.Persons.GetAll(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "p1", page[0].FirstName)
	assert.Equal(t, "p2", page[1].FirstName)
}

func TestStore_OrderingTieBreaksOnID(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"b", "a", "c"} {
		p := &entity.Person{FirstName: id}
		p.ID = id
		p.CreatedDate = ts
		_, err := stores.Persons.Create(ctx, p)
		require.NoError(t, err)
	}

	all, err := stores.Persons.GetAll(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
	assert.Equal(t, "c", all[2].ID)
}

func TestStore_GetByIDs_OmitsMissing(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	a := createPerson(t, stores, "ada")
	b := createPerson(t, stores, "grace")

	got, err := stores.Persons.GetByIDs(ctx, []string{a.ID, "missing", b.ID})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = stores.Persons.GetByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_Query(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	owner := createPerson(t, stores, "owner")

	enabled := &entity.Agent{}
	enabled.Name = "on"
	enabled.OwnerID = owner.ID
	enabled.Enabled = true
	_, err := stores.Agents.Create(ctx, enabled)
	require.NoError(t, err)

	disabled := &entity.Agent{}
	disabled.Name = "off"
	disabled.OwnerID = owner.ID
	_, err = stores.Agents.Create(ctx, disabled)
	require.NoError(t, err)

	got, err := stores.Agents.Query(ctx, map[string]any{"enabled": true}, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "on", got[0].Name)

	got, err = stores.Agents.Query(ctx, map[string]any{"name": "off", "enabled": false}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_Query_UnknownField(t *testing.T) {
	stores := setupStores(t)

	_, err := stores.Agents.Query(context.Background(), map[string]any{"persona": "x"}, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestStore_QueryOwned(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	owner := createPerson(t, stores, "owner")
	other := createPerson(t, stores, "other")

	for _, o := range []*entity.Person{owner, other} {
		c := &entity.Connection{}
		c.Name = "github"
		c.OwnerID = o.ID
		_, err := stores.Connections.Create(ctx, c)
		require.NoError(t, err)
	}

	got, err := stores.Connections.QueryOwned(ctx, map[string]any{"name": "github"}, owner.ID, false, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, owner.ID, got[0].OwnerID)
}

func TestStore_Search(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	owner := createPerson(t, stores, "owner")

	weather := &entity.Agent{}
	weather.Name = "Weather Watcher"
	weather.OwnerID = owner.ID
	_, err := stores.Agents.Create(ctx, weather)
	require.NoError(t, err)

	scribe := &entity.Agent{}
	scribe.Name = "Scribe"
	scribe.Description = "watches the weather page"
	scribe.OwnerID = owner.ID
	_, err = stores.Agents.Create(ctx, scribe)
	require.NoError(t, err)

	// Case-insensitive, substring, OR across fields.
	got, err := stores.Agents.Search(ctx, []string{"name", "description"}, "WEATHER", 0, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = stores.Agents.Search(ctx, []string{"name"}, "weather", 0, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_Search_EscapesWildcards(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	owner := createPerson(t, stores, "owner")

	literal := &entity.Agent{}
	literal.Name = "100% done"
	literal.OwnerID = owner.ID
	_, err := stores.Agents.Create(ctx, literal)
	require.NoError(t, err)

	other := &entity.Agent{}
	other.Name = "100 percent"
	other.OwnerID = owner.ID
	_, err = stores.Agents.Create(ctx, other)
	require.NoError(t, err)

	got, err := stores.Agents.Search(ctx, []string{"name"}, "100%", 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "100% done", got[0].Name)
}

func TestStore_Search_UndeclaredField(t *testing.T) {
	stores := setupStores(t)

	_, err := stores.Agents.Search(context.Background(), []string{"host_id"}, "x", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestStore_SearchOwned(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	owner := createPerson(t, stores, "owner")
	other := createPerson(t, stores, "other")

	mine := &entity.Agent{}
	mine.Name = "relay"
	mine.OwnerID = owner.ID
	_, err := stores.Agents.Create(ctx, mine)
	require.NoError(t, err)

	theirs := &entity.Agent{}
	theirs.Name = "relay"
	theirs.OwnerID = other.ID
	_, err = stores.Agents.Create(ctx, theirs)
	require.NoError(t, err)

	got, err := stores.Agents.SearchOwned(ctx, []string{"name"}, "relay", owner.ID, true, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, owner.ID, got[0].OwnerID)
}

func TestStore_UpdateIgnoresImmutableFields(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	owner := createPerson(t, stores, "owner")
	thief := createPerson(t, stores, "thief")

	agent := &entity.Agent{}
	agent.Name = "before"
	agent.OwnerID = owner.ID
	agent, err := stores.Agents.Create(ctx, agent)
	require.NoError(t, err)
	created := agent.CreatedDate

	agent.Name = "after"
	agent.OwnerID = thief.ID
	agent.CreatedDate = created.Add(time.Hour)

	updated, err := stores.Agents.Update(ctx, agent)
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Name)
	assert.Equal(t, owner.ID, updated.OwnerID, "owner is immutable")
	assert.True(t, updated.CreatedDate.Equal(created), "created date is immutable")
}

func TestStore_Update_NotFound(t *testing.T) {
	stores := setupStores(t)

	missing := &entity.Agent{}
	missing.ID = "nonexistent"
	missing.Name = "ghost"
	_, err := stores.Agents.Update(context.Background(), missing)
	assert.ErrorIs(t, err, ErrNotFound)

	blank := &entity.Agent{}
	_, err = stores.Agents.Update(context.Background(), blank)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CreateMany(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	batch := []*entity.Person{
		{FirstName: "a"},
		{FirstName: "b"},
		{FirstName: "c"},
	}
	created, err := stores.Persons.CreateMany(ctx, batch)
	require.NoError(t, err)
	require.Len(t, created, 3)
	for _, p := range created {
		assert.NotEmpty(t, p.ID)
	}

	all, err := stores.Persons.GetAll(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_CreateMany_RollsBackOnConflict(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	existing := createPerson(t, stores, "ada")

	dup := &entity.Person{FirstName: "dup"}
	dup.ID = existing.ID
	_, err := stores.Persons.CreateMany(ctx, []*entity.Person{
		{FirstName: "fresh"},
		dup,
	})
	require.ErrorIs(t, err, ErrConflict)

	all, err := stores.Persons.GetAll(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1, "no partial batch survives")
}

func TestStore_CredentialUniquePair(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	first := &entity.Credential{AgentID: "a1", ConnectionID: "c1", Status: entity.CredentialNoCredential}
	_, err := stores.Credentials.Create(ctx, first)
	require.NoError(t, err)

	second := &entity.Credential{AgentID: "a1", ConnectionID: "c1", Status: entity.CredentialNoCredential}
	_, err = stores.Credentials.Create(ctx, second)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestStore_HostScopesRoundTrip(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	owner := createPerson(t, stores, "owner")

	h := &entity.Host{Scopes: []string{"connect", "manage"}}
	h.Name = "worker"
	h.OwnerID = owner.ID
	h, err := stores.Hosts.Create(ctx, h)
	require.NoError(t, err)

	got, err := stores.Hosts.GetByID(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"connect", "manage"}, got.Scopes)

	bare := &entity.Host{}
	bare.Name = "bare"
	bare.OwnerID = owner.ID
	bare, err = stores.Hosts.Create(ctx, bare)
	require.NoError(t, err)

	got, err = stores.Hosts.GetByID(ctx, bare.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Scopes)
}
