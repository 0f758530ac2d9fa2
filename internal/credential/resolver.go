// ABOUTME: Per-(agent, connection) credential state machine over store records
// ABOUTME: Pair-keyed locking so concurrent lookups observe consistent state

package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ikailo/agentry/internal/entity"
	"github.com/ikailo/agentry/internal/store"
)

// ErrInvalidTransition is returned when an advance would move a
// credential backwards or skip a state.
var ErrInvalidTransition = errors.New("invalid credential transition")

// UnresolvedError reports that no usable secret exists for a pair. The
// Status field tells the caller where the authorization attempt stands.
type UnresolvedError struct {
	AgentID        string
	ConnectionName string
	Status         entity.CredentialStatus
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("credential for agent %q connection %q is %s", e.AgentID, e.ConnectionName, e.Status)
}

// Resolver decides whether a secret can be produced for an (agent,
// connection name) pair. All state lives in store records; the resolver
// adds pair-granular serialization on top.
type Resolver struct {
	agents      *store.Store[*entity.Agent]
	connections *store.Store[*entity.Connection]
	authorizers *store.Store[*entity.Authorizer]
	credentials *store.Store[*entity.Credential]
	logger      *slog.Logger

	mu    sync.Mutex
	locks map[string]*pairLock
}

type pairLock struct {
	mu   sync.Mutex
	refs int
}

// NewResolver creates a resolver over the given stores.
func NewResolver(stores *store.Stores, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		agents:      stores.Agents,
		connections: stores.Connections,
		authorizers: stores.Authorizers,
		credentials: stores.Credentials,
		logger:      logger.With("component", "credentials"),
		locks:       make(map[string]*pairLock),
	}
}

// lockPair serializes work on one (agent, connection name) pair.
// Two simultaneous lookups for the same pair must not observe a torn
// state; unrelated pairs proceed concurrently.
func (r *Resolver) lockPair(key string) *pairLock {
	r.mu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &pairLock{}
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return l
}

func (r *Resolver) unlockPair(key string, l *pairLock) {
	l.mu.Unlock()

	r.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, key)
	}
	r.mu.Unlock()
}

func pairKey(agentID, name string) string {
	return agentID + "\x00" + name
}

// GetCredentialForAgentByName returns the secret for the named connection
// of the agent's owner. Connections without an authorizer (or with a
// Public authorizer) need no secret and succeed with an empty string.
// A missing credential record is created lazily at NoCredential; any
// state other than Complete fails with an UnresolvedError.
func (r *Resolver) GetCredentialForAgentByName(ctx context.Context, agentID, name string) (string, error) {
	if agentID == "" || name == "" {
		return "", fmt.Errorf("agent id and connection name are required: %w", store.ErrInvalidQuery)
	}

	key := pairKey(agentID, name)
	l := r.lockPair(key)
	defer r.unlockPair(key, l)

	agent, err := r.agents.GetByID(ctx, agentID)
	if err != nil {
		return "", fmt.Errorf("agent %q: %w", agentID, err)
	}

	conn, err := r.connectionByName(ctx, agent.OwnerID, name)
	if err != nil {
		return "", err
	}

	// No authorizer configured means the capability is open.
	if conn.AuthorizerID == "" {
		return "", nil
	}
	authorizer, err := r.authorizers.GetByID(ctx, conn.AuthorizerID)
	if err != nil {
		return "", fmt.Errorf("authorizer %q: %w", conn.AuthorizerID, err)
	}
	if authorizer.AuthType == entity.AuthorizationPublic {
		return "", nil
	}

	cred, err := r.credentialForPair(ctx, agentID, conn.ID)
	if errors.Is(err, store.ErrNotFound) {
		// First lookup for this pair: create the placeholder so the
		// authorization flow has a record to advance.
		cred = &entity.Credential{
			AgentID:      agentID,
			ConnectionID: conn.ID,
			Status:       entity.CredentialNoCredential,
		}
		if cred, err = r.credentials.Create(ctx, cred); err != nil {
			return "", fmt.Errorf("creating credential placeholder: %w", err)
		}
		r.logger.Debug("created credential placeholder",
			"agent_id", agentID,
			"connection", name)
	} else if err != nil {
		return "", err
	}

	switch cred.Status {
	case entity.CredentialComplete:
		return cred.AccessToken, nil
	case entity.CredentialNoAuthorizer:
		return "", nil
	default:
		return "", &UnresolvedError{AgentID: agentID, ConnectionName: name, Status: cred.Status}
	}
}

// Status reports the current state for a pair without creating a
// placeholder. Pairs never looked up report NoCredential when an
// authorizer applies, NoAuthorizer otherwise.
func (r *Resolver) Status(ctx context.Context, agentID, name string) (entity.CredentialStatus, error) {
	agent, err := r.agents.GetByID(ctx, agentID)
	if err != nil {
		return "", fmt.Errorf("agent %q: %w", agentID, err)
	}

	conn, err := r.connectionByName(ctx, agent.OwnerID, name)
	if err != nil {
		return "", err
	}

	if conn.AuthorizerID == "" {
		return entity.CredentialNoAuthorizer, nil
	}
	authorizer, err := r.authorizers.GetByID(ctx, conn.AuthorizerID)
	if err != nil {
		return "", fmt.Errorf("authorizer %q: %w", conn.AuthorizerID, err)
	}
	if authorizer.AuthType == entity.AuthorizationPublic {
		return entity.CredentialNoAuthorizer, nil
	}

	cred, err := r.credentialForPair(ctx, agentID, conn.ID)
	if errors.Is(err, store.ErrNotFound) {
		return entity.CredentialNoCredential, nil
	}
	if err != nil {
		return "", err
	}
	return cred.Status, nil
}

// Authorize records the secret granted by the external authorization
// flow and advances the pair from NoCredential to Authorized. The
// placeholder is created if the flow completed before any lookup.
func (r *Resolver) Authorize(ctx context.Context, agentID, name, secret string) error {
	key := pairKey(agentID, name)
	l := r.lockPair(key)
	defer r.unlockPair(key, l)

	cred, conn, err := r.pairRecord(ctx, agentID, name)
	if err != nil {
		return err
	}

	if cred == nil {
		placeholder := &entity.Credential{
			AgentID:      agentID,
			ConnectionID: conn.ID,
			Status:       entity.CredentialNoCredential,
		}
		if cred, err = r.credentials.Create(ctx, placeholder); err != nil {
			return fmt.Errorf("creating credential placeholder: %w", err)
		}
	}

	if cred.Status != entity.CredentialNoCredential {
		return fmt.Errorf("cannot authorize pair in state %s: %w", cred.Status, ErrInvalidTransition)
	}

	cred.Status = entity.CredentialAuthorized
	cred.AccessToken = secret
	if _, err := r.credentials.Update(ctx, cred); err != nil {
		return fmt.Errorf("advancing credential: %w", err)
	}

	r.logger.Info("credential authorized", "agent_id", agentID, "connection", name)
	return nil
}

// Complete marks an Authorized credential as validated and usable.
func (r *Resolver) Complete(ctx context.Context, agentID, name string) error {
	key := pairKey(agentID, name)
	l := r.lockPair(key)
	defer r.unlockPair(key, l)

	cred, _, err := r.pairRecord(ctx, agentID, name)
	if err != nil {
		return err
	}
	if cred == nil {
		return fmt.Errorf("credential for agent %q connection %q: %w", agentID, name, store.ErrNotFound)
	}

	if cred.Status != entity.CredentialAuthorized {
		return fmt.Errorf("cannot complete pair in state %s: %w", cred.Status, ErrInvalidTransition)
	}

	cred.Status = entity.CredentialComplete
	if _, err := r.credentials.Update(ctx, cred); err != nil {
		return fmt.Errorf("advancing credential: %w", err)
	}

	r.logger.Info("credential complete", "agent_id", agentID, "connection", name)
	return nil
}

// pairRecord resolves the connection and, when present, the credential
// record for a pair. A nil credential with nil error means no record yet.
func (r *Resolver) pairRecord(ctx context.Context, agentID, name string) (*entity.Credential, *entity.Connection, error) {
	agent, err := r.agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, nil, fmt.Errorf("agent %q: %w", agentID, err)
	}

	conn, err := r.connectionByName(ctx, agent.OwnerID, name)
	if err != nil {
		return nil, nil, err
	}

	cred, err := r.credentialForPair(ctx, agentID, conn.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, conn, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return cred, conn, nil
}

func (r *Resolver) connectionByName(ctx context.Context, ownerID, name string) (*entity.Connection, error) {
	conns, err := r.connections.Query(ctx, map[string]any{
		"owner_id": ownerID,
		"name":     name,
	}, 0, 1)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	if len(conns) == 0 {
		return nil, fmt.Errorf("connection %q: %w", name, store.ErrNotFound)
	}
	return conns[0], nil
}

func (r *Resolver) credentialForPair(ctx context.Context, agentID, connectionID string) (*entity.Credential, error) {
	creds, err := r.credentials.Query(ctx, map[string]any{
		"agent_id":      agentID,
		"connection_id": connectionID,
	}, 0, 1)
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	if len(creds) == 0 {
		return nil, fmt.Errorf("credential: %w", store.ErrNotFound)
	}
	return creds[0], nil
}
