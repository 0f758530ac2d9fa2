// ABOUTME: Concrete entity types stored by the authority
// ABOUTME: Person, Host, Agent, Plugin, Connection, Authorizer, Credential, Function

package entity

// Person is an account and the universal owner of owned entities.
// Persons are created by the identity flow, not through the scoped routes.
type Person struct {
	BaseEntity `yaml:",inline"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// Host is a deployment endpoint that agents attach to. Hosts authenticate
// to the authority with a generated secret; only its hash is stored.
type Host struct {
	PublicEntity `yaml:",inline"`

	// SecretHash is the bcrypt hash of the host's registration secret.
	SecretHash string `json:"-"`

	Scopes []string `json:"scopes,omitempty"`
}

// Agent is a task-executing identity owned by a Person, optionally bound
// to a Host.
type Agent struct {
	PublicEntity `yaml:",inline"`

	HostID  string `json:"host_id,omitempty"`
	Persona string `json:"persona,omitempty"`
	Enabled bool   `json:"enabled"`
}

// Plugin is a named capability bundle an agent can invoke.
type Plugin struct {
	PublicEntity `yaml:",inline"`

	UniqueName string         `json:"unique_name"`
	Provider   PluginProvider `json:"plugin_provider"`
	Source     PluginSource   `json:"plugin_source"`
}

// Function is a single callable unit carried by a plugin.
type Function struct {
	DescribedEntity `yaml:",inline"`

	PluginID string `json:"plugin_id"`
}

// Connection names an external capability an agent may use, and ties it
// to the Authorizer that governs access. A connection without an
// authorizer requires no credential.
type Connection struct {
	OwnedEntity `yaml:",inline"`

	AuthorizerID string `json:"authorizer_id,omitempty"`
}

// Authorizer holds the authorization configuration for a class of
// connections: the grant type plus the endpoints and client identity the
// external flow needs.
type Authorizer struct {
	PublicEntity `yaml:",inline"`

	AuthType     AuthorizationType `json:"auth_type"`
	ClientID     string            `json:"client_id,omitempty"`
	ClientSecret string            `json:"-"`
	AuthURI      string            `json:"auth_uri,omitempty"`
	TokenURI     string            `json:"token_uri,omitempty"`
	Scope        string            `json:"scope,omitempty"`
}

// Credential is the per-(agent, connection) authorization record. It is
// created lazily on first lookup and advanced by the external
// authorization flow.
type Credential struct {
	BaseEntity `yaml:",inline"`

	AgentID      string           `json:"agent_id"`
	ConnectionID string           `json:"connection_id"`
	Status       CredentialStatus `json:"status"`
	AccessToken  string           `json:"-"`
}

// Interface conformance for the store's capability sets.
var (
	_ Record    = (*Person)(nil)
	_ Record    = (*Credential)(nil)
	_ Record    = (*Function)(nil)
	_ Owned     = (*Connection)(nil)
	_ Shareable = (*Host)(nil)
	_ Shareable = (*Agent)(nil)
	_ Shareable = (*Plugin)(nil)
	_ Shareable = (*Authorizer)(nil)
)
