// ABOUTME: Entity descriptors binding each record type to its table
// ABOUTME: Field accessors passed as configuration; no reflection anywhere

package store

import (
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/ikailo/agentry/internal/entity"
)

// Stores bundles one typed store per entity for wiring convenience.
type Stores struct {
	Persons     *Store[*entity.Person]
	Hosts       *Store[*entity.Host]
	Agents      *Store[*entity.Agent]
	Plugins     *Store[*entity.Plugin]
	Functions   *Store[*entity.Function]
	Connections *Store[*entity.Connection]
	Authorizers *Store[*entity.Authorizer]
	Credentials *Store[*entity.Credential]
}

// NewStores builds the full set of entity stores over one database.
func NewStores(db *DB) *Stores {
	return &Stores{
		Persons:     NewStore(db, personDescriptor()),
		Hosts:       NewStore(db, hostDescriptor()),
		Agents:      NewStore(db, agentDescriptor()),
		Plugins:     NewStore(db, pluginDescriptor()),
		Functions:   NewStore(db, functionDescriptor()),
		Connections: NewStore(db, connectionDescriptor()),
		Authorizers: NewStore(db, authorizerDescriptor()),
		Credentials: NewStore(db, credentialDescriptor()),
	}
}

func personDescriptor() Descriptor[*entity.Person] {
	return Descriptor[*entity.Person]{
		Table:   "persons",
		Columns: []string{"first_name", "last_name", "email"},
		Fields: map[string]string{
			"id":         "id",
			"first_name": "first_name",
			"last_name":  "last_name",
			"email":      "email",
		},
		SearchFields: map[string]string{
			"first_name": "first_name",
			"last_name":  "last_name",
			"email":      "email",
		},
		New: func() *entity.Person { return &entity.Person{} },
		Bind: func(p *entity.Person) []any {
			return []any{p.FirstName, p.LastName, p.Email}
		},
		Scan: func(row Scanner) (*entity.Person, error) {
			var p entity.Person
			var created string
			if err := row.Scan(&p.ID, &created, &p.FirstName, &p.LastName, &p.Email); err != nil {
				return nil, err
			}
			p.CreatedDate = parseTime(created)
			return &p, nil
		},
	}
}

func hostDescriptor() Descriptor[*entity.Host] {
	return Descriptor[*entity.Host]{
		Table:   "hosts",
		Columns: []string{"name", "description", "visibility", "secret_hash", "scopes"},
		Fields: map[string]string{
			"id":          "id",
			"owner_id":    "owner_id",
			"name":        "name",
			"description": "description",
			"visibility":  "visibility",
		},
		SearchFields: map[string]string{
			"name":        "name",
			"description": "description",
		},
		New: func() *entity.Host { return &entity.Host{} },
		Bind: func(h *entity.Host) []any {
			if h.Visibility == "" {
				h.Visibility = entity.VisibilityPrivate
			}
			return []any{h.Name, h.Description, string(h.Visibility), h.SecretHash, marshalStrings(h.Scopes)}
		},
		Scan: func(row Scanner) (*entity.Host, error) {
			var h entity.Host
			var created, visibility string
			var owner, scopes sql.NullString
			if err := row.Scan(&h.ID, &created, &owner, &h.Name, &h.Description, &visibility, &h.SecretHash, &scopes); err != nil {
				return nil, err
			}
			h.CreatedDate = parseTime(created)
			h.OwnerID = owner.String
			h.Visibility = entity.Visibility(visibility)
			if scopes.Valid {
				h.Scopes = unmarshalStrings(scopes.String)
			}
			return &h, nil
		},
	}
}

func agentDescriptor() Descriptor[*entity.Agent] {
	return Descriptor[*entity.Agent]{
		Table:   "agents",
		Columns: []string{"name", "description", "visibility", "host_id", "persona", "enabled"},
		Fields: map[string]string{
			"id":          "id",
			"owner_id":    "owner_id",
			"name":        "name",
			"description": "description",
			"visibility":  "visibility",
			"host_id":     "host_id",
			"enabled":     "enabled",
		},
		SearchFields: map[string]string{
			"name":        "name",
			"description": "description",
			"persona":     "persona",
		},
		New: func() *entity.Agent { return &entity.Agent{} },
		Bind: func(a *entity.Agent) []any {
			if a.Visibility == "" {
				a.Visibility = entity.VisibilityPrivate
			}
			return []any{a.Name, a.Description, string(a.Visibility), a.HostID, a.Persona, a.Enabled}
		},
		Scan: func(row Scanner) (*entity.Agent, error) {
			var a entity.Agent
			var created, visibility string
			var owner sql.NullString
			if err := row.Scan(&a.ID, &created, &owner, &a.Name, &a.Description, &visibility, &a.HostID, &a.Persona, &a.Enabled); err != nil {
				return nil, err
			}
			a.CreatedDate = parseTime(created)
			a.OwnerID = owner.String
			a.Visibility = entity.Visibility(visibility)
			return &a, nil
		},
	}
}

func pluginDescriptor() Descriptor[*entity.Plugin] {
	return Descriptor[*entity.Plugin]{
		Table:   "plugins",
		Columns: []string{"name", "description", "visibility", "unique_name", "plugin_provider", "plugin_source"},
		Fields: map[string]string{
			"id":              "id",
			"owner_id":        "owner_id",
			"name":            "name",
			"description":     "description",
			"visibility":      "visibility",
			"unique_name":     "unique_name",
			"plugin_provider": "plugin_provider",
			"plugin_source":   "plugin_source",
		},
		SearchFields: map[string]string{
			"name":        "name",
			"description": "description",
			"unique_name": "unique_name",
		},
		New: func() *entity.Plugin { return &entity.Plugin{} },
		Bind: func(p *entity.Plugin) []any {
			if p.Visibility == "" {
				p.Visibility = entity.VisibilityPrivate
			}
			if p.Provider == "" {
				p.Provider = entity.PluginProviderPrompt
			}
			if p.Source == "" {
				p.Source = entity.PluginSourceUserDefined
			}
			return []any{p.Name, p.Description, string(p.Visibility), p.UniqueName, string(p.Provider), string(p.Source)}
		},
		Scan: func(row Scanner) (*entity.Plugin, error) {
			var p entity.Plugin
			var created, visibility, provider, source string
			var owner sql.NullString
			if err := row.Scan(&p.ID, &created, &owner, &p.Name, &p.Description, &visibility, &p.UniqueName, &provider, &source); err != nil {
				return nil, err
			}
			p.CreatedDate = parseTime(created)
			p.OwnerID = owner.String
			p.Visibility = entity.Visibility(visibility)
			p.Provider = entity.PluginProvider(provider)
			p.Source = entity.PluginSource(source)
			return &p, nil
		},
	}
}

func functionDescriptor() Descriptor[*entity.Function] {
	return Descriptor[*entity.Function]{
		Table:   "functions",
		Columns: []string{"name", "description", "plugin_id"},
		Fields: map[string]string{
			"id":          "id",
			"name":        "name",
			"description": "description",
			"plugin_id":   "plugin_id",
		},
		SearchFields: map[string]string{
			"name":        "name",
			"description": "description",
		},
		New: func() *entity.Function { return &entity.Function{} },
		Bind: func(f *entity.Function) []any {
			return []any{f.Name, f.Description, f.PluginID}
		},
		Scan: func(row Scanner) (*entity.Function, error) {
			var f entity.Function
			var created string
			if err := row.Scan(&f.ID, &created, &f.Name, &f.Description, &f.PluginID); err != nil {
				return nil, err
			}
			f.CreatedDate = parseTime(created)
			return &f, nil
		},
	}
}

func connectionDescriptor() Descriptor[*entity.Connection] {
	return Descriptor[*entity.Connection]{
		Table:   "connections",
		Columns: []string{"name", "description", "authorizer_id"},
		Fields: map[string]string{
			"id":            "id",
			"owner_id":      "owner_id",
			"name":          "name",
			"description":   "description",
			"authorizer_id": "authorizer_id",
		},
		SearchFields: map[string]string{
			"name":        "name",
			"description": "description",
		},
		New: func() *entity.Connection { return &entity.Connection{} },
		Bind: func(c *entity.Connection) []any {
			return []any{c.Name, c.Description, c.AuthorizerID}
		},
		Scan: func(row Scanner) (*entity.Connection, error) {
			var c entity.Connection
			var created string
			var owner sql.NullString
			if err := row.Scan(&c.ID, &created, &owner, &c.Name, &c.Description, &c.AuthorizerID); err != nil {
				return nil, err
			}
			c.CreatedDate = parseTime(created)
			c.OwnerID = owner.String
			return &c, nil
		},
	}
}

func authorizerDescriptor() Descriptor[*entity.Authorizer] {
	return Descriptor[*entity.Authorizer]{
		Table: "authorizers",
		Columns: []string{
			"name", "description", "visibility",
			"auth_type", "client_id", "client_secret", "auth_uri", "token_uri", "scope",
		},
		Fields: map[string]string{
			"id":          "id",
			"owner_id":    "owner_id",
			"name":        "name",
			"description": "description",
			"visibility":  "visibility",
			"auth_type":   "auth_type",
		},
		SearchFields: map[string]string{
			"name":        "name",
			"description": "description",
		},
		New: func() *entity.Authorizer { return &entity.Authorizer{} },
		Bind: func(a *entity.Authorizer) []any {
			if a.Visibility == "" {
				a.Visibility = entity.VisibilityPrivate
			}
			if a.AuthType == "" {
				a.AuthType = entity.AuthorizationPublic
			}
			return []any{
				a.Name, a.Description, string(a.Visibility),
				string(a.AuthType), a.ClientID, a.ClientSecret, a.AuthURI, a.TokenURI, a.Scope,
			}
		},
		Scan: func(row Scanner) (*entity.Authorizer, error) {
			var a entity.Authorizer
			var created, visibility, authType string
			var owner sql.NullString
			if err := row.Scan(
				&a.ID, &created, &owner, &a.Name, &a.Description, &visibility,
				&authType, &a.ClientID, &a.ClientSecret, &a.AuthURI, &a.TokenURI, &a.Scope,
			); err != nil {
				return nil, err
			}
			a.CreatedDate = parseTime(created)
			a.OwnerID = owner.String
			a.Visibility = entity.Visibility(visibility)
			a.AuthType = entity.AuthorizationType(authType)
			return &a, nil
		},
	}
}

func credentialDescriptor() Descriptor[*entity.Credential] {
	return Descriptor[*entity.Credential]{
		Table:   "credentials",
		Columns: []string{"agent_id", "connection_id", "status", "access_token"},
		Fields: map[string]string{
			"id":            "id",
			"agent_id":      "agent_id",
			"connection_id": "connection_id",
			"status":        "status",
		},
		SearchFields: map[string]string{},
		New:          func() *entity.Credential { return &entity.Credential{} },
		Bind: func(c *entity.Credential) []any {
			if c.Status == "" {
				c.Status = entity.CredentialNoAuthorizer
			}
			return []any{c.AgentID, c.ConnectionID, string(c.Status), c.AccessToken}
		},
		Scan: func(row Scanner) (*entity.Credential, error) {
			var c entity.Credential
			var created, status string
			if err := row.Scan(&c.ID, &created, &c.AgentID, &c.ConnectionID, &status, &c.AccessToken); err != nil {
				return nil, err
			}
			c.CreatedDate = parseTime(created)
			c.Status = entity.CredentialStatus(status)
			return &c, nil
		},
	}
}

// marshalStrings stores a string slice as a JSON array, NULL when empty.
func marshalStrings(ss []string) any {
	if len(ss) == 0 {
		return nil
	}
	data, err := json.Marshal(ss)
	if err != nil {
		return nil
	}
	return string(data)
}

func unmarshalStrings(s string) []string {
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		slog.Warn("failed to parse stored string list", "value", s, "error", err)
		return nil
	}
	return out
}
