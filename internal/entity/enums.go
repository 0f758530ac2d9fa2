// ABOUTME: Boundary enumerations shared by the store, resolver, and API
// ABOUTME: String-backed so they round-trip through SQLite and JSON unchanged

package entity

// Visibility controls cross-owner read access to a record.
type Visibility string

const (
	VisibilityPrivate Visibility = "Private"
	VisibilityPublic  Visibility = "Public"
)

// AuthorizationType describes how a connection's external service is
// authorized. Public connections require no credential at all.
type AuthorizationType string

const (
	AuthorizationPublic AuthorizationType = "Public"
	AuthorizationOAuth2 AuthorizationType = "OAuth2"
	AuthorizationAPIKey AuthorizationType = "ApiKey"
)

// PluginProvider identifies the kind of capability bundle a plugin carries.
type PluginProvider string

const (
	PluginProviderPrompt     PluginProvider = "Prompt"
	PluginProviderSKPlugin   PluginProvider = "SKPlugin"
	PluginProviderCollection PluginProvider = "Collection"
)

// PluginSource identifies where a plugin's code comes from.
type PluginSource string

const (
	PluginSourceUserDefined      PluginSource = "UserDefined"
	PluginSourceHostDefined      PluginSource = "HostDefined"
	PluginSourceUploadPackage    PluginSource = "UploadPackage"
	PluginSourcePublicRepository PluginSource = "PublicRepository"
)

// CredentialStatus is the per-(agent, connection) authorization state.
// During a single authorization attempt it only advances:
//
//	NoAuthorizer -> NoCredential -> Authorized -> Complete
//
// Revocation is an external operation and the only way state regresses.
type CredentialStatus string

const (
	CredentialNoAuthorizer CredentialStatus = "NoAuthorizer"
	CredentialNoCredential CredentialStatus = "NoCredential"
	CredentialAuthorized   CredentialStatus = "Authorized"
	CredentialComplete     CredentialStatus = "Complete"
)
