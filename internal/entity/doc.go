// Package entity defines the shared record shapes stored by the authority.
//
// # Overview
//
// Every stored record is built from a small tower of embedded bases:
//
//	BaseEntity      id, created_date, transient metadata
//	NamedEntity     + name
//	DescribedEntity + description
//	OwnedEntity     + owner_id (a Person reference)
//	PublicEntity    + visibility (Private | Public)
//
// Concrete entities (Person, Host, Agent, Plugin, Connection, Authorizer,
// Credential, Function) embed the deepest base that fits and gain the
// accessor methods by promotion.
//
// # Capability Interfaces
//
// The store is generic over capability interfaces rather than concrete
// types:
//
//   - Record: anything with an id and creation date
//   - Owned: a Record with an owning Person
//   - Shareable: an Owned record with a visibility flag
//
// # Metadata
//
// The Metadata bag carries transient annotations that are never persisted
// or queried. Values are a closed variant (string, number, bool, null) so
// the bag stays serialization-safe.
package entity
