// ABOUTME: Base entity shapes and the capability interfaces the store is generic over
// ABOUTME: Defines BaseEntity through PublicEntity plus Record/Owned/Shareable

package entity

import (
	"time"
)

// Record is the minimal capability set every stored entity satisfies.
// ID and CreatedDate are assigned once at creation and never change.
type Record interface {
	GetID() string
	SetID(id string)
	GetCreatedDate() time.Time
	SetCreatedDate(t time.Time)
}

// Owned is a Record with an owning Person. OwnerID is immutable after
// creation; an empty OwnerID marks a system-owned record.
type Owned interface {
	Record
	GetOwnerID() string
	SetOwnerID(id string)
}

// Shareable is an Owned record that can opt into cross-owner reads.
type Shareable interface {
	Owned
	GetVisibility() Visibility
	SetVisibility(v Visibility)
}

// BaseEntity is the root of every stored record.
type BaseEntity struct {
	ID          string    `json:"id"`
	CreatedDate time.Time `json:"created_date"`

	// Metadata holds transient annotations. It is never persisted,
	// queried, or searched.
	Metadata Metadata `json:"-"`
}

func (e *BaseEntity) GetID() string              { return e.ID }
func (e *BaseEntity) SetID(id string)            { e.ID = id }
func (e *BaseEntity) GetCreatedDate() time.Time  { return e.CreatedDate }
func (e *BaseEntity) SetCreatedDate(t time.Time) { e.CreatedDate = t }

// NamedEntity adds a mutable display name.
type NamedEntity struct {
	BaseEntity `yaml:",inline"`

	Name string `json:"name"`
}

// DescribedEntity adds a mutable free-form description.
type DescribedEntity struct {
	NamedEntity `yaml:",inline"`

	Description string `json:"description"`
}

// OwnedEntity adds ownership. Owner is a convenience projection resolved
// at read time; OwnerID is the source of truth.
type OwnedEntity struct {
	DescribedEntity `yaml:",inline"`

	OwnerID string  `json:"owner_id"`
	Owner   *Person `json:"owner,omitempty"`
}

func (e *OwnedEntity) GetOwnerID() string   { return e.OwnerID }
func (e *OwnedEntity) SetOwnerID(id string) { e.OwnerID = id }

// PublicEntity adds a visibility flag controlling cross-owner reads.
type PublicEntity struct {
	OwnedEntity `yaml:",inline"`

	Visibility Visibility `json:"visibility"`
}

func (e *PublicEntity) GetVisibility() Visibility  { return e.Visibility }
func (e *PublicEntity) SetVisibility(v Visibility) { e.Visibility = v }
