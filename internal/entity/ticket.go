package entity

import (
	"slices"
	"time"
)

// TicketKind is the variant tag of a ticket. It doubles as the entry type tag.
type TicketKind string

const (
	KindDoiRequest            TicketKind = "DoiRequest"
	KindPublishingRequest     TicketKind = "PublishingRequest"
	KindGeneralSupportRequest TicketKind = "GeneralSupportRequest"
)

// TicketKinds lists every ticket variant.
var TicketKinds = []TicketKind{KindDoiRequest, KindPublishingRequest, KindGeneralSupportRequest}

// Valid reports whether k is a known variant.
func (k TicketKind) Valid() bool {
	return slices.Contains(TicketKinds, k)
}

// TicketStatus is the workflow status of a ticket.
type TicketStatus string

const (
	TicketPending   TicketStatus = "PENDING"
	TicketCompleted TicketStatus = "COMPLETED"
	TicketClosed    TicketStatus = "CLOSED"
	TicketRemoved   TicketStatus = "REMOVED"
)

// Terminal reports whether no further transition is possible from s.
func (s TicketStatus) Terminal() bool {
	return s == TicketCompleted || s == TicketClosed || s == TicketRemoved
}

// Parties recorded in a ticket's viewedBy set.
const (
	ViewedByOwner   = "Owner"
	ViewedByCurator = "Curator"
)

// TypeTicketPrefix is the partition key prefix shared by all ticket variants.
const TypeTicketPrefix = "Ticket"

// Ticket is a workflow request attached to one resource. Kind selects the
// variant; variant-only fields are left empty for other kinds.
// PK: Ticket#{resourceIdentifier}
// SK: {identifier}
type Ticket struct {
	Kind               TicketKind   `dynamodbav:"kind" json:"kind"`
	Identifier         string       `dynamodbav:"identifier" json:"identifier"`
	ResourceIdentifier string       `dynamodbav:"resourceIdentifier" json:"resourceIdentifier"`
	Owner              string       `dynamodbav:"owner" json:"owner"`
	OrganizationID     string       `dynamodbav:"organizationId" json:"organizationId"`
	Status             TicketStatus `dynamodbav:"status" json:"status"`
	CreatedDate        time.Time    `dynamodbav:"createdDate" json:"createdDate"`
	ModifiedDate       time.Time    `dynamodbav:"modifiedDate" json:"modifiedDate"`
	Version            string       `dynamodbav:"version" json:"version"`
	ViewedBy           []string     `dynamodbav:"viewedBy,stringset,omitempty" json:"viewedBy,omitempty"`
	Assignee           string       `dynamodbav:"assignee,omitempty" json:"assignee,omitempty"`
	FinalizedBy        string       `dynamodbav:"finalizedBy,omitempty" json:"finalizedBy,omitempty"`
	FinalizedDate      *time.Time   `dynamodbav:"finalizedDate,omitempty" json:"finalizedDate,omitempty"`

	// DoiRequest: copy of the resource used for the DOI-relevant projection.
	ResourceSnapshot *Resource `dynamodbav:"resourceSnapshot,omitempty" json:"resourceSnapshot,omitempty"`
	// PublishingRequest: the customer's publishing workflow at request time.
	Workflow string `dynamodbav:"workflow,omitempty" json:"workflow,omitempty"`
}

// EntityType implements Entity.
func (t *Ticket) EntityType() string {
	return string(t.Kind)
}

// PK returns the partition key for this ticket.
func (t *Ticket) PK() string {
	return TicketPartition(t.ResourceIdentifier)
}

// SK returns the sort key for this ticket.
func (t *Ticket) SK() string {
	return t.Identifier
}

// Indexes implements Entity.
func (t *Ticket) Indexes() IndexKeys {
	return IndexKeys{
		PK1: TicketIdentifierKey(t.Identifier),
		SK1: TicketIdentifierKey(t.Identifier),
		PK2: OwnerKey(t.OrganizationID, t.Owner),
		SK2: TicketIdentifierKey(t.Identifier),
	}
}

// ViewedByParty reports whether party has seen the latest change.
func (t *Ticket) ViewedByParty(party string) bool {
	return slices.Contains(t.ViewedBy, party)
}

// TicketPartition returns the partition holding all tickets of a resource.
func TicketPartition(resourceIdentifier string) string {
	return JoinKey(TypeTicketPrefix, resourceIdentifier)
}

// TicketIdentifierKey is the ByTypeAndIdentifier key of a ticket.
func TicketIdentifierKey(identifier string) string {
	return JoinKey(TypeTicketPrefix, identifier)
}

// TypeUniqueTicket is the type tag of the open-ticket uniqueness marker.
const TypeUniqueTicket = "UniqueTicket"

// UniqueTicketEntry marks the single open ticket of one kind for one resource.
// PK = SK: UniqueTicket#{kind}#{resourceIdentifier}
type UniqueTicketEntry struct {
	Kind               TicketKind `dynamodbav:"kind" json:"kind"`
	ResourceIdentifier string     `dynamodbav:"resourceIdentifier" json:"resourceIdentifier"`
	TicketIdentifier   string     `dynamodbav:"ticketIdentifier" json:"ticketIdentifier"`
}

// EntityType implements Entity.
func (u *UniqueTicketEntry) EntityType() string {
	return TypeUniqueTicket
}

// PK returns the partition key for this marker.
func (u *UniqueTicketEntry) PK() string {
	return UniqueTicketKey(u.Kind, u.ResourceIdentifier)
}

// SK returns the sort key for this marker.
func (u *UniqueTicketEntry) SK() string {
	return UniqueTicketKey(u.Kind, u.ResourceIdentifier)
}

// Indexes implements Entity. Markers are not indexed.
func (u *UniqueTicketEntry) Indexes() IndexKeys {
	return IndexKeys{}
}

// UniqueTicketKey returns the marker key for a ticket kind on a resource.
func UniqueTicketKey(kind TicketKind, resourceIdentifier string) string {
	return JoinKey(TypeUniqueTicket, string(kind), resourceIdentifier)
}

// UniqueTicketKeyOf returns the marker primary key.
func UniqueTicketKeyOf(kind TicketKind, resourceIdentifier string) Key {
	k := UniqueTicketKey(kind, resourceIdentifier)
	return Key{PK: k, SK: k}
}
