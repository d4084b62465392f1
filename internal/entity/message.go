package entity

import "time"

// TypeMessage is the type tag for conversation messages.
const TypeMessage = "Message"

// MessageStatus is the soft-delete state of a message.
type MessageStatus string

const (
	MessageActive  MessageStatus = "ACTIVE"
	MessageDeleted MessageStatus = "DELETED"
)

// Message is a conversation entry on a resource, optionally tied to a ticket.
// PK: Message#{resourceIdentifier}
// SK: {identifier}
type Message struct {
	Identifier         string        `dynamodbav:"identifier" json:"identifier"`
	ResourceIdentifier string        `dynamodbav:"resourceIdentifier" json:"resourceIdentifier"`
	TicketIdentifier   string        `dynamodbav:"ticketIdentifier,omitempty" json:"ticketIdentifier,omitempty"`
	Sender             string        `dynamodbav:"sender" json:"sender"`
	Owner              string        `dynamodbav:"owner" json:"owner"`
	OrganizationID     string        `dynamodbav:"organizationId" json:"organizationId"`
	Text               string        `dynamodbav:"text" json:"text"`
	Status             MessageStatus `dynamodbav:"status" json:"status"`
	CreatedDate        time.Time     `dynamodbav:"createdDate" json:"createdDate"`
	ModifiedDate       time.Time     `dynamodbav:"modifiedDate" json:"modifiedDate"`
	Version            string        `dynamodbav:"version" json:"version"`
}

// EntityType implements Entity.
func (m *Message) EntityType() string {
	return TypeMessage
}

// PK returns the partition key for this message.
func (m *Message) PK() string {
	return MessagePartition(m.ResourceIdentifier)
}

// SK returns the sort key for this message.
func (m *Message) SK() string {
	return m.Identifier
}

// Indexes implements Entity.
func (m *Message) Indexes() IndexKeys {
	return IndexKeys{
		PK1: JoinKey(TypeMessage, m.Identifier),
		SK1: JoinKey(TypeMessage, m.Identifier),
		PK2: OwnerKey(m.OrganizationID, m.Owner),
		SK2: JoinKey(TypeMessage, m.Identifier),
	}
}

// MessagePartition returns the partition holding all messages of a resource.
func MessagePartition(resourceIdentifier string) string {
	return JoinKey(TypeMessage, resourceIdentifier)
}
