package entity

import "time"

// TypeChannelClaim is the type tag for publishing channel claims.
const TypeChannelClaim = "ChannelClaim"

// ChannelConstraint limits what non-claiming customers may do in a channel.
type ChannelConstraint struct {
	PublishingPolicy string `dynamodbav:"publishingPolicy,omitempty" json:"publishingPolicy,omitempty"`
	EditingPolicy    string `dynamodbav:"editingPolicy,omitempty" json:"editingPolicy,omitempty"`
}

// ChannelClaim records that a customer owns a publishing channel.
// PK = SK: ChannelClaim#{channelId}
type ChannelClaim struct {
	ChannelID      string            `dynamodbav:"channelId" json:"channelId"`
	CustomerID     string            `dynamodbav:"customerId" json:"customerId"`
	OrganizationID string            `dynamodbav:"organizationId" json:"organizationId"`
	ClaimedBy      string            `dynamodbav:"claimedBy" json:"claimedBy"`
	ClaimedDate    time.Time         `dynamodbav:"claimedDate" json:"claimedDate"`
	Constraint     ChannelConstraint `dynamodbav:"constraint,omitempty" json:"constraint"`
}

// EntityType implements Entity.
func (c *ChannelClaim) EntityType() string {
	return TypeChannelClaim
}

// PK returns the partition key for this claim.
func (c *ChannelClaim) PK() string {
	return ChannelClaimKey(c.ChannelID)
}

// SK returns the sort key for this claim.
func (c *ChannelClaim) SK() string {
	return ChannelClaimKey(c.ChannelID)
}

// Indexes implements Entity. ByTypeAndIdentifier lists claims per customer.
func (c *ChannelClaim) Indexes() IndexKeys {
	return IndexKeys{
		PK1: ChannelClaimCustomerKey(c.CustomerID),
		SK1: c.ChannelID,
	}
}

// ChannelClaimKey returns the primary key value of a channel's claim.
func ChannelClaimKey(channelID string) string {
	return JoinKey(TypeChannelClaim, channelID)
}

// ChannelClaimCustomerKey is the index partition listing one customer's claims.
func ChannelClaimCustomerKey(customerID string) string {
	return JoinKey(TypeChannelClaim, customerID)
}
