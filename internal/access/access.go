// Package access defines the identity and permission collaborator the
// services consult before mutating anything.
package access

import (
	"slices"

	"github.com/jarrod-lowe/publication-registry/internal/entity"
)

// Right is an access right held by an actor within its organization.
type Right string

const (
	RightApproveDoiRequest     Right = "APPROVE_DOI_REQUEST"
	RightApprovePublishRequest Right = "APPROVE_PUBLISH_REQUEST"
	RightSupport               Right = "SUPPORT"
	RightManageChannelClaims   Right = "MANAGE_CHANNEL_CLAIMS"
)

// Actor is the caller of a mutating operation.
type Actor struct {
	Username       string
	OrganizationID string
	CustomerID     string
	Rights         []Right
}

// Authorizer resolves an actor's relationship to a resource.
type Authorizer interface {
	IsOwner(actor Actor, resource *entity.Resource) bool
	HasRight(actor Actor, right Right) bool
}

// Rights is an Authorizer backed by the rights listed on the actor.
type Rights struct{}

// IsOwner reports whether actor created resource.
func (Rights) IsOwner(actor Actor, resource *entity.Resource) bool {
	return resource != nil && actor.Username != "" && actor.Username == resource.Owner
}

// HasRight reports whether actor holds right.
func (Rights) HasRight(actor Actor, right Right) bool {
	return slices.Contains(actor.Rights, right)
}

// curatorRights is the right a curator needs to act on each ticket kind.
var curatorRights = map[entity.TicketKind]Right{
	entity.KindDoiRequest:            RightApproveDoiRequest,
	entity.KindPublishingRequest:     RightApprovePublishRequest,
	entity.KindGeneralSupportRequest: RightSupport,
}

// CuratorRight returns the right a curator needs to act on tickets of kind.
func CuratorRight(kind entity.TicketKind) Right {
	return curatorRights[kind]
}

// HasRightOn reports whether actor holds right for the organization owning
// the resource.
func HasRightOn(a Authorizer, actor Actor, right Right, organizationID string) bool {
	return actor.OrganizationID == organizationID && a.HasRight(actor, right)
}
