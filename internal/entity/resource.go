package entity

import "time"

// TypeResource is the type tag for publications.
const TypeResource = "Resource"

// ResourceStatus is the lifecycle status of a publication.
type ResourceStatus string

const (
	ResourceDraft            ResourceStatus = "DRAFT"
	ResourcePublished        ResourceStatus = "PUBLISHED"
	ResourceDraftForDeletion ResourceStatus = "DRAFT_FOR_DELETION"
	ResourceDeleted          ResourceStatus = "DELETED"
)

// Contributor is a person credited on a publication.
type Contributor struct {
	Name       string `dynamodbav:"name,omitempty" json:"name,omitempty"`
	Identifier string `dynamodbav:"identifier,omitempty" json:"identifier,omitempty"`
}

// PublicationDate is a possibly partial date. Month and Day may be empty.
type PublicationDate struct {
	Year  string `dynamodbav:"year,omitempty" json:"year,omitempty"`
	Month string `dynamodbav:"month,omitempty" json:"month,omitempty"`
	Day   string `dynamodbav:"day,omitempty" json:"day,omitempty"`
}

// Publisher identifies the publishing channel of a publication.
type Publisher struct {
	Identifier string `dynamodbav:"identifier,omitempty" json:"identifier,omitempty"`
	Name       string `dynamodbav:"name,omitempty" json:"name,omitempty"`
}

// EntityDescription is the bibliographic subset of a publication the core needs.
type EntityDescription struct {
	MainTitle       string           `dynamodbav:"mainTitle,omitempty" json:"mainTitle,omitempty"`
	Contributors    []Contributor    `dynamodbav:"contributors,omitempty" json:"contributors,omitempty"`
	PublicationDate *PublicationDate `dynamodbav:"publicationDate,omitempty" json:"publicationDate,omitempty"`
	Publisher       *Publisher       `dynamodbav:"publisher,omitempty" json:"publisher,omitempty"`
	InstanceType    string           `dynamodbav:"instanceType,omitempty" json:"instanceType,omitempty"`
}

// Resource is a publication aggregate.
// PK: Resource#{organizationId}#{owner}
// SK: {identifier}
type Resource struct {
	Identifier        string            `dynamodbav:"identifier" json:"identifier"`
	Owner             string            `dynamodbav:"owner" json:"owner"`
	OrganizationID    string            `dynamodbav:"organizationId" json:"organizationId"`
	Status            ResourceStatus    `dynamodbav:"status" json:"status"`
	CreatedDate       time.Time         `dynamodbav:"createdDate" json:"createdDate"`
	ModifiedDate      time.Time         `dynamodbav:"modifiedDate" json:"modifiedDate"`
	PublishedDate     *time.Time        `dynamodbav:"publishedDate,omitempty" json:"publishedDate,omitempty"`
	Version           string            `dynamodbav:"version" json:"version"`
	Doi               string            `dynamodbav:"doi,omitempty" json:"doi,omitempty"`
	CristinID         string            `dynamodbav:"cristinId,omitempty" json:"cristinId,omitempty"`
	EntityDescription EntityDescription `dynamodbav:"entityDescription,omitempty" json:"entityDescription"`
}

// EntityType implements Entity.
func (r *Resource) EntityType() string {
	return TypeResource
}

// PK returns the partition key for this resource.
func (r *Resource) PK() string {
	return ResourcePartition(r.OrganizationID, r.Owner)
}

// SK returns the sort key for this resource.
func (r *Resource) SK() string {
	return r.Identifier
}

// Indexes implements Entity.
func (r *Resource) Indexes() IndexKeys {
	keys := IndexKeys{
		PK1: ResourceIdentifierKey(r.Identifier),
		SK1: ResourceIdentifierKey(r.Identifier),
		PK2: OwnerKey(r.OrganizationID, r.Owner),
		SK2: ResourceIdentifierKey(r.Identifier),
	}
	if r.CristinID != "" {
		keys.PK3 = CristinIDKey(r.CristinID)
		keys.SK3 = ResourceIdentifierKey(r.Identifier)
	}
	return keys
}

// ResourcePartition returns the partition holding all resources of one owner.
func ResourcePartition(organizationID, owner string) string {
	return JoinKey(TypeResource, organizationID, owner)
}

// ResourceIdentifierKey is the ByTypeAndIdentifier key of a resource.
func ResourceIdentifierKey(identifier string) string {
	return JoinKey(TypeResource, identifier)
}

// OwnerKey is the ByOwner partition value shared by everything an owner created.
func OwnerKey(organizationID, owner string) string {
	return JoinKey(organizationID, owner)
}

// CristinIDKey is the ByCristinId partition value.
func CristinIDKey(cristinID string) string {
	return JoinKey("CristinId", cristinID)
}
