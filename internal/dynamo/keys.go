// Package dynamo provides shared DynamoDB constants for the registry table.
package dynamo

const (
	// Primary key attributes.
	AttrPK = "PK"
	AttrSK = "SK"

	// Denormalised entity type tag, used for index filtering.
	AttrType = "type"
	// Type-tagged payload holding every other entity field.
	AttrData = "data"

	// Secondary index projections. Names keep the PK/SK prefix.
	AttrPK1 = "PK1"
	AttrSK1 = "SK1"
	AttrPK2 = "PK2"
	AttrSK2 = "SK2"
	AttrPK3 = "PK3"
	AttrSK3 = "SK3"

	// Index names.
	IndexByTypeAndIdentifier = "ByTypeAndIdentifier"
	IndexByOwner             = "ByOwner"
	IndexByCristinID         = "ByCristinId"

	// Delimiter joins key segments.
	Delimiter = "#"
)
