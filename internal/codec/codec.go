// Package codec converts between keyed table entries and typed entities.
//
// Every entry has the shape {PK, SK, type, data, [PK1..SK3]}. The type tag
// selects a constructor from an explicit table; the data map is decoded into
// the constructed value. Nothing outside this package inspects raw items.
package codec

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jarrod-lowe/publication-registry/internal/apperr"
	"github.com/jarrod-lowe/publication-registry/internal/dynamo"
	"github.com/jarrod-lowe/publication-registry/internal/entity"
)

// decoders maps a type tag to a constructor for its entity.
var decoders = map[string]func() entity.Entity{
	entity.TypeResource: func() entity.Entity { return &entity.Resource{} },
	string(entity.KindDoiRequest): func() entity.Entity {
		return &entity.Ticket{Kind: entity.KindDoiRequest}
	},
	string(entity.KindPublishingRequest): func() entity.Entity {
		return &entity.Ticket{Kind: entity.KindPublishingRequest}
	},
	string(entity.KindGeneralSupportRequest): func() entity.Entity {
		return &entity.Ticket{Kind: entity.KindGeneralSupportRequest}
	},
	entity.TypeMessage:      func() entity.Entity { return &entity.Message{} },
	entity.TypeChannelClaim: func() entity.Entity { return &entity.ChannelClaim{} },
	entity.TypeUniqueTicket: func() entity.Entity { return &entity.UniqueTicketEntry{} },
}

// Known reports whether tag has a registered decoder.
func Known(tag string) bool {
	_, ok := decoders[tag]
	return ok
}

// Ignored reports whether e is internal bookkeeping that change consumers skip.
func Ignored(e entity.Entity) bool {
	_, ok := e.(*entity.UniqueTicketEntry)
	return ok
}

// Encode converts an entity into a table item.
func Encode(e entity.Entity) (map[string]types.AttributeValue, error) {
	tag := e.EntityType()
	if !Known(tag) {
		return nil, apperr.New(apperr.KindCorruptEntry, "codec.Encode", fmt.Sprintf("unknown entity type %q", tag))
	}

	data, err := attributevalue.MarshalMap(e)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCorruptEntry, "codec.Encode", err)
	}
	data[dynamo.AttrType] = &types.AttributeValueMemberS{Value: tag}

	item := map[string]types.AttributeValue{
		dynamo.AttrPK:   &types.AttributeValueMemberS{Value: e.PK()},
		dynamo.AttrSK:   &types.AttributeValueMemberS{Value: e.SK()},
		dynamo.AttrType: &types.AttributeValueMemberS{Value: tag},
		dynamo.AttrData: &types.AttributeValueMemberM{Value: data},
	}

	idx := e.Indexes()
	for name, value := range map[string]string{
		dynamo.AttrPK1: idx.PK1, dynamo.AttrSK1: idx.SK1,
		dynamo.AttrPK2: idx.PK2, dynamo.AttrSK2: idx.SK2,
		dynamo.AttrPK3: idx.PK3, dynamo.AttrSK3: idx.SK3,
	} {
		if value != "" {
			item[name] = &types.AttributeValueMemberS{Value: value}
		}
	}

	return item, nil
}

// Decode converts a table item into its entity. Empty attribute values are
// normalised to zero values first.
func Decode(item map[string]types.AttributeValue) (entity.Entity, error) {
	item = NormalizeItem(item)

	data, hasData := item[dynamo.AttrData].(*types.AttributeValueMemberM)
	tag := stringAttr(item, dynamo.AttrType)
	if tag == "" && hasData {
		tag = stringAttr(data.Value, dynamo.AttrType)
	}
	if tag == "" {
		return nil, apperr.New(apperr.KindCorruptEntry, "codec.Decode", "missing type discriminant")
	}

	newEntity, ok := decoders[tag]
	if !ok {
		return nil, apperr.New(apperr.KindCorruptEntry, "codec.Decode", fmt.Sprintf("unknown entity type %q", tag))
	}
	if !hasData {
		return nil, apperr.New(apperr.KindCorruptEntry, "codec.Decode", fmt.Sprintf("%s entry has no data", tag))
	}

	e := newEntity()
	if err := attributevalue.UnmarshalMap(data.Value, e); err != nil {
		return nil, apperr.Wrap(apperr.KindCorruptEntry, "codec.Decode", err)
	}
	if e.EntityType() != tag {
		return nil, apperr.New(apperr.KindCorruptEntry, "codec.Decode",
			fmt.Sprintf("payload type %q does not match entry type %q", e.EntityType(), tag))
	}

	return e, nil
}

// KeyAttributes builds the primary key attribute map for a key.
func KeyAttributes(key entity.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamo.AttrPK: &types.AttributeValueMemberS{Value: key.PK},
		dynamo.AttrSK: &types.AttributeValueMemberS{Value: key.SK},
	}
}

// KeyOfItem extracts the primary key of a raw item.
func KeyOfItem(item map[string]types.AttributeValue) entity.Key {
	return entity.Key{PK: stringAttr(item, dynamo.AttrPK), SK: stringAttr(item, dynamo.AttrSK)}
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
