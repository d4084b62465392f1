// Package changerecord turns table stream records into typed change events.
//
// Each present image is decoded through the codec. Bookkeeping entries such
// as uniqueness markers decode to no entity. An image that cannot be decoded
// fails only its own record.
package changerecord

import (
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jarrod-lowe/publication-registry/internal/apperr"
	"github.com/jarrod-lowe/publication-registry/internal/codec"
	"github.com/jarrod-lowe/publication-registry/internal/dynamo"
	"github.com/jarrod-lowe/publication-registry/internal/entity"
)

// UpdateKind is the kind of mutation a change record describes.
type UpdateKind string

const (
	Insert UpdateKind = "INSERT"
	Modify UpdateKind = "MODIFY"
	Remove UpdateKind = "REMOVE"
)

// ChangeEvent is the typed form of one change record. Old or New is nil when
// the image is absent or holds bookkeeping data.
type ChangeEvent struct {
	Type           string
	Kind           UpdateKind
	Old            entity.Entity
	New            entity.Entity
	SourceARN      string
	SequenceNumber string
	PartitionKey   string
}

// Relevant reports whether either side carries a domain entity.
func (c *ChangeEvent) Relevant() bool {
	return c.Old != nil || c.New != nil
}

// Map converts a stream record into a ChangeEvent. Undecodable images yield
// a Mapping error.
func Map(record events.DynamoDBEventRecord) (*ChangeEvent, error) {
	const op = "changerecord.Map"

	oldImage, err := ConvertImage(record.Change.OldImage)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindMapping, op, fmt.Errorf("old image: %w", err))
	}
	newImage, err := ConvertImage(record.Change.NewImage)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindMapping, op, fmt.Errorf("new image: %w", err))
	}

	change, err := FromImages(oldImage, newImage, UpdateKind(record.EventName))
	if err != nil {
		return nil, err
	}

	change.SourceARN = record.EventSourceArn
	change.SequenceNumber = record.Change.SequenceNumber
	if change.PartitionKey == "" {
		if pk, ok := record.Change.Keys[dynamo.AttrPK]; ok && pk.DataType() == events.DataTypeString {
			change.PartitionKey = pk.String()
		}
	}
	return change, nil
}

// FromImages builds a ChangeEvent from SDK attribute maps. The kind follows
// from which images are present; fallback is used only when both are absent.
func FromImages(oldImage, newImage map[string]types.AttributeValue, fallback UpdateKind) (*ChangeEvent, error) {
	const op = "changerecord.FromImages"

	change := &ChangeEvent{Kind: kindOf(oldImage, newImage, fallback)}
	switch change.Kind {
	case Insert, Modify, Remove:
	default:
		return nil, apperr.New(apperr.KindMapping, op, fmt.Sprintf("unknown event name %q", fallback))
	}

	var err error
	if change.Old, err = decode(op, "old", oldImage); err != nil {
		return nil, err
	}
	if change.New, err = decode(op, "new", newImage); err != nil {
		return nil, err
	}

	switch {
	case newImage != nil:
		change.PartitionKey = codec.KeyOfItem(newImage).PK
		change.Type = typeOf(newImage)
	case oldImage != nil:
		change.PartitionKey = codec.KeyOfItem(oldImage).PK
		change.Type = typeOf(oldImage)
	}
	return change, nil
}

func kindOf(oldImage, newImage map[string]types.AttributeValue, fallback UpdateKind) UpdateKind {
	switch {
	case oldImage == nil && newImage != nil:
		return Insert
	case oldImage != nil && newImage == nil:
		return Remove
	case oldImage != nil && newImage != nil:
		return Modify
	default:
		return fallback
	}
}

func decode(op, side string, image map[string]types.AttributeValue) (entity.Entity, error) {
	if image == nil {
		return nil, nil
	}
	e, err := codec.Decode(image)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindMapping, op, fmt.Errorf("%s image: %w", side, err))
	}
	if codec.Ignored(e) {
		return nil, nil
	}
	return e, nil
}

func typeOf(image map[string]types.AttributeValue) string {
	if v, ok := image[dynamo.AttrType].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	if data, ok := image[dynamo.AttrData].(*types.AttributeValueMemberM); ok {
		if v, ok := data.Value[dynamo.AttrType].(*types.AttributeValueMemberS); ok {
			return v.Value
		}
	}
	return ""
}
