// Package store implements the entity store over a single DynamoDB table.
//
// All reads and writes go through the codec, so callers only see typed
// entities. Errors are classified once here into apperr kinds.
package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jarrod-lowe/publication-registry/internal/apperr"
	"github.com/jarrod-lowe/publication-registry/internal/codec"
	"github.com/jarrod-lowe/publication-registry/internal/dynamo"
	"github.com/jarrod-lowe/publication-registry/internal/entity"
)

// maxTransactItems is the DynamoDB limit for TransactWriteItems.
const maxTransactItems = 100

// DynamoDBClient defines the interface for DynamoDB operations.
type DynamoDBClient interface {
	GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, input *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Index names a secondary index.
type Index string

const (
	IndexByTypeAndIdentifier Index = dynamo.IndexByTypeAndIdentifier
	IndexByOwner             Index = dynamo.IndexByOwner
	IndexByCristinID         Index = dynamo.IndexByCristinID
)

// PartitionAttribute returns the partition key attribute of the index.
func (i Index) PartitionAttribute() (string, bool) {
	switch i {
	case IndexByTypeAndIdentifier:
		return dynamo.AttrPK1, true
	case IndexByOwner:
		return dynamo.AttrPK2, true
	case IndexByCristinID:
		return dynamo.AttrPK3, true
	default:
		return "", false
	}
}

// SortAttribute returns the sort key attribute of the index.
func (i Index) SortAttribute() string {
	switch i {
	case IndexByOwner:
		return dynamo.AttrSK2
	case IndexByCristinID:
		return dynamo.AttrSK3
	default:
		return dynamo.AttrSK1
	}
}

// Entry describes a written entry.
type Entry struct {
	Key  entity.Key
	Type string
}

// Store is the DynamoDB-backed entity store.
type Store struct {
	client    DynamoDBClient
	tableName string
	opts      *Options
}

// New creates a Store for the given table.
func New(client DynamoDBClient, tableName string, opts ...Option) (*Store, error) {
	options := newOptions()
	for _, o := range opts {
		o(options)
	}
	if err := options.validate(); err != nil {
		return nil, fmt.Errorf("invalid store options: %w", err)
	}

	return &Store{
		client:    client,
		tableName: tableName,
		opts:      options,
	}, nil
}

// Get returns the entity stored at key.
func (s *Store) Get(ctx context.Context, key entity.Key) (entity.Entity, error) {
	const op = "store.Get"

	ctx, cancel := context.WithTimeout(ctx, s.opts.callTimeout)
	defer cancel()

	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            codec.KeyAttributes(key),
		ConsistentRead: aws.Bool(s.opts.consistentRead),
	})
	if err != nil {
		return nil, classify(op, err)
	}
	if output.Item == nil {
		return nil, apperr.New(apperr.KindNotFound, op, fmt.Sprintf("no entry %s/%s", key.PK, key.SK))
	}

	return codec.Decode(output.Item)
}

// Put writes e under cond. A failed condition is a Conflict.
func (s *Store) Put(ctx context.Context, e entity.Entity, cond Condition) (Entry, error) {
	const op = "store.Put"

	item, err := codec.Encode(e)
	if err != nil {
		return Entry{}, err
	}

	expr, names, values := cond.expression()

	ctx, cancel := context.WithTimeout(ctx, s.opts.callTimeout)
	defer cancel()

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tableName),
		Item:                      item,
		ConditionExpression:       expr,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return Entry{}, classify(op, err)
	}

	return Entry{Key: entity.KeyOf(e), Type: e.EntityType()}, nil
}

// Delete removes the entry at key under cond.
func (s *Store) Delete(ctx context.Context, key entity.Key, cond Condition) error {
	const op = "store.Delete"

	expr, names, values := cond.expression()

	ctx, cancel := context.WithTimeout(ctx, s.opts.callTimeout)
	defer cancel()

	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       codec.KeyAttributes(key),
		ConditionExpression:       expr,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return classify(op, err)
	}
	return nil
}

// QueryByPartition returns every entity in the partition, ascending by sort key.
func (s *Store) QueryByPartition(ctx context.Context, pk string) ([]entity.Entity, error) {
	return s.query(ctx, "store.QueryByPartition", &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": dynamo.AttrPK,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(s.opts.consistentRead),
	})
}

// QueryByIndex returns every entity whose index partition equals key,
// ascending by the index sort key.
func (s *Store) QueryByIndex(ctx context.Context, index Index, key string) ([]entity.Entity, error) {
	const op = "store.QueryByIndex"

	attr, ok := index.PartitionAttribute()
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, op, fmt.Sprintf("unknown index %q", index))
	}

	return s.query(ctx, op, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(string(index)),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": attr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: key},
		},
		ScanIndexForward: aws.Bool(true),
	})
}

func (s *Store) query(ctx context.Context, op string, input *dynamodb.QueryInput) ([]entity.Entity, error) {
	var entities []entity.Entity

	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		pageCtx, cancel := context.WithTimeout(ctx, s.opts.callTimeout)
		page, err := paginator.NextPage(pageCtx)
		cancel()
		if err != nil {
			return nil, classify(op, err)
		}

		for _, item := range page.Items {
			e, err := codec.Decode(item)
			if err != nil {
				return nil, err
			}
			entities = append(entities, e)
		}
	}

	return entities, nil
}

// TransactWrite applies every operation or none of them. When a condition
// fails the error is a Conflict and [FailedOperations] reports which ones.
func (s *Store) TransactWrite(ctx context.Context, ops ...Op) error {
	const op = "store.TransactWrite"

	if len(ops) == 0 {
		return nil
	}
	if len(ops) > maxTransactItems {
		return apperr.New(apperr.KindTransactionFailed, op,
			fmt.Sprintf("%d operations exceed the limit of %d", len(ops), maxTransactItems))
	}

	transactItems := make([]types.TransactWriteItem, 0, len(ops))
	for _, o := range ops {
		expr, names, values := o.cond.expression()

		switch o.kind {
		case OpPut:
			item, err := codec.Encode(o.entity)
			if err != nil {
				return err
			}
			transactItems = append(transactItems, types.TransactWriteItem{
				Put: &types.Put{
					TableName:                 aws.String(s.tableName),
					Item:                      item,
					ConditionExpression:       expr,
					ExpressionAttributeNames:  names,
					ExpressionAttributeValues: values,
				},
			})
		case OpDelete:
			transactItems = append(transactItems, types.TransactWriteItem{
				Delete: &types.Delete{
					TableName:                 aws.String(s.tableName),
					Key:                       codec.KeyAttributes(o.key),
					ConditionExpression:       expr,
					ExpressionAttributeNames:  names,
					ExpressionAttributeValues: values,
				},
			})
		case OpCheck:
			if expr == nil {
				return apperr.New(apperr.KindTransactionFailed, op, "condition check without a condition")
			}
			transactItems = append(transactItems, types.TransactWriteItem{
				ConditionCheck: &types.ConditionCheck{
					TableName:                 aws.String(s.tableName),
					Key:                       codec.KeyAttributes(o.key),
					ConditionExpression:       expr,
					ExpressionAttributeNames:  names,
					ExpressionAttributeValues: values,
				},
			})
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.callTimeout)
	defer cancel()

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: transactItems,
	})
	if err != nil {
		return classify(op, err)
	}
	return nil
}

// SetViewed adds party to, or removes it from, the viewedBy set of the entry
// at key. Repeating the call has no further effect. Returns the updated entity.
func (s *Store) SetViewed(ctx context.Context, key entity.Key, party string, viewed bool) (entity.Entity, error) {
	const op = "store.SetViewed"

	action := "DELETE"
	if viewed {
		action = "ADD"
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.callTimeout)
	defer cancel()

	output, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 codec.KeyAttributes(key),
		UpdateExpression:    aws.String(action + " #data.#viewedBy :party"),
		ConditionExpression: aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{
			"#pk":       dynamo.AttrPK,
			"#data":     dynamo.AttrData,
			"#viewedBy": "viewedBy",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":party": &types.AttributeValueMemberSS{Value: []string{party}},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		err = classify(op, err)
		if apperr.KindOf(err) == apperr.KindConflict {
			return nil, apperr.New(apperr.KindNotFound, op, fmt.Sprintf("no entry %s/%s", key.PK, key.SK))
		}
		return nil, err
	}

	return codec.Decode(output.Attributes)
}
