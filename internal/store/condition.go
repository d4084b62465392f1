package store

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jarrod-lowe/publication-registry/internal/dynamo"
	"github.com/jarrod-lowe/publication-registry/internal/entity"
)

// ConditionKind selects the guard evaluated before a write.
type ConditionKind int

const (
	// ConditionNone writes unconditionally.
	ConditionNone ConditionKind = iota
	// ConditionNotExists requires that no entry has the key.
	ConditionNotExists
	// ConditionExists requires that an entry has the key.
	ConditionExists
	// ConditionDataEquals requires an existing entry whose data field equals a string value.
	ConditionDataEquals
)

// Condition guards a write. The zero value is unconditional.
type Condition struct {
	kind  ConditionKind
	field string
	value string
}

// Unconditional returns the zero condition.
func Unconditional() Condition { return Condition{} }

// IfNotExists guards creation.
func IfNotExists() Condition { return Condition{kind: ConditionNotExists} }

// IfExists guards against writing to a missing entry.
func IfExists() Condition { return Condition{kind: ConditionExists} }

// IfDataEquals requires data.<field> to equal value.
func IfDataEquals(field, value string) Condition {
	return Condition{kind: ConditionDataEquals, field: field, value: value}
}

// IfVersion is optimistic concurrency on the entity's version token.
func IfVersion(version string) Condition { return IfDataEquals("version", version) }

// IfStatus requires the stored entity to be in the given status.
func IfStatus(status string) Condition { return IfDataEquals("status", status) }

// Kind returns the condition kind.
func (c Condition) Kind() ConditionKind { return c.kind }

// Field returns the data field compared by ConditionDataEquals.
func (c Condition) Field() string { return c.field }

// Value returns the expected value for ConditionDataEquals.
func (c Condition) Value() string { return c.value }

// expression renders the condition for the SDK. All results are nil for ConditionNone.
func (c Condition) expression() (*string, map[string]string, map[string]types.AttributeValue) {
	switch c.kind {
	case ConditionNotExists:
		expr := "attribute_not_exists(#pk)"
		return &expr, map[string]string{"#pk": dynamo.AttrPK}, nil
	case ConditionExists:
		expr := "attribute_exists(#pk)"
		return &expr, map[string]string{"#pk": dynamo.AttrPK}, nil
	case ConditionDataEquals:
		expr := "#data.#field = :expected"
		return &expr,
			map[string]string{"#data": dynamo.AttrData, "#field": c.field},
			map[string]types.AttributeValue{":expected": &types.AttributeValueMemberS{Value: c.value}}
	default:
		return nil, nil, nil
	}
}

// OpKind is the kind of a transactional operation.
type OpKind int

const (
	OpPut OpKind = iota
	OpDelete
	OpCheck
)

// Op is one operation of a transactional write.
type Op struct {
	kind   OpKind
	entity entity.Entity
	key    entity.Key
	cond   Condition
}

// PutOp writes e under cond.
func PutOp(e entity.Entity, cond Condition) Op {
	return Op{kind: OpPut, entity: e, key: entity.KeyOf(e), cond: cond}
}

// DeleteOp removes the entry at key under cond.
func DeleteOp(key entity.Key, cond Condition) Op {
	return Op{kind: OpDelete, key: key, cond: cond}
}

// CheckOp asserts cond on the entry at key without writing it.
func CheckOp(key entity.Key, cond Condition) Op {
	return Op{kind: OpCheck, key: key, cond: cond}
}

// Kind returns the operation kind.
func (o Op) Kind() OpKind { return o.kind }

// Entity returns the entity written by a put, nil otherwise.
func (o Op) Entity() entity.Entity { return o.entity }

// Key returns the key the operation touches.
func (o Op) Key() entity.Key { return o.key }

// Condition returns the operation's guard.
func (o Op) Condition() Condition { return o.cond }
