// Package storetest provides an in-memory entity store for tests.
//
// Memory keeps encoded items, evaluates the same conditions as the DynamoDB
// store and records every change as an old/new image pair, the way a table
// stream would.
package storetest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jarrod-lowe/publication-registry/internal/apperr"
	"github.com/jarrod-lowe/publication-registry/internal/codec"
	"github.com/jarrod-lowe/publication-registry/internal/dynamo"
	"github.com/jarrod-lowe/publication-registry/internal/entity"
	"github.com/jarrod-lowe/publication-registry/internal/store"
)

// Change is one recorded write. Old is nil for inserts, New is nil for removes.
type Change struct {
	Key entity.Key
	Old map[string]types.AttributeValue
	New map[string]types.AttributeValue
}

// Memory is a concurrency-safe in-memory store.
type Memory struct {
	mu      sync.Mutex
	items   map[entity.Key]map[string]types.AttributeValue
	changes []Change

	// Fail, when set, is consulted before every call. A non-nil error is
	// returned instead of performing the call.
	Fail func(method string) error
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{items: make(map[entity.Key]map[string]types.AttributeValue)}
}

// Changes returns the recorded writes in order.
func (m *Memory) Changes() []Change {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.changes)
}

// ResetChanges discards recorded writes.
func (m *Memory) ResetChanges() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// PutRaw stores an item without encoding it, for seeding corrupt data.
func (m *Memory) PutRaw(item map[string]types.AttributeValue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[codec.KeyOfItem(item)] = item
}

func (m *Memory) fail(method string) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail(method)
}

// Get implements the store read.
func (m *Memory) Get(ctx context.Context, key entity.Key) (entity.Entity, error) {
	if err := m.fail("Get"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	item, ok := m.items[key]
	m.mu.Unlock()
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "store.Get", fmt.Sprintf("no entry %s/%s", key.PK, key.SK))
	}
	return codec.Decode(item)
}

// Put implements the conditional write.
func (m *Memory) Put(ctx context.Context, e entity.Entity, cond store.Condition) (store.Entry, error) {
	if err := m.fail("Put"); err != nil {
		return store.Entry{}, err
	}
	item, err := codec.Encode(e)
	if err != nil {
		return store.Entry{}, err
	}

	key := entity.KeyOf(e)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.satisfied(key, cond) {
		return store.Entry{}, apperr.New(apperr.KindConflict, "store.Put", "condition failed")
	}
	m.write(key, item)
	return store.Entry{Key: key, Type: e.EntityType()}, nil
}

// Delete implements the conditional delete.
func (m *Memory) Delete(ctx context.Context, key entity.Key, cond store.Condition) error {
	if err := m.fail("Delete"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.satisfied(key, cond) {
		return apperr.New(apperr.KindConflict, "store.Delete", "condition failed")
	}
	m.write(key, nil)
	return nil
}

// QueryByPartition implements the partition query.
func (m *Memory) QueryByPartition(ctx context.Context, pk string) ([]entity.Entity, error) {
	if err := m.fail("QueryByPartition"); err != nil {
		return nil, err
	}
	return m.collect(dynamo.AttrPK, dynamo.AttrSK, pk)
}

// QueryByIndex implements the secondary index query.
func (m *Memory) QueryByIndex(ctx context.Context, index store.Index, key string) ([]entity.Entity, error) {
	if err := m.fail("QueryByIndex"); err != nil {
		return nil, err
	}
	attr, ok := index.PartitionAttribute()
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "store.QueryByIndex", fmt.Sprintf("unknown index %q", index))
	}
	return m.collect(attr, index.SortAttribute(), key)
}

// TransactWrite applies every operation or none.
func (m *Memory) TransactWrite(ctx context.Context, ops ...store.Op) error {
	if err := m.fail("TransactWrite"); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	encoded := make([]map[string]types.AttributeValue, len(ops))
	for i, op := range ops {
		if op.Kind() == store.OpPut {
			item, err := codec.Encode(op.Entity())
			if err != nil {
				return err
			}
			encoded[i] = item
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var failed []int
	for i, op := range ops {
		if !m.satisfied(op.Key(), op.Condition()) {
			failed = append(failed, i)
		}
	}
	if len(failed) > 0 {
		return apperr.Wrap(apperr.KindConflict, "store.TransactWrite", &store.TransactionConflictError{Operations: failed})
	}

	for i, op := range ops {
		switch op.Kind() {
		case store.OpPut:
			m.write(op.Key(), encoded[i])
		case store.OpDelete:
			m.write(op.Key(), nil)
		}
	}
	return nil
}

// SetViewed adds or removes party in the entry's viewedBy set.
func (m *Memory) SetViewed(ctx context.Context, key entity.Key, party string, viewed bool) (entity.Entity, error) {
	if err := m.fail("SetViewed"); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "store.SetViewed", fmt.Sprintf("no entry %s/%s", key.PK, key.SK))
	}
	data, ok := item[dynamo.AttrData].(*types.AttributeValueMemberM)
	if !ok {
		return nil, apperr.New(apperr.KindCorruptEntry, "store.SetViewed", "entry has no data")
	}

	var set []string
	if ss, ok := data.Value["viewedBy"].(*types.AttributeValueMemberSS); ok {
		set = slices.Clone(ss.Value)
	}
	has := slices.Contains(set, party)
	switch {
	case viewed && !has:
		set = append(set, party)
	case !viewed && has:
		set = slices.DeleteFunc(set, func(p string) bool { return p == party })
	}

	updated := maps.Clone(item)
	updatedData := maps.Clone(data.Value)
	if len(set) == 0 {
		delete(updatedData, "viewedBy")
	} else {
		updatedData["viewedBy"] = &types.AttributeValueMemberSS{Value: set}
	}
	updated[dynamo.AttrData] = &types.AttributeValueMemberM{Value: updatedData}

	m.write(key, updated)
	return codec.Decode(updated)
}

func (m *Memory) collect(pkAttr, skAttr, value string) ([]entity.Entity, error) {
	m.mu.Lock()
	var matched []map[string]types.AttributeValue
	for _, item := range m.items {
		if v, ok := item[pkAttr].(*types.AttributeValueMemberS); ok && v.Value == value {
			matched = append(matched, item)
		}
	}
	m.mu.Unlock()

	slices.SortFunc(matched, func(a, b map[string]types.AttributeValue) int {
		return strings.Compare(stringAttr(a, skAttr), stringAttr(b, skAttr))
	})

	entities := make([]entity.Entity, 0, len(matched))
	for _, item := range matched {
		e, err := codec.Decode(item)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// satisfied must be called with mu held.
func (m *Memory) satisfied(key entity.Key, cond store.Condition) bool {
	item, exists := m.items[key]
	switch cond.Kind() {
	case store.ConditionNotExists:
		return !exists
	case store.ConditionExists:
		return exists
	case store.ConditionDataEquals:
		if !exists {
			return false
		}
		data, ok := item[dynamo.AttrData].(*types.AttributeValueMemberM)
		if !ok {
			return false
		}
		return stringAttr(data.Value, cond.Field()) == cond.Value()
	default:
		return true
	}
}

// write must be called with mu held. A nil item removes the entry.
func (m *Memory) write(key entity.Key, item map[string]types.AttributeValue) {
	old, existed := m.items[key]
	if item == nil {
		if !existed {
			return
		}
		delete(m.items, key)
		m.changes = append(m.changes, Change{Key: key, Old: old})
		return
	}
	m.items[key] = item
	m.changes = append(m.changes, Change{Key: key, Old: old, New: item})
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
