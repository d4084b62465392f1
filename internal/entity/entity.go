// Package entity defines the domain entities stored in the registry table.
package entity

import (
	"strings"

	"github.com/google/uuid"

	"github.com/jarrod-lowe/publication-registry/internal/dynamo"
)

// Entity is any typed domain object that maps to one keyed entry.
type Entity interface {
	// EntityType is the type tag denormalised onto the entry.
	EntityType() string
	PK() string
	SK() string
	// Indexes returns the secondary index projections. Empty fields are not written.
	Indexes() IndexKeys
}

// IndexKeys holds the secondary index projection values of an entry.
type IndexKeys struct {
	PK1, SK1 string
	PK2, SK2 string
	PK3, SK3 string
}

// Key identifies an entry.
type Key struct {
	PK string
	SK string
}

// KeyOf returns the primary key of e.
func KeyOf(e Entity) Key {
	return Key{PK: e.PK(), SK: e.SK()}
}

// JoinKey joins key segments with the table delimiter.
func JoinKey(parts ...string) string {
	return strings.Join(parts, dynamo.Delimiter)
}

// NewIdentifier returns a time-ordered identifier. Lexicographic order of the
// string form follows creation order.
func NewIdentifier() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewVersion returns a fresh optimistic-concurrency token.
func NewVersion() string {
	return uuid.NewString()
}
