// Package resource implements the publication lifecycle on top of the
// entity store.
package resource

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jarrod-lowe/publication-registry/internal/access"
	"github.com/jarrod-lowe/publication-registry/internal/apperr"
	"github.com/jarrod-lowe/publication-registry/internal/entity"
	"github.com/jarrod-lowe/publication-registry/internal/store"
)

// Store is the subset of the entity store the resource service needs.
type Store interface {
	Get(ctx context.Context, key entity.Key) (entity.Entity, error)
	Put(ctx context.Context, e entity.Entity, cond store.Condition) (store.Entry, error)
	Delete(ctx context.Context, key entity.Key, cond store.Condition) error
	QueryByPartition(ctx context.Context, pk string) ([]entity.Entity, error)
	QueryByIndex(ctx context.Context, index store.Index, key string) ([]entity.Entity, error)
	TransactWrite(ctx context.Context, ops ...store.Op) error
}

// TicketFinder looks up the open ticket of a kind on a resource.
type TicketFinder interface {
	FindOpen(ctx context.Context, resourceIdentifier string, kind entity.TicketKind) (*entity.Ticket, error)
}

// statusMoves lists the allowed resource status changes.
var statusMoves = map[entity.ResourceStatus][]entity.ResourceStatus{
	entity.ResourceDraft:            {entity.ResourcePublished, entity.ResourceDraftForDeletion},
	entity.ResourcePublished:        {entity.ResourceDeleted},
	entity.ResourceDraftForDeletion: {entity.ResourceDraft},
}

// Service runs resource operations.
type Service struct {
	store   Store
	auth    access.Authorizer
	tickets TicketFinder
	clock   func() time.Time
}

// Option configures a [Service].
type Option func(*Service)

// WithClock replaces the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// NewService creates a resource Service. tickets may be nil, in which case
// Update does not refresh DoiRequest snapshots.
func NewService(s Store, auth access.Authorizer, tickets TicketFinder, opts ...Option) *Service {
	svc := &Service{
		store:   s,
		auth:    auth,
		tickets: tickets,
		clock:   func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(svc)
	}
	return svc
}

// Create stores a new draft owned by actor.
func (s *Service) Create(ctx context.Context, actor access.Actor, draft entity.EntityDescription) (*entity.Resource, error) {
	const op = "resource.Create"

	if actor.Username == "" || actor.OrganizationID == "" {
		return nil, apperr.New(apperr.KindForbidden, op, "an identified actor is required")
	}

	now := s.clock()
	r := &entity.Resource{
		Identifier:        entity.NewIdentifier(),
		Owner:             actor.Username,
		OrganizationID:    actor.OrganizationID,
		Status:            entity.ResourceDraft,
		CreatedDate:       now,
		ModifiedDate:      now,
		Version:           entity.NewVersion(),
		EntityDescription: draft,
	}

	if _, err := s.store.Put(ctx, r, store.IfNotExists()); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the resource with the given identifier.
func (s *Service) Get(ctx context.Context, identifier string) (*entity.Resource, error) {
	return s.single(ctx, "resource.Get", store.IndexByTypeAndIdentifier, entity.ResourceIdentifierKey(identifier))
}

// GetByCristinID returns the resource imported with the given Cristin identifier.
func (s *Service) GetByCristinID(ctx context.Context, cristinID string) (*entity.Resource, error) {
	return s.single(ctx, "resource.GetByCristinID", store.IndexByCristinID, entity.CristinIDKey(cristinID))
}

func (s *Service) single(ctx context.Context, op string, index store.Index, key string) (*entity.Resource, error) {
	found, err := s.store.QueryByIndex(ctx, index, key)
	if err != nil {
		return nil, err
	}
	for _, e := range found {
		if r, ok := e.(*entity.Resource); ok {
			return r, nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, op, fmt.Sprintf("no resource for %s", key))
}

// ListByOwner returns every resource of one owner in creation order.
func (s *Service) ListByOwner(ctx context.Context, organizationID, owner string) ([]*entity.Resource, error) {
	found, err := s.store.QueryByPartition(ctx, entity.ResourcePartition(organizationID, owner))
	if err != nil {
		return nil, err
	}

	resources := make([]*entity.Resource, 0, len(found))
	for _, e := range found {
		r, ok := e.(*entity.Resource)
		if !ok {
			return nil, apperr.New(apperr.KindCorruptEntry, "resource.ListByOwner",
				fmt.Sprintf("unexpected %s in resource partition", e.EntityType()))
		}
		resources = append(resources, r)
	}
	return resources, nil
}

// Update replaces the bibliographic data of r. r.Version must match the
// stored version. Only the entity description, DOI and Cristin identifier
// are taken from r; status changes go through the lifecycle operations.
// The open DoiRequest, if any, gets a fresh snapshot in the same transaction.
func (s *Service) Update(ctx context.Context, actor access.Actor, r *entity.Resource) (*entity.Resource, error) {
	const op = "resource.Update"

	if !s.auth.IsOwner(actor, r) {
		return nil, apperr.New(apperr.KindForbidden, op, "only the owner can update a resource")
	}

	stored, err := s.stored(ctx, op, r)
	if err != nil {
		return nil, err
	}
	if stored.Status == entity.ResourceDeleted {
		return nil, apperr.New(apperr.KindIllegalTransition, op, "deleted resources cannot be updated")
	}
	if r.Status != stored.Status {
		return nil, apperr.New(apperr.KindIllegalTransition, op,
			fmt.Sprintf("update cannot change status from %s to %s", stored.Status, r.Status))
	}

	// Every status move issues a new version, so the version condition also
	// pins the status read above.
	updated := *stored
	updated.EntityDescription = r.EntityDescription
	updated.Doi = r.Doi
	updated.CristinID = r.CristinID
	updated.ModifiedDate = s.clock()
	updated.Version = entity.NewVersion()

	ops := []store.Op{store.PutOp(&updated, store.IfVersion(r.Version))}

	if s.tickets != nil {
		t, err := s.tickets.FindOpen(ctx, r.Identifier, entity.KindDoiRequest)
		switch {
		case err == nil:
			refreshed := *t
			refreshed.ResourceSnapshot = &updated
			refreshed.ModifiedDate = updated.ModifiedDate
			refreshed.Version = entity.NewVersion()
			ops = append(ops, store.PutOp(&refreshed, store.IfVersion(t.Version)))
		case apperr.KindOf(err) != apperr.KindNotFound:
			return nil, err
		}
	}

	if err := s.store.TransactWrite(ctx, ops...); err != nil {
		return nil, err
	}
	return &updated, nil
}

// stored reads the persisted copy of r.
func (s *Service) stored(ctx context.Context, op string, r *entity.Resource) (*entity.Resource, error) {
	e, err := s.store.Get(ctx, entity.KeyOf(r))
	if err != nil {
		return nil, err
	}
	stored, ok := e.(*entity.Resource)
	if !ok {
		return nil, apperr.New(apperr.KindCorruptEntry, op,
			fmt.Sprintf("unexpected %s at resource key", e.EntityType()))
	}
	return stored, nil
}

// Publish moves a draft to PUBLISHED.
func (s *Service) Publish(ctx context.Context, actor access.Actor, r *entity.Resource) (*entity.Resource, error) {
	return s.move(ctx, "resource.Publish", actor, r, entity.ResourcePublished)
}

// MarkForDeletion moves a draft to DRAFT_FOR_DELETION.
func (s *Service) MarkForDeletion(ctx context.Context, actor access.Actor, r *entity.Resource) (*entity.Resource, error) {
	return s.move(ctx, "resource.MarkForDeletion", actor, r, entity.ResourceDraftForDeletion)
}

// Restore returns a resource marked for deletion to DRAFT.
func (s *Service) Restore(ctx context.Context, actor access.Actor, r *entity.Resource) (*entity.Resource, error) {
	return s.move(ctx, "resource.Restore", actor, r, entity.ResourceDraft)
}

// Unpublish moves a published resource to DELETED. The entry is kept.
func (s *Service) Unpublish(ctx context.Context, actor access.Actor, r *entity.Resource) (*entity.Resource, error) {
	return s.move(ctx, "resource.Unpublish", actor, r, entity.ResourceDeleted)
}

func (s *Service) move(ctx context.Context, op string, actor access.Actor, r *entity.Resource, target entity.ResourceStatus) (*entity.Resource, error) {
	if !s.auth.IsOwner(actor, r) {
		return nil, apperr.New(apperr.KindForbidden, op, "only the owner can change a resource's status")
	}
	if !CanMove(r.Status, target) {
		return nil, apperr.New(apperr.KindIllegalTransition, op,
			fmt.Sprintf("resource cannot move from %s to %s", r.Status, target))
	}

	now := s.clock()
	updated := *r
	updated.Status = target
	updated.ModifiedDate = now
	updated.Version = entity.NewVersion()
	if target == entity.ResourcePublished {
		updated.PublishedDate = &now
	}

	if _, err := s.store.Put(ctx, &updated, store.IfVersion(r.Version)); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Purge removes a resource that was marked for deletion. The delete is
// conditioned on the stored status and on the resource having no open
// ticket of any kind.
func (s *Service) Purge(ctx context.Context, actor access.Actor, r *entity.Resource) error {
	const op = "resource.Purge"

	if !s.auth.IsOwner(actor, r) {
		return apperr.New(apperr.KindForbidden, op, "only the owner can purge a resource")
	}
	if r.Status != entity.ResourceDraftForDeletion {
		return apperr.New(apperr.KindIllegalTransition, op,
			fmt.Sprintf("only resources marked for deletion can be purged, status is %s", r.Status))
	}

	ops := make([]store.Op, 0, 1+len(entity.TicketKinds))
	ops = append(ops, store.DeleteOp(entity.KeyOf(r), store.IfStatus(string(entity.ResourceDraftForDeletion))))
	for _, kind := range entity.TicketKinds {
		ops = append(ops, store.CheckOp(entity.UniqueTicketKeyOf(kind, r.Identifier), store.IfNotExists()))
	}

	err := s.store.TransactWrite(ctx, ops...)
	if err == nil {
		return nil
	}
	for i, kind := range entity.TicketKinds {
		if store.ConflictAt(err, i+1) {
			return &apperr.Error{
				Kind:   apperr.KindConflict,
				Op:     op,
				Reason: fmt.Sprintf("resource has an open %s", kind),
				Err:    err,
			}
		}
	}
	return err
}

// CanMove reports whether a resource may change from one status to another.
func CanMove(from, to entity.ResourceStatus) bool {
	return slices.Contains(statusMoves[from], to)
}
