// Package ticket implements the ticket state machine.
//
// Tickets move only along the edges in the transition table. At most one
// open ticket of each kind exists per resource; the uniqueness marker is
// written in the same transaction as the ticket and removed in the same
// transaction that makes the ticket terminal.
package ticket

import (
	"context"
	"fmt"
	"time"

	"github.com/jarrod-lowe/jmap-service-libs/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jarrod-lowe/publication-registry/internal/access"
	"github.com/jarrod-lowe/publication-registry/internal/apperr"
	"github.com/jarrod-lowe/publication-registry/internal/entity"
	"github.com/jarrod-lowe/publication-registry/internal/store"
)

// Store is the subset of the entity store the state machine needs.
type Store interface {
	Get(ctx context.Context, key entity.Key) (entity.Entity, error)
	Put(ctx context.Context, e entity.Entity, cond store.Condition) (store.Entry, error)
	QueryByPartition(ctx context.Context, pk string) ([]entity.Entity, error)
	QueryByIndex(ctx context.Context, index store.Index, key string) ([]entity.Entity, error)
	TransactWrite(ctx context.Context, ops ...store.Op) error
	SetViewed(ctx context.Context, key entity.Key, party string, viewed bool) (entity.Entity, error)
}

const tracerName = "publication-ticket"

// createAttempts bounds the retries when a marker disappears between the
// conflicting write and the lookup of the ticket it referenced.
const createAttempts = 2

// Service runs ticket operations.
type Service struct {
	store Store
	auth  access.Authorizer
	opts  *Options
}

// NewService creates a ticket Service.
func NewService(s Store, auth access.Authorizer, opts ...Option) (*Service, error) {
	options := newOptions()
	for _, o := range opts {
		o(options)
	}
	if err := options.validate(); err != nil {
		return nil, fmt.Errorf("invalid ticket options: %w", err)
	}

	return &Service{store: s, auth: auth, opts: options}, nil
}

// CreateOption configures a single Create call.
type CreateOption func(*entity.Ticket)

// WithWorkflow sets the publishing workflow of a PublishingRequest.
func WithWorkflow(workflow string) CreateOption {
	return func(t *entity.Ticket) {
		if t.Kind == entity.KindPublishingRequest {
			t.Workflow = workflow
		}
	}
}

// Create opens a ticket of kind on resource. If an open ticket of that kind
// already exists it is returned unchanged, or refreshed when it is a
// DoiRequest older than the cooldown.
func (s *Service) Create(ctx context.Context, resource *entity.Resource, kind entity.TicketKind, actor access.Actor, opts ...CreateOption) (*entity.Ticket, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "ticket.Create",
		trace.WithAttributes(
			attribute.String("ticket_kind", string(kind)),
			attribute.String("resource_id", resource.Identifier),
		))
	defer span.End()

	t, err := s.create(ctx, resource, kind, actor, opts)
	if err != nil {
		tracing.RecordError(span, err)
	}
	return t, err
}

func (s *Service) create(ctx context.Context, resource *entity.Resource, kind entity.TicketKind, actor access.Actor, opts []CreateOption) (*entity.Ticket, error) {
	const op = "ticket.Create"

	if !kind.Valid() {
		return nil, apperr.New(apperr.KindIllegalTransition, op, fmt.Sprintf("unknown ticket kind %q", kind))
	}
	if !s.auth.IsOwner(actor, resource) {
		return nil, apperr.New(apperr.KindForbidden, op, "only the resource owner can open tickets")
	}
	if resource.Status == entity.ResourceDeleted || resource.Status == entity.ResourceDraftForDeletion {
		return nil, apperr.New(apperr.KindIllegalTransition, op,
			fmt.Sprintf("cannot open a ticket on a resource in status %s", resource.Status))
	}

	for attempt := 1; ; attempt++ {
		t := s.newTicket(resource, kind, opts)
		marker := &entity.UniqueTicketEntry{
			Kind:               kind,
			ResourceIdentifier: resource.Identifier,
			TicketIdentifier:   t.Identifier,
		}

		err := s.store.TransactWrite(ctx,
			store.PutOp(t, store.IfNotExists()),
			store.PutOp(marker, store.IfNotExists()),
		)
		if err == nil {
			return t, nil
		}
		if !store.ConflictAt(err, 1) {
			return nil, err
		}

		existing, err := s.FindOpen(ctx, resource.Identifier, kind)
		if apperr.KindOf(err) == apperr.KindNotFound && attempt < createAttempts {
			continue
		}
		if err != nil {
			return nil, err
		}

		if kind == entity.KindDoiRequest && s.cooledDown(existing) {
			return s.refresh(ctx, existing, resource)
		}
		return existing, nil
	}
}

func (s *Service) newTicket(resource *entity.Resource, kind entity.TicketKind, opts []CreateOption) *entity.Ticket {
	now := s.opts.clock()
	t := &entity.Ticket{
		Kind:               kind,
		Identifier:         entity.NewIdentifier(),
		ResourceIdentifier: resource.Identifier,
		Owner:              resource.Owner,
		OrganizationID:     resource.OrganizationID,
		Status:             entity.TicketPending,
		CreatedDate:        now,
		ModifiedDate:       now,
		Version:            entity.NewVersion(),
		ViewedBy:           []string{entity.ViewedByOwner},
	}
	if kind == entity.KindDoiRequest {
		t.ResourceSnapshot = snapshot(resource)
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Transition moves t to target on behalf of actor.
func (s *Service) Transition(ctx context.Context, t *entity.Ticket, target entity.TicketStatus, actor access.Actor) (*entity.Ticket, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "ticket.Transition",
		trace.WithAttributes(
			attribute.String("ticket_id", t.Identifier),
			attribute.String("from_status", string(t.Status)),
			attribute.String("to_status", string(target)),
		))
	defer span.End()

	next, err := s.transition(ctx, t, target, actor)
	if err != nil {
		tracing.RecordError(span, err)
	}
	return next, err
}

func (s *Service) transition(ctx context.Context, t *entity.Ticket, target entity.TicketStatus, actor access.Actor) (*entity.Ticket, error) {
	const op = "ticket.Transition"

	// Legality is judged against the stored ticket, not the caller's copy.
	stored, err := s.current(ctx, op, t)
	if err != nil {
		return nil, err
	}

	allowed, ok := transitions[stored.Kind][edge{stored.Status, target}]
	if !ok {
		return nil, apperr.New(apperr.KindIllegalTransition, op,
			fmt.Sprintf("%s cannot move from %s to %s", stored.Kind, stored.Status, target))
	}
	if stored.Version != t.Version {
		return nil, apperr.New(apperr.KindConflict, op, "ticket changed since it was read")
	}
	t = stored

	resource, err := s.resourceOf(ctx, t)
	if err != nil {
		return nil, err
	}

	party, ok := s.actingParty(actor, resource, t, allowed)
	if !ok {
		return nil, apperr.New(apperr.KindForbidden, op,
			fmt.Sprintf("not permitted to move %s from %s to %s", t.Kind, t.Status, target))
	}

	if t.Status == target {
		if !s.cooledDown(t) {
			return nil, apperr.New(apperr.KindIllegalTransition, op,
				fmt.Sprintf("%s can only be refreshed once every %s", t.Kind, s.opts.refreshCooldown))
		}
		return s.refresh(ctx, t, resource)
	}

	now := s.opts.clock()
	updated := *t
	updated.Status = target
	updated.ModifiedDate = now
	updated.Version = entity.NewVersion()
	updated.ViewedBy = []string{party}
	if t.Kind == entity.KindDoiRequest {
		updated.ResourceSnapshot = snapshot(resource)
	}

	ops := []store.Op{store.PutOp(&updated, store.IfVersion(t.Version))}
	if target.Terminal() {
		updated.FinalizedBy = actor.Username
		updated.FinalizedDate = &now
		ops = append(ops, store.DeleteOp(
			entity.UniqueTicketKeyOf(t.Kind, t.ResourceIdentifier),
			store.IfDataEquals("ticketIdentifier", t.Identifier),
		))
	}

	if err := s.store.TransactWrite(ctx, ops...); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Assign hands a pending ticket to a curator holding the kind's right.
func (s *Service) Assign(ctx context.Context, t *entity.Ticket, assignee string, actor access.Actor) (*entity.Ticket, error) {
	const op = "ticket.Assign"

	stored, err := s.current(ctx, op, t)
	if err != nil {
		return nil, err
	}
	if stored.Status.Terminal() {
		return nil, apperr.New(apperr.KindIllegalTransition, op,
			fmt.Sprintf("cannot assign a %s ticket", stored.Status))
	}
	if !access.HasRightOn(s.auth, actor, access.CuratorRight(t.Kind), t.OrganizationID) {
		return nil, apperr.New(apperr.KindForbidden, op, "only curators can assign tickets")
	}

	updated := *t
	updated.Assignee = assignee
	updated.ModifiedDate = s.opts.clock()
	updated.Version = entity.NewVersion()

	if _, err := s.store.Put(ctx, &updated, store.IfVersion(t.Version)); err != nil {
		return nil, err
	}
	return &updated, nil
}

// refresh re-anchors a pending DoiRequest at the current time with a fresh
// snapshot of its resource.
func (s *Service) refresh(ctx context.Context, t *entity.Ticket, resource *entity.Resource) (*entity.Ticket, error) {
	now := s.opts.clock()
	updated := *t
	updated.CreatedDate = now
	updated.ModifiedDate = now
	updated.Version = entity.NewVersion()
	updated.ResourceSnapshot = snapshot(resource)
	updated.ViewedBy = []string{entity.ViewedByOwner}

	if _, err := s.store.Put(ctx, &updated, store.IfVersion(t.Version)); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Service) cooledDown(t *entity.Ticket) bool {
	return s.Age(t) >= s.opts.refreshCooldown
}

// actingParty returns the viewedBy party for actor if it may take an edge
// open to the given roles.
func (s *Service) actingParty(actor access.Actor, resource *entity.Resource, t *entity.Ticket, allowed role) (string, bool) {
	if allowed&roleCurator != 0 && access.HasRightOn(s.auth, actor, access.CuratorRight(t.Kind), t.OrganizationID) {
		return entity.ViewedByCurator, true
	}
	if allowed&roleOwner != 0 && s.auth.IsOwner(actor, resource) {
		return entity.ViewedByOwner, true
	}
	return "", false
}

// current reads the stored copy of t.
func (s *Service) current(ctx context.Context, op string, t *entity.Ticket) (*entity.Ticket, error) {
	e, err := s.store.Get(ctx, entity.KeyOf(t))
	if err != nil {
		return nil, err
	}
	return asTicket(op, e)
}

func (s *Service) resourceOf(ctx context.Context, t *entity.Ticket) (*entity.Resource, error) {
	e, err := s.store.Get(ctx, entity.Key{
		PK: entity.ResourcePartition(t.OrganizationID, t.Owner),
		SK: t.ResourceIdentifier,
	})
	if err != nil {
		return nil, err
	}
	r, ok := e.(*entity.Resource)
	if !ok {
		return nil, apperr.New(apperr.KindCorruptEntry, "ticket.resourceOf",
			fmt.Sprintf("entry for resource %s is a %s", t.ResourceIdentifier, e.EntityType()))
	}
	return r, nil
}

// MarkReadByOwner records that the owner has seen the ticket.
func (s *Service) MarkReadByOwner(ctx context.Context, t *entity.Ticket) (*entity.Ticket, error) {
	return s.setViewed(ctx, t, entity.ViewedByOwner, true)
}

// MarkUnreadByOwner clears the owner's viewed flag.
func (s *Service) MarkUnreadByOwner(ctx context.Context, t *entity.Ticket) (*entity.Ticket, error) {
	return s.setViewed(ctx, t, entity.ViewedByOwner, false)
}

// MarkReadForCurators records that curators have seen the ticket.
func (s *Service) MarkReadForCurators(ctx context.Context, t *entity.Ticket) (*entity.Ticket, error) {
	return s.setViewed(ctx, t, entity.ViewedByCurator, true)
}

// MarkUnreadForCurators clears the curators' viewed flag.
func (s *Service) MarkUnreadForCurators(ctx context.Context, t *entity.Ticket) (*entity.Ticket, error) {
	return s.setViewed(ctx, t, entity.ViewedByCurator, false)
}

func (s *Service) setViewed(ctx context.Context, t *entity.Ticket, party string, viewed bool) (*entity.Ticket, error) {
	e, err := s.store.SetViewed(ctx, entity.KeyOf(t), party, viewed)
	if err != nil {
		return nil, err
	}
	return asTicket("ticket.setViewed", e)
}

// Get returns the ticket with the given identifier.
func (s *Service) Get(ctx context.Context, identifier string) (*entity.Ticket, error) {
	const op = "ticket.Get"

	found, err := s.store.QueryByIndex(ctx, store.IndexByTypeAndIdentifier, entity.TicketIdentifierKey(identifier))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, apperr.New(apperr.KindNotFound, op, fmt.Sprintf("ticket %s not found", identifier))
	}
	return asTicket(op, found[0])
}

// ListForResource returns every ticket of a resource in creation order.
func (s *Service) ListForResource(ctx context.Context, resourceIdentifier string) ([]*entity.Ticket, error) {
	found, err := s.store.QueryByPartition(ctx, entity.TicketPartition(resourceIdentifier))
	if err != nil {
		return nil, err
	}

	tickets := make([]*entity.Ticket, 0, len(found))
	for _, e := range found {
		t, err := asTicket("ticket.ListForResource", e)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

// FindOpen returns the open ticket of kind on a resource, via its marker.
func (s *Service) FindOpen(ctx context.Context, resourceIdentifier string, kind entity.TicketKind) (*entity.Ticket, error) {
	const op = "ticket.FindOpen"

	e, err := s.store.Get(ctx, entity.UniqueTicketKeyOf(kind, resourceIdentifier))
	if err != nil {
		return nil, err
	}
	marker, ok := e.(*entity.UniqueTicketEntry)
	if !ok {
		return nil, apperr.New(apperr.KindCorruptEntry, op, "uniqueness marker has the wrong type")
	}

	e, err = s.store.Get(ctx, entity.Key{
		PK: entity.TicketPartition(resourceIdentifier),
		SK: marker.TicketIdentifier,
	})
	if err != nil {
		return nil, err
	}
	return asTicket(op, e)
}

func asTicket(op string, e entity.Entity) (*entity.Ticket, error) {
	t, ok := e.(*entity.Ticket)
	if !ok {
		return nil, apperr.New(apperr.KindCorruptEntry, op, fmt.Sprintf("expected a ticket, got %s", e.EntityType()))
	}
	return t, nil
}

func snapshot(r *entity.Resource) *entity.Resource {
	c := *r
	c.EntityDescription.Contributors = append([]entity.Contributor(nil), r.EntityDescription.Contributors...)
	return &c
}

// Age returns how long ago the ticket was created or last refreshed.
func (s *Service) Age(t *entity.Ticket) time.Duration {
	return s.opts.clock().Sub(t.CreatedDate)
}
