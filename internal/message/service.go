// Package message stores conversation messages on resources and tickets.
package message

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jarrod-lowe/publication-registry/internal/access"
	"github.com/jarrod-lowe/publication-registry/internal/apperr"
	"github.com/jarrod-lowe/publication-registry/internal/entity"
	"github.com/jarrod-lowe/publication-registry/internal/store"
)

// Store is the subset of the entity store the message service needs.
type Store interface {
	Put(ctx context.Context, e entity.Entity, cond store.Condition) (store.Entry, error)
	QueryByPartition(ctx context.Context, pk string) ([]entity.Entity, error)
}

// Service runs message operations.
type Service struct {
	store Store
	auth  access.Authorizer
	clock func() time.Time
}

// NewService creates a message Service. A nil clock uses the current UTC time.
func NewService(s Store, auth access.Authorizer, clock func() time.Time) *Service {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{store: s, auth: auth, clock: clock}
}

// Create adds a message to resource, optionally tied to t. The sender must
// own the resource or hold the curator right for the ticket's kind.
func (s *Service) Create(ctx context.Context, actor access.Actor, resource *entity.Resource, t *entity.Ticket, text string) (*entity.Message, error) {
	const op = "message.Create"

	if strings.TrimSpace(text) == "" {
		return nil, apperr.New(apperr.KindConflict, op, "message text is empty")
	}
	if t != nil && t.ResourceIdentifier != resource.Identifier {
		return nil, apperr.New(apperr.KindConflict, op, "ticket belongs to another resource")
	}
	if !s.mayWrite(actor, resource, t) {
		return nil, apperr.New(apperr.KindForbidden, op, "not permitted to write messages on this resource")
	}

	now := s.clock()
	m := &entity.Message{
		Identifier:         entity.NewIdentifier(),
		ResourceIdentifier: resource.Identifier,
		Sender:             actor.Username,
		Owner:              resource.Owner,
		OrganizationID:     resource.OrganizationID,
		Text:               text,
		Status:             entity.MessageActive,
		CreatedDate:        now,
		ModifiedDate:       now,
		Version:            entity.NewVersion(),
	}
	if t != nil {
		m.TicketIdentifier = t.Identifier
	}

	if _, err := s.store.Put(ctx, m, store.IfNotExists()); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) mayWrite(actor access.Actor, resource *entity.Resource, t *entity.Ticket) bool {
	if s.auth.IsOwner(actor, resource) {
		return true
	}
	if actor.OrganizationID != resource.OrganizationID {
		return false
	}
	if t != nil {
		return s.auth.HasRight(actor, access.CuratorRight(t.Kind))
	}
	return s.auth.HasRight(actor, access.RightSupport)
}

// ListForResource returns the resource's messages in creation order,
// including soft-deleted ones.
func (s *Service) ListForResource(ctx context.Context, resourceIdentifier string) ([]*entity.Message, error) {
	found, err := s.store.QueryByPartition(ctx, entity.MessagePartition(resourceIdentifier))
	if err != nil {
		return nil, err
	}

	messages := make([]*entity.Message, 0, len(found))
	for _, e := range found {
		m, ok := e.(*entity.Message)
		if !ok {
			return nil, apperr.New(apperr.KindCorruptEntry, "message.ListForResource",
				fmt.Sprintf("unexpected %s in message partition", e.EntityType()))
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// ListForTicket returns the messages tied to one ticket.
func (s *Service) ListForTicket(ctx context.Context, t *entity.Ticket) ([]*entity.Message, error) {
	all, err := s.ListForResource(ctx, t.ResourceIdentifier)
	if err != nil {
		return nil, err
	}

	var messages []*entity.Message
	for _, m := range all {
		if m.TicketIdentifier == t.Identifier {
			messages = append(messages, m)
		}
	}
	return messages, nil
}

// SoftDelete blanks the text of m and marks it deleted. Only the sender can
// delete a message.
func (s *Service) SoftDelete(ctx context.Context, actor access.Actor, m *entity.Message) (*entity.Message, error) {
	const op = "message.SoftDelete"

	if actor.Username == "" || actor.Username != m.Sender {
		return nil, apperr.New(apperr.KindForbidden, op, "only the sender can delete a message")
	}
	if m.Status == entity.MessageDeleted {
		return m, nil
	}

	deleted := *m
	deleted.Status = entity.MessageDeleted
	deleted.Text = ""
	deleted.ModifiedDate = s.clock()
	deleted.Version = entity.NewVersion()

	if _, err := s.store.Put(ctx, &deleted, store.IfVersion(m.Version)); err != nil {
		return nil, err
	}
	return &deleted, nil
}
