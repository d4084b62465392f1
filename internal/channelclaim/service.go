// Package channelclaim records which customer owns a publishing channel.
package channelclaim

import (
	"context"
	"fmt"
	"time"

	"github.com/jarrod-lowe/publication-registry/internal/access"
	"github.com/jarrod-lowe/publication-registry/internal/apperr"
	"github.com/jarrod-lowe/publication-registry/internal/entity"
	"github.com/jarrod-lowe/publication-registry/internal/store"
)

// Store is the subset of the entity store the claim service needs.
type Store interface {
	Get(ctx context.Context, key entity.Key) (entity.Entity, error)
	Put(ctx context.Context, e entity.Entity, cond store.Condition) (store.Entry, error)
	Delete(ctx context.Context, key entity.Key, cond store.Condition) error
	QueryByIndex(ctx context.Context, index store.Index, key string) ([]entity.Entity, error)
}

// Service runs channel claim operations.
type Service struct {
	store Store
	auth  access.Authorizer
	clock func() time.Time
}

// NewService creates a channel claim Service. A nil clock uses the current UTC time.
func NewService(s Store, auth access.Authorizer, clock func() time.Time) *Service {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{store: s, auth: auth, clock: clock}
}

// Claim records that the actor's customer owns channelID. A channel already
// claimed by anyone is a Conflict.
func (s *Service) Claim(ctx context.Context, actor access.Actor, channelID string, constraint entity.ChannelConstraint) (*entity.ChannelClaim, error) {
	const op = "channelclaim.Claim"

	if err := s.authorize(op, actor); err != nil {
		return nil, err
	}

	c := &entity.ChannelClaim{
		ChannelID:      channelID,
		CustomerID:     actor.CustomerID,
		OrganizationID: actor.OrganizationID,
		ClaimedBy:      actor.Username,
		ClaimedDate:    s.clock(),
		Constraint:     constraint,
	}

	if _, err := s.store.Put(ctx, c, store.IfNotExists()); err != nil {
		if apperr.KindOf(err) == apperr.KindConflict {
			return nil, apperr.New(apperr.KindConflict, op, fmt.Sprintf("channel %s is already claimed", channelID))
		}
		return nil, err
	}
	return c, nil
}

// Release removes the actor's customer's claim on channelID.
func (s *Service) Release(ctx context.Context, actor access.Actor, channelID string) error {
	const op = "channelclaim.Release"

	if err := s.authorize(op, actor); err != nil {
		return err
	}

	err := s.store.Delete(ctx,
		entity.Key{PK: entity.ChannelClaimKey(channelID), SK: entity.ChannelClaimKey(channelID)},
		store.IfDataEquals("customerId", actor.CustomerID),
	)
	if apperr.KindOf(err) == apperr.KindConflict {
		return apperr.New(apperr.KindForbidden, op, fmt.Sprintf("channel %s is not claimed by this customer", channelID))
	}
	return err
}

// Get returns the claim on channelID.
func (s *Service) Get(ctx context.Context, channelID string) (*entity.ChannelClaim, error) {
	e, err := s.store.Get(ctx, entity.Key{PK: entity.ChannelClaimKey(channelID), SK: entity.ChannelClaimKey(channelID)})
	if err != nil {
		return nil, err
	}
	c, ok := e.(*entity.ChannelClaim)
	if !ok {
		return nil, apperr.New(apperr.KindCorruptEntry, "channelclaim.Get", fmt.Sprintf("expected a channel claim, got %s", e.EntityType()))
	}
	return c, nil
}

// ListForCustomer returns every channel claimed by a customer.
func (s *Service) ListForCustomer(ctx context.Context, customerID string) ([]*entity.ChannelClaim, error) {
	found, err := s.store.QueryByIndex(ctx, store.IndexByTypeAndIdentifier, entity.ChannelClaimCustomerKey(customerID))
	if err != nil {
		return nil, err
	}

	claims := make([]*entity.ChannelClaim, 0, len(found))
	for _, e := range found {
		if c, ok := e.(*entity.ChannelClaim); ok {
			claims = append(claims, c)
		}
	}
	return claims, nil
}

func (s *Service) authorize(op string, actor access.Actor) error {
	if actor.CustomerID == "" || !s.auth.HasRight(actor, access.RightManageChannelClaims) {
		return apperr.New(apperr.KindForbidden, op, "managing channel claims requires the channel claim right")
	}
	return nil
}
