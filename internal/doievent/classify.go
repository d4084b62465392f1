// Package doievent decides which entity changes the DOI registrar must hear
// about, and builds the event it is sent.
//
// Classification depends only on the old and new entities, so replaying a
// change record yields the same decision.
package doievent

import (
	"github.com/jarrod-lowe/publication-registry/internal/changerecord"
	"github.com/jarrod-lowe/publication-registry/internal/entity"
)

// Type is the kind of DOI event emitted.
type Type string

const (
	NewDoiRequest Type = "NEW_DOI_REQUEST"
	DoiUpdate     Type = "DOI_UPDATE"
)

// Classify returns the event type for a change from before to after, or
// false when nothing the registrar cares about happened. Either side may be nil.
func Classify(before, after entity.Entity) (Type, bool) {
	oldTicket := doiRequest(before)
	newTicket := doiRequest(after)

	if newTicket == nil {
		return "", false
	}

	newProjection := projectTicket(newTicket)

	if oldTicket == nil {
		if newProjection.Doi != "" {
			return DoiUpdate, true
		}
		return NewDoiRequest, true
	}

	if oldTicket.Status == entity.TicketPending && newTicket.Status == entity.TicketCompleted {
		return DoiUpdate, true
	}
	if !projectTicket(oldTicket).Equal(newProjection) {
		return DoiUpdate, true
	}
	return "", false
}

func doiRequest(e entity.Entity) *entity.Ticket {
	t, ok := e.(*entity.Ticket)
	if !ok || t.Kind != entity.KindDoiRequest {
		return nil
	}
	return t
}

func projectTicket(t *entity.Ticket) Projection {
	if t.ResourceSnapshot == nil {
		return Projection{ResourceIdentifier: t.ResourceIdentifier}
	}
	p := Project(t.ResourceSnapshot)
	if p.ResourceIdentifier == "" {
		p.ResourceIdentifier = t.ResourceIdentifier
	}
	return p
}

// Event is the detail published for a DOI event.
type Event struct {
	Type       Type                    `json:"type"`
	UpdateKind changerecord.UpdateKind `json:"updateKind"`
	OldEntity  entity.Entity           `json:"oldEntity,omitempty"`
	NewEntity  entity.Entity           `json:"newEntity,omitempty"`
	Projection Projection              `json:"projection"`
}

// Decide classifies change and builds its event.
func Decide(change *changerecord.ChangeEvent) (*Event, bool) {
	typ, ok := Classify(change.Old, change.New)
	if !ok {
		return nil, false
	}
	return &Event{
		Type:       typ,
		UpdateKind: change.Kind,
		OldEntity:  change.Old,
		NewEntity:  change.New,
		Projection: projectTicket(doiRequest(change.New)),
	}, true
}
