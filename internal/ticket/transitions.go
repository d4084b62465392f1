package ticket

import "github.com/jarrod-lowe/publication-registry/internal/entity"

// role is who may take an edge.
type role int

const (
	roleOwner role = 1 << iota
	roleCurator
)

type edge struct {
	from entity.TicketStatus
	to   entity.TicketStatus
}

// transitions is the allowed-edge table for each ticket kind.
var transitions = map[entity.TicketKind]map[edge]role{
	entity.KindDoiRequest: {
		{entity.TicketPending, entity.TicketCompleted}: roleCurator,
		{entity.TicketPending, entity.TicketClosed}:    roleCurator,
		{entity.TicketPending, entity.TicketPending}:   roleOwner,
		{entity.TicketPending, entity.TicketRemoved}:   roleOwner | roleCurator,
	},
	entity.KindPublishingRequest: {
		{entity.TicketPending, entity.TicketCompleted}: roleCurator,
		{entity.TicketPending, entity.TicketClosed}:    roleCurator,
		{entity.TicketPending, entity.TicketRemoved}:   roleOwner | roleCurator,
	},
	entity.KindGeneralSupportRequest: {
		{entity.TicketPending, entity.TicketClosed}:  roleCurator,
		{entity.TicketPending, entity.TicketRemoved}: roleOwner | roleCurator,
	},
}

// Allowed reports whether kind permits moving from one status to another.
func Allowed(kind entity.TicketKind, from, to entity.TicketStatus) bool {
	_, ok := transitions[kind][edge{from, to}]
	return ok
}
