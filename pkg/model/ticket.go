package model

import (
	"time"

	"github.com/google/uuid"
)

// TicketStatus is the lifecycle state of a support ticket.
type TicketStatus string

const (
	TicketOpen   TicketStatus = "open"
	TicketClosed TicketStatus = "closed"
)

// SupportTicket records a user's message to the support channel.
type SupportTicket struct {
	ID        uuid.UUID    `json:"id"`
	UserID    int64        `json:"user_id"`
	Message   string       `json:"message"`
	Status    TicketStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}
