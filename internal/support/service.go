package support

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/whalepay/storefront/pkg/model"
)

var (
	ErrEmptyMessage    = errors.New("support message is empty")
	ErrInvalidTicketID = errors.New("invalid ticket id")
)

// Store persists tickets.
type Store interface {
	CreateTicket(ctx context.Context, t model.SupportTicket) error
	CloseTicket(ctx context.Context, id string) (bool, error)
}

// Courier notifies operators about new tickets.
type Courier interface {
	PublishEvent(ctx context.Context, subject, eventType string, userID int64, payload any) error
}

// Service records support requests and notifies the operator channel.
type Service struct {
	logger  *zap.Logger
	store   Store
	courier Courier
	subject string
}

func NewService(logger *zap.Logger, store Store, courier Courier, subject string) *Service {
	return &Service{
		logger:  logger,
		store:   store,
		courier: courier,
		subject: subject,
	}
}

// OpenTicket records a new support request and emits support.ticket_created.
func (s *Service) OpenTicket(ctx context.Context, userID int64, message string) (*model.SupportTicket, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	ticket := model.SupportTicket{
		ID:        uuid.New(),
		UserID:    userID,
		Message:   message,
		Status:    model.TicketOpen,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.CreateTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("persist ticket: %w", err)
	}

	if err := s.courier.PublishEvent(ctx, s.subject, "support.ticket_created", userID, ticket); err != nil {
		// the ticket is durable; operators can still find it in the table
		s.logger.Error("support.publish_failed",
			zap.String("ticket_id", ticket.ID.String()), zap.Error(err))
	}

	s.logger.Info("support.ticket_created",
		zap.String("ticket_id", ticket.ID.String()),
		zap.Int64("user_id", userID))
	return &ticket, nil
}

// CloseTicket marks an open ticket closed. Returns false when the ticket is
// unknown or already closed.
func (s *Service) CloseTicket(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, fmt.Errorf("%w: %q", ErrInvalidTicketID, id)
	}
	return s.store.CloseTicket(ctx, id)
}
