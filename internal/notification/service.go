package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/greenmart/grocery-backend/internal/auth"
)

type Service interface {
	List(ctx context.Context, actor auth.Actor) ([]Notification, error)
	MarkRead(ctx context.Context, actor auth.Actor, id uuid.UUID) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) List(ctx context.Context, actor auth.Actor) ([]Notification, error) {
	notifications, err := s.repo.ListByUser(ctx, actor.ID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", actor.ID).Msg("service: failed to list notifications")
		return nil, fmt.Errorf("service: failed to list notifications: %w", err)
	}
	return notifications, nil
}

func (s *service) MarkRead(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	err := s.repo.MarkRead(ctx, id, actor.ID)
	if err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			return ErrNotificationNotFound
		}
		log.Error().Err(err).Stringer("notification_id", id).Msg("service: failed to mark notification read")
		return fmt.Errorf("service: failed to mark notification read: %w", err)
	}
	return nil
}
