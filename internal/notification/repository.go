package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotificationNotFound = errors.New("notification not found")

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Notification, error)
	ListByReference(ctx context.Context, referenceID uuid.UUID, referenceType string) ([]Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate notification ID: %w", err)
		}
		n.ID = id
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, title, body, reference_id, reference_type, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.UserID, n.Title, n.Body, n.ReferenceID, n.ReferenceType, n.Read, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert notification: %w", err)
	}
	return nil
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Notification, error) {
	return r.list(ctx, `
		SELECT id, user_id, title, body, reference_id, reference_type, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC`,
		userID,
	)
}

func (r *postgresRepository) ListByReference(ctx context.Context, referenceID uuid.UUID, referenceType string) ([]Notification, error) {
	return r.list(ctx, `
		SELECT id, user_id, title, body, reference_id, reference_type, read, created_at
		FROM notifications
		WHERE reference_id = $1 AND reference_type = $2
		ORDER BY created_at ASC`,
		referenceID, referenceType,
	)
}

func (r *postgresRepository) list(ctx context.Context, query string, args ...any) ([]Notification, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]Notification, 0)
	for rows.Next() {
		var n Notification
		err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.ReferenceID, &n.ReferenceType, &n.Read, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead flips the read flag. The user_id guard keeps actors from touching
// other users' notifications.
func (r *postgresRepository) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to mark notification %s read: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
