package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitness-league/internal/model"
)

// NotificationRepository persists notifications.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository creates a new NotificationRepository instance.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Create inserts a notification. An empty ID is generated.
func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	const query = `
		INSERT INTO notifications (id, user_id, importance, type, title, message, created_at, created_at_user_tz)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, user_id, importance, type, title, message, created_at, created_at_user_tz`

	id := n.ID
	if id == "" {
		id = uuid.NewString()
	}

	var (
		out model.Notification
		typ string
	)
	err := r.pool.QueryRow(ctx, query,
		id, n.UserID, n.Importance, string(n.Type), n.Title, n.Message, n.CreatedAt, n.CreatedAtUserTZ,
	).Scan(&out.ID, &out.UserID, &out.Importance, &typ, &out.Title, &out.Message, &out.CreatedAt, &out.CreatedAtUserTZ)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	out.Type = model.NotificationType(typ)
	return &out, nil
}

// ListByUser returns the user's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, importance, type, title, message, created_at, created_at_user_tz
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*model.Notification
	for rows.Next() {
		var (
			n   model.Notification
			typ string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Importance, &typ, &n.Title, &n.Message, &n.CreatedAt, &n.CreatedAtUserTZ); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Type = model.NotificationType(typ)
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}
	return out, nil
}
