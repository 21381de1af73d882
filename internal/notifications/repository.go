package notifications

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/pkg/database"
)

// Repository handles notification persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a notifications repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a notification and fills its generated fields.
func (r *Repository) Create(ctx context.Context, n *models.Notification) error {
	const q = `INSERT INTO notifications (user_id, title, message, type, related_application_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, read, created_at`
	err := r.pool.QueryRow(ctx, q, n.UserID, n.Title, n.Message, n.Type, n.RelatedApplicationID).
		Scan(&n.ID, &n.Read, &n.CreatedAt)
	if err != nil {
		return apperr.Store("create notification", err)
	}
	return nil
}

// ListForMember returns a member's notifications, newest first.
func (r *Repository) ListForMember(ctx context.Context, memberID uuid.UUID) ([]*models.Notification, error) {
	const q = `SELECT id, user_id, title, message, type, read, related_application_id, created_at
		FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, memberID)
	if err != nil {
		return nil, apperr.Store("list notifications", err)
	}
	defer rows.Close()
	list := make([]*models.Notification, 0)
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Read, &n.RelatedApplicationID, &n.CreatedAt); err != nil {
			return nil, apperr.Store("list notifications", err)
		}
		list = append(list, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("list notifications", err)
	}
	return list, nil
}

// MarkRead sets read on one of the member's notifications. Reports whether
// the row changed; an already-read row is found but unchanged.
func (r *Repository) MarkRead(ctx context.Context, memberID, id uuid.UUID) (bool, error) {
	const q = `WITH target AS (
			SELECT id, read FROM notifications WHERE id = $1 AND user_id = $2
		), upd AS (
			UPDATE notifications n SET read = TRUE
			FROM target WHERE n.id = target.id AND NOT target.read
			RETURNING n.id
		)
		SELECT (SELECT COUNT(*) FROM upd) > 0 FROM target`
	var changed bool
	if err := r.pool.QueryRow(ctx, q, id, memberID).Scan(&changed); err != nil {
		if database.IsNoRows(err) {
			return false, apperr.NotFound("mark read", "notification")
		}
		return false, apperr.Store("mark read", err)
	}
	return changed, nil
}

// MarkAllRead marks every unread notification of the member read and returns
// how many changed.
func (r *Repository) MarkAllRead(ctx context.Context, memberID uuid.UUID) (int64, error) {
	const q = `UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE`
	tag, err := r.pool.Exec(ctx, q, memberID)
	if err != nil {
		return 0, apperr.Store("mark all read", err)
	}
	return tag.RowsAffected(), nil
}
