package notifications

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/internal/realtime"
)

// Store is the notification persistence the dispatcher needs.
type Store interface {
	Create(ctx context.Context, n *models.Notification) error
	ListForMember(ctx context.Context, memberID uuid.UUID) ([]*models.Notification, error)
	MarkRead(ctx context.Context, memberID, id uuid.UUID) (bool, error)
	MarkAllRead(ctx context.Context, memberID uuid.UUID) (int64, error)
}

// Publisher signals changes to subscribed sessions.
type Publisher interface {
	Publish(ctx context.Context, topic, name string, data interface{})
}

// Inbox is a member's notifications with the derived unread count.
type Inbox struct {
	Notifications []*models.Notification `json:"notifications"`
	UnreadCount   int                    `json:"unread_count"`
}

// NewInbox builds an inbox, counting unread entries from list.
func NewInbox(list []*models.Notification) *Inbox {
	in := &Inbox{Notifications: list}
	for _, n := range list {
		if !n.Read {
			in.UnreadCount++
		}
	}
	return in
}

// Dispatcher creates and tracks per-member notices.
type Dispatcher struct {
	store     Store
	publisher Publisher
	logger    *zap.Logger
}

// NewDispatcher creates a notification dispatcher.
func NewDispatcher(store Store, publisher Publisher, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{store: store, publisher: publisher, logger: logger}
}

// Create stores a notice for target.
func (d *Dispatcher) Create(ctx context.Context, target uuid.UUID, title, message string, kind models.NotificationType, related *uuid.UUID) (*models.Notification, error) {
	if target == uuid.Nil {
		return nil, apperr.Validation("create notification", "target member is required")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.Validation("create notification", "title is required")
	}
	if !kind.Valid() {
		return nil, apperr.Validation("create notification", "unknown type %q", kind)
	}
	n := &models.Notification{
		UserID:               target,
		Title:                title,
		Message:              message,
		Type:                 kind,
		RelatedApplicationID: related,
	}
	if err := d.store.Create(ctx, n); err != nil {
		return nil, err
	}
	d.changed(ctx, target)
	return n, nil
}

// List returns the actor's inbox, newest first.
func (d *Dispatcher) List(ctx context.Context, actor *models.Member) (*Inbox, error) {
	list, err := d.store.ListForMember(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return NewInbox(list), nil
}

// MarkRead marks one of the actor's notifications read. Re-marking is a no-op.
func (d *Dispatcher) MarkRead(ctx context.Context, actor *models.Member, id uuid.UUID) error {
	changed, err := d.store.MarkRead(ctx, actor.ID, id)
	if err != nil {
		d.logger.Warn("mark notification read failed",
			zap.String("member_id", actor.ID.String()),
			zap.String("notification_id", id.String()),
			zap.Error(err),
		)
		return err
	}
	if changed {
		d.changed(ctx, actor.ID)
	}
	return nil
}

// MarkAllRead marks every notification of the actor read. Idempotent.
func (d *Dispatcher) MarkAllRead(ctx context.Context, actor *models.Member) error {
	n, err := d.store.MarkAllRead(ctx, actor.ID)
	if err != nil {
		d.logger.Warn("mark all notifications read failed", zap.String("member_id", actor.ID.String()), zap.Error(err))
		return err
	}
	if n > 0 {
		d.changed(ctx, actor.ID)
	}
	return nil
}

// changed runs after a committed write, so it ignores cancellation of ctx.
func (d *Dispatcher) changed(ctx context.Context, memberID uuid.UUID) {
	if d.publisher == nil {
		return
	}
	d.publisher.Publish(context.WithoutCancel(ctx), realtime.NotificationsTopic(memberID), realtime.EventNotificationsChanged, nil)
}
