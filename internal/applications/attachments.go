package applications

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/pkg/queue"
	"github.com/ryohi-cloud/backend/pkg/storage"
)

// ObjectStore holds attachment objects; *storage.S3 satisfies it.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	PresignDownload(ctx context.Context, key, filename string) (string, error)
	Delete(ctx context.Context, key string) error
}

// CleanupQueue schedules deletion of orphaned objects; *queue.Queue satisfies it.
type CleanupQueue interface {
	EnqueueAttachmentCleanup(ctx context.Context, payload queue.AttachmentCleanupPayload) error
}

// Upload is one attachment file received from a client.
type Upload struct {
	FileName string
	Size     int64
	Body     io.Reader
}

// AddAttachment stores a file and appends it to the application. The actor
// needs the same rights as for Update.
func (s *Service) AddAttachment(ctx context.Context, actor *models.Member, id uuid.UUID, up Upload) (*models.Application, error) {
	const op = "add attachment"
	if s.objects == nil {
		return nil, apperr.Validation(op, "attachments are not enabled")
	}
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(up.FileName), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return nil, apperr.Validation(op, "file name is required")
	}
	contentType, ok := storage.ContentTypeFor(name)
	if !ok {
		return nil, apperr.Validation(op, "unsupported file type %q", path.Ext(name))
	}
	if up.Size <= 0 || up.Size > storage.MaxAttachmentSize {
		return nil, apperr.Validation(op, "file must be between 1 byte and %d bytes", storage.MaxAttachmentSize)
	}
	app, err := s.store.Get(ctx, actor.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	g, err := editGuard(op, actor, app)
	if err != nil {
		return nil, err
	}

	att := models.Attachment{
		Key:         storage.AttachmentKey(app.OrganizationID, app.ID, name),
		FileName:    name,
		ContentType: contentType,
		Size:        up.Size,
		UploadedBy:  actor.ID,
		UploadedAt:  time.Now().UTC(),
	}
	if err := s.objects.Upload(ctx, att.Key, contentType, up.Body, up.Size); err != nil {
		return nil, apperr.Store(op, err)
	}
	// The object exists now; attach it or queue its cleanup even if the
	// client has gone away.
	ctx = context.WithoutCancel(ctx)
	updated, err := s.store.AppendAttachment(ctx, actor.OrganizationID, id, g, att)
	if err != nil {
		s.discard(ctx, app, att.Key)
		return nil, s.classify(ctx, op, actor, id, err, func(cur *models.Application) error {
			_, gerr := editGuard(op, actor, cur)
			return gerr
		})
	}
	updated.Applicant = app.Applicant
	s.changed(ctx, updated, "attach")
	return updated, nil
}

// AttachmentURL returns a short-lived download URL for an attachment of an
// application in the actor's organization.
func (s *Service) AttachmentURL(ctx context.Context, actor *models.Member, id uuid.UUID, key string) (string, error) {
	const op = "attachment url"
	if s.objects == nil {
		return "", apperr.Validation(op, "attachments are not enabled")
	}
	app, err := s.store.Get(ctx, actor.OrganizationID, id)
	if err != nil {
		return "", err
	}
	for _, att := range app.Attachments {
		if att.Key == key {
			url, err := s.objects.PresignDownload(ctx, att.Key, att.FileName)
			if err != nil {
				return "", apperr.Store(op, err)
			}
			return url, nil
		}
	}
	return "", apperr.NotFound(op, "attachment")
}

// scheduleCleanup queues deletion of a removed application's objects.
// Failures are logged; the objects stay orphaned in the bucket.
func (s *Service) scheduleCleanup(ctx context.Context, app *models.Application) {
	if s.cleanup == nil || len(app.Attachments) == 0 {
		return
	}
	keys := make([]string, 0, len(app.Attachments))
	for _, att := range app.Attachments {
		keys = append(keys, att.Key)
	}
	err := s.cleanup.EnqueueAttachmentCleanup(ctx, queue.AttachmentCleanupPayload{
		OrganizationID: app.OrganizationID,
		ApplicationID:  app.ID,
		Keys:           keys,
	})
	if err != nil {
		s.logger.Error("enqueue attachment cleanup",
			zap.String("application_id", app.ID.String()),
			zap.Strings("keys", keys),
			zap.Error(err),
		)
	}
}

// discard removes an uploaded object that never got attached.
func (s *Service) discard(ctx context.Context, app *models.Application, key string) {
	orphan := &models.Application{
		ID:             app.ID,
		OrganizationID: app.OrganizationID,
		Attachments:    []models.Attachment{{Key: key}},
	}
	s.scheduleCleanup(ctx, orphan)
}
