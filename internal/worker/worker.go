package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ryohi-cloud/backend/pkg/queue"
)

// JobSource hands out jobs and takes failed ones back; *queue.Queue satisfies it.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// ObjectDeleter removes stored objects; *storage.S3 satisfies it.
type ObjectDeleter interface {
	Delete(ctx context.Context, key string) error
}

// AttachmentCleanupProcessor deletes the objects of removed applications
// and of uploads that never got attached.
type AttachmentCleanupProcessor struct {
	jobs    JobSource
	objects ObjectDeleter
	backoff time.Duration
	logger  *zap.Logger
}

// NewAttachmentCleanupProcessor creates a cleanup processor.
func NewAttachmentCleanupProcessor(jobs JobSource, objects ObjectDeleter, backoff time.Duration, logger *zap.Logger) *AttachmentCleanupProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttachmentCleanupProcessor{jobs: jobs, objects: objects, backoff: backoff, logger: logger}
}

// Process executes one cleanup job. On partial failure the job payload is
// narrowed to the keys still present, so a retry skips what was deleted.
func (p *AttachmentCleanupProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeAttachmentCleanup {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.AttachmentCleanupPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	var failed []string
	var errs []error
	for _, key := range payload.Keys {
		if err := p.objects.Delete(ctx, key); err != nil {
			failed = append(failed, key)
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	if len(failed) > 0 {
		payload.Keys = failed
		if raw, err := json.Marshal(payload); err == nil {
			job.Payload = raw
		}
		return errors.Join(errs...)
	}

	p.logger.Info("attachments removed",
		zap.String("organization_id", payload.OrganizationID.String()),
		zap.String("application_id", payload.ApplicationID.String()),
		zap.Int("keys", len(payload.Keys)),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. It returns
// when ctx is done.
func (p *AttachmentCleanupProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("attachment worker stopping")
			return
		default:
		}

		job, _, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.jobs.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *AttachmentCleanupProcessor) sleep(ctx context.Context) {
	if p.backoff <= 0 {
		return
	}
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
