// Package jobs owns the lifecycle of upload and import jobs. Every status
// change goes through a compare-and-set against the job row; no other package
// writes job status.
package jobs

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/24ep/studio-sub000/internal/config"
	"github.com/24ep/studio-sub000/internal/db"
	"github.com/24ep/studio-sub000/internal/logger"
	"github.com/24ep/studio-sub000/internal/model"
	apperrors "github.com/24ep/studio-sub000/pkg/errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Notifier receives one advisory signal per mutating call.
type Notifier interface {
	QueueChanged(ctx context.Context)
}

type Manager struct {
	repo     db.JobRepository
	notifier Notifier
	cfg      config.IntakeConfig
	now      func() time.Time
	log      zerolog.Logger
}

func NewManager(repo db.JobRepository, notifier Notifier, cfg config.IntakeConfig) *Manager {
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = 1
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = cfg.DefaultPageSize
	}
	return &Manager{
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.Component("jobs"),
	}
}

// allowed lists forward transitions. Moving back to queued is only possible
// through Retry.
var allowed = map[model.JobStatus][]model.JobStatus{
	model.JobStatusQueued: {
		model.JobStatusUploading, model.JobStatusImporting,
		model.JobStatusSuccess, model.JobStatusError, model.JobStatusCancelled,
	},
	model.JobStatusUploading: {
		model.JobStatusProcessing, model.JobStatusSuccess, model.JobStatusError, model.JobStatusCancelled,
	},
	model.JobStatusImporting: {
		model.JobStatusProcessing, model.JobStatusSuccess, model.JobStatusError,
	},
	model.JobStatusProcessing: {
		model.JobStatusSuccess, model.JobStatusError,
	},
}

func CanTransition(from, to model.JobStatus) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanRetry reports whether a job in this status may be reset to queued.
func CanRetry(status model.JobStatus) bool {
	return status == model.JobStatusError || status == model.JobStatusQueued
}

func (m *Manager) Enqueue(ctx context.Context, meta model.JobMeta) (*model.Job, error) {
	if strings.TrimSpace(meta.FileName) == "" {
		return nil, apperrors.NewValidationError("file_name", meta.FileName, "file name is required")
	}
	if meta.FileSize <= 0 {
		return nil, apperrors.NewValidationError("file_size", meta.FileSize, "file size must be positive")
	}
	if meta.Source == "" {
		meta.Source = model.JobSourceSingle
	}
	if !meta.Source.IsValid() {
		return nil, apperrors.NewValidationError("source", meta.Source, "unknown job source")
	}

	now := m.now()
	job := &model.Job{
		ID:          uuid.NewString(),
		FileName:    meta.FileName,
		FileSize:    meta.FileSize,
		FilePath:    meta.FilePath,
		ContentType: meta.ContentType,
		Status:      model.JobStatusQueued,
		Source:      meta.Source,
		CandidateID: meta.CandidateID,
		PositionID:  meta.PositionID,
		UploadDate:  now,
		CreatedBy:   meta.CreatedBy,
		Version:     1,
		UpdatedAt:   now,
	}

	if err := m.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	m.log.Info().
		Str("job_id", job.ID).
		Str("file_name", job.FileName).
		Str("source", string(job.Source)).
		Msg("Job enqueued")

	m.notify(ctx)
	return job, nil
}

func (m *Manager) Get(ctx context.Context, jobID string) (*model.Job, error) {
	return m.repo.GetJob(ctx, jobID)
}

// TransitionTo moves a job to a new state. A ConflictError means another actor
// already moved the job; callers should back off rather than escalate.
func (m *Manager) TransitionTo(ctx context.Context, jobID string, to model.JobStatus, extra model.TransitionExtra) (*model.Job, error) {
	job, err := m.transition(ctx, jobID, to, extra)
	if err != nil {
		return nil, err
	}
	m.notify(ctx)
	return job, nil
}

func (m *Manager) transition(ctx context.Context, jobID string, to model.JobStatus, extra model.TransitionExtra) (*model.Job, error) {
	if !to.IsValid() {
		return nil, apperrors.NewValidationError("status", to, "unknown job status")
	}
	if to == model.JobStatusQueued {
		return nil, apperrors.NewValidationError("status", to, "use retry to requeue a job")
	}

	job, err := m.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(job.Status, to) {
		return nil, apperrors.ConflictError{Entity: "job", ID: jobID, Current: string(job.Status), Target: string(to)}
	}

	now := m.now()
	upd := model.JobUpdate{
		Status:    to,
		FilePath:  job.FilePath,
		UpdatedAt: now,
	}
	if extra.FilePath != nil {
		upd.FilePath = extra.FilePath
	}
	if to.IsTerminal() {
		upd.CompletedDate = &now
	}
	// error fields exist only on errored jobs
	if to == model.JobStatusError {
		msg := "job failed"
		if extra.Error != nil && *extra.Error != "" {
			msg = *extra.Error
		}
		upd.Error = &msg
		upd.ErrorDetails = extra.ErrorDetails
	}

	if err := m.compareAndSet(ctx, job, upd); err != nil {
		return nil, err
	}

	m.log.Debug().
		Str("job_id", jobID).
		Str("to", string(to)).
		Int64("version", job.Version).
		Msg("Job transitioned")

	return job, nil
}

// compareAndSet writes upd if the row still matches job's status and version,
// then mirrors the write onto job.
func (m *Manager) compareAndSet(ctx context.Context, job *model.Job, upd model.JobUpdate) error {
	ok, err := m.repo.UpdateJobIf(ctx, job.ID, job.Status, job.Version, upd)
	if err != nil {
		return err
	}
	if !ok {
		current, err := m.repo.GetJob(ctx, job.ID)
		if err != nil {
			return err
		}
		return apperrors.ConflictError{Entity: "job", ID: job.ID, Current: string(current.Status), Target: string(upd.Status)}
	}

	job.Status = upd.Status
	job.FilePath = upd.FilePath
	job.CompletedDate = upd.CompletedDate
	job.Error = upd.Error
	job.ErrorDetails = upd.ErrorDetails
	job.UpdatedAt = upd.UpdatedAt
	job.Version++
	return nil
}

// Retry resets an errored (or still queued) job to queued and clears its
// error fields and completed date.
func (m *Manager) Retry(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := m.retry(ctx, jobID)
	if err != nil {
		return nil, err
	}
	m.notify(ctx)
	return job, nil
}

func (m *Manager) retry(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := m.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !CanRetry(job.Status) {
		return nil, apperrors.ConflictError{Entity: "job", ID: jobID, Current: string(job.Status), Target: string(model.JobStatusQueued)}
	}

	upd := model.JobUpdate{
		Status:    model.JobStatusQueued,
		FilePath:  job.FilePath,
		UpdatedAt: m.now(),
	}
	if err := m.compareAndSet(ctx, job, upd); err != nil {
		return nil, err
	}

	m.log.Info().Str("job_id", jobID).Msg("Job requeued for retry")
	return job, nil
}

// Cancel only succeeds while the job is queued or uploading.
func (m *Manager) Cancel(ctx context.Context, jobID string) (*model.Job, error) {
	return m.TransitionTo(ctx, jobID, model.JobStatusCancelled, model.TransitionExtra{})
}

func (m *Manager) Delete(ctx context.Context, jobID string) error {
	if err := m.repo.DeleteJob(ctx, jobID); err != nil {
		return err
	}
	m.log.Info().Str("job_id", jobID).Msg("Job deleted")
	m.notify(ctx)
	return nil
}

func (m *Manager) RetryBulk(ctx context.Context, jobIDs []string) (model.BulkResult, error) {
	return m.bulk(ctx, "retry", jobIDs, func(ctx context.Context, id string) error {
		_, err := m.retry(ctx, id)
		return err
	})
}

func (m *Manager) CancelBulk(ctx context.Context, jobIDs []string) (model.BulkResult, error) {
	return m.bulk(ctx, "cancel", jobIDs, func(ctx context.Context, id string) error {
		_, err := m.transition(ctx, id, model.JobStatusCancelled, model.TransitionExtra{})
		return err
	})
}

func (m *Manager) DeleteBulk(ctx context.Context, jobIDs []string) (model.BulkResult, error) {
	return m.bulk(ctx, "delete", jobIDs, m.repo.DeleteJob)
}

// bulk attempts every id independently and notifies observers once at the end.
func (m *Manager) bulk(ctx context.Context, op string, jobIDs []string, fn func(context.Context, string) error) (model.BulkResult, error) {
	ids := dedupe(jobIDs)
	if len(ids) == 0 {
		return model.BulkResult{}, apperrors.NewValidationError("ids", jobIDs, "at least one job id is required")
	}

	var (
		mu     sync.Mutex
		result = model.BulkResult{Failures: map[string]string{}}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.BulkConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			err := fn(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.FailCount++
				result.Failures[id] = err.Error()
				return nil
			}
			result.SuccessCount++
			result.Succeeded = append(result.Succeeded, id)
			return nil
		})
	}
	_ = g.Wait()

	if len(result.Failures) == 0 {
		result.Failures = nil
	}

	m.log.Info().
		Str("op", op).
		Int("success_count", result.SuccessCount).
		Int("fail_count", result.FailCount).
		Msg("Bulk job operation finished")

	if result.SuccessCount > 0 {
		m.notify(ctx)
	}
	return result, nil
}

func (m *Manager) List(ctx context.Context, filter model.JobFilter, page, pageSize int) (*model.JobPage, error) {
	for _, s := range filter.Statuses {
		if !s.IsValid() {
			return nil, apperrors.NewValidationError("status", s, "unknown job status")
		}
	}
	if filter.Source != "" && !filter.Source.IsValid() {
		return nil, apperrors.NewValidationError("source", filter.Source, "unknown job source")
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = m.cfg.DefaultPageSize
	}
	if pageSize > m.cfg.MaxPageSize {
		pageSize = m.cfg.MaxPageSize
	}

	items, total, err := m.repo.ListJobs(ctx, filter, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	return &model.JobPage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// RecordWebhook stores the outbound payload and the raw response or failure
// reason. Status is left untouched.
func (m *Manager) RecordWebhook(ctx context.Context, jobID string, payload, response *string) error {
	return m.repo.SetWebhookResult(ctx, jobID, payload, response)
}

type batchKey struct{}

type batch struct {
	pending atomic.Bool
}

// Batch folds the notifications of every call made with the returned context
// into a single one, sent by flush.
func (m *Manager) Batch(ctx context.Context) (context.Context, func()) {
	b := &batch{}
	return context.WithValue(ctx, batchKey{}, b), func() {
		if b.pending.Load() && m.notifier != nil {
			m.notifier.QueueChanged(context.WithoutCancel(ctx))
		}
	}
}

func (m *Manager) notify(ctx context.Context) {
	if b, ok := ctx.Value(batchKey{}).(*batch); ok {
		b.pending.Store(true)
		return
	}
	if m.notifier != nil {
		m.notifier.QueueChanged(ctx)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
