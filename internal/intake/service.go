// Package intake runs the file flows: inline resume uploads, bulk workbook
// imports and the worker-side re-run of queued jobs. No database transaction
// is held across object-store or webhook I/O; each step commits a job
// transition before the next network call.
package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/24ep/studio-sub000/internal/config"
	"github.com/24ep/studio-sub000/internal/excel"
	"github.com/24ep/studio-sub000/internal/jobs"
	"github.com/24ep/studio-sub000/internal/ledger"
	"github.com/24ep/studio-sub000/internal/logger"
	"github.com/24ep/studio-sub000/internal/model"
	"github.com/24ep/studio-sub000/internal/storage"
	"github.com/24ep/studio-sub000/internal/webhook"
	apperrors "github.com/24ep/studio-sub000/pkg/errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ImportQueue hands stored jobs to the import workers.
type ImportQueue interface {
	EnqueueImport(ctx context.Context, msg model.ImportMessage) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, p webhook.Payload) (bool, error)
}

// Upload is one file received by the API.
type Upload struct {
	FileName    string
	Size        int64
	ContentType string
	Body        io.ReadSeeker
	Source      model.JobSource
	CandidateID *string
	PositionID  *string
	CreatedBy   *string
}

type Service struct {
	jobs       *jobs.Manager
	ledger     *ledger.Ledger
	store      storage.Storage
	queue      ImportQueue
	dispatcher Dispatcher
	parser     excel.ParsingStrategy
	cfg        config.IntakeConfig
	log        zerolog.Logger
}

func NewService(
	manager *jobs.Manager,
	ldg *ledger.Ledger,
	store storage.Storage,
	queue ImportQueue,
	dispatcher Dispatcher,
	cfg config.IntakeConfig,
) *Service {
	return &Service{
		jobs:       manager,
		ledger:     ldg,
		store:      store,
		queue:      queue,
		dispatcher: dispatcher,
		parser:     excel.NewExcelStrategy(cfg.MaxImportRows),
		cfg:        cfg,
		log:        logger.Component("intake"),
	}
}

// UploadResume stores a resume inline: queued, uploading, processing, then
// success or error, with one queue-changed notification for the whole call.
// If another actor moves the job in between, the flow backs off and returns
// the job as that actor left it.
func (s *Service) UploadResume(ctx context.Context, up Upload) (*model.Job, error) {
	if up.Source == "" {
		up.Source = model.JobSourceSingle
	}
	if up.Source == model.JobSourceBulk {
		return nil, apperrors.NewValidationError("source", up.Source, "bulk files go through the import endpoint")
	}
	if err := s.checkFile(up, s.cfg.AllowedExtensions); err != nil {
		return nil, err
	}

	var candidate *model.Candidate
	if up.CandidateID != nil {
		c, err := s.ledger.Candidate(ctx, *up.CandidateID)
		if err != nil {
			return nil, err
		}
		candidate = c
	}

	ctx, flush := s.jobs.Batch(ctx)
	defer flush()

	job, err := s.jobs.Enqueue(ctx, s.meta(up, nil))
	if err != nil {
		return nil, err
	}
	log := s.log.With().Str("job_id", job.ID).Logger()

	if _, err := s.jobs.TransitionTo(ctx, job.ID, model.JobStatusUploading, model.TransitionExtra{}); err != nil {
		return s.backOff(ctx, job.ID, err)
	}

	key := objectKey(s.cfg.ResumeKeyPrefix, job.ID, up.FileName)
	if err := s.store.Upload(ctx, key, up.Body, up.Size, up.ContentType); err != nil {
		log.Error().Err(err).Msg("Resume upload failed")
		return s.fail(ctx, job.ID, "failed to store file", err)
	}

	jobID := job.ID
	job, err = s.jobs.TransitionTo(ctx, jobID, model.JobStatusProcessing, model.TransitionExtra{FilePath: &key})
	if err != nil {
		if apperrors.IsConflict(err) || apperrors.IsNotFound(err) {
			s.discard(ctx, key)
		}
		return s.backOff(ctx, jobID, err)
	}

	var payload webhook.Payload
	if up.Source == model.JobSourceAutomation {
		payload = webhook.NewCandidateCreation(job)
	} else {
		payload = webhook.NewResumeUpload(job, candidate)
	}
	return s.deliver(ctx, job, payload)
}

// SubmitImport stores a workbook, records a bulk job for it and queues the
// job for the import workers.
func (s *Service) SubmitImport(ctx context.Context, up Upload) (*model.Job, error) {
	up.Source = model.JobSourceBulk
	if up.ContentType == "" {
		up.ContentType = xlsxContentType
	}
	if err := s.checkFile(up, []string{".xlsx"}); err != nil {
		return nil, err
	}

	ctx, flush := s.jobs.Batch(ctx)
	defer flush()

	key := objectKey(s.cfg.ImportKeyPrefix, uuid.NewString(), up.FileName)
	if err := s.store.Upload(ctx, key, up.Body, up.Size, up.ContentType); err != nil {
		return nil, err
	}

	job, err := s.jobs.Enqueue(ctx, s.meta(up, &key))
	if err != nil {
		s.discard(ctx, key)
		return nil, err
	}

	if err := s.queue.EnqueueImport(ctx, model.ImportMessage{JobID: job.ID}); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to queue import")
		failed, err := s.fail(ctx, job.ID, "failed to queue import", err)
		if failed == nil && apperrors.IsNotFound(err) {
			s.discard(ctx, key)
		}
		return failed, err
	}

	s.log.Info().Str("job_id", job.ID).Str("file_path", key).Msg("Import queued")
	return job, nil
}

// Retry requeues a job and pushes it to the workers. A job left queued after a
// failed push can simply be retried again.
func (s *Service) Retry(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.jobs.Retry(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.queue.EnqueueImport(ctx, model.ImportMessage{JobID: job.ID}); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Service) RetryBulk(ctx context.Context, jobIDs []string) (model.BulkResult, error) {
	result, err := s.jobs.RetryBulk(ctx, jobIDs)
	if err != nil {
		return result, err
	}

	succeeded := make([]string, 0, len(result.Succeeded))
	for _, id := range result.Succeeded {
		if err := s.queue.EnqueueImport(ctx, model.ImportMessage{JobID: id}); err != nil {
			if result.Failures == nil {
				result.Failures = map[string]string{}
			}
			result.Failures[id] = err.Error()
			result.SuccessCount--
			result.FailCount++
			continue
		}
		succeeded = append(succeeded, id)
	}
	result.Succeeded = succeeded
	return result, nil
}

// RunJob is the worker side of a queued job. Failures that belong to the job
// are recorded on it and reported as nil; only errors that leave the job
// untouched are returned.
func (s *Service) RunJob(ctx context.Context, jobID string) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.log.Warn().Str("job_id", jobID).Msg("Queued job no longer exists")
			return nil
		}
		return err
	}
	log := s.log.With().Str("job_id", jobID).Str("source", string(job.Source)).Logger()

	if job.Status != model.JobStatusQueued {
		log.Info().Str("status", string(job.Status)).Msg("Job already claimed, skipping")
		return nil
	}
	if job.FilePath == nil {
		_, err := s.fail(ctx, jobID, "file was never stored; upload it again", apperrors.ErrFileNotStored)
		return ignoreHandled(err)
	}

	if _, err := s.jobs.TransitionTo(ctx, jobID, model.JobStatusImporting, model.TransitionExtra{}); err != nil {
		_, err = s.backOff(ctx, jobID, err)
		return ignoreHandled(err)
	}

	if job.Source != model.JobSourceBulk {
		ok, err := s.store.Exists(ctx, *job.FilePath)
		if err == nil && !ok {
			err = apperrors.NewNotFoundError("object", *job.FilePath)
		}
		if err != nil {
			log.Error().Err(err).Msg("Stored resume is unavailable")
			_, err = s.fail(ctx, jobID, "failed to read stored file", err)
			return ignoreHandled(err)
		}
		_, err = s.rerunResume(ctx, job)
		return ignoreHandled(err)
	}

	data, err := s.download(ctx, *job.FilePath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to download stored file")
		_, err = s.fail(ctx, jobID, "failed to read stored file", err)
		return ignoreHandled(err)
	}
	_, err = s.runImport(ctx, job, data)
	return ignoreHandled(err)
}

func (s *Service) runImport(ctx context.Context, job *model.Job, data []byte) (*model.Job, error) {
	rows, err := s.parser.Parse(ctx, data)
	if err != nil {
		return s.fail(ctx, job.ID, "failed to parse workbook", err)
	}

	jobID := job.ID
	job, err = s.jobs.TransitionTo(ctx, jobID, model.JobStatusProcessing, model.TransitionExtra{})
	if err != nil {
		return s.backOff(ctx, jobID, err)
	}

	valid, rejected := s.parser.Validate(ctx, rows)
	summary := model.ImportSummary{JobID: job.ID, Total: len(rows)}
	for _, re := range rejected {
		summary.Failures = append(summary.Failures, re.Error())
	}

	notes := fmt.Sprintf("Imported from %s", job.FileName)
	for _, row := range valid {
		_, err := s.ledger.Admit(ctx, model.Candidate{
			Name:       row.Name,
			Email:      optional(row.Email),
			Phone:      optional(row.Phone),
			PositionID: row.PositionID,
		}, row.Stage, &notes, job.CreatedBy)
		if err != nil {
			if apperrors.IsPersistence(err) && ctx.Err() != nil {
				return s.fail(ctx, job.ID, "import interrupted", err)
			}
			summary.Failures = append(summary.Failures, excel.RowError{Row: row.Row, Err: err}.Error())
			continue
		}
		summary.Created++
	}
	summary.Failed = summary.Total - summary.Created

	s.log.Info().
		Str("job_id", job.ID).
		Int("total", summary.Total).
		Int("created", summary.Created).
		Int("failed", summary.Failed).
		Msg("Workbook imported")

	if summary.Created == 0 {
		return s.fail(ctx, job.ID, "no rows could be imported", fmt.Errorf("%s", strings.Join(summary.Failures, "; ")))
	}

	if _, err := s.dispatcher.Dispatch(ctx, webhook.NewBulkImport(job, summary)); err != nil {
		s.log.Warn().Err(err).Str("job_id", job.ID).Msg("Import finished but webhook delivery failed")
	}

	done, err := s.jobs.TransitionTo(ctx, jobID, model.JobStatusSuccess, model.TransitionExtra{})
	if err != nil {
		return s.backOff(ctx, jobID, err)
	}
	return done, nil
}

// rerunResume replays the hand-off of an already stored resume.
func (s *Service) rerunResume(ctx context.Context, queued *model.Job) (*model.Job, error) {
	job, err := s.jobs.TransitionTo(ctx, queued.ID, model.JobStatusProcessing, model.TransitionExtra{})
	if err != nil {
		return s.backOff(ctx, queued.ID, err)
	}

	if job.Source == model.JobSourceAutomation {
		return s.deliver(ctx, job, webhook.NewCandidateCreation(job))
	}

	var candidate *model.Candidate
	if job.CandidateID != nil {
		if c, err := s.ledger.Candidate(ctx, *job.CandidateID); err == nil {
			candidate = c
		}
	}
	return s.deliver(ctx, job, webhook.NewResumeUpload(job, candidate))
}

// deliver dispatches the webhook for a processing job and finishes it.
func (s *Service) deliver(ctx context.Context, job *model.Job, payload webhook.Payload) (*model.Job, error) {
	if _, err := s.dispatcher.Dispatch(ctx, payload); err != nil {
		if webhook.RequiresDelivery(job.Source) {
			return s.fail(ctx, job.ID, "webhook delivery failed", err)
		}
		s.log.Warn().Err(err).Str("job_id", job.ID).Msg("File stored but webhook delivery failed")
	}

	done, err := s.jobs.TransitionTo(ctx, job.ID, model.JobStatusSuccess, model.TransitionExtra{})
	if err != nil {
		return s.backOff(ctx, job.ID, err)
	}
	return done, nil
}

// fail moves the job to error and returns cause to the caller. The error
// transition uses a context that outlives a cancelled request.
func (s *Service) fail(ctx context.Context, jobID, msg string, cause error) (*model.Job, error) {
	details := cause.Error()
	job, err := s.jobs.TransitionTo(context.WithoutCancel(ctx), jobID, model.JobStatusError,
		model.TransitionExtra{Error: &msg, ErrorDetails: &details})
	if err != nil {
		s.log.Warn().Err(err).Str("job_id", jobID).Msg("Could not record job failure")
		return s.backOff(ctx, jobID, err)
	}
	return job, handled{cause}
}

// backOff turns a ConflictError into the job's current state: another actor
// owns the job now. A job deleted mid-flow has nothing left to record on, so
// its NotFoundError comes back marked as handled.
func (s *Service) backOff(ctx context.Context, jobID string, err error) (*model.Job, error) {
	if apperrors.IsNotFound(err) {
		s.log.Info().Str("job_id", jobID).Msg("Job deleted by another actor, abandoning")
		return nil, handled{err}
	}
	if !apperrors.IsConflict(err) {
		return nil, err
	}
	s.log.Info().Err(err).Str("job_id", jobID).Msg("Job moved by another actor, backing off")
	return s.jobs.Get(context.WithoutCancel(ctx), jobID)
}

func (s *Service) download(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.store.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func (s *Service) discard(ctx context.Context, key string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.log.Warn().Err(err).Str("file_path", key).Msg("Failed to delete orphaned file")
	}
}

func (s *Service) checkFile(up Upload, extensions []string) error {
	if strings.TrimSpace(up.FileName) == "" {
		return apperrors.NewValidationError("file", up.FileName, "file name is required")
	}
	if up.Body == nil || up.Size <= 0 {
		return apperrors.NewValidationError("file", up.FileName, apperrors.ErrEmptyFile.Error())
	}
	if s.cfg.MaxUploadSize > 0 && up.Size > s.cfg.MaxUploadSize {
		return apperrors.NewValidationError("file", up.Size,
			fmt.Sprintf("%v: limit is %d bytes", apperrors.ErrFileTooLarge, s.cfg.MaxUploadSize))
	}
	ext := strings.ToLower(path.Ext(up.FileName))
	for _, allowed := range extensions {
		if ext == strings.ToLower(allowed) {
			return nil
		}
	}
	return apperrors.NewValidationError("file", up.FileName,
		fmt.Sprintf("%v: expected one of %s", apperrors.ErrInvalidFileFormat, strings.Join(extensions, ", ")))
}

func (s *Service) meta(up Upload, filePath *string) model.JobMeta {
	var contentType *string
	if up.ContentType != "" {
		contentType = &up.ContentType
	}
	return model.JobMeta{
		FileName:    path.Base(strings.ReplaceAll(up.FileName, `\`, "/")),
		FileSize:    up.Size,
		FilePath:    filePath,
		ContentType: contentType,
		Source:      up.Source,
		CandidateID: up.CandidateID,
		PositionID:  up.PositionID,
		CreatedBy:   up.CreatedBy,
	}
}

func objectKey(prefix, id, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, `\`, "/"))
	name = strings.ReplaceAll(name, " ", "_")
	return path.Join(prefix, id, name)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// handled marks an error already recorded on the job.
type handled struct{ error }

func (h handled) Unwrap() error { return h.error }

func ignoreHandled(err error) error {
	var h handled
	if errors.As(err, &h) {
		return nil
	}
	return err
}
