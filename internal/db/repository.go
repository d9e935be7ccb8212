package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/24ep/studio-sub000/internal/model"
	apperrors "github.com/24ep/studio-sub000/pkg/errors"
)

type JobRepository interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	// UpdateJobIf applies upd only while the row still has the expected status and
	// version. It reports whether a row was changed.
	UpdateJobIf(ctx context.Context, jobID string, expected model.JobStatus, version int64, upd model.JobUpdate) (bool, error)
	SetWebhookResult(ctx context.Context, jobID string, payload, response *string) error
	DeleteJob(ctx context.Context, jobID string) error
	ListJobs(ctx context.Context, filter model.JobFilter, limit, offset int) ([]model.Job, int, error)
}

type jobRepository struct {
	db *DB
}

func NewJobRepository(db *DB) JobRepository {
	return &jobRepository{db: db}
}

const jobColumns = `id, file_name, file_size, file_path, content_type, status, source,
	candidate_id, position_id, upload_date, completed_date, error, error_details,
	webhook_payload, webhook_response, created_by, version, updated_at`

func scanJob(row interface{ Scan(...any) error }, job *model.Job) error {
	return row.Scan(
		&job.ID, &job.FileName, &job.FileSize, &job.FilePath, &job.ContentType,
		&job.Status, &job.Source, &job.CandidateID, &job.PositionID,
		&job.UploadDate, &job.CompletedDate, &job.Error, &job.ErrorDetails,
		&job.WebhookPayload, &job.WebhookResponse, &job.CreatedBy,
		&job.Version, &job.UpdatedAt,
	)
}

func (r *jobRepository) CreateJob(ctx context.Context, job *model.Job) error {
	query := `INSERT INTO upload_jobs (` + jobColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.FileName, job.FileSize, job.FilePath, job.ContentType,
		job.Status, job.Source, job.CandidateID, job.PositionID,
		job.UploadDate, job.CompletedDate, job.Error, job.ErrorDetails,
		job.WebhookPayload, job.WebhookResponse, job.CreatedBy,
		job.Version, job.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewPersistenceError("create job", err)
	}
	return nil
}

func (r *jobRepository) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM upload_jobs WHERE id = ?`

	var job model.Job
	err := scanJob(r.db.QueryRowContext(ctx, query, jobID), &job)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("job", jobID)
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("get job", err)
	}

	return &job, nil
}

func (r *jobRepository) UpdateJobIf(ctx context.Context, jobID string, expected model.JobStatus, version int64, upd model.JobUpdate) (bool, error) {
	query := `UPDATE upload_jobs
			  SET status = ?, file_path = ?, completed_date = ?, error = ?, error_details = ?,
			      version = version + 1, updated_at = ?
			  WHERE id = ? AND status = ? AND version = ?`

	res, err := r.db.ExecContext(ctx, query,
		upd.Status, upd.FilePath, upd.CompletedDate, upd.Error, upd.ErrorDetails, upd.UpdatedAt,
		jobID, expected, version,
	)
	if err != nil {
		return false, apperrors.NewPersistenceError("update job status", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewPersistenceError("update job status", err)
	}
	return affected == 1, nil
}

// SetWebhookResult touches only the webhook columns; status stays with the
// lifecycle manager.
func (r *jobRepository) SetWebhookResult(ctx context.Context, jobID string, payload, response *string) error {
	query := `UPDATE upload_jobs SET webhook_payload = ?, webhook_response = ?, updated_at = ? WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query, payload, response, time.Now().UTC(), jobID)
	if err != nil {
		return apperrors.NewPersistenceError("record webhook result", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("job", jobID)
	}
	return nil
}

func (r *jobRepository) DeleteJob(ctx context.Context, jobID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM upload_jobs WHERE id = ?`, jobID)
	if err != nil {
		return apperrors.NewPersistenceError("delete job", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewPersistenceError("delete job", err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("job", jobID)
	}
	return nil
}

func (r *jobRepository) ListJobs(ctx context.Context, filter model.JobFilter, limit, offset int) ([]model.Job, int, error) {
	where, args := jobFilterClause(filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM upload_jobs` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, apperrors.NewPersistenceError("count jobs", err)
	}

	query := `SELECT ` + jobColumns + ` FROM upload_jobs` + where +
		` ORDER BY upload_date DESC, id LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, apperrors.NewPersistenceError("list jobs", err)
	}
	defer rows.Close()

	jobs := make([]model.Job, 0, limit)
	for rows.Next() {
		var job model.Job
		if err := scanJob(rows, &job); err != nil {
			return nil, 0, apperrors.NewPersistenceError("scan job", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperrors.NewPersistenceError("list jobs", err)
	}

	return jobs, total, nil
}

func jobFilterClause(filter model.JobFilter) (string, []any) {
	var conds []string
	var args []any

	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			marks[i] = "?"
			args = append(args, s)
		}
		conds = append(conds, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.Source != "" {
		conds = append(conds, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Search != "" {
		conds = append(conds, "file_name LIKE ? ESCAPE '!'")
		args = append(args, "%"+likeEscaper.Replace(filter.Search)+"%")
	}
	if filter.CreatedBy != "" {
		conds = append(conds, "created_by = ?")
		args = append(args, filter.CreatedBy)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// likeEscaper quotes LIKE wildcards with '!', which reads the same in MySQL
// and SQLite string literals.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
