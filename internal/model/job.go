package model

import "time"

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusUploading  JobStatus = "uploading"
	JobStatusProcessing JobStatus = "processing"
	JobStatusImporting  JobStatus = "importing"
	JobStatusSuccess    JobStatus = "success"
	JobStatusError      JobStatus = "error"
	JobStatusCancelled  JobStatus = "cancelled"
)

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusUploading, JobStatusProcessing, JobStatusImporting,
		JobStatusSuccess, JobStatusError, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether completed_date must be set for this status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusError || s == JobStatusCancelled
}

type JobSource string

const (
	JobSourceSingle JobSource = "single"
	JobSourceBulk   JobSource = "bulk"
	// JobSourceAutomation jobs exist only to drive the webhook (creation via resume).
	JobSourceAutomation JobSource = "automation"
)

func (s JobSource) IsValid() bool {
	return s == JobSourceSingle || s == JobSourceBulk || s == JobSourceAutomation
}

type Job struct {
	ID              string     `json:"id" db:"id"`
	FileName        string     `json:"file_name" db:"file_name"`
	FileSize        int64      `json:"file_size" db:"file_size"`
	FilePath        *string    `json:"file_path,omitempty" db:"file_path"`
	ContentType     *string    `json:"content_type,omitempty" db:"content_type"`
	Status          JobStatus  `json:"status" db:"status"`
	Source          JobSource  `json:"source" db:"source"`
	CandidateID     *string    `json:"candidate_id,omitempty" db:"candidate_id"`
	PositionID      *string    `json:"position_id,omitempty" db:"position_id"`
	UploadDate      time.Time  `json:"upload_date" db:"upload_date"`
	CompletedDate   *time.Time `json:"completed_date,omitempty" db:"completed_date"`
	Error           *string    `json:"error,omitempty" db:"error"`
	ErrorDetails    *string    `json:"error_details,omitempty" db:"error_details"`
	WebhookPayload  *string    `json:"webhook_payload,omitempty" db:"webhook_payload"`
	WebhookResponse *string    `json:"webhook_response,omitempty" db:"webhook_response"`
	CreatedBy       *string    `json:"created_by,omitempty" db:"created_by"`
	Version         int64      `json:"version" db:"version"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// JobMeta is what a caller knows about a file before a job exists for it.
type JobMeta struct {
	FileName    string
	FileSize    int64
	FilePath    *string
	ContentType *string
	Source      JobSource
	CandidateID *string
	PositionID  *string
	CreatedBy   *string
}

// TransitionExtra carries the optional columns a transition may fill in.
type TransitionExtra struct {
	FilePath     *string
	Error        *string
	ErrorDetails *string
}

// JobUpdate is a fully computed row image applied by a conditional update.
type JobUpdate struct {
	Status        JobStatus
	FilePath      *string
	CompletedDate *time.Time
	Error         *string
	ErrorDetails  *string
	UpdatedAt     time.Time
}

type JobFilter struct {
	Statuses  []JobStatus
	Source    JobSource
	Search    string
	CreatedBy string
}

type JobPage struct {
	Items    []Job `json:"items"`
	Total    int   `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// BulkResult reports per-item outcomes; a bulk call never fails as a whole.
type BulkResult struct {
	SuccessCount int               `json:"success_count"`
	FailCount    int               `json:"fail_count"`
	Failures     map[string]string `json:"failures,omitempty"`
	Succeeded    []string          `json:"-"`
}

// ImportMessage is pushed to the import queue for a job whose file is stored.
type ImportMessage struct {
	JobID string `json:"job_id"`
}
