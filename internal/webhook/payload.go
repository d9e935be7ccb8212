package webhook

import (
	"time"

	"github.com/24ep/studio-sub000/internal/model"
)

// PayloadVersion is bumped whenever a field changes meaning or is removed.
const PayloadVersion = 1

type Kind string

const (
	KindResumeUpload      Kind = "resume_upload"
	KindBulkImport        Kind = "bulk_import"
	KindCandidateCreation Kind = "candidate_creation"
)

// Payload is the body POSTed to the automation endpoint. Files travel as
// object-store keys plus a short-lived download URL, never as bytes.
type Payload struct {
	Version    int           `json:"version"`
	Kind       Kind          `json:"kind"`
	JobID      string        `json:"job_id"`
	File       FileRef       `json:"file"`
	Candidate  *CandidateRef `json:"candidate,omitempty"`
	PositionID *string       `json:"position_id,omitempty"`
	Import     *ImportStats  `json:"import,omitempty"`
	CreatedBy  *string       `json:"created_by,omitempty"`
	SentAt     time.Time     `json:"sent_at"`
}

type FileRef struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
	URL         string `json:"url,omitempty"`
}

type CandidateRef struct {
	ID   string  `json:"id"`
	Name *string `json:"name,omitempty"`
}

type ImportStats struct {
	Total    int      `json:"total"`
	Created  int      `json:"created"`
	Failed   int      `json:"failed"`
	Rejected []string `json:"rejected,omitempty"`
}

func base(kind Kind, job *model.Job) Payload {
	p := Payload{
		Version:    PayloadVersion,
		Kind:       kind,
		JobID:      job.ID,
		PositionID: job.PositionID,
		CreatedBy:  job.CreatedBy,
		File: FileRef{
			Name: job.FileName,
			Size: job.FileSize,
		},
	}
	if job.FilePath != nil {
		p.File.Key = *job.FilePath
	}
	if job.ContentType != nil {
		p.File.ContentType = *job.ContentType
	}
	return p
}

// NewResumeUpload describes a resume attached to a known candidate, or to no
// candidate at all when candidate is nil and the job carries no candidate id.
func NewResumeUpload(job *model.Job, candidate *model.Candidate) Payload {
	p := base(KindResumeUpload, job)
	switch {
	case candidate != nil:
		name := candidate.Name
		p.Candidate = &CandidateRef{ID: candidate.ID, Name: &name}
	case job.CandidateID != nil:
		p.Candidate = &CandidateRef{ID: *job.CandidateID}
	}
	return p
}

// NewCandidateCreation asks the automation to create a candidate from a resume.
func NewCandidateCreation(job *model.Job) Payload {
	return base(KindCandidateCreation, job)
}

func NewBulkImport(job *model.Job, summary model.ImportSummary) Payload {
	p := base(KindBulkImport, job)
	p.Import = &ImportStats{
		Total:    summary.Total,
		Created:  summary.Created,
		Failed:   summary.Failed,
		Rejected: summary.Failures,
	}
	return p
}
