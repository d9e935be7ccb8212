package model

type BulkIDsRequest struct {
	IDs []string `json:"ids"`
}

type MoveStageRequest struct {
	Order int `json:"order"`
}

type ReorderStagesRequest struct {
	IDs []string `json:"ids"`
}

type UpdateStageRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type AppendTransitionRequest struct {
	Stage      string  `json:"stage"`
	Notes      *string `json:"notes"`
	PositionID *string `json:"position_id"`
}

type BulkTransitionRequest struct {
	CandidateIDs []string `json:"candidate_ids"`
	Stage        string   `json:"stage"`
	Notes        *string  `json:"notes"`
}

type UpdateNotesRequest struct {
	Notes *string `json:"notes"`
}

type ImportSummary struct {
	JobID    string   `json:"job_id"`
	Total    int      `json:"total"`
	Created  int      `json:"created"`
	Failed   int      `json:"failed"`
	Failures []string `json:"failures,omitempty"`
}

// Event is what the notification fan-out pushes to connected clients.
type Event struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

const EventQueueChanged = "queue_changed"
