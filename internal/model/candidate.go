package model

import "time"

type Candidate struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Email      *string   `json:"email,omitempty" db:"email"`
	Phone      *string   `json:"phone,omitempty" db:"phone"`
	PositionID *string   `json:"position_id,omitempty" db:"position_id"`
	Status     string    `json:"status" db:"status"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Transition is one ledger entry. Stage holds the stage name, not its id.
type Transition struct {
	ID             string    `json:"id" db:"id"`
	CandidateID    string    `json:"candidate_id" db:"candidate_id"`
	PositionID     *string   `json:"position_id,omitempty" db:"position_id"`
	Stage          string    `json:"stage" db:"stage"`
	Notes          *string   `json:"notes,omitempty" db:"notes"`
	ActingUserID   *string   `json:"acting_user_id,omitempty" db:"acting_user_id"`
	ActingUserName *string   `json:"acting_user_name" db:"-"`
	Date           time.Time `json:"date" db:"date"`
}

type TransitionInput struct {
	CandidateID  string  `json:"candidate_id"`
	Stage        string  `json:"stage"`
	PositionID   *string `json:"position_id"`
	Notes        *string `json:"notes"`
	ActingUserID *string `json:"-"`
}

// CandidateRow is one parsed line of a bulk import workbook.
type CandidateRow struct {
	Row        int     `json:"row"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Phone      string  `json:"phone,omitempty"`
	PositionID *string `json:"position_id,omitempty"`
	Stage      string  `json:"stage,omitempty"`
}
