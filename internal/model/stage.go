package model

import "time"

const DefaultPipeline = "default"

type Stage struct {
	ID          string    `json:"id" db:"id"`
	Pipeline    string    `json:"pipeline" db:"pipeline"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description,omitempty" db:"description"`
	SortOrder   int       `json:"sort_order" db:"sort_order"`
	IsSystem    bool      `json:"is_system" db:"is_system"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type StageInput struct {
	Pipeline    string  `json:"pipeline"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	IsSystem    bool    `json:"is_system"`
}
