package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/24ep/studio-sub000/internal/model"
	apperrors "github.com/24ep/studio-sub000/pkg/errors"
)

// LedgerStore persists candidates' stage history. Every write that touches
// both a transition and the candidate status pointer goes through InTx.
type LedgerStore interface {
	History(ctx context.Context, candidateID string) ([]model.Transition, error)
	GetTransition(ctx context.Context, transitionID string) (*model.Transition, error)
	GetCandidate(ctx context.Context, candidateID string) (*model.Candidate, error)
	UpdateNotes(ctx context.Context, transitionID string, notes *string) error
	InTx(ctx context.Context, op string, fn func(tx LedgerTx) error) error
}

type LedgerTx interface {
	InsertCandidate(ctx context.Context, candidate *model.Candidate) error
	InsertTransition(ctx context.Context, tr *model.Transition) error
	SetCandidateStatus(ctx context.Context, candidateID, stage string, positionID *string) error
	LockTransition(ctx context.Context, transitionID string) (*model.Transition, error)
	DeleteTransition(ctx context.Context, transitionID string) error
	LatestTransition(ctx context.Context, candidateID string) (*model.Transition, error)
}

type ledgerStore struct {
	db *DB
}

func NewLedgerStore(db *DB) LedgerStore {
	return &ledgerStore{db: db}
}

const transitionColumns = `t.id, t.candidate_id, t.position_id, t.stage, t.notes, t.acting_user_id, t.date`

func scanTransition(row interface{ Scan(...any) error }, tr *model.Transition, withUser bool) error {
	targets := []any{&tr.ID, &tr.CandidateID, &tr.PositionID, &tr.Stage, &tr.Notes, &tr.ActingUserID, &tr.Date}
	if withUser {
		targets = append(targets, &tr.ActingUserName)
	}
	return row.Scan(targets...)
}

func (s *ledgerStore) History(ctx context.Context, candidateID string) ([]model.Transition, error) {
	query := `SELECT ` + transitionColumns + `, u.name
			  FROM candidate_transitions t
			  LEFT JOIN users u ON u.id = t.acting_user_id
			  WHERE t.candidate_id = ?
			  ORDER BY t.date DESC, t.id DESC`

	rows, err := s.db.QueryContext(ctx, query, candidateID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("load transition history", err)
	}
	defer rows.Close()

	history := []model.Transition{}
	for rows.Next() {
		var tr model.Transition
		if err := scanTransition(rows, &tr, true); err != nil {
			return nil, apperrors.NewPersistenceError("scan transition", err)
		}
		history = append(history, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("load transition history", err)
	}
	return history, nil
}

func (s *ledgerStore) GetTransition(ctx context.Context, transitionID string) (*model.Transition, error) {
	query := `SELECT ` + transitionColumns + `, u.name
			  FROM candidate_transitions t
			  LEFT JOIN users u ON u.id = t.acting_user_id
			  WHERE t.id = ?`

	var tr model.Transition
	err := scanTransition(s.db.QueryRowContext(ctx, query, transitionID), &tr, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("transition", transitionID)
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("get transition", err)
	}
	return &tr, nil
}

func (s *ledgerStore) GetCandidate(ctx context.Context, candidateID string) (*model.Candidate, error) {
	query := `SELECT id, name, email, phone, position_id, status, created_at, updated_at
			  FROM candidates WHERE id = ?`

	var c model.Candidate
	err := s.db.QueryRowContext(ctx, query, candidateID).Scan(
		&c.ID, &c.Name, &c.Email, &c.Phone, &c.PositionID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("candidate", candidateID)
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("get candidate", err)
	}
	return &c, nil
}

// UpdateNotes is the only in-place edit the ledger allows.
func (s *ledgerStore) UpdateNotes(ctx context.Context, transitionID string, notes *string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE candidate_transitions SET notes = ? WHERE id = ?`, notes, transitionID)
	if err != nil {
		return apperrors.NewPersistenceError("update transition notes", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewPersistenceError("update transition notes", err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("transition", transitionID)
	}
	return nil
}

func (s *ledgerStore) InTx(ctx context.Context, op string, fn func(tx LedgerTx) error) error {
	return s.db.WithTx(ctx, op, func(tx *sql.Tx) error {
		return fn(&ledgerTx{tx: tx, lock: s.db.Dialect.ForUpdate()})
	})
}

type ledgerTx struct {
	tx   *sql.Tx
	lock string
}

func (t *ledgerTx) InsertCandidate(ctx context.Context, c *model.Candidate) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO candidates (id, name, email, phone, position_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Email, c.Phone, c.PositionID, c.Status, c.CreatedAt, c.UpdatedAt)
	return err
}

func (t *ledgerTx) InsertTransition(ctx context.Context, tr *model.Transition) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO candidate_transitions (id, candidate_id, position_id, stage, notes, acting_user_id, date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.CandidateID, tr.PositionID, tr.Stage, tr.Notes, tr.ActingUserID, tr.Date)
	return err
}

// SetCandidateStatus moves the status pointer; a nil positionID keeps the
// candidate's current position.
func (t *ledgerTx) SetCandidateStatus(ctx context.Context, candidateID, stage string, positionID *string) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE candidates SET status = ?, position_id = COALESCE(?, position_id), updated_at = ? WHERE id = ?`,
		stage, positionID, nowUTC(), candidateID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("candidate", candidateID)
	}
	return nil
}

func (t *ledgerTx) LockTransition(ctx context.Context, transitionID string) (*model.Transition, error) {
	var tr model.Transition
	err := scanTransition(t.tx.QueryRowContext(ctx,
		`SELECT `+transitionColumns+` FROM candidate_transitions t WHERE t.id = ?`+t.lock, transitionID), &tr, false)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("transition", transitionID)
	}
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

func (t *ledgerTx) DeleteTransition(ctx context.Context, transitionID string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM candidate_transitions WHERE id = ?`, transitionID)
	return err
}

// LatestTransition returns nil when the candidate has no history left.
func (t *ledgerTx) LatestTransition(ctx context.Context, candidateID string) (*model.Transition, error) {
	var tr model.Transition
	err := scanTransition(t.tx.QueryRowContext(ctx,
		`SELECT `+transitionColumns+` FROM candidate_transitions t
		 WHERE t.candidate_id = ? ORDER BY t.date DESC, t.id DESC LIMIT 1`, candidateID), &tr, false)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tr, nil
}
