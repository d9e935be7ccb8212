package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/24ep/studio-sub000/internal/model"
	apperrors "github.com/24ep/studio-sub000/pkg/errors"
)

// StageStore reads the stage registry and opens transactions over it.
type StageStore interface {
	ListStages(ctx context.Context, pipeline string) ([]model.Stage, error)
	GetStage(ctx context.Context, stageID string) (*model.Stage, error)
	StageNameExists(ctx context.Context, name string) (bool, error)
	InTx(ctx context.Context, op string, fn func(tx StageTx) error) error
}

// StageTx is the set of statements the reorder engine issues inside one
// transaction. Lock methods take row locks where the dialect has them.
type StageTx interface {
	LockStage(ctx context.Context, stageID string) (*model.Stage, error)
	LockPipeline(ctx context.Context, pipeline string) ([]model.Stage, error)
	ShiftOrders(ctx context.Context, pipeline string, from, to, delta int) error
	SetOrder(ctx context.Context, stageID string, order int) error
	InsertStage(ctx context.Context, stage *model.Stage) error
	UpdateStage(ctx context.Context, stage *model.Stage) error
	DeleteStage(ctx context.Context, stageID string) error
}

type stageStore struct {
	db *DB
}

func NewStageStore(db *DB) StageStore {
	return &stageStore{db: db}
}

const stageColumns = `id, pipeline, name, description, sort_order, is_system, created_at, updated_at`

func scanStage(row interface{ Scan(...any) error }, stage *model.Stage) error {
	return row.Scan(&stage.ID, &stage.Pipeline, &stage.Name, &stage.Description,
		&stage.SortOrder, &stage.IsSystem, &stage.CreatedAt, &stage.UpdatedAt)
}

func scanStages(rows *sql.Rows) ([]model.Stage, error) {
	defer rows.Close()

	var stages []model.Stage
	for rows.Next() {
		var stage model.Stage
		if err := scanStage(rows, &stage); err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return stages, rows.Err()
}

func (s *stageStore) ListStages(ctx context.Context, pipeline string) ([]model.Stage, error) {
	query := `SELECT ` + stageColumns + ` FROM stages WHERE pipeline = ? ORDER BY sort_order, name`

	rows, err := s.db.QueryContext(ctx, query, pipeline)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list stages", err)
	}
	stages, err := scanStages(rows)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list stages", err)
	}
	return stages, nil
}

func (s *stageStore) GetStage(ctx context.Context, stageID string) (*model.Stage, error) {
	var stage model.Stage
	err := scanStage(s.db.QueryRowContext(ctx,
		`SELECT `+stageColumns+` FROM stages WHERE id = ?`, stageID), &stage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("stage", stageID)
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("get stage", err)
	}
	return &stage, nil
}

func (s *stageStore) StageNameExists(ctx context.Context, name string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stages WHERE name = ?`, name).Scan(&count); err != nil {
		return false, apperrors.NewPersistenceError("lookup stage name", err)
	}
	return count > 0, nil
}

func (s *stageStore) InTx(ctx context.Context, op string, fn func(tx StageTx) error) error {
	return s.db.WithTx(ctx, op, func(tx *sql.Tx) error {
		return fn(&stageTx{tx: tx, lock: s.db.Dialect.ForUpdate()})
	})
}

type stageTx struct {
	tx   *sql.Tx
	lock string
}

func (t *stageTx) LockStage(ctx context.Context, stageID string) (*model.Stage, error) {
	var stage model.Stage
	err := scanStage(t.tx.QueryRowContext(ctx,
		`SELECT `+stageColumns+` FROM stages WHERE id = ?`+t.lock, stageID), &stage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("stage", stageID)
	}
	if err != nil {
		return nil, err
	}
	return &stage, nil
}

func (t *stageTx) LockPipeline(ctx context.Context, pipeline string) ([]model.Stage, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+stageColumns+` FROM stages WHERE pipeline = ? ORDER BY sort_order, name`+t.lock, pipeline)
	if err != nil {
		return nil, err
	}
	return scanStages(rows)
}

// ShiftOrders adds delta to every sort_order in [from, to] of the pipeline.
func (t *stageTx) ShiftOrders(ctx context.Context, pipeline string, from, to, delta int) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE stages SET sort_order = sort_order + ? WHERE pipeline = ? AND sort_order >= ? AND sort_order <= ?`,
		delta, pipeline, from, to)
	return err
}

func (t *stageTx) SetOrder(ctx context.Context, stageID string, order int) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE stages SET sort_order = ? WHERE id = ?`, order, stageID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("stage", stageID)
	}
	return nil
}

func (t *stageTx) InsertStage(ctx context.Context, stage *model.Stage) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO stages (`+stageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stage.ID, stage.Pipeline, stage.Name, stage.Description, stage.SortOrder,
		stage.IsSystem, stage.CreatedAt, stage.UpdatedAt)
	return err
}

func (t *stageTx) UpdateStage(ctx context.Context, stage *model.Stage) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE stages SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		stage.Name, stage.Description, stage.UpdatedAt, stage.ID)
	return err
}

func (t *stageTx) DeleteStage(ctx context.Context, stageID string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM stages WHERE id = ?`, stageID)
	return err
}
