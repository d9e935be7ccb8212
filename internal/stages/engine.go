// Package stages keeps each pipeline's stages in a dense 0..N-1 order. Every
// renumbering runs inside one transaction holding row locks on the pipeline.
package stages

import (
	"context"
	"strings"
	"time"

	"github.com/24ep/studio-sub000/internal/db"
	"github.com/24ep/studio-sub000/internal/logger"
	"github.com/24ep/studio-sub000/internal/model"
	apperrors "github.com/24ep/studio-sub000/pkg/errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Engine struct {
	store    db.StageStore
	pipeline string
	now      func() time.Time
	log      zerolog.Logger
}

func NewEngine(store db.StageStore, defaultPipeline string) *Engine {
	if defaultPipeline == "" {
		defaultPipeline = model.DefaultPipeline
	}
	return &Engine{
		store:    store,
		pipeline: defaultPipeline,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.Component("stages"),
	}
}

func (e *Engine) List(ctx context.Context, pipeline string) ([]model.Stage, error) {
	stages, err := e.store.ListStages(ctx, e.scope(pipeline))
	if err != nil {
		return nil, err
	}
	if stages == nil {
		stages = []model.Stage{}
	}
	return stages, nil
}

func (e *Engine) Get(ctx context.Context, stageID string) (*model.Stage, error) {
	return e.store.GetStage(ctx, stageID)
}

// Move places the stage at newOrder and shifts the stages in between by one.
// Out-of-range orders are clamped to the pipeline bounds.
func (e *Engine) Move(ctx context.Context, stageID string, newOrder int) ([]model.Stage, error) {
	var pipeline string

	err := e.store.InTx(ctx, "move stage", func(tx db.StageTx) error {
		stage, err := tx.LockStage(ctx, stageID)
		if err != nil {
			return err
		}
		pipeline = stage.Pipeline

		stages, err := tx.LockPipeline(ctx, pipeline)
		if err != nil {
			return err
		}
		if err := compact(ctx, tx, stages); err != nil {
			return err
		}

		oldOrder := indexOf(stages, stageID)
		if oldOrder < 0 {
			return apperrors.NewNotFoundError("stage", stageID)
		}
		target := clamp(newOrder, 0, len(stages)-1)

		switch {
		case target > oldOrder:
			err = tx.ShiftOrders(ctx, pipeline, oldOrder+1, target, -1)
		case target < oldOrder:
			err = tx.ShiftOrders(ctx, pipeline, target, oldOrder-1, 1)
		default:
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.SetOrder(ctx, stageID, target); err != nil {
			return err
		}

		e.log.Info().
			Str("stage_id", stageID).
			Str("pipeline", pipeline).
			Int("from", oldOrder).
			Int("to", target).
			Msg("Stage moved")
		return nil
	})
	if err != nil {
		return nil, err
	}

	return e.List(ctx, pipeline)
}

// Reorder assigns 0..N-1 following ids. The list must name every stage of one
// pipeline exactly once.
func (e *Engine) Reorder(ctx context.Context, ids []string) ([]model.Stage, error) {
	if len(ids) == 0 {
		return nil, apperrors.NewValidationError("ids", ids, "at least one stage id is required")
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return nil, apperrors.NewValidationError("ids", ids, "stage ids must not be blank")
		}
		if _, dup := seen[id]; dup {
			return nil, apperrors.NewValidationError("ids", id, "stage id listed twice")
		}
		seen[id] = struct{}{}
	}

	var pipeline string
	err := e.store.InTx(ctx, "reorder stages", func(tx db.StageTx) error {
		first, err := tx.LockStage(ctx, ids[0])
		if err != nil {
			return err
		}
		pipeline = first.Pipeline

		stages, err := tx.LockPipeline(ctx, pipeline)
		if err != nil {
			return err
		}
		current := make(map[string]int, len(stages))
		for _, s := range stages {
			current[s.ID] = s.SortOrder
		}
		for _, id := range ids {
			if _, ok := current[id]; !ok {
				if _, err := tx.LockStage(ctx, id); err != nil {
					return err
				}
				return apperrors.NewValidationError("ids", id, "stage belongs to another pipeline")
			}
		}
		if len(ids) != len(stages) {
			return apperrors.NewValidationError("ids", len(ids), "every stage of the pipeline must be listed")
		}

		for order, id := range ids {
			if current[id] == order {
				continue
			}
			if err := tx.SetOrder(ctx, id, order); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().Str("pipeline", pipeline).Int("count", len(ids)).Msg("Stages reordered")
	return e.List(ctx, pipeline)
}

// Create appends a stage at the end of its pipeline.
func (e *Engine) Create(ctx context.Context, in model.StageInput) (*model.Stage, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("name", in.Name, "stage name is required")
	}

	now := e.now()
	stage := &model.Stage{
		ID:          uuid.NewString(),
		Pipeline:    e.scope(in.Pipeline),
		Name:        name,
		Description: in.Description,
		IsSystem:    in.IsSystem,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := e.store.InTx(ctx, "create stage", func(tx db.StageTx) error {
		stages, err := tx.LockPipeline(ctx, stage.Pipeline)
		if err != nil {
			return err
		}
		for _, s := range stages {
			if strings.EqualFold(s.Name, name) {
				return apperrors.NewValidationError("name", name, "stage name already used in this pipeline")
			}
		}
		if err := compact(ctx, tx, stages); err != nil {
			return err
		}
		stage.SortOrder = len(stages)
		return tx.InsertStage(ctx, stage)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().Str("stage_id", stage.ID).Str("name", stage.Name).Msg("Stage created")
	return stage, nil
}

// Update renames a stage or changes its description. System stages keep their
// name because transition history refers to stages by name.
func (e *Engine) Update(ctx context.Context, stageID string, req model.UpdateStageRequest) (*model.Stage, error) {
	var updated *model.Stage

	err := e.store.InTx(ctx, "update stage", func(tx db.StageTx) error {
		stage, err := tx.LockStage(ctx, stageID)
		if err != nil {
			return err
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return apperrors.NewValidationError("name", *req.Name, "stage name is required")
			}
			if name != stage.Name {
				if stage.IsSystem {
					return apperrors.NewValidationError("name", name, "system stages cannot be renamed")
				}
				siblings, err := tx.LockPipeline(ctx, stage.Pipeline)
				if err != nil {
					return err
				}
				for _, s := range siblings {
					if s.ID != stage.ID && strings.EqualFold(s.Name, name) {
						return apperrors.NewValidationError("name", name, "stage name already used in this pipeline")
					}
				}
				stage.Name = name
			}
		}
		if req.Description != nil {
			stage.Description = req.Description
		}
		stage.UpdatedAt = e.now()

		if err := tx.UpdateStage(ctx, stage); err != nil {
			return err
		}
		updated = stage
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a non-system stage and closes the gap it leaves.
func (e *Engine) Delete(ctx context.Context, stageID string) error {
	return e.store.InTx(ctx, "delete stage", func(tx db.StageTx) error {
		stage, err := tx.LockStage(ctx, stageID)
		if err != nil {
			return err
		}
		if stage.IsSystem {
			return apperrors.NewValidationError("stage_id", stageID, "system stages cannot be deleted")
		}

		stages, err := tx.LockPipeline(ctx, stage.Pipeline)
		if err != nil {
			return err
		}
		if err := tx.DeleteStage(ctx, stageID); err != nil {
			return err
		}

		remaining := make([]model.Stage, 0, len(stages))
		for _, s := range stages {
			if s.ID != stageID {
				remaining = append(remaining, s)
			}
		}
		if err := compact(ctx, tx, remaining); err != nil {
			return err
		}

		e.log.Info().Str("stage_id", stageID).Str("pipeline", stage.Pipeline).Msg("Stage deleted")
		return nil
	})
}

func (e *Engine) scope(pipeline string) string {
	if p := strings.TrimSpace(pipeline); p != "" {
		return p
	}
	return e.pipeline
}

// compact rewrites any order that drifted from its list position. stages must
// be sorted by sort_order; their SortOrder fields are updated in place.
func compact(ctx context.Context, tx db.StageTx, stages []model.Stage) error {
	for i := range stages {
		if stages[i].SortOrder == i {
			continue
		}
		if err := tx.SetOrder(ctx, stages[i].ID, i); err != nil {
			return err
		}
		stages[i].SortOrder = i
	}
	return nil
}

func indexOf(stages []model.Stage, id string) int {
	for i, s := range stages {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
