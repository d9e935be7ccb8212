// Package ledger records candidates' moves between pipeline stages. A record is
// never edited except for its notes, and the candidate's status always names
// the stage of its newest record.
package ledger

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/24ep/studio-sub000/internal/config"
	"github.com/24ep/studio-sub000/internal/db"
	"github.com/24ep/studio-sub000/internal/logger"
	"github.com/24ep/studio-sub000/internal/model"
	apperrors "github.com/24ep/studio-sub000/pkg/errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// StageNames answers whether a stage name is known to the registry.
type StageNames interface {
	StageNameExists(ctx context.Context, name string) (bool, error)
}

type Ledger struct {
	store        db.LedgerStore
	stages       StageNames
	defaultStage string
	concurrency  int
	now          func() time.Time
	log          zerolog.Logger
}

func NewLedger(store db.LedgerStore, stages StageNames, cfg config.IntakeConfig) *Ledger {
	defaultStage := cfg.DefaultStage
	if defaultStage == "" {
		defaultStage = "Applied"
	}
	concurrency := cfg.BulkConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Ledger{
		store:        store,
		stages:       stages,
		defaultStage: defaultStage,
		concurrency:  concurrency,
		now:          func() time.Time { return time.Now().UTC() },
		log:          logger.Component("ledger"),
	}
}

func (l *Ledger) Candidate(ctx context.Context, candidateID string) (*model.Candidate, error) {
	return l.store.GetCandidate(ctx, candidateID)
}

// History returns the candidate's records, newest first.
func (l *Ledger) History(ctx context.Context, candidateID string) ([]model.Transition, error) {
	if _, err := l.store.GetCandidate(ctx, candidateID); err != nil {
		return nil, err
	}
	return l.store.History(ctx, candidateID)
}

// AppendTransition writes a record and moves the candidate's status pointer in
// one transaction, then returns the full history.
func (l *Ledger) AppendTransition(ctx context.Context, in model.TransitionInput) ([]model.Transition, error) {
	if strings.TrimSpace(in.CandidateID) == "" {
		return nil, apperrors.NewValidationError("candidate_id", in.CandidateID, "candidate id is required")
	}
	stage, err := l.checkStage(ctx, in.Stage)
	if err != nil {
		return nil, err
	}
	in.Stage = stage

	tr, err := l.append(ctx, in)
	if err != nil {
		return nil, err
	}

	l.log.Info().
		Str("candidate_id", in.CandidateID).
		Str("stage", tr.Stage).
		Str("transition_id", tr.ID).
		Msg("Transition appended")

	return l.store.History(ctx, in.CandidateID)
}

func (l *Ledger) append(ctx context.Context, in model.TransitionInput) (*model.Transition, error) {
	var tr *model.Transition
	err := l.store.InTx(ctx, "append transition", func(tx db.LedgerTx) error {
		// the status update takes the candidate row lock; stamp the record only
		// once it is held so commit order and date order agree
		if err := tx.SetCandidateStatus(ctx, in.CandidateID, in.Stage, in.PositionID); err != nil {
			return err
		}
		tr = l.newTransition(in)
		return tx.InsertTransition(ctx, tr)
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// AppendBulk moves several candidates to the same stage. Each candidate is its
// own transaction; failures are counted, not propagated.
func (l *Ledger) AppendBulk(ctx context.Context, candidateIDs []string, stage string, notes, actingUserID *string) (model.BulkResult, error) {
	ids := dedupe(candidateIDs)
	if len(ids) == 0 {
		return model.BulkResult{}, apperrors.NewValidationError("candidate_ids", candidateIDs, "at least one candidate id is required")
	}
	stage, err := l.checkStage(ctx, stage)
	if err != nil {
		return model.BulkResult{}, err
	}

	var (
		mu     sync.Mutex
		result = model.BulkResult{Failures: map[string]string{}}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			_, err := l.append(gctx, model.TransitionInput{
				CandidateID:  id,
				Stage:        stage,
				Notes:        notes,
				ActingUserID: actingUserID,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.FailCount++
				result.Failures[id] = err.Error()
				return nil
			}
			result.SuccessCount++
			result.Succeeded = append(result.Succeeded, id)
			return nil
		})
	}
	_ = g.Wait()

	if len(result.Failures) == 0 {
		result.Failures = nil
	}

	l.log.Info().
		Str("stage", stage).
		Int("success_count", result.SuccessCount).
		Int("fail_count", result.FailCount).
		Msg("Bulk transition finished")

	return result, nil
}

// UpdateNotes is the only edit allowed on an existing record.
func (l *Ledger) UpdateNotes(ctx context.Context, transitionID string, notes *string) (*model.Transition, error) {
	if notes != nil && strings.TrimSpace(*notes) == "" {
		notes = nil
	}
	if err := l.store.UpdateNotes(ctx, transitionID, notes); err != nil {
		return nil, err
	}
	return l.store.GetTransition(ctx, transitionID)
}

// DeleteTransition hard-deletes a record and points the candidate's status at
// the newest remaining one. With no history left the status is kept as is.
func (l *Ledger) DeleteTransition(ctx context.Context, transitionID string) error {
	return l.store.InTx(ctx, "delete transition", func(tx db.LedgerTx) error {
		tr, err := tx.LockTransition(ctx, transitionID)
		if err != nil {
			return err
		}
		if err := tx.DeleteTransition(ctx, transitionID); err != nil {
			return err
		}

		latest, err := tx.LatestTransition(ctx, tr.CandidateID)
		if err != nil {
			return err
		}
		if latest == nil {
			l.log.Warn().
				Str("candidate_id", tr.CandidateID).
				Str("transition_id", transitionID).
				Msg("Deleted last transition; candidate status left unchanged")
			return nil
		}

		if err := tx.SetCandidateStatus(ctx, tr.CandidateID, latest.Stage, latest.PositionID); err != nil {
			return err
		}

		l.log.Info().
			Str("candidate_id", tr.CandidateID).
			Str("transition_id", transitionID).
			Str("status", latest.Stage).
			Msg("Transition deleted")
		return nil
	})
}

// Admit creates a candidate together with its first record. An empty stage
// falls back to the configured default.
func (l *Ledger) Admit(ctx context.Context, c model.Candidate, stage string, notes, actingUserID *string) (*model.Candidate, error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, apperrors.NewValidationError("name", c.Name, "candidate name is required")
	}
	if strings.TrimSpace(stage) == "" {
		stage = l.defaultStage
	}
	stage, err := l.checkStage(ctx, stage)
	if err != nil {
		return nil, err
	}

	now := l.now()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Status = stage
	c.CreatedAt = now
	c.UpdatedAt = now

	err = l.store.InTx(ctx, "admit candidate", func(tx db.LedgerTx) error {
		if err := tx.InsertCandidate(ctx, &c); err != nil {
			return err
		}
		return tx.InsertTransition(ctx, l.newTransition(model.TransitionInput{
			CandidateID:  c.ID,
			Stage:        stage,
			PositionID:   c.PositionID,
			Notes:        notes,
			ActingUserID: actingUserID,
		}))
	})
	if err != nil {
		return nil, err
	}

	l.log.Debug().Str("candidate_id", c.ID).Str("stage", stage).Msg("Candidate admitted")
	return &c, nil
}

func (l *Ledger) checkStage(ctx context.Context, stage string) (string, error) {
	stage = strings.TrimSpace(stage)
	if stage == "" {
		return "", apperrors.NewValidationError("stage", stage, "stage is required")
	}
	ok, err := l.stages.StageNameExists(ctx, stage)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperrors.NewValidationError("stage", stage, "unknown stage")
	}
	return stage, nil
}

// newTransition uses time-ordered ids so records sharing a timestamp still sort
// by insertion.
func (l *Ledger) newTransition(in model.TransitionInput) *model.Transition {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &model.Transition{
		ID:           id.String(),
		CandidateID:  in.CandidateID,
		PositionID:   in.PositionID,
		Stage:        in.Stage,
		Notes:        in.Notes,
		ActingUserID: in.ActingUserID,
		Date:         l.now(),
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
