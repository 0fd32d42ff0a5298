package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"searchlens.app/analyzer/core/db"
	"searchlens.app/analyzer/internal/model"
)

type experimentStore struct {
	q db.Querier
}

func newExperimentStore(q db.Querier) ExperimentStore {
	return &experimentStore{q: q}
}

const experimentColumns = `id, workspace_id, page_url, status, start_date, end_date, before_sample, after_sample, created_at, updated_at`

func (s *experimentStore) GetByID(ctx context.Context, workspaceID, id int64) (*model.Experiment, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE id = $1 AND workspace_id = $2`,
		id, workspaceID)
	return scanExperiment(row)
}

func (s *experimentStore) Create(ctx context.Context, exp *model.Experiment) error {
	before, err := json.Marshal(exp.Before)
	if err != nil {
		return fmt.Errorf("marshal before sample: %w", err)
	}

	row := s.q.QueryRow(ctx, `
		INSERT INTO experiments (id, workspace_id, page_url, status, start_date, before_sample)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+experimentColumns,
		exp.ID, exp.WorkspaceID, exp.PageURL, exp.Status, exp.StartDate, before)
	created, err := scanExperiment(row)
	if err != nil {
		return fmt.Errorf("insert experiment: %w", err)
	}
	*exp = *created
	return nil
}

// Complete is conditional on status so a second completion attempt, or a
// completion racing another, updates nothing and surfaces ErrNotFound.
func (s *experimentStore) Complete(ctx context.Context, workspaceID, id int64, after model.MetricSample, endDate time.Time) error {
	sample, err := json.Marshal(after)
	if err != nil {
		return fmt.Errorf("marshal after sample: %w", err)
	}

	tag, err := s.q.Exec(ctx, `
		UPDATE experiments
		SET status = $3, end_date = $4, after_sample = $5, updated_at = NOW()
		WHERE id = $1 AND workspace_id = $2 AND status = $6`,
		id, workspaceID, model.ExperimentStatusCompleted, endDate, sample, model.ExperimentStatusRunning)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *experimentStore) ListByWorkspace(ctx context.Context, workspaceID int64) ([]model.Experiment, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE workspace_id = $1 ORDER BY start_date DESC`,
		workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *exp)
	}
	return out, rows.Err()
}

func scanExperiment(row pgx.Row) (*model.Experiment, error) {
	var (
		exp    model.Experiment
		before []byte
		after  []byte
	)
	err := row.Scan(&exp.ID, &exp.WorkspaceID, &exp.PageURL, &exp.Status, &exp.StartDate,
		&exp.EndDate, &before, &after, &exp.CreatedAt, &exp.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(before, &exp.Before); err != nil {
		return nil, fmt.Errorf("unmarshal before sample: %w", err)
	}
	if after != nil {
		exp.After = &model.MetricSample{}
		if err := json.Unmarshal(after, exp.After); err != nil {
			return nil, fmt.Errorf("unmarshal after sample: %w", err)
		}
	}
	return &exp, nil
}
