package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"searchlens.app/analyzer/core/db"
	"searchlens.app/analyzer/internal/model"
)

type shareStore struct {
	q db.Querier
}

func newShareStore(q db.Querier) ShareStore {
	return &shareStore{q: q}
}

const shareColumns = `id, workspace_id, snapshot_id, created_by, created_at`

func (s *shareStore) GetByID(ctx context.Context, id string) (*model.Share, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+shareColumns+` FROM shares WHERE id = $1`, id)
	return scanShare(row)
}

func (s *shareStore) Create(ctx context.Context, share *model.Share) error {
	row := s.q.QueryRow(ctx, `
		INSERT INTO shares (id, workspace_id, snapshot_id, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING `+shareColumns,
		share.ID, share.WorkspaceID, share.SnapshotID, share.CreatedBy)
	created, err := scanShare(row)
	if err != nil {
		return fmt.Errorf("insert share: %w", err)
	}
	*share = *created
	return nil
}

func (s *shareStore) Delete(ctx context.Context, workspaceID int64, id string) error {
	tag, err := s.q.Exec(ctx,
		`DELETE FROM shares WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBySnapshot revokes every share pointing at a snapshot. Called
// when the snapshot itself is deleted so stale links resolve to nothing.
func (s *shareStore) DeleteBySnapshot(ctx context.Context, workspaceID, snapshotID int64) error {
	_, err := s.q.Exec(ctx,
		`DELETE FROM shares WHERE workspace_id = $1 AND snapshot_id = $2`, workspaceID, snapshotID)
	return err
}

func (s *shareStore) ListByWorkspace(ctx context.Context, workspaceID int64) ([]model.Share, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+shareColumns+` FROM shares WHERE workspace_id = $1 ORDER BY created_at DESC`,
		workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Share
	for rows.Next() {
		share, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *share)
	}
	return out, rows.Err()
}

func scanShare(row pgx.Row) (*model.Share, error) {
	var sh model.Share
	err := row.Scan(&sh.ID, &sh.WorkspaceID, &sh.SnapshotID, &sh.CreatedBy, &sh.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sh, nil
}
