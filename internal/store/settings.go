package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"searchlens.app/analyzer/core/db"
	"searchlens.app/analyzer/internal/model"
)

type settingsStore struct {
	q db.Querier
}

func newSettingsStore(q db.Querier) SettingsStore {
	return &settingsStore{q: q}
}

func (s *settingsStore) GetWorkspace(ctx context.Context, workspaceID int64) (*model.WorkspaceSettings, error) {
	var ws model.WorkspaceSettings
	err := s.q.QueryRow(ctx, `
		SELECT workspace_id, active_snapshot_id, ai_api_key, updated_at
		FROM workspace_settings
		WHERE workspace_id = $1`, workspaceID).
		Scan(&ws.WorkspaceID, &ws.ActiveSnapshotID, &ws.AIAPIKey, &ws.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ws, nil
}

func (s *settingsStore) SetActiveSnapshot(ctx context.Context, workspaceID int64, snapshotID *int64) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO workspace_settings (workspace_id, active_snapshot_id)
		VALUES ($1, $2)
		ON CONFLICT (workspace_id)
		DO UPDATE SET active_snapshot_id = EXCLUDED.active_snapshot_id, updated_at = NOW()`,
		workspaceID, snapshotID)
	if err != nil {
		return fmt.Errorf("set active snapshot: %w", err)
	}
	return nil
}

// SetActiveSnapshotIfUnset guards the auto-selection path: the pointer
// is written only while null, so concurrent selectors cannot overwrite
// each other or an explicit user choice.
func (s *settingsStore) SetActiveSnapshotIfUnset(ctx context.Context, workspaceID, snapshotID int64) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		INSERT INTO workspace_settings (workspace_id, active_snapshot_id)
		VALUES ($1, $2)
		ON CONFLICT (workspace_id)
		DO UPDATE SET active_snapshot_id = EXCLUDED.active_snapshot_id, updated_at = NOW()
		WHERE workspace_settings.active_snapshot_id IS NULL`,
		workspaceID, snapshotID)
	if err != nil {
		return false, fmt.Errorf("set active snapshot if unset: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *settingsStore) ClearActiveSnapshotIf(ctx context.Context, workspaceID, snapshotID int64) error {
	_, err := s.q.Exec(ctx, `
		UPDATE workspace_settings
		SET active_snapshot_id = NULL, updated_at = NOW()
		WHERE workspace_id = $1 AND active_snapshot_id = $2`,
		workspaceID, snapshotID)
	return err
}

func (s *settingsStore) SetAIAPIKey(ctx context.Context, workspaceID int64, key *string) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO workspace_settings (workspace_id, ai_api_key)
		VALUES ($1, $2)
		ON CONFLICT (workspace_id)
		DO UPDATE SET ai_api_key = EXCLUDED.ai_api_key, updated_at = NOW()`,
		workspaceID, key)
	return err
}

func (s *settingsStore) GetUser(ctx context.Context, userID int64) (*model.UserSettings, error) {
	var us model.UserSettings
	err := s.q.QueryRow(ctx, `
		SELECT user_id, last_workspace_id, updated_at
		FROM user_settings
		WHERE user_id = $1`, userID).
		Scan(&us.UserID, &us.LastWorkspaceID, &us.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &us, nil
}

func (s *settingsStore) SetLastWorkspace(ctx context.Context, userID, workspaceID int64) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO user_settings (user_id, last_workspace_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET last_workspace_id = EXCLUDED.last_workspace_id, updated_at = NOW()`,
		userID, workspaceID)
	return err
}
