package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"searchlens.app/analyzer/core/db"
	"searchlens.app/analyzer/internal/model"
)

type workspaceStore struct {
	q db.Querier
}

func newWorkspaceStore(q db.Querier) WorkspaceStore {
	return &workspaceStore{q: q}
}

const workspaceColumns = `id, owner_user_id, name, members, is_default, created_at, updated_at`

func (s *workspaceStore) GetByID(ctx context.Context, id int64) (*model.Workspace, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces WHERE id = $1`, id)
	return scanWorkspace(row)
}

func (s *workspaceStore) Create(ctx context.Context, ws *model.Workspace) error {
	row := s.q.QueryRow(ctx, `
		INSERT INTO workspaces (id, owner_user_id, name, members, is_default)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+workspaceColumns,
		ws.ID, ws.OwnerUserID, ws.Name, ws.Members, ws.IsDefault)
	created, err := scanWorkspace(row)
	if err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}
	*ws = *created
	return nil
}

// EnsureDefault inserts the default workspace for an owner, relying on
// the partial unique index workspaces(owner_user_id) WHERE is_default to
// collapse concurrent first-logins onto a single row. Losers of the race
// fall through to the re-read and return the winner's row.
func (s *workspaceStore) EnsureDefault(ctx context.Context, ws *model.Workspace) (*model.Workspace, error) {
	_, err := s.q.Exec(ctx, `
		INSERT INTO workspaces (id, owner_user_id, name, members, is_default)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (owner_user_id) WHERE is_default DO NOTHING`,
		ws.ID, ws.OwnerUserID, ws.Name, ws.Members)
	if err != nil {
		return nil, fmt.Errorf("ensure default workspace: %w", err)
	}

	row := s.q.QueryRow(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces WHERE owner_user_id = $1 AND is_default`,
		ws.OwnerUserID)
	return scanWorkspace(row)
}

func (s *workspaceStore) AddMember(ctx context.Context, workspaceID int64, email string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE workspaces
		SET members = array_append(members, $2), updated_at = NOW()
		WHERE id = $1 AND NOT ($2 = ANY(members))`,
		workspaceID, email)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the workspace is missing or the email is already a
		// member; distinguish so callers can treat the latter as a no-op.
		var exists bool
		if err := s.q.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM workspaces WHERE id = $1)`, workspaceID).
			Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

func (s *workspaceStore) ListForMember(ctx context.Context, email string) ([]model.Workspace, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+workspaceColumns+`
		FROM workspaces
		WHERE $1 = ANY(members)
		ORDER BY created_at`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ws)
	}
	return out, rows.Err()
}

func scanWorkspace(row pgx.Row) (*model.Workspace, error) {
	var ws model.Workspace
	err := row.Scan(&ws.ID, &ws.OwnerUserID, &ws.Name, &ws.Members, &ws.IsDefault, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ws, nil
}
