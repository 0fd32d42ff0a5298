package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"searchlens.app/analyzer/core/db"
	"searchlens.app/analyzer/internal/model"
)

type invitationStore struct {
	q db.Querier
}

func newInvitationStore(q db.Querier) InvitationStore {
	return &invitationStore{q: q}
}

const invitationColumns = `id, workspace_id, email, token, status, invited_by, accepted_by, expires_at, created_at, accepted_at`

func (s *invitationStore) GetByToken(ctx context.Context, token string) (*model.Invitation, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE token = $1`, token)
	return scanInvitation(row)
}

func (s *invitationStore) Create(ctx context.Context, inv *model.Invitation) error {
	row := s.q.QueryRow(ctx, `
		INSERT INTO invitations (id, workspace_id, email, token, status, invited_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+invitationColumns,
		inv.ID, inv.WorkspaceID, inv.Email, inv.Token, inv.Status, inv.InvitedBy, inv.ExpiresAt)
	created, err := scanInvitation(row)
	if err != nil {
		return fmt.Errorf("insert invitation: %w", err)
	}
	*inv = *created
	return nil
}

func (s *invitationStore) MarkAccepted(ctx context.Context, id int64, acceptedBy int64) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE invitations
		SET status = $2, accepted_by = $3, accepted_at = NOW()
		WHERE id = $1 AND status = $4`,
		id, model.InvitationStatusAccepted, acceptedBy, model.InvitationStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *invitationStore) ListByWorkspace(ctx context.Context, workspaceID int64) ([]model.Invitation, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE workspace_id = $1 ORDER BY created_at DESC`,
		workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func scanInvitation(row pgx.Row) (*model.Invitation, error) {
	var inv model.Invitation
	err := row.Scan(&inv.ID, &inv.WorkspaceID, &inv.Email, &inv.Token, &inv.Status,
		&inv.InvitedBy, &inv.AcceptedBy, &inv.ExpiresAt, &inv.CreatedAt, &inv.AcceptedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}
