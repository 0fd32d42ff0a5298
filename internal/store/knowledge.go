package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"searchlens.app/analyzer/core/db"
	"searchlens.app/analyzer/internal/model"
)

type knowledgeStore struct {
	q db.Querier
}

func newKnowledgeStore(q db.Querier) KnowledgeStore {
	return &knowledgeStore{q: q}
}

const knowledgeColumns = `id, workspace_id, file_name, extracted_content, summary, uploaded_at`

func (s *knowledgeStore) GetByID(ctx context.Context, workspaceID, id int64) (*model.KnowledgeItem, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge_items WHERE id = $1 AND workspace_id = $2`,
		id, workspaceID)
	return scanKnowledgeItem(row)
}

func (s *knowledgeStore) Create(ctx context.Context, item *model.KnowledgeItem) error {
	row := s.q.QueryRow(ctx, `
		INSERT INTO knowledge_items (id, workspace_id, file_name, extracted_content, summary)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+knowledgeColumns,
		item.ID, item.WorkspaceID, item.FileName, item.ExtractedContent, item.Summary)
	created, err := scanKnowledgeItem(row)
	if err != nil {
		return fmt.Errorf("insert knowledge item: %w", err)
	}
	*item = *created
	return nil
}

func (s *knowledgeStore) Delete(ctx context.Context, workspaceID, id int64) error {
	tag, err := s.q.Exec(ctx,
		`DELETE FROM knowledge_items WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *knowledgeStore) ListByWorkspace(ctx context.Context, workspaceID int64) ([]model.KnowledgeItem, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge_items WHERE workspace_id = $1 ORDER BY uploaded_at DESC`,
		workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.KnowledgeItem
	for rows.Next() {
		item, err := scanKnowledgeItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

func scanKnowledgeItem(row pgx.Row) (*model.KnowledgeItem, error) {
	var item model.KnowledgeItem
	err := row.Scan(&item.ID, &item.WorkspaceID, &item.FileName,
		&item.ExtractedContent, &item.Summary, &item.UploadedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}
