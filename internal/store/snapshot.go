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

// snapshotStore runs against q; db is set only on pool-bound instances
// and lets MergePagesByKey open its own transaction. Tx-bound instances
// merge inside the caller's transaction instead.
type snapshotStore struct {
	q  db.Querier
	db *db.DB
}

func newSnapshotStore(q db.Querier, database *db.DB) SnapshotStore {
	return &snapshotStore{q: q, db: database}
}

const snapshotColumns = `id, workspace_id, file_name, pages, performance_summary, date_start, date_end, created_at, updated_at`

func (s *snapshotStore) GetByID(ctx context.Context, workspaceID, id int64) (*model.Snapshot, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE id = $1 AND workspace_id = $2`,
		id, workspaceID)
	return scanSnapshot(row)
}

func (s *snapshotStore) Create(ctx context.Context, snap *model.Snapshot) error {
	pages, err := json.Marshal(snap.Pages)
	if err != nil {
		return fmt.Errorf("marshal pages: %w", err)
	}

	var start, end *time.Time
	if snap.DateRange != nil {
		start, end = &snap.DateRange.Start, &snap.DateRange.End
	}

	row := s.q.QueryRow(ctx, `
		INSERT INTO snapshots (id, workspace_id, file_name, pages, performance_summary, date_start, date_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+snapshotColumns,
		snap.ID, snap.WorkspaceID, snap.FileName, pages, snap.PerformanceSummary, start, end)
	created, err := scanSnapshot(row)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	*snap = *created
	return nil
}

func (s *snapshotStore) Delete(ctx context.Context, workspaceID, id int64) error {
	tag, err := s.q.Exec(ctx,
		`DELETE FROM snapshots WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *snapshotStore) ListByWorkspace(ctx context.Context, workspaceID int64) ([]model.Snapshot, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE workspace_id = $1 ORDER BY created_at DESC`,
		workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

func (s *snapshotStore) UpdateSummary(ctx context.Context, workspaceID, id int64, summary string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE snapshots
		SET performance_summary = $3, updated_at = NOW()
		WHERE id = $1 AND workspace_id = $2`,
		id, workspaceID, summary)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *snapshotStore) UpdateDateRange(ctx context.Context, workspaceID, id int64, dr model.DateRange) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE snapshots
		SET date_start = $3, date_end = $4, updated_at = NOW()
		WHERE id = $1 AND workspace_id = $2`,
		id, workspaceID, dr.Start, dr.End)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MergePagesByKey locks the snapshot row, merges the patches into the
// pages document by Page URL, and writes the document back. The row lock
// serializes concurrent enrichment writers so no patch is lost to a
// read-modify-write overlap.
func (s *snapshotStore) MergePagesByKey(ctx context.Context, workspaceID, id int64, patches map[string]model.PagePatch) error {
	if len(patches) == 0 {
		return nil
	}

	if s.db != nil {
		return s.db.WithTx(ctx, func(tx pgx.Tx) error {
			return mergePages(ctx, tx, workspaceID, id, patches)
		})
	}
	return mergePages(ctx, s.q, workspaceID, id, patches)
}

func mergePages(ctx context.Context, q db.Querier, workspaceID, id int64, patches map[string]model.PagePatch) error {
	var raw []byte
	err := q.QueryRow(ctx,
		`SELECT pages FROM snapshots WHERE id = $1 AND workspace_id = $2 FOR UPDATE`,
		id, workspaceID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	var pages []model.PageRecord
	if err := json.Unmarshal(raw, &pages); err != nil {
		return fmt.Errorf("unmarshal pages: %w", err)
	}

	for i := range pages {
		if patch, ok := patches[pages[i].Page]; ok {
			patch.Apply(&pages[i])
		}
	}

	merged, err := json.Marshal(pages)
	if err != nil {
		return fmt.Errorf("marshal pages: %w", err)
	}

	_, err = q.Exec(ctx,
		`UPDATE snapshots SET pages = $3, updated_at = NOW() WHERE id = $1 AND workspace_id = $2`,
		id, workspaceID, merged)
	return err
}

func scanSnapshot(row pgx.Row) (*model.Snapshot, error) {
	var (
		snap       model.Snapshot
		raw        []byte
		start, end *time.Time
	)
	err := row.Scan(&snap.ID, &snap.WorkspaceID, &snap.FileName, &raw,
		&snap.PerformanceSummary, &start, &end, &snap.CreatedAt, &snap.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, &snap.Pages); err != nil {
		return nil, fmt.Errorf("unmarshal pages: %w", err)
	}
	if start != nil && end != nil {
		snap.DateRange = &model.DateRange{Start: *start, End: *end}
	}
	return &snap, nil
}
