package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"searchlens.app/analyzer/common/id"
	"searchlens.app/analyzer/common/logger"
	"searchlens.app/analyzer/internal/events"
	"searchlens.app/analyzer/internal/ingest"
	"searchlens.app/analyzer/internal/model"
	"searchlens.app/analyzer/internal/store"
)

var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrNoActiveData matches the message shown when analysis is
	// requested before any data exists.
	ErrNoActiveData = errors.New("No active data to analyze.")

	ErrInvalidDateRange = errors.New("invalid date range")
)

// SnapshotService manages uploaded performance captures and the
// workspace's active-snapshot pointer.
type SnapshotService interface {
	// Ingest parses a Search Console CSV export into a new snapshot.
	// The first snapshot of a workspace becomes active automatically.
	Ingest(ctx context.Context, workspaceID int64, fileName string, r io.Reader) (*model.Snapshot, error)
	Get(ctx context.Context, workspaceID, snapshotID int64) (*model.Snapshot, error)
	List(ctx context.Context, workspaceID int64) ([]model.Snapshot, error)
	// Delete removes the snapshot plus its share links and, when it was
	// active, clears the pointer, all in one transaction.
	Delete(ctx context.Context, workspaceID, snapshotID int64) error
	SetActive(ctx context.Context, workspaceID, snapshotID int64) error
	// GetActive returns the workspace's active snapshot. With the
	// pointer unset it promotes the most recent snapshot; an empty
	// workspace yields ErrNoActiveData.
	GetActive(ctx context.Context, workspaceID int64) (*model.Snapshot, error)
	SetDateRange(ctx context.Context, workspaceID, snapshotID int64, dr model.DateRange) error
}

type snapshotService struct {
	snapStore     store.SnapshotStore
	settingsStore store.SettingsStore
	txRunner      TxRunner
	bus           events.Publisher
}

func NewSnapshotService(
	snapStore store.SnapshotStore,
	settingsStore store.SettingsStore,
	txRunner TxRunner,
	bus events.Publisher,
) SnapshotService {
	return &snapshotService{
		snapStore:     snapStore,
		settingsStore: settingsStore,
		txRunner:      txRunner,
		bus:           bus,
	}
}

func (s *snapshotService) Ingest(ctx context.Context, workspaceID int64, fileName string, r io.Reader) (*model.Snapshot, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		WorkspaceID: logger.Ptr(workspaceID),
		Component:   "analyzer.snapshot",
	})

	pages, err := ingest.Normalize(r)
	if err != nil {
		return nil, err
	}

	snap := &model.Snapshot{
		ID:          id.New(),
		WorkspaceID: workspaceID,
		FileName:    fileName,
		Pages:       pages,
	}

	if err := s.snapStore.Create(ctx, snap); err != nil {
		return nil, fmt.Errorf("creating snapshot: %w", err)
	}

	// First upload becomes the active snapshot; an existing explicit
	// choice is never displaced.
	promoted, err := s.settingsStore.SetActiveSnapshotIfUnset(ctx, workspaceID, snap.ID)
	if err != nil {
		slog.WarnContext(ctx, "failed to auto-select snapshot", "error", err, "snapshot_id", snap.ID)
	}

	slog.InfoContext(ctx, "snapshot ingested",
		"snapshot_id", snap.ID,
		"file_name", fileName,
		"pages", len(snap.Pages),
		"promoted", promoted,
	)

	s.publish(ctx, events.Event{
		WorkspaceID: workspaceID,
		Entity:      events.EntitySnapshot,
		EntityID:    snap.ID,
		Action:      events.ActionCreated,
	})

	return snap, nil
}

func (s *snapshotService) Get(ctx context.Context, workspaceID, snapshotID int64) (*model.Snapshot, error) {
	snap, err := s.snapStore.GetByID(ctx, workspaceID, snapshotID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	return snap, nil
}

func (s *snapshotService) List(ctx context.Context, workspaceID int64) ([]model.Snapshot, error) {
	return s.snapStore.ListByWorkspace(ctx, workspaceID)
}

func (s *snapshotService) Delete(ctx context.Context, workspaceID, snapshotID int64) error {
	err := s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		if err := stores.Shares().DeleteBySnapshot(ctx, workspaceID, snapshotID); err != nil {
			return fmt.Errorf("deleting shares: %w", err)
		}
		if err := stores.Settings().ClearActiveSnapshotIf(ctx, workspaceID, snapshotID); err != nil {
			return fmt.Errorf("clearing active pointer: %w", err)
		}
		if err := stores.Snapshots().Delete(ctx, workspaceID, snapshotID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSnapshotNotFound
		}
		return err
	}

	s.publish(ctx, events.Event{
		WorkspaceID: workspaceID,
		Entity:      events.EntitySnapshot,
		EntityID:    snapshotID,
		Action:      events.ActionDeleted,
	})
	return nil
}

func (s *snapshotService) SetActive(ctx context.Context, workspaceID, snapshotID int64) error {
	// Reject pointers into other workspaces before writing.
	if _, err := s.Get(ctx, workspaceID, snapshotID); err != nil {
		return err
	}
	if err := s.settingsStore.SetActiveSnapshot(ctx, workspaceID, &snapshotID); err != nil {
		return err
	}

	s.publish(ctx, events.Event{
		WorkspaceID: workspaceID,
		Entity:      events.EntitySettings,
		EntityID:    snapshotID,
		Action:      events.ActionUpdated,
	})
	return nil
}

func (s *snapshotService) GetActive(ctx context.Context, workspaceID int64) (*model.Snapshot, error) {
	settings, err := s.settingsStore.GetWorkspace(ctx, workspaceID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if settings != nil && settings.ActiveSnapshotID != nil {
		snap, err := s.snapStore.GetByID(ctx, workspaceID, *settings.ActiveSnapshotID)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		// Dangling pointer; fall through and re-select.
	}

	snaps, err := s.snapStore.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ErrNoActiveData
	}

	// Most recent first per store ordering. The conditional write keeps
	// concurrent selectors and explicit choices from fighting; re-read
	// to learn which snapshot actually won.
	candidate := snaps[0]
	if _, err := s.settingsStore.SetActiveSnapshotIfUnset(ctx, workspaceID, candidate.ID); err != nil {
		return nil, err
	}
	settings, err = s.settingsStore.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if settings.ActiveSnapshotID == nil {
		return &candidate, nil
	}
	return s.Get(ctx, workspaceID, *settings.ActiveSnapshotID)
}

func (s *snapshotService) SetDateRange(ctx context.Context, workspaceID, snapshotID int64, dr model.DateRange) error {
	if dr.End.Before(dr.Start) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidDateRange,
			dr.End.Format(time.DateOnly), dr.Start.Format(time.DateOnly))
	}

	if err := s.snapStore.UpdateDateRange(ctx, workspaceID, snapshotID, dr); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSnapshotNotFound
		}
		return err
	}

	s.publish(ctx, events.Event{
		WorkspaceID: workspaceID,
		Entity:      events.EntitySnapshot,
		EntityID:    snapshotID,
		Action:      events.ActionUpdated,
	})
	return nil
}

func (s *snapshotService) publish(ctx context.Context, ev events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		slog.WarnContext(ctx, "failed to publish snapshot event", "error", err)
	}
}
