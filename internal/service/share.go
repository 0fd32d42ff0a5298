package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"searchlens.app/analyzer/common/logger"
	"searchlens.app/analyzer/internal/model"
	"searchlens.app/analyzer/internal/store"
)

const shareTokenLength = 16

var ErrShareNotFound = errors.New("share not found")

// ShareService mints and resolves public read-only links to snapshots.
// A share carries no credentials; resolving it yields exactly one
// snapshot and nothing else from the workspace.
type ShareService interface {
	Create(ctx context.Context, workspaceID, snapshotID, createdBy int64) (*model.Share, string, error)
	// Resolve is the unauthenticated path: share ID to snapshot.
	Resolve(ctx context.Context, shareID string) (*model.Snapshot, error)
	List(ctx context.Context, workspaceID int64) ([]model.Share, error)
	Revoke(ctx context.Context, workspaceID int64, shareID string) error
}

type shareService struct {
	shareStore   store.ShareStore
	snapStore    store.SnapshotStore
	dashboardURL string
}

func NewShareService(shareStore store.ShareStore, snapStore store.SnapshotStore, dashboardURL string) ShareService {
	return &shareService{
		shareStore:   shareStore,
		snapStore:    snapStore,
		dashboardURL: dashboardURL,
	}
}

func (s *shareService) Create(ctx context.Context, workspaceID, snapshotID, createdBy int64) (*model.Share, string, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		WorkspaceID: logger.Ptr(workspaceID),
		SnapshotID:  logger.Ptr(snapshotID),
		Component:   "analyzer.share",
	})

	// The snapshot must exist in this workspace before a link to it is
	// minted.
	if _, err := s.snapStore.GetByID(ctx, workspaceID, snapshotID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrSnapshotNotFound
		}
		return nil, "", err
	}

	token, err := generateSecureToken(shareTokenLength)
	if err != nil {
		return nil, "", fmt.Errorf("generating share token: %w", err)
	}

	share := &model.Share{
		ID:          token,
		WorkspaceID: workspaceID,
		SnapshotID:  snapshotID,
		CreatedBy:   createdBy,
	}
	if err := s.shareStore.Create(ctx, share); err != nil {
		return nil, "", fmt.Errorf("creating share: %w", err)
	}

	shareURL := fmt.Sprintf("%s/share/%s", s.dashboardURL, share.ID)

	slog.InfoContext(ctx, "share link created", "share_id", share.ID)
	return share, shareURL, nil
}

func (s *shareService) Resolve(ctx context.Context, shareID string) (*model.Snapshot, error) {
	share, err := s.shareStore.GetByID(ctx, shareID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrShareNotFound
		}
		return nil, err
	}

	snap, err := s.snapStore.GetByID(ctx, share.WorkspaceID, share.SnapshotID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The snapshot went away from under the link.
			return nil, ErrShareNotFound
		}
		return nil, err
	}
	return snap, nil
}

func (s *shareService) List(ctx context.Context, workspaceID int64) ([]model.Share, error) {
	return s.shareStore.ListByWorkspace(ctx, workspaceID)
}

func (s *shareService) Revoke(ctx context.Context, workspaceID int64, shareID string) error {
	if err := s.shareStore.Delete(ctx, workspaceID, shareID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrShareNotFound
		}
		return err
	}
	slog.InfoContext(ctx, "share link revoked", "share_id", shareID, "workspace_id", workspaceID)
	return nil
}
