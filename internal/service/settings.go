package service

import (
	"context"
	"errors"
	"log/slog"

	"searchlens.app/analyzer/internal/events"
	"searchlens.app/analyzer/internal/model"
	"searchlens.app/analyzer/internal/store"
)

// SettingsService exposes the per-workspace configuration surface.
// The active-snapshot pointer is managed by SnapshotService; this
// covers the rest.
type SettingsService interface {
	GetWorkspace(ctx context.Context, workspaceID int64) (*model.WorkspaceSettings, error)
	// SetAIAPIKey stores a workspace-level capability key override.
	// Nil clears it, falling back to the environment default.
	SetAIAPIKey(ctx context.Context, workspaceID int64, key *string) error
}

type settingsService struct {
	settingsStore store.SettingsStore
	bus           events.Publisher
}

func NewSettingsService(settingsStore store.SettingsStore, bus events.Publisher) SettingsService {
	return &settingsService{settingsStore: settingsStore, bus: bus}
}

func (s *settingsService) GetWorkspace(ctx context.Context, workspaceID int64) (*model.WorkspaceSettings, error) {
	settings, err := s.settingsStore.GetWorkspace(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// No row yet is indistinguishable from defaults.
			return &model.WorkspaceSettings{WorkspaceID: workspaceID}, nil
		}
		return nil, err
	}
	return settings, nil
}

func (s *settingsService) SetAIAPIKey(ctx context.Context, workspaceID int64, key *string) error {
	if err := s.settingsStore.SetAIAPIKey(ctx, workspaceID, key); err != nil {
		return err
	}

	slog.InfoContext(ctx, "workspace AI key updated",
		"workspace_id", workspaceID,
		"cleared", key == nil,
	)

	if s.bus != nil {
		ev := events.Event{
			WorkspaceID: workspaceID,
			Entity:      events.EntitySettings,
			EntityID:    workspaceID,
			Action:      events.ActionUpdated,
		}
		if err := s.bus.Publish(ctx, ev); err != nil {
			slog.WarnContext(ctx, "failed to publish settings event", "error", err)
		}
	}
	return nil
}
