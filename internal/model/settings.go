package model

import "time"

// WorkspaceSettings is the per-workspace settings record. The active
// snapshot pointer lives here so it survives reloads and is shared by
// every member's session.
type WorkspaceSettings struct {
	WorkspaceID      int64     `json:"workspace_id"`
	ActiveSnapshotID *int64    `json:"active_snapshot_id,omitempty"`
	AIAPIKey         *string   `json:"-"` // workspace-level capability key override
	UpdatedAt        time.Time `json:"updated_at"`
}

// UserSettings is the per-user settings record.
type UserSettings struct {
	UserID          int64     `json:"user_id"`
	LastWorkspaceID *int64    `json:"last_workspace_id,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}
