package model

import "time"

// Share maps an opaque public identifier to one snapshot. Resolving a
// share is a two-step lookup (share -> snapshot) and yields a read-only
// view; shares carry no credentials of their own.
type Share struct {
	ID          string    `json:"id"`
	WorkspaceID int64     `json:"workspace_id"`
	SnapshotID  int64     `json:"snapshot_id"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}
