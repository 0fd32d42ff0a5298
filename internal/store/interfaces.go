package store

import (
	"context"
	"errors"
	"time"

	"searchlens.app/analyzer/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// UserStore defines the contract for user data access
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByWorkOSID(ctx context.Context, workosID string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	// UpsertByWorkOSID inserts the user or refreshes the existing row
	// keyed by WorkOS ID, writing the stored row back into user.
	UpsertByWorkOSID(ctx context.Context, user *model.User) error
	Update(ctx context.Context, user *model.User) error
}

// SessionStore defines the contract for session data access
type SessionStore interface {
	GetValid(ctx context.Context, id int64) (*model.Session, error) // checks expiry
	Create(ctx context.Context, session *model.Session) error
	Delete(ctx context.Context, id int64) error
	DeleteExpired(ctx context.Context) error
}

// WorkspaceStore defines the contract for workspace data access.
type WorkspaceStore interface {
	GetByID(ctx context.Context, id int64) (*model.Workspace, error)
	// EnsureDefault creates the owner's default workspace if it does not
	// exist yet and returns it. Concurrent callers all get the same row;
	// the partial unique index on (owner_user_id) WHERE is_default makes
	// the insert race-safe.
	EnsureDefault(ctx context.Context, ws *model.Workspace) (*model.Workspace, error)
	Create(ctx context.Context, ws *model.Workspace) error
	// AddMember appends an email to the member set if not already present.
	AddMember(ctx context.Context, workspaceID int64, email string) error
	// ListForMember returns every workspace whose member set contains the
	// email, owned workspaces included.
	ListForMember(ctx context.Context, email string) ([]model.Workspace, error)
}

// InvitationStore defines the contract for invitation data access
type InvitationStore interface {
	GetByToken(ctx context.Context, token string) (*model.Invitation, error)
	Create(ctx context.Context, inv *model.Invitation) error
	MarkAccepted(ctx context.Context, id int64, acceptedBy int64) error
	ListByWorkspace(ctx context.Context, workspaceID int64) ([]model.Invitation, error)
}

// SnapshotStore defines the contract for snapshot data access. All
// reads and mutations are scoped to a workspace; a snapshot ID from
// another workspace behaves as if it did not exist.
type SnapshotStore interface {
	GetByID(ctx context.Context, workspaceID, id int64) (*model.Snapshot, error)
	Create(ctx context.Context, snap *model.Snapshot) error
	Delete(ctx context.Context, workspaceID, id int64) error
	ListByWorkspace(ctx context.Context, workspaceID int64) ([]model.Snapshot, error)
	UpdateSummary(ctx context.Context, workspaceID, id int64, summary string) error
	UpdateDateRange(ctx context.Context, workspaceID, id int64, dr model.DateRange) error
	// MergePagesByKey applies keyed row patches to the pages document
	// inside one transaction, holding a row lock for the read-merge-write.
	// Patch keys with no matching Page URL are ignored; unpatched rows
	// and row order are preserved.
	MergePagesByKey(ctx context.Context, workspaceID, id int64, patches map[string]model.PagePatch) error
}

// ExperimentStore defines the contract for experiment data access
type ExperimentStore interface {
	GetByID(ctx context.Context, workspaceID, id int64) (*model.Experiment, error)
	Create(ctx context.Context, exp *model.Experiment) error
	// Complete records the after sample and flips status to completed.
	// Returns ErrNotFound if the experiment is not currently running.
	Complete(ctx context.Context, workspaceID, id int64, after model.MetricSample, endDate time.Time) error
	ListByWorkspace(ctx context.Context, workspaceID int64) ([]model.Experiment, error)
}

// KnowledgeStore defines the contract for knowledge base data access
type KnowledgeStore interface {
	GetByID(ctx context.Context, workspaceID, id int64) (*model.KnowledgeItem, error)
	Create(ctx context.Context, item *model.KnowledgeItem) error
	Delete(ctx context.Context, workspaceID, id int64) error
	ListByWorkspace(ctx context.Context, workspaceID int64) ([]model.KnowledgeItem, error)
}

// SettingsStore defines the contract for workspace and user settings
type SettingsStore interface {
	GetWorkspace(ctx context.Context, workspaceID int64) (*model.WorkspaceSettings, error)
	SetActiveSnapshot(ctx context.Context, workspaceID int64, snapshotID *int64) error
	// SetActiveSnapshotIfUnset writes the pointer only when it is
	// currently null and reports whether the write happened. Concurrent
	// selectors converge on whichever write landed first.
	SetActiveSnapshotIfUnset(ctx context.Context, workspaceID, snapshotID int64) (bool, error)
	// ClearActiveSnapshotIf nulls the pointer only if it currently
	// references snapshotID.
	ClearActiveSnapshotIf(ctx context.Context, workspaceID, snapshotID int64) error
	SetAIAPIKey(ctx context.Context, workspaceID int64, key *string) error
	GetUser(ctx context.Context, userID int64) (*model.UserSettings, error)
	SetLastWorkspace(ctx context.Context, userID, workspaceID int64) error
}

// ShareStore defines the contract for share link data access
type ShareStore interface {
	GetByID(ctx context.Context, id string) (*model.Share, error)
	Create(ctx context.Context, share *model.Share) error
	Delete(ctx context.Context, workspaceID int64, id string) error
	DeleteBySnapshot(ctx context.Context, workspaceID, snapshotID int64) error
	ListByWorkspace(ctx context.Context, workspaceID int64) ([]model.Share, error)
}
