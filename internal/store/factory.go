package store

import (
	"github.com/jackc/pgx/v5"

	"searchlens.app/analyzer/core/db"
)

// Stores is the accessor hub for all entity stores. Pool-bound by
// default; NewTxStores binds every store to one open transaction so a
// multi-entity operation commits or rolls back as a unit.
type Stores struct {
	q  db.Querier
	db *db.DB
}

func NewStores(database *db.DB) *Stores {
	return &Stores{q: database.Pool(), db: database}
}

func NewTxStores(tx pgx.Tx) *Stores {
	return &Stores{q: tx}
}

func (s *Stores) Users() UserStore {
	return newUserStore(s.q)
}

func (s *Stores) Sessions() SessionStore {
	return newSessionStore(s.q)
}

func (s *Stores) Workspaces() WorkspaceStore {
	return newWorkspaceStore(s.q)
}

func (s *Stores) Invitations() InvitationStore {
	return newInvitationStore(s.q)
}

func (s *Stores) Snapshots() SnapshotStore {
	return newSnapshotStore(s.q, s.db)
}

func (s *Stores) Experiments() ExperimentStore {
	return newExperimentStore(s.q)
}

func (s *Stores) Knowledge() KnowledgeStore {
	return newKnowledgeStore(s.q)
}

func (s *Stores) Settings() SettingsStore {
	return newSettingsStore(s.q)
}

func (s *Stores) Shares() ShareStore {
	return newShareStore(s.q)
}
