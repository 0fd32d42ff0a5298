package model

import (
	"strings"
	"time"
)

// Workspace is the multi-tenant ownership boundary. Every snapshot,
// experiment, knowledge item and settings record belongs to exactly one
// workspace; members are identified by email and membership only grows.
type Workspace struct {
	ID          int64     `json:"id"`
	OwnerUserID int64     `json:"owner_user_id"`
	Name        string    `json:"name"`
	Members     []string  `json:"members"`
	IsDefault   bool      `json:"-"` // the lazily created first workspace
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasMember reports whether the given email belongs to the workspace.
// Stored members are lowercased, but identity providers report emails
// in arbitrary case, so the comparison folds case.
func (w *Workspace) HasMember(email string) bool {
	for _, m := range w.Members {
		if strings.EqualFold(m, email) {
			return true
		}
	}
	return false
}
