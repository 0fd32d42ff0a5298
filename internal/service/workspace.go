package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"searchlens.app/analyzer/common/id"
	"searchlens.app/analyzer/common/logger"
	"searchlens.app/analyzer/internal/events"
	"searchlens.app/analyzer/internal/model"
	"searchlens.app/analyzer/internal/store"
)

const (
	InviteTokenLength = 32
	InviteExpiryDays  = 7
)

var (
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrNotAMember        = errors.New("not a member of this workspace")
	ErrInviteNotFound    = errors.New("invitation not found")
	ErrInviteExpired     = errors.New("invitation has expired")
	ErrInviteAlreadyUsed = errors.New("invitation has already been used")
	ErrEmailMismatch     = errors.New("authenticated email does not match invitation")
)

// WorkspaceService resolves the tenancy boundary: which workspace a
// request operates in, who belongs to it, and how members are added.
type WorkspaceService interface {
	// Resolve picks the workspace for a user's session from the set they
	// are a member of: the last-used one when it is still in the set,
	// else the first. A user with no memberships gets a default
	// workspace created on first touch.
	Resolve(ctx context.Context, user *model.User) (*model.Workspace, error)
	Get(ctx context.Context, workspaceID int64, memberEmail string) (*model.Workspace, error)
	List(ctx context.Context, memberEmail string) ([]model.Workspace, error)
	Switch(ctx context.Context, user *model.User, workspaceID int64) (*model.Workspace, error)
	Invite(ctx context.Context, workspaceID int64, email string, invitedBy *int64) (*model.Invitation, string, error)
	AcceptInvite(ctx context.Context, token string, user *model.User) (*model.Workspace, error)
}

type workspaceService struct {
	wsStore       store.WorkspaceStore
	invStore      store.InvitationStore
	settingsStore store.SettingsStore
	bus           events.Publisher
	dashboardURL  string
}

func NewWorkspaceService(
	wsStore store.WorkspaceStore,
	invStore store.InvitationStore,
	settingsStore store.SettingsStore,
	bus events.Publisher,
	dashboardURL string,
) WorkspaceService {
	return &workspaceService{
		wsStore:       wsStore,
		invStore:      invStore,
		settingsStore: settingsStore,
		bus:           bus,
		dashboardURL:  dashboardURL,
	}
}

func (s *workspaceService) Resolve(ctx context.Context, user *model.User) (*model.Workspace, error) {
	memberships, err := s.wsStore.ListForMember(ctx, user.Email)
	if err != nil {
		return nil, fmt.Errorf("listing workspaces: %w", err)
	}

	if len(memberships) == 0 {
		ws, err := s.ensureDefault(ctx, user)
		if err != nil {
			return nil, err
		}
		s.remember(ctx, user.ID, ws.ID)
		return ws, nil
	}

	if settings, err := s.settingsStore.GetUser(ctx, user.ID); err == nil && settings.LastWorkspaceID != nil {
		for i := range memberships {
			if memberships[i].ID == *settings.LastWorkspaceID {
				return &memberships[i], nil
			}
		}
		// The remembered workspace is gone or the user lost access;
		// fall through to the first membership.
	}

	ws := &memberships[0]
	s.remember(ctx, user.ID, ws.ID)
	return ws, nil
}

func (s *workspaceService) remember(ctx context.Context, userID, workspaceID int64) {
	if err := s.settingsStore.SetLastWorkspace(ctx, userID, workspaceID); err != nil {
		slog.WarnContext(ctx, "failed to remember workspace", "error", err, "workspace_id", workspaceID)
	}
}

// defaultWorkspaceName derives the first workspace's name from the
// user's display name, falling back to the local part of their email.
func defaultWorkspaceName(user *model.User) string {
	if name := strings.TrimSpace(user.Name); name != "" {
		return name
	}
	local, _, _ := strings.Cut(user.Email, "@")
	return local
}

func (s *workspaceService) ensureDefault(ctx context.Context, user *model.User) (*model.Workspace, error) {
	candidate := &model.Workspace{
		ID:          id.New(),
		OwnerUserID: user.ID,
		Name:        defaultWorkspaceName(user),
		Members:     []string{user.Email},
		IsDefault:   true,
	}

	ws, err := s.wsStore.EnsureDefault(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("resolving default workspace: %w", err)
	}

	if ws.ID == candidate.ID {
		slog.InfoContext(ctx, "default workspace created",
			"workspace_id", ws.ID,
			"user_id", user.ID)
	}
	return ws, nil
}

func (s *workspaceService) Get(ctx context.Context, workspaceID int64, memberEmail string) (*model.Workspace, error) {
	ws, err := s.wsStore.GetByID(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, err
	}
	if !ws.HasMember(memberEmail) {
		return nil, ErrNotAMember
	}
	return ws, nil
}

func (s *workspaceService) List(ctx context.Context, memberEmail string) ([]model.Workspace, error) {
	return s.wsStore.ListForMember(ctx, memberEmail)
}

func (s *workspaceService) Switch(ctx context.Context, user *model.User, workspaceID int64) (*model.Workspace, error) {
	ws, err := s.Get(ctx, workspaceID, user.Email)
	if err != nil {
		return nil, err
	}
	if err := s.settingsStore.SetLastWorkspace(ctx, user.ID, ws.ID); err != nil {
		return nil, fmt.Errorf("remembering workspace: %w", err)
	}
	return ws, nil
}

func (s *workspaceService) Invite(ctx context.Context, workspaceID int64, email string, invitedBy *int64) (*model.Invitation, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	token, err := generateSecureToken(InviteTokenLength)
	if err != nil {
		return nil, "", fmt.Errorf("generating token: %w", err)
	}

	inv := &model.Invitation{
		ID:          id.New(),
		WorkspaceID: workspaceID,
		Email:       email,
		Token:       token,
		Status:      model.InvitationStatusPending,
		InvitedBy:   invitedBy,
		ExpiresAt:   time.Now().Add(InviteExpiryDays * 24 * time.Hour),
	}

	if err := s.invStore.Create(ctx, inv); err != nil {
		return nil, "", fmt.Errorf("creating invitation: %w", err)
	}

	inviteURL := fmt.Sprintf("%s/invite?token=%s", s.dashboardURL, token)

	slog.InfoContext(ctx, "invitation created",
		"invitation_id", inv.ID,
		"workspace_id", workspaceID,
		"email", email,
		"expires_at", inv.ExpiresAt,
	)

	return inv, inviteURL, nil
}

func (s *workspaceService) AcceptInvite(ctx context.Context, token string, user *model.User) (*model.Workspace, error) {
	inv, err := s.invStore.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, err
	}

	switch {
	case inv.Status == model.InvitationStatusAccepted:
		return nil, ErrInviteAlreadyUsed
	case !inv.IsValid():
		return nil, ErrInviteExpired
	case !strings.EqualFold(inv.Email, user.Email):
		return nil, ErrEmailMismatch
	}

	if err := s.invStore.MarkAccepted(ctx, inv.ID, user.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Another acceptance got there first.
			return nil, ErrInviteAlreadyUsed
		}
		return nil, err
	}

	if err := s.wsStore.AddMember(ctx, inv.WorkspaceID, strings.ToLower(user.Email)); err != nil {
		return nil, fmt.Errorf("adding member: %w", err)
	}

	ws, err := s.wsStore.GetByID(ctx, inv.WorkspaceID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ws.ID, events.Event{
		WorkspaceID: ws.ID,
		Entity:      events.EntityWorkspace,
		EntityID:    ws.ID,
		Action:      events.ActionUpdated,
	})

	slog.InfoContext(ctx, "invitation accepted",
		"invitation_id", inv.ID,
		"workspace_id", ws.ID,
		"user_id", user.ID,
	)

	return ws, nil
}

func (s *workspaceService) publish(ctx context.Context, workspaceID int64, ev events.Event) {
	if s.bus == nil {
		return
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{WorkspaceID: logger.Ptr(workspaceID)})
	if err := s.bus.Publish(ctx, ev); err != nil {
		slog.WarnContext(ctx, "failed to publish workspace event", "error", err)
	}
}

func generateSecureToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
