package service_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"searchlens.app/analyzer/common/id"
	"searchlens.app/analyzer/internal/events"
	"searchlens.app/analyzer/internal/model"
	"searchlens.app/analyzer/internal/service"
	"searchlens.app/analyzer/internal/store"
)

var _ = Describe("WorkspaceService", func() {
	var (
		svc      service.WorkspaceService
		wsStore  *mockWorkspaceStore
		invStore *mockInvitationStore
		settings *mockSettingsStore
		bus      *mockPublisher
		ctx      context.Context
		user     *model.User
	)

	BeforeEach(func() {
		ctx = context.Background()
		Expect(id.Init(1)).To(Succeed())

		wsStore = &mockWorkspaceStore{}
		invStore = &mockInvitationStore{}
		settings = &mockSettingsStore{}
		bus = &mockPublisher{}
		user = &model.User{ID: 101, Email: "ana@example.com", Name: "Ana"}

		svc = service.NewWorkspaceService(wsStore, invStore, settings, bus, "https://app.searchlens.test")
	})

	Describe("Resolve", func() {
		It("creates and remembers a default workspace on first touch", func() {
			var ensured *model.Workspace
			wsStore.ensureDefaultFn = func(_ context.Context, ws *model.Workspace) (*model.Workspace, error) {
				ensured = ws
				return ws, nil
			}
			var rememberedWS int64
			settings.setLastWorkspaceFn = func(_ context.Context, uid, wid int64) error {
				Expect(uid).To(Equal(user.ID))
				rememberedWS = wid
				return nil
			}

			ws, err := svc.Resolve(ctx, user)
			Expect(err).NotTo(HaveOccurred())
			Expect(ws).To(Equal(ensured))
			Expect(ws.Name).To(Equal("Ana"))
			Expect(ws.IsDefault).To(BeTrue())
			Expect(ws.OwnerUserID).To(Equal(user.ID))
			Expect(ws.Members).To(ConsistOf(user.Email))
			Expect(rememberedWS).To(Equal(ws.ID))
		})

		It("names the default after the email local-part when the display name is blank", func() {
			user.Name = "  "
			var ensured *model.Workspace
			wsStore.ensureDefaultFn = func(_ context.Context, ws *model.Workspace) (*model.Workspace, error) {
				ensured = ws
				return ws, nil
			}

			_, err := svc.Resolve(ctx, user)
			Expect(err).NotTo(HaveOccurred())
			Expect(ensured.Name).To(Equal("ana"))
		})

		It("returns the concurrently created row when the insert loses a race", func() {
			winner := &model.Workspace{
				ID:          555,
				OwnerUserID: user.ID,
				Name:        "Ana",
				Members:     []string{user.Email},
				IsDefault:   true,
			}
			wsStore.ensureDefaultFn = func(_ context.Context, _ *model.Workspace) (*model.Workspace, error) {
				return winner, nil
			}

			ws, err := svc.Resolve(ctx, user)
			Expect(err).NotTo(HaveOccurred())
			Expect(ws.ID).To(Equal(winner.ID))
		})

		It("resolves an invited user to the workspace they belong to, not a fresh default", func() {
			team := model.Workspace{
				ID:      777,
				Name:    "Client Project",
				Members: []string{"owner@example.com", user.Email},
			}
			wsStore.listForMemberFn = func(_ context.Context, email string) ([]model.Workspace, error) {
				Expect(email).To(Equal(user.Email))
				return []model.Workspace{team}, nil
			}
			wsStore.ensureDefaultFn = func(_ context.Context, _ *model.Workspace) (*model.Workspace, error) {
				Fail("should not create a default workspace")
				return nil, nil
			}
			var rememberedWS int64
			settings.setLastWorkspaceFn = func(_ context.Context, _, wid int64) error {
				rememberedWS = wid
				return nil
			}

			ws, err := svc.Resolve(ctx, user)
			Expect(err).NotTo(HaveOccurred())
			Expect(ws.ID).To(Equal(team.ID))
			Expect(rememberedWS).To(Equal(team.ID))
		})

		It("follows the remembered workspace while it is still in the membership set", func() {
			first := model.Workspace{ID: 555, Name: "Ana", Members: []string{user.Email}}
			remembered := model.Workspace{
				ID:      777,
				Name:    "Client Project",
				Members: []string{"other@example.com", user.Email},
			}
			lastID := remembered.ID
			wsStore.listForMemberFn = func(_ context.Context, _ string) ([]model.Workspace, error) {
				return []model.Workspace{first, remembered}, nil
			}
			settings.getUserFn = func(_ context.Context, _ int64) (*model.UserSettings, error) {
				return &model.UserSettings{UserID: user.ID, LastWorkspaceID: &lastID}, nil
			}
			wsStore.ensureDefaultFn = func(_ context.Context, _ *model.Workspace) (*model.Workspace, error) {
				Fail("should not create a default workspace")
				return nil, nil
			}

			ws, err := svc.Resolve(ctx, user)
			Expect(err).NotTo(HaveOccurred())
			Expect(ws.ID).To(Equal(remembered.ID))
		})

		It("falls back to the first membership when the remembered workspace was revoked", func() {
			first := model.Workspace{ID: 555, Name: "Ana", Members: []string{user.Email}}
			lastID := int64(777) // no longer in the membership set
			wsStore.listForMemberFn = func(_ context.Context, _ string) ([]model.Workspace, error) {
				return []model.Workspace{first}, nil
			}
			settings.getUserFn = func(_ context.Context, _ int64) (*model.UserSettings, error) {
				return &model.UserSettings{UserID: user.ID, LastWorkspaceID: &lastID}, nil
			}

			ws, err := svc.Resolve(ctx, user)
			Expect(err).NotTo(HaveOccurred())
			Expect(ws.ID).To(Equal(first.ID))
		})

		It("creates a default when every membership was revoked", func() {
			lastID := int64(777)
			settings.getUserFn = func(_ context.Context, _ int64) (*model.UserSettings, error) {
				return &model.UserSettings{UserID: user.ID, LastWorkspaceID: &lastID}, nil
			}

			ws, err := svc.Resolve(ctx, user)
			Expect(err).NotTo(HaveOccurred())
			Expect(ws.ID).NotTo(Equal(lastID))
			Expect(ws.IsDefault).To(BeTrue())
		})
	})

	Describe("Get", func() {
		It("enforces membership", func() {
			wsStore.getByIDFn = func(_ context.Context, _ int64) (*model.Workspace, error) {
				return &model.Workspace{ID: 1, Members: []string{"other@example.com"}}, nil
			}
			_, err := svc.Get(ctx, 1, user.Email)
			Expect(err).To(MatchError(service.ErrNotAMember))
		})

		It("matches member emails case-insensitively", func() {
			wsStore.getByIDFn = func(_ context.Context, _ int64) (*model.Workspace, error) {
				return &model.Workspace{ID: 1, Members: []string{"ana@example.com"}}, nil
			}
			ws, err := svc.Get(ctx, 1, "Ana@Example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(ws.ID).To(Equal(int64(1)))
		})

		It("maps a missing workspace", func() {
			_, err := svc.Get(ctx, 99, user.Email)
			Expect(err).To(MatchError(service.ErrWorkspaceNotFound))
		})
	})

	Describe("Switch", func() {
		It("remembers the chosen workspace", func() {
			wsStore.getByIDFn = func(_ context.Context, _ int64) (*model.Workspace, error) {
				return &model.Workspace{ID: 8, Members: []string{user.Email}}, nil
			}
			var remembered int64
			settings.setLastWorkspaceFn = func(_ context.Context, _, wid int64) error {
				remembered = wid
				return nil
			}

			ws, err := svc.Switch(ctx, user, 8)
			Expect(err).NotTo(HaveOccurred())
			Expect(ws.ID).To(Equal(int64(8)))
			Expect(remembered).To(Equal(int64(8)))
		})
	})

	Describe("Invite", func() {
		It("creates a pending invitation with a week of validity", func() {
			var created *model.Invitation
			invStore.createFn = func(_ context.Context, inv *model.Invitation) error {
				created = inv
				return nil
			}
			invitedBy := user.ID

			inv, url, err := svc.Invite(ctx, 42, "  New.Member@Example.COM ", &invitedBy)
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(Equal(inv))

			Expect(inv.Email).To(Equal("new.member@example.com"))
			Expect(inv.Status).To(Equal(model.InvitationStatusPending))
			Expect(inv.Token).NotTo(BeEmpty())
			Expect(inv.ExpiresAt).To(BeTemporally("~", time.Now().Add(7*24*time.Hour), time.Minute))
			Expect(url).To(Equal("https://app.searchlens.test/invite?token=" + inv.Token))
		})
	})

	Describe("AcceptInvite", func() {
		var inv *model.Invitation
		var ws *model.Workspace

		BeforeEach(func() {
			inv = &model.Invitation{
				ID:          300,
				WorkspaceID: 42,
				Email:       "ana@example.com",
				Token:       "tok-1",
				Status:      model.InvitationStatusPending,
				ExpiresAt:   time.Now().Add(24 * time.Hour),
			}
			ws = &model.Workspace{ID: 42, Members: []string{"owner@example.com"}}

			invStore.getByTokenFn = func(_ context.Context, token string) (*model.Invitation, error) {
				if token == inv.Token {
					return inv, nil
				}
				return nil, store.ErrNotFound
			}
			wsStore.getByIDFn = func(_ context.Context, wid int64) (*model.Workspace, error) {
				if wid == ws.ID {
					return ws, nil
				}
				return nil, store.ErrNotFound
			}
		})

		It("marks the invite accepted and adds the member", func() {
			var accepted, addedEmail string
			invStore.markAcceptedFn = func(_ context.Context, iid, by int64) error {
				Expect(iid).To(Equal(inv.ID))
				Expect(by).To(Equal(user.ID))
				accepted = "yes"
				return nil
			}
			wsStore.addMemberFn = func(_ context.Context, wid int64, email string) error {
				Expect(wid).To(Equal(ws.ID))
				addedEmail = email
				return nil
			}

			got, err := svc.AcceptInvite(ctx, "tok-1", user)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(ws.ID))
			Expect(accepted).To(Equal("yes"))
			Expect(addedEmail).To(Equal("ana@example.com"))

			Expect(bus.events).To(HaveLen(1))
			Expect(bus.events[0].Entity).To(Equal(events.EntityWorkspace))
			Expect(bus.events[0].WorkspaceID).To(Equal(ws.ID))
		})

		It("rejects an unknown token", func() {
			_, err := svc.AcceptInvite(ctx, "bogus", user)
			Expect(err).To(MatchError(service.ErrInviteNotFound))
		})

		It("rejects an expired invitation", func() {
			inv.ExpiresAt = time.Now().Add(-time.Hour)
			_, err := svc.AcceptInvite(ctx, "tok-1", user)
			Expect(err).To(MatchError(service.ErrInviteExpired))
		})

		It("rejects a reused invitation", func() {
			inv.Status = model.InvitationStatusAccepted
			_, err := svc.AcceptInvite(ctx, "tok-1", user)
			Expect(err).To(MatchError(service.ErrInviteAlreadyUsed))
		})

		It("rejects a mismatched email", func() {
			other := &model.User{ID: 202, Email: "impostor@example.com"}
			_, err := svc.AcceptInvite(ctx, "tok-1", other)
			Expect(err).To(MatchError(service.ErrEmailMismatch))
		})

		It("treats a lost acceptance race as already used", func() {
			invStore.markAcceptedFn = func(_ context.Context, _, _ int64) error {
				return store.ErrNotFound
			}
			_, err := svc.AcceptInvite(ctx, "tok-1", user)
			Expect(err).To(MatchError(service.ErrInviteAlreadyUsed))
		})

		It("accepts the token case of the stored email regardless of the user's casing", func() {
			user.Email = "ANA@example.com"
			var addedEmail string
			wsStore.addMemberFn = func(_ context.Context, _ int64, email string) error {
				addedEmail = email
				return nil
			}
			_, err := svc.AcceptInvite(ctx, "tok-1", user)
			Expect(err).NotTo(HaveOccurred())
			Expect(addedEmail).To(Equal("ana@example.com"))
		})
	})
})
