package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"searchlens.app/analyzer/internal/http/handler"
	"searchlens.app/analyzer/internal/http/middleware"
	"searchlens.app/analyzer/internal/model"
	"searchlens.app/analyzer/internal/service"
)

var _ = Describe("WorkspaceHandler", func() {
	var (
		router  *gin.Engine
		authSvc *mockAuthService
		wsSvc   *mockWorkspaceService
		user    *model.User
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()

		user = &model.User{ID: 1, Email: "ana@example.com"}
		authSvc = &mockAuthService{
			validateSessionFn: func(_ context.Context, _ int64) (*model.User, error) {
				return user, nil
			},
		}
		wsSvc = &mockWorkspaceService{}

		h := handler.NewWorkspaceHandler(wsSvc)
		api := router.Group("/api/v1", middleware.RequireAuth(authSvc))
		{
			api.GET("/workspaces/current", h.Current)
			api.POST("/workspaces/switch", h.Switch)
			api.POST("/workspaces/invites/accept", h.AcceptInvite)
		}
	})

	doJSON := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "42"})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	Describe("Current", func() {
		It("returns the resolved workspace with a string ID", func() {
			wsSvc.resolveFn = func(_ context.Context, u *model.User) (*model.Workspace, error) {
				Expect(u).To(Equal(user))
				return &model.Workspace{ID: 10, Name: "My Workspace", Members: []string{user.Email}}, nil
			}

			w := doJSON(http.MethodGet, "/api/v1/workspaces/current", "")

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["id"]).To(Equal("10"))
			Expect(resp["name"]).To(Equal("My Workspace"))
		})

		It("rejects an expired session", func() {
			authSvc.validateSessionFn = nil

			w := doJSON(http.MethodGet, "/api/v1/workspaces/current", "")
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("Switch", func() {
		It("switches to a workspace the user belongs to", func() {
			wsSvc.switchFn = func(_ context.Context, _ *model.User, wid int64) (*model.Workspace, error) {
				Expect(wid).To(Equal(int64(20)))
				return &model.Workspace{ID: 20, Name: "Client Site"}, nil
			}

			w := doJSON(http.MethodPost, "/api/v1/workspaces/switch", `{"workspace_id":"20"}`)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring(`"Client Site"`))
		})

		It("returns 403 for a workspace the user is not a member of", func() {
			wsSvc.switchFn = func(_ context.Context, _ *model.User, _ int64) (*model.Workspace, error) {
				return nil, service.ErrNotAMember
			}

			w := doJSON(http.MethodPost, "/api/v1/workspaces/switch", `{"workspace_id":"20"}`)
			Expect(w.Code).To(Equal(http.StatusForbidden))
		})
	})

	Describe("AcceptInvite", func() {
		accept := func(err error) *httptest.ResponseRecorder {
			wsSvc.acceptInviteFn = func(_ context.Context, token string, _ *model.User) (*model.Workspace, error) {
				Expect(token).To(Equal("tok-1"))
				if err != nil {
					return nil, err
				}
				return &model.Workspace{ID: 30, Name: "Shared", Members: []string{user.Email}}, nil
			}
			return doJSON(http.MethodPost, "/api/v1/workspaces/invites/accept", `{"token":"tok-1"}`)
		}

		It("adds the user and returns the workspace", func() {
			w := accept(nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring(`"id":"30"`))
		})

		It("maps an unknown token to 404", func() {
			w := accept(service.ErrInviteNotFound)
			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(w.Body.String()).To(ContainSubstring("invite_not_found"))
		})

		It("maps an expired invitation to 410", func() {
			w := accept(service.ErrInviteExpired)
			Expect(w.Code).To(Equal(http.StatusGone))
			Expect(w.Body.String()).To(ContainSubstring("invite_expired"))
		})

		It("maps a spent invitation to 410", func() {
			w := accept(service.ErrInviteAlreadyUsed)
			Expect(w.Code).To(Equal(http.StatusGone))
			Expect(w.Body.String()).To(ContainSubstring("invite_used"))
		})

		It("maps an email mismatch to 403", func() {
			w := accept(service.ErrEmailMismatch)
			Expect(w.Code).To(Equal(http.StatusForbidden))
			Expect(w.Body.String()).To(ContainSubstring("email_mismatch"))
		})

		It("rejects a body without a token", func() {
			w := doJSON(http.MethodPost, "/api/v1/workspaces/invites/accept", `{}`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})
})

var _ = Describe("Invite", func() {
	It("creates an invitation scoped to the workspace", func() {
		gin.SetMode(gin.TestMode)
		router := gin.New()

		user := &model.User{ID: 1, Email: "ana@example.com"}
		ws := &model.Workspace{ID: 10, Name: "My Workspace", Members: []string{user.Email}}
		authSvc := &mockAuthService{
			validateSessionFn: func(_ context.Context, _ int64) (*model.User, error) { return user, nil },
		}
		wsSvc := &mockWorkspaceService{
			getFn: func(_ context.Context, _ int64, _ string) (*model.Workspace, error) { return ws, nil },
			inviteFn: func(_ context.Context, wid int64, email string, invitedBy *int64) (*model.Invitation, string, error) {
				Expect(wid).To(Equal(ws.ID))
				Expect(email).To(Equal("new@example.com"))
				Expect(invitedBy).To(HaveValue(Equal(user.ID)))
				inv := &model.Invitation{ID: 77, Email: email, ExpiresAt: time.Now().Add(7 * 24 * time.Hour)}
				return inv, "https://app.searchlens.test/invite?token=tok-77", nil
			},
		}

		h := handler.NewWorkspaceHandler(wsSvc)
		scoped := router.Group("/api/v1/workspaces/:workspaceId",
			middleware.RequireAuth(authSvc), middleware.RequireWorkspace(wsSvc))
		scoped.POST("/invites", h.Invite)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/workspaces/10/invites",
			strings.NewReader(`{"email":"new@example.com"}`))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "42"})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusCreated))
		var resp map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp["id"]).To(Equal("77"))
		Expect(resp["invite_url"]).To(Equal("https://app.searchlens.test/invite?token=tok-77"))
	})
})
