package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/openai/openai-go"

	"searchlens.app/analyzer/common/llm"
	"searchlens.app/analyzer/internal/http/handler"
	"searchlens.app/analyzer/internal/http/middleware"
	"searchlens.app/analyzer/internal/metadata"
	"searchlens.app/analyzer/internal/model"
	"searchlens.app/analyzer/internal/service"
)

var _ = Describe("InsightHandler", func() {
	var (
		router     *gin.Engine
		insightSvc *mockInsightService
		enrichSvc  *mockEnrichmentService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()

		user := &model.User{ID: 1, Email: "ana@example.com"}
		ws := &model.Workspace{ID: 10, Name: "My Workspace", Members: []string{user.Email}}

		authSvc := &mockAuthService{
			validateSessionFn: func(_ context.Context, _ int64) (*model.User, error) { return user, nil },
		}
		wsSvc := &mockWorkspaceService{
			getFn: func(_ context.Context, _ int64, _ string) (*model.Workspace, error) { return ws, nil },
		}
		insightSvc = &mockInsightService{}
		enrichSvc = &mockEnrichmentService{}

		h := handler.NewInsightHandler(insightSvc, enrichSvc)
		scoped := router.Group("/api/v1/workspaces/:workspaceId",
			middleware.RequireAuth(authSvc), middleware.RequireWorkspace(wsSvc))
		{
			scoped.POST("/insights/summary", h.Summarize)
			scoped.POST("/insights/meta-suggestion", h.SuggestMeta)
			scoped.POST("/insights/metadata", h.EnrichPage)
			scoped.POST("/insights/metadata/refresh-all", h.EnrichAll)
		}
	})

	do := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "42"})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	Describe("Summarize", func() {
		It("returns the structured summary", func() {
			insightSvc.summarizeFn = func(_ context.Context, wid int64) (*service.TrendSummary, error) {
				Expect(wid).To(Equal(int64(10)))
				return &service.TrendSummary{
					PerformanceSummary: service.PerformanceSummary{
						TotalImpressions: 1200,
						TotalClicks:      60,
						AverageCtr:       "5.00%",
					},
				}, nil
			}

			w := do("/api/v1/workspaces/10/insights/summary", "")

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp service.TrendSummary
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.AverageCtr).To(Equal("5.00%"))
		})

		It("returns 412 when no API key is configured", func() {
			insightSvc.summarizeFn = func(_ context.Context, _ int64) (*service.TrendSummary, error) {
				return nil, llm.ErrMissingAPIKey
			}

			w := do("/api/v1/workspaces/10/insights/summary", "")
			Expect(w.Code).To(Equal(http.StatusPreconditionFailed))
			Expect(w.Body.String()).To(ContainSubstring("missing_api_key"))
		})

		It("returns 401 when the provider rejects the key", func() {
			insightSvc.summarizeFn = func(_ context.Context, _ int64) (*service.TrendSummary, error) {
				return nil, fmt.Errorf("generating summary: %w", &openai.Error{StatusCode: 401})
			}

			w := do("/api/v1/workspaces/10/insights/summary", "")
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
			Expect(w.Body.String()).To(ContainSubstring("invalid_api_key"))
		})

		It("returns 502 when the model output cannot be parsed", func() {
			insightSvc.summarizeFn = func(_ context.Context, _ int64) (*service.TrendSummary, error) {
				return nil, fmt.Errorf("%w: unexpected end of input", llm.ErrMalformedResponse)
			}

			w := do("/api/v1/workspaces/10/insights/summary", "")
			Expect(w.Code).To(Equal(http.StatusBadGateway))
		})

		It("surfaces the no-data message verbatim", func() {
			insightSvc.summarizeFn = func(_ context.Context, _ int64) (*service.TrendSummary, error) {
				return nil, service.ErrNoActiveData
			}

			w := do("/api/v1/workspaces/10/insights/summary", "")
			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(w.Body.String()).To(ContainSubstring("No active data to analyze."))
		})
	})

	Describe("SuggestMeta", func() {
		It("returns the suggestion for a known page", func() {
			insightSvc.suggestMetaFn = func(_ context.Context, _ int64, pageURL string) (*service.MetaSuggestion, error) {
				Expect(pageURL).To(Equal("https://example.com/pricing"))
				return &service.MetaSuggestion{
					SuggestedTitle:       "Better Title",
					SuggestedDescription: "Better description.",
					Reasoning:            "Clearer value proposition.",
				}, nil
			}

			w := do("/api/v1/workspaces/10/insights/meta-suggestion",
				`{"page_url":"https://example.com/pricing"}`)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring("Better Title"))
		})

		It("returns 404 for a page missing from the snapshot", func() {
			insightSvc.suggestMetaFn = func(_ context.Context, _ int64, _ string) (*service.MetaSuggestion, error) {
				return nil, service.ErrPageNotFound
			}

			w := do("/api/v1/workspaces/10/insights/meta-suggestion",
				`{"page_url":"https://example.com/gone"}`)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("rejects a body without page_url", func() {
			w := do("/api/v1/workspaces/10/insights/meta-suggestion", `{}`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("EnrichPage", func() {
		It("returns the fetched tags", func() {
			enrichSvc.enrichPageFn = func(_ context.Context, _ int64, pageURL string) (metadata.PageMeta, error) {
				return metadata.PageMeta{Title: "Pricing", Description: "Plans and pricing."}, nil
			}

			w := do("/api/v1/workspaces/10/insights/metadata",
				`{"page_url":"https://example.com/pricing"}`)

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp struct {
				Title  string `json:"title"`
				Failed bool   `json:"failed"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Title).To(Equal("Pricing"))
			Expect(resp.Failed).To(BeFalse())
		})
	})

	Describe("EnrichAll", func() {
		It("reports fetch counts", func() {
			enrichSvc.enrichAllFn = func(_ context.Context, _ int64) (*service.EnrichmentResult, error) {
				return &service.EnrichmentResult{Fetched: 2, Failed: 1}, nil
			}

			w := do("/api/v1/workspaces/10/insights/metadata/refresh-all", "")

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp service.EnrichmentResult
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Fetched).To(Equal(2))
		})
	})
})
