package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"searchlens.app/analyzer/common/llm"
	"searchlens.app/analyzer/core/config"
	"searchlens.app/analyzer/internal/model"
	"searchlens.app/analyzer/internal/service"
	"searchlens.app/analyzer/internal/store"
)

const summaryJSON = `{"totalImpressions":1200,"totalClicks":60,"averageCtr":"5.00%",` +
	`"keyInsights":["CTR is healthy"],"recommendations":["Improve titles"],` +
	`"opportunityPages":[{"page":"https://example.com/a","reasoning":"high impressions, low clicks"}]}`

var _ = Describe("InsightService", func() {
	var (
		svc       service.InsightService
		snapSvc   service.SnapshotService
		snapStore *mockSnapshotStore
		settings  *mockSettingsStore
		client    *mockLLM
		bus       *mockPublisher
		ctx       context.Context
		active    *model.Snapshot
	)

	const workspaceID int64 = 42

	newService := func() service.InsightService {
		factory := func(apiKey string) (llm.Client, error) {
			if apiKey == "" {
				return nil, llm.ErrMissingAPIKey
			}
			return client, nil
		}
		return service.NewInsightService(snapSvc, snapStore, settings, factory,
			config.AIConfig{APIKey: "env-key", MaxTokens: 1000}, bus)
	}

	BeforeEach(func() {
		ctx = context.Background()
		snapStore = &mockSnapshotStore{}
		settings = &mockSettingsStore{}
		client = &mockLLM{raw: summaryJSON}
		bus = &mockPublisher{}

		active = &model.Snapshot{
			ID:          7,
			WorkspaceID: workspaceID,
			Pages: []model.PageRecord{
				{Page: "https://example.com/a", Clicks: 10, Impressions: 1000},
				{Page: "https://example.com/b", Clicks: 50, Impressions: 200},
			},
			CreatedAt: time.Now(),
		}

		activeID := active.ID
		settings.getWorkspaceFn = func(_ context.Context, _ int64) (*model.WorkspaceSettings, error) {
			return &model.WorkspaceSettings{WorkspaceID: workspaceID, ActiveSnapshotID: &activeID}, nil
		}
		snapStore.getByIDFn = func(_ context.Context, _, sid int64) (*model.Snapshot, error) {
			if sid == active.ID {
				return active, nil
			}
			return nil, store.ErrNotFound
		}
		snapStore.listByWorkspaceFn = func(_ context.Context, _ int64) ([]model.Snapshot, error) {
			return []model.Snapshot{*active}, nil
		}

		snapSvc = service.NewSnapshotService(snapStore, settings, &mockTxRunner{provider: &mockStoreProvider{
			snapshots: snapStore,
			settings:  settings,
			shares:    &mockShareStore{},
		}}, nil)
		svc = newService()
	})

	Describe("Summarize", func() {
		It("persists the model output verbatim on the snapshot", func() {
			var persisted string
			snapStore.updateSummaryFn = func(_ context.Context, _, sid int64, summary string) error {
				Expect(sid).To(Equal(active.ID))
				persisted = summary
				return nil
			}

			summary, err := svc.Summarize(ctx, workspaceID)
			Expect(err).NotTo(HaveOccurred())
			Expect(persisted).To(Equal(summaryJSON))
			Expect(summary.TotalImpressions).To(Equal(1200))
			Expect(summary.OpportunityPages).To(HaveLen(1))
			Expect(summary.OpportunityPages[0].Page).To(Equal("https://example.com/a"))
		})

		It("sends at most 100 rows but totals over the full dataset", func() {
			pages := make([]model.PageRecord, 250)
			for i := range pages {
				pages[i] = model.PageRecord{
					Page:        fmt.Sprintf("https://example.com/p%d", i),
					Clicks:      1,
					Impressions: 10,
				}
			}
			active.Pages = pages

			_, err := svc.Summarize(ctx, workspaceID)
			Expect(err).NotTo(HaveOccurred())
			Expect(client.calls).To(HaveLen(1))

			prompt := client.calls[0].UserPrompt
			Expect(prompt).To(ContainSubstring("250 pages total"))
			Expect(prompt).To(ContainSubstring("first 100 rows"))
			Expect(prompt).To(ContainSubstring("2500 impressions"))
			Expect(prompt).To(ContainSubstring("250 clicks"))
			Expect(prompt).NotTo(ContainSubstring("/p100\"")) // row 101 must not leak in
		})

		It("fails with the no-data message when the workspace is empty", func() {
			settings.getWorkspaceFn = func(_ context.Context, _ int64) (*model.WorkspaceSettings, error) {
				return nil, store.ErrNotFound
			}
			snapStore.listByWorkspaceFn = func(_ context.Context, _ int64) ([]model.Snapshot, error) {
				return nil, nil
			}

			_, err := svc.Summarize(ctx, workspaceID)
			Expect(err).To(MatchError(service.ErrNoActiveData))
		})

		It("requests the trend variant when the prior snapshot has a date range", func() {
			prevRaw := summaryJSON
			previous := model.Snapshot{
				ID:                 3,
				WorkspaceID:        workspaceID,
				PerformanceSummary: &prevRaw,
				DateRange: &model.DateRange{
					Start: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
					End:   time.Date(2026, 7, 28, 0, 0, 0, 0, time.UTC),
				},
				CreatedAt: active.CreatedAt.Add(-48 * time.Hour),
			}
			snapStore.listByWorkspaceFn = func(_ context.Context, _ int64) ([]model.Snapshot, error) {
				return []model.Snapshot{*active, previous}, nil
			}
			client.raw = `{"totalImpressions":1200,"totalClicks":60,"averageCtr":"5.00%",` +
				`"keyInsights":[],"recommendations":[],"opportunityPages":[],` +
				`"trendAnalysis":["CTR improved versus the previous period"]}`

			summary, err := svc.Summarize(ctx, workspaceID)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.TrendAnalysis).To(HaveLen(1))
			Expect(client.calls[0].SchemaName).To(Equal("performance_summary_with_trends"))
			Expect(client.calls[0].UserPrompt).To(ContainSubstring("Previous period 2026-07-01 to 2026-07-28"))
			Expect(client.calls[0].UserPrompt).To(ContainSubstring("Previous period summary"))
		})

		It("requests the trend variant even when the prior snapshot was never summarized", func() {
			previous := model.Snapshot{
				ID:          3,
				WorkspaceID: workspaceID,
				Pages: []model.PageRecord{
					{Page: "https://example.com/a", Clicks: 5, Impressions: 500},
				},
				DateRange: &model.DateRange{
					Start: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
					End:   time.Date(2026, 7, 28, 0, 0, 0, 0, time.UTC),
				},
				CreatedAt: active.CreatedAt.Add(-48 * time.Hour),
			}
			snapStore.listByWorkspaceFn = func(_ context.Context, _ int64) ([]model.Snapshot, error) {
				return []model.Snapshot{*active, previous}, nil
			}
			client.raw = `{"totalImpressions":1200,"totalClicks":60,"averageCtr":"5.00%",` +
				`"keyInsights":[],"recommendations":[],"opportunityPages":[],` +
				`"trendAnalysis":["clicks doubled period over period"]}`

			summary, err := svc.Summarize(ctx, workspaceID)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.TrendAnalysis).To(HaveLen(1))
			Expect(client.calls[0].SchemaName).To(Equal("performance_summary_with_trends"))
			Expect(client.calls[0].UserPrompt).To(ContainSubstring("500 impressions"))
			Expect(client.calls[0].UserPrompt).NotTo(ContainSubstring("Previous period summary"))
		})

		It("skips the trend variant when the prior snapshot has no date range", func() {
			prevRaw := summaryJSON
			previous := model.Snapshot{
				ID:                 3,
				WorkspaceID:        workspaceID,
				PerformanceSummary: &prevRaw,
				CreatedAt:          active.CreatedAt.Add(-48 * time.Hour),
			}
			snapStore.listByWorkspaceFn = func(_ context.Context, _ int64) ([]model.Snapshot, error) {
				return []model.Snapshot{*active, previous}, nil
			}

			_, err := svc.Summarize(ctx, workspaceID)
			Expect(err).NotTo(HaveOccurred())
			Expect(client.calls[0].SchemaName).To(Equal("performance_summary"))
			Expect(client.calls[0].UserPrompt).NotTo(ContainSubstring("trend comparison"))
		})

		It("compares against the most recent prior snapshot, not an older one", func() {
			withRange := model.Snapshot{
				ID:          3,
				WorkspaceID: workspaceID,
				DateRange: &model.DateRange{
					Start: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
					End:   time.Date(2026, 6, 28, 0, 0, 0, 0, time.UTC),
				},
				CreatedAt: active.CreatedAt.Add(-96 * time.Hour),
			}
			newest := model.Snapshot{
				ID:          4,
				WorkspaceID: workspaceID,
				CreatedAt:   active.CreatedAt.Add(-24 * time.Hour),
			}
			snapStore.listByWorkspaceFn = func(_ context.Context, _ int64) ([]model.Snapshot, error) {
				return []model.Snapshot{*active, withRange, newest}, nil
			}

			_, err := svc.Summarize(ctx, workspaceID)
			Expect(err).NotTo(HaveOccurred())
			Expect(client.calls[0].SchemaName).To(Equal("performance_summary"))
		})

		It("prefers the workspace API key over the environment default", func() {
			wsKey := "workspace-key"
			activeID := active.ID
			settings.getWorkspaceFn = func(_ context.Context, _ int64) (*model.WorkspaceSettings, error) {
				return &model.WorkspaceSettings{
					WorkspaceID:      workspaceID,
					ActiveSnapshotID: &activeID,
					AIAPIKey:         &wsKey,
				}, nil
			}

			var usedKey string
			factory := func(apiKey string) (llm.Client, error) {
				usedKey = apiKey
				return client, nil
			}
			svc = service.NewInsightService(snapSvc, snapStore, settings, factory,
				config.AIConfig{APIKey: "env-key"}, bus)

			_, err := svc.Summarize(ctx, workspaceID)
			Expect(err).NotTo(HaveOccurred())
			Expect(usedKey).To(Equal(wsKey))
		})
	})

	Describe("SuggestMeta", func() {
		const suggestionJSON = `{"suggestedTitle":"Better Title","suggestedDescription":"Better description.",` +
			`"reasoning":"The current title undersells the content."}`

		BeforeEach(func() {
			client.raw = suggestionJSON
		})

		It("merges the suggestion into the page row by URL", func() {
			var merged map[string]model.PagePatch
			snapStore.mergePagesByKeyFn = func(_ context.Context, _, sid int64, patches map[string]model.PagePatch) error {
				Expect(sid).To(Equal(active.ID))
				merged = patches
				return nil
			}

			suggestion, err := svc.SuggestMeta(ctx, workspaceID, "https://example.com/b")
			Expect(err).NotTo(HaveOccurred())
			Expect(suggestion.SuggestedTitle).To(Equal("Better Title"))

			patch, ok := merged["https://example.com/b"]
			Expect(ok).To(BeTrue())
			Expect(*patch.SuggestedTitle).To(Equal("Better Title"))
			Expect(*patch.SuggestedReasoning).To(ContainSubstring("undersells"))
			Expect(patch.Title).To(BeNil()) // live metadata is untouched
		})

		It("rejects a URL absent from the active snapshot", func() {
			_, err := svc.SuggestMeta(ctx, workspaceID, "https://example.com/missing")
			Expect(err).To(MatchError(service.ErrPageNotFound))
		})

		It("surfaces malformed model output as an invalid-response error", func() {
			client.chatFn = func(_ context.Context, _ llm.Request, _ any) (*llm.Response, error) {
				return nil, fmt.Errorf("%w: unexpected end of JSON input", llm.ErrMalformedResponse)
			}
			_, err := svc.SuggestMeta(ctx, workspaceID, "https://example.com/a")
			Expect(err).To(MatchError(llm.ErrMalformedResponse))
		})
	})
})

var _ = Describe("ParseSummary", func() {
	It("round-trips a stored summary", func() {
		parsed, err := service.ParseSummary(summaryJSON)
		Expect(err).NotTo(HaveOccurred())

		reencoded, err := json.Marshal(parsed.PerformanceSummary)
		Expect(err).NotTo(HaveOccurred())

		var again service.PerformanceSummary
		Expect(json.Unmarshal(reencoded, &again)).To(Succeed())
		Expect(again).To(Equal(parsed.PerformanceSummary))
	})

	It("reports malformed stored text", func() {
		_, err := service.ParseSummary("{not json")
		Expect(err).To(MatchError(llm.ErrMalformedResponse))
	})
})
