package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"searchlens.app/analyzer/common/llm"
	"searchlens.app/analyzer/common/logger"
	"searchlens.app/analyzer/core/config"
	"searchlens.app/analyzer/internal/events"
	"searchlens.app/analyzer/internal/model"
	"searchlens.app/analyzer/internal/store"
)

// summarySampleSize caps how many page rows are sent to the model.
// Aggregate totals are computed over the full dataset regardless.
const summarySampleSize = 100

var (
	ErrPageNotFound = errors.New("page not found in active snapshot")
)

// OpportunityPage is one page the model flagged as underperforming.
type OpportunityPage struct {
	Page      string `json:"page"`
	Reasoning string `json:"reasoning"`
}

// PerformanceSummary is the structured analysis of one snapshot.
type PerformanceSummary struct {
	TotalImpressions int               `json:"totalImpressions"`
	TotalClicks      int               `json:"totalClicks"`
	AverageCtr       string            `json:"averageCtr"`
	KeyInsights      []string          `json:"keyInsights"`
	Recommendations  []string          `json:"recommendations"`
	OpportunityPages []OpportunityPage `json:"opportunityPages"`
}

// TrendSummary extends PerformanceSummary with period-over-period
// observations. Produced instead of the base shape whenever a previous
// summarized snapshot exists, so consumers of the base fields are
// unaffected.
type TrendSummary struct {
	PerformanceSummary
	TrendAnalysis []string `json:"trendAnalysis"`
}

// MetaSuggestion is an AI-proposed rewrite of a page's metadata.
type MetaSuggestion struct {
	SuggestedTitle       string `json:"suggestedTitle"`
	SuggestedDescription string `json:"suggestedDescription"`
	Reasoning            string `json:"reasoning"`
}

// KnowledgeSummary condenses an uploaded document.
type KnowledgeSummary struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"keyPoints"`
}

// ParseSummary decodes a stored performance summary. Stored text is
// model output persisted verbatim, so decode failures are possible and
// reported rather than masked.
func ParseSummary(raw string) (*TrendSummary, error) {
	var summary TrendSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return nil, fmt.Errorf("%w: %s", llm.ErrMalformedResponse, "stored summary did not parse")
	}
	return &summary, nil
}

// LLMFactory builds a client for a given API key, letting a workspace
// key override the environment default per call.
type LLMFactory func(apiKey string) (llm.Client, error)

// InsightService runs the schema-constrained AI operations: snapshot
// summaries, metadata suggestions, and document summaries.
type InsightService interface {
	// Summarize analyzes the workspace's active snapshot and persists
	// the model's JSON verbatim on the snapshot.
	Summarize(ctx context.Context, workspaceID int64) (*TrendSummary, error)
	// SuggestMeta proposes a new title and description for one page of
	// the active snapshot and merges the suggestion into the page row.
	SuggestMeta(ctx context.Context, workspaceID int64, pageURL string) (*MetaSuggestion, error)
	// SummarizeDocument condenses extracted document text for the
	// knowledge base.
	SummarizeDocument(ctx context.Context, workspaceID int64, fileName, content string) (*KnowledgeSummary, error)
}

type insightService struct {
	snapshots     SnapshotService
	snapStore     store.SnapshotStore
	settingsStore store.SettingsStore
	newClient     LLMFactory
	cfg           config.AIConfig
	bus           events.Publisher
}

func NewInsightService(
	snapshots SnapshotService,
	snapStore store.SnapshotStore,
	settingsStore store.SettingsStore,
	newClient LLMFactory,
	cfg config.AIConfig,
	bus events.Publisher,
) InsightService {
	return &insightService{
		snapshots:     snapshots,
		snapStore:     snapStore,
		settingsStore: settingsStore,
		newClient:     newClient,
		cfg:           cfg,
		bus:           bus,
	}
}

// client resolves the API key for a workspace: a key stored in
// workspace settings wins over the environment default.
func (s *insightService) client(ctx context.Context, workspaceID int64) (llm.Client, error) {
	key := s.cfg.APIKey
	settings, err := s.settingsStore.GetWorkspace(ctx, workspaceID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if settings != nil && settings.AIAPIKey != nil && *settings.AIAPIKey != "" {
		key = *settings.AIAPIKey
	}
	return s.newClient(key)
}

type sampleRow struct {
	Page        string `json:"Page"`
	Clicks      int    `json:"Clicks"`
	Impressions int    `json:"Impressions"`
	CTR         string `json:"ctr"`
}

func buildSample(pages []model.PageRecord) ([]sampleRow, int) {
	n := len(pages)
	if n > summarySampleSize {
		n = summarySampleSize
	}
	rows := make([]sampleRow, 0, n)
	for _, p := range pages[:n] {
		rows = append(rows, sampleRow{
			Page:        p.Page,
			Clicks:      p.Clicks,
			Impressions: p.Impressions,
			CTR:         model.ComputeCTR(p.Clicks, p.Impressions),
		})
	}
	return rows, len(pages)
}

func (s *insightService) Summarize(ctx context.Context, workspaceID int64) (*TrendSummary, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		WorkspaceID: logger.Ptr(workspaceID),
		Component:   "analyzer.insight",
	})

	snap, err := s.snapshots.GetActive(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if len(snap.Pages) == 0 {
		return nil, ErrNoActiveData
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{SnapshotID: logger.Ptr(snap.ID)})

	client, err := s.client(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	previous := s.previousPeriod(ctx, workspaceID, snap)

	sample, total := buildSample(snap.Pages)
	sampleJSON, err := json.Marshal(sample)
	if err != nil {
		return nil, fmt.Errorf("marshal sample: %w", err)
	}

	totals := computeTotals(snap.Pages)

	userPrompt := fmt.Sprintf(
		"Analyze the provided Google Search Console data and return a structured performance summary.\n"+
			"Dataset: %d pages total; the sample below covers the first %d rows. "+
			"Aggregate totals over the full dataset: %d impressions, %d clicks, average CTR %s.\n"+
			"Data sample: %s",
		total, len(sample), totals.impressions, totals.clicks, totals.averageCTR, sampleJSON)

	var (
		raw    string
		result TrendSummary
	)
	if previous != nil {
		prevTotals := computeTotals(previous.Pages)
		userPrompt += fmt.Sprintf(
			"\nPrevious period %s to %s for trend comparison: %d impressions, %d clicks, average CTR %s.",
			previous.DateRange.Start.Format("2006-01-02"),
			previous.DateRange.End.Format("2006-01-02"),
			prevTotals.impressions, prevTotals.clicks, prevTotals.averageCTR)
		if previous.PerformanceSummary != nil {
			if parsed, err := ParseSummary(*previous.PerformanceSummary); err == nil {
				prevJSON, _ := json.Marshal(parsed)
				userPrompt += fmt.Sprintf("\nPrevious period summary: %s", prevJSON)
			}
		}

		resp, err := client.Chat(ctx, llm.Request{
			SystemPrompt: summarySystemPrompt,
			UserPrompt:   userPrompt,
			SchemaName:   "performance_summary_with_trends",
			Schema:       llm.GenerateSchema[TrendSummary](),
			MaxTokens:    s.cfg.MaxTokens,
		}, &result)
		if err != nil {
			return nil, err
		}
		raw = resp.Raw
	} else {
		var base PerformanceSummary
		resp, err := client.Chat(ctx, llm.Request{
			SystemPrompt: summarySystemPrompt,
			UserPrompt:   userPrompt,
			SchemaName:   "performance_summary",
			Schema:       llm.GenerateSchema[PerformanceSummary](),
			MaxTokens:    s.cfg.MaxTokens,
		}, &base)
		if err != nil {
			return nil, err
		}
		raw = resp.Raw
		result = TrendSummary{PerformanceSummary: base}
	}

	// Persist the model's JSON exactly as received.
	if err := s.snapStore.UpdateSummary(ctx, workspaceID, snap.ID, raw); err != nil {
		return nil, fmt.Errorf("persisting summary: %w", err)
	}

	slog.InfoContext(ctx, "performance summary generated",
		"pages", total,
		"sample_size", len(sample),
		"with_trends", previous != nil,
	)

	s.publish(ctx, events.Event{
		WorkspaceID: workspaceID,
		Entity:      events.EntitySnapshot,
		EntityID:    snap.ID,
		Action:      events.ActionUpdated,
	})

	return &result, nil
}

// previousPeriod finds the most recent snapshot older than the current
// one. The trend variant triggers only when that snapshot carries a
// recorded date range; without one there is no defined previous period
// to compare, regardless of whether a summary was ever generated.
func (s *insightService) previousPeriod(ctx context.Context, workspaceID int64, current *model.Snapshot) *model.Snapshot {
	snaps, err := s.snapStore.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		slog.WarnContext(ctx, "failed to list snapshots for trend context", "error", err)
		return nil
	}
	var prev *model.Snapshot
	for i := range snaps {
		snap := &snaps[i]
		if snap.ID == current.ID || !snap.CreatedAt.Before(current.CreatedAt) {
			continue
		}
		if prev == nil || snap.CreatedAt.After(prev.CreatedAt) {
			prev = snap
		}
	}
	if prev == nil || prev.DateRange == nil {
		return nil
	}
	return prev
}

type totals struct {
	impressions int
	clicks      int
	averageCTR  string
}

func computeTotals(pages []model.PageRecord) totals {
	var t totals
	for _, p := range pages {
		t.impressions += p.Impressions
		t.clicks += p.Clicks
	}
	t.averageCTR = model.ComputeCTR(t.clicks, t.impressions)
	return t
}

func (s *insightService) SuggestMeta(ctx context.Context, workspaceID int64, pageURL string) (*MetaSuggestion, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		WorkspaceID: logger.Ptr(workspaceID),
		PageURL:     logger.Ptr(pageURL),
		Component:   "analyzer.insight",
	})

	snap, err := s.snapshots.GetActive(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	page := snap.FindPage(pageURL)
	if page == nil {
		return nil, ErrPageNotFound
	}

	client, err := s.client(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	currentTitle := "(unknown)"
	if page.Title != nil {
		currentTitle = *page.Title
	}
	currentDescription := "(unknown)"
	if page.Description != nil {
		currentDescription = *page.Description
	}

	userPrompt := fmt.Sprintf(
		"Suggest an improved SEO title and meta description for this page.\n"+
			"URL: %s\nCurrent title: %s\nCurrent description: %s\n"+
			"Performance: %d impressions, %d clicks, CTR %s.\n"+
			"Explain in the reasoning why the rewrite should lift click-through.",
		page.Page, currentTitle, currentDescription,
		page.Impressions, page.Clicks, model.ComputeCTR(page.Clicks, page.Impressions))

	var suggestion MetaSuggestion
	if _, err := client.Chat(ctx, llm.Request{
		SystemPrompt: metaSystemPrompt,
		UserPrompt:   userPrompt,
		SchemaName:   "meta_suggestion",
		Schema:       llm.GenerateSchema[MetaSuggestion](),
		MaxTokens:    s.cfg.MaxTokens,
	}, &suggestion); err != nil {
		return nil, err
	}

	patch := model.PagePatch{
		SuggestedTitle:       &suggestion.SuggestedTitle,
		SuggestedDescription: &suggestion.SuggestedDescription,
		SuggestedReasoning:   &suggestion.Reasoning,
	}
	if err := s.snapStore.MergePagesByKey(ctx, workspaceID, snap.ID,
		map[string]model.PagePatch{pageURL: patch}); err != nil {
		return nil, fmt.Errorf("persisting suggestion: %w", err)
	}

	slog.InfoContext(ctx, "metadata suggestion generated", "snapshot_id", snap.ID)

	s.publish(ctx, events.Event{
		WorkspaceID: workspaceID,
		Entity:      events.EntitySnapshot,
		EntityID:    snap.ID,
		Action:      events.ActionUpdated,
	})

	return &suggestion, nil
}

func (s *insightService) SummarizeDocument(ctx context.Context, workspaceID int64, fileName, content string) (*KnowledgeSummary, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		WorkspaceID: logger.Ptr(workspaceID),
		Component:   "analyzer.insight",
	})

	client, err := s.client(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	const maxContentChars = 24000
	if len(content) > maxContentChars {
		content = content[:maxContentChars]
	}

	var summary KnowledgeSummary
	start := time.Now()
	if _, err := client.Chat(ctx, llm.Request{
		SystemPrompt: documentSystemPrompt,
		UserPrompt:   fmt.Sprintf("Document %q:\n%s", fileName, content),
		SchemaName:   "knowledge_summary",
		Schema:       llm.GenerateSchema[KnowledgeSummary](),
		MaxTokens:    s.cfg.MaxTokens,
	}, &summary); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "document summarized",
		"file_name", fileName,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &summary, nil
}

func (s *insightService) publish(ctx context.Context, ev events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		slog.WarnContext(ctx, "failed to publish insight event", "error", err)
	}
}

const summarySystemPrompt = "You are an SEO analyst. You receive Google Search Console page data " +
	"and produce a concise, factual performance summary. Ground every insight in the numbers provided; " +
	"never invent pages or metrics. Opportunity pages must be URLs present in the data sample."

const metaSystemPrompt = "You are an SEO copywriter. Produce a title under 60 characters and a " +
	"meta description under 160 characters, faithful to the page's topic as far as the URL and " +
	"current metadata reveal it."

const documentSystemPrompt = "You summarize SEO reference documents for a team knowledge base. " +
	"Be concise and keep only points relevant to search performance work."
