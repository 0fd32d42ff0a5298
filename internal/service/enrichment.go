package service

import (
	"context"
	"fmt"
	"log/slog"

	"searchlens.app/analyzer/common/logger"
	"searchlens.app/analyzer/internal/events"
	"searchlens.app/analyzer/internal/metadata"
	"searchlens.app/analyzer/internal/model"
	"searchlens.app/analyzer/internal/store"
)

// BulkMetadataResolver extends MetadataResolver with the rate-paced
// bulk path.
type BulkMetadataResolver interface {
	MetadataResolver
	FetchBulk(ctx context.Context, urls []string) (map[string]metadata.PageMeta, int, error)
}

// EnrichmentResult reports a bulk run. Failed pages carry the fetch
// sentinel in their stored metadata rather than being skipped.
type EnrichmentResult struct {
	Fetched int `json:"fetched"`
	Failed  int `json:"failed"`
}

// EnrichmentService fills snapshot page rows with live title and meta
// description tags.
type EnrichmentService interface {
	// EnrichPage fetches one page's metadata and merges it into the
	// active snapshot.
	EnrichPage(ctx context.Context, workspaceID int64, pageURL string) (metadata.PageMeta, error)
	// EnrichAll fetches metadata for every active-snapshot page still
	// missing it, pacing requests, and reports fetched/failed counts.
	EnrichAll(ctx context.Context, workspaceID int64) (*EnrichmentResult, error)
}

type enrichmentService struct {
	snapshots SnapshotService
	snapStore store.SnapshotStore
	fetcher   BulkMetadataResolver
	bus       events.Publisher
}

func NewEnrichmentService(
	snapshots SnapshotService,
	snapStore store.SnapshotStore,
	fetcher BulkMetadataResolver,
	bus events.Publisher,
) EnrichmentService {
	return &enrichmentService{
		snapshots: snapshots,
		snapStore: snapStore,
		fetcher:   fetcher,
		bus:       bus,
	}
}

func (s *enrichmentService) EnrichPage(ctx context.Context, workspaceID int64, pageURL string) (metadata.PageMeta, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		WorkspaceID: logger.Ptr(workspaceID),
		Component:   "analyzer.enrichment",
	})

	snap, err := s.snapshots.GetActive(ctx, workspaceID)
	if err != nil {
		return metadata.PageMeta{}, err
	}
	if snap.FindPage(pageURL) == nil {
		return metadata.PageMeta{}, ErrPageNotFound
	}

	meta, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return metadata.PageMeta{}, err
	}

	patches := map[string]model.PagePatch{
		pageURL: {Title: &meta.Title, Description: &meta.Description},
	}
	if err := s.snapStore.MergePagesByKey(ctx, workspaceID, snap.ID, patches); err != nil {
		return metadata.PageMeta{}, fmt.Errorf("persisting metadata: %w", err)
	}

	s.publish(ctx, workspaceID, snap.ID)
	return meta, nil
}

func (s *enrichmentService) EnrichAll(ctx context.Context, workspaceID int64) (*EnrichmentResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		WorkspaceID: logger.Ptr(workspaceID),
		Component:   "analyzer.enrichment",
	})

	snap, err := s.snapshots.GetActive(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	// Only pages not yet enriched; a re-run after new rows appear does
	// not refetch what is already stored.
	var pending []string
	seen := make(map[string]struct{})
	for _, page := range snap.Pages {
		if page.Title != nil || page.Description != nil {
			continue
		}
		if _, dup := seen[page.Page]; dup {
			continue
		}
		seen[page.Page] = struct{}{}
		pending = append(pending, page.Page)
	}

	if len(pending) == 0 {
		return &EnrichmentResult{}, nil
	}

	results, failed, err := s.fetcher.FetchBulk(ctx, pending)
	if err != nil {
		return nil, err
	}

	patches := make(map[string]model.PagePatch, len(results))
	for url, meta := range results {
		title, description := meta.Title, meta.Description
		patches[url] = model.PagePatch{Title: &title, Description: &description}
	}
	if err := s.snapStore.MergePagesByKey(ctx, workspaceID, snap.ID, patches); err != nil {
		return nil, fmt.Errorf("persisting metadata: %w", err)
	}

	slog.InfoContext(ctx, "bulk metadata fetch finished",
		"snapshot_id", snap.ID,
		"fetched", len(results),
		"failed", failed,
	)

	s.publish(ctx, workspaceID, snap.ID)
	return &EnrichmentResult{Fetched: len(results), Failed: failed}, nil
}

func (s *enrichmentService) publish(ctx context.Context, workspaceID, snapshotID int64) {
	if s.bus == nil {
		return
	}
	ev := events.Event{
		WorkspaceID: workspaceID,
		Entity:      events.EntitySnapshot,
		EntityID:    snapshotID,
		Action:      events.ActionUpdated,
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		slog.WarnContext(ctx, "failed to publish enrichment event", "error", err)
	}
}
