package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"searchlens.app/analyzer/common/id"
	"searchlens.app/analyzer/common/logger"
	"searchlens.app/analyzer/internal/events"
	"searchlens.app/analyzer/internal/metadata"
	"searchlens.app/analyzer/internal/model"
	"searchlens.app/analyzer/internal/store"
)

var (
	ErrExperimentNotFound   = errors.New("experiment not found")
	ErrExperimentNotRunning = errors.New("experiment is not running")
	// ErrMissingDateRange guards experiment starts: without a
	// measurement period on the snapshot, before/after CTR deltas are
	// meaningless.
	ErrMissingDateRange = errors.New("active snapshot has no date range")
)

// MetadataResolver is the slice of the metadata fetcher experiments
// need: current live tags for one page.
type MetadataResolver interface {
	Fetch(ctx context.Context, pageURL string) (metadata.PageMeta, error)
}

// ExperimentService tracks before/after metadata experiments on single
// pages. An experiment freezes the page's metrics at start, and on
// completion samples the page again from the then-active snapshot.
type ExperimentService interface {
	// Start freezes the page's current metrics as the before sample.
	Start(ctx context.Context, workspaceID int64, pageURL string) (*model.Experiment, error)
	// Complete samples the page from the current active snapshot plus
	// its live metadata, and transitions running -> completed. A second
	// completion returns ErrExperimentNotRunning.
	Complete(ctx context.Context, workspaceID, experimentID int64) (*model.Experiment, error)
	Get(ctx context.Context, workspaceID, experimentID int64) (*model.Experiment, error)
	List(ctx context.Context, workspaceID int64) ([]model.Experiment, error)
}

type experimentService struct {
	expStore  store.ExperimentStore
	snapshots SnapshotService
	meta      MetadataResolver
	bus       events.Publisher
}

func NewExperimentService(
	expStore store.ExperimentStore,
	snapshots SnapshotService,
	meta MetadataResolver,
	bus events.Publisher,
) ExperimentService {
	return &experimentService{
		expStore:  expStore,
		snapshots: snapshots,
		meta:      meta,
		bus:       bus,
	}
}

func (s *experimentService) Start(ctx context.Context, workspaceID int64, pageURL string) (*model.Experiment, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		WorkspaceID: logger.Ptr(workspaceID),
		PageURL:     logger.Ptr(pageURL),
		Component:   "analyzer.experiment",
	})

	snap, err := s.snapshots.GetActive(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if snap.DateRange == nil {
		return nil, ErrMissingDateRange
	}

	page := snap.FindPage(pageURL)
	if page == nil {
		return nil, ErrPageNotFound
	}

	exp := &model.Experiment{
		ID:          id.New(),
		WorkspaceID: workspaceID,
		PageURL:     pageURL,
		Status:      model.ExperimentStatusRunning,
		StartDate:   time.Now(),
		Before:      sampleFrom(snap, page),
	}

	if err := s.expStore.Create(ctx, exp); err != nil {
		return nil, fmt.Errorf("creating experiment: %w", err)
	}

	slog.InfoContext(ctx, "experiment started",
		"experiment_id", exp.ID,
		"snapshot_id", snap.ID,
	)

	s.publish(ctx, events.Event{
		WorkspaceID: workspaceID,
		Entity:      events.EntityExperiment,
		EntityID:    exp.ID,
		Action:      events.ActionCreated,
	})

	return exp, nil
}

func (s *experimentService) Complete(ctx context.Context, workspaceID, experimentID int64) (*model.Experiment, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		WorkspaceID:  logger.Ptr(workspaceID),
		ExperimentID: logger.Ptr(experimentID),
		Component:    "analyzer.experiment",
	})

	exp, err := s.Get(ctx, workspaceID, experimentID)
	if err != nil {
		return nil, err
	}
	if exp.Status != model.ExperimentStatusRunning {
		return nil, ErrExperimentNotRunning
	}

	snap, err := s.snapshots.GetActive(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	page := snap.FindPage(exp.PageURL)
	if page == nil {
		// The page dropped out of the current dataset; the experiment
		// cannot be measured.
		return nil, ErrPageNotFound
	}

	after := sampleFrom(snap, page)

	// The after sample records what is live on the page now, not what
	// was stored at upload time.
	if s.meta != nil {
		live, err := s.meta.Fetch(ctx, exp.PageURL)
		if err == nil && !live.Failed() {
			after.Title = &live.Title
			after.Description = &live.Description
		}
	}

	endDate := time.Now()
	if err := s.expStore.Complete(ctx, workspaceID, experimentID, after, endDate); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Lost a race with another completion.
			return nil, ErrExperimentNotRunning
		}
		return nil, err
	}

	exp, err = s.Get(ctx, workspaceID, experimentID)
	if err != nil {
		return nil, err
	}

	if change, err := exp.CTRChange(); err == nil {
		slog.InfoContext(ctx, "experiment completed", "ctr_change_points", change)
	} else {
		slog.InfoContext(ctx, "experiment completed")
	}

	s.publish(ctx, events.Event{
		WorkspaceID: workspaceID,
		Entity:      events.EntityExperiment,
		EntityID:    experimentID,
		Action:      events.ActionUpdated,
	})

	return exp, nil
}

func (s *experimentService) Get(ctx context.Context, workspaceID, experimentID int64) (*model.Experiment, error) {
	exp, err := s.expStore.GetByID(ctx, workspaceID, experimentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrExperimentNotFound
		}
		return nil, err
	}
	return exp, nil
}

func (s *experimentService) List(ctx context.Context, workspaceID int64) ([]model.Experiment, error) {
	return s.expStore.ListByWorkspace(ctx, workspaceID)
}

func sampleFrom(snap *model.Snapshot, page *model.PageRecord) model.MetricSample {
	return model.MetricSample{
		SnapshotID:  snap.ID,
		Title:       page.Title,
		Description: page.Description,
		Impressions: page.Impressions,
		Clicks:      page.Clicks,
		CTR:         model.ComputeCTR(page.Clicks, page.Impressions),
		DateRange:   snap.DateRange,
	}
}

func (s *experimentService) publish(ctx context.Context, ev events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		slog.WarnContext(ctx, "failed to publish experiment event", "error", err)
	}
}
