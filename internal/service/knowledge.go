package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"searchlens.app/analyzer/common/id"
	"searchlens.app/analyzer/common/logger"
	"searchlens.app/analyzer/internal/docpipe"
	"searchlens.app/analyzer/internal/events"
	"searchlens.app/analyzer/internal/model"
	"searchlens.app/analyzer/internal/store"
)

var ErrKnowledgeNotFound = errors.New("knowledge item not found")

// KnowledgeService ingests PDF documents into a workspace knowledge
// base: extract text, summarize it, persist both.
type KnowledgeService interface {
	Upload(ctx context.Context, workspaceID int64, fileName string, r io.Reader) (*model.KnowledgeItem, error)
	Get(ctx context.Context, workspaceID, itemID int64) (*model.KnowledgeItem, error)
	List(ctx context.Context, workspaceID int64) ([]model.KnowledgeItem, error)
	Delete(ctx context.Context, workspaceID, itemID int64) error
}

type knowledgeService struct {
	kbStore  store.KnowledgeStore
	insights InsightService
	bus      events.Publisher
}

func NewKnowledgeService(kbStore store.KnowledgeStore, insights InsightService, bus events.Publisher) KnowledgeService {
	return &knowledgeService{
		kbStore:  kbStore,
		insights: insights,
		bus:      bus,
	}
}

func (s *knowledgeService) Upload(ctx context.Context, workspaceID int64, fileName string, r io.Reader) (*model.KnowledgeItem, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		WorkspaceID: logger.Ptr(workspaceID),
		Component:   "analyzer.knowledge",
	})

	doc, err := docpipe.Extract(r)
	if err != nil {
		return nil, err
	}

	summary, err := s.insights.SummarizeDocument(ctx, workspaceID, fileName, doc.Text)
	if err != nil {
		return nil, fmt.Errorf("summarizing document: %w", err)
	}

	item := &model.KnowledgeItem{
		ID:               id.New(),
		WorkspaceID:      workspaceID,
		FileName:         fileName,
		ExtractedContent: doc.Text,
		Summary:          summary.Summary,
	}
	if err := s.kbStore.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("creating knowledge item: %w", err)
	}

	slog.InfoContext(ctx, "knowledge item added",
		"item_id", item.ID,
		"file_name", fileName,
		"pages", doc.PageCount,
		"chars", len(doc.Text),
	)

	s.publish(ctx, events.Event{
		WorkspaceID: workspaceID,
		Entity:      events.EntityKnowledge,
		EntityID:    item.ID,
		Action:      events.ActionCreated,
	})

	return item, nil
}

func (s *knowledgeService) Get(ctx context.Context, workspaceID, itemID int64) (*model.KnowledgeItem, error) {
	item, err := s.kbStore.GetByID(ctx, workspaceID, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrKnowledgeNotFound
		}
		return nil, err
	}
	return item, nil
}

func (s *knowledgeService) List(ctx context.Context, workspaceID int64) ([]model.KnowledgeItem, error) {
	return s.kbStore.ListByWorkspace(ctx, workspaceID)
}

func (s *knowledgeService) Delete(ctx context.Context, workspaceID, itemID int64) error {
	if err := s.kbStore.Delete(ctx, workspaceID, itemID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrKnowledgeNotFound
		}
		return err
	}

	s.publish(ctx, events.Event{
		WorkspaceID: workspaceID,
		Entity:      events.EntityKnowledge,
		EntityID:    itemID,
		Action:      events.ActionDeleted,
	})
	return nil
}

func (s *knowledgeService) publish(ctx context.Context, ev events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		slog.WarnContext(ctx, "failed to publish knowledge event", "error", err)
	}
}
