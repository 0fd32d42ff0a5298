package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"searchlens.app/analyzer/common/logger"
)

type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

type Entity string

const (
	EntitySnapshot   Entity = "snapshot"
	EntityExperiment Entity = "experiment"
	EntityKnowledge  Entity = "knowledge"
	EntitySettings   Entity = "settings"
	EntityWorkspace  Entity = "workspace"
)

// Event is one change notification. Every mutation to a workspace's
// data is announced on that workspace's single channel; consumers
// (active-snapshot selector, derived views, experiment trackers) all
// ride the same stream instead of keeping independent listeners.
type Event struct {
	WorkspaceID int64  `json:"workspace_id"`
	Entity      Entity `json:"entity"`
	EntityID    int64  `json:"entity_id"`
	Action      Action `json:"action"`
	At          int64  `json:"at"` // unix millis
}

// Publisher is the side stores and services see.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Bus fans workspace change events out over Redis pub/sub.
type Bus struct {
	client *redis.Client
	prefix string
}

func NewBus(client *redis.Client, prefix string) *Bus {
	if prefix == "" {
		prefix = "workspace"
	}
	return &Bus{client: client, prefix: prefix}
}

func (b *Bus) channel(workspaceID int64) string {
	return fmt.Sprintf("%s:%d:events", b.prefix, workspaceID)
}

func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if ev.At == 0 {
		ev.At = time.Now().UnixMilli()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel(ev.WorkspaceID), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	slog.DebugContext(ctx, "published workspace event",
		"entity", ev.Entity,
		"entity_id", ev.EntityID,
		"action", ev.Action)
	return nil
}

// Subscribe delivers events for one workspace until ctx is cancelled or
// the returned cancel func is called. Malformed payloads are logged and
// skipped; the subscription keeps going.
func (b *Bus) Subscribe(ctx context.Context, workspaceID int64) (<-chan Event, func()) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		WorkspaceID: logger.Ptr(workspaceID),
		Component:   "analyzer.events",
	})

	sub := b.client.Subscribe(ctx, b.channel(workspaceID))
	out := make(chan Event, 16)

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				slog.ErrorContext(ctx, "failed to decode workspace event",
					"error", err,
					"payload", logger.Truncate(msg.Payload, 200))
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() {
		_ = sub.Close()
	}
	return out, cancel
}
