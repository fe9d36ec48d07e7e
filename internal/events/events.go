// Package events defines the pipeline notifications published after a stage
// commits work, and the Emitter that serializes them onto a kafka.Publisher.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/assetflow/pkg/kafka"
)

const (
	TypeAssetTransferred = "asset.transferred"
	TypeCatalogSubmitted = "catalog.submitted"
)

// AssetTransferred is emitted once an asset is present in the archive bucket.
// Copied is false when the object was already there.
type AssetTransferred struct {
	ID          string    `json:"id"`
	Collection  string    `json:"collection"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Copied      bool      `json:"copied"`
	CreatedAt   time.Time `json:"created_at"`
}

// CatalogSubmitted is emitted after the catalog accepted an item.
type CatalogSubmitted struct {
	ID             string    `json:"id"`
	ItemID         string    `json:"item_id,omitempty"`
	Collection     string    `json:"collection,omitempty"`
	DestinationURI string    `json:"destination_uri,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Emitter publishes events as JSON.
type Emitter struct {
	publisher kafka.Publisher
}

// NewEmitter wraps p; a nil p discards events.
func NewEmitter(p kafka.Publisher) *Emitter {
	if p == nil {
		p = kafka.Nop{}
	}
	return &Emitter{publisher: p}
}

// AssetTransferred publishes e keyed by its destination.
func (e *Emitter) AssetTransferred(ctx context.Context, ev AssetTransferred) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	return e.emit(ctx, TypeAssetTransferred, ev.ID, ev.Destination, ev)
}

// CatalogSubmitted publishes e keyed by its item id.
func (e *Emitter) CatalogSubmitted(ctx context.Context, ev CatalogSubmitted) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	return e.emit(ctx, TypeCatalogSubmitted, ev.ID, ev.ItemID, ev)
}

func (e *Emitter) emit(ctx context.Context, eventType, id, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	if key == "" {
		key = id
	}
	headers := map[string]string{
		"event_id":   id,
		"event_type": eventType,
	}
	if err := e.publisher.Publish(ctx, []byte(key), value, headers); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}
