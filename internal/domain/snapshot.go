package domain

import (
	"context"
	"time"

	"maglink/internal/layout"
)

// LayoutSnapshot records a page's block geometry as it was before the
// change that forced a repack, so that collision-free arrangement can be
// restored.
type LayoutSnapshot struct {
	ID         string             `json:"id" bson:"_id"`
	PageID     string             `json:"pageId" bson:"page_id"`
	Label      string             `json:"label" bson:"label"`
	Placements []layout.Placement `json:"placements" bson:"placements"`
	CreatedAt  time.Time          `json:"createdAt" bson:"created_at"`
}

type SnapshotStore interface {
	PushSnapshot(ctx context.Context, s *LayoutSnapshot) error
	ListSnapshots(ctx context.Context, pageID string) ([]LayoutSnapshot, error)
	GetSnapshot(ctx context.Context, id string) (*LayoutSnapshot, error)
	ClearSnapshots(ctx context.Context, pageID string) error
}
