package domain

import (
	"context"
	"time"

	"maglink/internal/layout"
)

type BlockType string

const (
	BlockTypeText      BlockType = "text"
	BlockTypeHTML      BlockType = "html"
	BlockTypeImage     BlockType = "image"
	BlockTypeVideo     BlockType = "video"
	BlockTypeLink      BlockType = "link"
	BlockTypeSeparator BlockType = "separator"
	BlockTypeTitle     BlockType = "title"
)

// Block is a rectangular content unit on a page's grid. X/Y/Width/Height
// are grid cells, not pixels.
type Block struct {
	ID           string    `json:"id" bson:"_id"`
	PageID       string    `json:"pageId" bson:"page_id"`
	Type         BlockType `json:"type" bson:"type"`
	Title        string    `json:"title" bson:"title"`
	Content      string    `json:"content" bson:"content"`
	X            int       `json:"x" bson:"x"`
	Y            int       `json:"y" bson:"y"`
	Width        int       `json:"width" bson:"width"`
	Height       int       `json:"height" bson:"height"`
	StyleJSON    string    `json:"styleJson" bson:"style_json"`
	SettingsJSON string    `json:"settingsJson" bson:"settings_json"`
	IsActive     bool      `json:"isActive" bson:"is_active"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updated_at"`
}

// LayoutInput converts the block to an engine input. A stored size with a
// non-positive component is treated as missing.
func (b Block) LayoutInput() layout.Input {
	in := layout.Input{ID: b.ID, Position: &layout.Position{X: b.X, Y: b.Y}}
	if b.Width > 0 || b.Height > 0 {
		in.Size = &layout.Size{Width: b.Width, Height: b.Height}
	}
	return in
}

// ApplyPlacement copies position and size from p.
func (b *Block) ApplyPlacement(p layout.Placement) {
	b.X, b.Y = p.X, p.Y
	b.Width, b.Height = p.Width, p.Height
}

// Placements normalizes a page's blocks for the layout engine, keeping
// their order.
func Placements(blocks []Block) []layout.Placement {
	inputs := make([]layout.Input, len(blocks))
	for i, b := range blocks {
		inputs[i] = b.LayoutInput()
	}
	return layout.Normalize(inputs)
}

// DefaultSizeFor returns the creation size for a block type. Separators
// span the whole grid one row tall; titles are one row tall and at least
// two columns wide; everything else keeps the requested size or falls back
// to layout.DefaultSize.
func DefaultSizeFor(t BlockType, requested *layout.Size, g layout.Grid) layout.Size {
	size := layout.DefaultSize
	if requested != nil {
		if requested.Width >= 1 {
			size.Width = requested.Width
		}
		if requested.Height >= 1 {
			size.Height = requested.Height
		}
	}
	switch t {
	case BlockTypeSeparator:
		return layout.Size{Width: g.Columns, Height: 1}
	case BlockTypeTitle:
		if size.Width < 2 {
			size.Width = 2
		}
		size.Height = 1
	}
	return size
}

type BlockStore interface {
	CreateBlock(ctx context.Context, b *Block) error
	GetBlock(ctx context.Context, id string) (*Block, error)
	ListBlocks(ctx context.Context, pageID string) ([]Block, error)
	CountBlocks(ctx context.Context, pageID string) (int, error)
	UpdateBlock(ctx context.Context, b *Block) error
	UpdatePlacements(ctx context.Context, placements []layout.Placement) error
	DeleteBlock(ctx context.Context, id string) error
	DeleteBlocksByPage(ctx context.Context, pageID string) (int, error)
}
