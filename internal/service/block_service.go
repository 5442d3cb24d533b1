package service

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"maglink/internal/domain"
	"maglink/internal/errs"
	"maglink/internal/layout"
	"maglink/internal/pagelock"
)

// ─────────────────────────────────────────────────────────────
// Block Service: business logic for page blocks
// ─────────────────────────────────────────────────────────────

// Repack triggers, recorded as snapshot labels.
const (
	TriggerCreate  = "create"
	TriggerMove    = "move"
	TriggerResize  = "resize"
	TriggerManual  = "manual"
	TriggerAudit   = "audit"
	TriggerRestore = "restore"
)

// BlockService manages the lifecycle of page blocks and keeps every page's
// layout free of overlaps. All layout-changing work for a page runs under
// that page's lock.
type BlockService struct {
	blocks    domain.BlockStore
	pages     domain.PageStore
	snapshots domain.SnapshotStore
	locker    pagelock.Locker
	engine    *layout.Engine
	emitter   EventEmitter
	logger    *zap.Logger

	blockLimit atomic.Int64
}

// NewBlockService creates a BlockService with no block limit.
func NewBlockService(
	blocks domain.BlockStore,
	pages domain.PageStore,
	snapshots domain.SnapshotStore,
	locker pagelock.Locker,
	engine *layout.Engine,
	emitter EventEmitter,
	logger *zap.Logger,
) *BlockService {
	s := &BlockService{
		blocks:    blocks,
		pages:     pages,
		snapshots: snapshots,
		locker:    locker,
		engine:    engine,
		emitter:   emitter,
		logger:    logger,
	}
	s.blockLimit.Store(-1)
	return s
}

// SetBlockLimit sets the maximum number of blocks per page. Negative
// values mean unlimited. Safe to call while requests are served.
func (s *BlockService) SetBlockLimit(n int) {
	s.blockLimit.Store(int64(n))
}

// BlockLimit returns the current per-page block limit.
func (s *BlockService) BlockLimit() int {
	return int(s.blockLimit.Load())
}

// Grid returns the grid blocks are placed on.
func (s *BlockService) Grid() layout.Grid {
	return s.engine.Grid()
}

// LayoutOutcome reports what a layout-changing operation did to a page.
type LayoutOutcome struct {
	PageID     string   `json:"pageId"`
	Repacked   bool     `json:"repacked"`
	Moved      []string `json:"moved,omitempty"`
	SnapshotID string   `json:"snapshotId,omitempty"`
}

func (s *BlockService) withPageLock(ctx context.Context, pageID string, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, pageID)
	if err != nil {
		return fmt.Errorf("lock page %s: %w", pageID, err)
	}
	defer unlock()
	return fn()
}

// reconcile repacks blocks when any two of them overlap, persisting the
// moved blocks. blocks must be the page's full block set; it is updated in
// place. previous is the page's geometry before the change that led here;
// it is saved as a snapshot when a repack runs, unless it is nil. A repack
// that would push a block past the grid's last row is refused. Callers hold
// the page lock.
func (s *BlockService) reconcile(ctx context.Context, pageID string, blocks []domain.Block, previous []layout.Placement, trigger string) (LayoutOutcome, error) {
	outcome := LayoutOutcome{PageID: pageID}
	result, repacked := s.engine.Resolve(domain.Placements(blocks))
	if !repacked {
		return outcome, nil
	}
	if err := s.checkRoom(pageID, result); err != nil {
		return outcome, err
	}

	if previous != nil {
		snap := &domain.LayoutSnapshot{ID: uuid.NewString(), PageID: pageID, Label: trigger, Placements: previous}
		if err := s.snapshots.PushSnapshot(ctx, snap); err != nil {
			s.logger.Warn("layout snapshot not saved", zap.String("page", pageID), zap.Error(err))
		} else {
			outcome.SnapshotID = snap.ID
		}
	}

	moved := make(map[string]bool, len(result.Moved))
	for _, id := range result.Moved {
		moved[id] = true
	}
	changed := make([]layout.Placement, 0, len(result.Moved))
	for i, p := range result.Placements {
		if moved[p.ID] {
			blocks[i].ApplyPlacement(p)
			changed = append(changed, p)
		}
	}
	if err := s.blocks.UpdatePlacements(ctx, changed); err != nil {
		return outcome, fmt.Errorf("persist repack: %w", err)
	}

	outcome.Repacked = true
	outcome.Moved = result.Moved
	s.logger.Info("page repacked",
		zap.String("page", pageID),
		zap.String("trigger", trigger),
		zap.Strings("moved", result.Moved),
	)
	s.emitter.Emit(ctx, EventBlocksRepacked, outcome)
	return outcome, nil
}

// checkRoom refuses a repack result that moved a block past the grid's last
// row.
func (s *BlockService) checkRoom(pageID string, result layout.Result) error {
	g := s.engine.Grid()
	for _, p := range result.Placements {
		if !g.Fits(p) && slices.Contains(result.Moved, p.ID) {
			return errs.New(errs.ErrCodeLimitExceeded, "page %s has no free space for block %s within %d rows", pageID, p.ID, g.Rows())
		}
	}
	return nil
}

// planRoom runs the repack blocks would need and refuses it up front when
// it would not fit, so nothing is persisted for a change that cannot be
// laid out.
func (s *BlockService) planRoom(pageID string, blocks []domain.Block) error {
	result, repacked := s.engine.Resolve(domain.Placements(blocks))
	if !repacked {
		return nil
	}
	return s.checkRoom(pageID, result)
}

// ── Create ─────────────────────────────────────────────────

type CreateBlockInput struct {
	PageID       string `json:"pageId"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	X            *int   `json:"x"`
	Y            *int   `json:"y"`
	Width        *int   `json:"width"`
	Height       *int   `json:"height"`
	StyleJSON    string `json:"styleJson"`
	SettingsJSON string `json:"settingsJson"`
	IsActive     *bool  `json:"isActive"`
}

// CreateBlock adds a block to a page. The size comes from the block type
// and the request; without a position the block goes to the first free
// spot. A block placed on top of others triggers a repack.
func (s *BlockService) CreateBlock(ctx context.Context, in CreateBlockInput) (*domain.Block, LayoutOutcome, error) {
	if in.PageID == "" {
		return nil, LayoutOutcome{}, errs.New(errs.ErrCodeInvalidInput, "pageId is required")
	}
	blockType := domain.BlockType(in.Type)
	if blockType == "" {
		blockType = domain.BlockTypeText
	}
	if err := validateType(blockType); err != nil {
		return nil, LayoutOutcome{}, err
	}

	var requested *layout.Size
	if in.Width != nil || in.Height != nil {
		requested = &layout.Size{}
		if in.Width != nil {
			if *in.Width < 1 {
				return nil, LayoutOutcome{}, errs.New(errs.ErrCodeInvalidInput, "width must be at least 1")
			}
			requested.Width = *in.Width
		}
		if in.Height != nil {
			if *in.Height < 1 {
				return nil, LayoutOutcome{}, errs.New(errs.ErrCodeInvalidInput, "height must be at least 1")
			}
			requested.Height = *in.Height
		}
	}
	g := s.engine.Grid()
	size := domain.DefaultSizeFor(blockType, requested, g)
	if err := validateSize(size, g); err != nil {
		return nil, LayoutOutcome{}, err
	}

	var (
		created *domain.Block
		outcome LayoutOutcome
	)
	err := s.withPageLock(ctx, in.PageID, func() error {
		if _, err := s.pages.GetPage(ctx, in.PageID); err != nil {
			return err
		}
		count, err := s.blocks.CountBlocks(ctx, in.PageID)
		if err != nil {
			return err
		}
		if limit := s.BlockLimit(); limit >= 0 && count >= limit {
			return errs.New(errs.ErrCodeLimitExceeded, "page already has the maximum of %d blocks", limit)
		}
		existing, err := s.blocks.ListBlocks(ctx, in.PageID)
		if err != nil {
			return err
		}

		var pos layout.Position
		if in.X == nil && in.Y == nil {
			pos = s.engine.NextPosition(domain.Placements(existing), size)
			if !g.Fits(layout.Placement{Position: pos, Size: size}) {
				return errs.New(errs.ErrCodeLimitExceeded, "page has no free space for a %dx%d block within %d rows", size.Width, size.Height, g.Rows())
			}
		} else {
			pos = layout.DefaultPosition
			if in.X != nil {
				pos.X = *in.X
			}
			if in.Y != nil {
				pos.Y = *in.Y
			}
			if err := validatePlacement(layout.Placement{Position: pos, Size: size}, g); err != nil {
				return err
			}
		}

		b := domain.Block{
			ID:           uuid.NewString(),
			PageID:       in.PageID,
			Type:         blockType,
			Title:        in.Title,
			Content:      in.Content,
			X:            pos.X,
			Y:            pos.Y,
			Width:        size.Width,
			Height:       size.Height,
			StyleJSON:    jsonOrEmpty(in.StyleJSON),
			SettingsJSON: jsonOrEmpty(in.SettingsJSON),
			IsActive:     in.IsActive == nil || *in.IsActive,
		}
		previous := domain.Placements(existing)
		all := append(existing, b)
		if err := s.planRoom(in.PageID, all); err != nil {
			return err
		}
		if err := s.blocks.CreateBlock(ctx, &b); err != nil {
			return err
		}
		all[len(all)-1] = b

		outcome, err = s.reconcile(ctx, in.PageID, all, previous, TriggerCreate)
		created = &all[len(all)-1]
		return err
	})
	if err != nil {
		return nil, LayoutOutcome{}, err
	}

	s.emitter.Emit(ctx, EventBlocksChanged, PageEvent{PageID: in.PageID, Action: "create"})
	return created, outcome, nil
}

func jsonOrEmpty(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}

// ── Read ───────────────────────────────────────────────────

// GetBlock returns a block by ID.
func (s *BlockService) GetBlock(ctx context.Context, id string) (*domain.Block, error) {
	return s.blocks.GetBlock(ctx, id)
}

// ListBlocks returns all blocks for a page.
func (s *BlockService) ListBlocks(ctx context.Context, pageID string) ([]domain.Block, error) {
	return s.blocks.ListBlocks(ctx, pageID)
}

// CheckPage lists every pair of overlapping blocks on a page without
// changing anything.
func (s *BlockService) CheckPage(ctx context.Context, pageID string) ([]layout.Collision, error) {
	if _, err := s.pages.GetPage(ctx, pageID); err != nil {
		return nil, err
	}
	blocks, err := s.blocks.ListBlocks(ctx, pageID)
	if err != nil {
		return nil, err
	}
	return layout.Collisions(domain.Placements(blocks)), nil
}

// ── Update ─────────────────────────────────────────────────

// UpdateBlockInput carries the non-geometric fields of a block. Nil fields
// are left unchanged.
type UpdateBlockInput struct {
	Type         *string `json:"type"`
	Title        *string `json:"title"`
	Content      *string `json:"content"`
	StyleJSON    *string `json:"styleJson"`
	SettingsJSON *string `json:"settingsJson"`
	IsActive     *bool   `json:"isActive"`
}

// UpdateBlock edits a block's content and settings. Geometry changes go
// through UpdatePosition and UpdateSize.
func (s *BlockService) UpdateBlock(ctx context.Context, id string, in UpdateBlockInput) (*domain.Block, error) {
	b, err := s.blocks.GetBlock(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Type != nil {
		t := domain.BlockType(*in.Type)
		if err := validateType(t); err != nil {
			return nil, err
		}
		b.Type = t
	}
	if in.Title != nil {
		b.Title = *in.Title
	}
	if in.Content != nil {
		b.Content = *in.Content
	}
	if in.StyleJSON != nil {
		b.StyleJSON = jsonOrEmpty(*in.StyleJSON)
	}
	if in.SettingsJSON != nil {
		b.SettingsJSON = jsonOrEmpty(*in.SettingsJSON)
	}
	if in.IsActive != nil {
		b.IsActive = *in.IsActive
	}
	if err := s.blocks.UpdateBlock(ctx, b); err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, EventBlocksChanged, PageEvent{PageID: b.PageID, Action: "update"})
	return b, nil
}

// PositionUpdate moves one block. X and Y are pointers so a missing
// coordinate can be told apart from zero.
type PositionUpdate struct {
	ID string `json:"id"`
	X  *int   `json:"x"`
	Y  *int   `json:"y"`
}

// SkippedUpdate explains why a batch entry was not applied.
type SkippedUpdate struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// BatchResult summarizes UpdatePositions.
type BatchResult struct {
	Updated  int             `json:"updated"`
	Outcomes []LayoutOutcome `json:"outcomes"`
	Skipped  []SkippedUpdate `json:"skipped,omitempty"`
}

type indexedMove struct {
	index  int
	update PositionUpdate
}

// UpdatePositions applies a batch of moves. Entries without id, x or y,
// entries naming unknown blocks and entries that would leave the grid are
// skipped and reported; the rest are applied. Every page touched is then
// checked and repacked if its blocks overlap.
func (s *BlockService) UpdatePositions(ctx context.Context, updates []PositionUpdate) (*BatchResult, error) {
	res := &BatchResult{Outcomes: []LayoutOutcome{}}
	byPage := make(map[string][]indexedMove)
	var pageOrder []string

	for i, u := range updates {
		if u.ID == "" || u.X == nil || u.Y == nil {
			res.Skipped = append(res.Skipped, SkippedUpdate{Index: i, ID: u.ID, Reason: "id, x and y are required"})
			continue
		}
		b, err := s.blocks.GetBlock(ctx, u.ID)
		if errs.Is(err, errs.ErrCodeNotFound) {
			res.Skipped = append(res.Skipped, SkippedUpdate{Index: i, ID: u.ID, Reason: "block not found"})
			continue
		}
		if err != nil {
			return nil, err
		}
		if _, ok := byPage[b.PageID]; !ok {
			pageOrder = append(pageOrder, b.PageID)
		}
		byPage[b.PageID] = append(byPage[b.PageID], indexedMove{index: i, update: u})
	}

	for _, pageID := range pageOrder {
		applied, skipped, outcome, err := s.movePage(ctx, pageID, byPage[pageID])
		if err != nil {
			return nil, err
		}
		res.Skipped = append(res.Skipped, skipped...)
		if applied == 0 {
			continue
		}
		res.Updated += applied
		res.Outcomes = append(res.Outcomes, outcome)
		s.emitter.Emit(ctx, EventBlocksChanged, PageEvent{PageID: pageID, Action: "move"})
	}
	return res, nil
}

// UpdatePosition moves a single block. Unlike the batch form, an invalid
// position is an error.
func (s *BlockService) UpdatePosition(ctx context.Context, id string, x, y int) (*domain.Block, LayoutOutcome, error) {
	b, err := s.blocks.GetBlock(ctx, id)
	if err != nil {
		return nil, LayoutOutcome{}, err
	}
	move := indexedMove{update: PositionUpdate{ID: id, X: &x, Y: &y}}
	_, skipped, outcome, err := s.movePage(ctx, b.PageID, []indexedMove{move})
	if err != nil {
		return nil, LayoutOutcome{}, err
	}
	if len(skipped) > 0 {
		if skipped[0].Reason == "block not found" {
			return nil, LayoutOutcome{}, errs.NotFound("block", id)
		}
		return nil, LayoutOutcome{}, errs.New(errs.ErrCodeInvalidInput, "%s", skipped[0].Reason)
	}
	s.emitter.Emit(ctx, EventBlocksChanged, PageEvent{PageID: b.PageID, Action: "move"})

	updated, err := s.blocks.GetBlock(ctx, id)
	if err != nil {
		return nil, LayoutOutcome{}, err
	}
	return updated, outcome, nil
}

// movePage applies moves to one page under its lock, persists them, then
// repacks the page if needed.
func (s *BlockService) movePage(ctx context.Context, pageID string, moves []indexedMove) (int, []SkippedUpdate, LayoutOutcome, error) {
	var (
		applied int
		skipped []SkippedUpdate
		outcome LayoutOutcome
	)
	g := s.engine.Grid()
	err := s.withPageLock(ctx, pageID, func() error {
		blocks, err := s.blocks.ListBlocks(ctx, pageID)
		if err != nil {
			return err
		}
		index := make(map[string]int, len(blocks))
		for i, b := range blocks {
			index[b.ID] = i
		}

		previous := domain.Placements(blocks)
		var changed []layout.Placement
		for _, m := range moves {
			i, ok := index[m.update.ID]
			if !ok {
				// deleted between lookup and lock
				skipped = append(skipped, SkippedUpdate{Index: m.index, ID: m.update.ID, Reason: "block not found"})
				continue
			}
			p := domain.Placements(blocks[i : i+1])[0]
			p.Position = layout.Position{X: *m.update.X, Y: *m.update.Y}
			if err := validatePlacement(p, g); err != nil {
				skipped = append(skipped, SkippedUpdate{Index: m.index, ID: m.update.ID, Reason: errs.Message(err)})
				continue
			}
			blocks[i].ApplyPlacement(p)
			changed = append(changed, p)
			applied++
		}
		if applied == 0 {
			return nil
		}
		if err := s.planRoom(pageID, blocks); err != nil {
			return err
		}
		if err := s.blocks.UpdatePlacements(ctx, changed); err != nil {
			return err
		}
		outcome, err = s.reconcile(ctx, pageID, blocks, previous, TriggerMove)
		return err
	})
	return applied, skipped, outcome, err
}

// UpdateSize resizes a block. The new size is saved first; if the block now
// overlaps neighbours the page is repacked, and moved blocks get their
// position and size saved together.
func (s *BlockService) UpdateSize(ctx context.Context, id string, width, height int) (*domain.Block, LayoutOutcome, error) {
	g := s.engine.Grid()
	if err := validateSize(layout.Size{Width: width, Height: height}, g); err != nil {
		return nil, LayoutOutcome{}, err
	}
	b, err := s.blocks.GetBlock(ctx, id)
	if err != nil {
		return nil, LayoutOutcome{}, err
	}

	var (
		resized *domain.Block
		outcome LayoutOutcome
	)
	err = s.withPageLock(ctx, b.PageID, func() error {
		blocks, err := s.blocks.ListBlocks(ctx, b.PageID)
		if err != nil {
			return err
		}
		i := -1
		for j := range blocks {
			if blocks[j].ID == id {
				i = j
				break
			}
		}
		if i < 0 {
			return errs.NotFound("block", id)
		}

		previous := domain.Placements(blocks)
		p := previous[i]
		p.Size = layout.Size{Width: width, Height: height}
		if err := validatePlacement(p, g); err != nil {
			return err
		}
		blocks[i].ApplyPlacement(p)
		if err := s.planRoom(b.PageID, blocks); err != nil {
			return err
		}
		if err := s.blocks.UpdatePlacements(ctx, []layout.Placement{p}); err != nil {
			return err
		}

		outcome, err = s.reconcile(ctx, b.PageID, blocks, previous, TriggerResize)
		resized = &blocks[i]
		return err
	})
	if err != nil {
		return nil, LayoutOutcome{}, err
	}
	s.emitter.Emit(ctx, EventBlocksChanged, PageEvent{PageID: b.PageID, Action: "resize"})
	return resized, outcome, nil
}

// RepackPage checks a page and repacks it when blocks overlap. There is no
// earlier collision-free layout to keep here, so the snapshot holds the
// page as it was found, overlaps included. Restoring it brings the stored
// positions back and the page is repacked again to the same result.
func (s *BlockService) RepackPage(ctx context.Context, pageID string) (LayoutOutcome, error) {
	return s.repackPage(ctx, pageID, TriggerManual)
}

func (s *BlockService) repackPage(ctx context.Context, pageID, trigger string) (LayoutOutcome, error) {
	if _, err := s.pages.GetPage(ctx, pageID); err != nil {
		return LayoutOutcome{}, err
	}
	var outcome LayoutOutcome
	err := s.withPageLock(ctx, pageID, func() error {
		blocks, err := s.blocks.ListBlocks(ctx, pageID)
		if err != nil {
			return err
		}
		outcome, err = s.reconcile(ctx, pageID, blocks, domain.Placements(blocks), trigger)
		return err
	})
	return outcome, err
}

// ── Delete ─────────────────────────────────────────────────

// DeleteBlock removes a block. Removing a block never creates an overlap,
// so no repack is needed.
func (s *BlockService) DeleteBlock(ctx context.Context, id string) error {
	b, err := s.blocks.GetBlock(ctx, id)
	if err != nil {
		return err
	}
	if err := s.blocks.DeleteBlock(ctx, id); err != nil {
		return err
	}
	s.emitter.Emit(ctx, EventBlocksChanged, PageEvent{PageID: b.PageID, Action: "delete"})
	return nil
}

// DeleteAllForPage removes every block of a page and returns how many were
// deleted.
func (s *BlockService) DeleteAllForPage(ctx context.Context, pageID string) (int, error) {
	if _, err := s.pages.GetPage(ctx, pageID); err != nil {
		return 0, err
	}
	var n int
	err := s.withPageLock(ctx, pageID, func() error {
		var err error
		n, err = s.blocks.DeleteBlocksByPage(ctx, pageID)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.emitter.Emit(ctx, EventBlocksChanged, PageEvent{PageID: pageID, Action: "delete-all"})
	return n, nil
}

// ── Layout history ─────────────────────────────────────────

// ListSnapshots returns a page's layout history, newest first.
func (s *BlockService) ListSnapshots(ctx context.Context, pageID string) ([]domain.LayoutSnapshot, error) {
	if _, err := s.pages.GetPage(ctx, pageID); err != nil {
		return nil, err
	}
	return s.snapshots.ListSnapshots(ctx, pageID)
}

// RestoreSnapshot puts blocks back where a snapshot recorded them. Blocks
// created after the snapshot keep their place; if the result overlaps, the
// page is repacked. The arrangement being replaced is itself saved first,
// so a restore can be undone.
func (s *BlockService) RestoreSnapshot(ctx context.Context, pageID, snapshotID string) (LayoutOutcome, error) {
	snap, err := s.snapshots.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return LayoutOutcome{}, err
	}
	if snap.PageID != pageID {
		return LayoutOutcome{}, errs.NotFound("snapshot", snapshotID)
	}
	g := s.engine.Grid()
	saved := make(map[string]layout.Placement, len(snap.Placements))
	for _, p := range snap.Placements {
		if g.Fits(p) {
			saved[p.ID] = p
		}
	}

	var outcome LayoutOutcome
	err = s.withPageLock(ctx, pageID, func() error {
		blocks, err := s.blocks.ListBlocks(ctx, pageID)
		if err != nil {
			return err
		}
		current := domain.Placements(blocks)

		var (
			changed  []layout.Placement
			restored []string
		)
		for i, p := range current {
			sp, ok := saved[p.ID]
			if !ok || sp == p {
				continue
			}
			blocks[i].ApplyPlacement(sp)
			changed = append(changed, sp)
			restored = append(restored, p.ID)
		}
		if len(changed) == 0 {
			outcome = LayoutOutcome{PageID: pageID}
			return nil
		}

		if err := s.planRoom(pageID, blocks); err != nil {
			return err
		}
		undo := &domain.LayoutSnapshot{ID: uuid.NewString(), PageID: pageID, Label: TriggerRestore, Placements: current}
		if err := s.snapshots.PushSnapshot(ctx, undo); err != nil {
			return fmt.Errorf("save current layout: %w", err)
		}
		if err := s.blocks.UpdatePlacements(ctx, changed); err != nil {
			return err
		}

		// undo already holds current; reconcile must not save it again
		outcome, err = s.reconcile(ctx, pageID, blocks, nil, TriggerRestore)
		if err != nil {
			return err
		}
		for _, id := range outcome.Moved {
			if !slices.Contains(restored, id) {
				restored = append(restored, id)
			}
		}
		outcome.Moved = restored
		outcome.SnapshotID = undo.ID
		return nil
	})
	if err != nil {
		return LayoutOutcome{}, err
	}
	s.emitter.Emit(ctx, EventBlocksChanged, PageEvent{PageID: pageID, Action: "restore"})
	return outcome, nil
}
