package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"maglink/internal/domain"
	"maglink/internal/errs"
	"maglink/internal/layout"
	"maglink/internal/pagelock"
	"maglink/internal/service"
)

// ─────────────────────────────────────────────────────────────
// In-memory stores
// ─────────────────────────────────────────────────────────────

// memStore implements the block, page and snapshot stores over maps.
type memStore struct {
	mu        sync.Mutex
	pages     map[string]domain.Page
	blocks    []domain.Block
	snapshots []domain.LayoutSnapshot
	clock     time.Time

	failSnapshots bool
	failBlocks    map[string]bool // ListBlocks fails for these pages
}

func newMemStore() *memStore {
	return &memStore{
		pages:      make(map[string]domain.Page),
		failBlocks: make(map[string]bool),
		clock:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

// ── pages ──

func (m *memStore) CreatePage(_ context.Context, p *domain.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.pages {
		if existing.Slug == p.Slug {
			return errs.New(errs.ErrCodeConflict, "slug %q already exists", p.Slug)
		}
	}
	p.CreatedAt = m.tick()
	p.UpdatedAt = p.CreatedAt
	m.pages[p.ID] = *p
	return nil
}

func (m *memStore) GetPage(_ context.Context, id string) (*domain.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[id]
	if !ok {
		return nil, errs.NotFound("page", id)
	}
	return &p, nil
}

func (m *memStore) GetPageBySlug(_ context.Context, slug string) (*domain.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pages {
		if p.Slug == slug {
			return &p, nil
		}
	}
	return nil, errs.NotFound("page", slug)
}

func (m *memStore) ListPages(_ context.Context, tenantID string) ([]domain.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Page
	for _, p := range m.pages {
		if tenantID == "" || p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) ListPageIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.pages))
	for id := range m.pages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) SlugExists(_ context.Context, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pages {
		if p.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) UpdatePage(_ context.Context, p *domain.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.pages[p.ID]
	if !ok {
		return errs.NotFound("page", p.ID)
	}
	p.Slug = existing.Slug
	p.Views = existing.Views
	p.UpdatedAt = m.tick()
	m.pages[p.ID] = *p
	return nil
}

func (m *memStore) IncrementViews(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[id]
	if !ok {
		return errs.NotFound("page", id)
	}
	p.Views++
	p.LastViewedAt = &at
	m.pages[id] = p
	return nil
}

func (m *memStore) DeletePage(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pages[id]; !ok {
		return errs.NotFound("page", id)
	}
	delete(m.pages, id)
	kept := m.blocks[:0]
	for _, b := range m.blocks {
		if b.PageID != id {
			kept = append(kept, b)
		}
	}
	m.blocks = kept
	var snaps []domain.LayoutSnapshot
	for _, s := range m.snapshots {
		if s.PageID != id {
			snaps = append(snaps, s)
		}
	}
	m.snapshots = snaps
	return nil
}

// ── blocks ──

func (m *memStore) CreateBlock(_ context.Context, b *domain.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.CreatedAt = m.tick()
	b.UpdatedAt = b.CreatedAt
	m.blocks = append(m.blocks, *b)
	return nil
}

func (m *memStore) GetBlock(_ context.Context, id string) (*domain.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.blocks {
		if b.ID == id {
			return &b, nil
		}
	}
	return nil, errs.NotFound("block", id)
}

func (m *memStore) ListBlocks(_ context.Context, pageID string) ([]domain.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failBlocks[pageID] {
		return nil, errors.New("disk on fire")
	}
	var out []domain.Block
	for _, b := range m.blocks {
		if b.PageID == pageID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) CountBlocks(ctx context.Context, pageID string) (int, error) {
	blocks, err := m.ListBlocks(ctx, pageID)
	return len(blocks), err
}

func (m *memStore) UpdateBlock(_ context.Context, b *domain.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.blocks {
		if m.blocks[i].ID == b.ID {
			m.blocks[i] = *b
			return nil
		}
	}
	return errs.NotFound("block", b.ID)
}

func (m *memStore) UpdatePlacements(_ context.Context, placements []layout.Placement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range placements {
		for i := range m.blocks {
			if m.blocks[i].ID == p.ID {
				m.blocks[i].ApplyPlacement(p)
			}
		}
	}
	return nil
}

func (m *memStore) DeleteBlock(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range m.blocks {
		if b.ID == id {
			m.blocks = append(m.blocks[:i], m.blocks[i+1:]...)
			return nil
		}
	}
	return errs.NotFound("block", id)
}

func (m *memStore) DeleteBlocksByPage(_ context.Context, pageID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.blocks[:0]
	n := 0
	for _, b := range m.blocks {
		if b.PageID == pageID {
			n++
			continue
		}
		kept = append(kept, b)
	}
	m.blocks = kept
	return n, nil
}

// ── snapshots ──

func (m *memStore) PushSnapshot(_ context.Context, s *domain.LayoutSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSnapshots {
		return errors.New("snapshot table locked")
	}
	s.CreatedAt = m.tick()
	m.snapshots = append(m.snapshots, *s)
	return nil
}

func (m *memStore) ListSnapshots(_ context.Context, pageID string) ([]domain.LayoutSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LayoutSnapshot
	for i := len(m.snapshots) - 1; i >= 0; i-- {
		if m.snapshots[i].PageID == pageID {
			out = append(out, m.snapshots[i])
		}
	}
	return out, nil
}

func (m *memStore) GetSnapshot(_ context.Context, id string) (*domain.LayoutSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.snapshots {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, errs.NotFound("snapshot", id)
}

func (m *memStore) ClearSnapshots(_ context.Context, pageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []domain.LayoutSnapshot
	for _, s := range m.snapshots {
		if s.PageID != pageID {
			kept = append(kept, s)
		}
	}
	m.snapshots = kept
	return nil
}

// ── fixtures ──

// seedPage stores a page directly, bypassing slug generation.
func (m *memStore) seedPage(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[id] = domain.Page{ID: id, Slug: id, Title: id, IsActive: true, CreatedAt: m.tick()}
}

// seedBlock stores a block directly, bypassing validation and repacking.
func (m *memStore) seedBlock(pageID, id string, x, y, w, h int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = append(m.blocks, domain.Block{
		ID: id, PageID: pageID, Type: domain.BlockTypeText,
		X: x, Y: y, Width: w, Height: h, IsActive: true, CreatedAt: m.tick(),
	})
}

// geometry returns id -> placement for a page.
func (m *memStore) geometry(t *testing.T, pageID string) map[string]layout.Placement {
	t.Helper()
	blocks, err := m.ListBlocks(context.Background(), pageID)
	if err != nil {
		t.Fatalf("list blocks: %v", err)
	}
	out := make(map[string]layout.Placement, len(blocks))
	for _, p := range domain.Placements(blocks) {
		out[p.ID] = p
	}
	return out
}

type fixture struct {
	store   *memStore
	emitter *service.MockEmitter
	locker  *pagelock.Memory
	blocks  *service.BlockService
	pages   *service.PageService
}

func newFixture() *fixture {
	return newFixtureWithGrid(layout.NewGrid(4))
}

func newFixtureWithGrid(g layout.Grid) *fixture {
	store := newMemStore()
	emitter := &service.MockEmitter{}
	logger := zap.NewNop()
	locker := pagelock.NewMemory()
	engine := layout.NewEngine(g)
	return &fixture{
		store:   store,
		emitter: emitter,
		locker:  locker,
		blocks:  service.NewBlockService(store, store, store, locker, engine, emitter, logger),
		pages:   service.NewPageService(store, store, emitter, logger),
	}
}

func intp(v int) *int { return &v }

func place(id string, x, y, w, h int) layout.Placement {
	return layout.Placement{ID: id, Position: layout.Position{X: x, Y: y}, Size: layout.Size{Width: w, Height: h}}
}
