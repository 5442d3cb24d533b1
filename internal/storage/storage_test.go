package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maglink/internal/config"
	"maglink/internal/domain"
	"maglink/internal/errs"
	"maglink/internal/layout"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(context.Background(), config.StorageConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "nested", "maglink.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedPage(t *testing.T, pages *PageStore, id, slug string) *domain.Page {
	t.Helper()
	p := &domain.Page{ID: id, TenantID: "t1", Slug: slug, Title: "Page " + id, StyleJSON: "{}", SettingsJSON: "{}", IsActive: true}
	require.NoError(t, pages.CreatePage(context.Background(), p))
	return p
}

func seedBlock(t *testing.T, blocks *BlockStore, id, pageID string, x, y, w, h int) {
	t.Helper()
	require.NoError(t, blocks.CreateBlock(context.Background(), &domain.Block{
		ID: id, PageID: pageID, Type: domain.BlockTypeText,
		X: x, Y: y, Width: w, Height: h,
		StyleJSON: "{}", SettingsJSON: "{}", IsActive: true,
	}))
}

func TestNew_MigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))
	assert.Equal(t, "sqlite", db.Driver())
	require.NoError(t, db.Ping(context.Background()))
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := dialects["postgres"]
	assert.Equal(t, "UPDATE blocks SET x = $1, y = $2 WHERE id = $3", pg.rebind("UPDATE blocks SET x = ?, y = ? WHERE id = ?"))
	my := dialects["mysql"]
	assert.Equal(t, "SELECT 1 WHERE id = ?", my.rebind("SELECT 1 WHERE id = ?"))
}

func TestSchema_MySQLHasNoIndexIfNotExists(t *testing.T) {
	for _, stmt := range dialects["mysql"].migrations {
		assert.NotContains(t, stmt, "INDEX IF NOT EXISTS")
		assert.NotContains(t, stmt, "{")
	}
}

func TestBlockStore_CRUD(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	pages, blocks := NewPageStore(db), NewBlockStore(db)
	seedPage(t, pages, "p1", "home")

	seedBlock(t, blocks, "b1", "p1", 0, 0, 1, 2)
	seedBlock(t, blocks, "b2", "p1", 1, 0, 2, 1)

	got, err := blocks.GetBlock(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.BlockTypeText, got.Type)
	assert.Equal(t, 2, got.Height)
	assert.True(t, got.IsActive)

	got.Content = "hello"
	got.X = 3
	require.NoError(t, blocks.UpdateBlock(ctx, got))

	list, err := blocks.ListBlocks(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b1", list[0].ID)
	assert.Equal(t, "hello", list[0].Content)
	assert.Equal(t, 3, list[0].X)

	n, err := blocks.CountBlocks(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, blocks.DeleteBlock(ctx, "b2"))
	_, err = blocks.GetBlock(ctx, "b2")
	assert.True(t, errs.Is(err, errs.ErrCodeNotFound))
}

func TestBlockStore_MissingBlock(t *testing.T) {
	ctx := context.Background()
	blocks := NewBlockStore(newTestDB(t))

	_, err := blocks.GetBlock(ctx, "nope")
	assert.True(t, errs.Is(err, errs.ErrCodeNotFound))

	err = blocks.UpdateBlock(ctx, &domain.Block{ID: "nope"})
	assert.True(t, errs.Is(err, errs.ErrCodeNotFound))

	err = blocks.DeleteBlock(ctx, "nope")
	assert.True(t, errs.Is(err, errs.ErrCodeNotFound))
}

func TestBlockStore_UpdatePlacements(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	blocks := NewBlockStore(db)
	seedBlock(t, blocks, "b1", "p1", 0, 0, 1, 2)
	seedBlock(t, blocks, "b2", "p1", 0, 0, 1, 2)

	err := blocks.UpdatePlacements(ctx, []layout.Placement{
		{ID: "b2", Position: layout.Position{X: 1, Y: 0}, Size: layout.Size{Width: 1, Height: 2}},
		{ID: "ghost", Position: layout.Position{X: 3, Y: 3}, Size: layout.Size{Width: 1, Height: 1}},
	})
	require.NoError(t, err)

	b2, err := blocks.GetBlock(ctx, "b2")
	require.NoError(t, err)
	assert.Equal(t, 1, b2.X)

	list, err := blocks.ListBlocks(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestBlockStore_DeleteBlocksByPage(t *testing.T) {
	ctx := context.Background()
	blocks := NewBlockStore(newTestDB(t))
	seedBlock(t, blocks, "b1", "p1", 0, 0, 1, 2)
	seedBlock(t, blocks, "b2", "p1", 1, 0, 1, 2)
	seedBlock(t, blocks, "b3", "p2", 0, 0, 1, 2)

	n, err := blocks.DeleteBlocksByPage(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = blocks.DeleteBlocksByPage(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	left, err := blocks.CountBlocks(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, 1, left)
}

func TestPageStore_CRUD(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	pages := NewPageStore(db)
	seedPage(t, pages, "p1", "home")
	seedPage(t, pages, "p2", "about")
	require.NoError(t, pages.CreatePage(ctx, &domain.Page{ID: "p3", TenantID: "t2", Slug: "other"}))

	got, err := pages.GetPageBySlug(ctx, "about")
	require.NoError(t, err)
	assert.Equal(t, "p2", got.ID)
	assert.Nil(t, got.PublishedAt)

	exists, err := pages.SlugExists(ctx, "home")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = pages.SlugExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)

	tenant, err := pages.ListPages(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, tenant, 2)
	all, err := pages.ListPages(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	ids, err := pages.ListPageIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3"}, ids)

	published := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got.Title = "About us"
	got.PublishedAt = &published
	require.NoError(t, pages.UpdatePage(ctx, got))

	got, err = pages.GetPage(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, "About us", got.Title)
	require.NotNil(t, got.PublishedAt)
	assert.True(t, published.Equal(*got.PublishedAt))
	assert.True(t, got.IsPublished())
}

func TestPageStore_DuplicateSlugRejected(t *testing.T) {
	pages := NewPageStore(newTestDB(t))
	seedPage(t, pages, "p1", "home")
	err := pages.CreatePage(context.Background(), &domain.Page{ID: "p2", Slug: "home"})
	assert.True(t, errs.Is(err, errs.ErrCodeConflict))
}

func TestPageStore_IncrementViews(t *testing.T) {
	ctx := context.Background()
	pages := NewPageStore(newTestDB(t))
	seedPage(t, pages, "p1", "home")

	at := time.Now()
	require.NoError(t, pages.IncrementViews(ctx, "p1", at))
	require.NoError(t, pages.IncrementViews(ctx, "p1", at))

	got, err := pages.GetPage(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Views)
	require.NotNil(t, got.LastViewedAt)

	err = pages.IncrementViews(ctx, "missing", at)
	assert.True(t, errs.Is(err, errs.ErrCodeNotFound))
}

func TestPageStore_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	pages, blocks, snaps := NewPageStore(db), NewBlockStore(db), NewSnapshotStore(db, 0)
	seedPage(t, pages, "p1", "home")
	seedBlock(t, blocks, "b1", "p1", 0, 0, 1, 2)
	require.NoError(t, snaps.PushSnapshot(ctx, &domain.LayoutSnapshot{ID: "s1", PageID: "p1", Label: "repack"}))

	require.NoError(t, pages.DeletePage(ctx, "p1"))

	n, err := blocks.CountBlocks(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, n)
	list, err := snaps.ListSnapshots(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, list)

	err = pages.DeletePage(ctx, "p1")
	assert.True(t, errs.Is(err, errs.ErrCodeNotFound))
}

func TestSnapshotStore_PushAndPrune(t *testing.T) {
	ctx := context.Background()
	snaps := NewSnapshotStore(newTestDB(t), 3)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, snaps.PushSnapshot(ctx, &domain.LayoutSnapshot{
			ID:        fmt.Sprintf("s%d", i),
			PageID:    "p1",
			Label:     "repack",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Placements: []layout.Placement{
				{ID: "b1", Position: layout.Position{X: i, Y: 0}, Size: layout.Size{Width: 1, Height: 2}},
			},
		}))
	}

	list, err := snaps.ListSnapshots(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "s4", list[0].ID)
	assert.Equal(t, "s2", list[2].ID)

	got, err := snaps.GetSnapshot(ctx, "s3")
	require.NoError(t, err)
	require.Len(t, got.Placements, 1)
	assert.Equal(t, 3, got.Placements[0].X)
	assert.Equal(t, 2, got.Placements[0].Height)

	_, err = snaps.GetSnapshot(ctx, "s0")
	assert.True(t, errs.Is(err, errs.ErrCodeNotFound))

	require.NoError(t, snaps.ClearSnapshots(ctx, "p1"))
	list, err = snaps.ListSnapshots(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, list)
}
