package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maglink/internal/config"
	"maglink/internal/domain"
	"maglink/internal/errs"
	"maglink/internal/layout"
)

// openTestStore connects to MAGLINK_TEST_MONGO_URI, skipping when unset.
// Every test gets its own database, dropped on cleanup.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MAGLINK_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("MAGLINK_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, config.StorageConfig{
		Driver:        "mongodb",
		DSN:           uri,
		MongoDatabase: "maglink_test_" + uuid.NewString()[:8],
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.db.Drop(ctx)
		_ = s.Close(ctx)
	})
	return s
}

func TestMongoStore_BlocksAndPages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	pages, blocks := s.Pages(), s.Blocks()

	require.NoError(t, pages.CreatePage(ctx, &domain.Page{ID: "p1", TenantID: "t1", Slug: "home", IsActive: true}))
	err := pages.CreatePage(ctx, &domain.Page{ID: "p2", Slug: "home"})
	assert.True(t, errs.Is(err, errs.ErrCodeConflict))

	require.NoError(t, blocks.CreateBlock(ctx, &domain.Block{ID: "b1", PageID: "p1", Width: 1, Height: 2}))
	require.NoError(t, blocks.CreateBlock(ctx, &domain.Block{ID: "b2", PageID: "p1", Width: 1, Height: 2}))

	require.NoError(t, blocks.UpdatePlacements(ctx, []layout.Placement{
		{ID: "b2", Position: layout.Position{X: 1}, Size: layout.Size{Width: 1, Height: 2}},
	}))
	b2, err := blocks.GetBlock(ctx, "b2")
	require.NoError(t, err)
	assert.Equal(t, 1, b2.X)

	require.NoError(t, pages.IncrementViews(ctx, "p1", time.Now()))
	p, err := pages.GetPageBySlug(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Views)

	require.NoError(t, pages.DeletePage(ctx, "p1"))
	n, err := blocks.CountBlocks(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = pages.GetPage(ctx, "p1")
	assert.True(t, errs.Is(err, errs.ErrCodeNotFound))
}

func TestMongoStore_SnapshotPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	snaps := s.Snapshots(2)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"s0", "s1", "s2"} {
		require.NoError(t, snaps.PushSnapshot(ctx, &domain.LayoutSnapshot{
			ID: id, PageID: "p1", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	list, err := snaps.ListSnapshots(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s2", list[0].ID)
	assert.Equal(t, "s1", list[1].ID)
}
