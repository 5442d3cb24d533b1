// Package mongostore implements the page, block and snapshot stores on
// MongoDB for deployments that select storage.driver "mongodb".
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"maglink/internal/config"
	"maglink/internal/domain"
	"maglink/internal/errs"
	"maglink/internal/layout"
)

const (
	pagesCollection     = "pages"
	blocksCollection    = "blocks"
	snapshotsCollection = "layout_snapshots"
)

// Store holds the Mongo client and the collections used by the stores.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to cfg.DSN, selects cfg.MongoDatabase and ensures indexes.
func Open(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	name := cfg.MongoDatabase
	if name == "" {
		name = "maglink"
	}
	s := &Store{client: client, db: client.Database(name)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(pagesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "tenant_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create page indexes: %w", err)
	}
	for _, coll := range []string{blocksCollection, snapshotsCollection} {
		_, err := s.db.Collection(coll).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "page_id", Value: 1}, {Key: "created_at", Value: 1}},
		})
		if err != nil {
			return fmt.Errorf("create %s index: %w", coll, err)
		}
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping checks that the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Blocks() *BlockStore {
	return &BlockStore{coll: s.db.Collection(blocksCollection)}
}

func (s *Store) Pages() *PageStore {
	return &PageStore{
		coll:      s.db.Collection(pagesCollection),
		blocks:    s.db.Collection(blocksCollection),
		snapshots: s.db.Collection(snapshotsCollection),
	}
}

func (s *Store) Snapshots(max int) *SnapshotStore {
	if max <= 0 {
		max = 40
	}
	return &SnapshotStore{coll: s.db.Collection(snapshotsCollection), max: max}
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return errs.NotFound(kind, id)
	}
	return fmt.Errorf("get %s: %w", kind, err)
}

// ── blocks ─────────────────────────────────────────────────

// BlockStore implements domain.BlockStore on a Mongo collection.
type BlockStore struct {
	coll *mongo.Collection
}

func (s *BlockStore) CreateBlock(ctx context.Context, b *domain.Block) error {
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	if _, err := s.coll.InsertOne(ctx, b); err != nil {
		return fmt.Errorf("create block: %w", err)
	}
	return nil
}

func (s *BlockStore) GetBlock(ctx context.Context, id string) (*domain.Block, error) {
	var b domain.Block
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&b); err != nil {
		return nil, notFound(err, "block", id)
	}
	return &b, nil
}

func (s *BlockStore) ListBlocks(ctx context.Context, pageID string) ([]domain.Block, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.coll.Find(ctx, bson.M{"page_id": pageID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	var blocks []domain.Block
	if err := cursor.All(ctx, &blocks); err != nil {
		return nil, fmt.Errorf("decode blocks: %w", err)
	}
	return blocks, nil
}

func (s *BlockStore) CountBlocks(ctx context.Context, pageID string) (int, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"page_id": pageID})
	if err != nil {
		return 0, fmt.Errorf("count blocks: %w", err)
	}
	return int(n), nil
}

func (s *BlockStore) UpdateBlock(ctx context.Context, b *domain.Block) error {
	b.UpdatedAt = time.Now().UTC()
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": b.ID}, b)
	if err != nil {
		return fmt.Errorf("update block: %w", err)
	}
	if res.MatchedCount == 0 {
		return errs.NotFound("block", b.ID)
	}
	return nil
}

// UpdatePlacements writes position and size for every placement in one
// ordered bulk write.
func (s *BlockStore) UpdatePlacements(ctx context.Context, placements []layout.Placement) error {
	if len(placements) == 0 {
		return nil
	}
	now := time.Now().UTC()
	models := make([]mongo.WriteModel, 0, len(placements))
	for _, p := range placements {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": p.ID}).
			SetUpdate(bson.M{"$set": bson.M{
				"x": p.X, "y": p.Y, "width": p.Width, "height": p.Height, "updated_at": now,
			}}))
	}
	if _, err := s.coll.BulkWrite(ctx, models); err != nil {
		return fmt.Errorf("update placements: %w", err)
	}
	return nil
}

func (s *BlockStore) DeleteBlock(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	if res.DeletedCount == 0 {
		return errs.NotFound("block", id)
	}
	return nil
}

func (s *BlockStore) DeleteBlocksByPage(ctx context.Context, pageID string) (int, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"page_id": pageID})
	if err != nil {
		return 0, fmt.Errorf("delete blocks: %w", err)
	}
	return int(res.DeletedCount), nil
}

// ── pages ──────────────────────────────────────────────────

// PageStore implements domain.PageStore on a Mongo collection.
type PageStore struct {
	coll      *mongo.Collection
	blocks    *mongo.Collection
	snapshots *mongo.Collection
}

func (s *PageStore) CreatePage(ctx context.Context, p *domain.Page) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if _, err := s.coll.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errs.Wrap(errs.ErrCodeConflict, err, "slug %q already taken", p.Slug)
		}
		return fmt.Errorf("create page: %w", err)
	}
	return nil
}

func (s *PageStore) GetPage(ctx context.Context, id string) (*domain.Page, error) {
	var p domain.Page
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, notFound(err, "page", id)
	}
	return &p, nil
}

func (s *PageStore) GetPageBySlug(ctx context.Context, slug string) (*domain.Page, error) {
	var p domain.Page
	if err := s.coll.FindOne(ctx, bson.M{"slug": slug}).Decode(&p); err != nil {
		return nil, notFound(err, "page", slug)
	}
	return &p, nil
}

func (s *PageStore) ListPages(ctx context.Context, tenantID string) ([]domain.Page, error) {
	filter := bson.M{}
	if tenantID != "" {
		filter["tenant_id"] = tenantID
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	var pages []domain.Page
	if err := cursor.All(ctx, &pages); err != nil {
		return nil, fmt.Errorf("decode pages: %w", err)
	}
	return pages, nil
}

func (s *PageStore) ListPageIDs(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list page ids: %w", err)
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode page ids: %w", err)
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

func (s *PageStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"slug": slug}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return n > 0, nil
}

func (s *PageStore) UpdatePage(ctx context.Context, p *domain.Page) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": p.ID}, bson.M{"$set": bson.M{
		"title":         p.Title,
		"description":   p.Description,
		"style_json":    p.StyleJSON,
		"settings_json": p.SettingsJSON,
		"is_active":     p.IsActive,
		"published_at":  p.PublishedAt,
		"updated_at":    p.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("update page: %w", err)
	}
	if res.MatchedCount == 0 {
		return errs.NotFound("page", p.ID)
	}
	return nil
}

func (s *PageStore) IncrementViews(ctx context.Context, id string, at time.Time) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"views": 1},
		"$set": bson.M{"last_viewed_at": at.UTC()},
	})
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	if res.MatchedCount == 0 {
		return errs.NotFound("page", id)
	}
	return nil
}

// DeletePage removes the page with its blocks and layout history. The
// deletes are not transactional; children go first so a failure never
// leaves orphans behind a missing page.
func (s *PageStore) DeletePage(ctx context.Context, id string) error {
	if _, err := s.blocks.DeleteMany(ctx, bson.M{"page_id": id}); err != nil {
		return fmt.Errorf("delete blocks: %w", err)
	}
	if _, err := s.snapshots.DeleteMany(ctx, bson.M{"page_id": id}); err != nil {
		return fmt.Errorf("delete snapshots: %w", err)
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	if res.DeletedCount == 0 {
		return errs.NotFound("page", id)
	}
	return nil
}

// ── snapshots ──────────────────────────────────────────────

// SnapshotStore implements domain.SnapshotStore on a Mongo collection.
type SnapshotStore struct {
	coll *mongo.Collection
	max  int
}

func (s *SnapshotStore) PushSnapshot(ctx context.Context, snap *domain.LayoutSnapshot) error {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	if _, err := s.coll.InsertOne(ctx, snap); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	// Keep the newest max snapshots.
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(s.max)).
		SetProjection(bson.M{"_id": 1})
	cursor, err := s.coll.Find(ctx, bson.M{"page_id": snap.PageID}, opts)
	if err != nil {
		return fmt.Errorf("select old snapshots: %w", err)
	}
	var old []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &old); err != nil {
		return fmt.Errorf("decode old snapshots: %w", err)
	}
	if len(old) == 0 {
		return nil
	}
	ids := make([]string, len(old))
	for i, o := range old {
		ids[i] = o.ID
	}
	if _, err := s.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}

func (s *SnapshotStore) ListSnapshots(ctx context.Context, pageID string) ([]domain.LayoutSnapshot, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.coll.Find(ctx, bson.M{"page_id": pageID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	var snaps []domain.LayoutSnapshot
	if err := cursor.All(ctx, &snaps); err != nil {
		return nil, fmt.Errorf("decode snapshots: %w", err)
	}
	return snaps, nil
}

func (s *SnapshotStore) GetSnapshot(ctx context.Context, id string) (*domain.LayoutSnapshot, error) {
	var snap domain.LayoutSnapshot
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&snap); err != nil {
		return nil, notFound(err, "snapshot", id)
	}
	return &snap, nil
}

func (s *SnapshotStore) ClearSnapshots(ctx context.Context, pageID string) error {
	if _, err := s.coll.DeleteMany(ctx, bson.M{"page_id": pageID}); err != nil {
		return fmt.Errorf("clear snapshots: %w", err)
	}
	return nil
}
