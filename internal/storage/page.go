package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"maglink/internal/domain"
	"maglink/internal/errs"
)

const pageColumns = `id, tenant_id, slug, title, description, style_json, settings_json, is_active, views, last_viewed_at, published_at, created_at, updated_at`

// PageStore implements domain.PageStore on SQL.
type PageStore struct {
	db *DB
}

func NewPageStore(db *DB) *PageStore {
	return &PageStore{db: db}
}

func scanPage(row scanner) (domain.Page, error) {
	var (
		p                   domain.Page
		lastViewed, publish sql.NullTime
	)
	err := row.Scan(&p.ID, &p.TenantID, &p.Slug, &p.Title, &p.Description, &p.StyleJSON, &p.SettingsJSON,
		&p.IsActive, &p.Views, &lastViewed, &publish, &p.CreatedAt, &p.UpdatedAt)
	p.LastViewedAt = timePtr(lastViewed)
	p.PublishedAt = timePtr(publish)
	return p, err
}

func (s *PageStore) CreatePage(ctx context.Context, p *domain.Page) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := s.db.exec(ctx, s.db.conn,
		`INSERT INTO pages (`+pageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TenantID, p.Slug, p.Title, p.Description, p.StyleJSON, p.SettingsJSON,
		p.IsActive, p.Views, nullTime(p.LastViewedAt), nullTime(p.PublishedAt), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if s.db.dialect.duplicate(err) {
			return errs.Wrap(errs.ErrCodeConflict, err, "slug %q already taken", p.Slug)
		}
		return fmt.Errorf("create page: %w", err)
	}
	return nil
}

func (s *PageStore) GetPage(ctx context.Context, id string) (*domain.Page, error) {
	p, err := scanPage(s.db.queryRow(ctx, s.db.conn, `SELECT `+pageColumns+` FROM pages WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "page", id)
	}
	return &p, nil
}

func (s *PageStore) GetPageBySlug(ctx context.Context, slug string) (*domain.Page, error) {
	p, err := scanPage(s.db.queryRow(ctx, s.db.conn, `SELECT `+pageColumns+` FROM pages WHERE slug = ?`, slug))
	if err != nil {
		return nil, notFound(err, "page", slug)
	}
	return &p, nil
}

// ListPages returns pages newest first. An empty tenantID lists every page.
func (s *PageStore) ListPages(ctx context.Context, tenantID string) ([]domain.Page, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if tenantID == "" {
		rows, err = s.db.query(ctx, s.db.conn, `SELECT `+pageColumns+` FROM pages ORDER BY created_at DESC, id DESC`)
	} else {
		rows, err = s.db.query(ctx, s.db.conn,
			`SELECT `+pageColumns+` FROM pages WHERE tenant_id = ? ORDER BY created_at DESC, id DESC`, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []domain.Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// ListPageIDs returns every page id, for background jobs that walk all pages.
func (s *PageStore) ListPageIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.query(ctx, s.db.conn, `SELECT id FROM pages ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list page ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PageStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int
	if err := s.db.queryRow(ctx, s.db.conn, `SELECT COUNT(*) FROM pages WHERE slug = ?`, slug).Scan(&n); err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return n > 0, nil
}

// UpdatePage writes the editable fields. Slug and view counters are left
// alone.
func (s *PageStore) UpdatePage(ctx context.Context, p *domain.Page) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.exec(ctx, s.db.conn,
		`UPDATE pages SET title = ?, description = ?, style_json = ?, settings_json = ?, is_active = ?, published_at = ?, updated_at = ? WHERE id = ?`,
		p.Title, p.Description, p.StyleJSON, p.SettingsJSON, p.IsActive, nullTime(p.PublishedAt), p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update page: %w", err)
	}
	return s.db.requireRow(ctx, res, "pages", "page", p.ID)
}

func (s *PageStore) IncrementViews(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.exec(ctx, s.db.conn,
		`UPDATE pages SET views = views + 1, last_viewed_at = ? WHERE id = ?`, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	return s.db.requireRow(ctx, res, "pages", "page", id)
}

// DeletePage removes the page together with its blocks and layout history.
func (s *PageStore) DeletePage(ctx context.Context, id string) error {
	return s.db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.db.exec(ctx, tx, `DELETE FROM blocks WHERE page_id = ?`, id); err != nil {
			return fmt.Errorf("delete blocks: %w", err)
		}
		if _, err := s.db.exec(ctx, tx, `DELETE FROM layout_snapshots WHERE page_id = ?`, id); err != nil {
			return fmt.Errorf("delete snapshots: %w", err)
		}
		res, err := s.db.exec(ctx, tx, `DELETE FROM pages WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete page: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return notFound(sql.ErrNoRows, "page", id)
		}
		return nil
	})
}
