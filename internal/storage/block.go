package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"maglink/internal/domain"
	"maglink/internal/layout"
)

const blockColumns = `id, page_id, type, title, content, x, y, width, height, style_json, settings_json, is_active, created_at, updated_at`

// BlockStore implements domain.BlockStore on SQL.
type BlockStore struct {
	db *DB
}

func NewBlockStore(db *DB) *BlockStore {
	return &BlockStore{db: db}
}

func scanBlock(row scanner) (domain.Block, error) {
	var b domain.Block
	err := row.Scan(&b.ID, &b.PageID, &b.Type, &b.Title, &b.Content, &b.X, &b.Y, &b.Width, &b.Height,
		&b.StyleJSON, &b.SettingsJSON, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (s *BlockStore) CreateBlock(ctx context.Context, b *domain.Block) error {
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	_, err := s.db.exec(ctx, s.db.conn,
		`INSERT INTO blocks (`+blockColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.PageID, b.Type, b.Title, b.Content, b.X, b.Y, b.Width, b.Height,
		b.StyleJSON, b.SettingsJSON, b.IsActive, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create block: %w", err)
	}
	return nil
}

func (s *BlockStore) GetBlock(ctx context.Context, id string) (*domain.Block, error) {
	b, err := scanBlock(s.db.queryRow(ctx, s.db.conn, `SELECT `+blockColumns+` FROM blocks WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "block", id)
	}
	return &b, nil
}

// ListBlocks returns a page's blocks in creation order.
func (s *BlockStore) ListBlocks(ctx context.Context, pageID string) ([]domain.Block, error) {
	rows, err := s.db.query(ctx, s.db.conn,
		`SELECT `+blockColumns+` FROM blocks WHERE page_id = ? ORDER BY created_at ASC, id ASC`, pageID,
	)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []domain.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func (s *BlockStore) CountBlocks(ctx context.Context, pageID string) (int, error) {
	var n int
	if err := s.db.queryRow(ctx, s.db.conn, `SELECT COUNT(*) FROM blocks WHERE page_id = ?`, pageID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count blocks: %w", err)
	}
	return n, nil
}

func (s *BlockStore) UpdateBlock(ctx context.Context, b *domain.Block) error {
	b.UpdatedAt = time.Now().UTC()
	res, err := s.db.exec(ctx, s.db.conn,
		`UPDATE blocks SET type = ?, title = ?, content = ?, x = ?, y = ?, width = ?, height = ?, style_json = ?, settings_json = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		b.Type, b.Title, b.Content, b.X, b.Y, b.Width, b.Height, b.StyleJSON, b.SettingsJSON, b.IsActive, b.UpdatedAt, b.ID,
	)
	if err != nil {
		return fmt.Errorf("update block: %w", err)
	}
	return s.db.requireRow(ctx, res, "blocks", "block", b.ID)
}

// UpdatePlacements writes position and size for every placement in a single
// transaction. Unknown ids are ignored.
func (s *BlockStore) UpdatePlacements(ctx context.Context, placements []layout.Placement) error {
	if len(placements) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return s.db.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range placements {
			if _, err := s.db.exec(ctx, tx,
				`UPDATE blocks SET x = ?, y = ?, width = ?, height = ?, updated_at = ? WHERE id = ?`,
				p.X, p.Y, p.Width, p.Height, now, p.ID,
			); err != nil {
				return fmt.Errorf("update placement %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

func (s *BlockStore) DeleteBlock(ctx context.Context, id string) error {
	res, err := s.db.exec(ctx, s.db.conn, `DELETE FROM blocks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	return s.db.requireRow(ctx, res, "blocks", "block", id)
}

// DeleteBlocksByPage removes every block of a page and reports how many
// were deleted.
func (s *BlockStore) DeleteBlocksByPage(ctx context.Context, pageID string) (int, error) {
	res, err := s.db.exec(ctx, s.db.conn, `DELETE FROM blocks WHERE page_id = ?`, pageID)
	if err != nil {
		return 0, fmt.Errorf("delete blocks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete blocks: %w", err)
	}
	return int(n), nil
}
