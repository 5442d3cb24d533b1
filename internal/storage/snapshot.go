package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"maglink/internal/domain"
)

// DefaultMaxSnapshots is how many layout snapshots are kept per page.
const DefaultMaxSnapshots = 40

// SnapshotStore keeps a bounded layout history per page.
type SnapshotStore struct {
	db           *DB
	maxSnapshots int
}

// NewSnapshotStore creates a SnapshotStore keeping at most max snapshots per
// page. Non-positive values select DefaultMaxSnapshots.
func NewSnapshotStore(db *DB, max int) *SnapshotStore {
	if max <= 0 {
		max = DefaultMaxSnapshots
	}
	return &SnapshotStore{db: db, maxSnapshots: max}
}

func scanSnapshot(row scanner) (domain.LayoutSnapshot, error) {
	var (
		snap domain.LayoutSnapshot
		raw  string
	)
	if err := row.Scan(&snap.ID, &snap.PageID, &snap.Label, &raw, &snap.CreatedAt); err != nil {
		return snap, err
	}
	if err := json.Unmarshal([]byte(raw), &snap.Placements); err != nil {
		return snap, fmt.Errorf("decode snapshot %s: %w", snap.ID, err)
	}
	return snap, nil
}

// PushSnapshot stores snap and prunes the page's oldest snapshots beyond
// the limit.
func (s *SnapshotStore) PushSnapshot(ctx context.Context, snap *domain.LayoutSnapshot) error {
	raw, err := json.Marshal(snap.Placements)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	return s.db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.db.exec(ctx, tx,
			`INSERT INTO layout_snapshots (id, page_id, label, placements_json, created_at) VALUES (?, ?, ?, ?, ?)`,
			snap.ID, snap.PageID, snap.Label, string(raw), snap.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		return s.prune(ctx, tx, snap.PageID)
	})
}

// prune removes the oldest snapshots when a page holds more than the limit.
func (s *SnapshotStore) prune(ctx context.Context, tx *sql.Tx, pageID string) error {
	var count int
	if err := s.db.queryRow(ctx, tx, `SELECT COUNT(*) FROM layout_snapshots WHERE page_id = ?`, pageID).Scan(&count); err != nil {
		return fmt.Errorf("count snapshots: %w", err)
	}
	if count <= s.maxSnapshots {
		return nil
	}

	// Collect ids first; the rows cursor must be closed before writing.
	rows, err := s.db.query(ctx, tx,
		`SELECT id FROM layout_snapshots WHERE page_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		pageID, count-s.maxSnapshots,
	)
	if err != nil {
		return fmt.Errorf("select old snapshots: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if _, err := s.db.exec(ctx, tx, `DELETE FROM layout_snapshots WHERE id = ?`, id); err != nil {
			return fmt.Errorf("prune snapshot %s: %w", id, err)
		}
	}
	return nil
}

// ListSnapshots returns a page's snapshots newest first.
func (s *SnapshotStore) ListSnapshots(ctx context.Context, pageID string) ([]domain.LayoutSnapshot, error) {
	rows, err := s.db.query(ctx, s.db.conn,
		`SELECT id, page_id, label, placements_json, created_at FROM layout_snapshots
		 WHERE page_id = ? ORDER BY created_at DESC, id DESC`, pageID,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.LayoutSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *SnapshotStore) GetSnapshot(ctx context.Context, id string) (*domain.LayoutSnapshot, error) {
	snap, err := scanSnapshot(s.db.queryRow(ctx, s.db.conn,
		`SELECT id, page_id, label, placements_json, created_at FROM layout_snapshots WHERE id = ?`, id,
	))
	if err != nil {
		return nil, notFound(err, "snapshot", id)
	}
	return &snap, nil
}

// ClearSnapshots removes all layout history for a page.
func (s *SnapshotStore) ClearSnapshots(ctx context.Context, pageID string) error {
	if _, err := s.db.exec(ctx, s.db.conn, `DELETE FROM layout_snapshots WHERE page_id = ?`, pageID); err != nil {
		return fmt.Errorf("clear snapshots: %w", err)
	}
	return nil
}
