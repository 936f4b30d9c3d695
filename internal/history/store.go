package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/mapbridge/internal/publish"
	"github.com/banshee-data/mapbridge/internal/timeutil"
	"github.com/google/uuid"
)

// Record is one stored publication.
type Record struct {
	ID          int64
	RunID       string
	Seq         uint32
	Topic       string
	Kind        string
	Keyframes   int
	Landmarks   int
	Poses       int
	Stamp       time.Time
	PublishedAt time.Time
}

// Store appends publications for one run. Writes are synchronous; wrap
// it in a Recorder to observe a publisher.
type Store struct {
	db    *DB
	runID string
	clock timeutil.Clock
}

// NewStore creates a Store writing under a fresh run id.
func NewStore(db *DB, clock timeutil.Clock) *Store {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Store{
		db:    db,
		runID: uuid.NewString(),
		clock: clock,
	}
}

// RunID returns the id publications of this run are stored under.
func (s *Store) RunID() string {
	return s.runID
}

// Record inserts one publication.
func (s *Store) Record(ctx context.Context, e publish.Emission) error {
	var stamp sql.NullInt64
	if !e.Stamp.IsZero() {
		stamp = sql.NullInt64{Int64: e.Stamp.UnixNano(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO publications (run_id, seq, topic, kind, keyframes, landmarks, poses, stamp_ns, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, e.Seq, e.Topic, e.Decision.String(), e.Keyframes, e.Landmarks, e.Poses,
		stamp, s.clock.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("insert publication: %w", err)
	}
	return nil
}

// Recent returns up to limit publications across all runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	return queryRecords(ctx, s.db, `
		SELECT publication_id, run_id, seq, topic, kind, keyframes, landmarks, poses, stamp_ns, published_at
		FROM publications ORDER BY publication_id DESC LIMIT ?`, limit)
}

// RunRecords returns every publication of runID in publication order.
func (s *Store) RunRecords(ctx context.Context, runID string) ([]Record, error) {
	return queryRecords(ctx, s.db, `
		SELECT publication_id, run_id, seq, topic, kind, keyframes, landmarks, poses, stamp_ns, published_at
		FROM publications WHERE run_id = ? ORDER BY publication_id`, runID)
}

// CountByKind returns the number of publications of runID per kind.
func (s *Store) CountByKind(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM publications WHERE run_id = ? GROUP BY kind`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

func queryRecords(ctx context.Context, db *DB, query string, args ...any) ([]Record, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query publications: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var stamp sql.NullInt64
		var publishedAt int64
		if err := rows.Scan(&r.ID, &r.RunID, &r.Seq, &r.Topic, &r.Kind,
			&r.Keyframes, &r.Landmarks, &r.Poses, &stamp, &publishedAt); err != nil {
			return nil, fmt.Errorf("scan publication: %w", err)
		}
		if stamp.Valid {
			r.Stamp = time.Unix(0, stamp.Int64)
		}
		r.PublishedAt = time.Unix(0, publishedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
