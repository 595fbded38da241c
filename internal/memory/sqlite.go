package memory

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed memory store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the memory database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrPersistence, err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrPersistence, err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		keywords TEXT NOT NULL,
		content TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_user ON records(user_id, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append persists a new record. ID and Timestamp are assigned if unset.
func (s *SQLiteStore) Append(rec *Record) error {
	if rec.ID == "" {
		id, _ := uuid.NewV7()
		rec.ID = id.String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO records (id, user_id, timestamp, keywords, content)
		VALUES (?, ?, ?, ?, ?)
	`, rec.ID, rec.UserID, rec.Timestamp, strings.Join(rec.Keywords, " "), rec.Content)
	if err != nil {
		return fmt.Errorf("%w: insert record: %v", ErrPersistence, err)
	}
	return nil
}

// Search returns up to limit records ordered by keyword match count
// descending, then recency descending. Keywords match as substrings
// of content or keyword-set; zero-match records are excluded and an
// empty result is not an error.
func (s *SQLiteStore) Search(userID string, keywords []string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 5
	}
	if len(keywords) == 0 {
		return nil, nil
	}

	recs, err := s.userRecords(userID)
	if err != nil {
		return nil, err
	}

	type scored struct {
		rec   Record
		score int
	}
	var hits []scored
	for _, r := range recs {
		if n := matchScore(r, keywords); n > 0 {
			hits = append(hits, scored{rec: r, score: n})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].rec.Timestamp.After(hits[j].rec.Timestamp)
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Record, len(hits))
	for i, h := range hits {
		out[i] = h.rec
	}
	return out, nil
}

// Recent returns the newest n records for userID, newest first.
func (s *SQLiteStore) Recent(userID string, n int) ([]Record, error) {
	if n <= 0 {
		n = 5
	}
	rows, err := s.db.Query(`
		SELECT id, user_id, timestamp, keywords, content
		FROM records
		WHERE user_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, userID, n)
	if err != nil {
		return nil, fmt.Errorf("%w: query recent: %v", ErrPersistence, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *SQLiteStore) userRecords(userID string) ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, timestamp, keywords, content
		FROM records
		WHERE user_id = ?
		ORDER BY timestamp DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: query records: %v", ErrPersistence, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var recs []Record
	for rows.Next() {
		var r Record
		var kw string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Timestamp, &kw, &r.Content); err != nil {
			return nil, fmt.Errorf("%w: scan record: %v", ErrPersistence, err)
		}
		if kw != "" {
			r.Keywords = strings.Fields(kw)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate records: %v", ErrPersistence, err)
	}
	return recs, nil
}

// Stats returns record counts for diagnostics.
func (s *SQLiteStore) Stats() map[string]any {
	var total, users int
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&total)
	_ = s.db.QueryRow(`SELECT COUNT(DISTINCT user_id) FROM records`).Scan(&users)
	return map[string]any{
		"records": total,
		"users":   users,
		"storage": "sqlite",
	}
}
