package emotion

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrPersistence wraps storage-layer failures.
var ErrPersistence = errors.New("emotion: persistence failure")

// Store is the emotional state interface.
type Store interface {
	// Get returns the user's current state with time effects applied.
	// Unknown users get the default state.
	Get(userID string) (State, error)

	// ApplyDelta applies time effects, then the delta, then clamps,
	// and persists the result.
	ApplyDelta(userID string, d Delta) (State, error)

	Close() error
}

// SQLiteStore is a SQLite-backed emotion store.
type SQLiteStore struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the emotion database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrPersistence, err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrPersistence, err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS emotion_states (
		user_id TEXT PRIMARY KEY,
		affection INTEGER NOT NULL,
		mood INTEGER NOT NULL,
		energy INTEGER NOT NULL,
		last_updated TIMESTAMP NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the user's state with time effects applied. A decayed
// state is written back so the decay is not reapplied on the next
// read.
func (s *SQLiteStore) Get(userID string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	state, err := s.load(userID, now)
	if err != nil {
		return State{}, err
	}

	after := decayed(state, now)
	if after != state {
		if err := s.save(after); err != nil {
			return State{}, err
		}
	}
	return after, nil
}

// ApplyDelta applies time effects and then the delta, clamping every
// value, and persists the result.
func (s *SQLiteStore) ApplyDelta(userID string, d Delta) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	state, err := s.load(userID, now)
	if err != nil {
		return State{}, err
	}

	after := applyDelta(decayed(state, now), d, now)
	if err := s.save(after); err != nil {
		return State{}, err
	}
	return after, nil
}

func (s *SQLiteStore) load(userID string, now time.Time) (State, error) {
	row := s.db.QueryRow(`
		SELECT user_id, affection, mood, energy, last_updated
		FROM emotion_states WHERE user_id = ?
	`, userID)

	var state State
	err := row.Scan(&state.UserID, &state.Affection, &state.Mood, &state.Energy, &state.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return defaultState(userID, now), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("%w: load state: %v", ErrPersistence, err)
	}
	return state, nil
}

func (s *SQLiteStore) save(state State) error {
	_, err := s.db.Exec(`
		INSERT INTO emotion_states (user_id, affection, mood, energy, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			affection = excluded.affection,
			mood = excluded.mood,
			energy = excluded.energy,
			last_updated = excluded.last_updated
	`, state.UserID, state.Affection, state.Mood, state.Energy, state.LastUpdated)
	if err != nil {
		return fmt.Errorf("%w: save state: %v", ErrPersistence, err)
	}
	return nil
}
