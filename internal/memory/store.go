// Package memory provides persistent long-term memory for the agent.
// Records are append-only and retrieved by keyword match, so the
// agent can recall facts the model chose to remember in earlier
// conversations.
package memory

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

// ErrPersistence wraps storage-layer failures so callers can
// distinguish them from empty results.
var ErrPersistence = errors.New("memory: persistence failure")

// Record is a single remembered fact.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Keywords  []string  `json:"keywords"`
	Content   string    `json:"content"`
}

// Store is the long-term memory interface.
type Store interface {
	// Append persists a new record. The record's ID and Timestamp are
	// assigned by the store if unset.
	Append(rec *Record) error

	// Search returns up to limit records for userID ordered by
	// keyword match count descending, then recency descending. A
	// keyword matches as a substring of the record's content or
	// keyword-set. Records with zero matches are excluded. An empty
	// result is not an error.
	Search(userID string, keywords []string, limit int) ([]Record, error)

	// Recent returns the newest n records for userID, newest first.
	Recent(userID string, n int) ([]Record, error)

	Close() error
}

// Tokenize splits free text into lowercase search keywords.
// Punctuation separates tokens; duplicates are dropped.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		f = strings.ToLower(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// matchScore counts how many query keywords hit the record, as a
// substring of its content or of one of its keywords,
// case-insensitively. Substring matching keeps unsegmented Japanese
// text retrievable: "東京" finds "今日は東京で天気が良かった" even
// though tokenization left the sentence as a single keyword.
func matchScore(rec Record, query []string) int {
	if len(query) == 0 {
		return 0
	}
	content := strings.ToLower(rec.Content)
	n := 0
	for _, q := range query {
		q = strings.ToLower(q)
		if q == "" {
			continue
		}
		if strings.Contains(content, q) {
			n++
			continue
		}
		for _, k := range rec.Keywords {
			if strings.Contains(strings.ToLower(k), q) {
				n++
				break
			}
		}
	}
	return n
}
