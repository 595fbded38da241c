// Package ingest imports markdown journals into long-term memory.
//
// Headings become search keywords for the records beneath them, and a
// date found in a heading becomes the record timestamp, so a diary
// export lands in memory with its original chronology.
package ingest

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/mikan1111/mafuyu/internal/memory"
)

// Entry is one semantic unit extracted from a document.
type Entry struct {
	Section string
	Content string
	When    time.Time // zero when no date was found in the headings
}

// Importer writes parsed journal entries into a memory store.
type Importer struct {
	store  memory.Store
	userID string
}

// NewImporter creates a journal importer. Records are stored under the
// given user so recall stays scoped to them.
func NewImporter(store memory.Store, userID string) *Importer {
	return &Importer{store: store, userID: userID}
}

// IngestFile parses a markdown file and appends its entries to memory.
// It returns the number of records written.
func (im *Importer) IngestFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("ingest: read %s: %w", path, err)
	}
	return im.IngestString(string(data))
}

// IngestString parses markdown content and appends its entries.
func (im *Importer) IngestString(content string) (int, error) {
	count := 0
	for _, e := range ParseEntries([]byte(content)) {
		rec := &memory.Record{
			UserID:    im.userID,
			Timestamp: e.When,
			Keywords:  memory.Tokenize(e.Section + " " + e.Content),
			Content:   e.Content,
		}
		if err := im.store.Append(rec); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

var headingDate = regexp.MustCompile(`(\d{4})[-/年](\d{1,2})[-/月](\d{1,2})`)

// ParseEntries walks the markdown AST and returns one entry per
// top-level content block, tagged with the heading path above it.
func ParseEntries(src []byte) []Entry {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(src))

	var entries []Entry
	var levels [7]string // heading text by level
	var when time.Time

	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		if h, ok := node.(*ast.Heading); ok {
			title := strings.TrimSpace(string(h.Text(src)))
			level := h.Level
			if level < 1 {
				level = 1
			}
			if level > 6 {
				level = 6
			}
			levels[level] = title
			for l := level + 1; l < len(levels); l++ {
				levels[l] = ""
			}
			if t, ok := parseHeadingDate(title); ok {
				when = t
			}
			continue
		}

		content := blockText(node, src)
		if content == "" {
			continue
		}
		entries = append(entries, Entry{
			Section: sectionPath(levels),
			Content: content,
			When:    when,
		})
	}
	return entries
}

func sectionPath(levels [7]string) string {
	var parts []string
	for _, title := range levels {
		if title != "" {
			parts = append(parts, title)
		}
	}
	return strings.Join(parts, " / ")
}

// blockText flattens a block node to plain text. Lists keep one item
// per line, code blocks keep their verbatim content.
func blockText(n ast.Node, src []byte) string {
	switch n.Kind() {
	case ast.KindFencedCodeBlock, ast.KindCodeBlock:
		var b strings.Builder
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(src))
		}
		return strings.TrimSpace(b.String())
	case ast.KindList:
		var parts []string
		for item := n.FirstChild(); item != nil; item = item.NextSibling() {
			if t := strings.TrimSpace(string(item.Text(src))); t != "" {
				parts = append(parts, "- "+t)
			}
		}
		return strings.Join(parts, "\n")
	case ast.KindThematicBreak, ast.KindHTMLBlock:
		return ""
	}
	return strings.TrimSpace(string(n.Text(src)))
}

// parseHeadingDate recognizes "2026-08-12", "2026/8/12" and
// "2026年8月12日" style dates inside a heading.
func parseHeadingDate(s string) (time.Time, bool) {
	m := headingDate.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local), true
}
